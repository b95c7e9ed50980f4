// internal/handlers/api_server.go
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/trivia-lobby/internal/auth"
	"github.com/jason-s-yu/trivia-lobby/internal/lobby"
	"github.com/jason-s-yu/trivia-lobby/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Options configures the HTTP surface.
type Options struct {
	// AllowedOrigins restricts CORS. Empty allows any http(s) origin.
	AllowedOrigins []string
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
	// SessionTTL is the session cookie lifetime.
	SessionTTL time.Duration
}

// APIServer exposes the lobby manager over JSON/HTTP. It holds no lobby
// state; every request goes through the manager to the store.
type APIServer struct {
	lobbies  *lobby.Manager
	sessions *auth.Issuer
	log      logrus.FieldLogger
	opts     Options
}

func NewAPIServer(lobbies *lobby.Manager, sessions *auth.Issuer, logger logrus.FieldLogger, opts Options) *APIServer {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	return &APIServer{lobbies: lobbies, sessions: sessions, log: logger, opts: opts}
}

// Routes builds the router.
func (s *APIServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.LogMiddleware(s.log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-None-Match"},
		ExposedHeaders:   []string{"ETag"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/lobby", func(r chi.Router) {
		r.Post("/create", s.handleCreateLobby)
		r.Post("/join", s.handleJoinLobby)

		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", s.handleGetLobby)
			r.Delete("/", s.handleCloseLobby)
			r.Get("/version", s.handleGetVersion)
			r.Post("/name", s.handleRenameLobby)
			r.Post("/leave", s.handleLeaveLobby)
			r.Post("/active", s.handleSetActive)
			r.Get("/state", s.handleGetState)
			r.Post("/state", s.handleSetState)
			r.Post("/actions", s.handleAction)
			r.Post("/preview", s.handlePreviewQuestion)
			r.Post("/buzz", s.handleBuzz)
		})
	})
	return r
}
