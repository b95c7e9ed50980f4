// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/trivia-lobby/internal/auth"
	"github.com/jason-s-yu/trivia-lobby/internal/cache"
	"github.com/jason-s-yu/trivia-lobby/internal/config"
	"github.com/jason-s-yu/trivia-lobby/internal/handlers"
	"github.com/jason-s-yu/trivia-lobby/internal/lobby"
	_ "github.com/joho/godotenv/autoload"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if cfg.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	clock := clockwork.NewRealClock()
	g, ctx := errgroup.WithContext(ctx)

	opts := []lobby.Option{
		lobby.WithClock(clock),
		lobby.WithLogger(logger),
		lobby.WithTTL(cfg.Store.LobbyTTL),
		lobby.WithRetries(uint64(cfg.Store.Retries)),
	}

	var store lobby.Store
	switch cfg.Store.Backend {
	case config.BackendRedis:
		rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		store = lobby.NewRedisStore(rdb, logger)
		opts = append(opts, lobby.WithResultPublisher(cache.NewResultQueue(rdb, cfg.Redis.ResultsQueue)))
		logger.WithFields(logrus.Fields{"addr": cfg.Redis.Addr, "db": cfg.Redis.DB}).Info("Using Redis lobby store")
	default:
		mem := lobby.NewMemoryStore(clock, logger)
		store = mem
		g.Go(func() error { return mem.Run(ctx, cfg.Store.SweepInterval) })
		logger.Warn("Using in-memory lobby store; lobbies are lost on restart")
	}

	issuer, err := newIssuer(cfg, logger)
	if err != nil {
		return err
	}

	api := handlers.NewAPIServer(lobby.NewManager(store, opts...), issuer, logger, handlers.Options{
		AllowedOrigins: originsFor(cfg),
		SecureCookies:  cfg.IsProduction(),
		SessionTTL:     cfg.Session.TTL,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newIssuer signs sessions with SESSION_KEY when it is set so that every
// instance accepts every other instance's tokens.
func newIssuer(cfg *config.Config, logger logrus.FieldLogger) (*auth.Issuer, error) {
	key, err := cfg.SessionKey()
	if err != nil {
		return nil, err
	}
	if key != nil {
		return auth.NewIssuerFromKey(key, cfg.Session.TTL), nil
	}
	if cfg.Store.Backend == config.BackendRedis {
		logger.Warn("SESSION_KEY not set; session tokens are only valid on this instance")
	}
	return auth.NewIssuer(cfg.Session.TTL)
}

// originsFor allows any origin outside production.
func originsFor(cfg *config.Config) []string {
	if cfg.IsProduction() {
		return cfg.AllowedOrigins
	}
	return nil
}
