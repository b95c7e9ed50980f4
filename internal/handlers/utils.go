package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jason-s-yu/trivia-lobby/internal/auth"
	"github.com/jason-s-yu/trivia-lobby/internal/lobby"
	"github.com/jason-s-yu/trivia-lobby/internal/models"
	"github.com/sirupsen/logrus"
)

// SessionCookie carries the signed session issued on create and join.
const SessionCookie = "trivia_session"

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorStatus maps an error kind to its HTTP status and wire code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrGone):
		return http.StatusGone, "gone"
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, models.ErrInvalidState):
		return http.StatusBadRequest, "invalid_state"
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeError renders err. Internal causes are logged, never sent.
func (s *APIServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithFields(logrus.Fields{
			"path":      r.URL.Path,
			"requestId": chimw.GetReqID(r.Context()),
		}).Error("Request failed")
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// decodeBody parses a JSON request body into v. An empty body leaves v
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	data, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: bad request payload", models.ErrInvalidInput)
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable request body", models.ErrInvalidInput)
	}
	return data, nil
}

// lobbyCode returns the upper-cased {code} path parameter.
func lobbyCode(r *http.Request) (string, error) {
	code := lobby.NormalizeCode(chi.URLParam(r, "code"))
	if !lobby.ValidCode(code) {
		return "", fmt.Errorf("%w: invalid lobby code", models.ErrInvalidInput)
	}
	return code, nil
}

// session returns the caller's session for code, read from the session
// cookie or an Authorization bearer token. A session for another lobby is
// ignored.
func (s *APIServer) session(r *http.Request, code string) (auth.Session, bool) {
	token := bearerToken(r)
	if token == "" {
		if c, err := r.Cookie(SessionCookie); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return auth.Session{}, false
	}
	sess, err := s.sessions.Parse(token)
	if err != nil {
		s.log.WithError(err).Debug("Ignoring invalid session token")
		return auth.Session{}, false
	}
	if sess.Code != code {
		return auth.Session{}, false
	}
	return sess, true
}

// credential returns given, or the session subject with the wanted role when
// given is empty.
func (s *APIServer) credential(r *http.Request, code, given, role string) string {
	if given != "" {
		return given
	}
	if sess, ok := s.session(r, code); ok && sess.Role == role {
		return sess.Subject
	}
	return ""
}

// issueSession signs a session, sets the cookie and returns the token.
func (s *APIServer) issueSession(w http.ResponseWriter, sess auth.Session) (string, error) {
	token, err := s.sessions.Issue(sess)
	if err != nil {
		return "", fmt.Errorf("%w: issue session: %w", models.ErrInternal, err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/api/lobby/" + sess.Code,
		MaxAge:   int(s.opts.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
