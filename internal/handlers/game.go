// internal/handlers/game.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jason-s-yu/trivia-lobby/internal/auth"
	"github.com/jason-s-yu/trivia-lobby/internal/game"
	"github.com/jason-s-yu/trivia-lobby/internal/models"
)

type setStateRequest struct {
	HostID          string            `json:"hostId"`
	GameState       *models.GameState `json:"gameState"`
	ExpectedVersion *int64            `json:"expectedVersion"`
}

type stateResponse struct {
	Success   bool             `json:"success"`
	Version   int64            `json:"version"`
	GameState models.GameState `json:"gameState"`
}

type previewRequest struct {
	HostID     string `json:"hostId"`
	CategoryID string `json:"categoryId"`
	QuestionID string `json:"questionId"`
}

func (s *APIServer) handleGetState(w http.ResponseWriter, r *http.Request) {
	code, err := lobbyCode(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	gs, err := s.lobbies.GameState(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

// handleSetState replaces the whole game state. Without expectedVersion the
// last writer wins. A request without a host id is accepted unless it carries
// a player session.
func (s *APIServer) handleSetState(w http.ResponseWriter, r *http.Request) {
	code, err := lobbyCode(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req setStateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.GameState == nil {
		s.writeError(w, r, fmt.Errorf("%w: gameState is required", models.ErrInvalidInput))
		return
	}
	hostID := req.HostID
	if hostID == "" {
		if sess, ok := s.session(r, code); ok {
			if sess.Role != auth.RoleHost {
				s.writeError(w, r, fmt.Errorf("%w: players cannot replace the game state", models.ErrForbidden))
				return
			}
			hostID = sess.Subject
		}
	}
	l, err := s.lobbies.SetGameState(r.Context(), code, hostID, *req.GameState, req.ExpectedVersion)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{Success: true, Version: l.Version, GameState: l.GameState})
}

// handleAction applies one host command, e.g.
//
//	{"hostId": "host_...", "type": "adjust_score", "playerId": "player_...", "delta": -400}
func (s *APIServer) handleAction(w http.ResponseWriter, r *http.Request) {
	code, err := lobbyCode(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req hostRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			s.writeError(w, r, fmt.Errorf("%w: bad request payload", models.ErrInvalidInput))
			return
		}
	}
	cmd, err := game.DecodeCommand(data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	hostID := s.credential(r, code, req.HostID, auth.RoleHost)
	l, err := s.lobbies.Apply(r.Context(), code, hostID, cmd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{Success: true, Version: l.Version, GameState: l.GameState})
}

func (s *APIServer) handlePreviewQuestion(w http.ResponseWriter, r *http.Request) {
	code, err := lobbyCode(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req previewRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	hostID := s.credential(r, code, req.HostID, auth.RoleHost)
	q, err := s.lobbies.PreviewQuestion(r.Context(), code, hostID, req.CategoryID, req.QuestionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}
