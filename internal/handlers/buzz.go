package handlers

import (
	"net/http"

	"github.com/jason-s-yu/trivia-lobby/internal/auth"
)

// buzzRequest has no timestamp field. Buzzes are ordered by server time.
type buzzRequest struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type buzzResponse struct {
	Success   bool  `json:"success"`
	Position  int   `json:"position"`
	Timestamp int64 `json:"timestamp"`
}

func (s *APIServer) handleBuzz(w http.ResponseWriter, r *http.Request) {
	code, err := lobbyCode(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req buzzRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	playerID := s.credential(r, code, req.PlayerID, auth.RolePlayer)
	res, err := s.lobbies.Buzz(r.Context(), code, playerID, req.PlayerName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buzzResponse{Success: true, Position: res.Position, Timestamp: res.Timestamp})
}
