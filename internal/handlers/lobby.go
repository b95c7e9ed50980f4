// internal/handlers/lobby.go
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/jason-s-yu/trivia-lobby/internal/auth"
	"github.com/jason-s-yu/trivia-lobby/internal/models"
)

type createLobbyRequest struct {
	Password string `json:"password"`
}

type createLobbyResponse struct {
	Code         string `json:"code"`
	HostID       string `json:"hostId"`
	LobbyURL     string `json:"lobbyUrl"`
	SessionToken string `json:"sessionToken"`
}

type joinLobbyRequest struct {
	Code       string `json:"code"`
	PlayerName string `json:"playerName"`
	Password   string `json:"password"`
}

type joinLobbyResponse struct {
	Success      bool   `json:"success"`
	PlayerID     string `json:"playerId"`
	Code         string `json:"code"`
	SessionToken string `json:"sessionToken"`
}

type hostRequest struct {
	HostID string `json:"hostId"`
}

type renameRequest struct {
	HostID    string `json:"hostId"`
	LobbyName string `json:"lobbyName"`
}

type leaveRequest struct {
	PlayerID string `json:"playerId"`
	IsHost   *bool  `json:"isHost"`
}

type setActiveRequest struct {
	HostID string `json:"hostId"`
	Active *bool  `json:"active"`
}

// handleCreateLobby opens a lobby and makes the caller its host.
func (s *APIServer) handleCreateLobby(w http.ResponseWriter, r *http.Request) {
	var req createLobbyRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.lobbies.Create(r.Context(), req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.issueSession(w, auth.Session{Subject: res.HostID, Code: res.Code, Role: auth.RoleHost})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, createLobbyResponse{
		Code:         res.Code,
		HostID:       res.HostID,
		LobbyURL:     "/lobby/" + res.Code,
		SessionToken: token,
	})
}

func (s *APIServer) handleJoinLobby(w http.ResponseWriter, r *http.Request) {
	var req joinLobbyRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.lobbies.Join(r.Context(), req.Code, req.PlayerName, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.issueSession(w, auth.Session{Subject: res.PlayerID, Code: res.Code, Role: auth.RolePlayer})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, joinLobbyResponse{
		Success:      true,
		PlayerID:     res.PlayerID,
		Code:         res.Code,
		SessionToken: token,
	})
}

// handleGetLobby returns the full lobby. Clients that send back the ETag
// from their last read get 304 while nothing has changed.
func (s *APIServer) handleGetLobby(w http.ResponseWriter, r *http.Request) {
	code, err := lobbyCode(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	l, err := s.lobbies.Read(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	etag := versionETag(l.Version)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *APIServer) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	code, err := lobbyCode(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.lobbies.Version(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, v)
}

func (s *APIServer) handleCloseLobby(w http.ResponseWriter, r *http.Request) {
	code, err := lobbyCode(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req hostRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	hostID := s.credential(r, code, req.HostID, auth.RoleHost)
	if err := s.lobbies.Close(r.Context(), code, hostID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *APIServer) handleRenameLobby(w http.ResponseWriter, r *http.Request) {
	code, err := lobbyCode(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req renameRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	hostID := s.credential(r, code, req.HostID, auth.RoleHost)
	name, err := s.lobbies.Rename(r.Context(), code, hostID, req.LobbyName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "lobbyName": name})
}

// handleLeaveLobby removes the caller. When isHost is omitted it is taken
// from the session role.
func (s *APIServer) handleLeaveLobby(w http.ResponseWriter, r *http.Request) {
	code, err := lobbyCode(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req leaveRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	playerID := req.PlayerID
	isHost := req.IsHost != nil && *req.IsHost
	if playerID == "" {
		if sess, ok := s.session(r, code); ok {
			playerID = sess.Subject
			if req.IsHost == nil {
				isHost = sess.Role == auth.RoleHost
			}
		}
	}
	if playerID == "" {
		s.writeError(w, r, fmt.Errorf("%w: playerId is required", models.ErrInvalidInput))
		return
	}
	deleted, err := s.lobbies.Leave(r.Context(), code, playerID, isHost)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true, "lobbyDeleted": deleted})
}

func (s *APIServer) handleSetActive(w http.ResponseWriter, r *http.Request) {
	code, err := lobbyCode(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req setActiveRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Active == nil {
		s.writeError(w, r, fmt.Errorf("%w: active is required", models.ErrInvalidInput))
		return
	}
	hostID := s.credential(r, code, req.HostID, auth.RoleHost)
	l, err := s.lobbies.SetActive(r.Context(), code, hostID, *req.Active)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true, "isActive": l.IsActive})
}

func versionETag(version int64) string {
	return `"v` + strconv.FormatInt(version, 10) + `"`
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}
