// internal/models/lobby.go
package models

// Lobby is the root record of one game session. It is stored whole under
// `lobby:{CODE}` and replaced whole on every mutation.
type Lobby struct {
	Code      string `json:"code"`
	HostID    string `json:"hostId"`
	LobbyName string `json:"lobbyName,omitempty"`

	// PasswordHash is the Argon2id encoding of the join password. It must
	// never be serialized to clients; use Public() for responses.
	PasswordHash string `json:"passwordHash,omitempty"`

	CreatedAt    int64     `json:"createdAt"`
	IsActive     bool      `json:"isActive"`
	Version      int64     `json:"version"`
	LastModified int64     `json:"lastModified"`
	GameState    GameState `json:"gameState"`
}

// PublicLobby is the client-facing view of a Lobby.
type PublicLobby struct {
	Code string `json:"code"`
	// HostID is part of the published lobby; clients derive isHost from it.
	HostID       string    `json:"hostId"`
	LobbyName    string    `json:"lobbyName,omitempty"`
	HasPassword  bool      `json:"hasPassword"`
	CreatedAt    int64     `json:"createdAt"`
	IsActive     bool      `json:"isActive"`
	Version      int64     `json:"version"`
	LastModified int64     `json:"lastModified"`
	GameState    GameState `json:"gameState"`
}

// VersionInfo is the payload of the lightweight polling read.
type VersionInfo struct {
	Version           int64 `json:"version"`
	LastModified      int64 `json:"lastModified"`
	BuzzerActive      bool  `json:"buzzerActive"`
	BuzzerQueueLength int   `json:"buzzerQueueLength"`
}

// Public strips the password hash.
func (l *Lobby) Public() PublicLobby {
	return PublicLobby{
		Code:         l.Code,
		HostID:       l.HostID,
		LobbyName:    l.LobbyName,
		HasPassword:  l.PasswordHash != "",
		CreatedAt:    l.CreatedAt,
		IsActive:     l.IsActive,
		Version:      l.Version,
		LastModified: l.LastModified,
		GameState:    l.GameState,
	}
}

// VersionInfo builds the polling payload.
func (l *Lobby) VersionInfo() VersionInfo {
	last := l.LastModified
	if last == 0 {
		last = l.CreatedAt
	}
	return VersionInfo{
		Version:           l.Version,
		LastModified:      last,
		BuzzerActive:      l.GameState.BuzzerActive,
		BuzzerQueueLength: len(l.GameState.BuzzerQueue),
	}
}

// FindPlayer returns the roster index of playerID or -1.
func (l *Lobby) FindPlayer(playerID string) int {
	return l.GameState.FindPlayer(playerID)
}
