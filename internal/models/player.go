package models

import "strings"

// Player is a non-host participant in a lobby. Insertion order in
// GameState.Players is join order.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	IsHost bool   `json:"isHost"`
}

// SameName reports whether the two names collide under the lobby's
// case-insensitive uniqueness rule.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// BuzzerEvent is one accepted buzz. Timestamp is epoch millis assigned by the
// server and is the only ordering key.
type BuzzerEvent struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Timestamp  int64  `json:"timestamp"`
}
