package models

// GameResult is the archived outcome of one finished session, pushed to the
// results queue when a game ends and persisted by the historian.
type GameResult struct {
	LobbyCode string       `json:"lobby_code"`
	LobbyName string       `json:"lobby_name,omitempty"`
	EndedAt   int64        `json:"ended_at"`
	WinnerID  string       `json:"winner_id,omitempty"`
	Players   []FinalScore `json:"players"`
}

// FinalScore is a player's standing when the game ended.
type FinalScore struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Won      bool   `json:"won"`
}
