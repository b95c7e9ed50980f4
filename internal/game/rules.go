// internal/game/rules.go
package game

import "github.com/jason-s-yu/trivia-lobby/internal/models"

// Winner picks the player with the strictly greatest score. A top score of
// zero or less produces no winner. On a tie at the top the player who joined
// first wins, since Players is kept in join order.
func Winner(players []models.Player) *models.Player {
	var best *models.Player
	for i := range players {
		p := &players[i]
		if p.IsHost || p.Score <= 0 {
			continue
		}
		if best == nil || p.Score > best.Score {
			best = p
		}
	}
	return best
}

// FinalScores snapshots the roster for the results archive.
func FinalScores(gs *models.GameState) []models.FinalScore {
	out := make([]models.FinalScore, 0, len(gs.Players))
	for _, p := range gs.Players {
		out = append(out, models.FinalScore{
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
			Won:      gs.WinnerID != nil && *gs.WinnerID == p.ID,
		})
	}
	return out
}
