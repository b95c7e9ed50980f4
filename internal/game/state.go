package game

import (
	"fmt"
	"strings"

	"github.com/jason-s-yu/trivia-lobby/internal/models"
)

// Sanitize prepares a client-supplied replacement state for storage. It
// re-establishes the invariants a whole-state write could break: one queue
// entry per player sorted by timestamp, unique player names, no host entries
// in the roster and a well-formed board.
func Sanitize(gs *models.GameState) error {
	gs.Normalize()
	if err := validateBoard(gs.Categories); err != nil {
		return err
	}

	ids := make(map[string]bool, len(gs.Players))
	for i := range gs.Players {
		p := &gs.Players[i]
		p.IsHost = false
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: player id is required", models.ErrInvalidInput)
		}
		if ids[p.ID] {
			return fmt.Errorf("%w: duplicate player id %q", models.ErrInvalidInput, p.ID)
		}
		ids[p.ID] = true
		for j := 0; j < i; j++ {
			if models.SameName(gs.Players[j].Name, p.Name) {
				return fmt.Errorf("%w: duplicate player name %q", models.ErrInvalidInput, p.Name)
			}
		}
	}

	seen := make(map[string]bool, len(gs.BuzzerQueue))
	queue := gs.BuzzerQueue[:0]
	for _, ev := range gs.BuzzerQueue {
		if seen[ev.PlayerID] {
			continue
		}
		seen[ev.PlayerID] = true
		queue = append(queue, ev)
	}
	gs.BuzzerQueue = queue
	SortQueue(gs.BuzzerQueue)

	return nil
}
