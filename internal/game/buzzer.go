// internal/game/buzzer.go
package game

import (
	"fmt"
	"sort"
	"time"

	"github.com/jason-s-yu/trivia-lobby/internal/models"
)

var (
	ErrBuzzerInactive = fmt.Errorf("%w: buzzer not active", models.ErrInvalidState)
	ErrAlreadyBuzzed  = fmt.Errorf("%w: already buzzed", models.ErrConflict)
	ErrNotInLobby     = fmt.Errorf("%w: player is not in this lobby", models.ErrForbidden)
)

// Buzz appends playerID to the queue with the server time now and returns the
// accepted event and its 1-based position in the timestamp-sorted queue.
//
// The display name comes from the roster. playerName is only used when the
// roster entry has no name.
func Buzz(gs *models.GameState, playerID, playerName string, now time.Time) (models.BuzzerEvent, int, error) {
	if !gs.BuzzerActive {
		return models.BuzzerEvent{}, 0, ErrBuzzerInactive
	}
	if gs.HasBuzzed(playerID) {
		return models.BuzzerEvent{}, 0, ErrAlreadyBuzzed
	}
	idx := gs.FindPlayer(playerID)
	if idx < 0 {
		return models.BuzzerEvent{}, 0, ErrNotInLobby
	}
	name := gs.Players[idx].Name
	if name == "" {
		name = playerName
	}

	ev := models.BuzzerEvent{
		PlayerID:   playerID,
		PlayerName: name,
		Timestamp:  now.UnixMilli(),
	}
	gs.BuzzerQueue = append(gs.BuzzerQueue, ev)
	SortQueue(gs.BuzzerQueue)
	return ev, Position(gs.BuzzerQueue, playerID), nil
}

// SortQueue orders the queue by timestamp. Equal timestamps keep insertion
// order.
func SortQueue(q []models.BuzzerEvent) {
	sort.SliceStable(q, func(i, j int) bool {
		return q[i].Timestamp < q[j].Timestamp
	})
}

// Position returns the 1-based rank of playerID in a sorted queue, or 0.
func Position(q []models.BuzzerEvent, playerID string) int {
	for i, ev := range q {
		if ev.PlayerID == playerID {
			return i + 1
		}
	}
	return 0
}
