// internal/lobby/game_ops.go

package lobby

import (
	"context"
	"fmt"
	"time"

	"github.com/jason-s-yu/trivia-lobby/internal/game"
	"github.com/jason-s-yu/trivia-lobby/internal/models"
	"github.com/sirupsen/logrus"
)

// SetGameState replaces the whole game state. When expectedVersion is set the
// write only succeeds if the lobby is still at that version; otherwise the
// replacement is last-writer-wins. An empty hostID skips the host check.
func (m *Manager) SetGameState(ctx context.Context, code, hostID string, gs models.GameState, expectedVersion *int64) (*models.Lobby, error) {
	gs.Players = append([]models.Player(nil), gs.Players...)
	gs.BuzzerQueue = append([]models.BuzzerEvent(nil), gs.BuzzerQueue...)
	if err := game.Sanitize(&gs); err != nil {
		return nil, err
	}
	return m.mutate(ctx, NormalizeCode(code), "set_state", func(l *models.Lobby, _ time.Time) error {
		if hostID != "" {
			if err := authorizeHost(l, hostID); err != nil {
				return err
			}
		}
		if expectedVersion != nil && *expectedVersion != l.Version {
			return ErrStaleVersion
		}
		l.GameState = gs
		return nil
	})
}

// Apply runs a host command against the game state.
func (m *Manager) Apply(ctx context.Context, code, hostID string, cmd game.Command) (*models.Lobby, error) {
	l, err := m.mutate(ctx, NormalizeCode(code), cmd.Name(), func(l *models.Lobby, now time.Time) error {
		if err := authorizeHost(l, hostID); err != nil {
			return err
		}
		return cmd.Apply(&l.GameState, now)
	})
	if err != nil {
		return nil, err
	}
	if _, ended := cmd.(game.EndGame); ended {
		m.publishResult(ctx, l)
	}
	return l, nil
}

// PreviewQuestion shows the host a question, answer included, without
// changing anything players can see.
func (m *Manager) PreviewQuestion(ctx context.Context, code, hostID, categoryID, questionID string) (models.Question, error) {
	l, err := m.load(ctx, NormalizeCode(code))
	if err != nil {
		return models.Question{}, err
	}
	if err := authorizeHost(l, hostID); err != nil {
		return models.Question{}, err
	}
	q := l.GameState.FindQuestion(categoryID, questionID)
	if q == nil {
		return models.Question{}, fmt.Errorf("%w: no question %q in category %q", models.ErrInvalidInput, questionID, categoryID)
	}
	if q.Answered {
		return models.Question{}, fmt.Errorf("%w: question already answered", models.ErrInvalidState)
	}
	return *q, nil
}

// Buzz records a buzz-in for playerID. The timestamp is taken from the server
// clock on the attempt whose write is accepted, so a retried attempt is
// stamped later than the write it lost to.
func (m *Manager) Buzz(ctx context.Context, code, playerID, playerName string) (BuzzResult, error) {
	if playerID == "" {
		return BuzzResult{}, fmt.Errorf("%w: playerId is required", models.ErrInvalidInput)
	}
	var res BuzzResult
	_, err := m.mutate(ctx, NormalizeCode(code), "buzz", func(l *models.Lobby, now time.Time) error {
		ev, pos, err := game.Buzz(&l.GameState, playerID, playerName, now)
		if err != nil {
			return err
		}
		res = BuzzResult{Position: pos, Timestamp: ev.Timestamp}
		return nil
	})
	if err != nil {
		return BuzzResult{}, err
	}
	return res, nil
}

func (m *Manager) publishResult(ctx context.Context, l *models.Lobby) {
	if m.results == nil {
		return
	}
	gs := &l.GameState
	result := models.GameResult{
		LobbyCode: l.Code,
		LobbyName: l.LobbyName,
		EndedAt:   l.LastModified,
		Players:   game.FinalScores(gs),
	}
	if gs.EndedAt != nil {
		result.EndedAt = *gs.EndedAt
	}
	if gs.WinnerID != nil {
		result.WinnerID = *gs.WinnerID
	}
	if err := m.results.PublishGameResult(ctx, result); err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{"code": l.Code, "version": l.Version}).Warn("Failed to publish game result")
		return
	}
	m.log.WithFields(logrus.Fields{"code": l.Code, "winner": result.WinnerID}).Info("Game result published")
}
