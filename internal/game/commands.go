// internal/game/commands.go
package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/jason-s-yu/trivia-lobby/internal/models"
)

// MaxTimerSeconds bounds start_timer.
const MaxTimerSeconds = 3600

// Command is one host-issued mutation of a GameState. Apply must be a pure
// function of its inputs: the lobby manager may call it several times on fresh
// copies of the state when a conditional write loses a race.
type Command interface {
	Name() string
	Apply(gs *models.GameState, now time.Time) error
}

// SetCategories replaces the whole board.
type SetCategories struct {
	Categories []models.Category `json:"categories"`
}

func (SetCategories) Name() string { return "set_categories" }

func (c SetCategories) Apply(gs *models.GameState, _ time.Time) error {
	if err := validateBoard(c.Categories); err != nil {
		return err
	}
	gs.Categories = cloneBoard(c.Categories)
	gs.Normalize()
	return nil
}

// LoadDefaultBoard seeds the built-in sample board.
type LoadDefaultBoard struct{}

func (LoadDefaultBoard) Name() string { return "load_default_board" }

func (LoadDefaultBoard) Apply(gs *models.GameState, _ time.Time) error {
	gs.Categories = DefaultBoard()
	return nil
}

// UpdateQuestion edits the content of one question. The answered flag is
// left alone; use MarkAnswered and ReopenQuestion for that.
type UpdateQuestion struct {
	CategoryID string          `json:"categoryId"`
	QuestionID string          `json:"questionId"`
	Question   models.Question `json:"question"`
}

func (UpdateQuestion) Name() string { return "update_question" }

func (c UpdateQuestion) Apply(gs *models.GameState, _ time.Time) error {
	q, err := lookupQuestion(gs, c.CategoryID, c.QuestionID)
	if err != nil {
		return err
	}
	if c.Question.Value < 0 {
		return fmt.Errorf("%w: question value must not be negative", models.ErrInvalidInput)
	}
	q.Question = c.Question.Question
	q.Answer = c.Question.Answer
	q.Value = c.Question.Value
	q.QuestionImageURL = c.Question.QuestionImageURL
	q.AnswerImageURL = c.Question.AnswerImageURL

	if gs.CurrentQuestion != nil && gs.CurrentQuestion.ID == q.ID {
		cp := *q
		gs.CurrentQuestion = &cp
	}
	return nil
}

// StartGame moves the lobby from the waiting room onto the board.
type StartGame struct{}

func (StartGame) Name() string { return "start_game" }

func (StartGame) Apply(gs *models.GameState, _ time.Time) error {
	if gs.GameStarted {
		return fmt.Errorf("%w: game already started", models.ErrInvalidState)
	}
	if gs.GameEnded {
		return fmt.Errorf("%w: game has ended, return to lobby first", models.ErrInvalidState)
	}
	gs.GameStarted = true
	return nil
}

// ShowQuestion makes a question visible to players and opens a fresh buzz-in
// window for it.
type ShowQuestion struct {
	CategoryID string `json:"categoryId"`
	QuestionID string `json:"questionId"`
}

func (ShowQuestion) Name() string { return "show_question" }

func (c ShowQuestion) Apply(gs *models.GameState, _ time.Time) error {
	q, err := lookupQuestion(gs, c.CategoryID, c.QuestionID)
	if err != nil {
		return err
	}
	if q.Answered {
		return fmt.Errorf("%w: question %s was already answered", models.ErrInvalidState, q.ID)
	}
	cp := *q
	gs.CurrentQuestion = &cp
	gs.BuzzerQueue = []models.BuzzerEvent{}
	gs.ShowAnswerToPlayers = false
	return nil
}

// CloseQuestion hides the current question without consuming it.
type CloseQuestion struct{}

func (CloseQuestion) Name() string { return "close_question" }

func (CloseQuestion) Apply(gs *models.GameState, _ time.Time) error {
	gs.CurrentQuestion = nil
	gs.ShowAnswerToPlayers = false
	return nil
}

// MarkAnswered consumes a question and tears down its buzz-in window.
type MarkAnswered struct {
	CategoryID string `json:"categoryId"`
	QuestionID string `json:"questionId"`
}

func (MarkAnswered) Name() string { return "mark_answered" }

func (c MarkAnswered) Apply(gs *models.GameState, _ time.Time) error {
	q, err := lookupQuestion(gs, c.CategoryID, c.QuestionID)
	if err != nil {
		return err
	}
	q.Answered = true
	gs.CurrentQuestion = nil
	gs.BuzzerActive = false
	gs.BuzzerQueue = []models.BuzzerEvent{}
	gs.ShowAnswerToPlayers = false
	return nil
}

// ReopenQuestion makes an answered question selectable again.
type ReopenQuestion struct {
	CategoryID string `json:"categoryId"`
	QuestionID string `json:"questionId"`
}

func (ReopenQuestion) Name() string { return "reopen_question" }

func (c ReopenQuestion) Apply(gs *models.GameState, _ time.Time) error {
	q, err := lookupQuestion(gs, c.CategoryID, c.QuestionID)
	if err != nil {
		return err
	}
	q.Answered = false
	return nil
}

// SetAnswerVisibility toggles answer disclosure to non-host viewers.
type SetAnswerVisibility struct {
	Show bool `json:"show"`
}

func (SetAnswerVisibility) Name() string { return "set_answer_visibility" }

func (c SetAnswerVisibility) Apply(gs *models.GameState, _ time.Time) error {
	gs.ShowAnswerToPlayers = c.Show
	return nil
}

// AdjustScore adds a signed delta to one player's score. Scores have no floor.
type AdjustScore struct {
	PlayerID string `json:"playerId"`
	Delta    int    `json:"delta"`
}

func (AdjustScore) Name() string { return "adjust_score" }

func (c AdjustScore) Apply(gs *models.GameState, _ time.Time) error {
	idx := gs.FindPlayer(c.PlayerID)
	if idx < 0 {
		return fmt.Errorf("%w: unknown player %q", models.ErrInvalidInput, c.PlayerID)
	}
	gs.Players[idx].Score += c.Delta
	return nil
}

// ActivateBuzzer opens a new buzz-in window. The queue always starts empty.
type ActivateBuzzer struct{}

func (ActivateBuzzer) Name() string { return "activate_buzzer" }

func (ActivateBuzzer) Apply(gs *models.GameState, _ time.Time) error {
	gs.BuzzerActive = true
	gs.BuzzerQueue = []models.BuzzerEvent{}
	return nil
}

// DeactivateBuzzer closes the window and keeps the queue for inspection.
type DeactivateBuzzer struct{}

func (DeactivateBuzzer) Name() string { return "deactivate_buzzer" }

func (DeactivateBuzzer) Apply(gs *models.GameState, _ time.Time) error {
	gs.BuzzerActive = false
	return nil
}

// ClearBuzzer empties the queue and leaves the gate as it is.
type ClearBuzzer struct{}

func (ClearBuzzer) Name() string { return "clear_buzzer" }

func (ClearBuzzer) Apply(gs *models.GameState, _ time.Time) error {
	gs.BuzzerQueue = []models.BuzzerEvent{}
	return nil
}

// StartTimer sets an absolute countdown deadline. Seconds == 0 reuses the
// configured duration.
type StartTimer struct {
	Seconds int `json:"seconds"`
}

func (StartTimer) Name() string { return "start_timer" }

func (c StartTimer) Apply(gs *models.GameState, now time.Time) error {
	secs := c.Seconds
	if secs < 0 || secs > MaxTimerSeconds {
		return fmt.Errorf("%w: timer must be between 1 and %d seconds", models.ErrInvalidInput, MaxTimerSeconds)
	}
	if secs == 0 {
		secs = gs.TimerDuration
	}
	if secs <= 0 {
		secs = models.DefaultTimerDuration
	}
	end := now.Add(time.Duration(secs) * time.Second).UnixMilli()
	gs.TimerDuration = secs
	gs.TimerEndAt = &end
	return nil
}

// StopTimer cancels the countdown.
type StopTimer struct{}

func (StopTimer) Name() string { return "stop_timer" }

func (StopTimer) Apply(gs *models.GameState, _ time.Time) error {
	gs.TimerEndAt = nil
	return nil
}

// EndGame finishes the session and records the winner, if any.
type EndGame struct{}

func (EndGame) Name() string { return "end_game" }

func (EndGame) Apply(gs *models.GameState, now time.Time) error {
	if !gs.GameStarted {
		return fmt.Errorf("%w: game has not started", models.ErrInvalidState)
	}
	if gs.GameEnded {
		return fmt.Errorf("%w: game already ended", models.ErrInvalidState)
	}
	endedAt := now.UnixMilli()
	gs.GameEnded = true
	gs.EndedAt = &endedAt
	gs.WinnerID = nil
	if w := Winner(gs.Players); w != nil {
		id := w.ID
		gs.WinnerID = &id
	}
	gs.CurrentQuestion = nil
	gs.BuzzerActive = false
	gs.TimerEndAt = nil
	return nil
}

// ReturnToLobby credits the winner and resets the session, keeping the
// roster and the cumulative win counts.
type ReturnToLobby struct{}

func (ReturnToLobby) Name() string { return "return_to_lobby" }

func (ReturnToLobby) Apply(gs *models.GameState, _ time.Time) error {
	if !gs.GameEnded {
		return fmt.Errorf("%w: game has not ended", models.ErrInvalidState)
	}
	gs.Normalize()
	if gs.WinnerID != nil {
		gs.PlayerWins[*gs.WinnerID]++
	}
	for i := range gs.Players {
		gs.Players[i].Score = 0
	}
	for ci := range gs.Categories {
		for qi := range gs.Categories[ci].Questions {
			gs.Categories[ci].Questions[qi].Answered = false
		}
	}
	gs.GameStarted = false
	gs.GameEnded = false
	gs.EndedAt = nil
	gs.WinnerID = nil
	gs.CurrentQuestion = nil
	gs.BuzzerActive = false
	gs.BuzzerQueue = []models.BuzzerEvent{}
	gs.TimerEndAt = nil
	gs.ShowAnswerToPlayers = false
	return nil
}

func lookupQuestion(gs *models.GameState, categoryID, questionID string) (*models.Question, error) {
	q := gs.FindQuestion(categoryID, questionID)
	if q == nil {
		return nil, fmt.Errorf("%w: no question %q in category %q", models.ErrInvalidInput, questionID, categoryID)
	}
	return q, nil
}

// validateBoard checks that category ids are unique and question ids are
// unique across the whole board.
func validateBoard(cats []models.Category) error {
	catIDs := make(map[string]bool, len(cats))
	qIDs := make(map[string]bool)
	for _, c := range cats {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("%w: category id is required", models.ErrInvalidInput)
		}
		if catIDs[c.ID] {
			return fmt.Errorf("%w: duplicate category id %q", models.ErrInvalidInput, c.ID)
		}
		catIDs[c.ID] = true
		for _, q := range c.Questions {
			if strings.TrimSpace(q.ID) == "" {
				return fmt.Errorf("%w: question id is required in category %q", models.ErrInvalidInput, c.ID)
			}
			if qIDs[q.ID] {
				return fmt.Errorf("%w: duplicate question id %q", models.ErrInvalidInput, q.ID)
			}
			if q.Value < 0 {
				return fmt.Errorf("%w: question %q has a negative value", models.ErrInvalidInput, q.ID)
			}
			qIDs[q.ID] = true
		}
	}
	return nil
}

func cloneBoard(cats []models.Category) []models.Category {
	out := make([]models.Category, len(cats))
	for i, c := range cats {
		out[i] = c
		out[i].Questions = append([]models.Question(nil), c.Questions...)
	}
	return out
}
