package game

import (
	"encoding/json"
	"fmt"

	"github.com/jason-s-yu/trivia-lobby/internal/models"
)

// commandEnvelope is the wire form of a command: a "type" tag plus the union
// of all command fields.
type commandEnvelope struct {
	Type       string            `json:"type"`
	CategoryID string            `json:"categoryId"`
	QuestionID string            `json:"questionId"`
	PlayerID   string            `json:"playerId"`
	Delta      *int              `json:"delta"`
	Seconds    int               `json:"seconds"`
	Show       *bool             `json:"show"`
	Categories []models.Category `json:"categories"`
	Question   *models.Question  `json:"question"`
}

// DecodeCommand parses a tagged JSON command.
func DecodeCommand(data []byte) (Command, error) {
	var env commandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed command: %v", models.ErrInvalidInput, err)
	}

	switch env.Type {
	case "set_categories":
		if env.Categories == nil {
			return nil, missing(env.Type, "categories")
		}
		return SetCategories{Categories: env.Categories}, nil
	case "load_default_board":
		return LoadDefaultBoard{}, nil
	case "update_question":
		if env.Question == nil {
			return nil, missing(env.Type, "question")
		}
		return UpdateQuestion{CategoryID: env.CategoryID, QuestionID: env.QuestionID, Question: *env.Question}, nil
	case "start_game":
		return StartGame{}, nil
	case "show_question":
		return ShowQuestion{CategoryID: env.CategoryID, QuestionID: env.QuestionID}, nil
	case "close_question":
		return CloseQuestion{}, nil
	case "mark_answered":
		return MarkAnswered{CategoryID: env.CategoryID, QuestionID: env.QuestionID}, nil
	case "reopen_question":
		return ReopenQuestion{CategoryID: env.CategoryID, QuestionID: env.QuestionID}, nil
	case "set_answer_visibility":
		if env.Show == nil {
			return nil, missing(env.Type, "show")
		}
		return SetAnswerVisibility{Show: *env.Show}, nil
	case "adjust_score":
		if env.Delta == nil {
			return nil, missing(env.Type, "delta")
		}
		return AdjustScore{PlayerID: env.PlayerID, Delta: *env.Delta}, nil
	case "activate_buzzer":
		return ActivateBuzzer{}, nil
	case "deactivate_buzzer":
		return DeactivateBuzzer{}, nil
	case "clear_buzzer":
		return ClearBuzzer{}, nil
	case "start_timer":
		return StartTimer{Seconds: env.Seconds}, nil
	case "stop_timer":
		return StopTimer{}, nil
	case "end_game":
		return EndGame{}, nil
	case "return_to_lobby":
		return ReturnToLobby{}, nil
	case "":
		return nil, fmt.Errorf("%w: command type is required", models.ErrInvalidInput)
	default:
		return nil, fmt.Errorf("%w: unknown command %q", models.ErrInvalidInput, env.Type)
	}
}

func missing(cmd, field string) error {
	return fmt.Errorf("%w: %s requires %q", models.ErrInvalidInput, cmd, field)
}
