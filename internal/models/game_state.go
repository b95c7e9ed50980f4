package models

// Question is one cell on the board.
type Question struct {
	ID               string `json:"id"`
	Question         string `json:"question"`
	Answer           string `json:"answer"`
	Value            int    `json:"value"`
	Answered         bool   `json:"answered"`
	QuestionImageURL string `json:"questionImageUrl,omitempty"`
	AnswerImageURL   string `json:"answerImageUrl,omitempty"`
}

// Category is one board column.
type Category struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

// GameState is the mutable session state embedded in a Lobby.
type GameState struct {
	Categories      []Category    `json:"categories"`
	Players         []Player      `json:"players"`
	CurrentQuestion *Question     `json:"currentQuestion"`
	BuzzerActive    bool          `json:"buzzerActive"`
	BuzzerQueue     []BuzzerEvent `json:"buzzerQueue"`
	GameStarted     bool          `json:"gameStarted"`
	GameEnded       bool          `json:"gameEnded"`
	EndedAt         *int64        `json:"endedAt,omitempty"`
	WinnerID        *string       `json:"winnerId"`

	// PlayerWins counts won sessions per player id across rounds played in
	// the same lobby.
	PlayerWins map[string]int `json:"playerWins"`

	TimerEndAt          *int64 `json:"timerEndAt"`
	TimerDuration       int    `json:"timerDuration"`
	ShowAnswerToPlayers bool   `json:"showAnswerToPlayers"`
}

// DefaultTimerDuration is used when no timer length was configured.
const DefaultTimerDuration = 30

// NewGameState returns an empty state with non-nil collections.
func NewGameState() GameState {
	gs := GameState{TimerDuration: DefaultTimerDuration}
	gs.Normalize()
	return gs
}

// Normalize replaces nil collections so the JSON form always carries arrays
// and objects, never null.
func (gs *GameState) Normalize() {
	if gs.Categories == nil {
		gs.Categories = []Category{}
	}
	for i := range gs.Categories {
		if gs.Categories[i].Questions == nil {
			gs.Categories[i].Questions = []Question{}
		}
	}
	if gs.Players == nil {
		gs.Players = []Player{}
	}
	if gs.BuzzerQueue == nil {
		gs.BuzzerQueue = []BuzzerEvent{}
	}
	if gs.PlayerWins == nil {
		gs.PlayerWins = map[string]int{}
	}
	if gs.TimerDuration <= 0 {
		gs.TimerDuration = DefaultTimerDuration
	}
}

// FindPlayer returns the roster index of playerID or -1.
func (gs *GameState) FindPlayer(playerID string) int {
	for i := range gs.Players {
		if gs.Players[i].ID == playerID {
			return i
		}
	}
	return -1
}

// FindQuestion returns pointers into the board for the given ids, or nil.
func (gs *GameState) FindQuestion(categoryID, questionID string) *Question {
	for ci := range gs.Categories {
		if gs.Categories[ci].ID != categoryID {
			continue
		}
		qs := gs.Categories[ci].Questions
		for qi := range qs {
			if qs[qi].ID == questionID {
				return &qs[qi]
			}
		}
	}
	return nil
}

// HasBuzzed reports whether playerID already holds a queue entry.
func (gs *GameState) HasBuzzed(playerID string) bool {
	for _, ev := range gs.BuzzerQueue {
		if ev.PlayerID == playerID {
			return true
		}
	}
	return false
}
