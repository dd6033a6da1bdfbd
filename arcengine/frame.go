package arcengine

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownAction = errors.New("unknown game action")
	ErrNotStarted    = errors.New("game not started")
	ErrEpisodeOver   = errors.New("episode finished, reset to continue")
	ErrActionBlocked = errors.New("action not available")
)

// GameState describes where a play-through currently stands. IN_PROGRESS is
// the only state from which gameplay actions are accepted; WIN and GAME_OVER
// are terminal until the next reset.
type GameState string

const (
	StateNotPlayed  GameState = "NOT_PLAYED"
	StateNotStarted GameState = "NOT_STARTED"
	StateInProgress GameState = "IN_PROGRESS"
	StateWin        GameState = "WIN"
	StateGameOver   GameState = "GAME_OVER"
)

// Terminal reports whether the state ends the current episode.
func (s GameState) Terminal() bool {
	return s == StateWin || s == StateGameOver
}

// UnmarshalJSON accepts the legacy NOT_FINISHED wire name as an alias for
// IN_PROGRESS, which older servers still emit.
func (s *GameState) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch GameState(raw) {
	case StateNotPlayed, StateNotStarted, StateInProgress, StateWin, StateGameOver:
		*s = GameState(raw)
	case "NOT_FINISHED":
		*s = StateInProgress
	default:
		return fmt.Errorf("unknown game state %q", raw)
	}
	return nil
}

// Frame is the snapshot a game produces for every reset/step: the rendered
// display layers plus state and score bookkeeping. A Frame is produced fresh
// per call and never mutated afterwards.
type Frame struct {
	GameID           string       `json:"game_id"`
	Guid             string       `json:"guid"`
	Frame            [][][]int    `json:"frame"`
	State            GameState    `json:"state"`
	LevelsCompleted  int          `json:"levels_completed"`
	WinLevels        int          `json:"win_levels"`
	ActionInput      *ActionInput `json:"action_input,omitempty"`
	AvailableActions []int        `json:"available_actions"`
	FullReset        bool         `json:"full_reset,omitempty"`
}

// IsEmpty reports whether the frame carries no display data.
func (f *Frame) IsEmpty() bool {
	return f == nil || len(f.Frame) == 0
}
