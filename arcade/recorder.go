package arcade

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/arcprize/arcade-go/arcengine"
)

// RecordedEvent is one line of a JSONL recording.
type RecordedEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Data      RecordedFrame `json:"data"`
}

// RecordedFrame is the replayable snapshot of a frame. Action ids are stored
// by name so recordings stay readable.
type RecordedFrame struct {
	GameID           string               `json:"game_id"`
	Frame            [][][]int            `json:"frame"`
	State            arcengine.GameState  `json:"state"`
	LevelsCompleted  int                  `json:"levels_completed"`
	WinLevels        int                  `json:"win_levels"`
	ActionInput      *RecordedActionInput `json:"action_input"`
	Guid             string               `json:"guid"`
	FullReset        bool                 `json:"full_reset"`
	AvailableActions []int                `json:"available_actions"`
}

type RecordedActionInput struct {
	ID        string                `json:"id"`
	Data      *arcengine.ActionData `json:"data"`
	Reasoning any                   `json:"reasoning"`
}

// Recorder appends frames to a JSONL file at
// {recordings_dir}/{card_id}/{game_id}-{guid}.jsonl. The file is opened and
// closed per record so partial runs are never lost.
type Recorder struct {
	path string
}

// NewRecorder creates the recording directory and resolves the file path.
func NewRecorder(recordingsDir, cardID, gameID, guid string) (*Recorder, error) {
	dir := filepath.Join(recordingsDir, cardID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.jsonl", gameID, guid)
	return &Recorder{path: filepath.Join(dir, name)}, nil
}

// Path returns the recording file path.
func (r *Recorder) Path() string { return r.path }

// RecordFrame appends one frame as a single JSON line.
func (r *Recorder) RecordFrame(frame *arcengine.Frame, reasoning any) error {
	data := RecordedFrame{
		GameID:           frame.GameID,
		Frame:            frame.Frame,
		State:            frame.State,
		LevelsCompleted:  frame.LevelsCompleted,
		WinLevels:        frame.WinLevels,
		Guid:             frame.Guid,
		FullReset:        frame.FullReset,
		AvailableActions: frame.AvailableActions,
	}
	if frame.ActionInput != nil {
		recorded := &RecordedActionInput{
			ID:   frame.ActionInput.ID.String(),
			Data: frame.ActionInput.Data,
		}
		if reasoning != nil {
			recorded.Reasoning = reasoning
		} else {
			recorded.Reasoning = frame.ActionInput.Reasoning
		}
		data.ActionInput = recorded
	}
	return r.append(RecordedEvent{Timestamp: time.Now().UTC(), Data: data})
}

func (r *Recorder) append(event RecordedEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal recording event: %w", err)
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open recording file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write recording event: %w", err)
	}
	return nil
}

// ReadRecording loads every event from a JSONL recording file.
func ReadRecording(path string) ([]RecordedEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []RecordedEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event RecordedEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parse recording line %d: %w", len(events)+1, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
