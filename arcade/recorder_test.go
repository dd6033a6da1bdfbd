package arcade

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arcprize/arcade-go/arcengine"
)

func TestRecorderWritesOneLinePerFrame(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, "card-1", "ls20-abc", "guid-1")
	if err != nil {
		t.Fatal(err)
	}

	wantPath := filepath.Join(dir, "card-1", "ls20-abc-guid-1.jsonl")
	if rec.Path() != wantPath {
		t.Fatalf("Path = %q, want %q", rec.Path(), wantPath)
	}

	frames := []*arcengine.Frame{
		{
			GameID:           "ls20-abc",
			Guid:             "guid-1",
			State:            arcengine.StateInProgress,
			ActionInput:      &arcengine.ActionInput{ID: arcengine.ActionReset},
			AvailableActions: []int{0, 3, 4},
			FullReset:        true,
		},
		{
			GameID:           "ls20-abc",
			Guid:             "guid-1",
			State:            arcengine.StateInProgress,
			LevelsCompleted:  0,
			ActionInput:      &arcengine.ActionInput{ID: arcengine.Action3},
			AvailableActions: []int{0, 3, 4},
		},
		{
			GameID:           "ls20-abc",
			Guid:             "guid-1",
			State:            arcengine.StateWin,
			LevelsCompleted:  5,
			ActionInput:      &arcengine.ActionInput{ID: arcengine.Action6, Data: &arcengine.ActionData{X: 3, Y: 7}},
			AvailableActions: []int{0, 6},
		},
	}
	for _, frame := range frames {
		if err := rec.RecordFrame(frame, nil); err != nil {
			t.Fatal(err)
		}
	}

	raw, err := os.ReadFile(rec.Path())
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != len(frames) {
		t.Fatalf("got %d lines, want %d", len(lines), len(frames))
	}

	events, err := ReadRecording(rec.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != len(frames) {
		t.Fatalf("ReadRecording returned %d events, want %d", len(events), len(frames))
	}
	if events[0].Data.ActionInput.ID != "RESET" || !events[0].Data.FullReset {
		t.Errorf("first event = %+v", events[0].Data)
	}
	if events[1].Data.ActionInput.ID != "ACTION3" {
		t.Errorf("second event action = %q", events[1].Data.ActionInput.ID)
	}
	last := events[2].Data
	if last.State != arcengine.StateWin || last.LevelsCompleted != 5 {
		t.Errorf("last event = %+v", last)
	}
	if last.ActionInput.Data == nil || last.ActionInput.Data.X != 3 || last.ActionInput.Data.Y != 7 {
		t.Errorf("pointer data = %+v", last.ActionInput.Data)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("timestamp missing")
	}
}

func TestRecorderReasoningOverride(t *testing.T) {
	rec, err := NewRecorder(t.TempDir(), "card", "ls20", "g")
	if err != nil {
		t.Fatal(err)
	}
	frame := &arcengine.Frame{
		GameID:      "ls20",
		Guid:        "g",
		State:       arcengine.StateInProgress,
		ActionInput: &arcengine.ActionInput{ID: arcengine.Action1},
	}
	if err := rec.RecordFrame(frame, map[string]any{"plan": "poke it"}); err != nil {
		t.Fatal(err)
	}

	events, err := ReadRecording(rec.Path())
	if err != nil {
		t.Fatal(err)
	}
	reasoning, ok := events[0].Data.ActionInput.Reasoning.(map[string]any)
	if !ok || reasoning["plan"] != "poke it" {
		t.Errorf("reasoning = %#v", events[0].Data.ActionInput.Reasoning)
	}
}
