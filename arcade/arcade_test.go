package arcade

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arcprize/arcade-go/arcengine"
)

func writeGameMetadata(t *testing.T, root string, info EnvironmentInfo) {
	t.Helper()
	base, version := SplitGameID(info.GameID)
	dir := filepath.Join(root, base, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	raw, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), raw, 0o644); err != nil {
		t.Fatal(err)
	}
}

// newOfflineArcade builds an Arcade over two locally discovered games with an
// unreachable base URL, so any accidental network use fails fast.
func newOfflineArcade(t *testing.T) *Arcade {
	t.Helper()
	envDir := t.TempDir()
	writeGameMetadata(t, envDir, EnvironmentInfo{
		GameID:          "ls20-abc123",
		Title:           "Key Trail",
		Tags:            []string{"trail"},
		BaselineActions: []int{4, 8, 16, 20, 24},
	})
	writeGameMetadata(t, envDir, EnvironmentInfo{
		GameID:          "bt33-def456",
		Title:           "Click Trail",
		Tags:            []string{"trail"},
		BaselineActions: []int{4, 8, 16, 20, 24},
	})

	a, err := New(Config{
		APIKey:          "test-key",
		BaseURL:         "http://127.0.0.1:1",
		Mode:            ModeOffline,
		EnvironmentsDir: envDir,
		RecordingsDir:   t.TempDir(),
		StaleAfter:      time.Minute,
		Logger:          quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestOfflinePlayScoresAgainstBaselines(t *testing.T) {
	a := newOfflineArcade(t)

	env := a.Make("ls20", MakeOptions{})
	if env == nil {
		t.Fatal("Make returned nil")
	}
	if env.Info().GameID != "ls20-abc123" {
		t.Fatalf("resolved game = %s", env.Info().GameID)
	}

	var frame *arcengine.Frame
	for i := 0; i < 4; i++ {
		if frame = env.Step(arcengine.Action3, nil, nil); frame == nil {
			t.Fatalf("step %d returned nil", i+1)
		}
	}
	if frame.LevelsCompleted != 1 {
		t.Fatalf("levels completed = %d, want 1", frame.LevelsCompleted)
	}
	if frame.State != arcengine.StateInProgress {
		t.Fatalf("state = %s", frame.State)
	}

	out := a.GetScorecard("")
	if out == nil {
		t.Fatal("default scorecard missing")
	}
	if len(out.Games) != 1 || out.Games[0].ID != "ls20-abc123" {
		t.Fatalf("games = %+v", out.Games)
	}
	run, ok := out.Get("ls20-abc123")
	if !ok {
		t.Fatal("run not found")
	}
	if run.Actions != 4 || run.LevelsCompleted != 1 {
		t.Errorf("run actions=%d levels=%d", run.Actions, run.LevelsCompleted)
	}
	// Level one matched its baseline of 4 actions; the remaining four
	// levels were never played, so the run averages to 20.
	if len(run.LevelScores) != 5 || run.LevelScores[0] != 100 {
		t.Errorf("level scores = %v", run.LevelScores)
	}
	if !almostEqual(run.Score, 20) || !almostEqual(out.Score, 20) {
		t.Errorf("run score=%.2f card score=%.2f, want 20", run.Score, out.Score)
	}
}

func TestScorecardReadsDuringPlay(t *testing.T) {
	a := newOfflineArcade(t)
	env := a.Make("ls20", MakeOptions{})
	if env == nil {
		t.Fatal("Make returned nil")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			// The periodic reset keeps the run from ever reaching a
			// terminal state, so every step stays legal.
			if i%5 == 4 {
				env.Reset()
				continue
			}
			env.Step(arcengine.Action3, nil, nil)
		}
	}()

	for {
		select {
		case <-done:
			out := a.GetScorecard("")
			if out == nil || len(out.Games) != 1 {
				t.Fatalf("final scorecard = %+v", out)
			}
			return
		default:
			if out := a.GetScorecard(""); out == nil {
				t.Fatal("scorecard read failed mid-play")
			}
		}
	}
}

func TestDefaultScorecardSharedUntilClosed(t *testing.T) {
	a := newOfflineArcade(t)

	if env := a.Make("ls20", MakeOptions{}); env == nil {
		t.Fatal("Make ls20 returned nil")
	}
	if env := a.Make("bt33", MakeOptions{}); env == nil {
		t.Fatal("Make bt33 returned nil")
	}

	out := a.GetScorecard("")
	if out == nil || len(out.Games) != 2 {
		t.Fatalf("scorecard = %+v", out)
	}
	cardID := out.CardID

	closed := a.CloseScorecard("")
	if closed == nil || closed.CardID != cardID {
		t.Fatalf("close returned %+v", closed)
	}
	if a.GetScorecard("") != nil {
		t.Fatal("default scorecard survived close")
	}
	if a.CloseScorecard(cardID) != nil {
		t.Fatal("closed scorecard closed twice")
	}

	// The next session mints a fresh default card.
	if env := a.Make("ls20", MakeOptions{}); env == nil {
		t.Fatal("Make after close returned nil")
	}
	fresh := a.GetScorecard("")
	if fresh == nil || fresh.CardID == cardID {
		t.Fatalf("fresh scorecard = %+v", fresh)
	}
	if len(fresh.Games) != 1 {
		t.Fatalf("fresh games = %+v", fresh.Games)
	}
}

func TestMakeResolvesVersions(t *testing.T) {
	a := newOfflineArcade(t)

	if env := a.Make("ls20-abc123", MakeOptions{}); env == nil {
		t.Error("exact version not found")
	}
	if env := a.Make("ls20-nope", MakeOptions{}); env != nil {
		t.Error("unknown version resolved")
	}
	if env := a.Make("zz99", MakeOptions{}); env != nil {
		t.Error("unknown game resolved")
	}
	if env := a.Make("", MakeOptions{}); env != nil {
		t.Error("empty id resolved")
	}
	if env := a.Make("ls20/../etc", MakeOptions{}); env != nil {
		t.Error("path-shaped id resolved")
	}
}

func TestMakePrefersLatestDownload(t *testing.T) {
	envDir := t.TempDir()
	older := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	writeGameMetadata(t, envDir, EnvironmentInfo{
		GameID:         "ls20-old111",
		DateDownloaded: &older,
	})
	writeGameMetadata(t, envDir, EnvironmentInfo{
		GameID:         "ls20-new222",
		DateDownloaded: &newer,
	})

	a, err := New(Config{
		APIKey:          "test-key",
		Mode:            ModeOffline,
		EnvironmentsDir: envDir,
		RecordingsDir:   t.TempDir(),
		StaleAfter:      time.Minute,
		Logger:          quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	env := a.Make("ls20", MakeOptions{})
	if env == nil {
		t.Fatal("Make returned nil")
	}
	if env.Info().GameID != "ls20-new222" {
		t.Errorf("resolved %s, want ls20-new222", env.Info().GameID)
	}
}

func TestSimpleActionDropsCoordinates(t *testing.T) {
	a := newOfflineArcade(t)
	env := a.Make("ls20", MakeOptions{})
	if env == nil {
		t.Fatal("Make returned nil")
	}

	frame := env.Step(arcengine.Action3, &arcengine.ActionData{X: 99, Y: 99}, nil)
	if frame == nil {
		t.Fatal("simple action with junk coordinates was rejected")
	}
	if frame.ActionInput.Data != nil {
		t.Errorf("coordinates leaked through: %+v", frame.ActionInput.Data)
	}
}

func TestPointerActionValidation(t *testing.T) {
	a := newOfflineArcade(t)
	env := a.Make("bt33", MakeOptions{})
	if env == nil {
		t.Fatal("Make returned nil")
	}

	before := a.GetScorecard("").TotalActions()

	if frame := env.Step(arcengine.Action6, nil, nil); frame != nil {
		t.Error("pointer action without coordinates accepted")
	}
	if frame := env.Step(arcengine.Action6, &arcengine.ActionData{X: arcengine.GridSize, Y: 0}, nil); frame != nil {
		t.Error("out-of-bounds pointer accepted")
	}
	if frame := env.Step(arcengine.Action3, nil, nil); frame != nil {
		t.Error("unavailable action accepted")
	}
	if after := a.GetScorecard("").TotalActions(); after != before {
		t.Errorf("rejected steps changed scorecard: %d -> %d", before, after)
	}

	if frame := env.Step(arcengine.Action6, &arcengine.ActionData{X: 1, Y: 1}, nil); frame == nil {
		t.Fatal("valid pointer step rejected")
	}
	if after := a.GetScorecard("").TotalActions(); after != before+1 {
		t.Errorf("actions = %d, want %d", after, before+1)
	}
}

func TestEpisodeEndsUntilReset(t *testing.T) {
	a := newOfflineArcade(t)
	env := a.Make("ls20", MakeOptions{})
	if env == nil {
		t.Fatal("Make returned nil")
	}

	var frame *arcengine.Frame
	for i := 0; i < 4; i++ {
		if frame = env.Step(arcengine.Action4, nil, nil); frame == nil {
			t.Fatalf("step %d returned nil", i+1)
		}
	}
	if frame.State != arcengine.StateGameOver {
		t.Fatalf("state = %s, want GAME_OVER", frame.State)
	}

	if frame := env.Step(arcengine.Action3, nil, nil); frame != nil {
		t.Fatal("step accepted after episode ended")
	}

	frame = env.Reset()
	if frame == nil {
		t.Fatal("reset after game over failed")
	}
	if !frame.FullReset || frame.State != arcengine.StateInProgress {
		t.Fatalf("reset frame = state %s full_reset %v", frame.State, frame.FullReset)
	}

	out := a.GetScorecard("")
	if len(out.Games) != 1 || len(out.Games[0].Runs) != 2 {
		t.Fatalf("scorecard = %+v", out.Games)
	}
	if got := out.Games[0].Runs[0]; got.State != arcengine.StateGameOver || got.Actions != 4 {
		t.Errorf("first run = %+v", got)
	}
}

func TestPlaySessionsAreRecorded(t *testing.T) {
	a := newOfflineArcade(t)
	cardID, err := a.CreateScorecard("", []string{"test"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	env := a.Make("ls20", MakeOptions{CardID: cardID, SaveRecording: true})
	if env == nil {
		t.Fatal("Make returned nil")
	}
	env.Step(arcengine.Action3, nil, nil)
	env.Step(arcengine.Action3, nil, nil)

	matches, err := filepath.Glob(filepath.Join(a.Config().RecordingsDir, cardID, "*.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("recordings = %v", matches)
	}

	events, err := ReadRecording(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want reset plus two steps", len(events))
	}
	if !events[0].Data.FullReset || events[0].Data.ActionInput.ID != "RESET" {
		t.Errorf("first event = %+v", events[0].Data)
	}
	if events[2].Data.ActionInput.ID != "ACTION3" {
		t.Errorf("last event action = %q", events[2].Data.ActionInput.ID)
	}
}

func TestMakeRunsScriptedGame(t *testing.T) {
	envDir := t.TempDir()
	writeGameMetadata(t, envDir, EnvironmentInfo{
		GameID:          "qq77-scripted",
		Title:           "Scripted Trail",
		BaselineActions: []int{1},
	})

	// qq77 has no compiled implementation; the session must come from the
	// script next to its metadata.
	script := `
configure({levels: [{width: 4, height: 4}], actions: [1], background: 5, letterBox: 3});
function onAction(action) {
    if (action.id === 1) { nextLevel(); }
    completeAction();
}
`
	scriptPath := filepath.Join(envDir, "qq77", "scripted", "qq77.js")
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := New(Config{
		APIKey:          "test-key",
		Mode:            ModeOffline,
		EnvironmentsDir: envDir,
		RecordingsDir:   t.TempDir(),
		StaleAfter:      time.Minute,
		Logger:          quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	env := a.Make("qq77", MakeOptions{})
	if env == nil {
		t.Fatal("scripted Make returned nil")
	}
	frame := env.Step(arcengine.Action1, nil, nil)
	if frame == nil {
		t.Fatal("scripted step returned nil")
	}
	if frame.State != arcengine.StateWin || frame.LevelsCompleted != 1 {
		t.Fatalf("frame = state %s levels %d", frame.State, frame.LevelsCompleted)
	}
}

func TestScorecardLookupChecksIdentity(t *testing.T) {
	a := newOfflineArcade(t)
	cardID, err := a.CreateScorecard("", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if a.GetScorecard(cardID) == nil {
		t.Error("own scorecard not found")
	}
	if a.GetScorecard("no-such-card") != nil {
		t.Error("unknown card id resolved")
	}
	if a.CloseScorecard("no-such-card") != nil {
		t.Error("unknown card id closed")
	}
	if out := a.GetScorecard(cardID); out != nil && out.APIKey != "" {
		t.Error("api key leaked into scored view")
	}
}
