package arcade

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/arcprize/arcade-go/arcengine"
)

func resetFrame(gameID, guid string, full bool) *arcengine.Frame {
	return &arcengine.Frame{
		GameID:      gameID,
		Guid:        guid,
		State:       arcengine.StateInProgress,
		ActionInput: &arcengine.ActionInput{ID: arcengine.ActionReset},
		FullReset:   full,
	}
}

func actionFrame(gameID, guid string, action arcengine.GameAction, state arcengine.GameState, levels int) *arcengine.Frame {
	return &arcengine.Frame{
		GameID:          gameID,
		Guid:            guid,
		State:           state,
		LevelsCompleted: levels,
		ActionInput:     &arcengine.ActionInput{ID: action},
	}
}

func TestCardTracksPlays(t *testing.T) {
	card := &Card{GameID: "ls20"}
	if card.Started() {
		t.Fatal("fresh card reports started")
	}

	card.IncPlay("g1")
	card.IncAction("g1")
	card.IncAction("g1")
	card.SetLevelsCompleted("g1", 1)

	if card.TotalPlays != 1 || card.Actions[0] != 2 {
		t.Fatalf("plays=%d actions=%v", card.TotalPlays, card.Actions)
	}
	if len(card.ActionsByLevel[0]) != 1 || card.ActionsByLevel[0][0] != (LevelMark{Level: 1, Actions: 2}) {
		t.Fatalf("ActionsByLevel = %v", card.ActionsByLevel[0])
	}

	// Unchanged level count must not append another mark.
	card.SetLevelsCompleted("g1", 1)
	if len(card.ActionsByLevel[0]) != 1 {
		t.Fatalf("duplicate mark appended: %v", card.ActionsByLevel[0])
	}

	// A soft reset costs an action.
	card.IncReset("g1")
	if card.Resets[0] != 1 || card.Actions[0] != 3 {
		t.Fatalf("resets=%v actions=%v", card.Resets, card.Actions)
	}

	card.IncPlay("g2")
	card.SetState("g2", arcengine.StateWin)
	card.SetLevelsCompleted("g2", 3)

	if card.State() != arcengine.StateWin {
		t.Errorf("State = %s", card.State())
	}
	if card.MostLevelsCompleted() != 3 {
		t.Errorf("MostLevelsCompleted = %d", card.MostLevelsCompleted())
	}
	if card.TotalActions() != 3 {
		t.Errorf("TotalActions = %d", card.TotalActions())
	}
}

func TestLevelMarkWireShape(t *testing.T) {
	raw, err := json.Marshal(LevelMark{Level: 2, Actions: 9})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "[2,9]" {
		t.Fatalf("marshal = %s, want [2,9]", raw)
	}
	var mark LevelMark
	if err := json.Unmarshal([]byte("[3,14]"), &mark); err != nil {
		t.Fatal(err)
	}
	if mark.Level != 3 || mark.Actions != 14 {
		t.Fatalf("unmarshal = %+v", mark)
	}
}

func TestManagerRoutesFramesByGuid(t *testing.T) {
	m := NewScorecardManager(0)
	cardID := m.New("", nil, "key", nil)
	m.AddGame(cardID, "g1")

	state := m.UpdateFromFrame("g1", resetFrame("ls20", "g1", true), true)
	if state != arcengine.StateInProgress {
		t.Fatalf("state after reset = %s", state)
	}
	m.UpdateFromFrame("g1", actionFrame("ls20", "g1", arcengine.Action3, arcengine.StateInProgress, 0), false)
	state = m.UpdateFromFrame("g1", actionFrame("ls20", "g1", arcengine.Action3, arcengine.StateWin, 1), false)
	if state != arcengine.StateWin {
		t.Fatalf("state after win = %s", state)
	}

	sc := m.Get(cardID, "key")
	if sc == nil {
		t.Fatal("Get returned nil")
	}
	card := sc.Cards["ls20"]
	if card == nil || card.TotalPlays != 1 || card.Actions[0] != 2 {
		t.Fatalf("card = %+v", card)
	}
	if sc.Won() != 1 || sc.Played() != 1 {
		t.Errorf("won=%d played=%d", sc.Won(), sc.Played())
	}

	// Frames for unbound guids fall on the floor.
	if got := m.UpdateFromFrame("stranger", resetFrame("ls20", "stranger", true), true); got != arcengine.StateNotPlayed {
		t.Errorf("unbound guid state = %s", got)
	}
}

func TestManagerKeyChecks(t *testing.T) {
	m := NewScorecardManager(0)
	cardID := m.New("", nil, "key", nil)

	if m.Get(cardID, "other") != nil {
		t.Error("Get with wrong key should be nil")
	}
	if sc, _ := m.Close(cardID, "other"); sc != nil {
		t.Error("Close with wrong key should be nil")
	}
	// An empty key is the sweeper's master key.
	if sc, _ := m.Close(cardID, ""); sc == nil {
		t.Error("Close with sweeper key failed")
	}
}

func TestCloseUnbindsGuids(t *testing.T) {
	m := NewScorecardManager(0)
	cardID := m.New("", nil, "key", nil)
	m.AddGame(cardID, "g1")
	m.UpdateFromFrame("g1", resetFrame("ls20", "g1", true), true)

	sc, guids := m.Close(cardID, "key")
	if sc == nil || len(guids) != 1 || guids[0] != "g1" {
		t.Fatalf("sc=%v guids=%v", sc, guids)
	}
	if m.Get(cardID, "key") != nil {
		t.Error("closed card still retrievable")
	}
	if got := m.UpdateFromFrame("g1", actionFrame("ls20", "g1", arcengine.Action3, arcengine.StateInProgress, 0), false); got != arcengine.StateNotPlayed {
		t.Errorf("update after close = %s", got)
	}
}

func TestGetReturnsDetachedSnapshot(t *testing.T) {
	m := NewScorecardManager(0)
	cardID := m.New("", nil, "key", nil)
	m.AddGame(cardID, "g1")
	m.UpdateFromFrame("g1", resetFrame("ls20", "g1", true), true)

	snap := m.Get(cardID, "key")
	snap.Cards["ls20"].Actions[0] = 99
	snap.Cards["rogue"] = &Card{GameID: "rogue"}

	m.UpdateFromFrame("g1", actionFrame("ls20", "g1", arcengine.Action3, arcengine.StateInProgress, 0), false)

	live := m.Get(cardID, "key")
	if live.Cards["ls20"].Actions[0] != 1 {
		t.Errorf("live actions = %d, want 1", live.Cards["ls20"].Actions[0])
	}
	if _, ok := live.Cards["rogue"]; ok {
		t.Error("snapshot mutation leaked into the manager")
	}
	if snap.Cards["ls20"].Actions[0] != 99 {
		t.Errorf("snapshot actions = %d, later plays must not touch it", snap.Cards["ls20"].Actions[0])
	}
}

func TestStaleCards(t *testing.T) {
	m := NewScorecardManager(time.Minute)
	fresh := m.New("", nil, "key", nil)
	idle := m.New("", nil, "key", nil)
	m.scorecards[idle].LastUpdate = time.Now().UTC().Add(-2 * time.Minute)

	stale := m.StaleCards()
	if len(stale) != 1 || stale[0] != idle {
		t.Fatalf("stale = %v, want [%s]", stale, idle)
	}
	_ = fresh
}
