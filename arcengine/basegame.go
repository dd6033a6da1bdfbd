package arcengine

import (
	"fmt"
	"math/rand"
)

// Hooks are the game-specific callbacks BaseGame drives. Step runs once per
// gameplay action with the action available via Action(); OnSetLevel runs
// whenever a level comes into play (reset, level advance).
type Hooks struct {
	Step       func()
	OnSetLevel func(*Level)
}

// BaseGame carries the level, camera and episode bookkeeping shared by all
// games. Concrete games embed it and attach their logic through SetHooks.
type BaseGame struct {
	gameID    string
	levels    []*Level
	camera    *Camera
	available []int
	hooks     Hooks
	rng       *rand.Rand

	levelIndex      int
	levelsCompleted int
	state           GameState
	action          ActionInput
	frames          [][][]int
}

// NewBaseGame builds the shared core. available lists the gameplay action
// ids the game accepts (reset is always accepted).
func NewBaseGame(gameID string, levels []*Level, camera *Camera, available []int, seed int64) *BaseGame {
	return &BaseGame{
		gameID:    gameID,
		levels:    levels,
		camera:    camera,
		available: available,
		rng:       rand.New(rand.NewSource(seed)),
		state:     StateNotStarted,
	}
}

// SetHooks attaches the game-specific logic.
func (g *BaseGame) SetHooks(h Hooks) { g.hooks = h }

// GameID returns the game's identifier.
func (g *BaseGame) GameID() string { return g.gameID }

// Action returns the action currently being processed by Step.
func (g *BaseGame) Action() ActionInput { return g.action }

// Camera returns the game camera.
func (g *BaseGame) Camera() *Camera { return g.camera }

// CurrentLevel returns the level in play.
func (g *BaseGame) CurrentLevel() *Level { return g.levels[g.levelIndex] }

// LevelIndex returns the zero-based index of the level in play.
func (g *BaseGame) LevelIndex() int { return g.levelIndex }

// State returns the current episode state.
func (g *BaseGame) State() GameState { return g.state }

// Rand returns the per-session random source.
func (g *BaseGame) Rand() *rand.Rand { return g.rng }

// NextLevel marks the current level completed and advances. Completing the
// last level wins the episode.
func (g *BaseGame) NextLevel() {
	g.levelsCompleted++
	if g.levelIndex >= len(g.levels)-1 {
		g.state = StateWin
		return
	}
	g.levelIndex++
	g.setLevel()
}

// Lose ends the episode in GAME_OVER.
func (g *BaseGame) Lose() { g.state = StateGameOver }

// CompleteAction renders the current level into the frame list. Games call
// it at the end of Step; calling it more than once emits animation layers.
func (g *BaseGame) CompleteAction() {
	g.frames = append(g.frames, g.camera.Render(g.CurrentLevel()))
}

func (g *BaseGame) setLevel() {
	level := g.CurrentLevel()
	level.ClearSprites()
	g.camera.SetLevel(level)
	if g.hooks.OnSetLevel != nil {
		g.hooks.OnSetLevel(level)
	}
}

func (g *BaseGame) allowed(a GameAction) bool {
	for _, id := range g.available {
		if id == int(a) {
			return true
		}
	}
	return false
}

// PerformAction applies one action. Reset starts a new play when the game is
// fresh or finished, and restarts the current level otherwise; gameplay
// actions run the Step hook. See Game for the error contract.
func (g *BaseGame) PerformAction(in ActionInput) (*Frame, error) {
	if in.ID == ActionReset {
		full := g.state == StateNotStarted || g.state.Terminal()
		if full {
			g.levelIndex = 0
			g.levelsCompleted = 0
		}
		g.state = StateInProgress
		g.action = in
		g.setLevel()
		g.frames = [][][]int{g.camera.Render(g.CurrentLevel())}
		return g.buildFrame(in, full), nil
	}

	switch {
	case g.state == StateNotStarted:
		return nil, ErrNotStarted
	case g.state.Terminal():
		return nil, ErrEpisodeOver
	case !g.allowed(in.ID):
		return nil, fmt.Errorf("%w: %s", ErrActionBlocked, in.ID)
	}

	g.action = in
	g.frames = nil
	if g.hooks.Step != nil {
		g.hooks.Step()
	}
	if len(g.frames) == 0 {
		g.CompleteAction()
	}
	return g.buildFrame(in, false), nil
}

func (g *BaseGame) buildFrame(in ActionInput, fullReset bool) *Frame {
	actions := make([]int, 0, len(g.available)+1)
	actions = append(actions, int(ActionReset))
	actions = append(actions, g.available...)
	return &Frame{
		GameID:           g.gameID,
		Frame:            g.frames,
		State:            g.state,
		LevelsCompleted:  g.levelsCompleted,
		WinLevels:        len(g.levels),
		ActionInput:      &in,
		AvailableActions: actions,
		FullReset:        fullReset,
	}
}
