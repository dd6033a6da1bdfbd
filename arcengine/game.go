package arcengine

import "sort"

// Game is a playable environment. PerformAction drives the entire life
// cycle: an ActionReset input starts or restarts an episode, gameplay
// actions advance it. Every call produces a fresh Frame.
type Game interface {
	// GameID returns the game's identifier.
	GameID() string

	// PerformAction applies one action and returns the resulting frame.
	// Gameplay actions before the first reset or after a terminal state
	// return ErrNotStarted / ErrEpisodeOver.
	PerformAction(in ActionInput) (*Frame, error)
}

// Factory builds a fresh game instance for one session.
type Factory func(seed int64) Game

// registry holds all compiled-in games, keyed by base game id.
var registry = make(map[string]Factory)

// Register adds a game factory to the registry.
func Register(name string, f Factory) {
	registry[name] = f
}

// New instantiates a registered game by name.
func New(name string, seed int64) (Game, bool) {
	f, ok := registry[name]
	if !ok {
		return nil, false
	}
	return f(seed), true
}

// List returns the sorted names of all registered games.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
