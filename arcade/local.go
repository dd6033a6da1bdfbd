package arcade

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/arcprize/arcade-go/arcengine"
)

// ErrGameNotFound reports that no game implementation could be resolved for
// an environment, neither a script in its local directory nor a registered
// compiled game.
var ErrGameNotFound = errors.New("arcade: game implementation not found")

// LocalEnvironment runs a game in-process. The game comes either from a
// script file next to the environment's metadata.json or from the compiled
// game registry.
type LocalEnvironment struct {
	envCore
	game arcengine.Game
}

// LocalOptions configures a local session.
type LocalOptions struct {
	Seed          int64
	CardID        string
	SaveRecording bool
	RecordingsDir string
	Manager       *ScorecardManager
	Renderer      RenderFunc
	Logger        *log.Logger
}

// NewLocalEnvironment loads the game for info and performs the initial
// reset, so the environment is playable on return.
func NewLocalEnvironment(info EnvironmentInfo, opts LocalOptions) (*LocalEnvironment, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}

	game, err := loadGame(info, opts.Seed)
	if err != nil {
		return nil, err
	}

	env := &LocalEnvironment{
		envCore: envCore{
			info:          info,
			logger:        logger,
			cardID:        opts.CardID,
			manager:       opts.Manager,
			renderer:      opts.Renderer,
			saveRecording: opts.SaveRecording,
			recordingsDir: opts.RecordingsDir,
			// Local sessions mint their own guid; there is no server to
			// assign one.
			guid: uuid.NewString(),
		},
		game: game,
	}
	env.setupRecording()

	if frame := env.Reset(); frame == nil {
		return nil, fmt.Errorf("initial reset failed for %s", info.GameID)
	}
	return env, nil
}

// loadGame resolves the playable game for an environment. A script file in
// the environment directory wins over a compiled registration, matching how
// downloaded games override built-ins.
func loadGame(info EnvironmentInfo, seed int64) (arcengine.Game, error) {
	className := info.ClassName
	if className == "" {
		className = info.BaseID()
	}

	if info.LocalDir != "" {
		candidates := []string{
			filepath.Join(info.LocalDir, strings.ToLower(className)+".js"),
			filepath.Join(info.LocalDir, className+".js"),
		}
		for _, path := range candidates {
			source, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, fmt.Errorf("read game source %s: %w", path, err)
			}
			return arcengine.NewScriptGame(info.GameID, string(source), seed)
		}
	}

	for _, name := range []string{strings.ToLower(className), info.BaseID()} {
		if game, ok := arcengine.New(name, seed); ok {
			return game, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrGameNotFound, info.GameID)
}

// Reset restarts the episode and returns the first frame.
func (e *LocalEnvironment) Reset() *arcengine.Frame {
	frame, err := e.game.PerformAction(arcengine.ActionInput{ID: arcengine.ActionReset})
	if err != nil {
		e.logger.Printf("reset_failed game_id=%s err=%v", e.info.GameID, err)
		return nil
	}
	e.stamp(frame)
	e.setLastResponse(frame, nil)
	return frame
}

// Step performs one action against the in-process game.
func (e *LocalEnvironment) Step(action arcengine.GameAction, data *arcengine.ActionData, reasoning any) *arcengine.Frame {
	stepData, ok := e.checkStep(action, data)
	if !ok {
		return nil
	}

	frame, err := e.game.PerformAction(arcengine.ActionInput{ID: action, Data: stepData, Reasoning: reasoning})
	if err != nil {
		e.logger.Printf("step_failed game_id=%s action=%s err=%v", e.info.GameID, action, err)
		return nil
	}
	e.stamp(frame)
	e.setLastResponse(frame, reasoning)
	return frame
}

// stamp attaches the session identity the engine does not know about.
func (e *LocalEnvironment) stamp(frame *arcengine.Frame) {
	frame.Guid = e.guid
	frame.GameID = e.info.GameID
}
