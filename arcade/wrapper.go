package arcade

import (
	"log"

	"github.com/arcprize/arcade-go/arcengine"
)

// Environment is the common surface for local and remote game sessions.
// Expected gameplay failures (network loss, invalid moves, terminal episodes)
// come back as nil frames; the logger carries the reason.
type Environment interface {
	// Reset starts or restarts an episode and returns the first frame.
	Reset() *arcengine.Frame
	// Step performs one action. Data is only consulted for pointer actions;
	// reasoning is recorded but never interpreted.
	Step(action arcengine.GameAction, data *arcengine.ActionData, reasoning any) *arcengine.Frame
	// ActionSpace lists the actions the game currently accepts.
	ActionSpace() []arcengine.GameAction
	// ObservationSpace returns the most recent frame, nil before the first
	// reset succeeds.
	ObservationSpace() *arcengine.Frame
	// Info describes the environment being played.
	Info() EnvironmentInfo
}

// envCore carries the state and side effects shared by both wrappers:
// the last frame, recording, rendering, and scorecard updates.
type envCore struct {
	info     EnvironmentInfo
	logger   *log.Logger
	cardID   string
	manager  *ScorecardManager
	renderer RenderFunc

	saveRecording bool
	recordingsDir string
	recorder      *Recorder

	guid  string
	last  *arcengine.Frame
	steps int
}

// setupRecording builds the recorder once the guid is known.
func (c *envCore) setupRecording() {
	if !c.saveRecording || c.guid == "" {
		return
	}
	rec, err := NewRecorder(c.recordingsDir, c.cardID, c.info.GameID, c.guid)
	if err != nil {
		c.logger.Printf("recorder_setup_failed game_id=%s err=%v", c.info.GameID, err)
		return
	}
	c.logger.Printf("recording_to path=%s", rec.Path())
	c.recorder = rec
}

// setLastResponse folds a new frame into the session: it becomes the
// observation, gets recorded and rendered, and updates the scorecard.
func (c *envCore) setLastResponse(frame *arcengine.Frame, reasoning any) {
	c.last = frame

	if c.recorder != nil {
		if err := c.recorder.RecordFrame(frame, reasoning); err != nil {
			c.logger.Printf("recording_failed game_id=%s err=%v", c.info.GameID, err)
		}
	}

	c.steps++
	if c.renderer != nil && len(frame.Frame) > 0 {
		c.renderer(c.steps, frame)
	}

	if c.manager != nil && frame.Guid != "" {
		c.manager.AddGame(c.cardID, frame.Guid)
		c.manager.UpdateFromFrame(frame.Guid, frame, frame.FullReset)
	}
}

// checkStep validates an action against the current episode before any side
// effect happens. A rejected step must leave the scorecard untouched.
// The returned data is what should flow to the game: pointer coordinates for
// pointer actions, nothing for everything else.
func (c *envCore) checkStep(action arcengine.GameAction, data *arcengine.ActionData) (*arcengine.ActionData, bool) {
	if c.last == nil {
		c.logger.Printf("step_rejected game_id=%s reason=not_reset", c.info.GameID)
		return nil, false
	}
	if c.last.State.Terminal() && action != arcengine.ActionReset {
		c.logger.Printf("step_rejected game_id=%s reason=episode_over state=%s", c.info.GameID, c.last.State)
		return nil, false
	}
	if !c.actionAvailable(action) {
		c.logger.Printf("step_rejected game_id=%s reason=action_unavailable action=%s", c.info.GameID, action)
		return nil, false
	}
	if !action.IsComplex() {
		// Coordinates on simple actions are silently dropped.
		return nil, true
	}
	if data == nil {
		c.logger.Printf("step_rejected game_id=%s reason=missing_coordinates action=%s", c.info.GameID, action)
		return nil, false
	}
	if !data.InBounds() {
		c.logger.Printf("step_rejected game_id=%s reason=out_of_bounds action=%s x=%d y=%d", c.info.GameID, action, data.X, data.Y)
		return nil, false
	}
	return data, true
}

func (c *envCore) actionAvailable(action arcengine.GameAction) bool {
	if c.last == nil {
		return false
	}
	for _, id := range c.last.AvailableActions {
		if id == int(action) {
			return true
		}
	}
	return false
}

// ActionSpace converts the last frame's available action ids.
func (c *envCore) ActionSpace() []arcengine.GameAction {
	if c.last == nil {
		return nil
	}
	actions := make([]arcengine.GameAction, 0, len(c.last.AvailableActions))
	for _, id := range c.last.AvailableActions {
		action, err := arcengine.ActionFromID(id)
		if err != nil {
			continue
		}
		actions = append(actions, action)
	}
	return actions
}

func (c *envCore) ObservationSpace() *arcengine.Frame { return c.last }

func (c *envCore) Info() EnvironmentInfo { return c.info }
