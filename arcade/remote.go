package arcade

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/arcprize/arcade-go/arcengine"
)

// RemoteEnvironment plays a game hosted by the arcade API. Every reset and
// step is one POST to /api/cmd/{action}; the server owns the game state and
// hands back full frames.
type RemoteEnvironment struct {
	envCore
	baseURL string
	apiKey  string
	client  *http.Client
}

// RemoteOptions configures a remote session. Client should come from the
// facade so all sessions share one cookie jar; a nil Client gets a private
// one with the default timeout.
type RemoteOptions struct {
	BaseURL       string
	APIKey        string
	Client        *http.Client
	CardID        string
	SaveRecording bool
	RecordingsDir string
	Manager       *ScorecardManager
	Renderer      RenderFunc
	Logger        *log.Logger
}

// NewRemoteEnvironment opens a remote session and performs the initial
// reset. A reset failure is an error here: a session that never produced a
// frame is useless.
func NewRemoteEnvironment(info EnvironmentInfo, opts RemoteOptions) (*RemoteEnvironment, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	env := &RemoteEnvironment{
		envCore: envCore{
			info:          info,
			logger:        logger,
			cardID:        opts.CardID,
			manager:       opts.Manager,
			renderer:      opts.Renderer,
			saveRecording: opts.SaveRecording,
			recordingsDir: opts.RecordingsDir,
		},
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		client:  client,
	}

	if frame := env.Reset(); frame == nil {
		return nil, fmt.Errorf("initial reset failed for %s", info.GameID)
	}
	return env, nil
}

type commandPayload struct {
	GameID    string `json:"game_id"`
	CardID    string `json:"card_id,omitempty"`
	Guid      string `json:"guid,omitempty"`
	X         *int   `json:"x,omitempty"`
	Y         *int   `json:"y,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Reset asks the server to start or restart the episode. The first reset
// binds the session to the guid the server assigns.
func (e *RemoteEnvironment) Reset() *arcengine.Frame {
	payload := commandPayload{
		GameID: e.info.GameID,
		CardID: e.cardID,
		Guid:   e.guid,
	}
	frame := e.postCommand(arcengine.ActionReset, payload)
	if frame == nil {
		return nil
	}

	if e.guid == "" && frame.Guid != "" {
		e.guid = frame.Guid
		e.setupRecording()
	}
	e.setLastResponse(frame, nil)
	e.logger.Printf("reset_ok game_id=%s guid=%s card_id=%s", e.info.GameID, e.guid, e.cardID)
	return frame
}

// Step validates the action locally, then forwards it to the server. Local
// rejection keeps invalid moves off the wire and out of the scorecard.
func (e *RemoteEnvironment) Step(action arcengine.GameAction, data *arcengine.ActionData, reasoning any) *arcengine.Frame {
	if e.guid == "" {
		e.logger.Printf("step_rejected game_id=%s reason=not_reset", e.info.GameID)
		return nil
	}
	stepData, ok := e.checkStep(action, data)
	if !ok {
		return nil
	}

	payload := commandPayload{
		GameID: e.info.GameID,
		Guid:   e.guid,
	}
	if stepData != nil {
		payload.X = &stepData.X
		payload.Y = &stepData.Y
	}
	if reasoning != nil {
		encoded, err := json.Marshal(reasoning)
		if err != nil {
			e.logger.Printf("step_rejected game_id=%s reason=bad_reasoning err=%v", e.info.GameID, err)
			return nil
		}
		payload.Reasoning = string(encoded)
	}

	frame := e.postCommand(action, payload)
	if frame == nil {
		return nil
	}
	e.setLastResponse(frame, reasoning)
	return frame
}

func (e *RemoteEnvironment) postCommand(action arcengine.GameAction, payload commandPayload) *arcengine.Frame {
	body, err := json.Marshal(payload)
	if err != nil {
		e.logger.Printf("command_failed game_id=%s action=%s err=%v", e.info.GameID, action, err)
		return nil
	}

	url := e.baseURL + "/api/cmd/" + action.String()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		e.logger.Printf("command_failed game_id=%s action=%s err=%v", e.info.GameID, action, err)
		return nil
	}
	req.Header.Set("X-Api-Key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Printf("command_failed game_id=%s action=%s err=%v", e.info.GameID, action, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		e.logger.Printf("command_failed game_id=%s action=%s status=%d body=%q", e.info.GameID, action, resp.StatusCode, snippet)
		return nil
	}

	var frame arcengine.Frame
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		e.logger.Printf("command_failed game_id=%s action=%s err=decode: %v", e.info.GameID, action, err)
		return nil
	}
	return &frame
}
