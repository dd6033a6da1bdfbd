package arcade

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/arcprize/arcade-go/arcengine"
)

// MaxOpaqueBytes caps the opaque payload accepted when opening a scorecard.
const MaxOpaqueBytes = 16 * 1024

// API error codes returned by the server.
const (
	apiValidationError     = "VALIDATION_ERROR"
	apiServerError         = "SERVER_ERROR"
	apiGameNotStartedError = "GAME_NOT_STARTED_ERROR"
)

// ServerOptions tunes the REST server.
type ServerOptions struct {
	// SaveAllRecordings records every session served.
	SaveAllRecordings bool
	// Renderer draws every frame served, for spectating.
	Renderer RenderFunc
	// AddCookie decorates successful responses, keyed by the caller's API
	// key. Used by deployments that pin sessions.
	AddCookie func(w http.ResponseWriter, apiKey string)
	// OnScorecardClose runs with the final scores of every scorecard the
	// server closes, explicit or stale.
	OnScorecardClose func(*EnvironmentScorecard)
	// CleanupInterval is how often stale scorecards are swept. Defaults
	// to one minute.
	CleanupInterval time.Duration
}

// Server exposes an Arcade over the same REST API the hosted service
// speaks, so a remote client pointed at it cannot tell the difference.
type Server struct {
	arcade *Arcade
	opts   ServerOptions

	mu    sync.Mutex
	cache map[string]*servedGame
}

// servedGame is one cached session. Environments are not safe for concurrent
// drivers, so every command on a session runs under its mutex.
type servedGame struct {
	mu     sync.Mutex
	env    Environment
	apiKey string
}

// NewServer wraps an Arcade in a REST server.
func NewServer(a *Arcade, opts ServerOptions) *Server {
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}
	return &Server{
		arcade: a,
		opts:   opts,
		cache:  make(map[string]*servedGame),
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/healthcheck", s.handleHealthcheck)
	r.Get("/api/games", s.handleListGames)
	r.Get("/api/games/anonkey", s.handleAnonKey)
	r.Get("/api/games/{gameID}", s.handleGameInfo)
	r.Get("/api/games/{gameID}/source", s.handleGameSource)

	r.Post("/api/scorecard/open", s.handleOpenScorecard)
	r.Post("/api/scorecard/close", s.handleCloseScorecard)
	r.Get("/api/scorecard/{cardID}", s.handleGetScorecard)
	r.Get("/api/scorecard/{cardID}/{gameID}", s.handleGetScorecard)

	r.Post("/api/cmd/{action}", s.handleCommand)

	return r
}

// ListenAndServe serves the REST API from this Arcade, blocking until the
// listener fails.
func (a *Arcade) ListenAndServe(addr string, opts ServerOptions) error {
	if opts.OnScorecardClose == nil {
		opts.OnScorecardClose = a.onScorecardClose
	}
	return NewServer(a, opts).ListenAndServe(addr)
}

// ListenAndServe starts the stale-scorecard sweeper and serves until the
// listener fails.
func (s *Server) ListenAndServe(addr string) error {
	go s.cleanupLoop()

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	s.arcade.logger.Printf("server_listening addr=%s", addr)
	return srv.ListenAndServe()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func (s *Server) writeWithCookie(w http.ResponseWriter, apiKey string, data any) {
	if s.opts.AddCookie != nil && apiKey != "" {
		s.opts.AddCookie(w, apiKey)
	}
	s.writeJSON(w, http.StatusOK, data)
}

// requestKey reads the caller's API key. Header-less local callers share a
// fixed key so their scorecards stay reachable.
func requestKey(r *http.Request) string {
	if key := r.Header.Get("X-Api-Key"); key != "" {
		return key
	}
	return "1234"
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("okay"))
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.arcade.GetEnvironments())
}

// handleAnonKey mints a throwaway API key for unregistered callers.
func (s *Server) handleAnonKey(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"api_key": "anon-" + uuid.NewString()})
}

func (s *Server) findGame(gameID string) *EnvironmentInfo {
	for _, env := range s.arcade.GetEnvironments() {
		if env.GameID == gameID || strings.HasPrefix(env.GameID, gameID+"-") {
			return &env
		}
	}
	return nil
}

func (s *Server) handleGameInfo(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	env := s.findGame(gameID)
	if env == nil {
		s.writeError(w, http.StatusNotFound, apiServerError, "game "+gameID+" not found")
		return
	}
	s.writeJSON(w, http.StatusOK, env)
}

// handleGameSource serves the script of a locally held game, so another
// instance can download and run it.
func (s *Server) handleGameSource(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	env := s.findGame(gameID)
	if env == nil || env.LocalDir == "" {
		s.writeError(w, http.StatusNotFound, apiServerError, "source for game "+gameID+" not found")
		return
	}
	className := env.ClassName
	if className == "" {
		className = env.BaseID()
	}
	source, err := os.ReadFile(filepath.Join(env.LocalDir, strings.ToLower(className)+".js"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, apiServerError, "source for game "+gameID+" not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write(source)
}

func (s *Server) handleOpenScorecard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SourceURL string          `json:"source_url"`
		Tags      []string        `json:"tags"`
		Opaque    json.RawMessage `json:"opaque"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, apiValidationError, "request body must be a JSON object")
		return
	}

	if len(body.Opaque) > MaxOpaqueBytes {
		s.writeError(w, http.StatusBadRequest, apiValidationError, "opaque exceeds 16 KiB limit")
		return
	}
	var opaque any
	if len(body.Opaque) > 0 {
		if err := json.Unmarshal(body.Opaque, &opaque); err != nil {
			s.writeError(w, http.StatusBadRequest, apiValidationError, "opaque must be valid JSON")
			return
		}
	}

	// Every scorecard is tagged with who drove it.
	tags := body.Tags
	if !containsAny(tags, "human", "agent") {
		tags = append(tags, "agent")
	}

	apiKey := requestKey(r)
	cardID := s.arcade.Scorecards().New(body.SourceURL, tags, apiKey, opaque)
	s.writeWithCookie(w, apiKey, map[string]string{"card_id": cardID})
}

func containsAny(values []string, wanted ...string) bool {
	for _, v := range values {
		for _, want := range wanted {
			if v == want {
				return true
			}
		}
	}
	return false
}

func (s *Server) handleCloseScorecard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CardID string `json:"card_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.CardID == "" {
		s.writeError(w, http.StatusBadRequest, apiValidationError, "missing `card_id` in action data")
		return
	}

	apiKey := requestKey(r)
	sc, guids := s.arcade.Scorecards().Close(body.CardID, apiKey)
	if sc == nil {
		s.writeError(w, http.StatusNotFound, apiValidationError, "scorecard "+body.CardID+" not found")
		return
	}

	out := ComputeScorecard(sc, s.arcade.GetEnvironments())
	if s.opts.OnScorecardClose != nil {
		s.opts.OnScorecardClose(out)
	}
	s.evictGames(guids)
	out.APIKey = ""
	s.writeWithCookie(w, apiKey, out)
}

func (s *Server) handleGetScorecard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")
	gameID := chi.URLParam(r, "gameID")
	apiKey := requestKey(r)

	sc := s.arcade.Scorecards().Get(cardID, apiKey)
	if sc == nil {
		s.writeError(w, http.StatusNotFound, apiServerError, "card_id `"+cardID+"` not found")
		return
	}

	out := ComputeScorecard(sc, s.arcade.GetEnvironments())
	out.APIKey = ""
	if gameID != "" {
		run, ok := out.Get(gameID)
		if !ok {
			s.writeWithCookie(w, apiKey, map[string]any{})
			return
		}
		s.writeWithCookie(w, apiKey, run)
		return
	}
	s.writeWithCookie(w, apiKey, out)
}

type commandRequest struct {
	GameID    string          `json:"game_id"`
	CardID    string          `json:"card_id"`
	Guid      string          `json:"guid"`
	X         *int            `json:"x"`
	Y         *int            `json:"y"`
	Reasoning json.RawMessage `json:"reasoning"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	action, err := arcengine.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, apiValidationError, "unknown command "+chi.URLParam(r, "action"))
		return
	}

	var body commandRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.GameID == "" {
		s.writeError(w, http.StatusBadRequest, apiValidationError, "missing `game_id` in action data")
		return
	}
	if action.IsComplex() && (body.X == nil || body.Y == nil) {
		s.writeError(w, http.StatusBadRequest, apiValidationError, action.String()+" requires `x` and `y`")
		return
	}
	if body.Guid == "" && action != arcengine.ActionReset {
		s.writeError(w, http.StatusBadRequest, apiValidationError, "missing `guid` for any action other than RESET")
		return
	}

	apiKey := requestKey(r)
	served, fresh := s.gameFor(&body, apiKey)
	if served == nil {
		s.writeError(w, http.StatusBadRequest, apiServerError, "game "+body.GameID+" not found")
		return
	}
	if served.apiKey != apiKey {
		s.writeError(w, http.StatusBadRequest, apiValidationError,
			"game "+body.GameID+" with guid "+body.Guid+" does not match API key")
		return
	}

	// A freshly made environment has already been reset; replaying the
	// incoming action would double-count it.
	var frame *arcengine.Frame
	served.mu.Lock()
	if fresh {
		frame = served.env.ObservationSpace()
	} else if action == arcengine.ActionReset {
		frame = served.env.Reset()
	} else {
		var data *arcengine.ActionData
		if body.X != nil && body.Y != nil {
			data = &arcengine.ActionData{X: *body.X, Y: *body.Y}
		}
		var reasoning any
		if len(body.Reasoning) > 0 {
			reasoning = body.Reasoning
		}
		frame = served.env.Step(action, data, reasoning)
	}
	served.mu.Unlock()

	if frame.IsEmpty() {
		s.writeError(w, http.StatusBadRequest, apiGameNotStartedError,
			"game "+body.GameID+" is available but has not been started, send RESET to begin playing")
		return
	}

	s.mu.Lock()
	s.cache[frame.Guid] = served
	s.mu.Unlock()

	s.writeWithCookie(w, apiKey, frame)
}

// gameFor resolves the session a command addresses: a cached one by guid, or
// a new one made on the caller's scorecard. fresh is true for new sessions.
func (s *Server) gameFor(body *commandRequest, apiKey string) (served *servedGame, fresh bool) {
	s.mu.Lock()
	if body.Guid != "" {
		if cached, ok := s.cache[body.Guid]; ok && cached.env.Info().GameID == body.GameID {
			s.mu.Unlock()
			return cached, false
		}
	}
	s.mu.Unlock()

	if body.CardID == "" {
		return nil, false
	}
	env := s.arcade.Make(body.GameID, MakeOptions{
		CardID:        body.CardID,
		SaveRecording: s.opts.SaveAllRecordings,
		Renderer:      s.opts.Renderer,
	})
	if env == nil {
		return nil, false
	}
	return &servedGame{env: env, apiKey: apiKey}, true
}

func (s *Server) evictGames(guids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, guid := range guids {
		delete(s.cache, guid)
	}
}

// cleanupLoop wakes periodically and closes scorecards idle past the stale
// window, firing the close callback and dropping their cached sessions.
func (s *Server) cleanupLoop() {
	ticker := time.NewTicker(s.opts.CleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		for _, cardID := range s.arcade.Scorecards().StaleCards() {
			s.arcade.logger.Printf("scorecard_autoclose card_id=%s", cardID)
			sc, guids := s.arcade.Scorecards().Close(cardID, "")
			if sc == nil {
				continue
			}
			if s.opts.OnScorecardClose != nil {
				s.opts.OnScorecardClose(ComputeScorecard(sc, s.arcade.GetEnvironments()))
			}
			s.evictGames(guids)
		}
	}
}
