// Package arcade is a client for ARC-AGI-3 grid games. It discovers
// environments locally and through the arcade API, runs them in-process or
// remotely behind a single Environment interface, and tracks play results
// on scorecards.
package arcade

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Arcade discovers environments and hands out playable sessions. One Arcade
// owns one scorecard manager, one HTTP session (cookie jar included), and
// the default scorecard used when callers don't manage their own.
type Arcade struct {
	cfg     Config
	logger  *log.Logger
	client  *http.Client
	manager *ScorecardManager
	archive *Archive

	mu            sync.Mutex
	environments  []EnvironmentInfo
	defaultCardID string

	// onScorecardClose runs after a scorecard closes, with the final
	// scores. Set via SetOnScorecardClose, typically by the server.
	onScorecardClose func(*EnvironmentScorecard)
}

// New builds an Arcade from cfg, resolving unset fields from the
// environment. Local environments are scanned immediately; unless the mode
// is offline, the remote listing is merged in and an anonymous API key is
// provisioned when none is configured.
func New(cfg Config) (*Arcade, error) {
	resolved, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	a := &Arcade{
		cfg:     resolved,
		logger:  resolved.Logger,
		client:  &http.Client{Jar: jar, Timeout: resolved.HTTPTimeout},
		manager: NewScorecardManager(resolved.StaleAfter),
	}

	if resolved.ArchivePath != "" {
		archive, err := OpenArchive(resolved.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("open scorecard archive: %w", err)
		}
		a.archive = archive
	}

	a.scanEnvironments()

	if resolved.Mode != ModeOffline {
		if a.cfg.APIKey == "" {
			a.cfg.APIKey = a.anonymousKey()
		}
		a.fetchFromAPI()
	}
	return a, nil
}

// Config returns the resolved configuration.
func (a *Arcade) Config() Config { return a.cfg }

// Scorecards exposes the scorecard manager, mainly for the server.
func (a *Arcade) Scorecards() *ScorecardManager { return a.manager }

// SetOnScorecardClose registers a callback invoked with the final scores of
// every scorecard closed through this Arcade.
func (a *Arcade) SetOnScorecardClose(fn func(*EnvironmentScorecard)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onScorecardClose = fn
}

// Close releases held resources. Open scorecards stay open.
func (a *Arcade) Close() error {
	if a.archive != nil {
		return a.archive.Close()
	}
	return nil
}

// GetEnvironments lists every known environment, local and remote.
func (a *Arcade) GetEnvironments() []EnvironmentInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]EnvironmentInfo, len(a.environments))
	copy(out, a.environments)
	return out
}

// scanEnvironments walks the environments dir for metadata.json files.
// Invalid files are logged and skipped.
func (a *Arcade) scanEnvironments() {
	root := a.cfg.EnvironmentsDir
	if root == "" {
		return
	}
	if stat, err := os.Stat(root); err != nil || !stat.IsDir() {
		return
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != "metadata.json" {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			a.logger.Printf("scan_skip path=%s err=%v", path, err)
			return nil
		}
		var info EnvironmentInfo
		if err := json.Unmarshal(raw, &info); err != nil || info.GameID == "" {
			a.logger.Printf("scan_skip path=%s err=invalid_metadata", path)
			return nil
		}
		info.LocalDir = filepath.Dir(path)
		a.environments = append(a.environments, info)
		return nil
	})
	if err != nil {
		a.logger.Printf("scan_failed dir=%s err=%v", root, err)
	}
}

// anonymousKey requests a throwaway API key so unregistered users can still
// play. Failures just leave the key empty.
func (a *Arcade) anonymousKey() string {
	var payload struct {
		APIKey string `json:"api_key"`
	}
	if err := a.getJSON("/api/games/anonkey", "", &payload); err != nil {
		a.logger.Printf("anonkey_failed err=%v", err)
		return ""
	}
	if payload.APIKey != "" {
		a.logger.Printf("anonkey_ok key=%s register_at=%s", payload.APIKey, a.cfg.BaseURL)
	}
	return payload.APIKey
}

// fetchFromAPI merges the remote game listing into the scanned set. Local
// entries win on duplicate game ids. Network failures are logged and leave
// the local set untouched.
func (a *Arcade) fetchFromAPI() {
	if a.cfg.APIKey == "" {
		return
	}
	var listed []EnvironmentInfo
	if err := a.getJSON("/api/games", a.cfg.APIKey, &listed); err != nil {
		a.logger.Printf("fetch_games_failed url=%s err=%v", a.cfg.BaseURL+"/api/games", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	known := make(map[string]bool, len(a.environments))
	for _, env := range a.environments {
		known[env.GameID] = true
	}
	added := 0
	for _, env := range listed {
		if env.GameID == "" || known[env.GameID] {
			continue
		}
		known[env.GameID] = true
		a.environments = append(a.environments, env)
		added++
	}
	if added > 0 {
		a.logger.Printf("fetch_games_ok added=%d", added)
	}
}

func (a *Arcade) getJSON(path, apiKey string, out any) error {
	req, err := http.NewRequest(http.MethodGet, a.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, snippet)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *Arcade) postJSON(path, apiKey string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, a.cfg.BaseURL+path, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateScorecard opens a fresh scorecard and returns its id. In online
// mode the scorecard lives on the server; otherwise it lives in the local
// manager.
func (a *Arcade) CreateScorecard(sourceURL string, tags []string, opaque any) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.createScorecardLocked(sourceURL, tags, opaque)
}

// OpenScorecard is an alias for CreateScorecard.
func (a *Arcade) OpenScorecard(sourceURL string, tags []string, opaque any) (string, error) {
	return a.CreateScorecard(sourceURL, tags, opaque)
}

func (a *Arcade) createScorecardLocked(sourceURL string, tags []string, opaque any) (string, error) {
	if a.cfg.Mode == ModeOnline {
		payload := map[string]any{"tags": tags}
		if tags == nil {
			payload["tags"] = []string{"wrapper"}
		}
		if sourceURL != "" {
			payload["source_url"] = sourceURL
		}
		if opaque != nil {
			payload["opaque"] = opaque
		}
		var resp struct {
			CardID string `json:"card_id"`
		}
		if err := a.postJSON("/api/scorecard/open", a.cfg.APIKey, payload, &resp); err != nil {
			return "", fmt.Errorf("open remote scorecard: %w", err)
		}
		a.logger.Printf("scorecard_created card_id=%s", resp.CardID)
		return resp.CardID, nil
	}

	cardID := a.manager.New(sourceURL, tags, a.cfg.APIKey, opaque)
	a.logger.Printf("scorecard_created card_id=%s", cardID)
	return cardID, nil
}

// GetScorecard returns the scored view of an open scorecard, or nil when the
// id is unknown. An empty id means the default scorecard; when no default
// exists yet, the result is nil rather than an implicitly created one.
func (a *Arcade) GetScorecard(cardID string) *EnvironmentScorecard {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cardID == "" {
		if a.defaultCardID == "" {
			return nil
		}
		cardID = a.defaultCardID
	}

	if a.cfg.Mode == ModeOnline {
		var out EnvironmentScorecard
		if err := a.getJSON("/api/scorecard/"+cardID, a.cfg.APIKey, &out); err != nil {
			a.logger.Printf("get_scorecard_failed card_id=%s err=%v", cardID, err)
			return nil
		}
		out.APIKey = ""
		return &out
	}

	sc := a.manager.Get(cardID, a.cfg.APIKey)
	if sc == nil {
		return nil
	}
	out := ComputeScorecard(sc, a.environments)
	out.APIKey = ""
	return out
}

// CloseScorecard finalizes a scorecard and returns its scores, nil when the
// id is unknown. An empty id closes the default scorecard, after which the
// next Make mints a fresh one.
func (a *Arcade) CloseScorecard(cardID string) *EnvironmentScorecard {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cardID == "" {
		cardID = a.defaultCardID
	}
	if cardID == "" {
		return nil
	}

	var out *EnvironmentScorecard
	if a.cfg.Mode == ModeOnline {
		var remote EnvironmentScorecard
		if err := a.postJSON("/api/scorecard/close", a.cfg.APIKey, map[string]string{"card_id": cardID}, &remote); err != nil {
			a.logger.Printf("close_scorecard_failed card_id=%s err=%v", cardID, err)
			return nil
		}
		out = &remote
	} else {
		sc, _ := a.manager.Close(cardID, a.cfg.APIKey)
		if sc == nil {
			return nil
		}
		out = ComputeScorecard(sc, a.environments)
	}
	out.APIKey = ""

	if cardID == a.defaultCardID {
		a.defaultCardID = ""
	}
	a.logger.Printf("scorecard_closed card_id=%s score=%.1f", cardID, out.Score)

	if a.archive != nil {
		if err := a.archive.SaveScorecard(out); err != nil {
			a.logger.Printf("archive_failed card_id=%s err=%v", cardID, err)
		}
	}
	if a.onScorecardClose != nil {
		a.onScorecardClose(out)
	}
	return out
}

// MakeOptions tunes a Make call. The zero value plays on the default
// scorecard with no recording or rendering.
type MakeOptions struct {
	// Seed feeds deterministic game randomness in local modes.
	Seed int64
	// CardID selects the scorecard tracking this session. Empty uses the
	// default scorecard, creating it on first need.
	CardID string
	// SaveRecording writes a JSONL recording of every frame.
	SaveRecording bool
	// RenderMode picks a built-in renderer: "terminal", "terminal-fast"
	// or "human". Renderer wins when both are set.
	RenderMode string
	Renderer   RenderFunc
}

// Make prepares a playable, already-reset environment for gameID ("ls20" or
// "ls20-1234abcd"). Lookup failures and network errors return nil.
func (a *Arcade) Make(gameID string, opts MakeOptions) Environment {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !validGameID(gameID) {
		a.logger.Printf("make_failed game_id=%q err=%v", gameID, errInvalidGameID)
		return nil
	}

	if opts.CardID == "" {
		if a.defaultCardID == "" {
			cardID, err := a.createScorecardLocked("", nil, nil)
			if err != nil {
				a.logger.Printf("make_failed game_id=%s err=%v", gameID, err)
				return nil
			}
			a.defaultCardID = cardID
		}
		opts.CardID = a.defaultCardID
	}

	base, version := SplitGameID(gameID)

	switch a.cfg.Mode {
	case ModeOffline:
		if env := a.findLocalGame(base, version, opts); env != nil {
			return env
		}
	case ModeNormal:
		if env := a.downloadGame(base, version, opts); env != nil {
			return env
		}
	case ModeOnline:
		if env := a.makeRemote(base, version, opts); env != nil {
			return env
		}
	}
	return nil
}

// findLocalGame resolves a scanned environment by base id. Without an
// explicit version the most recently downloaded one wins.
func (a *Arcade) findLocalGame(base, version string, opts MakeOptions) *LocalEnvironment {
	var matching []EnvironmentInfo
	for _, env := range a.environments {
		if envBase, _ := SplitGameID(env.GameID); envBase == base {
			matching = append(matching, env)
		}
	}
	if len(matching) == 0 {
		a.logger.Printf("game_not_found game_id=%s available=%v", base, a.knownBaseIDs())
		return nil
	}

	if version != "" {
		for _, env := range matching {
			if _, envVersion := SplitGameID(env.GameID); envVersion == version {
				return a.newLocalEnvironment(env, opts)
			}
		}
		a.logger.Printf("version_not_found game_id=%s version=%s", base, version)
		return nil
	}

	sort.SliceStable(matching, func(i, j int) bool {
		return downloadTime(matching[i]).After(downloadTime(matching[j]))
	})
	latest := matching[0]
	a.logger.Printf("using_latest game_id=%s resolved=%s", base, latest.GameID)
	return a.newLocalEnvironment(latest, opts)
}

func downloadTime(env EnvironmentInfo) time.Time {
	if env.DateDownloaded == nil {
		return time.Time{}
	}
	return *env.DateDownloaded
}

func (a *Arcade) knownBaseIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, env := range a.environments {
		base, _ := SplitGameID(env.GameID)
		if !seen[base] {
			seen[base] = true
			ids = append(ids, base)
		}
	}
	sort.Strings(ids)
	return ids
}

func (a *Arcade) newLocalEnvironment(info EnvironmentInfo, opts MakeOptions) *LocalEnvironment {
	info.normalize()
	renderer := opts.Renderer
	if renderer == nil {
		renderer = rendererForMode(opts.RenderMode, info, a.logger)
	}
	env, err := NewLocalEnvironment(info, LocalOptions{
		Seed:          opts.Seed,
		CardID:        opts.CardID,
		SaveRecording: opts.SaveRecording,
		RecordingsDir: a.cfg.RecordingsDir,
		Manager:       a.manager,
		Renderer:      renderer,
		Logger:        a.logger,
	})
	if err != nil {
		a.logger.Printf("make_failed game_id=%s err=%v", info.GameID, err)
		return nil
	}
	return env
}

// fetchMetadata pulls a game's metadata from the API, nil when unavailable.
func (a *Arcade) fetchMetadata(gameID string) *EnvironmentInfo {
	if a.cfg.APIKey == "" {
		a.logger.Printf("fetch_metadata_failed game_id=%s err=no_api_key", gameID)
		return nil
	}
	var info EnvironmentInfo
	if err := a.getJSON("/api/games/"+gameID, a.cfg.APIKey, &info); err != nil {
		a.logger.Printf("fetch_metadata_failed game_id=%s err=%v", gameID, err)
		return nil
	}
	if info.GameID == "" {
		info.GameID = gameID
	}
	return &info
}

// downloadGame fetches a game's metadata and source into the environments
// dir, then runs it locally. When the API is unreachable it falls back to
// whatever the local scan already found.
func (a *Arcade) downloadGame(base, version string, opts MakeOptions) *LocalEnvironment {
	info := a.fetchMetadata(base)
	if info == nil {
		return a.findLocalGame(base, version, opts)
	}

	if version == "" {
		_, version = SplitGameID(info.GameID)
	}

	dir := filepath.Join(a.cfg.EnvironmentsDir, base)
	if version != "" {
		dir = filepath.Join(dir, version)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.logger.Printf("download_failed game_id=%s err=%v", base, err)
		return nil
	}

	info.normalize()
	info.LocalDir = dir

	raw, err := json.MarshalIndent(info, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, "metadata.json"), raw, 0o644)
	}
	if err != nil {
		a.logger.Printf("download_failed game_id=%s err=%v", base, err)
		return nil
	}

	sourceFile := filepath.Join(dir, strings.ToLower(info.ClassName)+".js")
	if _, err := os.Stat(sourceFile); err != nil {
		source, err := a.fetchSource(info.GameID)
		if err != nil {
			a.logger.Printf("download_failed game_id=%s err=%v", info.GameID, err)
			return nil
		}
		if err := os.WriteFile(sourceFile, source, 0o644); err != nil {
			a.logger.Printf("download_failed game_id=%s err=%v", info.GameID, err)
			return nil
		}
		a.logger.Printf("download_ok game_id=%s dir=%s", info.GameID, dir)
	}

	a.rememberEnvironment(*info)
	return a.newLocalEnvironment(*info, opts)
}

func (a *Arcade) fetchSource(gameID string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, a.cfg.BaseURL+"/api/games/"+gameID+"/source", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", a.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch source: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// rememberEnvironment records a downloaded environment so later Make calls
// and scorecard scoring see it. Same-id entries are replaced.
func (a *Arcade) rememberEnvironment(info EnvironmentInfo) {
	for i := range a.environments {
		if a.environments[i].GameID == info.GameID {
			a.environments[i] = info
			return
		}
	}
	a.environments = append(a.environments, info)
}

// makeRemote opens a server-hosted session.
func (a *Arcade) makeRemote(base, version string, opts MakeOptions) *RemoteEnvironment {
	if a.cfg.APIKey == "" {
		a.logger.Printf("make_failed game_id=%s err=no_api_key", base)
		return nil
	}

	info := a.fetchMetadata(base)
	if info == nil {
		return nil
	}
	if version != "" && info.GameID != base+"-"+version {
		info.GameID = base + "-" + version
	}
	info.normalize()
	info.LocalDir = ""

	renderer := opts.Renderer
	if renderer == nil {
		renderer = rendererForMode(opts.RenderMode, *info, a.logger)
	}

	env, err := NewRemoteEnvironment(*info, RemoteOptions{
		BaseURL:       a.cfg.BaseURL,
		APIKey:        a.cfg.APIKey,
		Client:        a.client,
		CardID:        opts.CardID,
		SaveRecording: opts.SaveRecording,
		RecordingsDir: a.cfg.RecordingsDir,
		Manager:       a.manager,
		Renderer:      renderer,
		Logger:        a.logger,
	})
	if err != nil {
		a.logger.Printf("make_failed game_id=%s err=%v", info.GameID, err)
		return nil
	}
	return env
}

var _ Environment = (*LocalEnvironment)(nil)
var _ Environment = (*RemoteEnvironment)(nil)

// validGameID rejects ids that cannot name a game: empty base or embedded
// path separators.
func validGameID(gameID string) bool {
	base, _ := SplitGameID(gameID)
	return base != "" && !strings.ContainsAny(gameID, "/\\")
}

var errInvalidGameID = errors.New("invalid game id")
