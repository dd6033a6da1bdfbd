package arcade

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// OperationMode selects where game sessions run.
type OperationMode string

const (
	// ModeNormal prefers local environments and falls back to the API.
	ModeNormal OperationMode = "normal"
	// ModeOnline plays only through the remote API.
	ModeOnline OperationMode = "online"
	// ModeOffline plays only locally discovered environments.
	ModeOffline OperationMode = "offline"
)

// DefaultBaseURL is the production ARC-AGI-3 API endpoint.
const DefaultBaseURL = "https://three.arcprize.org"

const (
	defaultEnvironmentsDir = "environment_files"
	defaultRecordingsDir   = "recordings"
	defaultHTTPTimeout     = 10 * time.Second

	defaultStaleMinutes = 15
	minStaleMinutes     = 1
	maxStaleMinutes     = 60
)

var ErrBadOperationMode = errors.New("invalid operation mode")

// Config holds everything Arcade needs. Zero-value fields are resolved
// against environment variables and defaults exactly once, at New();
// explicitly set fields always win over the environment.
type Config struct {
	// APIKey authenticates against the remote API (env: ARC_API_KEY).
	// When empty and the mode permits remote access, an anonymous key is
	// provisioned at construction.
	APIKey string
	// BaseURL of the remote API (env: ARC_BASE_URL).
	BaseURL string
	// Mode selects local/remote execution (env: OPERATION_MODE).
	Mode OperationMode
	// EnvironmentsDir is scanned recursively for metadata.json files
	// (env: ENVIRONMENTS_DIR).
	EnvironmentsDir string
	// RecordingsDir receives JSONL recordings (env: RECORDINGS_DIR).
	RecordingsDir string
	// ArchivePath, when set, enables the sqlite archive of closed
	// scorecards (env: SCORECARD_ARCHIVE).
	ArchivePath string
	// HTTPTimeout bounds every remote call. Defaults to 10s.
	HTTPTimeout time.Duration
	// StaleAfter is how long an idle scorecard lives before the cleanup
	// loop closes it (env: STALE_MINUTES, clamped to [1m, 60m]).
	StaleAfter time.Duration
	// Logger receives key=value progress and error lines. Defaults to a
	// logger writing to stdout.
	Logger *log.Logger
}

// loadDotEnv mirrors the conventional load order: .env.example first, then
// .env overriding it. Missing files are fine.
func loadDotEnv() {
	_ = godotenv.Load(".env.example")
	_ = godotenv.Overload(".env")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseMode(raw string) (OperationMode, error) {
	switch OperationMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeNormal:
		return ModeNormal, nil
	case ModeOnline:
		return ModeOnline, nil
	case ModeOffline:
		return ModeOffline, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadOperationMode, raw)
}

func staleFromEnv(logger *log.Logger) time.Duration {
	raw := envOr("STALE_MINUTES", strconv.Itoa(defaultStaleMinutes))
	minutes, err := strconv.Atoi(raw)
	if err != nil {
		logger.Printf("config_warning stale_minutes=%q err=not_an_int using=%d", raw, defaultStaleMinutes)
		minutes = defaultStaleMinutes
	}
	if minutes < minStaleMinutes || minutes > maxStaleMinutes {
		logger.Printf("config_warning stale_minutes=%d outside=%d-%d clamping", minutes, minStaleMinutes, maxStaleMinutes)
		if minutes < minStaleMinutes {
			minutes = minStaleMinutes
		} else {
			minutes = maxStaleMinutes
		}
	}
	return time.Duration(minutes) * time.Minute
}

// resolve applies env-var fallbacks and defaults, returning the effective
// configuration. Invalid modes are a hard construction failure.
func (c Config) resolve() (Config, error) {
	loadDotEnv()

	if c.Logger == nil {
		c.Logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("ARC_API_KEY")
	}
	if c.BaseURL == "" {
		c.BaseURL = envOr("ARC_BASE_URL", DefaultBaseURL)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Mode == "" {
		mode, err := parseMode(envOr("OPERATION_MODE", string(ModeNormal)))
		if err != nil {
			// A junk env value falls back to normal, matching the
			// permissive handling of the environment elsewhere.
			mode = ModeNormal
		}
		c.Mode = mode
	} else {
		mode, err := parseMode(string(c.Mode))
		if err != nil {
			return c, err
		}
		c.Mode = mode
	}
	if c.EnvironmentsDir == "" {
		c.EnvironmentsDir = envOr("ENVIRONMENTS_DIR", defaultEnvironmentsDir)
	}
	if c.RecordingsDir == "" {
		c.RecordingsDir = envOr("RECORDINGS_DIR", defaultRecordingsDir)
	}
	if c.ArchivePath == "" {
		c.ArchivePath = os.Getenv("SCORECARD_ARCHIVE")
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = staleFromEnv(c.Logger)
	}
	return c, nil
}
