package arcade

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestResolveDefaults(t *testing.T) {
	t.Setenv("ARC_API_KEY", "")
	t.Setenv("ARC_BASE_URL", "")
	t.Setenv("OPERATION_MODE", "")
	t.Setenv("ENVIRONMENTS_DIR", "")
	t.Setenv("RECORDINGS_DIR", "")
	t.Setenv("STALE_MINUTES", "")

	cfg, err := Config{Logger: quietLogger()}.resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Mode != ModeNormal {
		t.Errorf("Mode = %q, want normal", cfg.Mode)
	}
	if cfg.EnvironmentsDir != "environment_files" || cfg.RecordingsDir != "recordings" {
		t.Errorf("dirs = %q, %q", cfg.EnvironmentsDir, cfg.RecordingsDir)
	}
	if cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
	if cfg.StaleAfter != 15*time.Minute {
		t.Errorf("StaleAfter = %v", cfg.StaleAfter)
	}
}

func TestResolveEnvFallbacks(t *testing.T) {
	t.Setenv("ARC_API_KEY", "env-key")
	t.Setenv("ARC_BASE_URL", "http://example.test/")
	t.Setenv("OPERATION_MODE", "offline")
	t.Setenv("ENVIRONMENTS_DIR", "/tmp/envs")
	t.Setenv("RECORDINGS_DIR", "/tmp/recs")

	cfg, err := Config{Logger: quietLogger()}.resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.APIKey != "env-key" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.BaseURL != "http://example.test" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
	if cfg.Mode != ModeOffline {
		t.Errorf("Mode = %q", cfg.Mode)
	}
	if cfg.EnvironmentsDir != "/tmp/envs" || cfg.RecordingsDir != "/tmp/recs" {
		t.Errorf("dirs = %q, %q", cfg.EnvironmentsDir, cfg.RecordingsDir)
	}
}

func TestExplicitFieldsWinOverEnv(t *testing.T) {
	t.Setenv("ARC_API_KEY", "env-key")
	t.Setenv("OPERATION_MODE", "offline")

	cfg, err := Config{APIKey: "mine", Mode: ModeOnline, Logger: quietLogger()}.resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.APIKey != "mine" || cfg.Mode != ModeOnline {
		t.Errorf("got %q/%q, explicit values must win", cfg.APIKey, cfg.Mode)
	}
}

func TestExplicitInvalidModeIsError(t *testing.T) {
	_, err := Config{Mode: "bogus", Logger: quietLogger()}.resolve()
	if !errors.Is(err, ErrBadOperationMode) {
		t.Fatalf("err = %v, want ErrBadOperationMode", err)
	}
}

func TestJunkEnvModeFallsBackToNormal(t *testing.T) {
	t.Setenv("OPERATION_MODE", "sideways")
	cfg, err := Config{Logger: quietLogger()}.resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Mode != ModeNormal {
		t.Errorf("Mode = %q, want normal", cfg.Mode)
	}
}

func TestStaleMinutesClamped(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"30", 30 * time.Minute},
		{"120", 60 * time.Minute},
		{"0", time.Minute},
		{"-5", time.Minute},
		{"soon", 15 * time.Minute},
	}
	for _, tc := range cases {
		t.Setenv("STALE_MINUTES", tc.raw)
		cfg, err := Config{Logger: quietLogger()}.resolve()
		if err != nil {
			t.Fatalf("resolve(%q): %v", tc.raw, err)
		}
		if cfg.StaleAfter != tc.want {
			t.Errorf("STALE_MINUTES=%q: StaleAfter = %v, want %v", tc.raw, cfg.StaleAfter, tc.want)
		}
	}
}
