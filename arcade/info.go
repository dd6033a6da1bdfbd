package arcade

import (
	"strings"
	"time"
)

// EnvironmentInfo describes one playable game. Instances come from local
// metadata.json files or the remote listing endpoint and are read-only
// after discovery. LocalDir is runtime-only and never serialized.
type EnvironmentInfo struct {
	GameID          string     `json:"game_id"`
	Title           string     `json:"title,omitempty"`
	DefaultFPS      int        `json:"default_fps,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	BaselineActions []int      `json:"baseline_actions,omitempty"`
	DateDownloaded  *time.Time `json:"date_downloaded,omitempty"`
	ClassName       string     `json:"class_name,omitempty"`

	LocalDir string `json:"-"`
}

// SplitGameID separates a game identifier of the form "ls20" or
// "ls20-1234abcd" into its base id and version ("" when absent).
func SplitGameID(gameID string) (base, version string) {
	if i := strings.Index(gameID, "-"); i >= 0 {
		return gameID[:i], gameID[i+1:]
	}
	return gameID, ""
}

// BaseID returns the game id without its version suffix.
func (e *EnvironmentInfo) BaseID() string {
	base, _ := SplitGameID(e.GameID)
	return base
}

// Version returns the version suffix, or "" when the id carries none.
func (e *EnvironmentInfo) Version() string {
	_, version := SplitGameID(e.GameID)
	return version
}

// normalize fills derived defaults: fps, download time, and the class name
// used to locate the game implementation (first four id characters with the
// first letter upper-cased).
func (e *EnvironmentInfo) normalize() {
	if e.DefaultFPS == 0 {
		e.DefaultFPS = 5
	}
	if e.DateDownloaded == nil {
		now := time.Now().UTC()
		e.DateDownloaded = &now
	}
	if e.ClassName == "" && e.GameID != "" {
		name := e.GameID
		if len(name) > 4 {
			name = name[:4]
		}
		e.ClassName = strings.ToUpper(name[:1]) + name[1:]
	}
}
