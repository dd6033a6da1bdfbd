package arcade

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Archive persists closed scorecards to SQLite so scores survive the
// process. Aggregates are stored in columns for querying; the full scored
// document rides along as JSON.
type Archive struct {
	db *sql.DB
}

// OpenArchive opens (or creates) the archive database and migrates it.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps concurrent readers cheap.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS scorecards (
			card_id TEXT PRIMARY KEY,
			source_url TEXT,
			tags TEXT,
			score REAL NOT NULL,
			environments_played INTEGER NOT NULL,
			environments_completed INTEGER NOT NULL,
			levels_completed INTEGER NOT NULL,
			total_actions INTEGER NOT NULL,
			document TEXT NOT NULL,
			closed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scorecards_score ON scorecards(score)`,
		`CREATE INDEX IF NOT EXISTS idx_scorecards_closed_at ON scorecards(closed_at)`,
	}

	for _, migration := range migrations {
		if _, err := a.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveScorecard archives one closed scorecard. Saving the same card id
// twice replaces the earlier row.
func (a *Archive) SaveScorecard(sc *EnvironmentScorecard) error {
	document, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal scorecard: %w", err)
	}
	tags, err := json.Marshal(sc.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	query := `INSERT OR REPLACE INTO scorecards (
		card_id, source_url, tags, score, environments_played,
		environments_completed, levels_completed, total_actions, document
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = a.db.Exec(query,
		sc.CardID, sc.SourceURL, string(tags), sc.Score, len(sc.Games),
		sc.TotalEnvironmentsCompleted(), sc.TotalLevelsCompleted(),
		sc.TotalActions(), string(document),
	)
	return err
}

// ArchivedScorecard is one archive row's summary.
type ArchivedScorecard struct {
	CardID                string    `json:"card_id"`
	SourceURL             string    `json:"source_url,omitempty"`
	Tags                  []string  `json:"tags,omitempty"`
	Score                 float64   `json:"score"`
	EnvironmentsPlayed    int       `json:"environments_played"`
	EnvironmentsCompleted int       `json:"environments_completed"`
	LevelsCompleted       int       `json:"levels_completed"`
	TotalActions          int       `json:"total_actions"`
	ClosedAt              time.Time `json:"closed_at"`
}

// ListScorecards returns archived summaries, newest first.
func (a *Archive) ListScorecards(limit int) ([]ArchivedScorecard, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.Query(`SELECT card_id, source_url, tags, score,
		environments_played, environments_completed, levels_completed,
		total_actions, closed_at
		FROM scorecards ORDER BY closed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArchivedScorecard
	for rows.Next() {
		var row ArchivedScorecard
		var tags string
		if err := rows.Scan(&row.CardID, &row.SourceURL, &tags, &row.Score,
			&row.EnvironmentsPlayed, &row.EnvironmentsCompleted,
			&row.LevelsCompleted, &row.TotalActions, &row.ClosedAt); err != nil {
			return nil, err
		}
		if tags != "" && tags != "null" {
			if err := json.Unmarshal([]byte(tags), &row.Tags); err != nil {
				return nil, fmt.Errorf("parse tags for %s: %w", row.CardID, err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetScorecard loads the full scored document for a card id, nil when the
// id was never archived.
func (a *Archive) GetScorecard(cardID string) (*EnvironmentScorecard, error) {
	var document string
	err := a.db.QueryRow(`SELECT document FROM scorecards WHERE card_id = ?`, cardID).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sc EnvironmentScorecard
	if err := json.Unmarshal([]byte(document), &sc); err != nil {
		return nil, fmt.Errorf("parse archived scorecard %s: %w", cardID, err)
	}
	return &sc, nil
}
