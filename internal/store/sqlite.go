// Package store persists the event table and scoring results in SQLite so a
// scored dataset can be re-exported without re-running the pipeline.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"riskscope/internal/event"
)

// Schema for the riskscope event store.
const schema = `
CREATE TABLE IF NOT EXISTS access_events (
    event_id        TEXT PRIMARY KEY,
    timestamp_ns    INTEGER NOT NULL,
    user_id         TEXT NOT NULL,
    file_id         TEXT NOT NULL,
    file_type       TEXT NOT NULL,
    action          TEXT NOT NULL,
    file_size_bytes INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON access_events(timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_events_user ON access_events(user_id, timestamp_ns);

CREATE TABLE IF NOT EXISTS scores (
    event_id    TEXT PRIMARY KEY REFERENCES access_events(event_id),
    raw_score   REAL NOT NULL,
    is_anomaly  INTEGER NOT NULL,
    risk_score  INTEGER NOT NULL,
    scored_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scores_risk ON scores(risk_score);
`

// Store represents the SQLite event store. The pipeline assumes a single
// writer; no concurrent retrain races are handled here.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and applies
// the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ReplaceEvents swaps the stored event table for the given batch. Scores are
// cleared too since they no longer correspond to the stored events.
func (s *Store) ReplaceEvents(events []event.AccessEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM scores`); err != nil {
		return fmt.Errorf("clear scores: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM access_events`); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO access_events (event_id, timestamp_ns, user_id, file_id, file_type, action, file_size_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(e.EventID, e.Timestamp.UnixNano(), e.UserID, e.FileID, e.FileType, e.Action, e.FileSizeBytes); err != nil {
			return fmt.Errorf("insert event %s: %w", e.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SaveScores stores scoring results for previously inserted events.
func (s *Store) SaveScores(scored []event.ScoredEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO scores (event_id, raw_score, is_anomaly, risk_score, scored_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for _, se := range scored {
		anomaly := 0
		if se.IsAnomaly {
			anomaly = 1
		}
		if _, err := stmt.Exec(se.EventID, se.RawScore, anomaly, se.RiskScore, now); err != nil {
			return fmt.Errorf("insert score for %s: %w", se.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LoadEvents returns the stored event table ordered by timestamp.
func (s *Store) LoadEvents() ([]event.AccessEvent, error) {
	rows, err := s.db.Query(`
		SELECT event_id, timestamp_ns, user_id, file_id, file_type, action, file_size_bytes
		FROM access_events ORDER BY timestamp_ns, event_id`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []event.AccessEvent
	for rows.Next() {
		var e event.AccessEvent
		var ns int64
		if err := rows.Scan(&e.EventID, &ns, &e.UserID, &e.FileID, &e.FileType, &e.Action, &e.FileSizeBytes); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp = time.Unix(0, ns)
		events = append(events, e)
	}
	return events, rows.Err()
}

// LoadScored returns the stored events joined with their scores, ordered by
// risk descending.
func (s *Store) LoadScored() ([]event.ScoredEvent, error) {
	return s.queryScored(`
		SELECT e.event_id, e.timestamp_ns, e.user_id, e.file_id, e.file_type, e.action, e.file_size_bytes,
		       sc.raw_score, sc.is_anomaly, sc.risk_score
		FROM access_events e
		JOIN scores sc ON sc.event_id = e.event_id
		ORDER BY sc.risk_score DESC, e.timestamp_ns`)
}

// HighRisk returns scored events with risk above the threshold, ordered by
// risk descending.
func (s *Store) HighRisk(threshold int) ([]event.ScoredEvent, error) {
	return s.queryScored(`
		SELECT e.event_id, e.timestamp_ns, e.user_id, e.file_id, e.file_type, e.action, e.file_size_bytes,
		       sc.raw_score, sc.is_anomaly, sc.risk_score
		FROM access_events e
		JOIN scores sc ON sc.event_id = e.event_id
		WHERE sc.risk_score > ?
		ORDER BY sc.risk_score DESC, e.timestamp_ns`, threshold)
}

func (s *Store) queryScored(query string, args ...any) ([]event.ScoredEvent, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scored events: %w", err)
	}
	defer rows.Close()

	var scored []event.ScoredEvent
	for rows.Next() {
		var se event.ScoredEvent
		var ns int64
		var anomaly int
		if err := rows.Scan(&se.EventID, &ns, &se.UserID, &se.FileID, &se.FileType, &se.Action,
			&se.FileSizeBytes, &se.RawScore, &anomaly, &se.RiskScore); err != nil {
			return nil, fmt.Errorf("scan scored event: %w", err)
		}
		se.Timestamp = time.Unix(0, ns)
		se.IsAnomaly = anomaly != 0
		scored = append(scored, se)
	}
	return scored, rows.Err()
}
