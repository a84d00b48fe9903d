// Package storage keeps an optional sqlite audit trail of build runs.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"jenkinsrun/internal/logger"
	"jenkinsrun/internal/storage/models"

	_ "github.com/mattn/go-sqlite3"
)

const timestampLayout = "2006-01-02 15:04:05.000000"

// Store is a sqlite-backed run audit
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (creating if needed) the audit database at dbPath
func Open(dbPath string, log *slog.Logger) (*Store, error) {
	log = logger.OrDiscard(log)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	// A CLI run writes one row; a single connection avoids lock contention
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db, log: log}
	if err := s.Ping(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit tables: %w", err)
	}

	log.Debug("Audit database initialized", "path", dbPath)
	return s, nil
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping audit database: %w", err)
	}
	return nil
}

func (s *Store) createTables() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS run_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		job TEXT NOT NULL,
		server_url TEXT NOT NULL,
		baseline INTEGER NOT NULL,
		number INTEGER,
		result TEXT,
		status TEXT NOT NULL,
		error TEXT,
		duration_ms INTEGER NOT NULL
	)
	`)
	return err
}

// InsertRun appends a run record and returns its row id
func (s *Store) InsertRun(ctx context.Context, rec models.RunRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO run_audit (run_id, timestamp, job, server_url, baseline, number, result, status, error, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.Timestamp.UTC().Format(timestampLayout),
		rec.Job,
		rec.ServerURL,
		rec.Baseline,
		rec.Number,
		rec.Result,
		rec.Status,
		rec.Error,
		rec.DurationMS,
	)
	if err != nil {
		s.log.Error("Failed to insert run record", "run_id", rec.RunID, "error", err)
		return 0, fmt.Errorf("insert run record: %w", err)
	}

	return res.LastInsertId()
}

// ListRuns returns run records newest first
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]models.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, timestamp, job, server_url, baseline, number, result, status, error, duration_ms FROM run_audit ORDER BY id DESC LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}
	defer rows.Close()

	var records []models.RunRecord
	for rows.Next() {
		var rec models.RunRecord
		var timestampStr string

		if err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&timestampStr,
			&rec.Job,
			&rec.ServerURL,
			&rec.Baseline,
			&rec.Number,
			&rec.Result,
			&rec.Status,
			&rec.Error,
			&rec.DurationMS,
		); err != nil {
			return nil, fmt.Errorf("scan run record: %w", err)
		}

		rec.Timestamp, err = parseTimestamp(timestampStr)
		if err != nil {
			return nil, fmt.Errorf("run record %d: %w", rec.ID, err)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// parseTimestamp accepts the stored layout with or without microseconds,
// and RFC3339 as written by the driver for time.Time values
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{timestampLayout, "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
