// Package history records the runs driven by this CLI in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Record is one run as seen by this CLI
type Record struct {
	InvocationID string
	AssistantID  string
	ThreadID     string
	RunID        string
	Question     string
	Status       string
	Reply        string
	Polls        int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Store persists Records
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the history database at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createRunsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invocation_id TEXT NOT NULL,
		assistant_id TEXT,
		thread_id TEXT,
		run_id TEXT,
		question TEXT,
		status TEXT,
		reply TEXT,
		polls INTEGER,
		started_at DATETIME,
		finished_at DATETIME
	);`

	createRunIndex := `CREATE INDEX IF NOT EXISTS runs_thread ON runs(thread_id);`

	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create runs table: %w", err)
	}
	if _, err := db.Exec(createRunIndex); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create runs index: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts a record
func (s *Store) Add(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (invocation_id, assistant_id, thread_id, run_id, question, status, reply, polls, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.InvocationID, rec.AssistantID, rec.ThreadID, rec.RunID, rec.Question,
		rec.Status, rec.Reply, rec.Polls, rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT invocation_id, assistant_id, thread_id, run_id, question, status, reply, polls, started_at, finished_at
		 FROM runs ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load run records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.InvocationID, &rec.AssistantID, &rec.ThreadID, &rec.RunID,
			&rec.Question, &rec.Status, &rec.Reply, &rec.Polls, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run records: %w", err)
	}
	return records, nil
}
