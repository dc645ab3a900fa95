// Package journal persists every transaction attempt to sqlite so a
// restart never loses track of what was sent. The database is the
// durable source of truth for activity reports.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const schema = `
	CREATE TABLE IF NOT EXISTS transactions (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		status     TEXT NOT NULL,
		priority   TEXT NOT NULL DEFAULT 'medium',
		token_in   TEXT NOT NULL DEFAULT '',
		token_out  TEXT NOT NULL DEFAULT '',
		lamports   INTEGER NOT NULL DEFAULT 0,
		signature  TEXT NOT NULL DEFAULT '',
		note       TEXT NOT NULL DEFAULT '',
		error      TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
	CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at);
`

// Record is one journaled transaction attempt.
type Record struct {
	ID        string
	Kind      string
	Status    string
	Priority  string
	TokenIn   string
	TokenOut  string
	Lamports  uint64
	Signature string
	Note      string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open creates the database file (and its directory) if needed and
// ensures the schema exists.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_loc=UTC")
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Insert(ctx context.Context, rec Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, kind, status, priority, token_in, token_out, lamports, signature, note, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Kind, rec.Status, rec.Priority,
		rec.TokenIn, rec.TokenOut, rec.Lamports,
		rec.Signature, rec.Note, rec.Error, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("journal insert %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateStatus moves a record through its lifecycle. An empty signature
// keeps whatever was recorded earlier.
func (s *Store) UpdateStatus(ctx context.Context, id, status, signature, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions
		 SET status = ?, signature = COALESCE(NULLIF(?, ''), signature), error = ?, updated_at = ?
		 WHERE id = ?`,
		status, signature, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("journal update %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("journal: unknown transaction %s", id)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, status, priority, token_in, token_out, lamports, signature, note, error, created_at, updated_at
		 FROM transactions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.Kind, &rec.Status, &rec.Priority,
			&rec.TokenIn, &rec.TokenOut, &rec.Lamports,
			&rec.Signature, &rec.Note, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM transactions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("journal counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
