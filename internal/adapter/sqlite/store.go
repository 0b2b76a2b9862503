// Package sqlite persists Hadley cell results in a local SQLite database so
// they can be queried after they have been published.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/hadley-cell/internal/domain"
	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

// ErrNotFound is returned when no result exists for a job ID.
var ErrNotFound = errors.New("result not found")

const schema = `
CREATE TABLE IF NOT EXISTS hadley_results (
	job_id      TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL,
	psi_north   REAL,
	psi_south   REAL,
	computed_at TEXT NOT NULL,
	payload     BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS hadley_results_computed_at ON hadley_results (computed_at);
`

// Store is a SQLite-backed result store. It implements pipeline.BatchLoader.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store at the provided path, creating the schema if
// needed. ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across queries.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// LoadBatch upserts results in one transaction. A replayed job overwrites its
// earlier row.
func (s *Store) LoadBatch(ctx context.Context, results []domain.HadleyResult) (err error) {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO hadley_results (job_id, source, status, psi_north, psi_south, computed_at, payload)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(job_id) DO UPDATE SET
	source = excluded.source,
	status = excluded.status,
	psi_north = excluded.psi_north,
	psi_south = excluded.psi_south,
	computed_at = excluded.computed_at,
	payload = excluded.payload`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range results {
		r := &results[i]
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("serialize result %s: %w", r.JobID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			r.JobID, r.Source, r.Status(),
			nullFloat(r.North), nullFloat(r.South),
			r.ComputedAt.UTC().Format(timeFormat), payload,
		); err != nil {
			return fmt.Errorf("upsert result %s: %w", r.JobID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get returns the stored result for a job ID.
func (s *Store) Get(ctx context.Context, jobID string) (domain.HadleyResult, error) {
	var payload []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT payload FROM hadley_results WHERE job_id = ?`, jobID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HadleyResult{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return domain.HadleyResult{}, fmt.Errorf("get result: %w", err)
	}
	return decode(payload)
}

// List returns up to limit results, most recently computed first.
func (s *Store) List(ctx context.Context, limit int) ([]domain.HadleyResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT payload FROM hadley_results ORDER BY computed_at DESC, job_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []domain.HadleyResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r, err := decode(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func decode(payload []byte) (domain.HadleyResult, error) {
	var r domain.HadleyResult
	if err := json.Unmarshal(payload, &r); err != nil {
		return domain.HadleyResult{}, fmt.Errorf("decode result: %w", err)
	}
	return r, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
