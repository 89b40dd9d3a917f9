package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nkoval/runbox/config"
)

const defaultRecentLimit = 50

const schema = `
CREATE TABLE IF NOT EXISTS executions (
    request_id   TEXT PRIMARY KEY,
    status       TEXT NOT NULL,
    exit_code    INTEGER,
    duration_ms  INTEGER NOT NULL,
    stdout_bytes INTEGER NOT NULL DEFAULT 0,
    stderr_bytes INTEGER NOT NULL DEFAULT 0,
    truncated    INTEGER NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_created ON executions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
`

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and applies
// the schema. Use ":memory:" for an in-memory database (useful for
// testing).
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying journal schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var exitCode any
	if rec.ExitCode != nil {
		exitCode = *rec.ExitCode
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (request_id, status, exit_code, duration_ms, stdout_bytes, stderr_bytes, truncated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Status, exitCode, rec.DurationMs,
		rec.StdoutBytes, rec.StderrBytes, rec.Truncated,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting execution record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	query := `SELECT request_id, status, exit_code, duration_ms, stdout_bytes, stderr_bytes, truncated, created_at FROM executions`
	var args []any

	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying execution records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var exitCode sql.NullInt64
		var createdAt string
		if err := rows.Scan(&rec.RequestID, &rec.Status, &exitCode, &rec.DurationMs,
			&rec.StdoutBytes, &rec.StderrBytes, &rec.Truncated, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning execution record: %w", err)
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			rec.ExitCode = &code
		}
		if ts, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
			rec.CreatedAt = ts
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// NewFromConfig creates the journal store for the configured settings: a
// SQLite store when the journal is enabled, a Nop store otherwise.
func NewFromConfig(cfg *config.Config) (Store, error) {
	if !cfg.Journal.Enabled {
		return Nop{}, nil
	}
	return Open(cfg.Journal.Path)
}
