package journal

import (
	"context"
	"time"
)

// Record is one execution's journal entry. Immutable once appended.
type Record struct {
	RequestID   string    `json:"request_id"`
	Status      string    `json:"status"`
	ExitCode    *int      `json:"exit_code,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	StdoutBytes int       `json:"stdout_bytes"`
	StderrBytes int       `json:"stderr_bytes"`
	Truncated   bool      `json:"truncated"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter controls Recent queries.
type Filter struct {
	Status string // empty matches all statuses
	Limit  int    // 0 applies the default limit
}

// Store is the persistence interface for execution records.
type Store interface {
	// Append inserts a record. CreatedAt is set by the store when zero.
	Append(ctx context.Context, rec Record) error

	// Recent returns records ordered newest first.
	Recent(ctx context.Context, f Filter) ([]Record, error)

	Close() error
}

// Nop is a Store that discards everything. Used when the journal is
// disabled in configuration.
type Nop struct{}

func (Nop) Append(context.Context, Record) error { return nil }

func (Nop) Recent(context.Context, Filter) ([]Record, error) { return nil, nil }

func (Nop) Close() error { return nil }
