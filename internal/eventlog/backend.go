package eventlog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Backend stores entries per run, bounded to a fixed capacity with
// oldest-first eviction.
type Backend interface {
	// Append assigns the next sequence id to e, stores it, and returns it.
	Append(ctx context.Context, e Entry) (Entry, error)

	// Read returns up to limit entries with a sequence id greater than after,
	// waiting up to wait for the first one. An empty result means nothing
	// arrived within wait.
	Read(ctx context.Context, runID uuid.UUID, after uint64, limit int, wait time.Duration) ([]Entry, error)

	// Len returns the number of retained entries for the run.
	Len(ctx context.Context, runID uuid.UUID) (int, error)

	// Expire schedules removal of the run's entries after ttl.
	Expire(ctx context.Context, runID uuid.UUID, ttl time.Duration) error
}
