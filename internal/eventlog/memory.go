package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// idleRunTTL bounds how long a run that was only ever read is kept.
const idleRunTTL = time.Hour

// MemoryBackend keeps entries in process memory. It is used when no store
// is configured for events and in tests.
type MemoryBackend struct {
	capacity int
	now      func() time.Time

	mu   sync.Mutex
	runs map[uuid.UUID]*memoryRun
}

type memoryRun struct {
	entries   []Entry
	nextSeq   uint64
	notify    chan struct{}
	expiresAt time.Time
}

// NewMemoryBackend creates a backend retaining at most capacity entries per run.
func NewMemoryBackend(capacity int) *MemoryBackend {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryBackend{
		capacity: capacity,
		now:      time.Now,
		runs:     make(map[uuid.UUID]*memoryRun),
	}
}

// run must be called with mu held.
func (b *MemoryBackend) run(id uuid.UUID) *memoryRun {
	r, ok := b.runs[id]
	if !ok {
		r = &memoryRun{notify: make(chan struct{})}
		b.runs[id] = r
	}
	return r
}

// sweep must be called with mu held.
func (b *MemoryBackend) sweep() {
	now := b.now()
	for id, r := range b.runs {
		if !r.expiresAt.IsZero() && now.After(r.expiresAt) {
			delete(b.runs, id)
		}
	}
}

func (b *MemoryBackend) Append(_ context.Context, e Entry) (Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sweep()
	r := b.run(e.RunID)
	r.expiresAt = time.Time{}
	r.nextSeq++
	e.SequenceID = r.nextSeq
	r.entries = append(r.entries, e)
	if over := len(r.entries) - b.capacity; over > 0 {
		r.entries = append(r.entries[:0:0], r.entries[over:]...)
	}

	close(r.notify)
	r.notify = make(chan struct{})
	return e, nil
}

func (b *MemoryBackend) Read(ctx context.Context, runID uuid.UUID, after uint64, limit int, wait time.Duration) ([]Entry, error) {
	var timer *time.Timer
	if wait > 0 {
		timer = time.NewTimer(wait)
		defer timer.Stop()
	}

	for {
		b.mu.Lock()
		r, known := b.runs[runID]
		if !known {
			// Subscribers may arrive before the first publish.
			r = b.run(runID)
			r.expiresAt = b.now().Add(idleRunTTL)
		}
		out := collect(r.entries, after, limit)
		notify := r.notify
		b.mu.Unlock()

		if len(out) > 0 || timer == nil {
			return out, nil
		}

		select {
		case <-notify:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func collect(entries []Entry, after uint64, limit int) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.SequenceID <= after {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (b *MemoryBackend) Len(_ context.Context, runID uuid.UUID) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.runs[runID]; ok {
		return len(r.entries), nil
	}
	return 0, nil
}

func (b *MemoryBackend) Expire(_ context.Context, runID uuid.UUID, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.runs[runID]; ok {
		r.expiresAt = b.now().Add(ttl)
	}
	return nil
}
