// Package eventlog is the bounded, append-only log of task outcomes that
// subscribers follow with cursor polling.
//
// Each run keeps at most a fixed number of entries (DefaultCapacity); the oldest is evicted first. A
// poll waits up to PollWindow for entries after the subscriber's cursor and
// yields a synthetic heartbeat when none arrive, so an idle subscription is
// distinguishable from a dead one. Readers never affect publishers: the log
// does not track subscribers at all.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/reelchain/internal/domain"
)

// Defaults for Options.
const (
	DefaultCapacity   = 1000
	DefaultPollWindow = 10 * time.Second
	DefaultBatchSize  = 100
)

// Options configures a Log.
type Options struct {
	PollWindow      time.Duration
	BatchSize       int
	MaxPayloadBytes int
	Logger          *slog.Logger
}

// Log publishes sanitized entries to a Backend and serves polls.
type Log struct {
	backend Backend
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Log over backend.
func New(backend Backend, opts Options) *Log {
	if opts.PollWindow <= 0 {
		opts.PollWindow = DefaultPollWindow
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxPayloadBytes <= 0 {
		opts.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		backend: backend,
		opts:    opts,
		logger:  logger.With("component", "eventlog"),
		now:     time.Now,
	}
}

// Publish sanitizes and appends e, returning it with its sequence id.
func (l *Log) Publish(ctx context.Context, e Entry) (Entry, error) {
	if e.Kind == KindHeartbeat {
		return Entry{}, fmt.Errorf("eventlog: heartbeats are not stored")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	e.Payload = Sanitize(e.Payload, l.opts.MaxPayloadBytes)

	stored, err := l.backend.Append(ctx, e)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to publish entry",
			"run_id", e.RunID,
			"task_id", e.TaskID,
			"kind", e.Kind,
			"error", err)
		return Entry{}, err
	}
	l.logger.DebugContext(ctx, "entry published",
		"run_id", stored.RunID,
		"task_id", stored.TaskID,
		"sequence_id", stored.SequenceID,
		"status", stored.Status)
	return stored, nil
}

// PublishTask appends the terminal outcome of a task run.
func (l *Log) PublishTask(ctx context.Context, runID uuid.UUID, run *domain.TaskRun) (Entry, error) {
	var payload json.RawMessage
	if run.Result != nil {
		raw, err := json.Marshal(run.Result)
		if err != nil {
			return Entry{}, fmt.Errorf("eventlog: encode task result: %w", err)
		}
		payload = raw
	}
	return l.Publish(ctx, Entry{
		RunID:   runID,
		Kind:    KindTask,
		TaskID:  run.TaskID,
		Status:  string(run.Status),
		Payload: payload,
	})
}

// PublishChain appends the final chain summary. Subscribers treat it as the
// end of the run.
func (l *Log) PublishChain(ctx context.Context, chain *domain.ChainRun) (Entry, error) {
	raw, err := json.Marshal(chain)
	if err != nil {
		return Entry{}, fmt.Errorf("eventlog: encode chain summary: %w", err)
	}
	return l.Publish(ctx, Entry{
		RunID:   chain.RunID,
		Kind:    KindChain,
		Status:  string(chain.Status),
		Payload: raw,
	})
}

// Poll returns entries after cursor, waiting up to the poll window. If none
// arrive it returns a single heartbeat carrying cursor.
func (l *Log) Poll(ctx context.Context, runID uuid.UUID, cursor uint64) ([]Entry, error) {
	entries, err := l.backend.Read(ctx, runID, cursor, l.opts.BatchSize, l.opts.PollWindow)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []Entry{l.heartbeat(runID, cursor)}, nil
	}
	return entries, nil
}

func (l *Log) heartbeat(runID uuid.UUID, cursor uint64) Entry {
	return Entry{
		SequenceID: cursor,
		RunID:      runID,
		Kind:       KindHeartbeat,
		Status:     string(KindHeartbeat),
		Timestamp:  l.now().UTC(),
	}
}

// Subscribe returns a lazy sequence of entries starting after cursor. Each
// poll cycle yields its entries (or one heartbeat) and the sequence continues
// until ctx ends, the consumer stops, or a read fails. A failed read is
// yielded once as the error value. Restarting from any seen SequenceID
// resumes without gaps, except for entries already evicted.
func (l *Log) Subscribe(ctx context.Context, runID uuid.UUID, cursor uint64) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for ctx.Err() == nil {
			entries, err := l.Poll(ctx, runID, cursor)
			if err != nil {
				if ctx.Err() == nil {
					yield(Entry{}, err)
				}
				return
			}
			for _, e := range entries {
				if !yield(e, nil) {
					return
				}
				if !e.IsHeartbeat() {
					cursor = e.SequenceID
				}
			}
		}
	}
}

// Len reports how many entries are retained for the run.
func (l *Log) Len(ctx context.Context, runID uuid.UUID) (int, error) {
	return l.backend.Len(ctx, runID)
}

// Expire schedules removal of a finished run's entries.
func (l *Log) Expire(ctx context.Context, runID uuid.UUID, ttl time.Duration) error {
	return l.backend.Expire(ctx, runID, ttl)
}

// PollWindow is the configured wait before a heartbeat.
func (l *Log) PollWindow() time.Duration {
	return l.opts.PollWindow
}
