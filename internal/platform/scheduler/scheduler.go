// Package scheduler runs periodic background jobs (store health checks,
// run retention sweeps) on top of robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a unit of periodic work. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler owns a cron instance whose jobs never overlap with themselves
// and never crash the process on panic.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
}

// New creates a stopped scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Every registers job to run at a fixed interval. Intervals below one second
// are rounded up to one second by cron.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: interval for %q must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}

	ctx := s.ctx
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		job(ctx)
	}))
	s.entries[name] = id
	s.logger.Debug("job registered", "job", name, "interval", interval)
	return nil
}

// Remove unregisters the named job if present.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

// Start begins running registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels the job context and waits for running jobs to return,
// or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: waiting for jobs: %w", ctx.Err())
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
