package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/eventlog"
	"github.com/phrazzld/reelchain/internal/retry"
	"github.com/phrazzld/reelchain/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Base:        2,
		Unit:        time.Millisecond,
		Logger:      discardLogger(),
	}
}

// memStore is an in-memory TaskResultStore and ChainStore. saveErr, when
// set, is returned by every write.
type memStore struct {
	mu      sync.Mutex
	tasks   map[string]*domain.TaskRun
	chains  map[uuid.UUID]*domain.ChainRun
	saveErr error
	saves   atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{
		tasks:  make(map[string]*domain.TaskRun),
		chains: make(map[uuid.UUID]*domain.ChainRun),
	}
}

func taskKey(runID uuid.UUID, id domain.TaskID) string {
	return fmt.Sprintf("%s/%d", runID, id)
}

func (s *memStore) SaveTaskRun(_ context.Context, runID uuid.UUID, run *domain.TaskRun, _ time.Duration) error {
	s.saves.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.tasks[taskKey(runID, run.TaskID)] = run.Clone()
	return nil
}

func (s *memStore) GetTaskRun(_ context.Context, runID uuid.UUID, id domain.TaskID) (*domain.TaskRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.tasks[taskKey(runID, id)]
	if !ok {
		return nil, store.ErrTaskResultNotFound
	}
	return run.Clone(), nil
}

func (s *memStore) SaveChain(_ context.Context, chain *domain.ChainRun, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.chains[chain.RunID] = chain.Clone()
	return nil
}

func (s *memStore) GetChain(_ context.Context, runID uuid.UUID) (*domain.ChainRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain, ok := s.chains[runID]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	return chain.Clone(), nil
}

func (s *memStore) setSaveErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// memArchive records archived chains.
type memArchive struct {
	mu     sync.Mutex
	chains map[uuid.UUID]*domain.ChainRun
}

func (a *memArchive) ArchiveChain(_ context.Context, chain *domain.ChainRun) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.chains == nil {
		a.chains = make(map[uuid.UUID]*domain.ChainRun)
	}
	a.chains[chain.RunID] = chain.Clone()
	return nil
}

func (a *memArchive) GetArchivedChain(_ context.Context, runID uuid.UUID) (*domain.ChainRun, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	chain, ok := a.chains[runID]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	return chain.Clone(), nil
}

type countingReconnector struct {
	calls atomic.Int32
}

func (r *countingReconnector) Reconnect(context.Context) error {
	r.calls.Add(1)
	return nil
}

// succeed returns a handler producing {"task": id}.
func succeed(id domain.TaskID) Handler {
	return HandlerFunc(func(_ context.Context, tc *TaskContext) (domain.TaskResult, error) {
		return tc.Success(map[string]any{"task": int(id)})
	})
}

func fail(err error) Handler {
	return HandlerFunc(func(context.Context, *TaskContext) (domain.TaskResult, error) {
		return domain.TaskResult{}, err
	})
}

func succeedAll(g *Graph) HandlerTable {
	table := make(HandlerTable, g.Len())
	for _, id := range g.Order() {
		table[id] = succeed(id)
	}
	return table
}

type harness struct {
	orch    *Orchestrator
	store   *memStore
	archive *memArchive
	events  *eventlog.Log
	reconn  *countingReconnector
}

func newHarness(t *testing.T, handlers HandlerTable, mutate func(*Options)) *harness {
	t.Helper()

	pool, err := NewResourcePool(map[ResourceClass]int{ClassAudio: 2, ClassImage: 5})
	require.NoError(t, err)

	h := &harness{
		store:   newMemStore(),
		archive: &memArchive{},
		events: eventlog.New(eventlog.NewMemoryBackend(eventlog.DefaultCapacity), eventlog.Options{
			PollWindow: 50 * time.Millisecond,
			Logger:     discardLogger(),
		}),
		reconn: &countingReconnector{},
	}
	opts := Options{
		Graph:       PipelineGraph(),
		Handlers:    handlers,
		Pool:        pool,
		Results:     h.store,
		Chains:      h.store,
		Archive:     h.archive,
		Events:      h.events,
		Reconnector: h.reconn,
		Retry:       fastRetry(),
		Config: Config{
			TaskTimeout:    time.Second,
			AcquireTimeout: time.Second,
		},
		Logger: discardLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.orch, err = New(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.orch.Shutdown(ctx)
	})
	return h
}

// run starts a chain and waits for it to finish.
func (h *harness) run(t *testing.T, topic string) *domain.ChainRun {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runID, err := h.orch.StartChain(ctx, topic)
	require.NoError(t, err)
	require.NoError(t, h.orch.Wait(ctx, runID))

	chain, err := h.orch.GetChainStatus(ctx, runID)
	require.NoError(t, err)
	return chain
}

// drain reads every entry published for a finished run.
func (h *harness) drain(t *testing.T, runID uuid.UUID) []eventlog.Entry {
	t.Helper()
	var entries []eventlog.Entry
	var cursor uint64
	for {
		batch, err := h.events.Poll(context.Background(), runID, cursor)
		require.NoError(t, err)
		if len(batch) == 1 && batch[0].IsHeartbeat() {
			return entries
		}
		entries = append(entries, batch...)
		cursor = batch[len(batch)-1].SequenceID
	}
}

func decodeTask(t *testing.T, run *domain.TaskRun) map[string]any {
	t.Helper()
	require.NotNil(t, run.Result)
	var v map[string]any
	require.NoError(t, json.Unmarshal(run.Result.Content, &v))
	return v
}
