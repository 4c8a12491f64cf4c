package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/eventlog"
	"github.com/phrazzld/reelchain/internal/platform/scheduler"
	"github.com/phrazzld/reelchain/internal/redact"
	"github.com/phrazzld/reelchain/internal/retry"
	"github.com/phrazzld/reelchain/internal/store"
)

// MaxTopicLength bounds the topic accepted by StartChain.
const MaxTopicLength = 500

// persistTimeout bounds each store write made on behalf of a task or chain.
const persistTimeout = 5 * time.Second

// Config holds the timing knobs of the orchestrator.
type Config struct {
	// TaskTimeout is the execution budget of one task, retries included.
	TaskTimeout time.Duration

	// AcquireTimeout bounds the wait for a resource class slot.
	AcquireTimeout time.Duration

	// ResultTTL is how long terminal task runs stay in the result store.
	ResultTTL time.Duration

	// ChainTTL is how long chain summaries and event logs are kept.
	ChainTTL time.Duration

	// Retention is how long finished runs stay in memory before Sweep drops them.
	Retention time.Duration

	// SweepInterval is how often Schedule runs Sweep.
	SweepInterval time.Duration

	// StoreErrorThreshold is the number of consecutive connection errors
	// that triggers a store reconnect.
	StoreErrorThreshold int
}

// DefaultConfig returns a Config with the production defaults.
func DefaultConfig() Config {
	return Config{
		TaskTimeout:         30 * time.Second,
		AcquireTimeout:      10 * time.Second,
		ResultTTL:           time.Hour,
		ChainTTL:            24 * time.Hour,
		Retention:           2 * time.Hour,
		SweepInterval:       10 * time.Minute,
		StoreErrorThreshold: 3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = d.TaskTimeout
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = d.AcquireTimeout
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = d.ResultTTL
	}
	if c.ChainTTL <= 0 {
		c.ChainTTL = d.ChainTTL
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.StoreErrorThreshold <= 0 {
		c.StoreErrorThreshold = d.StoreErrorThreshold
	}
	return c
}

// Reconnector re-resolves the active backing-store instance.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Graph    *Graph
	Handlers HandlerTable
	Pool     *ResourcePool
	Admitter Admitter

	Results store.TaskResultStore
	Chains  store.ChainStore
	// Archive is optional durable storage of finalized runs.
	Archive store.ChainArchive
	Events  *eventlog.Log

	// Reconnector is optional; it is called after repeated store
	// connection errors.
	Reconnector Reconnector
	Metrics     *Metrics
	Retry       retry.Policy
	Config      Config
	Logger      *slog.Logger
}

// Orchestrator executes chain runs over the task graph.
type Orchestrator struct {
	graph    *Graph
	handlers HandlerTable
	pool     *ResourcePool
	admitter Admitter
	results  store.TaskResultStore
	chains   store.ChainStore
	archive  store.ChainArchive
	events   *eventlog.Log
	reconn   Reconnector
	metrics  *Metrics
	retry    retry.Policy
	config   Config
	logger   *slog.Logger
	now      func() time.Time

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.RWMutex
	runs    map[uuid.UUID]*chainState
	closing bool

	storeErrors atomic.Int32
}

// New validates opts and creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	const op = "orchestrator.New"

	if opts.Graph == nil {
		return nil, domain.Errorf(domain.KindConfiguration, op, "task graph is required")
	}
	for _, id := range opts.Graph.Order() {
		if opts.Handlers[id] == nil {
			return nil, domain.Errorf(domain.KindConfiguration, op, "no handler for task %d", id)
		}
	}
	if opts.Results == nil || opts.Chains == nil {
		return nil, domain.Errorf(domain.KindConfiguration, op, "result and chain stores are required")
	}
	if opts.Events == nil {
		return nil, domain.Errorf(domain.KindConfiguration, op, "event log is required")
	}
	if opts.Admitter == nil {
		opts.Admitter = AlwaysAdmit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "orchestrator")

	policy := opts.Retry
	if policy.MaxAttempts <= 0 {
		policy = retry.Default()
	}
	if policy.Logger == nil {
		policy = policy.WithLogger(logger)
	}
	if policy.OnFailure == nil && opts.Metrics != nil {
		policy.OnFailure = opts.Metrics.RetryFailure
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		graph:      opts.Graph,
		handlers:   opts.Handlers,
		pool:       opts.Pool,
		admitter:   opts.Admitter,
		results:    opts.Results,
		chains:     opts.Chains,
		archive:    opts.Archive,
		events:     opts.Events,
		reconn:     opts.Reconnector,
		metrics:    opts.Metrics,
		retry:      policy,
		config:     opts.Config.withDefaults(),
		logger:     logger,
		now:        time.Now,
		ctx:        ctx,
		cancelFunc: cancel,
		runs:       make(map[uuid.UUID]*chainState),
	}, nil
}

// chainState is the in-memory record of one chain run.
type chainState struct {
	mu    sync.RWMutex
	chain *domain.ChainRun
	tasks map[domain.TaskID]*domain.TaskRun
	done  chan struct{}
}

func newChainState(id uuid.UUID, topic string, g *Graph, now time.Time) *chainState {
	tasks := make(map[domain.TaskID]*domain.TaskRun, g.Len())
	for _, tid := range g.Order() {
		tasks[tid] = domain.NewTaskRun(tid)
	}
	return &chainState{
		chain: domain.NewChainRun(id, topic, now),
		tasks: tasks,
		done:  make(chan struct{}),
	}
}

func (s *chainState) task(id domain.TaskID) (*domain.TaskRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

func (s *chainState) summary() *domain.ChainRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chain.Clone()
}

func (s *chainState) prerequisitesMet(def TaskDefinition) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range def.Prerequisites {
		st := s.tasks[p].Status
		if st == domain.TaskStatusCompleted {
			continue
		}
		if def.isSoft(p) && st.IsFailure() {
			continue
		}
		return false
	}
	return true
}

// StartChain registers a new chain run for topic and executes it in the
// background. Outcomes are observed through GetChainStatus, GetTaskStatus
// and the event log; only an empty topic or a shutdown is an error here.
func (o *Orchestrator) StartChain(ctx context.Context, topic string) (uuid.UUID, error) {
	const op = "orchestrator.StartChain"

	topic = strings.TrimSpace(topic)
	if topic == "" {
		return uuid.Nil, domain.Errorf(domain.KindValidation, op, "topic is required")
	}
	if len([]rune(topic)) > MaxTopicLength {
		return uuid.Nil, domain.Errorf(domain.KindValidation, op,
			"topic exceeds %d characters", MaxTopicLength)
	}

	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		return uuid.Nil, ErrShuttingDown
	}
	runID := uuid.New()
	state := newChainState(runID, topic, o.graph, o.now())
	o.runs[runID] = state
	o.wg.Add(1)
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "chain run started", "run_id", runID, "topic_length", len(topic))

	go o.runChain(state)
	return runID, nil
}

func (o *Orchestrator) runChain(state *chainState) {
	defer o.wg.Done()

	ctx := o.ctx
	runID := state.chain.RunID
	log := o.logger.With("run_id", runID)

	o.saveChain(state.summary(), log)

	order := o.graph.Order()
	release, err := o.admitter.Admit(ctx)
	if err != nil {
		log.Warn("chain run rejected", "error", redact.Error(err))
		o.skipAll(state, order, "admission rejected", log)
		o.finalize(state, domain.ChainStatusRejected, err, log)
		return
	}

	status := domain.ChainStatusCompleted
	var chainErr error
	for i, id := range order {
		if ctx.Err() != nil {
			status, chainErr = domain.ChainStatusCancelled, ErrShuttingDown
			o.skipAll(state, order[i:], "chain run cancelled", log)
			break
		}

		def, _ := o.graph.Definition(id)
		if !state.prerequisitesMet(def) {
			o.skip(state, id, "prerequisites not met", log)
			continue
		}

		final, err := o.executeTask(ctx, state, def, log)
		if ctx.Err() != nil {
			status, chainErr = domain.ChainStatusCancelled, ErrShuttingDown
			o.skipAll(state, order[i+1:], "chain run cancelled", log)
			break
		}
		if final == domain.TaskStatusFailed && def.Critical {
			status = domain.ChainStatusAborted
			chainErr = fmt.Errorf("critical task %d (%s) failed: %w", id, def.Name, err)
			log.Error("critical task failed, aborting chain run", "task_id", id)
			o.skipAll(state, order[i+1:], "chain run aborted", log)
			break
		}
	}

	release()
	o.finalize(state, status, chainErr, log)
}

// executeTask runs one task through acquire, execute, validate and record.
// The task is Processing while it waits for its class slot, so a slot that
// never frees up ends it the same way a handler failure would.
func (o *Orchestrator) executeTask(ctx context.Context, state *chainState, def TaskDefinition, log *slog.Logger) (domain.TaskStatus, error) {
	tlog := log.With("task_id", def.ID, "task", def.Name)

	state.mu.Lock()
	terr := state.tasks[def.ID].Transition(domain.TaskStatusProcessing)
	snapshot := state.tasks[def.ID].Clone()
	state.mu.Unlock()
	if terr != nil {
		tlog.Error("task could not start", "error", terr)
		return domain.TaskStatusFailed, terr
	}
	o.metrics.taskStarted()
	o.publish(state.chain.RunID, snapshot, log)
	tlog.Debug("task processing")

	start := time.Now()
	result, err := o.acquireAndInvoke(ctx, state, def, tlog)
	elapsed := time.Since(start)

	var status domain.TaskStatus
	switch {
	case err == nil:
		status = domain.TaskStatusCompleted
	case ctx.Err() != nil:
		status = domain.TaskStatusCancelled
	case def.ContinueOnFailure:
		status = domain.TaskStatusFailedContinuing
	default:
		status = domain.TaskStatusFailed
	}
	if err != nil {
		result = o.errorResult(err, elapsed)
	}
	result.DurationMillis = elapsed.Milliseconds()

	o.record(state, def, status, result, err, elapsed, tlog)
	return status, err
}

// acquireAndInvoke holds the task's class slot for the duration of the
// handler call. FanOut tasks take slots per sub-item instead.
func (o *Orchestrator) acquireAndInvoke(ctx context.Context, state *chainState, def TaskDefinition, log *slog.Logger) (domain.TaskResult, error) {
	if !def.FanOut {
		waitStart := time.Now()
		release, err := o.pool.Acquire(ctx, def.Class, o.config.AcquireTimeout)
		o.metrics.waited(def.Class, time.Since(waitStart))
		if err != nil {
			return domain.TaskResult{}, err
		}
		defer release()
	}
	return o.invoke(ctx, state, def, log)
}

type handlerOutcome struct {
	result domain.TaskResult
	err    error
}

// invoke calls the handler under the task timeout and validates its result.
func (o *Orchestrator) invoke(ctx context.Context, state *chainState, def TaskDefinition, log *slog.Logger) (domain.TaskResult, error) {
	op := "task " + def.ID.String()

	tctx, cancel := context.WithTimeout(ctx, o.config.TaskTimeout)
	defer cancel()

	tc := &TaskContext{
		RunID:          state.chain.RunID,
		Topic:          state.chain.Topic,
		TaskID:         def.ID,
		Logger:         log,
		class:          def.Class,
		pool:           o.pool,
		acquireTimeout: o.config.AcquireTimeout,
		retry:          o.retry.WithLogger(log),
		metrics:        o.metrics,
		lookup:         state.task,
		now:            o.now,
	}

	out := make(chan handlerOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- handlerOutcome{err: domain.Errorf(domain.KindUnknown, op, "handler panicked: %v", r)}
			}
		}()
		res, err := o.handlers[def.ID].Execute(tctx, tc)
		out <- handlerOutcome{result: res, err: err}
	}()

	// On timeout the handler goroutine is abandoned, and the caller releases
	// the class slot even if the handler never returns.
	var outcome handlerOutcome
	select {
	case outcome = <-out:
	case <-tctx.Done():
		outcome.err = tctx.Err()
	}

	if ctx.Err() != nil {
		return domain.TaskResult{}, ctx.Err()
	}
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return domain.TaskResult{}, domain.E(domain.KindTimeout, op,
			fmt.Errorf("exceeded execution budget of %s: %w", o.config.TaskTimeout, context.DeadlineExceeded))
	}
	if outcome.err != nil {
		if domain.KindOf(outcome.err) == domain.KindUnknown {
			return domain.TaskResult{}, domain.E(domain.KindExternalService, op, outcome.err)
		}
		return domain.TaskResult{}, outcome.err
	}
	if err := outcome.result.Validate(); err != nil {
		return domain.TaskResult{}, err
	}
	return outcome.result, nil
}

func (o *Orchestrator) errorResult(err error, elapsed time.Duration) domain.TaskResult {
	res := domain.NewErrorResult(err, o.now())
	res.Error = redact.Error(err)
	res.DurationMillis = elapsed.Milliseconds()
	return res
}

// record applies the terminal transition and persists the outcome.
func (o *Orchestrator) record(state *chainState, def TaskDefinition, status domain.TaskStatus, result domain.TaskResult, err error, elapsed time.Duration, log *slog.Logger) {
	state.mu.Lock()
	t := state.tasks[def.ID]
	if terr := t.Transition(status); terr != nil {
		state.mu.Unlock()
		log.Error("invalid task transition", "error", terr)
		return
	}
	res := result
	t.Result = &res
	switch status {
	case domain.TaskStatusCompleted:
		state.chain.Completed = append(state.chain.Completed, def.ID)
	case domain.TaskStatusSkipped:
		state.chain.Skipped = append(state.chain.Skipped, def.ID)
	default:
		state.chain.Failed = append(state.chain.Failed, def.ID)
	}
	snapshot := t.Clone()
	state.mu.Unlock()

	kind := domain.KindOf(err)
	o.metrics.taskFinished(def.ID, status, kind, elapsed, true)

	if err != nil {
		log.Warn("task failed",
			"status", status,
			"error_kind", kind.String(),
			"duration_ms", elapsed.Milliseconds(),
			"error", redact.Error(err))
	} else {
		log.Info("task completed", "duration_ms", elapsed.Milliseconds())
	}

	o.persistTask(state.chain.RunID, snapshot, log)
}

// skip marks a pending task Skipped. Tasks already past Pending are left alone.
func (o *Orchestrator) skip(state *chainState, id domain.TaskID, reason string, log *slog.Logger) {
	state.mu.Lock()
	t := state.tasks[id]
	if t.Status != domain.TaskStatusPending {
		state.mu.Unlock()
		return
	}
	_ = t.Transition(domain.TaskStatusSkipped)
	state.chain.Skipped = append(state.chain.Skipped, id)
	snapshot := t.Clone()
	state.mu.Unlock()

	o.metrics.taskFinished(id, domain.TaskStatusSkipped, domain.KindUnknown, 0, false)
	log.Debug("task skipped", "task_id", id, "reason", reason)
	o.persistTask(state.chain.RunID, snapshot, log)
}

func (o *Orchestrator) skipAll(state *chainState, ids []domain.TaskID, reason string, log *slog.Logger) {
	for _, id := range ids {
		o.skip(state, id, reason, log)
	}
}

// persistContext detaches store writes from shutdown cancellation.
func (o *Orchestrator) persistContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(o.ctx), persistTimeout)
}

func (o *Orchestrator) persistTask(runID uuid.UUID, run *domain.TaskRun, log *slog.Logger) {
	ctx, cancel := o.persistContext()
	defer cancel()

	err := o.results.SaveTaskRun(ctx, runID, run, o.config.ResultTTL)
	o.noteStoreResult(ctx, err, "save task result", log)
	o.publish(runID, run, log)
}

func (o *Orchestrator) publish(runID uuid.UUID, run *domain.TaskRun, log *slog.Logger) {
	ctx, cancel := o.persistContext()
	defer cancel()

	if _, err := o.events.PublishTask(ctx, runID, run); err != nil {
		o.noteStoreResult(ctx, err, "publish task event", log)
	}
}

func (o *Orchestrator) saveChain(chain *domain.ChainRun, log *slog.Logger) {
	ctx, cancel := o.persistContext()
	defer cancel()

	err := o.chains.SaveChain(ctx, chain, o.config.ChainTTL)
	o.noteStoreResult(ctx, err, "save chain summary", log)
}

// noteStoreResult counts consecutive connection errors and asks the
// reconnector to fail over once the threshold is reached. Only result and
// chain writes reset the count.
func (o *Orchestrator) noteStoreResult(ctx context.Context, err error, what string, log *slog.Logger) {
	if err == nil {
		o.storeErrors.Store(0)
		return
	}
	log.Error("backing store operation failed",
		"operation", what,
		"error_kind", domain.KindOf(err).String(),
		"error", redact.Error(err))

	if o.reconn == nil || !domain.IsKind(err, domain.KindConnection) {
		return
	}
	if o.storeErrors.Add(1) < int32(o.config.StoreErrorThreshold) {
		return
	}
	o.storeErrors.Store(0)
	if rerr := o.reconn.Reconnect(ctx); rerr != nil {
		log.Error("store reconnect failed", "error", redact.Error(rerr))
		return
	}
	log.Info("store reconnect completed")
}

// finalize stamps, persists and announces the chain summary.
func (o *Orchestrator) finalize(state *chainState, status domain.ChainStatus, chainErr error, log *slog.Logger) {
	state.mu.Lock()
	state.chain.Finalize(status, o.now())
	if chainErr != nil {
		state.chain.Error = redact.Error(chainErr)
	}
	summary := state.chain.Clone()
	state.mu.Unlock()

	o.saveChain(summary, log)

	ctx, cancel := o.persistContext()
	defer cancel()

	if o.archive != nil {
		if err := o.archive.ArchiveChain(ctx, summary); err != nil {
			log.Error("failed to archive chain run", "error", redact.Error(err))
		}
	}
	if _, err := o.events.PublishChain(ctx, summary); err != nil {
		o.noteStoreResult(ctx, err, "publish chain event", log)
	}
	if err := o.events.Expire(ctx, summary.RunID, o.config.ChainTTL); err != nil {
		log.Warn("failed to set event log expiry", "error", redact.Error(err))
	}

	o.metrics.chainFinished(status)
	log.Info("chain run finished",
		"status", status,
		"completed", len(summary.Completed),
		"failed", len(summary.Failed),
		"skipped", len(summary.Skipped),
		"duration_ms", summary.DurationMillis)

	close(state.done)
}

func (o *Orchestrator) lookup(runID uuid.UUID) *chainState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.runs[runID]
}

// GetTaskStatus returns the run of one task. Live runs are answered from
// memory; finished runs fall back to the result store.
func (o *Orchestrator) GetTaskStatus(ctx context.Context, runID uuid.UUID, taskID domain.TaskID) (*domain.TaskRun, error) {
	if _, ok := o.graph.Definition(taskID); !ok {
		return nil, domain.Errorf(domain.KindValidation, "orchestrator.GetTaskStatus",
			"unknown task id %d", taskID)
	}
	if state := o.lookup(runID); state != nil {
		run, _ := state.task(taskID)
		return run, nil
	}

	run, err := o.results.GetTaskRun(ctx, runID, taskID)
	if err == nil {
		return run, nil
	}
	if !store.IsNotFoundError(err) {
		return nil, err
	}
	if _, cerr := o.GetChainStatus(ctx, runID); cerr != nil {
		return nil, cerr
	}
	return nil, fmt.Errorf("%w: task %d of run %s", ErrTaskNotFound, taskID, runID)
}

// GetChainStatus returns the chain summary from memory, the chain store or
// the archive, in that order.
func (o *Orchestrator) GetChainStatus(ctx context.Context, runID uuid.UUID) (*domain.ChainRun, error) {
	if state := o.lookup(runID); state != nil {
		return state.summary(), nil
	}

	chain, err := o.chains.GetChain(ctx, runID)
	if err == nil {
		return chain, nil
	}
	if !store.IsNotFoundError(err) {
		return nil, err
	}
	if o.archive != nil {
		chain, err = o.archive.GetArchivedChain(ctx, runID)
		if err == nil {
			return chain, nil
		}
		if !store.IsNotFoundError(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
}

// Wait blocks until the run finishes or ctx ends. Unknown or swept runs
// return immediately.
func (o *Orchestrator) Wait(ctx context.Context, runID uuid.UUID) error {
	state := o.lookup(runID)
	if state == nil {
		return nil
	}
	select {
	case <-state.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveRuns returns the number of chain runs still executing.
func (o *Orchestrator) ActiveRuns() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := 0
	for _, s := range o.runs {
		select {
		case <-s.done:
		default:
			n++
		}
	}
	return n
}

// Sweep drops finished runs older than the retention window from memory and
// returns how many were dropped. Their state stays readable from the stores.
func (o *Orchestrator) Sweep(now time.Time) int {
	cutoff := now.Add(-o.config.Retention)

	o.mu.Lock()
	defer o.mu.Unlock()
	dropped := 0
	for id, s := range o.runs {
		s.mu.RLock()
		ended := s.chain.EndedAt
		s.mu.RUnlock()
		if ended != nil && ended.Before(cutoff) {
			delete(o.runs, id)
			dropped++
		}
	}
	return dropped
}

// Schedule registers the in-memory retention sweep.
func (o *Orchestrator) Schedule(s *scheduler.Scheduler) error {
	return s.Every("chain-retention", o.config.SweepInterval, func(context.Context) {
		if n := o.Sweep(o.now()); n > 0 {
			o.logger.Debug("swept finished chain runs", "count", n)
		}
	})
}

// Shutdown stops scheduling new tasks, cancels in-flight ones and waits for
// every run to record its final state, or for ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		return nil
	}
	o.closing = true
	o.mu.Unlock()

	o.logger.Info("orchestrator shutting down", "active_runs", o.ActiveRuns())
	o.cancelFunc()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info("orchestrator stopped")
		return nil
	case <-ctx.Done():
		o.logger.Warn("orchestrator shutdown grace period exceeded", "active_runs", o.ActiveRuns())
		return fmt.Errorf("orchestrator shutdown: %w", ctx.Err())
	}
}
