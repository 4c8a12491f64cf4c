package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/retry"
)

// Handler performs the external work of one task.
type Handler interface {
	Execute(ctx context.Context, tc *TaskContext) (domain.TaskResult, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, tc *TaskContext) (domain.TaskResult, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, tc *TaskContext) (domain.TaskResult, error) {
	return f(ctx, tc)
}

// HandlerTable maps each task id to its handler. It is built once at
// startup and must cover every task of the graph.
type HandlerTable map[domain.TaskID]Handler

// TaskContext is what a handler knows about its run.
type TaskContext struct {
	RunID  uuid.UUID
	Topic  string
	TaskID domain.TaskID
	Logger *slog.Logger

	class          ResourceClass
	pool           *ResourcePool
	acquireTimeout time.Duration
	retry          retry.Policy
	metrics        *Metrics
	lookup         func(domain.TaskID) (*domain.TaskRun, bool)
	now            func() time.Time
}

// Result returns the result of an earlier task in the same run. ok is false
// unless that task completed.
func (tc *TaskContext) Result(id domain.TaskID) (domain.TaskResult, bool) {
	run, ok := tc.lookup(id)
	if !ok || run.Status != domain.TaskStatusCompleted || run.Result == nil {
		return domain.TaskResult{}, false
	}
	return *run.Result, true
}

// Decode unmarshals the content of a completed earlier task into v.
// A missing result is a validation error.
func (tc *TaskContext) Decode(id domain.TaskID, v any) error {
	res, ok := tc.Result(id)
	if !ok {
		return domain.Errorf(domain.KindValidation, "task "+tc.TaskID.String(),
			"result of task %d is not available", id)
	}
	return res.DecodeContent(v)
}

// Retry is the policy handlers use for external calls.
func (tc *TaskContext) Retry() retry.Policy {
	return tc.retry
}

// Success builds a success result stamped with the orchestrator clock.
func (tc *TaskContext) Success(content any) (domain.TaskResult, error) {
	return domain.NewSuccessResult(content, tc.now())
}

// TaskContextOptions configures a TaskContext built outside a chain run.
type TaskContextOptions struct {
	RunID          uuid.UUID
	Topic          string
	TaskID         domain.TaskID
	Class          ResourceClass
	Pool           *ResourcePool
	AcquireTimeout time.Duration
	Retry          retry.Policy
	Logger         *slog.Logger
	Results        map[domain.TaskID]*domain.TaskRun
	Now            func() time.Time
}

// NewTaskContext builds a standalone TaskContext, for tools and tests.
func NewTaskContext(o TaskContextOptions) *TaskContext {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	results := o.Results
	return &TaskContext{
		RunID:          o.RunID,
		Topic:          o.Topic,
		TaskID:         o.TaskID,
		Logger:         o.Logger,
		class:          o.Class,
		pool:           o.Pool,
		acquireTimeout: o.AcquireTimeout,
		retry:          o.Retry,
		lookup: func(id domain.TaskID) (*domain.TaskRun, bool) {
			r, ok := results[id]
			return r, ok
		},
		now: o.Now,
	}
}
