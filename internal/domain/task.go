package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TaskID identifies a node of the task graph.
type TaskID int

func (id TaskID) String() string {
	return strconv.Itoa(int(id))
}

// ParseTaskID parses a decimal task identifier.
func ParseTaskID(s string) (TaskID, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, Errorf(KindValidation, "domain.ParseTaskID", "invalid task id %q", s)
	}
	return TaskID(n), nil
}

// TaskStatus represents the execution state of one task within a chain run.
type TaskStatus string

// Task status values.
const (
	TaskStatusPending          TaskStatus = "pending"
	TaskStatusProcessing       TaskStatus = "processing"
	TaskStatusCompleted        TaskStatus = "completed"
	TaskStatusFailed           TaskStatus = "failed"
	TaskStatusFailedContinuing TaskStatus = "failed_continuing"
	TaskStatusCancelled        TaskStatus = "cancelled"
	TaskStatusSkipped          TaskStatus = "skipped"
)

// allowedTransitions lists every permitted status change. A task only
// fails after it has started processing.
var allowedTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending: {
		TaskStatusProcessing,
		TaskStatusSkipped,
	},
	TaskStatusProcessing: {
		TaskStatusCompleted,
		TaskStatusFailed,
		TaskStatusFailedContinuing,
		TaskStatusCancelled,
	},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to TaskStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status is final.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusFailedContinuing,
		TaskStatusCancelled, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// IsFailure reports whether the status records a failed execution.
func (s TaskStatus) IsFailure() bool {
	return s == TaskStatusFailed || s == TaskStatusFailedContinuing
}

// ResultStatusSuccess is the only result status accepted as a completed task.
const ResultStatusSuccess = "success"

// ResultStatusError marks a result record describing a failure.
const ResultStatusError = "error"

// TaskResult is the outcome payload of a task execution.
type TaskResult struct {
	Status         string          `json:"status"`
	Content        json.RawMessage `json:"content,omitempty"`
	Error          string          `json:"error,omitempty"`
	ErrorKind      string          `json:"error_kind,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	DurationMillis int64           `json:"duration_ms"`
}

// NewSuccessResult marshals content into a success result stamped with now.
func NewSuccessResult(content any, now time.Time) (TaskResult, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return TaskResult{}, E(KindValidation, "domain.NewSuccessResult", err)
	}
	return TaskResult{
		Status:    ResultStatusSuccess,
		Content:   raw,
		Timestamp: now.UTC(),
	}, nil
}

// NewErrorResult records err as a failed result.
func NewErrorResult(err error, now time.Time) TaskResult {
	return TaskResult{
		Status:    ResultStatusError,
		Error:     err.Error(),
		ErrorKind: KindOf(err).String(),
		Timestamp: now.UTC(),
	}
}

// Validate checks the shape required of a successful task result.
func (r TaskResult) Validate() error {
	const op = "domain.TaskResult.Validate"
	if r.Status != ResultStatusSuccess {
		return Errorf(KindValidation, op, "result status %q is not %q", r.Status, ResultStatusSuccess)
	}
	trimmed := bytes.TrimSpace(r.Content)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Errorf(KindValidation, op, "result content is empty")
	}
	if !json.Valid(trimmed) {
		return Errorf(KindValidation, op, "result content is not valid JSON")
	}
	if r.Timestamp.IsZero() {
		return Errorf(KindValidation, op, "result timestamp is missing")
	}
	return nil
}

// DecodeContent unmarshals the result content into v.
func (r TaskResult) DecodeContent(v any) error {
	if len(r.Content) == 0 {
		return Errorf(KindValidation, "domain.TaskResult.DecodeContent", "result has no content")
	}
	if err := json.Unmarshal(r.Content, v); err != nil {
		return E(KindValidation, "domain.TaskResult.DecodeContent", err)
	}
	return nil
}

// TaskRun is one task's execution within a chain run.
type TaskRun struct {
	TaskID    TaskID      `json:"task_id"`
	Status    TaskStatus  `json:"status"`
	Result    *TaskResult `json:"result"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NewTaskRun creates a pending task run.
func NewTaskRun(id TaskID) *TaskRun {
	return &TaskRun{
		TaskID:    id,
		Status:    TaskStatusPending,
		UpdatedAt: time.Now().UTC(),
	}
}

// Transition moves the task to a new status.
// Returns ErrInvalidTransition if the change is not permitted.
func (r *TaskRun) Transition(to TaskStatus) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("%w: task %d %s -> %s", ErrInvalidTransition, r.TaskID, r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone returns a copy that shares no mutable state with r.
func (r *TaskRun) Clone() *TaskRun {
	c := *r
	if r.Result != nil {
		res := *r.Result
		res.Content = append(json.RawMessage(nil), r.Result.Content...)
		c.Result = &res
	}
	return &c
}
