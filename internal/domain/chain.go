package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChainStatus represents the state of a chain run.
type ChainStatus string

// Chain status values.
const (
	ChainStatusRunning   ChainStatus = "running"
	ChainStatusCompleted ChainStatus = "completed"
	ChainStatusAborted   ChainStatus = "aborted"
	ChainStatusRejected  ChainStatus = "rejected"
	ChainStatusCancelled ChainStatus = "cancelled"
)

// IsFinal reports whether the chain run has stopped.
func (s ChainStatus) IsFinal() bool {
	return s != ChainStatusRunning && s != ""
}

// ChainRun summarizes one end-to-end pipeline execution.
// It is finalized and persisted once, then read-only.
type ChainRun struct {
	RunID          uuid.UUID   `json:"run_id"`
	Topic          string      `json:"topic"`
	Status         ChainStatus `json:"status"`
	StartedAt      time.Time   `json:"started_at"`
	EndedAt        *time.Time  `json:"ended_at,omitempty"`
	Completed      []TaskID    `json:"completed"`
	Failed         []TaskID    `json:"failed"`
	Skipped        []TaskID    `json:"skipped"`
	DurationMillis int64       `json:"duration_ms"`
	Error          string      `json:"error,omitempty"`
}

// NewChainRun creates a running chain run for topic.
func NewChainRun(id uuid.UUID, topic string, now time.Time) *ChainRun {
	return &ChainRun{
		RunID:     id,
		Topic:     topic,
		Status:    ChainStatusRunning,
		StartedAt: now.UTC(),
		Completed: []TaskID{},
		Failed:    []TaskID{},
		Skipped:   []TaskID{},
	}
}

// Finalize stamps the end time and total duration.
func (c *ChainRun) Finalize(status ChainStatus, now time.Time) {
	end := now.UTC()
	c.Status = status
	c.EndedAt = &end
	c.DurationMillis = end.Sub(c.StartedAt).Milliseconds()
}

// Clone returns a deep copy of the chain run.
func (c *ChainRun) Clone() *ChainRun {
	cp := *c
	cp.Completed = append([]TaskID{}, c.Completed...)
	cp.Failed = append([]TaskID{}, c.Failed...)
	cp.Skipped = append([]TaskID{}, c.Skipped...)
	if c.EndedAt != nil {
		end := *c.EndedAt
		cp.EndedAt = &end
	}
	return &cp
}
