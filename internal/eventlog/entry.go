package eventlog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/reelchain/internal/domain"
)

// Kind distinguishes entry types on the stream.
type Kind string

// Entry kinds.
const (
	KindTask      Kind = "task"
	KindChain     Kind = "chain"
	KindHeartbeat Kind = "heartbeat"
)

// Entry is one published outcome. SequenceID is assigned by the backend and
// increases monotonically within a run. Heartbeats carry the subscriber's
// cursor as their SequenceID and are never stored.
type Entry struct {
	SequenceID uint64          `json:"sequence_id"`
	RunID      uuid.UUID       `json:"run_id"`
	Kind       Kind            `json:"kind"`
	TaskID     domain.TaskID   `json:"task_id,omitempty"`
	Status     string          `json:"status"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// IsHeartbeat reports whether the entry is synthetic.
func (e Entry) IsHeartbeat() bool {
	return e.Kind == KindHeartbeat
}
