package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/eventlog"
	"github.com/phrazzld/reelchain/internal/platform/redisconn"
	"github.com/phrazzld/reelchain/internal/service/credentials"
)

// ChainService starts chain runs and reports their progress.
type ChainService interface {
	StartChain(ctx context.Context, topic string) (uuid.UUID, error)
	GetChainStatus(ctx context.Context, runID uuid.UUID) (*domain.ChainRun, error)
	GetTaskStatus(ctx context.Context, runID uuid.UUID, taskID domain.TaskID) (*domain.TaskRun, error)
}

// EventSource serves cursor polls of a run's event log.
type EventSource interface {
	Poll(ctx context.Context, runID uuid.UUID, cursor uint64) ([]eventlog.Entry, error)
}

// AudioSource returns synthesized narration.
type AudioSource interface {
	GetAudio(ctx context.Context, runID uuid.UUID) ([]byte, error)
}

// Configurer installs API credentials.
type Configurer interface {
	Configure(ctx context.Context, c credentials.Credentials) error
}

// StoreStatus reports on the backing-store instances.
type StoreStatus interface {
	ActiveName() string
	Status() []redisconn.InstanceStatus
	Ping(ctx context.Context) error
}

// CreateChainRequest is the body of POST /api/chains.
type CreateChainRequest struct {
	Topic string `json:"topic" validate:"required,max=2000"`
}

// CreateChainResponse is returned when a run is accepted.
type CreateChainResponse struct {
	RunID  uuid.UUID          `json:"run_id"`
	Status domain.ChainStatus `json:"status"`
}

// TaskStatusResponse is the body of GET /api/chains/{runID}/tasks/{taskID}.
type TaskStatusResponse struct {
	RunID  uuid.UUID          `json:"run_id"`
	TaskID domain.TaskID      `json:"task_id"`
	Status domain.TaskStatus  `json:"status"`
	Result *domain.TaskResult `json:"result"`
}

// ConfigureRequest is the body of POST /api/configure.
type ConfigureRequest struct {
	GeminiAPIKey     string `json:"gemini_api_key" validate:"required"`
	ElevenLabsAPIKey string `json:"elevenlabs_api_key" validate:"required"`
	VoiceID          string `json:"voice_id" validate:"required"`
}

// StoreHealthResponse is the body of GET /health/store.
type StoreHealthResponse struct {
	Status    string                     `json:"status"`
	Active    string                     `json:"active"`
	Error     string                     `json:"error,omitempty"`
	Instances []redisconn.InstanceStatus `json:"instances"`
}
