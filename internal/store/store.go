package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/reelchain/internal/domain"
)

// TaskResultStore caches terminal task runs keyed by (run, task).
type TaskResultStore interface {
	// SaveTaskRun stores the run with the given time-to-live.
	SaveTaskRun(ctx context.Context, runID uuid.UUID, run *domain.TaskRun, ttl time.Duration) error

	// GetTaskRun returns ErrTaskResultNotFound when absent or expired.
	GetTaskRun(ctx context.Context, runID uuid.UUID, taskID domain.TaskID) (*domain.TaskRun, error)
}

// ChainStore keeps the last-known summary of each chain run.
type ChainStore interface {
	SaveChain(ctx context.Context, chain *domain.ChainRun, ttl time.Duration) error

	// GetChain returns ErrRunNotFound when absent.
	GetChain(ctx context.Context, runID uuid.UUID) (*domain.ChainRun, error)
}

// AudioStore keeps synthesized audio bytes outside the result log.
type AudioStore interface {
	SaveAudio(ctx context.Context, runID uuid.UUID, audio []byte, ttl time.Duration) (key string, err error)

	// GetAudio returns ErrAudioNotFound when absent.
	GetAudio(ctx context.Context, runID uuid.UUID) ([]byte, error)
}

// CredentialStore persists sealed credential blobs by name.
type CredentialStore interface {
	SaveCredentials(ctx context.Context, sealed map[string][]byte) error

	// LoadCredentials returns ErrCredentialsNotFound when none are stored.
	LoadCredentials(ctx context.Context) (map[string][]byte, error)
}

// ChainArchive is durable, append-only storage of finalized chain runs.
type ChainArchive interface {
	ArchiveChain(ctx context.Context, chain *domain.ChainRun) error

	// GetArchivedChain returns ErrRunNotFound when absent.
	GetArchivedChain(ctx context.Context, runID uuid.UUID) (*domain.ChainRun, error)
}
