package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/store"
)

// DBTX is the subset of *sql.DB and *sql.Tx used by the archive.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ChainArchive implements store.ChainArchive.
type ChainArchive struct {
	db DBTX
}

var _ store.ChainArchive = (*ChainArchive)(nil)

// NewChainArchive creates an archive over db.
func NewChainArchive(db DBTX) *ChainArchive {
	return &ChainArchive{db: db}
}

// ArchiveChain upserts a finalized chain summary.
func (a *ChainArchive) ArchiveChain(ctx context.Context, chain *domain.ChainRun) error {
	completed, failed, skipped, err := encodeIDLists(chain)
	if err != nil {
		return store.NewStoreError("chain_archive", "archive", "encode", err)
	}

	const query = `
		INSERT INTO chain_runs (run_id, topic, status, started_at, ended_at,
			completed, failed, skipped, duration_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			ended_at = EXCLUDED.ended_at,
			completed = EXCLUDED.completed,
			failed = EXCLUDED.failed,
			skipped = EXCLUDED.skipped,
			duration_ms = EXCLUDED.duration_ms,
			error = EXCLUDED.error,
			archived_at = NOW()
	`

	var endedAt sql.NullTime
	if chain.EndedAt != nil {
		endedAt = sql.NullTime{Time: *chain.EndedAt, Valid: true}
	}

	_, err = a.db.ExecContext(ctx, query,
		chain.RunID,
		chain.Topic,
		string(chain.Status),
		chain.StartedAt,
		endedAt,
		completed,
		failed,
		skipped,
		chain.DurationMillis,
		chain.Error,
	)
	if err != nil {
		return store.NewStoreError("chain_archive", "archive", "insert chain run", MapError(err))
	}
	return nil
}

// GetArchivedChain reads one archived summary.
func (a *ChainArchive) GetArchivedChain(ctx context.Context, runID uuid.UUID) (*domain.ChainRun, error) {
	const query = `
		SELECT topic, status, started_at, ended_at, completed, failed, skipped, duration_ms, error
		FROM chain_runs
		WHERE run_id = $1
	`

	chain := &domain.ChainRun{RunID: runID}
	var (
		status                     string
		endedAt                    sql.NullTime
		completed, failed, skipped []byte
	)
	err := a.db.QueryRowContext(ctx, query, runID).Scan(
		&chain.Topic,
		&status,
		&chain.StartedAt,
		&endedAt,
		&completed,
		&failed,
		&skipped,
		&chain.DurationMillis,
		&chain.Error,
	)
	if err != nil {
		mapped := MapError(err)
		if store.IsNotFoundError(mapped) {
			return nil, mapped
		}
		return nil, store.NewStoreError("chain_archive", "get", "select chain run", mapped)
	}

	chain.Status = domain.ChainStatus(status)
	chain.StartedAt = chain.StartedAt.UTC()
	if endedAt.Valid {
		end := endedAt.Time.UTC()
		chain.EndedAt = &end
	}
	for _, pair := range []struct {
		raw []byte
		dst *[]domain.TaskID
	}{{completed, &chain.Completed}, {failed, &chain.Failed}, {skipped, &chain.Skipped}} {
		*pair.dst = []domain.TaskID{}
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return nil, store.NewStoreError("chain_archive", "get", "decode id list", err)
		}
	}
	return chain, nil
}

func encodeIDLists(c *domain.ChainRun) (completed, failed, skipped []byte, err error) {
	if completed, err = json.Marshal(nonNil(c.Completed)); err != nil {
		return nil, nil, nil, fmt.Errorf("completed: %w", err)
	}
	if failed, err = json.Marshal(nonNil(c.Failed)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed: %w", err)
	}
	if skipped, err = json.Marshal(nonNil(c.Skipped)); err != nil {
		return nil, nil, nil, fmt.Errorf("skipped: %w", err)
	}
	return completed, failed, skipped, nil
}

func nonNil(ids []domain.TaskID) []domain.TaskID {
	if ids == nil {
		return []domain.TaskID{}
	}
	return ids
}
