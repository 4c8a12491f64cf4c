package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/platform/postgres"
	"github.com/phrazzld/reelchain/internal/store"
	"github.com/phrazzld/reelchain/internal/testdb"
)

func TestChainArchive_Integration(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		archive := postgres.NewChainArchive(tx)

		start := time.Now().UTC().Truncate(time.Millisecond)
		chain := domain.NewChainRun(uuid.New(), "glaciers", start)
		chain.Completed = []domain.TaskID{1, 2, 3, 4, 5, 6, 7, 9, 10, 11}
		chain.Failed = []domain.TaskID{8}
		chain.Finalize(domain.ChainStatusCompleted, start.Add(3*time.Minute))

		t.Run("archive and read back", func(t *testing.T) {
			require.NoError(t, archive.ArchiveChain(ctx, chain))

			got, err := archive.GetArchivedChain(ctx, chain.RunID)
			require.NoError(t, err)
			assert.Equal(t, chain.Topic, got.Topic)
			assert.Equal(t, chain.Status, got.Status)
			assert.Equal(t, chain.Completed, got.Completed)
			assert.Equal(t, chain.Failed, got.Failed)
			assert.Equal(t, []domain.TaskID{}, got.Skipped)
			assert.Equal(t, chain.DurationMillis, got.DurationMillis)
			require.NotNil(t, got.EndedAt)
			assert.True(t, chain.EndedAt.Equal(*got.EndedAt))
		})

		t.Run("archive is idempotent per run", func(t *testing.T) {
			chain.Error = "updated"
			require.NoError(t, archive.ArchiveChain(ctx, chain))

			got, err := archive.GetArchivedChain(ctx, chain.RunID)
			require.NoError(t, err)
			assert.Equal(t, "updated", got.Error)
		})

		t.Run("missing run", func(t *testing.T) {
			_, err := archive.GetArchivedChain(ctx, uuid.New())
			assert.ErrorIs(t, err, store.ErrRunNotFound)
		})
	})
}
