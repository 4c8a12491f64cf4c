package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/store"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, MapError(nil))
	})

	t.Run("no rows", func(t *testing.T) {
		err := MapError(fmt.Errorf("scan: %w", sql.ErrNoRows))
		assert.ErrorIs(t, err, store.ErrRunNotFound)
	})

	t.Run("check violation", func(t *testing.T) {
		err := MapError(&pgconn.PgError{Code: checkViolationCode, ConstraintName: "chain_runs_status_check"})
		assert.True(t, domain.IsKind(err, domain.KindValidation))
		assert.Contains(t, err.Error(), "chain_runs_status_check")
	})

	t.Run("not null violation", func(t *testing.T) {
		err := MapError(&pgconn.PgError{Code: notNullViolationCode, ColumnName: "topic"})
		assert.True(t, domain.IsKind(err, domain.KindValidation))
	})

	t.Run("other pg error keeps code", func(t *testing.T) {
		err := MapError(&pgconn.PgError{Code: "42P01"})
		assert.Contains(t, err.Error(), "42P01")
		assert.Equal(t, domain.KindUnknown, domain.KindOf(err))
	})

	t.Run("context errors pass through", func(t *testing.T) {
		assert.ErrorIs(t, MapError(context.Canceled), context.Canceled)
	})

	t.Run("transport errors are connection errors", func(t *testing.T) {
		err := MapError(errors.New("dial tcp: connection refused"))
		assert.True(t, domain.IsKind(err, domain.KindConnection))
	})
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	n, err := MigrationCount()
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
