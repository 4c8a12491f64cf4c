package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/store"
)

// PostgreSQL error codes
const (
	checkViolationCode   = "23514"
	notNullViolationCode = "23502"
)

// MapError maps a database error to a store or classified domain error.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrRunNotFound
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case checkViolationCode:
			return domain.Errorf(domain.KindValidation, "postgres",
				"check constraint violation (%s): %w", pgErr.ConstraintName, err)
		case notNullViolationCode:
			return domain.Errorf(domain.KindValidation, "postgres",
				"not null violation (%s): %w", pgErr.ColumnName, err)
		}
		return fmt.Errorf("database error %s: %w", pgErr.Code, err)
	}

	return domain.E(domain.KindConnection, "postgres", err)
}
