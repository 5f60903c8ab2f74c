package service

import (
	"errors"
	"fmt"

	"pix-wallet-service/pkg/apperror"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the mutation paths react to.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return pgCode(err) == pgUniqueViolation }

func isSerializationFailure(err error) bool {
	code := pgCode(err)
	return code == pgSerializationFailure || code == pgDeadlockDetected
}

// pgMutationError classifies a write failure: unique violations mean a
// concurrent writer won the row, serialization aborts are retriable,
// everything else is unexpected.
func pgMutationError(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	switch {
	case isSerializationFailure(err):
		return apperror.ErrTransientConflict(wrapped)
	case isUniqueViolation(err):
		return apperror.ErrDataIntegrityViolation(wrapped)
	default:
		return apperror.InternalError(wrapped)
	}
}
