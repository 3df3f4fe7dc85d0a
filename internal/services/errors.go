package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound means the user has no ledger record and must register first.
	ErrUserNotFound = errors.New("user not found")
	// ErrLimitReached means the daily quota is spent; it clears on the next calendar day.
	ErrLimitReached = errors.New("limit reached")
	// ErrExternalIDTaken means the external id is already bound to another user.
	ErrExternalIDTaken = errors.New("external id already bound to another user")
	// ErrStoreUnavailable wraps connection, pool and timeout failures of the store.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrInvalidLimit      = errors.New("limit must be positive")
	ErrInvalidExternalID = errors.New("external id must not be empty")
)

func storeError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: timed out: %w", ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
