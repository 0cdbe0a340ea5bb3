package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	pqLockNotAvailable = "55P03"
	pqQueryCanceled    = "57014"
	pqCheckViolation   = "23514"
	pqUniqueViolation  = "23505"
)

// SetLockTimeout bounds how long statements in tx wait for row locks. The
// setting is local to the transaction.
func SetLockTimeout(ctx context.Context, tx *sql.Tx, d time.Duration) error {
	_, err := tx.ExecContext(ctx,
		`SELECT set_config('lock_timeout', $1, true)`, lockTimeoutSetting(d),
	)
	if err != nil {
		return fmt.Errorf("SetLockTimeout: %w", err)
	}
	return nil
}

// lockTimeoutSetting rounds up to whole milliseconds. "0ms" would disable the
// timeout, so anything shorter becomes 1ms.
func lockTimeoutSetting(d time.Duration) string {
	ms := int64((d + time.Millisecond - 1) / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("%dms", ms)
}

// Classify translates Postgres failures into domain errors. A cancelled
// caller context wins over the lock-timeout code pq reports for it.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqLockNotAvailable, pqQueryCanceled:
		return fmt.Errorf("%w: %w", domain.ErrRetryLater, err)
	case pqCheckViolation:
		return fmt.Errorf("%w: %w", domain.ErrInvariantViolation, err)
	case pqUniqueViolation:
		return fmt.Errorf("%w: %w", domain.ErrVersionConflict, err)
	}
	return err
}
