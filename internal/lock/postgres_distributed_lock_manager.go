package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const lockTimeout = 30 * time.Second

type PostgresDistributedLockManager struct {
	db *sql.DB
}

func NewPostgresDistributedLockManager(db *sql.DB) *PostgresDistributedLockManager {
	return &PostgresDistributedLockManager{
		db: db,
	}
}

// WithLock holds a session-level advisory lock on a single pooled connection
// for the duration of fn, so lock and unlock run on the same session.
func (l *PostgresDistributedLockManager) WithLock(ctx context.Context, lockID int, fn func(ctx context.Context) error) error {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer conn.Close()

	acquireCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	if _, err := conn.ExecContext(acquireCtx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	fnErr := fn(ctx)

	releaseCtx, cancelRelease := context.WithTimeout(context.Background(), lockTimeout)
	defer cancelRelease()
	if _, err := conn.ExecContext(releaseCtx, "SELECT pg_advisory_unlock($1)", lockID); err != nil && fnErr == nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return fnErr
}
