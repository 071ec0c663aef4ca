package lock

import "context"

// DistributedLockManager serialises one-off maintenance work (migrations)
// across processes. Job claims never take this lock.
type DistributedLockManager interface {
	WithLock(ctx context.Context, lockID int, fn func(ctx context.Context) error) error
}

// NoopLockManager runs fn directly. Used by single-process stores such as SQLite.
type NoopLockManager struct{}

func (NoopLockManager) WithLock(ctx context.Context, _ int, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
