package store

import (
	"context"
	"time"

	"github.com/RezaEskandarii/tickqueue/internal/state"
	"github.com/RezaEskandarii/tickqueue/types"
)

// JobStore defines the durable job table. It is the only source of truth for
// job state; every status change is a conditional write guarded by the
// expected current status.
type JobStore interface {
	// Insert persists a new pending job.
	Insert(ctx context.Context, job *types.Job) error

	// FindByID returns custom_errors.ErrJobNotFound for unknown ids.
	FindByID(ctx context.Context, id string) (*types.Job, error)

	// ClaimNextJob moves the best eligible pending job to processing and returns it.
	// Eligible means status pending and next_retry_at <= now; best means highest
	// priority, then oldest created_at. Returns nil, nil when nothing is eligible.
	ClaimNextJob(ctx context.Context, now time.Time) (*types.Job, error)

	// Complete marks a processing job completed. Calling it on an already completed
	// job is a no-op that returns false.
	Complete(ctx context.Context, id string, now time.Time) (bool, error)

	// Retry returns a processing job to pending, eligible again at nextRetryAt.
	Retry(ctx context.Context, id string, errMsg string, nextRetryAt time.Time) error

	// Fail dead-letters a processing job.
	Fail(ctx context.Context, id string, errMsg string, now time.Time) error

	// Cancel moves a pending job to cancelled.
	Cancel(ctx context.Context, id string, now time.Time) error

	// RecoverStale re-queues processing jobs whose started_at is older than
	// startedBefore, or dead-letters them when their attempts are used up.
	RecoverStale(ctx context.Context, startedBefore, now time.Time) (int64, error)

	// CountByStatus returns job counts for every status, zero-filled.
	CountByStatus(ctx context.Context) (map[state.JobStatus]int, error)

	Ping(ctx context.Context) error

	// Close closes the database
	Close() error
}

// StaleJobMessage is recorded on jobs recovered from a stuck processing state.
const StaleJobMessage = "job exceeded processing time limit and was recovered"
