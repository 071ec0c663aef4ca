package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/tickqueue/custom_errors"
	"github.com/RezaEskandarii/tickqueue/internal/backoff"
	"github.com/RezaEskandarii/tickqueue/internal/constants"
	"github.com/RezaEskandarii/tickqueue/internal/middleware"
	"github.com/RezaEskandarii/tickqueue/internal/registry"
	"github.com/RezaEskandarii/tickqueue/internal/state"
	"github.com/RezaEskandarii/tickqueue/internal/store"
	"github.com/RezaEskandarii/tickqueue/types"
	"github.com/google/uuid"
)

// JobQueueManager glues the claim protocol to the handler registry and owns
// the completion, retry and dead-letter bookkeeping.
type JobQueueManager struct {
	store    store.JobStore
	registry *registry.Registry
	backoff  backoff.Strategy
	now      func() time.Time
	logger   *slog.Logger
	mws      []middleware.Middleware
	chain    middleware.Middleware
}

type ManagerOption func(*JobQueueManager)

// WithClock replaces time.Now. Every timestamp the manager writes comes from it.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *JobQueueManager) { m.now = now }
}

func WithBackoff(strategy backoff.Strategy) ManagerOption {
	return func(m *JobQueueManager) { m.backoff = strategy }
}

func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *JobQueueManager) { m.logger = logger }
}

// WithMiddleware wraps every handler call. Panic recovery always runs
// innermost, so middleware observe a panic as an ordinary error.
func WithMiddleware(mws ...middleware.Middleware) ManagerOption {
	return func(m *JobQueueManager) { m.mws = append(m.mws, mws...) }
}

func NewJobQueueManager(jobStore store.JobStore, reg *registry.Registry, opts ...ManagerOption) *JobQueueManager {
	m := &JobQueueManager{
		store:    jobStore,
		registry: reg,
		backoff: backoff.NewExponentialWithJitter(
			constants.DefaultBackoffBase,
			constants.DefaultBackoffMax,
			constants.DefaultBackoffJitter,
		),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.chain = middleware.Chain(append(m.mws, middleware.Recover(m.logger))...)
	return m
}

// Enqueue validates payload and stores a pending job. It returns as soon as the
// row is written.
func (m *JobQueueManager) Enqueue(ctx context.Context, payload types.Payload, opts types.JobOptions) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("%w: nil payload", custom_errors.ErrInvalidPayload)
	}
	if err := payload.Validate(); err != nil {
		return "", fmt.Errorf("%w: %s: %v", custom_errors.ErrInvalidPayload, payload.JobType(), err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", custom_errors.ErrInvalidPayload, err)
	}

	now := m.now()
	job := &types.Job{
		ID:          uuid.NewString(),
		Type:        payload.JobType(),
		Payload:     raw,
		Status:      state.StatusPending,
		Priority:    opts.Priority,
		MaxAttempts: opts.MaxAttempts,
		NextRetryAt: now,
		CreatedAt:   now,
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = constants.MaxRetryAttempt
	}
	if !opts.RunAt.IsZero() {
		job.NextRetryAt = opts.RunAt
	}
	if opts.CreatedBy != "" {
		job.CreatedBy = sql.NullString{String: opts.CreatedBy, Valid: true}
	}

	if err := m.store.Insert(ctx, job); err != nil {
		return "", &custom_errors.StoreError{Operation: "insert", Err: err}
	}

	m.logger.Debug("job enqueued",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
		slog.Int("priority", job.Priority),
	)
	return job.ID, nil
}

// EnqueueRaw resolves jobType's payload shape from raw JSON before enqueueing.
func (m *JobQueueManager) EnqueueRaw(ctx context.Context, jobType string, raw json.RawMessage, opts types.JobOptions) (string, error) {
	payload, err := types.DecodePayload(jobType, raw)
	if err != nil {
		return "", err
	}
	return m.Enqueue(ctx, payload, opts)
}

// ProcessNextJob claims one eligible job and runs it to an outcome. It returns
// nil, nil when nothing is eligible. A returned error means the store failed;
// handler failures are recorded on the job instead.
func (m *JobQueueManager) ProcessNextJob(ctx context.Context) (*types.Job, error) {
	job, err := m.store.ClaimNextJob(ctx, m.now())
	if err != nil {
		return nil, &custom_errors.StoreError{Operation: "claim", Err: err}
	}
	if job == nil {
		return nil, nil
	}

	execErr := m.execute(ctx, job)
	done := m.now()

	if execErr == nil {
		completed, err := m.store.Complete(ctx, job.ID, done)
		if err != nil {
			return job, &custom_errors.StoreError{Operation: "complete", Err: err}
		}
		if !completed {
			m.logger.Warn("job was already completed", slog.String("job_id", job.ID))
		}
		job.Status = state.StatusCompleted
		job.CompletedAt = &done
		return job, nil
	}

	if err := m.failJob(ctx, job, execErr, done); err != nil {
		return job, err
	}
	return job, nil
}

func (m *JobQueueManager) execute(ctx context.Context, job *types.Job) error {
	handler, ok := m.registry.Get(job.Type)
	if !ok {
		return &custom_errors.HandlerNotFoundError{JobType: job.Type}
	}

	_, err := m.chain(ctx, job, func(ctx context.Context) (any, error) {
		return handler(ctx, job.Payload)
	})
	return err
}

// failJob retries job with backoff while it has attempts left and the error is
// retryable, otherwise it dead-letters it.
func (m *JobQueueManager) failJob(ctx context.Context, job *types.Job, execErr error, now time.Time) error {
	msg := execErr.Error()
	job.ErrorMessage = sql.NullString{String: msg, Valid: true}

	if custom_errors.IsRetryable(execErr) && job.Attempts < job.MaxAttempts {
		next := now.Add(m.backoff.Delay(job.Attempts))
		if err := m.store.Retry(ctx, job.ID, msg, next); err != nil {
			return &custom_errors.StoreError{Operation: "retry", Err: err}
		}
		job.Status = state.StatusPending
		job.NextRetryAt = next

		m.logger.Warn("job scheduled for retry",
			slog.String("job_id", job.ID),
			slog.Int("attempt", job.Attempts),
			slog.Time("next_retry_at", next),
		)
		return nil
	}

	if err := m.store.Fail(ctx, job.ID, msg, now); err != nil {
		return &custom_errors.StoreError{Operation: "fail", Err: err}
	}
	job.Status = state.StatusFailed
	job.CompletedAt = &now

	m.logger.Error("job dead-lettered",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
		slog.Int("attempts", job.Attempts),
		slog.Bool("retryable", custom_errors.IsRetryable(execErr)),
	)
	return nil
}

func (m *JobQueueManager) GetStats(ctx context.Context) (types.Stats, error) {
	counts, err := m.store.CountByStatus(ctx)
	if err != nil {
		return nil, &custom_errors.StoreError{Operation: "count", Err: err}
	}
	return types.Stats(counts), nil
}

func (m *JobQueueManager) GetJob(ctx context.Context, id string) (*types.Job, error) {
	job, err := m.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, custom_errors.ErrJobNotFound) {
			return nil, err
		}
		return nil, &custom_errors.StoreError{Operation: "find", Err: err}
	}
	return job, nil
}

// Cancel moves a pending job to cancelled. Jobs in any other state return
// ErrInvalidTransition.
func (m *JobQueueManager) Cancel(ctx context.Context, id string) error {
	err := m.store.Cancel(ctx, id, m.now())
	switch {
	case err == nil:
		m.logger.Info("job cancelled", slog.String("job_id", id))
		return nil
	case errors.Is(err, custom_errors.ErrJobNotFound), errors.Is(err, custom_errors.ErrInvalidTransition):
		return err
	default:
		return &custom_errors.StoreError{Operation: "cancel", Err: err}
	}
}

// RecoverStale releases jobs that have been processing for longer than olderThan,
// typically because the process running them died.
func (m *JobQueueManager) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := m.now()
	n, err := m.store.RecoverStale(ctx, now.Add(-olderThan), now)
	if err != nil {
		return 0, &custom_errors.StoreError{Operation: "recover_stale", Err: err}
	}
	if n > 0 {
		m.logger.Warn("recovered stale jobs", slog.Int64("count", n))
	}
	return n, nil
}
