// Package sqlite is the local-development job store. Timestamps are stored as
// unix nanoseconds so range comparisons stay numeric.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RezaEskandarii/tickqueue/custom_errors"
	"github.com/RezaEskandarii/tickqueue/internal/constants"
	"github.com/RezaEskandarii/tickqueue/internal/state"
	"github.com/RezaEskandarii/tickqueue/internal/store"
	"github.com/RezaEskandarii/tickqueue/types"
)

const jobColumns = `id, type, payload, status, priority, attempts, max_attempts,
	next_retry_at, error_message, created_at, started_at, completed_at, created_by`

type sqliteJobStore struct {
	db *sql.DB
}

func NewSqliteJobStore(db *sql.DB) store.JobStore {
	return &sqliteJobStore{db: db}
}

func (s *sqliteJobStore) Insert(ctx context.Context, job *types.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, payload, status, priority, attempts, max_attempts,
		                  next_retry_at, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID, job.Type, string(job.Payload), job.Status, job.Priority, job.Attempts, job.MaxAttempts,
		nanos(job.NextRetryAt), nanos(job.CreatedAt), job.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

func (s *sqliteJobStore) FindByID(ctx context.Context, id string) (*types.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, custom_errors.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job %s: %w", id, err)
	}
	return job, nil
}

func (s *sqliteJobStore) ClaimNextJob(ctx context.Context, now time.Time) (*types.Job, error) {
	for i := 0; i < constants.MaxClaimRetries; i++ {
		var id string
		err := s.db.QueryRowContext(ctx, `
			SELECT id FROM jobs
			WHERE status = ? AND next_retry_at <= ?
			ORDER BY priority DESC, created_at ASC, id ASC
			LIMIT 1
		`, state.StatusPending, nanos(now)).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select claimable job: %w", err)
		}

		res, err := s.db.ExecContext(ctx, `
			UPDATE jobs
			SET status = ?, started_at = ?, attempts = attempts + 1
			WHERE id = ? AND status = ?
		`, state.StatusProcessing, nanos(now), id, state.StatusPending)
		if err != nil {
			return nil, fmt.Errorf("failed to claim job %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 1 {
			return s.FindByID(ctx, id)
		}
	}
	return nil, nil
}

func (s *sqliteJobStore) Complete(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, completed_at = ? WHERE id = ? AND status = ?
	`, state.StatusCompleted, nanos(now), id, state.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to complete job %s: %w", id, err)
	}
	if affected, err := res.RowsAffected(); err != nil || affected > 0 {
		return affected > 0, err
	}

	current, err := s.statusOf(ctx, id)
	if err != nil {
		return false, err
	}
	if current == state.StatusCompleted {
		return false, nil
	}
	return false, custom_errors.ErrInvalidTransition
}

func (s *sqliteJobStore) Retry(ctx context.Context, id string, errMsg string, nextRetryAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, next_retry_at = ?, error_message = ? WHERE id = ? AND status = ?
	`, state.StatusPending, nanos(nextRetryAt), errMsg, id, state.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to reschedule job %s: %w", id, err)
	}
	return s.requireTransition(ctx, id, res)
}

func (s *sqliteJobStore) Fail(ctx context.Context, id string, errMsg string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error_message = ?, completed_at = ? WHERE id = ? AND status = ?
	`, state.StatusFailed, errMsg, nanos(now), id, state.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", id, err)
	}
	return s.requireTransition(ctx, id, res)
}

func (s *sqliteJobStore) Cancel(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, completed_at = ? WHERE id = ? AND status = ?
	`, state.StatusCancelled, nanos(now), id, state.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", id, err)
	}
	return s.requireTransition(ctx, id, res)
}

func (s *sqliteJobStore) RecoverStale(ctx context.Context, startedBefore, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = CASE WHEN attempts < max_attempts THEN ? ELSE ? END,
		    next_retry_at = CASE WHEN attempts < max_attempts THEN ? ELSE next_retry_at END,
		    completed_at = CASE WHEN attempts < max_attempts THEN completed_at ELSE ? END,
		    error_message = ?
		WHERE status = ? AND started_at < ?
	`, state.StatusPending, state.StatusFailed, nanos(now), nanos(now), store.StaleJobMessage,
		state.StatusProcessing, nanos(startedBefore))
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *sqliteJobStore) CountByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[state.JobStatus]int, len(state.AllStatuses))
	for _, status := range state.AllStatuses {
		result[status] = 0
	}
	for rows.Next() {
		var status state.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		result[status] = count
	}
	return result, rows.Err()
}

func (s *sqliteJobStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteJobStore) Close() error {
	return s.db.Close()
}

func (s *sqliteJobStore) statusOf(ctx context.Context, id string) (state.JobStatus, error) {
	var current state.JobStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", custom_errors.ErrJobNotFound
	}
	return current, err
}

func (s *sqliteJobStore) requireTransition(ctx context.Context, id string, res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil || affected > 0 {
		return err
	}
	if _, err := s.statusOf(ctx, id); err != nil {
		return err
	}
	return custom_errors.ErrInvalidTransition
}

func nanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

func scanJob(row *sql.Row) (*types.Job, error) {
	var job types.Job
	var payload string
	var nextRetryAt, createdAt int64
	var startedAt, completedAt sql.NullInt64
	if err := row.Scan(
		&job.ID,
		&job.Type,
		&payload,
		&job.Status,
		&job.Priority,
		&job.Attempts,
		&job.MaxAttempts,
		&nextRetryAt,
		&job.ErrorMessage,
		&createdAt,
		&startedAt,
		&completedAt,
		&job.CreatedBy,
	); err != nil {
		return nil, err
	}
	job.Payload = []byte(payload)
	job.NextRetryAt = time.Unix(0, nextRetryAt).UTC()
	job.CreatedAt = time.Unix(0, createdAt).UTC()
	job.StartedAt = fromNanos(startedAt)
	job.CompletedAt = fromNanos(completedAt)
	return &job, nil
}
