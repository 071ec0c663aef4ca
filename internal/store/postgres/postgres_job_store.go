package postgres

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

type postgresJobStore struct {
	db *sql.DB
}

// NewPostgresJobStore creates a JobStore backed by the tickqueue_schema.jobs table.
func NewPostgresJobStore(db *sql.DB) store.JobStore {
	return &postgresJobStore{db: db}
}

func (s *postgresJobStore) Insert(ctx context.Context, job *types.Job) error {
	query := `
        INSERT INTO tickqueue_schema.jobs (
            id,
            type,
            payload,
            status,
            priority,
            attempts,
            max_attempts,
            next_retry_at,
            created_at,
            created_by
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Type,
		[]byte(job.Payload),
		job.Status,
		job.Priority,
		job.Attempts,
		job.MaxAttempts,
		job.NextRetryAt,
		job.CreatedAt,
		job.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

func (s *postgresJobStore) FindByID(ctx context.Context, id string) (*types.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM tickqueue_schema.jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, custom_errors.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to find job %s: %w", id, err)
	}
	return job, nil
}

func (s *postgresJobStore) ClaimNextJob(ctx context.Context, now time.Time) (*types.Job, error) {
	for i := 0; i < constants.MaxClaimRetries; i++ {
		var id string
		err := s.db.QueryRowContext(ctx, `
			SELECT id
			FROM tickqueue_schema.jobs
			WHERE status = $1 AND next_retry_at <= $2
			ORDER BY priority DESC, created_at ASC, id ASC
			LIMIT 1
		`, state.StatusPending, now).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select claimable job: %w", err)
		}

		claimed, err := s.lockJob(ctx, id, now)
		if err != nil {
			return nil, err
		}
		if !claimed {
			// another invocation won this row; pick again
			continue
		}
		return s.FindByID(ctx, id)
	}
	return nil, nil
}

// lockJob is the compare-and-swap: it only succeeds while the row is still pending.
func (s *postgresJobStore) lockJob(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickqueue_schema.jobs
		SET status = $1,
		    started_at = $2,
		    attempts = attempts + 1
		WHERE id = $3 AND status = $4
	`, state.StatusProcessing, now, id, state.StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *postgresJobStore) Complete(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickqueue_schema.jobs
		SET status = $1,
		    completed_at = $2
		WHERE id = $3 AND status = $4
	`, state.StatusCompleted, now, id, state.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to complete job %s: %w", id, err)
	}
	if ok, err := affectedOne(res); err != nil || ok {
		return ok, err
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

func (s *postgresJobStore) Retry(ctx context.Context, id string, errMsg string, nextRetryAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickqueue_schema.jobs
		SET status = $1,
		    next_retry_at = $2,
		    error_message = $3
		WHERE id = $4 AND status = $5
	`, state.StatusPending, nextRetryAt, errMsg, id, state.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to reschedule job %s: %w", id, err)
	}
	return s.requireTransition(ctx, id, res)
}

func (s *postgresJobStore) Fail(ctx context.Context, id string, errMsg string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickqueue_schema.jobs
		SET status = $1,
		    error_message = $2,
		    completed_at = $3
		WHERE id = $4 AND status = $5
	`, state.StatusFailed, errMsg, now, id, state.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", id, err)
	}
	return s.requireTransition(ctx, id, res)
}

func (s *postgresJobStore) Cancel(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickqueue_schema.jobs
		SET status = $1,
		    completed_at = $2
		WHERE id = $3 AND status = $4
	`, state.StatusCancelled, now, id, state.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", id, err)
	}
	return s.requireTransition(ctx, id, res)
}

func (s *postgresJobStore) RecoverStale(ctx context.Context, startedBefore, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickqueue_schema.jobs
		SET status = CASE WHEN attempts < max_attempts THEN $1 ELSE $2 END,
		    next_retry_at = CASE WHEN attempts < max_attempts THEN $3 ELSE next_retry_at END,
		    completed_at = CASE WHEN attempts < max_attempts THEN completed_at ELSE $3 END,
		    error_message = $4
		WHERE status = $5 AND started_at < $6
	`, state.StatusPending, state.StatusFailed, now, store.StaleJobMessage, state.StatusProcessing, startedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *postgresJobStore) CountByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) AS count
		FROM tickqueue_schema.jobs
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[state.JobStatus]int)
	for rows.Next() {
		var status state.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		result[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, status := range state.AllStatuses {
		if _, ok := result[status]; !ok {
			result[status] = 0
		}
	}

	return result, nil
}

func (s *postgresJobStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *postgresJobStore) Close() error {
	return s.db.Close()
}

func (s *postgresJobStore) statusOf(ctx context.Context, id string) (state.JobStatus, error) {
	var current state.JobStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM tickqueue_schema.jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", custom_errors.ErrJobNotFound
	}
	return current, err
}

// requireTransition turns a zero-row guarded update into ErrJobNotFound or ErrInvalidTransition.
func (s *postgresJobStore) requireTransition(ctx context.Context, id string, res sql.Result) error {
	ok, err := affectedOne(res)
	if err != nil || ok {
		return err
	}
	if _, err := s.statusOf(ctx, id); err != nil {
		return err
	}
	return custom_errors.ErrInvalidTransition
}

func affectedOne(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanJob(row *sql.Row) (*types.Job, error) {
	var job types.Job
	var payload []byte
	if err := row.Scan(
		&job.ID,
		&job.Type,
		&payload,
		&job.Status,
		&job.Priority,
		&job.Attempts,
		&job.MaxAttempts,
		&job.NextRetryAt,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.CreatedBy,
	); err != nil {
		return nil, err
	}
	job.Payload = payload
	return &job, nil
}
