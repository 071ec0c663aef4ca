package memory

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/RezaEskandarii/tickqueue/custom_errors"
	"github.com/RezaEskandarii/tickqueue/internal/state"
	"github.com/RezaEskandarii/tickqueue/internal/store"
	"github.com/RezaEskandarii/tickqueue/types"
)

var _ store.JobStore = (*Store)(nil)

// Store is an in-memory JobStore. Safe for concurrent access; intended for
// tests and local demos.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*types.Job
}

func New() *Store {
	return &Store{jobs: make(map[string]*types.Job)}
}

func (m *Store) Insert(_ context.Context, job *types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := clone(job)
	m.jobs[job.ID] = cp
	return nil
}

func (m *Store) FindByID(_ context.Context, id string) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, custom_errors.ErrJobNotFound
	}
	return clone(job), nil
}

func (m *Store) ClaimNextJob(_ context.Context, now time.Time) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *types.Job
	for _, j := range m.jobs {
		if j.Status != state.StatusPending || j.NextRetryAt.After(now) {
			continue
		}
		if best == nil || ranksBefore(j, best) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}

	started := now
	best.Status = state.StatusProcessing
	best.StartedAt = &started
	best.Attempts++
	return clone(best), nil
}

func (m *Store) Complete(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return false, custom_errors.ErrJobNotFound
	}
	switch j.Status {
	case state.StatusCompleted:
		return false, nil
	case state.StatusProcessing:
		completed := now
		j.Status = state.StatusCompleted
		j.CompletedAt = &completed
		return true, nil
	default:
		return false, custom_errors.ErrInvalidTransition
	}
}

func (m *Store) Retry(_ context.Context, id string, errMsg string, nextRetryAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.processing(id)
	if err != nil {
		return err
	}
	j.Status = state.StatusPending
	j.NextRetryAt = nextRetryAt
	j.ErrorMessage = sql.NullString{String: errMsg, Valid: true}
	return nil
}

func (m *Store) Fail(_ context.Context, id string, errMsg string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.processing(id)
	if err != nil {
		return err
	}
	completed := now
	j.Status = state.StatusFailed
	j.CompletedAt = &completed
	j.ErrorMessage = sql.NullString{String: errMsg, Valid: true}
	return nil
}

func (m *Store) Cancel(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return custom_errors.ErrJobNotFound
	}
	if j.Status != state.StatusPending {
		return custom_errors.ErrInvalidTransition
	}
	completed := now
	j.Status = state.StatusCancelled
	j.CompletedAt = &completed
	return nil
}

func (m *Store) RecoverStale(_ context.Context, startedBefore, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var recovered int64
	for _, j := range m.jobs {
		if j.Status != state.StatusProcessing || j.StartedAt == nil || !j.StartedAt.Before(startedBefore) {
			continue
		}
		j.ErrorMessage = sql.NullString{String: store.StaleJobMessage, Valid: true}
		if j.Attempts < j.MaxAttempts {
			j.Status = state.StatusPending
			j.NextRetryAt = now
		} else {
			completed := now
			j.Status = state.StatusFailed
			j.CompletedAt = &completed
		}
		recovered++
	}
	return recovered, nil
}

func (m *Store) CountByStatus(_ context.Context) (map[state.JobStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[state.JobStatus]int, len(state.AllStatuses))
	for _, s := range state.AllStatuses {
		result[s] = 0
	}
	for _, j := range m.jobs {
		result[j.Status]++
	}
	return result, nil
}

func (m *Store) Ping(_ context.Context) error { return nil }

func (m *Store) Close() error { return nil }

// processing returns the live job if it is currently processing. Caller holds mu.
func (m *Store) processing(id string) (*types.Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, custom_errors.ErrJobNotFound
	}
	if j.Status != state.StatusProcessing {
		return nil, custom_errors.ErrInvalidTransition
	}
	return j, nil
}

func ranksBefore(a, b *types.Job) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func clone(j *types.Job) *types.Job {
	cp := *j
	if j.Payload != nil {
		cp.Payload = append([]byte(nil), j.Payload...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
