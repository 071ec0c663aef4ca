// Package storetest holds the behavioural checks every JobStore must pass.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RezaEskandarii/tickqueue/custom_errors"
	"github.com/RezaEskandarii/tickqueue/internal/state"
	"github.com/RezaEskandarii/tickqueue/internal/store"
	"github.com/RezaEskandarii/tickqueue/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per sub-test.
type Factory func(t *testing.T) store.JobStore

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewJob builds a pending job eligible from createdAt.
func NewJob(priority int, createdAt time.Time) *types.Job {
	return &types.Job{
		ID:          uuid.NewString(),
		Type:        types.JobTypeProjectDevelopment,
		Payload:     json.RawMessage(`{"projectId":"p","clientId":"c"}`),
		Status:      state.StatusPending,
		Priority:    priority,
		MaxAttempts: 3,
		NextRetryAt: createdAt,
		CreatedAt:   createdAt,
	}
}

func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndFind", func(t *testing.T) { testInsertAndFind(t, newStore(t)) })
	t.Run("FindUnknown", func(t *testing.T) { testFindUnknown(t, newStore(t)) })
	t.Run("ClaimEmpty", func(t *testing.T) { testClaimEmpty(t, newStore(t)) })
	t.Run("ClaimPriority", func(t *testing.T) { testClaimPriority(t, newStore(t)) })
	t.Run("ClaimFIFOWithinTier", func(t *testing.T) { testClaimFIFO(t, newStore(t)) })
	t.Run("ClaimTieBreaksByID", func(t *testing.T) { testClaimTieBreak(t, newStore(t)) })
	t.Run("ClaimSkipsFutureRetry", func(t *testing.T) { testClaimSkipsFuture(t, newStore(t)) })
	t.Run("ConcurrentClaimsSingleWinner", func(t *testing.T) { testConcurrentClaims(t, newStore(t)) })
	t.Run("CompleteIdempotent", func(t *testing.T) { testCompleteIdempotent(t, newStore(t)) })
	t.Run("RetryAndFail", func(t *testing.T) { testRetryAndFail(t, newStore(t)) })
	t.Run("TerminalRowsImmutable", func(t *testing.T) { testTerminalImmutable(t, newStore(t)) })
	t.Run("Cancel", func(t *testing.T) { testCancel(t, newStore(t)) })
	t.Run("RecoverStale", func(t *testing.T) { testRecoverStale(t, newStore(t)) })
	t.Run("CountByStatus", func(t *testing.T) { testCountByStatus(t, newStore(t)) })
}

func insert(t *testing.T, s store.JobStore, jobs ...*types.Job) {
	t.Helper()
	for _, j := range jobs {
		require.NoError(t, s.Insert(context.Background(), j))
	}
}

func testInsertAndFind(t *testing.T, s store.JobStore) {
	j := NewJob(4, base)
	j.CreatedBy.String, j.CreatedBy.Valid = "user-7", true
	insert(t, s, j)

	got, err := s.FindByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, j.Type, got.Type)
	assert.JSONEq(t, string(j.Payload), string(got.Payload))
	assert.Equal(t, state.StatusPending, got.Status)
	assert.Equal(t, 4, got.Priority)
	assert.Equal(t, 0, got.Attempts)
	assert.Equal(t, 3, got.MaxAttempts)
	assert.True(t, got.NextRetryAt.Equal(base))
	assert.True(t, got.CreatedAt.Equal(base))
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
	assert.False(t, got.ErrorMessage.Valid)
	assert.Equal(t, "user-7", got.CreatedBy.String)
}

func testFindUnknown(t *testing.T, s store.JobStore) {
	_, err := s.FindByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, custom_errors.ErrJobNotFound)
}

func testClaimEmpty(t *testing.T, s store.JobStore) {
	job, err := s.ClaimNextJob(context.Background(), base)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func testClaimPriority(t *testing.T, s store.JobStore) {
	low := NewJob(1, base)
	high := NewJob(10, base.Add(time.Second))
	insert(t, s, low, high)

	job, err := s.ClaimNextJob(context.Background(), base.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, high.ID, job.ID)
	assert.Equal(t, state.StatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.StartedAt)
	assert.True(t, job.StartedAt.Equal(base.Add(time.Minute)))
}

func testClaimFIFO(t *testing.T, s store.JobStore) {
	newer := NewJob(5, base.Add(2*time.Second))
	older := NewJob(5, base.Add(time.Second))
	insert(t, s, newer, older)

	job, err := s.ClaimNextJob(context.Background(), base.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, older.ID, job.ID)
}

func testClaimTieBreak(t *testing.T, s store.JobStore) {
	second := NewJob(5, base)
	second.ID = "00000000-0000-0000-0000-000000000002"
	first := NewJob(5, base)
	first.ID = "00000000-0000-0000-0000-000000000001"
	insert(t, s, second, first)

	assert.Equal(t, first.ID, claim(t, s, base).ID)
	assert.Equal(t, second.ID, claim(t, s, base).ID)
}

func testClaimSkipsFuture(t *testing.T, s store.JobStore) {
	future := NewJob(100, base)
	future.NextRetryAt = base.Add(time.Hour)
	insert(t, s, future)

	job, err := s.ClaimNextJob(context.Background(), base.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, job)

	job, err = s.ClaimNextJob(context.Background(), base.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, future.ID, job.ID)
}

func testConcurrentClaims(t *testing.T, s store.JobStore) {
	j := NewJob(0, base)
	insert(t, s, j)

	const claimants = 8
	var wins atomic.Int32
	var wg sync.WaitGroup
	errs := make(chan error, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := s.ClaimNextJob(context.Background(), base.Add(time.Minute))
			if err != nil {
				errs <- err
				return
			}
			if job != nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), wins.Load())
	got, err := s.FindByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
}

func claim(t *testing.T, s store.JobStore, now time.Time) *types.Job {
	t.Helper()
	job, err := s.ClaimNextJob(context.Background(), now)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func testCompleteIdempotent(t *testing.T, s store.JobStore) {
	ctx := context.Background()
	insert(t, s, NewJob(0, base))
	job := claim(t, s, base)

	changed, err := s.Complete(ctx, job.ID, base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.Complete(ctx, job.ID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := s.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(base.Add(time.Minute)))

	_, err = s.Complete(ctx, uuid.NewString(), base)
	assert.ErrorIs(t, err, custom_errors.ErrJobNotFound)
}

func testRetryAndFail(t *testing.T, s store.JobStore) {
	ctx := context.Background()
	insert(t, s, NewJob(0, base))
	job := claim(t, s, base)

	next := base.Add(10 * time.Minute)
	require.NoError(t, s.Retry(ctx, job.ID, "timeout talking to model", next))

	got, err := s.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusPending, got.Status)
	assert.True(t, got.NextRetryAt.Equal(next))
	assert.Equal(t, "timeout talking to model", got.ErrorMessage.String)

	again, err := s.ClaimNextJob(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, again, "retry must wait for next_retry_at")

	job = claim(t, s, next)
	assert.Equal(t, 2, job.Attempts)
	require.NoError(t, s.Fail(ctx, job.ID, "gave up", next.Add(time.Second)))

	got, err = s.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, got.Status)
	assert.Equal(t, "gave up", got.ErrorMessage.String)
	require.NotNil(t, got.CompletedAt)
}

func testTerminalImmutable(t *testing.T, s store.JobStore) {
	ctx := context.Background()
	insert(t, s, NewJob(0, base))
	job := claim(t, s, base)
	require.NoError(t, s.Fail(ctx, job.ID, "dead", base))

	assert.ErrorIs(t, s.Retry(ctx, job.ID, "again", base), custom_errors.ErrInvalidTransition)
	assert.ErrorIs(t, s.Fail(ctx, job.ID, "again", base), custom_errors.ErrInvalidTransition)
	assert.ErrorIs(t, s.Cancel(ctx, job.ID, base), custom_errors.ErrInvalidTransition)
	_, err := s.Complete(ctx, job.ID, base)
	assert.ErrorIs(t, err, custom_errors.ErrInvalidTransition)

	got, err := s.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, got.Status)
	assert.Equal(t, "dead", got.ErrorMessage.String)
}

func testCancel(t *testing.T, s store.JobStore) {
	ctx := context.Background()
	pending := NewJob(0, base)
	running := NewJob(9, base)
	insert(t, s, pending, running)
	claimed := claim(t, s, base)
	require.Equal(t, running.ID, claimed.ID)

	require.NoError(t, s.Cancel(ctx, pending.ID, base.Add(time.Second)))
	assert.ErrorIs(t, s.Cancel(ctx, running.ID, base), custom_errors.ErrInvalidTransition)
	assert.ErrorIs(t, s.Cancel(ctx, uuid.NewString(), base), custom_errors.ErrJobNotFound)

	got, err := s.FindByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCancelled, got.Status)

	next, err := s.ClaimNextJob(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, next, "cancelled jobs are never claimed")
}

func testRecoverStale(t *testing.T, s store.JobStore) {
	ctx := context.Background()
	retryable := NewJob(0, base)
	exhausted := NewJob(0, base.Add(time.Second))
	exhausted.MaxAttempts = 1
	fresh := NewJob(0, base.Add(2*time.Second))
	insert(t, s, retryable, exhausted, fresh)

	require.Equal(t, retryable.ID, claim(t, s, base).ID)
	require.Equal(t, exhausted.ID, claim(t, s, base.Add(time.Second)).ID)
	require.Equal(t, fresh.ID, claim(t, s, base.Add(50*time.Minute)).ID)

	now := base.Add(time.Hour)
	n, err := s.RecoverStale(ctx, now.Add(-30*time.Minute), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := s.FindByID(ctx, retryable.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusPending, got.Status)
	assert.Equal(t, store.StaleJobMessage, got.ErrorMessage.String)

	got, err = s.FindByID(ctx, exhausted.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, got.Status)

	got, err = s.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusProcessing, got.Status)
}

func testCountByStatus(t *testing.T, s store.JobStore) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		insert(t, s, NewJob(0, base.Add(time.Duration(i)*time.Second)))
	}
	job := claim(t, s, base.Add(time.Minute))
	_, err := s.Complete(ctx, job.ID, base.Add(time.Minute))
	require.NoError(t, err)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	for _, st := range state.AllStatuses {
		_, ok := counts[st]
		assert.True(t, ok, fmt.Sprintf("status %s missing", st))
	}
	assert.Equal(t, 2, counts[state.StatusPending])
	assert.Equal(t, 1, counts[state.StatusCompleted])
	assert.Equal(t, 0, counts[state.StatusFailed])
}
