package mocks

import (
	"context"
	"time"

	"github.com/RezaEskandarii/tickqueue/internal/state"
	"github.com/RezaEskandarii/tickqueue/internal/store"
	"github.com/RezaEskandarii/tickqueue/types"
)

// MockJobStore is a mock implementation of store.JobStore for testing.
// Calls whose Func is nil fall through to Base when set.
type MockJobStore struct {
	Base store.JobStore

	InsertFunc        func(ctx context.Context, job *types.Job) error
	FindByIDFunc      func(ctx context.Context, id string) (*types.Job, error)
	ClaimNextJobFunc  func(ctx context.Context, now time.Time) (*types.Job, error)
	CompleteFunc      func(ctx context.Context, id string, now time.Time) (bool, error)
	RetryFunc         func(ctx context.Context, id string, errMsg string, nextRetryAt time.Time) error
	FailFunc          func(ctx context.Context, id string, errMsg string, now time.Time) error
	CancelFunc        func(ctx context.Context, id string, now time.Time) error
	RecoverStaleFunc  func(ctx context.Context, startedBefore, now time.Time) (int64, error)
	CountByStatusFunc func(ctx context.Context) (map[state.JobStatus]int, error)
	PingFunc          func(ctx context.Context) error
	CloseFunc         func() error
}

var _ store.JobStore = (*MockJobStore)(nil)

func (m *MockJobStore) Insert(ctx context.Context, job *types.Job) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, job)
	}
	if m.Base != nil {
		return m.Base.Insert(ctx, job)
	}
	return nil
}

func (m *MockJobStore) FindByID(ctx context.Context, id string) (*types.Job, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	if m.Base != nil {
		return m.Base.FindByID(ctx, id)
	}
	return nil, nil
}

func (m *MockJobStore) ClaimNextJob(ctx context.Context, now time.Time) (*types.Job, error) {
	if m.ClaimNextJobFunc != nil {
		return m.ClaimNextJobFunc(ctx, now)
	}
	if m.Base != nil {
		return m.Base.ClaimNextJob(ctx, now)
	}
	return nil, nil
}

func (m *MockJobStore) Complete(ctx context.Context, id string, now time.Time) (bool, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, id, now)
	}
	if m.Base != nil {
		return m.Base.Complete(ctx, id, now)
	}
	return true, nil
}

func (m *MockJobStore) Retry(ctx context.Context, id string, errMsg string, nextRetryAt time.Time) error {
	if m.RetryFunc != nil {
		return m.RetryFunc(ctx, id, errMsg, nextRetryAt)
	}
	if m.Base != nil {
		return m.Base.Retry(ctx, id, errMsg, nextRetryAt)
	}
	return nil
}

func (m *MockJobStore) Fail(ctx context.Context, id string, errMsg string, now time.Time) error {
	if m.FailFunc != nil {
		return m.FailFunc(ctx, id, errMsg, now)
	}
	if m.Base != nil {
		return m.Base.Fail(ctx, id, errMsg, now)
	}
	return nil
}

func (m *MockJobStore) Cancel(ctx context.Context, id string, now time.Time) error {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, id, now)
	}
	if m.Base != nil {
		return m.Base.Cancel(ctx, id, now)
	}
	return nil
}

func (m *MockJobStore) RecoverStale(ctx context.Context, startedBefore, now time.Time) (int64, error) {
	if m.RecoverStaleFunc != nil {
		return m.RecoverStaleFunc(ctx, startedBefore, now)
	}
	if m.Base != nil {
		return m.Base.RecoverStale(ctx, startedBefore, now)
	}
	return 0, nil
}

func (m *MockJobStore) CountByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	if m.CountByStatusFunc != nil {
		return m.CountByStatusFunc(ctx)
	}
	if m.Base != nil {
		return m.Base.CountByStatus(ctx)
	}
	return map[state.JobStatus]int{}, nil
}

func (m *MockJobStore) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

func (m *MockJobStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
