package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/tickqueue/internal/constants"
	"github.com/RezaEskandarii/tickqueue/internal/state"
	"github.com/RezaEskandarii/tickqueue/types"
)

// TickDriver processes a bounded batch of jobs per external trigger.
type TickDriver struct {
	manager    *JobQueueManager
	staleAfter time.Duration
	logger     *slog.Logger
}

type TickOption func(*TickDriver)

// WithStaleAfter enables stale-job recovery at the start of every tick.
// Zero disables it.
func WithStaleAfter(d time.Duration) TickOption {
	return func(t *TickDriver) { t.staleAfter = d }
}

func WithTickLogger(logger *slog.Logger) TickOption {
	return func(t *TickDriver) { t.logger = logger }
}

func NewTickDriver(manager *JobQueueManager, opts ...TickOption) *TickDriver {
	t := &TickDriver{manager: manager, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run calls ProcessNextJob up to maxJobs times and stops at the first empty
// claim. A failing job never stops the batch; a store error does, and the
// partial result is returned alongside it.
func (t *TickDriver) Run(ctx context.Context, maxJobs int) (*types.TickResult, error) {
	if maxJobs <= 0 {
		maxJobs = constants.DefaultMaxJobsPerTick
	}
	result := &types.TickResult{JobIDs: []string{}}

	if t.staleAfter > 0 {
		if _, err := t.manager.RecoverStale(ctx, t.staleAfter); err != nil {
			return t.finish(ctx, result, err)
		}
	}

	for i := 0; i < maxJobs; i++ {
		if err := ctx.Err(); err != nil {
			return t.finish(ctx, result, err)
		}

		job, err := t.manager.ProcessNextJob(ctx)
		if job != nil {
			result.Processed++
			result.JobIDs = append(result.JobIDs, job.ID)
			if job.Status != state.StatusCompleted && job.ErrorMessage.Valid {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", job.ID, job.ErrorMessage.String))
			}
		}
		if err != nil {
			return t.finish(ctx, result, err)
		}
		if job == nil {
			break
		}
	}

	return t.finish(ctx, result, nil)
}

func (t *TickDriver) finish(ctx context.Context, result *types.TickResult, runErr error) (*types.TickResult, error) {
	stats, err := t.manager.GetStats(ctx)
	if err == nil {
		result.Stats = stats
	} else if runErr == nil {
		runErr = err
	}

	if runErr != nil {
		t.logger.Error("tick aborted",
			slog.Int("processed", result.Processed),
			slog.String("error", runErr.Error()),
		)
		return result, runErr
	}

	t.logger.Info("tick finished",
		slog.Int("processed", result.Processed),
		slog.Int("errors", len(result.Errors)),
	)
	return result, nil
}
