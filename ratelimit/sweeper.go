package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/tickqueue/internal/scheduler"
)

const sweepSchedule = "@every 1m"

// Sweeper periodically removes closed windows from a MemoryCounter to bound
// its memory. Admission decisions never depend on it.
type Sweeper struct {
	counter   *MemoryCounter
	scheduler *scheduler.Scheduler
	now       func() time.Time
	logger    *slog.Logger
}

func NewSweeper(counter *MemoryCounter, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		counter:   counter,
		scheduler: scheduler.New(logger),
		now:       time.Now,
		logger:    logger,
	}
}

func (s *Sweeper) Start() error {
	if err := s.scheduler.Add("ratelimit-sweep", sweepSchedule, func(context.Context) { s.Sweep() }); err != nil {
		return err
	}
	s.scheduler.Start()
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	return s.scheduler.Stop(ctx)
}

// Sweep runs one pass immediately.
func (s *Sweeper) Sweep() int {
	removed := s.counter.Sweep(s.now())
	if removed > 0 {
		s.logger.Debug("rate limit windows swept", slog.Int("removed", removed))
	}
	return removed
}
