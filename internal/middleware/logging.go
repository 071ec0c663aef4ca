package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/tickqueue/types"
)

// Logging logs job start and outcome. Payloads are never logged.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *types.Job, next Handler) (any, error) {
		logger.Info("job started",
			slog.String("job_type", j.Type),
			slog.String("job_id", j.ID),
			slog.Int("attempt", j.Attempts),
			slog.Int("max_attempts", j.MaxAttempts),
		)

		start := time.Now()
		res, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("job failed",
				slog.String("job_type", j.Type),
				slog.String("job_id", j.ID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("job completed",
				slog.String("job_type", j.Type),
				slog.String("job_id", j.ID),
				slog.Duration("elapsed", elapsed),
			)
		}

		return res, err
	}
}
