package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/RezaEskandarii/tickqueue/types"
)

// Recover converts a handler panic into an ordinary (retryable) job error.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *types.Job, next Handler) (res any, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job handler panicked",
					slog.String("job_type", j.Type),
					slog.String("job_id", j.ID),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				res = nil
				retErr = fmt.Errorf("panic in job %s: %v", j.Type, r)
			}
		}()
		return next(ctx)
	}
}
