package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/RezaEskandarii/tickqueue/custom_errors"
	"github.com/RezaEskandarii/tickqueue/types"
)

const meterName = "github.com/RezaEskandarii/tickqueue"

// Metrics records per-job execution metrics on the global MeterProvider.
// Without a configured provider the instruments are noops.
//
// Instruments:
//   - tickqueue.job.duration (Float64Histogram), seconds
//   - tickqueue.job.executions (Int64Counter)
//
// Both carry job_type and status ("ok", "error" or "permanent_error").
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

func MetricsWithMeter(meter metric.Meter) Middleware {
	duration, _ := meter.Float64Histogram(
		"tickqueue.job.duration",
		metric.WithDescription("Duration of job execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"tickqueue.job.executions",
		metric.WithDescription("Total number of job executions"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, j *types.Job, next Handler) (any, error) {
		start := time.Now()
		res, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		switch {
		case err == nil:
		case custom_errors.IsRetryable(err):
			status = "error"
		default:
			status = "permanent_error"
		}

		attrs := metric.WithAttributes(
			attribute.String("job_type", j.Type),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return res, err
	}
}
