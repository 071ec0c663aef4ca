package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/RezaEskandarii/tickqueue/custom_errors"
	"github.com/RezaEskandarii/tickqueue/internal/message_broaker"
	"github.com/RezaEskandarii/tickqueue/types"
	"golang.org/x/time/rate"
)

const (
	defaultIngestRate  = 50
	defaultIngestBurst = 10
)

// QueueWriter moves enqueue requests published on the broker into the job store.
type QueueWriter struct {
	broker  message_broaker.MessageBroker
	manager *JobQueueManager
	limiter *rate.Limiter
	logger  *slog.Logger
}

type QueueWriterOption func(*QueueWriter)

// WithIngestRate bounds how many requests per second are written to the store.
func WithIngestRate(perSecond float64, burst int) QueueWriterOption {
	return func(w *QueueWriter) { w.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

func WithQueueWriterLogger(logger *slog.Logger) QueueWriterOption {
	return func(w *QueueWriter) { w.logger = logger }
}

func NewQueueWriter(broker message_broaker.MessageBroker, manager *JobQueueManager, opts ...QueueWriterOption) *QueueWriter {
	w := &QueueWriter{
		broker:  broker,
		manager: manager,
		limiter: rate.NewLimiter(defaultIngestRate, defaultIngestBurst),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Publish validates req locally and hands it to the broker.
func (w *QueueWriter) Publish(ctx context.Context, req types.EnqueueRequest) error {
	if _, err := types.DecodePayload(req.Type, req.Payload); err != nil {
		return err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return w.broker.Publish(ctx, body)
}

// Run consumes until ctx is cancelled or the broker closes the stream.
// Malformed requests are dropped; store failures are requeued.
func (w *QueueWriter) Run(ctx context.Context) error {
	msgs, err := w.broker.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume enqueue requests: %w", err)
	}
	w.logger.Info("queue writer started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("queue writer stopped")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Warn("queue writer: message channel closed")
				return nil
			}
			if err := w.limiter.Wait(ctx); err != nil {
				_ = msg.Nack(true)
				return nil
			}
			w.handle(ctx, msg)
		}
	}
}

func (w *QueueWriter) handle(ctx context.Context, msg message_broaker.Message) {
	var req types.EnqueueRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		w.logger.Error("queue writer: malformed message", slog.String("error", err.Error()))
		_ = msg.Nack(false)
		return
	}

	id, err := w.manager.EnqueueRaw(ctx, req.Type, req.Payload, req.Options())
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			w.logger.Error("queue writer: ack failed", slog.String("job_id", id), slog.String("error", ackErr.Error()))
		}
	case errors.Is(err, custom_errors.ErrUnknownJobType), errors.Is(err, custom_errors.ErrInvalidPayload):
		w.logger.Error("queue writer: rejected request",
			slog.String("job_type", req.Type),
			slog.String("error", err.Error()),
		)
		_ = msg.Nack(false)
	default:
		w.logger.Error("queue writer: enqueue failed", slog.String("error", err.Error()))
		_ = msg.Nack(true)
	}
}
