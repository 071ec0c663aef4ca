package test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/RezaEskandarii/tickqueue/client"
	"github.com/RezaEskandarii/tickqueue/internal/backoff"
	"github.com/RezaEskandarii/tickqueue/internal/registry"
	"github.com/RezaEskandarii/tickqueue/internal/store"
	"github.com/RezaEskandarii/tickqueue/types"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager(s store.JobStore, reg *registry.Registry, clock *fakeClock) *client.JobQueueManager {
	return client.NewJobQueueManager(s, reg,
		client.WithClock(clock.Now),
		client.WithBackoff(backoff.NewExponential(30*time.Second, time.Hour)),
		client.WithLogger(discardLogger()),
	)
}

// registerInvoice registers fn for invoice-render jobs.
func registerInvoice(t *testing.T, reg *registry.Registry, fn func(ctx context.Context, raw json.RawMessage) (any, error)) {
	t.Helper()
	require.NoError(t, reg.Register(types.JobTypeInvoiceRender, fn))
}

func invoice(id string) types.InvoiceRenderPayload {
	return types.InvoiceRenderPayload{InvoiceID: id, ClientID: "client-1"}
}

func enqueueInvoices(t *testing.T, m *client.JobQueueManager, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := m.Enqueue(context.Background(), invoice("inv"), types.JobOptions{})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}
