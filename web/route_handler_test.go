package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/RezaEskandarii/tickqueue/client"
	"github.com/RezaEskandarii/tickqueue/internal/registry"
	"github.com/RezaEskandarii/tickqueue/internal/state"
	"github.com/RezaEskandarii/tickqueue/internal/store/memory"
	"github.com/RezaEskandarii/tickqueue/ratelimit"
	"github.com/RezaEskandarii/tickqueue/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "cron-secret"

type fixture struct {
	handler *HttpRouteHandler
	manager *client.JobQueueManager
	reg     *registry.Registry
}

func newFixture(t *testing.T, auth AuthConfig, limiter *ratelimit.Limiter) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New()
	manager := client.NewJobQueueManager(memory.New(), reg, client.WithLogger(logger))

	return &fixture{
		manager: manager,
		reg:     reg,
		handler: NewRouteHandler(RouteConfig{
			Manager:        manager,
			Driver:         client.NewTickDriver(manager, client.WithTickLogger(logger)),
			Limiter:        limiter,
			Auth:           auth,
			MaxJobsPerTick: 5,
			Logger:         logger,
			EnsureHandlers: func() error { return client.RegisterHandlers(reg, client.Collaborators{}, logger) },
		}),
	}
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	return f.doFrom("", method, path, body, headers)
}

// doFrom sends the request from remoteAddr; empty keeps httptest's default peer.
func (f *fixture) doFrom(remoteAddr, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.Routes().ServeHTTP(rec, req)
	return rec
}

func bearer(s string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + s}
}

func TestProcessJobs_AuthMatrix(t *testing.T) {
	prod := AuthConfig{CronSecret: secret, DevTriggerKey: "dev-key"}
	dev := AuthConfig{CronSecret: secret, DevTriggerKey: "dev-key", Development: true}

	tests := []struct {
		name    string
		auth    AuthConfig
		method  string
		headers map[string]string
		want    int
	}{
		{"prod GET with secret", prod, http.MethodGet, bearer(secret), http.StatusOK},
		{"prod GET missing secret", prod, http.MethodGet, nil, http.StatusUnauthorized},
		{"prod GET wrong secret", prod, http.MethodGet, bearer("nope"), http.StatusUnauthorized},
		{"prod POST with secret", prod, http.MethodPost, bearer(secret), http.StatusOK},
		{"prod POST missing secret", prod, http.MethodPost, nil, http.StatusUnauthorized},
		{"prod POST dev key ignored", prod, http.MethodPost, map[string]string{"X-Dev-Key": "dev-key"}, http.StatusUnauthorized},
		{"dev GET bypass", dev, http.MethodGet, nil, http.StatusOK},
		{"dev GET wrong secret still bypassed", dev, http.MethodGet, bearer("nope"), http.StatusOK},
		{"dev POST with secret", dev, http.MethodPost, bearer(secret), http.StatusOK},
		{"dev POST dev key", dev, http.MethodPost, map[string]string{"X-Dev-Key": "dev-key"}, http.StatusOK},
		{"dev POST wrong dev key", dev, http.MethodPost, map[string]string{"X-Dev-Key": "guess"}, http.StatusUnauthorized},
		{"dev POST missing", dev, http.MethodPost, nil, http.StatusUnauthorized},
		{"unset secret fails closed", AuthConfig{}, http.MethodGet, bearer(""), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.auth, nil)
			rec := f.do(tt.method, "/api/cron/process-jobs", "", tt.headers)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotContains(t, rec.Body.String(), secret)
		})
	}
}

func TestProcessJobs_RunsBoundedBatch(t *testing.T) {
	f := newFixture(t, AuthConfig{CronSecret: secret}, nil)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		_, err := f.manager.Enqueue(ctx, types.InvoiceRenderPayload{InvoiceID: "inv"}, types.JobOptions{})
		require.NoError(t, err)
	}

	rec := f.do(http.MethodGet, "/api/cron/process-jobs", "", bearer(secret))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success   bool           `json:"success"`
		Processed int            `json:"processed"`
		Errors    []string       `json:"errors"`
		Stats     map[string]int `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 5, resp.Processed)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, 5, resp.Stats["completed"])
	assert.Equal(t, 2, resp.Stats["pending"])
	assert.NotContains(t, rec.Body.String(), `"errors"`)
}

func TestProcessJobs_RegistrationFailure(t *testing.T) {
	f := newFixture(t, AuthConfig{CronSecret: secret}, nil)
	f.handler.ensureHandlers = func() error { return errors.New("boom") }

	rec := f.do(http.MethodGet, "/api/cron/process-jobs", "", bearer(secret))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestProcessJobs_RateLimited(t *testing.T) {
	l := ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), ratelimit.WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}))
	f := newFixture(t, AuthConfig{CronSecret: secret}, l)

	for i := 0; i < ratelimit.Cron.MaxRequests; i++ {
		rec := f.do(http.MethodGet, "/api/cron/process-jobs", "", bearer(secret))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := f.do(http.MethodGet, "/api/cron/process-jobs", "", bearer(secret))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func fixedLimiter() *ratelimit.Limiter {
	return ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), ratelimit.WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}))
}

func TestProcessJobs_UnauthenticatedCallsDoNotConsumeWindow(t *testing.T) {
	f := newFixture(t, AuthConfig{CronSecret: secret}, fixedLimiter())
	forged := map[string]string{"X-Forwarded-For": "192.0.2.1"}

	for i := 0; i < ratelimit.Cron.MaxRequests*2; i++ {
		rec := f.do(http.MethodGet, "/api/cron/process-jobs", "", forged)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Remaining"))
	}

	headers := bearer(secret)
	headers["X-Forwarded-For"] = "192.0.2.1"
	rec := f.do(http.MethodGet, "/api/cron/process-jobs", "", headers)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, strconv.Itoa(ratelimit.Cron.MaxRequests-1), rec.Header().Get("X-RateLimit-Remaining"))
}

func TestProcessJobs_UserHeaderDoesNotSplitWindow(t *testing.T) {
	f := newFixture(t, AuthConfig{CronSecret: secret}, fixedLimiter())

	admitted := 0
	for i := 0; i < 20; i++ {
		headers := bearer(secret)
		headers["X-User-ID"] = "caller-" + strconv.Itoa(i)
		headers["X-Forwarded-For"] = "198.51.100." + strconv.Itoa(i)
		if f.do(http.MethodPost, "/api/cron/process-jobs", "", headers).Code == http.StatusOK {
			admitted++
		}
	}
	assert.Equal(t, ratelimit.Cron.MaxRequests, admitted)
}

func TestProcessJobs_TrustedProxyKeysOnForwardedClient(t *testing.T) {
	f := newFixture(t, AuthConfig{Development: true}, fixedLimiter())
	f.handler.identify = ratelimit.NewIdentifier([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")})

	viaProxy := func(client string) int {
		return f.doFrom("10.0.0.1:4000", http.MethodGet, "/api/cron/process-jobs", "",
			map[string]string{"X-Forwarded-For": client}).Code
	}

	for i := 0; i < ratelimit.Cron.MaxRequests; i++ {
		require.Equal(t, http.StatusOK, viaProxy("203.0.113.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, viaProxy("203.0.113.1"))
	assert.Equal(t, http.StatusOK, viaProxy("203.0.113.2"))

	// The same header from an untrusted peer is ignored, so the peer's own window applies.
	for i := 0; i < ratelimit.Cron.MaxRequests; i++ {
		require.Equal(t, http.StatusOK, f.doFrom("192.0.2.50:4000", http.MethodGet, "/api/cron/process-jobs", "",
			map[string]string{"X-Forwarded-For": "203.0.113.3"}).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, f.doFrom("192.0.2.50:4000", http.MethodGet, "/api/cron/process-jobs", "",
		map[string]string{"X-Forwarded-For": "203.0.113.4"}).Code)
}

func TestEnqueueAndStatus(t *testing.T) {
	f := newFixture(t, AuthConfig{CronSecret: secret}, nil)

	rec := f.do(http.MethodPost, "/api/jobs",
		`{"type":"project-development","payload":{"projectId":"p-1","clientId":"c-1","title":"Shop"},"priority":10}`,
		bearer(secret))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.JobID)

	rec = f.do(http.MethodGet, "/api/jobs/"+created.JobID, "", bearer(secret))
	require.Equal(t, http.StatusOK, rec.Code)

	var view types.JobStatusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, state.StatusPending, view.Status)
	assert.Equal(t, 0, view.Attempts)
	assert.Equal(t, 3, view.MaxAttempts)
	assert.Nil(t, view.ErrorMessage)
	assert.Contains(t, rec.Body.String(), `"maxAttempts":3`)

	job, err := f.manager.GetJob(context.Background(), created.JobID)
	require.NoError(t, err)
	assert.Equal(t, "cron", job.CreatedBy.String)
}

func TestEnqueue_Validation(t *testing.T) {
	f := newFixture(t, AuthConfig{CronSecret: secret}, nil)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/jobs", `{}`, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/jobs", `not json`, bearer(secret)).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/jobs", `{"payload":{}}`, bearer(secret)).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/jobs", `{"type":"send-fax","payload":{}}`, bearer(secret)).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/jobs", `{"type":"invoice-render","payload":{}}`, bearer(secret)).Code)
}

func TestJobStatus_NotFound(t *testing.T) {
	f := newFixture(t, AuthConfig{CronSecret: secret}, nil)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/jobs/missing", "", bearer(secret)).Code)
}

func TestJobStatus_RequiresAuth(t *testing.T) {
	f := newFixture(t, AuthConfig{CronSecret: secret}, nil)
	id, err := f.manager.Enqueue(context.Background(), types.InvoiceRenderPayload{InvoiceID: "inv"}, types.JobOptions{})
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/api/jobs/"+id, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), id)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/jobs/"+id, "", bearer("nope")).Code)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, AuthConfig{CronSecret: secret}, nil)
	id, err := f.manager.Enqueue(context.Background(), types.InvoiceRenderPayload{InvoiceID: "inv"}, types.JobOptions{})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/jobs/"+id+"/cancel", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/jobs/"+id+"/cancel", "", bearer(secret)).Code)
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/api/jobs/"+id+"/cancel", "", bearer(secret)).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/jobs/missing/cancel", "", bearer(secret)).Code)
}

func TestStats(t *testing.T) {
	f := newFixture(t, AuthConfig{CronSecret: secret}, nil)
	_, err := f.manager.Enqueue(context.Background(), types.InvoiceRenderPayload{InvoiceID: "inv"}, types.JobOptions{})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/jobs/stats", "", nil).Code)

	rec := f.do(http.MethodGet, "/api/jobs/stats", "", bearer(secret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":1`)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, AuthConfig{}, nil)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", nil).Code)

	f.handler.ping = func(context.Context) error { return errors.New("down") }
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/healthz", "", nil).Code)
}
