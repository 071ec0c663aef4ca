package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/RezaEskandarii/tickqueue/client"
	"github.com/RezaEskandarii/tickqueue/custom_errors"
	"github.com/RezaEskandarii/tickqueue/internal/constants"
	"github.com/RezaEskandarii/tickqueue/ratelimit"
	"github.com/RezaEskandarii/tickqueue/types"
)

type HttpRouteHandler struct {
	manager  *client.JobQueueManager
	driver   *client.TickDriver
	limiter  *ratelimit.Limiter
	identify ratelimit.IdentifyFunc
	auth     AuthConfig
	maxJobs  int
	logger   *slog.Logger

	// ensureHandlers populates the handler registry; it must be idempotent.
	ensureHandlers func() error
	ping           func(ctx context.Context) error
}

type RouteConfig struct {
	Manager        *client.JobQueueManager
	Driver         *client.TickDriver
	Limiter        *ratelimit.Limiter
	Identify       ratelimit.IdentifyFunc // defaults to ratelimit.Identify
	Auth           AuthConfig
	MaxJobsPerTick int
	Logger         *slog.Logger
	EnsureHandlers func() error
	Ping           func(ctx context.Context) error
}

func NewRouteHandler(cfg RouteConfig) *HttpRouteHandler {
	h := &HttpRouteHandler{
		manager:        cfg.Manager,
		driver:         cfg.Driver,
		limiter:        cfg.Limiter,
		identify:       cfg.Identify,
		auth:           cfg.Auth,
		maxJobs:        cfg.MaxJobsPerTick,
		logger:         cfg.Logger,
		ensureHandlers: cfg.EnsureHandlers,
		ping:           cfg.Ping,
	}
	if h.maxJobs <= 0 {
		h.maxJobs = constants.DefaultMaxJobsPerTick
	}
	if h.identify == nil {
		h.identify = ratelimit.Identify
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.ensureHandlers == nil {
		h.ensureHandlers = func() error { return nil }
	}
	return h
}

// Routes builds the HTTP surface. Authentication runs before admission
// control, so unauthenticated requests never consume a caller's window.
// Trigger routes share the cron bucket and the job routes share the api bucket.
func (handler *HttpRouteHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	cron := handler.limited(ratelimit.Cron)
	api := handler.limited(ratelimit.API)
	trigger := handler.auth.authorizeTrigger
	admin := handler.auth.authorizeAdmin

	mux.Handle("GET /api/cron/process-jobs", requireAuth(trigger, cron(http.HandlerFunc(handler.handleProcessJobs))))
	mux.Handle("POST /api/cron/process-jobs", requireAuth(admin, cron(http.HandlerFunc(handler.handleProcessJobs))))

	mux.Handle("POST /api/jobs", requireAuth(admin, api(http.HandlerFunc(handler.handleEnqueue))))
	mux.Handle("GET /api/jobs/stats", requireAuth(admin, api(http.HandlerFunc(handler.handleStats))))
	mux.Handle("GET /api/jobs/{id}", requireAuth(admin, api(http.HandlerFunc(handler.handleJobStatus))))
	mux.Handle("POST /api/jobs/{id}/cancel", requireAuth(admin, api(http.HandlerFunc(handler.handleCancel))))

	mux.HandleFunc("GET /healthz", handler.handleHealth)
	return mux
}

func (handler *HttpRouteHandler) limited(b ratelimit.Bucket) func(http.Handler) http.Handler {
	if handler.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return ratelimit.Middleware(handler.limiter, b, handler.identify, handler.logger)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (handler *HttpRouteHandler) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		handler.logger.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type tickResponse struct {
	Success   bool        `json:"success"`
	Processed int         `json:"processed"`
	Errors    []string    `json:"errors,omitempty"`
	Stats     types.Stats `json:"stats"`
	Error     string      `json:"error,omitempty"`
}

func (handler *HttpRouteHandler) handleProcessJobs(w http.ResponseWriter, r *http.Request) {
	if err := handler.ensureHandlers(); err != nil {
		handler.logger.Error("handler registration failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "job processing failed")
		return
	}

	res, err := handler.driver.Run(r.Context(), handler.maxJobs)
	if err != nil {
		resp := tickResponse{Success: false, Error: "job processing failed"}
		if res != nil {
			resp.Processed = res.Processed
			resp.Errors = res.Errors
			resp.Stats = res.Stats
		}
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	writeJSON(w, http.StatusOK, tickResponse{
		Success:   true,
		Processed: res.Processed,
		Errors:    res.Errors,
		Stats:     res.Stats,
	})
}

func (handler *HttpRouteHandler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req types.EnqueueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Type) == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	if req.CreatedBy == "" {
		req.CreatedBy, _ = ratelimit.PrincipalFrom(r.Context())
	}

	id, err := handler.manager.EnqueueRaw(r.Context(), req.Type, req.Payload, req.Options())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "jobId": id})
	case errors.Is(err, custom_errors.ErrUnknownJobType), errors.Is(err, custom_errors.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		handler.logger.Error("enqueue failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "enqueue failed")
	}
}

func (handler *HttpRouteHandler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := handler.manager.GetJob(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, job.View())
	case errors.Is(err, custom_errors.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	default:
		handler.logger.Error("job lookup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "job lookup failed")
	}
}

func (handler *HttpRouteHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := handler.manager.Cancel(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "jobId": id})
	case errors.Is(err, custom_errors.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, custom_errors.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "only pending jobs can be cancelled")
	default:
		handler.logger.Error("cancel failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "cancel failed")
	}
}

func (handler *HttpRouteHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := handler.manager.GetStats(r.Context())
	if err != nil {
		handler.logger.Error("stats failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

func (handler *HttpRouteHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if handler.ping != nil {
		if err := handler.ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
