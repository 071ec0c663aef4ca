// Package registry maps job types to the handlers that execute them.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/RezaEskandarii/tickqueue/custom_errors"
	"github.com/RezaEskandarii/tickqueue/types"
)

// Handler executes one job. The result is only logged; the error decides
// whether the job completes, retries or is dead-lettered.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Registry is a flat, concurrency-safe type -> handler lookup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler for jobType. Registering a type that already has a
// handler is a no-op, so start-up code may run more than once.
func (r *Registry) Register(jobType string, h Handler) error {
	if jobType == "" || h == nil {
		return fmt.Errorf("handler must have a job type and function")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[jobType]; exists {
		return nil
	}
	r.handlers[jobType] = h
	return nil
}

// RegisterTyped registers a handler that receives the decoded, validated
// payload instead of raw JSON. Decode and validation failures are permanent.
func RegisterTyped[T types.Payload](r *Registry, jobType string, fn func(ctx context.Context, payload T) (any, error)) error {
	if fn == nil {
		return fmt.Errorf("handler for %q is nil", jobType)
	}
	return r.Register(jobType, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var payload T
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, custom_errors.Permanent(fmt.Errorf("unmarshal payload for %q: %w", jobType, err))
		}
		if err := payload.Validate(); err != nil {
			return nil, custom_errors.Permanent(err)
		}
		return fn(ctx, payload)
	})
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

func (r *Registry) Exists(jobType string) bool {
	_, ok := r.Get(jobType)
	return ok
}

// Types returns the registered job types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
