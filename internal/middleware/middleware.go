// Package middleware wraps job handler calls with cross-cutting behaviour
// such as panic recovery, logging and metrics.
package middleware

import (
	"context"

	"github.com/RezaEskandarii/tickqueue/types"
)

// Handler is the terminal call that runs the job's registered handler.
type Handler func(ctx context.Context) (any, error)

// Middleware receives the job being executed and the next handler in the chain.
type Middleware func(ctx context.Context, j *types.Job, next Handler) (any, error)

// Chain composes mws so that the first one is the outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *types.Job, next Handler) (any, error) {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (any, error) {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}
