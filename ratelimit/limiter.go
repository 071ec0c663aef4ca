// Package ratelimit implements per-caller fixed-window admission control.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Counter records hits against a key within a window. Implementations reset
// the window lazily: the first hit at or after resetTime starts a new one.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (count int, resetTime time.Time, err error)
}

type Result struct {
	Allowed    bool
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration // zero when allowed
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (r Result) RetryAfterSeconds() int {
	return int(math.Ceil(r.RetryAfter.Seconds()))
}

type Limiter struct {
	counter Counter
	now     func() time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func NewLimiter(counter Counter, opts ...Option) *Limiter {
	l := &Limiter{counter: counter, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one request by identifier against b.
func (l *Limiter) Check(ctx context.Context, identifier string, b Bucket) (Result, error) {
	now := l.now()
	count, reset, err := l.counter.Increment(ctx, b.key(identifier), b.Window, now)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", b.Name, err)
	}

	if count > b.MaxRequests {
		retry := reset.Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return Result{Allowed: false, Remaining: 0, ResetTime: reset, RetryAfter: retry}, nil
	}

	return Result{Allowed: true, Remaining: b.MaxRequests - count, ResetTime: reset}, nil
}
