// Package backoff computes the delay a failed job waits before it becomes
// claimable again. Strategies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before retry attempt n (1-indexed: the delay
// after the first failed attempt is Delay(1)).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles the delay each attempt.
// Delay = min(Base * 2^(attempt-1), Max).
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

func NewExponential(base, maxDelay time.Duration) *Exponential {
	return &Exponential{Base: base, Max: maxDelay}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	return capped(e.Base, e.Max, attempt)
}

// ExponentialWithJitter adds up to Jitter (a fraction, e.g. 0.1) of the
// exponential delay on top of it. The jitter only ever lengthens the delay
// and stays below the next doubling, so delays still grow with each attempt
// until the cap is reached.
type ExponentialWithJitter struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func NewExponentialWithJitter(base, maxDelay time.Duration, jitter float64) *ExponentialWithJitter {
	if jitter < 0 {
		jitter = 0
	}
	if jitter >= 1 {
		jitter = 0.99
	}
	return &ExponentialWithJitter{Base: base, Max: maxDelay, Jitter: jitter}
}

func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	d := capped(e.Base, e.Max, attempt)
	if e.Jitter == 0 {
		return d
	}
	return d + time.Duration(rand.Float64()*e.Jitter*float64(d)) //nolint:gosec // jitter does not need crypto rand
}

func capped(base, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if maxDelay > 0 && d > float64(maxDelay) {
		return maxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
