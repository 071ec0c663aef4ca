package constants

import "time"

// Advisory lock ids. Only migrations take a lock; job claims rely on
// conditional updates.
const (
	MigrationLock = iota + 7001
)

const (
	MaxRetryAttempt = 3

	// MaxClaimRetries bounds how often a claim re-selects after losing a race.
	MaxClaimRetries = 3

	DefaultMaxJobsPerTick = 5
	DefaultStaleJobAfter  = 30 * time.Minute

	DefaultBackoffBase   = 30 * time.Second
	DefaultBackoffMax    = time.Hour
	DefaultBackoffJitter = 0.1

	DefaultHTTPAddr = ":8080"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// HTTP headers surfaced by the trigger endpoint and the rate limiter.
const (
	HeaderAuthorization      = "Authorization"
	HeaderDevKey             = "X-Dev-Key"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)
