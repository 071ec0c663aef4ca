package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Getenv matches os.Getenv; tests substitute a map lookup.
type Getenv func(key string) string

// FromEnv builds a Config from the process environment.
func FromEnv() (*Config, error) {
	return FromLookup(os.Getenv)
}

// FromLookup builds a Config from getenv. Unset values keep their defaults.
func FromLookup(getenv Getenv) (*Config, error) {
	opts := []Option{
		WithAppEnv(getenv("APP_ENV")),
		WithCronSecret(getenv("CRON_SECRET")),
		WithDevTriggerKey(getenv("DEV_TRIGGER_KEY")),
		WithTickSchedule(getenv("TICK_SCHEDULE")),
		WithRedisURL(getenv("REDIS_URL")),
		WithLogLevel(getenv("LOG_LEVEL")),
		WithLogFormat(getenv("LOG_FORMAT")),
		WithTrustedProxies(getenv("TRUSTED_PROXIES")),
	}

	driver := Postgres
	if raw := getenv("DATABASE_DRIVER"); raw != "" {
		d, ok := ParseStorageDriver(raw)
		if !ok {
			opts = append(opts, invalid(fmt.Errorf("DATABASE_DRIVER: unsupported value %q", raw)))
		}
		driver = d
	}
	opts = append(opts, WithStorage(driver, getenv("DATABASE_URL")))

	if raw := getenv("MAX_JOBS_PER_TICK"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			opts = append(opts, invalid(fmt.Errorf("MAX_JOBS_PER_TICK: %w", err)))
		} else {
			opts = append(opts, WithMaxJobsPerTick(n))
		}
	}

	if raw := getenv("STALE_JOB_AFTER"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			opts = append(opts, invalid(fmt.Errorf("STALE_JOB_AFTER: %w", err)))
		} else {
			opts = append(opts, WithStaleJobAfter(d))
		}
	}

	if addr := getenv("HTTP_ADDR"); addr != "" {
		opts = append(opts, WithHTTPAddr(addr))
	}

	if url := getenv("RABBITMQ_URL"); url != "" {
		opts = append(opts, WithRabbitMQConfig(RabbitMQConfig{
			URL:        url,
			Exchange:   getenv("RABBITMQ_EXCHANGE"),
			Queue:      getenv("RABBITMQ_QUEUE"),
			RoutingKey: getenv("RABBITMQ_ROUTING_KEY"),
		}))
	}

	return NewConfig(opts...)
}

func invalid(err error) Option {
	return func(*Config) error { return err }
}
