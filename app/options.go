package app

import (
	"database/sql"
	"log/slog"

	"github.com/RezaEskandarii/tickqueue/client"
	"github.com/RezaEskandarii/tickqueue/internal/message_broaker"
	"github.com/redis/go-redis/v9"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	// Optional: inject connections instead of creating them from config
	db     *sql.DB
	redis  *redis.Client
	broker message_broaker.MessageBroker

	logger        *slog.Logger
	collaborators client.Collaborators
	managerOpts   []client.ManagerOption
}

// WithDB injects a custom database connection. Migrations still run against it.
func WithDB(db *sql.DB) ContainerOption {
	return func(c *containerConfig) {
		c.db = db
	}
}

// WithRedis injects a custom Redis client for the rate limiter.
func WithRedis(redis *redis.Client) ContainerOption {
	return func(c *containerConfig) {
		c.redis = redis
	}
}

func WithMessageBroker(broker message_broaker.MessageBroker) ContainerOption {
	return func(c *containerConfig) {
		c.broker = broker
	}
}

func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *containerConfig) {
		c.logger = logger
	}
}

// WithCollaborators replaces the logging stand-ins behind the built-in job types.
func WithCollaborators(collaborators client.Collaborators) ContainerOption {
	return func(c *containerConfig) {
		c.collaborators = collaborators
	}
}

func WithManagerOptions(opts ...client.ManagerOption) ContainerOption {
	return func(c *containerConfig) {
		c.managerOpts = append(c.managerOpts, opts...)
	}
}
