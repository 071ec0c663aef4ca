package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/RezaEskandarii/tickqueue/client"
	"github.com/RezaEskandarii/tickqueue/internal/db"
	"github.com/RezaEskandarii/tickqueue/internal/lock"
	"github.com/RezaEskandarii/tickqueue/internal/message_broaker"
	"github.com/RezaEskandarii/tickqueue/internal/middleware"
	"github.com/RezaEskandarii/tickqueue/internal/registry"
	"github.com/RezaEskandarii/tickqueue/internal/store"
	"github.com/RezaEskandarii/tickqueue/internal/store/memory"
	"github.com/RezaEskandarii/tickqueue/internal/store/postgres"
	"github.com/RezaEskandarii/tickqueue/internal/store/sqlite"
	"github.com/RezaEskandarii/tickqueue/ratelimit"
	"github.com/RezaEskandarii/tickqueue/types/config"
	"github.com/RezaEskandarii/tickqueue/web"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies. Connections are created once
// and released by Close.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Storage connections (nil for the memory driver)
	DB    *sql.DB
	Redis *redis.Client

	JobStore      store.JobStore
	LockManager   lock.DistributedLockManager
	MessageBroker message_broaker.MessageBroker

	Registry    *registry.Registry
	Manager     *client.JobQueueManager
	TickDriver  *client.TickDriver
	QueueWriter *client.QueueWriter

	Limiter       *ratelimit.Limiter
	MemoryCounter *ratelimit.MemoryCounter // nil when Redis backs the limiter
	RouteHandler  *web.HttpRouteHandler

	collaborators client.Collaborators
	closers       []func() error
}

// NewContainer creates and wires all dependencies. Call Close when done.
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (_ *Container, err error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	logger := opt.logger
	if logger == nil {
		logger = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	c := &Container{Config: cfg, Logger: logger, collaborators: opt.collaborators}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	if err := c.initStorage(ctx, opt.db); err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	c.Registry = registry.New()
	if err := c.EnsureHandlers(); err != nil {
		return nil, err
	}

	managerOpts := append([]client.ManagerOption{
		client.WithLogger(logger),
		client.WithMiddleware(middleware.Logging(logger), middleware.Metrics()),
	}, opt.managerOpts...)
	c.Manager = client.NewJobQueueManager(c.JobStore, c.Registry, managerOpts...)
	c.TickDriver = client.NewTickDriver(c.Manager,
		client.WithStaleAfter(cfg.StaleJobAfter),
		client.WithTickLogger(logger),
	)

	if err := c.initRateLimiter(ctx, opt.redis); err != nil {
		return nil, fmt.Errorf("init rate limiter: %w", err)
	}

	c.MessageBroker = opt.broker
	if c.MessageBroker == nil && cfg.UseQueueWriter {
		broker, err := message_broaker.NewRabbitMQ(*cfg.RabbitMQConfig)
		if err != nil {
			return nil, fmt.Errorf("init rabbitmq: %w", err)
		}
		c.MessageBroker = broker
		c.closers = append(c.closers, broker.Close)
	}
	if c.MessageBroker != nil {
		c.QueueWriter = client.NewQueueWriter(c.MessageBroker, c.Manager, client.WithQueueWriterLogger(logger))
	}

	c.RouteHandler = web.NewRouteHandler(web.RouteConfig{
		Manager:  c.Manager,
		Driver:   c.TickDriver,
		Limiter:  c.Limiter,
		Identify: ratelimit.NewIdentifier(cfg.TrustedProxies),
		Auth: web.AuthConfig{
			CronSecret:    cfg.CronSecret,
			DevTriggerKey: cfg.DevTriggerKey,
			Development:   cfg.IsDevelopment(),
		},
		MaxJobsPerTick: cfg.MaxJobsPerTick,
		Logger:         logger,
		EnsureHandlers: c.EnsureHandlers,
		Ping:           c.JobStore.Ping,
	})

	return c, nil
}

// EnsureHandlers registers the built-in job handlers. Repeated calls are no-ops.
func (c *Container) EnsureHandlers() error {
	return client.RegisterHandlers(c.Registry, c.collaborators, c.Logger)
}

func (c *Container) initStorage(ctx context.Context, injected *sql.DB) error {
	cfg := c.Config
	if cfg.StorageDriver == config.Memory {
		c.JobStore = memory.New()
		c.LockManager = lock.NoopLockManager{}
		return nil
	}

	sqlDB := injected
	if sqlDB == nil {
		opened, err := db.Open(ctx, cfg.StorageDriver, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		sqlDB = opened
		c.closers = append(c.closers, opened.Close)
	}
	c.DB = sqlDB

	switch cfg.StorageDriver {
	case config.Postgres:
		c.JobStore = postgres.NewPostgresJobStore(sqlDB)
		c.LockManager = lock.NewPostgresDistributedLockManager(sqlDB)
	case config.Sqlite:
		c.JobStore = sqlite.NewSqliteJobStore(sqlDB)
		c.LockManager = lock.NoopLockManager{}
	default:
		return fmt.Errorf("unsupported storage driver: %v", cfg.StorageDriver)
	}

	return db.Migrate(ctx, cfg.StorageDriver, sqlDB, c.LockManager, c.Logger)
}

func (c *Container) initRateLimiter(ctx context.Context, injected *redis.Client) error {
	redisClient := injected
	if redisClient == nil && c.Config.RedisURL != "" {
		opts, err := redis.ParseURL(c.Config.RedisURL)
		if err != nil {
			return err
		}
		redisClient = redis.NewClient(opts)
		c.closers = append(c.closers, redisClient.Close)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	if redisClient != nil {
		c.Redis = redisClient
		c.Limiter = ratelimit.NewLimiter(ratelimit.NewRedisCounter(redisClient))
		return nil
	}

	c.MemoryCounter = ratelimit.NewMemoryCounter()
	c.Limiter = ratelimit.NewLimiter(c.MemoryCounter)
	return nil
}

// Close releases every connection the container opened, newest first.
// Injected connections are left to their owner.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// NewLogger builds the process logger writing to stderr.
func NewLogger(level slog.Level, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
