//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/RezaEskandarii/tickqueue/internal/db"
	"github.com/RezaEskandarii/tickqueue/internal/lock"
	"github.com/RezaEskandarii/tickqueue/internal/store"
	"github.com/RezaEskandarii/tickqueue/internal/store/postgres"
	"github.com/RezaEskandarii/tickqueue/internal/store/storetest"
	"github.com/RezaEskandarii/tickqueue/types/config"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("tickqueue_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sqlDB, err := db.Open(ctx, config.Postgres, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, db.Migrate(ctx, config.Postgres, sqlDB, lock.NewPostgresDistributedLockManager(sqlDB), logger))
	return sqlDB
}

func TestPostgresJobStore_Integration(t *testing.T) {
	sqlDB := startPostgres(t)

	storetest.Run(t, func(t *testing.T) store.JobStore {
		_, err := sqlDB.ExecContext(context.Background(), "TRUNCATE tickqueue_schema.jobs")
		require.NoError(t, err)
		return postgres.NewPostgresJobStore(sqlDB)
	})
}
