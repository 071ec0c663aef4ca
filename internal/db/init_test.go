package db

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/tickqueue/internal/lock"
	"github.com/RezaEskandarii/tickqueue/types/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLockManager struct {
	err error
}

func (m *mockLockManager) WithLock(ctx context.Context, _ int, fn func(ctx context.Context) error) error {
	if m.err != nil {
		return m.err
	}
	return fn(ctx)
}

var _ lock.DistributedLockManager = (*mockLockManager)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReadSQLScripts(t *testing.T) {
	for _, driver := range []config.StorageDriver{config.Postgres, config.Sqlite} {
		scripts, err := readSQLScripts(driver)
		require.NoError(t, err)
		require.Len(t, scripts, 2, driver.String())
		assert.Equal(t, "001_jobs.sql", scripts[0].name)
		assert.Contains(t, scripts[0].body, "CREATE TABLE IF NOT EXISTS")
	}
}

func TestMigrate_Postgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS tickqueue_schema").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tickqueue_schema.jobs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS jobs_claim_idx").WillReturnResult(sqlmock.NewResult(0, 0))

	err = Migrate(context.Background(), config.Postgres, sqlDB, &mockLockManager{}, discardLogger())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_LockFails(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	err = Migrate(context.Background(), config.Postgres, sqlDB, &mockLockManager{err: errors.New("lock busy")}, discardLogger())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_Sqlite_InMemoryAndMigrate(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := Open(ctx, config.Sqlite, "file::memory:")
	require.NoError(t, err)
	defer sqlDB.Close()

	require.NoError(t, Migrate(ctx, config.Sqlite, sqlDB, lock.NoopLockManager{}, discardLogger()))

	var count int
	require.NoError(t, sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StorageDriver(99), "x")
	assert.Error(t, err)
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "jobs.db?_busy_timeout=5000&_foreign_keys=on", sqliteDSN("jobs.db"))
	assert.Equal(t, "file::memory:?cache=shared&_busy_timeout=5000&_foreign_keys=on", sqliteDSN("file::memory:?cache=shared"))
	assert.Equal(t, "x.db?_busy_timeout=10", sqliteDSN("x.db?_busy_timeout=10"))
}
