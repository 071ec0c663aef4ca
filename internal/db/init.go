package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/RezaEskandarii/tickqueue/internal/constants"
	"github.com/RezaEskandarii/tickqueue/internal/lock"
	"github.com/RezaEskandarii/tickqueue/types/config"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations
var migrations embed.FS

const schema = "tickqueue_schema"

// Open opens a connection pool for the configured storage driver and verifies it.
func Open(ctx context.Context, driver config.StorageDriver, url string) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case config.Postgres:
		db, err = sql.Open("postgres", url)
	case config.Sqlite:
		db, err = sql.Open("sqlite3", sqliteDSN(url))
		if err == nil && strings.Contains(url, ":memory:") {
			// every pooled connection would otherwise see its own empty database
			db.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver: %v", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// Migrate creates the schema and runs the embedded SQL scripts for driver.
// On Postgres the scripts run under an advisory lock so concurrently starting
// processes do not race each other.
func Migrate(ctx context.Context, driver config.StorageDriver, db *sql.DB, locker lock.DistributedLockManager, logger *slog.Logger) error {
	scripts, err := readSQLScripts(driver)
	if err != nil {
		return err
	}

	return locker.WithLock(ctx, constants.MigrationLock, func(ctx context.Context) error {
		if driver == config.Postgres {
			if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
				return err
			}
		}
		for _, script := range scripts {
			logger.Info("running migration", slog.String("script", script.name))
			if _, err := db.ExecContext(ctx, script.body); err != nil {
				return fmt.Errorf("migration %s: %w", script.name, err)
			}
		}
		return nil
	})
}

type sqlScript struct {
	name string
	body string
}

func readSQLScripts(driver config.StorageDriver) ([]sqlScript, error) {
	dir := path.Join("migrations", driver.String())
	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return nil, err
	}

	var scripts []sqlScript
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := fs.ReadFile(migrations, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		scripts = append(scripts, sqlScript{name: entry.Name(), body: string(content)})
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].name < scripts[j].name })
	return scripts, nil
}

func sqliteDSN(url string) string {
	if strings.Contains(url, "_busy_timeout") {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "_busy_timeout=5000&_foreign_keys=on"
}
