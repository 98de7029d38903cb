// Package storeopen opens the configured progress store for cadence
// commands.
package storeopen

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/cadence/pkg/config"
	"github.com/papercomputeco/cadence/pkg/dotdir"
	"github.com/papercomputeco/cadence/pkg/storage"
	"github.com/papercomputeco/cadence/pkg/storage/inmemory"
	"github.com/papercomputeco/cadence/pkg/storage/postgres"
	"github.com/papercomputeco/cadence/pkg/storage/retry"
	"github.com/papercomputeco/cadence/pkg/storage/sqlite"
)

// Storage driver names accepted by storage.driver.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
	Memory   = "memory"
)

// Open returns the store selected by cfg wrapped with retries and attempt
// timeouts. A SQLite store without an explicit path lives in the resolved
// .cadence/ directory.
func Open(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (storage.Driver, error) {
	driver, err := open(ctx, cfg, configDir, log)
	if err != nil {
		return nil, err
	}

	return retry.New(driver, retry.Config{
		MaxAttempts:    int(cfg.Sync.MaxAttempts),
		AttemptTimeout: cfg.Sync.WriteTimeout.Duration,
		Logger:         log,
	}), nil
}

func open(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (storage.Driver, error) {
	switch cfg.Storage.Driver {
	case SQLite, "":
		path := cfg.Storage.SQLitePath
		if path == "" {
			dir, err := dotdir.NewManager().Ensure(configDir)
			if err != nil {
				return nil, fmt.Errorf("resolving sqlite path: %w", err)
			}
			path = cfg.SQLitePath(dir)
		}

		driver, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		log.Info("using SQLite storage", "path", path)
		return driver, nil

	case Postgres:
		if cfg.Storage.PostgresDSN == "" {
			return nil, fmt.Errorf("storage.postgres_dsn is required for the %s driver", Postgres)
		}
		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		log.Info("using PostgreSQL storage")
		return driver, nil

	case Memory:
		log.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %q (supported: %s, %s, %s)", cfg.Storage.Driver, SQLite, Postgres, Memory)
	}
}
