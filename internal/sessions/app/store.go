package app

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/store"
	"github.com/aussiebroadwan/sessions/internal/sessions/store/drivers/postgres"
	"github.com/aussiebroadwan/sessions/internal/sessions/store/drivers/sqlite"
)

// OpenStore connects to the configured driver and applies migrations.
func OpenStore(ctx context.Context, cfg Config) (store.Store, error) {
	var (
		db  store.Store
		err error
	)
	switch cfg.DatabaseDriver {
	case DriverPostgres:
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		db, err = postgres.NewStore(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	default:
		db, err = sqlite.NewStore(sqlite.DSN(cfg.DatabaseFile))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return db, nil
}
