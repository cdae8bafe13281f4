package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alphawulf/alphawulf-hub/config"
	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/persistence/postgres"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/persistence/sqlite"
)

// backend is an opened store, independent of the driver.
type backend struct {
	Accounts account.Repository
	Progress progress.Repository
	Catalog  progress.CatalogRepository

	driver string
	pg     *postgres.Connection
	lite   *sqlite.Store
}

// Ping checks the store connection.
func (b *backend) Ping(ctx context.Context) error {
	if b.pg != nil {
		return b.pg.Ping(ctx)
	}
	return b.lite.Ping(ctx)
}

// Close releases the store.
func (b *backend) Close() error {
	if b.pg != nil {
		b.pg.Close()
		return nil
	}
	return b.lite.Close()
}

// openBackend connects to the configured store. SQLite always applies its
// migrations on open; Postgres only when migrate is set.
func openBackend(ctx context.Context, cfg *config.Config, migrate bool, log *slog.Logger) (*backend, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		opts := postgres.DefaultPoolOptions()
		opts.MaxConns = cfg.Database.MaxConns
		opts.MinConns = cfg.Database.MinConns
		opts.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		opts.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

		conn, err := postgres.Connect(ctx, cfg.Database.URL, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if migrate {
			applied, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				conn.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("migrations completed", slog.Int("applied", applied))
		}
		return &backend{
			Accounts: postgres.NewAccountRepository(conn),
			Progress: postgres.NewProgressRepository(conn),
			Catalog:  postgres.NewCatalogRepository(conn),
			driver:   config.DriverPostgres,
			pg:       conn,
		}, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return &backend{
			Accounts: store.Accounts(),
			Progress: store.Progress(),
			Catalog:  store.Catalog(),
			driver:   config.DriverSQLite,
			lite:     store,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}
