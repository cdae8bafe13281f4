package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/persistence/postgres"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
)

// ErrRollbackUnsupported is returned by "migrate down" on SQLite.
var ErrRollbackUnsupported = errors.New("rollback is only supported for the postgres driver")

// NewMigrateCommand creates the migrate command group.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:          "up",
		Short:        "Apply pending migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, rootOpts, schemaLatest, func(ctx context.Context, b *backend) error {
				fmt.Fprintf(cmd.OutOrStdout(), "schema is up to date (%s)\n", b.driver)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:          "down",
		Short:        "Roll back the most recent migration (postgres only)",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, rootOpts, schemaAsIs, func(ctx context.Context, b *backend) error {
				if b.pg == nil {
					return ErrRollbackUnsupported
				}
				if err := postgres.NewMigrator(b.pg).Rollback(ctx); err != nil {
					return fmt.Errorf("rollback: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back 1 migration")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:          "status",
		Short:        "Show applied migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, rootOpts, schemaAsIs, func(ctx context.Context, b *backend) error {
				return printMigrationStatus(ctx, cmd.OutOrStdout(), b)
			})
		},
	})

	return cmd
}

func printMigrationStatus(ctx context.Context, out io.Writer, b *backend) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MIGRATION\tSTATUS\tAPPLIED AT")

	if b.pg != nil {
		status, err := postgres.NewMigrator(b.pg).Status(ctx)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		for _, m := range status {
			state, at := "pending", "-"
			if m.IsApplied {
				state, at = "applied", m.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%03d_%s\t%s\t%s\n", m.Version, m.Name, state, at)
		}
		return w.Flush()
	}

	applied, err := b.lite.AppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	for _, m := range applied {
		fmt.Fprintf(w, "%s\tapplied\t%s\n", m.Name, m.AppliedAt.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}

// schemaMode decides whether withStore applies Postgres migrations.
type schemaMode int

const (
	schemaAsIs   schemaMode = iota // never migrate
	schemaAuto                     // migrate when DB_AUTO_MIGRATE is set
	schemaLatest                   // always migrate
)

// withStore loads the database configuration, opens the store, runs fn and
// closes the store.
func withStore(cmd *cobra.Command, opts *RootOptions, mode schemaMode, fn func(context.Context, *backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.ValidateDatabase(); err != nil {
		return err
	}
	log := newLogger(cfg)

	migrate := mode == schemaLatest || (mode == schemaAuto && cfg.Database.AutoMigrate)
	b, err := openBackend(ctx, cfg, migrate, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("failed to close store", logger.Err(err))
		}
	}()
	return fn(ctx, b)
}
