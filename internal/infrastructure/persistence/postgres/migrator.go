package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockKey is the pg_advisory_lock key held while the schema changes,
// so replicas started together with AUTO_MIGRATE do not race.
const migrationLockKey int64 = 0x616c706877756c66

// Migration is one versioned schema step. AppliedAt and IsApplied are only
// filled by Status.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded migrations in version order.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: Migrations()}
}

// locked runs fn on one pooled connection holding the advisory lock.
// schema_migrations is created first.
func (m *Migrator) locked(ctx context.Context, fn func(c *pgxpool.Conn, applied map[int]time.Time) error) error {
	if m.conn.done.Load() {
		return ErrConnectionClosed
	}
	c, err := m.conn.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer c.Release()

	if _, err := c.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("take migration lock: %w", err)
	}
	defer func() {
		// fresh context: ctx may already be cancelled
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = c.Exec(unlockCtx, "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	if _, err := c.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := c.Query(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	applied := make(map[int]time.Time)
	var (
		version int
		at      time.Time
	)
	if _, err := pgx.ForEachRow(rows, []any{&version, &at}, func() error {
		applied[version] = at
		return nil
	}); err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}

	return fn(c, applied)
}

// step runs sql and the bookkeeping statement in one transaction.
func step(ctx context.Context, c *pgxpool.Conn, sql, bookkeeping string, args ...any) error {
	return pgx.BeginFunc(ctx, c, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, bookkeeping, args...)
		return err
	})
}

// Migrate applies every pending migration and reports how many ran.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	n := 0
	err := m.locked(ctx, func(c *pgxpool.Conn, applied map[int]time.Time) error {
		for _, mig := range m.migrations {
			if _, done := applied[mig.Version]; done {
				continue
			}
			err := step(ctx, c, mig.UpSQL,
				"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", mig.Version, mig.Name)
			if err != nil {
				return fmt.Errorf("%w: %03d_%s: %v", ErrMigrationFailed, mig.Version, mig.Name, err)
			}
			n++
		}
		return nil
	})
	return n, err
}

// Rollback reverts the newest applied migration. Nothing applied is not an error.
func (m *Migrator) Rollback(ctx context.Context) error {
	return m.locked(ctx, func(c *pgxpool.Conn, applied map[int]time.Time) error {
		if len(applied) == 0 {
			return nil
		}
		versions := make([]int, 0, len(applied))
		for v := range applied {
			versions = append(versions, v)
		}
		last := slices.Max(versions)

		i := slices.IndexFunc(m.migrations, func(mig Migration) bool { return mig.Version == last })
		if i < 0 || m.migrations[i].DownSQL == "" {
			return fmt.Errorf("%w: no down step for version %d", ErrMigrationFailed, last)
		}
		mig := m.migrations[i]
		if err := step(ctx, c, mig.DownSQL, "DELETE FROM schema_migrations WHERE version = $1", last); err != nil {
			return fmt.Errorf("%w: rollback %03d_%s: %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
		return nil
	})
}

// Status lists the known migrations with their applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	var out []Migration
	err := m.locked(ctx, func(_ *pgxpool.Conn, applied map[int]time.Time) error {
		out = slices.Clone(m.migrations)
		for i := range out {
			out[i].AppliedAt, out[i].IsApplied = applied[out[i].Version]
		}
		return nil
	})
	return out, err
}
