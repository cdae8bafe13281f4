// Package postgres implements the PostgreSQL persistence layer: accounts,
// progress records and the achievement catalog.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrConnectionClosed = errors.New("postgres: pool closed")
	ErrMigrationFailed  = errors.New("postgres: migration failed")
)

// ══════════════════════════════════════════════════════════════════════════════
// POOL
// ══════════════════════════════════════════════════════════════════════════════

// PoolOptions tunes the pgx pool. Zero fields take DefaultPoolOptions.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
	}
}

func (o PoolOptions) apply(pc *pgxpool.Config) {
	d := DefaultPoolOptions()
	pc.MaxConns = orDefault(o.MaxConns, d.MaxConns)
	pc.MinConns = min(orDefault(o.MinConns, d.MinConns), pc.MaxConns)
	pc.MaxConnLifetime = orDefault(o.MaxConnLifetime, d.MaxConnLifetime)
	pc.MaxConnIdleTime = orDefault(o.MaxConnIdleTime, d.MaxConnIdleTime)
	pc.HealthCheckPeriod = orDefault(o.HealthCheckPeriod, d.HealthCheckPeriod)
}

func orDefault[T int32 | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

// Connection owns the pgx pool shared by all repositories.
type Connection struct {
	pool *pgxpool.Pool
	done atomic.Bool
}

// Connect parses databaseURL, builds the pool and pings it once.
func Connect(ctx context.Context, databaseURL string, opts PoolOptions) (*Connection, error) {
	pc, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse url: %w", err)
	}
	opts.apply(pc)

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Connection{pool: pool}, nil
}

// Close is idempotent.
func (c *Connection) Close() {
	if c.done.CompareAndSwap(false, true) {
		c.pool.Close()
	}
}

func (c *Connection) Ping(ctx context.Context) error {
	if c.done.Load() {
		return ErrConnectionClosed
	}
	return c.pool.Ping(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES & TRANSACTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (c *Connection) querier() (Querier, error) {
	if c.done.Load() {
		return nil, ErrConnectionClosed
	}
	return c.pool, nil
}

// WithTx runs fn in a read-committed transaction. pgx.BeginFunc commits on a
// nil return and rolls back on error or panic.
func (c *Connection) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	if c.done.Load() {
		return ErrConnectionClosed
	}
	return pgx.BeginTxFunc(ctx, c.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR CODES
// ══════════════════════════════════════════════════════════════════════════════

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func IsUniqueViolation(err error) bool     { return pgCode(err) == codeUniqueViolation }
func IsForeignKeyViolation(err error) bool { return pgCode(err) == codeForeignKeyViolation }
func IsNoRows(err error) bool              { return errors.Is(err, pgx.ErrNoRows) }
