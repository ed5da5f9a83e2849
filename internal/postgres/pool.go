// Package postgres builds the pgx connection pool with query tracing,
// slow-query logging and per-query metrics.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSlowQuery is the threshold above which successful queries are logged.
const DefaultSlowQuery = 250 * time.Millisecond

// PoolOption configures NewPool.
type PoolOption func(*poolOptions)

type poolOptions struct {
	maxConns  int32
	slowQuery time.Duration
	pingWait  time.Duration
}

// WithMaxConns caps the pool size.
func WithMaxConns(n int32) PoolOption {
	return func(o *poolOptions) { o.maxConns = n }
}

// WithSlowQuery sets the slow-query logging threshold. Zero logs every query.
func WithSlowQuery(d time.Duration) PoolOption {
	return func(o *poolOptions) { o.slowQuery = d }
}

// NewPool connects to databaseURL and verifies the connection. Queries are
// traced with otelpgx and logged through the context logger.
func NewPool(ctx context.Context, databaseURL string, opts ...PoolOption) (*pgxpool.Pool, error) {
	o := poolOptions{maxConns: 4, slowQuery: DefaultSlowQuery, pingWait: 5 * time.Second}
	for _, fn := range opts {
		fn(&o)
	}

	pc, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if o.maxConns > 0 {
		pc.MaxConns = o.maxConns
	}
	pc.ConnConfig.Tracer = wrapQueryTracer(otelpgx.NewTracer(), o.slowQuery)

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, o.pingWait)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := otelpgx.RecordStats(pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("record pool stats: %w", err)
	}
	return pool, nil
}
