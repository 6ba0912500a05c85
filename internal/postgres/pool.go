// Package postgres opens the PostgreSQL pool used by the record store and
// instruments every query with a span, a log line on error or slowness, and
// an optional duration observer.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/go-core/log"
)

// Options configures query instrumentation for NewPool.
type Options struct {
	Logger log.Logger
	// Observer receives every query duration. Optional.
	Observer QueryObserver
	// SlowQuery is the duration above which successful queries are logged.
	// Zero logs every query.
	SlowQuery time.Duration
}

// NewPool parses databaseURL, installs the tracer and pings the server.
func NewPool(ctx context.Context, databaseURL string, opts Options) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.ConnConfig.Tracer = newQueryTracer(otelpgx.NewTracer(), opts)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}
