package postgres

import (
	"context"
	"fmt"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

type Options struct {
	DSN      string
	MaxConns int32
	Migrate  bool // apply embedded migrations before opening the pool
}

// Connect opens a pool for orders, carts, catalog and sellers.
func Connect(ctx context.Context, opts Options) (*pgxpool.Pool, error) {
	if opts.Migrate {
		if err := Migrate(opts.DSN); err != nil {
			return nil, err
		}
	}
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
