package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/siteselect-cli/internal/facts"
	"github.com/sells-group/siteselect-cli/internal/rollup"
	"github.com/sells-group/siteselect-cli/internal/scoring"
	"github.com/sells-group/siteselect-cli/internal/screen"
)

// openPool connects to Postgres using the configured pool sizing.
func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "parse connection string")
	}
	if cfg.Store.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Store.MaxConns
	}
	if cfg.Store.MinConns > 0 {
		poolCfg.MinConns = cfg.Store.MinConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ping database")
	}

	return pool, nil
}

// migrateAll ensures every table exists before a command touches the store.
func migrateAll(ctx context.Context, pool *pgxpool.Pool) error {
	if err := facts.NewCatalogProvider(pool).Migrate(ctx); err != nil {
		return err
	}
	if err := screen.NewPostgresStore(pool).Migrate(ctx); err != nil {
		return err
	}
	if err := rollup.NewStore(pool).Migrate(ctx); err != nil {
		return err
	}
	return scoring.NewStore(pool).Migrate(ctx)
}
