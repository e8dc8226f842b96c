// Package postgres opens the shared relational store on Postgres.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/dwsmith1983/wastecal/internal/provider/sqlstore"
)

// New connects to Postgres, verifies the connection and applies the schema.
func New(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	store := sqlstore.New(stdlib.OpenDBFromPool(pool), sqlstore.Postgres)
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		pool.Close()
		return nil, err
	}
	return store, nil
}
