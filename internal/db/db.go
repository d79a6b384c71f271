// Package db selects and opens the concrete task store.
package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"donotmiss/pkg/task"
)

// OpenStore opens the task store named by databaseURL and returns it with
// a close function. An empty URL yields an in-memory store.
func OpenStore(ctx context.Context, databaseURL string) (task.Store, func(), error) {
	switch {
	case databaseURL == "":
		return task.NewMemStore(), func() {}, nil

	case strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://"):
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := task.NewPgStore(pool)
		if err := store.EnsureTable(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure tasks table: %w", err)
		}
		return store, pool.Close, nil

	default:
		path := strings.TrimPrefix(databaseURL, "sqlite:")
		store, err := task.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
}
