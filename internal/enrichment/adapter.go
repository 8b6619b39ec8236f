package enrichment

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arc-self/market-ingest/internal/store"
)

// poolExecutor is the production Executor, backed by a Postgres pool.
type poolExecutor struct {
	pool *pgxpool.Pool
}

// NewPoolExecutor builds the production Executor used by cmd/ingestd.
func NewPoolExecutor(pool *pgxpool.Pool) Executor {
	return poolExecutor{pool: pool}
}

func (e poolExecutor) WithTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	return store.WithTx(ctx, e.pool, func(ctx context.Context, q *store.Queries) error {
		return fn(ctx, q)
	})
}
