package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx opens a transaction on pool, runs fn with a Queries bound to that
// transaction, and commits on a nil return or rolls back otherwise. This is
// the Go expression of the original "scoped session: commit on success,
// rollback on exception, always close" contract (SPEC_FULL.md §9), and
// matches the donor's inline pool.Begin/defer tx.Rollback/tx.Commit shape
// used throughout its worker loops.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context, q *Queries) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, New(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
