package connector

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arc-self/market-ingest/internal/store"
)

// Store is the narrow slice of store.Queries the connector framework needs.
// Defining it here (rather than depending on *store.Queries directly) lets
// tests substitute a hand-rolled fake, matching the donor's mocked-Querier
// convention (see discovery-service's dictionary_service_test.go).
type Store interface {
	GetEventByDedupeKey(ctx context.Context, key string) (store.EventRow, error)
	InsertEvent(ctx context.Context, p store.InsertEventParams) error
	InsertOutboxEvent(ctx context.Context, p store.InsertOutboxParams) error
}

// Executor runs one persist step as a scoped transaction and applies the
// best-effort post-commit update of an event's canonical blob location.
type Executor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
	SetEventNormalizedURI(ctx context.Context, eventID, uri string) error
}

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

func (e poolExecutor) SetEventNormalizedURI(ctx context.Context, eventID, uri string) error {
	return store.New(e.pool).SetEventNormalizedURI(ctx, eventID, uri)
}
