package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/arc-self/market-ingest/internal/platform/bus"
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

// busPublisher adapts a *bus.Client to the dispatcher's Publisher
// interface, publishing onto the DOMAIN_EVENTS stream.
type busPublisher struct {
	client *bus.Client
}

// NewBusPublisher builds the production Publisher used by cmd/ingestd.
func NewBusPublisher(client *bus.Client) Publisher {
	return busPublisher{client: client}
}

func (p busPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := p.client.JS.Publish(subject, data, nats.Context(ctx))
	return err
}
