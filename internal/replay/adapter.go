package replay

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arc-self/market-ingest/internal/store"
)

// poolStore is the production Store, backed directly by the shared pool —
// replay only reads, so it needs no transaction scope.
type poolStore struct {
	pool *pgxpool.Pool
}

// NewPoolStore builds the production Store used by cmd/ingestd.
func NewPoolStore(pool *pgxpool.Pool) Store {
	return poolStore{pool: pool}
}

func (s poolStore) ListEventsInWindow(ctx context.Context, column store.TimestampColumn, start, end time.Time) ([]store.OutboxRow, error) {
	return store.New(s.pool).ListEventsInWindow(ctx, column, start, end)
}
