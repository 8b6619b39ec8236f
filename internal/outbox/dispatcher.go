// Package outbox implements the transactional-outbox dispatcher described
// in SPEC_FULL.md §4.7: it claims a batch of unpublished outbox rows with
// FOR UPDATE SKIP LOCKED, publishes each to the event bus in outbox_id
// order, and marks the batch published inside the same transaction — so a
// publish failure aborts the whole batch and leaves it for the next cycle
// rather than risk a gap.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/market-ingest/internal/events"
	"github.com/arc-self/market-ingest/internal/platform/bus"
	"github.com/arc-self/market-ingest/internal/store"
)

// Publisher is the narrow bus dependency the dispatcher needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Store is the narrow slice of store.Queries the dispatcher needs.
type Store interface {
	ListUnpublishedOutbox(ctx context.Context, limit int32) ([]store.OutboxRow, error)
	MarkOutboxPublished(ctx context.Context, outboxID int64, publishedAt time.Time) error
}

// Executor runs the dispatcher's claim-publish-mark cycle as one scoped
// transaction, matching the connector framework's Executor split.
type Executor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}

// Dispatcher drains the outbox table on a fixed interval.
type Dispatcher struct {
	tx        Executor
	publisher Publisher
	batchSize int32
	logger    *zap.Logger
}

// New builds a Dispatcher. A non-positive batchSize defaults to 100.
func New(tx Executor, publisher Publisher, batchSize int32, logger *zap.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{tx: tx, publisher: publisher, batchSize: batchSize, logger: logger}
}

// Run polls every interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := d.DispatchOnce(ctx)
		if err != nil {
			d.logger.Error("outbox dispatch cycle failed", zap.Error(err))
		} else if n > 0 {
			d.logger.Info("outbox dispatch cycle complete", zap.Int("dispatched", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce claims up to one batch of unpublished rows and publishes
// them in outbox_id order, returning how many were dispatched. The whole
// batch runs inside one transaction: if any publish fails, the
// transaction rolls back and every row in the batch remains unpublished
// for the next cycle (SPEC_FULL.md §4.7): no row is marked published
// without a confirmed publish.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	dispatched := 0
	err := d.tx.WithTx(ctx, func(ctx context.Context, s Store) error {
		rows, err := s.ListUnpublishedOutbox(ctx, d.batchSize)
		if err != nil {
			return fmt.Errorf("outbox: list unpublished: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		now := time.Now().UTC()
		for _, row := range rows {
			subject, err := subjectForPayload(row.PayloadJSON)
			if err != nil {
				return fmt.Errorf("outbox: determine subject for outbox_id=%d: %w", row.OutboxID, err)
			}

			if err := d.publisher.Publish(ctx, subject, row.PayloadJSON); err != nil {
				return fmt.Errorf("outbox: publish outbox_id=%d: %w", row.OutboxID, err)
			}
			if err := s.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
				return fmt.Errorf("outbox: mark published outbox_id=%d: %w", row.OutboxID, err)
			}
			dispatched++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return dispatched, nil
}

// subjectForPayload extracts the canonical event's eventType to build the
// publish subject, matching bus.SubjectFor's "DOMAIN_EVENTS.<eventType>"
// convention.
func subjectForPayload(payload json.RawMessage) (string, error) {
	var env struct {
		EventType events.EventType `json:"eventType"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", err
	}
	return bus.SubjectFor(string(env.EventType)), nil
}
