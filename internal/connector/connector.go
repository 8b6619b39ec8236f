// Package connector implements the generic fetch → normalize → persist loop
// described in SPEC_FULL.md §4.5. A connector is parameterized by a source
// adapter (Adapter) supplying Fetch and Normalize; RunOnce drives one poll
// cycle, transactionally deduping and persisting each record and, in emit
// mode, enqueuing a companion outbox row.
package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arc-self/market-ingest/internal/blobstore"
	"github.com/arc-self/market-ingest/internal/events"
	"github.com/arc-self/market-ingest/internal/store"
	"github.com/arc-self/market-ingest/internal/telemetry"
)

// Mode gates whether RunOnce enqueues an outbox row alongside the event
// row: "shadow" persists only, "emit" also publishes downstream.
type Mode string

const (
	ModeShadow Mode = "shadow"
	ModeEmit   Mode = "emit"
)

// RawRecord is one unit of work yielded by an adapter's Fetch.
type RawRecord struct {
	// Raw is the exact bytes archived under the raw/ blob prefix.
	Raw []byte
	// TsEvent is the record's own event time, if the adapter knows it up
	// front. It may be the zero Time; RunOnce falls back to the ingest
	// instant in that case (SPEC_FULL.md §4.5 step 2).
	TsEvent time.Time
}

// Normalized is the partial canonical event an adapter's Normalize
// produces; RunOnce fills in the remaining envelope fields (event_id,
// ts_ingested, dedupe_key when omitted).
type Normalized struct {
	EventType  events.EventType
	TsEvent    time.Time
	Symbol     string
	EntityID   string
	Severity   int
	Confidence *float64
	Payload    map[string]interface{}
	// DedupeKey is optional; when empty RunOnce synthesizes
	// sha256(stable-encode(Payload)) per SPEC_FULL.md §4.2.
	DedupeKey string
}

// Adapter is implemented by each source (disclosure, forum, mock, ...).
type Adapter interface {
	// Fetch returns one poll cycle's worth of raw records. Each invocation
	// represents one cycle; the result is not restartable.
	Fetch(ctx context.Context) ([]RawRecord, error)
	// Normalize maps one raw record onto a partial canonical event.
	Normalize(ctx context.Context, raw RawRecord) (Normalized, error)
}

// Stats is the per-cycle return value of RunOnce; it is the single source
// of truth for a cycle's outcome (SPEC_FULL.md §7 — no error propagates out
// of RunOnce for per-record failures).
type Stats struct {
	Fetched  int
	Ingested int
	Deduped  int
	Errors   int
}

// Config parameterizes one Runner.
type Config struct {
	Name   string
	Source events.Source
	Mode   Mode
}

// Runner drives RunOnce for one adapter.
type Runner struct {
	cfg     Config
	adapter Adapter
	tx      Executor
	blobs   blobstore.Store
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

// NewRunner builds a Runner.
func NewRunner(cfg Config, adapter Adapter, tx Executor, blobs blobstore.Store, metrics *telemetry.Metrics, logger *zap.Logger) *Runner {
	return &Runner{cfg: cfg, adapter: adapter, tx: tx, blobs: blobs, metrics: metrics, logger: logger}
}

// RunOnce performs one poll cycle: fetch, then for each raw record, persist
// independently so that one record's failure does not abort the others.
func (r *Runner) RunOnce(ctx context.Context) Stats {
	var stats Stats

	raws, err := r.adapter.Fetch(ctx)
	if err != nil {
		r.logger.Error("connector fetch failed", zap.String("connector", r.cfg.Name), zap.Error(err))
		stats.Errors++
		r.metrics.IncError(ctx, r.cfg.Name)
		return stats
	}
	stats.Fetched = len(raws)

	for _, raw := range raws {
		if err := r.processOne(ctx, raw, &stats); err != nil {
			r.logger.Error("connector record failed",
				zap.String("connector", r.cfg.Name), zap.Error(err))
			stats.Errors++
			r.metrics.IncError(ctx, r.cfg.Name)
		}
	}
	return stats
}

func (r *Runner) processOne(ctx context.Context, raw RawRecord, stats *Stats) error {
	now := time.Now().UTC()
	eventID := uuid.NewString()

	normalized, err := r.adapter.Normalize(ctx, raw)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	tsEvent := normalized.TsEvent
	if tsEvent.IsZero() {
		tsEvent = raw.TsEvent
	}
	if tsEvent.IsZero() {
		tsEvent = now
	}
	tsEvent = tsEvent.UTC()

	rawKey := blobstore.RawKey(string(r.cfg.Source), tsEvent, eventID)
	if err := r.blobs.Put(ctx, rawKey, raw.Raw); err != nil {
		return fmt.Errorf("write raw blob: %w", err)
	}

	dedupeKey := normalized.DedupeKey
	if dedupeKey == "" {
		h, err := events.StableHash(normalized.Payload)
		if err != nil {
			return fmt.Errorf("synthesize dedupe key: %w", err)
		}
		dedupeKey = h
	}

	payloadJSON, err := json.Marshal(normalized.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	canonical := events.Event{
		EventID:       eventID,
		SchemaVersion: "v1",
		EventType:     normalized.EventType,
		Source:        r.cfg.Source,
		Symbol:        normalized.Symbol,
		EntityID:      normalized.EntityID,
		TsEvent:       tsEvent,
		TsIngested:    now,
		DedupeKey:     dedupeKey,
		Severity:      normalized.Severity,
		Confidence:    normalized.Confidence,
		Payload:       payloadJSON,
	}
	if err := canonical.Validate(); err != nil {
		return fmt.Errorf("validate canonical event: %w", err)
	}

	canonicalJSON, err := events.Encode(&canonical)
	if err != nil {
		return fmt.Errorf("encode canonical event: %w", err)
	}

	var symbolPtr, entityIDPtr *string
	if canonical.Symbol != "" {
		symbolPtr = &canonical.Symbol
	}
	if canonical.EntityID != "" {
		entityIDPtr = &canonical.EntityID
	}

	var deduped bool
	txErr := r.tx.WithTx(ctx, func(ctx context.Context, q Store) error {
		_, err := q.GetEventByDedupeKey(ctx, dedupeKey)
		if err == nil {
			deduped = true
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("check dedupe: %w", err)
		}

		if err := q.InsertEvent(ctx, store.InsertEventParams{
			EventID:       canonical.EventID,
			SchemaVersion: canonical.SchemaVersion,
			EventType:     string(canonical.EventType),
			Source:        string(canonical.Source),
			Symbol:        symbolPtr,
			EntityID:      entityIDPtr,
			TsEvent:       canonical.TsEvent,
			TsIngested:    canonical.TsIngested,
			DedupeKey:     canonical.DedupeKey,
			Severity:      int32(canonical.Severity),
			Confidence:    canonical.Confidence,
			PayloadJSON:   canonical.Payload,
			RawS3URI:      strPtr(rawKey),
		}); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		if r.cfg.Mode == ModeEmit {
			if err := q.InsertOutboxEvent(ctx, store.InsertOutboxParams{
				EventID:     canonical.EventID,
				PayloadJSON: canonicalJSON,
			}); err != nil {
				return fmt.Errorf("insert outbox: %w", err)
			}
		}

		return nil
	})
	if txErr != nil {
		return txErr
	}

	if deduped {
		stats.Deduped++
		r.metrics.IncDeduped(ctx)
		return nil
	}

	stats.Ingested++
	r.metrics.ObserveIngestionLag(ctx, string(r.cfg.Source), tsEvent, now)

	// Best-effort, after commit: write the canonical blob and record its
	// location. Failure here is logged and does not undo the commit —
	// replay can regenerate a missing canonical blob later.
	eventKey := blobstore.EventKey(string(canonical.EventType), tsEvent, eventID)
	if err := r.blobs.Put(ctx, eventKey, canonicalJSON); err != nil {
		r.logger.Warn("canonical blob write failed after commit",
			zap.String("event_id", eventID), zap.Error(err))
		return nil
	}
	if err := r.tx.SetEventNormalizedURI(ctx, eventID, eventKey); err != nil {
		r.logger.Warn("failed to record canonical blob location",
			zap.String("event_id", eventID), zap.Error(err))
	}
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
