// Package enrichment implements the model-insight enrichment consumer
// supplemented from the original's enrichment/base.py: it consumes
// canonical events off the bus, skips re-annotating content it has
// already paid to annotate (content-hash cost dedupe), and emits a
// MODEL.INSIGHT event plus an artifact row through the same
// store+outbox path every connector uses.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arc-self/market-ingest/internal/blobstore"
	"github.com/arc-self/market-ingest/internal/events"
	"github.com/arc-self/market-ingest/internal/store"
	"github.com/arc-self/market-ingest/internal/telemetry"
)

// Annotator produces a model insight for one canonical event. Keys in the
// returned map become the MODEL.INSIGHT event's payload; "confidence", if
// present and a float64, becomes the insight event's confidence field.
type Annotator interface {
	Annotate(ctx context.Context, event *events.Event) (map[string]interface{}, error)
}

// Mode gates whether Process enqueues an outbox row for the insight
// event, mirroring connector.Mode.
type Mode string

const (
	ModeShadow Mode = "shadow"
	ModeEmit   Mode = "emit"
)

// Store is the narrow slice of store.Queries the enrichment consumer
// needs.
type Store interface {
	InsertEventArtifact(ctx context.Context, p store.InsertEventArtifactParams) error
	InsertEvent(ctx context.Context, p store.InsertEventParams) error
	InsertOutboxEvent(ctx context.Context, p store.InsertOutboxParams) error
}

// Executor runs Process's persist step as a scoped transaction.
type Executor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}

// Config parameterizes a Consumer.
type Config struct {
	ModelName string
	Mode      Mode
	// PerDayUSDCap and PerEventTokenLimit bound spend; enforcement is the
	// caller Annotator's responsibility (it has the pricing knowledge).
	// Consumer neither enforces them nor records spend in Metrics.
	PerDayUSDCap       float64
	PerEventTokenLimit int
}

// Consumer applies an Annotator to canonical events, deduping repeat
// content by hash so the same payload is never paid for twice.
type Consumer struct {
	cfg       Config
	annotator Annotator
	tx        Executor
	blobs     blobstore.Store
	metrics   *telemetry.Metrics
	logger    *zap.Logger

	mu            sync.Mutex
	seenContent   map[string]struct{}
}

// New builds a Consumer.
func New(cfg Config, annotator Annotator, tx Executor, blobs blobstore.Store, metrics *telemetry.Metrics, logger *zap.Logger) *Consumer {
	return &Consumer{
		cfg:         cfg,
		annotator:   annotator,
		tx:          tx,
		blobs:       blobs,
		metrics:     metrics,
		logger:      logger,
		seenContent: map[string]struct{}{},
	}
}

// Process annotates one canonical event and persists/emits the resulting
// MODEL.INSIGHT event. It returns (false, nil) when the event's payload
// content hash was already annotated (cost dedupe), in which case nothing
// is persisted.
func (c *Consumer) Process(ctx context.Context, event *events.Event) (bool, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return false, fmt.Errorf("enrichment: decode event payload: %w", err)
	}

	contentHash, err := events.StableHash(payload)
	if err != nil {
		return false, fmt.Errorf("enrichment: hash payload: %w", err)
	}

	if c.alreadyAnnotated(contentHash) {
		return false, nil
	}

	insight, err := c.annotator.Annotate(ctx, event)
	if err != nil {
		return false, fmt.Errorf("enrichment: annotate: %w", err)
	}
	c.markAnnotated(contentHash)

	now := time.Now().UTC()
	insightEventID := uuid.NewString()

	var confidence *float64
	if v, ok := insight["confidence"].(float64); ok {
		confidence = &v
	}

	insightPayload, err := json.Marshal(insight)
	if err != nil {
		return false, fmt.Errorf("enrichment: marshal insight: %w", err)
	}

	insightEvent := events.Event{
		EventID:       insightEventID,
		SchemaVersion: "v1",
		EventType:     events.EventTypeModelInsight,
		Source:        events.SourceLLM,
		Symbol:        event.Symbol,
		EntityID:      event.EntityID,
		TsEvent:       now,
		TsIngested:    now,
		DedupeKey:     fmt.Sprintf("insight:%s:%s:%s", event.EventID, c.cfg.ModelName, contentHash[:12]),
		Severity:      event.Severity,
		Confidence:    confidence,
		Payload:       insightPayload,
	}
	if err := insightEvent.Validate(); err != nil {
		return false, fmt.Errorf("enrichment: validate insight event: %w", err)
	}

	insightJSON, err := events.Encode(&insightEvent)
	if err != nil {
		return false, fmt.Errorf("enrichment: encode insight event: %w", err)
	}

	var symbolPtr, entityIDPtr *string
	if insightEvent.Symbol != "" {
		symbolPtr = &insightEvent.Symbol
	}
	if insightEvent.EntityID != "" {
		entityIDPtr = &insightEvent.EntityID
	}

	txErr := c.tx.WithTx(ctx, func(ctx context.Context, s Store) error {
		if err := s.InsertEventArtifact(ctx, store.InsertEventArtifactParams{
			ArtifactID:   uuid.NewString(),
			EventID:      event.EventID,
			ArtifactType: "MODEL.SUMMARY",
			ModelName:    &c.cfg.ModelName,
			ArtifactJSON: insightPayload,
		}); err != nil {
			return fmt.Errorf("insert artifact: %w", err)
		}

		if err := s.InsertEvent(ctx, store.InsertEventParams{
			EventID:       insightEvent.EventID,
			SchemaVersion: insightEvent.SchemaVersion,
			EventType:     string(insightEvent.EventType),
			Source:        string(insightEvent.Source),
			Symbol:        symbolPtr,
			EntityID:      entityIDPtr,
			TsEvent:       insightEvent.TsEvent,
			TsIngested:    insightEvent.TsIngested,
			DedupeKey:     insightEvent.DedupeKey,
			Severity:      int32(insightEvent.Severity),
			Confidence:    insightEvent.Confidence,
			PayloadJSON:   insightEvent.Payload,
		}); err != nil {
			return fmt.Errorf("insert insight event: %w", err)
		}

		if c.cfg.Mode == ModeEmit {
			if err := s.InsertOutboxEvent(ctx, store.InsertOutboxParams{
				EventID:     insightEvent.EventID,
				PayloadJSON: insightJSON,
			}); err != nil {
				return fmt.Errorf("insert outbox: %w", err)
			}
		}
		return nil
	})
	if txErr != nil {
		return false, txErr
	}

	key := blobstore.EnrichedKey(c.cfg.ModelName, string(event.EventType), now, insightEventID)
	if err := c.blobs.Put(ctx, key, insightJSON); err != nil {
		c.logger.Warn("enrichment: best-effort blob write failed", zap.String("event_id", insightEventID), zap.Error(err))
	}

	return true, nil
}

func (c *Consumer) alreadyAnnotated(hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seenContent[hash]
	return ok
}

func (c *Consumer) markAnnotated(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seenContent[hash] = struct{}{}
}
