package enrichment_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/market-ingest/internal/blobstore"
	"github.com/arc-self/market-ingest/internal/enrichment"
	"github.com/arc-self/market-ingest/internal/events"
	"github.com/arc-self/market-ingest/internal/store"
	"github.com/arc-self/market-ingest/internal/telemetry"
)

type fakeStore struct {
	artifacts int
	events    int
	outbox    int
}

func (f *fakeStore) InsertEventArtifact(ctx context.Context, p store.InsertEventArtifactParams) error {
	f.artifacts++
	return nil
}

func (f *fakeStore) InsertEvent(ctx context.Context, p store.InsertEventParams) error {
	f.events++
	return nil
}

func (f *fakeStore) InsertOutboxEvent(ctx context.Context, p store.InsertOutboxParams) error {
	f.outbox++
	return nil
}

type fakeExecutor struct {
	s *fakeStore
}

func (e *fakeExecutor) WithTx(ctx context.Context, fn func(ctx context.Context, s enrichment.Store) error) error {
	return fn(ctx, e.s)
}

type fixedAnnotator struct {
	calls int
}

func (a *fixedAnnotator) Annotate(ctx context.Context, event *events.Event) (map[string]interface{}, error) {
	a.calls++
	return map[string]interface{}{"summary": "bullish", "confidence": 0.8}, nil
}

func newEvent(t *testing.T, payload map[string]interface{}) *events.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &events.Event{
		EventID:       "evt-1",
		SchemaVersion: "v1",
		EventType:     events.EventTypeSocialMentions,
		Source:        events.SourceWSB,
		Symbol:        "GME",
		TsEvent:       time.Now().UTC(),
		TsIngested:    time.Now().UTC(),
		DedupeKey:     "wsb:abc",
		Severity:      50,
		Payload:       raw,
	}
}

func TestProcess_EmitsInsightOnFirstContent(t *testing.T) {
	s := &fakeStore{}
	blobs, err := blobstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	metrics, err := telemetry.New("enrichment_test")
	require.NoError(t, err)
	annotator := &fixedAnnotator{}

	c := enrichment.New(enrichment.Config{ModelName: "gpt-x", Mode: enrichment.ModeEmit}, annotator, &fakeExecutor{s: s}, blobs, metrics, zap.NewNop())

	ok, err := c.Process(context.Background(), newEvent(t, map[string]interface{}{"text": "to the moon"}))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, annotator.calls)
	assert.Equal(t, 1, s.artifacts)
	assert.Equal(t, 1, s.events)
	assert.Equal(t, 1, s.outbox)
}

func TestProcess_SkipsRepeatedContent(t *testing.T) {
	s := &fakeStore{}
	blobs, err := blobstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	metrics, err := telemetry.New("enrichment_test_dedupe")
	require.NoError(t, err)
	annotator := &fixedAnnotator{}

	c := enrichment.New(enrichment.Config{ModelName: "gpt-x", Mode: enrichment.ModeShadow}, annotator, &fakeExecutor{s: s}, blobs, metrics, zap.NewNop())

	payload := map[string]interface{}{"text": "same content"}
	ok1, err := c.Process(context.Background(), newEvent(t, payload))
	require.NoError(t, err)
	assert.True(t, ok1)

	ok2, err := c.Process(context.Background(), newEvent(t, payload))
	require.NoError(t, err)
	assert.False(t, ok2, "repeated content must not be re-annotated")
	assert.Equal(t, 1, annotator.calls)
	assert.Equal(t, 0, s.outbox, "shadow mode must not enqueue outbox rows")
}
