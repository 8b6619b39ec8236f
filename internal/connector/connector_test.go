package connector_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/market-ingest/internal/blobstore"
	"github.com/arc-self/market-ingest/internal/connector"
	"github.com/arc-self/market-ingest/internal/events"
	"github.com/arc-self/market-ingest/internal/store"
	"github.com/arc-self/market-ingest/internal/telemetry"
)

// fakeStore is a hand-rolled in-memory Store, mirroring the donor's
// mocked-Querier test idiom (discovery-service's dictionary_service_test.go)
// rather than requiring a live Postgres connection.
type fakeStore struct {
	byDedupeKey map[string]store.EventRow
	outboxCount int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byDedupeKey: map[string]store.EventRow{}}
}

func (f *fakeStore) GetEventByDedupeKey(ctx context.Context, key string) (store.EventRow, error) {
	row, ok := f.byDedupeKey[key]
	if !ok {
		return store.EventRow{}, store.ErrNotFound
	}
	return row, nil
}

func (f *fakeStore) InsertEvent(ctx context.Context, p store.InsertEventParams) error {
	f.byDedupeKey[p.DedupeKey] = store.EventRow{
		EventID:   p.EventID,
		DedupeKey: p.DedupeKey,
	}
	return nil
}

func (f *fakeStore) InsertOutboxEvent(ctx context.Context, p store.InsertOutboxParams) error {
	f.outboxCount++
	return nil
}

// fakeExecutor runs WithTx against the same in-memory fakeStore every time,
// so a dedupe check in one call sees inserts from a prior call.
type fakeExecutor struct {
	s *fakeStore
}

func (e *fakeExecutor) WithTx(ctx context.Context, fn func(ctx context.Context, s connector.Store) error) error {
	return fn(ctx, e.s)
}

func (e *fakeExecutor) SetEventNormalizedURI(ctx context.Context, eventID, uri string) error {
	return nil
}

// fixedAdapter yields the same raw record and normalized payload every
// Fetch/Normalize call, so repeated RunOnce calls exercise dedupe.
type fixedAdapter struct {
	record connector.RawRecord
}

func (a fixedAdapter) Fetch(ctx context.Context) ([]connector.RawRecord, error) {
	return []connector.RawRecord{a.record}, nil
}

func (a fixedAdapter) Normalize(ctx context.Context, raw connector.RawRecord) (connector.Normalized, error) {
	return connector.Normalized{
		EventType: events.EventTypeSocialMentions,
		TsEvent:   raw.TsEvent,
		Symbol:    "GME",
		Severity:  10,
		Payload:   map[string]interface{}{"text": "to the moon"},
	}, nil
}

func newTestRunner(t *testing.T, mode connector.Mode, exec connector.Executor) *connector.Runner {
	t.Helper()
	blobs, err := blobstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	metrics, err := telemetry.New("connector_test")
	require.NoError(t, err)

	adapter := fixedAdapter{record: connector.RawRecord{
		Raw:     []byte(`{"text":"to the moon"}`),
		TsEvent: time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC),
	}}

	return connector.NewRunner(connector.Config{
		Name:   "test-connector",
		Source: events.SourceWSB,
		Mode:   mode,
	}, adapter, exec, blobs, metrics, zap.NewNop())
}

func TestRunOnce_FirstRecordIngestsAndEmits(t *testing.T) {
	exec := &fakeExecutor{s: newFakeStore()}
	r := newTestRunner(t, connector.ModeEmit, exec)

	stats := r.RunOnce(context.Background())

	assert.Equal(t, 1, stats.Fetched)
	assert.Equal(t, 1, stats.Ingested)
	assert.Equal(t, 0, stats.Deduped)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 1, exec.s.outboxCount)
}

func TestRunOnce_ShadowModeSkipsOutbox(t *testing.T) {
	exec := &fakeExecutor{s: newFakeStore()}
	r := newTestRunner(t, connector.ModeShadow, exec)

	stats := r.RunOnce(context.Background())

	assert.Equal(t, 1, stats.Ingested)
	assert.Equal(t, 0, exec.s.outboxCount)
}

func TestRunOnce_RepeatedRecordDedupes(t *testing.T) {
	exec := &fakeExecutor{s: newFakeStore()}
	r := newTestRunner(t, connector.ModeEmit, exec)

	first := r.RunOnce(context.Background())
	require.Equal(t, 1, first.Ingested)

	second := r.RunOnce(context.Background())
	assert.Equal(t, 0, second.Ingested)
	assert.Equal(t, 1, second.Deduped)
	assert.Equal(t, 1, exec.s.outboxCount, "second cycle must not enqueue a duplicate outbox row")
}
