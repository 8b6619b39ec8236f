package analytics_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/market-ingest/internal/analytics"
	"github.com/arc-self/market-ingest/internal/blobstore"
	"github.com/arc-self/market-ingest/internal/events"
)

func TestBuildDailyIndex_ProjectsEventsForTheDay(t *testing.T) {
	blobs, err := blobstore.NewFSStore(t.TempDir())
	require.NoError(t, err)

	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	e1 := events.Event{
		EventID: "e1", SchemaVersion: "v1", EventType: events.EventTypeSocialMentions,
		Source: events.SourceWSB, Symbol: "GME", TsEvent: day.Add(2 * time.Hour), TsIngested: day.Add(2 * time.Hour),
		DedupeKey: "d1", Severity: 42, Payload: json.RawMessage(`{}`),
	}
	e2 := events.Event{
		EventID: "e2", SchemaVersion: "v1", EventType: events.EventTypeSocialMentions,
		Source: events.SourceWSB, Symbol: "AMC", TsEvent: day.Add(5 * time.Hour), TsIngested: day.Add(5 * time.Hour),
		DedupeKey: "d2", Severity: 10, Payload: json.RawMessage(`{}`),
	}

	for _, e := range []events.Event{e1, e2} {
		body, err := events.Encode(&e)
		require.NoError(t, err)
		key := blobstore.EventKey(string(e.EventType), e.TsEvent, e.EventID)
		require.NoError(t, blobs.Put(context.Background(), key, body))
	}

	w := analytics.New(blobs, zap.NewNop())
	indexKey, count, err := w.BuildDailyIndex(context.Background(), string(events.EventTypeSocialMentions), day)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.True(t, strings.HasSuffix(indexKey, "."+analytics.IndexExt))

	raw, err := blobs.Get(context.Background(), indexKey)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 2)
}

func TestBuildDailyIndex_EmptyDayProducesEmptyIndex(t *testing.T) {
	blobs, err := blobstore.NewFSStore(t.TempDir())
	require.NoError(t, err)

	w := analytics.New(blobs, zap.NewNop())
	_, count, err := w.BuildDailyIndex(context.Background(), "DISCLOSURE.FILING", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
