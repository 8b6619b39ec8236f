package blobstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/market-ingest/internal/blobstore"
)

func TestFSStore_PutGetRoundTrip(t *testing.T) {
	store, err := blobstore.NewFSStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	ts := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	key := blobstore.RawKey("wsb", ts, "evt-1")

	require.NoError(t, store.Put(ctx, key, []byte(`{"hello":"world"}`)))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(got))
}

func TestFSStore_List(t *testing.T) {
	store, err := blobstore.NewFSStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	ts := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(ctx, blobstore.EventKey("SOCIAL.MENTIONS", ts, "evt-1"), []byte(`{}`)))
	require.NoError(t, store.Put(ctx, blobstore.EventKey("SOCIAL.MENTIONS", ts, "evt-2"), []byte(`{}`)))

	keys, err := store.List(ctx, "events/eventType=SOCIAL.MENTIONS")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestRawKey_PartitionsByTsEvent(t *testing.T) {
	ts := time.Date(2024, 1, 5, 23, 59, 0, 0, time.UTC)
	key := blobstore.RawKey("edgar", ts, "evt-1")
	assert.Equal(t, "raw/edgar/yyyy=2024/mm=01/dd=05/evt-1.json.gz", key)
}
