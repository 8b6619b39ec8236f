package mock_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/market-ingest/internal/connector/mock"
)

func TestFetchNormalize_RoundTrip(t *testing.T) {
	a := mock.New("OPEN", "OPEN to the moon", 420)

	raws, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, raws, 1)

	norm, err := a.Normalize(context.Background(), raws[0])
	require.NoError(t, err)

	assert.Equal(t, "OPEN", norm.Symbol)
	assert.Equal(t, 42, norm.Severity)
	assert.Equal(t, "OPEN to the moon", norm.Payload["text"])
	assert.Contains(t, norm.DedupeKey, "wsb:mock-")
}

func TestFetch_YieldsOnePerCall(t *testing.T) {
	a := mock.New("GME", "diamond hands", 1000)

	raws, err := a.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, raws, 1)

	norm, err := a.Normalize(context.Background(), raws[0])
	require.NoError(t, err)
	assert.Equal(t, 100, norm.Severity) // 1000/10 = 100, the top of the severity range
}
