package reddit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/market-ingest/internal/connector"
	"github.com/arc-self/market-ingest/internal/connector/reddit"
)

func TestExtractTickers_FiltersBlacklistAndDedupes(t *testing.T) {
	tickers := reddit.ExtractTickers("$GME is mooning, GME GME, but THE CEO said NEW info about AMC too")
	assert.Equal(t, []string{"GME", "AMC"}, tickers)
}

func TestExtractTickers_CapsAtFive(t *testing.T) {
	tickers := reddit.ExtractTickers("AAPL MSFT GOOG AMZN NFLX TSLA NVDA")
	assert.Len(t, tickers, 5)
}

func TestNormalize_GradesSeverityAndConfidence(t *testing.T) {
	a := reddit.New(reddit.Config{}, nil, nil)

	raw := []byte(`{
		"subreddit": "wallstreetbets",
		"post": {
			"id": "abc123",
			"title": "$GME to the moon",
			"selftext": "diamond hands",
			"author": "u_test",
			"score": 420,
			"upvote_ratio": 0.95,
			"num_comments": 50,
			"created_utc": 1704456000
		}
	}`)

	norm, err := a.Normalize(context.Background(), connector.RawRecord{Raw: raw, TsEvent: time.Now().UTC()})
	require.NoError(t, err)

	assert.Equal(t, "GME", norm.Symbol)
	assert.Equal(t, "u_test", norm.EntityID)
	assert.Equal(t, 10, norm.Severity) // (420 + 50*2) / 50 = 10
	assert.Equal(t, "reddit:wallstreetbets:abc123", norm.DedupeKey)
	require.NotNil(t, norm.Confidence)
	assert.InDelta(t, 0.81, *norm.Confidence, 0.0001) // 0.7*0.95 + 0.3*min(1,(420+50)/1000) = 0.81
}

func TestNormalize_TruncatesLongSelftext(t *testing.T) {
	a := reddit.New(reddit.Config{}, nil, nil)
	longText := ""
	for i := 0; i < 600; i++ {
		longText += "x"
	}
	raw := []byte(`{"subreddit":"stocks","post":{"id":"p1","selftext":"` + longText + `"}}`)

	norm, err := a.Normalize(context.Background(), connector.RawRecord{Raw: raw})
	require.NoError(t, err)
	assert.Len(t, norm.Payload["text"], 500)
}
