package enrichment

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/arc-self/market-ingest/internal/events"
)

// bullishWords and bearishWords are the deterministic keyword lexicon the
// reference annotator scores against. Deliberately small and literal: this
// implementation never interprets content semantically, it only counts
// literal keyword hits.
var bullishWords = []string{"moon", "calls", "buy", "bullish", "squeeze", "upgrade", "beat"}
var bearishWords = []string{"puts", "sell", "bearish", "downgrade", "miss", "short", "crash"}

// KeywordAnnotator is the reference Annotator shipped in place of a real
// LLM integration: deterministic, network-free, keyword-count scoring over
// the event payload's free text. It exists so MODEL.INSIGHT has a
// reachable producer, not to semantically score content.
type KeywordAnnotator struct{}

// NewKeywordAnnotator builds the reference Annotator.
func NewKeywordAnnotator() *KeywordAnnotator {
	return &KeywordAnnotator{}
}

// Annotate counts bullish/bearish keyword hits across the event payload's
// string fields and returns a tag plus a confidence derived from how many
// keywords were found.
func (KeywordAnnotator) Annotate(_ context.Context, event *events.Event) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return nil, err
	}

	text := strings.ToLower(flattenStrings(payload))
	bull, bear := 0, 0
	for _, w := range bullishWords {
		bull += strings.Count(text, w)
	}
	for _, w := range bearishWords {
		bear += strings.Count(text, w)
	}

	tag := "neutral"
	switch {
	case bull > bear:
		tag = "bullish"
	case bear > bull:
		tag = "bearish"
	}

	hits := bull + bear
	confidence := float64(hits) / float64(hits+3)

	return map[string]interface{}{
		"tag":          tag,
		"bullishHits":  bull,
		"bearishHits":  bear,
		"confidence":   confidence,
	}, nil
}

func flattenStrings(v interface{}) string {
	var sb strings.Builder
	switch t := v.(type) {
	case string:
		sb.WriteString(t)
		sb.WriteByte(' ')
	case map[string]interface{}:
		for _, vv := range t {
			sb.WriteString(flattenStrings(vv))
		}
	case []interface{}:
		for _, vv := range t {
			sb.WriteString(flattenStrings(vv))
		}
	}
	return sb.String()
}
