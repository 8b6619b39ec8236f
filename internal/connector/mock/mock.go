// Package mock implements a deterministic stand-in forum adapter used for
// local development, canary runs, and integration tests where hitting a
// real upstream would be undesirable — the Go counterpart of the
// original wsb_mock connector.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arc-self/market-ingest/internal/connector"
	"github.com/arc-self/market-ingest/internal/events"
)

// Adapter yields one fixed post per Fetch call, parameterized so canary
// runs can vary the symbol, text and upvote count without touching the
// adapter itself. The post ID is derived from the Fetch instant.
type Adapter struct {
	Symbol  string
	Text    string
	Upvotes int
	now     func() time.Time
}

// New builds an Adapter with the given fixed post contents.
func New(symbol, text string, upvotes int) *Adapter {
	return &Adapter{Symbol: symbol, Text: text, Upvotes: upvotes, now: func() time.Time { return time.Now().UTC() }}
}

type postRecord struct {
	PostID  string `json:"postId"`
	Symbol  string `json:"symbol"`
	Text    string `json:"text"`
	Ts      string `json:"ts"`
	Upvotes int    `json:"upvotes"`
}

// Fetch returns a single synthetic post, timestamped at the call instant.
func (a *Adapter) Fetch(ctx context.Context) ([]connector.RawRecord, error) {
	now := a.now()
	rec := postRecord{
		PostID:  fmt.Sprintf("mock-%d", now.UnixNano()),
		Symbol:  a.Symbol,
		Text:    a.Text,
		Ts:      now.Format(time.RFC3339),
		Upvotes: a.Upvotes,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("mock: marshal post record: %w", err)
	}
	return []connector.RawRecord{{Raw: raw, TsEvent: now}}, nil
}

// Normalize maps the synthetic post into a partial canonical event.
// Severity is upvotes/10, matching the original mock's formula.
func (a *Adapter) Normalize(ctx context.Context, raw connector.RawRecord) (connector.Normalized, error) {
	var rec postRecord
	if err := json.Unmarshal(raw.Raw, &rec); err != nil {
		return connector.Normalized{}, fmt.Errorf("mock: decode post record: %w", err)
	}

	severity := rec.Upvotes / 10
	if severity > 100 {
		severity = 100
	}

	return connector.Normalized{
		EventType: events.EventTypeSocialMentions,
		TsEvent:   raw.TsEvent,
		Symbol:    rec.Symbol,
		Severity:  severity,
		Payload: map[string]interface{}{
			"postId":  rec.PostID,
			"text":    rec.Text,
			"upvotes": rec.Upvotes,
		},
		DedupeKey: "wsb:" + rec.PostID,
	}, nil
}
