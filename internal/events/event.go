// Package events defines the canonical event schema shared by every source
// adapter: a closed-enum event type and source, UTC-only timestamp
// discipline, and a stable JSON encoding used wherever content hashing is
// applied. Decoding rejects unknown fields, matching the "forbid-extra"
// contract the original schema validator enforced.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// EventType is the closed set of canonical event kinds.
type EventType string

const (
	EventTypeDisclosureFiling EventType = "DISCLOSURE.FILING"
	EventTypeSocialMentions   EventType = "SOCIAL.MENTIONS"
	EventTypeMarketBar        EventType = "MARKET.BAR"
	EventTypeModelInsight     EventType = "MODEL.INSIGHT"
	EventTypeSystemHealth     EventType = "SYSTEM.HEALTH"
)

func (t EventType) valid() bool {
	switch t {
	case EventTypeDisclosureFiling, EventTypeSocialMentions, EventTypeMarketBar,
		EventTypeModelInsight, EventTypeSystemHealth:
		return true
	}
	return false
}

// Source is the closed set of event origins.
type Source string

const (
	SourceEDGAR  Source = "edgar"
	SourceWSB    Source = "wsb"
	SourceMarket Source = "market"
	SourceLLM    Source = "llm"
	SourceSystem Source = "system"
)

func (s Source) valid() bool {
	switch s {
	case SourceEDGAR, SourceWSB, SourceMarket, SourceLLM, SourceSystem:
		return true
	}
	return false
}

var symbolPattern = regexp.MustCompile(`^[A-Z.\-]{1,16}$`)

// PayloadRefs carries blob-store lineage pointers for a canonical event.
type PayloadRefs struct {
	Raw        string `json:"raw,omitempty"`
	Normalized string `json:"normalized,omitempty"`
	Enriched   string `json:"enriched,omitempty"`
}

// Event is the canonical, schema-v1 record produced by every connector's
// normalize step and persisted/published uniformly across sources.
type Event struct {
	EventID       string          `json:"eventId"`
	SchemaVersion string          `json:"schemaVersion"`
	EventType     EventType       `json:"eventType"`
	Source        Source          `json:"source"`
	Symbol        string          `json:"symbol,omitempty"`
	EntityID      string          `json:"entityId,omitempty"`
	TsEvent       time.Time       `json:"tsEvent"`
	TsIngested    time.Time       `json:"tsIngested"`
	DedupeKey     string          `json:"dedupeKey"`
	Severity      int             `json:"severity"`
	Confidence    *float64        `json:"confidence,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	PayloadRefs   PayloadRefs     `json:"payloadRefs"`
}

// InvalidEvent reports a single field-level validation failure. It is fatal
// for the record that produced it; callers must not persist an Event that
// failed Validate.
type InvalidEvent struct {
	Field  string
	Reason string
}

func (e *InvalidEvent) Error() string {
	return fmt.Sprintf("invalid event field %q: %s", e.Field, e.Reason)
}

// Validate checks every invariant named in SPEC_FULL.md §3/§8: closed enums,
// required (non-zero) timestamps, symbol pattern, severity/confidence
// ranges, dedupe key length, and schema version. The timestamp offset is
// enforced, and both timestamps converted to UTC, by Decode.
func (e *Event) Validate() error {
	if e.SchemaVersion != "v1" {
		return &InvalidEvent{"schemaVersion", "must be \"v1\""}
	}
	if !e.EventType.valid() {
		return &InvalidEvent{"eventType", "not a recognized event type"}
	}
	if !e.Source.valid() {
		return &InvalidEvent{"source", "not a recognized source"}
	}
	if e.Symbol != "" && !symbolPattern.MatchString(e.Symbol) {
		return &InvalidEvent{"symbol", "must match ^[A-Z.-]{1,16}$"}
	}
	if err := requireUTC("tsEvent", e.TsEvent); err != nil {
		return err
	}
	if err := requireUTC("tsIngested", e.TsIngested); err != nil {
		return err
	}
	if len(e.DedupeKey) == 0 || len(e.DedupeKey) > 255 {
		return &InvalidEvent{"dedupeKey", "must be 1..255 characters"}
	}
	if e.Severity < 0 || e.Severity > 100 {
		return &InvalidEvent{"severity", "must be 0..100"}
	}
	if e.Confidence != nil && (*e.Confidence < 0.0 || *e.Confidence > 1.0) {
		return &InvalidEvent{"confidence", "must be 0.0..1.0"}
	}
	return nil
}

// requireUTC rejects timestamps that were decoded without an explicit zone
// offset. time.Time always carries a location, so the check that matters is
// whether the wire-format timestamp included an offset at all; that check
// happens at decode time in Decode. Here we only confirm the instant is not
// the zero value.
func requireUTC(field string, t time.Time) error {
	if t.IsZero() {
		return &InvalidEvent{field, "required"}
	}
	return nil
}

// Encode produces the stable wire form used for hashing and for publishing:
// sorted object keys, compact separators. encoding/json emits struct fields
// in declaration order, so the marshalled Event is passed through
// stableReencode, which re-emits the whole document, including the
// free-form `payload` field, with keys sorted at every level.
func Encode(e *Event) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return stableReencode(raw)
}

// stableReencode decodes arbitrary JSON into a generic value and
// re-marshals it with sorted keys and compact separators, matching the
// "stable encoding" property tested in SPEC_FULL.md §8.3.
func stableReencode(raw []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := encodeSorted(&buf, v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
