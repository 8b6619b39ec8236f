package events

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses wire-format canonical event JSON, rejecting unknown fields
// and timestamps without an explicit UTC offset (Go's time.Time JSON decode
// already requires an RFC3339 offset; a "naive" timestamp fails to parse
// here rather than silently defaulting to a zone). The result is also run
// through Validate before being returned.
func Decode(raw []byte) (*Event, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var e Event
	if err := dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	e.TsEvent = e.TsEvent.UTC()
	e.TsIngested = e.TsIngested.UTC()

	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
