package events

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// encodeSorted writes v to buf as compact JSON with object keys in sorted
// order at every nesting level, so that two semantically-equal values with
// differently-ordered map keys always produce identical bytes.
func encodeSorted(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeSorted(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeSorted(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// StableHash returns the lowercase hex SHA-256 of the stable encoding of an
// arbitrary JSON-shaped value (a normalized event's payload, typically).
// Used both to synthesize a dedupe key when a source adapter omits one
// (SPEC_FULL.md §4.2) and to drive the enrichment module's cost-dedupe cache
// (§4.11).
func StableHash(v map[string]interface{}) (string, error) {
	var buf bytes.Buffer
	if err := encodeSorted(&buf, v); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}
