// Package analytics implements the daily analytics index writer
// supplemented from the original's analytics/indexes.py: it lists a
// day's canonical event blobs for one event type, projects a small set
// of analytics columns, and writes the result as newline-delimited gzip
// JSON at the reserved indexes/daily/... key.
//
// The original used DuckDB/PyArrow to write Parquet; no Parquet/Arrow
// library appears anywhere in the retrieval pack, so this substitutes
// gzip-compressed newline-delimited JSON — written through the same
// blobstore.Store every other component uses — and documents the
// substitution here rather than introducing an ungrounded dependency.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/market-ingest/internal/blobstore"
	"github.com/arc-self/market-ingest/internal/events"
)

// IndexExt is the file extension used for the newline-delimited JSON
// index, in place of the original's ".parquet".
const IndexExt = "ndjson"

// indexRow is the minimal analytics projection of one canonical event,
// mirroring the original's column selection (event_id, event_type,
// source, symbol, ts_event, ts_ingested, severity).
type indexRow struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Source     string    `json:"source"`
	Symbol     string    `json:"symbol,omitempty"`
	TsEvent    time.Time `json:"ts_event"`
	TsIngested time.Time `json:"ts_ingested"`
	Severity   int       `json:"severity"`
}

// Writer builds daily analytics indexes from the blob archive.
type Writer struct {
	blobs  blobstore.Store
	logger *zap.Logger
}

// New builds a Writer.
func New(blobs blobstore.Store, logger *zap.Logger) *Writer {
	return &Writer{blobs: blobs, logger: logger}
}

// BuildDailyIndex lists every canonical event blob for eventType on day,
// projects each into an indexRow, and writes the result as
// newline-delimited gzip JSON at the reserved index key. It returns the
// key written and the row count.
func (w *Writer) BuildDailyIndex(ctx context.Context, eventType string, day time.Time) (string, int, error) {
	prefix := blobstore.EventKey(eventType, day, "")
	// EventKey appends "<eventID>.json.gz" even for an empty eventID; trim
	// the trailing ".json.gz" so prefix names the day's directory.
	prefix = trimSuffix(prefix, ".json.gz")

	keys, err := w.blobs.List(ctx, prefix)
	if err != nil {
		return "", 0, fmt.Errorf("analytics: list event blobs under %s: %w", prefix, err)
	}

	var buf bytes.Buffer
	count := 0
	for _, key := range keys {
		body, err := w.blobs.Get(ctx, key)
		if err != nil {
			w.logger.Warn("analytics: skipping unreadable blob", zap.String("key", key), zap.Error(err))
			continue
		}

		var e events.Event
		if err := json.Unmarshal(body, &e); err != nil {
			w.logger.Warn("analytics: skipping malformed blob", zap.String("key", key), zap.Error(err))
			continue
		}

		row := indexRow{
			EventID:    e.EventID,
			EventType:  string(e.EventType),
			Source:     string(e.Source),
			Symbol:     e.Symbol,
			TsEvent:    e.TsEvent,
			TsIngested: e.TsIngested,
			Severity:   e.Severity,
		}
		rowJSON, err := json.Marshal(row)
		if err != nil {
			return "", 0, fmt.Errorf("analytics: marshal index row for %s: %w", e.EventID, err)
		}
		buf.Write(rowJSON)
		buf.WriteByte('\n')
		count++
	}

	indexKey := blobstore.IndexKey(eventType, day, IndexExt)
	if err := w.blobs.Put(ctx, indexKey, buf.Bytes()); err != nil {
		return "", 0, fmt.Errorf("analytics: write index %s: %w", indexKey, err)
	}

	w.logger.Info("analytics index built", zap.String("key", indexKey), zap.Int("rows", count))
	return indexKey, count, nil
}

func trimSuffix(s, suffix string) string {
	if len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)]
	}
	return s
}
