// Package blobstore implements the content-addressed, time-partitioned blob
// archive described in SPEC_FULL.md §4.3: gzip-compressed JSON bodies keyed
// by source/event-type and ts_event-derived date partitions.
//
// No object-storage SDK (AWS S3, MinIO, or otherwise) appears anywhere in
// the donor corpus this module is grounded on, so Store is defined as a
// small interface with one concrete implementation backed by the local
// filesystem, reproducing the exact key layout and Content-Type/
// Content-Encoding contract. A real object-store-backed implementation can
// be substituted later without touching callers.
package blobstore

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store is the blob archive interface every connector, dispatcher-adjacent
// component, and the analytics index writer depend on.
type Store interface {
	// Put writes body (already JSON-encoded) gzip-compressed at key.
	Put(ctx context.Context, key string, body []byte) error
	// Get returns the decompressed body stored at key.
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns every key under prefix, lexically sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// FSStore is a Store backed by a directory on the local filesystem, rooted
// at Root (populated from the S3_BUCKET environment variable — see
// SPEC_FULL.md §6).
type FSStore struct {
	Root string
}

// NewFSStore returns a Store rooted at dir, creating it if necessary.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root %s: %w", dir, err)
	}
	return &FSStore{Root: dir}, nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.Root, filepath.FromSlash(key))
}

// Put gzip-compresses body and writes it at key, creating parent
// directories as needed. Content-Type is always application/json (or
// application/octet-stream for the analytics index writer, which calls Put
// directly with a pre-serialized body) and Content-Encoding is always
// gzip — both implicit in this filesystem-backed implementation since there
// is no HTTP response to carry the headers on.
func (s *FSStore) Put(ctx context.Context, key string, body []byte) error {
	full := s.path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("blobstore: mkdir for %s: %w", key, err)
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(body); err != nil {
		return fmt.Errorf("blobstore: gzip %s: %w", key, err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("blobstore: gzip close %s: %w", key, err)
	}

	if err := os.WriteFile(full, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("blobstore: write %s: %w", key, err)
	}
	return nil
}

// Get reads and decompresses the blob at key.
func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %s: %w", key, err)
	}
	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("blobstore: gunzip %s: %w", key, err)
	}
	defer gr.Close()
	return io.ReadAll(gr)
}

// List walks the filesystem under prefix and returns every blob key found,
// lexically sorted (filepath.Walk already visits directories in lexical
// order).
func (s *FSStore) List(ctx context.Context, prefix string) ([]string, error) {
	root := s.path(prefix)
	var keys []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.Root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: list %s: %w", prefix, err)
	}
	return keys, nil
}

// datePartition formats an instant as the yyyy=/mm=/dd= partition segment
// used throughout the key layout. Partitioning always uses ts_event (not
// ts_ingested) so late arrivals land in their historical day.
func datePartition(t time.Time) string {
	u := t.UTC()
	return fmt.Sprintf("yyyy=%04d/mm=%02d/dd=%02d", u.Year(), u.Month(), u.Day())
}

// RawKey builds the key for a raw capture under the given source.
func RawKey(source string, tsEvent time.Time, eventID string) string {
	return strings.Join([]string{"raw", source, datePartition(tsEvent), eventID + ".json.gz"}, "/")
}

// EventKey builds the key for a canonical event blob under the given event
// type.
func EventKey(eventType string, tsEvent time.Time, eventID string) string {
	return strings.Join([]string{"events", "eventType=" + eventType, datePartition(tsEvent), eventID + ".json.gz"}, "/")
}

// EnrichedKey builds the key for an enrichment artifact blob.
func EnrichedKey(model, eventType string, tsEvent time.Time, eventID string) string {
	return strings.Join([]string{"enriched", "model=" + model, "eventType=" + eventType, datePartition(tsEvent), eventID + ".json.gz"}, "/")
}

// IndexKey builds the reserved key for a day's analytics index, written by
// the out-of-core analytics index writer (SPEC_FULL.md §4.12). The
// distilled spec reserves a Parquet extension for this path; see
// internal/analytics for the newline-delimited-JSON substitution rationale.
func IndexKey(eventType string, day time.Time, ext string) string {
	return strings.Join([]string{"indexes", "daily", "eventType=" + eventType, datePartition(day), "part-000." + ext}, "/")
}
