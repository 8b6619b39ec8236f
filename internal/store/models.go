// Package store is the relational store adapter described in
// SPEC_FULL.md §3/§6: events, outbox, event_artifacts, canary_runs, and the
// per-source fetch-state tables (seen_filings, entity_state), all reached
// through a single Postgres pool via jackc/pgx/v5, matching the donor
// monorepo's hand-authored sqlc-shaped Queries/Params convention (see e.g.
// the discovery-service's db.Querier usage).
package store

import (
	"encoding/json"
	"time"
)

// EventRow mirrors one row of the events table.
type EventRow struct {
	EventID        string
	SchemaVersion  string
	EventType      string
	Source         string
	Symbol         *string
	EntityID       *string
	TsEvent        time.Time
	TsIngested     time.Time
	DedupeKey      string
	Severity       int32
	Confidence     *float64
	PayloadJSON    json.RawMessage
	RawS3URI       *string
	NormalizedS3URI *string
	Hash           *string
	CreatedAt      time.Time
}

// InsertEventParams carries the columns needed to insert one events row.
type InsertEventParams struct {
	EventID         string
	SchemaVersion   string
	EventType       string
	Source          string
	Symbol          *string
	EntityID        *string
	TsEvent         time.Time
	TsIngested      time.Time
	DedupeKey       string
	Severity        int32
	Confidence      *float64
	PayloadJSON     json.RawMessage
	RawS3URI        *string
	NormalizedS3URI *string
}

// OutboxRow mirrors one row of the outbox table.
type OutboxRow struct {
	OutboxID    int64
	EventID     string
	PayloadJSON json.RawMessage
	PublishedAt *time.Time
}

// InsertOutboxParams carries the columns needed to insert one outbox row.
type InsertOutboxParams struct {
	EventID     string
	PayloadJSON json.RawMessage
}

// EventArtifactRow mirrors one row of the event_artifacts table.
type EventArtifactRow struct {
	ArtifactID   string
	EventID      string
	ArtifactType string
	ModelName    *string
	ArtifactJSON json.RawMessage
	CreatedAt    time.Time
}

// InsertEventArtifactParams carries the columns needed to insert one
// event_artifacts row.
type InsertEventArtifactParams struct {
	ArtifactID   string
	EventID      string
	ArtifactType string
	ModelName    *string
	ArtifactJSON json.RawMessage
}

// CanaryRunRow mirrors one row of the canary_runs table.
type CanaryRunRow struct {
	CanaryID    string
	Source      string
	EventID     string
	StartedAt   time.Time
	CompletedAt *time.Time
	OK          *bool
}

// SeenFilingRow mirrors one row of the seen_filings table.
type SeenFilingRow struct {
	SourceEntity string
	Accession    string
	FirstSeenAt  time.Time
}

// EntityStateRow mirrors one row of the entity_state table.
type EntityStateRow struct {
	SourceEntity string
	LastETag     *string
	LastModified *string
	LastPollAt   time.Time
}
