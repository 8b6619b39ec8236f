package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, matching the
// sqlc-shaped convention used throughout the donor monorepo
// ("db.New(pool)" at the top of a request, "qtx := db.New(tx)" inside a
// transaction scope).
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries wraps a DBTX (pool or transaction) with the hand-authored
// queries the ingestion pipeline needs.
type Queries struct {
	db DBTX
}

// New builds a Queries bound to db. Call it with a *pgxpool.Pool for
// ad-hoc reads, or with a pgx.Tx inside a scoped transaction (see
// WithTx).
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// ErrNotFound is returned by lookup queries when no row matches.
var ErrNotFound = errors.New("store: not found")

// GetEventByDedupeKey returns the event row matching key, or ErrNotFound.
func (q *Queries) GetEventByDedupeKey(ctx context.Context, key string) (EventRow, error) {
	row := q.db.QueryRow(ctx, `
		SELECT event_id, schema_version, event_type, source, symbol, entity_id,
		       ts_event, ts_ingested, dedupe_key, severity, confidence,
		       payload_json, raw_s3_uri, normalized_s3_uri, hash, created_at
		FROM events WHERE dedupe_key = $1`, key)

	var e EventRow
	err := row.Scan(&e.EventID, &e.SchemaVersion, &e.EventType, &e.Source, &e.Symbol, &e.EntityID,
		&e.TsEvent, &e.TsIngested, &e.DedupeKey, &e.Severity, &e.Confidence,
		&e.PayloadJSON, &e.RawS3URI, &e.NormalizedS3URI, &e.Hash, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return EventRow{}, ErrNotFound
	}
	if err != nil {
		return EventRow{}, fmt.Errorf("GetEventByDedupeKey: %w", err)
	}
	return e, nil
}

// InsertEvent inserts one events row.
func (q *Queries) InsertEvent(ctx context.Context, p InsertEventParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO events (
			event_id, schema_version, event_type, source, symbol, entity_id,
			ts_event, ts_ingested, dedupe_key, severity, confidence,
			payload_json, raw_s3_uri, normalized_s3_uri, hash, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NULL,$15)`,
		p.EventID, p.SchemaVersion, p.EventType, p.Source, p.Symbol, p.EntityID,
		p.TsEvent, p.TsIngested, p.DedupeKey, p.Severity, p.Confidence,
		p.PayloadJSON, p.RawS3URI, p.NormalizedS3URI, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("InsertEvent: %w", err)
	}
	return nil
}

// SetEventNormalizedURI updates the normalized_s3_uri column after the
// canonical blob has been written (the connector framework's best-effort
// post-commit write, SPEC_FULL.md §4.5 step 6).
func (q *Queries) SetEventNormalizedURI(ctx context.Context, eventID, uri string) error {
	_, err := q.db.Exec(ctx, `UPDATE events SET normalized_s3_uri = $2 WHERE event_id = $1`, eventID, uri)
	if err != nil {
		return fmt.Errorf("SetEventNormalizedURI: %w", err)
	}
	return nil
}

// InsertOutboxEvent inserts one outbox row with published_at left NULL.
func (q *Queries) InsertOutboxEvent(ctx context.Context, p InsertOutboxParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO outbox (event_id, payload_json, published_at)
		VALUES ($1, $2, NULL)`, p.EventID, p.PayloadJSON)
	if err != nil {
		return fmt.Errorf("InsertOutboxEvent: %w", err)
	}
	return nil
}

// ListUnpublishedOutbox selects up to limit unpublished outbox rows in
// outbox_id order, locking them against concurrent dispatchers. Rows not
// committed or rolled back by the caller within the same transaction
// remain locked; SKIP LOCKED means a second concurrent dispatcher claims
// the next unlocked batch instead of blocking (SPEC_FULL.md §5: "with
// multiple dispatchers, ordering degrades to per-batch").
func (q *Queries) ListUnpublishedOutbox(ctx context.Context, limit int32) ([]OutboxRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT outbox_id, event_id, payload_json, published_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY outbox_id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("ListUnpublishedOutbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxRow
	for rows.Next() {
		var o OutboxRow
		if err := rows.Scan(&o.OutboxID, &o.EventID, &o.PayloadJSON, &o.PublishedAt); err != nil {
			return nil, fmt.Errorf("ListUnpublishedOutbox scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// MarkOutboxPublished sets published_at for one outbox row.
func (q *Queries) MarkOutboxPublished(ctx context.Context, outboxID int64, publishedAt time.Time) error {
	_, err := q.db.Exec(ctx, `UPDATE outbox SET published_at = $2 WHERE outbox_id = $1`, outboxID, publishedAt)
	if err != nil {
		return fmt.Errorf("MarkOutboxPublished: %w", err)
	}
	return nil
}

// InsertEventArtifact inserts one event_artifacts row.
func (q *Queries) InsertEventArtifact(ctx context.Context, p InsertEventArtifactParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO event_artifacts (artifact_id, event_id, artifact_type, model_name, artifact_json, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ArtifactID, p.EventID, p.ArtifactType, p.ModelName, p.ArtifactJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("InsertEventArtifact: %w", err)
	}
	return nil
}

// InsertCanaryRun records the start of a synthetic end-to-end probe.
func (q *Queries) InsertCanaryRun(ctx context.Context, canaryID, source, eventID string, startedAt time.Time) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO canary_runs (canary_id, source, event_id, started_at, completed_at, ok)
		VALUES ($1,$2,$3,$4,NULL,NULL)`, canaryID, source, eventID, startedAt)
	if err != nil {
		return fmt.Errorf("InsertCanaryRun: %w", err)
	}
	return nil
}

// CompleteCanaryRun marks a canary run finished.
func (q *Queries) CompleteCanaryRun(ctx context.Context, canaryID string, completedAt time.Time, ok bool) error {
	_, err := q.db.Exec(ctx, `
		UPDATE canary_runs SET completed_at = $2, ok = $3 WHERE canary_id = $1`,
		canaryID, completedAt, ok)
	if err != nil {
		return fmt.Errorf("CompleteCanaryRun: %w", err)
	}
	return nil
}

// IsFilingSeen reports whether (sourceEntity, accession) has already been
// recorded in seen_filings.
func (q *Queries) IsFilingSeen(ctx context.Context, sourceEntity, accession string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM seen_filings WHERE source_entity = $1 AND accession = $2)`,
		sourceEntity, accession).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("IsFilingSeen: %w", err)
	}
	return exists, nil
}

// MarkFilingSeen records (sourceEntity, accession) as seen. It is safe to
// call more than once; a conflicting insert is ignored.
func (q *Queries) MarkFilingSeen(ctx context.Context, sourceEntity, accession string, firstSeenAt time.Time) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO seen_filings (source_entity, accession, first_seen_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (source_entity, accession) DO NOTHING`, sourceEntity, accession, firstSeenAt)
	if err != nil {
		return fmt.Errorf("MarkFilingSeen: %w", err)
	}
	return nil
}

// GetEntityState returns the fetch-state row for sourceEntity, or
// ErrNotFound if the entity has never been polled.
func (q *Queries) GetEntityState(ctx context.Context, sourceEntity string) (EntityStateRow, error) {
	row := q.db.QueryRow(ctx, `
		SELECT source_entity, last_etag, last_modified, last_poll_at
		FROM entity_state WHERE source_entity = $1`, sourceEntity)

	var s EntityStateRow
	err := row.Scan(&s.SourceEntity, &s.LastETag, &s.LastModified, &s.LastPollAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return EntityStateRow{}, ErrNotFound
	}
	if err != nil {
		return EntityStateRow{}, fmt.Errorf("GetEntityState: %w", err)
	}
	return s, nil
}

// UpsertEntityState creates or updates the fetch-state row for
// sourceEntity.
func (q *Queries) UpsertEntityState(ctx context.Context, s EntityStateRow) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO entity_state (source_entity, last_etag, last_modified, last_poll_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (source_entity) DO UPDATE SET
			last_etag = EXCLUDED.last_etag,
			last_modified = EXCLUDED.last_modified,
			last_poll_at = EXCLUDED.last_poll_at`,
		s.SourceEntity, s.LastETag, s.LastModified, s.LastPollAt)
	if err != nil {
		return fmt.Errorf("UpsertEntityState: %w", err)
	}
	return nil
}

// TimestampColumn selects which events column the replay engine orders and
// filters by.
type TimestampColumn string

const (
	ColumnTsEvent    TimestampColumn = "ts_event"
	ColumnTsIngested TimestampColumn = "ts_ingested"
)

// ListEventsInWindow streams event payloads whose column value lies in
// [start, end], ordered ascending by that column — the query backing the
// replay engine (SPEC_FULL.md §4.8).
func (q *Queries) ListEventsInWindow(ctx context.Context, column TimestampColumn, start, end time.Time) ([]OutboxRow, error) {
	col := string(column)
	if col != string(ColumnTsEvent) && col != string(ColumnTsIngested) {
		return nil, fmt.Errorf("ListEventsInWindow: invalid column %q", col)
	}
	// column is restricted to the two known constants above, never caller
	// input, so string-building the column name here is not an injection
	// risk.
	query := fmt.Sprintf(`
		SELECT event_id, payload_json
		FROM events
		WHERE %s BETWEEN $1 AND $2
		ORDER BY %s ASC`, col, col)

	rows, err := q.db.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("ListEventsInWindow: %w", err)
	}
	defer rows.Close()

	var out []OutboxRow
	for rows.Next() {
		var o OutboxRow
		if err := rows.Scan(&o.EventID, &o.PayloadJSON); err != nil {
			return nil, fmt.Errorf("ListEventsInWindow scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
