// Package store is the event store gateway: the single owner of all unified
// event and ingestion run mutation. Events are keyed by their deterministic
// ID, so upserts are idempotent and safe to interleave across overlapping
// ingestion ticks.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/hazard-data-ingest/internal/domain"
)

// RunStatus is the terminal (or in-flight) state of an ingestion run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunError   RunStatus = "error"
)

// IngestionRun is one audit record per orchestrator tick. It is created in
// the running state before any adapter fires, so a crash mid-run is
// observable as a stuck running row.
type IngestionRun struct {
	ID             string     `json:"id"`
	SourceName     string     `json:"sourceName"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	Status         RunStatus  `json:"status"`
	EventsIngested int        `json:"eventsIngested"`
	EventsDropped  int        `json:"eventsDropped"`
	DurationMs     int64      `json:"durationMs"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
}

// EventFilter narrows a read. Zero values mean "no constraint".
type EventFilter struct {
	DataType domain.DataType
	Since    time.Time
	Until    time.Time
	Limit    int
}

// Store wraps the SQLite database behind the gateway contract.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens the database at dbPath and returns a ready Store.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertEvents applies the batch as independent row operations: one row's
// failure never prevents the rest from committing. Re-upserting an existing
// ID overwrites the row in full (last-write-wins, no merge). It returns the
// events actually applied and the count of failed rows; the error is non-nil
// only when the batch could not be attempted at all.
func (s *Store) UpsertEvents(ctx context.Context, events []domain.Event) ([]domain.Event, int, error) {
	if len(events) == 0 {
		return nil, 0, nil
	}

	stmt, err := s.db.PrepareContext(ctx, `
		INSERT INTO events
			(id, data_type, timestamp, lat, lon, primary_value, secondary_value,
			 severity, confidence, source, color, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data_type       = excluded.data_type,
			timestamp       = excluded.timestamp,
			lat             = excluded.lat,
			lon             = excluded.lon,
			primary_value   = excluded.primary_value,
			secondary_value = excluded.secondary_value,
			severity        = excluded.severity,
			confidence      = excluded.confidence,
			source          = excluded.source,
			color           = excluded.color,
			metadata        = excluded.metadata`)
	if err != nil {
		return nil, len(events), fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	applied := make([]domain.Event, 0, len(events))
	failed := 0
	for _, e := range events {
		metadata, err := marshalMetadata(e.Metadata)
		if err != nil {
			s.logger.Warn("skipping event with unencodable metadata", "id", e.ID, "error", err)
			failed++
			continue
		}
		_, err = stmt.ExecContext(ctx,
			e.ID, string(e.DataType), e.Timestamp, e.Location.Lat, e.Location.Lon,
			e.PrimaryValue, e.SecondaryValue,
			nullString(string(e.Severity)), nullString(string(e.Confidence)),
			e.Source, e.Color, metadata,
		)
		if err != nil {
			s.logger.Warn("event upsert failed", "id", e.ID, "error", err)
			failed++
			continue
		}
		applied = append(applied, e)
	}
	return applied, failed, nil
}

// QueryEvents returns events matching the filter, newest first.
func (s *Store) QueryEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	query := `SELECT id, data_type, timestamp, lat, lon, primary_value, secondary_value,
		severity, confidence, source, color, metadata FROM events WHERE 1=1`
	args := []any{}

	if f.DataType != "" {
		query += " AND data_type = ?"
		args = append(args, string(f.DataType))
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	if !f.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, f.Until.UnixMilli())
	}
	query += " ORDER BY timestamp DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LatestTimestamp returns the newest event occurrence time for a data type.
// The second return value is false when no events of that type exist.
func (s *Store) LatestTimestamp(ctx context.Context, dt domain.DataType) (time.Time, bool, error) {
	var millis sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(timestamp) FROM events WHERE data_type = ?", string(dt),
	).Scan(&millis)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest timestamp: %w", err)
	}
	if !millis.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(millis.Int64).UTC(), true, nil
}

// CountEvents returns the stored row count for a data type.
func (s *Store) CountEvents(ctx context.Context, dt domain.DataType) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events WHERE data_type = ?", string(dt),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// CreateRun inserts a new ingestion run row in the running state.
func (s *Store) CreateRun(ctx context.Context, run IngestionRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_runs (id, source_name, started_at, status, events_ingested, events_dropped)
		VALUES (?, ?, ?, ?, 0, 0)`,
		run.ID, run.SourceName, run.StartedAt.UnixMilli(), string(RunRunning),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinalizeRun records the terminal outcome of a run. It is called exactly
// once per run; runs are never deleted here (retention is external).
func (s *Store) FinalizeRun(ctx context.Context, run IngestionRun) error {
	if run.CompletedAt == nil {
		return fmt.Errorf("finalize run %s: missing completion time", run.ID)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingestion_runs
		SET completed_at = ?, status = ?, events_ingested = ?, events_dropped = ?,
		    duration_ms = ?, error_message = ?
		WHERE id = ?`,
		run.CompletedAt.UnixMilli(), string(run.Status), run.EventsIngested,
		run.EventsDropped, run.DurationMs, nullString(run.ErrorMessage), run.ID,
	)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	return nil
}

// RecentRuns lists runs newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]IngestionRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_name, started_at, completed_at, status,
		       events_ingested, events_dropped, duration_ms, error_message
		FROM ingestion_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	var runs []IngestionRun
	for rows.Next() {
		var (
			run         IngestionRun
			startedAt   int64
			completedAt sql.NullInt64
			durationMs  sql.NullInt64
			errMsg      sql.NullString
			status      string
		)
		if err := rows.Scan(&run.ID, &run.SourceName, &startedAt, &completedAt, &status,
			&run.EventsIngested, &run.EventsDropped, &durationMs, &errMsg); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = time.UnixMilli(startedAt).UTC()
		if completedAt.Valid {
			t := time.UnixMilli(completedAt.Int64).UTC()
			run.CompletedAt = &t
		}
		run.Status = RunStatus(status)
		run.DurationMs = durationMs.Int64
		run.ErrorMessage = errMsg.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.Event, error) {
	var (
		e          domain.Event
		dataType   string
		secondary  sql.NullFloat64
		severity   sql.NullString
		confidence sql.NullString
		metadata   sql.NullString
	)
	err := row.Scan(&e.ID, &dataType, &e.Timestamp, &e.Location.Lat, &e.Location.Lon,
		&e.PrimaryValue, &secondary, &severity, &confidence, &e.Source, &e.Color, &metadata)
	if err != nil {
		return domain.Event{}, fmt.Errorf("scan event: %w", err)
	}
	e.DataType = domain.DataType(dataType)
	if secondary.Valid {
		v := secondary.Float64
		e.SecondaryValue = &v
	}
	e.Severity = domain.Severity(severity.String)
	e.Confidence = domain.Confidence(confidence.String)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
			return domain.Event{}, fmt.Errorf("decode metadata for %s: %w", e.ID, err)
		}
	}
	return e, nil
}

func marshalMetadata(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
