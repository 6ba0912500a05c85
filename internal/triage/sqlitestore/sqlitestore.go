// Package sqlitestore provides a single-file SQLite implementation of
// triage.Store, for batch runs that want durable output without a server.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	_ "modernc.org/sqlite"

	"github.com/linnemanlabs/uaso/internal/classify"
	"github.com/linnemanlabs/uaso/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/uaso/internal/triage/sqlitestore")

const schema = `
CREATE TABLE IF NOT EXISTS alert_records (
	alert_id               TEXT PRIMARY KEY,
	received_at            TEXT NOT NULL,
	severity               TEXT NOT NULL,
	source                 TEXT NOT NULL,
	message                TEXT NOT NULL,
	summary                TEXT NOT NULL,
	is_real_threat         INTEGER NOT NULL DEFAULT 0,
	action_type            TEXT NOT NULL,
	ai_handling_message    TEXT NOT NULL DEFAULT '',
	human_guidance_message TEXT NOT NULL DEFAULT '',
	status                 TEXT NOT NULL,
	processed_by           TEXT NOT NULL,
	environment            TEXT NOT NULL,
	model_used             TEXT NOT NULL,
	inference_timestamp    TEXT,
	metadata               TEXT NOT NULL,
	processed_at           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_action_type ON alert_records(action_type);
`

// Store persists enriched records in a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes a record, replacing any earlier one for the same alert.
func (s *Store) Put(ctx context.Context, r *triage.Record) error {
	ctx, span := tracer.Start(ctx, "sqlitestore.Put", trace.WithAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("db.operation.name", "INSERT OR REPLACE"),
	))
	defer span.End()

	metadataJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var inferenceTS sql.NullString
	if r.Metadata.Timestamp != "" {
		inferenceTS = sql.NullString{String: r.Metadata.Timestamp, Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO alert_records (
			alert_id, received_at, severity, source, message, summary, is_real_threat,
			action_type, ai_handling_message, human_guidance_message, status, processed_by,
			environment, model_used, inference_timestamp, metadata, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		r.AlertID,
		formatTime(r.ReceivedAt),
		r.Severity,
		r.Source,
		r.Message,
		r.Summary,
		r.IsRealThreat,
		string(r.ActionType),
		r.AIHandlingMessage,
		r.HumanGuidanceMessage,
		r.Status,
		r.ProcessedBy,
		r.Environment,
		r.ModelUsed(),
		inferenceTS,
		string(metadataJSON),
		formatTime(r.ProcessedAt),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// Get retrieves a record by alert ID.
func (s *Store) Get(ctx context.Context, alertID string) (*triage.Record, bool, error) {
	ctx, span := tracer.Start(ctx, "sqlitestore.Get", trace.WithAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `
		SELECT alert_id, received_at, severity, source, message, summary, is_real_threat,
		       action_type, ai_handling_message, human_guidance_message, status, processed_by,
		       environment, metadata, processed_at
		FROM alert_records
		WHERE alert_id = ?
	`

	var (
		r            triage.Record
		receivedAt   string
		action       string
		metadataJSON string
		processedAt  string
	)
	err := s.db.QueryRowContext(ctx, query, alertID).Scan(
		&r.AlertID, &receivedAt, &r.Severity, &r.Source, &r.Message, &r.Summary, &r.IsRealThreat,
		&action, &r.AIHandlingMessage, &r.HumanGuidanceMessage, &r.Status, &r.ProcessedBy,
		&r.Environment, &metadataJSON, &processedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("get record: %w", err)
	}

	r.ActionType = classify.ParseAction(action)
	if r.ReceivedAt, err = parseTime(receivedAt); err != nil {
		return nil, false, fmt.Errorf("received_at: %w", err)
	}
	if r.ProcessedAt, err = parseTime(processedAt); err != nil {
		return nil, false, fmt.Errorf("processed_at: %w", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &r.Metadata); err != nil {
		return nil, false, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &r, true, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
