// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/uaso/internal/classify"
	"github.com/linnemanlabs/uaso/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/uaso/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists enriched records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const recordColumns = `alert_id, received_at, severity, source, message, summary, is_real_threat,
	action_type, ai_handling_message, human_guidance_message, status, processed_by, environment,
	metadata, processed_at`

// Get retrieves a record by alert ID.
func (s *Store) Get(ctx context.Context, alertID string) (*triage.Record, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + recordColumns + ` FROM alert_records WHERE alert_id = $1`
	r, err := scanRecord(s.pool.QueryRow(ctx, query, alertID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

// Put upserts a record. A second Put for the same alert replaces the first.
func (s *Store) Put(ctx context.Context, r *triage.Record) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	metadataJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var inferenceTS *string
	if r.Metadata.Timestamp != "" {
		inferenceTS = &r.Metadata.Timestamp
	}

	query := `INSERT INTO alert_records (
		alert_id, received_at, severity, source, message, summary, is_real_threat,
		action_type, ai_handling_message, human_guidance_message, status, processed_by, environment,
		model_used, inference_timestamp, metadata, processed_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	ON CONFLICT (alert_id) DO UPDATE SET
		received_at            = EXCLUDED.received_at,
		severity               = EXCLUDED.severity,
		source                 = EXCLUDED.source,
		message                = EXCLUDED.message,
		summary                = EXCLUDED.summary,
		is_real_threat         = EXCLUDED.is_real_threat,
		action_type            = EXCLUDED.action_type,
		ai_handling_message    = EXCLUDED.ai_handling_message,
		human_guidance_message = EXCLUDED.human_guidance_message,
		status                 = EXCLUDED.status,
		processed_by           = EXCLUDED.processed_by,
		environment            = EXCLUDED.environment,
		model_used             = EXCLUDED.model_used,
		inference_timestamp    = EXCLUDED.inference_timestamp,
		metadata               = EXCLUDED.metadata,
		processed_at           = EXCLUDED.processed_at`

	_, err = s.pool.Exec(ctx, query,
		r.AlertID, r.ReceivedAt, r.Severity, r.Source, r.Message, r.Summary, r.IsRealThreat,
		string(r.ActionType), r.AIHandlingMessage, r.HumanGuidanceMessage, r.Status, r.ProcessedBy, r.Environment,
		r.ModelUsed(), inferenceTS, metadataJSON, r.ProcessedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// scanRecord scans a single row into a triage.Record.
// Returns (nil, nil) when no row is found.
func scanRecord(row pgx.Row) (*triage.Record, error) {
	var (
		r            triage.Record
		action       string
		metadataJSON []byte
	)

	err := row.Scan(
		&r.AlertID, &r.ReceivedAt, &r.Severity, &r.Source, &r.Message, &r.Summary, &r.IsRealThreat,
		&action, &r.AIHandlingMessage, &r.HumanGuidanceMessage, &r.Status, &r.ProcessedBy, &r.Environment,
		&metadataJSON, &r.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	r.ActionType = classify.ParseAction(action)
	if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &r, nil
}
