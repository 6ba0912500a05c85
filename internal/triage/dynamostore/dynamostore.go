// Package dynamostore provides a DynamoDB implementation of triage.Store.
// Items use the table layout of the original alert table: PascalCase
// attributes keyed on AlertID, with inference metadata kept as a JSON string.
package dynamostore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/uaso/internal/classify"
	"github.com/linnemanlabs/uaso/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/uaso/internal/triage/dynamostore")

// API is the subset of the DynamoDB client the store uses.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// item is the stored shape of a triage.Record.
type item struct {
	AlertID              string  `dynamodbav:"AlertID"`
	ReceivedAt           string  `dynamodbav:"ReceivedAt"`
	Severity             string  `dynamodbav:"Severity"`
	Source               string  `dynamodbav:"Source"`
	Message              string  `dynamodbav:"Message"`
	AISummary            string  `dynamodbav:"AISummary"`
	IsRealThreat         bool    `dynamodbav:"IsRealThreat"`
	ActionType           string  `dynamodbav:"ActionType"`
	AIHandlingMessage    string  `dynamodbav:"AIHandlingMessage"`
	HumanGuidanceMessage string  `dynamodbav:"HumanGuidanceMessage"`
	Status               string  `dynamodbav:"Status"`
	ProcessedBy          string  `dynamodbav:"ProcessedBy"`
	Environment          string  `dynamodbav:"Environment"`
	ModelUsed            string  `dynamodbav:"ModelUsed"`
	InferenceTimestamp   *string `dynamodbav:"InferenceTimestamp"`
	Metadata             string  `dynamodbav:"Metadata"`
	ProcessedAt          string  `dynamodbav:"ProcessedAt"`
}

// Store persists records in a DynamoDB table.
type Store struct {
	api   API
	table string
}

// New returns a Store writing to table through api.
func New(api API, table string) *Store {
	if api == nil {
		panic(xerrors.New("dynamodb client is required"))
	}
	if table == "" {
		panic(xerrors.New("dynamodb table name is required"))
	}
	return &Store{api: api, table: table}
}

// Put writes the record with PutItem, which replaces any existing item
// with the same AlertID.
func (s *Store) Put(ctx context.Context, r *triage.Record) error {
	ctx, span := tracer.Start(ctx, "dynamostore.Put", trace.WithAttributes(
		attribute.String("db.system", "dynamodb"),
		attribute.String("db.operation.name", "PutItem"),
		attribute.String("aws.dynamodb.table_names", s.table),
	))
	defer span.End()

	it, err := toItem(r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("marshal item: %w", err)
	}

	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get reads a record by AlertID with a consistent read.
func (s *Store) Get(ctx context.Context, alertID string) (*triage.Record, bool, error) {
	ctx, span := tracer.Start(ctx, "dynamostore.Get", trace.WithAttributes(
		attribute.String("db.system", "dynamodb"),
		attribute.String("db.operation.name", "GetItem"),
		attribute.String("aws.dynamodb.table_names", s.table),
	))
	defer span.End()

	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"AlertID": &types.AttributeValueMemberS{Value: alertID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("unmarshal item: %w", err)
	}
	r, err := fromItem(&it)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

func toItem(r *triage.Record) (*item, error) {
	metadataJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	it := &item{
		AlertID:              r.AlertID,
		ReceivedAt:           r.ReceivedAt.UTC().Format(time.RFC3339Nano),
		Severity:             r.Severity,
		Source:               r.Source,
		Message:              r.Message,
		AISummary:            r.Summary,
		IsRealThreat:         r.IsRealThreat,
		ActionType:           string(r.ActionType),
		AIHandlingMessage:    r.AIHandlingMessage,
		HumanGuidanceMessage: r.HumanGuidanceMessage,
		Status:               r.Status,
		ProcessedBy:          r.ProcessedBy,
		Environment:          r.Environment,
		ModelUsed:            r.ModelUsed(),
		Metadata:             string(metadataJSON),
		ProcessedAt:          r.ProcessedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.Metadata.Timestamp != "" {
		it.InferenceTimestamp = aws.String(r.Metadata.Timestamp)
	}
	return it, nil
}

func fromItem(it *item) (*triage.Record, error) {
	r := &triage.Record{
		AlertID:              it.AlertID,
		Severity:             it.Severity,
		Source:               it.Source,
		Message:              it.Message,
		Summary:              it.AISummary,
		IsRealThreat:         it.IsRealThreat,
		ActionType:           classify.ParseAction(it.ActionType),
		AIHandlingMessage:    it.AIHandlingMessage,
		HumanGuidanceMessage: it.HumanGuidanceMessage,
		Status:               it.Status,
		ProcessedBy:          it.ProcessedBy,
		Environment:          it.Environment,
	}

	var err error
	if r.ReceivedAt, err = time.Parse(time.RFC3339Nano, it.ReceivedAt); err != nil {
		return nil, fmt.Errorf("parse ReceivedAt: %w", err)
	}
	if it.ProcessedAt != "" {
		if r.ProcessedAt, err = time.Parse(time.RFC3339Nano, it.ProcessedAt); err != nil {
			return nil, fmt.Errorf("parse ProcessedAt: %w", err)
		}
	}
	if it.Metadata != "" {
		if err := json.Unmarshal([]byte(it.Metadata), &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode Metadata: %w", err)
		}
	}
	return r, nil
}
