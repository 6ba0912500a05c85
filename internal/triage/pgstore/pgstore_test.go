package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/uaso/internal/alert"
	"github.com/linnemanlabs/uaso/internal/classify"
	"github.com/linnemanlabs/uaso/internal/postgres"
	"github.com/linnemanlabs/uaso/internal/triage"
	"github.com/linnemanlabs/uaso/internal/triage/pgstore"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("UASO_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("UASO_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn, postgres.Options{Logger: log.Nop()})
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return s
}

func testRecord(c classify.Classification) *triage.Record {
	now := time.Now().Truncate(time.Microsecond).UTC()
	al := alert.New("Critical", "WAF", "SQL injection attempt on /login", now)
	return triage.NewRecord(al, c, triage.Bookkeeping{}, now)
}

func TestPutAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	r := testRecord(classify.Succeeded(classify.Classification{
		Summary:              "Blocked SQLi probe.",
		IsRealThreat:         true,
		ActionType:           classify.ActionAIHandled,
		AIHandlingMessage:    "WAF rule applied.",
		HumanGuidanceMessage: "",
	}, classify.DefaultModelID, `{"output":{}}`, time.Now()))

	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get(ctx, r.AlertID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get returned ok=false, want true")
	}

	assertEqual(t, "AlertID", r.AlertID, got.AlertID)
	assertEqual(t, "Severity", r.Severity, got.Severity)
	assertEqual(t, "Source", r.Source, got.Source)
	assertEqual(t, "Message", r.Message, got.Message)
	assertEqual(t, "Summary", r.Summary, got.Summary)
	assertEqual(t, "IsRealThreat", r.IsRealThreat, got.IsRealThreat)
	assertEqual(t, "ActionType", r.ActionType, got.ActionType)
	assertEqual(t, "AIHandlingMessage", r.AIHandlingMessage, got.AIHandlingMessage)
	assertEqual(t, "Status", r.Status, got.Status)
	assertEqual(t, "ProcessedBy", r.ProcessedBy, got.ProcessedBy)
	assertEqual(t, "Environment", r.Environment, got.Environment)
	assertEqual(t, "Metadata", r.Metadata, got.Metadata)

	if !got.ReceivedAt.Equal(r.ReceivedAt) {
		t.Errorf("ReceivedAt = %v, want %v", got.ReceivedAt, r.ReceivedAt)
	}
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.Get(context.Background(), "ALERT-does-not-exist")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected ok=false for missing record")
	}
}

func TestPutLastWriteWins(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	r := testRecord(classify.Default())
	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put 1: %v", err)
	}

	failed := triage.NewRecord(r.Alert(), classify.Failed(context.DeadlineExceeded), triage.Bookkeeping{Environment: "staging"}, r.ProcessedAt)
	if err := s.Put(ctx, failed); err != nil {
		t.Fatalf("Put 2: %v", err)
	}

	got, ok, err := s.Get(ctx, r.AlertID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	assertEqual(t, "ActionType", classify.ActionInferenceFailed, got.ActionType)
	assertEqual(t, "Summary", classify.UnavailableSummary, got.Summary)
	assertEqual(t, "Environment", "staging", got.Environment)
	assertEqual(t, "Metadata.Error", context.DeadlineExceeded.Error(), got.Metadata.Error)
}

func assertEqual[T comparable](t *testing.T, field string, want, got T) {
	t.Helper()
	if want != got {
		t.Errorf("%s = %v, want %v", field, got, want)
	}
}

var _ triage.Store = (*pgstore.Store)(nil)
