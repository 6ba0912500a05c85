package triage

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/uaso/internal/alert"
	"github.com/linnemanlabs/uaso/internal/classify"
)

func TestNewRecord_MergesAlertAndClassification(t *testing.T) {
	t.Parallel()

	al := testAlert()
	at := time.Date(2026, 5, 4, 10, 0, 1, 0, time.UTC)
	c := classify.Succeeded(classify.Classification{
		Summary:      "s",
		IsRealThreat: true,
		ActionType:   classify.ActionHumanRequired,
	}, novaModel, "{}", at)

	rec := NewRecord(al, c, Bookkeeping{}, at)

	if got := rec.Alert(); *got != *al {
		t.Errorf("Alert() = %+v, want %+v", got, al)
	}
	if rec.Classification() != c {
		t.Errorf("Classification() = %+v, want %+v", rec.Classification(), c)
	}
	if rec.ModelUsed() != novaModel {
		t.Errorf("ModelUsed = %q", rec.ModelUsed())
	}
	if rec.Status != StatusOpen || rec.ProcessedBy != DefaultProcessedBy || rec.Environment != DefaultEnvironment {
		t.Errorf("bookkeeping = %q %q %q", rec.Status, rec.ProcessedBy, rec.Environment)
	}
}

func TestRecord_ModelUsedUnknownOnFailure(t *testing.T) {
	t.Parallel()

	rec := NewRecord(testAlert(), classify.Failed(errors.New("x")), Bookkeeping{}, time.Now())
	if rec.ModelUsed() != "unknown" {
		t.Errorf("ModelUsed = %q, want unknown", rec.ModelUsed())
	}
}

func TestRecord_JSON(t *testing.T) {
	t.Parallel()

	rec := NewRecord(testAlert(), classify.Failed(errors.New("denied")), Bookkeeping{}, time.Now())
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	for _, want := range []string{`"alert_id":"ALERT-`, `"action_type":"ERROR_INFERENCE_FAILED"`, `"inference_metadata":{"error":"denied"}`, `"status":"Open"`} {
		if !strings.Contains(s, want) {
			t.Errorf("json missing %s: %s", want, s)
		}
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	rec := NewRecord(testAlert(), classify.Default(), Bookkeeping{}, time.Now())
	b, err := json.Marshal(rec.Summarize())
	if err != nil {
		t.Fatal(err)
	}
	want := `{"AlertID":"` + rec.AlertID + `","summary":"No AI summary generated.","action_type":"UNKNOWN","is_real_threat":false}`
	if string(b) != want {
		t.Errorf("summary json = %s, want %s", b, want)
	}
}

func TestCollaboratorError_Message(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *CollaboratorError
		want string
	}{
		{"store", &CollaboratorError{AlertID: "A", StoreErr: errors.New("s")}, "alert A: store: s"},
		{"notify", &CollaboratorError{AlertID: "A", NotifyErr: errors.New("n")}, "alert A: notify: n"},
		{"both", &CollaboratorError{AlertID: "A", StoreErr: errors.New("s"), NotifyErr: errors.New("n")}, "alert A: store: s; notify: n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

var _ Source = (*alert.Reader)(nil)
