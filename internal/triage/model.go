package triage

import (
	"time"

	"github.com/linnemanlabs/uaso/internal/alert"
	"github.com/linnemanlabs/uaso/internal/classify"
)

// StatusOpen is the lifecycle status of every newly enriched record.
const StatusOpen = "Open"

const (
	DefaultProcessedBy = "UASO_Lambda"
	DefaultEnvironment = "Hackathon"
)

// Bookkeeping are the deployment-level fields stamped on every record.
type Bookkeeping struct {
	ProcessedBy string
	Environment string
}

func (b Bookkeeping) withDefaults() Bookkeeping {
	if b.ProcessedBy == "" {
		b.ProcessedBy = DefaultProcessedBy
	}
	if b.Environment == "" {
		b.Environment = DefaultEnvironment
	}
	return b
}

// Record is an alert plus its classification, as handed to persistence
// and notification.
type Record struct {
	AlertID    string    `json:"alert_id"`
	ReceivedAt time.Time `json:"received_at"`
	Severity   string    `json:"severity"`
	Source     string    `json:"source"`
	Message    string    `json:"message"`

	Summary              string              `json:"summary"`
	IsRealThreat         bool                `json:"is_real_threat"`
	ActionType           classify.ActionType `json:"action_type"`
	AIHandlingMessage    string              `json:"ai_handling_message"`
	HumanGuidanceMessage string              `json:"human_guidance_message"`
	Metadata             classify.Metadata   `json:"inference_metadata"`

	Status      string    `json:"status"`
	ProcessedBy string    `json:"processed_by"`
	Environment string    `json:"environment"`
	ProcessedAt time.Time `json:"processed_at"`
}

// NewRecord merges an alert and its classification.
func NewRecord(al *alert.Alert, c classify.Classification, b Bookkeeping, processedAt time.Time) *Record {
	b = b.withDefaults()
	return &Record{
		AlertID:              al.ID,
		ReceivedAt:           al.ReceivedAt,
		Severity:             al.Severity,
		Source:               al.Source,
		Message:              al.Message,
		Summary:              c.Summary,
		IsRealThreat:         c.IsRealThreat,
		ActionType:           c.ActionType,
		AIHandlingMessage:    c.AIHandlingMessage,
		HumanGuidanceMessage: c.HumanGuidanceMessage,
		Metadata:             c.Metadata,
		Status:               StatusOpen,
		ProcessedBy:          b.ProcessedBy,
		Environment:          b.Environment,
		ProcessedAt:          processedAt,
	}
}

// Alert returns the alert portion of the record.
func (r *Record) Alert() *alert.Alert {
	return &alert.Alert{
		ID:         r.AlertID,
		Severity:   r.Severity,
		Source:     r.Source,
		Message:    r.Message,
		ReceivedAt: r.ReceivedAt,
	}
}

// ModelUsed is the model named in the inference metadata, or "unknown"
// when inference failed.
func (r *Record) ModelUsed() string {
	if r.Metadata.Model == "" {
		return "unknown"
	}
	return r.Metadata.Model
}

// Summary is the per-alert line reported at the end of a batch.
type Summary struct {
	AlertID      string              `json:"AlertID"`
	Summary      string              `json:"summary"`
	ActionType   classify.ActionType `json:"action_type"`
	IsRealThreat bool                `json:"is_real_threat"`
}

// Summarize reduces a record to its batch summary line.
func (r *Record) Summarize() Summary {
	return Summary{
		AlertID:      r.AlertID,
		Summary:      r.Summary,
		ActionType:   r.ActionType,
		IsRealThreat: r.IsRealThreat,
	}
}

// BatchResult reports a ProcessBatch run. Processed includes alerts whose
// store or notify step failed; Failed counts those.
type BatchResult struct {
	Processed []Summary `json:"processed_alerts"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
}

// Classification returns the classification portion of the record.
func (r *Record) Classification() classify.Classification {
	return classify.Classification{
		Summary:              r.Summary,
		IsRealThreat:         r.IsRealThreat,
		ActionType:           r.ActionType,
		AIHandlingMessage:    r.AIHandlingMessage,
		HumanGuidanceMessage: r.HumanGuidanceMessage,
		Metadata:             r.Metadata,
	}
}
