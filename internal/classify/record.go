// Package classify builds model-family-specific inference requests for alert
// analysis and recovers a normalized classification from whatever the model
// sends back. Everything here is pure: no I/O, no logging.
package classify

import "time"

// ActionType is the triage disposition assigned to an alert.
type ActionType string

const (
	ActionAIHandled      ActionType = "AI_HANDLED"
	ActionHumanRequired  ActionType = "HUMAN_REQUIRED"
	ActionFalsePositive  ActionType = "FALSE_POSITIVE"
	ActionNonAddressable ActionType = "NON_ADDRESSABLE"
	ActionUnknown        ActionType = "UNKNOWN"

	// ActionInferenceFailed is never assigned by a model, only by the
	// pipeline when the inference call itself failed.
	ActionInferenceFailed ActionType = "ERROR_INFERENCE_FAILED"
)

const (
	DefaultSummary     = "No AI summary generated."
	UnavailableSummary = "AI analysis unavailable at this time."
)

// modelActions are the values a model is allowed to return.
var modelActions = map[ActionType]struct{}{
	ActionAIHandled:      {},
	ActionHumanRequired:  {},
	ActionFalsePositive:  {},
	ActionNonAddressable: {},
	ActionUnknown:        {},
}

// Metadata describes the inference that produced a classification. On
// success Model, Timestamp and RawResponse are set; on failure only Error.
type Metadata struct {
	Model       string `json:"model,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	RawResponse string `json:"raw_response,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Classification is the normalized enrichment result for one alert,
// independent of which model family produced it.
type Classification struct {
	Summary              string     `json:"summary"`
	IsRealThreat         bool       `json:"is_real_threat"`
	ActionType           ActionType `json:"action_type"`
	AIHandlingMessage    string     `json:"ai_handling_message"`
	HumanGuidanceMessage string     `json:"human_guidance_message"`
	Metadata             Metadata   `json:"inference_metadata"`
}

// Default returns the all-defaults classification used when a response
// could not be understood.
func Default() Classification {
	return Classification{
		Summary:    DefaultSummary,
		ActionType: ActionUnknown,
	}
}

// Failed returns the classification synthesized when the inference call
// failed outright.
func Failed(err error) Classification {
	msg := "inference failed"
	if err != nil {
		msg = err.Error()
	}
	return Classification{
		Summary:    UnavailableSummary,
		ActionType: ActionInferenceFailed,
		Metadata:   Metadata{Error: msg},
	}
}

// Succeeded stamps inference metadata onto an extracted classification.
func Succeeded(c Classification, model, raw string, at time.Time) Classification {
	c.Metadata = Metadata{
		Model:       model,
		Timestamp:   at.UTC().Format(time.RFC3339Nano),
		RawResponse: raw,
	}
	return c
}
