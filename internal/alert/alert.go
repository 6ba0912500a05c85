// Package alert defines the security alert record consumed by the triage
// pipeline and the line-oriented source that produces it.
package alert

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	DefaultSeverity = "Low"
	DefaultSource   = "Unknown"

	idPrefix = "ALERT-"
)

// ErrMalformed marks a source record that could not be decoded into an Alert.
// Callers skip the record and keep going.
var ErrMalformed = errors.New("malformed alert input")

// Alert is a raw security event requiring triage. Field names match the
// attribute names used by the persistence and notification payloads.
type Alert struct {
	ID         string    `json:"AlertID"`
	Severity   string    `json:"Severity"`
	Source     string    `json:"Source"`
	Message    string    `json:"Message"`
	ReceivedAt time.Time `json:"ReceivedAt"`
}

// input is the wire shape of one source record. Pointers distinguish a
// missing key from an explicit empty string.
type input struct {
	Severity *string `json:"Severity"`
	Source   *string `json:"Source"`
	Message  *string `json:"Message"`
}

// NewID mints an alert identifier. The ULID body carries a millisecond
// timestamp plus monotonic entropy, so IDs are unique within a process even
// when minted in the same millisecond.
func NewID() string {
	return idPrefix + ulid.Make().String()
}

// New builds an Alert with a fresh ID, applying field defaults.
func New(severity, source, message string, receivedAt time.Time) *Alert {
	if severity == "" {
		severity = DefaultSeverity
	}
	if source == "" {
		source = DefaultSource
	}
	return &Alert{
		ID:         NewID(),
		Severity:   severity,
		Source:     source,
		Message:    message,
		ReceivedAt: receivedAt,
	}
}

// Decode parses one JSON object into an Alert stamped with receivedAt.
// Anything that is not a JSON object yields an error wrapping ErrMalformed.
func Decode(data []byte, receivedAt time.Time) (*Alert, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}

	var in input
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return New(deref(in.Severity), deref(in.Source), deref(in.Message), receivedAt), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
