package triage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// InferenceError is a failed call to the inference service. The pipeline
// never stops on it; the alert is finalized as ERROR_INFERENCE_FAILED.
type InferenceError struct {
	Model  string
	Family string
	Err    error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("invoke %s (%s): %v", e.Model, e.Family, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// errorCoder is implemented by invoker errors that carry a service code.
type errorCoder interface {
	ErrorCode() string
}

// Kind is a low-cardinality label for the failure: the service error code
// when there is one, otherwise timeout, canceled or unknown.
func (e *InferenceError) Kind() string {
	var apiErr smithy.APIError
	var coder errorCoder
	switch {
	case errors.As(e.Err, &apiErr) && apiErr.ErrorCode() != "":
		return apiErr.ErrorCode()
	case errors.As(e.Err, &coder) && coder.ErrorCode() != "":
		return coder.ErrorCode()
	case errors.Is(e.Err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(e.Err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}

// CollaboratorError reports a store and/or notify failure for one alert.
// The record was still finalized; at least one of StoreErr and NotifyErr
// is set.
type CollaboratorError struct {
	AlertID   string
	StoreErr  error
	NotifyErr error
}

func (e *CollaboratorError) Error() string {
	switch {
	case e.StoreErr != nil && e.NotifyErr != nil:
		return fmt.Sprintf("alert %s: store: %v; notify: %v", e.AlertID, e.StoreErr, e.NotifyErr)
	case e.StoreErr != nil:
		return fmt.Sprintf("alert %s: store: %v", e.AlertID, e.StoreErr)
	default:
		return fmt.Sprintf("alert %s: notify: %v", e.AlertID, e.NotifyErr)
	}
}

func (e *CollaboratorError) Unwrap() []error {
	var errs []error
	if e.StoreErr != nil {
		errs = append(errs, e.StoreErr)
	}
	if e.NotifyErr != nil {
		errs = append(errs, e.NotifyErr)
	}
	return errs
}
