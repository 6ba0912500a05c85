package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/uaso/internal/alert"
	"github.com/linnemanlabs/uaso/internal/triage"
)

// ErrAlertFileNotFound is returned when the batch input does not exist.
var ErrAlertFileNotFound = errors.New("alert file not found")

// BatchProcessor is the part of the service batch mode needs.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, src triage.Source) (*triage.BatchResult, error)
}

// runSummary is printed once the file has been processed.
type runSummary struct {
	Message         string           `json:"message"`
	ProcessedAlerts []triage.Summary `json:"processed_alerts"`
	Skipped         int              `json:"skipped"`
	Failed          int              `json:"failed"`
}

// runBatch processes every alert in path and writes the run summary to out.
// Collaborator failures are logged and reported in the summary but do not
// fail the run; a missing or unreadable file does.
func runBatch(ctx context.Context, svc BatchProcessor, path string, out io.Writer, L log.Logger) error {
	f, err := os.Open(path) //nolint:gosec // G304: path is operator config, not user input
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %q", ErrAlertFileNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("open alert file: %w", err)
	}
	defer func() { _ = f.Close() }()

	res, err := svc.ProcessBatch(ctx, alert.NewReader(f))
	if err != nil && !collaboratorOnly(err) {
		return fmt.Errorf("process %q: %w", path, err)
	}
	if err != nil {
		L.Warn(ctx, "some alerts could not be stored or notified", "failed", res.Failed)
	}

	summary := runSummary{
		Message:         fmt.Sprintf("Successfully processed %d alerts from '%s'.", len(res.Processed), path),
		ProcessedAlerts: res.Processed,
		Skipped:         res.Skipped,
		Failed:          res.Failed,
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// collaboratorOnly reports whether every error joined in err is a
// *triage.CollaboratorError.
func collaboratorOnly(err error) bool {
	errs := []error{err}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		if _, single := err.(*triage.CollaboratorError); !single {
			errs = j.Unwrap()
		}
	}
	for _, e := range errs {
		var cerr *triage.CollaboratorError
		if !errors.As(e, &cerr) {
			return false
		}
	}
	return true
}
