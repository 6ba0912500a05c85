package alertapi

import (
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/uaso/internal/alert"
	"github.com/linnemanlabs/uaso/internal/triage"
)

// ingestResponse is the BatchResult plus any per-alert failures.
type ingestResponse struct {
	*triage.BatchResult
	Errors []string `json:"errors,omitempty"`
}

// handleIngestAlerts processes a JSON array or NDJSON body synchronously.
// 200 when every alert was stored and notified, 207 when something failed
// after at least one alert was processed, 400 otherwise.
func (a *API) handleIngestAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	src, err := alert.NewBatchReader(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	a.mu.Lock()
	res, err := a.svc.ProcessBatch(ctx, src)
	a.mu.Unlock()

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("uaso.batch.processed", len(res.Processed)),
		attribute.Int("uaso.batch.skipped", res.Skipped),
		attribute.Int("uaso.batch.failed", res.Failed),
	)

	resp := ingestResponse{BatchResult: res}
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Errors = errorStrings(err)
	var cerr *triage.CollaboratorError
	if !errors.As(err, &cerr) {
		a.logger.Warn(ctx, "batch ended early", "reason", err.Error(), "processed", len(res.Processed))
	}
	// processed alerts are already stored; a retry would duplicate them
	if len(res.Processed) > 0 || cerr != nil {
		writeJSON(w, http.StatusMultiStatus, resp)
		return
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

// errorStrings flattens a joined error into its parts.
func errorStrings(err error) []string {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range j.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
