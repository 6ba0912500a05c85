// internal/triage/engine.go
package triage

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/uaso/internal/alert"
	"github.com/linnemanlabs/uaso/internal/classify"
)

var tracer = otel.Tracer("github.com/linnemanlabs/uaso/internal/triage")

// Stage is a state of the per-alert pipeline.
type Stage string

const (
	StageBuilt     Stage = "built"
	StageRequested Stage = "requested"
	StageInvoked   Stage = "invoked"
	StageExtracted Stage = "extracted"
	StageErrored   Stage = "errored"
	StageFinalized Stage = "finalized"
)

// Outcome labels how a run finished.
const (
	OutcomeOK              = "ok"
	OutcomeUnrecognized    = "unrecognized"
	OutcomeInferenceFailed = "inference_failed"
)

// EngineHooks are optional callbacks for observability. Nil fields are skipped.
type EngineHooks struct {
	OnInvoke   func(model, family string, duration float64, err error)
	OnComplete func(e *CompleteEvent)
}

// CompleteEvent carries the data for a finished run.
type CompleteEvent struct {
	Model     string
	Family    string
	Shape     classify.Shape
	Action    classify.ActionType
	Outcome   string
	ErrorKind string
	Duration  float64
}

// RunResult is the outcome of one alert through the pipeline. It always
// carries a fully populated classification.
type RunResult struct {
	Classification classify.Classification
	Path           []Stage
	Family         string
	Shape          classify.Shape
	Outcome        string
	// Err is nil, an *InferenceError, or wraps classify.ErrResponseUnrecognized.
	Err        error
	Duration   float64 // seconds
	InvokeTime float64 // seconds
}

// Engine runs a single alert through build, invoke and extract. It holds no
// per-alert state and does not retry.
type Engine struct {
	invoker Invoker
	modelID string
	logger  log.Logger
	hooks   EngineHooks
	now     func() time.Time
}

// NewEngine creates an engine for modelID. An empty modelID selects
// classify.DefaultModelID.
func NewEngine(invoker Invoker, modelID string, logger log.Logger, hooks EngineHooks) *Engine {
	if invoker == nil {
		panic(xerrors.New("inference invoker is required"))
	}
	if modelID == "" {
		modelID = classify.DefaultModelID
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		invoker: invoker,
		modelID: modelID,
		logger:  logger,
		hooks:   hooks,
		now:     time.Now,
	}
}

// ModelID returns the model the engine sends requests to.
func (e *Engine) ModelID() string { return e.modelID }

// Run classifies one alert. Inference and extraction failures degrade the
// classification; Run itself never fails.
func (e *Engine) Run(ctx context.Context, al *alert.Alert) *RunResult {
	start := e.now()
	rr := &RunResult{}

	ctx, span := tracer.Start(ctx, "triage.run", trace.WithAttributes(
		attribute.String("uaso.alert.id", al.ID),
		attribute.String("uaso.alert.severity", al.Severity),
		attribute.String("uaso.alert.source", al.Source),
		attribute.String("gen_ai.request.model", e.modelID),
	))
	defer span.End()

	L := e.logger.With("alert_id", al.ID, "model", e.modelID)

	prompt := classify.BuildPrompt(al.Message)
	rr.Path = append(rr.Path, StageBuilt)

	req := classify.BuildRequest(e.modelID, prompt)
	rr.Family = req.Family
	rr.Path = append(rr.Path, StageRequested)
	span.SetAttributes(attribute.String("uaso.model.family", req.Family))
	if !req.Known {
		L.Warn(ctx, "unrecognized model family, using fallback request shape",
			"known_families", classify.Families(),
		)
	}

	raw, invokeTime, err := e.invoke(ctx, req)
	rr.InvokeTime = invokeTime
	if err != nil {
		rr.Path = append(rr.Path, StageErrored)
		rr.Classification = classify.Failed(err)
		rr.Shape = classify.ShapeNone
		rr.Outcome = OutcomeInferenceFailed
		rr.Err = err

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		L.Error(ctx, err, "inference failed", "family", req.Family)
	} else {
		rr.Path = append(rr.Path, StageInvoked)

		ex := classify.Extract(raw)
		rr.Path = append(rr.Path, StageExtracted)
		rr.Shape = ex.Shape
		rr.Classification = classify.Succeeded(ex.Classification, e.modelID, raw, e.now())
		rr.Outcome = OutcomeOK
		if ex.Err != nil {
			rr.Outcome = OutcomeUnrecognized
			rr.Err = ex.Err
			L.Warn(ctx, "model response not understood, using defaults",
				"family", req.Family,
				"shape", string(ex.Shape),
				"reason", ex.Err.Error(),
			)
		}
	}

	rr.Path = append(rr.Path, StageFinalized)
	rr.Duration = e.now().Sub(start).Seconds()

	span.SetAttributes(
		attribute.String("uaso.response.shape", string(rr.Shape)),
		attribute.String("uaso.action_type", string(rr.Classification.ActionType)),
		attribute.String("uaso.outcome", rr.Outcome),
	)

	if e.hooks.OnComplete != nil {
		ev := &CompleteEvent{
			Model:    e.modelID,
			Family:   rr.Family,
			Shape:    rr.Shape,
			Action:   rr.Classification.ActionType,
			Outcome:  rr.Outcome,
			Duration: rr.Duration,
		}
		var ie *InferenceError
		if errors.As(rr.Err, &ie) {
			ev.ErrorKind = ie.Kind()
		}
		e.hooks.OnComplete(ev)
	}

	return rr
}

// invoke sends the request once. Any failure, including one serializing the
// body, comes back as an *InferenceError.
func (e *Engine) invoke(ctx context.Context, req classify.Request) (raw string, elapsed float64, err error) {
	ctx, span := tracer.Start(ctx, "inference.invoke", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", "inference.invoke"),
		attribute.String("gen_ai.request.model", e.modelID),
		attribute.String("uaso.model.family", req.Family),
	))
	defer span.End()

	fail := func(err error) *InferenceError {
		ie := &InferenceError{Model: e.modelID, Family: req.Family, Err: err}
		span.RecordError(ie)
		span.SetStatus(codes.Error, ie.Error())
		span.SetAttributes(attribute.String("error.type", ie.Kind()))
		return ie
	}

	payload, err := req.Marshal()
	if err != nil {
		return "", 0, fail(err)
	}
	span.SetAttributes(attribute.Int("uaso.request.bytes", len(payload)))

	start := e.now()
	raw, err = e.invoker.Invoke(ctx, e.modelID, payload)
	elapsed = e.now().Sub(start).Seconds()

	if e.hooks.OnInvoke != nil {
		e.hooks.OnInvoke(e.modelID, req.Family, elapsed, err)
	}
	if err != nil {
		return "", elapsed, fail(err)
	}

	span.SetAttributes(attribute.Int("uaso.response.bytes", len(raw)))
	return raw, elapsed, nil
}
