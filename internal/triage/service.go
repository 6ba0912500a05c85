package triage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/uaso/internal/alert"
	"github.com/linnemanlabs/uaso/internal/notify"
)

// Service is the business boundary for alert enrichment: it runs the engine,
// then hands the finalized record to the store and the notifier.
type Service struct {
	store    Store
	engine   *Engine
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
	bk       Bookkeeping
	now      func() time.Time
}

// NewService creates a new enrichment service. metrics may be nil.
func NewService(store Store, engine *Engine, logger log.Logger, metrics *Metrics, notifier Notifier, bk Bookkeeping) *Service {
	if store == nil {
		panic(xerrors.New("record store is required"))
	}
	if engine == nil {
		panic(xerrors.New("triage engine is required"))
	}
	if notifier == nil {
		panic(xerrors.New("notifier is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		engine:   engine,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
		bk:       bk.withDefaults(),
		now:      time.Now,
	}
}

// ModelID returns the model identifier alerts are classified with.
func (s *Service) ModelID() string { return s.engine.ModelID() }

// Process enriches one alert, persists it and sends its notification. The
// returned record is always finalized. Store and notify are both attempted;
// their failures come back together as a *CollaboratorError.
//
// Once started, an alert runs to completion even if ctx is canceled.
func (s *Service) Process(ctx context.Context, al *alert.Alert) (*Record, error) {
	ctx = context.WithoutCancel(ctx)
	L := s.logger.With("alert_id", al.ID)

	rr := s.engine.Run(ctx, al)
	rec := NewRecord(al, rr.Classification, s.bk, s.now())

	var cerr CollaboratorError
	if err := s.store.Put(ctx, rec); err != nil {
		cerr.StoreErr = fmt.Errorf("put record: %w", err)
		L.Error(ctx, err, "failed to persist record")
	}

	view, c := rec.Alert(), rec.Classification()
	if err := s.notifier.Notify(ctx, notify.Subject(view, c), notify.Body(view, c)); err != nil {
		cerr.NotifyErr = fmt.Errorf("notify: %w", err)
		L.Error(ctx, err, "failed to send notification")
	}

	L.Info(ctx, "alert processed",
		"action_type", string(rec.ActionType),
		"summary", rec.Summary,
		"family", rr.Family,
		"shape", string(rr.Shape),
		"outcome", rr.Outcome,
		"duration", rr.Duration,
	)

	if cerr.StoreErr != nil || cerr.NotifyErr != nil {
		cerr.AlertID = al.ID
		s.observe("failed", &cerr)
		return rec, &cerr
	}
	s.observe("processed", nil)
	return rec, nil
}

// ProcessBatch processes alerts from src one at a time until it is
// exhausted. Malformed records are skipped; collaborator failures are
// collected and the next alert is still attempted. Cancellation is honored
// between alerts only.
func (s *Service) ProcessBatch(ctx context.Context, src Source) (*BatchResult, error) {
	res := &BatchResult{Processed: []Summary{}}
	var errs []error

	for {
		if err := ctx.Err(); err != nil {
			s.logger.Warn(ctx, "batch interrupted", "processed", len(res.Processed))
			errs = append(errs, err)
			break
		}

		al, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, alert.ErrMalformed) {
			s.logger.Warn(ctx, "skipping malformed alert", "reason", err.Error())
			res.Skipped++
			s.observe("skipped", nil)
			continue
		}
		if err != nil {
			errs = append(errs, err)
			break
		}

		rec, err := s.Process(ctx, al)
		res.Processed = append(res.Processed, rec.Summarize())
		if err != nil {
			res.Failed++
			errs = append(errs, err)
		}
	}

	s.logger.Info(ctx, "batch complete",
		"processed", len(res.Processed),
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return res, errors.Join(errs...)
}

// Get retrieves an enriched record by alert ID.
func (s *Service) Get(ctx context.Context, alertID string) (*Record, bool, error) {
	return s.store.Get(ctx, alertID)
}

func (s *Service) observe(result string, cerr *CollaboratorError) {
	if s.metrics == nil {
		return
	}
	s.metrics.AlertsTotal.WithLabelValues(result).Inc()
	if cerr == nil {
		return
	}
	if cerr.StoreErr != nil {
		s.metrics.CollaboratorErrors.WithLabelValues("store").Inc()
	}
	if cerr.NotifyErr != nil {
		s.metrics.CollaboratorErrors.WithLabelValues("notify").Inc()
	}
}
