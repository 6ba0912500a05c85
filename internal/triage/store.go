package triage

import (
	"context"

	"github.com/linnemanlabs/uaso/internal/alert"
)

// Store is the persistence interface for enriched records. Put is
// idempotent on AlertID: the last write wins.
type Store interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, alertID string) (*Record, bool, error)
}

// Notifier delivers a rendered notification.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Source yields alerts in order. Next returns io.EOF when exhausted and an
// error wrapping alert.ErrMalformed for a record that could not be decoded.
type Source interface {
	Next() (*alert.Alert, error)
}
