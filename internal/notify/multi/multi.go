// Package multi fans a notification out to several transports.
package multi

import (
	"context"
	"errors"

	"github.com/linnemanlabs/uaso/internal/triage"
)

// Notifier sends every notification to each wrapped notifier in order.
type Notifier struct {
	notifiers []triage.Notifier
}

// New returns a Notifier over ns. Nil entries are dropped.
func New(ns ...triage.Notifier) *Notifier {
	m := &Notifier{}
	for _, n := range ns {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Len reports how many transports are wired.
func (m *Notifier) Len() int { return len(m.notifiers) }

// Notify attempts every transport, even after one fails, and joins the errors.
func (m *Notifier) Notify(ctx context.Context, subject, body string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
