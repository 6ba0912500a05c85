// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/uaso/internal/triage"
)

// Store holds enriched records in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	records map[string]*triage.Record // alert ID -> record
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{records: make(map[string]*triage.Record)}
}

// Get retrieves a record by alert ID. Returns a copy.
func (s *Store) Get(_ context.Context, alertID string) (*triage.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[alertID]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// Put stores a copy of the record, replacing any earlier one for the same alert.
func (s *Store) Put(_ context.Context, r *triage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.records[r.AlertID] = &cp
	return nil
}

