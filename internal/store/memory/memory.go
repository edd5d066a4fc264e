// Package memory is a mutex-guarded store used by tests and local runs.
package memory

import (
	"context"
	"sync"

	"archmarket.io/internal/audit"
	"archmarket.io/internal/contact"
	"archmarket.io/internal/earnings"
	"archmarket.io/internal/license"
	"archmarket.io/internal/workflow"
)

// Store implements every persistence port in process.
type Store struct {
	mu       sync.RWMutex
	requests map[string]workflow.ModificationRequest
	designs  map[string]string // design id -> architect id
	licenses map[licenseKey]license.License
	unlocks  map[licenseKey]contact.UnlockEvent
	earnings map[string]earnings.Earning // request id -> earning
	audit    []audit.Entry
}

type licenseKey struct{ designID, buyerID string }

func New() *Store {
	return &Store{
		requests: make(map[string]workflow.ModificationRequest),
		designs:  make(map[string]string),
		licenses: make(map[licenseKey]license.License),
		unlocks:  make(map[licenseKey]contact.UnlockEvent),
		earnings: make(map[string]earnings.Earning),
	}
}

// PutDesign registers the architect owning designID.
func (s *Store) PutDesign(designID, architectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.designs[designID] = architectID
}

func (s *Store) PutLicense(l license.License) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.licenses[licenseKey{l.DesignID, l.BuyerID}] = l
}

func (s *Store) PutEarning(e earnings.Earning) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.earnings[e.RequestID] = e
}

func (s *Store) Create(_ context.Context, r workflow.ModificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[r.ID]; exists {
		return workflow.ErrInvalidInput
	}
	s.requests[r.ID] = clone(r)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (workflow.ModificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return workflow.ModificationRequest{}, workflow.ErrNotFound
	}
	return clone(r), nil
}

func (s *Store) CompareAndSwap(_ context.Context, expected workflow.Status, next workflow.ModificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.requests[next.ID]
	if !ok {
		return workflow.ErrNotFound
	}
	if cur.Status != expected {
		return workflow.ErrStaleStatus
	}
	s.requests[next.ID] = clone(next)
	return nil
}

// Len returns the number of stored requests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}

func (s *Store) ArchitectForDesign(_ context.Context, designID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.designs[designID]
	if !ok {
		return "", workflow.ErrDesignNotFound
	}
	return id, nil
}

func (s *Store) ActiveLicense(_ context.Context, designID, buyerID string) (license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.licenses[licenseKey{designID, buyerID}]
	if !ok || !l.Active {
		return license.License{}, license.ErrNotFound
	}
	return l, nil
}

// CreateUnlock stores the unlock and its audit entry under one lock.
func (s *Store) CreateUnlock(ctx context.Context, evt contact.UnlockEvent, entry audit.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	entry = audit.Stamp(ctx, entry)
	s.mu.Lock()
	defer s.mu.Unlock()
	k := licenseKey{evt.DesignID, evt.BuyerID}
	if _, exists := s.unlocks[k]; exists {
		return contact.ErrAlreadyUnlocked
	}
	s.unlocks[k] = evt
	s.audit = append(s.audit, entry)
	return nil
}

func (s *Store) Record(ctx context.Context, e audit.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	e = audit.Stamp(ctx, e)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

// AuditEntries returns a copy of the recorded entries.
func (s *Store) AuditEntries() []audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry(nil), s.audit...)
}

func (s *Store) PendingEarningForRequest(_ context.Context, requestID string) (earnings.Earning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.earnings[requestID]
	if !ok || e.Status != earnings.StatusPending {
		return earnings.Earning{}, earnings.ErrNotFound
	}
	return e, nil
}

func clone(r workflow.ModificationRequest) workflow.ModificationRequest {
	r.ScopeTags = append([]string(nil), r.ScopeTags...)
	return r
}
