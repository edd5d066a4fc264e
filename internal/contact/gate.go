// Package contact decides when buyers and architects may exchange direct
// contact details and screens free text for leaked contact information.
package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"archmarket.io/internal/audit"
	"archmarket.io/internal/authz"
	"archmarket.io/internal/identity"
	"archmarket.io/internal/ids"
	"archmarket.io/internal/license"
	"archmarket.io/internal/obs"
)

const (
	ReasonExclusivePurchase = "EXCLUSIVE_PURCHASE"

	AuditActionUnlocked = "contact.unlocked"
)

var (
	// ErrAlreadyUnlocked is returned by an UnlockStore for a repeated (design, buyer) pair.
	ErrAlreadyUnlocked = errors.New("contact: already unlocked")
	// ErrNotEntitled means the license does not carry direct-contact rights.
	ErrNotEntitled = errors.New("contact: license does not grant direct contact")
	// ErrInvalidUnlock is returned when an unlock is missing one of its ids.
	ErrInvalidUnlock = errors.New("contact: design, buyer and architect ids are required")
)

// CanAccessDirectContact is true only for a paid exclusive license.
func CanAccessDirectContact(t license.Type, exclusivePaid bool) bool {
	return t == license.TypeExclusive && exclusivePaid
}

// Entitled applies CanAccessDirectContact to an active license.
func Entitled(l license.License) bool {
	return l.Active && CanAccessDirectContact(l.Type, l.ExclusivePaid)
}

// UnlockEvent is written once when an exclusive purchase completes.
type UnlockEvent struct {
	ID          string
	DesignID    string
	BuyerID     string
	ArchitectID string
	Reason      string
	CreatedAt   time.Time
}

// UnlockStore persists an unlock together with its audit entry. Both are
// written or neither is; events are never updated.
type UnlockStore interface {
	CreateUnlock(ctx context.Context, evt UnlockEvent, entry audit.Entry) error
}

// UnlockRecorder records contact unlocks with their audit trail.
type UnlockRecorder struct {
	store  UnlockStore
	mirror audit.Recorder
	ids    ids.Generator
	now    func() time.Time
	logger *slog.Logger
}

type RecorderOption func(*UnlockRecorder)

func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *UnlockRecorder) { r.now = now }
}

func WithRecorderIDs(g ids.Generator) RecorderOption {
	return func(r *UnlockRecorder) { r.ids = g }
}

func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *UnlockRecorder) { r.logger = l }
}

// WithRecorderMirror copies committed audit entries to an extra sink, such as
// the JSON audit log. Mirror failures are logged only.
func WithRecorderMirror(rec audit.Recorder) RecorderOption {
	return func(r *UnlockRecorder) { r.mirror = rec }
}

func NewUnlockRecorder(store UnlockStore, opts ...RecorderOption) *UnlockRecorder {
	r := &UnlockRecorder{
		store: store,
		ids:   ids.ULID,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = obs.ResolveLogger(r.logger)
	return r
}

// LogContactUnlock stores an EXCLUSIVE_PURCHASE unlock and its audit entry,
// attributed to the buyer, in one write.
func (r *UnlockRecorder) LogContactUnlock(ctx context.Context, designID, buyerID, architectID string) (UnlockEvent, error) {
	designID, buyerID, architectID = strings.TrimSpace(designID), strings.TrimSpace(buyerID), strings.TrimSpace(architectID)
	if designID == "" || buyerID == "" || architectID == "" {
		return UnlockEvent{}, ErrInvalidUnlock
	}
	now := r.now()
	evt := UnlockEvent{
		ID:          r.ids.NewID(),
		DesignID:    designID,
		BuyerID:     buyerID,
		ArchitectID: architectID,
		Reason:      ReasonExclusivePurchase,
		CreatedAt:   now,
	}
	entry := audit.Stamp(ctx, audit.Entry{
		ID:       r.ids.NewID(),
		ActorID:  buyerID,
		Action:   AuditActionUnlocked,
		TargetID: designID,
		Metadata: map[string]string{
			"architect_id": architectID,
			"reason":       ReasonExclusivePurchase,
			"unlock_id":    evt.ID,
		},
		OccurredAt: now,
	})
	if err := r.store.CreateUnlock(ctx, evt, entry); err != nil {
		return UnlockEvent{}, fmt.Errorf("store unlock: %w", err)
	}
	if r.mirror != nil {
		if err := r.mirror.Record(ctx, entry); err != nil {
			r.logger.Error("audit mirror failed", "event", "audit_failed", "module", "contact",
				"unlock_id", evt.ID, "error", err.Error())
		}
	}
	r.logger.Info("contact unlocked", "event", "contact_unlocked", "module", "contact",
		"design_id", designID, "buyer_id", buyerID, "architect_id", architectID)
	return evt, nil
}

// Service answers contact-entitlement questions for authenticated callers.
type Service struct {
	guard    *authz.Guard
	licenses license.Reader
	unlocks  *UnlockRecorder
}

func NewService(guard *authz.Guard, licenses license.Reader, unlocks *UnlockRecorder) *Service {
	return &Service{guard: guard, licenses: licenses, unlocks: unlocks}
}

// DirectContactAccess reports whether the calling buyer may contact the architect of designID directly.
func (s *Service) DirectContactAccess(ctx context.Context, p identity.Principal, designID string) (bool, error) {
	if err := s.guard.Authorize(p, authz.ResourceContact, authz.ActionView, ""); err != nil {
		return false, err
	}
	l, err := s.licenses.ActiveLicense(ctx, designID, p.RoleEntityID())
	if errors.Is(err, license.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load license: %w", err)
	}
	return Entitled(l), nil
}

// RecordExclusivePurchase is called by the purchase flow once an exclusive license is paid.
func (s *Service) RecordExclusivePurchase(ctx context.Context, p identity.Principal, designID, buyerID, architectID string) (UnlockEvent, error) {
	if err := s.guard.Authorize(p, authz.ResourceContact, authz.ActionCreate, ""); err != nil {
		return UnlockEvent{}, err
	}
	l, err := s.licenses.ActiveLicense(ctx, designID, buyerID)
	if errors.Is(err, license.ErrNotFound) {
		return UnlockEvent{}, ErrNotEntitled
	}
	if err != nil {
		return UnlockEvent{}, fmt.Errorf("load license: %w", err)
	}
	if !Entitled(l) {
		return UnlockEvent{}, ErrNotEntitled
	}
	return s.unlocks.LogContactUnlock(ctx, designID, buyerID, architectID)
}
