package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"archmarket.io/internal/audit"
	"archmarket.io/internal/authz"
	"archmarket.io/internal/contact"
	"archmarket.io/internal/identity"
	"archmarket.io/internal/ids"
	"archmarket.io/internal/license"
	"archmarket.io/internal/obs"
)

const (
	systemActorID = "system"

	maxDescriptionLen = 4000
	maxScopeTags      = 20
)

// CreateInput is what a buyer submits to open a request.
type CreateInput struct {
	DesignID    string
	Description string
	ScopeTags   []string
}

// TransitionInput moves a request to To. Pricing fields are only read for PRICED.
type TransitionInput struct {
	To                Status
	ProposedPrice     int64
	DeliveryTimeDays  int
	RevisionsIncluded int
	ArchitectNote     string
}

// Service orchestrates authorization, validation and persistence of requests.
type Service struct {
	guard     *authz.Guard
	store     Store
	designs   DesignDirectory
	licenses  license.Reader
	audit     audit.Recorder
	publisher Publisher
	ids       ids.Generator
	now       func() time.Time
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDs overrides the id generator.
func WithIDs(g ids.Generator) ServiceOption {
	return func(s *Service) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithPublisher receives events after commit.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

func NewService(guard *authz.Guard, store Store, designs DesignDirectory, licenses license.Reader, rec audit.Recorder, opts ...ServiceOption) *Service {
	s := &Service{
		guard:     guard,
		store:     store,
		designs:   designs,
		licenses:  licenses,
		audit:     rec,
		publisher: nopPublisher{},
		ids:       ids.ULID,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = obs.ResolveLogger(s.logger)
	return s
}

// Create opens a REQUESTED modification request for the calling buyer.
// Nothing is stored when any precondition fails.
func (s *Service) Create(ctx context.Context, p identity.Principal, in CreateInput) (ModificationRequest, error) {
	if err := s.guard.Authorize(p, authz.ResourceModificationRequest, authz.ActionCreate, p.RoleEntityID()); err != nil {
		return ModificationRequest{}, err
	}
	if !CanActorChangeStatus(actorFor(p.Role()), StatusRequested) {
		return ModificationRequest{}, authz.ErrPermissionDenied
	}

	in.DesignID = strings.TrimSpace(in.DesignID)
	in.Description = strings.TrimSpace(in.Description)
	tags, err := normalizeTags(in.ScopeTags)
	if err != nil {
		return ModificationRequest{}, err
	}
	switch {
	case in.DesignID == "":
		return ModificationRequest{}, fmt.Errorf("%w: design id is required", ErrInvalidInput)
	case in.Description == "":
		return ModificationRequest{}, fmt.Errorf("%w: description is required", ErrInvalidInput)
	case len(in.Description) > maxDescriptionLen:
		return ModificationRequest{}, fmt.Errorf("%w: description exceeds %d characters", ErrInvalidInput, maxDescriptionLen)
	}

	buyerID := p.RoleEntityID()
	lic, err := s.licenses.ActiveLicense(ctx, in.DesignID, buyerID)
	if errors.Is(err, license.ErrNotFound) || (err == nil && !lic.Active) {
		return ModificationRequest{}, ErrLicenseRequired
	}
	if err != nil {
		return ModificationRequest{}, fmt.Errorf("load license: %w", err)
	}

	if !contact.Entitled(lic) {
		if err := contact.Screen("description", in.Description); err != nil {
			return ModificationRequest{}, err
		}
		if err := contact.Screen("scope_tags", strings.Join(tags, " ")); err != nil {
			return ModificationRequest{}, err
		}
	}

	architectID, err := s.designs.ArchitectForDesign(ctx, in.DesignID)
	if err != nil {
		return ModificationRequest{}, fmt.Errorf("resolve design owner: %w", err)
	}

	now := s.now()
	req := ModificationRequest{
		ID:          s.ids.NewID(),
		DesignID:    in.DesignID,
		BuyerID:     buyerID,
		ArchitectID: architectID,
		LicenseType: lic.Type,
		Description: in.Description,
		ScopeTags:   tags,
		Status:      StatusRequested,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, req); err != nil {
		return ModificationRequest{}, fmt.Errorf("store request: %w", err)
	}

	s.record(ctx, audit.Entry{
		ActorID:  buyerID,
		Action:   EventCreated,
		TargetID: req.ID,
		Metadata: map[string]string{
			"design_id":    req.DesignID,
			"architect_id": req.ArchitectID,
			"license_type": string(req.LicenseType),
		},
		OccurredAt: now,
	})
	s.publisher.Publish(Event{
		Type: EventCreated, RequestID: req.ID, DesignID: req.DesignID,
		BuyerID: req.BuyerID, ArchitectID: req.ArchitectID, To: req.Status, OccurredAt: now,
	})
	return req, nil
}

// Get returns a request the caller is allowed to read.
func (s *Service) Get(ctx context.Context, p identity.Principal, id string) (ModificationRequest, error) {
	req, err := s.load(ctx, p, authz.ActionRead, id)
	if err != nil {
		return ModificationRequest{}, err
	}
	return req, nil
}

// Transition validates in.To against the stored status and commits it with a
// compare-and-swap on that same status.
func (s *Service) Transition(ctx context.Context, p identity.Principal, id string, in TransitionInput) (ModificationRequest, error) {
	snapshot, err := s.load(ctx, p, authz.ActionTransition, id)
	if err != nil {
		return ModificationRequest{}, err
	}
	actor := actorFor(p.Role())
	if err := ValidateTransition(snapshot.Status, in.To, actor); err != nil {
		obs.WorkflowTransitions.WithLabelValues(string(in.To), "rejected").Inc()
		return ModificationRequest{}, err
	}

	next := snapshot
	if in.To == StatusPriced {
		if err := validatePricing(in); err != nil {
			return ModificationRequest{}, err
		}
		next.ProposedPrice = in.ProposedPrice
		next.DeliveryTimeDays = in.DeliveryTimeDays
		next.RevisionsIncluded = in.RevisionsIncluded
	}
	if note := strings.TrimSpace(in.ArchitectNote); note != "" {
		if actor != ActorArchitect {
			return ModificationRequest{}, fmt.Errorf("%w: only the architect may attach a note", ErrInvalidInput)
		}
		if err := s.screenNote(ctx, snapshot, note); err != nil {
			return ModificationRequest{}, err
		}
		next.ArchitectNote = note
	}
	return s.commit(ctx, snapshot, next, in.To, p.RoleEntityID())
}

// MarkPaid moves an ACCEPTED request to PAID on behalf of the payment system.
// Callers authenticate the payment collaborator; no user role reaches it.
func (s *Service) MarkPaid(ctx context.Context, id string) (ModificationRequest, error) {
	snapshot, err := s.store.Get(ctx, id)
	if err != nil {
		return ModificationRequest{}, err
	}
	if err := ValidateTransition(snapshot.Status, StatusPaid, ActorSystem); err != nil {
		obs.WorkflowTransitions.WithLabelValues(string(StatusPaid), "rejected").Inc()
		return ModificationRequest{}, err
	}
	return s.commit(ctx, snapshot, snapshot, StatusPaid, systemActorID)
}

func (s *Service) commit(ctx context.Context, snapshot, next ModificationRequest, to Status, actorID string) (ModificationRequest, error) {
	now := s.now()
	next.Status = to
	next.UpdatedAt = now
	if err := s.store.CompareAndSwap(ctx, snapshot.Status, next); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			obs.WorkflowTransitions.WithLabelValues(string(to), "conflict").Inc()
			return ModificationRequest{}, fmt.Errorf("%w: request changed from %s concurrently; reload and retry", ErrInvalidTransition, snapshot.Status)
		}
		return ModificationRequest{}, fmt.Errorf("store transition: %w", err)
	}
	obs.WorkflowTransitions.WithLabelValues(string(to), "committed").Inc()

	md := map[string]string{"from": string(snapshot.Status), "to": string(to)}
	if to == StatusPriced {
		md["proposed_price"] = strconv.FormatInt(next.ProposedPrice, 10)
	}
	s.record(ctx, audit.Entry{
		ActorID:    actorID,
		Action:     EventTransitioned,
		TargetID:   next.ID,
		Metadata:   md,
		OccurredAt: now,
	})
	s.publisher.Publish(Event{
		Type:        EventTransitioned,
		RequestID:   next.ID,
		DesignID:    next.DesignID,
		BuyerID:     next.BuyerID,
		ArchitectID: next.ArchitectID,
		From:        snapshot.Status,
		To:          to,
		Amount:      next.ProposedPrice,
		OccurredAt:  now,
	})
	return next, nil
}

// load checks the role-level grant before the lookup, then ownership against
// the stored request. A missing id is indistinguishable from a foreign one.
func (s *Service) load(ctx context.Context, p identity.Principal, act authz.Action, id string) (ModificationRequest, error) {
	if err := s.guard.CheckPermission(p, authz.ResourceModificationRequest, act); err != nil {
		return ModificationRequest{}, s.guard.Authorize(p, authz.ResourceModificationRequest, act, "")
	}
	req, err := s.store.Get(ctx, strings.TrimSpace(id))
	if errors.Is(err, ErrNotFound) {
		// Roles limited to their own requests get the same denial as for a foreign id.
		if denied := s.guard.Authorize(p, authz.ResourceModificationRequest, act, ""); denied != nil {
			return ModificationRequest{}, denied
		}
		return ModificationRequest{}, err
	}
	if err != nil {
		return ModificationRequest{}, err
	}
	if err := s.guard.Authorize(p, authz.ResourceModificationRequest, act, ownerFor(p, req)); err != nil {
		return ModificationRequest{}, err
	}
	return req, nil
}

func (s *Service) screenNote(ctx context.Context, req ModificationRequest, note string) error {
	lic, err := s.licenses.ActiveLicense(ctx, req.DesignID, req.BuyerID)
	if err != nil && !errors.Is(err, license.ErrNotFound) {
		return fmt.Errorf("load license: %w", err)
	}
	if err == nil && contact.Entitled(lic) {
		return nil
	}
	return contact.Screen("architect_note", note)
}

// record writes an audit entry for an already committed change. A failure is
// logged and does not undo the change.
func (s *Service) record(ctx context.Context, e audit.Entry) {
	e.ID = s.ids.NewID()
	if err := s.audit.Record(ctx, e); err != nil {
		s.logger.Error("audit write failed", "event", "audit_failed", "module", "workflow",
			"action", e.Action, "target_id", e.TargetID, "error", err.Error())
	}
}

func validatePricing(in TransitionInput) error {
	switch {
	case in.ProposedPrice <= 0:
		return fmt.Errorf("%w: proposed price must be positive", ErrInvalidInput)
	case in.DeliveryTimeDays <= 0:
		return fmt.Errorf("%w: delivery time must be at least one day", ErrInvalidInput)
	case in.RevisionsIncluded < 0:
		return fmt.Errorf("%w: revisions cannot be negative", ErrInvalidInput)
	}
	return nil
}

func normalizeTags(tags []string) ([]string, error) {
	if len(tags) > maxScopeTags {
		return nil, fmt.Errorf("%w: at most %d scope tags", ErrInvalidInput, maxScopeTags)
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

func actorFor(role identity.Role) Actor {
	switch role {
	case identity.RoleBuyer:
		return ActorBuyer
	case identity.RoleArchitect:
		return ActorArchitect
	}
	return ""
}

func ownerFor(p identity.Principal, req ModificationRequest) string {
	switch p.Role() {
	case identity.RoleBuyer:
		return req.BuyerID
	case identity.RoleArchitect:
		return req.ArchitectID
	}
	return ""
}
