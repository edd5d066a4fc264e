package authz

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"archmarket.io/internal/identity"
	"archmarket.io/internal/obs"
)

var (
	// ErrPermissionDenied is the only error Authorize returns. Its text is the
	// message shown to callers.
	ErrPermissionDenied = errors.New("Access denied")
	// ErrOwnershipNotRequired means CheckOwnership was called for an entry
	// without an ownership constraint. It signals a caller bug.
	ErrOwnershipNotRequired = errors.New("authz: ownership check on entry without ownership constraint")
)

// Guard evaluates the permission table for a principal.
type Guard struct {
	logger *slog.Logger
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

func WithLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) { g.logger = l }
}

func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = obs.ResolveLogger(g.logger)
	return g
}

// CheckPermission fails when no grant exists, the entry is hidden, or a read-only
// entry is used for a mutation.
func (g *Guard) CheckPermission(p identity.Principal, res Resource, act Action) error {
	if p.IsZero() {
		return fmt.Errorf("%w: no principal", ErrPermissionDenied)
	}
	perm, ok := Lookup(p.Role(), res, act)
	switch {
	case !ok:
		return fmt.Errorf("%w: no grant for %s %s/%s", ErrPermissionDenied, p.Role(), res, act)
	case perm.Hidden:
		return fmt.Errorf("%w: %s %s/%s is prohibited", ErrPermissionDenied, p.Role(), res, act)
	case perm.ReadOnly && act.IsMutation():
		return fmt.Errorf("%w: %s %s/%s is read-only", ErrPermissionDenied, p.Role(), res, act)
	}
	return nil
}

// CheckOwnership compares the caller's role-entity id with the resource owner.
// It must only be called for entries with OwnershipRequired.
func (g *Guard) CheckOwnership(p identity.Principal, res Resource, act Action, ownerID string) error {
	perm, ok := Lookup(p.Role(), res, act)
	if !ok || !perm.OwnershipRequired {
		return fmt.Errorf("%w: %s %s/%s", ErrOwnershipNotRequired, p.Role(), res, act)
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" || p.RoleEntityID() != ownerID {
		return fmt.Errorf("%w: %s %s is not owner of %s", ErrPermissionDenied, p.Role(), p.RoleEntityID(), res)
	}
	return nil
}

// Authorize runs CheckPermission and, when the entry requires it, CheckOwnership.
// Every failure returns exactly ErrPermissionDenied.
func (g *Guard) Authorize(p identity.Principal, res Resource, act Action, ownerID string) error {
	err := g.CheckPermission(p, res, act)
	if err == nil {
		if perm, _ := Lookup(p.Role(), res, act); perm.OwnershipRequired {
			err = g.CheckOwnership(p, res, act, ownerID)
		}
	}
	if err != nil {
		obs.AuthzDecisions.WithLabelValues("denied").Inc()
		g.logger.Info("access denied",
			"event", "authz_denied",
			"module", "authz",
			"user_id", p.UserID(),
			"role", string(p.Role()),
			"resource", res.String(),
			"action", act.String(),
			"reason", err.Error(),
		)
		return ErrPermissionDenied
	}
	obs.AuthzDecisions.WithLabelValues("allowed").Inc()
	return nil
}
