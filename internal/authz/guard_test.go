package authz

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"archmarket.io/internal/identity"
)

func principal(t *testing.T, role identity.Role, entityID string) identity.Principal {
	t.Helper()
	p, err := identity.NewPrincipal("user-"+entityID, role, entityID)
	if err != nil {
		t.Fatalf("NewPrincipal: %v", err)
	}
	return p
}

func quietGuard() *Guard {
	return NewGuard(WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
}

func TestCheckPermission(t *testing.T) {
	g := quietGuard()
	buyer := principal(t, identity.RoleBuyer, "b-1")
	admin := principal(t, identity.RoleAdmin, "adm")

	if err := g.CheckPermission(buyer, ResourceModificationRequest, ActionCreate); err != nil {
		t.Fatalf("buyer create: %v", err)
	}
	if err := g.CheckPermission(buyer, ResourceUser, ActionRead); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("missing entry should deny, got %v", err)
	}
	if err := g.CheckPermission(admin, ResourceUser, ActionUpdate); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("read-only mutation should deny, got %v", err)
	}
	if err := g.CheckPermission(admin, ResourceUser, ActionRead); err != nil {
		t.Fatalf("read-only read: %v", err)
	}
	if err := g.CheckPermission(admin, ResourcePayout, ActionModify); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("hidden entry should deny, got %v", err)
	}
	if err := g.CheckPermission(identity.Principal{}, ResourceDesign, ActionBrowse); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("zero principal should deny, got %v", err)
	}
}

func TestCheckOwnership(t *testing.T) {
	g := quietGuard()
	arch := principal(t, identity.RoleArchitect, "a-1")

	if err := g.CheckOwnership(arch, ResourceModificationRequest, ActionTransition, "a-1"); err != nil {
		t.Fatalf("owner: %v", err)
	}
	if err := g.CheckOwnership(arch, ResourceModificationRequest, ActionTransition, "a-2"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("non-owner should deny, got %v", err)
	}
	err := g.CheckOwnership(arch, ResourceDesign, ActionBrowse, "a-1")
	if !errors.Is(err, ErrOwnershipNotRequired) {
		t.Fatalf("expected programmer error, got %v", err)
	}
	if errors.Is(err, ErrPermissionDenied) {
		t.Fatal("programmer error must be distinct from a denial")
	}
}

func TestAuthorizeCollapsesDenials(t *testing.T) {
	var buf bytes.Buffer
	g := NewGuard(WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
	buyer := principal(t, identity.RoleBuyer, "b-1")

	denials := []error{
		g.Authorize(buyer, ResourceAuditLog, ActionRead, ""),
		g.Authorize(buyer, ResourceModificationRequest, ActionRead, "b-2"),
		g.Authorize(buyer, ResourceModificationRequest, ActionRead, ""),
		g.Authorize(buyer, ResourceEarning, ActionModify, "b-1"),
		g.Authorize(buyer, Resource(200), ActionRead, "b-1"),
	}
	for i, err := range denials {
		if err != ErrPermissionDenied {
			t.Fatalf("denial %d: expected bare ErrPermissionDenied, got %v", i, err)
		}
		if err.Error() != "Access denied" {
			t.Fatalf("denial %d: unexpected message %q", i, err.Error())
		}
	}
	if !strings.Contains(buf.String(), "not owner") {
		t.Fatalf("expected cause in server log, got %q", buf.String())
	}

	if err := g.Authorize(buyer, ResourceModificationRequest, ActionRead, "b-1"); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if err := g.Authorize(buyer, ResourceDesign, ActionBrowse, ""); err != nil {
		t.Fatalf("browse without owner: %v", err)
	}
}

func TestAuthorizeIsIdempotent(t *testing.T) {
	g := quietGuard()
	arch := principal(t, identity.RoleArchitect, "a-1")
	for _, owner := range []string{"a-1", "a-2", ""} {
		first := g.Authorize(arch, ResourceModificationRequest, ActionTransition, owner)
		for i := 0; i < 5; i++ {
			if got := g.Authorize(arch, ResourceModificationRequest, ActionTransition, owner); got != first {
				t.Fatalf("owner %q: call %d returned %v, first returned %v", owner, i, got, first)
			}
		}
	}
}
