package identity

import (
	"errors"
	"testing"
)

func TestExtractRole(t *testing.T) {
	for _, raw := range []string{"ARCHITECT", "BUYER", "ADMIN"} {
		role, err := ExtractRole(raw)
		if err != nil {
			t.Fatalf("ExtractRole(%q): %v", raw, err)
		}
		if string(role) != raw {
			t.Fatalf("ExtractRole(%q)=%q", raw, role)
		}
	}

	invalid := []any{"", "buyer", "SUPERUSER", " ADMIN", 7, nil, map[string]any{"role": "ADMIN"}}
	for _, raw := range invalid {
		if _, err := ExtractRole(raw); !errors.Is(err, ErrInvalidIdentity) {
			t.Fatalf("ExtractRole(%v) expected ErrInvalidIdentity, got %v", raw, err)
		}
	}

	arrays := []any{[]any{"BUYER", "ARCHITECT"}, []string{"BUYER"}, [1]string{"ADMIN"}, []any{}}
	for _, raw := range arrays {
		_, err := ExtractRole(raw)
		if !errors.Is(err, ErrInvalidIdentity) {
			t.Fatalf("ExtractRole(%v) expected ErrInvalidIdentity, got %v", raw, err)
		}
		if got := err.Error(); got != "identity: invalid identity: dual-role claim" {
			t.Fatalf("unexpected message for array role: %q", got)
		}
	}
}

func TestExtractRoleEntityID(t *testing.T) {
	id := Identity{Subject: "user-1", ArchitectID: "arch-1", BuyerID: "buyer-1"}
	cases := map[Role]string{RoleArchitect: "arch-1", RoleBuyer: "buyer-1", RoleAdmin: "user-1"}
	for role, expected := range cases {
		got, err := ExtractRoleEntityID(role, id)
		if err != nil {
			t.Fatalf("ExtractRoleEntityID(%s): %v", role, err)
		}
		if got != expected {
			t.Fatalf("ExtractRoleEntityID(%s)=%q, want %q", role, got, expected)
		}
	}

	if _, err := ExtractRoleEntityID(RoleArchitect, Identity{Subject: "user-1", BuyerID: "buyer-1"}); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("architect without architectId: %v", err)
	}
	if _, err := ExtractRoleEntityID(RoleBuyer, Identity{Subject: "user-1", ArchitectID: "arch-1"}); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("buyer without buyerId: %v", err)
	}
	if _, err := ExtractRoleEntityID(RoleAdmin, Identity{}); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("admin without subject: %v", err)
	}
}

func TestResolve(t *testing.T) {
	p, err := Resolve(Identity{Subject: "user-9", RawRole: "BUYER", BuyerID: "buyer-9", ArchitectID: "arch-9"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.UserID() != "user-9" || p.Role() != RoleBuyer || p.RoleEntityID() != "buyer-9" {
		t.Fatalf("unexpected principal: %+v", p)
	}

	if _, err := Resolve(Identity{Subject: "user-9", RawRole: []any{"BUYER", "ARCHITECT"}, BuyerID: "b", ArchitectID: "a"}); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("dual role resolved: %v", err)
	}
}

func TestZeroPrincipal(t *testing.T) {
	var p Principal
	if !p.IsZero() {
		t.Fatal("zero principal should report IsZero")
	}
	if _, err := NewPrincipal("u", Role("ROOT"), "x"); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected invalid role, got %v", err)
	}
}
