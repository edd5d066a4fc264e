package identity

import (
	"fmt"
	"reflect"
	"strings"
)

// Role is the single role a session acts under.
type Role string

const (
	RoleArchitect Role = "ARCHITECT"
	RoleBuyer     Role = "BUYER"
	RoleAdmin     Role = "ADMIN"
)

// Roles lists every role in a stable order.
func Roles() []Role {
	return []Role{RoleArchitect, RoleBuyer, RoleAdmin}
}

func (r Role) Valid() bool {
	switch r {
	case RoleArchitect, RoleBuyer, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Identity is the verified but unresolved content of a token.
type Identity struct {
	Subject     string
	Email       string
	RawRole     any
	ArchitectID string
	BuyerID     string
	TokenID     string
}

// Principal is the resolved caller. The zero value is not a valid principal;
// use NewPrincipal or Resolve.
type Principal struct {
	userID       string
	role         Role
	roleEntityID string
}

// NewPrincipal validates and builds a Principal.
func NewPrincipal(userID string, role Role, roleEntityID string) (Principal, error) {
	userID = strings.TrimSpace(userID)
	roleEntityID = strings.TrimSpace(roleEntityID)
	if userID == "" {
		return Principal{}, fmt.Errorf("%w: subject missing", ErrInvalidIdentity)
	}
	if !role.Valid() {
		return Principal{}, fmt.Errorf("%w: invalid role", ErrInvalidIdentity)
	}
	if roleEntityID == "" {
		return Principal{}, fmt.Errorf("%w: %s entity id missing", ErrInvalidIdentity, role)
	}
	return Principal{userID: userID, role: role, roleEntityID: roleEntityID}, nil
}

func (p Principal) UserID() string       { return p.userID }
func (p Principal) Role() Role           { return p.role }
func (p Principal) RoleEntityID() string { return p.roleEntityID }

// IsZero reports whether p was never constructed.
func (p Principal) IsZero() bool { return p.role == "" }

// ExtractRole accepts only a single scalar role string.
func ExtractRole(raw any) (Role, error) {
	if raw == nil {
		return "", fmt.Errorf("%w: invalid role", ErrInvalidIdentity)
	}
	if s, ok := raw.(string); ok {
		role := Role(s)
		if !role.Valid() {
			return "", fmt.Errorf("%w: invalid role", ErrInvalidIdentity)
		}
		return role, nil
	}
	switch reflect.ValueOf(raw).Kind() {
	case reflect.Slice, reflect.Array:
		return "", fmt.Errorf("%w: dual-role claim", ErrInvalidIdentity)
	}
	return "", fmt.Errorf("%w: invalid role", ErrInvalidIdentity)
}

// ExtractRoleEntityID returns the ownership key matching role.
func ExtractRoleEntityID(role Role, id Identity) (string, error) {
	var v string
	switch role {
	case RoleArchitect:
		v = id.ArchitectID
	case RoleBuyer:
		v = id.BuyerID
	case RoleAdmin:
		v = id.Subject
	default:
		return "", fmt.Errorf("%w: invalid role", ErrInvalidIdentity)
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%w: %s entity id missing", ErrInvalidIdentity, role)
	}
	return v, nil
}

// Resolve turns a verified Identity into a Principal.
func Resolve(id Identity) (Principal, error) {
	role, err := ExtractRole(id.RawRole)
	if err != nil {
		return Principal{}, err
	}
	entityID, err := ExtractRoleEntityID(role, id)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(id.Subject, role, entityID)
}
