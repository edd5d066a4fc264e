// Package authz holds the static permission table and the guard that
// evaluates it. Absence of an entry is denial.
package authz

import "archmarket.io/internal/identity"

// Resource is a protected kind of object.
type Resource uint8

const (
	ResourceDesign Resource = iota
	ResourceLicense
	ResourceModificationRequest
	ResourceContact
	ResourceTransaction
	ResourcePayout
	ResourceEarning
	ResourceUser
	ResourceAuditLog
	resourceCount
)

var resourceNames = [resourceCount]string{
	ResourceDesign:              "design",
	ResourceLicense:             "license",
	ResourceModificationRequest: "modification_request",
	ResourceContact:             "contact",
	ResourceTransaction:         "transaction",
	ResourcePayout:              "payout",
	ResourceEarning:             "earning",
	ResourceUser:                "user",
	ResourceAuditLog:            "audit_log",
}

func (r Resource) String() string {
	if r < resourceCount {
		return resourceNames[r]
	}
	return "unknown"
}

// Resources lists every resource.
func Resources() []Resource {
	out := make([]Resource, 0, resourceCount)
	for r := Resource(0); r < resourceCount; r++ {
		out = append(out, r)
	}
	return out
}

// Action is an operation on a resource.
type Action uint8

const (
	ActionRead Action = iota
	ActionBrowse
	ActionDownload
	ActionView
	ActionCreate
	ActionUpdate
	ActionDelete
	ActionTransition
	ActionModify
	actionCount
)

var actionNames = [actionCount]string{
	ActionRead:       "read",
	ActionBrowse:     "browse",
	ActionDownload:   "download",
	ActionView:       "view",
	ActionCreate:     "create",
	ActionUpdate:     "update",
	ActionDelete:     "delete",
	ActionTransition: "transition",
	ActionModify:     "modify",
}

func (a Action) String() string {
	if a < actionCount {
		return actionNames[a]
	}
	return "unknown"
}

// Actions lists every action.
func Actions() []Action {
	out := make([]Action, 0, actionCount)
	for a := Action(0); a < actionCount; a++ {
		out = append(out, a)
	}
	return out
}

// IsMutation reports whether a changes state. Only read, browse, download and view do not.
func (a Action) IsMutation() bool {
	switch a {
	case ActionRead, ActionBrowse, ActionDownload, ActionView:
		return false
	}
	return true
}

// Constraint qualifies a table entry.
type Constraint struct {
	OwnershipRequired bool
	ReadOnly          bool
	// Hidden marks a documented prohibition. A hidden entry never grants.
	Hidden bool
}

// Permission is one row of the table.
type Permission struct {
	Role     identity.Role
	Resource Resource
	Action   Action
	Constraint
}

type key struct {
	role     identity.Role
	resource Resource
	action   Action
}

var (
	owned    = Constraint{OwnershipRequired: true}
	readOnly = Constraint{ReadOnly: true}
	hidden   = Constraint{Hidden: true}
)

var entries = []Permission{
	{identity.RoleArchitect, ResourceDesign, ActionBrowse, Constraint{}},
	{identity.RoleArchitect, ResourceDesign, ActionRead, Constraint{}},
	{identity.RoleArchitect, ResourceDesign, ActionCreate, Constraint{}},
	{identity.RoleArchitect, ResourceDesign, ActionUpdate, owned},
	{identity.RoleArchitect, ResourceDesign, ActionDelete, owned},
	{identity.RoleArchitect, ResourceLicense, ActionRead, owned},
	{identity.RoleArchitect, ResourceModificationRequest, ActionRead, owned},
	{identity.RoleArchitect, ResourceModificationRequest, ActionTransition, owned},
	{identity.RoleArchitect, ResourceTransaction, ActionRead, owned},
	{identity.RoleArchitect, ResourcePayout, ActionRead, owned},
	{identity.RoleArchitect, ResourceEarning, ActionRead, owned},
	{identity.RoleArchitect, ResourceTransaction, ActionModify, hidden},
	{identity.RoleArchitect, ResourcePayout, ActionModify, hidden},
	{identity.RoleArchitect, ResourceEarning, ActionModify, hidden},

	{identity.RoleBuyer, ResourceDesign, ActionBrowse, Constraint{}},
	{identity.RoleBuyer, ResourceDesign, ActionRead, Constraint{}},
	{identity.RoleBuyer, ResourceDesign, ActionDownload, owned},
	{identity.RoleBuyer, ResourceLicense, ActionCreate, Constraint{}},
	{identity.RoleBuyer, ResourceLicense, ActionRead, owned},
	{identity.RoleBuyer, ResourceModificationRequest, ActionCreate, owned},
	{identity.RoleBuyer, ResourceModificationRequest, ActionRead, owned},
	{identity.RoleBuyer, ResourceModificationRequest, ActionTransition, owned},
	{identity.RoleBuyer, ResourceContact, ActionView, Constraint{}},
	{identity.RoleBuyer, ResourceTransaction, ActionRead, owned},
	{identity.RoleBuyer, ResourceTransaction, ActionModify, hidden},
	{identity.RoleBuyer, ResourcePayout, ActionModify, hidden},
	{identity.RoleBuyer, ResourceEarning, ActionModify, hidden},

	{identity.RoleAdmin, ResourceDesign, ActionBrowse, readOnly},
	{identity.RoleAdmin, ResourceDesign, ActionRead, readOnly},
	{identity.RoleAdmin, ResourceDesign, ActionUpdate, readOnly},
	{identity.RoleAdmin, ResourceLicense, ActionRead, readOnly},
	{identity.RoleAdmin, ResourceModificationRequest, ActionRead, readOnly},
	{identity.RoleAdmin, ResourceContact, ActionCreate, Constraint{}},
	{identity.RoleAdmin, ResourceTransaction, ActionRead, readOnly},
	{identity.RoleAdmin, ResourcePayout, ActionRead, readOnly},
	{identity.RoleAdmin, ResourceEarning, ActionRead, readOnly},
	{identity.RoleAdmin, ResourceUser, ActionRead, readOnly},
	{identity.RoleAdmin, ResourceUser, ActionUpdate, readOnly},
	{identity.RoleAdmin, ResourceAuditLog, ActionRead, readOnly},
	{identity.RoleAdmin, ResourceTransaction, ActionModify, hidden},
	{identity.RoleAdmin, ResourcePayout, ActionModify, hidden},
	{identity.RoleAdmin, ResourceEarning, ActionModify, hidden},
}

var table = buildTable(entries)

func buildTable(rows []Permission) map[key]Permission {
	m := make(map[key]Permission, len(rows))
	for _, p := range rows {
		k := key{p.Role, p.Resource, p.Action}
		if _, dup := m[k]; dup {
			panic("authz: duplicate permission " + string(p.Role) + "/" + p.Resource.String() + "/" + p.Action.String())
		}
		m[k] = p
	}
	return m
}

// Lookup returns the exact entry for (role, resource, action), hidden ones included.
func Lookup(role identity.Role, res Resource, act Action) (Permission, bool) {
	p, ok := table[key{role, res, act}]
	return p, ok
}

// HasPermission is true only for an existing entry that is not hidden.
func HasPermission(role identity.Role, res Resource, act Action) bool {
	p, ok := Lookup(role, res, act)
	return ok && !p.Hidden
}

// Permissions returns a copy of every entry.
func Permissions() []Permission {
	return append([]Permission(nil), entries...)
}

// Prohibitions returns the hidden entries.
func Prohibitions() []Permission {
	var out []Permission
	for _, p := range entries {
		if p.Hidden {
			out = append(out, p)
		}
	}
	return out
}
