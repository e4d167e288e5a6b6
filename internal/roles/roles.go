// Package roles holds the permission rules for the four site roles.
//
// Every function here is pure. Handlers pass the role stored on the
// authenticated user; the "view as" override is only for rendering and must
// be resolved through EffectiveRole by the page layer, never by the API.
package roles

import "github.com/samber/lo"

type Role string

const (
	Owner   Role = "owner"
	Coowner Role = "coowner"
	Admin   Role = "admin"
	Member  Role = "member"
)

// All lists every role from most to least privileged.
var All = []Role{Owner, Coowner, Admin, Member}

func Valid(role Role) bool {
	return lo.Contains(All, role)
}

// Parse returns the role for raw, or false when raw is not a known role.
func Parse(raw string) (Role, bool) {
	role := Role(raw)
	return role, Valid(role)
}

func CanAccessAdmin(role Role) bool {
	return role == Owner || role == Coowner || role == Admin
}

func CanManageGames(role Role) bool {
	return CanAccessAdmin(role)
}

func CanManageUsers(role Role) bool {
	return role == Owner || role == Coowner
}

// CanChangeRole reports whether actor may modify the role of a user who
// currently holds target.
func CanChangeRole(actor, target Role) bool {
	switch actor {
	case Owner:
		return true
	case Coowner:
		return target == Member || target == Admin
	default:
		return false
	}
}

// AssignableRoles lists the roles actor may hand out.
func AssignableRoles(actor Role) []Role {
	switch actor {
	case Owner:
		return []Role{Owner, Coowner, Admin, Member}
	case Coowner:
		return []Role{Admin, Member}
	default:
		return []Role{}
	}
}

// CanDelete is the delete matrix. It is narrower than CanChangeRole: an
// admin may delete members but cannot change any role.
func CanDelete(actor, target Role) bool {
	switch actor {
	case Owner:
		return target != Owner
	case Coowner:
		return target == Admin || target == Member
	case Admin:
		return target == Member
	default:
		return false
	}
}

// Decision is the outcome of a user-management check. Reason is empty when
// Allowed is true.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// CheckRoleUpdate applies the role-update rules in the order the API
// reports them.
func CheckRoleUpdate(actorID string, actor Role, targetID string, target Role, next Role) Decision {
	if !lo.Contains(AssignableRoles(actor), next) {
		return deny("You cannot assign this role")
	}
	if !CanChangeRole(actor, target) {
		return deny("You cannot modify this user's role")
	}
	if actorID == targetID && actor == Owner && next != Owner {
		return deny("Owner cannot demote themselves")
	}
	return allow()
}

// CheckDelete applies the self-protection rule and then the delete matrix.
func CheckDelete(actorID string, actor Role, targetID string, target Role) Decision {
	if actorID == targetID {
		return deny("Cannot delete yourself")
	}
	if !CanDelete(actor, target) {
		return deny("You cannot delete this user")
	}
	return allow()
}

// EffectiveRole resolves the role used to render pages. Only a real owner
// may preview the site as another role.
func EffectiveRole(actual Role, viewAs string) Role {
	if actual != Owner {
		return actual
	}
	if role, ok := Parse(viewAs); ok {
		return role
	}
	return actual
}

// Permissions is the flattened permission set sent to clients.
type Permissions struct {
	CanAccessAdmin  bool   `json:"canAccessAdmin"`
	CanManageGames  bool   `json:"canManageGames"`
	CanManageUsers  bool   `json:"canManageUsers"`
	AssignableRoles []Role `json:"assignableRoles"`
}

func PermissionsFor(role Role) Permissions {
	return Permissions{
		CanAccessAdmin:  CanAccessAdmin(role),
		CanManageGames:  CanManageGames(role),
		CanManageUsers:  CanManageUsers(role),
		AssignableRoles: AssignableRoles(role),
	}
}
