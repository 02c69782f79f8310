package permission

import "strings"

// Scope is the breadth of a grant.
type Scope string

const (
	ScopeOwn        Scope = "own"
	ScopeDepartment Scope = "department"
	ScopeTeam       Scope = "team"
	ScopeAll        Scope = "all"
)

// ParseScope normalizes s. The empty string means ScopeAll.
func ParseScope(s string) (Scope, bool) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeAll:
		return ScopeAll, true
	case ScopeOwn:
		return ScopeOwn, true
	case ScopeDepartment:
		return ScopeDepartment, true
	case ScopeTeam:
		return ScopeTeam, true
	default:
		return "", false
	}
}

// Actor is the authenticated identity making a request.
type Actor struct {
	UserID     string
	RoleID     string
	Department string
	Team       string
}

// Target describes the record an action applies to. Fields that are unknown
// stay empty; an empty field never satisfies a scoped grant.
type Target struct {
	UserID     string
	Department string
	Team       string
}

// allows reports whether a grant of scope s covers target for actor.
func (s Scope) allows(actor Actor, target Target) bool {
	switch s {
	case ScopeAll:
		return true
	case ScopeOwn:
		return target.UserID != "" && target.UserID == actor.UserID
	case ScopeDepartment:
		return target.Department != "" && target.Department == actor.Department
	case ScopeTeam:
		return target.Team != "" && target.Team == actor.Team
	default:
		return false
	}
}
