package permission

import (
	"slices"
	"strings"
)

// Permission is one (action, resource, scope) grant.
type Permission struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Scope    Scope  `json:"scope,omitempty"`
}

// Role is a named bundle of grants with a privilege level. Higher levels are
// more powerful.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Level       int          `json:"level"`
	Modules     []string     `json:"modules"`
	Permissions []Permission `json:"permissions"`
}

func (r Role) clone() Role {
	r.Modules = slices.Clone(r.Modules)
	r.Permissions = slices.Clone(r.Permissions)
	return r
}

type grantKey struct {
	action   string
	resource string
}

// compiledRole is the read-only form of a Role used for decisions.
type compiledRole struct {
	role    Role
	modules map[string]struct{}
	grants  map[grantKey]Scope
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
