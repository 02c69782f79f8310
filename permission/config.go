package permission

import (
	"maps"
	"slices"
)

// Engine answers authorization queries. Both *Config (a fixed snapshot) and
// *Manager (the live table) implement it.
type Engine interface {
	HasPermission(actor Actor, action, resource string, target Target) bool
	CanAccessModule(roleID, module string) bool
}

var (
	_ Engine = (*Config)(nil)
	_ Engine = (*Manager)(nil)
)

// Definition is the mutable description of a role table. It becomes usable
// only after NewConfig validates and freezes it.
type Definition struct {
	// Resources maps every resource name to the module that owns it.
	Resources map[string]string `json:"resources"`
	Roles     []Role            `json:"roles"`
	// DefaultRole is assigned to self-registered users.
	DefaultRole string `json:"default_role"`
}

// Config is an immutable, versioned role table. All methods are safe for
// concurrent use.
type Config struct {
	version     uint64
	resources   map[string]string
	roles       map[string]*compiledRole
	order       []string
	defaultRole string
}

// NewConfig validates def and returns version 1 of the table.
func NewConfig(def Definition) (*Config, error) {
	return build(def, 1)
}

func build(def Definition, version uint64) (*Config, error) {
	resources := make(map[string]string, len(def.Resources))
	for res, mod := range def.Resources {
		res, mod = normalizeName(res), normalizeName(mod)
		if res == "" || mod == "" {
			return nil, configError("resource and module names must be non-empty")
		}
		if prev, ok := resources[res]; ok && prev != mod {
			return nil, configError("resource %q maps to two modules", res)
		}
		resources[res] = mod
	}
	if len(def.Roles) == 0 {
		return nil, configError("at least one role is required")
	}

	cfg := &Config{
		version:   version,
		resources: resources,
		roles:     make(map[string]*compiledRole, len(def.Roles)),
	}
	for _, r := range def.Roles {
		compiled, err := compileRole(r, resources)
		if err != nil {
			return nil, err
		}
		if _, dup := cfg.roles[compiled.role.ID]; dup {
			return nil, configError("duplicate role id %q", compiled.role.ID)
		}
		cfg.roles[compiled.role.ID] = compiled
		cfg.order = append(cfg.order, compiled.role.ID)
	}

	cfg.defaultRole = normalizeName(def.DefaultRole)
	if cfg.defaultRole != "" {
		if _, ok := cfg.roles[cfg.defaultRole]; !ok {
			return nil, configError("default role %q is not defined", cfg.defaultRole)
		}
	}

	slices.SortStableFunc(cfg.order, func(a, b string) int {
		return cfg.roles[b].role.Level - cfg.roles[a].role.Level
	})
	return cfg, nil
}

func compileRole(r Role, resources map[string]string) (*compiledRole, error) {
	r = r.clone()
	r.ID = normalizeName(r.ID)
	if r.ID == "" {
		return nil, configError("role id must be non-empty")
	}
	if r.Name == "" {
		r.Name = r.ID
	}
	if r.Level < 0 {
		return nil, configError("role %q has a negative level", r.ID)
	}

	c := &compiledRole{
		modules: make(map[string]struct{}, len(r.Modules)),
		grants:  make(map[grantKey]Scope, len(r.Permissions)),
	}
	modules := r.Modules[:0]
	for _, m := range r.Modules {
		m = normalizeName(m)
		if m == "" {
			return nil, configError("role %q lists an empty module", r.ID)
		}
		if _, seen := c.modules[m]; seen {
			continue
		}
		c.modules[m] = struct{}{}
		modules = append(modules, m)
	}
	r.Modules = modules

	for i, p := range r.Permissions {
		p.Action = normalizeName(p.Action)
		p.Resource = normalizeName(p.Resource)
		if p.Action == "" {
			return nil, configError("role %q has a permission without action", r.ID)
		}
		mod, ok := resources[p.Resource]
		if !ok {
			return nil, configError("role %q grants unknown resource %q", r.ID, p.Resource)
		}
		if _, ok := c.modules[mod]; !ok {
			return nil, configError("role %q grants %q outside its modules (needs %q)", r.ID, p.Resource, mod)
		}
		scope, ok := ParseScope(string(p.Scope))
		if !ok {
			return nil, configError("role %q uses unknown scope %q", r.ID, p.Scope)
		}
		p.Scope = scope

		key := grantKey{action: p.Action, resource: p.Resource}
		if _, dup := c.grants[key]; dup {
			return nil, configError("role %q grants %s:%s twice", r.ID, p.Action, p.Resource)
		}
		c.grants[key] = scope
		r.Permissions[i] = p
	}

	c.role = r
	return c, nil
}

// Version increases by one with every derived table.
func (c *Config) Version() uint64 { return c.version }

// DefaultRole returns the id assigned to self-registered users.
func (c *Config) DefaultRole() string { return c.defaultRole }

// Role returns a copy of the role with the given id.
func (c *Config) Role(id string) (Role, bool) {
	r, ok := c.roles[normalizeName(id)]
	if !ok {
		return Role{}, false
	}
	return r.role.clone(), true
}

// Roles returns copies of all roles ordered by descending level.
func (c *Config) Roles() []Role {
	out := make([]Role, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.roles[id].role.clone())
	}
	return out
}

// ModuleOf returns the module owning resource.
func (c *Config) ModuleOf(resource string) (string, bool) {
	m, ok := c.resources[normalizeName(resource)]
	return m, ok
}

// Definition returns a mutable copy of the table.
func (c *Config) Definition() Definition {
	return Definition{
		Resources:   maps.Clone(c.resources),
		Roles:       c.Roles(),
		DefaultRole: c.defaultRole,
	}
}

// HasPermission reports whether actor's role grants action on resource for
// target. Unknown roles and unmatched grants deny.
func (c *Config) HasPermission(actor Actor, action, resource string, target Target) bool {
	r, ok := c.roles[normalizeName(actor.RoleID)]
	if !ok {
		return false
	}
	scope, ok := r.grants[grantKey{action: normalizeName(action), resource: normalizeName(resource)}]
	if !ok {
		return false
	}
	return scope.allows(actor, target)
}

// CanAccessModule reports whether module is in the role's module list.
func (c *Config) CanAccessModule(roleID, module string) bool {
	r, ok := c.roles[normalizeName(roleID)]
	if !ok {
		return false
	}
	_, ok = r.modules[normalizeName(module)]
	return ok
}

func (c *Config) withRole(r Role, replace bool) (*Config, error) {
	id := normalizeName(r.ID)
	_, exists := c.roles[id]
	switch {
	case replace && !exists:
		return nil, ErrUnknownRole
	case !replace && exists:
		return nil, ErrRoleExists
	}

	def := c.Definition()
	if replace {
		for i := range def.Roles {
			if def.Roles[i].ID == id {
				def.Roles[i] = r
			}
		}
	} else {
		def.Roles = append(def.Roles, r)
	}
	return build(def, c.version+1)
}

func (c *Config) withoutRole(id string) (*Config, error) {
	id = normalizeName(id)
	if _, ok := c.roles[id]; !ok {
		return nil, ErrUnknownRole
	}
	def := c.Definition()
	def.Roles = slices.DeleteFunc(def.Roles, func(r Role) bool { return r.ID == id })
	return build(def, c.version+1)
}
