package permission

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Manager publishes the live role table and applies guarded changes to it.
//
// Writers are serialized; readers take lock-free snapshots via Current.
type Manager struct {
	mu        sync.Mutex
	current   atomic.Pointer[Config]
	hierarchy Hierarchy
}

// NewManager publishes cfg as the initial table.
func NewManager(cfg *Config, h Hierarchy) (*Manager, error) {
	if cfg == nil {
		return nil, configError("nil config")
	}
	if h.Ceiling < 0 {
		return nil, configError("negative hierarchy ceiling")
	}
	m := &Manager{hierarchy: h}
	m.current.Store(cfg)
	return m, nil
}

// Current returns the live snapshot.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// Hierarchy returns the guards applied by the manager.
func (m *Manager) Hierarchy() Hierarchy {
	return m.hierarchy
}

// HasPermission evaluates against the live snapshot.
func (m *Manager) HasPermission(actor Actor, action, resource string, target Target) bool {
	return m.Current().HasPermission(actor, action, resource, target)
}

// CanAccessModule evaluates against the live snapshot.
func (m *Manager) CanAccessModule(roleID, module string) bool {
	return m.Current().CanAccessModule(roleID, module)
}

/*
====================================
ROLE ADMINISTRATION
====================================
*/

// CreateRole adds role on behalf of the actor holding actorRoleID.
func (m *Manager) CreateRole(actorRoleID string, role Role) (*Config, error) {
	return m.apply(actorRoleID, func(cur *Config, actor Role) (*Config, error) {
		if err := m.hierarchy.CheckCreate(actor, role); err != nil {
			return nil, err
		}
		return cur.withRole(role, false)
	})
}

// UpdateRole replaces the role with the same id.
func (m *Manager) UpdateRole(actorRoleID string, role Role) (*Config, error) {
	return m.apply(actorRoleID, func(cur *Config, actor Role) (*Config, error) {
		existing, ok := cur.Role(role.ID)
		if !ok {
			return nil, ErrUnknownRole
		}
		if err := m.hierarchy.CheckEdit(actor, existing, role); err != nil {
			return nil, err
		}
		return cur.withRole(role, true)
	})
}

// DeleteRole removes roleID. assignments is the number of users currently
// holding it; the default role is treated as critical.
func (m *Manager) DeleteRole(actorRoleID, roleID string, assignments int) (*Config, error) {
	return m.apply(actorRoleID, func(cur *Config, actor Role) (*Config, error) {
		role, ok := cur.Role(roleID)
		if !ok {
			return nil, ErrUnknownRole
		}
		if role.ID == cur.DefaultRole() {
			return nil, ErrCriticalRole
		}
		if err := m.hierarchy.CheckDelete(actor, role, assignments); err != nil {
			return nil, err
		}
		return cur.withoutRole(role.ID)
	})
}

func (m *Manager) apply(actorRoleID string, change func(*Config, Role) (*Config, error)) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.current.Load()
	actor, ok := cur.Role(actorRoleID)
	if !ok {
		return nil, fmt.Errorf("actor: %w", ErrUnknownRole)
	}
	next, err := change(cur, actor)
	if err != nil {
		return nil, err
	}
	m.current.Store(next)
	return next, nil
}
