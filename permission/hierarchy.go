package permission

// Hierarchy holds the role-management guards.
type Hierarchy struct {
	// Ceiling is the level at or above which an actor may manage roles of any
	// level. Zero disables the exemption.
	Ceiling int
	// Critical lists role ids that can never be deleted.
	Critical []string
}

func (h Hierarchy) exempt(actor Role) bool {
	return h.Ceiling > 0 && actor.Level >= h.Ceiling
}

func (h Hierarchy) critical(id string) bool {
	id = normalizeName(id)
	for _, c := range h.Critical {
		if normalizeName(c) == id {
			return true
		}
	}
	return false
}

// CheckCreate rejects creating a role at or above the actor's level.
func (h Hierarchy) CheckCreate(actor, role Role) error {
	if role.Level >= actor.Level && !h.exempt(actor) {
		return ErrInvalidRoleHierarchy
	}
	return nil
}

// CheckEdit rejects editing a role at or above the actor's level, and raising
// a role to that level.
func (h Hierarchy) CheckEdit(actor, existing, updated Role) error {
	if h.exempt(actor) {
		return nil
	}
	if existing.Level >= actor.Level || updated.Level >= actor.Level {
		return ErrInvalidRoleHierarchy
	}
	return nil
}

// CheckDelete rejects deleting critical roles, roles at or above the actor's
// level, and roles that still have assignments.
func (h Hierarchy) CheckDelete(actor, role Role, assignments int) error {
	if h.critical(role.ID) {
		return ErrCriticalRole
	}
	if role.Level >= actor.Level && !h.exempt(actor) {
		return ErrInvalidRoleHierarchy
	}
	if assignments > 0 {
		return ErrRoleInUse
	}
	return nil
}
