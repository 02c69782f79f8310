package permission

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned when a role table fails validation.
	ErrInvalidConfig = errors.New("invalid permission config")
	// ErrUnknownRole is returned when a role id is not in the table.
	ErrUnknownRole = errors.New("unknown role")
	// ErrRoleExists is returned when creating a role whose id is taken.
	ErrRoleExists = errors.New("role already exists")
	// ErrInvalidRoleHierarchy is returned when an actor touches a role at or
	// above its own level.
	ErrInvalidRoleHierarchy = errors.New("invalid role hierarchy")
	// ErrCriticalRole is returned when deleting a protected role.
	ErrCriticalRole = fmt.Errorf("%w: role is critical", ErrInvalidRoleHierarchy)
	// ErrRoleInUse is returned when deleting a role that still has users.
	ErrRoleInUse = fmt.Errorf("%w: role has assigned users", ErrInvalidRoleHierarchy)
)

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
