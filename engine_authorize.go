package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/goIdentity/permission"
	"go.opentelemetry.io/otel/attribute"
)

/*
====================================
DECISIONS
====================================
*/

// Authorize returns nil when the holder of claims may perform action on
// resource for target, and ErrInsufficientPermission otherwise. It does no
// I/O; permissions come from the live role table, not from the token.
func (e *Engine) Authorize(claims *Claims, action, resource string, target permission.Target) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if claims == nil {
		return ErrInvalidToken
	}
	if claims.Active && e.roles.HasPermission(claims.Actor(), action, resource, target) {
		e.metricInc(MetricAuthorizeAllowed)
		return nil
	}
	e.metricInc(MetricAuthorizeDenied)
	return ErrInsufficientPermission
}

// CanAccessModule reports whether the role in claims lists module.
func (e *Engine) CanAccessModule(claims *Claims, module string) bool {
	if e == nil || claims == nil || !claims.Active {
		return false
	}
	return e.roles.CanAccessModule(claims.RoleID, module)
}

/*
====================================
USER LIFECYCLE
====================================
*/

// AssignRole moves userID to roleID. The actor must outrank both the user's
// current role and the new one, unless the actor sits at the hierarchy
// ceiling.
func (e *Engine) AssignRole(ctx context.Context, actor *Claims, userID, roleID string) (err error) {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "assign_role",
		attribute.String("user.id", userID),
		attribute.String("role.id", roleID),
	)
	defer func() { endSpan(span, err) }()
	defer func() { e.auditRoleChange(ctx, actor, userID, "assign", roleID, err) }()

	if actor == nil {
		return ErrInvalidToken
	}
	e.assignMu.RLock()
	defer e.assignMu.RUnlock()

	table := e.roles.Current()
	actorRole, ok := table.Role(actor.RoleID)
	if !ok {
		return fmt.Errorf("actor: %w", ErrUnknownRole)
	}
	next, ok := table.Role(roleID)
	if !ok {
		return ErrUnknownRole
	}

	u, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return storeErr("find user", err)
	}
	current, ok := table.Role(u.RoleID)
	if !ok {
		// Users left on a deleted role can be reassigned by anyone able to
		// grant the new role.
		current = permission.Role{ID: u.RoleID}
	}
	if err := e.roles.Hierarchy().CheckEdit(actorRole, current, next); err != nil {
		return err
	}

	if err := e.store.SetRole(ctx, userID, next.ID); err != nil {
		return storeErr("set role", err)
	}
	e.metricInc(MetricRoleChanged)
	return nil
}

// Deactivate switches userID off. Existing access tokens stay valid until
// expiry unless revocation is enabled, in which case every token issued to
// the user so far is denied.
func (e *Engine) Deactivate(ctx context.Context, actor *Claims, userID string) (err error) {
	return e.setActive(ctx, actor, userID, false)
}

// Reactivate switches userID back on.
func (e *Engine) Reactivate(ctx context.Context, actor *Claims, userID string) (err error) {
	return e.setActive(ctx, actor, userID, true)
}

func (e *Engine) setActive(ctx context.Context, actor *Claims, userID string, active bool) (err error) {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "set_active",
		attribute.String("user.id", userID),
		attribute.Bool("user.active", active),
	)
	defer func() { endSpan(span, err) }()
	defer func() {
		if err != nil {
			e.auditRoleChange(ctx, actor, userID, "set_active", strconv.FormatBool(active), err)
		}
	}()

	if actor == nil {
		return ErrInvalidToken
	}
	table := e.roles.Current()
	actorRole, ok := table.Role(actor.RoleID)
	if !ok {
		return fmt.Errorf("actor: %w", ErrUnknownRole)
	}

	u, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return storeErr("find user", err)
	}
	target, _ := table.Role(u.RoleID)
	if err := e.roles.Hierarchy().CheckEdit(actorRole, target, target); err != nil {
		return err
	}

	if err := e.store.SetActive(ctx, userID, active); err != nil {
		return storeErr("set active", err)
	}
	if active {
		return nil
	}

	if e.denylist != nil {
		if err := e.denylist.RevokeUserBefore(ctx, userID, e.now(), e.codec.RefreshTTL()); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	e.metricInc(MetricAccountDeactivated)
	e.emitAudit(ctx, auditEventDeactivated, true, userID, "", nil, func() map[string]string {
		return map[string]string{"actor_id": actor.UserID}
	})
	return nil
}

/*
====================================
ROLE ADMINISTRATION
====================================
*/

// CreateRole adds role to the live table on behalf of actor.
func (e *Engine) CreateRole(ctx context.Context, actor *Claims, role permission.Role) (err error) {
	if e == nil {
		return ErrEngineNotReady
	}
	defer func() { e.auditRoleChange(ctx, actor, "", "create_role", role.ID, err) }()
	if actor == nil {
		return ErrInvalidToken
	}
	_, err = e.roles.CreateRole(actor.RoleID, role)
	return roleErr(err)
}

// UpdateRole replaces an existing role on behalf of actor.
func (e *Engine) UpdateRole(ctx context.Context, actor *Claims, role permission.Role) (err error) {
	if e == nil {
		return ErrEngineNotReady
	}
	defer func() { e.auditRoleChange(ctx, actor, "", "update_role", role.ID, err) }()
	if actor == nil {
		return ErrInvalidToken
	}
	_, err = e.roles.UpdateRole(actor.RoleID, role)
	return roleErr(err)
}

// DeleteRole removes roleID. It fails while any user still holds the role.
// Assignments made through this engine wait for the delete to finish; the
// guard is per process, like the role table itself.
func (e *Engine) DeleteRole(ctx context.Context, actor *Claims, roleID string) (err error) {
	if e == nil {
		return ErrEngineNotReady
	}
	defer func() { e.auditRoleChange(ctx, actor, "", "delete_role", roleID, err) }()
	if actor == nil {
		return ErrInvalidToken
	}

	e.assignMu.Lock()
	defer e.assignMu.Unlock()

	assignments, err := e.store.CountByRole(ctx, roleID)
	if err != nil {
		return storeErr("count by role", err)
	}
	_, err = e.roles.DeleteRole(actor.RoleID, roleID, assignments)
	return roleErr(err)
}

func roleErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, permission.ErrInvalidConfig), errors.Is(err, permission.ErrRoleExists):
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	default:
		return err
	}
}

func (e *Engine) auditRoleChange(ctx context.Context, actor *Claims, userID, op, subject string, err error) {
	actorID := ""
	if actor != nil {
		actorID = actor.UserID
	}
	eventType := auditEventRoleChanged
	if err != nil {
		eventType = auditEventRoleChangeDenied
		e.logger.WarnContext(ctx, "role change rejected", "op", op, "actor_id", actorID, "error", err)
	}
	e.emitAudit(ctx, eventType, err == nil, userID, "", err, func() map[string]string {
		return map[string]string{"op": op, "subject": subject, "actor_id": actorID}
	})
}
