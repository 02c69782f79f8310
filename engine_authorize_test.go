package goIdentity_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/store/memory"
)

func TestAuthorizeScopes(t *testing.T) {
	h := newHarness(t, nil)
	manager := &goIdentity.Claims{UserID: "m1", RoleID: "manager", Department: "eng", Team: "core", Active: true}
	employee := &goIdentity.Claims{UserID: "e1", RoleID: "employee", Department: "eng", Active: true}

	tests := []struct {
		name     string
		claims   *goIdentity.Claims
		action   string
		resource string
		target   permission.Target
		allowed  bool
	}{
		{"manager same department", manager, "read", "employee", permission.Target{Department: "eng"}, true},
		{"manager other department", manager, "read", "employee", permission.Target{Department: "ops"}, false},
		{"manager same team", manager, "approve", "leave", permission.Target{Team: "core"}, true},
		{"manager other team", manager, "approve", "leave", permission.Target{Team: "edge"}, false},
		{"manager ungranted action", manager, "delete", "employee", permission.Target{Department: "eng"}, false},
		{"employee own record", employee, "read", "employee", permission.Target{UserID: "e1"}, true},
		{"employee colleague record", employee, "read", "employee", permission.Target{UserID: "e2", Department: "eng"}, false},
		{"unknown role", &goIdentity.Claims{UserID: "x", RoleID: "ghost", Active: true}, "read", "employee", permission.Target{}, false},
		{"inactive claims", &goIdentity.Claims{UserID: "m1", RoleID: "admin", Active: false}, "read", "employee", permission.Target{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := h.engine.Authorize(tc.claims, tc.action, tc.resource, tc.target)
			if tc.allowed && err != nil {
				t.Fatalf("expected allow, got %v", err)
			}
			if !tc.allowed && !errors.Is(err, goIdentity.ErrInsufficientPermission) {
				t.Fatalf("expected insufficient permission, got %v", err)
			}
		})
	}

	if err := h.engine.Authorize(nil, "read", "employee", permission.Target{}); !errors.Is(err, goIdentity.ErrInvalidToken) {
		t.Fatalf("expected nil claims to be rejected, got %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[goIdentity.MetricAuthorizeAllowed] != 3 || snap.Counters[goIdentity.MetricAuthorizeDenied] != 6 {
		t.Fatalf("unexpected decision counters %+v", snap.Counters)
	}
}

func TestCanAccessModule(t *testing.T) {
	h := newHarness(t, nil)
	admin := &goIdentity.Claims{RoleID: "admin", Active: true}
	employee := &goIdentity.Claims{RoleID: "employee", Active: true}

	if !h.engine.CanAccessModule(admin, "finance") {
		t.Fatal("admin lists finance")
	}
	if h.engine.CanAccessModule(employee, "finance") {
		t.Fatal("employee does not list finance")
	}
	if !h.engine.CanAccessModule(employee, "HR") {
		t.Fatal("module names are case-insensitive")
	}
	if h.engine.CanAccessModule(nil, "hr") {
		t.Fatal("nil claims never pass")
	}
}

func TestAssignRoleHierarchy(t *testing.T) {
	h := newHarness(t, func(c *goIdentity.Config) {
		c.Roles.Ceiling = 0
	})
	ctx := context.Background()
	admin := h.seedUser(t, "root", "admin", "", "")
	manager := h.seedUser(t, "boss", "manager", "eng", "")
	h.seedUser(t, "worker", "employee", "eng", "")
	h.seedUser(t, "peer", "manager", "eng", "")

	if err := h.engine.AssignRole(ctx, manager, "worker", "manager"); !errors.Is(err, goIdentity.ErrInvalidRoleHierarchy) {
		t.Fatalf("manager may not grant its own level, got %v", err)
	}
	if err := h.engine.AssignRole(ctx, manager, "peer", "employee"); !errors.Is(err, goIdentity.ErrInvalidRoleHierarchy) {
		t.Fatalf("manager may not demote a peer, got %v", err)
	}
	if err := h.engine.AssignRole(ctx, admin, "worker", "manager"); err != nil {
		t.Fatalf("admin assigns manager: %v", err)
	}
	if err := h.engine.AssignRole(ctx, admin, "worker", "ghost"); !errors.Is(err, goIdentity.ErrUnknownRole) {
		t.Fatalf("expected unknown role, got %v", err)
	}
	if err := h.engine.AssignRole(ctx, admin, "nobody", "employee"); !errors.Is(err, goIdentity.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	u, _ := h.store.FindByID(ctx, "worker")
	if u.RoleID != "manager" {
		t.Fatalf("expected worker promoted, got %q", u.RoleID)
	}
}

func TestDeactivateHierarchy(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	manager := h.seedUser(t, "boss", "manager", "eng", "")
	h.seedUser(t, "worker", "employee", "eng", "")
	h.seedUser(t, "root", "admin", "", "")

	if err := h.engine.Deactivate(ctx, manager, "root"); !errors.Is(err, goIdentity.ErrInvalidRoleHierarchy) {
		t.Fatalf("expected manager unable to deactivate admin, got %v", err)
	}
	if err := h.engine.Deactivate(ctx, manager, "worker"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	u, _ := h.store.FindByID(ctx, "worker")
	if u.Active {
		t.Fatal("expected worker deactivated")
	}
	if err := h.engine.Reactivate(ctx, manager, "worker"); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	u, _ = h.store.FindByID(ctx, "worker")
	if !u.Active {
		t.Fatal("expected worker active again")
	}
}

func TestRoleAdministration(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	admin := h.seedUser(t, "root", "admin", "", "")
	manager := h.seedUser(t, "boss", "manager", "", "")
	h.seedUser(t, "worker", "employee", "", "")

	intern := permission.Role{
		ID: "intern", Name: "Intern", Level: 5,
		Modules:     []string{"hr"},
		Permissions: []permission.Permission{{Action: "read", Resource: "employee", Scope: permission.ScopeOwn}},
	}
	if err := h.engine.CreateRole(ctx, manager, intern); err != nil {
		t.Fatalf("manager creates a lower role: %v", err)
	}
	if err := h.engine.CreateRole(ctx, manager, intern); !errors.Is(err, goIdentity.ErrInvalidRequest) {
		t.Fatalf("expected duplicate role id to be rejected, got %v", err)
	}

	lead := permission.Role{ID: "lead", Name: "Lead", Level: 50, Modules: []string{"hr"}}
	if err := h.engine.CreateRole(ctx, manager, lead); !errors.Is(err, goIdentity.ErrInvalidRoleHierarchy) {
		t.Fatalf("expected equal-level role to be rejected, got %v", err)
	}

	intern.Level = 60
	if err := h.engine.UpdateRole(ctx, manager, intern); !errors.Is(err, goIdentity.ErrInvalidRoleHierarchy) {
		t.Fatalf("expected raising above actor to be rejected, got %v", err)
	}

	if err := h.engine.DeleteRole(ctx, admin, "employee"); !errors.Is(err, goIdentity.ErrInvalidRoleHierarchy) {
		t.Fatalf("expected in-use or critical role delete to fail, got %v", err)
	}
	if err := h.engine.DeleteRole(ctx, admin, "intern"); err != nil {
		t.Fatalf("delete unused role: %v", err)
	}
	if _, ok := h.engine.Roles().Current().Role("intern"); ok {
		t.Fatal("expected intern removed from the live table")
	}
	if h.engine.Roles().Current().Version() != 3 {
		t.Fatalf("expected version 3 after create and delete, got %d", h.engine.Roles().Current().Version())
	}
}

// gatedCountStore parks the next CountByRole call until released.
type gatedCountStore struct {
	*memory.Store
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (s *gatedCountStore) CountByRole(ctx context.Context, roleID string) (int, error) {
	if s.armed.CompareAndSwap(true, false) {
		close(s.entered)
		<-s.release
	}
	return s.Store.CountByRole(ctx, roleID)
}

func TestDeleteRoleIsNotRacedByAssignment(t *testing.T) {
	gate := &gatedCountStore{
		Store:   memory.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	h := newHarness(t, nil, func(b *goIdentity.Builder) { b.WithCredentialStore(gate) })
	h.store = gate.Store
	ctx := context.Background()
	admin := h.seedUser(t, "root", "admin", "", "")
	h.seedUser(t, "worker", "employee", "eng", "")

	intern := permission.Role{ID: "intern", Name: "Intern", Level: 5, Modules: []string{"hr"}}
	if err := h.engine.CreateRole(ctx, admin, intern); err != nil {
		t.Fatalf("create intern: %v", err)
	}

	gate.armed.Store(true)
	deleted := make(chan error, 1)
	go func() { deleted <- h.engine.DeleteRole(ctx, admin, "intern") }()
	<-gate.entered

	assigned := make(chan error, 1)
	go func() { assigned <- h.engine.AssignRole(ctx, admin, "worker", "intern") }()
	select {
	case err := <-assigned:
		t.Fatalf("assignment finished while the delete was counting: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(gate.release)

	if err := <-deleted; err != nil {
		t.Fatalf("delete intern: %v", err)
	}
	if err := <-assigned; !errors.Is(err, goIdentity.ErrUnknownRole) {
		t.Fatalf("expected assignment to a deleted role to fail, got %v", err)
	}
	u, err := h.store.FindByID(ctx, "worker")
	if err != nil {
		t.Fatalf("find worker: %v", err)
	}
	if u.RoleID != "employee" {
		t.Fatalf("expected worker to keep employee, got %q", u.RoleID)
	}
}
