package goIdentity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// captureSender keeps the last code sent to each phone.
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
}

func (s *captureSender) Send(_ context.Context, phone, code string, _ goIdentity.OTPPurpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes == nil {
		s.codes = make(map[string]string)
	}
	s.codes[phone] = code
	s.sent++
	return nil
}

func (s *captureSender) code(t *testing.T, phone string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[phone]
	if !ok {
		t.Fatalf("no code sent to %s", phone)
	}
	return code
}

func testRoles(t *testing.T) *permission.Config {
	t.Helper()
	cfg, err := permission.NewConfig(permission.Definition{
		Resources: map[string]string{
			"employee": "hr",
			"leave":    "hr",
			"invoice":  "finance",
			"role":     "admin",
		},
		DefaultRole: "employee",
		Roles: []permission.Role{
			{
				ID: "admin", Name: "Administrator", Level: 100,
				Modules: []string{"hr", "finance", "admin"},
				Permissions: []permission.Permission{
					{Action: "read", Resource: "employee"},
					{Action: "manage", Resource: "role"},
				},
			},
			{
				ID: "manager", Name: "Manager", Level: 50,
				Modules: []string{"hr"},
				Permissions: []permission.Permission{
					{Action: "read", Resource: "employee", Scope: permission.ScopeDepartment},
					{Action: "approve", Resource: "leave", Scope: permission.ScopeTeam},
				},
			},
			{
				ID: "employee", Name: "Employee", Level: 10,
				Modules: []string{"hr"},
				Permissions: []permission.Permission{
					{Action: "read", Resource: "employee", Scope: permission.ScopeOwn},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("role table: %v", err)
	}
	return cfg
}

func testConfig() goIdentity.Config {
	cfg := goIdentity.DefaultConfig()
	cfg.JWT.AccessKey = []byte("access-secret-access-secret-0123456789")
	cfg.JWT.RefreshKey = []byte("refresh-secret-refresh-secret-0123456789")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

type harness struct {
	engine *goIdentity.Engine
	store  *memory.Store
	clock  *fakeClock
	sender *captureSender
	mr     *miniredis.Miniredis
}

type option func(*goIdentity.Builder)

func newHarness(t *testing.T, mutate func(*goIdentity.Config), opts ...option) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		store:  memory.New(),
		clock:  &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		sender: &captureSender{},
		mr:     mr,
	}
	b := goIdentity.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithRoles(testRoles(t)).
		WithCredentialStore(h.store).
		WithSender(h.sender).
		WithClock(h.clock.Now)
	for _, o := range opts {
		o(b)
	}
	h.engine, err = b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	t.Cleanup(func() {
		h.engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return h
}

func (h *harness) registerEmail(t *testing.T, email, password string) goIdentity.Identity {
	t.Helper()
	id, err := h.engine.Register(context.Background(), goIdentity.RegisterRequest{
		DisplayName:   "Alice",
		TermsAccepted: true,
		Provider:      goIdentity.ProviderEmail,
		Email:         email,
		Password:      password,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return id
}

func (h *harness) registerPhone(t *testing.T, phone string) goIdentity.Identity {
	t.Helper()
	id, err := h.engine.Register(context.Background(), goIdentity.RegisterRequest{
		DisplayName:   "Phone User",
		TermsAccepted: true,
		Provider:      goIdentity.ProviderPhone,
		Phone:         phone,
	})
	if err != nil {
		t.Fatalf("register %s: %v", phone, err)
	}
	return id
}

// seedUser stores a user with the given role directly, bypassing Register.
func (h *harness) seedUser(t *testing.T, id, roleID, department, team string) *goIdentity.Claims {
	t.Helper()
	u := &goIdentity.User{
		ID:          id,
		Email:       id + "@corp.test",
		DisplayName: id,
		RoleID:      roleID,
		Department:  department,
		Team:        team,
		Active:      true,
		CreatedAt:   h.clock.Now(),
	}
	if err := h.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	return &goIdentity.Claims{UserID: id, RoleID: roleID, Department: department, Team: team, Active: true}
}
