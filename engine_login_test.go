package goIdentity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
)

func TestEmailRegisterThenLogin(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	id := h.registerEmail(t, "alice@x.com", "Abc12345!")
	if id.Verified {
		t.Fatal("email registrations start unverified")
	}
	if id.RoleID != "employee" || id.RoleName != "Employee" {
		t.Fatalf("expected default role, got %q/%q", id.RoleID, id.RoleName)
	}

	sess, err := h.engine.Login(ctx, goIdentity.LoginRequest{
		Provider:   goIdentity.ProviderEmail,
		Identifier: "alice@x.com",
		Password:   "Abc12345!",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.Tokens.AccessToken == "" || sess.Tokens.RefreshToken == "" {
		t.Fatal("expected a token pair")
	}
	if !sess.Tokens.AccessExpiresAt.Equal(h.clock.Now().Add(15 * time.Minute)) {
		t.Fatalf("unexpected access expiry %v", sess.Tokens.AccessExpiresAt)
	}

	claims, err := h.engine.VerifyToken(ctx, sess.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Email != "alice@x.com" || claims.UserID != id.ID {
		t.Fatalf("unexpected claims %+v", claims)
	}

	stored, _ := h.store.FindByID(ctx, id.ID)
	if !stored.LastSeenAt.Equal(h.clock.Now()) {
		t.Fatal("login must update last seen")
	}
	if stored.PasswordHash == "" || stored.PasswordHash == "Abc12345!" {
		t.Fatal("password must be stored hashed")
	}
}

func TestLoginIdentifiersAreNormalized(t *testing.T) {
	h := newHarness(t, nil)
	h.registerEmail(t, "Alice@X.com", "Abc12345!")

	_, err := h.engine.Login(context.Background(), goIdentity.LoginRequest{
		Provider:   goIdentity.ProviderEmail,
		Identifier: "  alice@x.COM ",
		Password:   "Abc12345!",
	})
	if err != nil {
		t.Fatalf("expected case-insensitive email login: %v", err)
	}
}

func TestUsernameLogin(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.engine.Register(ctx, goIdentity.RegisterRequest{
		DisplayName:   "Bob",
		TermsAccepted: true,
		Provider:      goIdentity.ProviderUsername,
		Username:      "Bob.Smith",
		Password:      "correct horse",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	sess, err := h.engine.Login(ctx, goIdentity.LoginRequest{
		Provider:   goIdentity.ProviderUsername,
		Identifier: "bob.smith",
		Password:   "correct horse",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.Identity.Username != "bob.smith" {
		t.Fatalf("expected folded username, got %q", sess.Identity.Username)
	}
}

func TestLoginFailures(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	id := h.registerEmail(t, "alice@x.com", "Abc12345!")
	h.registerEmail(t, "gone@x.com", "Abc12345!")

	goneUser, _ := h.store.FindByEmail(ctx, "gone@x.com")
	_ = h.store.SetActive(ctx, goneUser.ID, false)

	tests := []struct {
		name     string
		req      goIdentity.LoginRequest
		expected error
	}{
		{"unknown user", goIdentity.LoginRequest{Provider: goIdentity.ProviderEmail, Identifier: "nobody@x.com", Password: "Abc12345!"}, goIdentity.ErrNotFound},
		{"deactivated", goIdentity.LoginRequest{Provider: goIdentity.ProviderEmail, Identifier: "gone@x.com", Password: "Abc12345!"}, goIdentity.ErrDeactivated},
		{"wrong password", goIdentity.LoginRequest{Provider: goIdentity.ProviderEmail, Identifier: "alice@x.com", Password: "nope-nope"}, goIdentity.ErrInvalidCredential},
		{"missing password", goIdentity.LoginRequest{Provider: goIdentity.ProviderEmail, Identifier: "alice@x.com"}, goIdentity.ErrInvalidCredential},
		{"bad identifier", goIdentity.LoginRequest{Provider: goIdentity.ProviderEmail, Identifier: "not-an-email", Password: "x"}, goIdentity.ErrInvalidRequest},
		{"unknown provider", goIdentity.LoginRequest{Provider: "carrier-pigeon", Identifier: "x"}, goIdentity.ErrInvalidRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.Login(ctx, tc.req)
			if !errors.Is(err, tc.expected) {
				t.Fatalf("expected %v, got %v", tc.expected, err)
			}
		})
	}

	stored, _ := h.store.FindByID(ctx, id.ID)
	if !stored.LastSeenAt.Equal(stored.CreatedAt) {
		t.Fatal("failed logins must not touch last seen")
	}
}

func TestUniformCredentialErrors(t *testing.T) {
	h := newHarness(t, func(c *goIdentity.Config) {
		c.Security.UniformCredentialErrors = true
	})
	ctx := context.Background()
	h.registerEmail(t, "gone@x.com", "Abc12345!")
	u, _ := h.store.FindByEmail(ctx, "gone@x.com")
	_ = h.store.SetActive(ctx, u.ID, false)

	for _, ident := range []string{"nobody@x.com", "gone@x.com"} {
		_, err := h.engine.Login(ctx, goIdentity.LoginRequest{
			Provider:   goIdentity.ProviderEmail,
			Identifier: ident,
			Password:   "Abc12345!",
		})
		if !errors.Is(err, goIdentity.ErrInvalidCredential) {
			t.Fatalf("%s: expected uniform invalid credential, got %v", ident, err)
		}
		if errors.Is(err, goIdentity.ErrNotFound) || errors.Is(err, goIdentity.ErrDeactivated) {
			t.Fatalf("%s: underlying reason leaked: %v", ident, err)
		}
	}
}

func TestLoginThrottle(t *testing.T) {
	h := newHarness(t, func(c *goIdentity.Config) {
		c.Security.MaxLoginFailures = 3
		c.Security.LoginCooldown = time.Minute
	})
	ctx := context.Background()
	h.registerEmail(t, "alice@x.com", "Abc12345!")

	bad := goIdentity.LoginRequest{Provider: goIdentity.ProviderEmail, Identifier: "alice@x.com", Password: "wrong-wrong"}
	for i := 0; i < 3; i++ {
		if _, err := h.engine.Login(ctx, bad); !errors.Is(err, goIdentity.ErrInvalidCredential) {
			t.Fatalf("attempt %d: expected invalid credential, got %v", i, err)
		}
	}

	good := bad
	good.Password = "Abc12345!"
	if _, err := h.engine.Login(ctx, good); !errors.Is(err, goIdentity.ErrRateLimited) {
		t.Fatalf("expected throttle to hold even for the right password, got %v", err)
	}

	h.mr.FastForward(time.Minute + time.Second)
	if _, err := h.engine.Login(ctx, good); err != nil {
		t.Fatalf("expected login after cooldown: %v", err)
	}
	if got := h.engine.MetricsSnapshot().Counters[goIdentity.MetricLoginRateLimited]; got != 1 {
		t.Fatalf("expected one throttled login, got %d", got)
	}
}

func TestPasswordUpgradeOnLogin(t *testing.T) {
	h := newHarness(t, func(c *goIdentity.Config) {
		c.Password.Algorithm = "bcrypt"
		c.Password.BcryptCost = 4
	})
	ctx := context.Background()
	id := h.registerEmail(t, "alice@x.com", "Abc12345!")
	before, _ := h.store.FindByID(ctx, id.ID)

	// Same store, new engine with argon2id as the primary algorithm.
	upgraded := newHarness(t, nil)
	if err := upgraded.store.CreateUser(ctx, before); err != nil {
		t.Fatalf("copy user: %v", err)
	}
	if _, err := upgraded.engine.Login(ctx, goIdentity.LoginRequest{
		Provider:   goIdentity.ProviderEmail,
		Identifier: "alice@x.com",
		Password:   "Abc12345!",
	}); err != nil {
		t.Fatalf("login with legacy bcrypt hash: %v", err)
	}

	after, _ := upgraded.store.FindByID(ctx, id.ID)
	if after.PasswordHash == before.PasswordHash {
		t.Fatal("expected the bcrypt hash to be replaced")
	}
	if _, err := upgraded.engine.Login(ctx, goIdentity.LoginRequest{
		Provider:   goIdentity.ProviderEmail,
		Identifier: "alice@x.com",
		Password:   "Abc12345!",
	}); err != nil {
		t.Fatalf("login with upgraded hash: %v", err)
	}
}
