package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "identity.db")
	if err := Migrate(SQLite, dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Up is idempotent.
	if err := Migrate(SQLite, dsn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	s, err := Open(context.Background(), SQLite, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var created = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newUser(id, email, phone, username string) *goIdentity.User {
	return &goIdentity.User{
		ID: id, Email: email, Phone: phone, Username: username,
		DisplayName: "User " + id, RoleID: "employee", Active: true,
		CreatedAt: created, LastSeenAt: created,
	}
}

func TestSQLiteCreateAndFind(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	u := newUser("u1", "alice@x.com", "+15551234567", "alice")
	u.PasswordHash = "$argon2id$..."
	u.Social.GoogleID = "g-1"
	u.Department = "eng"
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}

	finders := map[string]func() (*goIdentity.User, error){
		"id":       func() (*goIdentity.User, error) { return s.FindByID(ctx, "u1") },
		"email":    func() (*goIdentity.User, error) { return s.FindByEmail(ctx, "alice@x.com") },
		"phone":    func() (*goIdentity.User, error) { return s.FindByPhone(ctx, "+15551234567") },
		"username": func() (*goIdentity.User, error) { return s.FindByUsername(ctx, "alice") },
		"social":   func() (*goIdentity.User, error) { return s.FindBySocial(ctx, goIdentity.GoogleIdentity{ID: "g-1"}) },
	}
	for name, find := range finders {
		got, err := find()
		if err != nil {
			t.Fatalf("find by %s: %v", name, err)
		}
		if got.ID != "u1" || got.PasswordHash != u.PasswordHash || got.Department != "eng" ||
			!got.Active || got.Verified || !got.CreatedAt.Equal(created) || got.Social.GoogleID != "g-1" {
			t.Fatalf("find by %s returned %+v", name, got)
		}
	}

	if _, err := s.FindByEmail(ctx, "bob@x.com"); !errors.Is(err, goIdentity.ErrStoreNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.FindBySocial(ctx, goIdentity.AppleIdentity{ID: "g-1"}); !errors.Is(err, goIdentity.ErrStoreNotFound) {
		t.Fatalf("external ids are per provider, got %v", err)
	}
}

func TestSQLiteUniqueness(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, newUser("u1", "alice@x.com", "", "")); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Empty identifiers are NULL and never collide.
	if err := s.CreateUser(ctx, newUser("u2", "", "+15550000001", "")); err != nil {
		t.Fatalf("create without email: %v", err)
	}
	if err := s.CreateUser(ctx, newUser("u3", "", "+15550000002", "")); err != nil {
		t.Fatalf("second create without email: %v", err)
	}
	if err := s.CreateUser(ctx, newUser("u4", "alice@x.com", "", "")); !errors.Is(err, goIdentity.ErrStoreDuplicate) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	if err := s.CreateUser(ctx, newUser("u1", "other@x.com", "", "")); !errors.Is(err, goIdentity.ErrStoreDuplicate) {
		t.Fatalf("expected duplicate id, got %v", err)
	}

	tests := []struct {
		name  string
		probe goIdentity.IdentityProbe
		want  bool
	}{
		{"empty", goIdentity.IdentityProbe{}, false},
		{"taken email", goIdentity.IdentityProbe{Email: "alice@x.com"}, true},
		{"taken phone among free", goIdentity.IdentityProbe{Email: "new@x.com", Phone: "+15550000002"}, true},
		{"free", goIdentity.IdentityProbe{Email: "new@x.com", Username: "new"}, false},
	}
	for _, tc := range tests {
		got, err := s.IdentityExists(ctx, tc.probe)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestSQLiteLinkSocial(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	_ = s.CreateUser(ctx, newUser("u1", "a@x.com", "", ""))
	_ = s.CreateUser(ctx, newUser("u2", "b@x.com", "", ""))

	if err := s.LinkSocial(ctx, "u1", goIdentity.MicrosoftIdentity{ID: "ms-1"}); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := s.LinkSocial(ctx, "u1", goIdentity.MicrosoftIdentity{ID: "ms-1"}); err != nil {
		t.Fatalf("relinking the same id is a no-op: %v", err)
	}
	if err := s.LinkSocial(ctx, "u1", goIdentity.MicrosoftIdentity{ID: "ms-2"}); !errors.Is(err, goIdentity.ErrStoreDuplicate) {
		t.Fatalf("expected conflicting link refused, got %v", err)
	}
	if err := s.LinkSocial(ctx, "u2", goIdentity.MicrosoftIdentity{ID: "ms-1"}); !errors.Is(err, goIdentity.ErrStoreDuplicate) {
		t.Fatalf("expected id owned by another user refused, got %v", err)
	}
	if err := s.LinkSocial(ctx, "ghost", goIdentity.MicrosoftIdentity{ID: "ms-9"}); !errors.Is(err, goIdentity.ErrStoreNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLiteOTPChallenge(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	_ = s.CreateUser(ctx, newUser("u1", "", "+15551234567", ""))
	now := created.Add(time.Hour)

	if err := s.ConsumeOTPChallenge(ctx, "u1", "h1", now); !errors.Is(err, goIdentity.ErrOTPNotIssued) {
		t.Fatalf("expected not issued, got %v", err)
	}

	if err := s.SetOTPChallenge(ctx, "u1", "h1", now.Add(5*time.Minute)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.ConsumeOTPChallenge(ctx, "u1", "wrong", now); !errors.Is(err, goIdentity.ErrOTPMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := s.ConsumeOTPChallenge(ctx, "u1", "h1", now.Add(time.Minute)); err != nil {
		t.Fatalf("consume: %v", err)
	}
	u, _ := s.FindByID(ctx, "u1")
	if !u.Verified || u.OTPHash != "" || !u.OTPExpiresAt.IsZero() {
		t.Fatalf("expected challenge cleared and user verified, got %+v", u)
	}
	if err := s.ConsumeOTPChallenge(ctx, "u1", "h1", now.Add(time.Minute)); !errors.Is(err, goIdentity.ErrOTPNotIssued) {
		t.Fatalf("replay must fail, got %v", err)
	}

	_ = s.SetOTPChallenge(ctx, "u1", "h2", now.Add(5*time.Minute))
	if err := s.ConsumeOTPChallenge(ctx, "u1", "h2", now.Add(5*time.Minute)); !errors.Is(err, goIdentity.ErrOTPExpired) {
		t.Fatalf("expected expired at the boundary, got %v", err)
	}
	if err := s.ConsumeOTPChallenge(ctx, "u1", "h2", now); !errors.Is(err, goIdentity.ErrOTPNotIssued) {
		t.Fatalf("expired challenges are cleared, got %v", err)
	}

	if err := s.ConsumeOTPChallenge(ctx, "ghost", "h", now); !errors.Is(err, goIdentity.ErrStoreNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLiteUpdates(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	_ = s.CreateUser(ctx, newUser("u1", "a@x.com", "", ""))
	_ = s.CreateUser(ctx, newUser("u2", "b@x.com", "", ""))
	seen := created.Add(2 * time.Hour)

	if err := s.TouchLastSeen(ctx, "u1", seen); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := s.SetPasswordHash(ctx, "u1", "new-hash"); err != nil {
		t.Fatalf("set hash: %v", err)
	}
	if err := s.SetRole(ctx, "u1", "manager"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := s.SetActive(ctx, "u1", false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if err := s.SetProfile(ctx, "u1", "eng", "core"); err != nil {
		t.Fatalf("set profile: %v", err)
	}

	u, _ := s.FindByID(ctx, "u1")
	if !u.LastSeenAt.Equal(seen) || u.PasswordHash != "new-hash" || u.RoleID != "manager" ||
		u.Active || u.Department != "eng" || u.Team != "core" {
		t.Fatalf("updates not applied: %+v", u)
	}

	if n, _ := s.CountByRole(ctx, "employee"); n != 1 {
		t.Fatalf("expected 1 employee, got %d", n)
	}
	if n, _ := s.CountByRole(ctx, "manager"); n != 1 {
		t.Fatalf("expected 1 manager, got %d", n)
	}
	if err := s.SetRole(ctx, "ghost", "manager"); !errors.Is(err, goIdentity.ErrStoreNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
