package goIdentity_test

import (
	"context"
	"errors"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
)

func TestSocialLoginLinksByEmail(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	alice := h.registerEmail(t, "alice@x.com", "Abc12345!")

	sess, err := h.engine.LoginSocial(ctx, goIdentity.GoogleIdentity{ID: "g-42"}, goIdentity.ProfileHints{
		Email:       "Alice@X.com",
		DisplayName: "Someone Else",
	})
	if err != nil {
		t.Fatalf("social login: %v", err)
	}
	if sess.Identity.ID != alice.ID {
		t.Fatalf("expected link to existing user %s, got %s", alice.ID, sess.Identity.ID)
	}
	if sess.Identity.DisplayName != "Alice" {
		t.Fatal("linking must not alter other fields")
	}

	stored, _ := h.store.FindByID(ctx, alice.ID)
	if stored.Social.GoogleID != "g-42" {
		t.Fatalf("expected google id linked, got %+v", stored.Social)
	}
	if n, _ := h.store.CountByRole(ctx, "employee"); n != 1 {
		t.Fatalf("expected no new user, found %d", n)
	}

	// Second login resolves by external id even without a profile email.
	again, err := h.engine.LoginSocial(ctx, goIdentity.GoogleIdentity{ID: "g-42"}, goIdentity.ProfileHints{})
	if err != nil || again.Identity.ID != alice.ID {
		t.Fatalf("expected external id match, got %+v, %v", again.Identity, err)
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[goIdentity.MetricSocialLinked] != 1 || snap.Counters[goIdentity.MetricSocialCreated] != 0 {
		t.Fatalf("unexpected social counters %+v", snap.Counters)
	}
}

func TestSocialLoginCreatesVerifiedUser(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	sess, err := h.engine.LoginSocial(ctx, goIdentity.FacebookIdentity{ID: "fb-1"}, goIdentity.ProfileHints{
		Email:       "new@x.com",
		DisplayName: "New Person",
		AvatarURL:   "https://cdn.example/a.png",
	})
	if err != nil {
		t.Fatalf("social login: %v", err)
	}
	id := sess.Identity
	if !id.Verified || id.DisplayName != "New Person" || id.Email != "new@x.com" || id.Social.FacebookID != "fb-1" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if id.RoleID != "employee" {
		t.Fatalf("expected default role, got %q", id.RoleID)
	}
	if _, err := h.engine.VerifyToken(ctx, sess.Tokens.AccessToken); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestSocialLoginRefusesConflictingLink(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.engine.LoginSocial(ctx, goIdentity.GoogleIdentity{ID: "g-1"}, goIdentity.ProfileHints{Email: "alice@x.com"}); err != nil {
		t.Fatalf("first social login: %v", err)
	}
	_, err := h.engine.LoginSocial(ctx, goIdentity.GoogleIdentity{ID: "g-2"}, goIdentity.ProfileHints{Email: "alice@x.com"})
	if !errors.Is(err, goIdentity.ErrDuplicateIdentity) {
		t.Fatalf("expected conflicting google id to be refused, got %v", err)
	}

	// A different provider may still link.
	if _, err := h.engine.LoginSocial(ctx, goIdentity.AppleIdentity{ID: "a-1"}, goIdentity.ProfileHints{Email: "alice@x.com"}); err != nil {
		t.Fatalf("apple link: %v", err)
	}
}

func TestSocialLoginWithoutEmailLinking(t *testing.T) {
	h := newHarness(t, func(c *goIdentity.Config) {
		c.Social.LinkByEmail = false
	})
	ctx := context.Background()
	h.registerEmail(t, "alice@x.com", "Abc12345!")

	_, err := h.engine.LoginSocial(ctx, goIdentity.MicrosoftIdentity{ID: "ms-1"}, goIdentity.ProfileHints{Email: "alice@x.com"})
	if !errors.Is(err, goIdentity.ErrDuplicateIdentity) {
		t.Fatalf("expected email collision to be refused, got %v", err)
	}
}

func TestSocialLoginDeactivatedUser(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	sess, err := h.engine.LoginSocial(ctx, goIdentity.GoogleIdentity{ID: "g-1"}, goIdentity.ProfileHints{DisplayName: "G"})
	if err != nil {
		t.Fatalf("social login: %v", err)
	}
	_ = h.store.SetActive(ctx, sess.Identity.ID, false)

	if _, err := h.engine.LoginSocial(ctx, goIdentity.GoogleIdentity{ID: "g-1"}, goIdentity.ProfileHints{}); !errors.Is(err, goIdentity.ErrDeactivated) {
		t.Fatalf("expected deactivated, got %v", err)
	}
}

func TestLoginDispatchesSocial(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	sess, err := h.engine.Login(ctx, goIdentity.LoginRequest{
		Provider: goIdentity.ProviderApple,
		Social:   goIdentity.AppleIdentity{ID: "a-9"},
		Profile:  goIdentity.ProfileHints{DisplayName: "Apple User"},
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.Identity.Social.AppleID != "a-9" {
		t.Fatalf("unexpected identity %+v", sess.Identity)
	}

	_, err = h.engine.Login(ctx, goIdentity.LoginRequest{
		Provider: goIdentity.ProviderApple,
		Social:   goIdentity.GoogleIdentity{ID: "a-9"},
	})
	if !errors.Is(err, goIdentity.ErrInvalidRequest) {
		t.Fatalf("expected provider mismatch to be rejected, got %v", err)
	}
}
