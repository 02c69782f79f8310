package goIdentity_test

import (
	"context"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBenchmarkEngine(b *testing.B, revocation bool) (*goIdentity.Engine, goIdentity.TokenPair, *goIdentity.Claims) {
	b.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	roles, err := permission.NewConfig(permission.Definition{
		Resources:   map[string]string{"employee": "hr"},
		DefaultRole: "employee",
		Roles: []permission.Role{{
			ID: "employee", Name: "Employee", Level: 10, Modules: []string{"hr"},
			Permissions: []permission.Permission{
				{Action: "read", Resource: "employee", Scope: permission.ScopeTeam},
			},
		}},
	})
	if err != nil {
		b.Fatalf("roles: %v", err)
	}

	cfg := testConfig()
	cfg.Revocation.Enabled = revocation
	store := memory.New()
	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithRoles(roles).
		WithCredentialStore(store).
		Build()
	if err != nil {
		b.Fatalf("build engine: %v", err)
	}
	b.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	u := &goIdentity.User{ID: "u1", Username: "alice", DisplayName: "Alice", RoleID: "employee", Department: "eng", Team: "core", Active: true}
	if err := store.CreateUser(context.Background(), u); err != nil {
		b.Fatalf("seed: %v", err)
	}
	pair, err := engine.IssueTokens(context.Background(), goIdentity.Identity{
		ID: u.ID, Username: u.Username, RoleID: u.RoleID, Department: u.Department, Team: u.Team, Active: true,
	})
	if err != nil {
		b.Fatalf("issue: %v", err)
	}
	claims, err := engine.VerifyToken(context.Background(), pair.AccessToken)
	if err != nil {
		b.Fatalf("verify: %v", err)
	}
	return engine, pair, claims
}

func BenchmarkVerifyToken(b *testing.B) {
	engine, pair, _ := newBenchmarkEngine(b, false)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.VerifyToken(ctx, pair.AccessToken); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func BenchmarkVerifyTokenRevocation(b *testing.B) {
	engine, pair, _ := newBenchmarkEngine(b, true)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.VerifyToken(ctx, pair.AccessToken); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func BenchmarkAuthorize(b *testing.B) {
	engine, _, claims := newBenchmarkEngine(b, false)
	target := permission.Target{UserID: "u2", Department: "eng", Team: "core"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := engine.Authorize(claims, "read", "employee", target); err != nil {
			b.Fatalf("authorize failed: %v", err)
		}
	}
}

func BenchmarkRefreshToken(b *testing.B) {
	engine, pair, _ := newBenchmarkEngine(b, true)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.RefreshToken(ctx, pair.RefreshToken); err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
	}
}
