package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/permission"
)

type verifierFunc func(ctx context.Context, token string) (*goIdentity.Claims, error)

func (f verifierFunc) VerifyToken(ctx context.Context, token string) (*goIdentity.Claims, error) {
	return f(ctx, token)
}

type fakeAuthorizer struct {
	authorize func(*goIdentity.Claims, string, string, permission.Target) error
	modules   map[string]bool
}

func (f fakeAuthorizer) Authorize(c *goIdentity.Claims, action, resource string, t permission.Target) error {
	return f.authorize(c, action, resource, t)
}

func (f fakeAuthorizer) CanAccessModule(_ *goIdentity.Claims, module string) bool {
	return f.modules[module]
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := goIdentity.ClaimsFromContext(r.Context())
		if !ok {
			t.Fatal("claims missing from context")
		}
		_, _ = fmt.Fprint(w, claims.UserID)
	})
}

func serve(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/employees/e1", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate(t *testing.T) {
	v := verifierFunc(func(_ context.Context, token string) (*goIdentity.Claims, error) {
		switch token {
		case "good":
			return &goIdentity.Claims{UserID: "e1", RoleID: "employee", Active: true}, nil
		case "down":
			return nil, fmt.Errorf("%w: denylist", goIdentity.ErrUnavailable)
		default:
			return nil, goIdentity.ErrInvalidToken
		}
	})
	h := Authenticate(v)(okHandler(t))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer good", http.StatusOK},
		{"case-insensitive scheme", "bearer good", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"basic auth", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
		{"empty token", "Bearer  ", http.StatusUnauthorized},
		{"rejected token", "Bearer forged", http.StatusUnauthorized},
		{"backend down", "Bearer down", http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(h, tc.header)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if tc.status == http.StatusOK && rec.Body.String() != "e1" {
				t.Fatalf("unexpected body %q", rec.Body.String())
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	var gotTarget permission.Target
	a := fakeAuthorizer{authorize: func(c *goIdentity.Claims, action, resource string, tg permission.Target) error {
		gotTarget = tg
		if c.RoleID == "manager" && action == "read" && resource == "employee" {
			return nil
		}
		return goIdentity.ErrInsufficientPermission
	}}
	target := func(r *http.Request) permission.Target {
		return permission.Target{UserID: r.URL.Path[len("/employees/"):], Department: "eng"}
	}
	v := verifierFunc(func(_ context.Context, token string) (*goIdentity.Claims, error) {
		return &goIdentity.Claims{UserID: token, RoleID: token, Active: true}, nil
	})
	h := Authenticate(v)(RequirePermission(a, "read", "employee", target)(okHandler(t)))

	if rec := serve(h, "Bearer manager"); rec.Code != http.StatusOK {
		t.Fatalf("expected manager allowed, got %d", rec.Code)
	}
	if gotTarget.UserID != "e1" || gotTarget.Department != "eng" {
		t.Fatalf("target not extracted: %+v", gotTarget)
	}
	if rec := serve(h, "Bearer employee"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected employee forbidden, got %d", rec.Code)
	}

	unauthenticated := RequirePermission(a, "read", "employee", nil)(okHandler(t))
	if rec := serve(unauthenticated, "Bearer manager"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without Authenticate, got %d", rec.Code)
	}
}

func TestRequireModule(t *testing.T) {
	a := fakeAuthorizer{modules: map[string]bool{"hr": true}}
	v := verifierFunc(func(context.Context, string) (*goIdentity.Claims, error) {
		return &goIdentity.Claims{UserID: "e1", RoleID: "employee", Active: true}, nil
	})

	if rec := serve(Authenticate(v)(RequireModule(a, "hr")(okHandler(t))), "Bearer x"); rec.Code != http.StatusOK {
		t.Fatalf("expected hr allowed, got %d", rec.Code)
	}
	if rec := serve(Authenticate(v)(RequireModule(a, "finance")(okHandler(t))), "Bearer x"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected finance forbidden, got %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := bearerToken("Bearer abc.def.ghi"); !ok || tok != "abc.def.ghi" {
		t.Fatalf("unexpected parse %q %v", tok, ok)
	}
	if _, ok := bearerToken("Bear"); ok {
		t.Fatal("short header must not parse")
	}
}
