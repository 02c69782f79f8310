package middleware

import (
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/permission"
)

// Authorizer makes scoped permission decisions. *goIdentity.Engine
// implements it.
type Authorizer interface {
	Authorize(claims *goIdentity.Claims, action, resource string, target permission.Target) error
	CanAccessModule(claims *goIdentity.Claims, module string) bool
}

// TargetFunc extracts the record a request acts on.
type TargetFunc func(r *http.Request) permission.Target

// RequirePermission allows the request only when the authenticated caller
// holds action on resource for the target returned by target. A nil target
// checks against an empty Target, which only unscoped grants satisfy.
// It must run after Authenticate.
func RequirePermission(a Authorizer, action, resource string, target TargetFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := goIdentity.ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			var t permission.Target
			if target != nil {
				t = target(r)
			}
			if err := a.Authorize(claims, action, resource, t); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireModule allows the request only when the caller's role lists module.
func RequireModule(a Authorizer, module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := goIdentity.ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !a.CanAccessModule(claims, module) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
