// Package middleware adapts an identity engine to net/http.
//
// [Authenticate] reads the bearer token, verifies it and stores the claims on
// the request context. [RequirePermission] and [RequireModule] gate handlers
// on those claims. All decisions are delegated to the engine; this package
// never parses tokens or touches Redis.
package middleware
