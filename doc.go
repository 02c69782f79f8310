// Package goIdentity is an identity and scoped-authorization engine for
// internal business applications.
//
// Users register and sign in with an email and password, a phone and a
// one-time code, a username, or a linked social identity (Google, Facebook,
// Apple, Microsoft). A successful login yields a signed access token whose
// claims carry the user's role, department and team, and a longer-lived
// refresh token. Permission checks are evaluated against those claims and a
// role table that grants actions on resources at own, team, department or
// global scope.
//
// Engine methods are safe to call from multiple goroutines once
// [Builder.Build] has returned.
//
// # Architecture boundaries
//
// goIdentity is the public surface: [Engine], [Builder], [Config] and the
// value types it hands out. Durable user records live behind
// [CredentialStore] (see store/memory and store/sqlstore). Short-lived state
// (OTP throttles, registration challenges, the token denylist) lives in
// Redis. Role tables and hierarchy rules live in the permission package.
//
// # What this package must NOT do
//
//   - Return password hashes, OTP hashes or raw codes from any exported method.
//   - Log secrets or one-time codes.
//   - Import any sub-package that re-imports goIdentity.
//
// # Performance contract
//
// VerifyToken is the hot path. It verifies a signature and, with revocation
// enabled, makes one Redis round-trip to the denylist. Authorize and
// CanAccessModule never perform I/O.
package goIdentity
