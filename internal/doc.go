// Package internal contains helpers private to goIdentity: identifier generation,
// one-time code generation and hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - rate: Redis-backed OTP issuance window and login failure throttling
//   - stores: Redis-backed registration challenges and the token denylist
//   - httpapi: reference HTTP service used by cmd/identityd
//   - logger: slog handler setup
package internal
