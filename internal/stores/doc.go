// Package stores provides Redis-backed, short-lived records for the identity
// engine: one-time code challenges that have no user record to live on yet, and
// the optional token denylist.
//
// # Design
//
// Challenges are Redis hashes holding a code digest, an expiry and an attempt
// counter. Consume runs in a single Lua script so that validation and deletion
// happen atomically; a challenge is single-use. Expired records are retained for
// a grace period so callers can tell "expired" from "never issued".
//
// This package never generates codes or makes authentication decisions, and
// never sees plaintext codes.
package stores
