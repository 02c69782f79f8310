// Package rate provides the Redis-backed limits of the identity engine.
//
// # Window semantics
//
// OTP issuance uses an exact trailing window: a sorted set per phone scored by
// issuance time, trimmed, counted and appended inside one Lua script. Login
// failures use fixed-window counters (INCR + EXPIRE on first hit).
//
// Key layout, with the configured prefix:
//   - <prefix>:otp:<phone>
//   - <prefix>:login:<identifier>
package rate
