package goIdentity

import (
	"errors"

	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/permission"
)

// Error taxonomy. Every failure surfaced by Engine wraps exactly one of these;
// use errors.Is to branch and KindOf to obtain a stable string.
var (
	// ErrInvalidCredential is returned when a password or social credential does not check out.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrNotFound is returned when the referenced user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrDeactivated is returned for users whose account was switched off.
	ErrDeactivated = errors.New("account deactivated")
	// ErrDuplicateIdentity is returned when an identifier already belongs to another user.
	ErrDuplicateIdentity = errors.New("identity already in use")
	// ErrInvalidToken is returned for every token verification failure.
	ErrInvalidToken = jwt.ErrInvalidToken
	// ErrOTPNotIssued is returned when no live challenge exists.
	ErrOTPNotIssued = errors.New("otp not issued")
	// ErrOTPMismatch is returned when the code does not match the live challenge.
	ErrOTPMismatch = errors.New("otp mismatch")
	// ErrOTPExpired is returned when the challenge is past its expiry.
	ErrOTPExpired = errors.New("otp expired")
	// ErrRateLimited is returned when an OTP or login throttle trips.
	ErrRateLimited = errors.New("rate limited")
	// ErrInsufficientPermission is returned by Authorize on deny.
	ErrInsufficientPermission = errors.New("insufficient permission")
	// ErrInvalidRoleHierarchy is returned when a role change violates the level guards.
	ErrInvalidRoleHierarchy = permission.ErrInvalidRoleHierarchy

	// ErrInvalidRequest is returned when a request is malformed.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnknownRole is returned when a role id is not in the live table.
	ErrUnknownRole = permission.ErrUnknownRole
	// ErrUnavailable is returned when a backing store or Redis fails.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrEngineNotReady is returned when methods are called on a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Sentinels returned by CredentialStore implementations.
var (
	ErrStoreNotFound  = errors.New("store: record not found")
	ErrStoreDuplicate = errors.New("store: unique constraint violated")
)

// Kind is the stable, transport-safe name of an error class.
type Kind string

const (
	KindInvalidCredential      Kind = "invalid_credential"
	KindNotFound               Kind = "not_found"
	KindDeactivated            Kind = "deactivated"
	KindDuplicateIdentity      Kind = "duplicate_identity"
	KindInvalidToken           Kind = "invalid_token"
	KindOTPNotIssued           Kind = "otp_not_issued"
	KindOTPMismatch            Kind = "otp_mismatch"
	KindOTPExpired             Kind = "otp_expired"
	KindRateLimited            Kind = "rate_limited"
	KindInsufficientPermission Kind = "insufficient_permission"
	KindInvalidRoleHierarchy   Kind = "invalid_role_hierarchy"
	KindInvalidRequest         Kind = "invalid_request"
	KindUnknownRole            Kind = "unknown_role"
	KindUnavailable            Kind = "unavailable"
	KindInternal               Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidCredential, KindInvalidCredential},
	{ErrNotFound, KindNotFound},
	{ErrDeactivated, KindDeactivated},
	{ErrDuplicateIdentity, KindDuplicateIdentity},
	{ErrInvalidToken, KindInvalidToken},
	{ErrOTPNotIssued, KindOTPNotIssued},
	{ErrOTPMismatch, KindOTPMismatch},
	{ErrOTPExpired, KindOTPExpired},
	{ErrRateLimited, KindRateLimited},
	{ErrInsufficientPermission, KindInsufficientPermission},
	{ErrInvalidRoleHierarchy, KindInvalidRoleHierarchy},
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrUnknownRole, KindUnknownRole},
	{ErrUnavailable, KindUnavailable},
}

// KindOf classifies err. Nil yields the empty kind; anything unrecognised is
// KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
