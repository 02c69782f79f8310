package goIdentity

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
	internalmetrics "github.com/MrEthical07/goIdentity/internal/metrics"
)

// User is the stored identity record. It is only ever handed to and from a
// CredentialStore; callers of Engine see Identity instead.
type User struct {
	ID           string
	Email        string
	Phone        string
	Username     string
	PasswordHash string
	DisplayName  string
	AvatarURL    string
	RoleID       string
	Department   string
	Team         string
	Active       bool
	Verified     bool
	Social       SocialLinks
	CreatedAt    time.Time
	LastSeenAt   time.Time

	// Pending phone challenge; both empty when none is live.
	OTPHash      string
	OTPExpiresAt time.Time
}

// Identity is the public snapshot of a user. It never carries secrets.
type Identity struct {
	ID          string      `json:"id"`
	Email       string      `json:"email,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	Username    string      `json:"username,omitempty"`
	DisplayName string      `json:"display_name"`
	AvatarURL   string      `json:"avatar_url,omitempty"`
	RoleID      string      `json:"role_id"`
	RoleName    string      `json:"role_name,omitempty"`
	Department  string      `json:"department,omitempty"`
	Team        string      `json:"team,omitempty"`
	Active      bool        `json:"active"`
	Verified    bool        `json:"verified"`
	Social      SocialLinks `json:"social,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	LastSeenAt  time.Time   `json:"last_seen_at,omitempty"`
}

// ProfileHints is what a social provider told us about the user.
type ProfileHints struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// RegisterRequest creates a new user. Exactly the identifier matching
// Provider is required; the others are optional extras.
type RegisterRequest struct {
	DisplayName   string
	TermsAccepted bool
	Provider      Provider
	Email         string
	Phone         string
	Username      string
	Password      string
	// OTPCode completes a phone registration started with IssueOTP(OTPPurposeRegister).
	OTPCode string
	Social  SocialIdentity
	Profile ProfileHints
}

// LoginRequest authenticates with one provider. Identifier is the email,
// phone or username depending on Provider and is ignored for social logins.
type LoginRequest struct {
	Provider   Provider
	Identifier string
	Password   string
	OTPCode    string
	Social     SocialIdentity
	Profile    ProfileHints
}

// TokenPair is a freshly minted access and refresh token.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Session is the result of a successful login.
type Session struct {
	Identity Identity  `json:"identity"`
	Tokens   TokenPair `json:"tokens"`
}

// OTPPurpose says what an issued code will be used for.
type OTPPurpose string

const (
	OTPPurposeLogin    OTPPurpose = "login"
	OTPPurposeVerify   OTPPurpose = "verify"
	OTPPurposeRegister OTPPurpose = "register"
)

// IdentityProbe lists every identifier a registration would claim. Empty
// fields are not matched.
type IdentityProbe struct {
	Email    string
	Phone    string
	Username string
	Social   SocialLinks
}

// CredentialStore is the durable home of user records.
//
// Finders return ErrStoreNotFound when nothing matches. Writes that would
// violate identifier uniqueness return ErrStoreDuplicate.
type CredentialStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByPhone(ctx context.Context, phone string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindBySocial(ctx context.Context, id SocialIdentity) (*User, error)

	// IdentityExists answers whether any identifier in probe is taken, in a
	// single query.
	IdentityExists(ctx context.Context, probe IdentityProbe) (bool, error)

	CreateUser(ctx context.Context, u *User) error
	// LinkSocial stores id on the user unless that provider is already linked
	// to a different external id, in which case it returns ErrStoreDuplicate.
	LinkSocial(ctx context.Context, userID string, id SocialIdentity) error
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
	SetPasswordHash(ctx context.Context, userID, hash string) error

	// SetOTPChallenge replaces any pending challenge.
	SetOTPChallenge(ctx context.Context, userID, codeHash string, expiresAt time.Time) error
	// ConsumeOTPChallenge atomically checks the pending challenge, and on a
	// match clears it and marks the user verified. It reports ErrOTPNotIssued,
	// ErrOTPMismatch or ErrOTPExpired otherwise.
	ConsumeOTPChallenge(ctx context.Context, userID, codeHash string, now time.Time) error

	SetRole(ctx context.Context, userID, roleID string) error
	SetActive(ctx context.Context, userID string, active bool) error
	CountByRole(ctx context.Context, roleID string) (int, error)
}

// Sender delivers one-time codes out of band, typically over SMS.
type Sender interface {
	Send(ctx context.Context, phone, code string, purpose OTPPurpose) error
}

// NoopSender discards codes.
type NoopSender struct{}

func (NoopSender) Send(context.Context, string, string, OTPPurpose) error { return nil }

// AuditEvent is one security-relevant occurrence.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink drops every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers events on a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a JSONWriterSink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies one engine counter.
type MetricID = internalmetrics.MetricID

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	MetricRegisterSuccess    = internalmetrics.MetricRegisterSuccess
	MetricRegisterDuplicate  = internalmetrics.MetricRegisterDuplicate
	MetricLoginSuccess       = internalmetrics.MetricLoginSuccess
	MetricLoginFailure       = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited   = internalmetrics.MetricLoginRateLimited
	MetricSocialLinked       = internalmetrics.MetricSocialLinked
	MetricSocialCreated      = internalmetrics.MetricSocialCreated
	MetricOTPIssued          = internalmetrics.MetricOTPIssued
	MetricOTPRateLimited     = internalmetrics.MetricOTPRateLimited
	MetricOTPVerified        = internalmetrics.MetricOTPVerified
	MetricOTPFailed          = internalmetrics.MetricOTPFailed
	MetricTokenIssued        = internalmetrics.MetricTokenIssued
	MetricTokenRefreshed     = internalmetrics.MetricTokenRefreshed
	MetricTokenInvalid       = internalmetrics.MetricTokenInvalid
	MetricTokenRevoked       = internalmetrics.MetricTokenRevoked
	MetricLogout             = internalmetrics.MetricLogout
	MetricAuthorizeAllowed   = internalmetrics.MetricAuthorizeAllowed
	MetricAuthorizeDenied    = internalmetrics.MetricAuthorizeDenied
	MetricRoleChanged        = internalmetrics.MetricRoleChanged
	MetricAccountDeactivated = internalmetrics.MetricAccountDeactivated
	MetricVerifyTokenLatency = internalmetrics.MetricVerifyTokenLatency
)
