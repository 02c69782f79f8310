package goIdentity

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/permission"
)

// Config holds every tunable of the Engine. Start from DefaultConfig and
// override what differs; Builder.Build validates the result.
type Config struct {
	JWT        JWTConfig
	Password   PasswordConfig
	OTP        OTPConfig
	Security   SecurityConfig
	Social     SocialConfig
	Revocation RevocationConfig
	Roles      RolesConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
	Redis      RedisConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access and refresh tokens. The two kinds must use
// different key material.
type JWTConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"
	// AccessKey and RefreshKey are HMAC secrets, or Ed25519 private keys.
	AccessKey  []byte
	RefreshKey []byte
	// Ed25519 only.
	AccessPublicKey  []byte
	RefreshPublicKey []byte
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	Issuer           string
	Audience         string
	Leeway           time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Algorithm   string // "argon2id" (default) or "bcrypt"
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	BcryptCost  int
	MinLength   int
	MaxLength   int
	// UpgradeOnLogin rehashes with the current parameters after a successful
	// password login whose stored hash is outdated.
	UpgradeOnLogin bool
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig governs phone challenges.
type OTPConfig struct {
	Digits int
	TTL    time.Duration
	// At most RateLimit codes per phone in the trailing RateWindow.
	RateLimit  int
	RateWindow time.Duration
	// MaxAttempts caps wrong guesses against a registration challenge.
	MaxAttempts int
}

/*
====================================
SECURITY CONFIG
====================================
*/

type SecurityConfig struct {
	// UniformCredentialErrors reports NotFound, Deactivated and password
	// mismatches on login as ErrInvalidCredential.
	UniformCredentialErrors bool
	// MaxLoginFailures per identifier within LoginCooldown; zero disables.
	MaxLoginFailures int
	LoginCooldown    time.Duration
}

// SocialConfig controls how external identities are resolved.
type SocialConfig struct {
	// LinkByEmail falls back to matching the profile email when no user holds
	// the external id.
	LinkByEmail bool
}

// RevocationConfig enables the Redis token denylist.
type RevocationConfig struct {
	Enabled bool
}

// RolesConfig configures role administration guards and the default role.
type RolesConfig struct {
	// DefaultRole overrides the role table's default for new users.
	DefaultRole string
	Ceiling     int
	Critical    []string
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

type RedisConfig struct {
	Prefix string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns safe defaults. Token keys are left empty and must be
// supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "hs256",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			Issuer:        "goidentity",
		},
		Password: PasswordConfig{
			Algorithm:      string(password.AlgorithmArgon2id),
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			BcryptCost:     12,
			MinLength:      password.DefaultMinPasswordBytes,
			MaxLength:      password.DefaultMaxPasswordBytes,
			UpgradeOnLogin: true,
		},
		OTP: OTPConfig{
			Digits:      6,
			TTL:         5 * time.Minute,
			RateLimit:   3,
			RateWindow:  60 * time.Second,
			MaxAttempts: 5,
		},
		Security: SecurityConfig{
			UniformCredentialErrors: false,
			MaxLoginFailures:        5,
			LoginCooldown:           15 * time.Minute,
		},
		Social: SocialConfig{
			LinkByEmail: true,
		},
		Roles: RolesConfig{
			Ceiling: 100,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Redis: RedisConfig{
			Prefix: "gi",
		},
	}
}

// HighSecurityConfig tightens the defaults: uniform credential errors, the
// denylist, no email-based social linking and shorter access tokens.
func HighSecurityConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessTTL = 5 * time.Minute
	cfg.Security.UniformCredentialErrors = true
	cfg.Security.MaxLoginFailures = 3
	cfg.Social.LinkByEmail = false
	cfg.Revocation.Enabled = true
	cfg.Audit.Enabled = true
	cfg.OTP.MaxAttempts = 3
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessKey = cloneBytes(cfg.JWT.AccessKey)
	out.JWT.RefreshKey = cloneBytes(cfg.JWT.RefreshKey)
	out.JWT.AccessPublicKey = cloneBytes(cfg.JWT.AccessPublicKey)
	out.JWT.RefreshPublicKey = cloneBytes(cfg.JWT.RefreshPublicKey)
	out.Roles.Critical = append([]string(nil), cfg.Roles.Critical...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks structural constraints. Key material is validated by the
// token codec during Build.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.SigningMethod != "hs256" && c.JWT.SigningMethod != "ed25519" {
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.AccessKey) == 0 || len(c.JWT.RefreshKey) == 0 {
		return errors.New("JWT AccessKey and RefreshKey are required")
	}

	// Password
	switch password.Algorithm(c.Password.Algorithm) {
	case password.AlgorithmArgon2id, password.AlgorithmBcrypt:
	default:
		return fmt.Errorf("unsupported password algorithm %q", c.Password.Algorithm)
	}
	if c.Password.MinLength < 1 || c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MinLength must be >= 1 and <= MaxLength")
	}

	// OTP
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.RateLimit < 0 || (c.OTP.RateLimit > 0 && c.OTP.RateWindow <= 0) {
		return errors.New("OTP RateWindow must be > 0 when RateLimit is set")
	}
	if c.OTP.MaxAttempts < 0 {
		return errors.New("OTP MaxAttempts must be >= 0")
	}

	// Security
	if c.Security.MaxLoginFailures < 0 {
		return errors.New("Security MaxLoginFailures must be >= 0")
	}
	if c.Security.MaxLoginFailures > 0 && c.Security.LoginCooldown <= 0 {
		return errors.New("Security LoginCooldown must be > 0 when MaxLoginFailures is set")
	}

	if c.Roles.Ceiling < 0 {
		return errors.New("Roles Ceiling must be >= 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}
	if c.Redis.Prefix == "" {
		return errors.New("Redis Prefix must not be empty")
	}
	return nil
}

func (c *Config) passwordConfig() password.Config {
	limits := password.Limits{MinPasswordBytes: c.Password.MinLength, MaxPasswordBytes: c.Password.MaxLength}
	return password.Config{
		Algorithm: password.Algorithm(c.Password.Algorithm),
		Argon2: password.Argon2Config{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
			Limits:      limits,
		},
		Bcrypt: password.BcryptConfig{
			Cost:   c.Password.BcryptCost,
			Limits: limits,
		},
	}
}

func (c *Config) hierarchy() permission.Hierarchy {
	return permission.Hierarchy{
		Ceiling:  c.Roles.Ceiling,
		Critical: append([]string(nil), c.Roles.Critical...),
	}
}
