package goIdentity

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig is the environment surface of Config. Unset variables keep the
// value already present in the target Config.
type envConfig struct {
	SigningMethod    string        `env:"JWT_SIGNING_METHOD"`
	AccessSecret     string        `env:"JWT_ACCESS_SECRET"`
	RefreshSecret    string        `env:"JWT_REFRESH_SECRET"`
	AccessPublicKey  string        `env:"JWT_ACCESS_PUBLIC_KEY"`
	RefreshPublicKey string        `env:"JWT_REFRESH_PUBLIC_KEY"`
	AccessTTL        time.Duration `env:"JWT_ACCESS_TTL"`
	RefreshTTL       time.Duration `env:"JWT_REFRESH_TTL"`
	Issuer           string        `env:"JWT_ISSUER"`
	Audience         string        `env:"JWT_AUDIENCE"`
	Leeway           time.Duration `env:"JWT_LEEWAY"`

	PasswordAlgorithm string `env:"PASSWORD_ALGORITHM"`
	PasswordMemory    uint32 `env:"PASSWORD_MEMORY_KB"`
	PasswordTime      uint32 `env:"PASSWORD_TIME"`
	BcryptCost        int    `env:"PASSWORD_BCRYPT_COST"`

	OTPTTL         time.Duration `env:"OTP_TTL"`
	OTPRateLimit   *int          `env:"OTP_RATE_LIMIT"`
	OTPRateWindow  time.Duration `env:"OTP_RATE_WINDOW"`
	OTPMaxAttempts *int          `env:"OTP_MAX_ATTEMPTS"`

	UniformCredentialErrors *bool         `env:"UNIFORM_CREDENTIAL_ERRORS"`
	MaxLoginFailures        *int          `env:"MAX_LOGIN_FAILURES"`
	LoginCooldown           time.Duration `env:"LOGIN_COOLDOWN"`
	SocialLinkByEmail       *bool         `env:"SOCIAL_LINK_BY_EMAIL"`
	RevocationEnabled       *bool         `env:"REVOCATION_ENABLED"`
	AuditEnabled            *bool         `env:"AUDIT_ENABLED"`
	MetricsEnabled          *bool         `env:"METRICS_ENABLED"`
	RedisPrefix             string        `env:"REDIS_PREFIX"`
	DefaultRole             string        `env:"DEFAULT_ROLE"`
	CriticalRoles           []string      `env:"CRITICAL_ROLES" envSeparator:","`
}

// EnvPrefix is prepended to every variable read by LoadConfigFromEnv.
const EnvPrefix = "IDENTITY_"

// LoadConfigFromEnv overlays IDENTITY_* environment variables on base.
// Secrets may be given raw or as "base64:<data>".
func LoadConfigFromEnv(base Config) (Config, error) {
	var e envConfig
	if err := env.ParseWithOptions(&e, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := cloneConfig(base)
	setString(&cfg.JWT.SigningMethod, e.SigningMethod)
	for _, kv := range []struct {
		dst *[]byte
		raw string
	}{
		{&cfg.JWT.AccessKey, e.AccessSecret},
		{&cfg.JWT.RefreshKey, e.RefreshSecret},
		{&cfg.JWT.AccessPublicKey, e.AccessPublicKey},
		{&cfg.JWT.RefreshPublicKey, e.RefreshPublicKey},
	} {
		if kv.raw == "" {
			continue
		}
		b, err := decodeSecret(kv.raw)
		if err != nil {
			return Config{}, err
		}
		*kv.dst = b
	}
	setDuration(&cfg.JWT.AccessTTL, e.AccessTTL)
	setDuration(&cfg.JWT.RefreshTTL, e.RefreshTTL)
	setString(&cfg.JWT.Issuer, e.Issuer)
	setString(&cfg.JWT.Audience, e.Audience)
	setDuration(&cfg.JWT.Leeway, e.Leeway)

	setString(&cfg.Password.Algorithm, e.PasswordAlgorithm)
	if e.PasswordMemory > 0 {
		cfg.Password.Memory = e.PasswordMemory
	}
	if e.PasswordTime > 0 {
		cfg.Password.Time = e.PasswordTime
	}
	if e.BcryptCost > 0 {
		cfg.Password.BcryptCost = e.BcryptCost
	}

	setDuration(&cfg.OTP.TTL, e.OTPTTL)
	setDuration(&cfg.OTP.RateWindow, e.OTPRateWindow)
	setPtr(&cfg.OTP.RateLimit, e.OTPRateLimit)
	setPtr(&cfg.OTP.MaxAttempts, e.OTPMaxAttempts)

	setPtr(&cfg.Security.UniformCredentialErrors, e.UniformCredentialErrors)
	setPtr(&cfg.Security.MaxLoginFailures, e.MaxLoginFailures)
	setDuration(&cfg.Security.LoginCooldown, e.LoginCooldown)
	setPtr(&cfg.Social.LinkByEmail, e.SocialLinkByEmail)
	setPtr(&cfg.Revocation.Enabled, e.RevocationEnabled)
	setPtr(&cfg.Audit.Enabled, e.AuditEnabled)
	setPtr(&cfg.Metrics.Enabled, e.MetricsEnabled)
	setString(&cfg.Redis.Prefix, e.RedisPrefix)
	setString(&cfg.Roles.DefaultRole, e.DefaultRole)
	if len(e.CriticalRoles) > 0 {
		cfg.Roles.Critical = e.CriticalRoles
	}
	return cfg, nil
}

func decodeSecret(raw string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(raw, "base64:"); ok {
		b, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("decode base64 secret: %w", err)
		}
		return b, nil
	}
	return []byte(raw), nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
