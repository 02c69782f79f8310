package goIdentity

import "time"

// LintWarning is a configuration choice that is valid but risky.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of Config.Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Code
	}
	return out
}

// Lint reports risky but valid settings. It never fails.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", "JWT leeway above one minute widens the replay window of expired tokens")
	}
	if c.JWT.AccessTTL > 30*time.Minute {
		add("access_ttl_long", "access tokens cannot be revoked without the denylist; keep them short")
	}
	if c.JWT.RefreshTTL > 30*24*time.Hour {
		add("refresh_ttl_long", "refresh tokens live longer than 30 days")
	}
	if c.OTP.RateLimit == 0 {
		add("otp_rate_limit_disabled", "OTP issuance is not rate limited")
	}
	if c.OTP.MaxAttempts == 0 {
		add("otp_attempts_unbounded", "registration challenges accept unlimited guesses")
	}
	if c.Security.MaxLoginFailures == 0 {
		add("login_throttle_disabled", "failed logins are not throttled")
	}
	if c.Social.LinkByEmail {
		add("social_link_by_email", "social logins link to existing accounts by email without confirmation")
	}
	if !c.Revocation.Enabled && c.JWT.AccessTTL > 15*time.Minute {
		add("stateless_long_access", "access tokens outlive logout and deactivation until expiry")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "security events are not audited")
	}
	return ws
}
