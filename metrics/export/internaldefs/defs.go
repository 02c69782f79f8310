package internaldefs

import (
	goIdentity "github.com/MrEthical07/goIdentity"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter.
var CounterDefs = []CounterDef{
	{ID: goIdentity.MetricRegisterSuccess, Name: "goidentity_register_success_total", Help: "Successful registrations."},
	{ID: goIdentity.MetricRegisterDuplicate, Name: "goidentity_register_duplicate_total", Help: "Registrations rejected because an identifier is taken."},
	{ID: goIdentity.MetricLoginSuccess, Name: "goidentity_login_success_total", Help: "Successful logins."},
	{ID: goIdentity.MetricLoginFailure, Name: "goidentity_login_failure_total", Help: "Failed logins."},
	{ID: goIdentity.MetricLoginRateLimited, Name: "goidentity_login_rate_limited_total", Help: "Logins refused by the failure throttle."},
	{ID: goIdentity.MetricSocialLinked, Name: "goidentity_social_linked_total", Help: "External identities linked to existing users by email."},
	{ID: goIdentity.MetricSocialCreated, Name: "goidentity_social_created_total", Help: "Users created from a social login."},
	{ID: goIdentity.MetricOTPIssued, Name: "goidentity_otp_issued_total", Help: "One-time codes sent."},
	{ID: goIdentity.MetricOTPRateLimited, Name: "goidentity_otp_rate_limited_total", Help: "Code requests refused by the per-phone limit."},
	{ID: goIdentity.MetricOTPVerified, Name: "goidentity_otp_verified_total", Help: "Codes consumed successfully."},
	{ID: goIdentity.MetricOTPFailed, Name: "goidentity_otp_failed_total", Help: "Failed code checks."},
	{ID: goIdentity.MetricTokenIssued, Name: "goidentity_token_issued_total", Help: "Access and refresh pairs minted."},
	{ID: goIdentity.MetricTokenRefreshed, Name: "goidentity_token_refreshed_total", Help: "Access tokens minted from a refresh token."},
	{ID: goIdentity.MetricTokenInvalid, Name: "goidentity_token_invalid_total", Help: "Tokens rejected on verification."},
	{ID: goIdentity.MetricTokenRevoked, Name: "goidentity_token_revoked_total", Help: "Tokens added to the denylist."},
	{ID: goIdentity.MetricLogout, Name: "goidentity_logout_total", Help: "Logouts."},
	{ID: goIdentity.MetricAuthorizeAllowed, Name: "goidentity_authorize_allowed_total", Help: "Authorization checks that allowed."},
	{ID: goIdentity.MetricAuthorizeDenied, Name: "goidentity_authorize_denied_total", Help: "Authorization checks that denied."},
	{ID: goIdentity.MetricRoleChanged, Name: "goidentity_role_changed_total", Help: "Role assignments and role table edits."},
	{ID: goIdentity.MetricAccountDeactivated, Name: "goidentity_account_deactivated_total", Help: "Account deactivations."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goIdentity.MetricVerifyTokenLatency, Name: "goidentity_verify_token_latency_seconds", Help: "VerifyToken latency."},
}

// HistogramBounds are the Prometheus "le" labels of the engine buckets.
var HistogramBounds = []string{
	"0.001",
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"+Inf",
}

// HistogramUpperBounds are the finite bucket bounds in seconds; the last
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}

// NormalizeBuckets pads or truncates raw to the engine bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
