package goIdentity

import (
	"context"
)

const (
	auditEventRegisterSuccess   = "register_success"
	auditEventRegisterFailure   = "register_failure"
	auditEventLoginSuccess      = "login_success"
	auditEventLoginFailure      = "login_failure"
	auditEventLoginRateLimited  = "login_rate_limited"
	auditEventSocialLinked      = "social_linked"
	auditEventSocialCreated     = "social_created"
	auditEventOTPIssued         = "otp_issued"
	auditEventOTPRateLimited    = "otp_rate_limited"
	auditEventOTPVerified       = "otp_verified"
	auditEventOTPFailure        = "otp_failure"
	auditEventTokenRefreshed    = "token_refreshed"
	auditEventTokenRefreshError = "token_refresh_failure"
	auditEventTokenRevoked      = "token_revoked"
	auditEventLogout            = "logout"
	auditEventRoleChanged       = "role_changed"
	auditEventRoleChangeDenied  = "role_change_denied"
	auditEventDeactivated       = "account_deactivated"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	provider Provider,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Provider:  string(provider),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = string(KindOf(err))
	}

	e.audit.Emit(ctx, event)
}
