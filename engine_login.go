package goIdentity

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goIdentity/internal/normalize"
	"go.opentelemetry.io/otel/attribute"
)

// Login authenticates req and returns the identity with a fresh token pair.
//
// Email and username logins check a password. Phone logins consume the
// pending OTP challenge, which also marks the user verified. Social logins
// are handled by LoginSocial. Repeated failures for one identifier trip the
// login throttle and return ErrRateLimited until the cooldown passes.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (_ Session, err error) {
	if e == nil {
		return Session{}, ErrEngineNotReady
	}
	if req.Provider.IsSocial() {
		if req.Social == nil {
			return Session{}, invalidRequest("social identity required")
		}
		if req.Social.Provider() != req.Provider {
			return Session{}, invalidRequest("social identity does not match provider %q", req.Provider)
		}
		return e.LoginSocial(ctx, req.Social, req.Profile)
	}

	ctx, span := e.startSpan(ctx, "login", attribute.String("auth.provider", string(req.Provider)))
	defer func() { endSpan(span, err) }()

	var u *User
	switch req.Provider {
	case ProviderEmail, ProviderUsername:
		u, err = e.loginPassword(ctx, req)
	case ProviderPhone:
		u, err = e.loginPhone(ctx, req)
	default:
		err = invalidRequest("unsupported provider %q", req.Provider)
	}
	if err != nil {
		return Session{}, err
	}

	span.SetAttributes(attribute.String("user.id", u.ID))
	return e.completeLogin(ctx, u, req.Provider)
}

func (e *Engine) loginPassword(ctx context.Context, req LoginRequest) (*User, error) {
	var (
		identifier string
		err        error
	)
	if req.Provider == ProviderEmail {
		identifier, err = normalize.Email(req.Identifier)
	} else {
		identifier, err = normalize.Username(req.Identifier)
	}
	if err != nil {
		return nil, e.loginFailed(ctx, nil, req.Provider, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}

	key := throttleKey(req.Provider, identifier)
	if err := e.checkThrottle(ctx, key); err != nil {
		return nil, e.loginThrottled(ctx, req.Provider, err)
	}

	var u *User
	if req.Provider == ProviderEmail {
		u, err = e.store.FindByEmail(ctx, identifier)
	} else {
		u, err = e.store.FindByUsername(ctx, identifier)
	}
	if err != nil {
		err = storeErr("find user", err)
		if errors.Is(err, ErrNotFound) {
			e.recordFailure(ctx, key)
		}
		return nil, e.loginFailed(ctx, nil, req.Provider, e.credentialErr(err))
	}
	if !u.Active {
		return nil, e.loginFailed(ctx, u, req.Provider, e.credentialErr(ErrDeactivated))
	}

	if req.Password == "" || u.PasswordHash == "" {
		e.recordFailure(ctx, key)
		return nil, e.loginFailed(ctx, u, req.Provider, ErrInvalidCredential)
	}
	ok, err := e.hasher.Verify(req.Password, u.PasswordHash)
	if err != nil {
		e.logger.WarnContext(ctx, "stored password hash unreadable", "user_id", u.ID, "error", err)
	}
	if !ok {
		e.recordFailure(ctx, key)
		return nil, e.loginFailed(ctx, u, req.Provider, ErrInvalidCredential)
	}

	e.resetThrottle(ctx, key)
	e.upgradePassword(ctx, u, req.Password)
	return u, nil
}

func (e *Engine) loginPhone(ctx context.Context, req LoginRequest) (*User, error) {
	phone, err := normalize.Phone(req.Identifier)
	if err != nil {
		return nil, e.loginFailed(ctx, nil, ProviderPhone, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}

	key := throttleKey(ProviderPhone, phone)
	if err := e.checkThrottle(ctx, key); err != nil {
		return nil, e.loginThrottled(ctx, ProviderPhone, err)
	}

	u, err := e.consumeUserOTP(ctx, phone, req.OTPCode)
	if err != nil {
		e.afterOTPFailure(ctx, key, u, err)
		return nil, e.loginFailed(ctx, u, ProviderPhone, err)
	}
	e.resetThrottle(ctx, key)
	e.metricInc(MetricOTPVerified)
	return u, nil
}

// completeLogin touches last-seen and issues tokens for an authenticated user.
func (e *Engine) completeLogin(ctx context.Context, u *User, provider Provider) (Session, error) {
	e.touch(ctx, u)

	id := e.identity(u)
	tokens, err := e.IssueTokens(ctx, id)
	if err != nil {
		return Session{}, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, u.ID, provider, nil, nil)
	return Session{Identity: id, Tokens: tokens}, nil
}

// upgradePassword rehashes with the current parameters when the stored hash
// is outdated. Failure leaves the old hash in place.
func (e *Engine) upgradePassword(ctx context.Context, u *User, plain string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.hasher.NeedsUpgrade(u.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.hasher.Hash(plain)
	if err != nil {
		e.logger.WarnContext(ctx, "password rehash failed", "user_id", u.ID, "error", err)
		return
	}
	if err := e.store.SetPasswordHash(ctx, u.ID, hash); err != nil {
		e.logger.WarnContext(ctx, "password rehash not stored", "user_id", u.ID, "error", err)
		return
	}
	u.PasswordHash = hash
}

// credentialErr collapses account-state failures into ErrInvalidCredential
// when uniform credential errors are configured.
func (e *Engine) credentialErr(err error) error {
	if !e.config.Security.UniformCredentialErrors {
		return err
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDeactivated) {
		return ErrInvalidCredential
	}
	return err
}

func (e *Engine) loginFailed(ctx context.Context, u *User, provider Provider, err error) error {
	userID := ""
	if u != nil {
		userID = u.ID
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, provider, err, nil)
	return err
}

func (e *Engine) loginThrottled(ctx context.Context, provider Provider, err error) error {
	if errors.Is(err, ErrRateLimited) {
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", provider, err, nil)
		e.logger.WarnContext(ctx, "login throttled", "provider", string(provider))
	}
	return err
}
