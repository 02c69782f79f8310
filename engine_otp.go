package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/normalize"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/internal/stores"
	"go.opentelemetry.io/otel/attribute"
)

// IssueOTP generates a code for phone and hands it to the Sender. The code is
// never returned.
//
// For OTPPurposeRegister the phone must not belong to any user and the
// challenge is kept out of band until Register or VerifyRegistrationOTP
// consumes it. For the other purposes the phone must belong to an active user
// and the challenge replaces any pending one on that user: login and verify
// share that single slot, so the latest code completes either flow, and both
// mark the phone verified. Only requests that store a challenge count against
// the issuance window.
func (e *Engine) IssueOTP(ctx context.Context, phone string, purpose OTPPurpose) (err error) {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "issue_otp", attribute.String("otp.purpose", string(purpose)))
	defer func() { endSpan(span, err) }()

	userID := ""
	defer func() {
		if err != nil && !errors.Is(err, ErrRateLimited) {
			e.emitAudit(ctx, auditEventOTPFailure, false, userID, ProviderPhone, err, func() map[string]string {
				return map[string]string{"purpose": string(purpose), "stage": "issue"}
			})
		}
	}()

	switch purpose {
	case OTPPurposeLogin, OTPPurposeVerify, OTPPurposeRegister:
	default:
		return invalidRequest("unknown otp purpose %q", purpose)
	}

	phone, err = normalize.Phone(phone)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	now := e.now()
	var u *User
	if purpose == OTPPurposeRegister {
		exists, err := e.store.IdentityExists(ctx, IdentityProbe{Phone: phone})
		if err != nil {
			return storeErr("probe phone", err)
		}
		if exists {
			return ErrDuplicateIdentity
		}
	} else {
		u, err = e.store.FindByPhone(ctx, phone)
		if err != nil {
			err = storeErr("find by phone", err)
			if errors.Is(err, ErrNotFound) && e.config.Security.UniformCredentialErrors {
				// Indistinguishable from a delivered code, window included.
				return e.allowOTP(ctx, phone, purpose, now)
			}
			return err
		}
		userID = u.ID
		if !u.Active {
			return ErrDeactivated
		}
	}

	if err := e.allowOTP(ctx, phone, purpose, now); err != nil {
		return err
	}

	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	hash := internal.HashOTP(code)
	expiresAt := now.Add(e.config.OTP.TTL)

	if u == nil {
		if err := e.challenges.Save(ctx, string(purpose), phone, hash, now, expiresAt); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	} else if err := e.store.SetOTPChallenge(ctx, u.ID, hash, expiresAt); err != nil {
		return storeErr("set otp challenge", err)
	}

	if err := e.sender.Send(ctx, phone, code, purpose); err != nil {
		return fmt.Errorf("%w: deliver otp: %v", ErrUnavailable, err)
	}

	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, auditEventOTPIssued, true, userID, ProviderPhone, nil, func() map[string]string {
		return map[string]string{"purpose": string(purpose)}
	})
	return nil
}

func (e *Engine) allowOTP(ctx context.Context, phone string, purpose OTPPurpose, now time.Time) error {
	err := rateErr(e.limiter.AllowOTP(ctx, phone, now))
	if errors.Is(err, ErrRateLimited) {
		e.metricInc(MetricOTPRateLimited)
		e.emitAudit(ctx, auditEventOTPRateLimited, false, "", ProviderPhone, err, nil)
		e.logger.WarnContext(ctx, "otp rate limit reached", "purpose", string(purpose))
	}
	return err
}

// ConsumeOTP checks code against the pending challenge of the user owning
// phone. On a match the challenge is cleared and the user marked verified in
// one store write, so a second call with the same code fails with
// ErrOTPNotIssued.
func (e *Engine) ConsumeOTP(ctx context.Context, phone, code string) error {
	_, err := e.VerifyOTP(ctx, phone, code)
	return err
}

// VerifyOTP is ConsumeOTP returning the now-verified identity.
func (e *Engine) VerifyOTP(ctx context.Context, phone, code string) (_ Identity, err error) {
	if e == nil {
		return Identity{}, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "verify_otp")
	defer func() { endSpan(span, err) }()

	phone, err = normalize.Phone(phone)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	key := throttleKey(ProviderPhone, phone)
	if err := e.checkThrottle(ctx, key); err != nil {
		return Identity{}, err
	}

	u, err := e.consumeUserOTP(ctx, phone, code)
	if err != nil {
		e.afterOTPFailure(ctx, key, u, err)
		return Identity{}, err
	}
	e.resetThrottle(ctx, key)

	e.metricInc(MetricOTPVerified)
	e.emitAudit(ctx, auditEventOTPVerified, true, u.ID, ProviderPhone, nil, nil)
	return e.identity(u), nil
}

// VerifyRegistrationOTP consumes the out-of-band challenge issued with
// OTPPurposeRegister. Register calls it when a phone registration carries an
// OTP code.
func (e *Engine) VerifyRegistrationOTP(ctx context.Context, phone, code string) (err error) {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "verify_registration_otp")
	defer func() { endSpan(span, err) }()

	phone, err = normalize.Phone(phone)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	_, err = e.consumeRegistrationOTP(ctx, phone, code)
	return err
}

// consumeRegistrationOTP takes the registration challenge for an already
// normalized phone and returns the expiry it had, so Register can put it back
// if the user cannot be created.
func (e *Engine) consumeRegistrationOTP(ctx context.Context, phone, code string) (time.Time, error) {
	expiresAt, err := e.challenges.Consume(ctx, string(OTPPurposeRegister), phone, internal.HashOTP(code), e.now())
	err = challengeErr(err)
	if err != nil {
		e.metricInc(MetricOTPFailed)
		e.emitAudit(ctx, auditEventOTPFailure, false, "", ProviderPhone, err, func() map[string]string {
			return map[string]string{"purpose": string(OTPPurposeRegister)}
		})
		return time.Time{}, err
	}

	e.metricInc(MetricOTPVerified)
	e.emitAudit(ctx, auditEventOTPVerified, true, "", ProviderPhone, nil, func() map[string]string {
		return map[string]string{"purpose": string(OTPPurposeRegister)}
	})
	return expiresAt, nil
}

// restoreRegistrationOTP puts back a challenge consumed by a registration
// that did not complete. Failures only cost the caller a new code.
func (e *Engine) restoreRegistrationOTP(ctx context.Context, phone, code string, expiresAt time.Time) {
	restored, err := e.challenges.Restore(ctx, string(OTPPurposeRegister), phone, internal.HashOTP(code), e.now(), expiresAt)
	if err != nil {
		e.logger.WarnContext(ctx, "registration otp not restored", "error", err)
		return
	}
	if restored {
		e.logger.DebugContext(ctx, "registration otp restored after failed create")
	}
}

// consumeUserOTP resolves the owner of phone and consumes its challenge. The
// returned user reflects the store write. On failure the user is returned
// when it was found, for audit attribution.
func (e *Engine) consumeUserOTP(ctx context.Context, phone, code string) (*User, error) {
	u, err := e.store.FindByPhone(ctx, phone)
	if err != nil {
		return nil, storeErr("find by phone", err)
	}
	if !u.Active {
		return u, ErrDeactivated
	}
	if code == "" {
		return u, ErrOTPMismatch
	}

	now := e.now()
	if err := e.store.ConsumeOTPChallenge(ctx, u.ID, internal.HashOTP(code), now); err != nil {
		return u, storeErr("consume otp", err)
	}
	u.Verified = true
	u.OTPHash = ""
	u.OTPExpiresAt = time.Time{}
	return u, nil
}

func (e *Engine) afterOTPFailure(ctx context.Context, key string, u *User, err error) {
	userID := ""
	if u != nil {
		userID = u.ID
	}
	if errors.Is(err, ErrOTPMismatch) {
		e.recordFailure(ctx, key)
	}
	e.metricInc(MetricOTPFailed)
	e.emitAudit(ctx, auditEventOTPFailure, false, userID, ProviderPhone, err, nil)
}

// challengeErr maps ChallengeStore outcomes onto the OTP taxonomy.
func challengeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrChallengeNotFound):
		return ErrOTPNotIssued
	case errors.Is(err, stores.ErrChallengeMismatch):
		return ErrOTPMismatch
	case errors.Is(err, stores.ErrChallengeExpired):
		return ErrOTPExpired
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

/*
====================================
THROTTLE
====================================
*/

func throttleKey(p Provider, identifier string) string {
	return string(p) + ":" + identifier
}

func (e *Engine) checkThrottle(ctx context.Context, key string) error {
	err := rateErr(e.limiter.CheckLogin(ctx, key))
	if errors.Is(err, ErrRateLimited) {
		e.metricInc(MetricLoginRateLimited)
	}
	return err
}

func (e *Engine) recordFailure(ctx context.Context, key string) {
	if err := e.limiter.IncrementLogin(ctx, key); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		e.logger.WarnContext(ctx, "record login failure", "error", err)
	}
}

func (e *Engine) resetThrottle(ctx context.Context, key string) {
	if err := e.limiter.ResetLogin(ctx, key); err != nil {
		e.logger.WarnContext(ctx, "reset login throttle", "error", err)
	}
}
