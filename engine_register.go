package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/normalize"
	"github.com/MrEthical07/goIdentity/password"
	"go.opentelemetry.io/otel/attribute"
)

// Register creates a user and returns its identity.
//
// The identifier matching req.Provider is required, and a password is
// required for ProviderEmail. Every supplied identifier is probed in one
// store query; any match fails with ErrDuplicateIdentity. Social
// registrations, and phone registrations carrying a valid OTPCode, are
// created verified.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (_ Identity, err error) {
	if e == nil {
		return Identity{}, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "register", attribute.String("auth.provider", string(req.Provider)))
	defer func() { endSpan(span, err) }()

	defer func() {
		if err != nil {
			e.emitAudit(ctx, auditEventRegisterFailure, false, "", req.Provider, err, nil)
		}
	}()

	u, err := e.newUserFromRequest(req)
	if err != nil {
		return Identity{}, err
	}

	probe := IdentityProbe{Email: u.Email, Phone: u.Phone, Username: u.Username, Social: u.Social}
	exists, err := e.store.IdentityExists(ctx, probe)
	if err != nil {
		return Identity{}, storeErr("probe identity", err)
	}
	if exists {
		e.metricInc(MetricRegisterDuplicate)
		return Identity{}, ErrDuplicateIdentity
	}

	var otpExpiresAt time.Time
	if req.Provider == ProviderPhone && req.OTPCode != "" {
		otpExpiresAt, err = e.consumeRegistrationOTP(ctx, u.Phone, req.OTPCode)
		if err != nil {
			return Identity{}, err
		}
		u.Verified = true
	}

	if err := e.create(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			e.metricInc(MetricRegisterDuplicate)
		}
		if !otpExpiresAt.IsZero() {
			e.restoreRegistrationOTP(ctx, u.Phone, req.OTPCode, otpExpiresAt)
		}
		return Identity{}, err
	}

	span.SetAttributes(attribute.String("user.id", u.ID))
	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, u.ID, req.Provider, nil, nil)
	e.logger.DebugContext(ctx, "user registered", "user_id", u.ID, "provider", string(req.Provider))
	return e.identity(u), nil
}

// newUserFromRequest validates and normalizes req into an unsaved user.
func (e *Engine) newUserFromRequest(req RegisterRequest) (*User, error) {
	if !req.TermsAccepted {
		return nil, invalidRequest("terms must be accepted")
	}

	displayName := normalize.DisplayName(req.DisplayName)
	if displayName == "" && req.Provider.IsSocial() {
		displayName = normalize.DisplayName(req.Profile.DisplayName)
	}
	if displayName == "" {
		return nil, invalidRequest("display name required")
	}

	u := &User{
		DisplayName: displayName,
		AvatarURL:   req.Profile.AvatarURL,
		RoleID:      e.defaultRole,
		Active:      true,
	}

	var err error
	if req.Email != "" {
		if u.Email, err = normalize.Email(req.Email); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if req.Phone != "" {
		if u.Phone, err = normalize.Phone(req.Phone); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if req.Username != "" {
		if u.Username, err = normalize.Username(req.Username); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	switch req.Provider {
	case ProviderEmail:
		if u.Email == "" {
			return nil, invalidRequest("email required")
		}
		if req.Password == "" {
			return nil, invalidRequest("password required for email registration")
		}
	case ProviderPhone:
		if u.Phone == "" {
			return nil, invalidRequest("phone required")
		}
	case ProviderUsername:
		if u.Username == "" {
			return nil, invalidRequest("username required")
		}
	case ProviderGoogle, ProviderFacebook, ProviderApple, ProviderMicrosoft:
		if req.Social == nil || req.Social.ExternalID() == "" {
			return nil, invalidRequest("social identity required")
		}
		if req.Social.Provider() != req.Provider {
			return nil, invalidRequest("social identity does not match provider %q", req.Provider)
		}
		u.Social.Link(req.Social)
		u.Verified = true
	default:
		return nil, invalidRequest("unsupported provider %q", req.Provider)
	}

	if req.Password != "" {
		hash, err := e.hasher.Hash(req.Password)
		if err != nil {
			return nil, passwordErr(err)
		}
		u.PasswordHash = hash
	}
	return u, nil
}

// create stamps id and creation time on u and persists it.
func (e *Engine) create(ctx context.Context, u *User) error {
	now := e.now()
	id, err := internal.NewUserID(now)
	if err != nil {
		return fmt.Errorf("generate user id: %w", err)
	}
	u.ID = id
	u.CreatedAt = now
	u.LastSeenAt = now

	if err := e.store.CreateUser(ctx, u); err != nil {
		return storeErr("create user", err)
	}
	return nil
}

func passwordErr(err error) error {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort), errors.Is(err, password.ErrPasswordTooLong):
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	default:
		return fmt.Errorf("hash password: %w", err)
	}
}
