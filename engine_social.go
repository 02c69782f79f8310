package goIdentity

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goIdentity/internal/normalize"
	"go.opentelemetry.io/otel/attribute"
)

// LoginSocial signs in with an external identity.
//
// Resolution order is fixed: the user already linked to id wins; otherwise,
// when Social.LinkByEmail is set, the user owning profile.Email gets id linked
// in place; otherwise a verified user is created from profile. A user whose
// slot for this provider holds a different external id is never relinked and
// the call fails with ErrDuplicateIdentity.
func (e *Engine) LoginSocial(ctx context.Context, id SocialIdentity, profile ProfileHints) (_ Session, err error) {
	if e == nil {
		return Session{}, ErrEngineNotReady
	}
	if id == nil || id.ExternalID() == "" {
		return Session{}, invalidRequest("social identity required")
	}
	provider := id.Provider()

	ctx, span := e.startSpan(ctx, "login_social", attribute.String("auth.provider", string(provider)))
	defer func() { endSpan(span, err) }()

	u, err := e.resolveSocial(ctx, id, profile)
	if err != nil {
		return Session{}, e.loginFailed(ctx, u, provider, err)
	}
	if !u.Active {
		return Session{}, e.loginFailed(ctx, u, provider, ErrDeactivated)
	}

	span.SetAttributes(attribute.String("user.id", u.ID))
	return e.completeLogin(ctx, u, provider)
}

func (e *Engine) resolveSocial(ctx context.Context, id SocialIdentity, profile ProfileHints) (*User, error) {
	u, err := e.store.FindBySocial(ctx, id)
	if err == nil {
		return u, nil
	}
	if err = storeErr("find by social", err); !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	email := ""
	if profile.Email != "" {
		if email, err = normalize.Email(profile.Email); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	if email != "" {
		owner, err := e.store.FindByEmail(ctx, email)
		switch err = storeErr("find by email", err); {
		case err == nil:
			if !e.config.Social.LinkByEmail {
				return nil, ErrDuplicateIdentity
			}
			return e.linkSocial(ctx, owner, id)
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}

	return e.createSocial(ctx, id, email, profile)
}

// linkSocial attaches id to u unless u already holds another id for the
// same provider.
func (e *Engine) linkSocial(ctx context.Context, u *User, id SocialIdentity) (*User, error) {
	if linked := u.Social.Linked(id); linked != "" && linked != id.ExternalID() {
		return u, ErrDuplicateIdentity
	}
	if !u.Active {
		return u, ErrDeactivated
	}
	if err := e.store.LinkSocial(ctx, u.ID, id); err != nil {
		return u, storeErr("link social", err)
	}
	u.Social.Link(id)

	e.metricInc(MetricSocialLinked)
	e.emitAudit(ctx, auditEventSocialLinked, true, u.ID, id.Provider(), nil, func() map[string]string {
		return map[string]string{"matched_by": "email"}
	})
	e.logger.WarnContext(ctx, "social identity linked by email match", "user_id", u.ID, "provider", string(id.Provider()))
	return u, nil
}

func (e *Engine) createSocial(ctx context.Context, id SocialIdentity, email string, profile ProfileHints) (*User, error) {
	displayName := normalize.DisplayName(profile.DisplayName)
	if displayName == "" {
		displayName = string(id.Provider()) + " user"
	}

	u := &User{
		Email:       email,
		DisplayName: displayName,
		AvatarURL:   profile.AvatarURL,
		RoleID:      e.defaultRole,
		Active:      true,
		Verified:    true,
	}
	u.Social.Link(id)

	if err := e.create(ctx, u); err != nil {
		if !errors.Is(err, ErrDuplicateIdentity) {
			return nil, err
		}
		// A concurrent first login may have created the same link.
		existing, findErr := e.store.FindBySocial(ctx, id)
		if findErr != nil {
			return nil, err
		}
		return existing, nil
	}

	e.metricInc(MetricSocialCreated)
	e.emitAudit(ctx, auditEventSocialCreated, true, u.ID, id.Provider(), nil, nil)
	return u, nil
}
