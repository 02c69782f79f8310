package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/permission"
	"go.opentelemetry.io/otel/attribute"
)

// Claims is the verified content of an access token.
type Claims struct {
	UserID      string
	Email       string
	Phone       string
	Username    string
	DisplayName string
	RoleID      string
	RoleName    string
	Department  string
	Team        string
	Active      bool
	Verified    bool
	TokenID     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Actor returns the permission-engine view of the token holder.
func (c *Claims) Actor() permission.Actor {
	return permission.Actor{
		UserID:     c.UserID,
		RoleID:     c.RoleID,
		Department: c.Department,
		Team:       c.Team,
	}
}

func claimsFromJWT(c *jwt.AccessClaims) *Claims {
	out := &Claims{
		UserID:      c.UserID,
		Email:       c.Email,
		Phone:       c.Phone,
		Username:    c.Username,
		DisplayName: c.DisplayName,
		RoleID:      c.RoleID,
		RoleName:    c.RoleName,
		Department:  c.Department,
		Team:        c.Team,
		Active:      c.Active,
		Verified:    c.Verified,
		TokenID:     c.ID,
		IssuedAt:    c.Issued(),
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}

func accessClaims(id Identity) jwt.AccessClaims {
	return jwt.AccessClaims{
		UserID:      id.ID,
		Email:       id.Email,
		Phone:       id.Phone,
		Username:    id.Username,
		DisplayName: id.DisplayName,
		RoleID:      id.RoleID,
		RoleName:    id.RoleName,
		Department:  id.Department,
		Team:        id.Team,
		Active:      id.Active,
		Verified:    id.Verified,
	}
}

/*
====================================
ISSUE
====================================
*/

// IssueTokens mints an access and refresh token for id. No store access is
// performed; the caller vouches for id.
func (e *Engine) IssueTokens(ctx context.Context, id Identity) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	if id.ID == "" {
		return TokenPair{}, invalidRequest("identity id required")
	}

	access, accessExp, err := e.codec.IssueAccess(accessClaims(id))
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	refresh, refreshExp, err := e.codec.IssueRefresh(id.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}

	e.metricInc(MetricTokenIssued)
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

/*
====================================
VERIFY
====================================
*/

// VerifyToken checks an access token and returns its claims. Every failure,
// including a denylisted token, is reported as ErrInvalidToken. When
// revocation is enabled and Redis cannot be reached, ErrUnavailable is
// returned so callers fail closed.
func (e *Engine) VerifyToken(ctx context.Context, token string) (*Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricVerifyTokenLatency, time.Since(start))
	}()

	parsed, err := e.codec.ParseAccess(token)
	if err != nil {
		e.metricInc(MetricTokenInvalid)
		return nil, ErrInvalidToken
	}
	claims := claimsFromJWT(parsed)

	if e.denylist != nil {
		revoked, err := e.denylist.Revoked(ctx, claims.TokenID, claims.UserID, claims.IssuedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if revoked {
			e.metricInc(MetricTokenInvalid)
			return nil, ErrInvalidToken
		}
	}
	return claims, nil
}

/*
====================================
REFRESH
====================================
*/

// RefreshToken mints a new access token from a refresh token. The user is
// re-read so the new claims reflect the current role and flags.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken string) (_ TokenPair, err error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "refresh_token")
	defer func() { endSpan(span, err) }()

	userID := ""
	defer func() {
		if err != nil {
			e.emitAudit(ctx, auditEventTokenRefreshError, false, userID, "", err, nil)
		}
	}()

	parsed, err := e.codec.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricTokenInvalid)
		return TokenPair{}, ErrInvalidToken
	}
	userID = parsed.UserID
	span.SetAttributes(attribute.String("user.id", userID))

	if e.denylist != nil {
		revoked, err := e.denylist.Revoked(ctx, parsed.ID, userID, parsed.Issued())
		if err != nil {
			return TokenPair{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if revoked {
			e.metricInc(MetricTokenInvalid)
			return TokenPair{}, ErrInvalidToken
		}
	}

	u, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return TokenPair{}, storeErr("find user", err)
	}
	if !u.Active {
		return TokenPair{}, ErrDeactivated
	}

	access, exp, err := e.codec.IssueAccess(accessClaims(e.identity(u)))
	if err != nil {
		return TokenPair{}, fmt.Errorf("refresh token: %w", err)
	}

	e.metricInc(MetricTokenRefreshed)
	e.emitAudit(ctx, auditEventTokenRefreshed, true, userID, "", nil, nil)
	e.logger.DebugContext(ctx, "access token refreshed", "user_id", userID)
	return TokenPair{
		AccessToken:     access,
		AccessExpiresAt: exp,
	}, nil
}

/*
====================================
LOGOUT AND REVOCATION
====================================
*/

// Logout records last-seen for userID. With revocation enabled it also
// denies every token issued to the user before now; otherwise it is advisory
// and clients are expected to discard their tokens.
func (e *Engine) Logout(ctx context.Context, userID string) (err error) {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "logout", attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return invalidRequest("user id required")
	}

	now := e.now()
	if err := e.store.TouchLastSeen(ctx, userID, now); err != nil {
		return storeErr("touch last seen", err)
	}
	if e.denylist != nil {
		if err := e.denylist.RevokeUserBefore(ctx, userID, now, e.codec.RefreshTTL()); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, userID, "", nil, nil)
	return nil
}

// RevokeToken denies a single access token until it would have expired.
// It fails with ErrInvalidRequest when revocation is disabled.
func (e *Engine) RevokeToken(ctx context.Context, accessToken string) (err error) {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "revoke_token")
	defer func() { endSpan(span, err) }()

	if e.denylist == nil {
		return invalidRequest("token revocation is disabled")
	}

	parsed, err := e.codec.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrInvalidToken) {
			return ErrInvalidToken
		}
		return err
	}

	ttl := parsed.ExpiresAt.Time.Sub(e.now())
	if err := e.denylist.RevokeToken(ctx, parsed.ID, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditEventTokenRevoked, true, parsed.UserID, "", nil, func() map[string]string {
		return map[string]string{"token_id": parsed.ID}
	})
	return nil
}
