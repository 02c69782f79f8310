package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType tags a token with the role it plays. It is carried inside the
// signed payload as a second line of defense next to the distinct keys.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// Config configures a Codec.
type Config struct {
	Access     KeyConfig
	Refresh    KeyConfig
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
	Leeway     time.Duration
	// MaxFutureIAT rejects tokens whose issued-at lies further in the future. Zero means 10 minutes.
	MaxFutureIAT time.Duration
	// Now overrides the clock used for issuing and validating. Nil means time.Now.
	Now func() time.Time
}

// AccessClaims identify the actor. The permission list is deliberately absent;
// it is resolved from the role table at decision time.
type AccessClaims struct {
	UserID      string    `json:"uid"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"name,omitempty"`
	RoleID      string    `json:"rid"`
	RoleName    string    `json:"role,omitempty"`
	Department  string    `json:"dept,omitempty"`
	Team        string    `json:"team,omitempty"`
	Active      bool      `json:"active"`
	Verified    bool      `json:"verified"`
	Type        TokenType `json:"typ"`

	// IssuedAtMillis repeats iat at millisecond precision for revocation cutoffs.
	IssuedAtMillis int64 `json:"iat_ms,omitempty"`
	jwt.RegisteredClaims
}

// Issued returns the issue time, preferring the millisecond claim.
func (c *AccessClaims) Issued() time.Time {
	return issuedAt(c.IssuedAtMillis, c.RegisteredClaims)
}

// RefreshClaims carry only the user id.
type RefreshClaims struct {
	UserID         string    `json:"uid"`
	Type           TokenType `json:"typ"`
	IssuedAtMillis int64     `json:"iat_ms,omitempty"`
	jwt.RegisteredClaims
}

// Issued returns the issue time, preferring the millisecond claim.
func (c *RefreshClaims) Issued() time.Time {
	return issuedAt(c.IssuedAtMillis, c.RegisteredClaims)
}

func issuedAt(ms int64, rc jwt.RegisteredClaims) time.Time {
	if ms > 0 {
		return time.UnixMilli(ms)
	}
	if rc.IssuedAt != nil {
		return rc.IssuedAt.Time
	}
	return time.Time{}
}

// Codec issues and verifies access and refresh tokens with independent keys
// and lifetimes.
type Codec struct {
	access     *Manager
	refresh    *Manager
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewCodec validates cfg and builds both managers. Access and refresh key
// material must differ.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if sameKeyMaterial(cfg.Access, cfg.Refresh) {
		return nil, errors.New("access and refresh tokens must use distinct keys")
	}

	access, err := newManager(TypeAccess, cfg.Access, cfg)
	if err != nil {
		return nil, err
	}
	refresh, err := newManager(TypeRefresh, cfg.Refresh, cfg)
	if err != nil {
		return nil, err
	}

	return &Codec{
		access:     access,
		refresh:    refresh,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess signs claims as an access token. Registered claims are owned by
// the codec: subject, token id and time claims are overwritten.
func (c *Codec) IssueAccess(claims AccessClaims) (string, time.Time, error) {
	if claims.UserID == "" {
		return "", time.Time{}, errors.New("access claims require a user id")
	}
	claims.Type = TypeAccess
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject: claims.UserID,
		ID:      uuid.NewString(),
	}
	now := c.access.now()
	claims.IssuedAtMillis = now.UnixMilli()

	token, err := c.access.sign(&claims, &claims.RegisteredClaims, now, c.accessTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, claims.ExpiresAt.Time, nil
}

// IssueRefresh signs a refresh token for userID.
func (c *Codec) IssueRefresh(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("refresh claims require a user id")
	}
	now := c.refresh.now()
	claims := RefreshClaims{
		UserID:         userID,
		Type:           TypeRefresh,
		IssuedAtMillis: now.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
			ID:      uuid.NewString(),
		},
	}

	token, err := c.refresh.sign(&claims, &claims.RegisteredClaims, now, c.refreshTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return token, claims.ExpiresAt.Time, nil
}

// ParseAccess verifies an access token. Any failure returns ErrInvalidToken.
func (c *Codec) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.access.parse(token, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != TypeAccess || claims.UserID == "" || claims.Subject != claims.UserID {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token. Any failure returns ErrInvalidToken.
func (c *Codec) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.refresh.parse(token, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != TypeRefresh || claims.UserID == "" || claims.Subject != claims.UserID {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
