package jwt

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the algorithm a Manager signs and verifies with.
type SigningMethod string

const (
	// MethodHS256 signs with a shared HMAC-SHA256 secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key and verifies with its public key.
	MethodEd25519 SigningMethod = "ed25519"
)

// MinSecretLength is the shortest HMAC secret a Manager accepts.
const MinSecretLength = 32

// ErrInvalidToken is returned for every parse failure. Callers never learn whether
// a token was malformed, expired, forged or of the wrong type.
var ErrInvalidToken = errors.New("invalid token")

// KeyConfig holds the key material of one token kind.
type KeyConfig struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Manager signs and verifies a single kind of token. Access and refresh tokens
// are each handled by their own Manager so that their keys never mix.
//
// Manager instances are intended to be configured during initialization and then treated as immutable.
type Manager struct {
	kind         TokenType
	keys         KeyConfig
	issuer       string
	audience     string
	leeway       time.Duration
	maxFutureIAT time.Duration
	now          func() time.Time
}

func newManager(kind TokenType, keys KeyConfig, cfg Config) (*Manager, error) {
	if err := validateKeys(keys); err != nil {
		return nil, fmt.Errorf("%s key: %w", kind, err)
	}
	keys.KeyID = strings.TrimSpace(keys.KeyID)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		kind:         kind,
		keys:         keys,
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		leeway:       cfg.Leeway,
		maxFutureIAT: cfg.MaxFutureIAT,
		now:          now,
	}, nil
}

func validateKeys(keys KeyConfig) error {
	switch keys.SigningMethod {
	case MethodHS256:
		if len(keys.PrivateKey) < MinSecretLength {
			return fmt.Errorf("hs256 secret must be at least %d bytes", MinSecretLength)
		}
	case MethodEd25519:
		if len(keys.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(keys.PrivateKey); err != nil {
				return err
			}
		}
		if len(keys.PublicKey) > 0 {
			if _, err := parseEdPublicKey(keys.PublicKey); err != nil {
				return err
			}
		}
		if len(keys.VerifyKeys) == 0 && len(keys.PublicKey) == 0 {
			return errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range keys.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return errors.New("unsupported signing method")
	}
	if keys.KeyID != "" && len(keys.VerifyKeys) > 0 {
		if _, ok := keys.VerifyKeys[keys.KeyID]; !ok {
			return errors.New("KeyID is not present in VerifyKeys")
		}
	}
	return nil
}

// sameKeyMaterial reports whether two key configs could verify each other's tokens.
func sameKeyMaterial(a, b KeyConfig) bool {
	if a.SigningMethod != b.SigningMethod {
		return false
	}
	if len(a.PrivateKey) > 0 && bytes.Equal(a.PrivateKey, b.PrivateKey) {
		return true
	}
	return len(a.PublicKey) > 0 && bytes.Equal(a.PublicKey, b.PublicKey)
}

// sign stamps the registered claims owned by the manager at now and returns
// the compact serialization.
func (m *Manager) sign(claims jwt.Claims, registered *jwt.RegisteredClaims, now time.Time, ttl time.Duration) (string, error) {
	registered.IssuedAt = jwt.NewNumericDate(now)
	registered.NotBefore = jwt.NewNumericDate(now)
	registered.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	registered.Issuer = m.issuer
	if m.audience != "" {
		registered.Audience = jwt.ClaimStrings{m.audience}
	}

	token := jwt.NewWithClaims(m.method(), claims)
	if m.keys.KeyID != "" {
		token.Header["kid"] = m.keys.KeyID
	}

	signKey, err := m.signKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(signKey)
}

// parse decodes into claims after checking signature, algorithm, issuer,
// audience and time claims. Exported callers collapse the error to ErrInvalidToken.
func (m *Manager) parse(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.leeway > 0 {
		options = append(options, jwt.WithLeeway(m.leeway))
	}
	if m.issuer != "" {
		options = append(options, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		options = append(options, jwt.WithAudience(m.audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		if len(m.keys.VerifyKeys) > 0 {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			key, ok := m.keys.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return m.keyBytesToVerifyKey(key)
		}

		if m.keys.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != m.keys.KeyID {
				return nil, errors.New("unknown kid")
			}
		}

		return m.verifyKey()
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return err
	}
	if iat != nil && m.maxFutureIAT > 0 && iat.Time.After(m.now().Add(m.maxFutureIAT)) {
		return errors.New("token iat too far in the future")
	}
	return nil
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.keys.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.keys.SigningMethod {
	case MethodHS256:
		return m.keys.PrivateKey, nil
	default:
		return parseEdPrivateKey(m.keys.PrivateKey)
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.keys.SigningMethod {
	case MethodHS256:
		return m.keys.PrivateKey, nil
	default:
		return parseEdPublicKey(m.keys.PublicKey)
	}
}

func (m *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch m.keys.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
