package password

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultMinPasswordBytes is applied when Limits.MinPasswordBytes is zero.
	DefaultMinPasswordBytes = 8
	// DefaultMaxPasswordBytes is applied when Limits.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrUnsupportedHash  = errors.New("unsupported hash format")
)

// Hasher is the one-way secret hasher used by the identity engine.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Limits bounds accepted plaintext length in bytes.
type Limits struct {
	MinPasswordBytes int
	MaxPasswordBytes int
}

func (l Limits) withDefaults() Limits {
	if l.MinPasswordBytes == 0 {
		l.MinPasswordBytes = DefaultMinPasswordBytes
	}
	if l.MaxPasswordBytes == 0 {
		l.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return l
}

func (l Limits) validate() error {
	if l.MinPasswordBytes < 1 {
		return errors.New("password min length must be >= 1")
	}
	if l.MaxPasswordBytes < l.MinPasswordBytes {
		return errors.New("password max length must be >= min length")
	}
	return nil
}

func (l Limits) check(password string) error {
	if len(password) < l.MinPasswordBytes {
		return fmt.Errorf("%w: must be at least %d bytes", ErrPasswordTooShort, l.MinPasswordBytes)
	}
	if len(password) > l.MaxPasswordBytes {
		return fmt.Errorf("%w: must be at most %d bytes", ErrPasswordTooLong, l.MaxPasswordBytes)
	}
	return nil
}

// Algorithm names a hashing scheme.
type Algorithm string

const (
	AlgorithmArgon2id Algorithm = "argon2id"
	AlgorithmBcrypt   Algorithm = "bcrypt"
)

// Config selects the algorithm new hashes are produced with.
type Config struct {
	Algorithm Algorithm
	Argon2    Argon2Config
	Bcrypt    BcryptConfig
}

// Chain hashes with the configured algorithm and verifies hashes of every
// supported algorithm, so a deployment can switch schemes without locking out
// existing users. Hashes of the non-primary scheme always report NeedsUpgrade.
type Chain struct {
	primary   Algorithm
	argon2    *Argon2
	bcrypt    *Bcrypt
	hashWith  Hasher
	algorithm func(string) (Algorithm, bool)
}

// New builds a Chain from cfg. An empty Algorithm selects argon2id.
func New(cfg Config) (*Chain, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmArgon2id
	}

	c := &Chain{
		primary:   cfg.Algorithm,
		argon2:    &Argon2{config: Argon2Config{Limits: Limits{}.withDefaults()}},
		bcrypt:    &Bcrypt{config: BcryptConfig{Limits: bcryptLimits(Limits{})}},
		algorithm: detect,
	}
	switch cfg.Algorithm {
	case AlgorithmArgon2id:
		a, err := NewArgon2(cfg.Argon2)
		if err != nil {
			return nil, err
		}
		c.argon2 = a
		c.hashWith = a
	case AlgorithmBcrypt:
		b, err := NewBcrypt(cfg.Bcrypt)
		if err != nil {
			return nil, err
		}
		c.bcrypt = b
		c.hashWith = b
	default:
		return nil, fmt.Errorf("unsupported password algorithm %q", cfg.Algorithm)
	}
	return c, nil
}

// Algorithm returns the scheme new hashes are produced with.
func (c *Chain) Algorithm() Algorithm { return c.primary }

func (c *Chain) Hash(password string) (string, error) {
	return c.hashWith.Hash(password)
}

func (c *Chain) Verify(password, encodedHash string) (bool, error) {
	h, err := c.verifierFor(encodedHash)
	if err != nil {
		return false, err
	}
	return h.Verify(password, encodedHash)
}

func (c *Chain) NeedsUpgrade(encodedHash string) (bool, error) {
	alg, ok := c.algorithm(encodedHash)
	if !ok {
		return false, ErrUnsupportedHash
	}
	if alg != c.primary {
		return true, nil
	}
	return c.hashWith.NeedsUpgrade(encodedHash)
}

func (c *Chain) verifierFor(encodedHash string) (Hasher, error) {
	alg, ok := c.algorithm(encodedHash)
	if !ok {
		return nil, ErrUnsupportedHash
	}
	switch alg {
	case AlgorithmArgon2id:
		return c.argon2, nil
	case AlgorithmBcrypt:
		return c.bcrypt, nil
	}
	return nil, ErrUnsupportedHash
}

func detect(encodedHash string) (Algorithm, bool) {
	switch {
	case strings.HasPrefix(encodedHash, "$"+algorithmID+"$"):
		return AlgorithmArgon2id, true
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		return AlgorithmBcrypt, true
	}
	return "", false
}
