package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptMaxBytes is the input length bcrypt actually consumes.
const bcryptMaxBytes = 72

// BcryptConfig holds the bcrypt cost.
type BcryptConfig struct {
	Cost int

	Limits
}

// Bcrypt hashes secrets with bcrypt.
type Bcrypt struct {
	config BcryptConfig
}

func bcryptLimits(l Limits) Limits {
	l = l.withDefaults()
	if l.MaxPasswordBytes > bcryptMaxBytes {
		l.MaxPasswordBytes = bcryptMaxBytes
	}
	return l
}

// NewBcrypt validates cfg. A zero Cost selects bcrypt.DefaultCost.
func NewBcrypt(cfg BcryptConfig) (*Bcrypt, error) {
	if cfg.Cost == 0 {
		cfg.Cost = bcrypt.DefaultCost
	}
	if cfg.Cost < bcrypt.MinCost || cfg.Cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	cfg.Limits = bcryptLimits(cfg.Limits)
	if err := cfg.Limits.validate(); err != nil {
		return nil, err
	}
	return &Bcrypt{config: cfg}, nil
}

func (b *Bcrypt) Hash(password string) (string, error) {
	if err := b.config.Limits.check(password); err != nil {
		return "", err
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), b.config.Cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	if len(password) > bcryptMaxBytes {
		return false, ErrPasswordTooLong
	}
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

func (b *Bcrypt) NeedsUpgrade(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, err
	}
	return cost < b.config.Cost, nil
}
