// Package memory is an in-process goIdentity.CredentialStore for tests,
// examples and single-node demos. Records are copied in and out, so callers
// never share memory with the store.
package memory

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// Store keeps users in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	users      map[string]*goIdentity.User
	byEmail    map[string]string
	byPhone    map[string]string
	byUsername map[string]string
	bySocial   map[socialKey]string
}

type socialKey struct {
	provider goIdentity.Provider
	id       string
}

var _ goIdentity.CredentialStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:      make(map[string]*goIdentity.User),
		byEmail:    make(map[string]string),
		byPhone:    make(map[string]string),
		byUsername: make(map[string]string),
		bySocial:   make(map[socialKey]string),
	}
}

func keyOf(id goIdentity.SocialIdentity) socialKey {
	return socialKey{provider: id.Provider(), id: id.ExternalID()}
}

func clone(u *goIdentity.User) *goIdentity.User {
	c := *u
	return &c
}

func (s *Store) find(ctx context.Context, index map[string]string, key string) (*goIdentity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := index[key]
	if !ok || key == "" {
		return nil, goIdentity.ErrStoreNotFound
	}
	return clone(s.users[id]), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*goIdentity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, goIdentity.ErrStoreNotFound
	}
	return clone(u), nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*goIdentity.User, error) {
	return s.find(ctx, s.byEmail, email)
}

func (s *Store) FindByPhone(ctx context.Context, phone string) (*goIdentity.User, error) {
	return s.find(ctx, s.byPhone, phone)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*goIdentity.User, error) {
	return s.find(ctx, s.byUsername, username)
}

func (s *Store) FindBySocial(ctx context.Context, id goIdentity.SocialIdentity) (*goIdentity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == nil || id.ExternalID() == "" {
		return nil, goIdentity.ErrStoreNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.bySocial[keyOf(id)]
	if !ok {
		return nil, goIdentity.ErrStoreNotFound
	}
	return clone(s.users[userID]), nil
}

// IdentityExists checks every non-empty identifier of probe under one read lock.
func (s *Store) IdentityExists(ctx context.Context, probe goIdentity.IdentityProbe) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.taken(probe), nil
}

func (s *Store) taken(p goIdentity.IdentityProbe) bool {
	if _, ok := s.byEmail[p.Email]; ok && p.Email != "" {
		return true
	}
	if _, ok := s.byPhone[p.Phone]; ok && p.Phone != "" {
		return true
	}
	if _, ok := s.byUsername[p.Username]; ok && p.Username != "" {
		return true
	}
	for _, id := range p.Social.Identities() {
		if _, ok := s.bySocial[keyOf(id)]; ok {
			return true
		}
	}
	return false
}

func (s *Store) CreateUser(ctx context.Context, u *goIdentity.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok || u.ID == "" {
		return goIdentity.ErrStoreDuplicate
	}
	if s.taken(goIdentity.IdentityProbe{Email: u.Email, Phone: u.Phone, Username: u.Username, Social: u.Social}) {
		return goIdentity.ErrStoreDuplicate
	}

	c := clone(u)
	s.users[c.ID] = c
	if c.Email != "" {
		s.byEmail[c.Email] = c.ID
	}
	if c.Phone != "" {
		s.byPhone[c.Phone] = c.ID
	}
	if c.Username != "" {
		s.byUsername[c.Username] = c.ID
	}
	for _, id := range c.Social.Identities() {
		s.bySocial[keyOf(id)] = c.ID
	}
	return nil
}

func (s *Store) LinkSocial(ctx context.Context, userID string, id goIdentity.SocialIdentity) error {
	return s.update(ctx, userID, func(u *goIdentity.User) error {
		if linked := u.Social.Linked(id); linked != "" && linked != id.ExternalID() {
			return goIdentity.ErrStoreDuplicate
		}
		if owner, ok := s.bySocial[keyOf(id)]; ok && owner != userID {
			return goIdentity.ErrStoreDuplicate
		}
		u.Social.Link(id)
		s.bySocial[keyOf(id)] = userID
		return nil
	})
}

func (s *Store) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	return s.update(ctx, userID, func(u *goIdentity.User) error {
		u.LastSeenAt = at
		return nil
	})
}

func (s *Store) SetPasswordHash(ctx context.Context, userID, hash string) error {
	return s.update(ctx, userID, func(u *goIdentity.User) error {
		u.PasswordHash = hash
		return nil
	})
}

func (s *Store) SetOTPChallenge(ctx context.Context, userID, codeHash string, expiresAt time.Time) error {
	return s.update(ctx, userID, func(u *goIdentity.User) error {
		u.OTPHash = codeHash
		u.OTPExpiresAt = expiresAt
		return nil
	})
}

// ConsumeOTPChallenge compares and clears under the write lock. An expired
// challenge is cleared as well; a mismatch leaves it in place.
func (s *Store) ConsumeOTPChallenge(ctx context.Context, userID, codeHash string, now time.Time) error {
	return s.update(ctx, userID, func(u *goIdentity.User) error {
		if u.OTPHash == "" {
			return goIdentity.ErrOTPNotIssued
		}
		if !now.Before(u.OTPExpiresAt) {
			u.OTPHash = ""
			u.OTPExpiresAt = time.Time{}
			return goIdentity.ErrOTPExpired
		}
		if subtle.ConstantTimeCompare([]byte(u.OTPHash), []byte(codeHash)) != 1 {
			return goIdentity.ErrOTPMismatch
		}
		u.OTPHash = ""
		u.OTPExpiresAt = time.Time{}
		u.Verified = true
		return nil
	})
}

func (s *Store) SetRole(ctx context.Context, userID, roleID string) error {
	return s.update(ctx, userID, func(u *goIdentity.User) error {
		u.RoleID = roleID
		return nil
	})
}

func (s *Store) SetActive(ctx context.Context, userID string, active bool) error {
	return s.update(ctx, userID, func(u *goIdentity.User) error {
		u.Active = active
		return nil
	})
}

func (s *Store) CountByRole(ctx context.Context, roleID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, u := range s.users {
		if u.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

// SetProfile sets organisational fields that registration does not collect.
func (s *Store) SetProfile(ctx context.Context, userID, department, team string) error {
	return s.update(ctx, userID, func(u *goIdentity.User) error {
		u.Department = department
		u.Team = team
		return nil
	})
}

// update applies fn to the stored record under the write lock. The record is
// left untouched when fn fails, except for changes fn makes before failing
// on purpose, such as clearing an expired challenge.
func (s *Store) update(ctx context.Context, userID string, fn func(*goIdentity.User) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return goIdentity.ErrStoreNotFound
	}
	return fn(u)
}
