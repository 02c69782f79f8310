package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrChallengeNotFound         = errors.New("challenge not found")
	ErrChallengeMismatch         = errors.New("challenge code mismatch")
	ErrChallengeExpired          = errors.New("challenge expired")
	ErrChallengeRedisUnavailable = errors.New("challenge redis unavailable")
)

// consumeChallengeLua atomically validates and deletes a challenge record.
// KEYS[1] = record key
// ARGV[1] = provided code digest
// ARGV[2] = now (unix ms)
// ARGV[3] = max attempts (0 = unlimited)
//
// Returns the consumed challenge's expiry (unix ms) or an error string:
// "not_found", "expired", "mismatch".
var consumeChallengeLua = redis.NewScript(`
local fields = redis.call('HMGET', KEYS[1], 'hash', 'exp', 'attempts')
local stored = fields[1]
if not stored then
  return {err='not_found'}
end

local expiresAt = tonumber(fields[2])
local nowMs = tonumber(ARGV[2])
if expiresAt == nil or nowMs >= expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if stored ~= ARGV[1] then
  local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
  local maxAttempts = tonumber(ARGV[3])
  if maxAttempts > 0 and attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
  end
  return {err='mismatch'}
end

redis.call('DEL', KEYS[1])
return expiresAt
`)

// restoreChallengeLua puts a consumed challenge back unless a newer one was
// saved meanwhile.
// KEYS[1] = record key
// ARGV[1] = code digest
// ARGV[2] = expiry (unix ms)
// ARGV[3] = ttl (ms)
//
// Returns 1 when restored, 0 when a live record already exists.
var restoreChallengeLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'hash', ARGV[1], 'exp', ARGV[2], 'attempts', 0)
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// ChallengeStore keeps one-time code digests that are not attached to a user
// record, keyed by phone. A new Save replaces the live challenge.
type ChallengeStore struct {
	redis       redis.UniversalClient
	prefix      string
	retention   time.Duration
	maxAttempts int
}

// NewChallengeStore creates a store. retention is how long an expired record is
// kept so that late attempts are reported as expired rather than not found.
func NewChallengeStore(redisClient redis.UniversalClient, prefix string, retention time.Duration, maxAttempts int) *ChallengeStore {
	if prefix == "" {
		prefix = "gi"
	}
	return &ChallengeStore{
		redis:       redisClient,
		prefix:      prefix,
		retention:   retention,
		maxAttempts: maxAttempts,
	}
}

func (s *ChallengeStore) key(purpose, subject string) string {
	return s.prefix + ":chal:" + purpose + ":" + subject
}

// Save stores codeHash for subject until expiresAt.
func (s *ChallengeStore) Save(ctx context.Context, purpose, subject, codeHash string, now, expiresAt time.Time) error {
	key := s.key(purpose, subject)
	ttl := expiresAt.Sub(now) + s.retention
	if ttl <= 0 {
		return errors.New("challenge already expired")
	}

	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"hash", codeHash,
			"exp", strconv.FormatInt(expiresAt.UnixMilli(), 10),
			"attempts", 0,
		)
		p.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
	return nil
}

// Consume validates codeHash against the live challenge and deletes it on
// success, returning the expiry the challenge had.
func (s *ChallengeStore) Consume(ctx context.Context, purpose, subject, codeHash string, now time.Time) (time.Time, error) {
	expMs, err := consumeChallengeLua.Run(ctx, s.redis,
		[]string{s.key(purpose, subject)},
		codeHash,
		now.UnixMilli(),
		s.maxAttempts,
	).Int64()
	if err == nil {
		return time.UnixMilli(expMs), nil
	}

	switch msg := err.Error(); {
	case strings.HasSuffix(msg, "not_found"):
		return time.Time{}, ErrChallengeNotFound
	case strings.HasSuffix(msg, "expired"):
		return time.Time{}, ErrChallengeExpired
	case strings.HasSuffix(msg, "mismatch"):
		return time.Time{}, ErrChallengeMismatch
	default:
		return time.Time{}, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
}

// Restore re-saves a challenge taken by Consume when the step it guarded
// failed. It reports false when the challenge had already expired or a newer
// one was issued in between.
func (s *ChallengeStore) Restore(ctx context.Context, purpose, subject, codeHash string, now, expiresAt time.Time) (bool, error) {
	if !now.Before(expiresAt) {
		return false, nil
	}
	ttl := expiresAt.Sub(now) + s.retention
	n, err := restoreChallengeLua.Run(ctx, s.redis,
		[]string{s.key(purpose, subject)},
		codeHash,
		expiresAt.UnixMilli(),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
	return n == 1, nil
}

// Delete drops any live challenge for subject.
func (s *ChallengeStore) Delete(ctx context.Context, purpose, subject string) error {
	if err := s.redis.Del(ctx, s.key(purpose, subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
	return nil
}
