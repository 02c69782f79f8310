package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	Prefix string

	// OTP issuance: at most OTPLimit challenges per phone in the trailing OTPWindow.
	OTPLimit  int
	OTPWindow time.Duration

	// Login failures: fixed window per identifier.
	MaxLoginFailures      int
	LoginCooldownDuration time.Duration
}

// Limiter enforces the OTP issuance window and login failure throttling using
// Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "gi"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// slidingWindowLua trims entries at or before the cutoff, counts the rest and
// admits the new entry only while under the limit. One round trip, atomic.
// KEYS[1] = window key
// ARGV[1] = now (unix ms)
// ARGV[2] = cutoff (unix ms)
// ARGV[3] = window (ms)
// ARGV[4] = limit
// ARGV[5] = member
//
// Returns the number of entries in the window after the call, or -1 when full.
var slidingWindowLua = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[4]) then
  return -1
end

redis.call('ZADD', KEYS[1], ARGV[1], ARGV[5])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return count + 1
`)

// AllowOTP records one OTP issuance for phone at now and returns ErrRateLimited
// when OTPLimit issuances already happened within the trailing window.
func (l *Limiter) AllowOTP(ctx context.Context, phone string, now time.Time) error {
	if l.config.OTPLimit <= 0 {
		return nil
	}

	member, err := internal.NewNonce(8)
	if err != nil {
		return err
	}
	nowMs := now.UnixMilli()

	res, err := slidingWindowLua.Run(ctx, l.redis,
		[]string{l.otpKey(phone)},
		nowMs,
		nowMs-l.config.OTPWindow.Milliseconds(),
		l.config.OTPWindow.Milliseconds(),
		l.config.OTPLimit,
		strconv.FormatInt(nowMs, 10)+"-"+member,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if res < 0 {
		return ErrRateLimited
	}
	return nil
}

// OTPIssued returns how many issuances for phone fall inside the trailing window.
func (l *Limiter) OTPIssued(ctx context.Context, phone string, now time.Time) (int, error) {
	min := now.Add(-l.config.OTPWindow).UnixMilli()
	n, err := l.redis.ZCount(ctx, l.otpKey(phone), "("+strconv.FormatInt(min, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return int(n), nil
}

// CheckLogin returns ErrRateLimited while identifier is in cooldown.
func (l *Limiter) CheckLogin(ctx context.Context, identifier string) error {
	if l.config.MaxLoginFailures <= 0 {
		return nil
	}

	count, err := l.redis.Get(ctx, l.loginKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if count >= int64(l.config.MaxLoginFailures) {
		return ErrRateLimited
	}

	return nil
}

// IncrementLogin records a failed login for identifier.
func (l *Limiter) IncrementLogin(ctx context.Context, identifier string) error {
	if l.config.MaxLoginFailures <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.loginKey(identifier), l.config.LoginCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginFailures) {
		return ErrRateLimited
	}

	return nil
}

// ResetLogin clears the failure counter after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, identifier string) error {
	if l.config.MaxLoginFailures <= 0 {
		return nil
	}

	if err := l.redis.Del(ctx, l.loginKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	return count, nil
}

func (l *Limiter) otpKey(phone string) string {
	return l.config.Prefix + ":otp:" + phone
}

func (l *Limiter) loginKey(identifier string) string {
	return l.config.Prefix + ":login:" + identifier
}
