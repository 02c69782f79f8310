package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrDenylistRedisUnavailable = errors.New("denylist redis unavailable")

// Denylist records revoked token ids and per-user revocation cutoffs. Entries
// live only as long as the tokens they cover.
type Denylist struct {
	redis  redis.UniversalClient
	prefix string
}

func NewDenylist(redisClient redis.UniversalClient, prefix string) *Denylist {
	if prefix == "" {
		prefix = "gi"
	}
	return &Denylist{redis: redisClient, prefix: prefix}
}

func (d *Denylist) tokenKey(tokenID string) string {
	return d.prefix + ":deny:jti:" + tokenID
}

func (d *Denylist) userKey(userID string) string {
	return d.prefix + ":deny:uid:" + userID
}

// RevokeToken denies tokenID until ttl elapses. Non-positive ttl is a no-op:
// the token has already expired.
func (d *Denylist) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return errors.New("token id required")
	}
	if ttl <= 0 {
		return nil
	}
	if err := d.redis.Set(ctx, d.tokenKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDenylistRedisUnavailable, err)
	}
	return nil
}

// RevokeUserBefore denies every token of userID issued at or before cutoff,
// at millisecond precision.
func (d *Denylist) RevokeUserBefore(ctx context.Context, userID string, cutoff time.Time, ttl time.Duration) error {
	if userID == "" {
		return errors.New("user id required")
	}
	if err := d.redis.Set(ctx, d.userKey(userID), strconv.FormatInt(cutoff.UnixMilli(), 10), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDenylistRedisUnavailable, err)
	}
	return nil
}

// Revoked reports whether a token with the given id, owner and issue time has
// been revoked. Both lookups share one round trip.
func (d *Denylist) Revoked(ctx context.Context, tokenID, userID string, issuedAt time.Time) (bool, error) {
	pipe := d.redis.Pipeline()
	tokenCmd := pipe.Exists(ctx, d.tokenKey(tokenID))
	userCmd := pipe.Get(ctx, d.userKey(userID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("%w: %v", ErrDenylistRedisUnavailable, err)
	}

	if tokenCmd.Val() > 0 {
		return true, nil
	}

	cutoff, err := userCmd.Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrDenylistRedisUnavailable, err)
	}
	return issuedAt.UnixMilli() <= cutoff, nil
}
