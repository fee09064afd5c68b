package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Token-checked so one holder can never drop or extend another holder's lease.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

// RedisLocker stores leases as SET NX PX keys.
type RedisLocker struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisLocker uses client for all lease keys.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, now: time.Now}
}

func (r *RedisLocker) Acquire(ctx context.Context, campaignID string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, Key(campaignID), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &Lease{CampaignID: campaignID, Token: token, TTL: ttl, AcquiredAt: r.now()}, nil
}

func (r *RedisLocker) Extend(ctx context.Context, l *Lease) error {
	n, err := extendScript.Run(ctx, r.client, []string{Key(l.CampaignID)}, l.Token, l.TTL.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lease: %w", err)
	}
	if n == 0 {
		return ErrLost
	}
	return nil
}

func (r *RedisLocker) Release(ctx context.Context, l *Lease) error {
	if _, err := releaseScript.Run(ctx, r.client, []string{Key(l.CampaignID)}, l.Token).Int64(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

func (r *RedisLocker) Held(ctx context.Context, campaignID string) (bool, error) {
	_, err := r.client.Get(ctx, Key(campaignID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check lease: %w", err)
	}
	return true, nil
}
