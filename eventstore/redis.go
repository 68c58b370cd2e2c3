package eventstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "magazine:webhook:"

// stored values
const (
	redisClaimed   = "claimed"
	redisProcessed = "processed"
)

// releaseScript deletes the key only while it is still a claim, so a late
// release never drops a processed notification.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisStore is a Store backed by Redis, shared by every instance of the
// service. Keys expire with the TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to the Redis server at addr and checks it answers.
func NewRedisStore(ctx context.Context, addr string, ttl time.Duration) (*RedisStore, error) {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cannot connect to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Claim takes the key with SET NX. When the key is held it reports whether
// it was processed or is still claimed.
func (r *RedisStore) Claim(ctx context.Context, key string) (State, error) {
	ok, err := r.client.SetNX(ctx, redisKeyPrefix+key, redisClaimed, ClaimTTL).Result()
	if err != nil {
		return StateInProgress, err
	}
	if ok {
		return StateClaimed, nil
	}
	value, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between both calls, let the gateway retry
		return StateInProgress, nil
	case err != nil:
		return StateInProgress, err
	case value == redisProcessed:
		return StateProcessed, nil
	default:
		return StateInProgress, nil
	}
}

// Release drops a claim that was not processed.
func (r *RedisStore) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, r.client, []string{redisKeyPrefix + key}, redisClaimed).Err()
}

// Exists checks if the key was processed.
func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	value, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == redisProcessed, nil
}

// MarkProcessed records the key as processed for the TTL.
func (r *RedisStore) MarkProcessed(ctx context.Context, key string) error {
	return r.client.Set(ctx, redisKeyPrefix+key, redisProcessed, r.ttl).Err()
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
