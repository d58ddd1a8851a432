package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultIdempotencyTTL = 24 * time.Hour

// Deletes the claim only if it still holds the caller's token, so an expired
// and re-claimed key is never released by the previous owner.
var releaseIdempotencyScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]

if redis.call('GET', key) == token then
	return redis.call('DEL', key)
end

return 0
`)

type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &RedisAdapter{client: client, ttl: ttl}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return "", false, classify("claim idempotency key", err)
	}
	return token, ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key, token string) error {
	err := releaseIdempotencyScript.Run(ctx, r.client, []string{key}, token).Err()
	return classify("release idempotency key", err)
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return classify("ping redis", r.client.Ping(ctx).Err())
}
