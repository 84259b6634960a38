package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds a lease per key with SET NX PX and releases it only if
// the token still matches.
type RedisLocker struct {
	Client     *redis.Client
	Prefix     string
	TTL        time.Duration
	RetryDelay time.Duration
}

func NewRedisLocker(redisURL string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed connecting to redis: %w", err)
	}
	return &RedisLocker{Client: client, Prefix: "leadflow:lock:", TTL: ttl}, nil
}

func (r *RedisLocker) Close() error {
	return r.Client.Close()
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	ttl := r.TTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	delay := r.RetryDelay
	if delay <= 0 {
		delay = 25 * time.Millisecond
	}
	fullKey := r.Prefix + key
	token := uuid.NewString()

	for {
		ok, err := r.Client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < 200*time.Millisecond {
			delay *= 2
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, r.Client, []string{fullKey}, token).Err()
	}, nil
}
