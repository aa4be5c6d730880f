package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix          = "termrepo:lock:"
	defaultTTL         = 30 * time.Second
	defaultRetryPeriod = 25 * time.Millisecond
)

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process using the same Redis.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithTTL bounds how long a lock survives a crashed holder.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRetryPeriod sets the pause between acquisition attempts.
func WithRetryPeriod(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.retry = d
		}
	}
}

// NewRedis builds a locker on client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, ttl: defaultTTL, retry: defaultRetryPeriod}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Redis) Acquire(ctx context.Context, keys ...string) (func(), error) {
	token := uuid.NewString()
	keys = normalize(keys)

	held := make([]string, 0, len(keys))
	unlock := func() {
		// Release must work after the caller's ctx is done.
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			_ = unlockScript.Run(rctx, r.client, []string{keyPrefix + held[i]}, token).Err()
		}
	}

	for _, key := range keys {
		if err := r.acquireOne(ctx, key, token); err != nil {
			unlock()
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() { once.Do(unlock) }, nil
}

func (r *Redis) acquireOne(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, keyPrefix+key, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return timeoutErr(ctx.Err(), key)
			}
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return timeoutErr(ctx.Err(), key)
		}
	}
}

var _ Locker = (*Redis)(nil)
