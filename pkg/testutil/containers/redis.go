//go:build integration

package containers

import (
	"context"
	"testing"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"termrepo/internal/platform/config"
	platformredis "termrepo/internal/platform/redis"
)

const redisImage = "redis:7-alpine"

// RedisContainer is a throwaway Redis reached through the same client the
// server builds from lock.redis config.
type RedisContainer struct {
	URL    string
	Client *platformredis.Client
}

// NewRedisContainer starts Redis and connects to it with platformredis.New.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, redisImage)
	if err != nil {
		own(t, "redis", nil, nil, err)
	}
	url, err := container.ConnectionString(ctx)
	if err != nil {
		own(t, "redis", container, nil, err)
	}
	client, err := platformredis.New(ctx, config.RedisConfig{URL: url, PoolSize: 4})
	if err != nil {
		own(t, "redis", container, nil, err)
	}
	own(t, "redis", container, client, nil)
	return &RedisContainer{URL: url, Client: client}
}

// FlushAll empties the keyspace between lock tests.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}
