package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// DefaultLeaseKey is the redis key shared by all instances.
const DefaultLeaseKey = "zendly:grace-sweep:lease"

// RedisLease is a TTL lock in redis. The first instance to SET NX the key
// sweeps; the key expires on its own so a crashed holder frees it.
type RedisLease struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

// NewRedisLease wraps an existing client.
func NewRedisLease(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	if key == "" {
		key = DefaultLeaseKey
	}
	return &RedisLease{client: client, key: key, owner: uuid.NewString(), ttl: ttl}
}

// DialRedisLease connects to redisURL and checks the connection.
func DialRedisLease(ctx context.Context, redisURL string, ttl time.Duration) (*RedisLease, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedisLease(c, DefaultLeaseKey, ttl), nil
}

var _ Lease = (*RedisLease)(nil)

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
}

func (l *RedisLease) Close() error {
	return l.client.Close()
}
