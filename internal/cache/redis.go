package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper reserves keys with SETNX so concurrent deliveries of one webhook are processed once.
type RedisDeduper struct {
	client *redis.Client
	prefix string
}

// NewRedisDeduper connects to redisURL and verifies the connection.
func NewRedisDeduper(redisURL, prefix string) (*RedisDeduper, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisDeduper{client: client, prefix: prefix}, nil
}

// Reserve returns true when the key was not held yet.
func (d *RedisDeduper) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Release drops a reservation so the event can be retried.
func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.prefix+key).Err()
}

// Ping checks the connection.
func (d *RedisDeduper) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

// Close closes the client.
func (d *RedisDeduper) Close() error {
	return d.client.Close()
}
