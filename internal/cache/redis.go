package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	pkgerrors "github.com/pkg/errors"
)

// RedisCache implements URLCache using Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// RedisOptions configures the connection.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisCache connects to Redis and pings it with ctx.
func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Address,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, pkgerrors.Wrap(err, "connect to redis")
	}

	return &RedisCache{client: client, ttl: opts.TTL, now: time.Now}, nil
}

// Close closes the Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func readURLKey(storageKey string) string {
	return "readurl:" + storageKey
}

func (c *RedisCache) GetReadURL(ctx context.Context, storageKey string) (*CachedURL, error) {
	data, err := c.client.Get(ctx, readURLKey(storageKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, pkgerrors.Wrap(err, "redis get")
	}

	var entry CachedURL
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, pkgerrors.Wrap(err, "decode cached read url")
	}
	if entry.ExpiresAt.Sub(c.now()) < minRemaining {
		return nil, ErrCacheMiss
	}
	return &entry, nil
}

func (c *RedisCache) SetReadURL(ctx context.Context, storageKey string, entry CachedURL) error {
	ttl := entryTTL(entry.ExpiresAt, c.now(), c.ttl)
	if ttl == 0 {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, readURLKey(storageKey), data, ttl).Err()
}

func (c *RedisCache) DeleteReadURL(ctx context.Context, storageKey string) error {
	return c.client.Del(ctx, readURLKey(storageKey)).Err()
}
