package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenCache holds the current mail API access token and the latest refresh token, so
// a rotated refresh token survives restarts and is shared between instances.
type TokenCache interface {
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, token string, expiry time.Time) error
	Invalidate(ctx context.Context) error

	RefreshToken(ctx context.Context) (string, bool, error)
	SetRefreshToken(ctx context.Context, token string) error
}

// expiryMargin drops tokens slightly before the issuer would reject them.
const expiryMargin = time.Minute

// MemoryTokenCache keeps the token in process memory.
type MemoryTokenCache struct {
	mu      sync.Mutex
	token   string
	expiry  time.Time
	refresh string
}

// NewMemoryTokenCache creates an empty MemoryTokenCache.
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{}
}

func (c *MemoryTokenCache) Get(_ context.Context) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || time.Now().Add(expiryMargin).After(c.expiry) {
		return "", false, nil
	}
	return c.token, true, nil
}

func (c *MemoryTokenCache) Set(_ context.Context, token string, expiry time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiry = expiry
	return nil
}

func (c *MemoryTokenCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiry = time.Time{}
	return nil
}

func (c *MemoryTokenCache) RefreshToken(_ context.Context) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh, c.refresh != "", nil
}

func (c *MemoryTokenCache) SetRefreshToken(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh = token
	return nil
}

const (
	// RedisTokenKey is where RedisTokenCache stores the access token.
	RedisTokenKey = "telemed:mail:access_token"
	// RedisRefreshTokenKey holds the latest refresh token. It has no TTL.
	RedisRefreshTokenKey = "telemed:mail:refresh_token"
)

// RedisTokenCache shares the token between instances through Redis.
type RedisTokenCache struct {
	client *redis.Client
}

// NewRedisTokenCache creates a RedisTokenCache on addr.
func NewRedisTokenCache(addr string) *RedisTokenCache {
	return &RedisTokenCache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *RedisTokenCache) Get(ctx context.Context) (string, bool, error) {
	return c.get(ctx, RedisTokenKey)
}

func (c *RedisTokenCache) RefreshToken(ctx context.Context) (string, bool, error) {
	return c.get(ctx, RedisRefreshTokenKey)
}

func (c *RedisTokenCache) SetRefreshToken(ctx context.Context, token string) error {
	return c.client.Set(ctx, RedisRefreshTokenKey, token, 0).Err()
}

func (c *RedisTokenCache) get(ctx context.Context, key string) (string, bool, error) {
	token, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

func (c *RedisTokenCache) Set(ctx context.Context, token string, expiry time.Time) error {
	ttl := time.Until(expiry) - expiryMargin
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, RedisTokenKey, token, ttl).Err()
}

func (c *RedisTokenCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, RedisTokenKey).Err()
}

// Close releases the Redis connection pool.
func (c *RedisTokenCache) Close() error {
	return c.client.Close()
}
