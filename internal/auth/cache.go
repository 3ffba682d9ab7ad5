package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KeyCache maps a digest of a verified candidate key to the id of the stored
// key it matched. Entries expire after the cache TTL.
type KeyCache interface {
	Get(ctx context.Context, digest string) (uuid.UUID, bool)
	Set(ctx context.Context, digest string, id uuid.UUID)
	Delete(ctx context.Context, digest string)
}

func digest(candidate string) string {
	sum := sha256.Sum256([]byte(candidate))
	return hex.EncodeToString(sum[:])
}

type entry struct {
	id        uuid.UUID
	expiresAt time.Time
}

type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]entry
	ttl   time.Duration
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{items: make(map[string]entry), ttl: ttl}
}

func (c *MemoryCache) Get(_ context.Context, key string) (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok || time.Now().After(e.expiresAt) {
		return uuid.Nil, false
	}
	return e.id, true
}

func (c *MemoryCache) Set(_ context.Context, key string, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	// Sweep on write so abandoned digests do not accumulate.
	for k, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, k)
		}
	}
	c.items[key] = entry{id: id, expiresAt: now.Add(c.ttl)}
}

func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// RedisCache shares verified keys across replicas.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) key(d string) string { return "apikey_verified:" + d }

func (c *RedisCache) Get(ctx context.Context, d string) (uuid.UUID, bool) {
	v, err := c.client.Get(ctx, c.key(d)).Result()
	if err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (c *RedisCache) Set(ctx context.Context, d string, id uuid.UUID) {
	_ = c.client.Set(ctx, c.key(d), id.String(), c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, d string) {
	_ = c.client.Del(ctx, c.key(d)).Err()
}
