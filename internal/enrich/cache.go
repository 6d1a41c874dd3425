package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores lookup results. Implementations must be safe for concurrent
// use. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Close() error
}

type CacheOptions struct {
	Driver   string // memory, redis, none
	Addr     string
	Password string
	DB       int
	// MaxEntries bounds the memory driver. Default 2048.
	MaxEntries int
}

// OpenCache returns the configured cache. A nil Cache means caching is off.
func OpenCache(ctx context.Context, opts CacheOptions) (Cache, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "memory":
		return NewMemoryCache(opts.MaxEntries), nil
	case "none":
		return nil, nil
	case "redis":
		return NewRedisCache(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown cache driver %q", opts.Driver)
	}
}

type memEntry struct {
	val     []byte
	expires time.Time
}

// MemoryCache is a process-local TTL cache. When full, expired entries are
// swept first and then an arbitrary entry is evicted.
type MemoryCache struct {
	mu  sync.Mutex
	max int
	m   map[string]memEntry
	now func() time.Time
}

func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 2048
	}
	return &MemoryCache{max: maxEntries, m: make(map[string]memEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(e.expires) {
		delete(c.m, key)
		return nil, false, nil
	}
	return e.val, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[key]; !exists && len(c.m) >= c.max {
		c.evictLocked()
	}
	c.m[key] = memEntry{val: append([]byte(nil), val...), expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) evictLocked() {
	now := c.now()
	for k, e := range c.m {
		if now.After(e.expires) {
			delete(c.m, k)
		}
	}
	for k := range c.m {
		if len(c.m) < c.max {
			return
		}
		delete(c.m, k)
	}
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func (c *MemoryCache) Close() error { return nil }

// RedisCache shares lookups across restarts and replicas.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisCache(ctx context.Context, opts CacheOptions) (*RedisCache, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("redis cache: empty addr")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis cache ping %s: %w", opts.Addr, err)
	}
	return &RedisCache{rdb: rdb, prefix: "trendbot:"}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, c.prefix+key, val, ttl).Err()
}

func (c *RedisCache) Close() error { return c.rdb.Close() }
