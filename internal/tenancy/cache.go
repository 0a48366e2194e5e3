package tenancy

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"instituteos.app/internal/obs"
)

const cacheKeyPrefix = "tenancy:domain:"

// Cache is the subset of the Redis client used by CachedLookup.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedLookup caches positive domain lookups in Redis. Cache failures fall through
// to the underlying lookup; unknown domains are never cached.
type CachedLookup struct {
	next  Lookup
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

// NewCachedLookup wraps next with a Redis cache.
func NewCachedLookup(next Lookup, cache Cache, ttl time.Duration) *CachedLookup {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedLookup{next: next, cache: cache, ttl: ttl, log: obs.Logger()}
}

func cacheKey(domain string) string {
	return cacheKeyPrefix + strings.ToLower(strings.TrimSpace(domain))
}

func (c *CachedLookup) InstituteIDByDomain(ctx context.Context, domain string) (string, error) {
	key := cacheKey(domain)
	id, err := c.cache.Get(ctx, key).Result()
	switch {
	case err == nil && id != "":
		return id, nil
	case err != nil && !errors.Is(err, redis.Nil):
		c.log.Debug("tenant cache get failed", zap.String("key", key), zap.Error(err))
	}

	id, err = c.next.InstituteIDByDomain(ctx, domain)
	if err != nil {
		return "", err
	}
	if id != "" {
		if err := c.cache.Set(ctx, key, id, c.ttl).Err(); err != nil {
			c.log.Debug("tenant cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return id, nil
}

// Invalidate drops cached entries for the given domain labels.
func (c *CachedLookup) Invalidate(ctx context.Context, domains ...string) {
	if len(domains) == 0 {
		return
	}
	keys := make([]string, 0, len(domains))
	for _, d := range domains {
		keys = append(keys, cacheKey(d))
	}
	if err := c.cache.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("tenant cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
