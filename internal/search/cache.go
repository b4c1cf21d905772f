package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tripgen/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "tripgen:search:"

// Cache keeps search results in Redis. A nil *Cache is a valid no-op cache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCache(client *redis.Client, ttl time.Duration, log logger.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, logger: log}
}

func cacheKey(query string, maxResults int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", strings.ToLower(query), maxResults)))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *Cache) Get(ctx context.Context, query string, maxResults int) (*Result, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, cacheKey(query, maxResults)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("search cache read failed", map[string]interface{}{"error": err.Error()})
		}
		return nil, false
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false
	}
	return &result, true
}

// Set stores result. Failures are logged, never returned.
func (c *Cache) Set(ctx context.Context, query string, maxResults int, result *Result) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(query, maxResults), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("search cache write failed", map[string]interface{}{"error": err.Error()})
	}
}
