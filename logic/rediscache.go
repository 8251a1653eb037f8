package logic

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRulesCache is a Redis-backed RulesCache, for deployments where several
// server instances should share rule caching. Entries are JSON-encoded. Redis
// failures are treated as cache misses so the store stays the source of truth.
type RedisRulesCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRulesCache creates a Redis-backed rules cache. A zero TTL in the
// config is coerced to an hour; Redis entries should not live forever.
func NewRedisRulesCache(client *redis.Client, config CacheConfig) *RedisRulesCache {
	ttl := config.TTL
	if ttl == 0 {
		ttl = time.Hour
	}
	return &RedisRulesCache{client: client, ttl: ttl}
}

func ruleCacheKey(questionID string) string {
	return "logic:rules:" + questionID
}

func (c *RedisRulesCache) Get(questionID string) []*Rule {
	data, err := c.client.Get(context.Background(), ruleCacheKey(questionID)).Result()
	if err != nil {
		return nil
	}
	var rules []*Rule
	if err := json.Unmarshal([]byte(data), &rules); err != nil {
		return nil
	}
	return rules
}

func (c *RedisRulesCache) Set(questionID string, rules []*Rule) {
	if rules == nil {
		rules = []*Rule{}
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return
	}
	c.client.Set(context.Background(), ruleCacheKey(questionID), data, c.ttl)
}

func (c *RedisRulesCache) Invalidate(questionID string) {
	c.client.Del(context.Background(), ruleCacheKey(questionID))
}

func (c *RedisRulesCache) InvalidateAll() {
	ctx := context.Background()
	iter := c.client.Scan(ctx, 0, "logic:rules:*", 0).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
}
