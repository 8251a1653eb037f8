package logic

import (
	"sync"
	"time"
)

// InMemoryRulesCache is a simple in-memory RulesCache. Thread-safe.
type InMemoryRulesCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	mu      sync.RWMutex
}

type cacheEntry struct {
	rules    []*Rule
	cachedAt time.Time
}

// NewInMemoryRulesCache creates a new in-memory rules cache.
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{
		entries: make(map[string]cacheEntry),
		config:  config,
	}
}

func (c *InMemoryRulesCache) Get(questionID string) []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[questionID]
	if !ok {
		return nil
	}
	if c.config.TTL > 0 && time.Since(entry.cachedAt) > c.config.TTL {
		return nil
	}

	// Return a copy so callers cannot mutate the cached slice.
	rulesCopy := make([]*Rule, len(entry.rules))
	copy(rulesCopy, entry.rules)
	return rulesCopy
}

func (c *InMemoryRulesCache) Set(questionID string, rules []*Rule) {
	stored := make([]*Rule, len(rules))
	copy(stored, rules)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[questionID] = cacheEntry{rules: stored, cachedAt: time.Now()}
}

func (c *InMemoryRulesCache) Invalidate(questionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, questionID)
}

func (c *InMemoryRulesCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
