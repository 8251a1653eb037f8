package logic

import "time"

// RulesCache caches a question's rule list between store reads. Implementations
// may be in-memory, Redis, or anything else; a nil result always means "ask the
// store".
type RulesCache interface {
	// Get retrieves cached rules for a question, nil on miss or expiry.
	Get(questionID string) []*Rule

	// Set stores a question's rules.
	Set(questionID string, rules []*Rule)

	// Invalidate drops one question's entry.
	Invalidate(questionID string)

	// InvalidateAll drops every entry.
	InvalidateAll()
}

// CacheConfig holds cache behavior settings.
type CacheConfig struct {
	// TTL is the time-to-live for cached entries. Zero means no expiration;
	// entries live until a mutation invalidates them.
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults for rule caching.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
