// Package cache defines the port interface for the tool-context cache.
package cache

import (
	"context"
	"strings"
	"time"
)

// Cache is the port interface for key-value caching. A miss is reported as
// ok == false with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ToolKey builds the cache key for a tool result: mode, a colon, then the
// lowercased trimmed query.
func ToolKey(mode, query string) string {
	return mode + ":" + strings.ToLower(strings.TrimSpace(query))
}
