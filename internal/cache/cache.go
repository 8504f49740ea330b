package cache

import "context"

// Cache stores msgpack encoded values with a per entry TTL in seconds.
type Cache interface {
	Put(ctx context.Context, key string, value interface{}, ttlSeconds int) error
	// Get decodes the cached value into out, which must be a non-nil pointer.
	Get(ctx context.Context, key string, out interface{}) error
	GetDefaultTTL() int
	Close() error
}
