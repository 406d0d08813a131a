package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache is an advisory key/value store. Implementations never fail the
// caller: an unavailable backend behaves like a permanent miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
	// DeleteByPattern removes every key matching a glob such as "trainings:*".
	DeleteByPattern(ctx context.Context, pattern string)
}

// GetJSON decodes a cached JSON value into dst. Undecodable entries count as misses.
func GetJSON(ctx context.Context, c Cache, key string, dst any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// SetJSON stores v encoded as JSON; encoding failures are dropped.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.Set(ctx, key, raw, ttl)
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Noop) Set(context.Context, string, []byte, time.Duration) {}
func (Noop) Delete(context.Context, ...string) {}
func (Noop) DeleteByPattern(context.Context, string) {}
