package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trainflow/internal/logger"
	"trainflow/internal/metrics"
)

const (
	scanBatch = 200

	// DefaultCooldown is how long the cache stays bypassed after a redis error.
	DefaultCooldown = 30 * time.Second
)

// Redis is a Cache backed by a redis client. After an error it bypasses redis
// for a cooldown, so an outage costs one timeout instead of one per call.
type Redis struct {
	client   *redis.Client
	log      *logger.Logger
	cooldown time.Duration
	now      func() time.Time

	mu        sync.Mutex
	downUntil time.Time
}

func NewRedis(client *redis.Client, log *logger.Logger) *Redis {
	return &Redis{
		client:   client,
		log:      log.With("component", "RedisCache"),
		cooldown: DefaultCooldown,
		now:      time.Now,
	}
}

// available reports whether redis should be tried.
func (r *Redis) available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.now().Before(r.downUntil)
}

// trip disables the cache for the cooldown and logs the cause once.
func (r *Redis) trip(op string, err error, kv ...any) {
	r.mu.Lock()
	wasUp := !r.now().Before(r.downUntil)
	r.downUntil = r.now().Add(r.cooldown)
	r.mu.Unlock()
	if wasUp {
		r.log.Warn("cache "+op+" failed, bypassing redis", append(kv, "cooldown", r.cooldown, "error", err)...)
	}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	if !r.available() {
		metrics.CacheLookups.WithLabelValues("bypass").Inc()
		return nil, false
	}
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheLookups.WithLabelValues("miss").Inc()
			return nil, false
		}
		metrics.CacheLookups.WithLabelValues("error").Inc()
		r.trip("get", err, "key", key)
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return val, true
}

func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if !r.available() {
		return
	}
	if err := r.client.Set(ctx, key, val, ttl).Err(); err != nil {
		r.trip("set", err, "key", key)
	}
}

func (r *Redis) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 || !r.available() {
		return
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.trip("delete", err, "keys", keys)
	}
}

// DeleteByPattern walks the keyspace with SCAN so large keyspaces do not block redis.
func (r *Redis) DeleteByPattern(ctx context.Context, pattern string) {
	if !r.available() {
		return
	}
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			r.trip("scan", err, "pattern", pattern)
			return
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				r.trip("pattern delete", err, "pattern", pattern)
				return
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}
