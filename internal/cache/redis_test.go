package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"trainflow/internal/logger"
)

// stubHook answers every command with err without touching the network.
type stubHook struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (h *stubHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *stubHook) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, _ redis.Cmder) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.calls++
		return h.err
	}
}

func (h *stubHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (h *stubHook) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func newStubbedRedis(t *testing.T, err error) (*Redis, *stubHook, *time.Time) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	hook := &stubHook{err: err}
	client.AddHook(hook)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRedis(client, logger.NewNop())
	r.now = func() time.Time { return now }
	return r, hook, &now
}

func TestRedisBypassesAfterError(t *testing.T) {
	r, hook, now := newStubbedRedis(t, errors.New("dial tcp: connection refused"))
	ctx := context.Background()

	if _, ok := r.Get(ctx, "training:1"); ok {
		t.Fatal("want miss on error")
	}
	r.Set(ctx, "training:1", []byte("x"), time.Minute)
	r.Delete(ctx, "training:1")
	r.DeleteByPattern(ctx, "trainings:*")
	if _, ok := r.Get(ctx, "training:1"); ok {
		t.Fatal("want miss while bypassed")
	}
	if got := hook.count(); got != 1 {
		t.Fatalf("want=1 redis call during cooldown got=%d", got)
	}

	*now = now.Add(DefaultCooldown)
	r.Get(ctx, "training:1")
	if got := hook.count(); got != 2 {
		t.Fatalf("want redis retried after cooldown, calls=%d", got)
	}
}

func TestRedisMissDoesNotBypass(t *testing.T) {
	r, hook, _ := newStubbedRedis(t, redis.Nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, ok := r.Get(ctx, "training:1"); ok {
			t.Fatal("want miss")
		}
	}
	if got := hook.count(); got != 3 {
		t.Fatalf("want=3 got=%d", got)
	}
}
