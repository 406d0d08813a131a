package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryExpiry(t *testing.T) {
	c := NewMemory()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "training:1", []byte("a"), time.Minute)
	if _, ok := c.Get(ctx, "training:1"); !ok {
		t.Fatal("want hit before expiry")
	}
	now = now.Add(time.Minute)
	if _, ok := c.Get(ctx, "training:1"); ok {
		t.Fatal("want miss at expiry")
	}
}

func TestMemoryDeleteByPattern(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	c.Set(ctx, `trainings:{"page":1}`, []byte("x"), 0)
	c.Set(ctx, `trainings:{"search":"a/b"}`, []byte("x"), 0)
	c.Set(ctx, "training:42", []byte("y"), 0)

	c.DeleteByPattern(ctx, "trainings:*")

	if c.Len() != 1 {
		t.Fatalf("want=1 got=%d", c.Len())
	}
	if _, ok := c.Get(ctx, "training:42"); !ok {
		t.Fatal("detail key should survive listing invalidation")
	}
}

func TestJSONRoundTripThroughCache(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	type payload struct{ Name string }
	SetJSON(ctx, c, "k", payload{Name: "go"}, time.Minute)
	var got payload
	if !GetJSON(ctx, c, "k", &got) || got.Name != "go" {
		t.Fatalf("want=go got=%q", got.Name)
	}
	if GetJSON(ctx, Noop{}, "k", &got) {
		t.Fatal("noop cache must always miss")
	}
}

func TestDeleteByPatternGlobs(t *testing.T) {
	cases := []struct {
		pattern, key string
		deleted      bool
	}{
		{"trainings:*", "trainings:", true},
		{"trainings:*", "trainings:{}", true},
		{"trainings:*", "training:1", false},
		{"training:?", "training:1", true},
		{"training:?", "training:12", false},
		{"*:1", "training:1", true},
		{"a*b*c", "axxbyyc", true},
		{"a*b*c", "axxbyy", false},
	}
	ctx := context.Background()
	for _, tc := range cases {
		c := NewMemory()
		c.Set(ctx, tc.key, []byte("v"), 0)
		c.DeleteByPattern(ctx, tc.pattern)
		if got := c.Len() == 0; got != tc.deleted {
			t.Fatalf("DeleteByPattern(%q) on %q: want deleted=%v got=%v", tc.pattern, tc.key, tc.deleted, got)
		}
	}
}
