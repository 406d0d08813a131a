package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"trainflow/internal/logger"
	"trainflow/internal/metrics"
)

func TestTokenBucketRefills(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewTokenBucket(2, 60)
	l.now = func() time.Time { return clock }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of 2 should pass")
	}
	if l.Allow("a") {
		t.Fatal("third request should be limited")
	}
	if !l.Allow("b") {
		t.Fatal("other clients have their own bucket")
	}
	clock = clock.Add(time.Second)
	if !l.Allow("a") {
		t.Fatal("one token refills per second at 60/min")
	}
	if l.Allow("a") {
		t.Fatal("only one token refilled")
	}
}

func TestTokenBucketDropsIdleBuckets(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewTokenBucket(1, 1)
	l.now = func() time.Time { return clock }
	l.Allow("a")
	clock = clock.Add(11 * time.Minute)
	l.Allow("b")
	if _, ok := l.state["a"]; ok {
		t.Fatal("idle bucket should be swept")
	}
}

func TestMiddlewareChain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(), Metrics(), RequestLogger(logger.NewNop(), "/healthz"), NewTokenBucket(1, 1).GinMiddleware())
	r.GET("/ping/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/ping/:id", "204"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping/1", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("want=%v got=%v", http.StatusNoContent, w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" || w.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing security headers: %v", w.Header())
	}
	if got := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/ping/:id", "204")); got != before+1 {
		t.Fatalf("want=%v got=%v", before+1, got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping/2", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("want=%v got=%v", http.StatusTooManyRequests, w.Code)
	}
}
