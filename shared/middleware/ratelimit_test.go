package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type mockCounter struct {
	counts map[string]int64
	err    error
}

func (m *mockCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.counts[key]++
	return m.counts[key], nil
}

func newRateLimitRouter(counter Counter, limit int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/otp", RateLimitMiddleware(counter, "otp", limit, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func hit(router *gin.Engine) int {
	req, _ := http.NewRequest(http.MethodPost, "/otp", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitMiddleware_BlocksAfterLimit(t *testing.T) {
	router := newRateLimitRouter(&mockCounter{counts: map[string]int64{}}, 2)

	for i := 0; i < 2; i++ {
		if code := hit(router); code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i+1, code)
		}
	}
	if code := hit(router); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", code)
	}
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	counter := &mockCounter{counts: map[string]int64{}}
	router := newRateLimitRouter(counter, 0)
	for i := 0; i < 5; i++ {
		if code := hit(router); code != http.StatusOK {
			t.Fatalf("expected 200 with limiter disabled, got %d", code)
		}
	}
	if len(counter.counts) != 0 {
		t.Errorf("disabled limiter should not touch the counter")
	}
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	router := newRateLimitRouter(&mockCounter{err: errors.New("redis down")}, 1)
	for i := 0; i < 3; i++ {
		if code := hit(router); code != http.StatusOK {
			t.Fatalf("expected 200 when counter fails, got %d", code)
		}
	}
}
