package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// limited wraps okHandler in a rate limiter whose sweeper stops with the test.
func limited(t *testing.T, rps float64, burst, maxIPs int) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mw, _ := RateLimitMiddleware(ctx, rps, burst, maxIPs, nil)
	return mw(okHandler())
}

func hit(h http.Handler, ip string) int {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, reqFromIP(ip))
	return w.Code
}

func TestRateLimitPerClient(t *testing.T) {
	h := limited(t, 0.001, 2, 10)

	assert.Equal(t, http.StatusOK, hit(h, "5.5.5.5"))
	assert.Equal(t, http.StatusOK, hit(h, "5.5.5.5"))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, reqFromIP("5.5.5.5"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())

	// Another client has its own bucket.
	assert.Equal(t, http.StatusOK, hit(h, "6.6.6.6"))
}

func TestRateLimitForgetsLeastRecentClient(t *testing.T) {
	h := limited(t, 0.001, 1, 2)

	require.Equal(t, http.StatusOK, hit(h, "1.1.1.1"))
	require.Equal(t, http.StatusTooManyRequests, hit(h, "1.1.1.1"))

	// A full table never turns new clients away; it forgets 1.1.1.1 instead.
	require.Equal(t, http.StatusOK, hit(h, "2.2.2.2"))
	require.Equal(t, http.StatusOK, hit(h, "3.3.3.3"))

	assert.Equal(t, http.StatusOK, hit(h, "1.1.1.1"), "forgotten client starts with a full bucket")
}

func TestRateLimitKeepsRecentlySeenClient(t *testing.T) {
	h := limited(t, 0.001, 1, 2)

	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1"))
	require.Equal(t, http.StatusOK, hit(h, "10.0.0.2"))
	// Touching 10.0.0.1 makes 10.0.0.2 the eviction candidate.
	require.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1"))
	require.Equal(t, http.StatusOK, hit(h, "10.0.0.3"))

	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1"), "recent client keeps its empty bucket")
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2"), "evicted client starts over")
}

func TestRateLimitConcurrentClients(t *testing.T) {
	h := limited(t, 1000, 1000, 50)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ip := fmt.Sprintf("10.1.%d.%d", id/256, id%256)
			for j := 0; j < 10; j++ {
				assert.Equal(t, http.StatusOK, hit(h, ip))
			}
		}(i)
	}
	wg.Wait()
}

func TestVisitorsSweep(t *testing.T) {
	v := newVisitors(1, 1, 0, zap.NewNop())
	now := time.Now()

	v.allow("1.1.1.1", now.Add(-2*visitorIdleTTL))
	v.allow("2.2.2.2", now)
	require.Equal(t, 2, v.len())

	v.sweep(now)
	assert.Equal(t, 1, v.len())
	assert.Equal(t, defaultMaxTrackedIPs, v.size)
}

func TestRateLimitSweeperStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, done := RateLimitMiddleware(ctx, 100, 100, 100, nil)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
