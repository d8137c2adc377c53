package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// defaultMaxTrackedIPs caps the visitor table when no size is given.
	defaultMaxTrackedIPs = 10000
	// visitorIdleTTL drops visitors that have been quiet this long.
	visitorIdleTTL = 10 * time.Minute
	// sweepInterval is how often idle visitors are dropped.
	sweepInterval = 5 * time.Minute
	// evictionLogInterval throttles the capacity eviction log line.
	evictionLogInterval = 30 * time.Second
)

// visitor is one client address and its token bucket.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors is a bounded LRU table of per-address limiters. When the table
// is full the least recently seen address is forgotten and starts over with
// a full bucket if it returns.
type visitors struct {
	limit  rate.Limit
	burst  int
	size   int
	logger *zap.Logger

	mu        sync.Mutex
	table     *lru.Cache[string, *visitor]
	evicted   int
	lastEvLog time.Time
}

func newVisitors(rps float64, burst, size int, logger *zap.Logger) *visitors {
	if size <= 0 {
		size = defaultMaxTrackedIPs
	}
	// New only fails for a non-positive size.
	table, _ := lru.New[string, *visitor](size)
	return &visitors{
		limit:  rate.Limit(rps),
		burst:  burst,
		size:   size,
		logger: logger,
		table:  table,
	}
}

// allow reports whether ip may make a request now.
func (v *visitors) allow(ip string, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	vis, ok := v.table.Get(ip)
	if !ok {
		vis = &visitor{limiter: rate.NewLimiter(v.limit, v.burst)}
		if v.table.Add(ip, vis) {
			v.noteEviction(now)
		}
	}
	vis.lastSeen = now
	return vis.limiter.AllowN(now, 1)
}

func (v *visitors) noteEviction(now time.Time) {
	v.evicted++
	if now.Sub(v.lastEvLog) < evictionLogInterval {
		return
	}
	v.logger.Info("rate limiter full, forgot least recent clients",
		zap.Int("evicted", v.evicted), zap.Int("capacity", v.size))
	v.evicted = 0
	v.lastEvLog = now
}

// sweep drops visitors idle for longer than visitorIdleTTL.
func (v *visitors) sweep(now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, ip := range v.table.Keys() {
		if vis, ok := v.table.Peek(ip); ok && now.Sub(vis.lastSeen) > visitorIdleTTL {
			v.table.Remove(ip)
		}
	}
}

func (v *visitors) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.table.Len()
}

// RateLimitMiddleware applies a per-client token bucket of rps requests per
// second with the given burst. At most maxIPs clients are tracked.
//
// A sweeper goroutine runs until ctx is cancelled; the returned channel is
// closed once it has exited.
func RateLimitMiddleware(ctx context.Context, rps float64, burst int, maxIPs int, logger *zap.Logger) (func(http.Handler) http.Handler, <-chan struct{}) {
	if logger == nil {
		logger = zap.NewNop()
	}
	table := newVisitors(rps, burst, maxIPs, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				table.sweep(now)
			case <-ctx.Done():
				return
			}
		}
	}()

	middleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !table.allow(getClientIP(r), time.Now()) {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	return middleware, done
}
