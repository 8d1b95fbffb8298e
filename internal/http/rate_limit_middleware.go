package httpx

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const rateLimiterSweepInterval = 5 * time.Minute

// RateLimiter counts requests per key within a sliding window.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

// memoryRateLimiter approximates a sliding window with two adjacent buckets:
// the previous bucket's count is weighted by how much of it still overlaps
// the trailing window, so the estimate decays smoothly instead of resetting
// at bucket boundaries.
type memoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*slidingCounter
	stopCh  chan struct{}
	once    sync.Once
}

type slidingCounter struct {
	bucketStart time.Time
	prev        int
	curr        int
	lastSeen    time.Time
}

// NewMemoryRateLimiter returns an in-process limiter with periodic sweeping.
func NewMemoryRateLimiter() RateLimiter {
	rl := &memoryRateLimiter{
		entries: make(map[string]*slidingCounter),
		stopCh:  make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *memoryRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	return rl.allowAt(key, limit, window, time.Now())
}

func (rl *memoryRateLimiter) allowAt(key string, limit int, window time.Duration, now time.Time) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	start := now.Truncate(window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	counter, ok := rl.entries[key]
	if !ok {
		counter = &slidingCounter{bucketStart: start}
		rl.entries[key] = counter
	}
	if !counter.bucketStart.Equal(start) {
		if counter.bucketStart.Equal(start.Add(-window)) {
			counter.prev = counter.curr
		} else {
			counter.prev = 0
		}
		counter.curr = 0
		counter.bucketStart = start
	}
	counter.lastSeen = now

	overlap := 1 - float64(now.Sub(start))/float64(window)
	estimated := float64(counter.prev)*overlap + float64(counter.curr)
	windowEnd := start.Add(window)

	if estimated >= float64(limit) {
		return rateDecision{allowed: false, count: int(math.Ceil(estimated)), windowEnd: windowEnd}
	}
	counter.curr++
	return rateDecision{allowed: true, count: int(estimated) + 1, windowEnd: windowEnd}
}

func (rl *memoryRateLimiter) sweepLoop() {
	ticker := time.NewTicker(rateLimiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *memoryRateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, counter := range rl.entries {
		if now.Sub(counter.lastSeen) >= rateLimiterSweepInterval {
			delete(rl.entries, key)
		}
	}
}

func (rl *memoryRateLimiter) Close() {
	rl.once.Do(func() {
		close(rl.stopCh)
	})
}

// limited applies the API-wide IP-keyed request quota before invoking next.
// Keying stays per-IP even for authenticated traffic; users behind a shared
// address share one quota.
func (r *Router) limited(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		limit := r.cfg.RateLimitMax
		if limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		decision := r.limiter.Allow(rateLimitKeyIP(req), limit, r.cfg.RateLimitWindow)
		r.applyRateHeaders(w, limit, decision)
		if !decision.allowed {
			r.recordRateLimitHit(route)
			writeError(w, http.StatusTooManyRequests, "too many requests, please try again later")
			return
		}
		next(w, req)
	}
}

// guarded combines the rate limit and the authorization gate.
func (r *Router) guarded(route string, next http.HandlerFunc) http.HandlerFunc {
	return r.limited(route, r.requireAuth(next))
}

func rateLimitKeyIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}
