package httpx

import (
	"testing"
	"time"
)

var limiterBase = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func TestMemoryRateLimiterCountsWithinWindow(t *testing.T) {
	rl := NewMemoryRateLimiter().(*memoryRateLimiter)
	defer rl.Close()

	for i := 1; i <= 3; i++ {
		decision := rl.allowAt("ip:10.0.0.1", 3, time.Minute, limiterBase)
		if !decision.allowed {
			t.Fatalf("request %d denied below limit", i)
		}
		if decision.count != i {
			t.Errorf("request %d counted as %d", i, decision.count)
		}
	}
	decision := rl.allowAt("ip:10.0.0.1", 3, time.Minute, limiterBase)
	if decision.allowed {
		t.Fatal("request over limit allowed")
	}
	if decision.count != 3 {
		t.Errorf("denied request reported count %d", decision.count)
	}

	// Other keys keep their own window.
	if d := rl.allowAt("ip:10.0.0.2", 3, time.Minute, limiterBase); !d.allowed {
		t.Fatal("distinct key denied on first request")
	}
}

func TestMemoryRateLimiterSlidesAcrossBuckets(t *testing.T) {
	rl := NewMemoryRateLimiter().(*memoryRateLimiter)
	defer rl.Close()

	key := "ip:10.0.0.1"
	for i := 0; i < 4; i++ {
		if d := rl.allowAt(key, 4, time.Minute, limiterBase); !d.allowed {
			t.Fatalf("request %d denied in first bucket", i+1)
		}
	}

	// One second into the next bucket the previous four requests still weigh
	// 4*59/60, so a single request fits and a second does not.
	shortly := limiterBase.Add(61 * time.Second)
	if d := rl.allowAt(key, 4, time.Minute, shortly); !d.allowed {
		t.Fatal("expected one request to fit just after the bucket boundary")
	}
	if d := rl.allowAt(key, 4, time.Minute, shortly); d.allowed {
		t.Fatal("burst should still be throttled just after the bucket boundary")
	}

	// Halfway through the bucket the carryover has decayed to 4*0.5.
	midway := limiterBase.Add(90 * time.Second)
	if d := rl.allowAt(key, 4, time.Minute, midway); !d.allowed {
		t.Fatal("expected room once the previous bucket decayed")
	}
}

func TestMemoryRateLimiterResetsAfterIdleWindows(t *testing.T) {
	rl := NewMemoryRateLimiter().(*memoryRateLimiter)
	defer rl.Close()

	key := "ip:10.0.0.1"
	for i := 0; i < 2; i++ {
		rl.allowAt(key, 2, time.Minute, limiterBase)
	}
	if d := rl.allowAt(key, 2, time.Minute, limiterBase); d.allowed {
		t.Fatal("expected denial with exhausted window")
	}

	later := limiterBase.Add(2*time.Minute + 5*time.Second)
	d := rl.allowAt(key, 2, time.Minute, later)
	if !d.allowed {
		t.Fatal("expected fresh quota after two idle buckets")
	}
	if d.count != 1 {
		t.Errorf("fresh window counted %d", d.count)
	}
}

func TestMemoryRateLimiterZeroLimitDisables(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()

	for i := 0; i < 50; i++ {
		if d := rl.Allow("ip:10.0.0.1", 0, time.Minute); !d.allowed {
			t.Fatal("zero limit should disable quota enforcement")
		}
	}
}

func TestMemoryRateLimiterCleanupDropsIdleEntries(t *testing.T) {
	rl := NewMemoryRateLimiter().(*memoryRateLimiter)
	defer rl.Close()

	rl.allowAt("ip:stale", 5, time.Minute, limiterBase)
	rl.allowAt("ip:fresh", 5, time.Minute, limiterBase.Add(rateLimiterSweepInterval))

	rl.cleanup(limiterBase.Add(rateLimiterSweepInterval))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.entries["ip:stale"]; ok {
		t.Error("idle entry survived cleanup")
	}
	if _, ok := rl.entries["ip:fresh"]; !ok {
		t.Error("active entry removed by cleanup")
	}
}
