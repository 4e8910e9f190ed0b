package httpx

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func TestMemoryRateLimiterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newMemoryRateLimiter(func() time.Time { return now })

	for i := 1; i <= 3; i++ {
		d := rl.Allow("ip:10.0.0.1", 3, time.Minute)
		if !d.allowed || d.count != i {
			t.Fatalf("request %d: expected allowed with count %d, got %+v", i, i, d)
		}
	}
	if d := rl.Allow("ip:10.0.0.1", 3, time.Minute); d.allowed {
		t.Fatalf("expected fourth request to be limited")
	}
	if d := rl.Allow("ip:10.0.0.2", 3, time.Minute); !d.allowed {
		t.Fatalf("expected other key to be allowed")
	}

	now = now.Add(time.Minute + time.Second)
	if d := rl.Allow("ip:10.0.0.1", 3, time.Minute); !d.allowed || d.count != 1 {
		t.Fatalf("expected window reset, got %+v", d)
	}
}

func TestMemoryRateLimiterDisabled(t *testing.T) {
	rl := newMemoryRateLimiter(time.Now)
	for i := 0; i < 10; i++ {
		if d := rl.Allow("k", 0, time.Minute); !d.allowed {
			t.Fatalf("expected unlimited when limit is zero")
		}
	}
}

func TestMemoryRateLimiterCleanup(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newMemoryRateLimiter(func() time.Time { return now })
	rl.Allow("a", 1, time.Minute)
	rl.cleanup(now.Add(2 * time.Minute))
	if len(rl.entries) != 0 {
		t.Fatalf("expected expired entries to be swept, got %d", len(rl.entries))
	}
}

func TestRateLimitKeyIP(t *testing.T) {
	req := httptest.NewRequest("POST", "/trigger", nil)
	req.RemoteAddr = "192.0.2.10:52311"
	if key := rateLimitKeyIP(req); key != "ip:192.0.2.10" {
		t.Fatalf("unexpected key %s", key)
	}
	req.RemoteAddr = ""
	if key := rateLimitKeyIP(req); key != "ip:unknown" {
		t.Fatalf("unexpected key %s", key)
	}
}

func TestRateLimitKeySeparatesRoutes(t *testing.T) {
	req := httptest.NewRequest("POST", "/trigger", nil)
	req.RemoteAddr = "192.0.2.10:52311"
	if key := rateLimitKey("/trigger", req); key != "trigger:ip:192.0.2.10" {
		t.Fatalf("unexpected key %s", key)
	}
	if rateLimitKey("/webhook", req) == rateLimitKey("/trigger", req) {
		t.Fatalf("expected distinct keys per route")
	}
}

func newTestRedisLimiter(t *testing.T) (*redisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rl := newRedisRateLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)
	t.Cleanup(rl.Close)
	return rl, mr
}

func TestRedisRateLimiterCounts(t *testing.T) {
	rl, mr := newTestRedisLimiter(t)

	for i := 1; i <= 2; i++ {
		d := rl.Allow("trigger:ip:10.0.0.1", 2, time.Minute)
		if !d.allowed || d.count != i {
			t.Fatalf("request %d: expected allowed with count %d, got %+v", i, i, d)
		}
	}
	d := rl.Allow("trigger:ip:10.0.0.1", 2, time.Minute)
	if d.allowed || d.count != 3 {
		t.Fatalf("expected third request to be limited, got %+v", d)
	}
	if d.windowEnd.IsZero() {
		t.Fatalf("expected window end to be set")
	}
	if other := rl.Allow("webhook:ip:10.0.0.1", 2, time.Minute); !other.allowed || other.count != 1 {
		t.Fatalf("expected separate window for other route, got %+v", other)
	}

	ttl := mr.TTL(redisKeyPrefix + "trigger:ip:10.0.0.1")
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected counter to expire within the window, got ttl %s", ttl)
	}
}

func TestRedisRateLimiterWindowReset(t *testing.T) {
	rl, mr := newTestRedisLimiter(t)

	rl.Allow("trigger:ip:10.0.0.1", 1, time.Minute)
	if d := rl.Allow("trigger:ip:10.0.0.1", 1, time.Minute); d.allowed {
		t.Fatalf("expected second request to be limited")
	}
	mr.FastForward(time.Minute + time.Second)
	if d := rl.Allow("trigger:ip:10.0.0.1", 1, time.Minute); !d.allowed || d.count != 1 {
		t.Fatalf("expected a fresh window, got %+v", d)
	}
}

func TestRedisRateLimiterRepairsMissingExpiry(t *testing.T) {
	rl, mr := newTestRedisLimiter(t)
	key := redisKeyPrefix + "trigger:ip:10.0.0.1"
	if err := mr.Set(key, "5"); err != nil {
		t.Fatalf("seed counter: %v", err)
	}

	d := rl.Allow("trigger:ip:10.0.0.1", 10, time.Minute)
	if !d.allowed || d.count != 6 {
		t.Fatalf("unexpected decision %+v", d)
	}
	if ttl := mr.TTL(key); ttl <= 0 {
		t.Fatalf("expected expiry to be set on a counter without one, got %s", ttl)
	}
}

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	rl, mr := newTestRedisLimiter(t)
	mr.Close()

	for i := 0; i < 3; i++ {
		if d := rl.Allow("trigger:ip:10.0.0.1", 1, time.Minute); !d.allowed {
			t.Fatalf("expected requests to pass while redis is down, got %+v", d)
		}
	}
}

func TestRedisRateLimiterDisabled(t *testing.T) {
	rl, mr := newTestRedisLimiter(t)
	if d := rl.Allow("k", 0, time.Minute); !d.allowed {
		t.Fatalf("expected unlimited when limit is zero")
	}
	if mr.Exists(redisKeyPrefix + "k") {
		t.Fatalf("expected no counter when limiting is disabled")
	}
}

func TestNewRedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rl, err := NewRedisRateLimiter(mr.Addr(), "", 0, nil)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	defer rl.Close()
	if d := rl.Allow("trigger:ip:10.0.0.1", 1, time.Minute); !d.allowed {
		t.Fatalf("expected first request to pass")
	}
}

func TestRedisRateLimiterRequiresReachableServer(t *testing.T) {
	if _, err := NewRedisRateLimiter("127.0.0.1:1", "", 0, nil); err == nil {
		t.Fatalf("expected error for unreachable redis")
	}
}
