package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryRateLimiterWindow(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l := NewRateLimiter(time.Minute, 2).(*memoryRateLimiter)
	l.now = func() time.Time { return now }

	if !l.Allow("login:10.0.0.1") || !l.Allow("LOGIN:10.0.0.1 ") {
		t.Fatalf("expected first two hits allowed")
	}
	if l.Allow("login:10.0.0.1") {
		t.Fatalf("expected third hit denied")
	}
	if !l.Allow("login:10.0.0.2") {
		t.Fatalf("expected other key unaffected")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow("login:10.0.0.1") {
		t.Fatalf("expected window to slide")
	}
}

func TestRateLimitKey(t *testing.T) {
	if got := rateLimitKey("login", ""); got != "login:unknown" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := rateLimitKey("register", " 10.0.0.1 "); got != "register:10.0.0.1" {
		t.Fatalf("unexpected key %q", got)
	}
}

type mockRedisEvaler struct {
	lastScript string
	lastKeys   []string
	lastArgs   []interface{}
	result     int64
	err        error
}

func (m *mockRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastScript = script
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(m.result)
	return cmd
}

func newTestRedisLimiter(client redisEvaler, window time.Duration, max int) *redisRateLimiter {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &redisRateLimiter{
		client:    client,
		window:    window,
		max:       max,
		prefix:    "auth:rl:",
		now:       func() time.Time { return now },
		newMember: func() string { return "hit-1" },
	}
}

func TestRedisRateLimiterAllow(t *testing.T) {
	t.Run("nil receiver fail-open", func(t *testing.T) {
		var l *redisRateLimiter
		if !l.Allow("login:10.0.0.1") {
			t.Fatalf("expected fail-open for nil limiter")
		}
	})

	t.Run("empty key rejected", func(t *testing.T) {
		l := newTestRedisLimiter(&mockRedisEvaler{result: 1}, time.Minute, 3)
		if l.Allow("   ") {
			t.Fatalf("expected empty key to be rejected")
		}
	})

	t.Run("sliding window arguments", func(t *testing.T) {
		mock := &mockRedisEvaler{result: 1}
		l := newTestRedisLimiter(mock, 2*time.Minute, 3)
		if !l.Allow(" Login:10.0.0.1 ") {
			t.Fatalf("expected allow when script admits the hit")
		}
		if len(mock.lastKeys) != 1 || mock.lastKeys[0] != "auth:rl:login:10.0.0.1" {
			t.Fatalf("unexpected key normalization, got %+v", mock.lastKeys)
		}
		want := []interface{}{l.now().UnixMilli(), int64(120000), 3, "hit-1"}
		if len(mock.lastArgs) != len(want) {
			t.Fatalf("unexpected args %+v", mock.lastArgs)
		}
		for i := range want {
			if mock.lastArgs[i] != want[i] {
				t.Fatalf("arg %d: expected %v, got %v", i, want[i], mock.lastArgs[i])
			}
		}
		if mock.lastScript != redisSlidingWindowScript {
			t.Fatalf("expected sliding window script")
		}
	})

	t.Run("deny when window is full", func(t *testing.T) {
		l := newTestRedisLimiter(&mockRedisEvaler{result: 0}, time.Minute, 3)
		if l.Allow("login:10.0.0.1") {
			t.Fatalf("expected deny when script rejects the hit")
		}
	})

	t.Run("redis error fail-open", func(t *testing.T) {
		l := newTestRedisLimiter(&mockRedisEvaler{err: errors.New("redis down")}, time.Minute, 3)
		if !l.Allow("login:10.0.0.1") {
			t.Fatalf("expected fail-open on redis errors")
		}
	})
}
