package ratelimit

import (
	"context"
	"testing"
	"time"
)

func newTestLimiter(bucket Bucket) (*TokenBucketLimiter, *time.Time) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	l := NewTokenBucketLimiter(bucket)
	l.ts = base
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowBurstThenDeny(t *testing.T) {
	l, _ := newTestLimiter(Bucket{RatePerSec: 1, Burst: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx)
		if err != nil {
			t.Fatalf("Allow #%d error: %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("Allow #%d should pass within burst", i+1)
		}
	}

	d, err := l.Allow(ctx)
	if err != nil {
		t.Fatalf("Allow after burst error: %v", err)
	}
	if d.Allowed {
		t.Fatal("Allow after burst exhausted should deny")
	}
	if d.RetryAfter <= 0 {
		t.Errorf("denied decision should carry RetryAfter, got %v", d.RetryAfter)
	}
}

func TestAllowRefillsOverTime(t *testing.T) {
	l, now := newTestLimiter(Bucket{RatePerSec: 2, Burst: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d, _ := l.Allow(ctx); !d.Allowed {
			t.Fatal("burst should be available")
		}
	}
	if d, _ := l.Allow(ctx); d.Allowed {
		t.Fatal("bucket should be empty")
	}

	*now = now.Add(time.Second) // refills 2 tokens at 2/s
	for i := 0; i < 2; i++ {
		if d, _ := l.Allow(ctx); !d.Allowed {
			t.Fatalf("token %d should have refilled", i+1)
		}
	}
	if d, _ := l.Allow(ctx); d.Allowed {
		t.Fatal("refill must not exceed burst")
	}
}

func TestAllowDisabledBucket(t *testing.T) {
	l := NewTokenBucketLimiter(Bucket{})
	for i := 0; i < 10; i++ {
		d, err := l.Allow(context.Background())
		if err != nil || !d.Allowed {
			t.Fatalf("disabled bucket must always allow: d=%+v err=%v", d, err)
		}
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l, _ := newTestLimiter(Bucket{RatePerSec: 0.001, Burst: 1})
	ctx := context.Background()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first Wait should pass: %v", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if err := l.Wait(cctx); err == nil {
		t.Fatal("Wait on drained slow bucket should fail when context expires")
	}
}
