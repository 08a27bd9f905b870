package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

type Bucket struct {
	RatePerSec float64 `yaml:"ratePerSec"`
	Burst      int     `yaml:"burst"`
}

func (b Bucket) Enabled() bool {
	return b.RatePerSec > 0 && b.Burst > 0
}

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context) (Decision, error)
	Wait(ctx context.Context) error
}

// TokenBucketLimiter is an in-process token bucket. The orchestrator uses it
// to pace instance starts: each start consumes one token so a batch of dev
// servers booting at once cannot starve the host.
type TokenBucketLimiter struct {
	mu     sync.Mutex
	bucket Bucket
	tokens float64
	ts     time.Time
	now    func() time.Time
}

func NewTokenBucketLimiter(bucket Bucket) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		bucket: bucket,
		tokens: float64(bucket.Burst),
		ts:     time.Now(),
		now:    time.Now,
	}
}

func (l *TokenBucketLimiter) Allow(ctx context.Context) (Decision, error) {
	if l == nil || !l.bucket.Enabled() {
		return Decision{Allowed: true}, nil
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Before(l.ts) {
		l.ts = now
	}
	elapsed := now.Sub(l.ts).Seconds()
	l.tokens = math.Min(float64(l.bucket.Burst), l.tokens+elapsed*l.bucket.RatePerSec)
	l.ts = now

	if l.tokens >= 1 {
		l.tokens--
		return Decision{Allowed: true}, nil
	}

	needed := 1 - l.tokens
	retry := time.Duration(math.Ceil(needed/l.bucket.RatePerSec*1000)) * time.Millisecond
	if retry < 10*time.Millisecond {
		retry = 10 * time.Millisecond
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}

// Wait blocks until a token is available or the context is done.
func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	for {
		d, err := l.Allow(ctx)
		if err != nil {
			return err
		}
		if d.Allowed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.RetryAfter):
		}
	}
}
