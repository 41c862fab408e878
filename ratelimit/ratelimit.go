// Package ratelimit
// Author: momentics <momentics@gmail.com>
//
// Token-bucket rate limiting for channel output, built on
// golang.org/x/time/rate. Adapted from the original RateLimiters
// factory/NullLimiter pair, with lazy refill delegated to x/time/rate's
// own now-minus-last accounting instead of a hand-rolled ticker.
package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Unit is a rate unit, value per time interval, mirroring the original's
// BinaryUnit (bits/bytes per second/minute/...).
type Unit struct {
	BytesPerUnit float64
	Interval     time.Duration
}

// Common units. A channel configured WithRateLimit(n, BytesPerSecond)
// gets a bucket refilling n bytes every second.
var (
	BytesPerSecond = Unit{BytesPerUnit: 1, Interval: time.Second}
	BitsPerSecond  = Unit{BytesPerUnit: 1.0 / 8, Interval: time.Second}
	BytesPerMinute = Unit{BytesPerUnit: 1, Interval: time.Minute}
)

// RateLimiter gates output throughput. Acquire is called by a channel
// processor before writing n bytes; a denial carries a wait hint so the
// processor can schedule a retry instead of busy-polling.
type RateLimiter interface {
	// Acquire reports whether n bytes may be sent now. If not granted,
	// wait is the processor's hint for how long to defer before retrying.
	Acquire(n int) (granted bool, wait time.Duration)
}

// Factory produces independent RateLimiter instances, mirroring the
// original's per-channel-clone pattern used by the server acceptor so
// that every accepted connection gets its own bucket.
type Factory func() RateLimiter

// NullLimiter never limits; Acquire always grants immediately.
type NullLimiter struct{}

// Acquire implements RateLimiter.
func (NullLimiter) Acquire(n int) (bool, time.Duration) { return true, 0 }

// NoLimit returns a shared RateLimiter that never limits.
func NoLimit() RateLimiter { return NullLimiter{} }

// NoLimitFactory returns a Factory that always yields the same
// unmetered limiter, since NullLimiter carries no per-channel state.
func NoLimitFactory() Factory {
	return func() RateLimiter { return NullLimiter{} }
}

// TokenBucketLimiter wraps golang.org/x/time/rate.Limiter with a burst
// equal to one second's worth of tokens by default, matching the
// original's default bucket-size convention.
type TokenBucketLimiter struct {
	limiter *rate.Limiter
}

// Limit constructs a token-bucket limiter for value units per unit.Interval.
func Limit(value int64, unit Unit) RateLimiter {
	bytesPerSec := float64(value) * unit.BytesPerUnit / unit.Interval.Seconds()
	burst := int(bytesPerSec)
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketLimiter{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

// LimitFactory returns a Factory producing independent token buckets,
// each with its own refill state, for value units per unit.Interval.
func LimitFactory(value int64, unit Unit) Factory {
	return func() RateLimiter { return Limit(value, unit) }
}

// Acquire implements RateLimiter by reserving n tokens and cancelling the
// reservation immediately when denied, so unused tokens are not held
// against a caller that will not retry on this exact schedule.
func (l *TokenBucketLimiter) Acquire(n int) (bool, time.Duration) {
	r := l.limiter.ReserveN(time.Now(), n)
	if !r.OK() {
		return false, 0
	}
	delay := r.Delay()
	if delay > 0 {
		r.Cancel()
		return false, delay
	}
	return true, 0
}
