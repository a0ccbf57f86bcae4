// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratelimit provides token-bucket admission control for
// outbound search requests. One Limiter is shared by every request in
// the process; it is the only explicitly shared engine resource.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket refilled continuously from elapsed
// wall-clock time at each admission check. The refill/consume critical
// section is guarded by a single mutex. There is no per-caller
// fairness, but continued refill guarantees every waiter eventually
// acquires.
type Limiter struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	capacity float64
	tokens   float64
	last     time.Time

	// now is the clock; tests substitute it.
	now func() time.Time
}

// New returns a Limiter admitting rate requests/second with the given
// burst capacity. A non-positive burst defaults to the rate.
func New(rate float64, burst int) *Limiter {
	if rate <= 0 {
		rate = 1
	}
	capacity := float64(burst)
	if burst <= 0 {
		capacity = rate
	}
	return &Limiter{
		rate:     rate,
		capacity: capacity,
		tokens:   capacity,
		last:     time.Now(),
		now:      time.Now,
	}
}

// refill credits tokens for the wall-clock time elapsed since the last
// check. Callers must hold mu.
func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.last).Seconds()
	if elapsed > 0 {
		l.tokens += elapsed * l.rate
		if l.tokens > l.capacity {
			l.tokens = l.capacity
		}
		l.last = now
	}
}

// TryAcquire consumes one token if available without blocking.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Acquire blocks until a token is available or ctx is done. This is
// the throttle policy: callers wait rather than error while the bucket
// drains, recovering within one refill interval of burst absorption.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		// Sleep just long enough for the deficit to refill, then
		// recheck. Another caller may win the token; the loop retries.
		wait := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Tokens reports the current token count after a refill. Intended for
// tests and observability.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens
}
