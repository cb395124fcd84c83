// Package ratelimit bounds outbound request rate with a sliding window plus
// a fixed minimum inter-request delay. State is process-lifetime and
// mutex-guarded so concurrent account runs share one budget.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultLimit is the request ceiling per window.
	DefaultLimit = 120

	// DefaultWindow is the trailing window the ceiling applies to.
	DefaultWindow = 60 * time.Second

	// DefaultMinDelay is enforced before every request regardless of
	// window occupancy, to smooth bursts.
	DefaultMinDelay = 500 * time.Millisecond
)

// Limiter implements the sliding-window policy. The zero value is not
// usable; construct with New.
type Limiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	minDelay time.Duration
	sent     []time.Time

	// Injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Limiter. Non-positive arguments fall back to the defaults.
func New(limit int, window, minDelay time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if minDelay < 0 {
		minDelay = DefaultMinDelay
	}
	return &Limiter{
		limit:    limit,
		window:   window,
		minDelay: minDelay,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Wait blocks until it is safe to issue one more request and records that a
// request is about to be sent. It cannot fail except through context
// cancellation: when the window is full it sleeps until the oldest
// timestamp leaves the window, and it always applies the fixed minimum
// delay last.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)

		if len(l.sent) < l.limit {
			l.sent = append(l.sent, now)
			l.mu.Unlock()
			break
		}

		wait := l.window - now.Sub(l.sent[0])
		l.mu.Unlock()

		if wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	return l.sleep(ctx, l.minDelay)
}

// InFlight reports how many requests fall inside the current window.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.sent)
}

// prune drops timestamps older than the window. Caller must hold l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.sent) && !l.sent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.sent = append(l.sent[:0], l.sent[i:]...)
	}
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
