// Package ratelimit throttles calls to external model APIs.
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

const (
	// Window is the sliding window the call budget applies to.
	Window = time.Minute

	// Margin is added when waiting for the oldest call to leave the window.
	Margin = 100 * time.Millisecond
)

// Clock abstracts time for the limiter.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Limiter enforces a minimum spacing between calls and a maximum number of
// calls per sliding minute. Waiting callers are served one at a time, in
// approximately arrival order.
type Limiter struct {
	name     string
	capacity int
	cooldown time.Duration
	clock    Clock
	logger   *slog.Logger

	// turn is held for the whole of an Acquire, including its waits.
	turn     chan struct{}
	calls    []time.Time
	lastCall time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithLogger sets the limiter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a limiter allowing callsPerMinute calls per sliding minute with
// at least cooldown between consecutive calls.
func New(name string, callsPerMinute int, cooldown time.Duration, opts ...Option) *Limiter {
	if callsPerMinute <= 0 {
		callsPerMinute = 1
	}
	if cooldown < 0 {
		cooldown = 0
	}

	l := &Limiter{
		name:     name,
		capacity: callsPerMinute,
		cooldown: cooldown,
		clock:    realClock{},
		logger:   slog.Default(),
		turn:     make(chan struct{}, 1),
		calls:    make([]time.Time, 0, callsPerMinute),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.logger.Info("rate limiter initialized",
		"limiter", name,
		"calls_per_minute", callsPerMinute,
		"cooldown", cooldown)
	return l
}

// Acquire blocks until a call is permitted, records it and returns how long
// the caller waited. A cancelled context aborts the wait without recording.
func (l *Limiter) Acquire(ctx context.Context) (time.Duration, error) {
	start := l.clock.Now()

	select {
	case l.turn <- struct{}{}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	defer func() { <-l.turn }()

	now := l.clock.Now()
	if !l.lastCall.IsZero() {
		if since := now.Sub(l.lastCall); since < l.cooldown {
			if err := l.sleep(ctx, l.cooldown-since); err != nil {
				return 0, err
			}
			now = l.clock.Now()
		}
	}

	l.evict(now)
	if len(l.calls) >= l.capacity {
		wait := l.calls[0].Add(Window).Sub(now) + Margin
		l.logger.Warn("rate limit reached", "limiter", l.name, "wait", wait)
		if err := l.sleep(ctx, wait); err != nil {
			return 0, err
		}
		now = l.clock.Now()
		l.evict(now)
	}

	l.calls = append(l.calls, now)
	l.lastCall = now

	waited := now.Sub(start)
	if waited > Margin {
		l.logger.Debug("rate limiter waited", "limiter", l.name, "waited", waited)
	}
	return waited, nil
}

// InWindow returns the number of calls recorded in the current window.
func (l *Limiter) InWindow() int {
	l.turn <- struct{}{}
	defer func() { <-l.turn }()

	l.evict(l.clock.Now())
	return len(l.calls)
}

// Capacity returns the configured calls per minute.
func (l *Limiter) Capacity() int { return l.capacity }

// Cooldown returns the configured minimum spacing.
func (l *Limiter) Cooldown() time.Duration { return l.cooldown }

func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-Window)
	i := 0
	for i < len(l.calls) && l.calls[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}

func (l *Limiter) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.clock.After(d):
		return nil
	}
}
