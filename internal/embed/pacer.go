package embed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time for pacing and backoff.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep implements Clock.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer enforces a minimum spacing between provider calls.
// It is a token bucket with burst 1 driven by an injectable Clock.
// A nil *Pacer never waits.
type Pacer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	clock   Clock
}

// NewPacer returns a pacer allowing one call per interval, or nil when
// interval is not positive.
func NewPacer(interval time.Duration, clock Clock) *Pacer {
	if interval <= 0 {
		return nil
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Pacer{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		clock:   clock,
	}
}

// Wait blocks until the next call may be issued.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}

	p.mu.Lock()
	now := p.clock.Now()
	r := p.limiter.ReserveN(now, 1)
	p.mu.Unlock()

	if !r.OK() {
		return fmt.Errorf("pacer: reservation exceeds burst")
	}

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if err := p.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(p.clock.Now())
		return err
	}
	return nil
}
