// Package backoff computes retry delays shared by the discovery client
// and the player IPC transport.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy calculates exponential backoff delays with jitter.
// The zero value is unusable; use one of the preset constructors or
// fill all fields. Policy is a value type and safe to copy.
type Policy struct {
	Base   time.Duration // delay for attempt 0
	Max    time.Duration // cap applied before jitter
	Jitter float64       // fraction of the delay randomized in [-Jitter, +Jitter]
}

// Discovery returns the policy used between directory mirror attempts.
func Discovery() Policy {
	return Policy{Base: 200 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2}
}

// Transport returns the policy used between IPC reconnect attempts.
func Transport() Policy {
	return Policy{Base: 200 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2}
}

// Delay returns the delay before retry number attempt (starting at 0).
// The result is min(Max, Base*2^attempt) with Jitter applied, and is
// never negative.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := p.Base
	for range attempt {
		if d >= p.Max/2 {
			d = p.Max
			break
		}
		d *= 2
	}
	if d > p.Max {
		d = p.Max
	}

	if p.Jitter > 0 {
		spread := (rand.Float64()*2 - 1) * p.Jitter // [-Jitter, +Jitter]
		d += time.Duration(float64(d) * spread)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Sleep waits for Delay(attempt) or until ctx is done, returning
// ctx.Err() in the latter case.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
