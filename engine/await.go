package engine

import (
	"context"
	"time"
)

// WaitState is the tri-state outcome of an Await probe.
type WaitState int

const (
	// WaitPending means the condition has not resolved yet.
	WaitPending WaitState = iota
	// WaitDone means the condition resolved.
	WaitDone
	// WaitFailed means the condition can never resolve.
	WaitFailed
)

// Probe inspects remote state once. Returning WaitPending schedules
// another probe after the interval; WaitDone and WaitFailed stop the loop.
// A non-nil error stops the loop regardless of state.
type Probe func(ctx context.Context) (WaitState, error)

// Await runs fn repeatedly until it resolves, the deadline elapses, or the
// context is canceled. A zero deadline means no ceiling beyond the context.
//
// Deadline expiry is not an error: Await returns WaitPending so the caller
// can report in-flight work as pending rather than failed. The first probe
// runs immediately, not after one interval.
func Await(ctx context.Context, interval, deadline time.Duration, fn Probe) (WaitState, error) {
	var expiry <-chan time.Time
	if deadline > 0 {
		t := time.NewTimer(deadline)
		defer t.Stop()
		expiry = t.C
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		state, err := fn(ctx)
		if err != nil {
			return state, err
		}
		if state != WaitPending {
			return state, nil
		}

		select {
		case <-ctx.Done():
			return WaitPending, ctx.Err()
		case <-expiry:
			return WaitPending, nil
		case <-ticker.C:
		}
	}
}
