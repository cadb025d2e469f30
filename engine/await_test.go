package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAwaitResolvesImmediately(t *testing.T) {
	calls := 0
	state, err := Await(context.Background(), time.Hour, 0, func(context.Context) (WaitState, error) {
		calls++
		return WaitDone, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != WaitDone {
		t.Fatalf("state = %v, want WaitDone", state)
	}
	if calls != 1 {
		t.Fatalf("probe ran %d times, want 1", calls)
	}
}

func TestAwaitPollsUntilDone(t *testing.T) {
	calls := 0
	state, err := Await(context.Background(), time.Millisecond, 0, func(context.Context) (WaitState, error) {
		calls++
		if calls < 3 {
			return WaitPending, nil
		}
		return WaitDone, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != WaitDone {
		t.Fatalf("state = %v, want WaitDone", state)
	}
	if calls != 3 {
		t.Fatalf("probe ran %d times, want 3", calls)
	}
}

func TestAwaitDeadlineReturnsPending(t *testing.T) {
	state, err := Await(context.Background(), time.Millisecond, 20*time.Millisecond, func(context.Context) (WaitState, error) {
		return WaitPending, nil
	})
	if err != nil {
		t.Fatalf("deadline expiry must not be an error, got %v", err)
	}
	if state != WaitPending {
		t.Fatalf("state = %v, want WaitPending", state)
	}
}

func TestAwaitFailureStops(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	state, err := Await(context.Background(), time.Millisecond, 0, func(context.Context) (WaitState, error) {
		calls++
		return WaitFailed, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if state != WaitFailed {
		t.Fatalf("state = %v, want WaitFailed", state)
	}
	if calls != 1 {
		t.Fatalf("probe ran %d times, want 1", calls)
	}
}

func TestAwaitContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Await(ctx, time.Hour, 0, func(context.Context) (WaitState, error) {
		return WaitPending, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
