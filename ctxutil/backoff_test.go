// Copyright (c) 2025 BVK Chaitanya

package ctxutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Attempts: 5, Initial: time.Millisecond, Max: 4 * time.Millisecond}
	wants := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond}
	for i, want := range wants {
		if got := b.Delay(i); got != want {
			t.Fatalf("delay %d: want %v, got %v", i, want, got)
		}
	}
}

func TestRetryBackoff(t *testing.T) {
	ctx := context.Background()
	errTemp := errors.New("temporary")
	errFatal := errors.New("fatal")
	retryable := func(err error) bool { return errors.Is(err, errTemp) }

	b := Backoff{Attempts: 3, Initial: time.Millisecond}

	calls := 0
	if err := RetryBackoff(ctx, b, retryable, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTemp
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("want 3 calls, got %d", calls)
	}

	calls = 0
	if err := RetryBackoff(ctx, b, retryable, func(context.Context) error {
		calls++
		return errTemp
	}); !errors.Is(err, errTemp) {
		t.Fatalf("want %v, got %v", errTemp, err)
	}
	if calls != 3 {
		t.Fatalf("want 3 calls, got %d", calls)
	}

	calls = 0
	if err := RetryBackoff(ctx, b, retryable, func(context.Context) error {
		calls++
		return errFatal
	}); !errors.Is(err, errFatal) {
		t.Fatalf("want %v, got %v", errFatal, err)
	}
	if calls != 1 {
		t.Fatalf("want 1 call, got %d", calls)
	}
}
