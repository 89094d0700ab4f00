// Copyright (c) 2023 BVK Chaitanya

// Package ctxutil has small helpers for context-bound waits and retries.
package ctxutil

import (
	"context"
	"time"
)

// Sleep blocks the caller for the duration or till the context is
// canceled. Returns the context's cause when woken early.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return context.Cause(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}

// Retry calls f every interval till it succeeds or the context expires. Last
// error from f is returned when the context expires first.
func Retry(ctx context.Context, interval time.Duration, f func() error) error {
	for {
		err := f()
		if err == nil {
			return nil
		}
		if Sleep(ctx, interval) != nil {
			return err
		}
	}
}

// RetryTimeout is Retry that gives up after the timeout.
func RetryTimeout(ctx context.Context, interval, timeout time.Duration, f func() error) error {
	tctx, tcancel := context.WithTimeout(ctx, timeout)
	defer tcancel()
	return Retry(tctx, interval, f)
}
