// Copyright (c) 2025 BVK Chaitanya

package ctxutil

import (
	"context"
	"fmt"
	"time"
)

// Backoff holds the parameters for a bounded exponential backoff.
type Backoff struct {
	// Attempts is the maximum number of calls, including the first call.
	Attempts int

	// Initial is the wait time after the first failure. It doubles after every
	// subsequent failure, but never exceeds the Max.
	Initial time.Duration
	Max     time.Duration
}

func (b *Backoff) setDefaults() {
	if b.Attempts <= 0 {
		b.Attempts = 1
	}
	if b.Initial <= 0 {
		b.Initial = 100 * time.Millisecond
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
}

// Delay returns the wait duration after the n-th failure (zero-based).
func (b Backoff) Delay(n int) time.Duration {
	b.setDefaults()
	d := b.Initial
	for i := 0; i < n && d < b.Max; i++ {
		d *= 2
	}
	return min(d, b.Max)
}

// RetryBackoff calls the input function till it succeeds, or it returns an
// error that is not retryable, or the attempts are exhausted, or the context
// is canceled. The last error is returned wrapped with the attempt count when
// the attempts are exhausted.
func RetryBackoff(ctx context.Context, b Backoff, retryable func(error) bool, f func(context.Context) error) error {
	b.setDefaults()

	var err error
	for i := 0; i < b.Attempts; i++ {
		if err = f(ctx); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if i+1 == b.Attempts {
			break
		}
		if cerr := Sleep(ctx, b.Delay(i)); cerr != nil {
			return fmt.Errorf("%w (last error: %v)", cerr, err)
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", b.Attempts, err)
}
