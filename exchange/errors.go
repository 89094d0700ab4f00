// Copyright (c) 2025 BVK Chaitanya

package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrRateLimited         = errors.New("rate limited")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOrderRejected       = errors.New("order rejected")
	ErrOrderNotFound       = errors.New("order not found")
)

// TransientError wraps network and server side failures that are expected to
// go away on a retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient gateway error: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsRetryable returns true if the error is a rate limit, a transient error or
// a network error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var terr *TransientError
	if errors.As(err, &terr) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}
