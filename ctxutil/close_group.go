// Copyright (c) 2023 BVK Chaitanya

package ctxutil

import (
	"context"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
)

// CloseGroup runs background goroutines under a shared lifetime context.
// Close cancels the context with os.ErrClosed and waits for every goroutine
// to return. Zero value is ready to use.
type CloseGroup struct {
	initOnce sync.Once

	ctx    context.Context
	cancel context.CancelCauseFunc

	wg sync.WaitGroup
}

func (cg *CloseGroup) lazyInit() {
	cg.initOnce.Do(func() {
		cg.ctx, cg.cancel = context.WithCancelCause(context.Background())
	})
}

// Close can be called multiple times.
func (cg *CloseGroup) Close() {
	cg.lazyInit()
	cg.cancel(os.ErrClosed)
	cg.wg.Wait()
}

func (cg *CloseGroup) Context() context.Context {
	cg.lazyInit()
	return cg.ctx
}

// Go runs f in a new goroutine. Panics are logged with the stack trace before
// they are re-raised.
func (cg *CloseGroup) Go(f func(ctx context.Context)) {
	cg.lazyInit()
	cg.wg.Add(1)
	go func() {
		defer cg.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("CAUGHT PANIC", "panic", r, "stack", string(debug.Stack()))
				panic(r)
			}
		}()
		f(cg.ctx)
	}()
}
