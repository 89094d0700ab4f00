// Copyright (c) 2025 BVK Chaitanya

package monitor

import (
	"context"
	"sync"

	"github.com/bvk/gridbot/exchange"
)

// worker serializes the processing of one symbol. Only the latest pending
// snapshot is kept; older ones are dropped when a newer one arrives.
type worker struct {
	symbol string

	mu      sync.Mutex
	pending bool
	filled  bool
	snap    *exchange.Snapshot

	signal chan struct{}
}

func newWorker(symbol string) *worker {
	return &worker{
		symbol: symbol,
		signal: make(chan struct{}, 1),
	}
}

// post queues an update. A fill update without a snapshot still schedules a
// pass so that the grids are reconciled promptly.
func (w *worker) post(update *exchange.Update) {
	w.mu.Lock()
	w.pending = true
	if update.Snapshot != nil {
		w.snap = update.Snapshot
	}
	if update.Fill != nil {
		w.filled = true
	}
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// take returns the latest snapshot and whether a fill was seen since the
// previous take.
func (w *worker) take() (snap *exchange.Snapshot, filled, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap, filled, ok = w.snap, w.filled, w.pending
	w.snap, w.filled, w.pending = nil, false, false
	return snap, filled, ok
}

func (w *worker) run(ctx context.Context, fn func(context.Context, string, *exchange.Snapshot, bool)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.signal:
			if snap, filled, ok := w.take(); ok {
				fn(ctx, w.symbol, snap, filled)
			}
		}
	}
}
