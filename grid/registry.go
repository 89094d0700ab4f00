// Copyright (c) 2025 BVK Chaitanya

package grid

import (
	"context"
	"sort"

	"github.com/bvk/gridbot/syncmap"
)

type token struct {
	ch chan struct{}

	// removed is set, with the token held, when the token is dropped from the
	// registry. Holders of a removed token must retry with a fresh one.
	removed bool
}

// Registry maps grid ids to ownership tokens. A grid's state may only be
// read-modified-written by the holder of its token. Tokens are created lazily
// and removed when a grid is stopped.
type Registry struct {
	tokens syncmap.Map[string, *token]
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Acquire blocks till the token for the grid id is owned by the caller or
// the context is canceled. The returned function releases the token.
func (r *Registry) Acquire(ctx context.Context, id string) (release func(), err error) {
	for {
		t, ok := r.tokens.Load(id)
		if !ok {
			t, _ = r.tokens.LoadOrStore(id, &token{ch: make(chan struct{}, 1)})
		}

		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case t.ch <- struct{}{}:
		}

		if t.removed {
			<-t.ch
			continue
		}
		return func() { <-t.ch }, nil
	}
}

// Remove drops the token for the grid id. Caller must hold the token, which
// is still released with the function returned by Acquire.
func (r *Registry) Remove(id string) {
	if t, ok := r.tokens.Load(id); ok {
		t.removed = true
		r.tokens.CompareAndDelete(id, t)
	}
}

// Add creates a token for the grid id if it doesn't exist.
func (r *Registry) Add(id string) {
	r.tokens.LoadOrStore(id, &token{ch: make(chan struct{}, 1)})
}

// IDs returns the grid ids with a token in sorted order.
func (r *Registry) IDs() []string {
	ids := r.tokens.Keys()
	sort.Strings(ids)
	return ids
}
