// Copyright (c) 2025 BVK Chaitanya

// Package notify defines the events raised by the engines and the sinks that
// deliver them to users.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

type Kind string

const (
	Alert       Kind = "ALERT"
	Fill        Kind = "FILL"
	GridWarning Kind = "GRID-WARNING"
)

type Event struct {
	User   string
	Symbol string
	Kind   Kind

	Message string
	Time    time.Time
}

func (e *Event) String() string {
	return fmt.Sprintf("[%s] %s: %s", e.Kind, strings.ToUpper(e.Symbol), e.Message)
}

// Sink delivers events to users. Delivery and acknowledgement are the sink's
// responsibility.
type Sink interface {
	Notify(ctx context.Context, e *Event) error
}

// Emit sends the event to the sink and logs delivery failures. Callers never
// wait on or react to delivery errors.
func Emit(ctx context.Context, sink Sink, e *Event) {
	if sink == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if err := sink.Notify(ctx, e); err != nil {
		slog.Warn("could not deliver notification (ignored)", "user", e.User, "symbol", e.Symbol, "kind", e.Kind, "err", err)
	}
}

// Multi fans out events to multiple sinks.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, e *Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to the log.
type LogSink struct{}

func (LogSink) Notify(ctx context.Context, e *Event) error {
	slog.Info("notification", "user", e.User, "symbol", e.Symbol, "kind", e.Kind, "message", e.Message, "at", e.Time)
	return nil
}

// Func adapts a function into a Sink.
type Func func(ctx context.Context, e *Event) error

func (f Func) Notify(ctx context.Context, e *Event) error {
	return f(ctx, e)
}

// Recorder keeps all events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

func (r *Recorder) Notify(ctx context.Context, e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := *e
	r.events = append(r.events, &v)
	return nil
}

// Events returns the recorded events of the given kinds, or all events when
// no kind is given.
func (r *Recorder) Events(kinds ...Kind) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var events []*Event
	for _, e := range r.events {
		if len(kinds) == 0 {
			events = append(events, e)
			continue
		}
		for _, k := range kinds {
			if e.Kind == k {
				events = append(events, e)
				break
			}
		}
	}
	return events
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = nil
}
