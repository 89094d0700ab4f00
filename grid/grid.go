// Copyright (c) 2025 BVK Chaitanya

// Package grid implements the grid trading state machine and the engine that
// executes its decisions against an exchange gateway.
//
// A grid keeps one standing limit order per price level. When a buy at level
// k fills, a sell is placed one step up at level k+1's price; when that sell
// fills the round trip completes, its profit is realized and the level goes
// back to buying at its own price. Levels above the anchor price run the same
// cycle starting with a sell.
package grid

import (
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/bvk/gridbot/ctxutil"
	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/gridcalc"
	"github.com/bvk/gridbot/records"
)

type Status string

const (
	Initializing Status = "INITIALIZING"
	Active       Status = "ACTIVE"
	Paused       Status = "PAUSED"
	Stopped      Status = "STOPPED"
)

// ErrPriceOutOfRange and ErrStopped are user input errors, so they also match
// os.ErrInvalid.
var (
	ErrStateCorruption = errors.New("grid state is corrupted")
	ErrPriceOutOfRange = fmt.Errorf("price is outside the grid range: %w", os.ErrInvalid)
	ErrStopped         = fmt.Errorf("grid is stopped: %w", os.ErrInvalid)
)

// ID returns the grid identifier for a user and symbol.
func ID(user, symbol string) string {
	return path.Join(user, exchange.NormalizeSymbol(symbol))
}

type Options struct {
	// CandleInterval and CandleCount select the history used for automatic
	// grid ranges.
	CandleInterval exchange.Interval
	CandleCount    int

	Calc gridcalc.Options

	// MaxRetries is the number of failed placements allowed at a level before
	// the level is marked stuck.
	MaxRetries int

	// CancelOnPause cancels open orders when a grid is paused.
	CancelOnPause bool

	// GatewayBackoff is used for all gateway calls.
	GatewayBackoff ctxutil.Backoff

	// CancelBackoff is used for canceling orders when a grid is stopped.
	CancelBackoff ctxutil.Backoff

	// MaxFills is the number of recent fills kept in a grid's record.
	MaxFills int

	// RepairWarningInterval is the minimum time between warnings sent to the
	// owner of a grid record that cannot be loaded.
	RepairWarningInterval time.Duration
}

func (v *Options) setDefaults() {
	if v.CandleInterval == "" {
		v.CandleInterval = exchange.Interval4Hour
	}
	if v.CandleCount <= 0 {
		v.CandleCount = 30
	}
	if v.MaxRetries <= 0 {
		v.MaxRetries = 3
	}
	if v.GatewayBackoff.Attempts <= 0 {
		v.GatewayBackoff = ctxutil.Backoff{Attempts: 3, Initial: 500 * time.Millisecond, Max: 5 * time.Second}
	}
	if v.CancelBackoff.Attempts <= 0 {
		v.CancelBackoff = ctxutil.Backoff{Attempts: 5, Initial: time.Second, Max: 10 * time.Second}
	}
	if v.MaxFills <= 0 {
		v.MaxFills = 1000
	}
	if v.Calc == (gridcalc.Options{}) {
		v.Calc = gridcalc.DefaultOptions()
	}
	if v.RepairWarningInterval <= 0 {
		v.RepairWarningInterval = 4 * time.Hour
	}
}

func (v *Options) Check() error {
	if v.CandleCount < v.Calc.MinCandles {
		return fmt.Errorf("candle count %d is below the minimum candle count %d", v.CandleCount, v.Calc.MinCandles)
	}
	if v.MaxRetries < 1 {
		return fmt.Errorf("max retries must be positive")
	}
	return nil
}

// Check verifies the invariants of a persisted grid. Failures wrap
// ErrStateCorruption.
func Check(st *records.GridState) error {
	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("grid %s: %s: %w", ID(st.User, st.Symbol), fmt.Sprintf(format, args...), ErrStateCorruption)
	}

	if st.User == "" || st.Symbol == "" {
		return corrupt("user and symbol cannot be empty")
	}
	switch Status(st.Status) {
	case Initializing, Active, Paused, Stopped:
	default:
		return corrupt("unknown status %q", st.Status)
	}
	if !st.Lower.IsPositive() || st.Lower.GreaterThanOrEqual(st.Upper) {
		return corrupt("lower %s must be positive and below upper %s", st.Lower, st.Upper)
	}
	if st.NumLevels < 2 || len(st.Levels) != st.NumLevels {
		return corrupt("has %d levels, want %d (>= 2)", len(st.Levels), st.NumLevels)
	}
	if !st.Size.IsPositive() {
		return corrupt("size %s must be positive", st.Size)
	}
	for i, lvl := range st.Levels {
		if lvl == nil || lvl.Index != i {
			return corrupt("level %d is missing or has a wrong index", i)
		}
		if i > 0 && lvl.Price.LessThanOrEqual(st.Levels[i-1].Price) {
			return corrupt("level prices are not strictly increasing at level %d", i)
		}
		if _, err := exchange.ParseSide(lvl.Side); err != nil {
			return corrupt("level %d: %v", i, err)
		}
		if _, err := exchange.ParseSide(lvl.TargetSide); err != nil {
			return corrupt("level %d target: %v", i, err)
		}
		if b := lvl.Binding; b != nil && b.ClientRef == "" {
			return corrupt("level %d binding has no client reference", i)
		}
	}
	return nil
}

// IsLive returns true if the grid may hold open orders at the exchange.
func IsLive(st *records.GridState) bool {
	return Status(st.Status) != Stopped
}

// OpenOrders returns the number of levels with an open order.
func OpenOrders(st *records.GridState) int {
	n := 0
	for _, lvl := range st.Levels {
		if lvl.Binding != nil && lvl.Binding.Status == string(exchange.OPEN) {
			n++
		}
	}
	return n
}
