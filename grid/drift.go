// Copyright (c) 2025 BVK Chaitanya

package grid

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/gridcalc"
	"github.com/bvk/gridbot/notify"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// driftPercent returns the percent change from old to cur.
func driftPercent(old, cur decimal.Decimal) decimal.Decimal {
	if old.IsZero() {
		return decimal.Zero
	}
	return cur.Sub(old).Div(old).Mul(hundred).Abs()
}

// CheckDrift recomputes the candle range of an active auto-range grid and
// emits a GridWarning when either bound moved by more than threshold percent.
// Returns true if the warning was raised. Grids with user supplied bounds are
// never checked.
func (e *Engine) CheckDrift(ctx context.Context, user, symbol string, threshold decimal.Decimal) (bool, error) {
	st, err := LoadDB(ctx, e.db, user, symbol)
	if err != nil {
		return false, err
	}
	if !st.AutoRange || Status(st.Status) != Active {
		return false, nil
	}

	var candles []*exchange.Candle
	if err := e.call(ctx, func(ctx context.Context) (err error) {
		candles, err = e.gw.GetCandles(ctx, st.Symbol, e.opts.CandleInterval, e.opts.CandleCount)
		return err
	}); err != nil {
		return false, fmt.Errorf("could not get candles for %s: %w", st.Symbol, err)
	}
	minCandles := e.opts.Calc.MinCandles
	if minCandles == 0 {
		minCandles = 6
	}
	lower, upper, err := gridcalc.Range(candles, minCandles)
	if err != nil {
		return false, err
	}

	ldrift, udrift := driftPercent(st.Lower, lower), driftPercent(st.Upper, upper)
	if ldrift.LessThanOrEqual(threshold) && udrift.LessThanOrEqual(threshold) {
		return false, nil
	}

	id := ID(st.User, st.Symbol)
	slog.Info("grid range has drifted", "grid", id, "lower", st.Lower, "new-lower", lower, "upper", st.Upper, "new-upper", upper)
	notify.Emit(ctx, e.sink, &notify.Event{
		User:   st.User,
		Symbol: st.Symbol,
		Kind:   notify.GridWarning,
		Message: fmt.Sprintf("grid %s range [%s, %s] has drifted to [%s, %s]; consider restarting the grid",
			id, st.Lower, st.Upper, lower, upper),
		Time: e.now(),
	})
	return true, nil
}
