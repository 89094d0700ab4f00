// Copyright (c) 2025 BVK Chaitanya

// Package gridcalc computes grid price levels and per-level order sizes. All
// functions are pure; same inputs always produce the same levels.
package gridcalc

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/bvk/gridbot/exchange"
	"github.com/shopspring/decimal"
)

// Both errors can be fixed by passing explicit bounds, so they match
// os.ErrInvalid.
var (
	ErrInsufficientHistory = fmt.Errorf("insufficient price history: %w", os.ErrInvalid)
	ErrDegenerateRange     = fmt.Errorf("degenerate price range: %w", os.ErrInvalid)
)

type Spacing string

const (
	Arithmetic Spacing = "arithmetic"
	Geometric  Spacing = "geometric"
)

func ParseSpacing(s string) (Spacing, error) {
	switch v := Spacing(strings.ToLower(s)); v {
	case "":
		return Arithmetic, nil
	case Arithmetic, Geometric:
		return v, nil
	}
	return "", fmt.Errorf("spacing %q is invalid: %w", s, os.ErrInvalid)
}

type Options struct {
	// MinCandles is the minimum number of candles required to derive a range.
	MinCandles int

	// MinSpreadPercent is the minimum (upper-lower)/lower percentage for a
	// grid. Zero accepts any non-empty range.
	MinSpreadPercent decimal.Decimal

	// PricePrecision is the number of decimal places in level prices.
	PricePrecision int32

	// SizePrecision is the number of decimal places in derived order sizes.
	SizePrecision int32
}

// DefaultOptions returns the options used when Compute is given nil options.
func DefaultOptions() Options {
	v := Options{MinSpreadPercent: decimal.NewFromInt(1)}
	v.setDefaults()
	return v
}

func (v *Options) setDefaults() {
	if v.MinCandles <= 0 {
		v.MinCandles = 6
	}
	if v.PricePrecision <= 0 {
		v.PricePrecision = 8
	}
	if v.SizePrecision <= 0 {
		v.SizePrecision = 6
	}
}

func (v *Options) Check() error {
	if v.MinCandles < 1 {
		return fmt.Errorf("min candles must be positive: %w", os.ErrInvalid)
	}
	if v.MinSpreadPercent.IsNegative() {
		return fmt.Errorf("min spread percent cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}

// Input describes a grid to compute. When Lower and Upper are both zero the
// range is derived from the Candles.
type Input struct {
	Lower decimal.Decimal
	Upper decimal.Decimal

	Candles []*exchange.Candle

	NumLevels int
	Spacing   Spacing

	// Size is the per-level order size. When zero, it is derived from the
	// Budget so that buying at every level costs at most the budget.
	Size   decimal.Decimal
	Budget decimal.Decimal
}

type Grid struct {
	Lower decimal.Decimal
	Upper decimal.Decimal

	Spacing Spacing
	Prices  []decimal.Decimal
	Size    decimal.Decimal
}

// Range returns the minimum and maximum close prices of the candles.
func Range(candles []*exchange.Candle, minCandles int) (lower, upper decimal.Decimal, err error) {
	if len(candles) < minCandles || len(candles) == 0 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("have %d candles, need %d: %w", len(candles), minCandles, ErrInsufficientHistory)
	}
	lower, upper = candles[0].Close, candles[0].Close
	for _, c := range candles[1:] {
		lower = decimal.Min(lower, c.Close)
		upper = decimal.Max(upper, c.Close)
	}
	return lower, upper, nil
}

// CheckSpread returns ErrDegenerateRange if the range is narrower than the
// minimum spread percentage of the lower bound.
func CheckSpread(lower, upper, minSpreadPercent decimal.Decimal) error {
	if !lower.IsPositive() || upper.LessThanOrEqual(lower) {
		return fmt.Errorf("lower %s must be positive and below upper %s: %w", lower, upper, ErrDegenerateRange)
	}
	spread := upper.Sub(lower).Div(lower).Mul(decimal.NewFromInt(100))
	if spread.LessThan(minSpreadPercent) {
		return fmt.Errorf("spread %s%% is below the minimum %s%%: %w", spread.StringFixed(2), minSpreadPercent, ErrDegenerateRange)
	}
	return nil
}

// Levels partitions [lower, upper] into n prices including both bounds.
func Levels(lower, upper decimal.Decimal, n int, spacing Spacing, precision int32) ([]decimal.Decimal, error) {
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 levels, got %d: %w", n, os.ErrInvalid)
	}
	if !lower.IsPositive() || upper.LessThanOrEqual(lower) {
		return nil, fmt.Errorf("lower %s must be positive and below upper %s: %w", lower, upper, ErrDegenerateRange)
	}

	prices := make([]decimal.Decimal, n)
	prices[0], prices[n-1] = lower, upper
	switch spacing {
	case "", Arithmetic:
		step := upper.Sub(lower).Div(decimal.NewFromInt(int64(n - 1)))
		for i := 1; i < n-1; i++ {
			prices[i] = lower.Add(step.Mul(decimal.NewFromInt(int64(i)))).Round(precision)
		}
	case Geometric:
		ratio := math.Pow(upper.Div(lower).InexactFloat64(), 1/float64(n-1))
		for i := 1; i < n-1; i++ {
			prices[i] = lower.Mul(decimal.NewFromFloat(math.Pow(ratio, float64(i)))).Round(precision)
		}
	default:
		return nil, fmt.Errorf("spacing %q is invalid: %w", spacing, os.ErrInvalid)
	}

	for i := 1; i < n; i++ {
		if prices[i].LessThanOrEqual(prices[i-1]) {
			return nil, fmt.Errorf("levels %d and %d collapse to %s at precision %d: %w", i-1, i, prices[i], precision, ErrDegenerateRange)
		}
	}
	return prices, nil
}

// SizeForBudget returns the largest per-level size such that buying size at
// every price costs at most the budget.
func SizeForBudget(prices []decimal.Decimal, budget decimal.Decimal, precision int32) (decimal.Decimal, error) {
	if !budget.IsPositive() {
		return decimal.Zero, fmt.Errorf("budget must be positive: %w", os.ErrInvalid)
	}
	total := decimal.Sum(decimal.Zero, prices...)
	size := budget.Div(total).RoundDown(precision)
	if !size.IsPositive() {
		return decimal.Zero, fmt.Errorf("budget %s is too small for %d levels: %w", budget, len(prices), os.ErrInvalid)
	}
	return size, nil
}

// Compute returns the grid for the input. Options are not modified.
func Compute(options *Options, in *Input) (*Grid, error) {
	opts := DefaultOptions()
	if options != nil {
		opts = *options
		opts.setDefaults()
	}
	if err := opts.Check(); err != nil {
		return nil, err
	}

	lower, upper := in.Lower, in.Upper
	if lower.IsZero() && upper.IsZero() {
		l, u, err := Range(in.Candles, opts.MinCandles)
		if err != nil {
			return nil, err
		}
		lower, upper = l, u
	}
	if err := CheckSpread(lower, upper, opts.MinSpreadPercent); err != nil {
		return nil, err
	}

	spacing := in.Spacing
	if spacing == "" {
		spacing = Arithmetic
	}
	prices, err := Levels(lower, upper, in.NumLevels, spacing, opts.PricePrecision)
	if err != nil {
		return nil, err
	}

	size := in.Size
	if size.IsZero() {
		if size, err = SizeForBudget(prices, in.Budget, opts.SizePrecision); err != nil {
			return nil, err
		}
	}
	if !size.IsPositive() {
		return nil, fmt.Errorf("per-level size must be positive: %w", os.ErrInvalid)
	}

	g := &Grid{
		Lower:   lower,
		Upper:   upper,
		Spacing: spacing,
		Prices:  prices,
		Size:    size,
	}
	return g, nil
}
