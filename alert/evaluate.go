// Copyright (c) 2025 BVK Chaitanya

package alert

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/records"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluate checks the rule against a snapshot. It returns true and the
// observed value when the rule's condition holds and its cooldown has
// elapsed. Baseline is used only by percent change rules.
func Evaluate(r *records.AlertRule, snap *exchange.Snapshot, baseline decimal.Decimal, now time.Time) (bool, decimal.Decimal) {
	if !r.Enabled {
		return false, decimal.Zero
	}
	if !r.LastTriggered.IsZero() && now.Sub(r.LastTriggered) < time.Duration(r.Cooldown) {
		return false, decimal.Zero
	}

	value := snap.LastPrice
	if Metric(r.Metric) == Volume {
		value = snap.Volume24h
	}

	switch Comparison(r.Comparison) {
	case Above:
		return value.GreaterThan(r.Threshold), value
	case Below:
		return value.LessThan(r.Threshold), value
	case PercentChange:
		if !baseline.IsPositive() {
			return false, decimal.Zero
		}
		pct := value.Sub(baseline).Div(baseline).Mul(hundred)
		return pct.Abs().GreaterThanOrEqual(r.Threshold), pct
	}
	return false, decimal.Zero
}

// Message returns the notification text for a fired rule.
func Message(r *records.AlertRule, value decimal.Decimal) string {
	sym := strings.ToUpper(r.Symbol)
	switch Comparison(r.Comparison) {
	case PercentChange:
		return fmt.Sprintf("%s %s changed by %s%% (threshold %s%%)", sym, r.Metric, value.StringFixed(2), r.Threshold)
	}
	msg := fmt.Sprintf("%s %s %s is %s %s", sym, r.Metric, value, r.Comparison, r.Threshold)
	if r.Note != "" {
		msg += " - " + r.Note
	}
	return msg
}

// Baseline selects the reference price for percent change rules.
type Baseline string

const (
	// DayStart compares against the first price observed in the current day.
	DayStart Baseline = "day-start"

	// PreviousEvaluation compares against the price from the previous
	// evaluation of the symbol.
	PreviousEvaluation Baseline = "previous"
)

func ParseBaseline(s string) (Baseline, error) {
	switch v := Baseline(strings.ToLower(s)); v {
	case "":
		return DayStart, nil
	case DayStart, PreviousEvaluation:
		return v, nil
	}
	return "", fmt.Errorf("baseline %q is invalid: %w", s, os.ErrInvalid)
}

type baseline struct {
	day   time.Time
	price decimal.Decimal
}

// Baselines tracks the baseline prices per symbol.
type Baselines struct {
	mode Baseline
	loc  *time.Location

	mu sync.Mutex
	m  map[string]*baseline
}

func NewBaselines(mode Baseline, loc *time.Location) *Baselines {
	if loc == nil {
		loc = time.Local
	}
	if mode == "" {
		mode = DayStart
	}
	return &Baselines{mode: mode, loc: loc, m: make(map[string]*baseline)}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Observe returns the baseline to use for the snapshot and records the
// snapshot for future evaluations. Returns zero when no baseline is known
// yet.
func (b *Baselines) Observe(snap *exchange.Snapshot, now time.Time) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.m[snap.Symbol]
	switch b.mode {
	case PreviousEvaluation:
		b.m[snap.Symbol] = &baseline{price: snap.LastPrice}
		if !ok {
			return decimal.Zero
		}
		return cur.price

	default:
		day := startOfDay(now, b.loc)
		if ok && cur.day.Equal(day) {
			return cur.price
		}
		// First observation in the day. The exchange's rolling open is the
		// best estimate when the process starts mid-day.
		price := snap.LastPrice
		if !ok && snap.DayOpen.IsPositive() {
			price = snap.DayOpen
		}
		b.m[snap.Symbol] = &baseline{day: day, price: price}
		return price
	}
}
