// Copyright (c) 2025 BVK Chaitanya

// Package alert implements threshold alerts on market snapshots.
package alert

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/records"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Metric string

const (
	Price  Metric = "price"
	Volume Metric = "volume"
)

type Comparison string

const (
	Above Comparison = "above"
	Below Comparison = "below"

	// PercentChange fires when the price moved by at least threshold percent
	// in either direction from the baseline price.
	PercentChange Comparison = "change"
)

func ParseMetric(s string) (Metric, error) {
	switch v := Metric(strings.ToLower(s)); v {
	case Price, Volume:
		return v, nil
	}
	return "", fmt.Errorf("metric %q is invalid (want price or volume): %w", s, os.ErrInvalid)
}

func ParseComparison(s string) (Comparison, error) {
	switch v := Comparison(strings.ToLower(s)); v {
	case Above, Below, PercentChange:
		return v, nil
	case ">":
		return Above, nil
	case "<":
		return Below, nil
	case "%":
		return PercentChange, nil
	}
	return "", fmt.Errorf("comparison %q is invalid (want above, below or change): %w", s, os.ErrInvalid)
}

// CreateRequest holds the user input for a new alert rule. Zero Cooldown
// selects the default cooldown.
type CreateRequest struct {
	User   string
	Symbol string

	Metric     Metric
	Comparison Comparison
	Threshold  decimal.Decimal
	Cooldown   time.Duration

	Note string
}

func (v *CreateRequest) Check() error {
	if v.User == "" {
		return fmt.Errorf("user cannot be empty: %w", os.ErrInvalid)
	}
	if _, _, err := exchange.SplitSymbol(v.Symbol); err != nil {
		return fmt.Errorf("%w: %w", err, os.ErrInvalid)
	}
	if _, err := ParseMetric(string(v.Metric)); err != nil {
		return err
	}
	if _, err := ParseComparison(string(v.Comparison)); err != nil {
		return err
	}
	if v.Metric == Volume && v.Comparison == PercentChange {
		return fmt.Errorf("percent change alerts are supported for price only: %w", os.ErrInvalid)
	}
	if !v.Threshold.IsPositive() {
		return fmt.Errorf("threshold must be positive: %w", os.ErrInvalid)
	}
	if v.Cooldown < 0 {
		return fmt.Errorf("cooldown cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}

// NewID returns a short random rule id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

func newRule(req *CreateRequest, cooldown time.Duration, now time.Time) *records.AlertRule {
	if req.Cooldown > 0 {
		cooldown = req.Cooldown
	}
	return &records.AlertRule{
		ID:         NewID(),
		User:       req.User,
		Symbol:     exchange.NormalizeSymbol(req.Symbol),
		Metric:     string(req.Metric),
		Comparison: string(req.Comparison),
		Threshold:  req.Threshold,
		Cooldown:   records.Duration(cooldown),
		Enabled:    true,
		Note:       req.Note,
		CreateTime: now,
	}
}

// sameCondition returns true if two rules of a user watch the same condition.
func sameCondition(a, b *records.AlertRule) bool {
	return a.User == b.User && a.Symbol == b.Symbol && a.Metric == b.Metric &&
		a.Comparison == b.Comparison && a.Threshold.Equal(b.Threshold)
}

// Describe returns a human-readable form of the rule.
func Describe(r *records.AlertRule) string {
	var cond string
	switch Comparison(r.Comparison) {
	case PercentChange:
		cond = fmt.Sprintf("%s changes by %s%%", r.Metric, r.Threshold)
	default:
		cond = fmt.Sprintf("%s %s %s", r.Metric, r.Comparison, r.Threshold)
	}
	s := fmt.Sprintf("%s %s when %s (cooldown %s)", r.ID, strings.ToUpper(r.Symbol), cond, time.Duration(r.Cooldown))
	if !r.Enabled {
		s += " [disabled]"
	}
	if r.TriggerCount > 0 {
		s += fmt.Sprintf(" fired %d times", r.TriggerCount)
	}
	if r.Note != "" {
		s += " - " + r.Note
	}
	return s
}
