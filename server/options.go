// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bvk/gridbot/alert"
	"github.com/bvk/gridbot/grid"
	"github.com/bvk/gridbot/gridcalc"
	"github.com/bvk/gridbot/monitor"
	"github.com/shopspring/decimal"
)

type Options struct {
	Grid    *grid.Options
	Alert   *alert.Options
	Monitor *monitor.Options

	// Spacing is used for grids started without an explicit spacing.
	Spacing gridcalc.Spacing

	// Location defines the calendar for profit summaries.
	Location *time.Location

	// LowBalanceLimits holds the per-currency balance limits below which a
	// warning is sent to the owner.
	LowBalanceLimits map[string]decimal.Decimal

	// BalanceCheckInterval is the cadence for low balance checks.
	BalanceCheckInterval time.Duration

	// LowBalanceSilence suppresses repeated warnings for the same currency.
	LowBalanceSilence time.Duration

	// ValuationCurrency is the quote currency of daily balance snapshots.
	ValuationCurrency string

	// BalanceHistoryDays is the number of days daily balance snapshots are
	// kept.
	BalanceHistoryDays int

	// NoTelegram disables the telegram front end even when the secrets have a
	// telegram section.
	NoTelegram bool
}

func (v *Options) setDefaults() {
	if v.Location == nil {
		v.Location = time.Local
	}
	if v.BalanceCheckInterval == 0 {
		v.BalanceCheckInterval = 15 * time.Minute
	}
	if v.LowBalanceSilence == 0 {
		v.LowBalanceSilence = time.Hour
	}
	if v.ValuationCurrency == "" {
		v.ValuationCurrency = "usdt"
	}
	v.ValuationCurrency = strings.ToLower(v.ValuationCurrency)
	if v.BalanceHistoryDays <= 0 {
		v.BalanceHistoryDays = 30
	}
}

func (v *Options) Check() error {
	for ccy, limit := range v.LowBalanceLimits {
		if limit.IsNegative() {
			return fmt.Errorf("low balance limit for %q cannot be negative: %w", ccy, os.ErrInvalid)
		}
	}
	if v.BalanceCheckInterval < 0 || v.LowBalanceSilence < 0 {
		return fmt.Errorf("balance check intervals cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}
