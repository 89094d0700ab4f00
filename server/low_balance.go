// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bvk/gridbot/ctxutil"
	"github.com/shopspring/decimal"
)

func (s *Server) watchForLowBalance(ctx context.Context) {
	for ctx.Err() == nil {
		if err := s.checkBalances(ctx, time.Now()); err != nil && ctx.Err() == nil {
			slog.Warn("could not check for low balances (will retry)", "err", err)
		}
		ctxutil.Sleep(ctx, s.opts.BalanceCheckInterval)
	}
}

func (s *Server) checkBalances(ctx context.Context, now time.Time) error {
	balances, err := s.gw.GetBalances(ctx)
	if err != nil {
		return err
	}
	for ccy, limit := range s.opts.LowBalanceLimits {
		s.alertOnLowBalance(ctx, ccy, balances.Get(ccy), limit, now)
	}
	return nil
}

// alertOnLowBalance sends a warning to the owner when the amount is at or
// below the limit. Warnings for a currency are silenced for a while after
// they are sent.
func (s *Server) alertOnLowBalance(ctx context.Context, currency string, amount, limit decimal.Decimal, now time.Time) bool {
	if amount.GreaterThan(limit) {
		return false
	}

	ccy := strings.ToUpper(currency)
	exname := strings.ToLower(s.gw.ExchangeName())
	key := exname + "/" + ccy

	s.lowBalanceMu.Lock()
	if deadline, ok := s.alertFreezeDeadlineMap[key]; ok && now.Before(deadline) {
		s.lowBalanceMu.Unlock()
		return false
	}
	s.alertFreezeDeadlineMap[key] = now.Add(s.opts.LowBalanceSilence)
	s.lowBalanceMu.Unlock()

	s.SendMessage(ctx, now,
		"Available balance %s for %q in exchange %s is below the limit %s.",
		amount.StringFixed(5), ccy, exname, limit)
	return true
}
