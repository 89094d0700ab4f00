// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"slices"
	"time"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/ctxutil"
	"github.com/bvk/gridbot/kvutil"
	"github.com/bvk/gridbot/records"
	"github.com/bvkgo/kv"
	"github.com/shopspring/decimal"
)

const BalanceKeyspace = "/balances"

func balanceKey(day string) string {
	return path.Join(BalanceKeyspace, day)
}

func (s *Server) day(t time.Time) string {
	return t.In(s.opts.Location).Format(time.DateOnly)
}

// accountValue values all non-zero balances in the valuation currency using
// the last traded prices.
func (s *Server) accountValue(ctx context.Context, now time.Time) (*records.BalanceSnapshot, error) {
	balances, err := s.gw.GetBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get balances: %w", err)
	}
	quote := s.opts.ValuationCurrency
	v := &records.BalanceSnapshot{
		Day:      s.day(now),
		Time:     now,
		Quote:    quote,
		Total:    decimal.Zero,
		Balances: make(map[string]decimal.Decimal),
	}
	for _, ccy := range balances.NonZero() {
		amount := balances.Get(ccy)
		v.Balances[ccy] = amount
		if ccy == quote {
			v.Total = v.Total.Add(amount)
			continue
		}
		snap, err := s.gw.GetSnapshot(ctx, ccy+quote)
		if err != nil || !snap.LastPrice.IsPositive() {
			slog.Warn("could not price balance (skipped)", "currency", ccy, "quote", quote, "err", err)
			v.Unpriced = append(v.Unpriced, ccy)
			continue
		}
		v.Total = v.Total.Add(amount.Mul(snap.LastPrice))
	}
	slices.Sort(v.Unpriced)
	return v, nil
}

// saveBalanceSnapshot records the account value for the current day unless
// it is already recorded. Snapshots older than the retention are removed.
func (s *Server) saveBalanceSnapshot(ctx context.Context, now time.Time) (bool, error) {
	key := balanceKey(s.day(now))
	if _, err := kvutil.GetDB[records.BalanceSnapshot](ctx, s.db, key); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	snap, err := s.accountValue(ctx, now)
	if err != nil {
		return false, err
	}
	cutoff := balanceKey(s.day(now.AddDate(0, 0, -s.opts.BalanceHistoryDays)))
	err = kv.WithReadWriter(ctx, s.db, func(ctx context.Context, rw kv.ReadWriter) error {
		if err := kvutil.Set(ctx, rw, key, snap); err != nil {
			return err
		}
		begin, _ := kvutil.PathRange(BalanceKeyspace)
		_, err := kvutil.DeleteRange(ctx, rw, begin, cutoff)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("could not save balance snapshot: %w", err)
	}
	slog.Info("saved daily balance snapshot", "day", snap.Day, "total", snap.Total, "quote", snap.Quote)
	return true, nil
}

func (s *Server) watchDailyBalance(ctx context.Context) {
	for ctx.Err() == nil {
		if _, err := s.saveBalanceSnapshot(ctx, time.Now()); err != nil && ctx.Err() == nil {
			slog.Warn("could not save daily balance snapshot (will retry)", "err", err)
		}
		ctxutil.Sleep(ctx, s.opts.BalanceCheckInterval)
	}
}

// dailyPnL compares the current account value with the latest snapshot
// recorded before the current day.
func (s *Server) dailyPnL(ctx context.Context, now time.Time) (*api.PnLResponse, error) {
	cur, err := s.accountValue(ctx, now)
	if err != nil {
		return nil, err
	}
	resp := &api.PnLResponse{
		Quote:    cur.Quote,
		Current:  cur.Total,
		Unpriced: cur.Unpriced,
	}

	var prev *records.BalanceSnapshot
	err = kv.WithReader(ctx, s.db, func(ctx context.Context, r kv.Reader) (err error) {
		begin, _ := kvutil.PathRange(BalanceKeyspace)
		_, prev, err = kvutil.Last[records.BalanceSnapshot](ctx, r, begin, balanceKey(cur.Day))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("could not read balance snapshots: %w", err)
	}
	if prev == nil || !prev.Total.IsPositive() {
		return resp, nil
	}
	resp.PreviousDay = prev.Day
	resp.Previous = prev.Total
	resp.PnL = cur.Total.Sub(prev.Total)
	resp.PnLPercent = resp.PnL.Div(prev.Total).Mul(decimal.NewFromInt(100)).Round(2)
	return resp, nil
}

func (s *Server) doPnL(ctx context.Context, req *api.PnLRequest) (*api.PnLResponse, error) {
	return s.dailyPnL(ctx, time.Now())
}
