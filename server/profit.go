// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"time"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/grid"
	"github.com/bvk/gridbot/records"
	"github.com/bvk/gridbot/timerange"
	"github.com/shopspring/decimal"
)

// Summarize returns the per-grid realized profits from the fills that fall in
// the time range. Zero range includes all fills.
func Summarize(grids []*records.GridState, r *timerange.Range) []*api.ProfitItem {
	var items []*api.ProfitItem
	for _, st := range grids {
		item := &api.ProfitItem{GridID: grid.ID(st.User, st.Symbol)}
		for _, f := range st.Fills {
			if !r.IsZero() && !r.InRange(f.Time) {
				continue
			}
			item.Fees = item.Fees.Add(f.Fee)
			if !f.Profit.IsZero() {
				item.Trades++
				item.Profit = item.Profit.Add(f.Profit)
			}
		}
		if item.Trades == 0 && item.Fees.IsZero() {
			continue
		}
		items = append(items, item)
	}
	return items
}

func (s *Server) profit(ctx context.Context, user, period string, now time.Time) (*api.ProfitResponse, error) {
	if err := checkUser(user); err != nil {
		return nil, err
	}
	r, err := timerange.Period(period, now.In(s.opts.Location))
	if err != nil {
		return nil, err
	}
	grids, err := s.grids.List(ctx, user)
	if err != nil {
		return nil, err
	}
	resp := &api.ProfitResponse{
		Period:      period,
		Begin:       r.Begin,
		End:         r.End,
		Items:       Summarize(grids, r),
		TotalProfit: decimal.Zero,
	}
	for _, item := range resp.Items {
		resp.TotalTrades += item.Trades
		resp.TotalProfit = resp.TotalProfit.Add(item.Profit)
	}
	return resp, nil
}

func (s *Server) doProfit(ctx context.Context, req *api.ProfitRequest) (*api.ProfitResponse, error) {
	return s.profit(ctx, req.User, req.Period, time.Now())
}
