// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"fmt"
	"os"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/exchange"
	"github.com/shopspring/decimal"
)

func (s *Server) doMarketSnapshot(ctx context.Context, req *api.MarketSnapshotRequest) (*api.MarketSnapshotResponse, error) {
	if _, _, err := exchange.SplitSymbol(req.Symbol); err != nil {
		return nil, fmt.Errorf("%w: %w", err, os.ErrInvalid)
	}
	snap, err := s.gw.GetSnapshot(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("could not get snapshot for %q: %w", req.Symbol, err)
	}
	resp := &api.MarketSnapshotResponse{
		Symbol:     snap.Symbol,
		LastPrice:  snap.LastPrice,
		DayOpen:    snap.DayOpen,
		DayHigh:    snap.DayHigh,
		DayLow:     snap.DayLow,
		Volume24h:  snap.Volume24h,
		Bid:        snap.Bid,
		Ask:        snap.Ask,
		ServerTime: snap.ServerTime,
	}
	return resp, nil
}

func (s *Server) doMarketBalance(ctx context.Context, req *api.MarketBalanceRequest) (*api.MarketBalanceResponse, error) {
	balances, err := s.gw.GetBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get balances: %w", err)
	}
	resp := &api.MarketBalanceResponse{
		Exchange: s.gw.ExchangeName(),
		Balances: make(map[string]decimal.Decimal),
	}
	for _, ccy := range balances.NonZero() {
		resp.Balances[ccy] = balances.Get(ccy)
	}
	return resp, nil
}
