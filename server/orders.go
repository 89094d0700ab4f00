// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/grid"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func toAPIOrder(o *exchange.Order, owners map[exchange.OrderID]string) *api.Order {
	return &api.Order{
		OrderID:     string(o.ServerOrderID),
		Symbol:      o.Symbol,
		Side:        string(o.Side),
		Status:      string(o.Status),
		Price:       o.Price,
		Size:        o.Size,
		FilledSize:  o.FilledSize,
		FilledPrice: o.FilledPrice,
		Fee:         o.Fee,
		GridID:      owners[o.ServerOrderID],
		CreateTime:  o.CreateTime,
		FinishTime:  o.FinishTime,
	}
}

// gridOrders returns the ids of the orders bound to grid levels mapped to
// their grid ids.
func (s *Server) gridOrders(ctx context.Context, symbol string) (map[exchange.OrderID]string, error) {
	grids, err := s.grids.List(ctx, "")
	if err != nil && len(grids) == 0 {
		return nil, err
	}
	symbol = exchange.NormalizeSymbol(symbol)
	owners := make(map[exchange.OrderID]string)
	for _, st := range grids {
		if st.Symbol != symbol {
			continue
		}
		for _, lvl := range st.Levels {
			if b := lvl.Binding; b != nil && b.OrderID != "" {
				owners[exchange.OrderID(b.OrderID)] = grid.ID(st.User, st.Symbol)
			}
		}
	}
	return owners, nil
}

func (s *Server) orderLister() (exchange.OrderLister, error) {
	lister, ok := s.gw.(exchange.OrderLister)
	if !ok {
		return nil, fmt.Errorf("exchange %s cannot list orders: %w", s.gw.ExchangeName(), os.ErrInvalid)
	}
	return lister, nil
}

func (s *Server) doMarketOrder(ctx context.Context, req *api.MarketOrderRequest) (*api.MarketOrderResponse, error) {
	if err := checkUser(req.User); err != nil {
		return nil, err
	}
	if _, _, err := exchange.SplitSymbol(req.Symbol); err != nil {
		return nil, fmt.Errorf("%w: %w", err, os.ErrInvalid)
	}
	side, err := exchange.ParseSide(req.Side)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", err, os.ErrInvalid)
	}
	typ := req.Type
	if typ == "" {
		typ = "limit"
	}
	switch typ {
	case "limit":
		if !req.Price.IsPositive() {
			return nil, fmt.Errorf("limit price must be positive: %w", os.ErrInvalid)
		}
	case "market":
	default:
		return nil, fmt.Errorf("order type %q is invalid: %w", req.Type, os.ErrInvalid)
	}
	if !req.Size.IsPositive() {
		return nil, fmt.Errorf("order size must be positive: %w", os.ErrInvalid)
	}

	oreq := &exchange.OrderRequest{
		Symbol:    exchange.NormalizeSymbol(req.Symbol),
		Side:      side,
		Type:      typ,
		Price:     req.Price,
		Size:      req.Size,
		ClientRef: uuid.NewString(),
	}
	if typ == "market" {
		oreq.Price = decimal.Zero
	}
	id, err := s.gw.PlaceOrder(ctx, oreq)
	if err != nil {
		return nil, fmt.Errorf("could not place %s %s order on %s: %w", typ, side, oreq.Symbol, err)
	}
	slog.Info("placed manual order", "user", req.User, "symbol", oreq.Symbol, "side", side, "type", typ, "price", oreq.Price, "size", oreq.Size, "order-id", id)
	return &api.MarketOrderResponse{OrderID: string(id), ClientRef: oreq.ClientRef}, nil
}

func (s *Server) doMarketOpenOrders(ctx context.Context, req *api.MarketOpenOrdersRequest) (*api.MarketOpenOrdersResponse, error) {
	lister, err := s.orderLister()
	if err != nil {
		return nil, err
	}
	orders, err := lister.ListOpenOrders(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("could not list open orders of %s: %w", req.Symbol, err)
	}
	owners, err := s.gridOrders(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	resp := new(api.MarketOpenOrdersResponse)
	for _, o := range orders {
		resp.Orders = append(resp.Orders, toAPIOrder(o, owners))
	}
	return resp, nil
}

func (s *Server) doMarketHistory(ctx context.Context, req *api.MarketHistoryRequest) (*api.MarketHistoryResponse, error) {
	lister, err := s.orderLister()
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	orders, err := lister.RecentOrders(ctx, req.Symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("could not list recent orders of %s: %w", req.Symbol, err)
	}
	resp := new(api.MarketHistoryResponse)
	for _, o := range orders {
		resp.Orders = append(resp.Orders, toAPIOrder(o, nil))
	}
	return resp, nil
}

// doMarketCancelAll cancels the open orders of a symbol. Orders owned by
// grids are kept unless IncludeGrids is set.
func (s *Server) doMarketCancelAll(ctx context.Context, req *api.MarketCancelAllRequest) (*api.MarketCancelAllResponse, error) {
	if err := checkUser(req.User); err != nil {
		return nil, err
	}
	if _, _, err := exchange.SplitSymbol(req.Symbol); err != nil {
		return nil, fmt.Errorf("%w: %w", err, os.ErrInvalid)
	}
	if req.IncludeGrids {
		n, err := s.gw.CancelAll(ctx, req.Symbol)
		if err != nil {
			return nil, fmt.Errorf("could not cancel orders of %s: %w", req.Symbol, err)
		}
		slog.Info("canceled all open orders", "user", req.User, "symbol", req.Symbol, "canceled", n)
		return &api.MarketCancelAllResponse{Canceled: n}, nil
	}

	lister, err := s.orderLister()
	if err != nil {
		return nil, err
	}
	orders, err := lister.ListOpenOrders(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("could not list open orders of %s: %w", req.Symbol, err)
	}
	owners, err := s.gridOrders(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	resp := new(api.MarketCancelAllResponse)
	for _, o := range orders {
		if _, ok := owners[o.ServerOrderID]; ok {
			continue
		}
		if err := s.gw.CancelOrder(ctx, o.ServerOrderID); err != nil {
			slog.Warn("could not cancel order", "order-id", o.ServerOrderID, "err", err)
			resp.Failed = append(resp.Failed, string(o.ServerOrderID))
			continue
		}
		resp.Canceled++
	}
	slog.Info("canceled manual open orders", "user", req.User, "symbol", req.Symbol, "canceled", resp.Canceled, "failed", len(resp.Failed))
	return resp, nil
}
