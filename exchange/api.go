// Copyright (c) 2023 BVK Chaitanya

// Package exchange defines the contract between the trading engines and an
// exchange gateway implementation.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

type OrderID string

type Interval string

const (
	Interval1Min  Interval = "1min"
	Interval1Hour Interval = "60min"
	Interval4Hour Interval = "4hour"
	Interval1Day  Interval = "1day"
)

type Candle struct {
	StartTime time.Time
	Duration  time.Duration

	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

type OrderRequest struct {
	Symbol string
	Side   Side

	// Type is always "limit" for grid orders; Price is ignored for market
	// orders. Size is in the base currency for both types.
	Type  string
	Price decimal.Decimal
	Size  decimal.Decimal

	// ClientRef is a client assigned idempotency reference. Placing an order
	// twice with the same reference must not create two orders.
	ClientRef string
}

// Update is a message from the market-data stream. Exactly one of the fields
// is non-nil.
type Update struct {
	Snapshot *Snapshot
	Fill     *Order
}

// Gateway is the set of exchange operations used by the engines. All methods
// may return a TransientError or ErrRateLimited which callers are expected to
// retry with backoff.
type Gateway interface {
	ExchangeName() string

	GetCandles(ctx context.Context, symbol string, interval Interval, count int) ([]*Candle, error)

	GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error)

	PlaceOrder(ctx context.Context, req *OrderRequest) (OrderID, error)

	CancelOrder(ctx context.Context, id OrderID) error

	// CancelAll cancels all open orders of the symbol and returns the number
	// of canceled orders.
	CancelAll(ctx context.Context, symbol string) (int, error)

	// GetOrder returns the latest order status. Returns ErrOrderNotFound if the
	// exchange doesn't know the order.
	GetOrder(ctx context.Context, id OrderID) (*Order, error)

	GetBalances(ctx context.Context) (Balances, error)
}

// BatchCanceler is an optional interface for gateways that can cancel many
// orders in a single call. Returns the order ids that could not be canceled.
type BatchCanceler interface {
	CancelOrders(ctx context.Context, ids []OrderID) (failed []OrderID, err error)
}

// OrderLister is an optional interface for gateways that can list orders
// directly from the exchange.
type OrderLister interface {
	// ListOpenOrders returns the open orders of a symbol.
	ListOpenOrders(ctx context.Context, symbol string) ([]*Order, error)

	// RecentOrders returns at most count recently finished orders of a
	// symbol, newest first.
	RecentOrders(ctx context.Context, symbol string, count int) ([]*Order, error)
}

// Streamer is an optional interface for gateways that can push market updates
// for a symbol.
type Streamer interface {
	Subscribe(ctx context.Context, symbol string) (*topic.Receiver[*Update], error)
}
