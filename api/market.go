// Copyright (c) 2025 BVK Chaitanya

package api

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MarketSnapshotPath   = "/market/snapshot"
	MarketBalancePath    = "/market/balance"
	MarketOrderPath      = "/market/order"
	MarketOpenOrdersPath = "/market/open_orders"
	MarketHistoryPath    = "/market/order_history"
	MarketCancelAllPath  = "/market/cancel_all"
	StatusPath           = "/status"
	ProfitPath           = "/profit"
	PnLPath              = "/pnl"
)

type MarketSnapshotRequest struct {
	Symbol string
}

type MarketSnapshotResponse struct {
	Symbol string

	LastPrice decimal.Decimal
	DayOpen   decimal.Decimal
	DayHigh   decimal.Decimal
	DayLow    decimal.Decimal
	Volume24h decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal

	ServerTime time.Time
}

type MarketBalanceRequest struct {
}

type MarketBalanceResponse struct {
	Exchange string

	// Balances holds the non-zero available balances by currency.
	Balances map[string]decimal.Decimal
}

type StatusRequest struct {
}

type StatusResponse struct {
	Pid      int
	Uptime   time.Duration
	Exchange string

	LiveGrids      int
	WatchedSymbols []string

	ProcessRSS     uint64
	ProcessCPU     float64
	HostMemTotal   uint64
	HostMemUsedPct float64
}

// ProfitRequest summarizes realized profits of a user's grids over a
// calendar period, e.g., "today", "yesterday", "this-week", "last-month".
// Empty period summarizes the whole history.
type ProfitRequest struct {
	User   string
	Period string
}

type ProfitItem struct {
	GridID string
	Trades int
	Profit decimal.Decimal
	Fees   decimal.Decimal
}

type ProfitResponse struct {
	Period string
	Begin  time.Time `json:",omitzero"`
	End    time.Time `json:",omitzero"`

	Items []*ProfitItem

	TotalTrades int
	TotalProfit decimal.Decimal
}

// MarketOrderRequest places a manual order outside of any grid. Type is
// either "limit" or "market"; Price is ignored for market orders. Size is
// always in the base currency.
type MarketOrderRequest struct {
	User   string
	Symbol string
	Side   string
	Type   string
	Price  decimal.Decimal
	Size   decimal.Decimal
}

type MarketOrderResponse struct {
	OrderID   string
	ClientRef string
}

type Order struct {
	OrderID string
	Symbol  string
	Side    string
	Status  string

	Price decimal.Decimal
	Size  decimal.Decimal

	FilledSize  decimal.Decimal
	FilledPrice decimal.Decimal
	Fee         decimal.Decimal

	// GridID is set for orders placed by a grid.
	GridID string `json:",omitempty"`

	CreateTime time.Time
	FinishTime time.Time `json:",omitzero"`
}

type MarketOpenOrdersRequest struct {
	Symbol string
}

type MarketOpenOrdersResponse struct {
	Orders []*Order
}

type MarketHistoryRequest struct {
	Symbol string
	Limit  int
}

type MarketHistoryResponse struct {
	Orders []*Order
}

// MarketCancelAllRequest cancels the open orders of a symbol. Orders owned by
// grids are kept unless IncludeGrids is set.
type MarketCancelAllRequest struct {
	User   string
	Symbol string

	IncludeGrids bool
}

type MarketCancelAllResponse struct {
	Canceled int
	Failed   []string
}

type PnLRequest struct {
}

// PnLResponse compares the current account value with the latest daily
// snapshot taken before today.
type PnLResponse struct {
	Quote   string
	Current decimal.Decimal

	PreviousDay string `json:",omitempty"`
	Previous    decimal.Decimal

	PnL        decimal.Decimal
	PnLPercent decimal.Decimal

	Unpriced []string `json:",omitempty"`
}
