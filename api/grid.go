// Copyright (c) 2025 BVK Chaitanya

package api

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	GridStartPath  = "/grid/start"
	GridStopPath   = "/grid/stop"
	GridPausePath  = "/grid/pause"
	GridResumePath = "/grid/resume"
	GridStatusPath = "/grid/status"
)

// GridStartRequest starts a new grid. Lower and Upper must be given together;
// when both are zero the range is derived from recent candles. Either Size or
// Budget must be non-zero.
type GridStartRequest struct {
	User   string
	Symbol string

	Lower decimal.Decimal
	Upper decimal.Decimal

	Levels  int
	Size    decimal.Decimal
	Budget  decimal.Decimal
	Spacing string
}

type GridStartResponse struct {
	Grid *GridStatus
}

type GridStopRequest struct {
	User   string
	Symbol string
}

type GridStopResponse struct {
	Canceled int

	// Failed holds the order ids that could not be canceled.
	Failed []string

	Grid *GridStatus
}

type GridPauseRequest struct {
	User   string
	Symbol string
}

type GridPauseResponse struct {
	Grid *GridStatus
}

type GridResumeRequest struct {
	User   string
	Symbol string
}

type GridResumeResponse struct {
	Grid *GridStatus
}

// GridStatusRequest returns one grid when Symbol is set, or all grids of the
// user otherwise.
type GridStatusRequest struct {
	User   string
	Symbol string
}

type GridStatusResponse struct {
	Grids []*GridStatus
}

type GridLevel struct {
	Index int
	Price decimal.Decimal

	// Side, Status and OrderID describe the current order at the level, if
	// any.
	Side    string
	Status  string
	OrderID string

	Retries   int
	Stuck     bool
	LastError string
}

type GridStatus struct {
	ID     string
	User   string
	Symbol string
	Status string

	Lower     decimal.Decimal
	Upper     decimal.Decimal
	NumLevels int
	Size      decimal.Decimal
	Spacing   string
	AutoRange bool

	OpenOrders      int
	CompletedTrades int
	RealizedProfit  decimal.Decimal

	CreateTime time.Time
	StopTime   time.Time `json:",omitzero"`

	Levels []*GridLevel

	Leftovers []string `json:",omitempty"`
}
