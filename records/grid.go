// Copyright (c) 2025 BVK Chaitanya

package records

import (
	"time"

	"github.com/shopspring/decimal"
)

// GridState is the persisted form of a grid session. One record exists per
// (user, symbol) pair and it embeds all order bindings of the grid.
type GridState struct {
	User   string `json:"user"`
	Symbol string `json:"symbol"`

	Lower     decimal.Decimal `json:"lower"`
	Upper     decimal.Decimal `json:"upper"`
	NumLevels int             `json:"num_levels"`
	Size      decimal.Decimal `json:"size"`

	// Spacing is either "arithmetic" or "geometric".
	Spacing string `json:"spacing"`

	// AutoRange is true when the bounds were derived from candle history.
	AutoRange bool `json:"auto_range,omitempty"`

	// Anchor is the market price observed when the grid was initialized.
	Anchor decimal.Decimal `json:"anchor"`

	Status string `json:"status"`

	CancelOnPause bool `json:"cancel_on_pause,omitempty"`

	CreateTime time.Time `json:"create_time"`
	UpdateTime time.Time `json:"update_time"`
	StopTime   time.Time `json:"stop_time,omitzero"`

	RealizedProfit  decimal.Decimal `json:"realized_profit"`
	CompletedTrades int             `json:"completed_trades"`

	ClientIDSeed   string `json:"client_id_seed"`
	ClientIDOffset uint64 `json:"client_id_offset"`

	Levels []*GridLevelState `json:"levels"`

	Fills []*Fill `json:"fills,omitempty"`

	// Leftovers holds the exchange order ids that could not be canceled when
	// the grid was stopped.
	Leftovers []string `json:"leftovers,omitempty"`
}

type GridLevelState struct {
	Index int             `json:"index"`
	Price decimal.Decimal `json:"price"`

	// Side is the side of the order this level opens with. It is fixed at the
	// initialization time based on the anchor price.
	Side string `json:"side"`

	// Binding is the current order at this level. A binding with empty order
	// id and PENDING status holds a reserved client reference whose placement
	// outcome is not yet known.
	Binding *OrderBinding `json:"binding,omitempty"`

	// Target is the side and price for the next order at this level. It is
	// updated on every fill so that placement can resume after a pause, a
	// failure or a restart.
	TargetSide  string          `json:"target_side"`
	TargetPrice decimal.Decimal `json:"target_price"`

	// OpenFill holds the opening leg of an in-progress round trip.
	OpenFill *Fill `json:"open_fill,omitempty"`

	Retries   int    `json:"retries,omitempty"`
	Stuck     bool   `json:"stuck,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

type OrderBinding struct {
	OrderID   string          `json:"order_id,omitempty"`
	ClientRef string          `json:"client_ref"`
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Status    string          `json:"status"`

	CreateTime time.Time `json:"create_time"`
}

type Fill struct {
	Level   int             `json:"level"`
	OrderID string          `json:"order_id"`
	Side    string          `json:"side"`
	Price   decimal.Decimal `json:"price"`
	Size    decimal.Decimal `json:"size"`
	Fee     decimal.Decimal `json:"fee"`
	Time    time.Time       `json:"time"`

	// Profit is non-zero for the fill that closes a round trip.
	Profit decimal.Decimal `json:"profit"`
}
