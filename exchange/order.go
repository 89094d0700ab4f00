// Copyright (c) 2025 BVK Chaitanya

package exchange

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == BUY {
		return SELL
	}
	return BUY
}

func ParseSide(s string) (Side, error) {
	switch v := Side(strings.ToUpper(s)); v {
	case BUY, SELL:
		return v, nil
	}
	return "", fmt.Errorf("side %q is invalid/unsupported", s)
}

type OrderStatus string

const (
	// PENDING is a local status for an order whose placement outcome is not
	// known yet. Exchanges never report this status.
	PENDING OrderStatus = "PENDING"

	OPEN      OrderStatus = "OPEN"
	FILLED    OrderStatus = "FILLED"
	CANCELLED OrderStatus = "CANCELLED"
	REJECTED  OrderStatus = "REJECTED"
)

// IsDone returns true if the status is final.
func (s OrderStatus) IsDone() bool {
	return s == FILLED || s == CANCELLED || s == REJECTED
}

type Order struct {
	ServerOrderID OrderID

	ClientRef string

	Symbol string
	Side   Side

	Price decimal.Decimal
	Size  decimal.Decimal

	CreateTime time.Time
	FinishTime time.Time

	Fee         decimal.Decimal
	FilledSize  decimal.Decimal
	FilledPrice decimal.Decimal

	Status OrderStatus

	// DoneReason holds the exchange provided reason for a rejected or canceled
	// order, if any.
	DoneReason string
}

// FilledValue returns the quote amount exchanged by the order.
func (v *Order) FilledValue() decimal.Decimal {
	return v.FilledSize.Mul(v.FilledPrice)
}

func (v *Order) String() string {
	return fmt.Sprintf("{ID: %s ClientRef %s Side %s Price %s Size %s Filled %s@%s Fee %s Status %s}",
		v.ServerOrderID, v.ClientRef, v.Side, v.Price, v.Size, v.FilledSize, v.FilledPrice, v.Fee, v.Status)
}
