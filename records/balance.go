// Copyright (c) 2025 BVK Chaitanya

package records

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSnapshot is the account value recorded once per calendar day.
type BalanceSnapshot struct {
	// Day is the calendar day in YYYY-MM-DD format.
	Day  string    `json:"day"`
	Time time.Time `json:"time"`

	// Total is the value of all priced balances in the Quote currency.
	Quote string          `json:"quote"`
	Total decimal.Decimal `json:"total"`

	Balances map[string]decimal.Decimal `json:"balances"`

	// Unpriced holds the currencies left out of Total for lack of a price.
	Unpriced []string `json:"unpriced,omitempty"`
}
