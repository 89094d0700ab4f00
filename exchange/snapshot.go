// Copyright (c) 2025 BVK Chaitanya

package exchange

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is a point-in-time read of the market for a symbol.
type Snapshot struct {
	Symbol string

	LastPrice decimal.Decimal

	// DayOpen is the opening price of the rolling 24h window, if the exchange
	// provides one.
	DayOpen decimal.Decimal
	DayHigh decimal.Decimal
	DayLow  decimal.Decimal

	Volume24h decimal.Decimal

	Bid decimal.Decimal
	Ask decimal.Decimal

	ServerTime time.Time
}

func (v *Snapshot) String() string {
	return fmt.Sprintf("%s last=%s bid=%s ask=%s vol24h=%s at %s", strings.ToUpper(v.Symbol),
		v.LastPrice, v.Bid, v.Ask, v.Volume24h.StringFixed(2), v.ServerTime.Format(time.DateTime))
}

// Balances maps a lower-case currency name to the available amount.
type Balances map[string]decimal.Decimal

func (b Balances) Get(ccy string) decimal.Decimal {
	return b[strings.ToLower(ccy)]
}

// NonZero returns the currencies with a positive balance in sorted order.
func (b Balances) NonZero() []string {
	var ccys []string
	for k, v := range b {
		if v.IsPositive() {
			ccys = append(ccys, k)
		}
	}
	sort.Strings(ccys)
	return ccys
}
