// Copyright (c) 2025 BVK Chaitanya

package exchange

import (
	"fmt"
	"strings"
)

// QuoteCurrencies lists the known quote currencies in the order they are
// matched against symbol suffixes.
var QuoteCurrencies = []string{"usdt", "usdc", "usdd", "fdusd", "husd", "btc", "eth", "trx", "ht"}

// SplitSymbol splits a symbol like "btcusdt" into base and quote currencies.
func SplitSymbol(symbol string) (base, quote string, err error) {
	s := strings.ToLower(symbol)
	for _, q := range QuoteCurrencies {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return strings.TrimSuffix(s, q), q, nil
		}
	}
	return "", "", fmt.Errorf("could not determine quote currency for symbol %q", symbol)
}

// NormalizeSymbol returns the canonical lower-case symbol name.
func NormalizeSymbol(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "/", "")
	return s
}
