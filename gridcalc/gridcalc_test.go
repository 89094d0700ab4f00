// Copyright (c) 2025 BVK Chaitanya

package gridcalc

import (
	"testing"
	"time"

	"github.com/bvk/gridbot/exchange"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var d = decimal.RequireFromString

func candles(closes ...string) []*exchange.Candle {
	var cs []*exchange.Candle
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		cs = append(cs, &exchange.Candle{
			StartTime: start.Add(time.Duration(i) * 4 * time.Hour),
			Duration:  4 * time.Hour,
			Close:     d(c),
		})
	}
	return cs
}

func TestArithmeticLevels(t *testing.T) {
	prices, err := Levels(d("100"), d("110"), 5, Arithmetic, 8)
	require.NoError(t, err)

	want := []string{"100", "102.5", "105", "107.5", "110"}
	require.Len(t, prices, len(want))
	for i, w := range want {
		require.True(t, prices[i].Equal(d(w)), "level %d: want %s, got %s", i, w, prices[i])
	}
}

func TestGeometricLevels(t *testing.T) {
	prices, err := Levels(d("100"), d("400"), 3, Geometric, 8)
	require.NoError(t, err)
	require.True(t, prices[0].Equal(d("100")))
	require.True(t, prices[1].Equal(d("200")), "got %s", prices[1])
	require.True(t, prices[2].Equal(d("400")))
}

func TestLevelsProperties(t *testing.T) {
	ranges := [][2]string{{"100", "110"}, {"0.0001", "0.0002"}, {"25000", "31000"}, {"1.5", "1.51"}}
	for _, r := range ranges {
		for _, spacing := range []Spacing{Arithmetic, Geometric} {
			for n := 2; n <= 40; n++ {
				lower, upper := d(r[0]), d(r[1])
				prices, err := Levels(lower, upper, n, spacing, 8)
				require.NoError(t, err, "%v %s n=%d", r, spacing, n)
				require.Len(t, prices, n)
				require.True(t, prices[0].Equal(lower))
				require.True(t, prices[n-1].Equal(upper))
				for i := 1; i < n; i++ {
					require.True(t, prices[i].GreaterThan(prices[i-1]), "%v %s n=%d level %d", r, spacing, n, i)
				}

				again, err := Levels(lower, upper, n, spacing, 8)
				require.NoError(t, err)
				for i := range prices {
					require.True(t, prices[i].Equal(again[i]))
				}
			}
		}
	}
}

func TestLevelsInvalid(t *testing.T) {
	_, err := Levels(d("100"), d("110"), 1, Arithmetic, 8)
	require.Error(t, err)

	_, err = Levels(d("110"), d("100"), 5, Arithmetic, 8)
	require.ErrorIs(t, err, ErrDegenerateRange)

	_, err = Levels(d("100"), d("100.01"), 50, Arithmetic, 2)
	require.ErrorIs(t, err, ErrDegenerateRange)
}

func TestRange(t *testing.T) {
	lower, upper, err := Range(candles("105", "99", "120", "101", "110", "100"), 6)
	require.NoError(t, err)
	require.True(t, lower.Equal(d("99")))
	require.True(t, upper.Equal(d("120")))

	_, _, err = Range(candles("105", "99"), 6)
	require.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestCompute(t *testing.T) {
	g, err := Compute(nil, &Input{
		Lower:     d("100"),
		Upper:     d("110"),
		NumLevels: 5,
		Size:      d("0.001"),
	})
	require.NoError(t, err)
	require.Equal(t, Arithmetic, g.Spacing)
	require.Len(t, g.Prices, 5)
	require.True(t, g.Size.Equal(d("0.001")))

	g, err = Compute(nil, &Input{
		Candles:   candles("100", "104", "108", "110", "102", "106"),
		NumLevels: 3,
		Budget:    d("315"),
	})
	require.NoError(t, err)
	require.True(t, g.Lower.Equal(d("100")))
	require.True(t, g.Upper.Equal(d("110")))
	// 315 / (100+105+110)
	require.True(t, g.Size.Equal(d("1")), "got %s", g.Size)

	_, err = Compute(nil, &Input{Candles: candles("100", "100.1", "100.2", "100.3", "100.4", "100.5"), NumLevels: 3, Size: d("1")})
	require.ErrorIs(t, err, ErrDegenerateRange)

	_, err = Compute(&Options{MinCandles: 10}, &Input{Candles: candles("100", "110"), NumLevels: 3, Size: d("1")})
	require.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestComputeOptions(t *testing.T) {
	narrow := &Input{Candles: candles("100", "100.1", "100.2", "100.3", "100.4", "100.5"), NumLevels: 3, Size: d("1")}

	opts := &Options{MinCandles: 6}
	g, err := Compute(opts, narrow)
	require.NoError(t, err)
	require.True(t, g.Upper.Equal(d("100.5")))
	require.Equal(t, Options{MinCandles: 6}, *opts)

	opts = &Options{MinSpreadPercent: d("1")}
	_, err = Compute(opts, narrow)
	require.ErrorIs(t, err, ErrDegenerateRange)
	require.Zero(t, opts.MinCandles)
	require.Zero(t, opts.PricePrecision)
}
