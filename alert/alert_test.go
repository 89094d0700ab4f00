// Copyright (c) 2025 BVK Chaitanya

package alert

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/notify"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestManager(t *testing.T, opts *Options) (*Manager, *notify.Recorder, *testClock) {
	rec := new(notify.Recorder)
	m, err := NewManager(kvmemdb.New(), rec, opts)
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	m.now = clock.Now
	return m, rec, clock
}

func snapshot(symbol, price string) *exchange.Snapshot {
	return &exchange.Snapshot{Symbol: symbol, LastPrice: d(price), Volume24h: d("1000")}
}

func TestCooldown(t *testing.T) {
	ctx := context.Background()
	m, rec, clock := newTestManager(t, nil)

	rule, err := m.Create(ctx, &CreateRequest{User: "alice", Symbol: "BTCUSDT", Metric: Price, Comparison: Above, Threshold: d("100"), Cooldown: 300 * time.Second})
	require.NoError(t, err)
	require.Equal(t, "btcusdt", rule.Symbol)

	n, err := m.Evaluate(ctx, snapshot("btcusdt", "101"))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	clock.now = clock.now.Add(299 * time.Second)
	n, err = m.Evaluate(ctx, snapshot("btcusdt", "102"))
	require.NoError(t, err)
	require.Zero(t, n)

	clock.now = clock.now.Add(time.Second)
	n, err = m.Evaluate(ctx, snapshot("btcusdt", "102"))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	events := rec.Events(notify.Alert)
	require.Len(t, events, 2)
	require.Equal(t, "alice", events[0].User)

	rules, err := m.List(ctx, "alice", "")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, 2, rules[0].TriggerCount)
	require.True(t, rules[0].LastTriggered.Equal(clock.now))
}

func TestStrictComparisons(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, nil)

	_, err := m.Create(ctx, &CreateRequest{User: "alice", Symbol: "ethusdt", Metric: Price, Comparison: Above, Threshold: d("100")})
	require.NoError(t, err)
	_, err = m.Create(ctx, &CreateRequest{User: "alice", Symbol: "ethusdt", Metric: Price, Comparison: Below, Threshold: d("100")})
	require.NoError(t, err)

	n, err := m.Evaluate(ctx, snapshot("ethusdt", "100"))
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = m.Evaluate(ctx, snapshot("ethusdt", "99.99"))
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestVolumeAlert(t *testing.T) {
	ctx := context.Background()
	m, rec, _ := newTestManager(t, nil)

	_, err := m.Create(ctx, &CreateRequest{User: "bob", Symbol: "btcusdt", Metric: Volume, Comparison: Above, Threshold: d("500")})
	require.NoError(t, err)

	n, err := m.Evaluate(ctx, snapshot("btcusdt", "1"))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Contains(t, rec.Events()[0].Message, "volume")
}

func TestCreateRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, nil)

	req := &CreateRequest{User: "alice", Symbol: "btcusdt", Metric: Price, Comparison: Below, Threshold: d("90")}
	_, err := m.Create(ctx, req)
	require.NoError(t, err)

	_, err = m.Create(ctx, req)
	require.ErrorIs(t, err, os.ErrExist)

	// Same condition for another user is fine.
	other := *req
	other.User = "bob"
	_, err = m.Create(ctx, &other)
	require.NoError(t, err)

	_, err = m.Create(ctx, &CreateRequest{User: "alice", Symbol: "btcusdt", Metric: Volume, Comparison: PercentChange, Threshold: d("5")})
	require.ErrorIs(t, err, os.ErrInvalid)

	_, err = m.Create(ctx, &CreateRequest{User: "alice", Symbol: "btcusdt", Metric: Price, Comparison: Above, Threshold: d("0")})
	require.ErrorIs(t, err, os.ErrInvalid)
}

func TestDeleteChecksOwner(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, nil)

	rule, err := m.Create(ctx, &CreateRequest{User: "alice", Symbol: "btcusdt", Metric: Price, Comparison: Above, Threshold: d("100")})
	require.NoError(t, err)

	_, err = m.Delete(ctx, "bob", rule.ID)
	require.ErrorIs(t, err, os.ErrPermission)

	_, err = m.Delete(ctx, "alice", "missing")
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = m.Delete(ctx, "alice", rule.ID)
	require.NoError(t, err)

	symbols, err := m.Symbols(ctx)
	require.NoError(t, err)
	require.Empty(t, symbols)

	n, err := m.Evaluate(ctx, snapshot("btcusdt", "200"))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestDisabledRulesDoNotFire(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, nil)

	rule, err := m.Create(ctx, &CreateRequest{User: "alice", Symbol: "btcusdt", Metric: Price, Comparison: Above, Threshold: d("100")})
	require.NoError(t, err)

	_, err = m.SetEnabled(ctx, "bob", rule.ID, false)
	require.ErrorIs(t, err, os.ErrPermission)

	_, err = m.SetEnabled(ctx, "alice", rule.ID, false)
	require.NoError(t, err)

	n, err := m.Evaluate(ctx, snapshot("btcusdt", "200"))
	require.NoError(t, err)
	require.Zero(t, n)

	symbols, err := m.Symbols(ctx)
	require.NoError(t, err)
	require.Empty(t, symbols)

	_, err = m.SetEnabled(ctx, "alice", rule.ID, true)
	require.NoError(t, err)

	n, err = m.Evaluate(ctx, snapshot("btcusdt", "200"))
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestHistoryIsTrimmed(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t, &Options{MaxHistory: 2, DefaultCooldown: time.Second})

	_, err := m.Create(ctx, &CreateRequest{User: "alice", Symbol: "btcusdt", Metric: Price, Comparison: Above, Threshold: d("100")})
	require.NoError(t, err)

	for _, price := range []string{"101", "102", "103"} {
		clock.now = clock.now.Add(time.Minute)
		n, err := m.Evaluate(ctx, snapshot("btcusdt", price))
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}

	events, err := m.History(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.True(t, events[0].Value.Equal(d("103")))
	require.True(t, events[1].Value.Equal(d("102")))
}

func TestPercentChangeDayStart(t *testing.T) {
	ctx := context.Background()
	m, rec, clock := newTestManager(t, &Options{Location: time.UTC})

	_, err := m.Create(ctx, &CreateRequest{User: "alice", Symbol: "btcusdt", Metric: Price, Comparison: PercentChange, Threshold: d("5")})
	require.NoError(t, err)

	// The exchange's day open is the baseline for the first observation.
	snap := snapshot("btcusdt", "102")
	snap.DayOpen = d("100")
	n, err := m.Evaluate(ctx, snap)
	require.NoError(t, err)
	require.Zero(t, n)

	clock.now = clock.now.Add(time.Hour)
	n, err = m.Evaluate(ctx, snapshot("btcusdt", "94.9"))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Contains(t, rec.Events()[0].Message, "-5.10%")

	// Next day starts with a fresh baseline.
	clock.now = clock.now.Add(24 * time.Hour)
	n, err = m.Evaluate(ctx, snapshot("btcusdt", "90"))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestBaselinePreviousEvaluation(t *testing.T) {
	now := time.Now()
	b := NewBaselines(PreviousEvaluation, time.UTC)

	require.True(t, b.Observe(snapshot("btcusdt", "100"), now).IsZero())
	require.True(t, b.Observe(snapshot("btcusdt", "110"), now).Equal(d("100")))
	require.True(t, b.Observe(snapshot("btcusdt", "120"), now).Equal(d("110")))
	require.True(t, b.Observe(snapshot("ethusdt", "5"), now).IsZero())
}

func TestListBySymbolAcrossUsers(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, nil)

	for _, user := range []string{"alice", "bob"} {
		_, err := m.Create(ctx, &CreateRequest{User: user, Symbol: "btcusdt", Metric: Price, Comparison: Above, Threshold: d("100")})
		require.NoError(t, err)
	}
	_, err := m.Create(ctx, &CreateRequest{User: "bob", Symbol: "ethusdt", Metric: Price, Comparison: Above, Threshold: d("100")})
	require.NoError(t, err)

	symbols, err := m.Symbols(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"btcusdt", "ethusdt"}, symbols)

	n, err := m.Evaluate(ctx, snapshot("btcusdt", "101"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestParse(t *testing.T) {
	c, err := ParseComparison(">")
	require.NoError(t, err)
	require.Equal(t, Above, c)

	_, err = ParseComparison("equal")
	require.ErrorIs(t, err, os.ErrInvalid)

	_, err = ParseMetric("depth")
	require.ErrorIs(t, err, os.ErrInvalid)

	b, err := ParseBaseline("")
	require.NoError(t, err)
	require.Equal(t, DayStart, b)
}
