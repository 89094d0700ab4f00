// Copyright (c) 2025 BVK Chaitanya

package grid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/bvk/gridbot/ctxutil"
	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/exchange/paper"
	"github.com/bvk/gridbot/gridcalc"
	"github.com/bvk/gridbot/kvutil"
	"github.com/bvk/gridbot/notify"
	"github.com/bvk/gridbot/records"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var d = decimal.RequireFromString

type testEnv struct {
	db     kv.Database
	ex     *paper.Exchange
	sink   *notify.Recorder
	engine *Engine
}

func newTestEnv(t *testing.T, opts *Options) *testEnv {
	ex, err := paper.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { ex.Close() })

	ex.SetBalance("usdt", d("1000"))
	ex.SetBalance("btc", d("1"))
	ex.SetPrice("btcusdt", d("104"))

	if opts == nil {
		opts = new(Options)
	}
	fast := ctxutil.Backoff{Attempts: 2, Initial: time.Millisecond, Max: time.Millisecond}
	opts.GatewayBackoff = fast
	opts.CancelBackoff = fast

	db := kvmemdb.New()
	sink := new(notify.Recorder)
	engine, err := NewEngine(db, ex, sink, opts)
	require.NoError(t, err)
	return &testEnv{db: db, ex: ex, sink: sink, engine: engine}
}

func (env *testEnv) start(t *testing.T) {
	_, err := env.engine.Start(context.Background(), &StartRequest{
		User:      "alice",
		Symbol:    "BTCUSDT",
		Lower:     d("100"),
		Upper:     d("110"),
		NumLevels: 5,
		Size:      d("0.001"),
	})
	require.NoError(t, err)
}

func (env *testEnv) state(t *testing.T) *records.GridState {
	st, err := env.engine.Get(context.Background(), "alice", "btcusdt")
	require.NoError(t, err)
	return st
}

func openPrices(ex *paper.Exchange) map[string]int {
	m := make(map[string]int)
	for _, order := range ex.OpenOrders("btcusdt") {
		m[string(order.Side)+"@"+order.Price.String()]++
	}
	return m
}

func TestStartPlacesOneOrderPerLevel(t *testing.T) {
	env := newTestEnv(t, nil)
	env.start(t)

	st := env.state(t)
	require.Equal(t, string(Active), st.Status)
	require.Len(t, st.Levels, 5)
	for i, p := range []string{"100", "102.5", "105", "107.5", "110"} {
		require.True(t, st.Levels[i].Price.Equal(d(p)), "level %d: want %s, got %s", i, p, st.Levels[i].Price)
	}

	require.Equal(t, 5, env.ex.Calls(paper.OpPlace))
	require.Equal(t, map[string]int{
		"BUY@100": 1, "BUY@102.5": 1, "SELL@105": 1, "SELL@107.5": 1, "SELL@110": 1,
	}, openPrices(env.ex))
	require.Equal(t, 5, OpenOrders(st))
}

func TestBuyFillReplenishes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.start(t)

	oldID := env.state(t).Levels[1].Binding.OrderID

	env.ex.SetPrice("btcusdt", d("102"))
	require.NoError(t, env.engine.Reconcile(ctx, "alice", "btcusdt"))

	st := env.state(t)
	require.Len(t, st.Fills, 1)
	require.Equal(t, oldID, st.Fills[0].OrderID)
	require.Equal(t, string(exchange.BUY), st.Fills[0].Side)

	b := st.Levels[1].Binding
	require.NotNil(t, b)
	require.NotEqual(t, oldID, b.OrderID)
	require.Equal(t, string(exchange.SELL), b.Side)
	require.True(t, b.Price.Equal(d("105")))

	old, err := env.ex.GetOrder(ctx, exchange.OrderID(oldID))
	require.NoError(t, err)
	require.Equal(t, exchange.FILLED, old.Status)

	require.Equal(t, map[string]int{
		"BUY@100": 1, "SELL@105": 2, "SELL@107.5": 1, "SELL@110": 1,
	}, openPrices(env.ex))
	require.Len(t, env.sink.Events(notify.Fill), 1)

	// Nothing changed, so reconciling again must be a no-op.
	nplaced := env.ex.Calls(paper.OpPlace)
	require.NoError(t, env.engine.Reconcile(ctx, "alice", "btcusdt"))
	require.Equal(t, nplaced, env.ex.Calls(paper.OpPlace))
	require.Len(t, env.state(t).Fills, 1)
	require.Len(t, env.sink.Events(notify.Fill), 1)
}

func TestRoundTripProfit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.start(t)

	env.ex.SetPrice("btcusdt", d("102"))
	require.NoError(t, env.engine.Reconcile(ctx, "alice", "btcusdt"))

	env.ex.SetPrice("btcusdt", d("105"))
	require.NoError(t, env.engine.Reconcile(ctx, "alice", "btcusdt"))

	st := env.state(t)
	require.Equal(t, 1, st.CompletedTrades)
	require.True(t, st.RealizedProfit.Equal(d("0.0025")), "got %s", st.RealizedProfit)

	// Level 1 completed its round trip and buys at its own price again; level
	// 2 opened a round trip with a sell and buys one step down.
	require.Equal(t, string(exchange.BUY), st.Levels[1].Binding.Side)
	require.True(t, st.Levels[1].Binding.Price.Equal(d("102.5")))
	require.Nil(t, st.Levels[1].OpenFill)
	require.Equal(t, string(exchange.BUY), st.Levels[2].Binding.Side)
	require.True(t, st.Levels[2].Binding.Price.Equal(d("102.5")))
	require.NotNil(t, st.Levels[2].OpenFill)

	// Complete the second round trip.
	env.ex.SetPrice("btcusdt", d("102.5"))
	require.NoError(t, env.engine.Reconcile(ctx, "alice", "btcusdt"))
	require.NoError(t, env.engine.Reconcile(ctx, "alice", "btcusdt"))

	st = env.state(t)
	var sum decimal.Decimal
	for _, f := range st.Fills {
		sum = sum.Add(f.Profit)
	}
	require.Equal(t, 2, st.CompletedTrades)
	require.True(t, st.RealizedProfit.Equal(sum), "want %s, got %s", sum, st.RealizedProfit)
	require.True(t, st.RealizedProfit.Equal(d("0.005")), "got %s", st.RealizedProfit)
}

func TestPauseKeepsOrdersAndSkipsReplenishment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.start(t)

	st, err := env.engine.Pause(ctx, "alice", "btcusdt")
	require.NoError(t, err)
	require.Equal(t, string(Paused), st.Status)
	require.Equal(t, 0, env.ex.Calls(paper.OpCancel))
	require.Len(t, env.ex.OpenOrders("btcusdt"), 5)

	env.ex.SetPrice("btcusdt", d("102"))
	nplaced := env.ex.Calls(paper.OpPlace)
	require.NoError(t, env.engine.Reconcile(ctx, "alice", "btcusdt"))
	require.Equal(t, nplaced, env.ex.Calls(paper.OpPlace))

	got := env.state(t)
	require.Len(t, got.Fills, 1)
	require.Nil(t, got.Levels[1].Binding)
	require.Equal(t, string(exchange.SELL), got.Levels[1].TargetSide)
	require.Len(t, env.ex.OpenOrders("btcusdt"), 4)

	_, err = env.engine.Resume(ctx, "alice", "btcusdt")
	require.NoError(t, err)
	require.Equal(t, map[string]int{
		"BUY@100": 1, "SELL@105": 2, "SELL@107.5": 1, "SELL@110": 1,
	}, openPrices(env.ex))
}

func TestPauseCancelsWhenConfigured(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &Options{CancelOnPause: true})
	env.start(t)

	st, err := env.engine.Pause(ctx, "alice", "btcusdt")
	require.NoError(t, err)
	require.Equal(t, 0, OpenOrders(st))
	require.Empty(t, env.ex.OpenOrders("btcusdt"))

	_, err = env.engine.Resume(ctx, "alice", "btcusdt")
	require.NoError(t, err)
	require.Len(t, env.ex.OpenOrders("btcusdt"), 5)
}

func TestStopCancelsOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.start(t)

	report, err := env.engine.Stop(ctx, "alice", "btcusdt")
	require.NoError(t, err)
	require.Equal(t, 5, report.Canceled)
	require.Empty(t, report.Failed)
	require.Equal(t, string(Stopped), report.State.Status)
	require.Equal(t, 1, env.ex.Calls(paper.OpCancelBatch))
	require.Empty(t, env.ex.OpenOrders("btcusdt"))
	require.True(t, env.ex.HeldBalance("usdt").IsZero())

	report, err = env.engine.Stop(ctx, "alice", "btcusdt")
	require.NoError(t, err)
	require.Equal(t, 0, report.Canceled)
	require.Equal(t, 1, env.ex.Calls(paper.OpCancelBatch))

	_, err = env.engine.Pause(ctx, "alice", "btcusdt")
	require.ErrorIs(t, err, ErrStopped)

	// A stopped grid can be replaced with a new one.
	env.start(t)
	require.Len(t, env.ex.OpenOrders("btcusdt"), 5)
}

func TestStopReportsLeftovers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.start(t)

	for i := 0; i < 2; i++ {
		env.ex.FailNext(paper.OpCancelBatch, exchange.Transient("cancel-orders", errors.New("bad gateway")))
	}
	report, err := env.engine.Stop(ctx, "alice", "btcusdt")
	require.NoError(t, err)
	require.Len(t, report.Failed, 5)
	require.Equal(t, string(Stopped), report.State.Status)
	require.Len(t, report.State.Leftovers, 5)
	require.Len(t, env.sink.Events(notify.GridWarning), 1)
}

func TestStopFallsBackToSingleCancels(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.start(t)

	env.ex.FailNext(paper.OpCancelBatch, fmt.Errorf("cancel-orders: %w", exchange.ErrOrderRejected))
	report, err := env.engine.Stop(ctx, "alice", "btcusdt")
	require.NoError(t, err)
	require.Empty(t, report.Failed)
	require.Equal(t, 5, report.Canceled)
	require.Empty(t, report.State.Leftovers)
	require.Empty(t, env.ex.OpenOrders("btcusdt"))
	require.Equal(t, 5, env.ex.Calls(paper.OpCancel))
}

func TestStartErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.start(t)

	_, err := env.engine.Start(ctx, &StartRequest{User: "alice", Symbol: "btcusdt", Lower: d("100"), Upper: d("110"), NumLevels: 5, Size: d("0.001")})
	require.ErrorIs(t, err, os.ErrExist)

	_, err = env.engine.Start(ctx, &StartRequest{User: "bob", Symbol: "btcusdt", Lower: d("90"), Upper: d("100"), NumLevels: 5, Size: d("0.001")})
	require.ErrorIs(t, err, ErrPriceOutOfRange)

	_, err = env.engine.Start(ctx, &StartRequest{User: "bob", Symbol: "btcusdt", NumLevels: 5, Size: d("0.001")})
	require.ErrorIs(t, err, gridcalc.ErrInsufficientHistory)

	_, err = env.engine.Start(ctx, &StartRequest{User: "bob", Symbol: "btcusdt", Lower: d("100"), NumLevels: 5, Size: d("0.001")})
	require.ErrorIs(t, err, os.ErrInvalid)

	_, err = env.engine.Get(ctx, "bob", "btcusdt")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestStartAutoRange(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	var candles []*exchange.Candle
	for _, c := range []string{"101", "99", "110", "104", "108", "100"} {
		candles = append(candles, &exchange.Candle{Close: d(c), Duration: 4 * time.Hour})
	}
	env.ex.SetCandles("btcusdt", candles)

	st, err := env.engine.Start(ctx, &StartRequest{User: "alice", Symbol: "btcusdt", NumLevels: 3, Size: d("0.001")})
	require.NoError(t, err)
	require.True(t, st.AutoRange)
	require.True(t, st.Lower.Equal(d("99")))
	require.True(t, st.Upper.Equal(d("110")))
}

func TestInsufficientBalanceIsPerLevel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.ex.SetBalance("usdt", d("0.15"))
	env.start(t)

	st := env.state(t)
	require.Equal(t, string(Active), st.Status)
	require.NotNil(t, st.Levels[0].Binding)
	require.Nil(t, st.Levels[1].Binding)
	require.Contains(t, st.Levels[1].LastError, "insufficient balance")
	require.Equal(t, 1, st.Levels[1].Retries)
	require.Len(t, env.ex.OpenOrders("btcusdt"), 4)

	env.ex.SetBalance("usdt", d("1000"))
	require.NoError(t, env.engine.Reconcile(ctx, "alice", "btcusdt"))
	require.Len(t, env.ex.OpenOrders("btcusdt"), 5)
}

func TestCanceledOrdersAreRetriedThenStuck(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &Options{MaxRetries: 2})
	env.start(t)

	// Rejections are counted the same as cancellations.
	id := env.state(t).Levels[4].Binding.OrderID
	require.NoError(t, env.ex.CancelExternally(exchange.OrderID(id)))
	require.NoError(t, env.engine.Reconcile(ctx, "alice", "btcusdt"))
	require.Equal(t, 1, env.state(t).Levels[4].Retries)

	id = env.state(t).Levels[4].Binding.OrderID
	require.NoError(t, env.ex.RejectExternally(exchange.OrderID(id), "post-only"))
	require.NoError(t, env.engine.Reconcile(ctx, "alice", "btcusdt"))

	st := env.state(t)
	require.True(t, st.Levels[4].Stuck)
	require.Nil(t, st.Levels[4].Binding)
	require.Len(t, env.ex.OpenOrders("btcusdt"), 4)
	require.Len(t, env.sink.Events(notify.GridWarning), 1)

	require.NoError(t, env.engine.Reconcile(ctx, "alice", "btcusdt"))
	require.Len(t, env.sink.Events(notify.GridWarning), 1)

	// Resume clears stuck levels.
	_, err := env.engine.Pause(ctx, "alice", "btcusdt")
	require.NoError(t, err)
	_, err = env.engine.Resume(ctx, "alice", "btcusdt")
	require.NoError(t, err)
	require.Len(t, env.ex.OpenOrders("btcusdt"), 5)
}

func TestTransientPlaceFailureReusesClientRef(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	// Both attempts for the first level fail.
	env.ex.FailNext(paper.OpPlace, exchange.Transient("place", errors.New("timeout")))
	env.ex.FailNext(paper.OpPlace, exchange.Transient("place", errors.New("timeout")))
	env.start(t)

	st := env.state(t)
	b := st.Levels[0].Binding
	require.NotNil(t, b)
	require.Equal(t, string(exchange.PENDING), b.Status)
	require.Empty(t, b.OrderID)
	require.Equal(t, 0, st.Levels[0].Retries)
	ref := b.ClientRef

	// The lost placement actually reached the exchange.
	_, err := env.ex.PlaceOrder(ctx, &exchange.OrderRequest{Symbol: "btcusdt", Side: exchange.BUY, Price: d("100"), Size: d("0.001"), ClientRef: ref})
	require.NoError(t, err)

	require.NoError(t, env.engine.Reconcile(ctx, "alice", "btcusdt"))
	st = env.state(t)
	require.Equal(t, ref, st.Levels[0].Binding.ClientRef)
	require.Equal(t, string(exchange.OPEN), st.Levels[0].Binding.Status)
	require.Len(t, env.ex.OpenOrders("btcusdt"), 5)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.start(t)

	engine, err := NewEngine(env.db, env.ex, env.sink, &Options{})
	require.NoError(t, err)
	n, err := engine.Restore(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"alice/btcusdt"}, engine.registry.IDs())

	live, err := engine.LiveGrids(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string][]string{"btcusdt": {"alice"}}, live)

	env.ex.SetPrice("btcusdt", d("102"))
	require.NoError(t, engine.Reconcile(ctx, "alice", "btcusdt"))
	require.Len(t, env.ex.OpenOrders("btcusdt"), 5)
}

func TestCorruptGridsAreReported(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &Options{RepairWarningInterval: time.Hour})

	bad := &records.GridState{User: "bob", Symbol: "ethusdt", Status: string(Active), Lower: d("10"), Upper: d("5"), NumLevels: 2, Size: d("1")}
	require.NoError(t, kvutil.SetDB(ctx, env.db, Key("bob", "ethusdt"), bad))

	live, err := env.engine.LiveGrids(ctx)
	require.NoError(t, err)
	require.Empty(t, live)

	warnings := env.sink.Events(notify.GridWarning)
	require.Len(t, warnings, 1)
	require.Equal(t, "bob", warnings[0].User)
	require.Equal(t, "ethusdt", warnings[0].Symbol)
	require.Contains(t, warnings[0].Message, "below upper")

	env.start(t)
	live, err = env.engine.LiveGrids(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string][]string{"btcusdt": {"alice"}}, live)
	require.Len(t, env.sink.Events(notify.GridWarning), 1)

	n, err := env.engine.Restore(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, env.sink.Events(notify.GridWarning), 1)

	later := time.Now().Add(2 * time.Hour)
	env.engine.now = func() time.Time { return later }
	_, err = env.engine.LiveGrids(ctx)
	require.NoError(t, err)
	require.Len(t, env.sink.Events(notify.GridWarning), 2)
}

func TestRecordErrors(t *testing.T) {
	r1 := &RecordError{User: "a", Symbol: "btcusdt", Err: ErrStateCorruption}
	r2 := &RecordError{User: "b", Symbol: "ethusdt", Err: ErrStateCorruption}
	err := fmt.Errorf("listing: %w", errors.Join(r1, r2))
	require.Equal(t, []*RecordError{r1, r2}, RecordErrors(err))
	require.ErrorIs(t, err, ErrStateCorruption)
	require.Empty(t, RecordErrors(errors.New("other")))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.start(t)

	require.ErrorIs(t, env.engine.Delete(ctx, "alice", "btcusdt"), os.ErrInvalid)
	_, err := env.engine.Stop(ctx, "alice", "btcusdt")
	require.NoError(t, err)
	require.NoError(t, env.engine.Delete(ctx, "alice", "btcusdt"))

	grids, err := env.engine.List(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, grids)
}

func TestCheckDrift(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	setCloses := func(closes ...string) {
		var candles []*exchange.Candle
		for _, c := range closes {
			candles = append(candles, &exchange.Candle{Close: d(c), Duration: 4 * time.Hour})
		}
		env.ex.SetCandles("btcusdt", candles)
	}
	setCloses("101", "99", "110", "104", "108", "100")

	_, err := env.engine.Start(ctx, &StartRequest{User: "alice", Symbol: "btcusdt", NumLevels: 3, Size: d("0.001")})
	require.NoError(t, err)

	drifted, err := env.engine.CheckDrift(ctx, "alice", "btcusdt", d("5"))
	require.NoError(t, err)
	require.False(t, drifted)

	setCloses("101", "90", "110", "104", "108", "100")
	drifted, err = env.engine.CheckDrift(ctx, "alice", "btcusdt", d("5"))
	require.NoError(t, err)
	require.True(t, drifted)
	require.Len(t, env.sink.Events(notify.GridWarning), 1)

	// Grids with user supplied bounds are not checked.
	_, err = env.engine.Stop(ctx, "alice", "btcusdt")
	require.NoError(t, err)
	require.NoError(t, env.engine.Delete(ctx, "alice", "btcusdt"))
	env.start(t)
	drifted, err = env.engine.CheckDrift(ctx, "alice", "btcusdt", d("5"))
	require.NoError(t, err)
	require.False(t, drifted)
}
