// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/ctxutil"
	"github.com/bvk/gridbot/exchange/paper"
	"github.com/bvk/gridbot/grid"
	"github.com/bvk/gridbot/kvutil"
	"github.com/bvk/gridbot/records"
	"github.com/bvk/gridbot/telegram"
	"github.com/bvk/gridbot/timerange"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/visvasity/cli"
)

var d = decimal.RequireFromString

func newTestServer(t *testing.T, opts *Options) (*Server, *paper.Exchange) {
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
	opts.Grid = &grid.Options{GatewayBackoff: fast, CancelBackoff: fast}

	s, err := New(context.Background(), nil, kvmemdb.New(), ex, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, ex
}

func post[RESP, REQ any](t *testing.T, url string, req *REQ) (*RESP, int) {
	data, err := json.Marshal(req)
	require.NoError(t, err)
	r, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Body.Close()

	if r.StatusCode != http.StatusOK {
		return nil, r.StatusCode
	}
	resp := new(RESP)
	require.NoError(t, json.NewDecoder(r.Body).Decode(resp))
	return resp, r.StatusCode
}

func TestGridAPI(t *testing.T) {
	s, ex := newTestServer(t, nil)

	mux := http.NewServeMux()
	for k, v := range s.HandlerMap() {
		mux.Handle(k, v)
	}
	hs := httptest.NewServer(mux)
	defer hs.Close()

	start, code := post[api.GridStartResponse](t, hs.URL+api.GridStartPath, &api.GridStartRequest{
		User:   "alice",
		Symbol: "BTCUSDT",
		Lower:  d("100"),
		Upper:  d("110"),
		Levels: 5,
		Size:   d("0.001"),
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice/btcusdt", start.Grid.ID)
	assert.Equal(t, string(grid.Active), start.Grid.Status)
	assert.Equal(t, 5, start.Grid.OpenOrders)
	assert.Len(t, start.Grid.Levels, 5)
	assert.Len(t, ex.OpenOrders("btcusdt"), 5)

	// Same user cannot have two grids on a symbol.
	_, code = post[api.GridStartResponse](t, hs.URL+api.GridStartPath, &api.GridStartRequest{
		User: "alice", Symbol: "btcusdt", Lower: d("100"), Upper: d("110"), Levels: 5, Size: d("0.001"),
	})
	assert.Equal(t, http.StatusConflict, code)

	_, code = post[api.GridStartResponse](t, hs.URL+api.GridStartPath, &api.GridStartRequest{
		User: "alice", Symbol: "btcusdt", Levels: 1, Size: d("0.001"),
	})
	assert.Equal(t, http.StatusBadRequest, code)

	pause, code := post[api.GridPauseResponse](t, hs.URL+api.GridPausePath, &api.GridPauseRequest{User: "alice", Symbol: "btcusdt"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(grid.Paused), pause.Grid.Status)

	resume, code := post[api.GridResumeResponse](t, hs.URL+api.GridResumePath, &api.GridResumeRequest{User: "alice", Symbol: "btcusdt"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(grid.Active), resume.Grid.Status)

	status, code := post[api.GridStatusResponse](t, hs.URL+api.GridStatusPath, &api.GridStatusRequest{User: "alice"})
	require.Equal(t, http.StatusOK, code)
	require.Len(t, status.Grids, 1)

	_, code = post[api.GridStatusResponse](t, hs.URL+api.GridStatusPath, &api.GridStatusRequest{User: "bob", Symbol: "btcusdt"})
	assert.Equal(t, http.StatusNotFound, code)

	stop, code := post[api.GridStopResponse](t, hs.URL+api.GridStopPath, &api.GridStopRequest{User: "alice", Symbol: "btcusdt"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 5, stop.Canceled)
	assert.Empty(t, stop.Failed)
	assert.Equal(t, string(grid.Stopped), stop.Grid.Status)
	assert.Empty(t, ex.OpenOrders("btcusdt"))
}

func TestAlertAPI(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ctx := context.Background()

	created, err := s.doAlertCreate(ctx, &api.AlertCreateRequest{
		User:       "alice",
		Symbol:     "btcusdt",
		Metric:     "price",
		Comparison: "above",
		Threshold:  d("50000"),
		Cooldown:   time.Minute,
	})
	require.NoError(t, err)
	assert.True(t, created.Rule.Enabled)
	assert.Equal(t, time.Minute, created.Rule.Cooldown)

	_, err = s.doAlertCreate(ctx, &api.AlertCreateRequest{
		User: "alice", Symbol: "btcusdt", Metric: "price", Comparison: "above", Threshold: d("50000"),
	})
	assert.ErrorIs(t, err, os.ErrExist)

	_, err = s.doAlertCreate(ctx, &api.AlertCreateRequest{
		User: "alice", Symbol: "btcusdt", Metric: "volume", Comparison: "change", Threshold: d("5"),
	})
	assert.ErrorIs(t, err, os.ErrInvalid)

	list, err := s.doAlertList(ctx, &api.AlertListRequest{User: "alice"})
	require.NoError(t, err)
	require.Len(t, list.Rules, 1)

	list, err = s.doAlertList(ctx, &api.AlertListRequest{User: "bob"})
	require.NoError(t, err)
	assert.Empty(t, list.Rules)

	_, err = s.doAlertEnable(ctx, &api.AlertEnableRequest{User: "bob", RuleID: created.Rule.ID})
	assert.ErrorIs(t, err, os.ErrPermission)

	disabled, err := s.doAlertEnable(ctx, &api.AlertEnableRequest{User: "alice", RuleID: created.Rule.ID, Enabled: false})
	require.NoError(t, err)
	assert.False(t, disabled.Rule.Enabled)

	_, err = s.doAlertDelete(ctx, &api.AlertDeleteRequest{User: "bob", RuleID: created.Rule.ID})
	assert.ErrorIs(t, err, os.ErrPermission)

	_, err = s.doAlertDelete(ctx, &api.AlertDeleteRequest{User: "alice", RuleID: created.Rule.ID})
	require.NoError(t, err)

	_, err = s.doAlertDelete(ctx, &api.AlertDeleteRequest{User: "alice", RuleID: created.Rule.ID})
	assert.ErrorIs(t, err, os.ErrNotExist)

	history, err := s.doAlertHistory(ctx, &api.AlertHistoryRequest{User: "alice"})
	require.NoError(t, err)
	assert.Empty(t, history.Events)
}

func TestMarketAPI(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ctx := context.Background()

	snap, err := s.doMarketSnapshot(ctx, &api.MarketSnapshotRequest{Symbol: "btcusdt"})
	require.NoError(t, err)
	assert.True(t, snap.LastPrice.Equal(d("104")))

	_, err = s.doMarketSnapshot(ctx, &api.MarketSnapshotRequest{Symbol: "nonsense"})
	assert.ErrorIs(t, err, os.ErrInvalid)

	balance, err := s.doMarketBalance(ctx, &api.MarketBalanceRequest{})
	require.NoError(t, err)
	assert.Len(t, balance.Balances, 2)
	assert.True(t, balance.Balances["usdt"].Equal(d("1000")))

	status, err := s.doStatus(ctx, &api.StatusRequest{})
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), status.Pid)
	assert.Zero(t, status.LiveGrids)
}

func TestManualOrders(t *testing.T) {
	s, ex := newTestServer(t, nil)
	ctx := context.Background()

	_, err := s.doMarketOrder(ctx, &api.MarketOrderRequest{User: "alice", Symbol: "btcusdt", Side: "buy", Price: d("95"), Size: d("0.1")})
	require.NoError(t, err)
	_, err = s.doGridStart(ctx, &api.GridStartRequest{
		User: "alice", Symbol: "btcusdt", Lower: d("100"), Upper: d("110"), Levels: 5, Size: d("0.001"),
	})
	require.NoError(t, err)

	open, err := s.doMarketOpenOrders(ctx, &api.MarketOpenOrdersRequest{Symbol: "btcusdt"})
	require.NoError(t, err)
	require.Len(t, open.Orders, 6)
	manual := 0
	for _, o := range open.Orders {
		if o.GridID == "" {
			manual++
			assert.True(t, o.Price.Equal(d("95")))
		} else {
			assert.Equal(t, "alice/btcusdt", o.GridID)
		}
	}
	assert.Equal(t, 1, manual)

	canceled, err := s.doMarketCancelAll(ctx, &api.MarketCancelAllRequest{User: "alice", Symbol: "btcusdt"})
	require.NoError(t, err)
	assert.Equal(t, 1, canceled.Canceled)
	assert.Len(t, ex.OpenOrders("btcusdt"), 5)

	_, err = s.doMarketOrder(ctx, &api.MarketOrderRequest{User: "alice", Symbol: "btcusdt", Side: "sell", Type: "market", Size: d("0.1")})
	require.NoError(t, err)
	history, err := s.doMarketHistory(ctx, &api.MarketHistoryRequest{Symbol: "btcusdt"})
	require.NoError(t, err)
	require.Len(t, history.Orders, 2)
	assert.Equal(t, "FILLED", history.Orders[0].Status)
	assert.True(t, history.Orders[0].FilledPrice.Equal(d("104")))

	_, err = s.doMarketOrder(ctx, &api.MarketOrderRequest{User: "alice", Symbol: "btcusdt", Side: "buy", Size: d("0.1")})
	assert.ErrorIs(t, err, os.ErrInvalid)
	_, err = s.doMarketOrder(ctx, &api.MarketOrderRequest{User: "alice", Symbol: "btcusdt", Side: "hold", Type: "market", Size: d("0.1")})
	assert.ErrorIs(t, err, os.ErrInvalid)

	all, err := s.doMarketCancelAll(ctx, &api.MarketCancelAllRequest{User: "alice", Symbol: "btcusdt", IncludeGrids: true})
	require.NoError(t, err)
	assert.Equal(t, 5, all.Canceled)
}

func TestDailyPnL(t *testing.T) {
	s, ex := newTestServer(t, &Options{Location: time.UTC, BalanceHistoryDays: 30})
	ctx := context.Background()
	now := time.Now()

	old := now.AddDate(0, 0, -40)
	saved, err := s.saveBalanceSnapshot(ctx, old)
	require.NoError(t, err)
	require.True(t, saved)

	pnl, err := s.doPnL(ctx, &api.PnLRequest{})
	require.NoError(t, err)
	assert.Equal(t, old.UTC().Format(time.DateOnly), pnl.PreviousDay)

	yesterday := now.AddDate(0, 0, -1)
	saved, err = s.saveBalanceSnapshot(ctx, yesterday)
	require.NoError(t, err)
	require.True(t, saved)
	saved, err = s.saveBalanceSnapshot(ctx, yesterday)
	require.NoError(t, err)
	require.False(t, saved)

	// 1000 usdt + 1 btc at 104.
	ex.SetBalance("usdt", d("1100"))
	pnl, err = s.dailyPnL(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, "usdt", pnl.Quote)
	assert.Equal(t, yesterday.UTC().Format(time.DateOnly), pnl.PreviousDay)
	assert.True(t, pnl.Previous.Equal(d("1104")), "previous %s", pnl.Previous)
	assert.True(t, pnl.Current.Equal(d("1204")), "current %s", pnl.Current)
	assert.True(t, pnl.PnL.Equal(d("100")))
	assert.True(t, pnl.PnLPercent.Equal(d("9.06")), "percent %s", pnl.PnLPercent)

	saved, err = s.saveBalanceSnapshot(ctx, now)
	require.NoError(t, err)
	require.True(t, saved)
	_, err = kvutil.GetDB[records.BalanceSnapshot](ctx, s.db, balanceKey(old.UTC().Format(time.DateOnly)))
	assert.ErrorIs(t, err, os.ErrNotExist)

	out, err := runCommand(t, s.pnlCmd, "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "1204")
}

func TestSummarize(t *testing.T) {
	day := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	grids := []*records.GridState{
		{
			User:   "alice",
			Symbol: "btcusdt",
			Fills: []*records.Fill{
				{Side: "BUY", Fee: d("0.1"), Time: day.Add(-48 * time.Hour)},
				{Side: "SELL", Fee: d("0.1"), Profit: d("2.3"), Time: day.Add(-47 * time.Hour)},
				{Side: "BUY", Fee: d("0.1"), Time: day.Add(-time.Hour)},
				{Side: "SELL", Fee: d("0.1"), Profit: d("2.3"), Time: day},
			},
		},
		{
			User:   "alice",
			Symbol: "ethusdt",
		},
	}

	all := Summarize(grids, &timerange.Range{})
	require.Len(t, all, 1)
	assert.Equal(t, "alice/btcusdt", all[0].GridID)
	assert.Equal(t, 2, all[0].Trades)
	assert.True(t, all[0].Profit.Equal(d("4.6")))
	assert.True(t, all[0].Fees.Equal(d("0.4")))

	today, err := timerange.Period("today", day)
	require.NoError(t, err)
	items := Summarize(grids, today)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Trades)
	assert.True(t, items[0].Profit.Equal(d("2.3")))
}

func TestLowBalanceAlert(t *testing.T) {
	s, _ := newTestServer(t, &Options{LowBalanceSilence: time.Hour})
	ctx := context.Background()
	now := time.Now()

	assert.False(t, s.alertOnLowBalance(ctx, "usdt", d("100"), d("50"), now))
	assert.True(t, s.alertOnLowBalance(ctx, "usdt", d("10"), d("50"), now))
	assert.False(t, s.alertOnLowBalance(ctx, "usdt", d("10"), d("50"), now.Add(time.Minute)))
	assert.True(t, s.alertOnLowBalance(ctx, "usdt", d("10"), d("50"), now.Add(2*time.Hour)))
}

func runCommand(t *testing.T, f telegram.CmdFunc, user string, args ...string) (string, error) {
	var sb strings.Builder
	ctx := telegram.WithSender(cli.WithStdout(context.Background(), &sb), user)
	err := f(ctx, args)
	return sb.String(), err
}

func TestTelegramCommands(t *testing.T) {
	s, _ := newTestServer(t, nil)

	out, err := runCommand(t, s.gridStartCmd, "bob", "btcusdt", "5", "0.001", "100", "110")
	require.NoError(t, err)
	assert.Contains(t, out, "bob/btcusdt ACTIVE")

	_, err = runCommand(t, s.gridStartCmd, "bob", "btcusdt", "five", "0.001")
	assert.ErrorIs(t, err, os.ErrInvalid)

	_, err = runCommand(t, s.gridStartCmd, "bob", "btcusdt")
	assert.ErrorIs(t, err, os.ErrInvalid)

	out, err = runCommand(t, s.gridStatusCmd, "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "open=5")

	out, err = runCommand(t, s.gridStatusCmd, "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "No grids.")

	out, err = runCommand(t, s.alertAddCmd, "bob", "btcusdt", "price", "below", "90", "10m")
	require.NoError(t, err)
	assert.Contains(t, out, "btcusdt price below 90 cooldown=10m0s enabled")

	out, err = runCommand(t, s.alertsCmd, "bob", "btcusdt")
	require.NoError(t, err)
	assert.Contains(t, out, "btcusdt price below 90")

	out, err = runCommand(t, s.priceCmd, "bob", "btcusdt")
	require.NoError(t, err)
	assert.Contains(t, out, "last=104")

	out, err = runCommand(t, s.profitCmd, "bob", "today")
	require.NoError(t, err)
	assert.Contains(t, out, "Total: 0.000 (0 trades)")

	_, err = runCommand(t, s.profitCmd, "bob", "fortnight")
	assert.ErrorIs(t, err, os.ErrInvalid)

	out, err = runCommand(t, s.gridStopCmd, "bob", "btcusdt")
	require.NoError(t, err)
	assert.Contains(t, out, "Canceled 5 orders.")
}

func TestStartRestoresGrids(t *testing.T) {
	s, ex := newTestServer(t, &Options{})
	ctx := context.Background()

	_, err := s.doGridStart(ctx, &api.GridStartRequest{
		User: "alice", Symbol: "btcusdt", Lower: d("100"), Upper: d("110"), Levels: 5, Size: d("0.001"),
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	watched, err := s.monitor.Watched(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"btcusdt"}, watched)
	assert.Len(t, ex.OpenOrders("btcusdt"), 5)
}
