// Copyright (c) 2025 BVK Chaitanya

package htx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/htx/internal"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExchange(t *testing.T, mux *http.ServeMux) *Exchange {
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)

	ex, err := New("key", "secret", &Options{RestHost: u.Host, RestScheme: "http", RequestsPerSec: 1000})
	require.NoError(t, err)
	t.Cleanup(func() { ex.Close() })
	return ex
}

func handleData(mux *http.ServeMux, pattern, data string) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status":"ok","data":%s}`, data)
	})
}

func handleError(mux *http.ServeMux, pattern, code string) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status":"error","err-code":%q,"err-msg":"failed"}`, code)
	})
}

const accountsData = `[{"id":42,"type":"spot","state":"working"}]`

func TestConvertError(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{&internal.APIError{HTTPStatus: 429, Code: internal.CodeTooManyRequests}, exchange.ErrRateLimited},
		{&internal.APIError{HTTPStatus: 200, Code: internal.CodeTooManyRequests}, exchange.ErrRateLimited},
		{&internal.APIError{HTTPStatus: 200, Code: internal.CodeInsufficientBalance}, exchange.ErrInsufficientBalance},
		{&internal.APIError{HTTPStatus: 200, Code: internal.CodeBalanceError}, exchange.ErrInsufficientBalance},
		{&internal.APIError{HTTPStatus: 200, Code: internal.CodeRecordInvalid}, exchange.ErrOrderNotFound},
		{&internal.APIError{HTTPStatus: 200, Code: "order-limitorder-price-error"}, exchange.ErrOrderRejected},
	}
	for _, test := range tests {
		assert.ErrorIs(t, convertError("test", test.err), test.want, "code %s", test.err.(*internal.APIError).Code)
	}

	assert.True(t, exchange.IsRetryable(convertError("test", &internal.APIError{HTTPStatus: 502, Code: "Bad Gateway"})))
	assert.False(t, exchange.IsRetryable(convertError("test", &internal.APIError{HTTPStatus: 200, Code: internal.CodeInsufficientBalance})))
	assert.ErrorIs(t, convertError("test", context.Canceled), context.Canceled)
	assert.False(t, exchange.IsRetryable(convertError("test", context.Canceled)))
}

func TestToExchangeOrder(t *testing.T) {
	order, err := toExchangeOrder(&internal.Order{
		ID:              7,
		ClientOrderID:   "ref",
		Symbol:          "btcusdt",
		Type:            "buy-limit",
		Amount:          decimal.NewFromInt(2),
		Price:           decimal.NewFromInt(100),
		State:           "filled",
		FilledAmount:    decimal.NewFromInt(2),
		FilledCashValue: decimal.NewFromInt(200),
		FilledFees:      decimal.RequireFromString("0.004"),
		CreatedAt:       1700000000000,
		FinishedAt:      1700000060000,
	})
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderID("7"), order.ServerOrderID)
	assert.Equal(t, exchange.BUY, order.Side)
	assert.Equal(t, exchange.FILLED, order.Status)
	assert.True(t, order.FilledPrice.Equal(decimal.NewFromInt(100)))
	// Buy fees are in the base currency and are converted to quote.
	assert.True(t, order.Fee.Equal(decimal.RequireFromString("0.4")), "fee %s", order.Fee)
	assert.False(t, order.FinishTime.IsZero())

	states := map[string]exchange.OrderStatus{
		"submitted":        exchange.OPEN,
		"partial-filled":   exchange.OPEN,
		"partial-canceled": exchange.CANCELLED,
		"canceled":         exchange.CANCELLED,
		"rejected":         exchange.REJECTED,
	}
	for state, want := range states {
		order, err := toExchangeOrder(&internal.Order{ID: 1, Type: "sell-limit", State: state})
		require.NoError(t, err)
		assert.Equal(t, want, order.Status, state)
		assert.Equal(t, exchange.SELL, order.Side)
	}

	_, err = toExchangeOrder(&internal.Order{ID: 1, Type: "sell-limit", State: "unknown"})
	assert.Error(t, err)
}

func TestGetCandles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /market/history/kline", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "4hour", r.URL.Query().Get("period"))
		assert.Equal(t, "3", r.URL.Query().Get("size"))
		fmt.Fprint(w, `{"status":"ok","data":[
{"id":1700028800,"open":"102","close":"103","low":"101","high":"104","amount":"1"},
{"id":1700014400,"open":"101","close":"102","low":"100","high":"103","amount":"2"},
{"id":1700000000,"open":"100","close":"101","low":"99","high":"102","amount":"3"}]}`)
	})
	ex := newTestExchange(t, mux)

	candles, err := ex.GetCandles(context.Background(), "BTC/USDT", exchange.Interval4Hour, 3)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.True(t, candles[0].StartTime.Before(candles[2].StartTime), "candles must be oldest first")
	assert.True(t, candles[0].Low.Equal(decimal.NewFromInt(99)))

	_, err = ex.GetCandles(context.Background(), "btcusdt", "5min", 3)
	assert.Error(t, err)
}

func TestGetSnapshot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /market/detail/merged", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ethusdt", r.URL.Query().Get("symbol"))
		fmt.Fprint(w, `{"status":"ok","tick":{"open":"2000","close":"2100","low":"1990","high":"2110","amount":"1500","vol":"3100000","bid":["2099","3"],"ask":["2101","4"]}}`)
	})
	ex := newTestExchange(t, mux)

	snap, err := ex.GetSnapshot(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, "ethusdt", snap.Symbol)
	assert.True(t, snap.LastPrice.Equal(decimal.NewFromInt(2100)))
	assert.True(t, snap.DayOpen.Equal(decimal.NewFromInt(2000)))
	assert.True(t, snap.Volume24h.Equal(decimal.NewFromInt(1500)))
	assert.True(t, snap.Bid.Equal(decimal.NewFromInt(2099)))
	assert.True(t, snap.Ask.Equal(decimal.NewFromInt(2101)))
}

func TestPlaceOrderFindsExistingOrder(t *testing.T) {
	mux := http.NewServeMux()
	handleData(mux, "GET /v1/account/accounts", accountsData)
	handleError(mux, "POST /v1/order/orders/place", internal.CodeDuplicateClientID)
	handleData(mux, "GET /v1/order/orders/getClientOrder", `{"id":555,"client-order-id":"ref1","symbol":"btcusdt","type":"buy-limit","state":"submitted"}`)
	ex := newTestExchange(t, mux)

	id, err := ex.PlaceOrder(context.Background(), &exchange.OrderRequest{
		Symbol:    "btcusdt",
		Side:      exchange.BUY,
		Type:      "limit",
		Price:     decimal.NewFromInt(100),
		Size:      decimal.NewFromInt(1),
		ClientRef: "ref1",
	})
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderID("555"), id)
}

func TestMarketBuyIsSizedInQuote(t *testing.T) {
	mux := http.NewServeMux()
	handleData(mux, "GET /v1/account/accounts", accountsData)
	mux.HandleFunc("GET /market/detail/merged", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","tick":{"close":"2100","bid":["2099","3"],"ask":["2101","4"]}}`)
	})
	var body map[string]string
	mux.HandleFunc("POST /v1/order/orders/place", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"status":"ok","data":"777"}`)
	})
	ex := newTestExchange(t, mux)

	id, err := ex.PlaceOrder(context.Background(), &exchange.OrderRequest{
		Symbol: "ethusdt",
		Side:   exchange.BUY,
		Type:   "market",
		Size:   decimal.RequireFromString("0.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderID("777"), id)
	assert.Equal(t, "buy-market", body["type"])
	assert.Equal(t, "1050.5", body["amount"])
	assert.Empty(t, body["price"])
}

func TestListOrders(t *testing.T) {
	mux := http.NewServeMux()
	handleData(mux, "GET /v1/account/accounts", accountsData)
	mux.HandleFunc("GET /v1/order/openOrders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("account-id"))
		fmt.Fprint(w, `{"status":"ok","data":[{"id":1,"symbol":"btcusdt","type":"sell-limit","price":"110","amount":"2","state":"partial-filled","filled-amount":"1","filled-cash-amount":"110","filled-fees":"0.2"}]}`)
	})
	handleData(mux, "GET /v1/order/history", `[{"id":2,"symbol":"btcusdt","type":"buy-limit","price":"100","amount":"1","state":"filled","field-amount":"1","field-cash-amount":"100","field-fees":"0.002","finished-at":1700000000000}]`)
	ex := newTestExchange(t, mux)

	open, err := ex.ListOpenOrders(context.Background(), "btcusdt")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, exchange.OPEN, open[0].Status)
	assert.True(t, open[0].FilledSize.Equal(decimal.NewFromInt(1)))
	assert.True(t, open[0].FilledPrice.Equal(decimal.NewFromInt(110)))

	done, err := ex.RecentOrders(context.Background(), "btcusdt", 10)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, exchange.FILLED, done[0].Status)
	assert.True(t, done[0].Fee.Equal(decimal.RequireFromString("0.2")), "fee %s", done[0].Fee)
}

func TestPlaceOrderInsufficientBalance(t *testing.T) {
	mux := http.NewServeMux()
	handleData(mux, "GET /v1/account/accounts", accountsData)
	handleError(mux, "POST /v1/order/orders/place", internal.CodeBalanceError)
	var lookups atomic.Int32
	mux.HandleFunc("GET /v1/order/orders/getClientOrder", func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		http.NotFound(w, r)
	})
	ex := newTestExchange(t, mux)

	_, err := ex.PlaceOrder(context.Background(), &exchange.OrderRequest{
		Symbol:    "btcusdt",
		Side:      exchange.SELL,
		Price:     decimal.NewFromInt(100),
		Size:      decimal.NewFromInt(1),
		ClientRef: "ref2",
	})
	assert.ErrorIs(t, err, exchange.ErrInsufficientBalance)
	assert.False(t, exchange.IsRetryable(err))
	assert.Zero(t, lookups.Load())
}

func TestGetOrderNotFound(t *testing.T) {
	mux := http.NewServeMux()
	handleError(mux, "GET /v1/order/orders/{id}", internal.CodeRecordInvalid)
	ex := newTestExchange(t, mux)

	_, err := ex.GetOrder(context.Background(), "123")
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)

	_, err = ex.GetOrder(context.Background(), "not-a-number")
	assert.ErrorIs(t, err, os.ErrInvalid)
}

func TestCancelOrders(t *testing.T) {
	mux := http.NewServeMux()
	handleData(mux, "POST /v1/order/orders/batchcancel", `{"success":["1","2"],"failed":[{"order-id":"3","order-state":6,"err-code":"order-orderstate-error","err-msg":"filled"}]}`)
	ex := newTestExchange(t, mux)

	failed, err := ex.CancelOrders(context.Background(), []exchange.OrderID{"1", "2", "3"})
	require.NoError(t, err)
	assert.Equal(t, []exchange.OrderID{"3"}, failed)
}

func TestCancelOrdersInChunks(t *testing.T) {
	mux := http.NewServeMux()
	var sizes []int
	mux.HandleFunc("POST /v1/order/orders/batchcancel", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			OrderIDs []string `json:"order-ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sizes = append(sizes, len(body.OrderIDs))
		fmt.Fprint(w, `{"status":"ok","data":{"success":[],"failed":[]}}`)
	})
	ex := newTestExchange(t, mux)

	var ids []exchange.OrderID
	for i := 1; i <= 60; i++ {
		ids = append(ids, exchange.OrderID(strconv.Itoa(i)))
	}
	failed, err := ex.CancelOrders(context.Background(), ids)
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Equal(t, []int{50, 10}, sizes)
}

func TestCancelOrdersFallsBackToSingleCancels(t *testing.T) {
	mux := http.NewServeMux()
	handleError(mux, "POST /v1/order/orders/batchcancel", "base-argument-unsupported")
	var singles atomic.Int32
	mux.HandleFunc("POST /v1/order/orders/{id}/submitcancel", func(w http.ResponseWriter, r *http.Request) {
		singles.Add(1)
		if r.PathValue("id") == "2" {
			fmt.Fprint(w, `{"status":"error","err-code":"order-orderstate-error","err-msg":"filled"}`)
			return
		}
		fmt.Fprint(w, `{"status":"ok","data":"1"}`)
	})
	ex := newTestExchange(t, mux)

	failed, err := ex.CancelOrders(context.Background(), []exchange.OrderID{"1", "2", "3"})
	require.NoError(t, err)
	assert.Equal(t, []exchange.OrderID{"2"}, failed)
	assert.EqualValues(t, 3, singles.Load())
}

func TestCancelAllRepeats(t *testing.T) {
	mux := http.NewServeMux()
	handleData(mux, "GET /v1/account/accounts", accountsData)
	var calls atomic.Int32
	mux.HandleFunc("POST /v1/order/orders/batchCancelOpenOrders", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			fmt.Fprint(w, `{"status":"ok","data":{"success-count":100,"failed-count":0,"next-id":5}}`)
			return
		}
		fmt.Fprint(w, `{"status":"ok","data":{"success-count":3,"failed-count":0,"next-id":-1}}`)
	})
	ex := newTestExchange(t, mux)

	n, err := ex.CancelAll(context.Background(), "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, 103, n)
	assert.EqualValues(t, 2, calls.Load())
}

func TestGetBalances(t *testing.T) {
	mux := http.NewServeMux()
	handleData(mux, "GET /v1/account/accounts", accountsData)
	handleData(mux, "GET /v1/account/accounts/42/balance", `{"id":42,"type":"spot","state":"working","list":[
{"currency":"usdt","type":"trade","balance":"150.5"},
{"currency":"usdt","type":"frozen","balance":"20"},
{"currency":"btc","type":"trade","balance":"0"},
{"currency":"ETH","type":"trade","balance":"1.25"}]}`)
	ex := newTestExchange(t, mux)

	balances, err := ex.GetBalances(context.Background())
	require.NoError(t, err)
	assert.Len(t, balances, 2)
	assert.True(t, balances.Get("usdt").Equal(decimal.RequireFromString("150.5")))
	assert.True(t, balances.Get("eth").Equal(decimal.RequireFromString("1.25")))
}
