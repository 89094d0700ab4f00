// Copyright (c) 2025 BVK Chaitanya

package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var (
	testingKey    string
	testingSecret string
)

func checkCredentials() bool {
	type Credentials struct {
		Key    string
		Secret string
	}
	if len(testingKey) != 0 && len(testingSecret) != 0 {
		return true
	}
	data, err := os.ReadFile("htx-creds.json")
	if err != nil {
		return false
	}
	s := new(Credentials)
	if err := json.Unmarshal(data, s); err != nil {
		return false
	}
	testingKey = s.Key
	testingSecret = s.Secret
	return len(testingKey) != 0 && len(testingSecret) != 0
}

func TestSign(t *testing.T) {
	values := make(url.Values)
	values.Set("order-id", "1234567890")

	now := time.Date(2017, 5, 11, 15, 19, 30, 0, time.UTC)
	signed := Sign("get", "API.huobi.pro", "/v1/order/orders", values, "e2xxxxxx-99xxxxxx-84xxxxxx-7xxxx", "b0xxxxxx-c6xxxxxx-94xxxxxx-dxxxx", now)

	if want, got := "Nmd8AU8uAe0mkFpxNbiava0aeZzBEtYjCdie1ZYZjoM=", signed.Get("Signature"); got != want {
		t.Fatalf("signature: want %q, got %q", want, got)
	}
	if got := signed.Get("Timestamp"); got != "2017-05-11T15:19:30" {
		t.Fatalf("timestamp: got %q", got)
	}
	if values.Has("Signature") || values.Has("AccessKeyId") {
		t.Fatalf("input values must not be modified")
	}
}

type testServer struct {
	t *testing.T

	server *httptest.Server

	mu       sync.Mutex
	requests []*http.Request
	bodies   []string

	handlers map[string]func(w http.ResponseWriter, r *http.Request, body string)
}

func newTestServer(t *testing.T) *testServer {
	s := &testServer{
		t:        t,
		handlers: make(map[string]func(http.ResponseWriter, *http.Request, string)),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.server.Close)
	return s
}

func (s *testServer) serve(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, r)
	s.bodies = append(s.bodies, string(data))
	s.mu.Unlock()

	h, ok := s.handlers[r.Method+" "+r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r, string(data))
}

func (s *testServer) handleData(method, path string, data string) {
	s.handlers[method+" "+path] = func(w http.ResponseWriter, r *http.Request, _ string) {
		fmt.Fprintf(w, `{"status":"ok","data":%s}`, data)
	}
}

func (s *testServer) client(key, secret string) *Client {
	u, _ := url.Parse(s.server.URL)
	c, err := New(key, secret, &Options{RestHost: u.Host, RestScheme: "http", RequestsPerSec: 1000})
	if err != nil {
		s.t.Fatal(err)
	}
	s.t.Cleanup(func() { c.Close() })
	return c
}

func TestGetMergedTick(t *testing.T) {
	s := newTestServer(t)
	s.handlers["GET /market/detail/merged"] = func(w http.ResponseWriter, r *http.Request, _ string) {
		if got := r.URL.Query().Get("symbol"); got != "btcusdt" {
			t.Errorf("symbol: got %q", got)
		}
		fmt.Fprint(w, `{"status":"ok","ch":"market.btcusdt.detail.merged","ts":1700000000000,"tick":{"id":1,"open":"100.5","close":"101","low":"99","high":"102","amount":"12.5","vol":"1260","count":3,"bid":["100.9","1"],"ask":["101.1","2"]}}`)
	}
	c := s.client("", "")

	tick, err := c.GetMergedTick(context.Background(), "btcusdt")
	if err != nil {
		t.Fatal(err)
	}
	if !tick.Close.Equal(decimal.NewFromInt(101)) || !tick.Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected tick %#v", tick)
	}
	if len(tick.Bid) != 2 || !tick.Bid[0].Equal(decimal.RequireFromString("100.9")) {
		t.Fatalf("unexpected bid %v", tick.Bid)
	}
	if s.requests[0].URL.Query().Has("Signature") {
		t.Fatalf("public requests must not be signed")
	}
}

func TestPrivateRequestsAreSigned(t *testing.T) {
	s := newTestServer(t)
	s.handleData("GET", "/v1/account/accounts", `[{"id":7,"type":"margin","state":"working"},{"id":42,"type":"spot","state":"working"}]`)
	c := s.client("key", "secret")

	ctx := context.Background()
	id, err := c.SpotAccountID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id != 42 {
		t.Fatalf("want spot account 42, got %d", id)
	}
	// Account id is cached.
	if _, err := c.SpotAccountID(ctx); err != nil {
		t.Fatal(err)
	}
	if len(s.requests) != 1 {
		t.Fatalf("want 1 request, got %d", len(s.requests))
	}
	q := s.requests[0].URL.Query()
	if q.Get("AccessKeyId") != "key" || q.Get("Signature") == "" || q.Get("SignatureVersion") != "2" {
		t.Fatalf("request is not signed: %v", q)
	}
}

func TestPrivateRequestsNeedCredentials(t *testing.T) {
	s := newTestServer(t)
	c := s.client("", "")
	if _, err := c.GetAccounts(context.Background()); !errors.Is(err, os.ErrPermission) {
		t.Fatalf("want os.ErrPermission, got %v", err)
	}
	if len(s.requests) != 0 {
		t.Fatalf("no request is expected")
	}
}

func TestPlaceOrder(t *testing.T) {
	s := newTestServer(t)
	s.handlers["POST /v1/order/orders/place"] = func(w http.ResponseWriter, r *http.Request, body string) {
		req := new(PlaceOrderRequest)
		if err := json.Unmarshal([]byte(body), req); err != nil {
			t.Errorf("could not decode request: %v", err)
		}
		if req.Type != "buy-limit" || req.ClientOrderID != "ref1" || req.Price != "100" {
			t.Errorf("unexpected request %s", body)
		}
		fmt.Fprint(w, `{"status":"ok","data":"59378"}`)
	}
	c := s.client("key", "secret")

	id, err := c.PlaceOrder(context.Background(), &PlaceOrderRequest{
		AccountID:     "42",
		Symbol:        "btcusdt",
		Type:          "buy-limit",
		Amount:        "0.1",
		Price:         "100",
		Source:        "spot-api",
		ClientOrderID: "ref1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != 59378 {
		t.Fatalf("want order id 59378, got %d", id)
	}
	if ct := s.requests[0].Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type: got %q", ct)
	}
}

func TestAPIErrors(t *testing.T) {
	s := newTestServer(t)
	s.handlers["GET /v1/order/orders/12"] = func(w http.ResponseWriter, r *http.Request, _ string) {
		fmt.Fprint(w, `{"status":"error","err-code":"base-record-invalid","err-msg":"record invalid","data":null}`)
	}
	s.handlers["GET /v1/order/orders/13"] = func(w http.ResponseWriter, r *http.Request, _ string) {
		w.WriteHeader(http.StatusTooManyRequests)
	}
	c := s.client("key", "secret")
	ctx := context.Background()

	_, err := c.GetOrder(ctx, 12)
	var aerr *APIError
	if !errors.As(err, &aerr) || aerr.Code != CodeRecordInvalid {
		t.Fatalf("want record invalid api error, got %v", err)
	}
	if !IsNotFound(err) {
		t.Fatalf("record invalid error must be a not-found error")
	}

	_, err = c.GetOrder(ctx, 13)
	if !errors.As(err, &aerr) || aerr.HTTPStatus != http.StatusTooManyRequests || aerr.Code != CodeTooManyRequests {
		t.Fatalf("want too many requests error, got %v", err)
	}
	if IsNotFound(err) {
		t.Fatalf("rate limit error must not be a not-found error")
	}
}

func TestGetOrder(t *testing.T) {
	s := newTestServer(t)
	s.handleData("GET", "/v1/order/orders/getClientOrder", `{"id":99,"client-order-id":"ref9","symbol":"ethusdt","type":"sell-limit","amount":"2","price":"2000","state":"partial-filled","field-amount":"0.5","field-cash-amount":"1000","field-fees":"2","created-at":1700000000000}`)
	c := s.client("key", "secret")

	order, err := c.GetClientOrder(context.Background(), "ref9")
	if err != nil {
		t.Fatal(err)
	}
	if order.ID != 99 || order.State != "partial-filled" || !order.FilledAmount.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("unexpected order %#v", order)
	}
	if got := s.requests[0].URL.Query().Get("clientOrderId"); got != "ref9" {
		t.Fatalf("clientOrderId: got %q", got)
	}
}

func TestCancelOpenOrders(t *testing.T) {
	s := newTestServer(t)
	s.handleData("POST", "/v1/order/orders/batchCancelOpenOrders", `{"success-count":2,"failed-count":0,"next-id":-1}`)
	c := s.client("key", "secret")

	result, err := c.CancelOpenOrders(context.Background(), 42, "btcusdt")
	if err != nil {
		t.Fatal(err)
	}
	if result.SuccessCount != 2 {
		t.Fatalf("want 2 cancels, got %d", result.SuccessCount)
	}
	if body := s.bodies[0]; !strings.Contains(body, `"account-id":"42"`) || !strings.Contains(body, `"symbol":"btcusdt"`) {
		t.Fatalf("unexpected request body %s", body)
	}
}

func TestSymbolFromChannel(t *testing.T) {
	if s, ok := symbolFromChannel(tickerChannel("btcusdt")); !ok || s != "btcusdt" {
		t.Fatalf("got %q %v", s, ok)
	}
	if _, ok := symbolFromChannel("market.btcusdt.kline.1min"); ok {
		t.Fatalf("kline channel must not match")
	}
}

func TestClient(t *testing.T) {
	if !checkCredentials() {
		t.Skip("no credentials")
		return
	}

	ctx := context.Background()
	c, err := New(testingKey, testingSecret, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	id, err := c.SpotAccountID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	balance, err := c.GetBalance(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	for _, item := range balance.List {
		if !item.Balance.IsZero() {
			t.Logf("%s %s %s", item.Currency, item.Type, item.Balance)
		}
	}
}
