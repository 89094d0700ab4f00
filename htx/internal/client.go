// Copyright (c) 2025 BVK Chaitanya

// Package internal implements the HTX (formerly Huobi) spot REST and market
// data websocket APIs.
package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bvk/gridbot/syncmap"
	"github.com/visvasity/topic"
	"golang.org/x/time/rate"
)

type Client struct {
	lifeCtx    context.Context
	lifeCancel context.CancelCauseFunc

	wg sync.WaitGroup

	opts Options

	client http.Client

	key, secret string

	limiter *rate.Limiter

	accountMu sync.Mutex
	accountID int64

	wsOnce      sync.Once
	subscribeCh chan string
	tickerMap   syncmap.Map[string, *topic.Topic[*TickerUpdate]]

	now func() time.Time
}

// New returns a new client. Public endpoints work with empty key and secret.
func New(key, secret string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}

	lifeCtx, lifeCancel := context.WithCancelCause(context.Background())
	c := &Client{
		opts:       *opts,
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
		key:        key,
		secret:     secret,
		client: http.Client{
			Timeout: opts.HTTPClientTimeout,
		},
		limiter:     rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		subscribeCh: make(chan string, 16),
		now:         time.Now,
	}
	return c, nil
}

// Close releases resources and destroys the client instance.
func (c *Client) Close() error {
	c.lifeCancel(os.ErrClosed)
	c.wg.Wait()
	for _, tp := range c.tickerMap.Range {
		tp.Close()
	}
	return nil
}

func (c *Client) restURL(path string, values url.Values) *url.URL {
	return &url.URL{
		Scheme:   c.opts.RestScheme,
		Host:     c.opts.RestHost,
		Path:     path,
		RawQuery: values.Encode(),
	}
}

// do performs a REST call and decodes the response envelope. Private calls
// are signed. Response data (or tick) is decoded into the result, if
// non-nil.
func (c *Client) do(ctx context.Context, method, path string, values url.Values, body any, private bool, result any) error {
	if private {
		if c.key == "" || c.secret == "" {
			return fmt.Errorf("htx credentials are required for %s: %w", path, os.ErrPermission)
		}
		values = Sign(method, c.opts.RestHost, path, values, c.key, c.secret, c.now())
	}
	addrURL := c.restURL(path, values)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not json-encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, addrURL.String(), reader)
	if err != nil {
		slog.Error("could not create http request object with context", "method", method, "path", path, "err", err)
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("could not perform http request", "method", method, "path", path, "err", err)
		}
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Warn("http request returned unsuccessful status code", "method", method, "path", path, "status-code", resp.StatusCode, "response", string(data))
		aerr := &APIError{HTTPStatus: resp.StatusCode, Code: http.StatusText(resp.StatusCode), Message: string(data)}
		if resp.StatusCode == http.StatusTooManyRequests {
			aerr.Code = CodeTooManyRequests
		}
		return aerr
	}

	var envelope Response
	if err := json.Unmarshal(data, &envelope); err != nil {
		slog.Error("could not decode response envelope", "path", path, "response", string(data), "err", err)
		return err
	}
	if envelope.Status != "ok" {
		return &APIError{HTTPStatus: resp.StatusCode, Code: envelope.ErrCode, Message: envelope.ErrMsg}
	}
	if result == nil {
		return nil
	}
	payload := envelope.Data
	if len(payload) == 0 {
		payload = envelope.Tick
	}
	if err := json.Unmarshal(payload, result); err != nil {
		slog.Error("could not decode response data", "path", path, "data", string(payload), "err", err)
		return err
	}
	return nil
}

// GetMergedTick returns the latest 24h aggregated market data of a symbol.
func (c *Client) GetMergedTick(ctx context.Context, symbol string) (*MergedTick, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)
	tick := new(MergedTick)
	if err := c.do(ctx, http.MethodGet, "/market/detail/merged", values, nil, false, tick); err != nil {
		return nil, err
	}
	return tick, nil
}

// GetKlines returns the most recent candles of a symbol, newest first.
func (c *Client) GetKlines(ctx context.Context, symbol, period string, size int) ([]*Kline, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)
	values.Set("period", period)
	values.Set("size", strconv.Itoa(size))
	var klines []*Kline
	if err := c.do(ctx, http.MethodGet, "/market/history/kline", values, nil, false, &klines); err != nil {
		return nil, err
	}
	return klines, nil
}

func (c *Client) GetAccounts(ctx context.Context) ([]*Account, error) {
	var accounts []*Account
	if err := c.do(ctx, http.MethodGet, "/v1/account/accounts", nil, nil, true, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// SpotAccountID returns the id of the working spot account. The id is cached
// after the first successful lookup.
func (c *Client) SpotAccountID(ctx context.Context) (int64, error) {
	c.accountMu.Lock()
	defer c.accountMu.Unlock()

	if c.accountID != 0 {
		return c.accountID, nil
	}
	accounts, err := c.GetAccounts(ctx)
	if err != nil {
		return 0, err
	}
	for _, a := range accounts {
		if a.Type == "spot" && a.State == "working" {
			c.accountID = a.ID
			return a.ID, nil
		}
	}
	return 0, fmt.Errorf("could not find a working spot account: %w", os.ErrNotExist)
}

func (c *Client) GetBalance(ctx context.Context, accountID int64) (*AccountBalance, error) {
	path := fmt.Sprintf("/v1/account/accounts/%d/balance", accountID)
	balance := new(AccountBalance)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, true, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// PlaceOrder creates a new order and returns the order id.
func (c *Client) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (int64, error) {
	var id string
	if err := c.do(ctx, http.MethodPost, "/v1/order/orders/place", nil, req, true, &id); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not place order", "symbol", req.Symbol, "type", req.Type, "price", req.Price, "amount", req.Amount, "client-order-id", req.ClientOrderID, "err", err)
		}
		return 0, err
	}
	return strconv.ParseInt(id, 10, 64)
}

func (c *Client) CancelOrder(ctx context.Context, orderID int64) error {
	path := fmt.Sprintf("/v1/order/orders/%d/submitcancel", orderID)
	return c.do(ctx, http.MethodPost, path, nil, struct{}{}, true, nil)
}

func (c *Client) BatchCancel(ctx context.Context, orderIDs []string) (*BatchCancelResult, error) {
	body := map[string]any{"order-ids": orderIDs}
	result := new(BatchCancelResult)
	if err := c.do(ctx, http.MethodPost, "/v1/order/orders/batchcancel", nil, body, true, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) CancelOpenOrders(ctx context.Context, accountID int64, symbol string) (*CancelOpenOrdersResult, error) {
	body := map[string]any{
		"account-id": strconv.FormatInt(accountID, 10),
		"symbol":     symbol,
	}
	result := new(CancelOpenOrdersResult)
	if err := c.do(ctx, http.MethodPost, "/v1/order/orders/batchCancelOpenOrders", nil, body, true, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	path := fmt.Sprintf("/v1/order/orders/%d", orderID)
	order := new(Order)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, true, order); err != nil {
		return nil, err
	}
	return order, nil
}

// OpenOrders returns the open orders of a symbol in the account.
func (c *Client) OpenOrders(ctx context.Context, accountID int64, symbol string) ([]*Order, error) {
	values := make(url.Values)
	values.Set("account-id", strconv.FormatInt(accountID, 10))
	values.Set("symbol", symbol)
	values.Set("size", "500")
	var orders []*Order
	if err := c.do(ctx, http.MethodGet, "/v1/order/openOrders", values, nil, true, &orders); err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.FilledAmount = o.OpenFilledAmount
		o.FilledCashValue = o.OpenFilledCashValue
		o.FilledFees = o.OpenFilledFees
	}
	return orders, nil
}

// HistoryOrders returns the orders of a symbol finished in the last 48
// hours, newest first.
func (c *Client) HistoryOrders(ctx context.Context, symbol string, size int) ([]*Order, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)
	values.Set("size", strconv.Itoa(size))
	var orders []*Order
	if err := c.do(ctx, http.MethodGet, "/v1/order/history", values, nil, true, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetClientOrder finds an order by its client order id.
func (c *Client) GetClientOrder(ctx context.Context, clientOrderID string) (*Order, error) {
	values := make(url.Values)
	values.Set("clientOrderId", clientOrderID)
	order := new(Order)
	if err := c.do(ctx, http.MethodGet, "/v1/order/orders/getClientOrder", values, nil, true, order); err != nil {
		return nil, err
	}
	return order, nil
}

// IsNotFound returns true if the error indicates a missing order.
func IsNotFound(err error) bool {
	var aerr *APIError
	if !errors.As(err, &aerr) {
		return false
	}
	return aerr.Code == CodeRecordInvalid || aerr.Code == CodeOrderNotFound || strings.Contains(aerr.Message, "not exist")
}
