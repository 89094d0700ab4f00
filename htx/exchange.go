// Copyright (c) 2025 BVK Chaitanya

// Package htx implements the exchange gateway for the HTX spot market.
package htx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/htx/internal"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

type Options = internal.Options

// maxCandles is the largest candle count supported by the kline endpoint.
const maxCandles = 2000

// maxHistoryOrders is the largest page size of the order history endpoint.
const maxHistoryOrders = 1000

// marketValuePrecision is the number of decimal places in the quote amount
// of market buy orders.
const marketValuePrecision = 4

type Exchange struct {
	client *internal.Client
}

var (
	_ exchange.Gateway       = &Exchange{}
	_ exchange.BatchCanceler = &Exchange{}
	_ exchange.Streamer      = &Exchange{}
	_ exchange.OrderLister   = &Exchange{}
)

// New creates a gateway for the HTX spot market. Market data calls work
// without credentials; order and balance calls need an api key.
func New(key, secret string, opts *Options) (*Exchange, error) {
	client, err := internal.New(key, secret, opts)
	if err != nil {
		return nil, err
	}
	return &Exchange{client: client}, nil
}

func (v *Exchange) Close() error {
	if err := v.client.Close(); err != nil {
		slog.Error("could not close htx client (ignored)", "err", err)
	}
	return nil
}

func (v *Exchange) ExchangeName() string {
	return "htx"
}

// convertError maps htx client errors to the gateway error kinds.
func convertError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var aerr *internal.APIError
	if errors.As(err, &aerr) {
		switch {
		case aerr.HTTPStatus == http.StatusTooManyRequests || aerr.Code == internal.CodeTooManyRequests:
			return fmt.Errorf("%s: %w: %v", op, exchange.ErrRateLimited, err)
		case aerr.HTTPStatus >= 500:
			return exchange.Transient(op, err)
		case aerr.Code == internal.CodeInsufficientBalance || aerr.Code == internal.CodeBalanceError:
			return fmt.Errorf("%s: %w: %v", op, exchange.ErrInsufficientBalance, err)
		case internal.IsNotFound(err):
			return fmt.Errorf("%s: %w: %v", op, exchange.ErrOrderNotFound, err)
		case strings.HasPrefix(aerr.Code, "order-"):
			return fmt.Errorf("%s: %w: %v", op, exchange.ErrOrderRejected, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return exchange.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (v *Exchange) GetCandles(ctx context.Context, symbol string, interval exchange.Interval, count int) ([]*exchange.Candle, error) {
	var duration time.Duration
	switch interval {
	case exchange.Interval1Min:
		duration = time.Minute
	case exchange.Interval1Hour:
		duration = time.Hour
	case exchange.Interval4Hour:
		duration = 4 * time.Hour
	case exchange.Interval1Day:
		duration = 24 * time.Hour
	default:
		return nil, fmt.Errorf("candle interval %q is not supported: %w", interval, os.ErrInvalid)
	}
	if count <= 0 || count > maxCandles {
		count = maxCandles
	}

	klines, err := v.client.GetKlines(ctx, exchange.NormalizeSymbol(symbol), string(interval), count)
	if err != nil {
		return nil, convertError("get-candles", err)
	}

	candles := make([]*exchange.Candle, 0, len(klines))
	for _, k := range klines {
		candles = append(candles, &exchange.Candle{
			StartTime: time.Unix(k.ID, 0),
			Duration:  duration,
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Amount,
		})
	}
	// Klines are returned newest first.
	slices.Reverse(candles)
	return candles, nil
}

func (v *Exchange) GetSnapshot(ctx context.Context, symbol string) (*exchange.Snapshot, error) {
	symbol = exchange.NormalizeSymbol(symbol)
	tick, err := v.client.GetMergedTick(ctx, symbol)
	if err != nil {
		return nil, convertError("get-snapshot", err)
	}
	snap := &exchange.Snapshot{
		Symbol:     symbol,
		LastPrice:  tick.Close,
		DayOpen:    tick.Open,
		DayHigh:    tick.High,
		DayLow:     tick.Low,
		Volume24h:  tick.Amount,
		ServerTime: time.Now(),
	}
	if len(tick.Bid) > 0 {
		snap.Bid = tick.Bid[0]
	}
	if len(tick.Ask) > 0 {
		snap.Ask = tick.Ask[0]
	}
	return snap, nil
}

func orderType(side exchange.Side, typ string) (string, error) {
	if typ == "" {
		typ = "limit"
	}
	if typ != "limit" && typ != "market" {
		return "", fmt.Errorf("order type %q is not supported: %w", typ, os.ErrInvalid)
	}
	switch side {
	case exchange.BUY:
		return "buy-" + typ, nil
	case exchange.SELL:
		return "sell-" + typ, nil
	}
	return "", fmt.Errorf("order side %q is invalid: %w", side, os.ErrInvalid)
}

// PlaceOrder creates a limit order. When the placement outcome is unknown,
// the order is looked up by its client reference so that a retry never
// creates a duplicate order.
func (v *Exchange) PlaceOrder(ctx context.Context, req *exchange.OrderRequest) (exchange.OrderID, error) {
	typ, err := orderType(req.Side, req.Type)
	if err != nil {
		return "", err
	}
	accountID, err := v.client.SpotAccountID(ctx)
	if err != nil {
		return "", convertError("place-order", err)
	}

	preq := &internal.PlaceOrderRequest{
		AccountID:     strconv.FormatInt(accountID, 10),
		Symbol:        exchange.NormalizeSymbol(req.Symbol),
		Type:          typ,
		Amount:        req.Size.String(),
		Source:        "spot-api",
		ClientOrderID: req.ClientRef,
	}
	if strings.HasSuffix(typ, "-limit") {
		preq.Price = req.Price.String()
	}
	if typ == "buy-market" {
		// Market buys are sized in the quote currency.
		snap, err := v.GetSnapshot(ctx, req.Symbol)
		if err != nil {
			return "", err
		}
		if !snap.Ask.IsPositive() {
			return "", fmt.Errorf("no ask price for %s: %w", req.Symbol, exchange.ErrOrderRejected)
		}
		preq.Amount = req.Size.Mul(snap.Ask).RoundUp(marketValuePrecision).String()
	}

	id, err := v.client.PlaceOrder(ctx, preq)
	if err == nil {
		return exchange.OrderID(strconv.FormatInt(id, 10)), nil
	}

	var aerr *internal.APIError
	if req.ClientRef != "" && (!errors.As(err, &aerr) || aerr.Code == internal.CodeDuplicateClientID || aerr.HTTPStatus >= 500) {
		if order, gerr := v.client.GetClientOrder(ctx, req.ClientRef); gerr == nil {
			slog.Info("found existing order with the same client order id", "client-order-id", req.ClientRef, "order-id", order.ID)
			return exchange.OrderID(strconv.FormatInt(order.ID, 10)), nil
		}
	}
	return "", convertError("place-order", err)
}

func parseOrderID(id exchange.OrderID) (int64, error) {
	v, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid htx order id %q: %w", id, os.ErrInvalid)
	}
	return v, nil
}

func (v *Exchange) CancelOrder(ctx context.Context, id exchange.OrderID) error {
	oid, err := parseOrderID(id)
	if err != nil {
		return err
	}
	if err := v.client.CancelOrder(ctx, oid); err != nil {
		return convertError("cancel-order", err)
	}
	return nil
}

// maxBatchCancel is the largest number of order ids accepted by one
// batchcancel request.
const maxBatchCancel = 50

// CancelOrders cancels multiple orders in batches and returns the ids that
// could not be canceled. A batch rejected with a non-retryable error is
// retried one order at a time.
func (v *Exchange) CancelOrders(ctx context.Context, ids []exchange.OrderID) ([]exchange.OrderID, error) {
	for _, id := range ids {
		if _, err := parseOrderID(id); err != nil {
			return nil, err
		}
	}

	var failed []exchange.OrderID
	for chunk := range slices.Chunk(ids, maxBatchCancel) {
		sids := make([]string, 0, len(chunk))
		for _, id := range chunk {
			sids = append(sids, string(id))
		}
		result, err := v.client.BatchCancel(ctx, sids)
		if err != nil {
			err = convertError("cancel-orders", err)
			if exchange.IsRetryable(err) {
				return nil, err
			}
			slog.Warn("batch cancel failed (canceling one at a time)", "count", len(chunk), "err", err)
			for _, id := range chunk {
				if err := v.CancelOrder(ctx, id); err != nil {
					slog.Warn("could not cancel order", "order-id", id, "err", err)
					failed = append(failed, id)
				}
			}
			continue
		}
		for _, f := range result.Failed {
			slog.Warn("could not cancel order in a batch", "order-id", f.OrderID, "code", f.ErrorCode, "message", f.ErrorMessage)
			failed = append(failed, exchange.OrderID(f.OrderID))
		}
	}
	return failed, nil
}

func (v *Exchange) CancelAll(ctx context.Context, symbol string) (int, error) {
	accountID, err := v.client.SpotAccountID(ctx)
	if err != nil {
		return 0, convertError("cancel-all", err)
	}
	total := 0
	// Each call cancels a limited number of orders; repeat until no more
	// orders are left.
	for {
		result, err := v.client.CancelOpenOrders(ctx, accountID, exchange.NormalizeSymbol(symbol))
		if err != nil {
			return total, convertError("cancel-all", err)
		}
		total += result.SuccessCount
		if result.SuccessCount == 0 || result.NextID <= 0 {
			return total, nil
		}
	}
}

func (v *Exchange) GetOrder(ctx context.Context, id exchange.OrderID) (*exchange.Order, error) {
	oid, err := parseOrderID(id)
	if err != nil {
		return nil, err
	}
	order, err := v.client.GetOrder(ctx, oid)
	if err != nil {
		return nil, convertError("get-order", err)
	}
	return toExchangeOrder(order)
}

func (v *Exchange) ListOpenOrders(ctx context.Context, symbol string) ([]*exchange.Order, error) {
	accountID, err := v.client.SpotAccountID(ctx)
	if err != nil {
		return nil, convertError("open-orders", err)
	}
	orders, err := v.client.OpenOrders(ctx, accountID, exchange.NormalizeSymbol(symbol))
	if err != nil {
		return nil, convertError("open-orders", err)
	}
	return toExchangeOrders(orders)
}

func (v *Exchange) RecentOrders(ctx context.Context, symbol string, count int) ([]*exchange.Order, error) {
	if count <= 0 || count > maxHistoryOrders {
		count = maxHistoryOrders
	}
	orders, err := v.client.HistoryOrders(ctx, exchange.NormalizeSymbol(symbol), count)
	if err != nil {
		return nil, convertError("order-history", err)
	}
	return toExchangeOrders(orders)
}

func toExchangeOrders(orders []*internal.Order) ([]*exchange.Order, error) {
	var result []*exchange.Order
	for _, o := range orders {
		order, err := toExchangeOrder(o)
		if err != nil {
			return nil, err
		}
		result = append(result, order)
	}
	return result, nil
}

func toExchangeOrder(v *internal.Order) (*exchange.Order, error) {
	side, _, found := strings.Cut(v.Type, "-")
	if !found {
		return nil, fmt.Errorf("unexpected htx order type %q", v.Type)
	}
	eside, err := exchange.ParseSide(side)
	if err != nil {
		return nil, err
	}

	order := &exchange.Order{
		ServerOrderID: exchange.OrderID(strconv.FormatInt(v.ID, 10)),
		ClientRef:     v.ClientOrderID,
		Symbol:        v.Symbol,
		Side:          eside,
		Price:         v.Price,
		Size:          v.Amount,
		CreateTime:    time.UnixMilli(v.CreatedAt),
		FilledSize:    v.FilledAmount,
		DoneReason:    v.State,
	}
	if v.FilledAmount.IsPositive() {
		order.FilledPrice = v.FilledCashValue.Div(v.FilledAmount)
	}
	// Buy order fees are charged in the base currency.
	order.Fee = v.FilledFees
	if eside == exchange.BUY {
		order.Fee = v.FilledFees.Mul(order.FilledPrice)
	}

	switch v.State {
	case "created", "submitted", "partial-filled":
		order.Status = exchange.OPEN
		order.DoneReason = ""
	case "filled":
		order.Status = exchange.FILLED
		order.DoneReason = ""
	case "canceled", "partial-canceled":
		order.Status = exchange.CANCELLED
	case "rejected":
		order.Status = exchange.REJECTED
	default:
		return nil, fmt.Errorf("unexpected htx order state %q", v.State)
	}

	if order.Status.IsDone() {
		switch {
		case v.FinishedAt > 0:
			order.FinishTime = time.UnixMilli(v.FinishedAt)
		case v.CanceledAt > 0:
			order.FinishTime = time.UnixMilli(v.CanceledAt)
		}
	}
	return order, nil
}

// GetBalances returns the available (trade) balances of the spot account.
func (v *Exchange) GetBalances(ctx context.Context) (exchange.Balances, error) {
	accountID, err := v.client.SpotAccountID(ctx)
	if err != nil {
		return nil, convertError("get-balances", err)
	}
	balance, err := v.client.GetBalance(ctx, accountID)
	if err != nil {
		return nil, convertError("get-balances", err)
	}
	balances := make(exchange.Balances)
	for _, item := range balance.List {
		if item.Type != "trade" || item.Balance.IsZero() {
			continue
		}
		ccy := strings.ToLower(item.Currency)
		balances[ccy] = balances[ccy].Add(item.Balance)
	}
	return balances, nil
}

// Subscribe returns a receiver for ticker snapshots of the symbol. Fills are
// not streamed; they are detected by polling order status.
func (v *Exchange) Subscribe(ctx context.Context, symbol string) (*topic.Receiver[*exchange.Update], error) {
	tp, err := v.client.TickerTopic(exchange.NormalizeSymbol(symbol))
	if err != nil {
		return nil, err
	}
	receiver, err := topic.SubscribeFunc(tp, toUpdate, 1, true)
	if err != nil {
		return nil, err
	}
	context.AfterFunc(ctx, receiver.Close)
	return receiver, nil
}

func toUpdate(t *internal.TickerUpdate) *exchange.Update {
	return &exchange.Update{
		Snapshot: &exchange.Snapshot{
			Symbol:     t.Symbol,
			LastPrice:  lastPrice(t),
			DayOpen:    t.Open,
			DayHigh:    t.High,
			DayLow:     t.Low,
			Volume24h:  t.Amount,
			Bid:        t.Bid,
			Ask:        t.Ask,
			ServerTime: time.UnixMilli(t.Timestamp),
		},
	}
}

// lastPrice returns the best available last price of a ticker update.
func lastPrice(t *internal.TickerUpdate) decimal.Decimal {
	if !t.LastPrice.IsZero() {
		return t.LastPrice
	}
	return t.Close
}
