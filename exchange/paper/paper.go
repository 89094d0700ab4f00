// Copyright (c) 2025 BVK Chaitanya

// Package paper implements an in-memory exchange gateway. Limit orders rest
// on the book until a price update crosses them, so engines can be exercised
// end-to-end without an exchange account.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/syncmap"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

// Operation names accepted by FailNext and Calls.
const (
	OpPlace       = "place"
	OpCancel      = "cancel"
	OpCancelAll   = "cancel-all"
	OpCancelBatch = "cancel-batch"
	OpGetOrder    = "get-order"
	OpSnapshot    = "snapshot"
	OpCandles     = "candles"
	OpBalances    = "balances"
	OpListOrders  = "list-orders"
)

type Options struct {
	// Name is returned by ExchangeName.
	Name string

	// FeeRate is the fraction of the filled value charged as fee, in the quote
	// currency.
	FeeRate decimal.Decimal
}

func (v *Options) setDefaults() {
	if v.Name == "" {
		v.Name = "paper"
	}
}

func (v *Options) Check() error {
	if v.FeeRate.IsNegative() || v.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("fee rate must be in [0, 1): %w", os.ErrInvalid)
	}
	return nil
}

type Exchange struct {
	opts Options

	mu sync.Mutex

	lastID int64

	orders map[exchange.OrderID]*exchange.Order

	// refMap maps client references to server order ids.
	refMap map[string]exchange.OrderID

	// available and held balances per currency.
	available exchange.Balances
	held      exchange.Balances

	snapshots map[string]*exchange.Snapshot
	candles   map[string][]*exchange.Candle

	failures map[string][]error
	calls    map[string]int

	topics syncmap.Map[string, *topic.Topic[*exchange.Update]]
}

var (
	_ exchange.Gateway       = &Exchange{}
	_ exchange.BatchCanceler = &Exchange{}
	_ exchange.Streamer      = &Exchange{}
	_ exchange.OrderLister   = &Exchange{}
)

func New(opts *Options) (*Exchange, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	ex := &Exchange{
		opts:      *opts,
		orders:    make(map[exchange.OrderID]*exchange.Order),
		refMap:    make(map[string]exchange.OrderID),
		available: make(exchange.Balances),
		held:      make(exchange.Balances),
		snapshots: make(map[string]*exchange.Snapshot),
		candles:   make(map[string][]*exchange.Candle),
		failures:  make(map[string][]error),
		calls:     make(map[string]int),
	}
	return ex, nil
}

// Close closes all stream topics.
func (ex *Exchange) Close() error {
	ex.topics.Range(func(symbol string, tp *topic.Topic[*exchange.Update]) bool {
		tp.Close()
		return true
	})
	return nil
}

func (ex *Exchange) ExchangeName() string {
	return ex.opts.Name
}

// FailNext makes the next call of the operation fail with the given error.
// Multiple errors are returned in the order they are queued.
func (ex *Exchange) FailNext(op string, err error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	ex.failures[op] = append(ex.failures[op], err)
}

// Calls returns the number of times an operation was invoked.
func (ex *Exchange) Calls(op string) int {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	return ex.calls[op]
}

// enter must be called with the lock held.
func (ex *Exchange) enter(op string) error {
	ex.calls[op]++
	if errs := ex.failures[op]; len(errs) > 0 {
		err := errs[0]
		ex.failures[op] = errs[1:]
		return err
	}
	return nil
}

// SetBalance sets the available amount of a currency.
func (ex *Exchange) SetBalance(ccy string, amount decimal.Decimal) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	ex.available[strings.ToLower(ccy)] = amount
}

// HeldBalance returns the amount of a currency reserved by open orders.
func (ex *Exchange) HeldBalance(ccy string) decimal.Decimal {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	return ex.held.Get(ccy)
}

func (ex *Exchange) SetCandles(symbol string, candles []*exchange.Candle) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	ex.candles[exchange.NormalizeSymbol(symbol)] = slices.Clone(candles)
}

// SetPrice updates the last price of a symbol and fills all open orders
// crossed by the new price.
func (ex *Exchange) SetPrice(symbol string, price decimal.Decimal) {
	ex.mu.Lock()
	symbol = exchange.NormalizeSymbol(symbol)
	snap := ex.snapshotLocked(symbol)
	snap.LastPrice = price
	snap.Bid = price
	snap.Ask = price
	ex.mu.Unlock()

	ex.SetSnapshot(snap)
}

// SetVolume updates the 24h volume of a symbol.
func (ex *Exchange) SetVolume(symbol string, volume decimal.Decimal) {
	ex.mu.Lock()
	symbol = exchange.NormalizeSymbol(symbol)
	snap := ex.snapshotLocked(symbol)
	snap.Volume24h = volume
	ex.mu.Unlock()

	ex.SetSnapshot(snap)
}

// snapshotLocked returns a copy of the current snapshot for the symbol.
func (ex *Exchange) snapshotLocked(symbol string) *exchange.Snapshot {
	if s, ok := ex.snapshots[symbol]; ok {
		v := *s
		return &v
	}
	return &exchange.Snapshot{Symbol: symbol}
}

// SetSnapshot replaces the market snapshot of a symbol and matches open
// orders against its last price.
func (ex *Exchange) SetSnapshot(snap *exchange.Snapshot) {
	s := *snap
	s.Symbol = exchange.NormalizeSymbol(s.Symbol)
	if s.ServerTime.IsZero() {
		s.ServerTime = time.Now()
	}
	if s.DayOpen.IsZero() {
		s.DayOpen = s.LastPrice
	}
	if s.DayHigh.LessThan(s.LastPrice) {
		s.DayHigh = s.LastPrice
	}
	if s.DayLow.IsZero() || s.DayLow.GreaterThan(s.LastPrice) {
		s.DayLow = s.LastPrice
	}

	ex.mu.Lock()
	ex.snapshots[s.Symbol] = &s
	fills := ex.matchLocked(s.Symbol, s.LastPrice, s.ServerTime)
	ex.mu.Unlock()

	published := s
	ex.publish(s.Symbol, &exchange.Update{Snapshot: &published})
	for _, order := range fills {
		ex.publish(s.Symbol, &exchange.Update{Fill: order})
	}
}

// matchLocked fills open orders crossed by the price in the order they were
// created.
func (ex *Exchange) matchLocked(symbol string, price decimal.Decimal, now time.Time) []*exchange.Order {
	var matched []*exchange.Order
	for _, order := range ex.orders {
		if order.Symbol != symbol || order.Status != exchange.OPEN {
			continue
		}
		if order.Side == exchange.BUY && price.LessThanOrEqual(order.Price) {
			matched = append(matched, order)
		}
		if order.Side == exchange.SELL && price.GreaterThanOrEqual(order.Price) {
			matched = append(matched, order)
		}
	}
	slices.SortFunc(matched, func(a, b *exchange.Order) int {
		return a.CreateTime.Compare(b.CreateTime)
	})

	var fills []*exchange.Order
	for _, order := range matched {
		if err := ex.fillLocked(order, now); err != nil {
			slog.Error("could not settle paper order (ignored)", "order", order, "err", err)
			continue
		}
		v := *order
		fills = append(fills, &v)
	}
	return fills
}

// FillOrder fills an open order at its limit price irrespective of the
// current market price.
func (ex *Exchange) FillOrder(id exchange.OrderID) error {
	ex.mu.Lock()
	order, ok := ex.orders[id]
	if !ok {
		ex.mu.Unlock()
		return fmt.Errorf("order %s: %w", id, exchange.ErrOrderNotFound)
	}
	if order.Status != exchange.OPEN {
		ex.mu.Unlock()
		return fmt.Errorf("order %s is %s: %w", id, order.Status, os.ErrInvalid)
	}
	if err := ex.fillLocked(order, time.Now()); err != nil {
		ex.mu.Unlock()
		return err
	}
	fill := *order
	ex.mu.Unlock()

	ex.publish(fill.Symbol, &exchange.Update{Fill: &fill})
	return nil
}

func (ex *Exchange) fillLocked(order *exchange.Order, now time.Time) error {
	base, quote, err := exchange.SplitSymbol(order.Symbol)
	if err != nil {
		return err
	}

	value := order.Price.Mul(order.Size)
	fee := value.Mul(ex.opts.FeeRate)
	ex.releaseLocked(order)

	switch order.Side {
	case exchange.BUY:
		ex.available[quote] = ex.available.Get(quote).Sub(value).Sub(fee)
		ex.available[base] = ex.available.Get(base).Add(order.Size)
	case exchange.SELL:
		ex.available[base] = ex.available.Get(base).Sub(order.Size)
		ex.available[quote] = ex.available.Get(quote).Add(value).Sub(fee)
	}

	order.Fee = fee
	order.FilledSize = order.Size
	order.FilledPrice = order.Price
	order.Status = exchange.FILLED
	order.FinishTime = now
	return nil
}

// reserveAmount returns the currency and amount held while an order is open.
func (ex *Exchange) reserveAmount(order *exchange.Order) (string, decimal.Decimal, error) {
	base, quote, err := exchange.SplitSymbol(order.Symbol)
	if err != nil {
		return "", decimal.Zero, err
	}
	if order.Side == exchange.BUY {
		value := order.Price.Mul(order.Size)
		return quote, value.Add(value.Mul(ex.opts.FeeRate)), nil
	}
	return base, order.Size, nil
}

func (ex *Exchange) releaseLocked(order *exchange.Order) {
	ccy, amount, err := ex.reserveAmount(order)
	if err != nil {
		return
	}
	ex.held[ccy] = ex.held.Get(ccy).Sub(amount)
	ex.available[ccy] = ex.available.Get(ccy).Add(amount)
}

// CancelExternally cancels an open order as if it was canceled by the user on
// the exchange website.
func (ex *Exchange) CancelExternally(id exchange.OrderID) error {
	return ex.finish(id, exchange.CANCELLED, "canceled externally")
}

// RejectExternally marks an open order as rejected by the exchange.
func (ex *Exchange) RejectExternally(id exchange.OrderID, reason string) error {
	return ex.finish(id, exchange.REJECTED, reason)
}

func (ex *Exchange) finish(id exchange.OrderID, status exchange.OrderStatus, reason string) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	order, ok := ex.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, exchange.ErrOrderNotFound)
	}
	if order.Status != exchange.OPEN {
		return fmt.Errorf("order %s is %s: %w", id, order.Status, os.ErrInvalid)
	}
	ex.releaseLocked(order)
	order.Status = status
	order.DoneReason = reason
	order.FinishTime = time.Now()
	return nil
}

// OpenOrders returns the open orders of a symbol ordered by price.
func (ex *Exchange) OpenOrders(symbol string) []*exchange.Order {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	symbol = exchange.NormalizeSymbol(symbol)
	var orders []*exchange.Order
	for _, order := range ex.orders {
		if order.Symbol == symbol && order.Status == exchange.OPEN {
			v := *order
			orders = append(orders, &v)
		}
	}
	slices.SortFunc(orders, func(a, b *exchange.Order) int {
		return a.Price.Cmp(b.Price)
	})
	return orders
}

func (ex *Exchange) ListOpenOrders(ctx context.Context, symbol string) ([]*exchange.Order, error) {
	ex.mu.Lock()
	err := ex.enter(OpListOrders)
	ex.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return ex.OpenOrders(symbol), nil
}

func (ex *Exchange) RecentOrders(ctx context.Context, symbol string, count int) ([]*exchange.Order, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if err := ex.enter(OpListOrders); err != nil {
		return nil, err
	}
	symbol = exchange.NormalizeSymbol(symbol)
	var orders []*exchange.Order
	for _, order := range ex.orders {
		if order.Symbol == symbol && order.Status.IsDone() {
			v := *order
			orders = append(orders, &v)
		}
	}
	slices.SortFunc(orders, func(a, b *exchange.Order) int {
		if c := b.FinishTime.Compare(a.FinishTime); c != 0 {
			return c
		}
		return strings.Compare(string(b.ServerOrderID), string(a.ServerOrderID))
	})
	if count > 0 && len(orders) > count {
		orders = orders[:count]
	}
	return orders, nil
}

func (ex *Exchange) GetCandles(ctx context.Context, symbol string, interval exchange.Interval, count int) ([]*exchange.Candle, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if err := ex.enter(OpCandles); err != nil {
		return nil, err
	}
	candles := ex.candles[exchange.NormalizeSymbol(symbol)]
	if count > 0 && len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	return slices.Clone(candles), nil
}

func (ex *Exchange) GetSnapshot(ctx context.Context, symbol string) (*exchange.Snapshot, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if err := ex.enter(OpSnapshot); err != nil {
		return nil, err
	}
	s, ok := ex.snapshots[exchange.NormalizeSymbol(symbol)]
	if !ok {
		return nil, fmt.Errorf("no market data for symbol %q: %w", symbol, os.ErrNotExist)
	}
	v := *s
	return &v, nil
}

func (ex *Exchange) PlaceOrder(ctx context.Context, req *exchange.OrderRequest) (exchange.OrderID, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if err := ex.enter(OpPlace); err != nil {
		return "", err
	}

	if req.ClientRef != "" {
		if id, ok := ex.refMap[req.ClientRef]; ok {
			return id, nil
		}
	}

	symbol := exchange.NormalizeSymbol(req.Symbol)
	if !req.Size.IsPositive() {
		return "", fmt.Errorf("order size must be positive: %w", exchange.ErrOrderRejected)
	}

	now := time.Now()
	order := &exchange.Order{
		ClientRef:  req.ClientRef,
		Symbol:     symbol,
		Side:       req.Side,
		Price:      req.Price,
		Size:       req.Size,
		CreateTime: now,
		Status:     exchange.OPEN,
	}

	switch req.Type {
	case "", "limit":
		if !req.Price.IsPositive() {
			return "", fmt.Errorf("limit price must be positive: %w", exchange.ErrOrderRejected)
		}
	case "market":
		snap, ok := ex.snapshots[symbol]
		if !ok {
			return "", fmt.Errorf("no market price for symbol %q: %w", symbol, exchange.ErrOrderRejected)
		}
		order.Price = snap.LastPrice
	default:
		return "", fmt.Errorf("order type %q is not supported: %w", req.Type, exchange.ErrOrderRejected)
	}

	ccy, amount, err := ex.reserveAmount(order)
	if err != nil {
		return "", fmt.Errorf("%w: %w", err, exchange.ErrOrderRejected)
	}
	if ex.available.Get(ccy).LessThan(amount) {
		return "", fmt.Errorf("need %s %s, have %s: %w", amount, ccy, ex.available.Get(ccy), exchange.ErrInsufficientBalance)
	}
	ex.available[ccy] = ex.available.Get(ccy).Sub(amount)
	ex.held[ccy] = ex.held.Get(ccy).Add(amount)

	ex.lastID++
	order.ServerOrderID = exchange.OrderID(fmt.Sprintf("P%d", ex.lastID))
	ex.orders[order.ServerOrderID] = order
	if req.ClientRef != "" {
		ex.refMap[req.ClientRef] = order.ServerOrderID
	}

	if req.Type == "market" {
		if err := ex.fillLocked(order, now); err != nil {
			return "", err
		}
	}
	return order.ServerOrderID, nil
}

func (ex *Exchange) CancelOrder(ctx context.Context, id exchange.OrderID) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if err := ex.enter(OpCancel); err != nil {
		return err
	}
	return ex.cancelLocked(id)
}

func (ex *Exchange) cancelLocked(id exchange.OrderID) error {
	order, ok := ex.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, exchange.ErrOrderNotFound)
	}
	switch order.Status {
	case exchange.CANCELLED:
		return nil
	case exchange.OPEN:
		ex.releaseLocked(order)
		order.Status = exchange.CANCELLED
		order.FinishTime = time.Now()
		return nil
	}
	return fmt.Errorf("order %s is already %s: %w", id, order.Status, os.ErrInvalid)
}

func (ex *Exchange) CancelAll(ctx context.Context, symbol string) (int, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if err := ex.enter(OpCancelAll); err != nil {
		return 0, err
	}
	symbol = exchange.NormalizeSymbol(symbol)
	n := 0
	for id, order := range ex.orders {
		if order.Symbol == symbol && order.Status == exchange.OPEN {
			if err := ex.cancelLocked(id); err == nil {
				n++
			}
		}
	}
	return n, nil
}

func (ex *Exchange) CancelOrders(ctx context.Context, ids []exchange.OrderID) ([]exchange.OrderID, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if err := ex.enter(OpCancelBatch); err != nil {
		return ids, err
	}
	var failed []exchange.OrderID
	for _, id := range ids {
		if err := ex.cancelLocked(id); err != nil {
			failed = append(failed, id)
		}
	}
	return failed, nil
}

func (ex *Exchange) GetOrder(ctx context.Context, id exchange.OrderID) (*exchange.Order, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if err := ex.enter(OpGetOrder); err != nil {
		return nil, err
	}
	order, ok := ex.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, exchange.ErrOrderNotFound)
	}
	v := *order
	return &v, nil
}

func (ex *Exchange) GetBalances(ctx context.Context) (exchange.Balances, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if err := ex.enter(OpBalances); err != nil {
		return nil, err
	}
	bs := make(exchange.Balances)
	for k, v := range ex.available {
		bs[k] = v
	}
	return bs, nil
}

func (ex *Exchange) getTopic(symbol string) *topic.Topic[*exchange.Update] {
	tp, ok := ex.topics.Load(symbol)
	if !ok {
		tp, _ = ex.topics.LoadOrStore(symbol, topic.New[*exchange.Update]())
	}
	return tp
}

func (ex *Exchange) publish(symbol string, update *exchange.Update) {
	if tp, ok := ex.topics.Load(symbol); ok {
		tp.Send(update)
	}
}

// Subscribe returns a receiver for snapshot and fill updates of a symbol. The
// receiver is closed when the context is canceled.
func (ex *Exchange) Subscribe(ctx context.Context, symbol string) (*topic.Receiver[*exchange.Update], error) {
	receiver, err := topic.Subscribe(ex.getTopic(exchange.NormalizeSymbol(symbol)), 0, false)
	if err != nil {
		return nil, err
	}
	context.AfterFunc(ctx, receiver.Close)
	return receiver, nil
}
