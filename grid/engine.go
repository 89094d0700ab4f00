// Copyright (c) 2025 BVK Chaitanya

package grid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bvk/gridbot/ctxutil"
	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/gridcalc"
	"github.com/bvk/gridbot/notify"
	"github.com/bvk/gridbot/records"
	"github.com/bvkgo/kv"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine executes grid transitions against the exchange gateway and the
// database. All operations on a grid are serialized through the grid's
// ownership token.
type Engine struct {
	opts Options

	db   kv.Database
	gw   exchange.Gateway
	sink notify.Sink

	registry *Registry

	warnMu sync.Mutex
	warned map[string]time.Time

	now func() time.Time
}

type StartRequest struct {
	User   string
	Symbol string

	// Lower and Upper bounds of the grid. When both are zero, the range is
	// derived from recent candles.
	Lower decimal.Decimal
	Upper decimal.Decimal

	NumLevels int
	Spacing   gridcalc.Spacing

	// Size is the per-level order size. When zero, it is derived from the
	// Budget.
	Size   decimal.Decimal
	Budget decimal.Decimal
}

func (v *StartRequest) Check() error {
	if v.User == "" {
		return fmt.Errorf("user cannot be empty: %w", os.ErrInvalid)
	}
	if _, _, err := exchange.SplitSymbol(v.Symbol); err != nil {
		return fmt.Errorf("%w: %w", err, os.ErrInvalid)
	}
	if v.NumLevels < 2 {
		return fmt.Errorf("number of levels must be at least 2: %w", os.ErrInvalid)
	}
	if v.Lower.IsZero() != v.Upper.IsZero() {
		return fmt.Errorf("lower and upper bounds must be given together: %w", os.ErrInvalid)
	}
	if v.Size.IsNegative() || v.Budget.IsNegative() {
		return fmt.Errorf("size and budget cannot be negative: %w", os.ErrInvalid)
	}
	if v.Size.IsZero() && v.Budget.IsZero() {
		return fmt.Errorf("one of size or budget is required: %w", os.ErrInvalid)
	}
	return nil
}

// StopReport describes the outcome of a Stop operation.
type StopReport struct {
	Canceled int
	Failed   []exchange.OrderID

	State *records.GridState
}

func NewEngine(db kv.Database, gw exchange.Gateway, sink notify.Sink, options *Options) (*Engine, error) {
	var opts Options
	if options != nil {
		opts = *options
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = notify.LogSink{}
	}
	e := &Engine{
		opts:     opts,
		db:       db,
		gw:       gw,
		sink:     sink,
		registry: NewRegistry(),
		warned:   make(map[string]time.Time),
		now:      time.Now,
	}
	return e, nil
}

func (e *Engine) call(ctx context.Context, f func(context.Context) error) error {
	return ctxutil.RetryBackoff(ctx, e.opts.GatewayBackoff, exchange.IsRetryable, f)
}

// Restore rebuilds the token registry from the database and activates grids
// that were left in Initializing state. Returns the number of live grids.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	grids, err := ListDB(ctx, e.db, "")
	if err := e.reportBadRecords(ctx, err); err != nil {
		return 0, fmt.Errorf("could not list grids: %w", err)
	}

	nlive := 0
	for _, st := range grids {
		if !IsLive(st) {
			continue
		}
		nlive++
		id := ID(st.User, st.Symbol)
		e.registry.Add(id)

		if Status(st.Status) != Initializing {
			continue
		}
		if err := e.withToken(ctx, id, func() error {
			next, intents, err := Activate(st, e.now())
			if err != nil {
				return err
			}
			_, err = e.execute(ctx, next, intents)
			return err
		}); err != nil {
			slog.Error("could not activate initializing grid (will retry on reconcile)", "grid", id, "err", err)
		}
	}
	return nlive, nil
}

func (e *Engine) withToken(ctx context.Context, id string, f func() error) error {
	release, err := e.registry.Acquire(ctx, id)
	if err != nil {
		return fmt.Errorf("could not acquire grid %s: %w", id, err)
	}
	defer release()
	return f()
}

// Start creates a new grid and places its initial orders. Returns os.ErrExist
// if the user already has a live grid for the symbol.
func (e *Engine) Start(ctx context.Context, req *StartRequest) (result *records.GridState, status error) {
	if err := req.Check(); err != nil {
		return nil, err
	}
	symbol := exchange.NormalizeSymbol(req.Symbol)
	id := ID(req.User, symbol)

	status = e.withToken(ctx, id, func() error {
		old, err := LoadDB(ctx, e.db, req.User, symbol)
		if err == nil && IsLive(old) {
			return fmt.Errorf("grid %s is already %s: %w", id, strings.ToLower(old.Status), os.ErrExist)
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("could not load grid %s: %w", id, err)
		}

		var snap *exchange.Snapshot
		if err := e.call(ctx, func(ctx context.Context) (err error) {
			snap, err = e.gw.GetSnapshot(ctx, symbol)
			return err
		}); err != nil {
			return fmt.Errorf("could not get market price for %s: %w", symbol, err)
		}

		in := &gridcalc.Input{
			Lower:     req.Lower,
			Upper:     req.Upper,
			NumLevels: req.NumLevels,
			Spacing:   req.Spacing,
			Size:      req.Size,
			Budget:    req.Budget,
		}
		autoRange := req.Lower.IsZero() && req.Upper.IsZero()
		if autoRange {
			if err := e.call(ctx, func(ctx context.Context) (err error) {
				in.Candles, err = e.gw.GetCandles(ctx, symbol, e.opts.CandleInterval, e.opts.CandleCount)
				return err
			}); err != nil {
				return fmt.Errorf("could not get candles for %s: %w", symbol, err)
			}
		}

		calc := e.opts.Calc
		g, err := gridcalc.Compute(&calc, in)
		if err != nil {
			return fmt.Errorf("grid %s: %w", id, err)
		}
		if snap.LastPrice.LessThan(g.Lower) || snap.LastPrice.GreaterThan(g.Upper) {
			return fmt.Errorf("grid %s: current price %s is not in [%s, %s]: %w", id, snap.LastPrice, g.Lower, g.Upper, ErrPriceOutOfRange)
		}

		now := e.now()
		st := NewState(req.User, symbol, g, snap.LastPrice, autoRange, uuid.NewString(), now)
		st.CancelOnPause = e.opts.CancelOnPause
		if err := SaveDB(ctx, e.db, st); err != nil {
			return fmt.Errorf("could not save grid %s: %w", id, err)
		}
		slog.Info("created new grid", "grid", id, "lower", g.Lower, "upper", g.Upper, "levels", len(g.Prices), "size", g.Size, "anchor", snap.LastPrice)

		next, intents, err := Activate(st, now)
		if err != nil {
			return err
		}
		result, err = e.execute(ctx, next, intents)
		return err
	})
	return result, status
}

// Reconcile refreshes the status of all open orders of a grid and acts on
// fills and cancellations. Pending placements are retried.
func (e *Engine) Reconcile(ctx context.Context, user, symbol string) error {
	id := ID(user, symbol)
	return e.withToken(ctx, id, func() error {
		st, err := LoadDB(ctx, e.db, user, symbol)
		if err != nil {
			return fmt.Errorf("could not load grid %s: %w", id, err)
		}
		switch Status(st.Status) {
		case Stopped:
			return nil
		case Initializing:
			next, intents, err := Activate(st, e.now())
			if err != nil {
				return err
			}
			_, err = e.execute(ctx, next, intents)
			return err
		}

		orders := e.fetchOrders(ctx, st)
		next, intents := Reconcile(st, orders, e.opts.MaxRetries, e.opts.MaxFills, e.now())
		if len(intents) == 0 {
			return nil
		}
		_, err = e.execute(ctx, next, intents)
		return err
	})
}

// fetchOrders returns the exchange status of every open order in the grid.
// Orders that could not be fetched are left out and retried on the next pass.
func (e *Engine) fetchOrders(ctx context.Context, st *records.GridState) map[int]*exchange.Order {
	orders := make(map[int]*exchange.Order)
	for _, lvl := range st.Levels {
		b := lvl.Binding
		if b == nil || b.Status != string(exchange.OPEN) {
			continue
		}
		var order *exchange.Order
		if err := e.call(ctx, func(ctx context.Context) (err error) {
			order, err = e.gw.GetOrder(ctx, exchange.OrderID(b.OrderID))
			return err
		}); err != nil {
			slog.Warn("could not get order status (will retry)", "grid", ID(st.User, st.Symbol), "level", lvl.Index, "order-id", b.OrderID, "err", err)
			continue
		}
		orders[lvl.Index] = order
	}
	return orders
}

// Pause suspends replenishment for a grid.
func (e *Engine) Pause(ctx context.Context, user, symbol string) (result *records.GridState, status error) {
	id := ID(user, symbol)
	status = e.withToken(ctx, id, func() error {
		st, err := LoadDB(ctx, e.db, user, symbol)
		if err != nil {
			return fmt.Errorf("could not load grid %s: %w", id, err)
		}
		next, intents, err := Pause(st, e.opts.CancelOnPause, e.now())
		if err != nil {
			return err
		}
		result, err = e.execute(ctx, next, intents)
		return err
	})
	return result, status
}

// Resume reactivates a paused grid.
func (e *Engine) Resume(ctx context.Context, user, symbol string) (result *records.GridState, status error) {
	id := ID(user, symbol)
	status = e.withToken(ctx, id, func() error {
		st, err := LoadDB(ctx, e.db, user, symbol)
		if err != nil {
			return fmt.Errorf("could not load grid %s: %w", id, err)
		}
		next, intents, err := Resume(st, e.now())
		if err != nil {
			return err
		}
		result, err = e.execute(ctx, next, intents)
		return err
	})
	return result, status
}

// Stop cancels all open orders of a grid and marks it stopped. The grid is
// stopped even if some orders could not be canceled; they are reported in
// the result. Stopping a stopped grid is a no-op.
func (e *Engine) Stop(ctx context.Context, user, symbol string) (result *StopReport, status error) {
	id := ID(user, symbol)
	status = e.withToken(ctx, id, func() error {
		st, err := LoadDB(ctx, e.db, user, symbol)
		if err != nil {
			return fmt.Errorf("could not load grid %s: %w", id, err)
		}
		if !IsLive(st) {
			result = &StopReport{State: st}
			return nil
		}

		// Record fills that happened since the last pass, without placing
		// any new orders.
		if next, intents := RecordFills(st, e.fetchOrders(ctx, st), e.opts.MaxFills, e.now()); len(intents) > 0 {
			if st, err = e.execute(ctx, next, intents); err != nil {
				return err
			}
		}

		var ids []exchange.OrderID
		for _, in := range Stop(st) {
			ids = append(ids, in.OrderID)
		}
		canceled, failed := e.cancelOrders(ctx, ids)

		next, intents := MarkStopped(st, canceled, failed, e.now())
		if st, err = e.execute(ctx, next, intents); err != nil {
			return err
		}
		e.registry.Remove(id)
		slog.Info("stopped grid", "grid", id, "canceled", len(canceled), "failed", len(failed))

		result = &StopReport{Canceled: len(canceled), Failed: failed, State: st}
		return nil
	})
	return result, status
}

// cancelOrders cancels the orders with bounded retries. Orders that are
// found to be already finished are not reported as failures.
func (e *Engine) cancelOrders(ctx context.Context, ids []exchange.OrderID) (canceled, failed []exchange.OrderID) {
	if len(ids) == 0 {
		return nil, nil
	}

	pending := ids
	if bc, ok := e.gw.(exchange.BatchCanceler); ok {
		err := ctxutil.RetryBackoff(ctx, e.opts.CancelBackoff, exchange.IsRetryable, func(ctx context.Context) error {
			remain, err := bc.CancelOrders(ctx, pending)
			if err != nil {
				return err
			}
			pending = remain
			if len(pending) > 0 {
				return exchange.Transient("cancel-orders", fmt.Errorf("%d orders are not canceled", len(pending)))
			}
			return nil
		})
		if err != nil {
			slog.Warn("could not cancel all orders", "pending", len(pending), "err", err)
			if !exchange.IsRetryable(err) {
				pending = e.cancelEach(ctx, pending)
			}
		}
	} else {
		pending = e.cancelEach(ctx, ids)
	}

	notCanceled := make(map[exchange.OrderID]bool)
	for _, id := range pending {
		var order *exchange.Order
		err := e.call(ctx, func(ctx context.Context) (err error) {
			order, err = e.gw.GetOrder(ctx, id)
			return err
		})
		if err == nil && order.Status.IsDone() {
			slog.Info("order is already finished", "order-id", id, "status", order.Status)
			continue
		}
		notCanceled[id] = true
		failed = append(failed, id)
	}
	for _, id := range ids {
		if !notCanceled[id] {
			canceled = append(canceled, id)
		}
	}
	return canceled, failed
}

// cancelEach cancels the orders one at a time and returns the ones that
// could not be canceled.
func (e *Engine) cancelEach(ctx context.Context, ids []exchange.OrderID) (remain []exchange.OrderID) {
	for _, id := range ids {
		err := ctxutil.RetryBackoff(ctx, e.opts.CancelBackoff, exchange.IsRetryable, func(ctx context.Context) error {
			return e.gw.CancelOrder(ctx, id)
		})
		if err != nil {
			slog.Warn("could not cancel order", "order-id", id, "err", err)
			remain = append(remain, id)
		}
	}
	return remain
}

// Get returns the current state of a grid.
func (e *Engine) Get(ctx context.Context, user, symbol string) (*records.GridState, error) {
	return LoadDB(ctx, e.db, user, symbol)
}

// List returns all grids of a user, or of all users if user is empty.
func (e *Engine) List(ctx context.Context, user string) ([]*records.GridState, error) {
	return ListDB(ctx, e.db, user)
}

// Delete removes a stopped grid from the database.
func (e *Engine) Delete(ctx context.Context, user, symbol string) error {
	id := ID(user, symbol)
	return e.withToken(ctx, id, func() error {
		return kv.WithReadWriter(ctx, e.db, func(ctx context.Context, rw kv.ReadWriter) error {
			st, err := Load(ctx, rw, user, symbol)
			if err != nil {
				return err
			}
			if IsLive(st) {
				return fmt.Errorf("grid %s is %s, stop it first: %w", id, strings.ToLower(st.Status), os.ErrInvalid)
			}
			return Delete(ctx, rw, user, symbol)
		})
	})
}

// LiveGrids returns the ids of grids that are not stopped, grouped by symbol.
// Grid records that cannot be loaded are reported to their owners and
// skipped.
func (e *Engine) LiveGrids(ctx context.Context) (map[string][]string, error) {
	grids, err := ListDB(ctx, e.db, "")
	if err := e.reportBadRecords(ctx, err); err != nil {
		return nil, err
	}
	m := make(map[string][]string)
	for _, st := range grids {
		if IsLive(st) {
			m[st.Symbol] = append(m[st.Symbol], st.User)
		}
	}
	return m, nil
}

// reportBadRecords logs the grid records that failed to load and warns their
// owners, at most once per RepairWarningInterval for each grid. Returns err
// unchanged when it is not made of record errors.
func (e *Engine) reportBadRecords(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	rerrs := RecordErrors(err)
	if len(rerrs) == 0 {
		return err
	}

	now := e.now()
	for _, rerr := range rerrs {
		id := ID(rerr.User, rerr.Symbol)

		e.warnMu.Lock()
		last, ok := e.warned[id]
		due := !ok || now.Sub(last) >= e.opts.RepairWarningInterval
		if due {
			e.warned[id] = now
		}
		e.warnMu.Unlock()

		if !due {
			continue
		}
		slog.Error("grid record is skipped until it is repaired", "grid", id, "err", rerr.Err)
		notify.Emit(ctx, e.sink, &notify.Event{
			User:    rerr.User,
			Symbol:  rerr.Symbol,
			Kind:    notify.GridWarning,
			Message: fmt.Sprintf("grid %s cannot be loaded and is skipped until it is repaired: %v", id, rerr.Err),
			Time:    now,
		})
	}
	return nil
}

// execute performs the intents in order and returns the final state. A
// failed persist aborts the remaining intents so that no order is placed
// before the state leading to it is saved.
func (e *Engine) execute(ctx context.Context, st *records.GridState, intents []*Intent) (*records.GridState, error) {
	id := ID(st.User, st.Symbol)

	var budget exchange.Balances
	for i := 0; i < len(intents); i++ {
		in := intents[i]
		switch in.Kind {
		case PersistIntent:
			if err := SaveDB(ctx, e.db, st); err != nil {
				return st, fmt.Errorf("could not save grid %s: %w", id, err)
			}

		case NotifyIntent:
			notify.Emit(ctx, e.sink, in.Event)

		case PlaceIntent:
			if budget == nil {
				budget = e.balances(ctx)
			}
			if err := reserve(budget, in.Request); err != nil {
				next, notes := PlaceFailed(st, in.Level, in.Request.ClientRef, err, false, e.opts.MaxRetries, e.now())
				st = next
				intents = append(intents, notes...)
				continue
			}

			var oid exchange.OrderID
			err := e.call(ctx, func(ctx context.Context) (err error) {
				oid, err = e.gw.PlaceOrder(ctx, in.Request)
				return err
			})
			if err != nil {
				retryable := exchange.IsRetryable(err) || ctx.Err() != nil
				slog.Warn("could not place grid order", "grid", id, "level", in.Level, "request", in.String(), "retryable", retryable, "err", err)
				next, notes := PlaceFailed(st, in.Level, in.Request.ClientRef, err, retryable, e.opts.MaxRetries, e.now())
				st = next
				intents = append(intents, notes...)
				continue
			}
			st = Placed(st, in.Level, in.Request.ClientRef, oid, e.now())

		case CancelIntent:
			err := ctxutil.RetryBackoff(ctx, e.opts.CancelBackoff, exchange.IsRetryable, func(ctx context.Context) error {
				return e.gw.CancelOrder(ctx, in.OrderID)
			})
			if err != nil {
				slog.Warn("could not cancel grid order (will be reconciled)", "grid", id, "level", in.Level, "order-id", in.OrderID, "err", err)
				continue
			}
			st = Canceled(st, in.Level, in.OrderID, e.now())
		}
	}

	// Bindings may have changed after the last persist intent.
	if err := SaveDB(ctx, e.db, st); err != nil {
		return st, fmt.Errorf("could not save grid %s: %w", id, err)
	}
	return st, nil
}

// balances returns the available balances for placement checks. Returns an
// empty, non-nil map when balances cannot be fetched, which disables the
// checks for this round.
func (e *Engine) balances(ctx context.Context) exchange.Balances {
	var bs exchange.Balances
	if err := e.call(ctx, func(ctx context.Context) (err error) {
		bs, err = e.gw.GetBalances(ctx)
		return err
	}); err != nil {
		slog.Warn("could not get balances; skipping balance checks", "err", err)
		return exchange.Balances{}
	}
	if bs == nil {
		return exchange.Balances{}
	}
	return bs
}

// reserve deducts the order's cost from the budget. Currencies missing from
// the budget are not checked.
func reserve(budget exchange.Balances, req *exchange.OrderRequest) error {
	base, quote, err := exchange.SplitSymbol(req.Symbol)
	if err != nil {
		return err
	}
	ccy, amount := base, req.Size
	if req.Side == exchange.BUY {
		ccy, amount = quote, req.Price.Mul(req.Size)
	}
	have, ok := budget[ccy]
	if !ok {
		return nil
	}
	if have.LessThan(amount) {
		return fmt.Errorf("level needs %s %s, have %s: %w", amount, strings.ToUpper(ccy), have, exchange.ErrInsufficientBalance)
	}
	budget[ccy] = have.Sub(amount)
	return nil
}
