// Copyright (c) 2025 BVK Chaitanya

package grid

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/gridcalc"
	"github.com/bvk/gridbot/idgen"
	"github.com/bvk/gridbot/notify"
	"github.com/bvk/gridbot/records"
	"github.com/shopspring/decimal"
)

// Transitions in this file are pure: they never modify their input state and
// never perform I/O. They return the next state and a list of intents that
// the Engine executes in order.

type IntentKind int

const (
	PersistIntent IntentKind = iota + 1
	PlaceIntent
	CancelIntent
	NotifyIntent
)

func (k IntentKind) String() string {
	switch k {
	case PersistIntent:
		return "persist"
	case PlaceIntent:
		return "place"
	case CancelIntent:
		return "cancel"
	case NotifyIntent:
		return "notify"
	}
	return fmt.Sprintf("intent(%d)", int(k))
}

type Intent struct {
	Kind IntentKind

	// Level is the grid level for place and cancel intents.
	Level int

	// Request is the order to place for a place intent.
	Request *exchange.OrderRequest

	// OrderID is the order to cancel for a cancel intent.
	OrderID exchange.OrderID

	// Event is the notification for a notify intent.
	Event *notify.Event
}

func (v *Intent) String() string {
	switch v.Kind {
	case PlaceIntent:
		return fmt.Sprintf("place level %d %s %s@%s ref %s", v.Level, v.Request.Side, v.Request.Size, v.Request.Price, v.Request.ClientRef)
	case CancelIntent:
		return fmt.Sprintf("cancel level %d order %s", v.Level, v.OrderID)
	case NotifyIntent:
		return fmt.Sprintf("notify %s", v.Event)
	}
	return v.Kind.String()
}

func clone(st *records.GridState) *records.GridState {
	v, err := records.Clone(st)
	if err != nil {
		// Grid states are plain json values.
		panic(fmt.Sprintf("could not clone grid state: %v", err))
	}
	return v
}

func event(st *records.GridState, kind notify.Kind, now time.Time, format string, args ...any) *Intent {
	return &Intent{
		Kind: NotifyIntent,
		Event: &notify.Event{
			User:    st.User,
			Symbol:  st.Symbol,
			Kind:    kind,
			Message: fmt.Sprintf("grid %s: ", ID(st.User, st.Symbol)) + fmt.Sprintf(format, args...),
			Time:    now,
		},
	}
}

// LevelSide returns the opening side of a level with respect to the anchor
// price. A level exactly at the anchor sells, unless it is the lowest level.
func LevelSide(index int, price, anchor decimal.Decimal) exchange.Side {
	switch price.Cmp(anchor) {
	case -1:
		return exchange.BUY
	case 1:
		return exchange.SELL
	}
	if index > 0 {
		return exchange.SELL
	}
	return exchange.BUY
}

// NewState returns a grid in Initializing status for the computed levels.
func NewState(user, symbol string, g *gridcalc.Grid, anchor decimal.Decimal, autoRange bool, seed string, now time.Time) *records.GridState {
	st := &records.GridState{
		User:         user,
		Symbol:       exchange.NormalizeSymbol(symbol),
		Lower:        g.Lower,
		Upper:        g.Upper,
		NumLevels:    len(g.Prices),
		Size:         g.Size,
		Spacing:      string(g.Spacing),
		AutoRange:    autoRange,
		Anchor:       anchor,
		Status:       string(Initializing),
		CreateTime:   now,
		UpdateTime:   now,
		ClientIDSeed: seed,
	}
	for i, p := range g.Prices {
		side := LevelSide(i, p, anchor)
		st.Levels = append(st.Levels, &records.GridLevelState{
			Index:       i,
			Price:       p,
			Side:        string(side),
			TargetSide:  string(side),
			TargetPrice: p,
		})
	}
	return st
}

// planPlacements reserves a client reference for every level without an
// order and returns place intents for all pending bindings. Nothing is planned
// unless the grid is Active.
func planPlacements(st *records.GridState, now time.Time) []*Intent {
	if Status(st.Status) != Active {
		return nil
	}
	var intents []*Intent
	reserved := false
	for _, lvl := range st.Levels {
		if lvl.Stuck || !lvl.TargetPrice.IsPositive() {
			continue
		}
		if lvl.Binding == nil {
			ref := idgen.ClientRef(st.ClientIDSeed, st.ClientIDOffset)
			st.ClientIDOffset++
			lvl.Binding = &records.OrderBinding{
				ClientRef:  ref,
				Side:       lvl.TargetSide,
				Price:      lvl.TargetPrice,
				Size:       st.Size,
				Status:     string(exchange.PENDING),
				CreateTime: now,
			}
			reserved = true
		}
		if lvl.Binding.Status != string(exchange.PENDING) {
			continue
		}
		intents = append(intents, &Intent{
			Kind:  PlaceIntent,
			Level: lvl.Index,
			Request: &exchange.OrderRequest{
				Symbol:    st.Symbol,
				Side:      exchange.Side(lvl.Binding.Side),
				Type:      "limit",
				Price:     lvl.Binding.Price,
				Size:      lvl.Binding.Size,
				ClientRef: lvl.Binding.ClientRef,
			},
		})
	}
	if reserved {
		st.UpdateTime = now
	}
	return intents
}

// Activate moves an Initializing grid to Active and plans an order for every
// level.
func Activate(cur *records.GridState, now time.Time) (*records.GridState, []*Intent, error) {
	if s := Status(cur.Status); s != Initializing {
		return nil, nil, fmt.Errorf("grid %s is %s, want %s", ID(cur.User, cur.Symbol), s, Initializing)
	}
	st := clone(cur)
	st.Status = string(Active)
	st.UpdateTime = now

	places := planPlacements(st, now)
	intents := append([]*Intent{{Kind: PersistIntent}}, places...)
	if len(places) > 0 {
		intents = append(intents, &Intent{Kind: PersistIntent})
	}
	return st, intents, nil
}

// Placed records a successful order placement at a level. It is a no-op if
// the level's binding no longer carries the client reference.
func Placed(cur *records.GridState, level int, clientRef string, id exchange.OrderID, now time.Time) *records.GridState {
	st := clone(cur)
	lvl := st.Levels[level]
	if lvl.Binding == nil || lvl.Binding.ClientRef != clientRef {
		return cur
	}
	lvl.Binding.OrderID = string(id)
	lvl.Binding.Status = string(exchange.OPEN)
	lvl.Binding.CreateTime = now
	lvl.LastError = ""
	st.UpdateTime = now
	return st
}

// PlaceFailed records a failed placement at a level. A retryable failure
// keeps the pending binding so that the next attempt reuses the same client
// reference; other failures clear the binding and count against the level's
// retry budget.
func PlaceFailed(cur *records.GridState, level int, clientRef string, cause error, retryable bool, maxRetries int, now time.Time) (*records.GridState, []*Intent) {
	st := clone(cur)
	lvl := st.Levels[level]
	if lvl.Binding == nil || lvl.Binding.ClientRef != clientRef {
		return cur, nil
	}
	lvl.LastError = cause.Error()
	st.UpdateTime = now
	if retryable {
		return st, nil
	}
	lvl.Binding = nil
	return st, countFailure(st, lvl, maxRetries, now)
}

func countFailure(st *records.GridState, lvl *records.GridLevelState, maxRetries int, now time.Time) []*Intent {
	lvl.Retries++
	if lvl.Retries < maxRetries || lvl.Stuck {
		return nil
	}
	lvl.Stuck = true
	return []*Intent{event(st, notify.GridWarning, now, "level %d (%s at %s) is stuck after %d failed attempts: %s",
		lvl.Index, lvl.TargetSide, lvl.TargetPrice, lvl.Retries, lvl.LastError)}
}

// adjacentPrice returns the price for the closing leg of a round trip opened
// at the level.
func adjacentPrice(st *records.GridState, lvl *records.GridLevelState, side exchange.Side) (decimal.Decimal, error) {
	next := lvl.Index + 1
	if side == exchange.SELL {
		next = lvl.Index - 1
	}
	if next < 0 || next >= len(st.Levels) {
		return decimal.Zero, fmt.Errorf("level %d has no adjacent level for a %s fill: %w", lvl.Index, side, ErrStateCorruption)
	}
	return st.Levels[next].Price, nil
}

// Reconcile applies the latest exchange status of orders to the grid. Only
// status transitions of open bindings are acted upon, so applying the same
// orders again is a no-op. Fills are recorded in all states; new orders are
// planned only for Active grids.
func Reconcile(cur *records.GridState, orders map[int]*exchange.Order, maxRetries, maxFills int, now time.Time) (*records.GridState, []*Intent) {
	return reconcile(cur, orders, true, maxRetries, maxFills, now)
}

// RecordFills is like Reconcile, but never plans new orders.
func RecordFills(cur *records.GridState, orders map[int]*exchange.Order, maxFills int, now time.Time) (*records.GridState, []*Intent) {
	return reconcile(cur, orders, false, math.MaxInt, maxFills, now)
}

func reconcile(cur *records.GridState, orders map[int]*exchange.Order, replenish bool, maxRetries, maxFills int, now time.Time) (*records.GridState, []*Intent) {
	if Status(cur.Status) == Stopped {
		return cur, nil
	}
	replenish = replenish && Status(cur.Status) == Active

	st := clone(cur)
	var notes []*Intent
	changed := false

	for _, lvl := range st.Levels {
		b := lvl.Binding
		if b == nil || b.Status != string(exchange.OPEN) {
			continue
		}
		order, ok := orders[lvl.Index]
		if !ok || order == nil || string(order.ServerOrderID) != b.OrderID {
			continue
		}

		switch order.Status {
		case exchange.FILLED:
			fill := &records.Fill{
				Level:   lvl.Index,
				OrderID: b.OrderID,
				Side:    b.Side,
				Price:   order.FilledPrice,
				Size:    order.FilledSize,
				Fee:     order.Fee,
				Time:    order.FinishTime,
			}
			if fill.Price.IsZero() {
				fill.Price = b.Price
			}
			if fill.Size.IsZero() {
				fill.Size = b.Size
			}
			if fill.Time.IsZero() {
				fill.Time = now
			}

			side := exchange.Side(b.Side)
			if lvl.OpenFill == nil {
				price, err := adjacentPrice(st, lvl, side)
				if err != nil {
					lvl.LastError = err.Error()
					lvl.Stuck = true
					notes = append(notes, event(st, notify.GridWarning, now, "%v", err))
				}
				lvl.OpenFill = fill
				lvl.TargetSide = string(side.Opposite())
				lvl.TargetPrice = price
			} else {
				buy, sell := lvl.OpenFill, fill
				if side == exchange.BUY {
					buy, sell = fill, lvl.OpenFill
				}
				size := decimal.Min(buy.Size, sell.Size)
				fill.Profit = sell.Price.Sub(buy.Price).Mul(size).Sub(buy.Fee).Sub(sell.Fee)
				st.RealizedProfit = st.RealizedProfit.Add(fill.Profit)
				st.CompletedTrades++
				lvl.OpenFill = nil
				lvl.TargetSide = lvl.Side
				lvl.TargetPrice = lvl.Price
			}

			st.Fills = append(st.Fills, fill)
			if n := len(st.Fills); n > maxFills && maxFills > 0 {
				st.Fills = st.Fills[n-maxFills:]
			}
			lvl.Binding = nil
			lvl.Retries = 0
			lvl.LastError = ""
			changed = true

			msg := fmt.Sprintf("%s %s at %s filled (level %d)", side, fill.Size, fill.Price, lvl.Index)
			if !fill.Profit.IsZero() {
				msg += fmt.Sprintf(", round trip profit %s, total %s", fill.Profit.StringFixed(4), st.RealizedProfit.StringFixed(4))
			}
			if !replenish {
				msg += ", not replenished while " + strings.ToLower(st.Status)
			}
			notes = append(notes, event(st, notify.Fill, now, "%s", msg))

		case exchange.CANCELLED, exchange.REJECTED:
			if order.FilledSize.IsPositive() {
				slog.Warn("partially filled order is treated as canceled", "grid", ID(st.User, st.Symbol), "level", lvl.Index,
					"order-id", b.OrderID, "filled-size", order.FilledSize)
			}
			lvl.LastError = fmt.Sprintf("order %s was %s", b.OrderID, strings.ToLower(string(order.Status)))
			if order.DoneReason != "" {
				lvl.LastError += ": " + order.DoneReason
			}
			lvl.Binding = nil
			changed = true
			notes = append(notes, countFailure(st, lvl, maxRetries, now)...)
		}
	}

	var intents []*Intent
	if changed {
		st.UpdateTime = now
		intents = append(intents, &Intent{Kind: PersistIntent})
	}
	intents = append(intents, notes...)

	if replenish {
		if places := planPlacements(st, now); len(places) > 0 {
			intents = append(intents, &Intent{Kind: PersistIntent})
			intents = append(intents, places...)
			intents = append(intents, &Intent{Kind: PersistIntent})
		}
	}
	if len(intents) == 0 {
		return cur, nil
	}
	return st, intents
}

// Pause suspends replenishment. Open orders are canceled only when
// cancelOrders is true. Pausing a paused grid is a no-op.
func Pause(cur *records.GridState, cancelOrders bool, now time.Time) (*records.GridState, []*Intent, error) {
	switch Status(cur.Status) {
	case Paused:
		return cur, nil, nil
	case Stopped:
		return nil, nil, fmt.Errorf("grid %s: %w", ID(cur.User, cur.Symbol), ErrStopped)
	}
	st := clone(cur)
	st.Status = string(Paused)
	st.CancelOnPause = cancelOrders
	st.UpdateTime = now

	intents := []*Intent{{Kind: PersistIntent}}
	if cancelOrders {
		intents = append(intents, cancelIntents(st)...)
	}
	return st, intents, nil
}

// Resume reactivates a paused grid, clears stuck levels and plans orders for
// every level without one. Levels with no valid target price stay stuck.
func Resume(cur *records.GridState, now time.Time) (*records.GridState, []*Intent, error) {
	switch Status(cur.Status) {
	case Active:
		return cur, nil, nil
	case Stopped:
		return nil, nil, fmt.Errorf("grid %s: %w", ID(cur.User, cur.Symbol), ErrStopped)
	}
	st := clone(cur)
	st.Status = string(Active)
	st.UpdateTime = now
	for _, lvl := range st.Levels {
		// A level without a counter order price needs manual repair.
		lvl.Stuck = !lvl.TargetPrice.IsPositive()
		lvl.Retries = 0
	}
	intents := []*Intent{{Kind: PersistIntent}}
	if places := planPlacements(st, now); len(places) > 0 {
		intents = append(intents, &Intent{Kind: PersistIntent})
		intents = append(intents, places...)
		intents = append(intents, &Intent{Kind: PersistIntent})
	}
	return st, intents, nil
}

func cancelIntents(st *records.GridState) []*Intent {
	var intents []*Intent
	for _, lvl := range st.Levels {
		if b := lvl.Binding; b != nil && b.Status == string(exchange.OPEN) {
			intents = append(intents, &Intent{Kind: CancelIntent, Level: lvl.Index, OrderID: exchange.OrderID(b.OrderID)})
		}
	}
	return intents
}

// Canceled records a confirmed cancellation of a level's order.
func Canceled(cur *records.GridState, level int, id exchange.OrderID, now time.Time) *records.GridState {
	lvl := cur.Levels[level]
	if lvl.Binding == nil || lvl.Binding.OrderID != string(id) {
		return cur
	}
	st := clone(cur)
	st.Levels[level].Binding = nil
	st.UpdateTime = now
	return st
}

// Stop returns cancel intents for every open order of the grid. The grid is
// moved to Stopped by MarkStopped after the cancellations are attempted. Stopping
// a stopped grid returns no intents.
func Stop(cur *records.GridState) []*Intent {
	if Status(cur.Status) == Stopped {
		return nil
	}
	return cancelIntents(cur)
}

// MarkStopped marks the grid stopped. Orders that could not be canceled, and
// pending placements whose outcome is unknown, are kept as leftovers and
// surfaced in a warning.
func MarkStopped(cur *records.GridState, canceled, failed []exchange.OrderID, now time.Time) (*records.GridState, []*Intent) {
	if Status(cur.Status) == Stopped {
		return cur, nil
	}
	st := clone(cur)
	st.Status = string(Stopped)
	st.StopTime = now
	st.UpdateTime = now

	done := make(map[string]bool)
	for _, id := range canceled {
		done[string(id)] = true
	}
	for _, id := range failed {
		st.Leftovers = append(st.Leftovers, string(id))
	}
	for _, lvl := range st.Levels {
		b := lvl.Binding
		if b == nil {
			continue
		}
		if b.Status == string(exchange.PENDING) {
			st.Leftovers = append(st.Leftovers, "client-ref:"+b.ClientRef)
		}
		if done[b.OrderID] {
			b.Status = string(exchange.CANCELLED)
		}
	}

	intents := []*Intent{{Kind: PersistIntent}}
	if len(st.Leftovers) > 0 {
		intents = append(intents, event(st, notify.GridWarning, now, "stopped with %d order(s) that need manual cancellation: %s",
			len(st.Leftovers), strings.Join(st.Leftovers, ", ")))
	}
	return st, intents
}
