// Copyright (c) 2025 BVK Chaitanya

// Package monitor drives the alert and grid engines from market updates.
//
// Snapshots pulled on the monitor's cadence and updates pushed by the
// exchange stream are published to a single topic. A dispatcher forwards
// them to one worker per symbol, which evaluates the symbol's alert rules and
// reconciles its live grids. Workers keep only the latest snapshot, so a slow
// symbol never queues stale work.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/bvk/gridbot/ctxutil"
	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/syncmap"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
	"golang.org/x/sync/errgroup"
)

// Grids is the subset of the grid engine used by the monitor.
type Grids interface {
	LiveGrids(ctx context.Context) (map[string][]string, error)
	Reconcile(ctx context.Context, user, symbol string) error
	CheckDrift(ctx context.Context, user, symbol string, threshold decimal.Decimal) (bool, error)
}

// Alerts is the subset of the alert manager used by the monitor.
type Alerts interface {
	Symbols(ctx context.Context) ([]string, error)
	Evaluate(ctx context.Context, snap *exchange.Snapshot) (int, error)
}

type Options struct {
	// Interval is the polling cadence for market snapshots.
	Interval time.Duration

	// InstrumentTimeout bounds the work done for one symbol in one pass.
	InstrumentTimeout time.Duration

	// MaxConcurrency limits the number of concurrent snapshot fetches.
	MaxConcurrency int

	// DriftInterval is the cadence for range drift checks on auto-range grids.
	DriftInterval time.Duration

	// DriftPercent is the bound movement that raises a drift warning.
	DriftPercent decimal.Decimal

	// ReconcileInterval is the minimum time between grid reconciles of a
	// symbol triggered by market updates. Fills are reconciled immediately.
	ReconcileInterval time.Duration

	// DisableStreams turns off exchange stream subscriptions even when the
	// gateway supports them.
	DisableStreams bool
}

func (v *Options) setDefaults() {
	if v.Interval <= 0 {
		v.Interval = time.Minute
	}
	if v.InstrumentTimeout <= 0 {
		v.InstrumentTimeout = 20 * time.Second
	}
	if v.MaxConcurrency <= 0 {
		v.MaxConcurrency = 8
	}
	if v.DriftInterval <= 0 {
		v.DriftInterval = 4 * time.Hour
	}
	if v.DriftPercent.IsZero() {
		v.DriftPercent = decimal.NewFromInt(5)
	}
	if v.ReconcileInterval <= 0 {
		v.ReconcileInterval = min(15*time.Second, v.Interval)
	}
}

func (v *Options) Check() error {
	if v.InstrumentTimeout > v.Interval {
		return fmt.Errorf("instrument timeout %s cannot exceed the interval %s: %w", v.InstrumentTimeout, v.Interval, os.ErrInvalid)
	}
	if v.ReconcileInterval > v.Interval {
		return fmt.Errorf("reconcile interval %s cannot exceed the interval %s: %w", v.ReconcileInterval, v.Interval, os.ErrInvalid)
	}
	if v.DriftPercent.IsNegative() {
		return fmt.Errorf("drift percent cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}

type Monitor struct {
	cg ctxutil.CloseGroup

	opts Options

	gw     exchange.Gateway
	grids  Grids
	alerts Alerts

	updates *topic.Topic[*exchange.Update]

	workers syncmap.Map[string, *worker]

	// reconciled holds the last grid reconcile time of each symbol.
	reconciled syncmap.Map[string, time.Time]

	streamMu sync.Mutex
	streams  syncmap.Map[string, context.CancelFunc]

	driftMu   sync.Mutex
	lastDrift map[string]time.Time

	now func() time.Time
}

func New(gw exchange.Gateway, grids Grids, alerts Alerts, opts *Options) (*Monitor, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	m := &Monitor{
		opts:      *opts,
		gw:        gw,
		grids:     grids,
		alerts:    alerts,
		updates:   topic.New[*exchange.Update](),
		lastDrift: make(map[string]time.Time),
		now:       time.Now,
	}
	return m, nil
}

// Start launches the dispatcher and the polling loop in the background. They
// run until Close is called.
func (m *Monitor) Start(ctx context.Context) error {
	receiver, err := topic.Subscribe(m.updates, 0, false)
	if err != nil {
		return fmt.Errorf("could not subscribe to market updates: %w", err)
	}
	m.cg.Go(func(ctx context.Context) {
		defer receiver.Close()
		m.dispatch(ctx, receiver)
	})
	m.cg.Go(m.poll)
	return nil
}

// Close stops all background goroutines and waits for them.
func (m *Monitor) Close() error {
	m.cg.Close()
	m.updates.Close()
	return nil
}

// Publish injects an update as if it arrived from the exchange.
func (m *Monitor) Publish(update *exchange.Update) {
	m.updates.Send(update)
}

func (m *Monitor) poll(ctx context.Context) {
	for ctx.Err() == nil {
		if _, err := m.Tick(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("could not complete the monitor pass (will retry)", "err", err)
		}
		ctxutil.Sleep(ctx, m.opts.Interval)
	}
}

// Watched returns the symbols that have alert rules or live grids, in sorted
// order.
func (m *Monitor) Watched(ctx context.Context) ([]string, error) {
	symbols, err := m.alerts.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list alert symbols: %w", err)
	}
	live, err := m.grids.LiveGrids(ctx)
	if err != nil {
		slog.Error("could not list live grids (watching alert symbols only)", "err", err)
	}
	for symbol := range live {
		if !slices.Contains(symbols, symbol) {
			symbols = append(symbols, symbol)
		}
	}
	slices.Sort(symbols)
	return symbols, nil
}

// Tick fetches a snapshot for every watched symbol concurrently and publishes
// them. A failure on one symbol is logged and doesn't affect the others.
// Returns the number of published snapshots.
func (m *Monitor) Tick(ctx context.Context) (int, error) {
	symbols, err := m.Watched(ctx)
	if err != nil {
		return 0, err
	}
	if !m.opts.DisableStreams {
		m.subscribe(symbols)
	}

	var mu sync.Mutex
	npublished := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.MaxConcurrency)
	for _, symbol := range symbols {
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(gctx, m.opts.InstrumentTimeout)
			defer cancel()

			snap, err := m.gw.GetSnapshot(tctx, symbol)
			if err != nil {
				slog.Warn("could not get market snapshot (skipped)", "symbol", symbol, "err", err)
				return nil
			}
			m.updates.Send(&exchange.Update{Snapshot: snap})

			mu.Lock()
			npublished++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return npublished, err
	}
	return npublished, nil
}

// subscribe starts forwarding the exchange stream for symbols that are not
// yet streamed.
func (m *Monitor) subscribe(symbols []string) {
	streamer, ok := m.gw.(exchange.Streamer)
	if !ok {
		return
	}
	m.streamMu.Lock()
	defer m.streamMu.Unlock()

	for _, symbol := range symbols {
		if _, ok := m.streams.Load(symbol); ok {
			continue
		}
		sctx, cancel := context.WithCancel(m.cg.Context())
		receiver, err := streamer.Subscribe(sctx, symbol)
		if err != nil {
			slog.Warn("could not subscribe to market stream (will retry)", "symbol", symbol, "err", err)
			cancel()
			continue
		}
		m.streams.Store(symbol, cancel)
		m.cg.Go(func(ctx context.Context) {
			defer cancel()
			defer m.streams.Delete(symbol)
			defer receiver.Close()

			stop := context.AfterFunc(sctx, receiver.Close)
			defer stop()

			for sctx.Err() == nil {
				update, err := receiver.Receive()
				if err != nil {
					if sctx.Err() == nil {
						slog.Warn("market stream is closed (will resubscribe)", "symbol", symbol, "err", err)
					}
					return
				}
				m.updates.Send(update)
			}
		})
	}
}

// dispatch routes every update to the worker of its symbol.
func (m *Monitor) dispatch(ctx context.Context, receiver *topic.Receiver[*exchange.Update]) {
	updatesCh, err := topic.ReceiveCh(receiver)
	if err != nil {
		slog.Error("could not get the market updates channel", "err", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updatesCh:
			if !ok {
				return
			}
			var symbol string
			switch {
			case update.Snapshot != nil:
				symbol = exchange.NormalizeSymbol(update.Snapshot.Symbol)
			case update.Fill != nil:
				symbol = exchange.NormalizeSymbol(update.Fill.Symbol)
			default:
				continue
			}
			m.workerFor(symbol).post(update)
		}
	}
}

func (m *Monitor) workerFor(symbol string) *worker {
	if w, ok := m.workers.Load(symbol); ok {
		return w
	}
	w, loaded := m.workers.LoadOrStore(symbol, newWorker(symbol))
	if !loaded {
		m.cg.Go(func(ctx context.Context) {
			w.run(ctx, m.handle)
		})
	}
	return w
}

// handle processes the latest work item of a symbol within the per-symbol
// timeout. Alerts are evaluated on every snapshot, but grids are reconciled
// only after a fill or when ReconcileInterval has passed.
func (m *Monitor) handle(ctx context.Context, symbol string, snap *exchange.Snapshot, filled bool) {
	tctx, cancel := context.WithTimeout(ctx, m.opts.InstrumentTimeout)
	defer cancel()

	m.evaluate(tctx, symbol, snap)

	if !filled {
		if last, ok := m.reconciled.Load(symbol); ok && m.now().Sub(last) < m.opts.ReconcileInterval {
			return
		}
	}
	if err := m.reconcile(tctx, symbol); err != nil && ctx.Err() == nil {
		slog.Warn("could not process market update (will retry)", "symbol", symbol, "err", err)
	}
}

// Process evaluates alert rules on the snapshot, if any, and reconciles every
// live grid of the symbol. Grid failures are logged per grid.
func (m *Monitor) Process(ctx context.Context, symbol string, snap *exchange.Snapshot) error {
	m.evaluate(ctx, symbol, snap)
	return m.reconcile(ctx, symbol)
}

func (m *Monitor) evaluate(ctx context.Context, symbol string, snap *exchange.Snapshot) {
	if snap == nil {
		return
	}
	if _, err := m.alerts.Evaluate(ctx, snap); err != nil {
		slog.Warn("could not evaluate some alert rules", "symbol", symbol, "err", err)
	}
}

func (m *Monitor) reconcile(ctx context.Context, symbol string) error {
	live, err := m.grids.LiveGrids(ctx)
	if err != nil {
		return fmt.Errorf("could not list live grids: %w", err)
	}
	m.reconciled.Store(symbol, m.now())
	for _, user := range live[symbol] {
		if err := m.grids.Reconcile(ctx, user, symbol); err != nil {
			slog.Warn("could not reconcile grid (will retry)", "user", user, "symbol", symbol, "err", err)
			continue
		}
		m.checkDrift(ctx, user, symbol)
	}
	return nil
}

func (m *Monitor) checkDrift(ctx context.Context, user, symbol string) {
	id := user + "/" + symbol
	now := m.now()

	m.driftMu.Lock()
	last, ok := m.lastDrift[id]
	if ok && now.Sub(last) < m.opts.DriftInterval {
		m.driftMu.Unlock()
		return
	}
	m.lastDrift[id] = now
	m.driftMu.Unlock()

	if _, err := m.grids.CheckDrift(ctx, user, symbol, m.opts.DriftPercent); err != nil {
		slog.Warn("could not check grid range drift (ignored)", "user", user, "symbol", symbol, "err", err)
	}
}
