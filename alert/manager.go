// Copyright (c) 2025 BVK Chaitanya

package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/kvutil"
	"github.com/bvk/gridbot/notify"
	"github.com/bvk/gridbot/records"
	"github.com/bvkgo/kv"
	"github.com/shopspring/decimal"
)

type Options struct {
	// DefaultCooldown is used for rules created without a cooldown.
	DefaultCooldown time.Duration

	// Baseline selects the reference price for percent change rules.
	Baseline Baseline

	// MaxHistory is the number of fired events kept per user.
	MaxHistory int

	// Location defines the day boundary for the day-start baseline.
	Location *time.Location
}

func (v *Options) setDefaults() {
	if v.DefaultCooldown == 0 {
		v.DefaultCooldown = 5 * time.Minute
	}
	if v.Baseline == "" {
		v.Baseline = DayStart
	}
	if v.MaxHistory == 0 {
		v.MaxHistory = 100
	}
	if v.Location == nil {
		v.Location = time.Local
	}
}

func (v *Options) Check() error {
	if v.DefaultCooldown < 0 {
		return fmt.Errorf("default cooldown cannot be negative: %w", os.ErrInvalid)
	}
	if _, err := ParseBaseline(string(v.Baseline)); err != nil {
		return err
	}
	if v.MaxHistory < 0 {
		return fmt.Errorf("max history cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}

// Manager owns the alert rules of all users and evaluates them against market
// snapshots.
type Manager struct {
	opts Options

	db   kv.Database
	sink notify.Sink

	baselines *Baselines

	now func() time.Time
}

func NewManager(db kv.Database, sink notify.Sink, opts *Options) (*Manager, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = notify.LogSink{}
	}
	m := &Manager{
		opts:      *opts,
		db:        db,
		sink:      sink,
		baselines: NewBaselines(opts.Baseline, opts.Location),
		now:       time.Now,
	}
	return m, nil
}

// Create adds a new rule. Returns os.ErrExist if the user already has a rule
// with the same condition.
func (m *Manager) Create(ctx context.Context, req *CreateRequest) (*records.AlertRule, error) {
	if err := req.Check(); err != nil {
		return nil, err
	}
	rule := newRule(req, m.opts.DefaultCooldown, m.now())

	err := kv.WithReadWriter(ctx, m.db, func(ctx context.Context, rw kv.ReadWriter) error {
		rules, err := ListByUser(ctx, rw, rule.User, rule.Symbol)
		if err != nil {
			return err
		}
		for _, r := range rules {
			if sameCondition(r, rule) {
				return fmt.Errorf("alert rule %s has the same condition: %w", r.ID, os.ErrExist)
			}
		}
		return Save(ctx, rw, rule)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("created alert rule", "user", rule.User, "rule", Describe(rule))
	return rule, nil
}

// Delete removes a rule. Returns os.ErrNotExist if the rule doesn't exist and
// os.ErrPermission if it belongs to another user.
func (m *Manager) Delete(ctx context.Context, user, id string) (*records.AlertRule, error) {
	var rule *records.AlertRule
	err := kv.WithReadWriter(ctx, m.db, func(ctx context.Context, rw kv.ReadWriter) (err error) {
		rule, err = Delete(ctx, rw, user, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("deleted alert rule", "user", user, "rule", id)
	return rule, nil
}

// SetEnabled enables or disables a rule owned by the user.
func (m *Manager) SetEnabled(ctx context.Context, user, id string, enabled bool) (*records.AlertRule, error) {
	var rule *records.AlertRule
	err := kv.WithReadWriter(ctx, m.db, func(ctx context.Context, rw kv.ReadWriter) (err error) {
		rule, err = Find(ctx, rw, id)
		if err != nil {
			return err
		}
		if rule.User != user {
			return fmt.Errorf("alert rule %q is not owned by %s: %w", id, user, os.ErrPermission)
		}
		rule.Enabled = enabled
		return Save(ctx, rw, rule)
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// List returns the rules of a user, optionally limited to a symbol.
func (m *Manager) List(ctx context.Context, user, symbol string) (rules []*records.AlertRule, err error) {
	err = kv.WithReader(ctx, m.db, func(ctx context.Context, r kv.Reader) error {
		rules, err = ListByUser(ctx, r, user, symbol)
		return err
	})
	return rules, err
}

// History returns the recent fired alerts of a user, newest first.
func (m *Manager) History(ctx context.Context, user string, limit int) (events []*records.AlertEvent, err error) {
	err = kv.WithReader(ctx, m.db, func(ctx context.Context, r kv.Reader) error {
		events, err = History(ctx, r, user, limit)
		return err
	})
	return events, err
}

// Symbols returns the symbols that have at least one enabled rule.
func (m *Manager) Symbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := kv.WithReader(ctx, m.db, func(ctx context.Context, r kv.Reader) error {
		begin, end := kvutil.PathRange(Keyspace)
		return kvutil.Ascend(ctx, r, begin, end, func(ctx context.Context, _ kv.Reader, _ string, v *records.AlertRule) error {
			if v.Enabled && !slices.Contains(symbols, v.Symbol) {
				symbols = append(symbols, v.Symbol)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(symbols)
	return symbols, nil
}

// Evaluate checks all rules on the snapshot's symbol and fires the matching
// ones. Each fired rule is updated in its own transaction so that a failure on
// one rule doesn't affect the others. Returns the number of fired rules.
func (m *Manager) Evaluate(ctx context.Context, snap *exchange.Snapshot) (int, error) {
	now := m.now()
	baseline := m.baselines.Observe(snap, now)

	var rules []*records.AlertRule
	err := kv.WithReader(ctx, m.db, func(ctx context.Context, r kv.Reader) (err error) {
		rules, err = ListBySymbol(ctx, r, snap.Symbol)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("could not list alert rules for %s: %w", snap.Symbol, err)
	}

	var errs []error
	nfired := 0
	for _, rule := range rules {
		if ok, _ := Evaluate(rule, snap, baseline, now); !ok {
			continue
		}
		ev, err := m.fire(ctx, rule.User, rule.Symbol, rule.ID, snap, baseline, now)
		if err != nil {
			slog.Error("could not update fired alert rule", "user", rule.User, "rule", rule.ID, "err", err)
			errs = append(errs, err)
			continue
		}
		if ev == nil {
			continue
		}
		nfired++
		notify.Emit(ctx, m.sink, &notify.Event{
			User:    ev.User,
			Symbol:  ev.Symbol,
			Kind:    notify.Alert,
			Message: ev.Message,
			Time:    ev.Time,
		})
	}
	return nfired, errors.Join(errs...)
}

// fire re-evaluates the rule inside a transaction and records the trigger.
// Returns nil event if the rule no longer fires, eg: it was deleted or
// disabled concurrently.
func (m *Manager) fire(ctx context.Context, user, symbol, id string, snap *exchange.Snapshot, baseline decimal.Decimal, now time.Time) (*records.AlertEvent, error) {
	var event *records.AlertEvent
	err := kv.WithReadWriter(ctx, m.db, func(ctx context.Context, rw kv.ReadWriter) error {
		rule, err := kvutil.Get[records.AlertRule](ctx, rw, RuleKey(user, symbol, id))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		ok, value := Evaluate(rule, snap, baseline, now)
		if !ok {
			return nil
		}
		rule.LastTriggered = now
		rule.TriggerCount++
		if err := Save(ctx, rw, rule); err != nil {
			return err
		}
		ev := &records.AlertEvent{
			RuleID:  rule.ID,
			User:    rule.User,
			Symbol:  rule.Symbol,
			Value:   value,
			Message: Message(rule, value),
			Time:    now,
		}
		if err := AddHistory(ctx, rw, ev, m.opts.MaxHistory); err != nil {
			return err
		}
		event = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}
