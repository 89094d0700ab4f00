// Copyright (c) 2025 BVK Chaitanya

package alert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"slices"

	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/kvutil"
	"github.com/bvk/gridbot/records"
	"github.com/bvkgo/kv"
)

const (
	Keyspace        = "/alerts"
	IndexKeyspace   = "/alert-index"
	HistoryKeyspace = "/alert-history"
)

// RuleKey returns the primary key of a rule.
func RuleKey(user, symbol, id string) string {
	return path.Join(Keyspace, user, exchange.NormalizeSymbol(symbol), id)
}

// indexKey returns the per-symbol secondary index key of a rule. Index values
// hold the primary key.
func indexKey(symbol, user, id string) string {
	return path.Join(IndexKeyspace, exchange.NormalizeSymbol(symbol), user, id)
}

// Save writes the rule and its symbol index entry.
func Save(ctx context.Context, rw kv.ReadWriter, r *records.AlertRule) error {
	key := RuleKey(r.User, r.Symbol, r.ID)
	if err := kvutil.Set(ctx, rw, key, r); err != nil {
		return fmt.Errorf("could not save alert rule %s: %w", r.ID, err)
	}
	if err := kvutil.Set(ctx, rw, indexKey(r.Symbol, r.User, r.ID), &key); err != nil {
		return fmt.Errorf("could not save alert index for %s: %w", r.ID, err)
	}
	return nil
}

// Find returns the rule with the given id from any user. Returns
// os.ErrNotExist if no such rule exists.
func Find(ctx context.Context, r kv.Reader, id string) (*records.AlertRule, error) {
	var found *records.AlertRule
	begin, end := kvutil.PathRange(Keyspace)
	errFound := errors.New("found")
	err := kvutil.Ascend(ctx, r, begin, end, func(ctx context.Context, _ kv.Reader, key string, v *records.AlertRule) error {
		if path.Base(key) == id {
			found = v
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("alert rule %q: %w", id, os.ErrNotExist)
	}
	return found, nil
}

// Delete removes a rule owned by the user. Returns os.ErrPermission if the
// rule belongs to another user.
func Delete(ctx context.Context, rw kv.ReadWriter, user, id string) (*records.AlertRule, error) {
	rule, err := Find(ctx, rw, id)
	if err != nil {
		return nil, err
	}
	if rule.User != user {
		return nil, fmt.Errorf("alert rule %q is not owned by %s: %w", id, user, os.ErrPermission)
	}
	if err := rw.Delete(ctx, RuleKey(rule.User, rule.Symbol, rule.ID)); err != nil {
		return nil, fmt.Errorf("could not delete alert rule %q: %w", id, err)
	}
	if err := rw.Delete(ctx, indexKey(rule.Symbol, rule.User, rule.ID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("could not delete alert index for %q: %w", id, err)
	}
	return rule, nil
}

// ListByUser returns the rules of a user, optionally limited to a symbol.
func ListByUser(ctx context.Context, r kv.Reader, user, symbol string) ([]*records.AlertRule, error) {
	dir := path.Join(Keyspace, user)
	if symbol != "" {
		dir = path.Join(dir, exchange.NormalizeSymbol(symbol))
	}
	begin, end := kvutil.PathRange(dir)

	var rules []*records.AlertRule
	err := kvutil.Ascend(ctx, r, begin, end, func(ctx context.Context, _ kv.Reader, _ string, v *records.AlertRule) error {
		rules = append(rules, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// ListBySymbol returns the rules of all users for a symbol using the symbol
// index.
func ListBySymbol(ctx context.Context, r kv.Reader, symbol string) ([]*records.AlertRule, error) {
	begin, end := kvutil.PathRange(path.Join(IndexKeyspace, exchange.NormalizeSymbol(symbol)))

	var rules []*records.AlertRule
	err := kvutil.Ascend(ctx, r, begin, end, func(ctx context.Context, r kv.Reader, ikey string, pkey *string) error {
		rule, err := kvutil.Get[records.AlertRule](ctx, r, *pkey)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		rules = append(rules, rule)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func historyKey(ev *records.AlertEvent) string {
	return path.Join(HistoryKeyspace, ev.User, fmt.Sprintf("%020d-%s", ev.Time.UnixNano(), ev.RuleID))
}

// AddHistory records a fired alert and keeps at most max events per user.
func AddHistory(ctx context.Context, rw kv.ReadWriter, ev *records.AlertEvent, max int) error {
	if err := kvutil.Set(ctx, rw, historyKey(ev), ev); err != nil {
		return fmt.Errorf("could not save alert history: %w", err)
	}
	if max <= 0 {
		return nil
	}
	begin, end := kvutil.PathRange(path.Join(HistoryKeyspace, ev.User))
	keys, err := kvutil.Keys(ctx, rw, begin, end)
	if err != nil {
		return err
	}
	for len(keys) > max {
		if err := rw.Delete(ctx, keys[0]); err != nil {
			return err
		}
		keys = keys[1:]
	}
	return nil
}

// History returns the most recent alert events of a user, newest first.
func History(ctx context.Context, r kv.Reader, user string, limit int) ([]*records.AlertEvent, error) {
	begin, end := kvutil.PathRange(path.Join(HistoryKeyspace, user))

	var events []*records.AlertEvent
	err := kvutil.Ascend(ctx, r, begin, end, func(ctx context.Context, _ kv.Reader, _ string, v *records.AlertEvent) error {
		events = append(events, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(events)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}
