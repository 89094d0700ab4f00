// Copyright (c) 2025 BVK Chaitanya

package grid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/kvutil"
	"github.com/bvk/gridbot/records"
	"github.com/bvkgo/kv"
)

const Keyspace = "/grids"

// Key returns the database key for a grid. Grids are keyed by user and symbol
// so that a user has at most one grid per symbol.
func Key(user, symbol string) string {
	return path.Join(Keyspace, user, exchange.NormalizeSymbol(symbol))
}

// Load returns the grid of a user for a symbol. Returns os.ErrNotExist if the
// grid doesn't exist and ErrStateCorruption if the record violates grid
// invariants.
func Load(ctx context.Context, r kv.Getter, user, symbol string) (*records.GridState, error) {
	st, err := kvutil.Get[records.GridState](ctx, r, Key(user, symbol))
	if err != nil {
		return nil, err
	}
	if err := Check(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Save writes the grid record. All levels and bindings are saved in the same
// record, so a save either lands completely or not at all.
func Save(ctx context.Context, w kv.Setter, st *records.GridState) error {
	if err := Check(st); err != nil {
		return fmt.Errorf("refusing to save invalid grid: %w", err)
	}
	return kvutil.Set(ctx, w, Key(st.User, st.Symbol), st)
}

func Delete(ctx context.Context, rw kv.ReadWriter, user, symbol string) error {
	key := Key(user, symbol)
	if _, err := rw.Get(ctx, key); err != nil {
		return fmt.Errorf("could not find grid %s: %w", ID(user, symbol), err)
	}
	return rw.Delete(ctx, key)
}

// RecordError reports a grid record that could not be loaded.
type RecordError struct {
	User   string
	Symbol string
	Err    error
}

func (v *RecordError) Error() string {
	return fmt.Sprintf("could not load grid %s: %v", ID(v.User, v.Symbol), v.Err)
}

func (v *RecordError) Unwrap() error {
	return v.Err
}

// RecordErrors returns all record errors in an error tree.
func RecordErrors(err error) []*RecordError {
	if err == nil {
		return nil
	}
	if rerr, ok := err.(*RecordError); ok {
		return []*RecordError{rerr}
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		var rerrs []*RecordError
		for _, e := range x.Unwrap() {
			rerrs = append(rerrs, RecordErrors(e)...)
		}
		return rerrs
	case interface{ Unwrap() error }:
		return RecordErrors(x.Unwrap())
	}
	return nil
}

// List returns all grids of a user, or of all users when user is empty,
// ordered by user and symbol. Records that fail to load are skipped and
// reported as RecordErrors in the returned error along with the valid grids.
func List(ctx context.Context, r kv.Reader, user string) ([]*records.GridState, error) {
	dir := Keyspace
	if user != "" {
		dir = path.Join(Keyspace, user)
	}
	begin, end := kvutil.PathRange(dir)

	var grids []*records.GridState
	var errs []error
	keys, err := kvutil.Keys(ctx, r, begin, end)
	if err != nil {
		return nil, fmt.Errorf("could not list grid keys: %w", err)
	}
	for _, key := range keys {
		parts := strings.Split(strings.TrimPrefix(key, Keyspace+"/"), "/")
		if len(parts) != 2 {
			continue
		}
		st, err := Load(ctx, r, parts[0], parts[1])
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			errs = append(errs, &RecordError{User: parts[0], Symbol: parts[1], Err: err})
			continue
		}
		grids = append(grids, st)
	}
	return grids, errors.Join(errs...)
}

// LoadDB is a convenience wrapper that reads a grid in its own transaction.
func LoadDB(ctx context.Context, db kv.Database, user, symbol string) (st *records.GridState, err error) {
	err = kv.WithReader(ctx, db, func(ctx context.Context, r kv.Reader) error {
		st, err = Load(ctx, r, user, symbol)
		return err
	})
	return st, err
}

func SaveDB(ctx context.Context, db kv.Database, st *records.GridState) error {
	return kv.WithReadWriter(ctx, db, func(ctx context.Context, rw kv.ReadWriter) error {
		return Save(ctx, rw, st)
	})
}

func ListDB(ctx context.Context, db kv.Database, user string) (grids []*records.GridState, err error) {
	err = kv.WithReader(ctx, db, func(ctx context.Context, r kv.Reader) error {
		grids, err = List(ctx, r, user)
		return err
	})
	return grids, err
}
