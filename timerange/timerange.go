// Copyright (c) 2024 BVK Chaitanya

// Package timerange implements calendar periods used to summarize grid
// trades.
package timerange

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

// Range is a half-open time interval [Begin, End). Zero Begin or End values
// leave the range unbounded on that side.
type Range struct {
	Begin, End time.Time
}

func (r *Range) IsZero() bool {
	return r.Begin.IsZero() && r.End.IsZero()
}

func (r *Range) InRange(v time.Time) bool {
	if r.IsZero() {
		return true
	}
	if !r.Begin.IsZero() && v.Before(r.Begin) {
		return false
	}
	if !r.End.IsZero() && !v.Before(r.End) {
		return false
	}
	return true
}

func (r *Range) String() string {
	if r.IsZero() {
		return "lifetime"
	}
	const layout = "2006-01-02 15:04 MST"
	return fmt.Sprintf("%s to %s", r.Begin.Format(layout), r.End.Format(layout))
}

var periods = []string{"lifetime", "today", "yesterday", "this-week", "last-week", "this-month", "last-month", "this-year", "last-year"}

// Periods returns the names accepted by Period.
func Periods() []string {
	return slices.Clone(periods)
}

// Period returns the calendar range with the given name relative to the now
// timestamp. Calendar boundaries are computed in now's location. Weeks start
// on Sunday. Empty name is the same as "lifetime".
func Period(name string, now time.Time) (*Range, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	week := today.AddDate(0, 0, -int(now.Weekday()))
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	year := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())

	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "", "lifetime", "all":
		return &Range{}, nil
	case "today":
		return &Range{Begin: today, End: today.AddDate(0, 0, 1)}, nil
	case "yesterday":
		return &Range{Begin: today.AddDate(0, 0, -1), End: today}, nil
	case "this-week", "week":
		return &Range{Begin: week, End: week.AddDate(0, 0, 7)}, nil
	case "last-week":
		return &Range{Begin: week.AddDate(0, 0, -7), End: week}, nil
	case "this-month", "month":
		return &Range{Begin: month, End: month.AddDate(0, 1, 0)}, nil
	case "last-month":
		return &Range{Begin: month.AddDate(0, -1, 0), End: month}, nil
	case "this-year", "year":
		return &Range{Begin: year, End: year.AddDate(1, 0, 0)}, nil
	case "last-year":
		return &Range{Begin: year.AddDate(-1, 0, 0), End: year}, nil
	}
	return nil, fmt.Errorf("period %q is invalid (want one of %s): %w", name, strings.Join(periods, ", "), os.ErrInvalid)
}
