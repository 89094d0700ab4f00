// Copyright (c) 2025 BVK Chaitanya

package timerange

import (
	"errors"
	"os"
	"testing"
	"time"
)

func TestPeriod(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	// A Wednesday.
	now := time.Date(2025, 3, 12, 10, 30, 0, 0, loc)
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}

	tests := []struct {
		name       string
		begin, end time.Time
	}{
		{"today", day(2025, 3, 12), day(2025, 3, 13)},
		{"yesterday", day(2025, 3, 11), day(2025, 3, 12)},
		{"this-week", day(2025, 3, 9), day(2025, 3, 16)},
		{"last_week", day(2025, 3, 2), day(2025, 3, 9)},
		{"this-month", day(2025, 3, 1), day(2025, 4, 1)},
		{"last-month", day(2025, 2, 1), day(2025, 3, 1)},
		{"this-year", day(2025, 1, 1), day(2026, 1, 1)},
		{"last-year", day(2024, 1, 1), day(2025, 1, 1)},
	}
	for _, test := range tests {
		r, err := Period(test.name, now)
		if err != nil {
			t.Fatalf("%s: %v", test.name, err)
		}
		if !r.Begin.Equal(test.begin) || !r.End.Equal(test.end) {
			t.Fatalf("%s: want %v-%v, got %v-%v", test.name, test.begin, test.end, r.Begin, r.End)
		}
		if !r.InRange(test.begin) || r.InRange(test.end) {
			t.Fatalf("%s: range must be half-open", test.name)
		}
	}

	r, err := Period("", now)
	if err != nil {
		t.Fatal(err)
	}
	if !r.IsZero() || !r.InRange(time.Time{}) || !r.InRange(now) {
		t.Fatalf("want an unbounded range, got %v", r)
	}

	if _, err := Period("fortnight", now); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid, got %v", err)
	}
}
