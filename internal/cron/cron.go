// Package cron parses and evaluates standard 5-field cron expressions:
// minute(0-59) hour(0-23) day-of-month(1-31) month(1-12) day-of-week(0-7),
// where both 0 and 7 mean Sunday. Day-of-month and day-of-week are combined
// with AND, not the POSIX OR.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseError reports an invalid expression with the offending field.
type ParseError struct {
	Expression string
	Field      string
	Reason     string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cron %q: %s", e.Expression, e.Reason)
	}
	return fmt.Sprintf("cron %q: field %s: %s", e.Expression, e.Field, e.Reason)
}

// Schedule is a parsed cron expression.
type Schedule struct {
	expr    string
	minutes map[int]bool
	hours   map[int]bool
	dom     map[int]bool
	months  map[int]bool
	dow     map[int]bool
}

// Expression returns the source expression.
func (s *Schedule) Expression() string { return s.expr }

type fieldSpec struct {
	name string
	min  int
	max  int
}

var fieldSpecs = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

// Parse parses a 5-field cron expression. Supported per-field syntax: `*`,
// literals, `a-b` ranges, `*/n`, `a-b/n` and `v/n` steps, and comma lists.
func Parse(expr string) (*Schedule, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 5 {
		return nil, &ParseError{Expression: expr, Reason: fmt.Sprintf("expected 5 fields, got %d", len(fields))}
	}

	sets := make([]map[int]bool, 5)
	for i, field := range fields {
		set, err := parseField(field, fieldSpecs[i])
		if err != nil {
			return nil, &ParseError{Expression: expr, Field: fieldSpecs[i].name, Reason: err.Error()}
		}
		sets[i] = set
	}

	// 7 is an alias for Sunday.
	if sets[4][7] {
		sets[4][0] = true
		delete(sets[4], 7)
	}

	return &Schedule{
		expr:    expr,
		minutes: sets[0],
		hours:   sets[1],
		dom:     sets[2],
		months:  sets[3],
		dow:     sets[4],
	}, nil
}

func parseField(field string, spec fieldSpec) (map[int]bool, error) {
	set := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		if part == "" {
			return nil, fmt.Errorf("empty list element in %q", field)
		}
		if err := parsePart(part, spec, set); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func parsePart(part string, spec fieldSpec, set map[int]bool) error {
	base := part
	step := 1
	if idx := strings.Index(part, "/"); idx >= 0 {
		base = part[:idx]
		parsed, err := strconv.Atoi(part[idx+1:])
		if err != nil || parsed <= 0 {
			return fmt.Errorf("invalid step in %q", part)
		}
		step = parsed
	}

	lo, hi := spec.min, spec.max
	switch {
	case base == "*":
		// full range
	case strings.Contains(base, "-"):
		bounds := strings.SplitN(base, "-", 2)
		var err error
		if lo, err = strconv.Atoi(bounds[0]); err != nil {
			return fmt.Errorf("invalid range start in %q", part)
		}
		if hi, err = strconv.Atoi(bounds[1]); err != nil {
			return fmt.Errorf("invalid range end in %q", part)
		}
		if lo > hi {
			return fmt.Errorf("range start exceeds end in %q", part)
		}
	default:
		value, err := strconv.Atoi(base)
		if err != nil {
			return fmt.Errorf("invalid value %q", part)
		}
		lo = value
		if strings.Contains(part, "/") {
			// v/n means v through max, stepping by n
			hi = spec.max
		} else {
			hi = value
		}
	}

	if lo < spec.min || hi > spec.max {
		return fmt.Errorf("value out of range %d-%d in %q", spec.min, spec.max, part)
	}
	for v := lo; v <= hi; v += step {
		set[v] = true
	}
	return nil
}

// Matches reports whether the instant t satisfies the expression, at minute
// resolution.
func (s *Schedule) Matches(t time.Time) bool {
	return s.minutes[t.Minute()] &&
		s.hours[t.Hour()] &&
		s.dayMatches(t)
}

func (s *Schedule) dayMatches(t time.Time) bool {
	return s.dom[t.Day()] &&
		s.months[int(t.Month())] &&
		s.dow[int(t.Weekday())]
}

// Previous returns the most recent matching instant strictly before the
// given time, searching at most lookbackDays into the past. A non-positive
// lookback defaults to 31 days.
func (s *Schedule) Previous(before time.Time, lookbackDays int) (time.Time, bool) {
	if lookbackDays <= 0 {
		lookbackDays = 31
	}
	limit := before.AddDate(0, 0, -lookbackDays)
	t := before.Truncate(time.Minute).Add(-time.Minute)
	for !t.Before(limit) {
		if !s.dayMatches(t) {
			// Skip to the last minute of the previous day.
			year, month, day := t.Date()
			t = time.Date(year, month, day, 0, 0, 0, 0, t.Location()).Add(-time.Minute)
			continue
		}
		if s.minutes[t.Minute()] && s.hours[t.Hour()] {
			return t, true
		}
		t = t.Add(-time.Minute)
	}
	return time.Time{}, false
}

// Next returns the earliest matching instant strictly after the given time,
// scanning at most 366 days ahead.
func (s *Schedule) Next(after time.Time) (time.Time, bool) {
	limit := after.AddDate(0, 0, 366)
	t := after.Truncate(time.Minute).Add(time.Minute)
	for !t.After(limit) {
		if !s.dayMatches(t) {
			// Skip to midnight of the next day.
			year, month, day := t.Date()
			t = time.Date(year, month, day, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
			continue
		}
		if s.minutes[t.Minute()] && s.hours[t.Hour()] {
			return t, true
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, false
}
