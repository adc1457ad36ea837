package attendance

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date used by entries and range bounds.
const DateLayout = "2006-01-02"

// FilterMode selects which slice of the history is shown.
type FilterMode string

const (
	FilterAll   FilterMode = "all"
	FilterToday FilterMode = "today"
	FilterWeek  FilterMode = "week"
	FilterMonth FilterMode = "month"
	FilterRange FilterMode = "range"
)

// FilterModes lists the modes in display order.
var FilterModes = []FilterMode{FilterAll, FilterToday, FilterWeek, FilterMonth, FilterRange}

// ParseFilterMode maps user input onto a FilterMode. The empty string is all.
func ParseFilterMode(s string) (FilterMode, error) {
	switch FilterMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterToday:
		return FilterToday, nil
	case FilterWeek:
		return FilterWeek, nil
	case FilterMonth:
		return FilterMonth, nil
	case FilterRange:
		return FilterRange, nil
	}
	return "", Invalid("unknown filter %q", s)
}

// Filter is a history filter. From and To only apply to FilterRange.
type Filter struct {
	Mode FilterMode
	From string
	To   string
}

// Validate checks range bounds are ISO dates when set.
func (f Filter) Validate() error {
	if f.Mode != FilterRange {
		return nil
	}
	for _, bound := range []string{f.From, f.To} {
		if bound == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, bound); err != nil {
			return Invalid("date %q must look like YYYY-MM-DD", bound)
		}
	}
	return nil
}

// Apply returns the entries matching the filter, evaluated against now in
// now's location. The input is not modified and order is preserved.
func (f Filter) Apply(entries []Entry, now time.Time) []Entry {
	match, ok := f.predicate(now)
	if !ok {
		out := make([]Entry, len(entries))
		copy(out, entries)
		return out
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		d, ok := parseDay(e.Date, now.Location())
		if !ok {
			continue
		}
		if match(d) {
			out = append(out, e)
		}
	}
	return out
}

// predicate returns false when every entry passes.
func (f Filter) predicate(now time.Time) (func(time.Time) bool, bool) {
	today := dayOf(now)
	switch f.Mode {
	case FilterToday:
		return func(d time.Time) bool { return d.Equal(today) }, true
	case FilterWeek:
		start := today.AddDate(0, 0, -int(today.Weekday()))
		end := start.AddDate(0, 0, 6)
		return between(start, end), true
	case FilterMonth:
		return func(d time.Time) bool {
			return d.Year() == today.Year() && d.Month() == today.Month()
		}, true
	case FilterRange:
		if f.From == "" || f.To == "" {
			return nil, false
		}
		start, okFrom := parseDay(f.From, now.Location())
		end, okTo := parseDay(f.To, now.Location())
		if !okFrom || !okTo {
			return nil, false
		}
		return between(start, end), true
	}
	return nil, false
}

// String renders the filter for headers and logs.
func (f Filter) String() string {
	if f.Mode == FilterRange {
		return fmt.Sprintf("range %s..%s", f.From, f.To)
	}
	if f.Mode == "" {
		return string(FilterAll)
	}
	return string(f.Mode)
}

func between(start, end time.Time) func(time.Time) bool {
	return func(d time.Time) bool { return !d.Before(start) && !d.After(end) }
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// parseDay reads the leading ISO date of s, tolerating a trailing time part.
func parseDay(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) < len(DateLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(DateLayout, s[:len(DateLayout)], loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
