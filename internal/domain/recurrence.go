package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidRule = errors.New("invalid recurrence rule")

// Frequency tags the active RecurrenceRule variant.
type Frequency string

const (
	FrequencyDaily    Frequency = "DAILY"
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyInterval Frequency = "INTERVAL"
)

// Weekdays in Monday-first order, as shown to users.
var Weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// WeekdaySet is a bitmask of time.Weekday values.
type WeekdaySet uint8

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

func (s WeekdaySet) Has(d time.Weekday) bool { return s&(1<<uint(d)) != 0 }
func (s WeekdaySet) With(d time.Weekday) WeekdaySet { return s | 1<<uint(d) }
func (s WeekdaySet) Without(d time.Weekday) WeekdaySet { return s &^ (1 << uint(d)) }
func (s WeekdaySet) Empty() bool { return s&0x7f == 0 }

// Toggle flips membership of d.
func (s WeekdaySet) Toggle(d time.Weekday) WeekdaySet {
	if s.Has(d) {
		return s.Without(d)
	}
	return s.With(d)
}

// Days lists members in Monday-first order.
func (s WeekdaySet) Days() []time.Weekday {
	var out []time.Weekday
	for _, d := range Weekdays {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// String renders the set as comma-separated English weekday names ("Monday,Thursday").
func (s WeekdaySet) String() string {
	names := make([]string, 0, 7)
	for _, d := range s.Days() {
		names = append(names, d.String())
	}
	return strings.Join(names, ",")
}

// ParseWeekdaySet is the inverse of WeekdaySet.String.
func ParseWeekdaySet(v string) (WeekdaySet, error) {
	var s WeekdaySet
	if strings.TrimSpace(v) == "" {
		return s, nil
	}
	for _, name := range strings.Split(v, ",") {
		d, ok := weekdayByName(strings.TrimSpace(name))
		if !ok {
			return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidRule, name)
		}
		s = s.With(d)
	}
	return s, nil
}

func weekdayByName(name string) (time.Weekday, bool) {
	for _, d := range Weekdays {
		if strings.EqualFold(d.String(), name) {
			return d, true
		}
	}
	return 0, false
}

// Rule is a tagged recurrence variant. Weekdays is meaningful only for
// FrequencyWeekly, IntervalDays only for FrequencyInterval.
type Rule struct {
	Frequency    Frequency
	Weekdays     WeekdaySet
	IntervalDays int
}

func Daily() Rule { return Rule{Frequency: FrequencyDaily} }
func Weekly(days ...time.Weekday) Rule { return Rule{Frequency: FrequencyWeekly, Weekdays: NewWeekdaySet(days...)} }
func EveryNDays(interval int) Rule { return Rule{Frequency: FrequencyInterval, IntervalDays: interval} }

// Validate enforces the per-variant invariants.
func (r Rule) Validate() error {
	switch r.Frequency {
	case FrequencyDaily:
		return nil
	case FrequencyWeekly:
		if r.Weekdays.Empty() {
			return fmt.Errorf("%w: weekly rule needs at least one weekday", ErrInvalidRule)
		}
		return nil
	case FrequencyInterval:
		if r.IntervalDays < 1 {
			return fmt.Errorf("%w: interval must be >= 1, got %d", ErrInvalidRule, r.IntervalDays)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, r.Frequency)
	}
}

// Fires reports whether rule is due on today. start is the anchor for
// EveryNDays. Both dates must already be localized calendar dates; time of
// day is ignored. The medication's end date is not consulted here.
func Fires(rule Rule, start, today time.Time) bool {
	switch rule.Frequency {
	case FrequencyDaily:
		return true
	case FrequencyWeekly:
		return rule.Weekdays.Has(today.Weekday())
	case FrequencyInterval:
		if rule.IntervalDays < 1 {
			return false
		}
		d, ok := DaysSince(start, today)
		if !ok {
			return false
		}
		return d%rule.IntervalDays == 0
	default:
		return false
	}
}

// Describe returns a short human label for the rule.
func (r Rule) Describe() string {
	switch r.Frequency {
	case FrequencyDaily:
		return "every day"
	case FrequencyWeekly:
		short := make([]string, 0, 7)
		for _, d := range r.Weekdays.Days() {
			short = append(short, d.String()[:3])
		}
		return strings.Join(short, ", ")
	case FrequencyInterval:
		if r.IntervalDays == 1 {
			return "every day"
		}
		return fmt.Sprintf("every %d days", r.IntervalDays)
	default:
		return string(r.Frequency)
	}
}
