package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidClock  = errors.New("invalid time of day")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidNumber = errors.New("invalid number")
)

// DateLayout is the ISO calendar date format used in storage and action tokens.
const DateLayout = "2006-01-02"

// ClockLayout is the 24h time-of-day format of schedule entries.
const ClockLayout = "15:04"

var clockRe = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// ParseClock validates a 24h "HH:MM" string. Leading/trailing spaces are trimmed;
// single-digit hours are rejected.
func ParseClock(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !clockRe.MatchString(s) {
		return "", fmt.Errorf("%w: %q, expected HH:MM", ErrInvalidClock, s)
	}
	return s, nil
}

// IsClock reports whether s is a valid "HH:MM" value.
func IsClock(s string) bool { return clockRe.MatchString(s) }

// ParseCount parses a positive integer within [min, max].
func ParseCount(s string, min, max int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidNumber, n, min, max)
	}
	return n, nil
}

// ValidateTZ checks that the tz is a valid IANA location.
func ValidateTZ(tz string) (string, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", err
	}
	return loc.String(), nil
}

// DateOf strips the time of day from t, keeping t's calendar fields. The
// result is midnight UTC so that date arithmetic is free of DST shifts.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a yyyy-MM-dd calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// FormatDate renders a calendar date as yyyy-MM-dd.
func FormatDate(d time.Time) string { return d.Format(DateLayout) }

// AddDays shifts a calendar date by n days.
func AddDays(d time.Time, n int) time.Time { return DateOf(d).AddDate(0, 0, n) }

// DaysSince returns the whole number of days from start to day. ok is false
// when day is before start.
func DaysSince(start, day time.Time) (int, bool) {
	s, d := DateOf(start), DateOf(day)
	if d.Before(s) {
		return 0, false
	}
	return int(d.Sub(s).Hours() / 24), true
}
