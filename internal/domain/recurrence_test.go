package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// helper: build a time in given tz and return its UTC
func mustLocalUTC(t *testing.T, tz string, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	return time.Date(y, m, d, hh, mm, 0, 0, loc).UTC()
}

func TestFires_Daily(t *testing.T) {
	start := day(2025, time.May, 5)
	for i := -3; i < 10; i++ {
		assert.True(t, Fires(Daily(), start, AddDays(start, i)), "offset %d", i)
	}
}

func TestFires_WeeklyMondayThursday(t *testing.T) {
	rule := Weekly(time.Monday, time.Thursday)
	start := day(2025, time.January, 1)

	monday := day(2025, time.May, 5)
	require.Equal(t, time.Monday, monday.Weekday())

	assert.True(t, Fires(rule, start, monday))
	assert.False(t, Fires(rule, start, AddDays(monday, 1)), "tuesday")
	assert.True(t, Fires(rule, start, AddDays(monday, 3)), "thursday")
	assert.False(t, Fires(rule, start, AddDays(monday, 6)), "sunday")
}

func TestFires_WeeklyEmptyNeverFires(t *testing.T) {
	rule := Rule{Frequency: FrequencyWeekly}
	start := day(2025, time.May, 1)
	for i := 0; i < 7; i++ {
		assert.False(t, Fires(rule, start, AddDays(start, i)))
	}
}

func TestFires_EveryTwoDays(t *testing.T) {
	rule := EveryNDays(2)
	start := day(2025, time.May, 10)

	assert.True(t, Fires(rule, start, start))
	assert.False(t, Fires(rule, start, AddDays(start, 1)))
	assert.True(t, Fires(rule, start, AddDays(start, 2)))
}

func TestFires_EveryNDaysMatchesModulo(t *testing.T) {
	start := day(2024, time.February, 20) // crosses a leap day
	for interval := 1; interval <= 7; interval++ {
		rule := EveryNDays(interval)
		for offset := -10; offset <= 60; offset++ {
			want := offset >= 0 && offset%interval == 0
			got := Fires(rule, start, AddDays(start, offset))
			assert.Equal(t, want, got, "interval=%d offset=%d", interval, offset)
		}
	}
}

func TestFires_EveryNDaysIgnoresTimeOfDay(t *testing.T) {
	rule := EveryNDays(3)
	start := time.Date(2025, time.March, 1, 23, 59, 0, 0, time.UTC)
	today := time.Date(2025, time.March, 4, 0, 1, 0, 0, time.UTC)
	assert.True(t, Fires(rule, start, today))
}

func TestFires_InvalidInterval(t *testing.T) {
	start := day(2025, time.May, 1)
	assert.False(t, Fires(EveryNDays(0), start, start))
	assert.False(t, Fires(Rule{Frequency: "HOURLY"}, start, start))
}

func TestRuleValidate(t *testing.T) {
	assert.NoError(t, Daily().Validate())
	assert.NoError(t, Weekly(time.Sunday).Validate())
	assert.NoError(t, EveryNDays(1).Validate())

	assert.ErrorIs(t, Rule{Frequency: FrequencyWeekly}.Validate(), ErrInvalidRule)
	assert.ErrorIs(t, EveryNDays(0).Validate(), ErrInvalidRule)
	assert.ErrorIs(t, Rule{Frequency: "MONTHLY"}.Validate(), ErrInvalidRule)
}

func TestWeekdaySet(t *testing.T) {
	s := NewWeekdaySet(time.Thursday, time.Monday)
	assert.Equal(t, "Monday,Thursday", s.String())
	assert.Equal(t, []time.Weekday{time.Monday, time.Thursday}, s.Days())

	s = s.Toggle(time.Monday).Toggle(time.Sunday)
	assert.Equal(t, "Thursday,Sunday", s.String())

	parsed, err := ParseWeekdaySet("thursday, Sunday")
	require.NoError(t, err)
	assert.Equal(t, s, parsed)

	empty, err := ParseWeekdaySet("")
	require.NoError(t, err)
	assert.True(t, empty.Empty())

	_, err = ParseWeekdaySet("Funday")
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestUserToday_UsesOwnZone(t *testing.T) {
	u := &User{TZ: "Asia/Tokyo"}
	// 23:30 in Moscow on May 5 is already May 6 in Tokyo.
	now := mustLocalUTC(t, "Europe/Moscow", 2025, time.May, 5, 23, 30)
	assert.Equal(t, day(2025, time.May, 6), u.Today(now))

	bad := &User{TZ: "Mars/Olympus"}
	assert.Equal(t, time.UTC, bad.Location())
}
