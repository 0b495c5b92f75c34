package recurrence

import (
	"time"

	"github.com/samber/mo"
)

// Calendar holds the calendar configuration every date computation runs in.
// It is passed explicitly so results do not depend on the machine's locale.
type Calendar struct {
	Location     *time.Location
	FirstWeekday time.Weekday
}

// NewCalendar returns a calendar for the given zone. A nil zone means UTC.
func NewCalendar(loc *time.Location, firstWeekday time.Weekday) Calendar {
	return Calendar{Location: loc, FirstWeekday: firstWeekday}
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// In converts t into the calendar's zone.
func (c Calendar) In(t time.Time) time.Time {
	return t.In(c.location())
}

// AddUnits adds n units to t. Days and weeks keep the wall clock across DST
// changes. Months and years clamp to the last day of the target month, so
// Jan 31 + 1 month is the end of February.
func (c Calendar) AddUnits(t time.Time, unit Unit, n int) mo.Option[time.Time] {
	t = c.In(t)
	switch unit {
	case UnitDay:
		return mo.Some(t.AddDate(0, 0, n))
	case UnitWeek:
		return mo.Some(t.AddDate(0, 0, 7*n))
	case UnitMonth:
		return mo.Some(c.addMonths(t, n))
	case UnitYear:
		return mo.Some(c.addMonths(t, 12*n))
	default:
		return mo.None[time.Time]()
	}
}

func (c Calendar) addMonths(t time.Time, n int) time.Time {
	year, month := ShiftMonth(t.Year(), t.Month(), n)
	day := t.Day()
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	return c.at(year, month, day, t)
}

// StartOfDay returns midnight of the day containing t.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	t = c.In(t)
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, c.location())
}

// LastDayOfMonth returns the final day of the given month at clock's time of day.
func (c Calendar) LastDayOfMonth(year int, month time.Month, clock time.Time) time.Time {
	return c.at(year, month, DaysInMonth(year, month), c.In(clock))
}

// DateInMonth builds year-month-day at clock's time of day. It returns none
// when the day does not exist in that month instead of rolling over.
func (c Calendar) DateInMonth(year int, month time.Month, day int, clock time.Time) mo.Option[time.Time] {
	if day < 1 || day > DaysInMonth(year, month) {
		return mo.None[time.Time]()
	}
	return mo.Some(c.at(year, month, day, c.In(clock)))
}

// WeekdayIndex is the 0-based position of t's weekday, counted from FirstWeekday.
func (c Calendar) WeekdayIndex(t time.Time) int {
	return (int(c.In(t).Weekday()) - int(c.FirstWeekday) + 7) % 7
}

// WeekOfYearDelta counts calendar weeks between the week containing from
// and the week containing to. Days of the same week give 0.
func (c Calendar) WeekOfYearDelta(from, to time.Time) int {
	return (c.weekStart(to) - c.weekStart(from)) / 7
}

// weekStart is the civil day number of the first day of t's week.
func (c Calendar) weekStart(t time.Time) int {
	return civilDay(c.In(t)) - c.WeekdayIndex(t)
}

func (c Calendar) at(year int, month time.Month, day int, clock time.Time) time.Time {
	return time.Date(year, month, day, clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), c.location())
}

// DaysInMonth returns the number of days in the month.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ShiftMonth moves year/month by n months.
func ShiftMonth(year int, month time.Month, n int) (int, time.Month) {
	first := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	return first.Year(), first.Month()
}

// civilDay numbers days from the Unix epoch using only the calendar date.
func civilDay(t time.Time) int {
	year, month, day := t.Date()
	return int(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}
