package recurrence

import (
	"time"

	"github.com/samber/mo"
)

// Calculator computes the next occurrence of a recurrence. A none result
// means the chain ends: the rule terminated, or its configuration cannot
// produce a date.
type Calculator struct {
	cal Calendar
}

func NewCalculator(cal Calendar) *Calculator {
	return &Calculator{cal: cal}
}

func (c *Calculator) Calendar() Calendar {
	return c.cal
}

// Next returns the first occurrence of r strictly after base.
func (c *Calculator) Next(base time.Time, r Recurrence) mo.Option[time.Time] {
	if r.rule == RuleCustom {
		return c.nextCustom(base, r.custom)
	}
	unit, ok := r.rule.unit()
	if !ok {
		return mo.None[time.Time]()
	}
	return c.cal.AddUnits(base, unit, 1)
}

// NextOccurrence is Next for callers holding the rule and its custom
// parameters separately. A custom rule without parameters yields none.
func (c *Calculator) NextOccurrence(base time.Time, rule Rule, custom *Custom) mo.Option[time.Time] {
	if rule != RuleCustom {
		built, err := BuiltIn(rule)
		if err != nil {
			return mo.None[time.Time]()
		}
		return c.Next(base, built)
	}
	if custom == nil {
		return mo.None[time.Time]()
	}
	return c.nextCustom(base, *custom)
}

func (c *Calculator) nextCustom(base time.Time, cu Custom) mo.Option[time.Time] {
	if cu.Interval < 1 || cu.Interval > MaxInterval {
		return mo.None[time.Time]()
	}

	var candidate mo.Option[time.Time]
	switch cu.Unit {
	case UnitWeek:
		if days := cu.weekdays(); len(days) > 0 {
			candidate = c.nextSelectedWeekday(base, cu.Interval, days)
		} else {
			candidate = c.cal.AddUnits(base, UnitWeek, cu.Interval)
		}
	case UnitMonth:
		candidate = c.nextMonthDay(base, cu)
	default:
		candidate = c.cal.AddUnits(base, cu.Unit, cu.Interval)
	}

	next, ok := candidate.Get()
	if !ok || !next.After(base) {
		return mo.None[time.Time]()
	}
	if cu.EndDate != nil && next.After(*cu.EndDate) {
		return mo.None[time.Time]()
	}
	return mo.Some(next)
}

// nextSelectedWeekday returns the next selected day later in base's own
// week, or else the first selected day of the week interval weeks after
// base's week.
func (c *Calculator) nextSelectedWeekday(base time.Time, interval int, days map[int]bool) mo.Option[time.Time] {
	base = c.cal.In(base)
	offset := c.cal.WeekdayIndex(base)
	for idx := offset + 1; idx < 7; idx++ {
		if days[idx] {
			return mo.Some(base.AddDate(0, 0, idx-offset))
		}
	}
	weekStart := base.AddDate(0, 0, 7*interval-offset)
	for idx := 0; idx < 7; idx++ {
		if days[idx] {
			return mo.Some(weekStart.AddDate(0, 0, idx))
		}
	}
	return mo.None[time.Time]()
}

func (c *Calculator) nextMonthDay(base time.Time, cu Custom) mo.Option[time.Time] {
	base = c.cal.In(base)
	year, month := ShiftMonth(base.Year(), base.Month(), cu.Interval)

	option := MonthlySameDay
	day := base.Day()
	if cu.MonthlyOption != nil {
		option = *cu.MonthlyOption
		if option == MonthlySameDay {
			if cu.DayOfMonth == nil {
				return mo.None[time.Time]()
			}
			day = *cu.DayOfMonth
		}
	}

	switch option {
	case MonthlyLastDay:
		return mo.Some(c.cal.LastDayOfMonth(year, month, base))
	case MonthlySameDay:
		if day < 1 || day > 31 {
			return mo.None[time.Time]()
		}
		return mo.Some(c.cal.DateInMonth(year, month, day, base).
			OrElse(c.cal.LastDayOfMonth(year, month, base)))
	default:
		return mo.None[time.Time]()
	}
}
