package recurrence

import (
	"time"

	"github.com/teambition/rrule-go"
)

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// ROption describes r as an RFC 5545 rule starting at dtstart, which is
// occurrence number index (1-based) of its chain. A count limit covers only
// the occurrences still ahead. It returns false for configurations that
// never produce an occurrence.
func (r Recurrence) ROption(dtstart time.Time, index int, cal Calendar) (*rrule.ROption, bool) {
	opt := &rrule.ROption{
		Dtstart:  cal.In(dtstart),
		Interval: 1,
		Wkst:     rruleWeekdays[cal.FirstWeekday],
	}

	if r.rule != RuleCustom {
		unit, ok := r.rule.unit()
		if !ok {
			return nil, false
		}
		opt.Freq = frequency(unit)
		return opt, true
	}

	cu := r.custom
	if cu.Interval < 1 || cu.Interval > MaxInterval || !cu.Unit.valid() {
		return nil, false
	}
	opt.Freq = frequency(cu.Unit)
	opt.Interval = cu.Interval

	switch cu.Unit {
	case UnitWeek:
		selected := cu.weekdays()
		for idx := 0; idx < 7; idx++ {
			if selected[idx] {
				opt.Byweekday = append(opt.Byweekday, rruleWeekdays[time.Weekday((int(cal.FirstWeekday)+idx)%7)])
			}
		}
	case UnitMonth:
		day := opt.Dtstart.Day()
		if cu.MonthlyOption != nil {
			switch *cu.MonthlyOption {
			case MonthlyLastDay:
				day = -1
			case MonthlySameDay:
				if cu.DayOfMonth == nil {
					return nil, false
				}
				day = *cu.DayOfMonth
			}
		}
		if day != -1 && (day < 1 || day > 31) {
			return nil, false
		}
		opt.Bymonthday, opt.Bysetpos = monthDays(day)
	}

	if cu.EndDate != nil {
		opt.Until = cal.In(*cu.EndDate)
	} else if limit, ok := cu.CountLimit(); ok {
		if index < 1 {
			index = 1
		}
		remaining := limit - index + 1
		if remaining < 1 {
			return nil, false
		}
		opt.Count = remaining
	}
	return opt, true
}

// monthDays picks BYMONTHDAY values that clamp to the month's last day:
// day 31 becomes "the last of 28..31 that exists".
func monthDays(day int) ([]int, []int) {
	if day <= 28 {
		return []int{day}, nil
	}
	days := make([]int, 0, day-27)
	for d := 28; d <= day; d++ {
		days = append(days, d)
	}
	return days, []int{-1}
}

func frequency(unit Unit) rrule.Frequency {
	switch unit {
	case UnitWeek:
		return rrule.WEEKLY
	case UnitMonth:
		return rrule.MONTHLY
	case UnitYear:
		return rrule.YEARLY
	default:
		return rrule.DAILY
	}
}
