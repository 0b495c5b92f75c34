package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"task-planner/internal/recurrence"
)

var weekdayShort = map[time.Weekday]string{
	time.Monday:    "пн",
	time.Tuesday:   "вт",
	time.Wednesday: "ср",
	time.Thursday:  "чт",
	time.Friday:    "пт",
	time.Saturday:  "сб",
	time.Sunday:    "вс",
}

var unitNames = map[recurrence.Unit]string{
	recurrence.UnitDay:   "дн.",
	recurrence.UnitWeek:  "нед.",
	recurrence.UnitMonth: "мес.",
	recurrence.UnitYear:  "г.",
}

// DescribeRecurrence renders a rule for chat messages, e.g. "каждые 2 нед.: пн, ср".
func DescribeRecurrence(r recurrence.Recurrence, cal recurrence.Calendar) string {
	switch r.Rule() {
	case recurrence.RuleDaily:
		return "каждый день"
	case recurrence.RuleWeekly:
		return "каждую неделю"
	case recurrence.RuleMonthly:
		return "каждый месяц"
	case recurrence.RuleYearly:
		return "каждый год"
	}

	custom, ok := r.Custom()
	if !ok {
		return "без повтора"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "каждые %d %s", custom.Interval, unitNames[custom.Unit])
	switch custom.Unit {
	case recurrence.UnitWeek:
		if days := WeekdayNames(custom.SelectedDays, cal); len(days) > 0 {
			b.WriteString(": " + strings.Join(days, ", "))
		}
	case recurrence.UnitMonth:
		switch {
		case custom.MonthlyOption != nil && *custom.MonthlyOption == recurrence.MonthlyLastDay:
			b.WriteString(", последний день")
		case custom.MonthlyOption != nil && custom.DayOfMonth != nil:
			fmt.Fprintf(&b, ", %d числа", *custom.DayOfMonth)
		}
	}
	if custom.EndDate != nil {
		fmt.Fprintf(&b, " до %s", cal.In(*custom.EndDate).Format("2006-01-02"))
	} else if count, ok := custom.CountLimit(); ok {
		fmt.Fprintf(&b, ", всего %d раз", count)
	}
	return b.String()
}

// WeekdayNames maps weekday indexes of cal to short names in week order.
func WeekdayNames(indexes []int, cal recurrence.Calendar) []string {
	selected := make(map[int]bool, len(indexes))
	for _, idx := range indexes {
		selected[idx] = true
	}
	var names []string
	for idx := 0; idx < 7; idx++ {
		if selected[idx] {
			names = append(names, weekdayShort[time.Weekday((int(cal.FirstWeekday)+idx)%7)])
		}
	}
	return names
}

// ParseWeekdays turns "пн, ср" or "mon wed" into weekday indexes of cal.
func ParseWeekdays(raw string, cal recurrence.Calendar) ([]int, error) {
	fields := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("no weekdays given")
	}

	seen := make(map[int]bool)
	var out []int
	for _, field := range fields {
		day, ok := lookupWeekday(field)
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", field)
		}
		idx := (int(day) - int(cal.FirstWeekday) + 7) % 7
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	return out, nil
}

func lookupWeekday(field string) (time.Weekday, bool) {
	for day, short := range weekdayShort {
		english := strings.ToLower(day.String())
		if field == short || field == english || field == english[:3] {
			return day, true
		}
	}
	return 0, false
}

// ParseClock parses "HH:MM".
func ParseClock(raw string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return hour, minute, nil
}
