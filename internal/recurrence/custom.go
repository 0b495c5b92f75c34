package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// MonthlyOption picks the day a monthly custom rule lands on.
type MonthlyOption string

const (
	MonthlySameDay MonthlyOption = "sameDay"
	MonthlyLastDay MonthlyOption = "lastDay"
)

// MaxInterval bounds Interval so date arithmetic stays within time.Time's range.
const MaxInterval = 10000

var (
	ErrInvalidInterval   = errors.New("interval must be at least 1")
	ErrIntervalTooLarge  = fmt.Errorf("interval must be at most %d", MaxInterval)
	ErrInvalidUnit       = errors.New("unknown recurrence unit")
	ErrInvalidWeekday    = errors.New("weekday index must be within 0..6")
	ErrInvalidDayOfMonth = errors.New("day of month must be within 1..31")
	ErrMissingDayOfMonth = errors.New("same-day monthly rule needs a day of month")
	ErrInvalidCount      = errors.New("occurrence count must be at least 1")
)

// Custom holds the parameters of a user-defined recurrence. Fields that do
// not belong to Unit may be left over from editing and are ignored.
type Custom struct {
	Interval        int            `json:"interval"`
	Unit            Unit           `json:"unit"`
	SelectedDays    []int          `json:"selectedDays,omitempty"`
	MonthlyOption   *MonthlyOption `json:"monthlyOption,omitempty"`
	DayOfMonth      *int           `json:"dayOfMonth,omitempty"`
	EndDate         *time.Time     `json:"endDate,omitempty"`
	OccurrenceCount *int           `json:"occurrenceCount,omitempty"`
}

// Validate reports every configuration problem relevant to the active unit.
func (c Custom) Validate() error {
	var errs []error
	switch {
	case c.Interval < 1:
		errs = append(errs, ErrInvalidInterval)
	case c.Interval > MaxInterval:
		errs = append(errs, ErrIntervalTooLarge)
	}
	if !c.Unit.valid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidUnit, c.Unit))
	}
	switch c.Unit {
	case UnitWeek:
		for _, d := range c.SelectedDays {
			if d < 0 || d > 6 {
				errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidWeekday, d))
			}
		}
	case UnitMonth:
		if c.DayOfMonth != nil && (*c.DayOfMonth < 1 || *c.DayOfMonth > 31) {
			errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidDayOfMonth, *c.DayOfMonth))
		}
		if c.MonthlyOption != nil && *c.MonthlyOption == MonthlySameDay && c.DayOfMonth == nil {
			errs = append(errs, ErrMissingDayOfMonth)
		}
	}
	if c.EndDate == nil && c.OccurrenceCount != nil && *c.OccurrenceCount < 1 {
		errs = append(errs, ErrInvalidCount)
	}
	return errors.Join(errs...)
}

// CountLimit returns the occurrence count to enforce. An end date takes
// precedence, so the count only applies when no end date is set.
func (c Custom) CountLimit() (int, bool) {
	if c.EndDate != nil || c.OccurrenceCount == nil {
		return 0, false
	}
	return *c.OccurrenceCount, true
}

// weekdays returns the selected weekday indexes that are in range.
func (c Custom) weekdays() map[int]bool {
	set := make(map[int]bool, len(c.SelectedDays))
	for _, d := range c.SelectedDays {
		if d >= 0 && d <= 6 {
			set[d] = true
		}
	}
	return set
}

func (c Custom) clone() Custom {
	out := c
	out.SelectedDays = slices.Clone(c.SelectedDays)
	if c.MonthlyOption != nil {
		opt := *c.MonthlyOption
		out.MonthlyOption = &opt
	}
	if c.DayOfMonth != nil {
		day := *c.DayOfMonth
		out.DayOfMonth = &day
	}
	if c.EndDate != nil {
		end := *c.EndDate
		out.EndDate = &end
	}
	if c.OccurrenceCount != nil {
		count := *c.OccurrenceCount
		out.OccurrenceCount = &count
	}
	return out
}
