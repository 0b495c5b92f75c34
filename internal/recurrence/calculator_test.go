package recurrence

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func newCalc() *Calculator {
	return NewCalculator(NewCalendar(time.UTC, time.Monday))
}

func TestCalculator_BuiltIn(t *testing.T) {
	calc := newCalc()
	base := date(2024, 1, 15)

	tests := []struct {
		name     string
		rule     Recurrence
		expected time.Time
	}{
		{"daily", Daily(), date(2024, 1, 16)},
		{"weekly", Weekly(), date(2024, 1, 22)},
		{"monthly", Monthly(), date(2024, 2, 15)},
		{"yearly", Yearly(), date(2025, 1, 15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := calc.Next(base, tt.rule).Get()
			require.True(t, ok)
			assert.Equal(t, tt.expected, got)
			assert.True(t, got.After(base))

			viaRule, ok := calc.NextOccurrence(base, tt.rule.Rule(), nil).Get()
			require.True(t, ok)
			assert.Equal(t, got, viaRule)
		})
	}
}

func TestCalculator_BuiltInNeverTerminates(t *testing.T) {
	calc := newCalc()
	for _, rule := range []Recurrence{Daily(), Weekly(), Monthly(), Yearly()} {
		current := date(2024, 1, 31)
		for i := 0; i < 60; i++ {
			next, ok := calc.Next(current, rule).Get()
			require.True(t, ok, rule.Rule())
			require.True(t, next.After(current), rule.Rule())
			current = next
		}
	}
}

func TestCalculator_CustomDays(t *testing.T) {
	calc := newCalc()
	custom := CustomRule(Custom{Interval: 3, Unit: UnitDay})

	for _, base := range []time.Time{date(2024, 1, 1), date(2024, 2, 28), date(2023, 12, 30)} {
		got, ok := calc.Next(base, custom).Get()
		require.True(t, ok)
		assert.Equal(t, base.AddDate(0, 0, 3), got)
	}
}

func TestCalculator_CustomIgnoresStaleFields(t *testing.T) {
	calc := newCalc()
	custom := CustomRule(Custom{
		Interval:      2,
		Unit:          UnitDay,
		SelectedDays:  []int{4},
		MonthlyOption: ptr(MonthlyLastDay),
		DayOfMonth:    ptr(31),
	})

	got, ok := calc.Next(date(2024, 1, 1), custom).Get()
	require.True(t, ok)
	assert.Equal(t, date(2024, 1, 3), got)

	yearly := CustomRule(Custom{Interval: 1, Unit: UnitYear, SelectedDays: []int{0, 1}})
	got, ok = calc.Next(date(2024, 6, 1), yearly).Get()
	require.True(t, ok)
	assert.Equal(t, date(2025, 6, 1), got)
}

func TestCalculator_CustomMonth(t *testing.T) {
	calc := newCalc()

	tests := []struct {
		name     string
		custom   Custom
		base     time.Time
		expected time.Time
	}{
		{
			name:     "same day clamps to end of february",
			custom:   Custom{Interval: 1, Unit: UnitMonth, MonthlyOption: ptr(MonthlySameDay), DayOfMonth: ptr(31)},
			base:     date(2023, 1, 31),
			expected: date(2023, 2, 28),
		},
		{
			name:     "same day clamps to leap day",
			custom:   Custom{Interval: 1, Unit: UnitMonth, MonthlyOption: ptr(MonthlySameDay), DayOfMonth: ptr(31)},
			base:     date(2024, 1, 31),
			expected: date(2024, 2, 29),
		},
		{
			name:     "same day returns to 31 when it exists",
			custom:   Custom{Interval: 1, Unit: UnitMonth, MonthlyOption: ptr(MonthlySameDay), DayOfMonth: ptr(31)},
			base:     date(2024, 2, 29),
			expected: date(2024, 3, 31),
		},
		{
			name:     "same day uses configured day, not base day",
			custom:   Custom{Interval: 2, Unit: UnitMonth, MonthlyOption: ptr(MonthlySameDay), DayOfMonth: ptr(10)},
			base:     date(2024, 1, 3),
			expected: date(2024, 3, 10),
		},
		{
			name:     "last day ignores day of month",
			custom:   Custom{Interval: 1, Unit: UnitMonth, MonthlyOption: ptr(MonthlyLastDay), DayOfMonth: ptr(10)},
			base:     date(2024, 3, 5),
			expected: date(2024, 4, 30),
		},
		{
			name:     "last day across year",
			custom:   Custom{Interval: 3, Unit: UnitMonth, MonthlyOption: ptr(MonthlyLastDay)},
			base:     date(2024, 11, 30),
			expected: date(2025, 2, 28),
		},
		{
			name:     "no option keeps base day",
			custom:   Custom{Interval: 1, Unit: UnitMonth},
			base:     date(2024, 1, 17),
			expected: date(2024, 2, 17),
		},
		{
			name:     "no option clamps base day",
			custom:   Custom{Interval: 1, Unit: UnitMonth, DayOfMonth: ptr(3)},
			base:     date(2024, 3, 31),
			expected: date(2024, 4, 30),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := calc.Next(tt.base, CustomRule(tt.custom)).Get()
			require.True(t, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCalculator_CustomWeekSelectedDays(t *testing.T) {
	calc := newCalc()
	monday := date(2024, 1, 1)

	tests := []struct {
		name     string
		custom   Custom
		base     time.Time
		expected time.Time
	}{
		{
			name:     "next selected day in the same week",
			custom:   Custom{Interval: 1, Unit: UnitWeek, SelectedDays: []int{0, 2}},
			base:     monday,
			expected: date(2024, 1, 3),
		},
		{
			name:     "wraps into the next week",
			custom:   Custom{Interval: 1, Unit: UnitWeek, SelectedDays: []int{0, 2}},
			base:     date(2024, 1, 3),
			expected: date(2024, 1, 8),
		},
		{
			name:     "every two weeks skips a week",
			custom:   Custom{Interval: 2, Unit: UnitWeek, SelectedDays: []int{0}},
			base:     monday,
			expected: date(2024, 1, 15),
		},
		{
			name:     "every two weeks finishes the current week first",
			custom:   Custom{Interval: 2, Unit: UnitWeek, SelectedDays: []int{0, 2}},
			base:     monday,
			expected: date(2024, 1, 3),
		},
		{
			name:     "every two weeks after the last day of the week",
			custom:   Custom{Interval: 2, Unit: UnitWeek, SelectedDays: []int{0, 2}},
			base:     date(2024, 1, 3),
			expected: date(2024, 1, 15),
		},
		{
			name:     "base off the selected days",
			custom:   Custom{Interval: 1, Unit: UnitWeek, SelectedDays: []int{4}},
			base:     date(2024, 1, 6),
			expected: date(2024, 1, 12),
		},
		{
			name:     "out of range indexes are ignored",
			custom:   Custom{Interval: 1, Unit: UnitWeek, SelectedDays: []int{9, 4}},
			base:     monday,
			expected: date(2024, 1, 5),
		},
		{
			name:     "empty selection is a plain weekly interval",
			custom:   Custom{Interval: 3, Unit: UnitWeek},
			base:     date(2024, 1, 4),
			expected: date(2024, 1, 25),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := calc.Next(tt.base, CustomRule(tt.custom)).Get()
			require.True(t, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCalculator_CustomWeekLongInterval(t *testing.T) {
	calc := newCalc()
	rule := CustomRule(Custom{Interval: 52, Unit: UnitWeek, SelectedDays: []int{0}})

	// Wednesday 2024-01-03: the week of Monday 2024-01-01 plus 52 weeks.
	next, ok := calc.Next(date(2024, 1, 3), rule).Get()
	require.True(t, ok)
	assert.Equal(t, date(2024, 12, 30), next)

	far := CustomRule(Custom{Interval: MaxInterval, Unit: UnitWeek, SelectedDays: []int{0, 4}})
	next, ok = calc.Next(date(2024, 1, 1), far).Get()
	require.True(t, ok)
	assert.Equal(t, date(2024, 1, 5), next)
	next, ok = calc.Next(next, far).Get()
	require.True(t, ok)
	assert.Equal(t, date(2024, 1, 1).AddDate(0, 0, 7*MaxInterval), next)
}

func TestCalculator_SundayFirstWeek(t *testing.T) {
	calc := NewCalculator(NewCalendar(time.UTC, time.Sunday))
	// Index 0 is Sunday here.
	custom := CustomRule(Custom{Interval: 2, Unit: UnitWeek, SelectedDays: []int{0}})

	got, ok := calc.Next(date(2024, 1, 6), custom).Get()
	require.True(t, ok)
	assert.Equal(t, date(2024, 1, 14), got)
}

func TestCalculator_EndDate(t *testing.T) {
	calc := newCalc()
	base := date(2024, 1, 1)
	custom := CustomRule(Custom{Interval: 1, Unit: UnitDay, EndDate: ptr(base.AddDate(0, 0, 2))})

	got, ok := calc.Next(base, custom).Get()
	require.True(t, ok)
	assert.Equal(t, date(2024, 1, 2), got)

	got, ok = calc.Next(base.AddDate(0, 0, 1), custom).Get()
	require.True(t, ok, "an occurrence equal to the end date is allowed")
	assert.Equal(t, date(2024, 1, 3), got)

	assert.True(t, calc.Next(base.AddDate(0, 0, 2), custom).IsAbsent())
}

func TestCalculator_EndDateAppliesToEveryBranch(t *testing.T) {
	calc := newCalc()
	end := ptr(date(2024, 1, 20))

	tests := []struct {
		name   string
		custom Custom
		base   time.Time
	}{
		{"week with days", Custom{Interval: 1, Unit: UnitWeek, SelectedDays: []int{0}, EndDate: end}, date(2024, 1, 15)},
		{"week without days", Custom{Interval: 1, Unit: UnitWeek, EndDate: end}, date(2024, 1, 15)},
		{"month", Custom{Interval: 1, Unit: UnitMonth, MonthlyOption: ptr(MonthlyLastDay), EndDate: end}, date(2024, 1, 5)},
		{"year", Custom{Interval: 1, Unit: UnitYear, EndDate: end}, date(2024, 1, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, calc.Next(tt.base, CustomRule(tt.custom)).IsAbsent())
		})
	}
}

func TestCalculator_InvalidConfigurationFailsClosed(t *testing.T) {
	calc := newCalc()
	base := date(2024, 1, 1)

	tests := []struct {
		name   string
		custom Custom
	}{
		{"zero interval", Custom{Interval: 0, Unit: UnitDay}},
		{"negative interval", Custom{Interval: -2, Unit: UnitWeek, SelectedDays: []int{1}}},
		{"unknown unit", Custom{Interval: 1, Unit: Unit("hour")}},
		{"same day without day", Custom{Interval: 1, Unit: UnitMonth, MonthlyOption: ptr(MonthlySameDay)}},
		{"same day out of range", Custom{Interval: 1, Unit: UnitMonth, MonthlyOption: ptr(MonthlySameDay), DayOfMonth: ptr(32)}},
		{"unknown monthly option", Custom{Interval: 1, Unit: UnitMonth, MonthlyOption: ptr(MonthlyOption("firstMonday"))}},
		{"interval above limit", Custom{Interval: MaxInterval + 1, Unit: UnitDay}},
		{"overflowing days", Custom{Interval: math.MaxInt64, Unit: UnitDay}},
		{"overflowing weeks", Custom{Interval: math.MaxInt64 / 7, Unit: UnitWeek}},
		{"overflowing weeks with days", Custom{Interval: math.MaxInt64 / 7, Unit: UnitWeek, SelectedDays: []int{0}}},
		{"overflowing months", Custom{Interval: math.MaxInt64, Unit: UnitMonth}},
		{"overflowing years", Custom{Interval: math.MaxInt64 / 12, Unit: UnitYear}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, calc.Next(base, CustomRule(tt.custom)).IsAbsent())
		})
	}

	assert.True(t, calc.Next(base, Recurrence{}).IsAbsent())
	assert.True(t, calc.NextOccurrence(base, RuleCustom, nil).IsAbsent())
	assert.True(t, calc.NextOccurrence(base, Rule("hourly"), nil).IsAbsent())
}

func TestCalculator_FridayChainEndsAtEndDate(t *testing.T) {
	calc := newCalc()
	custom := CustomRule(Custom{
		Interval:     1,
		Unit:         UnitWeek,
		SelectedDays: []int{4},
		EndDate:      ptr(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
	})

	current := time.Date(2025, 2, 7, 0, 0, 0, 0, time.UTC)
	var chain []time.Time
	for {
		next, ok := calc.Next(current, custom).Get()
		if !ok {
			break
		}
		chain = append(chain, next)
		current = next
	}

	assert.Equal(t, []time.Time{
		time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 21, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
	}, chain)
}
