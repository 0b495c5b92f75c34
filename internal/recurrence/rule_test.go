package recurrence

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecurrence_JSON(t *testing.T) {
	custom := CustomRule(Custom{
		Interval:        2,
		Unit:            UnitWeek,
		SelectedDays:    []int{0, 3},
		OccurrenceCount: ptr(5),
	})

	data, err := json.Marshal(custom)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rule":"custom","custom":{"interval":2,"unit":"week","selectedDays":[0,3],"occurrenceCount":5}}`, string(data))

	var decoded Recurrence
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, custom, decoded)

	data, err = json.Marshal(Monthly())
	require.NoError(t, err)
	assert.JSONEq(t, `{"rule":"monthly"}`, string(data))
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, RuleMonthly, decoded.Rule())
	_, ok := decoded.Custom()
	assert.False(t, ok)
}

func TestRecurrence_JSONRejectsInvalid(t *testing.T) {
	var r Recurrence
	assert.Error(t, json.Unmarshal([]byte(`{"rule":"custom"}`), &r))
	assert.Error(t, json.Unmarshal([]byte(`{"rule":"hourly"}`), &r))
	assert.Error(t, json.Unmarshal([]byte(`{"rule":""}`), &r))
}

func TestCustomRule_CopiesParameters(t *testing.T) {
	days := []int{1, 2}
	day := 15
	r := CustomRule(Custom{Interval: 1, Unit: UnitWeek, SelectedDays: days, DayOfMonth: &day})

	days[0] = 6
	day = 1

	got, ok := r.Custom()
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, got.SelectedDays)
	assert.Equal(t, 15, *got.DayOfMonth)

	got.SelectedDays[1] = 5
	again, _ := r.Custom()
	assert.Equal(t, []int{1, 2}, again.SelectedDays)
}

func TestParseUnit(t *testing.T) {
	for raw, expected := range map[string]Unit{"day": UnitDay, "Weeks": UnitWeek, " month ": UnitMonth, "years": UnitYear} {
		got, err := ParseUnit(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, expected, got)
	}
	_, err := ParseUnit("hour")
	assert.Error(t, err)
}

func TestCustom_Validate(t *testing.T) {
	tests := []struct {
		name   string
		custom Custom
		target error
	}{
		{"valid weekly", Custom{Interval: 1, Unit: UnitWeek, SelectedDays: []int{0, 6}}, nil},
		{"valid monthly", Custom{Interval: 1, Unit: UnitMonth, MonthlyOption: ptr(MonthlySameDay), DayOfMonth: ptr(31)}, nil},
		{"stale month fields on a daily rule", Custom{Interval: 1, Unit: UnitDay, DayOfMonth: ptr(40)}, nil},
		{"zero interval", Custom{Interval: 0, Unit: UnitDay}, ErrInvalidInterval},
		{"largest interval", Custom{Interval: MaxInterval, Unit: UnitYear}, nil},
		{"interval above limit", Custom{Interval: MaxInterval + 1, Unit: UnitDay}, ErrIntervalTooLarge},
		{"overflowing interval", Custom{Interval: math.MaxInt64, Unit: UnitDay}, ErrIntervalTooLarge},
		{"unknown unit", Custom{Interval: 1, Unit: "hour"}, ErrInvalidUnit},
		{"weekday out of range", Custom{Interval: 1, Unit: UnitWeek, SelectedDays: []int{7}}, ErrInvalidWeekday},
		{"day of month out of range", Custom{Interval: 1, Unit: UnitMonth, DayOfMonth: ptr(0)}, ErrInvalidDayOfMonth},
		{"same day without day", Custom{Interval: 1, Unit: UnitMonth, MonthlyOption: ptr(MonthlySameDay)}, ErrMissingDayOfMonth},
		{"zero count", Custom{Interval: 1, Unit: UnitDay, OccurrenceCount: ptr(0)}, ErrInvalidCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.custom.Validate()
			if tt.target == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestCustom_CountLimit(t *testing.T) {
	_, ok := Custom{Interval: 1, Unit: UnitDay}.CountLimit()
	assert.False(t, ok)

	limit, ok := Custom{Interval: 1, Unit: UnitDay, OccurrenceCount: ptr(3)}.CountLimit()
	assert.True(t, ok)
	assert.Equal(t, 3, limit)

	end := date(2024, 5, 1)
	_, ok = Custom{Interval: 1, Unit: UnitDay, OccurrenceCount: ptr(3), EndDate: &end}.CountLimit()
	assert.False(t, ok, "end date wins over count")
}
