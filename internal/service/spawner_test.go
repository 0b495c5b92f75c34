package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
)

var fixedNow = time.Date(2025, 2, 7, 18, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newTestSpawner() *Spawner {
	calc := recurrence.NewCalculator(recurrence.NewCalendar(time.UTC, time.Monday))
	s := NewSpawner(calc, func() time.Time { return fixedNow })
	seq := 0
	s.newID = func() string {
		seq++
		return fmt.Sprintf("spawned-%d", seq)
	}
	return s
}

func TestSpawner_NonRecurringNeverSpawns(t *testing.T) {
	s := newTestSpawner()

	assert.True(t, s.Spawn(model.Task{ID: "a", Title: "once", ScheduledDate: ptr(fixedNow)}).IsAbsent())
	assert.True(t, s.Spawn(model.Task{ID: "b", Recurrence: &recurrence.Recurrence{}}).IsAbsent())
}

func TestSpawner_CopiesTaskIntoSuccessor(t *testing.T) {
	s := newTestSpawner()
	rule := recurrence.Weekly()
	scheduled := time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)
	root := model.Task{
		ID:                "root",
		UserID:            7,
		ProjectID:         ptr(uint(3)),
		AreaID:            ptr(uint(4)),
		Title:             "Weekly review",
		Notes:             "inbox zero",
		Tags:              []string{"review"},
		Priority:          2,
		EstimatedDuration: 45,
		ReminderTime:      ptr("08:30"),
		ScheduledDate:     &scheduled,
		Recurrence:        &rule,
		IsCompleted:       true,
		CompletionDate:    ptr(fixedNow),
	}

	next, ok := s.Spawn(root).Get()
	require.True(t, ok)

	assert.Equal(t, "spawned-1", next.ID)
	assert.Equal(t, uint(7), next.UserID)
	assert.Equal(t, uint(3), *next.ProjectID)
	assert.Equal(t, uint(4), *next.AreaID)
	assert.Equal(t, "Weekly review", next.Title)
	assert.Equal(t, "inbox zero", next.Notes)
	assert.Equal(t, []string{"review"}, next.Tags)
	assert.Equal(t, 2, next.Priority)
	assert.Equal(t, 45, next.EstimatedDuration)
	assert.Equal(t, "08:30", *next.ReminderTime)
	assert.Equal(t, rule, *next.Recurrence)
	assert.Equal(t, "root", *next.ParentTaskID)
	assert.Equal(t, "root", *next.PreviousTaskID)
	assert.Equal(t, 2, next.OccurrenceIndex)
	assert.Equal(t, time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC), *next.ScheduledDate)
	assert.Nil(t, next.DueDate)
	assert.False(t, next.IsCompleted)
	assert.Nil(t, next.CompletionDate)
	assert.Equal(t, fixedNow, next.CreatedAt)

	next.Tags[0] = "changed"
	*next.ReminderTime = "10:00"
	assert.Equal(t, []string{"review"}, root.Tags)
	assert.Equal(t, "08:30", *root.ReminderTime)
}

func TestSpawner_AdvancesWhicheverDateIsSet(t *testing.T) {
	s := newTestSpawner()
	rule := recurrence.Daily()
	due := time.Date(2025, 1, 10, 17, 0, 0, 0, time.UTC)

	next, ok := s.Spawn(model.Task{ID: "due-only", DueDate: &due, Recurrence: &rule}).Get()
	require.True(t, ok)
	assert.Nil(t, next.ScheduledDate)
	assert.Equal(t, due.AddDate(0, 0, 1), *next.DueDate)

	scheduled := time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC)
	next, ok = s.Spawn(model.Task{ID: "both", ScheduledDate: &scheduled, DueDate: &due, Recurrence: &rule}).Get()
	require.True(t, ok)
	assert.Equal(t, scheduled.AddDate(0, 0, 1), *next.ScheduledDate)
	assert.Equal(t, scheduled.AddDate(0, 0, 1), *next.DueDate)

	next, ok = s.Spawn(model.Task{ID: "undated", Recurrence: &rule}).Get()
	require.True(t, ok)
	assert.Nil(t, next.ScheduledDate)
	assert.Nil(t, next.DueDate)
}

func TestSpawner_UndatedTaskUsesClockAsBase(t *testing.T) {
	s := newTestSpawner()
	rule := recurrence.CustomRule(recurrence.Custom{Interval: 2, Unit: recurrence.UnitDay, EndDate: ptr(fixedNow.AddDate(0, 0, 1))})

	assert.True(t, s.Spawn(model.Task{ID: "undated", Recurrence: &rule}).IsAbsent(),
		"now+2 days is past the end date")
}

func TestSpawner_ChainPointsAtRoot(t *testing.T) {
	s := newTestSpawner()
	rule := recurrence.Daily()
	root := model.Task{ID: "R", ScheduledDate: ptr(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)), Recurrence: &rule}

	current := root
	var chain []model.Task
	for i := 0; i < 3; i++ {
		next, ok := s.Spawn(current).Get()
		require.True(t, ok)
		chain = append(chain, next)
		current = next
	}

	require.Len(t, chain, 3)
	for i, task := range chain {
		assert.Equal(t, "R", *task.ParentTaskID, "S%d", i+1)
		assert.Equal(t, i+2, task.OccurrenceIndex)
	}
	assert.Equal(t, "R", *chain[0].PreviousTaskID)
	assert.Equal(t, chain[0].ID, *chain[1].PreviousTaskID)
	assert.Equal(t, chain[1].ID, *chain[2].PreviousTaskID)
	assert.Equal(t, time.Date(2025, 1, 4, 9, 0, 0, 0, time.UTC), *chain[2].ScheduledDate)
}

func TestSpawner_OccurrenceCountEndsChain(t *testing.T) {
	s := newTestSpawner()
	rule := recurrence.CustomRule(recurrence.Custom{Interval: 1, Unit: recurrence.UnitDay, OccurrenceCount: ptr(3)})
	current := model.Task{ID: "R", ScheduledDate: ptr(fixedNow), Recurrence: &rule}

	total := 1
	for {
		next, ok := s.Spawn(current).Get()
		if !ok {
			break
		}
		total++
		current = next
		require.LessOrEqual(t, total, 3)
	}
	assert.Equal(t, 3, total)
	assert.Equal(t, 3, current.OccurrenceIndex)
}

func TestSpawner_EndDateWinsOverCount(t *testing.T) {
	s := newTestSpawner()
	rule := recurrence.CustomRule(recurrence.Custom{
		Interval:        1,
		Unit:            recurrence.UnitDay,
		OccurrenceCount: ptr(1),
		EndDate:         ptr(fixedNow.AddDate(0, 0, 5)),
	})

	_, ok := s.Spawn(model.Task{ID: "R", ScheduledDate: ptr(fixedNow), Recurrence: &rule}).Get()
	assert.True(t, ok)
}
