package service

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
)

// Spawner builds the next occurrence of a completed recurring task. It does
// not touch storage: callers insert the draft it returns.
type Spawner struct {
	calc  *recurrence.Calculator
	now   func() time.Time
	newID func() string
}

func NewSpawner(calc *recurrence.Calculator, now func() time.Time) *Spawner {
	if now == nil {
		now = time.Now
	}
	return &Spawner{calc: calc, now: now, newID: uuid.NewString}
}

// Spawn returns the successor draft of t, or none when t does not recur or
// its chain has ended.
func (s *Spawner) Spawn(t model.Task) mo.Option[model.Task] {
	if !t.IsRecurring() {
		return mo.None[model.Task]()
	}
	rule := *t.Recurrence

	if custom, ok := rule.Custom(); ok {
		if limit, ok := custom.CountLimit(); ok && t.Index() >= limit {
			return mo.None[model.Task]()
		}
	}

	now := s.now()
	base := now
	if date := t.OccurrenceDate(); date != nil {
		base = *date
	}

	next, ok := s.calc.Next(base, rule).Get()
	if !ok {
		return mo.None[model.Task]()
	}

	rootID := t.RootID()
	previousID := t.ID
	successor := model.Task{
		ID:                s.newID(),
		UserID:            t.UserID,
		ProjectID:         clonePtr(t.ProjectID),
		AreaID:            clonePtr(t.AreaID),
		Title:             t.Title,
		Notes:             t.Notes,
		Tags:              slices.Clone(t.Tags),
		Priority:          t.Priority,
		EstimatedDuration: t.EstimatedDuration,
		ReminderTime:      clonePtr(t.ReminderTime),
		Recurrence:        &rule,
		ParentTaskID:      &rootID,
		PreviousTaskID:    &previousID,
		OccurrenceIndex:   t.Index() + 1,
		CreatedAt:         now,
	}
	if t.ScheduledDate != nil {
		successor.ScheduledDate = clonePtr(&next)
	}
	if t.DueDate != nil {
		successor.DueDate = clonePtr(&next)
	}
	return mo.Some(successor)
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
