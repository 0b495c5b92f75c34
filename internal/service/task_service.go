package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
)

var ErrTitleRequired = errors.New("title is required")

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title             string
	Notes             string
	Area              string
	Project           string
	Tags              []string
	Priority          int
	EstimatedDuration int
	ReminderTime      *string
	ScheduledDate     *time.Time
	DueDate           *time.Time
	Recurrence        *recurrence.Recurrence
}

// ReminderScheduler keeps per-task reminders in line with task state.
type ReminderScheduler interface {
	ScheduleReminder(task model.Task)
	CancelReminder(taskID string)
}

// CompletionResult describes what completing a task did.
type CompletionResult struct {
	Task             *model.Task
	Successor        *model.Task
	Spawned          bool // Successor was created by this call
	AlreadyCompleted bool
}

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo    *repository.TaskRepository
	areaRepo    *repository.AreaRepository
	projectRepo *repository.ProjectRepository
	spawner     *Spawner
	reminders   ReminderScheduler
	log         *zap.SugaredLogger
}

func NewTaskService(taskRepo *repository.TaskRepository, areaRepo *repository.AreaRepository, projectRepo *repository.ProjectRepository, spawner *Spawner, reminders ReminderScheduler, log *zap.SugaredLogger) *TaskService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &TaskService{
		taskRepo:    taskRepo,
		areaRepo:    areaRepo,
		projectRepo: projectRepo,
		spawner:     spawner,
		reminders:   reminders,
		log:         log,
	}
}

func (s *TaskService) CreateTask(ctx context.Context, user *model.User, input TaskInput) (*model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if input.Recurrence != nil {
		if custom, ok := input.Recurrence.Custom(); ok {
			if err := custom.Validate(); err != nil {
				return nil, fmt.Errorf("recurrence: %w", err)
			}
		}
	}
	if input.ReminderTime != nil {
		if _, _, err := ParseClock(*input.ReminderTime); err != nil {
			return nil, fmt.Errorf("reminder: %w", err)
		}
	}

	var areaID *uint
	if input.Area != "" {
		area, err := s.areaRepo.GetOrCreate(ctx, user.ID, input.Area)
		if err != nil {
			return nil, err
		}
		if area != nil {
			areaID = &area.ID
		}
	}

	var projectID *uint
	if input.Project != "" {
		project, err := s.projectRepo.GetOrCreate(ctx, user.ID, input.Project, areaID)
		if err != nil {
			return nil, err
		}
		if project != nil {
			projectID = &project.ID
		}
	}

	task := model.Task{
		UserID:            user.ID,
		AreaID:            areaID,
		ProjectID:         projectID,
		Title:             title,
		Notes:             input.Notes,
		Tags:              input.Tags,
		Priority:          input.Priority,
		EstimatedDuration: input.EstimatedDuration,
		ReminderTime:      input.ReminderTime,
		ScheduledDate:     input.ScheduledDate,
		DueDate:           input.DueDate,
		Recurrence:        input.Recurrence,
		OccurrenceIndex:   1,
	}

	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}

	if s.reminders != nil {
		s.reminders.ScheduleReminder(task)
	}
	return &task, nil
}

func (s *TaskService) ListActive(ctx context.Context, user *model.User) ([]model.Task, error) {
	return s.taskRepo.ListActive(ctx, user.ID)
}

func (s *TaskService) ListAll(ctx context.Context, user *model.User) ([]model.Task, error) {
	return s.taskRepo.ListByUser(ctx, user.ID)
}

// GetTask resolves a full task id or a unique prefix of it.
func (s *TaskService) GetTask(ctx context.Context, user *model.User, ref string) (*model.Task, error) {
	return s.taskRepo.FindByRef(ctx, user.ID, ref)
}

// Chain returns every occurrence of the chain the referenced task belongs to.
func (s *TaskService) Chain(ctx context.Context, user *model.User, ref string) ([]model.Task, error) {
	task, err := s.taskRepo.FindByRef(ctx, user.ID, ref)
	if err != nil {
		return nil, err
	}
	return s.taskRepo.ListChain(ctx, user.ID, task.RootID())
}

// CompleteTask marks a task as done. On the first completion of a recurring
// task the next occurrence is created in the same transaction, unless one
// was already spawned before the task was reopened.
func (s *TaskService) CompleteTask(ctx context.Context, user *model.User, ref string, completedAt time.Time) (*CompletionResult, error) {
	var result CompletionResult
	err := s.taskRepo.Transaction(ctx, func(tx *repository.TaskRepository) error {
		task, err := tx.FindByRef(ctx, user.ID, ref)
		if err != nil {
			return err
		}
		result.Task = task

		if task.IsCompleted {
			result.AlreadyCompleted = true
			return nil
		}
		if err := tx.MarkCompleted(ctx, task, completedAt); err != nil {
			return err
		}
		if !task.IsRecurring() {
			return nil
		}

		existing, err := tx.FindSuccessor(ctx, task.ID)
		switch {
		case err == nil:
			result.Successor = existing
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("find successor: %w", err)
		}

		successor, ok := s.spawner.Spawn(*task).Get()
		if !ok {
			return nil
		}
		if err := tx.Create(ctx, &successor); err != nil {
			return err
		}
		result.Successor = &successor
		result.Spawned = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.reminders != nil && !result.AlreadyCompleted {
		s.reminders.CancelReminder(result.Task.ID)
	}
	switch {
	case result.Spawned:
		s.log.Infow("recurring task spawned", "task", result.Task.ID, "successor", result.Successor.ID,
			"root", result.Successor.RootID(), "index", result.Successor.OccurrenceIndex)
		if s.reminders != nil {
			s.reminders.ScheduleReminder(*result.Successor)
		}
	case result.Task.IsRecurring() && result.Successor == nil && !result.AlreadyCompleted:
		s.log.Infow("recurring chain ended", "task", result.Task.ID, "root", result.Task.RootID())
	}
	return &result, nil
}

// UncompleteTask reopens a completed task. Occurrences spawned from it are
// left as they are.
func (s *TaskService) UncompleteTask(ctx context.Context, user *model.User, ref string) (*model.Task, error) {
	task, err := s.taskRepo.FindByRef(ctx, user.ID, ref)
	if err != nil {
		return nil, err
	}
	if !task.IsCompleted {
		return task, nil
	}
	if err := s.taskRepo.MarkUncompleted(ctx, task); err != nil {
		return nil, err
	}
	if s.reminders != nil {
		s.reminders.ScheduleReminder(*task)
	}
	return task, nil
}

// DeleteTask removes a single occurrence and returns it.
func (s *TaskService) DeleteTask(ctx context.Context, user *model.User, ref string) (*model.Task, error) {
	task, err := s.taskRepo.FindByRef(ctx, user.ID, ref)
	if err != nil {
		return nil, err
	}
	if err := s.taskRepo.Delete(ctx, user.ID, task.ID); err != nil {
		return nil, err
	}
	if s.reminders != nil {
		s.reminders.CancelReminder(task.ID)
	}
	return task, nil
}
