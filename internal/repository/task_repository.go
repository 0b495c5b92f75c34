package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"task-planner/internal/model"
)

// ErrAmbiguousID is returned when a short id matches more than one task.
var ErrAmbiguousID = errors.New("ambiguous task id")

const minRefLen = 4

const occurrenceOrder = "COALESCE(scheduled_date, due_date) IS NULL, COALESCE(scheduled_date, due_date) ASC, created_at DESC"

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Transaction runs fn with a repository bound to a single transaction.
func (r *TaskRepository) Transaction(ctx context.Context, fn func(tx *TaskRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&TaskRepository{db: tx})
	})
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID uint, taskID string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// FindByRef resolves a full id or a unique id prefix of at least four characters.
func (r *TaskRepository) FindByRef(ctx context.Context, userID uint, ref string) (*model.Task, error) {
	ref = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ref), "#")))
	if len(ref) < minRefLen || strings.Trim(ref, "0123456789abcdef-") != "" {
		return nil, gorm.ErrRecordNotFound
	}

	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id LIKE ?", userID, ref+"%").
		Limit(2).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("find task %q: %w", ref, err)
	}
	switch len(tasks) {
	case 0:
		return nil, gorm.ErrRecordNotFound
	case 1:
		return &tasks[0], nil
	default:
		if task, err := r.FindByID(ctx, userID, ref); err == nil {
			return task, nil
		}
		return nil, ErrAmbiguousID
	}
}

// ListActive returns open tasks ordered by occurrence date, undated last.
func (r *TaskRepository) ListActive(ctx context.Context, userID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND is_completed = ?", userID, false).
		Order(occurrenceOrder).
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListByUser returns every task of the user, completed ones included.
func (r *TaskRepository) ListByUser(ctx context.Context, userID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order(occurrenceOrder).Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListChain returns the root and every occurrence spawned from it, oldest first.
func (r *TaskRepository) ListChain(ctx context.Context, userID uint, rootID string) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND (id = ? OR parent_task_id = ?)", userID, rootID, rootID).
		Order("occurrence_index ASC, created_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListPendingReminders returns open tasks with a reminder time, across users.
func (r *TaskRepository) ListPendingReminders(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("is_completed = ? AND reminder_time IS NOT NULL", false).
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// FindSuccessor returns the occurrence spawned from taskID, if any.
func (r *TaskRepository) FindSuccessor(ctx context.Context, taskID string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("previous_task_id = ?", taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) MarkCompleted(ctx context.Context, task *model.Task, completedAt time.Time) error {
	task.IsCompleted = true
	task.CompletionDate = &completedAt
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

func (r *TaskRepository) MarkUncompleted(ctx context.Context, task *model.Task) error {
	task.IsCompleted = false
	task.CompletionDate = nil
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("reopen task: %w", err)
	}
	return nil
}

// Delete removes a task for the given user. Occurrences spawned from it stay.
func (r *TaskRepository) Delete(ctx context.Context, userID uint, taskID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).
		Delete(&model.Task{}).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
