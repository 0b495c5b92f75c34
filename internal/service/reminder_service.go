package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/mo"
	"go.uber.org/zap"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
)

// Notifier delivers a rendered HTML message to a chat.
type Notifier interface {
	Notify(chatID int64, text string) error
}

// ReminderService builds summaries for interval reports and fires per-task
// reminders at the task's reminder time.
type ReminderService struct {
	taskRepo  *repository.TaskRepository
	areaRepo  *repository.AreaRepository
	userRepo  *repository.UserRepository
	scheduler *SchedulerService
	calc      *recurrence.Calculator
	notifier  Notifier
	log       *zap.SugaredLogger

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

func NewReminderService(taskRepo *repository.TaskRepository, areaRepo *repository.AreaRepository, userRepo *repository.UserRepository,
	scheduler *SchedulerService, calc *recurrence.Calculator, log *zap.SugaredLogger) *ReminderService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ReminderService{
		taskRepo:  taskRepo,
		areaRepo:  areaRepo,
		userRepo:  userRepo,
		scheduler: scheduler,
		calc:      calc,
		log:       log,
		jobs:      make(map[string]cron.EntryID),
	}
}

// SetNotifier plugs in the chat front end once it exists.
func (s *ReminderService) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// ReminderAt is the instant a task's reminder fires: its occurrence day at
// the reminder clock.
func ReminderAt(task model.Task, cal recurrence.Calendar) mo.Option[time.Time] {
	date := task.OccurrenceDate()
	if date == nil || task.ReminderTime == nil {
		return mo.None[time.Time]()
	}
	hour, minute, err := ParseClock(*task.ReminderTime)
	if err != nil {
		return mo.None[time.Time]()
	}
	d := cal.In(*date)
	return mo.Some(time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, d.Location()))
}

// ScheduleReminder registers a one-shot reminder for an open task, replacing
// any reminder already registered for it. Tasks without a reminder instant
// in the future are skipped.
func (s *ReminderService) ScheduleReminder(task model.Task) {
	if task.IsCompleted {
		s.CancelReminder(task.ID)
		return
	}
	at, ok := ReminderAt(task, s.calc.Calendar()).Get()
	if !ok || !at.After(time.Now()) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(task.ID)
	taskID, userID := task.ID, task.UserID
	// The job reads its own id under mu, after it has been stored below.
	entry := new(cron.EntryID)
	id, err := s.scheduler.ScheduleOnce(at, func() {
		s.release(taskID, entry)
		s.fire(userID, taskID)
	})
	if err != nil {
		s.log.Warnw("schedule reminder", "task", taskID, "error", err)
		return
	}
	*entry = id
	s.jobs[taskID] = id
	s.log.Debugw("reminder scheduled", "task", taskID, "at", at)
}

// CancelReminder drops the pending reminder of a task, if any.
func (s *ReminderService) CancelReminder(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(taskID)
}

func (s *ReminderService) cancelLocked(taskID string) {
	if id, ok := s.jobs[taskID]; ok {
		delete(s.jobs, taskID)
		s.scheduler.Remove(id)
	}
}

// release forgets a fired one-shot job and drops it from the cron table.
// A newer job registered for the same task stays in place.
func (s *ReminderService) release(taskID string, entry *cron.EntryID) {
	s.mu.Lock()
	id := *entry
	if current, ok := s.jobs[taskID]; ok && current == id {
		delete(s.jobs, taskID)
	}
	s.mu.Unlock()
	s.scheduler.Remove(id)
}

// RestorePending re-registers reminders of open tasks after a restart.
func (s *ReminderService) RestorePending(ctx context.Context) (int, error) {
	tasks, err := s.taskRepo.ListPendingReminders(ctx)
	if err != nil {
		return 0, err
	}
	for _, task := range tasks {
		s.ScheduleReminder(task)
	}
	return s.pending(), nil
}

func (s *ReminderService) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *ReminderService) fire(userID uint, taskID string) {
	s.mu.Lock()
	notifier := s.notifier
	s.mu.Unlock()

	ctx := context.Background()
	task, err := s.taskRepo.FindByID(ctx, userID, taskID)
	if err != nil {
		s.log.Debugw("reminder for missing task", "task", taskID, "error", err)
		return
	}
	if task.IsCompleted || notifier == nil {
		return
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		s.log.Warnw("reminder user lookup", "user", userID, "error", err)
		return
	}

	text := fmt.Sprintf("⏰ <b>Напоминание</b>\n%s", formatTask(*task, nil, s.calc.Calendar(), time.Now()))
	if err := notifier.Notify(user.ChatID, strings.TrimSpace(text)); err != nil {
		s.log.Warnw("send reminder", "task", taskID, "error", err)
	}
}

func (s *ReminderService) DailySummary(ctx context.Context, user model.User, now time.Time) (string, error) {
	tasks, err := s.taskRepo.ListActive(ctx, user.ID)
	if err != nil {
		return "", err
	}

	areas, err := s.areaRepo.ListByUser(ctx, user.ID)
	if err != nil {
		return "", err
	}
	areaNames := make(map[uint]string)
	for _, area := range areas {
		areaNames[area.ID] = area.Name
	}

	var oneOff, recurring []model.Task
	for _, task := range tasks {
		if task.IsRecurring() {
			recurring = append(recurring, task)
			continue
		}
		oneOff = append(oneOff, task)
	}

	cal := s.calc.Calendar()
	now = cal.In(now)

	var builder strings.Builder
	builder.WriteString("📋 <b>Отчёт по задачам</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("02.01.2006")))

	builder.WriteString("🔥 <b>Текущие задачи</b>\n")
	if len(oneOff) == 0 {
		builder.WriteString("— нет открытых задач\n")
	} else {
		for _, task := range oneOff {
			builder.WriteString(formatTask(task, areaNames, cal, now))
		}
	}

	builder.WriteString("\n♻️ <b>Регулярные задачи</b>\n")
	if len(recurring) == 0 {
		builder.WriteString("— нет регулярных задач\n")
	} else {
		for _, task := range recurring {
			builder.WriteString(s.formatRecurring(task, areaNames, now))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

func formatTask(task model.Task, areaNames map[uint]string, cal recurrence.Calendar, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	date := task.OccurrenceDate()
	if date != nil {
		d := cal.In(*date)
		switch {
		case now.After(d):
			icon = "⚠️"
		case d.Sub(now) <= 48*time.Hour:
			icon = "⏳"
		}
	}

	title := html.EscapeString(strings.TrimSpace(task.Title))
	sb.WriteString(fmt.Sprintf("%s %s <code>%s</code>", icon, title, task.ShortID()))
	sb.WriteString(areaSuffix(task, areaNames))

	if date != nil {
		d := cal.In(*date)
		if now.After(d) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ %s · <b>просрочено</b>", d.Format("2006-01-02")))
		} else {
			daysLeft := int(d.Sub(now).Hours()/24) + 1
			sb.WriteString(fmt.Sprintf("\n   ⏰ %s · осталось ≈%d дн.", d.Format("2006-01-02"), daysLeft))
		}
	}
	if task.ReminderTime != nil {
		sb.WriteString(fmt.Sprintf("\n   🔔 %s", *task.ReminderTime))
	}
	if notes := strings.TrimSpace(task.Notes); notes != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(notes)))
	}

	sb.WriteByte('\n')
	return sb.String()
}

func (s *ReminderService) formatRecurring(task model.Task, areaNames map[uint]string, now time.Time) string {
	cal := s.calc.Calendar()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("♻️ %s <code>%s</code>", html.EscapeString(strings.TrimSpace(task.Title)), task.ShortID()))
	sb.WriteString(areaSuffix(task, areaNames))
	sb.WriteString(fmt.Sprintf("\n   🔁 %s · #%d", DescribeRecurrence(*task.Recurrence, cal), task.Index()))

	if date := task.OccurrenceDate(); date != nil {
		d := cal.In(*date)
		marker := ""
		if now.After(d) {
			marker = " · <b>просрочено</b>"
		}
		sb.WriteString(fmt.Sprintf("\n   📆 Текущая дата: %s%s", d.Format("2006-01-02"), marker))
		if next, ok := s.calc.Next(*date, *task.Recurrence).Get(); ok {
			sb.WriteString(fmt.Sprintf("\n   ➡️ Следующая: %s", cal.In(next).Format("2006-01-02")))
		} else {
			sb.WriteString("\n   🏁 Последнее повторение")
		}
	}

	sb.WriteByte('\n')
	return sb.String()
}

func areaSuffix(task model.Task, areaNames map[uint]string) string {
	if task.AreaID == nil {
		return ""
	}
	name := strings.TrimSpace(areaNames[*task.AreaID])
	if name == "" {
		return ""
	}
	return fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(name))
}
