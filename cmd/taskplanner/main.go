package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task-planner/internal/bot"
	"task-planner/internal/config"
	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
	"task-planner/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	db, err := repository.NewDB(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatalw("open database", "dsn", cfg.DatabaseURL, "error", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	areaRepo := repository.NewAreaRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	cal := recurrence.NewCalendar(cfg.Location, cfg.WeekStart)
	calc := recurrence.NewCalculator(cal)
	scheduler := service.NewSchedulerService(cfg.Location)

	reminderSvc := service.NewReminderService(taskRepo, areaRepo, userRepo, scheduler, calc, logger)
	taskSvc := service.NewTaskService(taskRepo, areaRepo, projectRepo, service.NewSpawner(calc, time.Now), reminderSvc, logger)
	areaSvc := service.NewAreaService(areaRepo, projectRepo)

	telegramBot, err := bot.New(&cfg, userRepo, areaSvc, taskSvc, reminderSvc, scheduler, cal, logger)
	if err != nil {
		logger.Fatalw("start bot", "error", err)
	}
	reminderSvc.SetNotifier(telegramBot)

	if err := telegramBot.ScheduleReports(); err != nil {
		logger.Fatalw("schedule reports", "error", err)
	}
	restored, err := reminderSvc.RestorePending(ctx)
	if err != nil {
		logger.Errorw("restore reminders", "error", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	logger.Infow("task planner bot started",
		"timezone", cal.Location.String(), "week_start", cfg.WeekStart, "report_interval", cfg.ReportInterval, "reminders", restored, "jobs", scheduler.Len())
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalw("bot stopped with error", "error", err)
	}
	logger.Info("shutdown complete")
}
