package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"task-planner/internal/config"
	"task-planner/internal/export"
	"task-planner/internal/model"
	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
	"task-planner/internal/service"
)

const (
	cbCompletePrefix = "complete:"
	cbDeletePrefix   = "delete:"
)

const (
	noArea        = "Без области"
	noAreaKey     = "__no_area__"
	iconDefault   = "🟢"
	iconDue       = "⏳"
	iconOverdue   = "⚠️"
	iconRecurring = "♻️"
)

type confirmationAction int

const (
	actionComplete confirmationAction = iota
	actionDelete
)

type confirmationRequest struct {
	taskID string
	action confirmationAction
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api           *tgbotapi.BotAPI
	userRepo      *repository.UserRepository
	areaSvc       *service.AreaService
	taskSvc       *service.TaskService
	reminderSvc   *service.ReminderService
	scheduler     *service.SchedulerService
	cal           recurrence.Calendar
	config        *config.Config
	log           *zap.SugaredLogger
	conversations map[int64]*taskDialog
	confirmations map[int64]confirmationRequest
	reportJob     cron.EntryID
	summaryJob    cron.EntryID
	mu            sync.Mutex
}

func New(cfg *config.Config, userRepo *repository.UserRepository, areaSvc *service.AreaService, taskSvc *service.TaskService,
	reminderSvc *service.ReminderService, scheduler *service.SchedulerService, cal recurrence.Calendar, log *zap.SugaredLogger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Infow("bot authorized", "account", api.Self.UserName)

	return &Bot{
		api:           api,
		userRepo:      userRepo,
		areaSvc:       areaSvc,
		taskSvc:       taskSvc,
		reminderSvc:   reminderSvc,
		scheduler:     scheduler,
		cal:           cal,
		config:        cfg,
		log:           log,
		conversations: make(map[int64]*taskDialog),
		confirmations: make(map[int64]confirmationRequest),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Errorw("handle callback", "error", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Errorw("handle message", "error", err)
			}
		}
	}

	return nil
}

// Notify sends an HTML message. It lets the reminder service reach users.
func (b *Bot) Notify(chatID int64, text string) error {
	return b.sendText(chatID, text)
}

// ScheduleReports (re)registers the periodic report job with the current
// interval and, when SummaryTime is set, the morning summary.
func (b *Bot) ScheduleReports() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range []*cron.EntryID{&b.reportJob, &b.summaryJob} {
		if *id != 0 {
			b.scheduler.Remove(*id)
			*id = 0
		}
	}

	if b.config.ReportInterval > 0 {
		id, err := b.scheduler.ScheduleInterval(b.config.ReportInterval, b.reportJobFunc("report"))
		if err != nil {
			return err
		}
		b.reportJob = id
	}
	if b.config.SummaryTime != "" {
		id, err := b.scheduler.ScheduleDaily(b.config.SummaryTime, b.reportJobFunc("summary"))
		if err != nil {
			return fmt.Errorf("summary time: %w", err)
		}
		b.summaryJob = id
	}
	return nil
}

func (b *Bot) reportJobFunc(name string) func() {
	return func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := b.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			b.log.Errorw(name, "error", err)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Диалог создания задачи отменён. Я здесь, чтобы начать заново.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		b.log.Infow("command", "from", msg.From.ID, "command", msg.Command(), "args", msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if dialog := b.getConversation(msg.From.ID); dialog != nil {
		b.log.Debugw("conversation step", "from", msg.From.ID, "stage", dialog.stage)
		return b.handleConversation(ctx, msg, dialog)
	}

	return b.sendText(msg.Chat.ID, "Я пока не понял сообщение. Набери /newtask, чтобы добавить задачу, или /help для списка команд.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "report":
		return b.handleReport(ctx, msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "complete":
		return b.handleComplete(ctx, msg)
	case "undo":
		return b.handleUndo(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "chain":
		return b.handleChain(ctx, msg)
	case "areas":
		return b.handleAreas(ctx, msg)
	case "export":
		return b.handleExport(ctx, msg)
	case "interval":
		return b.handleInterval(msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Диалог создания задачи отменён.")
	default:
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "друг"
	}

	text := fmt.Sprintf(
		"👋 Привет, %s!\n<b>Я планировщик задач: помогу не забыть дела, в том числе повторяющиеся.</b>\n\nКоманды:\n"+
			"• /newtask — добавить новую задачу\n"+
			"• /tasks — показать текущие задачи\n"+
			"• /complete &lt;id&gt; — отметить задачу выполненной\n"+
			"• /areas — области и проекты\n"+
			"• /export — выгрузить задачи в календарь\n"+
			"• /help — все команды\n"+
			"• /cancel — отменить текущий ввод",
		escape(name),
	)

	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Подсказки</b>\n" +
		"• /newtask — добавить задачу пошагово, с повтором и напоминанием\n" +
		"• /tasks — показать активные задачи и завершить по кнопке\n" +
		"• /complete &lt;id&gt; — отметить задачу выполненной (хватит первых символов id)\n" +
		"• /undo &lt;id&gt; — вернуть задачу в работу\n" +
		"• /delete &lt;id&gt; — удалить задачу\n" +
		"• /chain &lt;id&gt; — все повторения задачи\n" +
		"• /areas — области и проекты\n" +
		"• /export — файл .ics для календаря\n" +
		"• /interval &lt;часы&gt; — как часто присылать отчёт (по умолчанию 5 часов)\n" +
		"• /report — прислать отчёт сейчас\n" +
		"• /cancel — отменить текущий ввод"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	text, err := b.reminderSvc.DailySummary(ctx, *user, time.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось сформировать отчёт: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID); err != nil {
		return err
	}
	b.log.Infow("start new task conversation", "user", msg.From.ID)
	dialog := newTaskDialog(b.cal, nil)
	b.setConversation(msg.From.ID, dialog)
	reply := dialog.start()
	return b.sendWithReplyMarkup(msg.Chat.ID, reply.text, reply.markup)
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message, dialog *taskDialog) error {
	reply, done := dialog.step(msg.Text)
	if done {
		b.clearConversation(msg.From.ID)
		return b.finishTaskCreation(ctx, msg.From, dialog.input, msg.Chat.ID)
	}
	if dialog.stage == stageNone {
		b.clearConversation(msg.From.ID)
	}
	return b.sendWithReplyMarkup(msg.Chat.ID, reply.text, reply.markup)
}

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, input service.TaskInput, chatID int64) error {
	user, err := b.ensureUser(ctx, from, chatID)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.CreateTask(ctx, user, input)
	if err != nil {
		return b.sendTextWithRemove(chatID, fmt.Sprintf("Не удалось сохранить задачу: %s", escape(err.Error())))
	}

	b.log.Infow("task created", "task", task.ID, "user", user.ID, "recurring", task.IsRecurring())

	var summary strings.Builder
	summary.WriteString("✅ <b>Задача сохранена</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> <code>%s</code>\n", task.ShortID()))
	summary.WriteString(fmt.Sprintf("• <b>Название:</b> %s\n", escape(normalizeTitle(task.Title))))
	if task.Notes != "" {
		summary.WriteString(fmt.Sprintf("• <b>Заметка:</b> %s\n", escape(task.Notes)))
	}
	if input.Area != "" {
		summary.WriteString(fmt.Sprintf("• <b>Область:</b> %s\n", escape(input.Area)))
	}
	if task.ScheduledDate != nil {
		summary.WriteString(fmt.Sprintf("• <b>Дата:</b> %s\n", b.formatDate(*task.ScheduledDate)))
	}
	if task.DueDate != nil {
		summary.WriteString(fmt.Sprintf("• <b>Дедлайн:</b> %s\n", b.formatDate(*task.DueDate)))
	}
	if task.IsRecurring() {
		summary.WriteString(fmt.Sprintf("• <b>Повтор:</b> %s\n", escape(service.DescribeRecurrence(*task.Recurrence, b.cal))))
	}
	if task.ReminderTime != nil {
		summary.WriteString(fmt.Sprintf("• <b>Напоминание:</b> %s\n", *task.ReminderTime))
	}

	if err := b.sendTextWithRemove(chatID, strings.TrimSpace(summary.String())); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, user)
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}

	b.log.Debugw("list tasks", "user", user.ID)
	return b.sendTaskList(ctx, msg.Chat.ID, user)
}

func (b *Bot) handleComplete(ctx context.Context, msg *tgbotapi.Message) error {
	ref := strings.TrimSpace(msg.CommandArguments())
	if ref == "" {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /complete 3f2a9c1e")
	}
	return b.askCompleteConfirmation(ctx, msg.Chat.ID, msg.From, ref)
}

func (b *Bot) handleUndo(ctx context.Context, msg *tgbotapi.Message) error {
	ref := strings.TrimSpace(msg.CommandArguments())
	if ref == "" {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /undo 3f2a9c1e")
	}
	user, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.UncompleteTask(ctx, user, ref)
	if err != nil {
		return b.sendText(msg.Chat.ID, b.describeLookupError(err))
	}
	b.log.Infow("task reopened", "task", task.ID, "user", user.ID)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("↩️ Задача «%s» снова в работе. Уже созданные повторения остались на месте.", escape(normalizeTitle(task.Title))))
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	ref := strings.TrimSpace(msg.CommandArguments())
	if ref == "" {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /delete 3f2a9c1e")
	}
	return b.askDeleteConfirmation(ctx, msg.Chat.ID, msg.From, ref)
}

func (b *Bot) handleChain(ctx context.Context, msg *tgbotapi.Message) error {
	ref := strings.TrimSpace(msg.CommandArguments())
	if ref == "" {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /chain 3f2a9c1e")
	}
	user, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}

	chain, err := b.taskSvc.Chain(ctx, user, ref)
	if err != nil {
		return b.sendText(msg.Chat.ID, b.describeLookupError(err))
	}
	return b.sendText(msg.Chat.ID, b.formatChain(chain))
}

func (b *Bot) handleAreas(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	overview, loose, err := b.areaSvc.Overview(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось получить области: %s", escape(err.Error())))
	}
	if len(overview) == 0 && len(loose) == 0 {
		return b.sendText(msg.Chat.ID, "Областей пока нет. Добавь их при создании задачи.")
	}

	var builder strings.Builder
	builder.WriteString("📂 <b>Области</b>\n")
	for _, item := range overview {
		builder.WriteString(fmt.Sprintf("• %s\n", areaLabel(item.Area.Name)))
		for _, project := range item.Projects {
			builder.WriteString(fmt.Sprintf("   ◦ %s\n", escape(strings.TrimSpace(project.Title))))
		}
	}
	if len(loose) > 0 {
		builder.WriteString("\n🗂 <b>Проекты без области</b>\n")
		for _, project := range loose {
			builder.WriteString(fmt.Sprintf("• %s\n", escape(strings.TrimSpace(project.Title))))
		}
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleExport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	tasks, err := b.taskSvc.ListAll(ctx, user)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось получить задачи: %s", escape(err.Error())))
	}
	if len(tasks) == 0 {
		return b.sendText(msg.Chat.ID, "Экспортировать пока нечего.")
	}

	data, err := export.Calendar(tasks, "Задачи", b.cal, time.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось собрать календарь: %s", escape(err.Error())))
	}

	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileBytes{Name: "tasks.ics", Bytes: data})
	doc.Caption = fmt.Sprintf("📤 Задач в файле: %d", len(tasks))
	if _, err := b.api.Send(doc); err != nil {
		return err
	}
	b.log.Infow("tasks exported", "user", user.ID, "tasks", len(tasks), "bytes", len(data))
	return nil
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		if req.action == actionDelete {
			return b.deleteTaskAndRefresh(ctx, msg.Chat.ID, msg.From, req.taskID)
		}
		return b.completeTaskAndRefresh(ctx, msg.Chat.ID, msg.From, req.taskID)
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendMenuPlaceholder(msg.Chat.ID)
	default:
		var prompt string
		if req.action == actionDelete {
			prompt = "Подтверди или отмени удаление задачи."
		} else {
			prompt = "Подтверди или отмени выполнение задачи."
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, prompt, confirmKeyboard())
	}
}

// SendDailyReports sends a summary to every known user.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		text, err := b.reminderSvc.DailySummary(ctx, user, now)
		if err != nil {
			b.log.Warnw("build summary", "user", user.TelegramID, "error", err)
			continue
		}
		if err := b.sendText(chatOf(user), text); err != nil {
			b.log.Warnw("send summary", "user", user.TelegramID, "error", err)
		}
	}
	return nil
}

func (b *Bot) handleInterval(msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		b.mu.Lock()
		current := int(b.config.ReportInterval.Hours())
		b.mu.Unlock()
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Текущий интервал отчётов: %d ч. Укажи число часов, например: /interval 4", current))
	}
	hours, err := strconv.Atoi(args)
	if err != nil || hours <= 0 {
		return b.sendText(msg.Chat.ID, "Интервал должен быть положительным числом часов, например /interval 6")
	}
	b.mu.Lock()
	b.config.ReportInterval = time.Duration(hours) * time.Hour
	b.mu.Unlock()
	if err := b.ScheduleReports(); err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось перенастроить отчёты: %s", escape(err.Error())))
	}
	b.log.Infow("report interval changed", "hours", hours, "by", msg.From.ID)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("Интервал уведомлений обновлён: каждые %d ч.", hours))
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User, chatID int64) (*model.User, error) {
	return b.userRepo.UpsertFromTelegram(ctx, from.ID, chatID, from.FirstName, from.LastName, from.UserName)
}

func chatOf(user model.User) int64 {
	if user.ChatID != 0 {
		return user.ChatID
	}
	return user.TelegramID
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	return b.sendMenuPlaceholder(chatID)
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup any) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMenuPlaceholder(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "🔹 Главное меню")
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func (b *Bot) setConversation(userID int64, dialog *taskDialog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = dialog
}

func (b *Bot) getConversation(userID int64) *taskDialog {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User) error {
	tasks, err := b.taskSvc.ListActive(ctx, user)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Не удалось получить задачи: %s", escape(err.Error())))
	}
	if len(tasks) == 0 {
		return b.sendText(chatID, "У тебя нет активных задач. Добавь новую через /newtask.")
	}

	areas, _ := b.areaSvc.List(ctx, user.ID)
	areaNames := make(map[uint]string)
	for _, area := range areas {
		areaNames[area.ID] = area.Name
	}

	now := b.cal.In(time.Now())
	groups, order := groupByArea(tasks, areaNames)

	var builder strings.Builder
	builder.WriteString("📋 <b>Текущие задачи</b>\n")
	builder.WriteString("Нажми на кнопку, чтобы отметить задачу выполненной или удалить её.\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, key := range order {
		section := groups[key]
		builder.WriteString(fmt.Sprintf("<b>%s</b>\n", section.name))
		for _, task := range section.tasks {
			builder.WriteString(b.formatTask(task, now))
			buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ %s · %s", task.ShortID(), shortTitle(task.Title, 20)), cbCompletePrefix+task.ID),
				tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", cbDeletePrefix+task.ID),
			))
		}
		builder.WriteByte('\n')
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(msg)
	return err
}

type areaGroup struct {
	name  string
	tasks []model.Task
}

// groupByArea buckets tasks by area, named areas alphabetically and the
// "no area" bucket last. Task order inside a bucket is kept.
func groupByArea(tasks []model.Task, areaNames map[uint]string) (map[string]*areaGroup, []string) {
	groups := make(map[string]*areaGroup)
	var order []string
	for _, task := range tasks {
		key, display := normalizedArea(task.AreaID, areaNames)
		group, ok := groups[key]
		if !ok {
			group = &areaGroup{name: display}
			groups[key] = group
			order = append(order, key)
		}
		group.tasks = append(group.tasks, task)
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i] == noAreaKey {
			return false
		}
		if order[j] == noAreaKey {
			return true
		}
		return order[i] < order[j]
	})
	return groups, order
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warnw("callback ack", "error", err)
	}

	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbCompletePrefix):
		b.log.Infow("callback complete request", "user", cb.From.ID, "task", strings.TrimPrefix(data, cbCompletePrefix))
		return b.askCompleteConfirmation(ctx, cb.Message.Chat.ID, cb.From, strings.TrimPrefix(data, cbCompletePrefix))
	case strings.HasPrefix(data, cbDeletePrefix):
		b.log.Infow("callback delete request", "user", cb.From.ID, "task", strings.TrimPrefix(data, cbDeletePrefix))
		return b.askDeleteConfirmation(ctx, cb.Message.Chat.ID, cb.From, strings.TrimPrefix(data, cbDeletePrefix))
	default:
		return nil
	}
}

func (b *Bot) askCompleteConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, ref string) error {
	user, err := b.ensureUser(ctx, from, chatID)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.GetTask(ctx, user, ref)
	if err != nil {
		return b.sendText(chatID, b.describeLookupError(err))
	}
	if task.IsCompleted {
		return b.sendText(chatID, "Задача уже выполнена.")
	}

	text := fmt.Sprintf("Отметить задачу «%s» (<code>%s</code>) как выполненную?", escape(normalizeTitle(task.Title)), task.ShortID())
	if task.IsRecurring() {
		text += "\nПосле этого появится следующее повторение."
	}
	b.setConfirmation(from.ID, confirmationRequest{taskID: task.ID, action: actionComplete})
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) askDeleteConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, ref string) error {
	user, err := b.ensureUser(ctx, from, chatID)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.GetTask(ctx, user, ref)
	if err != nil {
		return b.sendText(chatID, b.describeLookupError(err))
	}

	text := fmt.Sprintf("Удалить задачу «%s» (<code>%s</code>)?", escape(normalizeTitle(task.Title)), task.ShortID())
	b.setConfirmation(from.ID, confirmationRequest{taskID: task.ID, action: actionDelete})
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) completeTaskAndRefresh(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string) error {
	user, err := b.ensureUser(ctx, from, chatID)
	if err != nil {
		return err
	}

	result, err := b.taskSvc.CompleteTask(ctx, user, taskID, time.Now())
	if err != nil {
		return b.sendTextWithRemove(chatID, b.describeLookupError(err))
	}
	if result.AlreadyCompleted {
		return b.sendTextWithRemove(chatID, "Задача уже была выполнена.")
	}

	b.log.Infow("task completed", "task", result.Task.ID, "user", user.ID, "recurring", result.Task.IsRecurring())
	if err := b.sendTextWithRemove(chatID, b.describeCompletion(result)); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, user)
}

func (b *Bot) describeCompletion(result *service.CompletionResult) string {
	title := escape(normalizeTitle(result.Task.Title))
	switch {
	case !result.Task.IsRecurring():
		return fmt.Sprintf("✅ Задача «%s» выполнена.", title)
	case result.Successor == nil:
		return fmt.Sprintf("✅ Задача «%s» выполнена.\n🏁 Серия повторений завершена.", title)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("✅ Задача «%s» выполнена.\n", title))
	if result.Spawned {
		sb.WriteString(fmt.Sprintf("%s Следующее повторение <code>%s</code>", iconRecurring, result.Successor.ShortID()))
	} else {
		sb.WriteString(fmt.Sprintf("%s Следующее повторение уже создано: <code>%s</code>", iconRecurring, result.Successor.ShortID()))
	}
	if date := result.Successor.OccurrenceDate(); date != nil {
		sb.WriteString(" на " + b.formatDate(*date))
	}
	sb.WriteByte('.')
	return sb.String()
}

func (b *Bot) deleteTaskAndRefresh(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string) error {
	user, err := b.ensureUser(ctx, from, chatID)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.DeleteTask(ctx, user, taskID)
	if err != nil {
		return b.sendTextWithRemove(chatID, b.describeLookupError(err))
	}

	b.log.Infow("task deleted", "task", task.ID, "user", user.ID)
	if err := b.sendTextWithRemove(chatID, fmt.Sprintf("🗑 Задача «%s» удалена.", escape(normalizeTitle(task.Title)))); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, user)
}

func (b *Bot) describeLookupError(err error) string {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "Задача не найдена или уже удалена."
	case errors.Is(err, repository.ErrAmbiguousID):
		return "Под этот ID подходит несколько задач. Укажи больше символов."
	default:
		b.log.Errorw("task lookup", "error", err)
		return fmt.Sprintf("Ошибка: %s", escape(err.Error()))
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNewTask):
		return true, b.startNewTaskConversation(ctx, msg)
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelAreas):
		return true, b.handleAreas(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) formatDate(t time.Time) string {
	return b.cal.In(t).Format("2006-01-02")
}

func (b *Bot) formatTask(task model.Task, now time.Time) string {
	var sb strings.Builder
	icon := iconDefault
	if task.IsRecurring() {
		icon = iconRecurring
	}
	date := task.OccurrenceDate()
	if date != nil {
		d := b.cal.In(*date)
		if now.After(d) {
			icon = iconOverdue
		} else if d.Sub(now) <= 48*time.Hour {
			icon = iconDue
		}
	}
	sb.WriteString(fmt.Sprintf("%s <code>%s</code> %s\n", icon, task.ShortID(), escape(normalizeTitle(task.Title))))
	if task.ScheduledDate != nil {
		sb.WriteString(fmt.Sprintf("   📅 %s\n", b.formatDate(*task.ScheduledDate)))
	}
	if task.DueDate != nil {
		d := b.cal.In(*task.DueDate)
		if now.After(d) {
			sb.WriteString(fmt.Sprintf("   ⏰ Дедлайн: %s · <b>просрочено</b>\n", d.Format("2006-01-02")))
		} else {
			daysLeft := int(d.Sub(now).Hours()/24) + 1
			sb.WriteString(fmt.Sprintf("   ⏰ Дедлайн: %s · осталось ≈%d дн.\n", d.Format("2006-01-02"), daysLeft))
		}
	}
	if task.IsRecurring() {
		sb.WriteString(fmt.Sprintf("   🔄 %s · #%d\n", escape(service.DescribeRecurrence(*task.Recurrence, b.cal)), task.Index()))
	}
	if task.Notes != "" {
		sb.WriteString(fmt.Sprintf("   📝 %s\n", escape(task.Notes)))
	}
	return sb.String()
}

func (b *Bot) formatChain(chain []model.Task) string {
	if len(chain) == 0 {
		return "Повторений нет."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔗 <b>%s</b>\n", escape(normalizeTitle(chain[0].Title))))
	if chain[0].IsRecurring() {
		sb.WriteString(fmt.Sprintf("%s\n", escape(service.DescribeRecurrence(*chain[0].Recurrence, b.cal))))
	}
	sb.WriteByte('\n')
	for _, task := range chain {
		mark := "⬜️"
		if task.IsCompleted {
			mark = "✅"
		}
		date := "без даты"
		if d := task.OccurrenceDate(); d != nil {
			date = b.formatDate(*d)
		}
		sb.WriteString(fmt.Sprintf("%s #%d · %s · <code>%s</code>\n", mark, task.Index(), date, task.ShortID()))
	}
	return strings.TrimSpace(sb.String())
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = normalizeTitle(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizedArea(areaID *uint, areaNames map[uint]string) (string, string) {
	if areaID == nil {
		return noAreaKey, areaLabel(noArea)
	}
	if name, ok := areaNames[*areaID]; ok {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return noAreaKey, areaLabel(noArea)
		}
		return strings.ToLower(trimmed), areaLabel(trimmed)
	}
	return noAreaKey, areaLabel(noArea)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func areaLabel(name string) string {
	base := strings.TrimSpace(name)
	lower := strings.ToLower(base)
	var icon string
	switch lower {
	case "учеба":
		icon = "🎓"
	case "работа":
		icon = "💼"
	case "дом":
		icon = "🏠"
	case "здоровье":
		icon = "🩺"
	case "личное":
		icon = "🧩"
	case strings.ToLower(noArea):
		icon = "📁"
	default:
		icon = "🏷️"
	}
	return fmt.Sprintf("%s %s", icon, escape(normalizeTitle(base)))
}
