package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-planner/internal/recurrence"
	"task-planner/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageNotes
	stageArea
	stageScheduled
	stageDue
	stageRepeat
	stageCustomInterval
	stageCustomWeekdays
	stageCustomMonthDay
	stageCustomEnd
	stageReminder
)

const (
	repeatNone    = "без повтора"
	repeatDaily   = "каждый день"
	repeatWeekly  = "каждую неделю"
	repeatMonthly = "каждый месяц"
	repeatYearly  = "каждый год"
	repeatCustom  = "свой вариант"
)

// dialogReply is what the bot answers to one dialog step.
type dialogReply struct {
	text   string
	markup any
}

// taskDialog collects a new task step by step. It holds no Telegram state,
// so the whole flow can be driven from tests.
type taskDialog struct {
	stage  conversationStage
	input  service.TaskInput
	custom recurrence.Custom
	cal    recurrence.Calendar
	now    func() time.Time
}

func newTaskDialog(cal recurrence.Calendar, now func() time.Time) *taskDialog {
	if now == nil {
		now = time.Now
	}
	return &taskDialog{stage: stageTitle, cal: cal, now: now}
}

func (d *taskDialog) start() dialogReply {
	return dialogReply{"🆕 Создаём новую задачу.\n<b>Шаг 1:</b> как её назвать?", cancelKeyboard()}
}

// step consumes one user message. done reports that input is complete and
// the task can be created.
func (d *taskDialog) step(text string) (reply dialogReply, done bool) {
	text = strings.TrimSpace(text)
	skip := isSkipInput(text)

	switch d.stage {
	case stageTitle:
		if text == "" {
			return dialogReply{"Название не может быть пустым. Как назвать задачу?", cancelKeyboard()}, false
		}
		d.input.Title = text
		d.stage = stageNotes
		return dialogReply{"✏️ Добавь заметку к задаче (или нажми «Пропустить»).", skipKeyboard()}, false

	case stageNotes:
		if !skip {
			d.input.Notes = text
		}
		d.stage = stageArea
		return dialogReply{"🏷 Выбери область или отправь свою (можно «Пропустить»).", areaKeyboard()}, false

	case stageArea:
		if !skip {
			d.input.Area = text
		}
		d.stage = stageScheduled
		return dialogReply{"📅 Когда планируешь заняться? Дата <code>2025-11-30</code>, «сегодня» или «завтра» (или «Пропустить»).", dateKeyboard()}, false

	case stageScheduled:
		if !skip {
			date, err := parseDate(text, d.cal, d.now())
			if err != nil {
				return dialogReply{"Не могу распознать дату. Используй формат <code>2025-11-30</code> или «Пропустить».", dateKeyboard()}, false
			}
			d.input.ScheduledDate = &date
		}
		d.stage = stageDue
		return dialogReply{"⏰ Укажи дедлайн в формате <code>2025-11-30</code> (или «Пропустить»).", dateKeyboard()}, false

	case stageDue:
		if !skip {
			date, err := parseDate(text, d.cal, d.now())
			if err != nil {
				return dialogReply{"Не могу распознать дату. Используй формат <code>2025-11-30</code> или «Пропустить».", dateKeyboard()}, false
			}
			d.input.DueDate = &date
		}
		d.stage = stageRepeat
		return dialogReply{"🔁 Как часто повторять задачу?", repeatKeyboard()}, false

	case stageRepeat:
		rule, custom, ok := parseRepeatChoice(text)
		if !ok {
			return dialogReply{"Выбери вариант повтора на клавиатуре.", repeatKeyboard()}, false
		}
		if custom {
			d.stage = stageCustomInterval
			return dialogReply{"🔢 Как часто? Например: <code>2 недели</code>, <code>3 дня</code>, <code>1 месяц</code>.", tgbotapi.NewRemoveKeyboard(true)}, false
		}
		if rule != nil {
			d.input.Recurrence = rule
		}
		return d.askReminder()

	case stageCustomInterval:
		interval, unit, err := parseEvery(text)
		if err != nil {
			return dialogReply{"Не понял интервал. Пример: <code>2 недели</code>.", cancelKeyboard()}, false
		}
		d.custom = recurrence.Custom{Interval: interval, Unit: unit}
		switch unit {
		case recurrence.UnitWeek:
			d.stage = stageCustomWeekdays
			return dialogReply{"📆 По каким дням недели? Например: <code>пн, ср, пт</code> (или «Пропустить»).", skipKeyboard()}, false
		case recurrence.UnitMonth:
			d.stage = stageCustomMonthDay
			return dialogReply{"📆 Какого числа? 1–31 или «последний». Если числа нет в месяце, возьмём последний день (можно «Пропустить»).", monthDayKeyboard()}, false
		default:
			d.stage = stageCustomEnd
			return askEnd(), false
		}

	case stageCustomWeekdays:
		if !skip {
			days, err := service.ParseWeekdays(text, d.cal)
			if err != nil {
				return dialogReply{"Не понял дни недели. Пример: <code>пн, ср</code>.", skipKeyboard()}, false
			}
			d.custom.SelectedDays = days
		}
		d.stage = stageCustomEnd
		return askEnd(), false

	case stageCustomMonthDay:
		if !skip {
			option, day, err := parseMonthDay(text)
			if err != nil {
				return dialogReply{"Число должно быть от 1 до 31 или «последний».", monthDayKeyboard()}, false
			}
			d.custom.MonthlyOption = &option
			d.custom.DayOfMonth = day
		}
		d.stage = stageCustomEnd
		return askEnd(), false

	case stageCustomEnd:
		if !skip {
			endDate, count, err := parseEnd(text, d.cal, d.now())
			if err != nil {
				return dialogReply{"Укажи дату окончания <code>2025-12-31</code>, число повторений или «Пропустить».", skipKeyboard()}, false
			}
			d.custom.EndDate = endDate
			d.custom.OccurrenceCount = count
		}
		if err := d.custom.Validate(); err != nil {
			d.stage = stageCustomInterval
			return dialogReply{fmt.Sprintf("Повтор настроен некорректно (%s). Давай ещё раз: как часто?", escape(err.Error())), cancelKeyboard()}, false
		}
		rule := recurrence.CustomRule(d.custom)
		d.input.Recurrence = &rule
		return d.askReminder()

	case stageReminder:
		if !skip {
			if _, _, err := service.ParseClock(text); err != nil {
				return dialogReply{"Время в формате <code>09:30</code> (или «Пропустить»).", skipKeyboard()}, false
			}
			clock := text
			d.input.ReminderTime = &clock
		}
		d.stage = stageNone
		return dialogReply{}, true
	}

	d.stage = stageNone
	return dialogReply{"Диалог сброшен. Попробуй ещё раз через /newtask.", mainMenuKeyboard()}, false
}

// askReminder finishes the dialog for undated tasks, which have no day to
// remind on.
func (d *taskDialog) askReminder() (dialogReply, bool) {
	if d.input.ScheduledDate == nil && d.input.DueDate == nil {
		d.stage = stageNone
		return dialogReply{}, true
	}
	d.stage = stageReminder
	return dialogReply{"🔔 Во сколько напомнить в день задачи? Формат <code>09:30</code> (или «Пропустить»).", skipKeyboard()}, false
}

func askEnd() dialogReply {
	return dialogReply{"🏁 Когда остановиться? Дата окончания <code>2025-12-31</code>, число повторений (например <code>10</code>) или «Пропустить».", skipKeyboard()}
}

func parseRepeatChoice(text string) (rule *recurrence.Recurrence, custom bool, ok bool) {
	value := strings.ToLower(strings.TrimSpace(text))
	var r recurrence.Recurrence
	switch value {
	case repeatNone, "нет", "no", "-", strings.ToLower(btnSkip), "пропустить":
		return nil, false, true
	case repeatDaily, "daily":
		r = recurrence.Daily()
	case repeatWeekly, "weekly":
		r = recurrence.Weekly()
	case repeatMonthly, "monthly":
		r = recurrence.Monthly()
	case repeatYearly, "yearly":
		r = recurrence.Yearly()
	case repeatCustom, "custom":
		return nil, true, true
	default:
		return nil, false, false
	}
	return &r, false, true
}

var unitWords = map[string]recurrence.Unit{
	"день": recurrence.UnitDay, "дня": recurrence.UnitDay, "дней": recurrence.UnitDay, "дн": recurrence.UnitDay,
	"неделя": recurrence.UnitWeek, "недели": recurrence.UnitWeek, "недель": recurrence.UnitWeek, "неделю": recurrence.UnitWeek, "нед": recurrence.UnitWeek,
	"месяц": recurrence.UnitMonth, "месяца": recurrence.UnitMonth, "месяцев": recurrence.UnitMonth, "мес": recurrence.UnitMonth,
	"год": recurrence.UnitYear, "года": recurrence.UnitYear, "лет": recurrence.UnitYear,
}

// parseEvery reads "2 недели", "неделя" or "3 days".
func parseEvery(text string) (int, recurrence.Unit, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	interval := 1
	switch len(fields) {
	case 1:
	case 2:
		n, err := strconv.Atoi(fields[0])
		if err != nil || n < 1 || n > recurrence.MaxInterval {
			return 0, "", fmt.Errorf("invalid interval %q", fields[0])
		}
		interval = n
		fields = fields[1:]
	default:
		return 0, "", fmt.Errorf("expected \"<n> <unit>\", got %q", text)
	}

	word := strings.TrimSuffix(fields[0], ".")
	if unit, ok := unitWords[word]; ok {
		return interval, unit, nil
	}
	unit, err := recurrence.ParseUnit(word)
	if err != nil {
		return 0, "", err
	}
	return interval, unit, nil
}

func parseMonthDay(text string) (recurrence.MonthlyOption, *int, error) {
	value := strings.ToLower(strings.TrimSpace(text))
	if value == "последний" || value == "last" {
		return recurrence.MonthlyLastDay, nil, nil
	}
	day, err := strconv.Atoi(value)
	if err != nil || day < 1 || day > 31 {
		return "", nil, fmt.Errorf("invalid day of month %q", text)
	}
	return recurrence.MonthlySameDay, &day, nil
}

// parseEnd accepts either an end date or a total number of occurrences.
func parseEnd(text string, cal recurrence.Calendar, now time.Time) (*time.Time, *int, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
		if n < 1 {
			return nil, nil, fmt.Errorf("count must be positive")
		}
		return nil, &n, nil
	}
	date, err := parseDate(text, cal, now)
	if err != nil {
		return nil, nil, err
	}
	// The chain includes occurrences on the end date itself.
	end := date.AddDate(0, 0, 1).Add(-time.Second)
	return &end, nil, nil
}

func parseDate(text string, cal recurrence.Calendar, now time.Time) (time.Time, error) {
	value := strings.ToLower(strings.TrimSpace(text))
	today := cal.StartOfDay(now)
	switch value {
	case "сегодня", "today":
		return today, nil
	case "завтра", "tomorrow":
		return today.AddDate(0, 0, 1), nil
	}
	loc := cal.In(now).Location()
	return time.ParseInLocation("2006-01-02", value, loc)
}
