// Package export renders tasks as an iCalendar to-do list.
package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
)

const productID = "-//task-planner//Telegram Task Planner//RU"

// Calendar encodes tasks as VTODO components. Open recurring occurrences
// carry an RRULE describing the rest of their chain; completed ones are
// exported as history without it.
func Calendar(tasks []model.Task, name string, cal recurrence.Calendar, now time.Time) ([]byte, error) {
	out := ical.NewCalendar()
	out.Props.SetText(ical.PropProductID, productID)
	out.Props.SetText(ical.PropVersion, "2.0")
	if name != "" {
		out.Props.SetText(ical.PropName, name)
		out.Props.SetText("X-WR-CALNAME", name)
	}

	zone := exportZone(cal)
	for _, task := range tasks {
		out.Children = append(out.Children, todo(task, cal, zone, now))
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(out); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

func todo(task model.Task, cal recurrence.Calendar, zone *time.Location, now time.Time) *ical.Component {
	comp := ical.NewComponent(ical.CompToDo)
	comp.Props.SetText(ical.PropUID, task.ID)
	comp.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	comp.Props.SetText(ical.PropSummary, task.Title)
	if task.Notes != "" {
		comp.Props.SetText(ical.PropDescription, task.Notes)
	}
	if task.ScheduledDate != nil {
		comp.Props.SetDateTime(ical.PropDateTimeStart, task.ScheduledDate.In(zone))
	}
	if task.DueDate != nil {
		comp.Props.SetDateTime(ical.PropDue, task.DueDate.In(zone))
	}

	if task.IsCompleted {
		comp.Props.SetText(ical.PropStatus, "COMPLETED")
		if task.CompletionDate != nil {
			comp.Props.SetDateTime(ical.PropCompleted, task.CompletionDate.UTC())
		}
	} else {
		comp.Props.SetText(ical.PropStatus, "NEEDS-ACTION")
	}

	if level := priorityLevel(task.Priority); level > 0 {
		comp.Props.SetText(ical.PropPriority, strconv.Itoa(level))
	}
	if len(task.Tags) > 0 {
		prop := ical.NewProp(ical.PropCategories)
		tags := make([]string, 0, len(task.Tags))
		for _, tag := range task.Tags {
			tags = append(tags, strings.ReplaceAll(tag, ",", " "))
		}
		prop.Value = strings.Join(tags, ",")
		comp.Props.Set(prop)
	}
	if root := task.RootID(); root != task.ID {
		comp.Props.SetText(ical.PropRelatedTo, root)
	}

	if task.IsRecurring() && !task.IsCompleted {
		if date := task.OccurrenceDate(); date != nil {
			if opt, ok := task.Recurrence.ROption(*date, task.Index(), cal); ok {
				comp.Props.SetRecurrenceRule(opt)
			}
		}
	}
	return comp
}

// priorityLevel maps 1 (low) .. 3 (high) onto RFC 5545 levels, where 1 is
// the highest and 0 means undefined.
func priorityLevel(p int) int {
	switch {
	case p <= 0:
		return 0
	case p == 1:
		return 9
	case p == 2:
		return 5
	default:
		return 1
	}
}

// exportZone avoids emitting TZID=Local, which no client can resolve.
func exportZone(cal recurrence.Calendar) *time.Location {
	if cal.Location == nil || cal.Location == time.Local {
		return time.UTC
	}
	return cal.Location
}
