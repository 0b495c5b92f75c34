package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"task-planner/internal/recurrence"
)

// Task represents a single occurrence in the planner. Recurring tasks form
// chains: every spawned occurrence points at the chain root.
type Task struct {
	ID                string `gorm:"primaryKey;type:varchar(36)"`
	UserID            uint   `gorm:"index"`
	ProjectID         *uint  `gorm:"index"`
	AreaID            *uint  `gorm:"index"`
	Title             string
	Notes             string
	Tags              []string `gorm:"serializer:json"`
	Priority          int      `gorm:"default:0"`
	EstimatedDuration int      // minutes
	ReminderTime      *string  // HH:MM on the occurrence day
	ScheduledDate     *time.Time
	DueDate           *time.Time
	Recurrence        *recurrence.Recurrence `gorm:"serializer:json"`
	ParentTaskID      *string                `gorm:"index"`
	PreviousTaskID    *string                `gorm:"index"`
	OccurrenceIndex   int                    `gorm:"default:1"`
	IsCompleted       bool                   `gorm:"default:false"`
	CompletionDate    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// BeforeCreate assigns an identifier to drafts that have none yet.
func (t *Task) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

func (t Task) IsRecurring() bool {
	return t.Recurrence != nil && !t.Recurrence.IsZero()
}

// OccurrenceDate is the date the task is planned for: scheduled, else due.
func (t Task) OccurrenceDate() *time.Time {
	if t.ScheduledDate != nil {
		return t.ScheduledDate
	}
	return t.DueDate
}

// RootID is the identifier of the chain the task belongs to.
func (t Task) RootID() string {
	if t.ParentTaskID != nil && *t.ParentTaskID != "" {
		return *t.ParentTaskID
	}
	return t.ID
}

// Index is the 1-based position of the task in its chain.
func (t Task) Index() int {
	if t.OccurrenceIndex < 1 {
		return 1
	}
	return t.OccurrenceIndex
}

// ShortID is the prefix shown in chat.
func (t Task) ShortID() string {
	if len(t.ID) > 8 {
		return t.ID[:8]
	}
	return t.ID
}
