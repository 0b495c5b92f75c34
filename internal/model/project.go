package model

import "time"

// Project is a finite goal that owns a set of tasks, optionally inside an area.
type Project struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index:idx_user_project_title,unique"`
	AreaID    *uint  `gorm:"index"`
	Title     string `gorm:"index:idx_user_project_title,unique"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Tasks     []Task `gorm:"foreignKey:ProjectID"`
}
