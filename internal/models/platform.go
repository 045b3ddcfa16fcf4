package models

import (
	"time"
)

// BestTimeHint is an analytics-derived engagement slot for a platform.
type BestTimeHint struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Platform        string    `gorm:"size:50;not null;index" json:"platform"`
	DayOfWeek       int       `gorm:"not null" json:"day_of_week"`
	Hour            int       `gorm:"not null" json:"hour"`
	EngagementScore float64   `gorm:"not null" json:"engagement_score"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
