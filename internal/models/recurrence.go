package models

import (
	"time"

	"gorm.io/gorm"
)

type RecurrencePattern string

const (
	PatternDaily   RecurrencePattern = "daily"
	PatternWeekly  RecurrencePattern = "weekly"
	PatternMonthly RecurrencePattern = "monthly"
	// PatternCustom currently matches exactly like PatternWeekly.
	PatternCustom RecurrencePattern = "custom"
)

// RecurrenceDefinition describes a post that repeats on a schedule.
// Content studio owns these rows; the engine only writes the derived
// NextOccurrence and OccurrencesGenerated columns.
type RecurrenceDefinition struct {
	ID      string            `gorm:"primaryKey;size:64" json:"id"`
	Name    string            `gorm:"size:255;not null" json:"name"`
	Enabled bool              `gorm:"not null;index" json:"enabled"`
	Pattern RecurrencePattern `gorm:"size:20;not null" json:"pattern"`

	TimeOfDay  string   `gorm:"size:5;not null" json:"time_of_day"` // HH:MM
	Timezone   string   `gorm:"size:64" json:"timezone"`
	DaysOfWeek IntArray `gorm:"type:text" json:"days_of_week"` // 0 = Sunday
	DayOfMonth int      `json:"day_of_month"`

	Content  string      `gorm:"type:text" json:"content"`
	Media    StringArray `gorm:"type:text" json:"media"`
	Hashtags StringArray `gorm:"type:text" json:"hashtags"`

	Platforms      StringArray `gorm:"type:text" json:"platforms"`
	StartDate      Date        `gorm:"type:date;not null" json:"start_date"`
	EndDate        *Date       `gorm:"type:date" json:"end_date"`
	ExceptionDates DateList    `gorm:"type:text" json:"exception_dates"`

	NextOccurrence       *time.Time `json:"next_occurrence"`
	OccurrencesGenerated int        `gorm:"not null;default:0" json:"occurrences_generated"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
