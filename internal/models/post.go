package models

import (
	"time"
)

type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusReady     PostStatus = "ready"
	PostStatusQueued    PostStatus = "queued"
	PostStatusPublished PostStatus = "published"
	PostStatusFailed    PostStatus = "failed"
)

// Post is a single piece of content for one platform. Posts materialized from a
// recurrence carry its id; the (recurrence, platform, time) triple is unique.
type Post struct {
	ID             string      `gorm:"primaryKey;size:64" json:"id"`
	RecurrenceID   *string     `gorm:"size:64;uniqueIndex:idx_post_occurrence" json:"recurrence_id,omitempty"`
	Title          string      `gorm:"size:500" json:"title"`
	Content        string      `gorm:"type:text" json:"content"`
	Media          StringArray `gorm:"type:text" json:"media"`
	Hashtags       StringArray `gorm:"type:text" json:"hashtags"`
	Platform       string      `gorm:"size:50;not null;uniqueIndex:idx_post_occurrence" json:"platform"`
	ScheduledAt    time.Time   `gorm:"not null;index;uniqueIndex:idx_post_occurrence" json:"scheduled_at"`
	OccurrenceDate *Date       `gorm:"type:date" json:"occurrence_date,omitempty"`
	Status         PostStatus  `gorm:"size:20;not null;index" json:"status"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}
