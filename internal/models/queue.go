package models

import (
	"time"
)

type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusPublished  QueueStatus = "published"
	QueueStatusFailed     QueueStatus = "failed"
)

// QueueEntry is one unit of publish work.
type QueueEntry struct {
	ID            string      `gorm:"primaryKey;size:64" json:"id"`
	PostID        string      `gorm:"size:64;not null;index" json:"post_id"`
	Platform      string      `gorm:"size:50;not null;index" json:"platform"`
	ScheduledAt   time.Time   `gorm:"not null;index" json:"scheduled_at"`
	Priority      int         `gorm:"not null" json:"priority"`
	Status        QueueStatus `gorm:"size:20;not null;index" json:"status"`
	Attempts      int         `gorm:"not null;default:0" json:"attempts"`
	LastAttemptAt *time.Time  `json:"last_attempt_at"`
	LastError     string      `gorm:"type:text" json:"last_error,omitempty"`
	NextRetryAt   *time.Time  `json:"next_retry_at,omitempty"`
	PublishID     string      `gorm:"size:255" json:"publish_id,omitempty"`
	URL           string      `gorm:"size:1000" json:"url,omitempty"`
	PublishedAt   *time.Time  `json:"published_at,omitempty"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}
