package publisher

import (
	"context"
	"time"

	"github.com/ifuryst/cadence/internal/models"
)

// PublishContent represents the content to be published
type PublishContent struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	Media       []string          `json:"media"`
	Hashtags    []string          `json:"hashtags"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	Metadata    map[string]string `json:"metadata"`
}

// PublishResult represents the result of a publish operation. A result with
// Success false carries the failure reason in Error.
type PublishResult struct {
	Success     bool              `json:"success"`
	PublishID   string            `json:"publish_id,omitempty"`
	URL         string            `json:"url,omitempty"`
	Error       error             `json:"-"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	PublishedAt time.Time         `json:"published_at"`
}

// Succeeded builds a successful result.
func Succeeded(publishID, url string, at time.Time) *PublishResult {
	return &PublishResult{Success: true, PublishID: publishID, URL: url, PublishedAt: at}
}

// Failed builds a failed result.
func Failed(err error) *PublishResult {
	return &PublishResult{Success: false, Error: err}
}

// Reason returns the failure message, or "" for a success.
func (r *PublishResult) Reason() string {
	if r == nil {
		return "no result from publisher"
	}
	if r.Success {
		return ""
	}
	if r.Error == nil {
		return "unknown error"
	}
	return r.Error.Error()
}

// PublishConfig represents platform-specific configuration
type PublishConfig struct {
	PlatformName string            `json:"platform_name"`
	Enabled      bool              `json:"enabled"`
	Config       map[string]string `json:"config"`
}

// Publisher is the collaborator the queue processor calls. It has no retry or
// backoff of its own; RetryPublish is the path used for explicit retries.
type Publisher interface {
	Publish(ctx context.Context, content PublishContent, platform string) *PublishResult
	RetryPublish(ctx context.Context, content PublishContent, platform string) *PublishResult
}

// PlatformPublisher talks to one concrete destination.
type PlatformPublisher interface {
	GetPlatformName() string

	ValidateConfig(config PublishConfig) error

	PublishDirect(ctx context.Context, content PublishContent, config PublishConfig) (*PublishResult, error)
	RetryDirect(ctx context.Context, content PublishContent, config PublishConfig) (*PublishResult, error)
}

// FromPost converts a Post to PublishContent
func FromPost(post *models.Post) PublishContent {
	metadata := map[string]string{
		"post_id":  post.ID,
		"platform": post.Platform,
	}
	if post.RecurrenceID != nil {
		metadata["recurrence_id"] = *post.RecurrenceID
	}
	if post.OccurrenceDate != nil {
		metadata["occurrence_date"] = post.OccurrenceDate.String()
	}

	return PublishContent{
		ID:          post.ID,
		Title:       post.Title,
		Content:     post.Content,
		Media:       []string(post.Media),
		Hashtags:    []string(post.Hashtags),
		ScheduledAt: post.ScheduledAt,
		Metadata:    metadata,
	}
}
