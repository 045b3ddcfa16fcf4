package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/cadence/internal/models"
	"github.com/ifuryst/cadence/pkg/clock"
)

type MonitoringService struct {
	db     *gorm.DB
	clock  clock.Clock
	logger *zap.Logger
}

func NewMonitoringService(db *gorm.DB, clk clock.Clock, logger *zap.Logger) *MonitoringService {
	return &MonitoringService{
		db:     db,
		clock:  clk,
		logger: logger,
	}
}

// RecordError stores an error log row.
func (m *MonitoringService) RecordError(level, source, title, message string, options ...ErrorLogOption) error {
	errorLog := &models.ErrorLog{
		Level:   level,
		Source:  source,
		Title:   title,
		Message: message,
	}

	for _, option := range options {
		option(errorLog)
	}

	return m.db.Create(errorLog).Error
}

type ErrorLogOption func(*models.ErrorLog)

func WithPlatform(platformName string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.PlatformName = platformName
	}
}

func WithPost(postID string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.PostID = &postID
	}
}

func WithEntry(entryID string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.EntryID = &entryID
	}
}

func WithRecurrence(recurrenceID string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.RecurrenceID = &recurrenceID
	}
}

// WithContext attaches arbitrary key/value context as JSON
func WithContext(context map[string]interface{}) ErrorLogOption {
	return func(e *models.ErrorLog) {
		if contextBytes, err := json.Marshal(context); err == nil {
			e.Context = string(contextBytes)
		}
	}
}

// RecordMetric stores one metric sample
func (m *MonitoringService) RecordMetric(name, metricType string, value float64, tags map[string]interface{}) error {
	var tagsJSON string
	if tags != nil {
		if tagsBytes, err := json.Marshal(tags); err == nil {
			tagsJSON = string(tagsBytes)
		}
	}

	metric := &models.MetricsSample{
		MetricName: name,
		MetricType: metricType,
		Value:      value,
		Tags:       tagsJSON,
		Timestamp:  m.clock.Now().UTC(),
	}

	return m.db.Create(metric).Error
}

// QueueSummary is the dashboard view of the publish queue.
type QueueSummary struct {
	ByStatus         map[models.QueueStatus]int64            `json:"by_status"`
	ByPlatform       map[string]map[models.QueueStatus]int64 `json:"by_platform"`
	PublishedToday   int64                                   `json:"published_today"`
	FailedToday      int64                                   `json:"failed_today"`
	UnresolvedErrors int64                                   `json:"unresolved_errors"`
	LastPublishedAt  *time.Time                              `json:"last_published_at"`
}

// QueueSummary counts queue entries by status and platform. "Today" starts at
// midnight in loc.
func (m *MonitoringService) QueueSummary(ctx context.Context, loc *time.Location) (*QueueSummary, error) {
	if loc == nil {
		loc = time.UTC
	}
	now := m.clock.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).UTC()

	db := m.db.WithContext(ctx)

	var rows []struct {
		Platform string
		Status   models.QueueStatus
		Count    int64
	}
	if err := db.Model(&models.QueueEntry{}).
		Select("platform, status, count(*) as count").
		Group("platform, status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count queue entries: %w", err)
	}

	summary := &QueueSummary{
		ByStatus:   make(map[models.QueueStatus]int64),
		ByPlatform: make(map[string]map[models.QueueStatus]int64),
	}
	for _, r := range rows {
		summary.ByStatus[r.Status] += r.Count
		if summary.ByPlatform[r.Platform] == nil {
			summary.ByPlatform[r.Platform] = make(map[models.QueueStatus]int64)
		}
		summary.ByPlatform[r.Platform][r.Status] = r.Count
	}

	db.Model(&models.QueueEntry{}).
		Where("status = ? AND published_at >= ?", models.QueueStatusPublished, today).
		Count(&summary.PublishedToday)
	db.Model(&models.QueueEntry{}).
		Where("status = ? AND last_attempt_at >= ?", models.QueueStatusFailed, today).
		Count(&summary.FailedToday)
	db.Model(&models.ErrorLog{}).Where("resolved = ?", false).Count(&summary.UnresolvedErrors)

	var last models.QueueEntry
	err := db.Where("status = ?", models.QueueStatusPublished).
		Order("published_at desc").
		Limit(1).
		Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load last published entry: %w", err)
	}
	if last.ID != "" {
		summary.LastPublishedAt = last.PublishedAt
	}

	return summary, nil
}

// GetRecentErrors returns the newest error logs first
func (m *MonitoringService) GetRecentErrors(ctx context.Context, limit int) ([]models.ErrorLog, error) {
	var errors []models.ErrorLog
	err := m.db.WithContext(ctx).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&errors).Error
	return errors, err
}

func (m *MonitoringService) ResolveError(ctx context.Context, id uint) error {
	now := m.clock.Now().UTC()
	result := m.db.WithContext(ctx).Model(&models.ErrorLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"resolved": true, "resolved_at": now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("error log %d not found", id)
	}
	return nil
}

// CleanupOldData drops metric samples and resolved errors older than daysToKeep.
func (m *MonitoringService) CleanupOldData(daysToKeep int) error {
	cutoffDate := m.clock.Now().UTC().AddDate(0, 0, -daysToKeep)

	if err := m.db.Where("timestamp < ?", cutoffDate).Delete(&models.MetricsSample{}).Error; err != nil {
		return fmt.Errorf("failed to cleanup metrics samples: %w", err)
	}

	if err := m.db.Where("created_at < ? AND resolved = ?", cutoffDate, true).Delete(&models.ErrorLog{}).Error; err != nil {
		return fmt.Errorf("failed to cleanup resolved errors: %w", err)
	}

	return nil
}
