package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/config"
	"github.com/ifuryst/cadence/internal/models"
	"github.com/ifuryst/cadence/internal/service/publisher"
	"github.com/ifuryst/cadence/internal/service/publisher/dryrun"
	"github.com/ifuryst/cadence/internal/service/publisher/webhook"
	"github.com/ifuryst/cadence/internal/service/queue"
	"github.com/ifuryst/cadence/pkg/clock"
	"github.com/ifuryst/cadence/pkg/util"
)

// PublisherService owns the publish manager and keeps posts and monitoring in
// step with queue outcomes.
type PublisherService struct {
	logger     *zap.Logger
	config     *config.PublisherConfig
	clock      clock.Clock
	manager    *publisher.Manager
	posts      *PostStore
	monitoring *MonitoringService
	policy     queue.RetryPolicy
}

func NewPublisherService(cfg *config.PublisherConfig, posts *PostStore, monitoring *MonitoringService, policy queue.RetryPolicy, clk clock.Clock, logger *zap.Logger) (*PublisherService, error) {
	service := &PublisherService{
		logger:     logger,
		config:     cfg,
		clock:      clk,
		manager:    publisher.NewPublishManager(logger),
		posts:      posts,
		monitoring: monitoring,
		policy:     policy,
	}

	if err := service.registerPublishers(); err != nil {
		return nil, err
	}

	return service, nil
}

func (s *PublisherService) registerPublishers() error {
	if s.config.Webhook.Enabled {
		pub := webhook.NewWebhookPublisher(s.logger, s.clock, config.Duration(s.config.Webhook.Timeout))
		cfg := publisher.PublishConfig{
			PlatformName: pub.GetPlatformName(),
			Enabled:      true,
			Config: map[string]string{
				"url":       s.config.Webhook.URL,
				"retry_url": s.config.Webhook.RetryURL,
				"token":     s.config.Webhook.Token,
			},
		}
		if err := s.manager.RegisterPublisher(pub, cfg, util.NormalizePlatforms(s.config.Webhook.Platforms)...); err != nil {
			return fmt.Errorf("failed to register webhook publisher: %w", err)
		}
		s.logger.Info("Webhook publisher registered and configured",
			zap.Strings("platforms", s.config.Webhook.Platforms))
	}

	if s.config.DryRun.Enabled {
		pub := dryrun.NewDryRunPublisher(s.logger, s.clock)
		cfg := publisher.PublishConfig{PlatformName: pub.GetPlatformName(), Enabled: true}
		if err := s.manager.RegisterPublisher(pub, cfg, util.NormalizePlatforms(s.config.DryRun.Platforms)...); err != nil {
			return fmt.Errorf("failed to register dry-run publisher: %w", err)
		}
		s.logger.Info("Dry-run publisher registered",
			zap.Strings("platforms", s.config.DryRun.Platforms))
	}

	return nil
}

// Publisher is the collaborator handed to the queue processor.
func (s *PublisherService) Publisher() publisher.Publisher {
	return s.manager
}

// GetAvailablePlatforms returns every platform with a registered publisher.
func (s *PublisherService) GetAvailablePlatforms() []string {
	platforms := s.manager.Platforms()
	sort.Strings(platforms)
	return platforms
}

// ObserveAttempt records metrics and errors for an attempt and moves the
// entry's post to published, or to failed once no retry is left.
func (s *PublisherService) ObserveAttempt(entry *models.QueueEntry, outcome queue.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tags := map[string]interface{}{
		"platform": entry.Platform,
		"post_id":  entry.PostID,
		"attempts": entry.Attempts,
	}

	switch outcome.Status {
	case models.QueueStatusPublished:
		s.recordMetric("publish_success", tags)
		s.setPostStatus(ctx, entry.PostID, models.PostStatusPublished)
	case models.QueueStatusFailed:
		s.recordMetric("publish_failure", tags)
		if err := s.monitoring.RecordError("ERROR", "queue",
			fmt.Sprintf("Failed to publish to %s", entry.Platform), entry.LastError,
			WithPlatform(entry.Platform),
			WithPost(entry.PostID),
			WithEntry(entry.ID),
			WithContext(tags)); err != nil {
			s.logger.Error("Failed to record publish error", zap.String("entry_id", entry.ID), zap.Error(err))
		}
		if s.policy.Exhausted(entry.Attempts) {
			s.setPostStatus(ctx, entry.PostID, models.PostStatusFailed)
		}
	}
}

func (s *PublisherService) recordMetric(name string, tags map[string]interface{}) {
	if err := s.monitoring.RecordMetric(name, "counter", 1, tags); err != nil {
		s.logger.Error("Failed to record metric", zap.String("metric", name), zap.Error(err))
	}
}

func (s *PublisherService) setPostStatus(ctx context.Context, postID string, status models.PostStatus) {
	if err := s.posts.SetStatus(ctx, status, postID); err != nil {
		s.logger.Error("Failed to update post status",
			zap.String("post_id", postID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}
