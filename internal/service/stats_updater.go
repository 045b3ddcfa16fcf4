package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StatsUpdater periodically samples queue depth and prunes old monitoring data.
type StatsUpdater struct {
	monitoring    *MonitoringService
	entries       *EntryStore
	logger        *zap.Logger
	interval      time.Duration
	retentionDays int
	ticker        *time.Ticker
	done          chan struct{}
}

func NewStatsUpdater(monitoring *MonitoringService, entries *EntryStore, logger *zap.Logger, interval time.Duration, retentionDays int) *StatsUpdater {
	if interval <= 0 {
		interval = time.Hour
	}
	return &StatsUpdater{
		monitoring:    monitoring,
		entries:       entries,
		logger:        logger,
		interval:      interval,
		retentionDays: retentionDays,
		done:          make(chan struct{}),
	}
}

func (s *StatsUpdater) Start(ctx context.Context) {
	s.ticker = time.NewTicker(s.interval)

	go func() {
		s.logger.Info("Starting stats updater", zap.Duration("interval", s.interval))
		for {
			select {
			case <-s.done:
				s.logger.Info("Stats updater stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Stats updater stopped due to context cancellation")
				return
			case <-s.ticker.C:
				s.UpdateStats(ctx)
			}
		}
	}()
}

func (s *StatsUpdater) Stop() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.done)
	s.ticker = nil
}

// UpdateStats records one queue_depth gauge per status and drops data older
// than the retention window.
func (s *StatsUpdater) UpdateStats(ctx context.Context) {
	s.logger.Debug("Updating statistics")

	counts, err := s.entries.StatusCounts(ctx)
	if err != nil {
		s.logger.Error("Failed to count queue entries", zap.Error(err))
	}
	for status, n := range counts {
		if err := s.monitoring.RecordMetric("queue_depth", "gauge", float64(n), map[string]interface{}{
			"status": string(status),
		}); err != nil {
			s.logger.Error("Failed to record queue depth", zap.String("status", string(status)), zap.Error(err))
		}
	}

	if s.retentionDays > 0 {
		if err := s.monitoring.CleanupOldData(s.retentionDays); err != nil {
			s.logger.Error("Failed to cleanup old data", zap.Error(err))
		}
	}
}
