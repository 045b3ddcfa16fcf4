package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/cadence/internal/config"
	"github.com/ifuryst/cadence/internal/service/queue"
	"github.com/ifuryst/cadence/internal/service/recurrence"
	"github.com/ifuryst/cadence/pkg/clock"
)

// Services is the wired engine shared by the HTTP server and the CLI.
type Services struct {
	Definitions *DefinitionStore
	Posts       *PostStore
	Entries     *EntryStore
	Hints       *HintStore

	Engine    *recurrence.Engine
	Builder   *queue.Builder
	Processor *queue.Processor

	Publisher  *PublisherService
	Monitoring *MonitoringService
	Auth       *AuthService
	Scheduler  *Scheduler
	Stats      *StatsUpdater

	Clock    clock.Clock
	Location *time.Location
}

// RetryPolicy converts the queue retry settings.
func RetryPolicy(cfg *config.RetryConfig) queue.RetryPolicy {
	maxAttempts := queue.DefaultRetryPolicy().MaxAttempts
	if cfg.MaxAttempts != nil {
		maxAttempts = *cfg.MaxAttempts
	}
	return queue.RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseBackoff: config.Duration(cfg.BaseBackoff),
		MaxBackoff:  config.Duration(cfg.MaxBackoff),
		Multiplier:  cfg.Multiplier,
	}
}

func NewServices(cfg *config.Config, db *gorm.DB, clk clock.Clock, logger *zap.Logger) (*Services, error) {
	loc, err := clk.Location(cfg.Queue.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid queue timezone %q: %w", cfg.Queue.Timezone, err)
	}

	policy := RetryPolicy(&cfg.Queue.Retry)

	s := &Services{
		Definitions: NewDefinitionStore(db),
		Posts:       NewPostStore(db),
		Entries:     NewEntryStore(db),
		Hints:       NewHintStore(db),
		Engine:      recurrence.NewEngine(clk),
		Monitoring:  NewMonitoringService(db, clk, logger),
		Auth:        NewAuthService(logger, clk, cfg.Auth.TOTPSecret),
		Clock:       clk,
		Location:    loc,
	}

	s.Publisher, err = NewPublisherService(&cfg.Publisher, s.Posts, s.Monitoring, policy, clk, logger)
	if err != nil {
		return nil, err
	}

	s.Builder = queue.NewBuilder(s.Hints, clk, loc, logger)
	s.Processor = queue.NewProcessor(s.Entries, s.Posts, s.Publisher.Publisher(), clk, logger,
		queue.WithRetryPolicy(policy),
		queue.WithObserver(s.Publisher))

	s.Scheduler = NewScheduler(&cfg.Scheduler, SchedulerDeps{
		Definitions: s.Definitions,
		Posts:       s.Posts,
		Entries:     s.Entries,
		Engine:      s.Engine,
		Builder:     s.Builder,
		Processor:   s.Processor,
		Monitoring:  s.Monitoring,
		Clock:       clk,
		Location:    loc,
		Concurrency: cfg.Queue.Concurrency,
	}, logger)

	s.Stats = NewStatsUpdater(s.Monitoring, s.Entries, logger,
		config.Duration(cfg.Monitoring.StatsInterval), cfg.Monitoring.RetentionDays)

	return s, nil
}
