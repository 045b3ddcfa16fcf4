package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/config"
	"github.com/ifuryst/cadence/internal/models"
	"github.com/ifuryst/cadence/internal/service/queue"
	"github.com/ifuryst/cadence/internal/service/recurrence"
	"github.com/ifuryst/cadence/pkg/clock"
)

// TickReport summarizes one scheduler pass.
type TickReport struct {
	DefinitionsRefreshed int           `json:"definitions_refreshed"`
	InvalidDefinitions   int           `json:"invalid_definitions"`
	PostsMaterialized    int           `json:"posts_materialized"`
	PostsDropped         int           `json:"posts_dropped"`
	EntriesQueued        int           `json:"entries_queued"`
	Published            int           `json:"published"`
	Failed               int           `json:"failed"`
	Retried              int           `json:"retried"`
	Duration             time.Duration `json:"duration"`
}

type SchedulerDeps struct {
	Definitions *DefinitionStore
	Posts       *PostStore
	Entries     *EntryStore
	Engine      *recurrence.Engine
	Builder     *queue.Builder
	Processor   *queue.Processor
	Monitoring  *MonitoringService
	Clock       clock.Clock
	Location    *time.Location
	Concurrency int
}

type Scheduler struct {
	config *config.SchedulerConfig
	deps   SchedulerDeps
	logger *zap.Logger
	ticker *time.Ticker
	stopCh chan struct{}

	// one tick at a time
	running  sync.Mutex
	stopOnce sync.Once
}

func NewScheduler(cfg *config.SchedulerConfig, deps SchedulerDeps, logger *zap.Logger) *Scheduler {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Scheduler{
		config: cfg,
		deps:   deps,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.config.Enabled != nil && !*s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	interval, err := time.ParseDuration(s.config.Interval)
	if err != nil {
		s.logger.Error("Invalid scheduler interval", zap.String("interval", s.config.Interval), zap.Error(err))
		return err
	}

	s.logger.Info("Starting scheduler",
		zap.String("interval", s.config.Interval),
		zap.Int("horizon_days", s.config.HorizonDays),
		zap.Bool("auto_retry", s.config.AutoRetry))

	s.ticker = time.NewTicker(interval)

	go func() {
		s.logger.Info("Running initial tick")
		s.runTick(ctx)
	}()

	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.runTick(ctx)
			case <-s.stopCh:
				s.logger.Info("Scheduler stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Scheduler context cancelled")
				return
			}
		}
	}()

	return nil
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.logger.Info("Scheduler shutdown completed")
	})
}

func (s *Scheduler) runTick(ctx context.Context) {
	if !s.running.TryLock() {
		s.logger.Warn("Previous tick still running, skipping")
		return
	}
	defer s.running.Unlock()

	report, err := s.tick(ctx)
	if err != nil {
		s.logger.Error("Scheduler tick failed", zap.Error(err), zap.Duration("duration", report.Duration))
		return
	}
	s.logger.Info("Scheduler tick completed",
		zap.Int("posts_materialized", report.PostsMaterialized),
		zap.Int("posts_dropped", report.PostsDropped),
		zap.Int("entries_queued", report.EntriesQueued),
		zap.Int("published", report.Published),
		zap.Int("failed", report.Failed),
		zap.Int("retried", report.Retried),
		zap.Duration("duration", report.Duration))
}

// Tick runs one full pass: refresh definitions, materialize occurrences,
// drop ready posts the definitions no longer produce, build the queue,
// process due entries and, when enabled, retry failures.
// Later steps still run when an earlier one fails; the errors are joined.
func (s *Scheduler) Tick(ctx context.Context) (TickReport, error) {
	s.running.Lock()
	defer s.running.Unlock()
	return s.tick(ctx)
}

func (s *Scheduler) tick(ctx context.Context) (TickReport, error) {
	start := time.Now()
	var report TickReport

	errs := []error{
		s.refreshDefinitions(ctx, &report),
		s.enqueueReadyPosts(ctx, &report),
		s.processDue(ctx, &report),
	}
	if s.config.AutoRetry {
		errs = append(errs, s.retryFailed(ctx, &report))
	}

	report.Duration = time.Since(start)
	return report, errors.Join(errs...)
}

// refreshDefinitions recomputes next_occurrence and materializes posts for
// [today, today+horizon] of every enabled definition.
func (s *Scheduler) refreshDefinitions(ctx context.Context, report *TickReport) error {
	defs, err := s.deps.Definitions.ListEnabled(ctx)
	if err != nil {
		return err
	}

	now := s.deps.Clock.Now()
	today := civil.DateOf(now.In(s.deps.Location))
	horizonEnd := today.AddDays(s.config.HorizonDays)

	batch := s.deps.Engine.GenerateAll(defs, today, horizonEnd)
	byDefinition := make(map[string][]recurrence.Occurrence, len(defs))
	for _, occ := range batch.Occurrences {
		byDefinition[occ.RecurrenceID] = append(byDefinition[occ.RecurrenceID], occ)
	}

	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err, invalid := batch.Invalid[def.ID]; invalid {
			report.InvalidDefinitions++
			s.recordDefinitionError(def, "Invalid recurrence definition", err)
			if err := s.deps.Definitions.UpdateDerived(ctx, def.ID, nil, 0); err != nil {
				s.logger.Error("Failed to clear next occurrence", zap.String("recurrence_id", def.ID), zap.Error(err))
			}
			continue
		}

		next, err := s.deps.Engine.ResolveNext(def, now)
		if err != nil && !errors.Is(err, recurrence.ErrOutOfWindow) {
			s.recordDefinitionError(def, "Failed to resolve next occurrence", err)
			continue
		}

		created, err := s.deps.Posts.Materialize(ctx, def.Name, byDefinition[def.ID])
		if err != nil {
			s.recordDefinitionError(def, "Failed to materialize occurrences", err)
			created = 0
		}

		if err := s.deps.Definitions.UpdateDerived(ctx, def.ID, next, created); err != nil {
			s.recordDefinitionError(def, "Failed to update recurrence definition", err)
			continue
		}

		report.DefinitionsRefreshed++
		report.PostsMaterialized += created
		if created > 0 {
			s.recordMetric("occurrences_materialized", float64(created), map[string]interface{}{
				"recurrence_id": def.ID,
			})
		}
	}

	disabled, err := s.deps.Definitions.ListDisabledWithNext(ctx)
	if err != nil {
		return err
	}
	for _, def := range disabled {
		if err := s.deps.Definitions.UpdateDerived(ctx, def.ID, nil, 0); err != nil {
			s.logger.Error("Failed to clear next occurrence", zap.String("recurrence_id", def.ID), zap.Error(err))
		}
	}

	return nil
}

// BuildQueue queues today's ready posts outside the regular tick and returns
// how many entries were created.
func (s *Scheduler) BuildQueue(ctx context.Context) (int, error) {
	s.running.Lock()
	defer s.running.Unlock()

	var report TickReport
	err := s.enqueueReadyPosts(ctx, &report)
	return report.EntriesQueued, err
}

// dropStalePosts re-reads the definition behind every ready materialized post.
// A post its definition would no longer produce (disabled, deleted, invalid,
// excepted date, changed schedule or platform) is deleted; a post it would
// still produce picks up the current content.
func (s *Scheduler) dropStalePosts(ctx context.Context, report *TickReport) error {
	posts, err := s.deps.Posts.ListReadyMaterialized(ctx)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		return nil
	}

	defs, err := s.deps.Definitions.List(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]*models.RecurrenceDefinition, len(defs))
	for _, def := range defs {
		byID[def.ID] = def
	}

	var stale []string
	for _, post := range posts {
		def := byID[*post.RecurrenceID]
		occ, ok := s.expectedOccurrence(def, post)
		if !ok {
			stale = append(stale, post.ID)
			continue
		}
		if postMatchesContent(post, def.Name, occ.Content) {
			continue
		}
		if err := s.deps.Posts.RefreshContent(ctx, post.ID, def.Name, occ.Content); err != nil {
			s.logger.Error("Failed to refresh post content", zap.String("post_id", post.ID), zap.Error(err))
		}
	}

	dropped, err := s.deps.Posts.DeleteReady(ctx, stale...)
	if err != nil {
		return err
	}
	if dropped > 0 {
		s.logger.Info("Dropped stale posts", zap.Int("count", dropped))
		s.recordMetric("posts_dropped", float64(dropped), nil)
	}
	report.PostsDropped += dropped
	return nil
}

func (s *Scheduler) expectedOccurrence(def *models.RecurrenceDefinition, post *models.Post) (recurrence.Occurrence, bool) {
	if def == nil || !def.Enabled || post.OccurrenceDate == nil {
		return recurrence.Occurrence{}, false
	}
	date := post.OccurrenceDate.Date
	for _, occ := range s.deps.Engine.Generate(def, date, date) {
		if occ.Platform == post.Platform && occ.ScheduledAt.Equal(post.ScheduledAt) {
			return occ, true
		}
	}
	return recurrence.Occurrence{}, false
}

func postMatchesContent(post *models.Post, title string, content recurrence.Template) bool {
	return post.Title == title &&
		post.Content == content.Text &&
		slices.Equal([]string(post.Media), content.Media) &&
		slices.Equal([]string(post.Hashtags), content.Hashtags)
}

// enqueueReadyPosts drops stale posts, then builds queue entries for ready
// posts due before tomorrow.
func (s *Scheduler) enqueueReadyPosts(ctx context.Context, report *TickReport) error {
	if err := s.dropStalePosts(ctx, report); err != nil {
		return err
	}

	now := s.deps.Clock.Now().In(s.deps.Location)
	tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, s.deps.Location)

	posts, err := s.deps.Posts.ListReady(ctx, tomorrow)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		return nil
	}

	ready := make([]queue.ReadyPost, 0, len(posts))
	for _, p := range posts {
		ready = append(ready, queue.ReadyPost{PostID: p.ID, Platform: p.Platform, ScheduledAt: p.ScheduledAt})
	}

	entries, err := s.deps.Builder.Build(ctx, ready)
	if err != nil {
		return err
	}
	stored, err := s.deps.Entries.Enqueue(ctx, entries...)
	if err != nil {
		return err
	}

	report.EntriesQueued += len(stored)
	return nil
}

func (s *Scheduler) processDue(ctx context.Context, report *TickReport) error {
	due, err := s.deps.Entries.ListDue(ctx, s.deps.Clock.Now())
	if err != nil {
		return err
	}

	for _, outcome := range s.deps.Processor.ProcessDue(ctx, due, s.deps.Concurrency) {
		tally(report, outcome)
	}
	return nil
}

func (s *Scheduler) retryFailed(ctx context.Context, report *TickReport) error {
	failed, err := s.deps.Entries.ListFailed(ctx)
	if err != nil {
		return err
	}

	var due []*models.QueueEntry
	for _, entry := range failed {
		if s.deps.Processor.RetryDue(entry) {
			due = append(due, entry)
		}
	}

	outcomes := s.deps.Processor.ProcessAll(ctx, due, s.deps.Concurrency, s.deps.Processor.Retry)
	for _, outcome := range outcomes {
		report.Retried++
		tally(report, outcome)
	}
	return nil
}

func tally(report *TickReport, outcome queue.Outcome) {
	switch {
	case outcome.Published():
		report.Published++
	case errors.Is(outcome.Err, queue.ErrTransientPublishFailure):
		report.Failed++
	}
}

func (s *Scheduler) recordDefinitionError(def *models.RecurrenceDefinition, title string, err error) {
	s.logger.Warn(title, zap.String("recurrence_id", def.ID), zap.Error(err))
	if s.deps.Monitoring == nil {
		return
	}
	if recErr := s.deps.Monitoring.RecordError("WARN", "scheduler", title, err.Error(),
		WithRecurrence(def.ID),
		WithContext(map[string]interface{}{"name": def.Name, "pattern": def.Pattern})); recErr != nil {
		s.logger.Error("Failed to record scheduler error", zap.Error(recErr))
	}
}

func (s *Scheduler) recordMetric(name string, value float64, tags map[string]interface{}) {
	if s.deps.Monitoring == nil {
		return
	}
	if err := s.deps.Monitoring.RecordMetric(name, "counter", value, tags); err != nil {
		s.logger.Error("Failed to record metric", zap.String("metric", name), zap.Error(err))
	}
}
