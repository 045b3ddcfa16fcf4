package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ifuryst/cadence/internal/models"
	"github.com/ifuryst/cadence/internal/service/publisher"
	"github.com/ifuryst/cadence/pkg/clock"
)

// Outcome is the result of one Process or Retry call. Err is nil only when
// the entry was published.
type Outcome struct {
	EntryID     string                   `json:"entry_id"`
	Status      models.QueueStatus       `json:"status"`
	Attempts    int                      `json:"attempts"`
	NextRetryAt *time.Time               `json:"next_retry_at,omitempty"`
	Result      *publisher.PublishResult `json:"result,omitempty"`
	Err         error                    `json:"-"`
}

func (o Outcome) Published() bool {
	return o.Err == nil && o.Status == models.QueueStatusPublished
}

// Observer is told about every attempt that reached the publisher.
type Observer interface {
	ObserveAttempt(entry *models.QueueEntry, outcome Outcome)
}

type ProcessorOption func(*Processor)

func WithObserver(o Observer) ProcessorOption {
	return func(p *Processor) {
		p.observer = o
	}
}

func WithRetryPolicy(policy RetryPolicy) ProcessorOption {
	return func(p *Processor) {
		p.policy = policy
	}
}

// Processor publishes queue entries one attempt at a time.
type Processor struct {
	store     EntryStore
	posts     PostSource
	publisher publisher.Publisher
	clock     clock.Clock
	policy    RetryPolicy
	observer  Observer
	logger    *zap.Logger

	inflight sync.Map
}

func NewProcessor(store EntryStore, posts PostSource, pub publisher.Publisher, clk clock.Clock, logger *zap.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:     store,
		posts:     posts,
		publisher: pub,
		clock:     clk,
		policy:    DefaultRetryPolicy(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process makes one publish attempt for a pending entry. Failures are
// recorded on the entry and returned in the Outcome; nothing is retried here.
func (p *Processor) Process(ctx context.Context, entry *models.QueueEntry) Outcome {
	if entry.Status != models.QueueStatusPending {
		return p.rejected(entry, fmt.Errorf("%w: process requires %s, entry is %s",
			ErrInvalidTransition, models.QueueStatusPending, entry.Status))
	}
	return p.attempt(ctx, entry, models.QueueStatusPending, false)
}

// Retry makes one more attempt for a failed entry through the publisher's
// retry path, subject to the retry policy.
func (p *Processor) Retry(ctx context.Context, entry *models.QueueEntry) Outcome {
	if entry.Status != models.QueueStatusFailed {
		return p.rejected(entry, fmt.Errorf("%w: retry requires %s, entry is %s",
			ErrInvalidTransition, models.QueueStatusFailed, entry.Status))
	}
	if p.policy.Exhausted(entry.Attempts) {
		return p.rejected(entry, fmt.Errorf("%w: %d of %d attempts used",
			ErrRetryExhausted, entry.Attempts, p.policy.MaxAttempts))
	}
	if entry.NextRetryAt != nil && p.clock.Now().Before(*entry.NextRetryAt) {
		return p.rejected(entry, fmt.Errorf("%w: next retry at %s",
			ErrBackoffPending, entry.NextRetryAt.Format(time.RFC3339)))
	}
	return p.attempt(ctx, entry, models.QueueStatusFailed, true)
}

// RetryDue reports whether Retry would currently be allowed for entry.
func (p *Processor) RetryDue(entry *models.QueueEntry) bool {
	if entry.Status != models.QueueStatusFailed || p.policy.Exhausted(entry.Attempts) {
		return false
	}
	return entry.NextRetryAt == nil || !p.clock.Now().Before(*entry.NextRetryAt)
}

// ProcessAll runs fn over entries with at most concurrency calls in flight.
// Every entry gets an outcome; one failure never stops the others.
func (p *Processor) ProcessAll(ctx context.Context, entries []*models.QueueEntry, concurrency int, fn func(context.Context, *models.QueueEntry) Outcome) []Outcome {
	if concurrency < 1 {
		concurrency = 1
	}

	outcomes := make([]Outcome, len(entries))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, entry := range entries {
		g.Go(func() error {
			outcomes[i] = fn(gCtx, entry)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// ProcessDue processes pending entries with bounded concurrency.
func (p *Processor) ProcessDue(ctx context.Context, entries []*models.QueueEntry, concurrency int) []Outcome {
	return p.ProcessAll(ctx, entries, concurrency, p.Process)
}

func (p *Processor) attempt(ctx context.Context, entry *models.QueueEntry, from models.QueueStatus, retry bool) Outcome {
	if _, busy := p.inflight.LoadOrStore(entry.ID, struct{}{}); busy {
		return p.rejected(entry, ErrAlreadyProcessing)
	}
	defer p.inflight.Delete(entry.ID)

	post, err := p.posts.GetPost(ctx, entry.PostID)
	if err != nil {
		if !errors.Is(err, ErrPostNotFound) {
			err = fmt.Errorf("failed to load post %s: %w", entry.PostID, err)
		}
		return p.rejected(entry, err)
	}

	// The attempt count pins the claim to the copy the policy checks ran on.
	claimed, err := p.store.Claim(ctx, entry.ID, entry.Attempts, from)
	if err != nil {
		return p.rejected(entry, fmt.Errorf("failed to claim entry: %w", err))
	}
	if !claimed {
		return p.rejected(entry, fmt.Errorf("%w: entry is no longer %s after %d attempts",
			ErrInvalidTransition, from, entry.Attempts))
	}
	entry.Status = models.QueueStatusProcessing

	result := p.callPublisher(ctx, post, entry.Platform, retry)

	now := p.clock.Now()
	entry.Attempts++
	entry.LastAttemptAt = &now

	outcome := Outcome{EntryID: entry.ID, Result: result}

	if result.Success {
		publishedAt := result.PublishedAt
		if publishedAt.IsZero() {
			publishedAt = now
		}
		entry.Status = models.QueueStatusPublished
		entry.LastError = ""
		entry.NextRetryAt = nil
		entry.PublishID = result.PublishID
		entry.URL = result.URL
		entry.PublishedAt = &publishedAt
	} else {
		entry.Status = models.QueueStatusFailed
		entry.LastError = result.Reason()
		entry.NextRetryAt = p.policy.NextRetryAt(entry.Attempts, now)
		outcome.Err = fmt.Errorf("%w: %s", ErrTransientPublishFailure, entry.LastError)
	}

	if err := p.store.Save(ctx, entry); err != nil {
		p.logger.Error("Failed to persist queue entry outcome",
			zap.String("entry_id", entry.ID),
			zap.String("status", string(entry.Status)),
			zap.Error(err))
		outcome.Err = errors.Join(outcome.Err, fmt.Errorf("failed to persist outcome: %w", err))
	}

	outcome.Status = entry.Status
	outcome.Attempts = entry.Attempts
	outcome.NextRetryAt = entry.NextRetryAt

	fields := []zap.Field{
		zap.String("entry_id", entry.ID),
		zap.String("post_id", entry.PostID),
		zap.String("platform", entry.Platform),
		zap.Int("attempts", entry.Attempts),
		zap.Bool("retry", retry),
	}
	if result.Success {
		p.logger.Info("Queue entry published", fields...)
	} else {
		p.logger.Warn("Queue entry failed", append(fields, zap.String("error", entry.LastError))...)
	}

	if p.observer != nil {
		p.observer.ObserveAttempt(entry, outcome)
	}

	return outcome
}

// callPublisher makes exactly one collaborator call and never lets a panic
// escape past the queue.
func (p *Processor) callPublisher(ctx context.Context, post *models.Post, platform string, retry bool) (result *publisher.PublishResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Publisher panicked", zap.String("platform", platform), zap.Any("panic", r))
			result = publisher.Failed(fmt.Errorf("publisher panicked: %v", r))
		}
	}()

	content := publisher.FromPost(post)
	if retry {
		result = p.publisher.RetryPublish(ctx, content, platform)
	} else {
		result = p.publisher.Publish(ctx, content, platform)
	}
	if result == nil {
		result = publisher.Failed(errors.New("publisher returned no result"))
	}
	return result
}

func (p *Processor) rejected(entry *models.QueueEntry, err error) Outcome {
	p.logger.Debug("Queue entry not attempted",
		zap.String("entry_id", entry.ID),
		zap.String("status", string(entry.Status)),
		zap.Error(err))

	return Outcome{
		EntryID:     entry.ID,
		Status:      entry.Status,
		Attempts:    entry.Attempts,
		NextRetryAt: entry.NextRetryAt,
		Err:         err,
	}
}
