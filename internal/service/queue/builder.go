package queue

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/models"
	"github.com/ifuryst/cadence/pkg/clock"
)

// ReadyPost is a post waiting to be queued.
type ReadyPost struct {
	PostID      string
	Platform    string
	ScheduledAt time.Time
}

// BestTimeHint is an engagement slot reported by analytics.
type BestTimeHint struct {
	DayOfWeek       time.Weekday `json:"day_of_week"`
	Hour            int          `json:"hour"`
	EngagementScore float64      `json:"engagement_score"`
}

// BestTimeProvider returns zero or more hints for a platform.
type BestTimeProvider interface {
	BestTimes(ctx context.Context, platform string) ([]BestTimeHint, error)
}

// TopHint picks the highest-scoring usable hint; the first one wins ties.
func TopHint(hints []BestTimeHint) (BestTimeHint, bool) {
	var (
		best  BestTimeHint
		found bool
	)
	for _, h := range hints {
		if h.Hour < 0 || h.Hour > 23 {
			continue
		}
		if !found || h.EngagementScore > best.EngagementScore {
			best, found = h, true
		}
	}
	return best, found
}

// Builder turns ready posts into an ordered publish queue.
type Builder struct {
	hints  BestTimeProvider
	clock  clock.Clock
	loc    *time.Location
	logger *zap.Logger
	newID  func() string
}

// NewBuilder creates a Builder. Hint hours are placed on today's date in loc.
// hints may be nil, in which case every post keeps its own schedule.
func NewBuilder(hints BestTimeProvider, clk clock.Clock, loc *time.Location, logger *zap.Logger) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{
		hints:  hints,
		clock:  clk,
		loc:    loc,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Build assigns each post a target time and returns pending entries sorted by
// that time, ties kept in input order. Priority is the entry's position.
//
// Output depends on today's date: the same posts built on another day get
// different hint-based times.
func (b *Builder) Build(ctx context.Context, posts []ReadyPost) ([]*models.QueueEntry, error) {
	now := b.clock.Now().In(b.loc)
	hintCache := make(map[string]*BestTimeHint)

	entries := make([]*models.QueueEntry, 0, len(posts))
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		target := post.ScheduledAt
		if hint := b.lookupHint(ctx, hintCache, post.Platform); hint != nil {
			target = time.Date(now.Year(), now.Month(), now.Day(), hint.Hour, 0, 0, 0, b.loc)
		}

		entries = append(entries, &models.QueueEntry{
			ID:          b.newID(),
			PostID:      post.PostID,
			Platform:    post.Platform,
			ScheduledAt: target,
			Status:      models.QueueStatusPending,
			Attempts:    0,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ScheduledAt.Before(entries[j].ScheduledAt)
	})
	for i, e := range entries {
		e.Priority = i
	}

	return entries, nil
}

func (b *Builder) lookupHint(ctx context.Context, cache map[string]*BestTimeHint, platform string) *BestTimeHint {
	if b.hints == nil {
		return nil
	}
	if hint, ok := cache[platform]; ok {
		return hint
	}

	hints, err := b.hints.BestTimes(ctx, platform)
	if err != nil {
		b.logger.Warn("Best-time lookup failed, keeping post schedule",
			zap.String("platform", platform),
			zap.Error(err))
		cache[platform] = nil
		return nil
	}

	top, ok := TopHint(hints)
	if !ok {
		cache[platform] = nil
		return nil
	}
	cache[platform] = &top
	return &top
}
