package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/models"
	"github.com/ifuryst/cadence/pkg/clock"
)

type staticHints struct {
	hints   map[string][]BestTimeHint
	failing map[string]bool
	calls   map[string]int
}

func (s *staticHints) BestTimes(_ context.Context, platform string) ([]BestTimeHint, error) {
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[platform]++
	if s.failing[platform] {
		return nil, errors.New("analytics unavailable")
	}
	return s.hints[platform], nil
}

func TestTopHint(t *testing.T) {
	_, ok := TopHint(nil)
	assert.False(t, ok)

	top, ok := TopHint([]BestTimeHint{
		{DayOfWeek: time.Monday, Hour: 8, EngagementScore: 70},
		{DayOfWeek: time.Tuesday, Hour: 18, EngagementScore: 91},
		{DayOfWeek: time.Friday, Hour: 12, EngagementScore: 91},
		{DayOfWeek: time.Friday, Hour: 25, EngagementScore: 99},
	})
	require.True(t, ok)
	assert.Equal(t, 18, top.Hour)
}

func TestBuilder_AssignsHintTimesAndOrders(t *testing.T) {
	now := time.Date(2024, 1, 10, 7, 30, 0, 0, time.UTC)
	hints := &staticHints{hints: map[string][]BestTimeHint{
		"instagram": {{DayOfWeek: time.Wednesday, Hour: 18, EngagementScore: 87.5}},
		"facebook":  {{DayOfWeek: time.Wednesday, Hour: 9, EngagementScore: 72.3}},
	}}
	b := NewBuilder(hints, clock.NewFixed(now), time.UTC, zap.NewNop())

	posts := []ReadyPost{
		{PostID: "p-ig-1", Platform: "instagram", ScheduledAt: now.Add(time.Hour)},
		{PostID: "p-li", Platform: "linkedin", ScheduledAt: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)},
		{PostID: "p-fb", Platform: "facebook", ScheduledAt: now},
		{PostID: "p-ig-2", Platform: "instagram", ScheduledAt: now},
	}

	entries, err := b.Build(context.Background(), posts)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	var order []string
	for i, e := range entries {
		order = append(order, e.PostID)
		assert.Equal(t, i, e.Priority)
		assert.Equal(t, models.QueueStatusPending, e.Status)
		assert.Zero(t, e.Attempts)
		assert.NotEmpty(t, e.ID)
		if i > 0 {
			assert.False(t, e.ScheduledAt.Before(entries[i-1].ScheduledAt))
		}
	}
	// facebook hint 09:00, linkedin own 12:00, both instagram posts at 18:00 in input order
	assert.Equal(t, []string{"p-fb", "p-li", "p-ig-1", "p-ig-2"}, order)
	assert.Equal(t, time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC), entries[2].ScheduledAt)
	assert.Equal(t, 1, hints.calls["instagram"], "hints are looked up once per platform")
}

func TestBuilder_HintFailureFallsBackForThatPlatform(t *testing.T) {
	now := time.Date(2024, 1, 10, 7, 0, 0, 0, time.UTC)
	hints := &staticHints{
		hints:   map[string][]BestTimeHint{"facebook": {{Hour: 6, EngagementScore: 50}}},
		failing: map[string]bool{"instagram": true},
	}
	b := NewBuilder(hints, clock.NewFixed(now), time.UTC, zap.NewNop())

	own := time.Date(2024, 1, 11, 8, 0, 0, 0, time.UTC)
	entries, err := b.Build(context.Background(), []ReadyPost{
		{PostID: "ig", Platform: "instagram", ScheduledAt: own},
		{PostID: "fb", Platform: "facebook", ScheduledAt: own},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "fb", entries[0].PostID)
	assert.Equal(t, time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC), entries[0].ScheduledAt)
	assert.Equal(t, own, entries[1].ScheduledAt)
}

func TestBuilder_DeterministicForSameNow(t *testing.T) {
	now := time.Date(2024, 1, 10, 7, 0, 0, 0, time.UTC)
	hints := &staticHints{hints: map[string][]BestTimeHint{"tiktok": {{Hour: 20, EngagementScore: 1}}}}
	posts := []ReadyPost{
		{PostID: "a", Platform: "tiktok", ScheduledAt: now},
		{PostID: "b", Platform: "instagram", ScheduledAt: now.Add(2 * time.Hour)},
		{PostID: "c", Platform: "instagram", ScheduledAt: now.Add(2 * time.Hour)},
		{PostID: "d", Platform: "facebook", ScheduledAt: now.Add(-time.Hour)},
	}

	type slot struct {
		post string
		at   time.Time
		prio int
	}
	run := func() []slot {
		b := NewBuilder(hints, clock.NewFixed(now), time.UTC, zap.NewNop())
		entries, err := b.Build(context.Background(), posts)
		require.NoError(t, err)
		var out []slot
		for _, e := range entries {
			out = append(out, slot{e.PostID, e.ScheduledAt, e.Priority})
		}
		return out
	}

	first := run()
	assert.Equal(t, first, run())
	assert.Equal(t, "d", first[0].post)
	assert.Equal(t, "a", first[3].post)
}

func TestBuilder_HintTimesFollowTheDay(t *testing.T) {
	hints := &staticHints{hints: map[string][]BestTimeHint{"instagram": {{Hour: 18, EngagementScore: 1}}}}
	clk := clock.NewFixed(time.Date(2024, 1, 10, 7, 0, 0, 0, time.UTC))
	b := NewBuilder(hints, clk, time.UTC, zap.NewNop())
	posts := []ReadyPost{{PostID: "a", Platform: "instagram"}}

	first, err := b.Build(context.Background(), posts)
	require.NoError(t, err)

	clk.Advance(24 * time.Hour)
	second, err := b.Build(context.Background(), posts)
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, second[0].ScheduledAt.Sub(first[0].ScheduledAt))
}

func TestBuilder_NoProviderAndCancelledContext(t *testing.T) {
	now := time.Date(2024, 1, 10, 7, 0, 0, 0, time.UTC)
	b := NewBuilder(nil, clock.NewFixed(now), nil, zap.NewNop())

	entries, err := b.Build(context.Background(), []ReadyPost{{PostID: "a", Platform: "x", ScheduledAt: now}})
	require.NoError(t, err)
	assert.Equal(t, now, entries[0].ScheduledAt)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Build(ctx, []ReadyPost{{PostID: "a"}})
	assert.ErrorIs(t, err, context.Canceled)
}
