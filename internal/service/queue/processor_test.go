package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/models"
	"github.com/ifuryst/cadence/internal/service/publisher"
	"github.com/ifuryst/cadence/pkg/clock"
)

// fakePublisher replays scripted results, one per call, and succeeds once the
// script runs out.
type fakePublisher struct {
	mu      sync.Mutex
	script  []*publisher.PublishResult
	calls   []string
	retries int32
	gate    chan struct{}
	entered chan struct{}
	panics  bool
}

func (f *fakePublisher) Publish(ctx context.Context, content publisher.PublishContent, platform string) *publisher.PublishResult {
	return f.next(content, platform)
}

func (f *fakePublisher) RetryPublish(ctx context.Context, content publisher.PublishContent, platform string) *publisher.PublishResult {
	atomic.AddInt32(&f.retries, 1)
	return f.next(content, platform)
}

func (f *fakePublisher) next(content publisher.PublishContent, platform string) *publisher.PublishResult {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.panics {
		panic("boom")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, content.ID+"@"+platform)
	if len(f.script) == 0 {
		return publisher.Succeeded("pub-"+content.ID, "https://example.com/"+content.ID, time.Time{})
	}
	r := f.script[0]
	f.script = f.script[1:]
	return r
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *recordingObserver) ObserveAttempt(_ *models.QueueEntry, o Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

type processorFixture struct {
	store *MemoryStore
	pub   *fakePublisher
	clock *clock.Fixed
	obs   *recordingObserver
	proc  *Processor
}

var fixtureNow = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func newProcessorFixture(t *testing.T, opts ...ProcessorOption) *processorFixture {
	t.Helper()

	f := &processorFixture{
		store: NewMemoryStore(),
		pub:   &fakePublisher{},
		clock: clock.NewFixed(fixtureNow),
		obs:   &recordingObserver{},
	}
	opts = append([]ProcessorOption{WithObserver(f.obs)}, opts...)
	f.proc = NewProcessor(f.store, f.store, f.pub, f.clock, zap.NewNop(), opts...)
	return f
}

func (f *processorFixture) addEntry(t *testing.T, id string, status models.QueueStatus, attempts int) *models.QueueEntry {
	t.Helper()

	f.store.AddPost(models.Post{
		ID:          "post-" + id,
		Title:       "Weekly Tip",
		Content:     "Monday tip",
		Platform:    "instagram",
		ScheduledAt: fixtureNow,
		Status:      models.PostStatusQueued,
	})
	entry := &models.QueueEntry{
		ID:          id,
		PostID:      "post-" + id,
		Platform:    "instagram",
		ScheduledAt: fixtureNow,
		Status:      status,
		Attempts:    attempts,
	}
	require.NoError(t, f.store.Insert(context.Background(), entry))
	return entry
}

func TestProcess_Success(t *testing.T) {
	f := newProcessorFixture(t)
	entry := f.addEntry(t, "e1", models.QueueStatusPending, 0)

	out := f.proc.Process(context.Background(), entry)

	require.NoError(t, out.Err)
	assert.True(t, out.Published())
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, models.QueueStatusPublished, entry.Status)
	assert.Equal(t, "pub-post-e1", entry.PublishID)
	require.NotNil(t, entry.PublishedAt)
	assert.Equal(t, fixtureNow, *entry.PublishedAt)
	assert.Empty(t, entry.LastError)

	stored, err := f.store.Get(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPublished, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, []string{"post-e1@instagram"}, f.pub.calls)
	assert.Len(t, f.obs.outcomes, 1)
}

func TestProcess_FailureRecordsErrorWithoutRetrying(t *testing.T) {
	f := newProcessorFixture(t)
	f.pub.script = []*publisher.PublishResult{publisher.Failed(errors.New("rate limited"))}
	entry := f.addEntry(t, "e1", models.QueueStatusPending, 0)

	out := f.proc.Process(context.Background(), entry)

	require.ErrorIs(t, out.Err, ErrTransientPublishFailure)
	assert.Contains(t, out.Err.Error(), "rate limited")
	assert.Equal(t, models.QueueStatusFailed, out.Status)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, "rate limited", entry.LastError)
	require.NotNil(t, out.NextRetryAt)
	assert.Equal(t, fixtureNow.Add(30*time.Second), *out.NextRetryAt)
	assert.Equal(t, 1, f.pub.callCount(), "no automatic retry")
	assert.Zero(t, atomic.LoadInt32(&f.pub.retries))
}

func TestProcess_FailedResultWithoutReason(t *testing.T) {
	f := newProcessorFixture(t)
	f.pub.script = []*publisher.PublishResult{{Success: false}}
	entry := f.addEntry(t, "e1", models.QueueStatusPending, 0)

	out := f.proc.Process(context.Background(), entry)

	assert.Equal(t, models.QueueStatusFailed, out.Status)
	assert.NotEmpty(t, entry.LastError)
}

func TestProcess_PublisherPanicBecomesFailure(t *testing.T) {
	f := newProcessorFixture(t)
	f.pub.panics = true
	entry := f.addEntry(t, "e1", models.QueueStatusPending, 0)

	out := f.proc.Process(context.Background(), entry)

	require.ErrorIs(t, out.Err, ErrTransientPublishFailure)
	assert.Equal(t, models.QueueStatusFailed, entry.Status)
	assert.Contains(t, entry.LastError, "panicked")
}

func TestProcess_RejectsNonPendingEntries(t *testing.T) {
	for _, status := range []models.QueueStatus{
		models.QueueStatusProcessing,
		models.QueueStatusPublished,
		models.QueueStatusFailed,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newProcessorFixture(t)
			entry := f.addEntry(t, "e1", status, 1)

			out := f.proc.Process(context.Background(), entry)

			require.ErrorIs(t, out.Err, ErrInvalidTransition)
			assert.Equal(t, status, entry.Status)
			assert.Equal(t, 1, entry.Attempts)
			assert.Zero(t, f.pub.callCount())
			assert.Empty(t, f.obs.outcomes)
		})
	}
}

func TestProcess_StaleCopyLosesTheClaim(t *testing.T) {
	f := newProcessorFixture(t)
	entry := f.addEntry(t, "e1", models.QueueStatusPending, 0)
	stale := *entry

	require.True(t, f.proc.Process(context.Background(), entry).Published())

	out := f.proc.Process(context.Background(), &stale)
	require.ErrorIs(t, out.Err, ErrInvalidTransition)
	assert.Equal(t, 1, f.pub.callCount())
}

func TestProcess_MissingPost(t *testing.T) {
	f := newProcessorFixture(t)
	entry := &models.QueueEntry{ID: "orphan", PostID: "gone", Status: models.QueueStatusPending}
	require.NoError(t, f.store.Insert(context.Background(), entry))

	out := f.proc.Process(context.Background(), entry)

	require.ErrorIs(t, out.Err, ErrPostNotFound)
	stored, err := f.store.Get(context.Background(), "orphan")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, stored.Status, "entry is left untouched")
}

func TestProcess_ConcurrentCallsPublishOnce(t *testing.T) {
	f := newProcessorFixture(t)
	f.pub.gate = make(chan struct{})
	f.pub.entered = make(chan struct{}, 1)
	entry := f.addEntry(t, "e1", models.QueueStatusPending, 0)

	first := *entry
	second := *entry

	done := make(chan Outcome)
	go func() {
		done <- f.proc.Process(context.Background(), &first)
	}()
	<-f.pub.entered

	out := f.proc.Process(context.Background(), &second)
	require.ErrorIs(t, out.Err, ErrAlreadyProcessing)

	close(f.pub.gate)
	winner := <-done
	assert.True(t, winner.Published())
	assert.Equal(t, 1, f.pub.callCount())
}

func TestProcess_ClaimAcrossProcessors(t *testing.T) {
	f := newProcessorFixture(t)
	other := NewProcessor(f.store, f.store, f.pub, f.clock, zap.NewNop())
	f.pub.gate = make(chan struct{})
	f.pub.entered = make(chan struct{}, 1)
	entry := f.addEntry(t, "e1", models.QueueStatusPending, 0)

	first := *entry
	second := *entry

	done := make(chan Outcome)
	go func() {
		done <- f.proc.Process(context.Background(), &first)
	}()
	<-f.pub.entered

	// a second processor sharing the store must lose the claim
	out := other.Process(context.Background(), &second)
	require.ErrorIs(t, out.Err, ErrInvalidTransition)

	close(f.pub.gate)
	assert.True(t, (<-done).Published())
	assert.Equal(t, 1, f.pub.callCount())
}

func TestRetry_SucceedsAfterBackoff(t *testing.T) {
	f := newProcessorFixture(t)
	f.pub.script = []*publisher.PublishResult{publisher.Failed(errors.New("timeout"))}
	entry := f.addEntry(t, "e1", models.QueueStatusPending, 0)

	require.ErrorIs(t, f.proc.Process(context.Background(), entry).Err, ErrTransientPublishFailure)

	out := f.proc.Retry(context.Background(), entry)
	require.ErrorIs(t, out.Err, ErrBackoffPending)
	assert.False(t, f.proc.RetryDue(entry))

	f.clock.Advance(30 * time.Second)
	assert.True(t, f.proc.RetryDue(entry))

	out = f.proc.Retry(context.Background(), entry)
	require.NoError(t, out.Err)
	assert.Equal(t, models.QueueStatusPublished, out.Status)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.pub.retries))
	assert.Nil(t, entry.NextRetryAt)
}

func TestRetry_FailureIncrementsAttempts(t *testing.T) {
	f := newProcessorFixture(t, WithRetryPolicy(RetryPolicy{MaxAttempts: 3}))
	f.pub.script = []*publisher.PublishResult{
		publisher.Failed(errors.New("first")),
		publisher.Failed(errors.New("second")),
		publisher.Failed(errors.New("third")),
	}
	entry := f.addEntry(t, "e1", models.QueueStatusPending, 0)

	f.proc.Process(context.Background(), entry)

	out := f.proc.Retry(context.Background(), entry)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, "second", entry.LastError)
	require.NotNil(t, out.NextRetryAt)

	out = f.proc.Retry(context.Background(), entry)
	assert.Equal(t, 3, out.Attempts)
	assert.Nil(t, out.NextRetryAt, "no retry scheduled once exhausted")

	out = f.proc.Retry(context.Background(), entry)
	require.ErrorIs(t, out.Err, ErrRetryExhausted)
	assert.Equal(t, 3, entry.Attempts)
	assert.Equal(t, 3, f.pub.callCount())
}

func TestRetry_StaleCopyCannotExceedMaxAttempts(t *testing.T) {
	f := newProcessorFixture(t, WithRetryPolicy(RetryPolicy{MaxAttempts: 2, BaseBackoff: 30 * time.Second, Multiplier: 2}))
	f.pub.script = []*publisher.PublishResult{
		publisher.Failed(errors.New("first")),
		publisher.Failed(errors.New("second")),
		publisher.Failed(errors.New("third")),
	}
	entry := f.addEntry(t, "e1", models.QueueStatusPending, 0)
	ctx := context.Background()

	f.proc.Process(ctx, entry)
	f.clock.Advance(31 * time.Second)

	first, err := f.store.Get(ctx, "e1")
	require.NoError(t, err)
	second, err := f.store.Get(ctx, "e1")
	require.NoError(t, err)

	out := f.proc.Retry(ctx, first)
	require.ErrorIs(t, out.Err, ErrTransientPublishFailure)
	assert.Equal(t, 2, out.Attempts)

	out = f.proc.Retry(ctx, second)
	require.ErrorIs(t, out.Err, ErrInvalidTransition)

	stored, err := f.store.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempts)
	assert.Equal(t, models.QueueStatusFailed, stored.Status)
	assert.Equal(t, 2, f.pub.callCount())
}

func TestRetry_RejectsNonFailedEntries(t *testing.T) {
	f := newProcessorFixture(t)
	entry := f.addEntry(t, "e1", models.QueueStatusPending, 0)

	out := f.proc.Retry(context.Background(), entry)

	require.ErrorIs(t, out.Err, ErrInvalidTransition)
	assert.Zero(t, f.pub.callCount())
}

func TestProcessAll_IsolatesFailures(t *testing.T) {
	f := newProcessorFixture(t)
	f.pub.script = []*publisher.PublishResult{publisher.Failed(errors.New("down"))}

	var entries []*models.QueueEntry
	for _, id := range []string{"e1", "e2", "e3", "e4"} {
		entries = append(entries, f.addEntry(t, id, models.QueueStatusPending, 0))
	}
	entries = append(entries, f.addEntry(t, "e5", models.QueueStatusPublished, 1))

	outcomes := f.proc.ProcessAll(context.Background(), entries, 2, f.proc.Process)
	require.Len(t, outcomes, 5)

	var published, failed, rejected int
	for i, o := range outcomes {
		assert.Equal(t, entries[i].ID, o.EntryID)
		switch {
		case o.Published():
			published++
		case errors.Is(o.Err, ErrTransientPublishFailure):
			failed++
		case errors.Is(o.Err, ErrInvalidTransition):
			rejected++
		}
	}
	assert.Equal(t, 3, published)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 4, f.pub.callCount())
}

type failingSaveStore struct {
	*MemoryStore
}

func (s failingSaveStore) Save(context.Context, *models.QueueEntry) error {
	return errors.New("disk full")
}

func TestProcess_SaveErrorIsReported(t *testing.T) {
	mem := NewMemoryStore()
	pub := &fakePublisher{}
	proc := NewProcessor(failingSaveStore{mem}, mem, pub, clock.NewFixed(fixtureNow), zap.NewNop())

	mem.AddPost(models.Post{ID: "p1", Platform: "x"})
	entry := &models.QueueEntry{ID: "e1", PostID: "p1", Platform: "x", Status: models.QueueStatusPending}
	require.NoError(t, mem.Insert(context.Background(), entry))

	out := proc.Process(context.Background(), entry)

	assert.Equal(t, models.QueueStatusPublished, out.Status)
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "disk full")
	assert.False(t, out.Published())
}
