package queue

import (
	"context"
	"sort"
	"sync"

	"github.com/ifuryst/cadence/internal/models"
)

// EntryStore persists queue entries. Claim must be atomic: it moves the entry
// to processing only if its stored status is one of from and its stored
// attempt count still equals attempts.
type EntryStore interface {
	Claim(ctx context.Context, id string, attempts int, from ...models.QueueStatus) (bool, error)
	Save(ctx context.Context, entry *models.QueueEntry) error
}

// PostSource loads the post a queue entry refers to.
type PostSource interface {
	GetPost(ctx context.Context, id string) (*models.Post, error)
}

// MemoryStore is an in-process EntryStore and PostSource.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]models.QueueEntry
	posts   map[string]models.Post
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]models.QueueEntry),
		posts:   make(map[string]models.Post),
	}
}

func (s *MemoryStore) AddPost(post models.Post) {
	s.mu.Lock()
	s.posts[post.ID] = post
	s.mu.Unlock()
}

func (s *MemoryStore) GetPost(_ context.Context, id string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, ErrPostNotFound
	}
	return &post, nil
}

func (s *MemoryStore) Insert(_ context.Context, entries ...*models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		s.entries[e.ID] = *e
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &e, nil
}

// List returns entries ordered by scheduled time then priority.
func (s *MemoryStore) List(_ context.Context) []*models.QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.QueueEntry, 0, len(s.entries))
	for _, e := range s.entries {
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}

func (s *MemoryStore) Claim(_ context.Context, id string, attempts int, from ...models.QueueStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false, ErrEntryNotFound
	}
	if e.Attempts != attempts {
		return false, nil
	}
	for _, status := range from {
		if e.Status == status {
			e.Status = models.QueueStatusProcessing
			s.entries[id] = e
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Save(_ context.Context, entry *models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entry.ID]; !ok {
		return ErrEntryNotFound
	}
	s.entries[entry.ID] = *entry
	return nil
}
