package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ifuryst/cadence/internal/models"
	"github.com/ifuryst/cadence/internal/service/queue"
	"github.com/ifuryst/cadence/internal/service/recurrence"
)

// DefinitionStore reads recurrence definitions and writes their derived columns.
type DefinitionStore struct {
	db *gorm.DB
}

func NewDefinitionStore(db *gorm.DB) *DefinitionStore {
	return &DefinitionStore{db: db}
}

func (s *DefinitionStore) Get(ctx context.Context, id string) (*models.RecurrenceDefinition, error) {
	var def models.RecurrenceDefinition
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&def).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", recurrence.ErrDefinitionNotFound, id)
		}
		return nil, fmt.Errorf("failed to load definition %s: %w", id, err)
	}
	return &def, nil
}

func (s *DefinitionStore) List(ctx context.Context) ([]*models.RecurrenceDefinition, error) {
	var defs []*models.RecurrenceDefinition
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	return defs, nil
}

func (s *DefinitionStore) ListEnabled(ctx context.Context) ([]*models.RecurrenceDefinition, error) {
	var defs []*models.RecurrenceDefinition
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("created_at, id").Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("failed to list enabled definitions: %w", err)
	}
	return defs, nil
}

// ListDisabledWithNext returns disabled definitions that still carry a next occurrence.
func (s *DefinitionStore) ListDisabledWithNext(ctx context.Context) ([]*models.RecurrenceDefinition, error) {
	var defs []*models.RecurrenceDefinition
	err := s.db.WithContext(ctx).
		Where("enabled = ? AND next_occurrence IS NOT NULL", false).
		Find(&defs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list disabled definitions: %w", err)
	}
	return defs, nil
}

// Save upserts a definition as the content studio would.
func (s *DefinitionStore) Save(ctx context.Context, def *models.RecurrenceDefinition) error {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Save(def).Error; err != nil {
		return fmt.Errorf("failed to save definition %s: %w", def.ID, err)
	}
	return nil
}

// UpdateDerived sets next_occurrence and adds generated to occurrences_generated.
// It never touches the user-owned columns.
func (s *DefinitionStore) UpdateDerived(ctx context.Context, id string, next *time.Time, generated int) error {
	updates := map[string]interface{}{
		"next_occurrence": nil,
	}
	if next != nil {
		updates["next_occurrence"] = next.UTC()
	}
	if generated > 0 {
		updates["occurrences_generated"] = gorm.Expr("occurrences_generated + ?", generated)
	}

	result := s.db.WithContext(ctx).Model(&models.RecurrenceDefinition{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update definition %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", recurrence.ErrDefinitionNotFound, id)
	}
	return nil
}

// PostStore holds posts, including the ones materialized from recurrences.
type PostStore struct {
	db *gorm.DB
}

func NewPostStore(db *gorm.DB) *PostStore {
	return &PostStore{db: db}
}

// Materialize stores one ready post per occurrence and returns how many were new.
// Occurrences already stored for the same definition, platform and time are skipped.
func (s *PostStore) Materialize(ctx context.Context, title string, occurrences []recurrence.Occurrence) (int, error) {
	if len(occurrences) == 0 {
		return 0, nil
	}

	posts := make([]models.Post, 0, len(occurrences))
	for _, occ := range occurrences {
		recurrenceID := occ.RecurrenceID
		date := models.Date{Date: occ.Date}
		posts = append(posts, models.Post{
			ID:             uuid.NewString(),
			RecurrenceID:   &recurrenceID,
			Title:          title,
			Content:        occ.Content.Text,
			Media:          models.StringArray(occ.Content.Media),
			Hashtags:       models.StringArray(occ.Content.Hashtags),
			Platform:       occ.Platform,
			ScheduledAt:    occ.ScheduledAt.UTC(),
			OccurrenceDate: &date,
			Status:         models.PostStatusReady,
		})
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&posts)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to materialize occurrences: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (s *PostStore) Create(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	post.ScheduledAt = post.ScheduledAt.UTC()
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

func (s *PostStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", queue.ErrPostNotFound, id)
		}
		return nil, fmt.Errorf("failed to load post %s: %w", id, err)
	}
	return &post, nil
}

// ListReady returns ready posts scheduled before until, earliest first.
func (s *PostStore) ListReady(ctx context.Context, until time.Time) ([]*models.Post, error) {
	var posts []*models.Post
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at < ?", models.PostStatusReady, until.UTC()).
		Order("scheduled_at, id").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ready posts: %w", err)
	}
	return posts, nil
}

func (s *PostStore) ListByRecurrence(ctx context.Context, recurrenceID string) ([]*models.Post, error) {
	var posts []*models.Post
	err := s.db.WithContext(ctx).
		Where("recurrence_id = ?", recurrenceID).
		Order("scheduled_at, platform").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list posts for %s: %w", recurrenceID, err)
	}
	return posts, nil
}

// ListReadyMaterialized returns every ready post that came from a recurrence.
func (s *PostStore) ListReadyMaterialized(ctx context.Context) ([]*models.Post, error) {
	var posts []*models.Post
	err := s.db.WithContext(ctx).
		Where("status = ? AND recurrence_id IS NOT NULL", models.PostStatusReady).
		Order("scheduled_at, id").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list materialized posts: %w", err)
	}
	return posts, nil
}

// DeleteReady removes posts that are still ready and returns how many went.
// Queued or published posts are left alone.
func (s *PostStore) DeleteReady(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).
		Where("id IN ? AND status = ?", ids, models.PostStatusReady).
		Delete(&models.Post{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete stale posts: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// RefreshContent rewrites the content of a ready post from its definition.
func (s *PostStore) RefreshContent(ctx context.Context, id, title string, content recurrence.Template) error {
	err := s.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ? AND status = ?", id, models.PostStatusReady).
		Updates(map[string]interface{}{
			"title":    title,
			"content":  content.Text,
			"media":    models.StringArray(content.Media),
			"hashtags": models.StringArray(content.Hashtags),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to refresh post %s: %w", id, err)
	}
	return nil
}

func (s *PostStore) SetStatus(ctx context.Context, status models.PostStatus, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id IN ?", ids).Update("status", status).Error
	if err != nil {
		return fmt.Errorf("failed to mark posts %s: %w", status, err)
	}
	return nil
}

// EntryStore is the gorm-backed queue.EntryStore.
type EntryStore struct {
	db *gorm.DB
}

func NewEntryStore(db *gorm.DB) *EntryStore {
	return &EntryStore{db: db}
}

func (s *EntryStore) Insert(ctx context.Context, entries ...*models.QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		e.ScheduledAt = e.ScheduledAt.UTC()
	}
	if err := s.db.WithContext(ctx).Create(entries).Error; err != nil {
		return fmt.Errorf("failed to insert queue entries: %w", err)
	}
	return nil
}

// Enqueue moves each entry's post from ready to queued and inserts the entry
// in the same transaction. Entries whose post is no longer ready are skipped.
// It returns the entries that were stored.
func (s *EntryStore) Enqueue(ctx context.Context, entries ...*models.QueueEntry) ([]*models.QueueEntry, error) {
	var stored []*models.QueueEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			moved := tx.Model(&models.Post{}).
				Where("id = ? AND status = ?", e.PostID, models.PostStatusReady).
				Update("status", models.PostStatusQueued)
			if moved.Error != nil {
				return moved.Error
			}
			if moved.RowsAffected == 0 {
				continue
			}

			e.ScheduledAt = e.ScheduledAt.UTC()
			if err := tx.Create(e).Error; err != nil {
				return err
			}
			stored = append(stored, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue posts: %w", err)
	}
	return stored, nil
}

func (s *EntryStore) Get(ctx context.Context, id string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", queue.ErrEntryNotFound, id)
		}
		return nil, fmt.Errorf("failed to load queue entry %s: %w", id, err)
	}
	return &entry, nil
}

// List returns entries in queue order. An empty status lists every entry.
func (s *EntryStore) List(ctx context.Context, status models.QueueStatus) ([]*models.QueueEntry, error) {
	query := s.db.WithContext(ctx).Order("scheduled_at, priority, id")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var entries []*models.QueueEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list queue entries: %w", err)
	}
	return entries, nil
}

// ListDue returns pending entries whose scheduled time has been reached.
func (s *EntryStore) ListDue(ctx context.Context, now time.Time) ([]*models.QueueEntry, error) {
	var entries []*models.QueueEntry
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", models.QueueStatusPending, now.UTC()).
		Order("scheduled_at, priority, id").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due entries: %w", err)
	}
	return entries, nil
}

func (s *EntryStore) ListFailed(ctx context.Context) ([]*models.QueueEntry, error) {
	return s.List(ctx, models.QueueStatusFailed)
}

// Claim moves the entry to processing only if its stored status is one of from
// and no attempt was recorded since the caller loaded it.
func (s *EntryStore) Claim(ctx context.Context, id string, attempts int, from ...models.QueueStatus) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Where("id = ? AND attempts = ? AND status IN ?", id, attempts, from).
		Update("status", models.QueueStatusProcessing)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.QueueEntry{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, fmt.Errorf("%w: %s", queue.ErrEntryNotFound, id)
	}
	return false, nil
}

func (s *EntryStore) Save(ctx context.Context, entry *models.QueueEntry) error {
	entry.ScheduledAt = entry.ScheduledAt.UTC()
	return s.db.WithContext(ctx).Save(entry).Error
}

// StatusCounts returns the number of entries per status.
func (s *EntryStore) StatusCounts(ctx context.Context) (map[models.QueueStatus]int64, error) {
	var rows []struct {
		Status models.QueueStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count queue entries: %w", err)
	}

	counts := make(map[models.QueueStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// HintStore serves best-time hints from the best_time_hints table.
type HintStore struct {
	db *gorm.DB
}

func NewHintStore(db *gorm.DB) *HintStore {
	return &HintStore{db: db}
}

func (s *HintStore) BestTimes(ctx context.Context, platform string) ([]queue.BestTimeHint, error) {
	var rows []models.BestTimeHint
	err := s.db.WithContext(ctx).
		Where("platform = ?", platform).
		Order("engagement_score desc, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load best times for %s: %w", platform, err)
	}

	hints := make([]queue.BestTimeHint, 0, len(rows))
	for _, r := range rows {
		hints = append(hints, queue.BestTimeHint{
			DayOfWeek:       time.Weekday(r.DayOfWeek),
			Hour:            r.Hour,
			EngagementScore: r.EngagementScore,
		})
	}
	return hints, nil
}

// Replace swaps the stored hints for a platform.
func (s *HintStore) Replace(ctx context.Context, platform string, hints []queue.BestTimeHint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("platform = ?", platform).Delete(&models.BestTimeHint{}).Error; err != nil {
			return err
		}
		if len(hints) == 0 {
			return nil
		}

		rows := make([]models.BestTimeHint, 0, len(hints))
		for _, h := range hints {
			rows = append(rows, models.BestTimeHint{
				Platform:        platform,
				DayOfWeek:       int(h.DayOfWeek),
				Hour:            h.Hour,
				EngagementScore: h.EngagementScore,
			})
		}
		return tx.Create(&rows).Error
	})
}
