package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/feedcache/internal/domain"
)

// GetStory returns the story with id, or ErrNotFound. Expired stories that
// were not swept yet are still returned.
func GetStory(ctx context.Context, db *gorm.DB, id string) (*domain.Story, error) {
	return Get[domain.Story](ctx, db, id)
}

// CreateStory inserts s. Missing expiry and colors are filled by the model hook.
func CreateStory(ctx context.Context, db *gorm.DB, s *domain.Story) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(s).Error
}

// ActiveFeedStories returns the stories active at now whose author is
// viewerID or someone viewerID follows, newest first.
func ActiveFeedStories(ctx context.Context, db *gorm.DB, viewerID string, now time.Time) ([]domain.Story, error) {
	q := db.WithContext(ctx)
	followed := q.Model(&domain.Follow{}).Select("following_id").Where("follower_id = ?", viewerID)

	var stories []domain.Story
	err := q.Where("expires_at > ?", now.UTC()).
		Where("user_id = ? OR user_id IN (?)", viewerID, followed).
		Order("created_at DESC, id DESC").
		Find(&stories).Error
	return stories, err
}

// ActiveStoriesByUser returns userID's stories active at now in the order
// they were posted.
func ActiveStoriesByUser(ctx context.Context, db *gorm.DB, userID string, now time.Time) ([]domain.Story, error) {
	var stories []domain.Story
	err := db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now.UTC()).
		Order("created_at ASC, id ASC").
		Find(&stories).Error
	return stories, err
}
