package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/feedcache/internal/domain"
)

// DeleteExpiredStoryViews removes view records of stories whose expiry is
// at or before now.
func DeleteExpiredStoryViews(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	q := db.WithContext(ctx)
	expired := q.Model(&domain.Story{}).Select("id").Where("expires_at <= ?", now.UTC())
	res := q.Where("story_id IN (?)", expired).Delete(&domain.StoryView{})
	return res.RowsAffected, res.Error
}

// DeleteExpiredStories removes stories whose expiry is at or before now.
func DeleteExpiredStories(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&domain.Story{})
	return res.RowsAffected, res.Error
}
