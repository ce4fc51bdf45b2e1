package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/feedcache/internal/domain"
)

// GetComment returns the comment with id, or ErrNotFound.
func GetComment(ctx context.Context, db *gorm.DB, id string) (*domain.Comment, error) {
	return Get[domain.Comment](ctx, db, id)
}

// CreateComment inserts c.
func CreateComment(ctx context.Context, db *gorm.DB, c *domain.Comment) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(c).Error
}

// TopLevelComments returns the comments of postID that are not replies,
// oldest first.
func TopLevelComments(ctx context.Context, db *gorm.DB, postID string, limit, offset int) ([]domain.Comment, error) {
	limit, offset = normalizePage(limit, offset)
	var out []domain.Comment
	err := db.WithContext(ctx).
		Where("post_id = ? AND parent_comment_id IS NULL", postID).
		Order("created_at ASC, id ASC").
		Limit(limit).Offset(offset).
		Find(&out).Error
	return out, err
}

// Replies returns every reply to any of parentIDs, oldest first.
func Replies(ctx context.Context, db *gorm.DB, parentIDs []string) ([]domain.Comment, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var out []domain.Comment
	err := db.WithContext(ctx).
		Where("parent_comment_id IN ?", parentIDs).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
