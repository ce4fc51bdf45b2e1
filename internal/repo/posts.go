// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Post
// model. Feed-shaped queries return bare posts; the composer attaches
// authors and viewer flags.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/feedcache/internal/domain"
)

// GetPost returns the post with id, or ErrNotFound.
func GetPost(ctx context.Context, db *gorm.DB, id string) (*domain.Post, error) {
	return Get[domain.Post](ctx, db, id)
}

// CreatePost inserts p.
func CreatePost(ctx context.Context, db *gorm.DB, p *domain.Post) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(p).Error
}

// UpdatePostFields applies fields to the post and bumps updated_at.
// It returns ErrNotFound if no such post exists.
func UpdatePostFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := db.WithContext(ctx).Model(&domain.Post{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FeedPosts returns posts authored by viewerID or by anyone viewerID
// follows, newest first.
func FeedPosts(ctx context.Context, db *gorm.DB, viewerID string, limit, offset int) ([]domain.Post, error) {
	limit, offset = normalizePage(limit, offset)
	q := db.WithContext(ctx)
	followed := q.Model(&domain.Follow{}).Select("following_id").Where("follower_id = ?", viewerID)

	var posts []domain.Post
	err := q.Where("user_id = ? OR user_id IN (?)", viewerID, followed).
		Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&posts).Error
	return posts, err
}

// PostsByUser returns the posts of userID, newest first.
func PostsByUser(ctx context.Context, db *gorm.DB, userID string, limit, offset int) ([]domain.Post, error) {
	limit, offset = normalizePage(limit, offset)
	var posts []domain.Post
	err := db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&posts).Error
	return posts, err
}

// SavedPosts returns the posts viewerID bookmarked, most recently saved first.
func SavedPosts(ctx context.Context, db *gorm.DB, viewerID string, limit, offset int) ([]domain.Post, error) {
	limit, offset = normalizePage(limit, offset)
	var posts []domain.Post
	err := db.WithContext(ctx).Table("posts AS p").Select("p.*").
		Joins("JOIN saved_posts s ON s.post_id = p.id").
		Where("s.user_id = ?", viewerID).
		Order("s.created_at DESC").
		Limit(limit).Offset(offset).
		Find(&posts).Error
	return posts, err
}

// ExplorePosts returns the most liked posts across all authors.
func ExplorePosts(ctx context.Context, db *gorm.DB, limit, offset int) ([]domain.Post, error) {
	limit, offset = normalizePage(limit, offset)
	var posts []domain.Post
	err := db.WithContext(ctx).
		Order("likes_count DESC, created_at DESC").
		Limit(limit).Offset(offset).
		Find(&posts).Error
	return posts, err
}

// SearchPosts matches term against captions, locations and author usernames.
func SearchPosts(ctx context.Context, db *gorm.DB, term string, limit int) ([]domain.Post, error) {
	limit, _ = normalizePage(limit, 0)
	like := "%" + escapeLike(term) + "%"
	var posts []domain.Post
	err := db.WithContext(ctx).Table("posts AS p").Select("p.*").
		Joins("JOIN users u ON u.id = p.user_id").
		Where("p.caption LIKE ? ESCAPE '\\' OR p.location LIKE ? ESCAPE '\\' OR u.username LIKE ? ESCAPE '\\'", like, like, like).
		Order("p.created_at DESC").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

// PostsByLocation returns posts tagged with exactly location, newest first.
func PostsByLocation(ctx context.Context, db *gorm.DB, location string, limit int) ([]domain.Post, error) {
	limit, _ = normalizePage(limit, 0)
	var posts []domain.Post
	err := db.WithContext(ctx).Where("location = ?", location).
		Order("created_at DESC").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}
