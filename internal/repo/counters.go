// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file recomputes the cached counters on users, posts,
// stories and comments from the rows they summarize.
//
// Every function performs a full recount in a single UPDATE with correlated
// subqueries; nothing is incremented. Timestamps and hooks are skipped, so a
// recount is not an edit. Recomputing a missing entity is a no-op.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/feedcache/internal/domain"
)

func countOf(q *gorm.DB, model any, where string, args ...any) *gorm.DB {
	return q.Model(model).Select("COUNT(*)").Where(where, args...)
}

// RecomputePostCounts sets likes_count to the number of likes of the post
// and comments_count to the number of its top-level comments.
func RecomputePostCounts(ctx context.Context, db *gorm.DB, postID string) error {
	q := db.WithContext(ctx)
	return q.Model(&domain.Post{}).Where("id = ?", postID).UpdateColumns(map[string]any{
		"likes_count":    countOf(q, &domain.PostLike{}, "post_id = ?", postID),
		"comments_count": countOf(q, &domain.Comment{}, "post_id = ? AND parent_comment_id IS NULL", postID),
	}).Error
}

// RecomputeUserCounts sets followers_count, following_count and posts_count
// from the follow edges and posts of the user.
func RecomputeUserCounts(ctx context.Context, db *gorm.DB, userID string) error {
	q := db.WithContext(ctx)
	return q.Model(&domain.User{}).Where("id = ?", userID).UpdateColumns(map[string]any{
		"followers_count": countOf(q, &domain.Follow{}, "following_id = ?", userID),
		"following_count": countOf(q, &domain.Follow{}, "follower_id = ?", userID),
		"posts_count":     countOf(q, &domain.Post{}, "user_id = ?", userID),
	}).Error
}

// RecomputeStoryCounts sets views_count from the story's view records.
func RecomputeStoryCounts(ctx context.Context, db *gorm.DB, storyID string) error {
	q := db.WithContext(ctx)
	return q.Model(&domain.Story{}).Where("id = ?", storyID).UpdateColumns(map[string]any{
		"views_count": countOf(q, &domain.StoryView{}, "story_id = ?", storyID),
	}).Error
}

// RecomputeCommentCounts sets likes_count and replies_count of a comment.
func RecomputeCommentCounts(ctx context.Context, db *gorm.DB, commentID string) error {
	q := db.WithContext(ctx)
	return q.Model(&domain.Comment{}).Where("id = ?", commentID).UpdateColumns(map[string]any{
		"likes_count":   countOf(q, &domain.CommentLike{}, "comment_id = ?", commentID),
		"replies_count": countOf(q, &domain.Comment{}, "parent_comment_id = ?", commentID),
	}).Error
}
