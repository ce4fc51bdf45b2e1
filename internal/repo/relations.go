// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides helpers for the relation tables
// (follows, likes, saves, story views): existence checks, insert-if-absent,
// delete, and per-viewer flag sets used by the read models.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/feedcache/internal/domain"
)

func relationExists(ctx context.Context, db *gorm.DB, model any, query string, args ...any) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Model(model).Where(query, args...).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// insertRelation writes rec unless its composite key exists and reports
// whether a row was added.
func insertRelation(ctx context.Context, db *gorm.DB, rec any) (bool, error) {
	res := db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	return res.RowsAffected > 0, res.Error
}

func deleteRelation(ctx context.Context, db *gorm.DB, model any, query string, args ...any) (bool, error) {
	res := db.WithContext(ctx).Where(query, args...).Delete(model)
	return res.RowsAffected > 0, res.Error
}

// flagSet returns which of ids have a relation row owned by viewer.
func flagSet(ctx context.Context, db *gorm.DB, model any, keyCol, viewerCol, viewer string, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if viewer == "" || len(ids) == 0 {
		return out, nil
	}
	var hits []string
	err := db.WithContext(ctx).Model(model).
		Where(viewerCol+" = ? AND "+keyCol+" IN ?", viewer, ids).
		Pluck(keyCol, &hits).Error
	if err != nil {
		return nil, err
	}
	for _, id := range hits {
		out[id] = true
	}
	return out, nil
}

// Follows

func IsFollowing(ctx context.Context, db *gorm.DB, followerID, followingID string) (bool, error) {
	return relationExists(ctx, db, &domain.Follow{}, "follower_id = ? AND following_id = ?", followerID, followingID)
}

func AddFollow(ctx context.Context, db *gorm.DB, followerID, followingID string) (bool, error) {
	return insertRelation(ctx, db, &domain.Follow{FollowerID: followerID, FollowingID: followingID})
}

func RemoveFollow(ctx context.Context, db *gorm.DB, followerID, followingID string) (bool, error) {
	return deleteRelation(ctx, db, &domain.Follow{}, "follower_id = ? AND following_id = ?", followerID, followingID)
}

// FollowingIDs returns the ids userID follows.
func FollowingIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Model(&domain.Follow{}).Where("follower_id = ?", userID).Pluck("following_id", &ids).Error
	return ids, err
}

// FollowingSet returns which of userIDs viewer follows.
func FollowingSet(ctx context.Context, db *gorm.DB, viewer string, userIDs []string) (map[string]bool, error) {
	return flagSet(ctx, db, &domain.Follow{}, "following_id", "follower_id", viewer, userIDs)
}

// InsertFollows adds the edges that are not present yet and returns how
// many were added. Existing edges are left alone.
func InsertFollows(ctx context.Context, db *gorm.DB, edges []domain.Follow) (int64, error) {
	if len(edges) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&edges, insertChunk)
	return res.RowsAffected, res.Error
}

// Post likes

func IsPostLiked(ctx context.Context, db *gorm.DB, postID, userID string) (bool, error) {
	return relationExists(ctx, db, &domain.PostLike{}, "post_id = ? AND user_id = ?", postID, userID)
}

func AddPostLike(ctx context.Context, db *gorm.DB, postID, userID string) (bool, error) {
	return insertRelation(ctx, db, &domain.PostLike{PostID: postID, UserID: userID})
}

func RemovePostLike(ctx context.Context, db *gorm.DB, postID, userID string) (bool, error) {
	return deleteRelation(ctx, db, &domain.PostLike{}, "post_id = ? AND user_id = ?", postID, userID)
}

func LikedPostSet(ctx context.Context, db *gorm.DB, viewer string, postIDs []string) (map[string]bool, error) {
	return flagSet(ctx, db, &domain.PostLike{}, "post_id", "user_id", viewer, postIDs)
}

// Saved posts

func IsPostSaved(ctx context.Context, db *gorm.DB, postID, userID string) (bool, error) {
	return relationExists(ctx, db, &domain.SavedPost{}, "post_id = ? AND user_id = ?", postID, userID)
}

func AddSavedPost(ctx context.Context, db *gorm.DB, postID, userID string) (bool, error) {
	return insertRelation(ctx, db, &domain.SavedPost{PostID: postID, UserID: userID})
}

func RemoveSavedPost(ctx context.Context, db *gorm.DB, postID, userID string) (bool, error) {
	return deleteRelation(ctx, db, &domain.SavedPost{}, "post_id = ? AND user_id = ?", postID, userID)
}

func SavedPostSet(ctx context.Context, db *gorm.DB, viewer string, postIDs []string) (map[string]bool, error) {
	return flagSet(ctx, db, &domain.SavedPost{}, "post_id", "user_id", viewer, postIDs)
}

// Comment likes

func IsCommentLiked(ctx context.Context, db *gorm.DB, commentID, userID string) (bool, error) {
	return relationExists(ctx, db, &domain.CommentLike{}, "comment_id = ? AND user_id = ?", commentID, userID)
}

func AddCommentLike(ctx context.Context, db *gorm.DB, commentID, userID string) (bool, error) {
	return insertRelation(ctx, db, &domain.CommentLike{CommentID: commentID, UserID: userID})
}

func RemoveCommentLike(ctx context.Context, db *gorm.DB, commentID, userID string) (bool, error) {
	return deleteRelation(ctx, db, &domain.CommentLike{}, "comment_id = ? AND user_id = ?", commentID, userID)
}

func LikedCommentSet(ctx context.Context, db *gorm.DB, viewer string, commentIDs []string) (map[string]bool, error) {
	return flagSet(ctx, db, &domain.CommentLike{}, "comment_id", "user_id", viewer, commentIDs)
}

// Story views (append-only)

func AddStoryView(ctx context.Context, db *gorm.DB, storyID, viewerID string) (bool, error) {
	return insertRelation(ctx, db, &domain.StoryView{StoryID: storyID, ViewerID: viewerID})
}

func ViewedStorySet(ctx context.Context, db *gorm.DB, viewer string, storyIDs []string) (map[string]bool, error) {
	return flagSet(ctx, db, &domain.StoryView{}, "story_id", "viewer_id", viewer, storyIDs)
}
