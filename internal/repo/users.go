// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User
// model: lookups, local registration, profile edits, and the user lists the
// composer builds on (search, followers, suggestions).
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/feedcache/internal/domain"
)

// GetUser returns the user with id, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return Get[domain.User](ctx, db, id)
}

func getUserBy(ctx context.Context, db *gorm.DB, column, value string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Where(column+" = ?", value).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByUsername returns the user with the exact username, or ErrNotFound.
func GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	return getUserBy(ctx, db, "username", username)
}

// GetUserByEmail returns the user with the exact email, or ErrNotFound.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return getUserBy(ctx, db, "email", email)
}

// CreateUser inserts u and returns ErrDuplicate when the id, username or
// email is already taken.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UpdateUserFields applies fields (column -> value) to the user and bumps
// updated_at. It returns ErrNotFound if no such user exists.
func UpdateUserFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UsersByIDs loads the given users keyed by id. Missing ids are absent
// from the map.
func UsersByIDs(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.User, error) {
	out := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []domain.User
	if err := db.WithContext(ctx).Where("id IN ?", dedupe(ids)).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// SearchUsers matches term against usernames and display names. Username
// prefix matches rank first, then by follower count.
func SearchUsers(ctx context.Context, db *gorm.DB, term string, limit int) ([]domain.User, error) {
	limit, _ = normalizePage(limit, 0)
	like := "%" + escapeLike(term) + "%"
	prefix := escapeLike(term) + "%"
	var users []domain.User
	err := db.WithContext(ctx).
		Where("username LIKE ? ESCAPE '\\' OR display_name LIKE ? ESCAPE '\\'", like, like).
		Clauses(clause.OrderBy{Expression: clause.Expr{
			SQL:                "CASE WHEN username LIKE ? ESCAPE '\\' THEN 0 ELSE 1 END, followers_count DESC",
			Vars:               []any{prefix},
			WithoutParentheses: true,
		}}).
		Limit(limit).
		Find(&users).Error
	return users, err
}

// PopularUsers returns the users with the most followers.
func PopularUsers(ctx context.Context, db *gorm.DB, limit int) ([]domain.User, error) {
	limit, _ = normalizePage(limit, 0)
	var users []domain.User
	err := db.WithContext(ctx).Order("followers_count DESC, username ASC").Limit(limit).Find(&users).Error
	return users, err
}

// Followers lists the users following userID, most recent edge first.
func Followers(ctx context.Context, db *gorm.DB, userID string, limit, offset int) ([]domain.User, error) {
	limit, offset = normalizePage(limit, offset)
	var users []domain.User
	err := db.WithContext(ctx).Table("users AS u").Select("u.*").
		Joins("JOIN user_follows f ON f.follower_id = u.id").
		Where("f.following_id = ?", userID).
		Order("f.created_at DESC").
		Limit(limit).Offset(offset).
		Find(&users).Error
	return users, err
}

// Following lists the users userID follows, most recent edge first.
func Following(ctx context.Context, db *gorm.DB, userID string, limit, offset int) ([]domain.User, error) {
	limit, offset = normalizePage(limit, offset)
	var users []domain.User
	err := db.WithContext(ctx).Table("users AS u").Select("u.*").
		Joins("JOIN user_follows f ON f.following_id = u.id").
		Where("f.follower_id = ?", userID).
		Order("f.created_at DESC").
		Limit(limit).Offset(offset).
		Find(&users).Error
	return users, err
}

// SuggestedUsers returns users followed by the people viewerID follows,
// excluding viewerID and everyone viewerID already follows, ranked by
// follower count.
func SuggestedUsers(ctx context.Context, db *gorm.DB, viewerID string, limit int) ([]domain.User, error) {
	limit, _ = normalizePage(limit, 0)
	q := db.WithContext(ctx)
	followed := q.Model(&domain.Follow{}).Select("following_id").Where("follower_id = ?", viewerID)

	var users []domain.User
	err := q.Table("users AS u").Select("DISTINCT u.*").
		Joins("JOIN user_follows f2 ON f2.following_id = u.id").
		Joins("JOIN user_follows f1 ON f1.following_id = f2.follower_id").
		Where("f1.follower_id = ?", viewerID).
		Where("u.id <> ?", viewerID).
		Where("u.id NOT IN (?)", followed).
		Order("u.followers_count DESC, u.username ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

// MutualFollowersCount counts the accounts viewerID follows that also
// follow targetID.
func MutualFollowersCount(ctx context.Context, db *gorm.DB, viewerID, targetID string) (int, error) {
	q := db.WithContext(ctx)
	targetFollowers := q.Model(&domain.Follow{}).Select("follower_id").Where("following_id = ?", targetID)

	var n int64
	err := q.Model(&domain.Follow{}).
		Where("follower_id = ? AND following_id IN (?)", viewerID, targetFollowers).
		Count(&n).Error
	return int(n), err
}

// PostLikers lists the users who liked postID, most recent first.
func PostLikers(ctx context.Context, db *gorm.DB, postID string, limit, offset int) ([]domain.User, error) {
	limit, offset = normalizePage(limit, offset)
	var users []domain.User
	err := db.WithContext(ctx).Table("users AS u").Select("u.*").
		Joins("JOIN post_likes l ON l.user_id = u.id").
		Where("l.post_id = ?", postID).
		Order("l.created_at DESC").
		Limit(limit).Offset(offset).
		Find(&users).Error
	return users, err
}

// StoryViewers lists the users who viewed storyID, most recent first.
func StoryViewers(ctx context.Context, db *gorm.DB, storyID string, limit int) ([]domain.User, error) {
	limit, _ = normalizePage(limit, 0)
	var users []domain.User
	err := db.WithContext(ctx).Table("users AS u").Select("u.*").
		Joins("JOIN story_views v ON v.viewer_id = u.id").
		Where("v.story_id = ?", storyID).
		Order("v.created_at DESC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
