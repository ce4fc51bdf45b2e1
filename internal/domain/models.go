// Package domain defines the persistence models of the local feed cache:
// content entities mirrored from the remote feed service (users, posts,
// stories, comments) and the relation records that hold the viewer's own
// interaction state. These types are mapped with GORM.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// DefaultStoryTTL is the lifetime given to a story whose expiry is unknown
// at insert time.
var DefaultStoryTTL = 24 * time.Hour

// Default overlay colors for stories that do not carry their own.
const (
	DefaultStoryBackground = "#000000"
	DefaultStoryText       = "#FFFFFF"
)

// User is a member of the network. Content fields are owned by the remote
// service; the cached counters are recomputed locally from relation records.
//
// Fields:
//   - ID: opaque identifier (remote-assigned, or a UUID for local registrations).
//   - Username / Email: unique, stored lower-cased for local registrations.
//   - FollowersCount / FollowingCount / PostsCount: derived counters.
//   - CreatedAt / UpdatedAt: timestamps; filled by GORM when absent.
type User struct {
	ID              string    `json:"id"                gorm:"type:varchar(64);primaryKey"`
	Username        string    `json:"username"          gorm:"type:varchar(64);not null;uniqueIndex:ux_users_username"`
	Email           string    `json:"email"             gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	DisplayName     string    `json:"display_name"      gorm:"type:varchar(255);not null"`
	Bio             string    `json:"bio"               gorm:"type:text;not null"`
	ProfileImageURL string    `json:"profile_image_url" gorm:"column:profile_image_url;type:text;not null"`
	Website         string    `json:"website"           gorm:"type:text;not null"`
	IsVerified      bool      `json:"is_verified"       gorm:"not null"`
	IsPrivate       bool      `json:"is_private"        gorm:"not null"`
	FollowersCount  int       `json:"followers_count"   gorm:"not null"`
	FollowingCount  int       `json:"following_count"   gorm:"not null"`
	PostsCount      int       `json:"posts_count"       gorm:"not null"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Post is an image post owned by its author. Deleting the author deletes
// the post.
type Post struct {
	ID            string    `json:"id"             gorm:"type:varchar(64);primaryKey"`
	UserID        string    `json:"user_id"        gorm:"type:varchar(64);not null;index:idx_posts_user_created,priority:1"`
	Caption       string    `json:"caption"        gorm:"type:text;not null"`
	ImageURL      string    `json:"image_url"      gorm:"column:image_url;type:text;not null"`
	Location      string    `json:"location"       gorm:"type:varchar(255);not null;index"`
	LikesCount    int       `json:"likes_count"    gorm:"not null"`
	CommentsCount int       `json:"comments_count" gorm:"not null"`
	CreatedAt     time.Time `json:"created_at"     gorm:"index:idx_posts_user_created,priority:2"`
	UpdatedAt     time.Time `json:"updated_at"`

	Owner User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Post.
func (Post) TableName() string { return "posts" }

// Story is an ephemeral post. A story is active while now < ExpiresAt;
// there is no persisted active flag.
type Story struct {
	ID              string    `json:"id"               gorm:"type:varchar(64);primaryKey"`
	UserID          string    `json:"user_id"          gorm:"type:varchar(64);not null;index"`
	ImageURL        string    `json:"image_url"        gorm:"column:image_url;type:text;not null"`
	Text            string    `json:"text"             gorm:"type:text;not null"`
	BackgroundColor string    `json:"background_color" gorm:"type:varchar(16);not null"`
	TextColor       string    `json:"text_color"       gorm:"type:varchar(16);not null"`
	ViewsCount      int       `json:"views_count"      gorm:"not null"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"       gorm:"not null;index"`

	Owner User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Story.
func (Story) TableName() string { return "stories" }

// IsActive reports whether the story is still visible at now.
// A story whose expiry equals now is already expired.
func (s Story) IsActive(now time.Time) bool { return now.Before(s.ExpiresAt) }

// BeforeCreate fills the creation time, the expiry and the overlay colors
// when they are missing.
func (s *Story) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = tx.NowFunc()
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = s.CreatedAt.Add(DefaultStoryTTL)
	}
	if s.BackgroundColor == "" {
		s.BackgroundColor = DefaultStoryBackground
	}
	if s.TextColor == "" {
		s.TextColor = DefaultStoryText
	}
	return nil
}

// Comment is a remark on a post. A comment with a ParentCommentID is a
// reply; replies are a single level deep.
type Comment struct {
	ID              string    `json:"id"                          gorm:"type:varchar(64);primaryKey"`
	PostID          string    `json:"post_id"                     gorm:"type:varchar(64);not null;index:idx_comments_post_created,priority:1"`
	UserID          string    `json:"user_id"                     gorm:"type:varchar(64);not null;index"`
	Text            string    `json:"text"                        gorm:"type:text;not null"`
	ParentCommentID *string   `json:"parent_comment_id,omitempty" gorm:"type:varchar(64);index"`
	LikesCount      int       `json:"likes_count"                 gorm:"not null"`
	RepliesCount    int       `json:"replies_count"               gorm:"not null"`
	CreatedAt       time.Time `json:"created_at"                  gorm:"index:idx_comments_post_created,priority:2"`
	UpdatedAt       time.Time `json:"updated_at"`

	Post   Post     `json:"-" gorm:"foreignKey:PostID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Author User     `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Parent *Comment `json:"-" gorm:"foreignKey:ParentCommentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "comments" }

// IsReply reports whether c answers another comment.
func (c Comment) IsReply() bool { return c.ParentCommentID != nil && *c.ParentCommentID != "" }
