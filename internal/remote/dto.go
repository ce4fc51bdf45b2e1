package remote

import (
	"time"

	"github.com/tbourn/feedcache/internal/domain"
)

// Remote records are JSON objects whose keys map onto entity fields.
// Optional fields are pointers; absent values fall back to the empty
// string, zero, or false. Timestamps are epoch milliseconds; an absent
// timestamp stays zero so the store fills in the current time on insert.

type UserDTO struct {
	ID              string  `json:"id"`
	Username        string  `json:"username"`
	Email           string  `json:"email"`
	DisplayName     string  `json:"displayName"`
	Bio             *string `json:"bio,omitempty"`
	ProfileImageURL *string `json:"profileImageUrl,omitempty"`
	Website         *string `json:"website,omitempty"`
	FollowersCount  *int    `json:"followersCount,omitempty"`
	FollowingCount  *int    `json:"followingCount,omitempty"`
	PostsCount      *int    `json:"postsCount,omitempty"`
	IsVerified      *bool   `json:"isVerified,omitempty"`
	IsPrivate       *bool   `json:"isPrivate,omitempty"`
	CreatedAt       *int64  `json:"createdAt,omitempty"`
	UpdatedAt       *int64  `json:"updatedAt,omitempty"`
}

type PostDTO struct {
	ID            string  `json:"id"`
	UserID        string  `json:"userId"`
	Caption       *string `json:"caption,omitempty"`
	ImageURL      string  `json:"imageUrl"`
	Location      *string `json:"location,omitempty"`
	LikesCount    *int    `json:"likesCount,omitempty"`
	CommentsCount *int    `json:"commentsCount,omitempty"`
	CreatedAt     *int64  `json:"createdAt,omitempty"`
	UpdatedAt     *int64  `json:"updatedAt,omitempty"`
}

type StoryDTO struct {
	ID              string  `json:"id"`
	UserID          string  `json:"userId"`
	ImageURL        string  `json:"imageUrl"`
	Text            *string `json:"text,omitempty"`
	BackgroundColor *string `json:"backgroundColor,omitempty"`
	TextColor       *string `json:"textColor,omitempty"`
	ViewsCount      *int    `json:"viewsCount,omitempty"`
	CreatedAt       *int64  `json:"createdAt,omitempty"`
	ExpiresAt       *int64  `json:"expiresAt,omitempty"`
}

type CommentDTO struct {
	ID              string  `json:"id"`
	PostID          string  `json:"postId"`
	UserID          string  `json:"userId"`
	Text            string  `json:"text"`
	ParentCommentID *string `json:"parentCommentId,omitempty"`
	LikesCount      *int    `json:"likesCount,omitempty"`
	RepliesCount    *int    `json:"repliesCount,omitempty"`
	CreatedAt       *int64  `json:"createdAt,omitempty"`
	UpdatedAt       *int64  `json:"updatedAt,omitempty"`
}

type FollowDTO struct {
	FollowerID  string `json:"followerId"`
	FollowingID string `json:"followingId"`
	CreatedAt   *int64 `json:"createdAt,omitempty"`
}

func or[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func millis(p *int64) time.Time {
	if p == nil {
		return time.Time{}
	}
	return time.UnixMilli(*p).UTC()
}

// Millis converts t to epoch milliseconds, the remote timestamp format.
func Millis(t time.Time) *int64 {
	v := t.UnixMilli()
	return &v
}

func (d UserDTO) Entity() domain.User {
	return domain.User{
		ID:              d.ID,
		Username:        d.Username,
		Email:           d.Email,
		DisplayName:     d.DisplayName,
		Bio:             or(d.Bio, ""),
		ProfileImageURL: or(d.ProfileImageURL, ""),
		Website:         or(d.Website, ""),
		FollowersCount:  or(d.FollowersCount, 0),
		FollowingCount:  or(d.FollowingCount, 0),
		PostsCount:      or(d.PostsCount, 0),
		IsVerified:      or(d.IsVerified, false),
		IsPrivate:       or(d.IsPrivate, false),
		CreatedAt:       millis(d.CreatedAt),
		UpdatedAt:       millis(d.UpdatedAt),
	}
}

func (d PostDTO) Entity() domain.Post {
	return domain.Post{
		ID:            d.ID,
		UserID:        d.UserID,
		Caption:       or(d.Caption, ""),
		ImageURL:      d.ImageURL,
		Location:      or(d.Location, ""),
		LikesCount:    or(d.LikesCount, 0),
		CommentsCount: or(d.CommentsCount, 0),
		CreatedAt:     millis(d.CreatedAt),
		UpdatedAt:     millis(d.UpdatedAt),
	}
}

// Entity maps the story. A missing expiry is derived from the creation
// time and ttl when the creation time is known.
func (d StoryDTO) Entity(ttl time.Duration) domain.Story {
	s := domain.Story{
		ID:              d.ID,
		UserID:          d.UserID,
		ImageURL:        d.ImageURL,
		Text:            or(d.Text, ""),
		BackgroundColor: or(d.BackgroundColor, domain.DefaultStoryBackground),
		TextColor:       or(d.TextColor, domain.DefaultStoryText),
		ViewsCount:      or(d.ViewsCount, 0),
		CreatedAt:       millis(d.CreatedAt),
		ExpiresAt:       millis(d.ExpiresAt),
	}
	if s.ExpiresAt.IsZero() && !s.CreatedAt.IsZero() {
		s.ExpiresAt = s.CreatedAt.Add(ttl)
	}
	return s
}

func (d CommentDTO) Entity() domain.Comment {
	c := domain.Comment{
		ID:           d.ID,
		PostID:       d.PostID,
		UserID:       d.UserID,
		Text:         d.Text,
		LikesCount:   or(d.LikesCount, 0),
		RepliesCount: or(d.RepliesCount, 0),
		CreatedAt:    millis(d.CreatedAt),
		UpdatedAt:    millis(d.UpdatedAt),
	}
	if d.ParentCommentID != nil && *d.ParentCommentID != "" {
		parent := *d.ParentCommentID
		c.ParentCommentID = &parent
	}
	return c
}

func (d FollowDTO) Entity() domain.Follow {
	return domain.Follow{FollowerID: d.FollowerID, FollowingID: d.FollowingID, CreatedAt: millis(d.CreatedAt)}
}
