package domain

import "time"

// Relation records are keyed by the pair of ids they connect and carry
// nothing but their creation time. They are written only by local user
// actions; remote sync never touches them.

// Follow is a directed edge: FollowerID follows FollowingID.
type Follow struct {
	FollowerID  string    `json:"follower_id"  gorm:"type:varchar(64);primaryKey"`
	FollowingID string    `json:"following_id" gorm:"type:varchar(64);primaryKey;index"`
	CreatedAt   time.Time `json:"created_at"`

	Follower  User `json:"-" gorm:"foreignKey:FollowerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Following User `json:"-" gorm:"foreignKey:FollowingID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Follow) TableName() string { return "user_follows" }

// PostLike records that UserID liked PostID.
type PostLike struct {
	PostID    string    `json:"post_id" gorm:"type:varchar(64);primaryKey"`
	UserID    string    `json:"user_id" gorm:"type:varchar(64);primaryKey;index"`
	CreatedAt time.Time `json:"created_at"`

	Post Post `json:"-" gorm:"foreignKey:PostID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (PostLike) TableName() string { return "post_likes" }

// SavedPost records that UserID bookmarked PostID.
type SavedPost struct {
	PostID    string    `json:"post_id" gorm:"type:varchar(64);primaryKey"`
	UserID    string    `json:"user_id" gorm:"type:varchar(64);primaryKey;index"`
	CreatedAt time.Time `json:"created_at"`

	Post Post `json:"-" gorm:"foreignKey:PostID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (SavedPost) TableName() string { return "saved_posts" }

// CommentLike records that UserID liked CommentID.
type CommentLike struct {
	CommentID string    `json:"comment_id" gorm:"type:varchar(64);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);primaryKey;index"`
	CreatedAt time.Time `json:"created_at"`

	Comment Comment `json:"-" gorm:"foreignKey:CommentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	User    User    `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (CommentLike) TableName() string { return "comment_likes" }

// StoryView records that ViewerID has seen StoryID. Views are append-only.
type StoryView struct {
	StoryID   string    `json:"story_id"  gorm:"type:varchar(64);primaryKey"`
	ViewerID  string    `json:"viewer_id" gorm:"type:varchar(64);primaryKey;index"`
	CreatedAt time.Time `json:"viewed_at"`

	Story  Story `json:"-" gorm:"foreignKey:StoryID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Viewer User  `json:"-" gorm:"foreignKey:ViewerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (StoryView) TableName() string { return "story_views" }
