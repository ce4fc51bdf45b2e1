package domain

// Read models. Each pairs a base entity with the viewer-scoped flags the
// composer derives from relation records. They are never persisted.

// PostWithUser is a post, its author, and the viewer's interaction state.
type PostWithUser struct {
	Post    Post `json:"post"`
	User    User `json:"user"`
	IsLiked bool `json:"is_liked"`
	IsSaved bool `json:"is_saved"`
}

// StoryWithUser is a story, its author, and whether the viewer saw it.
type StoryWithUser struct {
	Story    Story `json:"story"`
	User     User  `json:"user"`
	IsViewed bool  `json:"is_viewed"`
}

// UserStories groups the active stories of one author.
type UserStories struct {
	User               User            `json:"user"`
	Stories            []StoryWithUser `json:"stories"`
	HasUnviewedStories bool            `json:"has_unviewed_stories"`
}

// UserProfile is a user as seen by the viewer.
type UserProfile struct {
	User                 User `json:"user"`
	IsFollowing          bool `json:"is_following"`
	IsFollowedBy         bool `json:"is_followed_by"`
	MutualFollowersCount int  `json:"mutual_followers_count"`
}

// UserWithFollow is an entry of a user list (followers, likers, search
// results) with the viewer's follow edge.
type UserWithFollow struct {
	User        User `json:"user"`
	IsFollowing bool `json:"is_following"`
}

// CommentWithUser is a comment, its author, the viewer's like, and for
// top-level comments the replies beneath it.
type CommentWithUser struct {
	Comment Comment           `json:"comment"`
	User    User              `json:"user"`
	IsLiked bool              `json:"is_liked"`
	Replies []CommentWithUser `json:"replies,omitempty"`
}
