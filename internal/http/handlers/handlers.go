package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/feedcache/internal/domain"
	"github.com/tbourn/feedcache/internal/services"
	"github.com/tbourn/feedcache/internal/session"
	"github.com/tbourn/feedcache/internal/utils"
)

//
// Service contracts
//

// Reader composes viewer-scoped read models.
type Reader interface {
	Feed(ctx context.Context, v session.Viewer, limit, offset int) ([]domain.PostWithUser, error)
	UserPosts(ctx context.Context, v session.Viewer, userID string, limit, offset int) ([]domain.PostWithUser, error)
	SavedPosts(ctx context.Context, v session.Viewer, limit, offset int) ([]domain.PostWithUser, error)
	Explore(ctx context.Context, v session.Viewer, limit, offset int) ([]domain.PostWithUser, error)
	SearchPosts(ctx context.Context, v session.Viewer, term string, limit int) ([]domain.PostWithUser, error)
	PostsByLocation(ctx context.Context, v session.Viewer, location string, limit int) ([]domain.PostWithUser, error)
	Post(ctx context.Context, v session.Viewer, postID string) (*domain.PostWithUser, error)
	FeedStories(ctx context.Context, v session.Viewer) ([]domain.StoryWithUser, error)
	UserStories(ctx context.Context, v session.Viewer, userID string) ([]domain.StoryWithUser, error)
	FollowingWithStories(ctx context.Context, v session.Viewer) ([]domain.UserStories, error)
	Profile(ctx context.Context, v session.Viewer, userID string) (*domain.UserProfile, error)
	SuggestedUsers(ctx context.Context, v session.Viewer, limit int) ([]domain.User, error)
	SearchUsers(ctx context.Context, v session.Viewer, term string, limit int) ([]domain.UserWithFollow, error)
	Followers(ctx context.Context, v session.Viewer, userID string, limit, offset int) ([]domain.UserWithFollow, error)
	Following(ctx context.Context, v session.Viewer, userID string, limit, offset int) ([]domain.UserWithFollow, error)
	PostLikers(ctx context.Context, v session.Viewer, postID string, limit, offset int) ([]domain.UserWithFollow, error)
	PopularUsers(ctx context.Context, v session.Viewer, limit int) ([]domain.UserWithFollow, error)
	StoryViewers(ctx context.Context, v session.Viewer, storyID string, limit int) ([]domain.UserWithFollow, error)
	Comments(ctx context.Context, v session.Viewer, postID string, limit, offset int) ([]domain.CommentWithUser, error)
}

// Interactions flips or sets the viewer's relation rows.
type Interactions interface {
	ToggleLike(ctx context.Context, v session.Viewer, postID string) (bool, error)
	ToggleSave(ctx context.Context, v session.Viewer, postID string) (bool, error)
	ToggleCommentLike(ctx context.Context, v session.Viewer, commentID string) (bool, error)
	ToggleFollow(ctx context.Context, v session.Viewer, targetID string) (bool, error)
	SetLiked(ctx context.Context, v session.Viewer, postID string, liked bool) error
	SetSaved(ctx context.Context, v session.Viewer, postID string, saved bool) error
	SetFollowing(ctx context.Context, v session.Viewer, targetID string, following bool) error
	ViewStory(ctx context.Context, v session.Viewer, storyID string) (bool, error)
}

// Syncer refreshes the cache from the remote service.
type Syncer interface {
	RefreshFeed(ctx context.Context, v session.Viewer) (services.FeedRefresh, error)
	RefreshStories(ctx context.Context, v session.Viewer) (services.StoriesRefresh, error)
	RefreshComments(ctx context.Context, v session.Viewer, postID string) (services.CommentsRefresh, error)
}

// Posts authors posts.
type Posts interface {
	CreatePost(ctx context.Context, v session.Viewer, caption, imageURL, location string) (*domain.Post, error)
	UpdatePost(ctx context.Context, v session.Viewer, postID string, in services.PostUpdate) (*domain.Post, error)
	DeletePost(ctx context.Context, v session.Viewer, postID string) error
}

// Comments authors comments.
type Comments interface {
	AddComment(ctx context.Context, v session.Viewer, postID, text string, parentID *string) (*domain.Comment, error)
	DeleteComment(ctx context.Context, v session.Viewer, commentID string) error
}

// Stories authors stories.
type Stories interface {
	CreateStory(ctx context.Context, v session.Viewer, in services.StoryInput) (*domain.Story, error)
}

// Accounts manages the session and the viewer's profile.
type Accounts interface {
	Register(ctx context.Context, username, email, displayName string) (*domain.User, error)
	Login(ctx context.Context, email string) (*domain.User, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*domain.User, error)
	UpdateProfile(ctx context.Context, v session.Viewer, in services.ProfileUpdate) (*domain.User, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. Every request acts for Viewer.
type Handlers struct {
	Viewer   session.Viewer
	Reader   Reader
	Toggles  Interactions
	Sync     Syncer
	Posts    Posts
	Comments Comments
	Stories  Stories
	Accounts Accounts
	Live     Live

	// PageSize is the default window of list endpoints.
	PageSize int
}

const maxPageSize = 100

func (h *Handlers) page(c *gin.Context) utils.Page {
	def := h.PageSize
	if def <= 0 {
		def = 20
	}
	return utils.ParsePage(c.Query("limit"), c.Query("offset"), def, maxPageSize)
}

// limit reads the "limit" query value; 0 lets the service pick its default.
func limit(c *gin.Context) int {
	n := utils.AtoiDefault(c.Query("limit"), 0)
	if n < 0 {
		return 0
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}

// flagRequest is the optional body of the toggle endpoints. Without a body
// the relation is flipped; with one it is set to Value.
type flagRequest struct {
	Value *bool `json:"value"`
}

func optionalFlag(c *gin.Context) (*bool, bool) {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil, true
	}
	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return nil, false
	}
	return req.Value, true
}

// toggle runs flip, or set when the body carries a value, and writes
// {key: state}.
func toggle(c *gin.Context, key string, flip func() (bool, error), set func(bool) error) {
	want, good := optionalFlag(c)
	if !good {
		return
	}
	var (
		state bool
		err   error
	)
	if want == nil {
		state, err = flip()
	} else {
		state, err = *want, set(*want)
	}
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{key: state})
}

// warning renders a soft sync failure for the refresh responses.
func warning(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
