// Feed and story HTTP handlers.
//
// Reads are served from the local store only. The refresh endpoints pull
// from the remote service first; when it is down they still answer 200 with
// the cached view and a sync_warning.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/feedcache/internal/domain"
	"github.com/tbourn/feedcache/internal/services"
)

// FeedResponse is a window of composed posts.
type FeedResponse struct {
	Posts       []domain.PostWithUser `json:"posts"`
	SyncWarning string                `json:"sync_warning,omitempty"`
}

// StoriesResponse is the story tray.
type StoriesResponse struct {
	Stories     []domain.StoryWithUser `json:"stories"`
	SyncWarning string                 `json:"sync_warning,omitempty"`
}

// CreateStoryRequest is the payload of POST /stories.
type CreateStoryRequest struct {
	ImageURL        string `json:"image_url"        binding:"required" example:"https://img.example.com/s.jpg"`
	Text            string `json:"text"             example:"good morning"`
	BackgroundColor string `json:"background_color" example:"#000000"`
	TextColor       string `json:"text_color"       example:"#FFFFFF"`
}

// Feed godoc
// @ID          feed
// @Summary     Home feed from the local cache
// @Tags        Feed
// @Produce     json
// @Param       limit   query     int  false  "Window size"  maximum(100)
// @Param       offset  query     int  false  "Window start"
// @Success     200     {object}  handlers.FeedResponse
// @Router      /feed [get]
func (h *Handlers) Feed(c *gin.Context) {
	p := h.page(c)
	posts, err := h.Reader.Feed(c.Request.Context(), h.Viewer, p.Limit, p.Offset)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, FeedResponse{Posts: posts})
}

// RefreshFeed godoc
// @ID          refreshFeed
// @Summary     Pull users and posts from the remote service, then return the feed
// @Tags        Feed
// @Produce     json
// @Success     200  {object}  handlers.FeedResponse  "sync_warning is set when the remote failed"
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /feed/refresh [post]
func (h *Handlers) RefreshFeed(c *gin.Context) {
	res, err := h.Sync.RefreshFeed(c.Request.Context(), h.Viewer)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, FeedResponse{Posts: res.Posts, SyncWarning: warning(res.SyncErr)})
}

// Explore godoc
// @ID          explore
// @Summary     Most liked posts, newest first on ties
// @Tags        Posts
// @Produce     json
// @Param       limit   query int  false  "Window size"  maximum(100)
// @Param       offset  query int  false  "Window start"
// @Success     200  {object} handlers.FeedResponse
// @Router      /posts/explore [get]
func (h *Handlers) Explore(c *gin.Context) {
	p := h.page(c)
	posts, err := h.Reader.Explore(c.Request.Context(), h.Viewer, p.Limit, p.Offset)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, FeedResponse{Posts: posts})
}

// SavedPosts godoc
// @ID          savedPosts
// @Summary     The viewer's bookmarks, most recently saved first
// @Tags        Posts
// @Produce     json
// @Param       limit   query int  false  "Window size"  maximum(100)
// @Param       offset  query int  false  "Window start"
// @Success     200  {object} handlers.FeedResponse
// @Router      /posts/saved [get]
func (h *Handlers) SavedPosts(c *gin.Context) {
	p := h.page(c)
	posts, err := h.Reader.SavedPosts(c.Request.Context(), h.Viewer, p.Limit, p.Offset)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, FeedResponse{Posts: posts})
}

// SearchPosts godoc
// @ID          searchPosts
// @Summary     Search captions and usernames, or list posts at a location
// @Tags        Posts
// @Produce     json
// @Param       q       query string  false  "Search term"
// @Param       locationquery string  false  "Exact location"
// @Param       limit   query int  false  "Result size"  maximum(100)
// @Success     200  {object} handlers.FeedResponse
// @Router      /posts/search [get]
func (h *Handlers) SearchPosts(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		posts []domain.PostWithUser
		err   error
	)
	if loc := c.Query("location"); loc != "" {
		posts, err = h.Reader.PostsByLocation(ctx, h.Viewer, loc, limit(c))
	} else {
		posts, err = h.Reader.SearchPosts(ctx, h.Viewer, c.Query("q"), limit(c))
	}
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, FeedResponse{Posts: posts})
}

// StoryTray godoc
// @ID          stories
// @Summary     Active stories of the viewer and followed accounts
// @Tags        Stories
// @Produce     json
// @Param       grouped  query     bool  false  "Group followed authors"
// @Success     200      {object}  handlers.StoriesResponse
// @Router      /stories [get]
func (h *Handlers) StoryTray(c *gin.Context) {
	ctx := c.Request.Context()
	if c.Query("grouped") == "true" {
		groups, err := h.Reader.FollowingWithStories(ctx, h.Viewer)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"users": groups})
		return
	}
	stories, err := h.Reader.FeedStories(ctx, h.Viewer)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, StoriesResponse{Stories: stories})
}

// RefreshStories godoc
// @ID          refreshStories
// @Summary     Sweep expired stories, pull active ones, then return the tray
// @Tags        Stories
// @Produce     json
// @Success     200  {object} handlers.StoriesResponse "sync_warning is set when the remote failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /stories/refresh [post]
func (h *Handlers) RefreshStories(c *gin.Context) {
	res, err := h.Sync.RefreshStories(c.Request.Context(), h.Viewer)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, StoriesResponse{Stories: res.Stories, SyncWarning: warning(res.SyncErr)})
}

// CreateStory godoc
// @ID          createStory
// @Summary     Post a story
// @Tags        Stories
// @Accept      json
// @Produce     json
// @Param       body    body  handlers.CreateStoryRequest  true  "Story payload"
// @Success     201  {object} domain.Story
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in required"
// @Router      /stories [post]
func (h *Handlers) CreateStory(c *gin.Context) {
	var req CreateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image_url is required")
		return
	}
	s, err := h.Stories.CreateStory(c.Request.Context(), h.Viewer, services.StoryInput{
		ImageURL:        req.ImageURL,
		Text:            req.Text,
		BackgroundColor: req.BackgroundColor,
		TextColor:       req.TextColor,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, s)
}

// ViewStory godoc
// @ID          viewStory
// @Summary     Record that the viewer saw a story
// @Tags        Stories
// @Produce     json
// @Param       id      path  string  true  "Story ID"
// @Success     200  {object} map[string]bool "added is false when already viewed"
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in required"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /stories/{id}/view [post]
func (h *Handlers) ViewStory(c *gin.Context) {
	added, err := h.Toggles.ViewStory(c.Request.Context(), h.Viewer, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"added": added})
}

// UserStories godoc
// @ID          userStories
// @Summary     A user's active stories, oldest first
// @Tags        Users
// @Produce     json
// @Param       id      path  string  true  "User ID"
// @Success     200  {object} handlers.StoriesResponse
// @Router      /users/{id}/stories [get]
func (h *Handlers) UserStories(c *gin.Context) {
	stories, err := h.Reader.UserStories(c.Request.Context(), h.Viewer, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, StoriesResponse{Stories: stories})
}

// StoryViewers godoc
// @ID          storyViewers
// @Summary     Who viewed a story
// @Tags        Stories
// @Produce     json
// @Param       id      path  string  true  "Story ID"
// @Param       limit   query int  false  "Result size"  maximum(100)
// @Success     200  {object} map[string][]domain.UserWithFollow
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /stories/{id}/viewers [get]
func (h *Handlers) StoryViewers(c *gin.Context) {
	users, err := h.Reader.StoryViewers(c.Request.Context(), h.Viewer, c.Param("id"), limit(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"users": users})
}
