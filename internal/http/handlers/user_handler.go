// User HTTP handlers: profiles, user lists and follow edges.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Profile godoc
// @ID          profile
// @Summary     A user as seen by the viewer
// @Tags        Users
// @Produce     json
// @Param       id   path      string  true  "User ID"
// @Success     200  {object}  domain.UserProfile
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /users/{id}/profile [get]
func (h *Handlers) Profile(c *gin.Context) {
	p, err := h.Reader.Profile(c.Request.Context(), h.Viewer, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	if p == nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "sign in to view profiles")
		return
	}
	ok(c, http.StatusOK, p)
}

// UserPosts godoc
// @ID          userPosts
// @Summary     One author's posts with the viewer's flags
// @Tags        Users
// @Produce     json
// @Param       id      path  string  true  "User ID"
// @Param       limit   query int  false  "Window size"  maximum(100)
// @Param       offset  query int  false  "Window start"
// @Success     200  {object} handlers.FeedResponse
// @Router      /users/{id}/posts [get]
func (h *Handlers) UserPosts(c *gin.Context) {
	p := h.page(c)
	posts, err := h.Reader.UserPosts(c.Request.Context(), h.Viewer, c.Param("id"), p.Limit, p.Offset)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, FeedResponse{Posts: posts})
}

// SuggestedUsers godoc
// @ID          suggestedUsers
// @Summary     Accounts followed by the viewer's follows
// @Tags        Users
// @Produce     json
// @Param       limit   query int  false  "Result size"  maximum(100)
// @Success     200  {object} map[string][]domain.User
// @Router      /users/suggested [get]
func (h *Handlers) SuggestedUsers(c *gin.Context) {
	users, err := h.Reader.SuggestedUsers(c.Request.Context(), h.Viewer, limit(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"users": users})
}

// SearchUsers godoc
// @ID          searchUsers
// @Summary     Search users, prefix matches first
// @Tags        Users
// @Produce     json
// @Param       q       query string  false  "Search term"
// @Param       limit   query int  false  "Result size"  maximum(100)
// @Success     200  {object} map[string][]domain.UserWithFollow
// @Router      /users/search [get]
func (h *Handlers) SearchUsers(c *gin.Context) {
	users, err := h.Reader.SearchUsers(c.Request.Context(), h.Viewer, c.Query("q"), limit(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"users": users})
}

// PopularUsers godoc
// @ID          popularUsers
// @Summary     Most followed accounts
// @Tags        Users
// @Produce     json
// @Param       limit   query int  false  "Result size"  maximum(100)
// @Success     200  {object} map[string][]domain.UserWithFollow
// @Router      /users/popular [get]
func (h *Handlers) PopularUsers(c *gin.Context) {
	users, err := h.Reader.PopularUsers(c.Request.Context(), h.Viewer, limit(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"users": users})
}

// Followers godoc
// @ID          followers
// @Summary     Followers of a user
// @Tags        Users
// @Produce     json
// @Param       id      path  string  true  "User ID"
// @Param       limit   query int  false  "Window size"  maximum(100)
// @Param       offset  query int  false  "Window start"
// @Success     200  {object} map[string][]domain.UserWithFollow
// @Router      /users/{id}/followers [get]
func (h *Handlers) Followers(c *gin.Context) {
	p := h.page(c)
	users, err := h.Reader.Followers(c.Request.Context(), h.Viewer, c.Param("id"), p.Limit, p.Offset)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"users": users})
}

// Following godoc
// @ID          following
// @Summary     Accounts a user follows
// @Tags        Users
// @Produce     json
// @Param       id      path  string  true  "User ID"
// @Param       limit   query int  false  "Window size"  maximum(100)
// @Param       offset  query int  false  "Window start"
// @Success     200  {object} map[string][]domain.UserWithFollow
// @Router      /users/{id}/following [get]
func (h *Handlers) Following(c *gin.Context) {
	p := h.page(c)
	users, err := h.Reader.Following(c.Request.Context(), h.Viewer, c.Param("id"), p.Limit, p.Offset)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"users": users})
}

// Follow godoc
// @ID          follow
// @Summary     Flip, or with {"value": bool} set, the viewer's follow edge
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       id    path      string                  true   "User ID"
// @Param       body  body      handlers.flagRequest    false  "Desired state"
// @Success     200   {object}  map[string]bool
// @Failure     400   {object}  handlers.ErrorResponse  "Self-follow"
// @Router      /users/{id}/follow [post]
func (h *Handlers) Follow(c *gin.Context) {
	ctx, id := c.Request.Context(), c.Param("id")
	toggle(c, "following",
		func() (bool, error) { return h.Toggles.ToggleFollow(ctx, h.Viewer, id) },
		func(on bool) error { return h.Toggles.SetFollowing(ctx, h.Viewer, id, on) },
	)
}
