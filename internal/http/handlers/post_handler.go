// Post and comment HTTP handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/feedcache/internal/services"
)

// CreatePostRequest is the payload of POST /posts.
type CreatePostRequest struct {
	Caption  string `json:"caption"   example:"sunset"`
	ImageURL string `json:"image_url" binding:"required" example:"https://img.example.com/p.jpg"`
	Location string `json:"location"  example:"Athens"`
}

// UpdatePostRequest is the payload of PATCH /posts/:id.
type UpdatePostRequest struct {
	Caption  *string `json:"caption"`
	Location *string `json:"location"`
}

// AddCommentRequest is the payload of POST /posts/:id/comments.
type AddCommentRequest struct {
	Text            string  `json:"text" binding:"required" example:"nice shot"`
	ParentCommentID *string `json:"parent_comment_id,omitempty"`
}

// CommentsResponse is the comment thread of a post.
type CommentsResponse struct {
	Comments    any    `json:"comments"`
	SyncWarning string `json:"sync_warning,omitempty"`
}

// GetPost godoc
// @ID          getPost
// @Summary     One post with the viewer's like and save flags
// @Tags        Posts
// @Produce     json
// @Param       id      path  string  true  "Post ID"
// @Success     200  {object} domain.PostWithUser
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in required"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /posts/{id} [get]
func (h *Handlers) GetPost(c *gin.Context) {
	p, err := h.Reader.Post(c.Request.Context(), h.Viewer, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	if p == nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "sign in to view posts")
		return
	}
	ok(c, http.StatusOK, p)
}

// CreatePost godoc
// @ID          createPost
// @Summary     Publish a post by the viewer
// @Tags        Posts
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CreatePostRequest  true  "Post"
// @Success     201   {object}  domain.Post
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     401   {object}  handlers.ErrorResponse
// @Router      /posts [post]
func (h *Handlers) CreatePost(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image_url is required")
		return
	}
	p, err := h.Posts.CreatePost(c.Request.Context(), h.Viewer, req.Caption, req.ImageURL, req.Location)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}

// UpdatePost godoc
// @ID          updatePost
// @Summary     Edit the caption or location of an own post
// @Tags        Posts
// @Accept      json
// @Produce     json
// @Param       id      path  string  true  "Post ID"
// @Param       body    body  handlers.UpdatePostRequest  true  "Fields to change"
// @Success     200  {object} domain.Post
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /posts/{id} [patch]
func (h *Handlers) UpdatePost(c *gin.Context) {
	var req UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	p, err := h.Posts.UpdatePost(c.Request.Context(), h.Viewer, c.Param("id"), services.PostUpdate{
		Caption:  req.Caption,
		Location: req.Location,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// DeletePost godoc
// @ID          deletePost
// @Summary     Delete an own post with its likes, saves and comments
// @Tags        Posts
// @Produce     json
// @Param       id      path  string  true  "Post ID"
// @Success     204  {string} string "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /posts/{id} [delete]
func (h *Handlers) DeletePost(c *gin.Context) {
	if err := h.Posts.DeletePost(c.Request.Context(), h.Viewer, c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// LikePost godoc
// @ID          likePost
// @Summary     Flip or set the viewer's like
// @Tags        Posts
// @Accept      json
// @Produce     json
// @Param       id      path  string  true  "Post ID"
// @Param       body    body  handlers.flagRequest  false  "Omit to flip; {"value": bool} to set"
// @Success     200  {object} map[string]bool
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in required"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /posts/{id}/like [post]
func (h *Handlers) LikePost(c *gin.Context) {
	ctx, id := c.Request.Context(), c.Param("id")
	toggle(c, "liked",
		func() (bool, error) { return h.Toggles.ToggleLike(ctx, h.Viewer, id) },
		func(on bool) error { return h.Toggles.SetLiked(ctx, h.Viewer, id, on) },
	)
}

// SavePost godoc
// @ID          savePost
// @Summary     Flip or set the viewer's bookmark
// @Tags        Posts
// @Accept      json
// @Produce     json
// @Param       id      path  string  true  "Post ID"
// @Param       body    body  handlers.flagRequest  false  "Omit to flip; {"value": bool} to set"
// @Success     200  {object} map[string]bool
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in required"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /posts/{id}/save [post]
func (h *Handlers) SavePost(c *gin.Context) {
	ctx, id := c.Request.Context(), c.Param("id")
	toggle(c, "saved",
		func() (bool, error) { return h.Toggles.ToggleSave(ctx, h.Viewer, id) },
		func(on bool) error { return h.Toggles.SetSaved(ctx, h.Viewer, id, on) },
	)
}

// PostLikers godoc
// @ID          postLikers
// @Summary     Who liked a post
// @Tags        Posts
// @Produce     json
// @Param       id      path  string  true  "Post ID"
// @Param       limit   query int  false  "Window size"  maximum(100)
// @Param       offset  query int  false  "Window start"
// @Success     200  {object} map[string][]domain.UserWithFollow
// @Router      /posts/{id}/likes [get]
func (h *Handlers) PostLikers(c *gin.Context) {
	p := h.page(c)
	users, err := h.Reader.PostLikers(c.Request.Context(), h.Viewer, c.Param("id"), p.Limit, p.Offset)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"users": users})
}

// PostComments godoc
// @ID          comments
// @Summary     Comment thread of a post; ?refresh=true pulls from the remote first
// @Tags        Comments
// @Produce     json
// @Param       id       path      string  true   "Post ID"
// @Param       refresh  query     bool    false  "Sync before reading"
// @Success     200      {object}  handlers.CommentsResponse
// @Failure     404      {object}  handlers.ErrorResponse
// @Router      /posts/{id}/comments [get]
func (h *Handlers) PostComments(c *gin.Context) {
	ctx, id := c.Request.Context(), c.Param("id")
	if c.Query("refresh") == "true" {
		res, err := h.Sync.RefreshComments(ctx, h.Viewer, id)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, CommentsResponse{Comments: res.Comments, SyncWarning: warning(res.SyncErr)})
		return
	}
	p := h.page(c)
	thread, err := h.Reader.Comments(ctx, h.Viewer, id, p.Limit, p.Offset)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CommentsResponse{Comments: thread})
}

// AddComment godoc
// @ID          addComment
// @Summary     Comment on a post or reply to a top-level comment
// @Tags        Comments
// @Accept      json
// @Produce     json
// @Param       id      path  string  true  "Post ID"
// @Param       body    body  handlers.AddCommentRequest  true  "Comment payload"
// @Success     201  {object} domain.Comment
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in required"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /posts/{id}/comments [post]
func (h *Handlers) AddComment(c *gin.Context) {
	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text is required")
		return
	}
	cm, err := h.Comments.AddComment(c.Request.Context(), h.Viewer, c.Param("id"), req.Text, req.ParentCommentID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, cm)
}

// LikeComment godoc
// @ID          likeComment
// @Summary     Flip the viewer's like on a comment
// @Tags        Comments
// @Produce     json
// @Param       id      path  string  true  "Comment ID"
// @Success     200  {object} map[string]bool
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in required"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /comments/{id}/like [post]
func (h *Handlers) LikeComment(c *gin.Context) {
	liked, err := h.Toggles.ToggleCommentLike(c.Request.Context(), h.Viewer, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"liked": liked})
}

// DeleteComment godoc
// @ID          deleteComment
// @Summary     Delete an own comment and its replies
// @Tags        Comments
// @Produce     json
// @Param       id      path  string  true  "Comment ID"
// @Success     204  {string} string "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /comments/{id} [delete]
func (h *Handlers) DeleteComment(c *gin.Context) {
	if err := h.Comments.DeleteComment(c.Request.Context(), h.Viewer, c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
