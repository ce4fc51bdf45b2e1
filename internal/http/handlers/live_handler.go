// Live views over Server-Sent Events. Each stream sends a "snapshot" event
// with the current view, then another after every write that can change it.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/feedcache/internal/domain"
	"github.com/tbourn/feedcache/internal/livequery"
	"github.com/tbourn/feedcache/internal/session"
)

// Live re-evaluates composed views on every relevant write.
type Live interface {
	WatchFeed(ctx context.Context, v session.Viewer, limit, offset int) <-chan livequery.Snapshot[[]domain.PostWithUser]
	WatchFeedStories(ctx context.Context, v session.Viewer) <-chan livequery.Snapshot[[]domain.StoryWithUser]
	WatchProfile(ctx context.Context, v session.Viewer, userID string) <-chan livequery.Snapshot[*domain.UserProfile]
	WatchComments(ctx context.Context, v session.Viewer, postID string, limit, offset int) <-chan livequery.Snapshot[[]domain.CommentWithUser]
}

// stream relays snapshots until the client goes away or the watch ends.
// A failed evaluation is sent as an "error" event and the stream goes on.
func stream[T any](c *gin.Context, snaps <-chan livequery.Snapshot[T]) {
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, open := <-snaps:
			if !open {
				return
			}
			if snap.Err != nil {
				_, code := statusOf(snap.Err)
				c.SSEvent("error", gin.H{"code": code, "message": snap.Err.Error()})
			} else {
				c.SSEvent("snapshot", snap.Value)
			}
			c.Writer.Flush()
		}
	}
}

// FeedStream godoc
// @ID          feedStream
// @Summary     Live home feed as Server-Sent Events
// @Tags        Feed
// @Produce     text/event-stream
// @Param       limit   query int  false  "Window size"  maximum(100)
// @Param       offset  query int  false  "Window start"
// @Success     200  {string} string "snapshot events"
// @Router      /feed/stream [get]
func (h *Handlers) FeedStream(c *gin.Context) {
	p := h.page(c)
	stream(c, h.Live.WatchFeed(c.Request.Context(), h.Viewer, p.Limit, p.Offset))
}

// StoriesStream godoc
// @ID          storiesStream
// @Summary     Live story tray as Server-Sent Events
// @Tags        Stories
// @Produce     text/event-stream
// @Success     200  {string} string "snapshot events"
// @Router      /stories/stream [get]
func (h *Handlers) StoriesStream(c *gin.Context) {
	stream(c, h.Live.WatchFeedStories(c.Request.Context(), h.Viewer))
}

// ProfileStream godoc
// @ID          profileStream
// @Summary     Live profile as Server-Sent Events
// @Tags        Users
// @Produce     text/event-stream
// @Param       id      path  string  true  "User ID"
// @Success     200  {string} string "snapshot events"
// @Router      /users/{id}/profile/stream [get]
func (h *Handlers) ProfileStream(c *gin.Context) {
	stream(c, h.Live.WatchProfile(c.Request.Context(), h.Viewer, c.Param("id")))
}

// CommentsStream godoc
// @ID          commentsStream
// @Summary     Live comment thread as Server-Sent Events
// @Tags        Comments
// @Produce     text/event-stream
// @Param       id      path  string  true  "Post ID"
// @Param       limit   query int  false  "Window size"  maximum(100)
// @Param       offset  query int  false  "Window start"
// @Success     200  {string} string "snapshot events"
// @Router      /posts/{id}/comments/stream [get]
func (h *Handlers) CommentsStream(c *gin.Context) {
	p := h.page(c)
	stream(c, h.Live.WatchComments(c.Request.Context(), h.Viewer, c.Param("id"), p.Limit, p.Offset))
}
