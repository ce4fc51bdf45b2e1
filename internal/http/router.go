// Package httpapi wires the Gin transport to the feed handlers and the
// cross-cutting middleware: tracing, correlation IDs, request logging with
// scrubbing, panic recovery, compression, metrics, rate limiting, CORS and
// security headers.
//
// Middleware order:
//   - OpenTelemetry first so every request gets a span
//   - RequestID and Session before the logger, which records both
//   - Recovery after the logger so panics are logged with the request id
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/feedcache/internal/config"
	"github.com/tbourn/feedcache/internal/http/docs"
	"github.com/tbourn/feedcache/internal/http/handlers"
	"github.com/tbourn/feedcache/internal/http/middleware"
)

// maxBodyBytes caps request bodies. The API only accepts small JSON documents.
const maxBodyBytes = 1 << 20

var corsMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

// RegisterRoutes attaches the middleware chain, the health and metrics
// endpoints, and the public API mounted under cfg.APIBasePath.
func RegisterRoutes(r *gin.Engine, h *handlers.Handlers, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Session(h.Viewer))
	r.Use(middleware.Logger(middleware.LogOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/metrics"}),
		gzip.WithExcludedPathsRegexs([]string{`/stream$`}),
	))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	docs.Register(cfg.APIBasePath)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Refreshes fan out to the remote service and get their own, smaller
	// budget on top of the global one. REMOTE_RPS <= 0 disables it, as it
	// does for the remote client.
	var refresh gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.Remote.RPS > 0 {
		refresh = middleware.NewRateLimiter(cfg.Remote.RPS, cfg.Remote.Burst, middleware.KeyByUserOrIP()).Handler()
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Session
		api.POST("/session/register", h.Register)
		api.POST("/session/login", h.Login)
		api.POST("/session/logout", h.Logout)
		api.GET("/me", h.Me)
		api.PATCH("/me", h.UpdateMe)

		// Feed
		api.GET("/feed", h.Feed)
		api.POST("/feed/refresh", refresh, h.RefreshFeed)
		api.GET("/feed/stream", h.FeedStream)

		// Stories
		api.GET("/stories", h.StoryTray)
		api.POST("/stories/refresh", refresh, h.RefreshStories)
		api.POST("/stories", h.CreateStory)
		api.POST("/stories/:id/view", h.ViewStory)
		api.GET("/stories/:id/viewers", h.StoryViewers)
		api.GET("/stories/stream", h.StoriesStream)

		// Users
		api.GET("/users/suggested", h.SuggestedUsers)
		api.GET("/users/search", h.SearchUsers)
		api.GET("/users/popular", h.PopularUsers)
		api.GET("/users/:id/profile", h.Profile)
		api.GET("/users/:id/profile/stream", h.ProfileStream)
		api.GET("/users/:id/posts", h.UserPosts)
		api.GET("/users/:id/stories", h.UserStories)
		api.GET("/users/:id/followers", h.Followers)
		api.GET("/users/:id/following", h.Following)
		api.POST("/users/:id/follow", h.Follow)

		// Posts
		api.GET("/posts/saved", h.SavedPosts)
		api.GET("/posts/explore", h.Explore)
		api.GET("/posts/search", h.SearchPosts)
		api.POST("/posts", h.CreatePost)
		api.GET("/posts/:id", h.GetPost)
		api.PATCH("/posts/:id", h.UpdatePost)
		api.DELETE("/posts/:id", h.DeletePost)
		api.POST("/posts/:id/like", h.LikePost)
		api.POST("/posts/:id/save", h.SavePost)
		api.GET("/posts/:id/likes", h.PostLikers)

		// Comments
		api.GET("/posts/:id/comments", h.PostComments)
		api.GET("/posts/:id/comments/stream", h.CommentsStream)
		api.POST("/posts/:id/comments", h.AddComment)
		api.POST("/comments/:id/like", h.LikeComment)
		api.DELETE("/comments/:id", h.DeleteComment)
	}
}

// corsMiddleware allows every origin when none is configured, otherwise it
// echoes allowlisted origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	headers := []string{"Origin", "Content-Type", "Accept", "Authorization"}
	expose := []string{"X-Request-ID", "Content-Length", "Retry-After"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// ACAO is forced even without an Origin header so plain probes see it.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins: true,
				AllowMethods:    corsMethods,
				AllowHeaders:    headers,
				ExposeHeaders:   expose,
				MaxAge:          12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:  origins,
			AllowMethods:  corsMethods,
			AllowHeaders:  headers,
			ExposeHeaders: expose,
			MaxAge:        12 * time.Hour,
		}),
	}
}

// limitBody caps the request body at maxBytes; reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
