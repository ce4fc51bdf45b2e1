package seed

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/feedcache/internal/remote"
)

// Server serves a Dataset the way the remote feed service does: one JSON
// array per resource at /<resource>. The dataset can be swapped and the
// server switched to failing mode at runtime.
type Server struct {
	mu      sync.RWMutex
	data    Dataset
	failing bool
	hits    map[string]int
}

// NewServer returns a Server for d.
func NewServer(d Dataset) *Server {
	return &Server{data: d, hits: map[string]int{}}
}

// Set replaces the served dataset.
func (s *Server) Set(d Dataset) {
	s.mu.Lock()
	s.data = d
	s.mu.Unlock()
}

// Update edits the served dataset in place.
func (s *Server) Update(fn func(*Dataset)) {
	s.mu.Lock()
	fn(&s.data)
	s.mu.Unlock()
}

// Fail makes every request answer 503 while on is true.
func (s *Server) Fail(on bool) {
	s.mu.Lock()
	s.failing = on
	s.mu.Unlock()
}

// Hits returns how many requests resource received.
func (s *Server) Hits(resource string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hits[resource]
}

func list[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func (s *Server) resource(name string) any {
	switch name {
	case remote.ResourceUsers:
		return list(s.data.Users)
	case remote.ResourcePosts:
		return list(s.data.Posts)
	case remote.ResourceStories:
		return list(s.data.Stories)
	case remote.ResourceComments:
		return list(s.data.Comments)
	case remote.ResourceFollows:
		return list(s.data.Follows)
	}
	return []any{}
}

// Handler returns a Gin engine in test mode serving the dataset.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	for _, name := range []string{remote.ResourceUsers, remote.ResourcePosts, remote.ResourceStories, remote.ResourceComments, remote.ResourceFollows} {
		name := name
		r.GET("/"+name, func(c *gin.Context) {
			s.mu.Lock()
			s.hits[name]++
			failing := s.failing
			s.mu.Unlock()
			if failing {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
				return
			}
			s.mu.RLock()
			defer s.mu.RUnlock()
			c.JSON(http.StatusOK, s.resource(name))
		})
	}
	return r
}
