package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/feedcache/internal/domain"
)

func newServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_FetchesAndDecodes(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/db/users":        `[{"id":"u1","username":"ann","email":"ann@x.io","displayName":"Ann","followersCount":3,"createdAt":1700000000000}]`,
		"/db/posts":        `[{"id":"p1","userId":"u1","imageUrl":"https://img/1"}]`,
		"/db/stories":      `[{"id":"s1","userId":"u1","imageUrl":"https://img/s"}]`,
		"/db/comments":     `[{"id":"c1","postId":"p1","userId":"u1","text":"hi","parentCommentId":""}]`,
		"/db/user_follows": `[{"followerId":"u2","followingId":"u1"}]`,
	})
	c, err := NewClient(srv.URL+"/db", time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	users, err := c.FetchUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	u := users[0].Entity()
	assert.Equal(t, "Ann", u.DisplayName)
	assert.Equal(t, 3, u.FollowersCount)
	assert.Equal(t, "", u.Bio)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), u.CreatedAt)
	assert.True(t, u.UpdatedAt.IsZero())

	posts, err := c.FetchPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, 0, posts[0].Entity().LikesCount)

	stories, err := c.FetchStories(ctx)
	require.NoError(t, err)
	require.Len(t, stories, 1)

	comments, err := c.FetchComments(ctx)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.False(t, comments[0].Entity().IsReply())

	follows, err := c.FetchFollowEdges(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.Follow{FollowerID: "u2", FollowingID: "u1"}, follows[0].Entity())
}

func TestClient_FailuresWrapUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/posts":
			http.Error(w, "boom", http.StatusBadGateway)
		case "/users":
			_, _ = w.Write([]byte(`{"not":"a list"`))
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second)
	require.NoError(t, err)

	_, err = c.FetchPosts(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "status 502")

	_, err = c.FetchUsers(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "decode")

	srv.Close()
	_, err = c.FetchStories(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, 5*time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.FetchPosts(ctx)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_RateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second, WithRateLimit(0.001, 1))
	require.NoError(t, err)

	_, err = c.FetchUsers(context.Background())
	require.NoError(t, err)

	// The bucket is empty and refills far slower than the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.FetchUsers(ctx)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 1, hits.Load())
}

func TestNewClient_RejectsRelativeURL(t *testing.T) {
	_, err := NewClient("feed/api", time.Second)
	require.Error(t, err)
}

func TestStoryDTO_Defaults(t *testing.T) {
	created := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	d := StoryDTO{ID: "s1", UserID: "u1", ImageURL: "img", CreatedAt: Millis(created)}
	s := d.Entity(6 * time.Hour)
	assert.Equal(t, domain.DefaultStoryBackground, s.BackgroundColor)
	assert.Equal(t, domain.DefaultStoryText, s.TextColor)
	assert.Equal(t, created.Add(6*time.Hour), s.ExpiresAt)

	bare := StoryDTO{ID: "s2", UserID: "u1", ImageURL: "img"}.Entity(6 * time.Hour)
	assert.True(t, bare.CreatedAt.IsZero())
	assert.True(t, bare.ExpiresAt.IsZero(), "expiry is left for the store to derive")

	exp := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	explicit := StoryDTO{ID: "s3", UserID: "u1", ImageURL: "img", CreatedAt: Millis(created), ExpiresAt: Millis(exp)}.Entity(time.Hour)
	assert.Equal(t, exp, explicit.ExpiresAt)
}
