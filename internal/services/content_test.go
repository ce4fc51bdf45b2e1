package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/feedcache/internal/domain"
	"github.com/tbourn/feedcache/internal/seed"
	"github.com/tbourn/feedcache/internal/session"
)

func TestCreatePost_Validation(t *testing.T) {
	e := newEnv(t, seed.Dataset{})
	ctx := context.Background()
	e.user(t, "a")
	v := session.Static("a")

	_, err := e.Posts.CreatePost(ctx, v, "hi", "  ", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.Posts.CreatePost(ctx, v, strings.Repeat("é", MaxCaptionRunes+1), "https://img/x", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.Posts.CreatePost(ctx, nil, "hi", "https://img/x", "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = e.Posts.CreatePost(ctx, session.Static("ghost"), "hi", "https://img/x", "")
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := e.Posts.CreatePost(ctx, v, strings.Repeat("é", MaxCaptionRunes), " https://img/x ", " Athens ")
	require.NoError(t, err)
	assert.Equal(t, "https://img/x", p.ImageURL)
	assert.Equal(t, "Athens", p.Location)
	assert.Equal(t, 1, e.getUser(t, "a").PostsCount)
}

func TestUpdatePost_OwnerOnly(t *testing.T) {
	e := newEnv(t, seed.Dataset{})
	ctx := context.Background()
	e.user(t, "a")
	e.user(t, "b")
	e.post(t, "p1", "a", base.Add(-time.Hour))

	_, err := e.Posts.UpdatePost(ctx, session.Static("b"), "p1", PostUpdate{Caption: strp("mine now")})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, "PermissionDenied", Kind(err))

	got, err := e.Posts.UpdatePost(ctx, session.Static("a"), "p1", PostUpdate{Caption: strp(" edited ")})
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Caption)
	assert.True(t, got.UpdatedAt.Equal(base))

	_, err = e.Posts.UpdatePost(ctx, session.Static("a"), "missing", PostUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeletePost_CascadesAndRecounts(t *testing.T) {
	e := newEnv(t, seed.Dataset{})
	ctx := context.Background()
	e.user(t, "a")
	e.user(t, "b")
	va, vb := session.Static("a"), session.Static("b")

	p, err := e.Posts.CreatePost(ctx, va, "", "https://img/1", "")
	require.NoError(t, err)
	require.NoError(t, e.Toggler.SetLiked(ctx, vb, p.ID, true))
	_, err = e.Comments.AddComment(ctx, vb, p.ID, "nice", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, e.Posts.DeletePost(ctx, vb, p.ID), ErrPermissionDenied)
	require.NoError(t, e.Posts.DeletePost(ctx, va, p.ID))

	assert.EqualValues(t, 0, e.count(t, &domain.Post{}))
	assert.EqualValues(t, 0, e.count(t, &domain.PostLike{}))
	assert.EqualValues(t, 0, e.count(t, &domain.Comment{}))
	assert.Equal(t, 0, e.getUser(t, "a").PostsCount)
}

func TestAddComment_ReplyRules(t *testing.T) {
	e := newEnv(t, seed.Dataset{})
	ctx := context.Background()
	e.user(t, "a")
	e.post(t, "p1", "a", base)
	e.post(t, "p2", "a", base)
	v := session.Static("a")

	_, err := e.Comments.AddComment(ctx, v, "p1", "   ", nil)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.Comments.AddComment(ctx, v, "nope", "hi", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	top, err := e.Comments.AddComment(ctx, v, "p1", "top", nil)
	require.NoError(t, err)
	reply, err := e.Comments.AddComment(ctx, v, "p1", "reply", &top.ID)
	require.NoError(t, err)

	_, err = e.Comments.AddComment(ctx, v, "p1", "deeper", &reply.ID)
	assert.ErrorIs(t, err, ErrValidation, "replies are one level deep")
	_, err = e.Comments.AddComment(ctx, v, "p2", "elsewhere", &top.ID)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.Comments.AddComment(ctx, v, "p1", "orphan", strp("ghost"))
	assert.ErrorIs(t, err, ErrNotFound)

	// Blank parent id means top-level.
	_, err = e.Comments.AddComment(ctx, v, "p1", "second", strp(" "))
	require.NoError(t, err)
	assert.Equal(t, 2, e.getPost(t, "p1").CommentsCount)
}

func TestDeleteComment_AuthorOnlyAndRecounts(t *testing.T) {
	e := newEnv(t, seed.Dataset{})
	ctx := context.Background()
	e.user(t, "a")
	e.user(t, "b")
	e.post(t, "p1", "a", base)

	top, err := e.Comments.AddComment(ctx, session.Static("a"), "p1", "top", nil)
	require.NoError(t, err)
	reply, err := e.Comments.AddComment(ctx, session.Static("b"), "p1", "reply", &top.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, e.Comments.DeleteComment(ctx, session.Static("a"), reply.ID), ErrPermissionDenied)
	require.NoError(t, e.Comments.DeleteComment(ctx, session.Static("b"), reply.ID))

	got, err := e.Composer.Comments(ctx, session.Static("a"), "p1", 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].Comment.RepliesCount)
	assert.Empty(t, got[0].Replies)

	assert.ErrorIs(t, e.Comments.DeleteComment(ctx, session.Static("a"), "missing"), ErrNotFound)
}

func TestCreateStory_ColorsAndTTL(t *testing.T) {
	e := newEnv(t, seed.Dataset{})
	ctx := context.Background()
	e.user(t, "a")
	v := session.Static("a")

	_, err := e.Stories.CreateStory(ctx, v, StoryInput{ImageURL: "https://img/s", BackgroundColor: "red"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.Stories.CreateStory(ctx, v, StoryInput{})
	assert.ErrorIs(t, err, ErrValidation)

	s, err := e.Stories.CreateStory(ctx, v, StoryInput{ImageURL: "https://img/s", TextColor: "#00ff00"})
	require.NoError(t, err)
	assert.True(t, s.ExpiresAt.Equal(base.Add(24*time.Hour)))
	assert.Equal(t, domain.DefaultStoryBackground, s.BackgroundColor)
	assert.Equal(t, "#00ff00", s.TextColor)

	got, err := e.Composer.UserStories(ctx, v, "a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, s.ID, got[0].Story.ID)
}
