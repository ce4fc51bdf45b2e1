// Package services – Composer
//
// This file implements the read-model composer. Every query is scoped to a
// viewer: primary entities are read first, then their authors and the
// viewer's relation rows are loaded in batch and folded into the value
// types of package domain. A missing viewer yields an empty result, not an
// error.
//
// Observability: public methods are OpenTelemetry-instrumented with the
// viewer id and window parameters.
package services

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/feedcache/internal/domain"
	"github.com/tbourn/feedcache/internal/livequery"
	"github.com/tbourn/feedcache/internal/repo"
	"github.com/tbourn/feedcache/internal/session"
)

// Advisory result sizes used when a caller passes limit <= 0.
const (
	DefaultFeedLimit        = 20
	DefaultExploreLimit     = 30
	DefaultSearchPostsLimit = 50
	DefaultLocationLimit    = 20
	DefaultSuggestedLimit   = 10
	DefaultSearchUsersLimit = 20
	DefaultPopularLimit     = 10
	DefaultViewersLimit     = 100
)

// Composer builds viewer-scoped read models.
type Composer struct {
	DB     *gorm.DB
	Broker *livequery.Broker
	Clock  Clock
}

// NewComposer constructs a Composer. broker is only needed by the Watch
// methods and may be nil.
func NewComposer(db *gorm.DB, broker *livequery.Broker, clock Clock) *Composer {
	return &Composer{DB: db, Broker: broker, Clock: clock}
}

func orDefault(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

func (c *Composer) span(ctx context.Context, name, viewer string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tr := otel.Tracer("services/Composer")
	attrs = append(attrs, attribute.String("viewer.id", viewer))
	return tr.Start(ctx, name, trace.WithAttributes(attrs...))
}

// ---- posts ----

// Feed returns the posts of the viewer and of everyone the viewer follows,
// newest first.
func (c *Composer) Feed(ctx context.Context, v session.Viewer, limit, offset int) ([]domain.PostWithUser, error) {
	viewer, ok := viewerOf(v)
	if !ok {
		return []domain.PostWithUser{}, nil
	}
	ctx, span := c.span(ctx, "Feed", viewer, attribute.Int("limit", limit), attribute.Int("offset", offset))
	defer span.End()

	posts, err := repo.FeedPosts(ctx, c.DB, viewer, orDefault(limit, DefaultFeedLimit), offset)
	if err != nil {
		return nil, classify(err, "feed")
	}
	return c.decoratePosts(ctx, viewer, posts)
}

// UserPosts returns userID's posts with the viewer's flags.
func (c *Composer) UserPosts(ctx context.Context, v session.Viewer, userID string, limit, offset int) ([]domain.PostWithUser, error) {
	viewer, ok := viewerOf(v)
	if !ok {
		return []domain.PostWithUser{}, nil
	}
	ctx, span := c.span(ctx, "UserPosts", viewer, attribute.String("user.id", userID))
	defer span.End()

	posts, err := repo.PostsByUser(ctx, c.DB, userID, orDefault(limit, DefaultFeedLimit), offset)
	if err != nil {
		return nil, classify(err, "user posts")
	}
	return c.decoratePosts(ctx, viewer, posts)
}

// SavedPosts returns the viewer's bookmarks, most recently saved first.
func (c *Composer) SavedPosts(ctx context.Context, v session.Viewer, limit, offset int) ([]domain.PostWithUser, error) {
	viewer, ok := viewerOf(v)
	if !ok {
		return []domain.PostWithUser{}, nil
	}
	ctx, span := c.span(ctx, "SavedPosts", viewer)
	defer span.End()

	posts, err := repo.SavedPosts(ctx, c.DB, viewer, orDefault(limit, DefaultFeedLimit), offset)
	if err != nil {
		return nil, classify(err, "saved posts")
	}
	return c.decoratePosts(ctx, viewer, posts)
}

// Explore returns the most liked posts of the whole store.
func (c *Composer) Explore(ctx context.Context, v session.Viewer, limit, offset int) ([]domain.PostWithUser, error) {
	viewer, ok := viewerOf(v)
	if !ok {
		return []domain.PostWithUser{}, nil
	}
	ctx, span := c.span(ctx, "Explore", viewer)
	defer span.End()

	posts, err := repo.ExplorePosts(ctx, c.DB, orDefault(limit, DefaultExploreLimit), offset)
	if err != nil {
		return nil, classify(err, "explore")
	}
	return c.decoratePosts(ctx, viewer, posts)
}

// SearchPosts matches term against captions, locations and usernames.
// A blank term matches nothing.
func (c *Composer) SearchPosts(ctx context.Context, v session.Viewer, term string, limit int) ([]domain.PostWithUser, error) {
	viewer, ok := viewerOf(v)
	term = strings.TrimSpace(term)
	if !ok || term == "" {
		return []domain.PostWithUser{}, nil
	}
	ctx, span := c.span(ctx, "SearchPosts", viewer, attribute.String("query", term))
	defer span.End()

	posts, err := repo.SearchPosts(ctx, c.DB, term, orDefault(limit, DefaultSearchPostsLimit))
	if err != nil {
		return nil, classify(err, "search posts")
	}
	return c.decoratePosts(ctx, viewer, posts)
}

// PostsByLocation returns the posts tagged with location.
func (c *Composer) PostsByLocation(ctx context.Context, v session.Viewer, location string, limit int) ([]domain.PostWithUser, error) {
	viewer, ok := viewerOf(v)
	location = strings.TrimSpace(location)
	if !ok || location == "" {
		return []domain.PostWithUser{}, nil
	}
	ctx, span := c.span(ctx, "PostsByLocation", viewer, attribute.String("location", location))
	defer span.End()

	posts, err := repo.PostsByLocation(ctx, c.DB, location, orDefault(limit, DefaultLocationLimit))
	if err != nil {
		return nil, classify(err, "posts by location")
	}
	return c.decoratePosts(ctx, viewer, posts)
}

// Post returns one post with its author and the viewer's flags. It returns
// nil without a viewer and ErrNotFound when the post is absent.
func (c *Composer) Post(ctx context.Context, v session.Viewer, postID string) (*domain.PostWithUser, error) {
	viewer, ok := viewerOf(v)
	if !ok {
		return nil, nil
	}
	ctx, span := c.span(ctx, "Post", viewer, attribute.String("post.id", postID))
	defer span.End()

	p, err := repo.GetPost(ctx, c.DB, postID)
	if err != nil {
		return nil, classify(err, "post "+postID)
	}
	out, err := c.decoratePosts(ctx, viewer, []domain.Post{*p})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, classify(repo.ErrNotFound, "author of post "+postID)
	}
	return &out[0], nil
}

func (c *Composer) decoratePosts(ctx context.Context, viewer string, posts []domain.Post) ([]domain.PostWithUser, error) {
	out := make([]domain.PostWithUser, 0, len(posts))
	if len(posts) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(posts))
	authors := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
		authors = append(authors, p.UserID)
	}
	users, err := repo.UsersByIDs(ctx, c.DB, authors)
	if err != nil {
		return nil, classify(err, "post authors")
	}
	liked, err := repo.LikedPostSet(ctx, c.DB, viewer, ids)
	if err != nil {
		return nil, classify(err, "post likes")
	}
	saved, err := repo.SavedPostSet(ctx, c.DB, viewer, ids)
	if err != nil {
		return nil, classify(err, "saved posts")
	}
	for _, p := range posts {
		u, ok := users[p.UserID]
		if !ok {
			continue
		}
		out = append(out, domain.PostWithUser{Post: p, User: u, IsLiked: liked[p.ID], IsSaved: saved[p.ID]})
	}
	return out, nil
}

// ---- stories ----

// FeedStories returns the active stories of the viewer and the accounts
// the viewer follows. The viewer's own stories come first, then stories
// of authors with at least one unviewed story, then the rest; ties are
// broken by recency.
func (c *Composer) FeedStories(ctx context.Context, v session.Viewer) ([]domain.StoryWithUser, error) {
	viewer, ok := viewerOf(v)
	if !ok {
		return []domain.StoryWithUser{}, nil
	}
	ctx, span := c.span(ctx, "FeedStories", viewer)
	defer span.End()

	stories, err := repo.ActiveFeedStories(ctx, c.DB, viewer, c.Clock.now())
	if err != nil {
		return nil, classify(err, "feed stories")
	}
	out, err := c.decorateStories(ctx, viewer, stories)
	if err != nil {
		return nil, err
	}

	unviewed := map[string]bool{}
	for _, s := range out {
		if !s.IsViewed {
			unviewed[s.Story.UserID] = true
		}
	}
	rank := func(s domain.StoryWithUser) int {
		switch {
		case s.Story.UserID == viewer:
			return 0
		case unviewed[s.Story.UserID]:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i].Story.CreatedAt.After(out[j].Story.CreatedAt)
	})
	return out, nil
}

// UserStories returns userID's active stories in posting order.
func (c *Composer) UserStories(ctx context.Context, v session.Viewer, userID string) ([]domain.StoryWithUser, error) {
	viewer, ok := viewerOf(v)
	if !ok {
		return []domain.StoryWithUser{}, nil
	}
	ctx, span := c.span(ctx, "UserStories", viewer, attribute.String("user.id", userID))
	defer span.End()

	stories, err := repo.ActiveStoriesByUser(ctx, c.DB, userID, c.Clock.now())
	if err != nil {
		return nil, classify(err, "user stories")
	}
	return c.decorateStories(ctx, viewer, stories)
}

// FollowingWithStories groups the active stories of followed accounts by
// author. Authors with unviewed stories come first, then by username.
func (c *Composer) FollowingWithStories(ctx context.Context, v session.Viewer) ([]domain.UserStories, error) {
	viewer, ok := viewerOf(v)
	if !ok {
		return []domain.UserStories{}, nil
	}
	ctx, span := c.span(ctx, "FollowingWithStories", viewer)
	defer span.End()

	stories, err := repo.ActiveFeedStories(ctx, c.DB, viewer, c.Clock.now())
	if err != nil {
		return nil, classify(err, "following stories")
	}
	decorated, err := c.decorateStories(ctx, viewer, stories)
	if err != nil {
		return nil, err
	}

	byAuthor := map[string]*domain.UserStories{}
	var order []string
	for _, s := range decorated {
		if s.Story.UserID == viewer {
			continue
		}
		g, ok := byAuthor[s.Story.UserID]
		if !ok {
			g = &domain.UserStories{User: s.User}
			byAuthor[s.Story.UserID] = g
			order = append(order, s.Story.UserID)
		}
		g.Stories = append(g.Stories, s)
		if !s.IsViewed {
			g.HasUnviewedStories = true
		}
	}

	out := make([]domain.UserStories, 0, len(order))
	for _, id := range order {
		g := byAuthor[id]
		sort.SliceStable(g.Stories, func(i, j int) bool {
			return g.Stories[i].Story.CreatedAt.Before(g.Stories[j].Story.CreatedAt)
		})
		out = append(out, *g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HasUnviewedStories != out[j].HasUnviewedStories {
			return out[i].HasUnviewedStories
		}
		return out[i].User.Username < out[j].User.Username
	})
	return out, nil
}

func (c *Composer) decorateStories(ctx context.Context, viewer string, stories []domain.Story) ([]domain.StoryWithUser, error) {
	out := make([]domain.StoryWithUser, 0, len(stories))
	if len(stories) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(stories))
	authors := make([]string, 0, len(stories))
	for _, s := range stories {
		ids = append(ids, s.ID)
		authors = append(authors, s.UserID)
	}
	users, err := repo.UsersByIDs(ctx, c.DB, authors)
	if err != nil {
		return nil, classify(err, "story authors")
	}
	viewed, err := repo.ViewedStorySet(ctx, c.DB, viewer, ids)
	if err != nil {
		return nil, classify(err, "story views")
	}
	for _, s := range stories {
		u, ok := users[s.UserID]
		if !ok {
			continue
		}
		out = append(out, domain.StoryWithUser{Story: s, User: u, IsViewed: viewed[s.ID]})
	}
	return out, nil
}

// ---- users ----

// Profile returns userID as seen by the viewer. It returns nil without a
// viewer and ErrNotFound when the user is absent.
func (c *Composer) Profile(ctx context.Context, v session.Viewer, userID string) (*domain.UserProfile, error) {
	viewer, ok := viewerOf(v)
	if !ok {
		return nil, nil
	}
	ctx, span := c.span(ctx, "Profile", viewer, attribute.String("user.id", userID))
	defer span.End()

	u, err := repo.GetUser(ctx, c.DB, userID)
	if err != nil {
		return nil, classify(err, "user "+userID)
	}
	p := &domain.UserProfile{User: *u}
	if userID == viewer {
		return p, nil
	}
	if p.IsFollowing, err = repo.IsFollowing(ctx, c.DB, viewer, userID); err != nil {
		return nil, classify(err, "follow edge")
	}
	if p.IsFollowedBy, err = repo.IsFollowing(ctx, c.DB, userID, viewer); err != nil {
		return nil, classify(err, "follow edge")
	}
	if p.MutualFollowersCount, err = repo.MutualFollowersCount(ctx, c.DB, viewer, userID); err != nil {
		return nil, classify(err, "mutual followers")
	}
	return p, nil
}

// SuggestedUsers returns accounts followed by the people the viewer
// follows, excluding the viewer and accounts already followed.
func (c *Composer) SuggestedUsers(ctx context.Context, v session.Viewer, limit int) ([]domain.User, error) {
	viewer, ok := viewerOf(v)
	if !ok {
		return []domain.User{}, nil
	}
	ctx, span := c.span(ctx, "SuggestedUsers", viewer)
	defer span.End()

	users, err := repo.SuggestedUsers(ctx, c.DB, viewer, orDefault(limit, DefaultSuggestedLimit))
	if err != nil {
		return nil, classify(err, "suggested users")
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

// SearchUsers matches term against usernames and display names.
func (c *Composer) SearchUsers(ctx context.Context, v session.Viewer, term string, limit int) ([]domain.UserWithFollow, error) {
	viewer, ok := viewerOf(v)
	term = strings.TrimSpace(term)
	if !ok || term == "" {
		return []domain.UserWithFollow{}, nil
	}
	ctx, span := c.span(ctx, "SearchUsers", viewer, attribute.String("query", term))
	defer span.End()

	users, err := repo.SearchUsers(ctx, c.DB, term, orDefault(limit, DefaultSearchUsersLimit))
	if err != nil {
		return nil, classify(err, "search users")
	}
	return c.decorateUsers(ctx, viewer, users)
}

// PopularUsers returns the accounts with the most followers.
func (c *Composer) PopularUsers(ctx context.Context, v session.Viewer, limit int) ([]domain.UserWithFollow, error) {
	viewer, ok := viewerOf(v)
	if !ok {
		return []domain.UserWithFollow{}, nil
	}
	ctx, span := c.span(ctx, "PopularUsers", viewer)
	defer span.End()

	users, err := repo.PopularUsers(ctx, c.DB, orDefault(limit, DefaultPopularLimit))
	if err != nil {
		return nil, classify(err, "popular users")
	}
	return c.decorateUsers(ctx, viewer, users)
}

// Followers lists the accounts following userID.
func (c *Composer) Followers(ctx context.Context, v session.Viewer, userID string, limit, offset int) ([]domain.UserWithFollow, error) {
	viewer, ok := viewerOf(v)
	if !ok {
		return []domain.UserWithFollow{}, nil
	}
	ctx, span := c.span(ctx, "Followers", viewer, attribute.String("user.id", userID))
	defer span.End()

	users, err := repo.Followers(ctx, c.DB, userID, orDefault(limit, DefaultFeedLimit), offset)
	if err != nil {
		return nil, classify(err, "followers")
	}
	return c.decorateUsers(ctx, viewer, users)
}

// Following lists the accounts userID follows.
func (c *Composer) Following(ctx context.Context, v session.Viewer, userID string, limit, offset int) ([]domain.UserWithFollow, error) {
	viewer, ok := viewerOf(v)
	if !ok {
		return []domain.UserWithFollow{}, nil
	}
	ctx, span := c.span(ctx, "Following", viewer, attribute.String("user.id", userID))
	defer span.End()

	users, err := repo.Following(ctx, c.DB, userID, orDefault(limit, DefaultFeedLimit), offset)
	if err != nil {
		return nil, classify(err, "following")
	}
	return c.decorateUsers(ctx, viewer, users)
}

// PostLikers lists the accounts that liked postID.
func (c *Composer) PostLikers(ctx context.Context, v session.Viewer, postID string, limit, offset int) ([]domain.UserWithFollow, error) {
	viewer, ok := viewerOf(v)
	if !ok {
		return []domain.UserWithFollow{}, nil
	}
	ctx, span := c.span(ctx, "PostLikers", viewer, attribute.String("post.id", postID))
	defer span.End()

	users, err := repo.PostLikers(ctx, c.DB, postID, orDefault(limit, DefaultFeedLimit), offset)
	if err != nil {
		return nil, classify(err, "post likers")
	}
	return c.decorateUsers(ctx, viewer, users)
}

// StoryViewers lists the accounts that viewed storyID.
func (c *Composer) StoryViewers(ctx context.Context, v session.Viewer, storyID string, limit int) ([]domain.UserWithFollow, error) {
	viewer, ok := viewerOf(v)
	if !ok {
		return []domain.UserWithFollow{}, nil
	}
	ctx, span := c.span(ctx, "StoryViewers", viewer, attribute.String("story.id", storyID))
	defer span.End()

	users, err := repo.StoryViewers(ctx, c.DB, storyID, orDefault(limit, DefaultViewersLimit))
	if err != nil {
		return nil, classify(err, "story viewers")
	}
	return c.decorateUsers(ctx, viewer, users)
}

func (c *Composer) decorateUsers(ctx context.Context, viewer string, users []domain.User) ([]domain.UserWithFollow, error) {
	out := make([]domain.UserWithFollow, 0, len(users))
	if len(users) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	following, err := repo.FollowingSet(ctx, c.DB, viewer, ids)
	if err != nil {
		return nil, classify(err, "follow edges")
	}
	for _, u := range users {
		out = append(out, domain.UserWithFollow{User: u, IsFollowing: following[u.ID]})
	}
	return out, nil
}

// ---- comments ----

// Comments returns the top-level comments of postID, oldest first, each
// with its replies.
func (c *Composer) Comments(ctx context.Context, v session.Viewer, postID string, limit, offset int) ([]domain.CommentWithUser, error) {
	viewer, ok := viewerOf(v)
	if !ok {
		return []domain.CommentWithUser{}, nil
	}
	ctx, span := c.span(ctx, "Comments", viewer, attribute.String("post.id", postID))
	defer span.End()

	top, err := repo.TopLevelComments(ctx, c.DB, postID, orDefault(limit, DefaultFeedLimit), offset)
	if err != nil {
		return nil, classify(err, "comments")
	}
	if len(top) == 0 {
		return []domain.CommentWithUser{}, nil
	}
	parents := make([]string, 0, len(top))
	for _, cm := range top {
		parents = append(parents, cm.ID)
	}
	replies, err := repo.Replies(ctx, c.DB, parents)
	if err != nil {
		return nil, classify(err, "replies")
	}

	all := append(append([]domain.Comment{}, top...), replies...)
	ids := make([]string, 0, len(all))
	authors := make([]string, 0, len(all))
	for _, cm := range all {
		ids = append(ids, cm.ID)
		authors = append(authors, cm.UserID)
	}
	users, err := repo.UsersByIDs(ctx, c.DB, authors)
	if err != nil {
		return nil, classify(err, "comment authors")
	}
	liked, err := repo.LikedCommentSet(ctx, c.DB, viewer, ids)
	if err != nil {
		return nil, classify(err, "comment likes")
	}

	nested := map[string][]domain.CommentWithUser{}
	for _, r := range replies {
		u, ok := users[r.UserID]
		if !ok {
			continue
		}
		pid := *r.ParentCommentID
		nested[pid] = append(nested[pid], domain.CommentWithUser{Comment: r, User: u, IsLiked: liked[r.ID]})
	}
	out := make([]domain.CommentWithUser, 0, len(top))
	for _, cm := range top {
		u, ok := users[cm.UserID]
		if !ok {
			continue
		}
		out = append(out, domain.CommentWithUser{Comment: cm, User: u, IsLiked: liked[cm.ID], Replies: nested[cm.ID]})
	}
	return out, nil
}

// ---- live queries ----

var (
	feedTables     = []string{repo.TablePosts, repo.TableUsers, repo.TableFollows, repo.TablePostLikes, repo.TableSavedPosts}
	storyTables    = []string{repo.TableStories, repo.TableUsers, repo.TableFollows, repo.TableStoryViews}
	profileTables  = []string{repo.TableUsers, repo.TableFollows}
	commentsTables = []string{repo.TableComments, repo.TableUsers, repo.TableCommentLikes}
)

func (c *Composer) broker() *livequery.Broker {
	if c.Broker == nil {
		// Nothing ever publishes on a private broker: one snapshot, then idle.
		return livequery.NewBroker()
	}
	return c.Broker
}

// WatchFeed emits the feed now and again after every relevant write.
func (c *Composer) WatchFeed(ctx context.Context, v session.Viewer, limit, offset int) <-chan livequery.Snapshot[[]domain.PostWithUser] {
	return livequery.Watch(ctx, c.broker(), feedTables, func(ctx context.Context) ([]domain.PostWithUser, error) {
		return c.Feed(ctx, v, limit, offset)
	})
}

// WatchFeedStories emits FeedStories now and after every relevant write.
func (c *Composer) WatchFeedStories(ctx context.Context, v session.Viewer) <-chan livequery.Snapshot[[]domain.StoryWithUser] {
	return livequery.Watch(ctx, c.broker(), storyTables, func(ctx context.Context) ([]domain.StoryWithUser, error) {
		return c.FeedStories(ctx, v)
	})
}

// WatchProfile emits Profile now and after every relevant write.
func (c *Composer) WatchProfile(ctx context.Context, v session.Viewer, userID string) <-chan livequery.Snapshot[*domain.UserProfile] {
	return livequery.Watch(ctx, c.broker(), profileTables, func(ctx context.Context) (*domain.UserProfile, error) {
		return c.Profile(ctx, v, userID)
	})
}

// WatchComments emits Comments now and after every relevant write.
func (c *Composer) WatchComments(ctx context.Context, v session.Viewer, postID string, limit, offset int) <-chan livequery.Snapshot[[]domain.CommentWithUser] {
	return livequery.Watch(ctx, c.broker(), commentsTables, func(ctx context.Context) ([]domain.CommentWithUser, error) {
		return c.Comments(ctx, v, postID, limit, offset)
	})
}
