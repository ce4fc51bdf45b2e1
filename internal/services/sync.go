// Package services – SyncService
//
// This file implements the fetch → reconcile → compose cycles behind
// refreshFeed and refreshStories. Remote content is merged through the
// two-phase reconciler; relation tables are never written by a sync. A
// transport failure is not fatal: the cached view is composed anyway and
// the failure travels next to it as SyncErr.
package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/feedcache/internal/domain"
	"github.com/tbourn/feedcache/internal/observability"
	"github.com/tbourn/feedcache/internal/reconcile"
	"github.com/tbourn/feedcache/internal/remote"
	"github.com/tbourn/feedcache/internal/repo"
	"github.com/tbourn/feedcache/internal/session"
)

// SyncService pulls remote content into the local store.
type SyncService struct {
	Remote     remote.Fetcher
	Reconciler *reconcile.Reconciler
	Sweeper    *Sweeper
	Composer   *Composer

	// StoryTTL is the lifetime of remote stories that carry no expiry.
	StoryTTL time.Duration
	// RefreshLimit bounds the view returned by a refresh.
	RefreshLimit int
	// ImportFollows makes RefreshFeed also import remote follow edges.
	ImportFollows bool

	Clock Clock
	Log   zerolog.Logger
}

// FeedRefresh is the outcome of RefreshFeed.
type FeedRefresh struct {
	Posts []domain.PostWithUser
	// SyncErr is set when the remote could not be reached; Posts then
	// reflects the previously cached state.
	SyncErr error
}

// StoriesRefresh is the outcome of RefreshStories.
type StoriesRefresh struct {
	Stories []domain.StoryWithUser
	SyncErr error
}

// CommentsRefresh is the outcome of RefreshComments.
type CommentsRefresh struct {
	Comments []domain.CommentWithUser
	SyncErr  error
}

func (s *SyncService) db() *gorm.DB { return s.Reconciler.DB }

func (s *SyncService) ttl() time.Duration {
	if s.StoryTTL > 0 {
		return s.StoryTTL
	}
	return domain.DefaultStoryTTL
}

func (s *SyncService) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tr := otel.Tracer("services/SyncService")
	return tr.Start(ctx, name, trace.WithAttributes(attrs...))
}

// softFail splits a sync error into the non-fatal remote part and the
// fatal rest.
func (s *SyncService) softFail(op string, err error) (syncErr, fatal error) {
	if err == nil {
		return nil, nil
	}
	if errors.Is(err, ErrRemoteUnavailable) {
		s.Log.Warn().Err(err).Str("op", op).Msg("remote unavailable; serving cached view")
		return err, nil
	}
	s.Log.Error().Err(err).Str("op", op).Msg("sync failed")
	return nil, err
}

// RefreshFeed syncs users and posts, then returns the viewer's feed.
func (s *SyncService) RefreshFeed(ctx context.Context, v session.Viewer) (FeedRefresh, error) {
	ctx, span := s.start(ctx, "RefreshFeed")
	defer span.End()

	err := s.SyncUsers(ctx)
	// ImportFollows is the one path where a sync writes a relation table.
	// It is off unless SYNC_IMPORT_FOLLOWS is set, and it only ever adds edges.
	if err == nil && s.ImportFollows {
		_, err = s.ImportFollowEdges(ctx)
	}
	if err == nil {
		err = s.SyncPosts(ctx)
	}
	syncErr, fatal := s.softFail("refresh_feed", err)
	if fatal != nil {
		return FeedRefresh{}, fatal
	}

	posts, err := s.Composer.Feed(ctx, v, s.RefreshLimit, 0)
	if err != nil {
		return FeedRefresh{}, err
	}
	return FeedRefresh{Posts: posts, SyncErr: syncErr}, nil
}

// RefreshStories syncs users, sweeps expired stories, merges the remote
// stories that are still active, then returns the viewer's story feed.
func (s *SyncService) RefreshStories(ctx context.Context, v session.Viewer) (StoriesRefresh, error) {
	ctx, span := s.start(ctx, "RefreshStories")
	defer span.End()

	// Story owners must be known before their stories can be merged.
	err := s.SyncUsers(ctx)
	var dtos []remote.StoryDTO
	if err == nil {
		if dtos, err = s.Remote.FetchStories(ctx); err != nil {
			err = classify(err, "fetch stories")
		}
	}
	if _, serr := s.Sweeper.Sweep(ctx, s.Clock.now()); serr != nil {
		return StoriesRefresh{}, serr
	}
	if err == nil {
		err = s.mergeStories(ctx, dtos)
	}
	syncErr, fatal := s.softFail("refresh_stories", err)
	if fatal != nil {
		return StoriesRefresh{}, fatal
	}

	stories, err := s.Composer.FeedStories(ctx, v)
	if err != nil {
		return StoriesRefresh{}, err
	}
	return StoriesRefresh{Stories: stories, SyncErr: syncErr}, nil
}

// RefreshComments syncs the remote comments of postID and returns the
// composed comment thread.
func (s *SyncService) RefreshComments(ctx context.Context, v session.Viewer, postID string) (CommentsRefresh, error) {
	ctx, span := s.start(ctx, "RefreshComments", attribute.String("post.id", postID))
	defer span.End()

	if _, err := repo.GetPost(ctx, s.db(), postID); err != nil {
		return CommentsRefresh{}, classify(err, "post "+postID)
	}
	syncErr, fatal := s.softFail("refresh_comments", s.SyncComments(ctx, postID))
	if fatal != nil {
		return CommentsRefresh{}, fatal
	}
	comments, err := s.Composer.Comments(ctx, v, postID, s.RefreshLimit, 0)
	if err != nil {
		return CommentsRefresh{}, err
	}
	return CommentsRefresh{Comments: comments, SyncErr: syncErr}, nil
}

// ---- per-kind syncs ----

func withUpdatedAt(cols []string, t time.Time) []string {
	if t.IsZero() {
		return cols
	}
	return append(cols, "updated_at")
}

var userPlan = reconcile.Plan[domain.User]{
	Kind: repo.TableUsers,
	Key:  func(u *domain.User) string { return u.ID },
	Columns: func(u *domain.User) []string {
		return withUpdatedAt([]string{
			"username", "email", "display_name", "bio", "profile_image_url", "website",
			"is_verified", "is_private", "followers_count", "following_count", "posts_count",
		}, u.UpdatedAt)
	},
}

// SyncUsers fetches and merges remote users and recomputes their counters.
func (s *SyncService) SyncUsers(ctx context.Context) error {
	dtos, err := s.Remote.FetchUsers(ctx)
	if err != nil {
		return classify(err, "fetch users")
	}
	rows := make([]domain.User, 0, len(dtos))
	for _, d := range dtos {
		rows = append(rows, d.Entity())
	}
	rep, err := reconcile.Merge(ctx, s.Reconciler, userPlan, rows)
	if err != nil {
		return classify(err, "merge users")
	}
	if err := s.recountUsers(ctx, rep.Touched()); err != nil {
		return err
	}
	s.Log.Debug().Int("inserted", len(rep.Inserted)).Int("updated", len(rep.Updated)).Int("dropped", len(rep.Dropped)).Msg("users synced")
	return nil
}

// recountUsers derives the follower, following and post counters of ids
// from local rows. Remote-reported user counters never survive a sync.
func (s *SyncService) recountUsers(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.Reconciler.Broker.Transaction(ctx, s.db(), func(ctx context.Context, tx *gorm.DB) error {
		for _, id := range ids {
			if err := repo.RecomputeUserCounts(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	return classify(err, "recompute user counters")
}

// orphans drops rows whose owner user is not stored locally.
func orphans[T any](key, owner func(*T) string) func(context.Context, *gorm.DB, []T) (map[string]reconcile.Outcome, error) {
	return func(ctx context.Context, db *gorm.DB, rows []T) (map[string]reconcile.Outcome, error) {
		ids := make([]string, 0, len(rows))
		for i := range rows {
			ids = append(ids, owner(&rows[i]))
		}
		known, err := repo.ExistingIDs[domain.User](ctx, db, ids)
		if err != nil {
			return nil, err
		}
		out := map[string]reconcile.Outcome{}
		for i := range rows {
			if !known[owner(&rows[i])] {
				out[key(&rows[i])] = reconcile.Orphaned
			}
		}
		return out, nil
	}
}

var postPlan = reconcile.Plan[domain.Post]{
	Kind: repo.TablePosts,
	Key:  func(p *domain.Post) string { return p.ID },
	Columns: func(p *domain.Post) []string {
		return withUpdatedAt([]string{"caption", "image_url", "location", "likes_count", "comments_count"}, p.UpdatedAt)
	},
	Admit: orphans(func(p *domain.Post) string { return p.ID }, func(p *domain.Post) string { return p.UserID }),
}

// SyncPosts fetches and merges remote posts, then recomputes the counters
// of every merged post and of their authors from local rows.
func (s *SyncService) SyncPosts(ctx context.Context) error {
	dtos, err := s.Remote.FetchPosts(ctx)
	if err != nil {
		return classify(err, "fetch posts")
	}
	rows := make([]domain.Post, 0, len(dtos))
	for _, d := range dtos {
		rows = append(rows, d.Entity())
	}
	rep, err := reconcile.Merge(ctx, s.Reconciler, postPlan, rows)
	if err != nil {
		return classify(err, "merge posts")
	}
	touched := rep.Touched()
	err = s.Reconciler.Broker.Transaction(ctx, s.db(), func(ctx context.Context, tx *gorm.DB) error {
		for _, id := range touched {
			if err := repo.RecomputePostCounts(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return classify(err, "recompute post counters")
	}

	merged := make(map[string]bool, len(touched))
	for _, id := range touched {
		merged[id] = true
	}
	seen := map[string]bool{}
	var authors []string
	for _, p := range rows {
		if merged[p.ID] && !seen[p.UserID] {
			seen[p.UserID] = true
			authors = append(authors, p.UserID)
		}
	}
	if err := s.recountUsers(ctx, authors); err != nil {
		return err
	}
	s.Log.Debug().Int("inserted", len(rep.Inserted)).Int("updated", len(rep.Updated)).Int("dropped", len(rep.Dropped)).Msg("posts synced")
	return nil
}

func (s *SyncService) mergeStories(ctx context.Context, dtos []remote.StoryDTO) error {
	now := s.Clock.now()
	ttl := s.ttl()

	// Stories without any remote timestamp get their lifetime from the first
	// sync that sees them; later syncs must not push the expiry out.
	derived := map[string]bool{}
	rows := make([]domain.Story, 0, len(dtos))
	for _, d := range dtos {
		st := d.Entity(ttl)
		if st.CreatedAt.IsZero() {
			st.CreatedAt = now
			st.ExpiresAt = now.Add(ttl)
			derived[st.ID] = true
		}
		rows = append(rows, st)
	}

	owned := orphans(func(st *domain.Story) string { return st.ID }, func(st *domain.Story) string { return st.UserID })
	plan := reconcile.Plan[domain.Story]{
		Kind: repo.TableStories,
		Key:  func(st *domain.Story) string { return st.ID },
		Columns: func(st *domain.Story) []string {
			cols := []string{"image_url", "text", "background_color", "text_color", "views_count"}
			if !derived[st.ID] {
				cols = append(cols, "expires_at")
			}
			return cols
		},
		Admit: func(ctx context.Context, db *gorm.DB, rows []domain.Story) (map[string]reconcile.Outcome, error) {
			out := map[string]reconcile.Outcome{}
			live := make([]domain.Story, 0, len(rows))
			for _, st := range rows {
				if !st.IsActive(now) {
					out[st.ID] = reconcile.Expired
					continue
				}
				live = append(live, st)
			}
			more, err := owned(ctx, db, live)
			if err != nil {
				return nil, err
			}
			for k, why := range more {
				out[k] = why
			}
			return out, nil
		},
	}

	rep, err := reconcile.Merge(ctx, s.Reconciler, plan, rows)
	if err != nil {
		return classify(err, "merge stories")
	}
	err = s.Reconciler.Broker.Transaction(ctx, s.db(), func(ctx context.Context, tx *gorm.DB) error {
		for _, id := range rep.Touched() {
			if err := repo.RecomputeStoryCounts(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return classify(err, "recompute story counters")
	}
	s.Log.Debug().Int("inserted", len(rep.Inserted)).Int("updated", len(rep.Updated)).Int("dropped", len(rep.Dropped)).Msg("stories synced")
	return nil
}

var commentPlan = reconcile.Plan[domain.Comment]{
	Kind: repo.TableComments,
	Key:  func(c *domain.Comment) string { return c.ID },
	Columns: func(c *domain.Comment) []string {
		return withUpdatedAt([]string{"text", "likes_count", "replies_count"}, c.UpdatedAt)
	},
	Admit: func(ctx context.Context, db *gorm.DB, rows []domain.Comment) (map[string]reconcile.Outcome, error) {
		var userIDs, postIDs, parentIDs []string
		inBatch := make(map[string]bool, len(rows))
		for _, c := range rows {
			userIDs = append(userIDs, c.UserID)
			postIDs = append(postIDs, c.PostID)
			inBatch[c.ID] = true
			if c.IsReply() {
				parentIDs = append(parentIDs, *c.ParentCommentID)
			}
		}
		users, err := repo.ExistingIDs[domain.User](ctx, db, userIDs)
		if err != nil {
			return nil, err
		}
		posts, err := repo.ExistingIDs[domain.Post](ctx, db, postIDs)
		if err != nil {
			return nil, err
		}
		parents, err := repo.ExistingIDs[domain.Comment](ctx, db, parentIDs)
		if err != nil {
			return nil, err
		}
		out := map[string]reconcile.Outcome{}
		for _, c := range rows {
			if !users[c.UserID] || !posts[c.PostID] {
				out[c.ID] = reconcile.Orphaned
				continue
			}
			if c.IsReply() && !parents[*c.ParentCommentID] && !inBatch[*c.ParentCommentID] {
				out[c.ID] = reconcile.Orphaned
			}
		}
		return out, nil
	},
}

// SyncComments fetches remote comments and merges those belonging to postID,
// or every comment when postID is empty. Post and comment counters are
// recomputed afterwards.
func (s *SyncService) SyncComments(ctx context.Context, postID string) error {
	dtos, err := s.Remote.FetchComments(ctx)
	if err != nil {
		return classify(err, "fetch comments")
	}
	rows := make([]domain.Comment, 0, len(dtos))
	for _, d := range dtos {
		if postID != "" && d.PostID != postID {
			continue
		}
		rows = append(rows, d.Entity())
	}
	// Parents are inserted before their replies.
	sort.SliceStable(rows, func(i, j int) bool { return !rows[i].IsReply() && rows[j].IsReply() })

	rep, err := reconcile.Merge(ctx, s.Reconciler, commentPlan, rows)
	if err != nil {
		return classify(err, "merge comments")
	}

	touched := map[string]bool{}
	for _, id := range rep.Touched() {
		touched[id] = true
	}
	posts := map[string]bool{}
	comments := map[string]bool{}
	for _, c := range rows {
		if !touched[c.ID] {
			continue
		}
		posts[c.PostID] = true
		comments[c.ID] = true
		if c.IsReply() {
			comments[*c.ParentCommentID] = true
		}
	}
	err = s.Reconciler.Broker.Transaction(ctx, s.db(), func(ctx context.Context, tx *gorm.DB) error {
		for id := range posts {
			if err := repo.RecomputePostCounts(ctx, tx, id); err != nil {
				return err
			}
		}
		for id := range comments {
			if err := repo.RecomputeCommentCounts(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return classify(err, "recompute comment counters")
	}
	s.Log.Debug().Int("inserted", len(rep.Inserted)).Int("updated", len(rep.Updated)).Int("dropped", len(rep.Dropped)).Msg("comments synced")
	return nil
}

// ImportFollowEdges inserts remote follow edges between locally known
// users. Existing edges are kept and local edges are never deleted. It
// returns the number of edges added.
func (s *SyncService) ImportFollowEdges(ctx context.Context) (int64, error) {
	ctx, span := s.start(ctx, "ImportFollowEdges")
	defer span.End()

	dtos, err := s.Remote.FetchFollowEdges(ctx)
	if err != nil {
		return 0, classify(err, "fetch follow edges")
	}
	ids := make([]string, 0, 2*len(dtos))
	for _, d := range dtos {
		ids = append(ids, d.FollowerID, d.FollowingID)
	}
	known, err := repo.ExistingIDs[domain.User](ctx, s.db(), ids)
	if err != nil {
		return 0, classify(err, "follow endpoints")
	}

	edges := make([]domain.Follow, 0, len(dtos))
	endpoints := map[string]bool{}
	for _, d := range dtos {
		if d.FollowerID == d.FollowingID || !known[d.FollowerID] || !known[d.FollowingID] {
			observability.ReconcileRows.WithLabelValues(repo.TableFollows, string(reconcile.Orphaned)).Inc()
			continue
		}
		edges = append(edges, d.Entity())
		endpoints[d.FollowerID] = true
		endpoints[d.FollowingID] = true
	}

	var added int64
	err = s.Reconciler.Broker.Transaction(ctx, s.db(), func(ctx context.Context, tx *gorm.DB) error {
		var err error
		if added, err = repo.InsertFollows(ctx, tx, edges); err != nil || added == 0 {
			return err
		}
		for id := range endpoints {
			if err := repo.RecomputeUserCounts(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, classify(err, "import follow edges")
	}
	observability.ReconcileRows.WithLabelValues(repo.TableFollows, string(reconcile.Inserted)).Add(float64(added))
	s.Log.Debug().Int64("added", added).Msg("follow edges imported")
	return added, nil
}
