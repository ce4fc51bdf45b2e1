// Package services – Toggler
//
// This file implements the interaction toggler: likes, bookmarks, follows,
// comment likes and story views. Each call checks the target, reads the
// current relation row, writes, and recomputes the affected counters in one
// transaction, so subscribers observe the relation and the counters change
// together.
package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/feedcache/internal/livequery"
	"github.com/tbourn/feedcache/internal/repo"
	"github.com/tbourn/feedcache/internal/session"
)

// Toggler mutates the viewer's interaction state.
type Toggler struct {
	DB     *gorm.DB
	Broker *livequery.Broker
	Clock  Clock
}

// NewToggler constructs a Toggler. broker may be nil.
func NewToggler(db *gorm.DB, broker *livequery.Broker, clock Clock) *Toggler {
	return &Toggler{DB: db, Broker: broker, Clock: clock}
}

// relation describes one viewer-owned relation table. Functions take the
// target id first and the viewer id second.
type relation struct {
	name    string
	check   func(ctx context.Context, tx *gorm.DB, id string) error
	exists  func(ctx context.Context, tx *gorm.DB, id, viewer string) (bool, error)
	add     func(ctx context.Context, tx *gorm.DB, id, viewer string) (bool, error)
	remove  func(ctx context.Context, tx *gorm.DB, id, viewer string) (bool, error)
	recount func(ctx context.Context, tx *gorm.DB, id, viewer string) error
}

func postExists(ctx context.Context, tx *gorm.DB, id string) error {
	_, err := repo.GetPost(ctx, tx, id)
	return err
}

func recountPost(ctx context.Context, tx *gorm.DB, id, _ string) error {
	return repo.RecomputePostCounts(ctx, tx, id)
}

var (
	postLikes = relation{
		name:    "post",
		check:   postExists,
		exists:  repo.IsPostLiked,
		add:     repo.AddPostLike,
		remove:  repo.RemovePostLike,
		recount: recountPost,
	}
	savedPosts = relation{
		name:   "post",
		check:  postExists,
		exists: repo.IsPostSaved,
		add:    repo.AddSavedPost,
		remove: repo.RemoveSavedPost,
		// saves carry no counter
		recount: func(context.Context, *gorm.DB, string, string) error { return nil },
	}
	commentLikes = relation{
		name: "comment",
		check: func(ctx context.Context, tx *gorm.DB, id string) error {
			_, err := repo.GetComment(ctx, tx, id)
			return err
		},
		exists:  repo.IsCommentLiked,
		add:     repo.AddCommentLike,
		remove:  repo.RemoveCommentLike,
		recount: func(ctx context.Context, tx *gorm.DB, id, _ string) error { return repo.RecomputeCommentCounts(ctx, tx, id) },
	}
	follows = relation{
		name: "user",
		check: func(ctx context.Context, tx *gorm.DB, id string) error {
			_, err := repo.GetUser(ctx, tx, id)
			return err
		},
		exists: func(ctx context.Context, tx *gorm.DB, target, viewer string) (bool, error) {
			return repo.IsFollowing(ctx, tx, viewer, target)
		},
		add: func(ctx context.Context, tx *gorm.DB, target, viewer string) (bool, error) {
			return repo.AddFollow(ctx, tx, viewer, target)
		},
		remove: func(ctx context.Context, tx *gorm.DB, target, viewer string) (bool, error) {
			return repo.RemoveFollow(ctx, tx, viewer, target)
		},
		recount: func(ctx context.Context, tx *gorm.DB, target, viewer string) error {
			if err := repo.RecomputeUserCounts(ctx, tx, viewer); err != nil {
				return err
			}
			return repo.RecomputeUserCounts(ctx, tx, target)
		},
	}
)

func (t *Toggler) start(ctx context.Context, name, viewer, id string) (context.Context, trace.Span) {
	tr := otel.Tracer("services/Toggler")
	return tr.Start(ctx, name, trace.WithAttributes(
		attribute.String("viewer.id", viewer),
		attribute.String("target.id", id),
	))
}

// flip inverts the relation row between viewer and id and returns the new
// state.
func (t *Toggler) flip(ctx context.Context, rel relation, viewer, id string) (bool, error) {
	var on bool
	err := t.Broker.Transaction(ctx, t.DB, func(ctx context.Context, tx *gorm.DB) error {
		if err := rel.check(ctx, tx, id); err != nil {
			return err
		}
		had, err := rel.exists(ctx, tx, id, viewer)
		if err != nil {
			return err
		}
		if had {
			_, err = rel.remove(ctx, tx, id, viewer)
		} else {
			_, err = rel.add(ctx, tx, id, viewer)
		}
		if err != nil {
			return err
		}
		on = !had
		return rel.recount(ctx, tx, id, viewer)
	})
	if err != nil {
		return false, classify(err, rel.name+" "+id)
	}
	return on, nil
}

// set drives the relation row to the requested state. The composite key
// makes concurrent sets converge.
func (t *Toggler) set(ctx context.Context, rel relation, viewer, id string, on bool) error {
	err := t.Broker.Transaction(ctx, t.DB, func(ctx context.Context, tx *gorm.DB) error {
		if err := rel.check(ctx, tx, id); err != nil {
			return err
		}
		var changed bool
		var err error
		if on {
			changed, err = rel.add(ctx, tx, id, viewer)
		} else {
			changed, err = rel.remove(ctx, tx, id, viewer)
		}
		if err != nil || !changed {
			return err
		}
		return rel.recount(ctx, tx, id, viewer)
	})
	return classify(err, rel.name+" "+id)
}

// ToggleLike flips the viewer's like on postID and returns whether the post
// is now liked.
func (t *Toggler) ToggleLike(ctx context.Context, v session.Viewer, postID string) (bool, error) {
	viewer, err := requireViewer(v)
	if err != nil {
		return false, err
	}
	ctx, span := t.start(ctx, "ToggleLike", viewer, postID)
	defer span.End()
	return t.flip(ctx, postLikes, viewer, postID)
}

// ToggleSave flips the viewer's bookmark on postID.
func (t *Toggler) ToggleSave(ctx context.Context, v session.Viewer, postID string) (bool, error) {
	viewer, err := requireViewer(v)
	if err != nil {
		return false, err
	}
	ctx, span := t.start(ctx, "ToggleSave", viewer, postID)
	defer span.End()
	return t.flip(ctx, savedPosts, viewer, postID)
}

// ToggleCommentLike flips the viewer's like on commentID.
func (t *Toggler) ToggleCommentLike(ctx context.Context, v session.Viewer, commentID string) (bool, error) {
	viewer, err := requireViewer(v)
	if err != nil {
		return false, err
	}
	ctx, span := t.start(ctx, "ToggleCommentLike", viewer, commentID)
	defer span.End()
	return t.flip(ctx, commentLikes, viewer, commentID)
}

// ToggleFollow flips the viewer's follow edge to targetID. Following
// oneself is always rejected.
func (t *Toggler) ToggleFollow(ctx context.Context, v session.Viewer, targetID string) (bool, error) {
	viewer, err := requireViewer(v)
	if err != nil {
		return false, err
	}
	if viewer == targetID {
		return false, invalid("cannot follow yourself")
	}
	ctx, span := t.start(ctx, "ToggleFollow", viewer, targetID)
	defer span.End()
	return t.flip(ctx, follows, viewer, targetID)
}

// SetLiked likes or unlikes postID regardless of the current state.
func (t *Toggler) SetLiked(ctx context.Context, v session.Viewer, postID string, liked bool) error {
	viewer, err := requireViewer(v)
	if err != nil {
		return err
	}
	ctx, span := t.start(ctx, "SetLiked", viewer, postID)
	defer span.End()
	return t.set(ctx, postLikes, viewer, postID, liked)
}

// SetSaved bookmarks or removes the bookmark on postID.
func (t *Toggler) SetSaved(ctx context.Context, v session.Viewer, postID string, saved bool) error {
	viewer, err := requireViewer(v)
	if err != nil {
		return err
	}
	ctx, span := t.start(ctx, "SetSaved", viewer, postID)
	defer span.End()
	return t.set(ctx, savedPosts, viewer, postID, saved)
}

// SetFollowing follows or unfollows targetID.
func (t *Toggler) SetFollowing(ctx context.Context, v session.Viewer, targetID string, following bool) error {
	viewer, err := requireViewer(v)
	if err != nil {
		return err
	}
	if viewer == targetID {
		return invalid("cannot follow yourself")
	}
	ctx, span := t.start(ctx, "SetFollowing", viewer, targetID)
	defer span.End()
	return t.set(ctx, follows, viewer, targetID, following)
}

// ViewStory records that the viewer saw storyID. Views are append-only;
// recording a view twice is a no-op. It reports whether a new view was
// written. Expired stories cannot be viewed.
func (t *Toggler) ViewStory(ctx context.Context, v session.Viewer, storyID string) (bool, error) {
	viewer, err := requireViewer(v)
	if err != nil {
		return false, err
	}
	ctx, span := t.start(ctx, "ViewStory", viewer, storyID)
	defer span.End()

	var added bool
	err = t.Broker.Transaction(ctx, t.DB, func(ctx context.Context, tx *gorm.DB) error {
		s, err := repo.GetStory(ctx, tx, storyID)
		if err != nil {
			return err
		}
		if !s.IsActive(t.Clock.now()) {
			return errStoryExpired
		}
		if added, err = repo.AddStoryView(ctx, tx, storyID, viewer); err != nil || !added {
			return err
		}
		return repo.RecomputeStoryCounts(ctx, tx, storyID)
	})
	if err != nil {
		return false, classify(err, "story "+storyID)
	}
	return added, nil
}

var errStoryExpired = fmt.Errorf("%w: story expired", ErrNotFound)
