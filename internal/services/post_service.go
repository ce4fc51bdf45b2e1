// Package services – PostService
//
// This file implements local post authoring: create, edit and delete. Edits
// and deletes are restricted to the author. Author counters are recomputed
// in the same transaction as the write.
package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/feedcache/internal/domain"
	"github.com/tbourn/feedcache/internal/livequery"
	"github.com/tbourn/feedcache/internal/repo"
	"github.com/tbourn/feedcache/internal/session"
)

// MaxCaptionRunes caps post captions.
const MaxCaptionRunes = 2200

// PostService owns locally authored posts.
type PostService struct {
	DB     *gorm.DB
	Broker *livequery.Broker
	Clock  Clock
	// NewID generates post ids; defaults to random UUIDs.
	NewID func() string
}

// NewPostService constructs a PostService with UUID ids.
func NewPostService(db *gorm.DB, broker *livequery.Broker, clock Clock) *PostService {
	return &PostService{DB: db, Broker: broker, Clock: clock, NewID: uuid.NewString}
}

func newID(gen func() string) string {
	if gen == nil {
		return uuid.NewString()
	}
	return gen()
}

func validCaption(caption string) error {
	if utf8.RuneCountInString(caption) > MaxCaptionRunes {
		return invalid("caption exceeds %d characters", MaxCaptionRunes)
	}
	return nil
}

// CreatePost publishes a post by the viewer.
func (s *PostService) CreatePost(ctx context.Context, v session.Viewer, caption, imageURL, location string) (*domain.Post, error) {
	viewer, err := requireViewer(v)
	if err != nil {
		return nil, err
	}
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "CreatePost", trace.WithAttributes(attribute.String("viewer.id", viewer)))
	defer span.End()

	caption = strings.TrimSpace(caption)
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return nil, invalid("image url is required")
	}
	if err := validCaption(caption); err != nil {
		return nil, err
	}

	now := s.Clock.now()
	p := &domain.Post{
		ID:        newID(s.NewID),
		UserID:    viewer,
		Caption:   caption,
		ImageURL:  imageURL,
		Location:  strings.TrimSpace(location),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.Broker.Transaction(ctx, s.DB, func(ctx context.Context, tx *gorm.DB) error {
		if _, err := repo.GetUser(ctx, tx, viewer); err != nil {
			return err
		}
		if err := repo.CreatePost(ctx, tx, p); err != nil {
			return err
		}
		return repo.RecomputeUserCounts(ctx, tx, viewer)
	})
	if err != nil {
		return nil, classify(err, "user "+viewer)
	}
	return p, nil
}

// PostUpdate lists the editable post fields; nil leaves a field unchanged.
type PostUpdate struct {
	Caption  *string
	Location *string
}

// UpdatePost edits a post owned by the viewer.
func (s *PostService) UpdatePost(ctx context.Context, v session.Viewer, postID string, in PostUpdate) (*domain.Post, error) {
	viewer, err := requireViewer(v)
	if err != nil {
		return nil, err
	}
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "UpdatePost", trace.WithAttributes(
		attribute.String("viewer.id", viewer),
		attribute.String("post.id", postID),
	))
	defer span.End()

	fields := map[string]any{}
	if in.Caption != nil {
		caption := strings.TrimSpace(*in.Caption)
		if err := validCaption(caption); err != nil {
			return nil, err
		}
		fields["caption"] = caption
	}
	if in.Location != nil {
		fields["location"] = strings.TrimSpace(*in.Location)
	}

	var out *domain.Post
	err = s.Broker.Transaction(ctx, s.DB, func(ctx context.Context, tx *gorm.DB) error {
		p, err := repo.GetPost(ctx, tx, postID)
		if err != nil {
			return err
		}
		if p.UserID != viewer {
			return ErrPermissionDenied
		}
		if len(fields) > 0 {
			fields["updated_at"] = s.Clock.now()
			if err := repo.UpdatePostFields(ctx, tx, postID, fields); err != nil {
				return err
			}
		}
		out, err = repo.GetPost(ctx, tx, postID)
		return err
	})
	if err != nil {
		return nil, classify(err, "post "+postID)
	}
	return out, nil
}

// DeletePost removes a post owned by the viewer together with its comments,
// likes and saves.
func (s *PostService) DeletePost(ctx context.Context, v session.Viewer, postID string) error {
	viewer, err := requireViewer(v)
	if err != nil {
		return err
	}
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "DeletePost", trace.WithAttributes(
		attribute.String("viewer.id", viewer),
		attribute.String("post.id", postID),
	))
	defer span.End()

	err = s.Broker.Transaction(ctx, s.DB, func(ctx context.Context, tx *gorm.DB) error {
		p, err := repo.GetPost(ctx, tx, postID)
		if err != nil {
			return err
		}
		if p.UserID != viewer {
			return ErrPermissionDenied
		}
		if _, err := repo.Delete[domain.Post](ctx, tx, postID); err != nil {
			return err
		}
		return repo.RecomputeUserCounts(ctx, tx, viewer)
	})
	return classify(err, "post "+postID)
}
