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

// MaxCommentRunes caps comment text.
const MaxCommentRunes = 2200

// CommentService owns locally written comments. Replies are one level deep:
// a reply must answer a top-level comment of the same post.
type CommentService struct {
	DB     *gorm.DB
	Broker *livequery.Broker
	Clock  Clock
	NewID  func() string
}

// NewCommentService constructs a CommentService with UUID ids.
func NewCommentService(db *gorm.DB, broker *livequery.Broker, clock Clock) *CommentService {
	return &CommentService{DB: db, Broker: broker, Clock: clock, NewID: uuid.NewString}
}

// AddComment writes a comment by the viewer on postID, or a reply when
// parentID is set.
func (s *CommentService) AddComment(ctx context.Context, v session.Viewer, postID, text string, parentID *string) (*domain.Comment, error) {
	viewer, err := requireViewer(v)
	if err != nil {
		return nil, err
	}
	tr := otel.Tracer("services/CommentService")
	ctx, span := tr.Start(ctx, "AddComment", trace.WithAttributes(
		attribute.String("viewer.id", viewer),
		attribute.String("post.id", postID),
	))
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("comment text is required")
	}
	if utf8.RuneCountInString(text) > MaxCommentRunes {
		return nil, invalid("comment exceeds %d characters", MaxCommentRunes)
	}

	now := s.Clock.now()
	c := &domain.Comment{ID: newID(s.NewID), PostID: postID, UserID: viewer, Text: text, CreatedAt: now, UpdatedAt: now}
	if parentID != nil && strings.TrimSpace(*parentID) != "" {
		pid := strings.TrimSpace(*parentID)
		c.ParentCommentID = &pid
	}

	err = s.Broker.Transaction(ctx, s.DB, func(ctx context.Context, tx *gorm.DB) error {
		if _, err := repo.GetPost(ctx, tx, postID); err != nil {
			return err
		}
		if c.IsReply() {
			parent, err := repo.GetComment(ctx, tx, *c.ParentCommentID)
			if err != nil {
				return err
			}
			if parent.PostID != postID || parent.IsReply() {
				return invalid("replies must answer a top-level comment of the same post")
			}
		}
		if err := repo.CreateComment(ctx, tx, c); err != nil {
			return err
		}
		if err := repo.RecomputePostCounts(ctx, tx, postID); err != nil {
			return err
		}
		if c.IsReply() {
			return repo.RecomputeCommentCounts(ctx, tx, *c.ParentCommentID)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err, "comment target")
	}
	return c, nil
}

// DeleteComment removes a comment written by the viewer, with its replies
// and likes.
func (s *CommentService) DeleteComment(ctx context.Context, v session.Viewer, commentID string) error {
	viewer, err := requireViewer(v)
	if err != nil {
		return err
	}
	tr := otel.Tracer("services/CommentService")
	ctx, span := tr.Start(ctx, "DeleteComment", trace.WithAttributes(
		attribute.String("viewer.id", viewer),
		attribute.String("comment.id", commentID),
	))
	defer span.End()

	err = s.Broker.Transaction(ctx, s.DB, func(ctx context.Context, tx *gorm.DB) error {
		c, err := repo.GetComment(ctx, tx, commentID)
		if err != nil {
			return err
		}
		if c.UserID != viewer {
			return ErrPermissionDenied
		}
		if _, err := repo.Delete[domain.Comment](ctx, tx, commentID); err != nil {
			return err
		}
		if err := repo.RecomputePostCounts(ctx, tx, c.PostID); err != nil {
			return err
		}
		if c.IsReply() {
			return repo.RecomputeCommentCounts(ctx, tx, *c.ParentCommentID)
		}
		return nil
	})
	return classify(err, "comment "+commentID)
}
