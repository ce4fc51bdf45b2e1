package services

import (
	"context"
	"regexp"
	"strings"
	"time"

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

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// StoryService owns locally posted stories.
type StoryService struct {
	DB     *gorm.DB
	Broker *livequery.Broker
	Clock  Clock
	TTL    time.Duration
	NewID  func() string
}

// NewStoryService constructs a StoryService. A non-positive ttl falls back
// to domain.DefaultStoryTTL.
func NewStoryService(db *gorm.DB, broker *livequery.Broker, clock Clock, ttl time.Duration) *StoryService {
	return &StoryService{DB: db, Broker: broker, Clock: clock, TTL: ttl, NewID: uuid.NewString}
}

// StoryInput is a new story. Empty colors take the defaults.
type StoryInput struct {
	ImageURL        string
	Text            string
	BackgroundColor string
	TextColor       string
}

// CreateStory posts a story by the viewer that expires after TTL.
func (s *StoryService) CreateStory(ctx context.Context, v session.Viewer, in StoryInput) (*domain.Story, error) {
	viewer, err := requireViewer(v)
	if err != nil {
		return nil, err
	}
	tr := otel.Tracer("services/StoryService")
	ctx, span := tr.Start(ctx, "CreateStory", trace.WithAttributes(attribute.String("viewer.id", viewer)))
	defer span.End()

	in.ImageURL = strings.TrimSpace(in.ImageURL)
	if in.ImageURL == "" {
		return nil, invalid("image url is required")
	}
	for _, c := range []string{in.BackgroundColor, in.TextColor} {
		if c != "" && !hexColor.MatchString(c) {
			return nil, invalid("color %q is not #RRGGBB", c)
		}
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = domain.DefaultStoryTTL
	}
	now := s.Clock.now()
	st := &domain.Story{
		ID:              newID(s.NewID),
		UserID:          viewer,
		ImageURL:        in.ImageURL,
		Text:            strings.TrimSpace(in.Text),
		BackgroundColor: in.BackgroundColor,
		TextColor:       in.TextColor,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}
	err = s.Broker.Transaction(ctx, s.DB, func(ctx context.Context, tx *gorm.DB) error {
		if _, err := repo.GetUser(ctx, tx, viewer); err != nil {
			return err
		}
		return repo.CreateStory(ctx, tx, st)
	})
	if err != nil {
		return nil, classify(err, "user "+viewer)
	}
	return st, nil
}
