// Package services – AccountService
//
// This file implements local registration, sign-in by email, sign-out and
// profile edits. There is no credential check: signing in only selects
// which stored user the session belongs to.
package services

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/feedcache/internal/domain"
	"github.com/tbourn/feedcache/internal/livequery"
	"github.com/tbourn/feedcache/internal/repo"
	"github.com/tbourn/feedcache/internal/session"
)

var usernameRe = regexp.MustCompile(`^[a-z0-9._]{1,30}$`)

// AccountService manages who is signed in.
type AccountService struct {
	DB      *gorm.DB
	Broker  *livequery.Broker
	Session *session.Manager
	Clock   Clock
	NewID   func() string

	// Locale drives case folding of usernames and emails.
	Locale language.Tag
}

// NewAccountService constructs an AccountService with UUID ids.
func NewAccountService(db *gorm.DB, broker *livequery.Broker, sm *session.Manager, clock Clock) *AccountService {
	return &AccountService{DB: db, Broker: broker, Session: sm, Clock: clock, NewID: uuid.NewString, Locale: language.Und}
}

func (s *AccountService) fold(v string) string {
	return cases.Lower(s.Locale).String(strings.TrimSpace(v))
}

func signIn(err error) error {
	if errors.Is(err, session.ErrActive) {
		return invalid("another user is signed in")
	}
	return err
}

// Register creates a local user and signs it in. Username and email are
// stored lower-cased and must be unused.
func (s *AccountService) Register(ctx context.Context, username, email, displayName string) (*domain.User, error) {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "Register")
	defer span.End()

	username = s.fold(username)
	email = s.fold(email)
	displayName = strings.TrimSpace(displayName)
	if !usernameRe.MatchString(username) {
		return nil, invalid("username must be 1-30 characters of a-z, 0-9, '.' or '_'")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, invalid("email %q is not valid", email)
	}
	if displayName == "" {
		displayName = username
	}
	if _, ok := s.Session.UserID(); ok {
		return nil, signIn(session.ErrActive)
	}

	now := s.Clock.now()
	u := &domain.User{
		ID:          newID(s.NewID),
		Username:    username,
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.Broker.Transaction(ctx, s.DB, func(ctx context.Context, tx *gorm.DB) error {
		return repo.CreateUser(ctx, tx, u)
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, invalid("username or email already taken")
	}
	if err != nil {
		return nil, classify(err, "register")
	}
	if err := s.Session.Login(ctx, u.ID); err != nil {
		return nil, classify(signIn(err), "session")
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return u, nil
}

// Login signs in the stored user with email.
func (s *AccountService) Login(ctx context.Context, email string) (*domain.User, error) {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "Login")
	defer span.End()

	email = s.fold(email)
	if email == "" {
		return nil, invalid("email is required")
	}
	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		return nil, classify(err, "user "+email)
	}
	if err := s.Session.Login(ctx, u.ID); err != nil {
		return nil, classify(signIn(err), "session")
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return u, nil
}

// Logout ends the session. Logging out while signed out is a no-op.
func (s *AccountService) Logout(ctx context.Context) error {
	return classify(s.Session.Logout(ctx), "session")
}

// LoadSession restores the persisted session at startup. A stored id whose
// user no longer exists is cleared. It returns nil when nobody is signed in.
func (s *AccountService) LoadSession(ctx context.Context) (*domain.User, error) {
	id, err := s.Session.Restore(ctx)
	if err != nil {
		return nil, classify(err, "session")
	}
	if id == "" {
		return nil, nil
	}
	u, err := repo.GetUser(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, classify(s.Session.Logout(ctx), "session")
	}
	if err != nil {
		return nil, classify(err, "user "+id)
	}
	return u, nil
}

// CurrentUser returns the signed-in user.
func (s *AccountService) CurrentUser(ctx context.Context) (*domain.User, error) {
	id, err := requireViewer(s.Session)
	if err != nil {
		return nil, err
	}
	u, err := repo.GetUser(ctx, s.DB, id)
	return u, classify(err, "user "+id)
}

// ProfileUpdate lists the editable profile fields; nil leaves a field
// unchanged.
type ProfileUpdate struct {
	DisplayName *string
	Bio         *string
	Website     *string
	IsPrivate   *bool
}

// UpdateProfile edits the viewer's own profile.
func (s *AccountService) UpdateProfile(ctx context.Context, v session.Viewer, in ProfileUpdate) (*domain.User, error) {
	viewer, err := requireViewer(v)
	if err != nil {
		return nil, err
	}
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "UpdateProfile", trace.WithAttributes(attribute.String("viewer.id", viewer)))
	defer span.End()

	fields := map[string]any{}
	if in.DisplayName != nil {
		name := strings.TrimSpace(*in.DisplayName)
		if name == "" {
			return nil, invalid("display name must not be blank")
		}
		fields["display_name"] = name
	}
	if in.Bio != nil {
		fields["bio"] = strings.TrimSpace(*in.Bio)
	}
	if in.Website != nil {
		fields["website"] = strings.TrimSpace(*in.Website)
	}
	if in.IsPrivate != nil {
		fields["is_private"] = *in.IsPrivate
	}

	var out *domain.User
	err = s.Broker.Transaction(ctx, s.DB, func(ctx context.Context, tx *gorm.DB) error {
		if len(fields) > 0 {
			fields["updated_at"] = s.Clock.now()
			if err := repo.UpdateUserFields(ctx, tx, viewer, fields); err != nil {
				return err
			}
		}
		var err error
		out, err = repo.GetUser(ctx, tx, viewer)
		return err
	})
	if err != nil {
		return nil, classify(err, "user "+viewer)
	}
	return out, nil
}
