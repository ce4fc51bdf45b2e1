package services

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/feedcache/internal/domain"
	"github.com/tbourn/feedcache/internal/livequery"
	"github.com/tbourn/feedcache/internal/reconcile"
	"github.com/tbourn/feedcache/internal/remote"
	"github.com/tbourn/feedcache/internal/repo"
	"github.com/tbourn/feedcache/internal/seed"
	"github.com/tbourn/feedcache/internal/session"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	DB     *gorm.DB
	Broker *livequery.Broker
	Remote *seed.Server
	Now    time.Time

	Composer *Composer
	Toggler  *Toggler
	Sweeper  *Sweeper
	Sync     *SyncService
	Posts    *PostService
	Comments *CommentService
	Stories  *StoryService
	Accounts *AccountService
	Session  *session.Manager
}

func newEnv(t *testing.T, data seed.Dataset) *env {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "feed.db"), repo.WithLogger(logger.Default.LogMode(logger.Silent)))
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	b := livequery.NewBroker()
	require.NoError(t, livequery.Attach(db, b, repo.Dependents))

	srv := seed.NewServer(data)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	client, err := remote.NewClient(ts.URL, 5*time.Second)
	require.NoError(t, err)

	e := &env{DB: db, Broker: b, Remote: srv, Now: base}
	clock := Clock(func() time.Time { return e.Now })
	log := zerolog.Nop()

	e.Composer = NewComposer(db, b, clock)
	e.Toggler = NewToggler(db, b, clock)
	e.Sweeper = &Sweeper{DB: db, Broker: b, Log: log}
	e.Sync = &SyncService{
		Remote:       client,
		Reconciler:   reconcile.New(db, b, log),
		Sweeper:      e.Sweeper,
		Composer:     e.Composer,
		StoryTTL:     24 * time.Hour,
		RefreshLimit: 50,
		Clock:        clock,
		Log:          log,
	}
	e.Posts = NewPostService(db, b, clock)
	e.Comments = NewCommentService(db, b, clock)
	e.Stories = NewStoryService(db, b, clock, 24*time.Hour)
	e.Session = session.NewManager(session.NewSQLiteStore(db, session.DefaultKey))
	e.Accounts = NewAccountService(db, b, e.Session, clock)
	return e
}

func (e *env) user(t *testing.T, id string) domain.User {
	t.Helper()
	u := domain.User{ID: id, Username: id, Email: id + "@example.com", DisplayName: id, CreatedAt: base}
	require.NoError(t, e.DB.Create(&u).Error)
	return u
}

func (e *env) post(t *testing.T, id, userID string, at time.Time) domain.Post {
	t.Helper()
	p := domain.Post{ID: id, UserID: userID, Caption: "caption " + id, ImageURL: "https://img/" + id, CreatedAt: at}
	require.NoError(t, e.DB.Create(&p).Error)
	return p
}

func (e *env) story(t *testing.T, id, userID string, created, expires time.Time) domain.Story {
	t.Helper()
	s := domain.Story{ID: id, UserID: userID, ImageURL: "https://img/" + id, CreatedAt: created, ExpiresAt: expires}
	require.NoError(t, e.DB.Create(&s).Error)
	return s
}

func (e *env) follow(t *testing.T, follower, following string) {
	t.Helper()
	require.NoError(t, e.DB.Create(&domain.Follow{FollowerID: follower, FollowingID: following}).Error)
}

func (e *env) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.DB.Model(model).Count(&n).Error)
	return n
}

func (e *env) getPost(t *testing.T, id string) *domain.Post {
	t.Helper()
	p, err := repo.GetPost(context.Background(), e.DB, id)
	require.NoError(t, err)
	return p
}

func (e *env) getUser(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := repo.GetUser(context.Background(), e.DB, id)
	require.NoError(t, err)
	return u
}

func intp(v int) *int { return &v }

func strp(v string) *string { return &v }
