// Package repo implements the Entity Store of the feed cache: persistence of
// domain entities and relation records backed by GORM over a pure-Go SQLite
// engine. This file contains database bootstrapping helpers and schema
// migrations.
package repo

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/feedcache/internal/domain"
)

// Table names, as used by change notification.
const (
	TableUsers        = "users"
	TablePosts        = "posts"
	TableStories      = "stories"
	TableComments     = "comments"
	TableFollows      = "user_follows"
	TablePostLikes    = "post_likes"
	TableSavedPosts   = "saved_posts"
	TableCommentLikes = "comment_likes"
	TableStoryViews   = "story_views"
	TableSettings     = "settings"
)

// Pragmas are passed through the DSN so that every pooled connection gets
// them, not only the first one.
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

type openOptions struct {
	logger  logger.Interface
	tracing bool
}

// Option customizes OpenSQLite.
type Option func(*openOptions)

// WithLogger sets the GORM logger.
func WithLogger(l logger.Interface) Option { return func(o *openOptions) { o.logger = l } }

// WithTracing enables OpenTelemetry spans for every statement.
func WithTracing() Option { return func(o *openOptions) { o.tracing = true } }

// DSN returns the SQLite data source name for path with the store pragmas.
func DSN(path string) string {
	var b strings.Builder
	b.WriteString(path)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, p := range pragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
// All timestamps written through the handle are UTC.
func OpenSQLite(path string, opts ...Option) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	o := openOptions{logger: logger.Default.LogMode(logger.Warn)}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := gorm.Open(sqlite.Open(DSN(path)), &gorm.Config{
		Logger:  o.logger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	if o.tracing {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, err
		}
	}

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates or updates every table of the store. Parents are
// migrated before the tables referencing them.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Post{},
		&domain.Story{},
		&domain.Comment{},
		&domain.Follow{},
		&domain.PostLike{},
		&domain.SavedPost{},
		&domain.CommentLike{},
		&domain.StoryView{},
		&domain.Setting{},
	)
}

var dependents = map[string][]string{
	TableUsers: {
		TableUsers, TablePosts, TableStories, TableComments, TableFollows,
		TablePostLikes, TableSavedPosts, TableCommentLikes, TableStoryViews,
	},
	TablePosts:    {TablePosts, TableComments, TablePostLikes, TableSavedPosts, TableCommentLikes},
	TableStories:  {TableStories, TableStoryViews},
	TableComments: {TableComments, TableCommentLikes},
}

// Dependents returns table plus every table whose rows a write to table can
// remove through ON DELETE CASCADE.
func Dependents(table string) []string {
	if deps, ok := dependents[table]; ok {
		return deps
	}
	return []string{table}
}
