package repo

import (
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/feedcache/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "feed.db"), WithLogger(logger.Default.LogMode(logger.Silent)))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func mustCreate(t *testing.T, db *gorm.DB, v any) {
	t.Helper()
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

func seedUser(t *testing.T, db *gorm.DB, id string, followers int) domain.User {
	t.Helper()
	u := domain.User{ID: id, Username: id, Email: id + "@example.com", DisplayName: id, FollowersCount: followers, CreatedAt: base}
	mustCreate(t, db, &u)
	return u
}

func seedPost(t *testing.T, db *gorm.DB, id, userID string, at time.Time) domain.Post {
	t.Helper()
	p := domain.Post{ID: id, UserID: userID, Caption: "caption " + id, ImageURL: "https://img/" + id, CreatedAt: at}
	mustCreate(t, db, &p)
	return p
}

func seedFollow(t *testing.T, db *gorm.DB, follower, following string) {
	t.Helper()
	mustCreate(t, db, &domain.Follow{FollowerID: follower, FollowingID: following})
}
