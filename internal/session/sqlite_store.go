package session

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/feedcache/internal/repo"
)

// DefaultKey is the settings key the current user id is stored under.
const DefaultKey = "current_user_id"

// SQLiteStore persists the session in the store's settings table.
type SQLiteStore struct {
	DB  *gorm.DB
	Key string
}

// NewSQLiteStore returns a store writing key (DefaultKey when empty).
func NewSQLiteStore(db *gorm.DB, key string) *SQLiteStore {
	if key == "" {
		key = DefaultKey
	}
	return &SQLiteStore{DB: db, Key: key}
}

func (s *SQLiteStore) Load(ctx context.Context) (string, error) {
	v, err := repo.GetSetting(ctx, s.DB, s.Key)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	return v, err
}

func (s *SQLiteStore) Save(ctx context.Context, id string) error {
	if id == "" {
		return repo.DeleteSetting(ctx, s.DB, s.Key)
	}
	return repo.PutSetting(ctx, s.DB, s.Key, id)
}
