package reconcile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/feedcache/internal/domain"
	"github.com/tbourn/feedcache/internal/livequery"
	"github.com/tbourn/feedcache/internal/repo"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newReconciler(t *testing.T) (*Reconciler, *livequery.Broker) {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "feed.db"), repo.WithLogger(logger.Default.LogMode(logger.Silent)))
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	b := livequery.NewBroker()
	require.NoError(t, livequery.Attach(db, b, repo.Dependents))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return New(db, b, zerolog.Nop()), b
}

var userPlan = Plan[domain.User]{
	Kind: "users",
	Key:  func(u *domain.User) string { return u.ID },
	Columns: func(*domain.User) []string {
		return []string{"username", "email", "display_name", "bio"}
	},
}

var postPlan = Plan[domain.Post]{
	Kind: "posts",
	Key:  func(p *domain.Post) string { return p.ID },
	Columns: func(*domain.Post) []string {
		return []string{"caption", "image_url", "location", "likes_count", "comments_count"}
	},
}

func user(id, bio string) domain.User {
	return domain.User{ID: id, Username: id, Email: id + "@example.com", DisplayName: id, Bio: bio, CreatedAt: base}
}

func TestMerge_InsertsThenUpdates(t *testing.T) {
	r, _ := newReconciler(t)
	ctx := context.Background()

	rep, err := Merge(ctx, r, userPlan, []domain.User{user("u1", "a"), user("u2", "b")})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, rep.Inserted)
	assert.Empty(t, rep.Updated)

	rep, err = Merge(ctx, r, userPlan, []domain.User{user("u1", "changed"), user("u3", "c")})
	require.NoError(t, err)
	assert.Equal(t, []string{"u3"}, rep.Inserted)
	assert.Equal(t, []string{"u1"}, rep.Updated)
	assert.ElementsMatch(t, []string{"u1", "u3"}, rep.Touched())

	got, err := repo.GetUser(ctx, r.DB, "u1")
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Bio)
}

func TestMerge_IdempotentAndKeepsRelations(t *testing.T) {
	r, _ := newReconciler(t)
	ctx := context.Background()

	_, err := Merge(ctx, r, userPlan, []domain.User{user("u1", ""), user("u2", "")})
	require.NoError(t, err)
	batch := []domain.Post{{ID: "p1", UserID: "u1", Caption: "hi", ImageURL: "img", LikesCount: 0, CreatedAt: base}}
	_, err = Merge(ctx, r, postPlan, batch)
	require.NoError(t, err)

	_, err = repo.AddPostLike(ctx, r.DB, "p1", "u2")
	require.NoError(t, err)
	require.NoError(t, repo.RecomputePostCounts(ctx, r.DB, "p1"))

	first, err := repo.GetPost(ctx, r.DB, "p1")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = Merge(ctx, r, postPlan, batch)
		require.NoError(t, err)
	}

	liked, err := repo.IsPostLiked(ctx, r.DB, "p1", "u2")
	require.NoError(t, err)
	assert.True(t, liked, "relation rows must survive re-sync")

	// remote count 0 is written by the update phase; the caller recomputes
	require.NoError(t, repo.RecomputePostCounts(ctx, r.DB, "p1"))
	again, err := repo.GetPost(ctx, r.DB, "p1")
	require.NoError(t, err)
	assert.Equal(t, first.Caption, again.Caption)
	assert.Equal(t, 1, again.LikesCount)
	assert.True(t, first.UpdatedAt.Equal(again.UpdatedAt), "re-sync must not bump updated_at")
}

func TestMerge_CollapsesDuplicateKeys(t *testing.T) {
	r, _ := newReconciler(t)
	rep, err := Merge(context.Background(), r, userPlan, []domain.User{user("u1", "first"), user("u2", ""), user("u1", "last")})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, rep.Inserted)

	got, err := repo.GetUser(context.Background(), r.DB, "u1")
	require.NoError(t, err)
	assert.Equal(t, "last", got.Bio)
}

func TestMerge_AdmitDropsRows(t *testing.T) {
	r, _ := newReconciler(t)
	ctx := context.Background()
	_, err := Merge(ctx, r, userPlan, []domain.User{user("u1", "")})
	require.NoError(t, err)

	plan := postPlan
	plan.Admit = func(ctx context.Context, db *gorm.DB, rows []domain.Post) (map[string]Outcome, error) {
		owners := make([]string, 0, len(rows))
		for _, p := range rows {
			owners = append(owners, p.UserID)
		}
		known, err := repo.ExistingIDs[domain.User](ctx, db, owners)
		if err != nil {
			return nil, err
		}
		out := map[string]Outcome{}
		for _, p := range rows {
			if !known[p.UserID] {
				out[p.ID] = Orphaned
			}
		}
		return out, nil
	}

	rep, err := Merge(ctx, r, plan, []domain.Post{
		{ID: "p1", UserID: "u1", ImageURL: "img", CreatedAt: base},
		{ID: "p2", UserID: "ghost", ImageURL: "img", CreatedAt: base},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, rep.Inserted)
	assert.Equal(t, map[string]Outcome{"p2": Orphaned}, rep.Dropped)

	_, err = repo.GetPost(ctx, r.DB, "p2")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestMerge_PublishesAfterCommit(t *testing.T) {
	r, b := newReconciler(t)
	ch, cancel := b.Subscribe(repo.TableUsers)
	defer cancel()

	_, err := Merge(context.Background(), r, userPlan, []domain.User{user("u1", "")})
	require.NoError(t, err)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a users change signal")
	}
}

func TestMerge_CancelledContext(t *testing.T) {
	r, _ := newReconciler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Merge(ctx, r, userPlan, []domain.User{user("u1", "")})
	require.Error(t, err)

	var n int64
	require.NoError(t, r.DB.Model(&domain.User{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestMerge_Empty(t *testing.T) {
	r, _ := newReconciler(t)
	rep, err := Merge(context.Background(), r, userPlan, nil)
	require.NoError(t, err)
	assert.Empty(t, rep.Touched())
	assert.Empty(t, rep.Dropped)
}

func TestMerge_UniqueClashesAreReportedNotInserted(t *testing.T) {
	r, _ := newReconciler(t)
	ctx := context.Background()

	_, err := Merge(ctx, r, userPlan, []domain.User{user("u1", ""), user("u2", "")})
	require.NoError(t, err)

	taken := user("r9", "")
	taken.Username = "u1"
	swapped := user("u2", "renamed")
	swapped.Username = "u1"
	rep, err := Merge(ctx, r, userPlan, []domain.User{taken, swapped, user("u3", "")})
	require.NoError(t, err)

	assert.Equal(t, []string{"u3"}, rep.Inserted)
	assert.Empty(t, rep.Updated)
	assert.Equal(t, map[string]Outcome{"r9": Conflicted, "u2": Conflicted}, rep.Dropped)
	assert.ElementsMatch(t, []string{"u3"}, rep.Touched())

	_, err = repo.GetUser(ctx, r.DB, "r9")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	got, err := repo.GetUser(ctx, r.DB, "u2")
	require.NoError(t, err)
	assert.Equal(t, "u2", got.Username)
}
