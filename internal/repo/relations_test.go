package repo

import (
	"context"
	"testing"

	"github.com/tbourn/feedcache/internal/domain"
)

func TestPostLike_InsertIfAbsent_Delete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedUser(t, db, "a", 0)
	seedUser(t, db, "v", 0)
	seedPost(t, db, "p1", "a", base)
	seedPost(t, db, "p2", "a", base)

	added, err := AddPostLike(ctx, db, "p1", "v")
	if err != nil || !added {
		t.Fatalf("AddPostLike = %v, %v", added, err)
	}
	added, err = AddPostLike(ctx, db, "p1", "v")
	if err != nil || added {
		t.Fatalf("second AddPostLike = %v, %v; want no-op", added, err)
	}
	liked, _ := IsPostLiked(ctx, db, "p1", "v")
	if !liked {
		t.Fatalf("IsPostLiked = false")
	}

	set, err := LikedPostSet(ctx, db, "v", []string{"p1", "p2"})
	if err != nil || !set["p1"] || set["p2"] {
		t.Fatalf("LikedPostSet = %v, %v", set, err)
	}
	if set, _ := LikedPostSet(ctx, db, "", []string{"p1"}); len(set) != 0 {
		t.Fatalf("empty viewer should yield no flags: %v", set)
	}

	removed, err := RemovePostLike(ctx, db, "p1", "v")
	if err != nil || !removed {
		t.Fatalf("RemovePostLike = %v, %v", removed, err)
	}
	removed, _ = RemovePostLike(ctx, db, "p1", "v")
	if removed {
		t.Fatalf("second RemovePostLike removed a row")
	}
}

func TestFollows_SetsAndImport(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	for _, id := range []string{"v", "a", "b"} {
		seedUser(t, db, id, 0)
	}
	if _, err := AddFollow(ctx, db, "v", "a"); err != nil {
		t.Fatalf("AddFollow: %v", err)
	}

	n, err := InsertFollows(ctx, db, []domain.Follow{
		{FollowerID: "v", FollowingID: "a"},
		{FollowerID: "v", FollowingID: "b"},
	})
	if err != nil || n != 1 {
		t.Fatalf("InsertFollows = %d, %v; want 1 new edge", n, err)
	}

	ids, err := FollowingIDs(ctx, db, "v")
	if err != nil || len(ids) != 2 {
		t.Fatalf("FollowingIDs = %v, %v", ids, err)
	}
	set, _ := FollowingSet(ctx, db, "a", []string{"v", "b"})
	if len(set) != 0 {
		t.Fatalf("a follows nobody, got %v", set)
	}
	ok, _ := IsFollowing(ctx, db, "v", "b")
	if !ok {
		t.Fatalf("imported edge missing")
	}
}

func TestStoryView_AppendOnly(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedUser(t, db, "a", 0)
	seedUser(t, db, "v", 0)
	mustCreate(t, db, &domain.Story{ID: "s1", UserID: "a", ImageURL: "img"})

	first, _ := AddStoryView(ctx, db, "s1", "v")
	second, _ := AddStoryView(ctx, db, "s1", "v")
	if !first || second {
		t.Fatalf("AddStoryView first=%v second=%v", first, second)
	}
	set, _ := ViewedStorySet(ctx, db, "v", []string{"s1"})
	if !set["s1"] {
		t.Fatalf("ViewedStorySet missing s1")
	}
}
