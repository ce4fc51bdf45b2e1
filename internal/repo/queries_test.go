package repo

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/feedcache/internal/domain"
)

func ids[T any](rows []T, id func(T) string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = id(r)
	}
	return out
}

func uid(u domain.User) string { return u.ID }
func pid(p domain.Post) string { return p.ID }

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	m := map[string]int{}
	for _, x := range a {
		m[x]++
	}
	for _, x := range b {
		m[x]--
	}
	for _, v := range m {
		if v != 0 {
			return false
		}
	}
	return true
}

func TestSuggestedUsers_ExcludesSelfAndFollowed(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedUser(t, db, "v", 0)
	seedUser(t, db, "a", 0)
	seedUser(t, db, "b", 5)
	seedUser(t, db, "c", 9)
	seedFollow(t, db, "v", "a")
	seedFollow(t, db, "a", "b")
	seedFollow(t, db, "a", "c")
	seedFollow(t, db, "a", "v")

	got, err := SuggestedUsers(ctx, db, "v", 10)
	if err != nil {
		t.Fatalf("SuggestedUsers: %v", err)
	}
	if want := []string{"c", "b"}; len(got) != 2 || got[0].ID != want[0] || got[1].ID != want[1] {
		t.Fatalf("SuggestedUsers = %v; want %v", ids(got, uid), want)
	}
}

func TestMutualFollowersCount(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	for _, id := range []string{"v", "t", "x", "y", "z"} {
		seedUser(t, db, id, 0)
	}
	// v follows x, y; x, y, z follow t.
	seedFollow(t, db, "v", "x")
	seedFollow(t, db, "v", "y")
	seedFollow(t, db, "x", "t")
	seedFollow(t, db, "y", "t")
	seedFollow(t, db, "z", "t")

	n, err := MutualFollowersCount(ctx, db, "v", "t")
	if err != nil || n != 2 {
		t.Fatalf("MutualFollowersCount = %d, %v; want 2", n, err)
	}
}

func TestFeedPosts_FollowedAndOwn_NewestFirst(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	for _, id := range []string{"v", "a", "stranger"} {
		seedUser(t, db, id, 0)
	}
	seedFollow(t, db, "v", "a")
	seedPost(t, db, "own", "v", base.Add(1*time.Minute))
	seedPost(t, db, "followed", "a", base.Add(2*time.Minute))
	seedPost(t, db, "other", "stranger", base.Add(3*time.Minute))

	got, err := FeedPosts(ctx, db, "v", 20, 0)
	if err != nil {
		t.Fatalf("FeedPosts: %v", err)
	}
	if g := ids(got, pid); len(g) != 2 || g[0] != "followed" || g[1] != "own" {
		t.Fatalf("FeedPosts = %v; want [followed own]", g)
	}

	page, _ := FeedPosts(ctx, db, "v", 1, 1)
	if len(page) != 1 || page[0].ID != "own" {
		t.Fatalf("FeedPosts page = %v", ids(page, pid))
	}
}

func TestSavedExploreSearchLocation(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedUser(t, db, "v", 0)
	seedUser(t, db, "photog", 0)
	mustCreate(t, db, &domain.Post{ID: "p1", UserID: "photog", Caption: "sunset at the pier", ImageURL: "i", Location: "Lima", LikesCount: 1, CreatedAt: base})
	mustCreate(t, db, &domain.Post{ID: "p2", UserID: "photog", Caption: "coffee", ImageURL: "i", Location: "Cusco", LikesCount: 5, CreatedAt: base.Add(time.Minute)})
	mustCreate(t, db, &domain.Post{ID: "p3", UserID: "v", Caption: "100% fun", ImageURL: "i", CreatedAt: base.Add(2 * time.Minute)})

	if _, err := AddSavedPost(ctx, db, "p1", "v"); err != nil {
		t.Fatalf("AddSavedPost: %v", err)
	}
	saved, _ := SavedPosts(ctx, db, "v", 10, 0)
	if g := ids(saved, pid); len(g) != 1 || g[0] != "p1" {
		t.Fatalf("SavedPosts = %v", g)
	}

	explore, _ := ExplorePosts(ctx, db, 2, 0)
	if g := ids(explore, pid); len(g) != 2 || g[0] != "p2" || g[1] != "p1" {
		t.Fatalf("ExplorePosts = %v", g)
	}

	if g := mustSearch(t, db, "sunset"); !sameSet(g, []string{"p1"}) {
		t.Fatalf("SearchPosts(sunset) = %v", g)
	}
	if g := mustSearch(t, db, "photog"); !sameSet(g, []string{"p1", "p2"}) {
		t.Fatalf("SearchPosts(photog) = %v", g)
	}
	// LIKE wildcards in the term are literal.
	if g := mustSearch(t, db, "%"); !sameSet(g, []string{"p3"}) {
		t.Fatalf("SearchPosts(%%) = %v", g)
	}

	loc, _ := PostsByLocation(ctx, db, "Cusco", 10)
	if g := ids(loc, pid); len(g) != 1 || g[0] != "p2" {
		t.Fatalf("PostsByLocation = %v", g)
	}
}

func mustSearch(t *testing.T, db *gorm.DB, term string) []string {
	t.Helper()
	posts, err := SearchPosts(context.Background(), db, term, 50)
	if err != nil {
		t.Fatalf("SearchPosts(%q): %v", term, err)
	}
	return ids(posts, pid)
}

func TestSearchUsers_PrefixFirst(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	mustCreate(t, db, &domain.User{ID: "1", Username: "mariana", Email: "1@x", DisplayName: "M", FollowersCount: 1})
	mustCreate(t, db, &domain.User{ID: "2", Username: "anamaria", Email: "2@x", DisplayName: "A", FollowersCount: 100})
	mustCreate(t, db, &domain.User{ID: "3", Username: "zed", Email: "3@x", DisplayName: "Maria Z", FollowersCount: 50})

	got, err := SearchUsers(ctx, db, "mari", 10)
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if g := ids(got, uid); len(g) != 3 || g[0] != "1" || g[1] != "2" || g[2] != "3" {
		t.Fatalf("SearchUsers = %v; want [1 2 3]", g)
	}

	pop, _ := PopularUsers(ctx, db, 1)
	if len(pop) != 1 || pop[0].ID != "2" {
		t.Fatalf("PopularUsers = %v", ids(pop, uid))
	}
}

func TestFollowersFollowingLikersViewers(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	for _, id := range []string{"a", "b", "c"} {
		seedUser(t, db, id, 0)
	}
	seedFollow(t, db, "b", "a")
	seedFollow(t, db, "c", "a")
	seedPost(t, db, "p1", "a", base)
	mustCreate(t, db, &domain.PostLike{PostID: "p1", UserID: "b"})
	mustCreate(t, db, &domain.Story{ID: "s1", UserID: "a", ImageURL: "img"})
	mustCreate(t, db, &domain.StoryView{StoryID: "s1", ViewerID: "c"})

	followers, _ := Followers(ctx, db, "a", 10, 0)
	if !sameSet(ids(followers, uid), []string{"b", "c"}) {
		t.Fatalf("Followers = %v", ids(followers, uid))
	}
	following, _ := Following(ctx, db, "b", 10, 0)
	if !sameSet(ids(following, uid), []string{"a"}) {
		t.Fatalf("Following = %v", ids(following, uid))
	}
	likers, _ := PostLikers(ctx, db, "p1", 10, 0)
	if !sameSet(ids(likers, uid), []string{"b"}) {
		t.Fatalf("PostLikers = %v", ids(likers, uid))
	}
	viewers, _ := StoryViewers(ctx, db, "s1", 100)
	if !sameSet(ids(viewers, uid), []string{"c"}) {
		t.Fatalf("StoryViewers = %v", ids(viewers, uid))
	}
}
