// Package seed builds fake remote feed datasets for the development mock
// server and for tests. Datasets are deterministic for a given seed.
package seed

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/tbourn/feedcache/internal/remote"
)

// Options sizes a generated dataset.
type Options struct {
	Seed            int64
	Users           int
	PostsPerUser    int
	StoriesPerUser  int
	CommentsPerPost int
	RepliesPerPost  int
	FollowsPerUser  int
	// Now anchors generated timestamps; zero means time.Now.
	Now time.Time
	// MaxDays spreads post creation times over the last MaxDays days.
	MaxDays int
}

// DefaultOptions is a small but connected dataset.
var DefaultOptions = Options{
	Seed:            42,
	Users:           8,
	PostsPerUser:    3,
	StoriesPerUser:  1,
	CommentsPerPost: 2,
	RepliesPerPost:  1,
	FollowsPerUser:  3,
	MaxDays:         30,
}

// Dataset is the full remote collection, one slice per resource.
type Dataset struct {
	Users    []remote.UserDTO    `json:"users"`
	Posts    []remote.PostDTO    `json:"posts"`
	Stories  []remote.StoryDTO   `json:"stories"`
	Comments []remote.CommentDTO `json:"comments"`
	Follows  []remote.FollowDTO  `json:"user_follows"`
}

// Factory builds remote records. It is a thin helper used by Generate and
// by tests that need hand-shaped records.
type Factory struct {
	fake *gofakeit.Faker
	now  time.Time
	opts Options
	next map[string]int
}

// NewFactory creates a Factory seeded from opts.
func NewFactory(opts Options) *Factory {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = 30
	}
	return &Factory{fake: gofakeit.New(opts.Seed), now: now, opts: opts, next: map[string]int{}}
}

func (f *Factory) id(prefix string) string {
	f.next[prefix]++
	return fmt.Sprintf("%s%d", prefix, f.next[prefix])
}

func ptr[T any](v T) *T { return &v }

// recent returns a time within the last MaxDays days.
func (f *Factory) recent() time.Time {
	back := time.Duration(f.fake.Number(0, f.opts.MaxDays*24*60)) * time.Minute
	return f.now.Add(-back)
}

// User builds a remote user. Usernames and emails are unique per factory.
func (f *Factory) User(overrides ...func(*remote.UserDTO)) remote.UserDTO {
	id := f.id("u")
	username := fmt.Sprintf("%s%d", f.fake.Username(), f.next["u"])
	created := f.recent()
	u := remote.UserDTO{
		ID:              id,
		Username:        username,
		Email:           fmt.Sprintf("%s@%s", username, f.fake.DomainName()),
		DisplayName:     f.fake.Name(),
		Bio:             ptr(f.fake.Sentence(8)),
		ProfileImageURL: ptr(fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.fake.UUID())),
		Website:         ptr(f.fake.URL()),
		IsVerified:      ptr(f.fake.Number(0, 9) == 0),
		CreatedAt:       remote.Millis(created),
		UpdatedAt:       remote.Millis(created),
	}
	for _, o := range overrides {
		o(&u)
	}
	return u
}

// Post builds a remote post by userID.
func (f *Factory) Post(userID string, overrides ...func(*remote.PostDTO)) remote.PostDTO {
	created := f.recent()
	p := remote.PostDTO{
		ID:            f.id("p"),
		UserID:        userID,
		Caption:       ptr(f.fake.Sentence(10)),
		ImageURL:      fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.fake.UUID()),
		Location:      ptr(f.fake.City()),
		LikesCount:    ptr(f.fake.Number(0, 500)),
		CommentsCount: ptr(f.fake.Number(0, 50)),
		CreatedAt:     remote.Millis(created),
		UpdatedAt:     remote.Millis(created),
	}
	for _, o := range overrides {
		o(&p)
	}
	return p
}

// Story builds a remote story by userID posted within the last hours and
// expiring a day after it was posted.
func (f *Factory) Story(userID string, overrides ...func(*remote.StoryDTO)) remote.StoryDTO {
	created := f.now.Add(-time.Duration(f.fake.Number(1, 600)) * time.Minute)
	s := remote.StoryDTO{
		ID:              f.id("s"),
		UserID:          userID,
		ImageURL:        fmt.Sprintf("https://picsum.photos/seed/story-%s/1080/1920", f.fake.UUID()),
		Text:            ptr(f.fake.Sentence(4)),
		BackgroundColor: ptr(f.fake.HexColor()),
		TextColor:       ptr("#FFFFFF"),
		ViewsCount:      ptr(f.fake.Number(0, 200)),
		CreatedAt:       remote.Millis(created),
		ExpiresAt:       remote.Millis(created.Add(24 * time.Hour)),
	}
	for _, o := range overrides {
		o(&s)
	}
	return s
}

// Comment builds a remote comment on postID; parentID makes it a reply.
func (f *Factory) Comment(postID, userID string, parentID *string, overrides ...func(*remote.CommentDTO)) remote.CommentDTO {
	created := f.recent()
	c := remote.CommentDTO{
		ID:              f.id("c"),
		PostID:          postID,
		UserID:          userID,
		Text:            f.fake.Sentence(6),
		ParentCommentID: parentID,
		LikesCount:      ptr(f.fake.Number(0, 20)),
		CreatedAt:       remote.Millis(created),
		UpdatedAt:       remote.Millis(created),
	}
	for _, o := range overrides {
		o(&c)
	}
	return c
}

// Generate builds a connected dataset: every user posts, follows the next
// FollowsPerUser users in ring order, and comments on other users' posts.
func Generate(opts Options) Dataset {
	f := NewFactory(opts)
	var d Dataset

	for i := 0; i < opts.Users; i++ {
		d.Users = append(d.Users, f.User())
	}
	n := len(d.Users)
	for i, u := range d.Users {
		for j := 0; j < opts.PostsPerUser; j++ {
			d.Posts = append(d.Posts, f.Post(u.ID))
		}
		for j := 0; j < opts.StoriesPerUser; j++ {
			d.Stories = append(d.Stories, f.Story(u.ID))
		}
		for k := 1; k <= opts.FollowsPerUser && k < n; k++ {
			target := d.Users[(i+k)%n]
			d.Follows = append(d.Follows, remote.FollowDTO{FollowerID: u.ID, FollowingID: target.ID, CreatedAt: remote.Millis(f.recent())})
		}
	}
	if n == 0 {
		return d
	}
	for pi, p := range d.Posts {
		for j := 0; j < opts.CommentsPerPost; j++ {
			author := d.Users[(pi+j+1)%n]
			top := f.Comment(p.ID, author.ID, nil)
			d.Comments = append(d.Comments, top)
			for r := 0; r < opts.RepliesPerPost && j == 0; r++ {
				d.Comments = append(d.Comments, f.Comment(p.ID, p.UserID, ptr(top.ID)))
			}
		}
	}
	return d
}
