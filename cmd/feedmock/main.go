// Command feedmock serves a generated dataset shaped like the remote feed
// service, for local development against feedcached.
package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/tbourn/feedcache/internal/seed"
	"github.com/tbourn/feedcache/internal/sysutil"
)

func main() {
	addr := flag.String("addr", ":3001", "Listen address")
	seedVal := flag.Int64("seed", seed.DefaultOptions.Seed, "Random seed")
	users := flag.Int("users", seed.DefaultOptions.Users, "Number of users")
	posts := flag.Int("posts", seed.DefaultOptions.PostsPerUser, "Posts per user")
	stories := flag.Int("stories", seed.DefaultOptions.StoriesPerUser, "Active stories per user")
	comments := flag.Int("comments", seed.DefaultOptions.CommentsPerPost, "Comments per post")
	follows := flag.Int("follows", seed.DefaultOptions.FollowsPerUser, "Follow edges per user")
	failing := flag.Bool("fail", false, "Answer every request with 503")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	log := sysutil.SetupLogging(*level, true, nil)

	opts := seed.DefaultOptions
	opts.Seed = *seedVal
	opts.Users = *users
	opts.PostsPerUser = *posts
	opts.StoriesPerUser = *stories
	opts.CommentsPerPost = *comments
	opts.FollowsPerUser = *follows
	data := seed.Generate(opts)

	srv := seed.NewServer(data)
	srv.Fail(*failing)

	log.Info().
		Str("addr", *addr).
		Int("users", len(data.Users)).
		Int("posts", len(data.Posts)).
		Int("stories", len(data.Stories)).
		Int("comments", len(data.Comments)).
		Bool("failing", *failing).
		Msg("serving mock feed")

	s := &http.Server{Addr: *addr, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}
	if err := s.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
}
