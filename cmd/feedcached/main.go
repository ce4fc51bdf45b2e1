// Command feedcached serves the feed cache API: a local SQLite store kept in
// step with the remote feed service, exposed over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/feedcache/internal/config"
	httpapi "github.com/tbourn/feedcache/internal/http"
	"github.com/tbourn/feedcache/internal/http/handlers"
	"github.com/tbourn/feedcache/internal/livequery"
	"github.com/tbourn/feedcache/internal/observability"
	"github.com/tbourn/feedcache/internal/reconcile"
	"github.com/tbourn/feedcache/internal/remote"
	"github.com/tbourn/feedcache/internal/repo"
	"github.com/tbourn/feedcache/internal/services"
	"github.com/tbourn/feedcache/internal/session"
	"github.com/tbourn/feedcache/internal/sysutil"
)

var version = "dev"

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		l := sysutil.SetupLogging("info", false, nil)
		l.Fatal().Err(err).Msg("invalid configuration")
	}
	log := sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty, nil)
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	db, err := repo.OpenSQLite(cfg.DBPath, repo.WithTracing())
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open store")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate store")
	}
	broker := livequery.NewBroker()
	if err := livequery.Attach(db, broker, repo.Dependents); err != nil {
		log.Fatal().Err(err).Msg("attach live queries")
	}

	store, closeStore := sessionStore(cfg.Session, db, log)
	defer closeStore()
	sm := session.NewManager(store)

	client, err := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout,
		remote.WithRateLimit(cfg.Remote.RPS, cfg.Remote.Burst),
		remote.WithLogger(log.With().Str("component", "remote").Logger()),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("remote client")
	}

	accounts := services.NewAccountService(db, broker, sm, nil)
	if u, err := accounts.LoadSession(ctx); err != nil {
		log.Warn().Err(err).Msg("restore session")
	} else if u != nil {
		log.Info().Str("user_id", u.ID).Msg("session restored")
	}
	h := newHandlers(cfg, db, broker, sm, accounts, client, log)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, h, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", ver).Str("remote", cfg.Remote.BaseURL).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newHandlers(cfg config.Config, db *gorm.DB, b *livequery.Broker, sm *session.Manager, accounts *services.AccountService, client remote.Fetcher, log zerolog.Logger) *handlers.Handlers {
	composer := services.NewComposer(db, b, nil)
	sweeper := &services.Sweeper{DB: db, Broker: b, Log: log.With().Str("component", "sweeper").Logger()}
	return &handlers.Handlers{
		Viewer:  sm,
		Reader:  composer,
		Toggles: services.NewToggler(db, b, nil),
		Sync: &services.SyncService{
			Remote:        client,
			Reconciler:    reconcile.New(db, b, log.With().Str("component", "reconcile").Logger()),
			Sweeper:       sweeper,
			Composer:      composer,
			StoryTTL:      cfg.Sync.StoryTTL,
			RefreshLimit:  cfg.Sync.RefreshLimit,
			ImportFollows: cfg.Sync.ImportFollows,
			Log:           log.With().Str("component", "sync").Logger(),
		},
		Posts:    services.NewPostService(db, b, nil),
		Comments: services.NewCommentService(db, b, nil),
		Stories:  services.NewStoryService(db, b, nil, cfg.Sync.StoryTTL),
		Accounts: accounts,
		Live:     composer,
		PageSize: cfg.Sync.FeedPageSize,
	}
}

// sessionStore picks where the signed-in user id survives restarts.
func sessionStore(cfg config.SessionConfig, db *gorm.DB, log zerolog.Logger) (session.Persistence, func()) {
	if cfg.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		log.Info().Str("addr", cfg.RedisAddr).Msg("session store: redis")
		return session.NewRedisStore(rdb, cfg.Key), func() { _ = rdb.Close() }
	}
	return session.NewSQLiteStore(db, cfg.Key), func() {}
}
