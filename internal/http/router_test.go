package httpapi

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm/logger"

	"github.com/tbourn/feedcache/internal/config"
	"github.com/tbourn/feedcache/internal/http/handlers"
	"github.com/tbourn/feedcache/internal/livequery"
	"github.com/tbourn/feedcache/internal/reconcile"
	"github.com/tbourn/feedcache/internal/remote"
	"github.com/tbourn/feedcache/internal/repo"
	"github.com/tbourn/feedcache/internal/seed"
	"github.com/tbourn/feedcache/internal/services"
	"github.com/tbourn/feedcache/internal/session"
)

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   10,
		Remote:      config.RemoteConfig{RPS: 100, Burst: 10},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

// newHandlers wires real services over a temp SQLite file and an
// in-process remote serving an empty dataset.
func newHandlers(t *testing.T) *handlers.Handlers {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "router.db"), repo.WithLogger(logger.Default.LogMode(logger.Silent)))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	b := livequery.NewBroker()
	if err := livequery.Attach(db, b, repo.Dependents); err != nil {
		t.Fatalf("attach: %v", err)
	}

	ts := httptest.NewServer(seed.NewServer(seed.Dataset{}).Handler())
	t.Cleanup(ts.Close)
	client, err := remote.NewClient(ts.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	sm := session.NewManager(session.NewSQLiteStore(db, ""))
	composer := services.NewComposer(db, b, nil)
	return &handlers.Handlers{
		Viewer:  sm,
		Reader:  composer,
		Toggles: services.NewToggler(db, b, nil),
		Sync: &services.SyncService{
			Remote:     client,
			Reconciler: reconcile.New(db, b, zerolog.Nop()),
			Sweeper:    &services.Sweeper{DB: db, Broker: b},
			Composer:   composer,
		},
		Posts:    services.NewPostService(db, b, nil),
		Comments: services.NewCommentService(db, b, nil),
		Stories:  services.NewStoryService(db, b, nil, 24*time.Hour),
		Accounts: services.NewAccountService(db, b, sm, nil),
		Live:     composer,
	}
}

func newRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newHandlers(t), cfg)
	return r
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r := newRouter(t, testConfig())

	w := serve(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	w = serve(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "feedcache_http_requests_total") {
		t.Fatalf("GET /metrics bad: code=%d", w.Code)
	}

	w = serve(r, http.MethodGet, "/nope", "")
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), handlers.ErrCodeNotFound) {
		t.Fatalf("GET /nope = %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodPost, "/health", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r := newRouter(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_APIFlow(t *testing.T) {
	r := newRouter(t, testConfig())

	if w := serve(r, http.MethodGet, "/api/v1/me", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("GET /me signed out = %d", w.Code)
	}
	w := serve(r, http.MethodPost, "/api/v1/session/register", `{"username":"alice","email":"alice@example.com"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", w.Code, w.Body.String())
	}
	w = serve(r, http.MethodPost, "/api/v1/posts", `{"caption":"hi","image_url":"https://img/x"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create post = %d %s", w.Code, w.Body.String())
	}
	w = serve(r, http.MethodPost, "/api/v1/feed/refresh", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"caption":"hi"`) {
		t.Fatalf("refresh = %d %s", w.Code, w.Body.String())
	}
	for _, path := range []string{"/api/v1/users/suggested", "/api/v1/posts/saved", "/api/v1/posts/explore", "/api/v1/stories"} {
		if w := serve(r, http.MethodGet, path, ""); w.Code != http.StatusOK {
			t.Fatalf("GET %s = %d %s", path, w.Code, w.Body.String())
		}
	}
}

func TestRegisterRoutes_RefreshRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Remote = config.RemoteConfig{RPS: 0.01, Burst: 1}
	r := newRouter(t, cfg)

	if w := serve(r, http.MethodPost, "/api/v1/stories/refresh", ""); w.Code != http.StatusOK {
		t.Fatalf("first refresh = %d %s", w.Code, w.Body.String())
	}
	w := serve(r, http.MethodPost, "/api/v1/stories/refresh", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second refresh expected 429, got %d", w.Code)
	}
	// Reads keep the global budget.
	if w := serve(r, http.MethodGet, "/api/v1/stories", ""); w.Code != http.StatusOK {
		t.Fatalf("GET /stories = %d", w.Code)
	}
}

func TestRegisterRoutes_Gzip(t *testing.T) {
	r := newRouter(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding=%q", got)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB"))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		w := serve(r, http.MethodGet, path, "")
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, w.Code, w.Body.String())
		}
	}
}

func TestRegisterRoutes_SwaggerDoc_UsesBasePath(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	r := newRouter(t, cfg)

	w := serve(r, http.MethodGet, "/swagger/doc.json", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /swagger/doc.json = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"basePath": "/api/v2"`) || !strings.Contains(body, "/feed/refresh") {
		t.Fatalf("unexpected doc: %.200s", body)
	}
}
