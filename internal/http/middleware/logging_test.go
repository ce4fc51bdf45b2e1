package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/feedcache/internal/session"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ln := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if ln == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(ln), &m); err != nil {
			t.Fatalf("bad log line %q: %v", ln, err)
		}
		out = append(out, m)
	}
	return out
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) {
		if asString(c.Value(requestIDKey)) == "" {
			t.Fatalf("requestID not set in context")
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rid", nil))
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated %s header", requestIDHeader)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rid", nil)
	req.Header.Set(strings.ToLower(requestIDHeader), "abc-123")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}

func TestLogger_LevelsUserAndScrubbing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Session(session.Static("u1")), Logger(LogOptions{MaskHeaders: []string{"X-Api-Key"}, LogHeaders: true}))
	r.GET("/users/search", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	req := httptest.NewRequest(http.MethodGet, "/users/search?q=alice%40example.com", nil)
	req.Header.Set("X-Api-Key", "secret")
	req.Header.Set("Authorization", "Bearer t")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	got := lines(t, buf)
	if len(got) != 4 {
		t.Fatalf("want 4 lines, got %d: %s", len(got), buf.String())
	}
	first := got[0]
	if first["level"] != "info" || first["user_id"] != "u1" || first["path"] != "/users/search" {
		t.Fatalf("unexpected first line: %v", first)
	}
	if q := first["query"].(string); strings.Contains(q, "alice") || !strings.Contains(q, "[REDACTED:email]") {
		t.Fatalf("query not scrubbed: %q", q)
	}
	hdrs := first["headers"].(map[string]any)
	if hdrs["X-Api-Key"] != "[REDACTED]" || hdrs["Authorization"] != "[REDACTED]" {
		t.Fatalf("headers not masked: %v", hdrs)
	}
	if got[1]["level"] != "warn" || got[2]["level"] != "error" {
		t.Fatalf("levels: %v / %v", got[1]["level"], got[2]["level"])
	}
	if got[3]["path"] != "/missing" {
		t.Fatalf("unmatched route should log raw path, got %v", got[3]["path"])
	}
}

func TestLogger_GinErrorsLogAtError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(Logger(LogOptions{}))
	r.GET("/e", func(c *gin.Context) {
		_ = c.Error(http.ErrAbortHandler)
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/e", nil))

	got := lines(t, buf)
	if len(got) != 1 || got[0]["level"] != "error" || got[0]["errors"] == nil {
		t.Fatalf("unexpected: %v", got)
	}
	if _, ok := got[0]["headers"]; ok {
		t.Fatalf("headers logged without LogHeaders")
	}
}

func TestRecovery_PanicsToJSON500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger(LogOptions{}), Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(requestIDHeader, "rid-9")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["request_id"] != "rid-9" || body["code"] != "internal_error" {
		t.Fatalf("unexpected body: %v", body)
	}
	if !strings.Contains(buf.String(), "panic recovered") || !strings.Contains(buf.String(), `"request_id":"rid-9"`) {
		t.Fatalf("panic not logged with request id: %s", buf.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
	if w.Body.String() != "partial" {
		t.Fatalf("late panic should not append JSON, got %q", w.Body.String())
	}
}

func TestLoggerFrom_Fallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if LoggerFrom(c) == nil {
		t.Fatal("nil fallback logger")
	}
	l := zerolog.Nop()
	c.Set(loggerKey, &l)
	if LoggerFrom(c) != &l {
		t.Fatal("request-scoped logger not returned")
	}
}

func TestTruncateAndScrub(t *testing.T) {
	if truncate("abcdef", 3) != "abc…" || truncate("abc", 0) != "abc" {
		t.Fatal("truncate")
	}
	if got := scrub("q=bob@mail.example.org&x=1"); got != "q=[REDACTED:email]&x=1" {
		t.Fatalf("scrub = %q", got)
	}
	if scrub("") != "" {
		t.Fatal("scrub empty")
	}
}
