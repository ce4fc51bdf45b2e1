// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings such as
// server timeouts, logging, the local store, the remote feed service, session
// persistence, rate limiting, and observability.
package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "feedcache")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RemoteConfig points at the remote feed service.
type RemoteConfig struct {
	BaseURL string        // REMOTE_BASE_URL
	Timeout time.Duration // REMOTE_TIMEOUT, per request
	RPS     float64       // REMOTE_RPS, client-side token bucket
	Burst   int           // REMOTE_BURST
}

// SessionConfig selects where the signed-in user id is persisted.
type SessionConfig struct {
	Backend   string // sqlite|redis
	RedisAddr string // REDIS_ADDR
	Key       string // SESSION_KEY
}

// SyncConfig tunes refresh behavior.
type SyncConfig struct {
	StoryTTL      time.Duration // STORY_TTL, lifetime of stories without a remote expiry
	FeedPageSize  int           // FEED_PAGE_SIZE, default page of composed views
	RefreshLimit  int           // REFRESH_LIMIT, size of the view returned by a refresh
	ImportFollows bool          // SYNC_IMPORT_FOLLOWS
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// Store
	DBPath string // SQLite path

	Remote  RemoteConfig
	Session SessionConfig
	Sync    SyncConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// DefaultRemoteBaseURL is the public mock of the feed service.
const DefaultRemoteBaseURL = "https://my-json-server.typicode.com/Steven-Abanto/Idatgram-database/"

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Store
		DBPath: getenv("DB_PATH", "feedcache.db"),

		Remote: RemoteConfig{
			BaseURL: getenv("REMOTE_BASE_URL", DefaultRemoteBaseURL),
			Timeout: getdur("REMOTE_TIMEOUT", 10*time.Second),
			RPS:     getfloat("REMOTE_RPS", 5.0),
			Burst:   getint("REMOTE_BURST", 5),
		},
		Session: SessionConfig{
			Backend:   strings.ToLower(getenv("SESSION_BACKEND", "sqlite")),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			Key:       getenv("SESSION_KEY", "current_user_id"),
		},
		Sync: SyncConfig{
			StoryTTL:      getdur("STORY_TTL", 24*time.Hour),
			FeedPageSize:  getint("FEED_PAGE_SIZE", 20),
			RefreshLimit:  getint("REFRESH_LIMIT", 50),
			ImportFollows: getbool("SYNC_IMPORT_FOLLOWS", false),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "feedcache"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Remote.BaseURL != "" && !strings.HasSuffix(cfg.Remote.BaseURL, "/") {
		cfg.Remote.BaseURL += "/"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if u, err := url.Parse(cfg.Remote.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return cfg, errors.New("REMOTE_BASE_URL must be an absolute URL")
	}
	if cfg.Remote.Timeout <= 0 {
		return cfg, errors.New("REMOTE_TIMEOUT must be > 0")
	}
	if cfg.Remote.RPS < 0 {
		return cfg, errors.New("REMOTE_RPS must be >= 0")
	}
	if cfg.Remote.Burst < 1 {
		return cfg, errors.New("REMOTE_BURST must be >= 1")
	}
	switch cfg.Session.Backend {
	case "sqlite":
	case "redis":
		if strings.TrimSpace(cfg.Session.RedisAddr) == "" {
			return cfg, errors.New("REDIS_ADDR must not be empty when SESSION_BACKEND=redis")
		}
	default:
		return cfg, errors.New("SESSION_BACKEND must be one of: sqlite, redis")
	}
	if strings.TrimSpace(cfg.Session.Key) == "" {
		return cfg, errors.New("SESSION_KEY must not be empty")
	}
	if cfg.Sync.StoryTTL <= 0 {
		return cfg, errors.New("STORY_TTL must be > 0")
	}
	if cfg.Sync.FeedPageSize < 1 || cfg.Sync.FeedPageSize > 100 {
		return cfg, errors.New("FEED_PAGE_SIZE must be between 1 and 100")
	}
	if cfg.Sync.RefreshLimit < 1 || cfg.Sync.RefreshLimit > 500 {
		return cfg, errors.New("REFRESH_LIMIT must be between 1 and 500")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
