// Package remote is the HTTP client of the remote feed service. Every
// resource is fetched as a full collection; there is no pagination at this
// layer. Any failure (transport, status, decoding, cancellation) surfaces as
// a single error wrapping ErrUnavailable.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/tbourn/feedcache/internal/observability"
)

// ErrUnavailable marks every failed fetch.
var ErrUnavailable = errors.New("remote feed service unavailable")

// Resource paths, relative to the base URL.
const (
	ResourceUsers    = "users"
	ResourceFollows  = "user_follows"
	ResourcePosts    = "posts"
	ResourceComments = "comments"
	ResourceStories  = "stories"
)

// maxBody caps a decoded response.
const maxBody = 32 << 20

// Fetcher is the remote feed service as seen by the sync layer.
type Fetcher interface {
	FetchUsers(ctx context.Context) ([]UserDTO, error)
	FetchPosts(ctx context.Context) ([]PostDTO, error)
	FetchStories(ctx context.Context) ([]StoryDTO, error)
	FetchComments(ctx context.Context) ([]CommentDTO, error)
	FetchFollowEdges(ctx context.Context) ([]FollowDTO, error)
}

// Client implements Fetcher over HTTP/JSON.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithRateLimit throttles outgoing requests to rps with the given burst.
// rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l zerolog.Logger) Option { return func(c *Client) { c.log = l } }

// NewClient returns a client for the service rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: base url %q must be absolute", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: timeout},
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) FetchUsers(ctx context.Context) ([]UserDTO, error) {
	var out []UserDTO
	if err := c.get(ctx, ResourceUsers, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchPosts(ctx context.Context) ([]PostDTO, error) {
	var out []PostDTO
	if err := c.get(ctx, ResourcePosts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchStories(ctx context.Context) ([]StoryDTO, error) {
	var out []StoryDTO
	if err := c.get(ctx, ResourceStories, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchComments(ctx context.Context) ([]CommentDTO, error) {
	var out []CommentDTO
	if err := c.get(ctx, ResourceComments, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchFollowEdges(ctx context.Context) ([]FollowDTO, error) {
	var out []FollowDTO
	if err := c.get(ctx, ResourceFollows, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, resource string, out any) (err error) {
	ctx, span := observability.Tracer("remote").Start(ctx, "remote.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("remote.resource", resource)),
	)
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			c.log.Warn().Err(err).Str("resource", resource).Msg("remote fetch failed")
		}
		observability.RemoteRequests.WithLabelValues(resource, result).Inc()
		observability.RemoteLatency.WithLabelValues(resource).Observe(time.Since(start).Seconds())
		observability.EndSpan(span, err)
	}()

	if c.limiter != nil {
		if werr := c.limiter.Wait(ctx); werr != nil {
			return fmt.Errorf("%w: %s: %w", ErrUnavailable, resource, werr)
		}
	}

	target := c.base.ResolveReference(&url.URL{Path: resource})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, resource, err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, resource, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return fmt.Errorf("%w: %s: status %d", ErrUnavailable, resource, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode: %w", ErrUnavailable, resource, err)
	}
	c.log.Debug().Str("resource", resource).Dur("took", time.Since(start)).Msg("remote fetch")
	return nil
}
