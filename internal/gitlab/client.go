package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	apperrors "github.com/filevars/webui/internal/errors"
)

const (
	// MaxPerPage is the largest page size GitLab honours.
	MaxPerPage     = 100
	defaultPerPage = 100
	defaultTimeout = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	BaseURL          string
	Token            string
	PerPage          int
	Timeout          time.Duration
	RewriteRedirects bool
	// RateLimit caps calls per second; zero disables it.
	RateLimit float64
	// Transport overrides the underlying transport (tests).
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Client is a thin GitLab REST v4 wrapper: credential injection, pagination,
// redirect normalisation and failure mapping. It performs no retries beyond
// following a single redirect.
type Client struct {
	rc               *resty.Client
	base             *url.URL
	perPage          int
	rewriteRedirects bool
	limiter          *rate.Limiter
	log              *slog.Logger
}

// Response is a buffered upstream answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// NewClient creates a GitLab API client
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apperrors.ConfigError(fmt.Errorf("invalid GitLab base URL %q", opts.BaseURL))
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	hc := &http.Client{
		Transport: NewAuthRoundTripper(opts.Token, opts.Transport),
		// Redirects are handled explicitly so absolute locations can be
		// rewritten onto the configured base.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	rc := resty.NewWithClient(hc).
		SetBaseURL(base.String()).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	c := &Client{
		rc:               rc,
		base:             base,
		perPage:          clampPerPage(opts.PerPage),
		rewriteRedirects: opts.RewriteRedirects,
		log:              log.With("component", "gitlab"),
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Request performs one call. Any 4xx/5xx is returned as an upstream error
// carrying status and body; a single 3xx with Location is followed.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values, body any) (*Response, error) {
	resp, err := c.execute(ctx, method, path, params, body)
	if err != nil {
		return nil, err
	}

	if isRedirect(resp.StatusCode) {
		if location := resp.Header.Get("Location"); location != "" {
			target := c.redirectTarget(path, location)
			if !c.onBaseHost(target) {
				c.log.Warn("refusing redirect to another host", "from", path, "location", location)
				return nil, apperrors.Upstream(resp.StatusCode, decodeErrorBody(resp.Body))
			}
			c.log.Debug("following redirect", "from", path, "location", location, "target", target)
			resp, err = c.execute(ctx, method, target, nil, body)
			if err != nil {
				return nil, err
			}
		}
	}

	if resp.StatusCode >= http.StatusBadRequest || isRedirect(resp.StatusCode) {
		return nil, apperrors.Upstream(resp.StatusCode, decodeErrorBody(resp.Body))
	}
	return resp, nil
}

func (c *Client) execute(ctx context.Context, method, path string, params url.Values, body any) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.mapTransportError(err)
		}
	}

	req := c.rc.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetQueryParamsFromValues(params)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.log.Debug("request failed", "method", method, "path", path, "error", err)
		return nil, c.mapTransportError(err)
	}
	c.log.Debug("request done",
		"method", method,
		"path", path,
		"status", resp.StatusCode(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}

// redirectTarget resolves a Location header into the next request target.
// Absolute locations are mapped onto the configured base when rewriting is
// enabled, so a GitLab that advertises an internal host still goes through
// the same entry point.
func (c *Client) redirectTarget(requestPath, location string) string {
	loc, err := url.Parse(location)
	if err != nil {
		return location
	}

	if !loc.IsAbs() {
		current, err := url.Parse(c.base.String() + ensureLeadingSlash(requestPath))
		if err != nil {
			return location
		}
		return current.ResolveReference(loc).String()
	}

	if !c.rewriteRedirects {
		return loc.String()
	}

	rel := loc.EscapedPath()
	if basePath := strings.TrimRight(c.base.EscapedPath(), "/"); basePath != "" && strings.HasPrefix(rel, basePath) {
		rel = strings.TrimPrefix(rel, basePath)
	}
	rel = ensureLeadingSlash(rel)
	if loc.RawQuery != "" {
		rel += "?" + loc.RawQuery
	}
	return rel
}

// onBaseHost reports whether target stays on the configured scheme and host.
// The credential header is attached to every request, so nothing else is
// followed.
func (c *Client) onBaseHost(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if !u.IsAbs() {
		return u.Host == ""
	}
	return strings.EqualFold(u.Scheme, c.base.Scheme) && strings.EqualFold(u.Host, c.base.Host)
}

func (c *Client) mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.GatewayTimeout(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.GatewayTimeout(err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.NetworkError(fmt.Errorf("request to gitlab failed: %w", err))
}

func decodeErrorBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		return v
	}
	return string(body)
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}

func ensureLeadingSlash(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func clampPerPage(n int) int {
	switch {
	case n <= 0:
		return defaultPerPage
	case n > MaxPerPage:
		return MaxPerPage
	default:
		return n
	}
}
