// Package authclient talks to the role-parameterized auth API on behalf of a
// browser-like caller: it probes sessions, submits credentials and drives the
// step-up verification endpoints. Session cookies stay opaque; the client only
// carries them in a cookie jar or forwards them from an incoming request.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"

	"github.com/tasklane/tasklane/internal/principal"
	"github.com/tasklane/tasklane/internal/retry"
)

const maxBodyBytes = 1 << 20

// DefaultMarkerPolicy waits up to two extra ticks for marker cookies.
var DefaultMarkerPolicy = retry.Policy{MaxAttempts: 3, Backoff: 300 * time.Millisecond}

// Client issues credentialed requests against one API deployment.
type Client struct {
	base         *url.URL
	http         *http.Client
	endpoints    map[principal.Role]Endpoints
	markerPolicy retry.Policy
	logger       *slog.Logger
	forwarded    []*http.Cookie
	probes       *singleflight.Group
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its jar, if any, is kept.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithJar installs a cookie jar on the underlying HTTP client.
func WithJar(jar http.CookieJar) Option {
	return func(c *Client) {
		clone := *c.http
		clone.Jar = jar
		c.http = &clone
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMarkerPolicy overrides the marker cookie retry policy.
func WithMarkerPolicy(p retry.Policy) Option {
	return func(c *Client) {
		c.markerPolicy = p
	}
}

// WithEndpoints overrides the endpoints for one role.
func WithEndpoints(role principal.Role, ep Endpoints) Option {
	return func(c *Client) {
		c.endpoints[role] = ep
	}
}

// New constructs a Client for the API rooted at baseURL. Unless a jar is
// supplied the client gets its own in-memory cookie jar.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("authclient: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("authclient: base url %q must be absolute", baseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("authclient: cookie jar: %w", err)
	}
	c := &Client{
		base:         base,
		http:         &http.Client{Timeout: 15 * time.Second, Jar: jar},
		endpoints:    make(map[principal.Role]Endpoints, 3),
		markerPolicy: DefaultMarkerPolicy,
		logger:       slog.Default(),
		probes:       &singleflight.Group{},
	}
	for _, role := range principal.Roles() {
		c.endpoints[role] = DefaultEndpoints(role)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ForRequest returns a client that carries the cookies of r instead of a jar.
// It is meant for server-side guards acting on behalf of a browser.
func (c *Client) ForRequest(r *http.Request) *Client {
	clone := *c
	hc := *c.http
	hc.Jar = nil
	clone.http = &hc
	clone.forwarded = r.Cookies()
	clone.probes = nil
	return &clone
}

// BaseURL returns the API root.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Jar exposes the cookie jar, nil for forwarding clients.
func (c *Client) Jar() http.CookieJar {
	return c.http.Jar
}

// Endpoints returns the endpoints configured for role.
func (c *Client) Endpoints(role principal.Role) (Endpoints, bool) {
	ep, ok := c.endpoints[role]
	return ep, ok
}

func (c *Client) resolve(path string) *url.URL {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	return &u
}

type response struct {
	status int
	body   []byte
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("authclient: encode body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path).String(), body)
	if err != nil {
		return nil, fmt.Errorf("authclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range c.forwarded {
		req.AddCookie(cookie)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrTransport, path, err)
	}
	return &response{status: res.StatusCode, body: data}, nil
}

func (c *Client) cookies() []*http.Cookie {
	if c.forwarded != nil {
		return c.forwarded
	}
	if c.http.Jar == nil {
		return nil
	}
	return c.http.Jar.Cookies(c.base)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
