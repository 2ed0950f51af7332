// Package transport owns the single HTTP client shared by every network call.
//
// A Client must be constructed once at process start and passed by reference
// to each component; it is safe for concurrent use. Close releases pooled
// connections and is called during shutdown.
package transport

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultUserAgent is sent when a request does not set its own
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config contains transport configuration
type Config struct {
	Timeout               time.Duration // Overall per-request timeout; 0 disables it for streamed downloads
	ResponseHeaderTimeout time.Duration // Wait for response headers after the request is written
	APITimeout            time.Duration // Overall timeout for the API client, which must outlast long polls
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	IdleConnTimeout     time.Duration
	MaxIdleConnsPerHost int
	InsecureSkipVerify  bool
	PreferGoResolver    bool   // Use the pure Go DNS resolver instead of cgo
	UserAgent           string
	Cookie              string // Sent on every request when non-empty
}

// DefaultConfig returns default transport configuration
func DefaultConfig() Config {
	return Config{
		Timeout:               0,
		ResponseHeaderTimeout: 30 * time.Second,
		APITimeout:            5 * time.Minute,
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConnsPerHost: 8,
		PreferGoResolver:    true,
		UserAgent:           DefaultUserAgent,
		Cookie:              "_auth=1",
	}
}

// Client holds the shared, connection-pooled HTTP clients: one for the
// platform and its CDNs with browser headers, one for third-party APIs.
type Client struct {
	http    *http.Client
	api     *http.Client
	base    *http.Transport
	apiBase *http.Transport
}

// New creates the shared client. The returned client is instrumented with
// otelhttp so trace context propagates to every outbound request.
func New(config Config) *Client {
	dialer := &net.Dialer{
		Timeout:   config.DialTimeout,
		KeepAlive: 30 * time.Second,
		Resolver:  &net.Resolver{PreferGo: config.PreferGoResolver},
	}

	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: config.InsecureSkipVerify,
		},
	}

	// Long polls hold headers back for the whole poll
	apiBase := base.Clone()
	apiBase.ResponseHeaderTimeout = 0

	return &Client{
		http: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(WithHeaders(base, config.UserAgent, config.Cookie)),
		},
		api: &http.Client{
			Timeout:   config.APITimeout,
			Transport: otelhttp.NewTransport(apiBase),
		},
		base:    base,
		apiBase: apiBase,
	}
}

// HTTP returns the client for platform pages, probes and downloads
func (c *Client) HTTP() *http.Client {
	return c.http
}

// API returns a client without the browser headers or cookie
func (c *Client) API() *http.Client {
	return c.api
}

// Close drops all idle pooled connections
func (c *Client) Close() {
	c.base.CloseIdleConnections()
	c.apiBase.CloseIdleConnections()
}

// WithHeaders wraps rt so that requests carry the default browser headers
func WithHeaders(rt http.RoundTripper, userAgent, cookie string) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &headerTransport{next: rt, userAgent: userAgent, cookie: cookie}
}

type headerTransport struct {
	next      http.RoundTripper
	userAgent string
	cookie    string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}
	if req.Header.Get("Cookie") == "" && t.cookie != "" {
		req.Header.Set("Cookie", t.cookie)
	}
	return t.next.RoundTrip(req)
}
