package pinfetch

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docutag/pinfetch/retry"
)

// hostRewriter sends every request to a test server while keeping the
// original host visible to handlers and to the caller's response.
type hostRewriter struct {
	target *url.URL
	base   http.RoundTripper

	mu    sync.Mutex
	calls []string
}

func (h *hostRewriter) RoundTrip(req *http.Request) (*http.Response, error) {
	h.mu.Lock()
	h.calls = append(h.calls, req.Method+" "+req.URL.String())
	h.mu.Unlock()

	out := req.Clone(req.Context())
	out.URL.Scheme = h.target.Scheme
	out.URL.Host = h.target.Host
	out.Host = req.URL.Host

	resp, err := h.base.RoundTrip(out)
	if resp != nil {
		resp.Request = req
	}
	return resp, err
}

func (h *hostRewriter) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *hostRewriter) Count(method string) int {
	n := 0
	for _, c := range h.Calls() {
		if strings.HasPrefix(c, method+" ") {
			n++
		}
	}
	return n
}

// newTestServer starts handler and returns a client routed to it for any host
func newTestServer(t *testing.T, handler http.HandlerFunc) (*http.Client, *hostRewriter) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	target, _ := url.Parse(server.URL)
	rw := &hostRewriter{target: target, base: http.DefaultTransport}
	return &http.Client{Transport: rw}, rw
}

func testConfig() Config {
	config := DefaultConfig()
	config.NormalizePolicy = retry.Policy{Attempts: 3, BaseDelay: time.Millisecond}
	config.ProbesPerSecond = 0
	config.PageTimeout = 5 * time.Second
	return config
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestResolver(t *testing.T, handler http.HandlerFunc) (*Resolver, *hostRewriter) {
	t.Helper()
	client, rw := newTestServer(t, handler)
	return New(testConfig(), client, testLogger(), nil), rw
}

// head answers HEAD probes with 200 and the given size, or 404 when absent
func head(w http.ResponseWriter, sizes map[string]string, key string) bool {
	size, ok := sizes[key]
	if !ok {
		return false
	}
	if size != "" {
		w.Header().Set("Content-Length", size)
	}
	w.WriteHeader(http.StatusOK)
	return true
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, body)
}
