package pinfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/docutag/pinfetch/retry"
	"golang.org/x/net/html"
)

var errOffDomain = errors.New("resolved target is not on the platform domain")

// IsShortLink reports whether raw needs expansion before its page can be scored:
// links on the short domain and /i/ item paths on the main domain.
func (p Platform) IsShortLink(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if hostMatches(u.Hostname(), p.ShortDomain) {
		return true
	}
	return p.OnDomain(u) && strings.HasPrefix(u.Path, "/i/")
}

// Normalize expands short links to the canonical page URL.
// It never fails: when every attempt is exhausted the input is returned unchanged.
func (r *Resolver) Normalize(ctx context.Context, rawURL string) string {
	if !r.config.Platform.IsShortLink(rawURL) {
		return rawURL
	}

	ctx, span := r.tracer.Start(ctx, "pinfetch.Normalize")
	defer span.End()

	var resolved string
	attempts, err := retry.Do(ctx, r.config.NormalizePolicy, func(int) error {
		target, err := r.expand(ctx, rawURL)
		if err != nil {
			return err
		}
		resolved = target
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		r.logger.Warn("short link expansion failed, retrying",
			"url", rawURL, "attempt", attempt, "error", err, "wait", wait)
	})
	if err != nil {
		r.logger.Warn("short link expansion exhausted, using original URL",
			"url", rawURL, "attempts", attempts, "error", err)
		return rawURL
	}

	r.logger.Info("short link expanded", "url", rawURL, "resolved", resolved, "attempts", attempts)
	return resolved
}

// expand performs one redirect-following fetch of a short link
func (r *Resolver) expand(ctx context.Context, rawURL string) (string, error) {
	if r.config.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.PageTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch short link: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	final := resp.Request.URL
	var body io.Reader = resp.Body
	if r.config.MaxPageBytes > 0 {
		body = io.LimitReader(resp.Body, r.config.MaxPageBytes)
	}
	if doc, err := html.Parse(body); err == nil {
		if href := extractCanonical(doc); href != "" {
			if canonical, err := final.Parse(href); err == nil && r.config.Platform.OnDomain(canonical) {
				final = canonical
			}
		}
	}

	if !r.config.Platform.OnDomain(final) {
		return "", fmt.Errorf("%w: %s", errOffDomain, final)
	}
	return final.String(), nil
}

// extractCanonical returns the href of the first <link rel="canonical">
func extractCanonical(n *html.Node) string {
	var href string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if href != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "link" {
			var rel, h string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "rel":
					rel = strings.ToLower(attr.Val)
				case "href":
					h = strings.TrimSpace(attr.Val)
				}
			}
			for _, token := range strings.Fields(rel) {
				if token == "canonical" && h != "" {
					href = h
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return href
}
