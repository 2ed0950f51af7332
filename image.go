package pinfetch

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/docutag/pinfetch/models"
)

var (
	dimensionSegment = regexp.MustCompile(`/\d+x/`)
	resolutionToken  = regexp.MustCompile(`(\d+)x(\d+)`)
)

// imageMetaSelectors are checked in order; only the first match of each is used
var imageMetaSelectors = []string{
	`meta[property="og:image"]`,
	`meta[name="twitter:image"]`,
	`meta[name="pinterest:image"]`,
	`meta[property="og:image:url"]`,
	`link[rel="image_src"]`,
}

// imageCandidates gathers image URLs from preview metadata and img elements,
// resolved against the page URL and deduplicated in discovery order.
func imageCandidates(doc *goquery.Document, pageURL string) []models.Candidate {
	base, _ := url.Parse(pageURL)

	var candidates []models.Candidate
	seen := make(map[string]bool)
	add := func(raw string, source models.CandidateSource) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "data:") {
			return
		}
		if base != nil {
			if resolved, err := resolveURL(base, raw); err == nil {
				raw = resolved
			}
		}
		if seen[raw] {
			return
		}
		seen[raw] = true

		c := models.Candidate{URL: raw, Source: source}
		c.Width, c.Height = parseResolution(raw)
		candidates = append(candidates, c)
	}

	for _, sel := range imageMetaSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if v, ok := s.Attr("content"); ok && v != "" {
			add(v, models.SourceMeta)
		} else if v, ok := s.Attr("href"); ok {
			add(v, models.SourceMeta)
		}
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			add(src, models.SourceImgTag)
		}
	})

	return candidates
}

// parseResolution reads the first WIDTHxHEIGHT token in a URL
func parseResolution(raw string) (int, int) {
	m := resolutionToken.FindStringSubmatch(raw)
	if m == nil {
		return 0, 0
	}
	w, err1 := strconv.Atoi(m[1])
	h, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return w, h
}

// originalsURL rewrites a sized CDN path such as /736x/ to /originals/.
// It reports false when the URL carries no sized segment.
func originalsURL(raw string) (string, bool) {
	loc := dimensionSegment.FindStringIndex(raw)
	if loc == nil {
		return "", false
	}
	return raw[:loc[0]] + "/originals/" + raw[loc[1]:], true
}

func isOriginals(raw string) bool {
	return strings.Contains(raw, "/originals/")
}

// scoreImage selects the best image candidate: an existing originals URL,
// then a probed originals rewrite of a CDN URL, then the largest
// resolution token, then the first candidate found.
func (r *Resolver) scoreImage(ctx context.Context, doc *goquery.Document, pageURL string) models.ResolvedAsset {
	asset := models.ResolvedAsset{Kind: models.MediaImage}

	candidates := imageCandidates(doc, pageURL)
	if len(candidates) == 0 {
		r.logger.Info("no image candidates found", "page_url", pageURL)
		return asset
	}

	for _, c := range candidates {
		if isOriginals(c.URL) {
			asset.URL = c.URL
			r.logger.Info("image originals candidate selected", "url", c.URL)
			return asset
		}
	}

	tried := make(map[string]bool)
	for _, c := range candidates {
		if !r.onImageCDN(c.URL) {
			continue
		}
		rewritten, ok := originalsURL(c.URL)
		if !ok || tried[rewritten] {
			continue
		}
		tried[rewritten] = true

		res := r.probe(ctx, "image", rewritten)
		if res.Found() {
			asset.URL = rewritten
			r.logger.Info("image originals rewrite selected", "url", rewritten, "from", c.URL)
			return asset
		}
		if res.Status == ProbeTransient {
			r.logger.Debug("originals probe failed", "url", rewritten, "error", res.Err)
		}
	}

	best := -1
	for i, c := range candidates {
		if c.Resolution() == 0 {
			continue
		}
		if best < 0 || c.Resolution() > candidates[best].Resolution() {
			best = i
		}
	}
	if best >= 0 {
		asset.URL = candidates[best].URL
		r.logger.Info("image selected by resolution", "url", asset.URL,
			"width", candidates[best].Width, "height", candidates[best].Height)
		return asset
	}

	asset.URL = candidates[0].URL
	r.logger.Info("image fallback to first candidate", "url", asset.URL)
	return asset
}

func (r *Resolver) onImageCDN(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return hostMatches(u.Hostname(), r.config.Platform.ImageCDN)
}

// resolveURL resolves a potentially relative URL against a base URL
func resolveURL(base *url.URL, href string) (string, error) {
	parsed, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(parsed).String(), nil
}
