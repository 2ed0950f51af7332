package pinfetch

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/docutag/pinfetch/models"
	"golang.org/x/sync/errgroup"
)

// videoCandidates gathers candidate URLs from the video element, video
// metadata and script payloads, resolved against the page URL and
// deduplicated in discovery order.
func (r *Resolver) videoCandidates(doc *goquery.Document, pageURL string) []models.Candidate {
	base, _ := url.Parse(pageURL)

	var candidates []models.Candidate
	seen := make(map[string]bool)
	add := func(raw string, source models.CandidateSource) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
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
		candidates = append(candidates, models.Candidate{URL: raw, Source: source})
	}

	doc.Find("video").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			add(src, models.SourceVideoTag)
		}
		s.Find("source").Each(func(_ int, src *goquery.Selection) {
			if v, ok := src.Attr("src"); ok {
				add(v, models.SourceVideoTag)
			}
		})
	})

	doc.Find(`meta[property="og:video"], meta[property="og:video:url"], meta[property="og:video:secure_url"]`).Each(func(_ int, s *goquery.Selection) {
		if content, ok := s.Attr("content"); ok {
			add(content, models.SourceMeta)
		}
	})

	doc.Find(payloadScripts).Each(func(_ int, s *goquery.Selection) {
		for _, u := range CollectVideoURLs(ParsePayload(s.Text()), r.predicates) {
			add(u, models.SourcePayload)
		}
	})

	return candidates
}

// videoBase strips the stream or file part of a video URL, leaving the
// directory under which quality tiers live.
func videoBase(raw string) string {
	if i := strings.Index(raw, "/hls/"); i >= 0 {
		return raw[:i]
	}
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// tierURLs expands candidates into probe URLs ordered by candidate, then tier
func (r *Resolver) tierURLs(candidates []models.Candidate) []string {
	var urls []string
	seen := make(map[string]bool)
	for _, c := range candidates {
		base := videoBase(c.URL)
		for _, tier := range r.config.VideoTiers {
			u := base + "/" + tier + "/video.mp4"
			if seen[u] {
				continue
			}
			seen[u] = true
			urls = append(urls, u)
		}
	}
	return urls
}

// scoreVideo probes every quality tier of every candidate and returns the
// variant with the largest declared size. Ties go to the first variant in
// candidate-then-tier order.
func (r *Resolver) scoreVideo(ctx context.Context, doc *goquery.Document, pageURL string) models.ResolvedAsset {
	asset := models.ResolvedAsset{Kind: models.MediaVideo}

	candidates := r.videoCandidates(doc, pageURL)
	if len(candidates) == 0 {
		r.logger.Info("no video candidates found")
		return asset
	}

	urls := r.tierURLs(candidates)
	results := make([]ProbeResult, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.ProbeConcurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			results[i] = r.probe(gctx, "video", u)
			return nil
		})
	}
	_ = g.Wait()

	var best ProbeResult
	found := false
	for _, res := range results {
		if !res.Found() {
			if res.Status == ProbeTransient {
				r.logger.Debug("tier probe failed", "url", res.URL, "error", res.Err)
			}
			continue
		}
		if !found || res.Size > best.Size {
			best = res
			found = true
		}
	}

	if !found {
		r.logger.Info("no video tier responded", "candidates", len(candidates), "probes", len(urls))
		return asset
	}

	r.logger.Info("video variant selected", "url", best.URL, "size", best.Size)
	asset.URL = best.URL
	return asset
}
