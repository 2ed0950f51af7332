// Package pipeline drives extraction, resolution, download and delivery for one inbound message.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docutag/pinfetch"
	"github.com/docutag/pinfetch/fetch"
	"github.com/docutag/pinfetch/metrics"
	"github.com/docutag/pinfetch/models"
)

var (
	// ErrNoLinks is returned when the text holds no platform links; nothing was fetched
	ErrNoLinks = errors.New("no platform links found")
	// ErrNoMedia is returned when links were found but none produced a file
	ErrNoMedia = errors.New("no valid media found")
)

// Resolver finds the best asset for a raw post URL
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (models.ResolvedAsset, error)
}

// Fetcher downloads an asset to a local path
type Fetcher interface {
	Fetch(ctx context.Context, asset models.ResolvedAsset, dest string, progress fetch.ProgressFunc) (models.DownloadResult, error)
}

// WorkDir names download destinations and removes them after delivery
type WorkDir interface {
	NewFilename(seq int, kind models.MediaKind, assetURL string) string
	Remove(path string) error
}

// Delivery accepts the files produced for one message, in order
type Delivery interface {
	Deliver(ctx context.Context, files []models.MediaFile) error
}

// LinkResult records what happened to one link
type LinkResult struct {
	Request *models.MediaRequest
	Asset   models.ResolvedAsset
	File    *models.MediaFile
	Err     error
}

// Report summarizes a processed message
type Report struct {
	Links []LinkResult
	Files []models.MediaFile
}

// Pipeline processes messages. Links within a message are handled sequentially.
type Pipeline struct {
	extractor *pinfetch.LinkExtractor
	resolver  Resolver
	fetcher   Fetcher
	work      WorkDir
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a Pipeline. logger and m may be nil.
func New(extractor *pinfetch.LinkExtractor, resolver Resolver, fetcher Fetcher, work WorkDir, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: extractor,
		resolver:  resolver,
		fetcher:   fetcher,
		work:      work,
		logger:    logger.With("component", "pipeline"),
		metrics:   m,
	}
}

// Links returns the platform links in text
func (p *Pipeline) Links(text string) []string {
	return p.extractor.Extract(text)
}

// Collect resolves and downloads every link in text. Failures are isolated
// per link and recorded in the report.
func (p *Pipeline) Collect(ctx context.Context, text string) (Report, error) {
	links := p.Links(text)
	if len(links) == 0 {
		return Report{}, ErrNoLinks
	}

	var report Report
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result := p.process(ctx, link, len(report.Files))
		report.Links = append(report.Links, result)
		if result.File != nil {
			report.Files = append(report.Files, *result.File)
		}
	}

	if len(report.Files) == 0 {
		return report, ErrNoMedia
	}
	return report, nil
}

func (p *Pipeline) process(ctx context.Context, link string, seq int) LinkResult {
	req := models.NewMediaRequest(link)
	log := p.logger.With("request_id", req.ID, "url", link)
	result := LinkResult{Request: req}

	asset, err := p.resolver.Resolve(ctx, link)
	if err != nil {
		log.Warn("resolution failed", "error", err)
		result.Err = err
		return result
	}
	req.ResolvedURL = asset.PageURL
	result.Asset = asset

	if !asset.Found() {
		log.Info("no usable asset", "kind", asset.Kind, "page_url", asset.PageURL)
		return result
	}

	dest := p.work.NewFilename(seq, asset.Kind, asset.URL)
	dl, err := p.fetcher.Fetch(ctx, asset, dest, p.progress(log))
	if err != nil || !dl.Success {
		log.Warn("download failed", "asset_url", asset.URL, "attempts", dl.Attempts, "error", err)
		result.Err = err
		return result
	}

	log.Info("media ready", "kind", asset.Kind, "path", dl.LocalPath, "bytes", dl.Bytes)
	result.File = &models.MediaFile{
		Path:     dl.LocalPath,
		Kind:     asset.Kind,
		PageURL:  asset.PageURL,
		AssetURL: asset.URL,
	}
	return result
}

func (p *Pipeline) progress(log *slog.Logger) fetch.ProgressFunc {
	return func(written, total int64) {
		if total <= 0 {
			log.Debug("download progress", "mb", fmt.Sprintf("%.1f", float64(written)/(1<<20)))
			return
		}
		log.Debug("download progress",
			"percent", fmt.Sprintf("%.1f", float64(written)*100/float64(total)),
			"mb", fmt.Sprintf("%.1f", float64(written)/(1<<20)),
			"total_mb", fmt.Sprintf("%.1f", float64(total)/(1<<20)),
		)
	}
}

// Handle collects the media for text, hands the files to d and then deletes
// them whether or not delivery succeeded.
func (p *Pipeline) Handle(ctx context.Context, text string, d Delivery) (Report, error) {
	report, err := p.Collect(ctx, text)
	defer p.Cleanup(report.Files)
	if err != nil {
		return report, err
	}

	err = d.Deliver(ctx, report.Files)
	p.metrics.ObserveDelivery(deliveryName(d), err)
	if err != nil {
		return report, fmt.Errorf("delivery failed: %w", err)
	}
	return report, nil
}

// Cleanup removes delivered files from the work directory
func (p *Pipeline) Cleanup(files []models.MediaFile) {
	for _, f := range files {
		if err := p.work.Remove(f.Path); err != nil {
			p.logger.Error("failed to remove file", "path", f.Path, "error", err)
		}
	}
}

func deliveryName(d Delivery) string {
	if n, ok := d.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "custom"
}
