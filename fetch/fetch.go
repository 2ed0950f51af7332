// Package fetch downloads resolved assets to local files.
//
// Images are decoded, normalized to RGBA and upscaled so their longest edge
// reaches MinLongEdge before being re-encoded as JPEG. The upscale is a
// resampling of the source pixels; it adds no real detail. Everything else
// is streamed to disk in fixed-size chunks.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/docutag/pinfetch/metrics"
	"github.com/docutag/pinfetch/models"
	"github.com/docutag/pinfetch/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrDownloadFailed is returned once every attempt has failed
	ErrDownloadFailed = errors.New("download failed")
	// ErrStalled ends an attempt whose response stopped sending data for IdleTimeout
	ErrStalled = errors.New("download stalled")
	// ErrImageTooLarge rejects images whose declared dimensions exceed MaxPixels
	ErrImageTooLarge = errors.New("image too large")
)

// Config contains fetcher configuration
type Config struct {
	Policy         retry.Policy
	AttemptTimeout time.Duration // Deadline for one whole attempt; 0 disables it
	IdleTimeout    time.Duration // An attempt fails when no bytes arrive for this long; 0 disables it
	ChunkSize      int           // Bytes per streamed write
	MinLongEdge    int           // Images are upscaled until their longest edge reaches this
	JPEGQuality    int           // 1-100
	MaxImageBytes  int64         // Largest image body read into memory
	MaxPixels      int64         // Largest declared width*height decoded
}

// DefaultConfig returns default fetcher configuration
func DefaultConfig() Config {
	return Config{
		Policy:         retry.DefaultPolicy(),
		AttemptTimeout: 10 * time.Minute,
		IdleTimeout:    30 * time.Second,
		ChunkSize:      4 * 1024 * 1024,
		MinLongEdge:    3840,
		JPEGQuality:    100,
		MaxImageBytes:  64 * 1024 * 1024,
		MaxPixels:      50_000_000,
	}
}

// ProgressFunc receives cumulative bytes written and the declared total,
// which is -1 when the server did not send a Content-Length.
type ProgressFunc func(written, total int64)

// Fetcher downloads assets using the shared transport client
type Fetcher struct {
	config  Config
	client  *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// New creates a Fetcher. logger and m may be nil.
func New(config Config, client *http.Client, logger *slog.Logger, m *metrics.Metrics) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultConfig().ChunkSize
	}
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = 100
	}
	return &Fetcher{
		config:  config,
		client:  client,
		logger:  logger.With("component", "fetch"),
		metrics: m,
		tracer:  otel.Tracer("github.com/docutag/pinfetch/fetch"),
	}
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// IsImageURL reports whether the URL path carries an image file extension
func IsImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return imageExtensions[strings.ToLower(path.Ext(u.Path))]
}

// Fetch downloads asset.URL to dest. Any failure within an attempt counts
// against the retry policy; when the policy is exhausted dest is removed and
// the result reports no file.
func (f *Fetcher) Fetch(ctx context.Context, asset models.ResolvedAsset, dest string, progress ProgressFunc) (models.DownloadResult, error) {
	ctx, span := f.tracer.Start(ctx, "fetch.Fetch", trace.WithAttributes(
		attribute.String("pinfetch.asset_url", asset.URL),
		attribute.String("pinfetch.kind", string(asset.Kind)),
	))
	defer span.End()

	start := time.Now()
	if !asset.Found() {
		return models.DownloadResult{}, fmt.Errorf("%w: no asset URL", ErrDownloadFailed)
	}

	var written int64
	attempts, err := retry.Do(ctx, f.config.Policy, func(attempt int) error {
		n, kind, err := f.attempt(ctx, asset.URL, dest, progress)
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		f.metrics.ObserveFetchAttempt(kind, outcome)
		written = n
		return err
	}, func(attempt int, err error, wait time.Duration) {
		f.logger.Warn("download attempt failed", "url", asset.URL, "attempt", attempt, "error", err, "wait", wait)
	})

	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			f.logger.Error("failed to remove partial file", "path", dest, "error", rmErr)
		}
		f.metrics.ObserveFetch(false, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "download failed")
		f.logger.Error("download failed", "url", asset.URL, "attempts", attempts, "error", err)
		return models.DownloadResult{Attempts: attempts}, fmt.Errorf("%w after %d attempts: %v", ErrDownloadFailed, attempts, err)
	}

	f.metrics.ObserveFetch(true, written, time.Since(start))
	f.logger.Info("download complete", "url", asset.URL, "path", dest, "bytes", written, "attempts", attempts)
	return models.DownloadResult{
		Success:   true,
		LocalPath: dest,
		Bytes:     written,
		Attempts:  attempts,
	}, nil
}

// attempt performs a single download and reports which path handled it.
// The attempt is bounded by AttemptTimeout overall and by IdleTimeout
// between received bytes.
func (f *Fetcher) attempt(ctx context.Context, rawURL, dest string, progress ProgressFunc) (int64, string, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if f.config.AttemptTimeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, f.config.AttemptTimeout)
		defer stop()
	}

	var watchdog *time.Timer
	if f.config.IdleTimeout > 0 {
		watchdog = time.AfterFunc(f.config.IdleTimeout, func() { cancel(ErrStalled) })
		defer watchdog.Stop()
	}

	n, kind, err := f.download(ctx, rawURL, dest, progress, watchdog)
	if err != nil && ctx.Err() != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
			err = fmt.Errorf("%w: %v", cause, err)
		}
	}
	return n, kind, err
}

func (f *Fetcher) download(ctx context.Context, rawURL, dest string, progress ProgressFunc, watchdog *time.Timer) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, "stream", retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "stream", fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "stream", fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if watchdog != nil {
		watchdog.Reset(f.config.IdleTimeout)
		body = &idleReader{r: resp.Body, timer: watchdog, idle: f.config.IdleTimeout}
	}

	if IsImageURL(rawURL) || strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		n, err := f.writeImage(body, dest)
		return n, "image", err
	}
	n, err := f.writeStream(body, resp.ContentLength, dest, progress)
	return n, "stream", err
}

// idleReader pushes the watchdog back every time data arrives
type idleReader struct {
	r     io.Reader
	timer *time.Timer
	idle  time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	switch {
	case err == io.EOF:
		r.timer.Stop()
	case n > 0:
		r.timer.Reset(r.idle)
	}
	return n, err
}

// writeStream copies body to dest in ChunkSize pieces
func (f *Fetcher) writeStream(body io.Reader, total int64, dest string, progress ProgressFunc) (int64, error) {
	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	buf := make([]byte, f.config.ChunkSize)
	var written int64
	for {
		n, rerr := io.ReadFull(body, buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("failed to write file: %w", err)
			}
			written += int64(n)
			if progress != nil {
				progress(written, total)
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return written, fmt.Errorf("failed to read body: %w", rerr)
		}
	}

	if total > 0 && written != total {
		return written, fmt.Errorf("short body: got %d of %d bytes", written, total)
	}
	if err := out.Sync(); err != nil {
		return written, fmt.Errorf("failed to sync file: %w", err)
	}
	return written, nil
}
