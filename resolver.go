// Package pinfetch resolves a post URL to the best downloadable image or video on its page.
package pinfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/docutag/pinfetch/metrics"
	"github.com/docutag/pinfetch/models"
	"github.com/docutag/pinfetch/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var (
	// ErrInvalidURL is returned for inputs that are not absolute http(s) URLs
	ErrInvalidURL = errors.New("invalid URL")
	// ErrPageUnavailable is returned when the post page cannot be fetched
	ErrPageUnavailable = errors.New("page unavailable")
)

const tracerName = "github.com/docutag/pinfetch"

// Platform names the hosts the resolver treats as the site, its short-link
// alias and its media CDNs.
type Platform struct {
	Domain      string `yaml:"domain"`
	ShortDomain string `yaml:"short_domain"`
	ImageCDN    string `yaml:"image_cdn"`
	VideoCDN    string `yaml:"video_cdn"`
}

// DefaultPlatform returns the Pinterest host set
func DefaultPlatform() Platform {
	return Platform{
		Domain:      "pinterest.com",
		ShortDomain: "pin.it",
		ImageCDN:    "pinimg.com",
		VideoCDN:    "v.pinimg.com",
	}
}

// OnDomain reports whether u is hosted on the main site domain or one of its subdomains
func (p Platform) OnDomain(u *url.URL) bool {
	return hostMatches(u.Hostname(), p.Domain)
}

func hostMatches(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	if domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// DefaultVideoTiers lists quality tier path segments from best to worst
var DefaultVideoTiers = []string{
	"originals",
	"h265_4k",
	"hevc_4k",
	"4k",
	"2160p",
	"h265_1440p",
	"1440p",
	"1080p",
}

// Config contains resolver configuration
type Config struct {
	Platform         Platform
	PageTimeout      time.Duration // Timeout for each page or short-link fetch
	MaxPageBytes     int64         // Page bodies beyond this are truncated before parsing
	NormalizePolicy  retry.Policy  // Retry policy for short-link expansion
	ProbeTimeout     time.Duration // Deadline for each HEAD probe, excluding the rate limiter wait
	ProbeConcurrency int           // Maximum in-flight tier probes per resolution
	ProbesPerSecond  float64       // Probe rate limit across all resolutions; 0 disables it
	CacheSize        int
	CacheTTL         time.Duration
	VideoTiers       []string
	Predicates       []Predicate // Video payload predicates; nil uses DefaultPredicates
}

// DefaultConfig returns default resolver configuration
func DefaultConfig() Config {
	return Config{
		Platform:         DefaultPlatform(),
		PageTimeout:      10 * time.Second,
		MaxPageBytes:     8 * 1024 * 1024,
		NormalizePolicy:  retry.DefaultPolicy(),
		ProbeTimeout:     10 * time.Second,
		ProbeConcurrency: 4,
		ProbesPerSecond:  20,
		CacheSize:        100,
		CacheTTL:         time.Hour,
		VideoTiers:       DefaultVideoTiers,
	}
}

// Resolver turns raw post URLs into resolved assets
type Resolver struct {
	config     Config
	client     *http.Client
	cache      *Cache
	limiter    *rate.Limiter
	predicates []Predicate
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// New creates a Resolver. client is the shared transport client; logger and m may be nil.
func New(config Config, client *http.Client, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(config.VideoTiers) == 0 {
		config.VideoTiers = DefaultVideoTiers
	}
	if config.ProbeConcurrency < 1 {
		config.ProbeConcurrency = 1
	}

	limit := rate.Inf
	if config.ProbesPerSecond > 0 {
		limit = rate.Limit(config.ProbesPerSecond)
	}
	burst := config.ProbeConcurrency

	predicates := config.Predicates
	if predicates == nil {
		predicates = DefaultPredicates(config.Platform.VideoCDN)
	}

	return &Resolver{
		config:     config,
		client:     client,
		cache:      NewCache(config.CacheSize, config.CacheTTL),
		limiter:    rate.NewLimiter(limit, burst),
		predicates: predicates,
		logger:     logger.With("component", "resolver"),
		metrics:    m,
		tracer:     otel.Tracer(tracerName),
	}
}

// Cache exposes the resolution cache for inspection and invalidation
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Platform returns the configured host set
func (r *Resolver) Platform() Platform {
	return r.config.Platform
}

// Resolve finds the best asset for a raw post URL.
// A ResolvedAsset with an empty URL is a valid result meaning nothing usable was found.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (models.ResolvedAsset, error) {
	ctx, span := r.tracer.Start(ctx, "pinfetch.Resolve", trace.WithAttributes(attribute.String("pinfetch.raw_url", rawURL)))
	defer span.End()

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		span.SetStatus(codes.Error, "invalid url")
		return models.ResolvedAsset{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	if asset, ok := r.cache.Get(rawURL); ok {
		r.metrics.ObserveCache(true)
		span.SetAttributes(attribute.Bool("pinfetch.cache_hit", true))
		return asset, nil
	}
	r.metrics.ObserveCache(false)

	pageURL := r.Normalize(ctx, rawURL)
	doc, err := r.fetchPage(ctx, pageURL)
	if err != nil {
		r.metrics.ObserveResolution(string(models.MediaUnknown), "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "page fetch failed")
		return models.ResolvedAsset{}, err
	}

	class := Classify(doc)
	r.logger.Debug("page classified", "page_url", pageURL, "kind", class.Kind, "signal", class.Signal)

	var asset models.ResolvedAsset
	if class.Kind == models.MediaVideo {
		asset = r.scoreVideo(ctx, doc, pageURL)
	} else {
		asset = r.scoreImage(ctx, doc, pageURL)
	}
	asset.PageURL = pageURL

	outcome := "empty"
	if asset.Found() {
		outcome = "found"
		r.cache.Add(rawURL, asset)
	}
	r.metrics.ObserveResolution(string(asset.Kind), outcome)
	span.SetAttributes(
		attribute.String("pinfetch.kind", string(asset.Kind)),
		attribute.String("pinfetch.asset_url", asset.URL),
	)
	return asset, nil
}

func (r *Resolver) fetchPage(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if r.config.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.PageTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrPageUnavailable, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP error: %d", ErrPageUnavailable, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if r.config.MaxPageBytes > 0 {
		body = io.LimitReader(resp.Body, r.config.MaxPageBytes)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse HTML: %v", ErrPageUnavailable, err)
	}
	doc.Url = resp.Request.URL
	return doc, nil
}
