// Package config loads process configuration from a YAML file and PINFETCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docutag/pinfetch"
	"github.com/docutag/pinfetch/fetch"
	"github.com/docutag/pinfetch/retry"
	"github.com/docutag/pinfetch/storage"
	"github.com/docutag/pinfetch/transport"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials is returned by Validate when the platform credentials are not set
var ErrMissingCredentials = errors.New("api_id and api_hash are required")

const envPrefix = "PINFETCH_"

// Config is the complete process configuration
type Config struct {
	Credentials Credentials      `yaml:"credentials"`
	Server      ServerConfig     `yaml:"server"`
	Log         LogConfig        `yaml:"log"`
	Transport   TransportConfig  `yaml:"transport"`
	Resolver    ResolverConfig   `yaml:"resolver"`
	Fetch       FetchConfig      `yaml:"fetch"`
	Storage     StorageConfig    `yaml:"storage"`
	S3          storage.S3Config `yaml:"s3"`
}

// Credentials are the two opaque values the chat delivery needs
type Credentials struct {
	APIID   string `yaml:"api_id"`
	APIHash string `yaml:"api_hash"`
}

// BotToken joins the credentials in the <id>:<hash> form the Bot API expects
func (c Credentials) BotToken() string {
	return c.APIID + ":" + c.APIHash
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	CORSEnabled bool   `yaml:"cors_enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TransportConfig struct {
	Timeout               time.Duration `yaml:"timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
	APITimeout            time.Duration `yaml:"api_timeout"`
	UserAgent          string        `yaml:"user_agent"`
	Cookie             string        `yaml:"cookie"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

type ResolverConfig struct {
	Platform         pinfetch.Platform `yaml:"platform"`
	PageTimeout      time.Duration     `yaml:"page_timeout"`
	RetryAttempts    int               `yaml:"retry_attempts"`
	RetryBaseDelay   time.Duration     `yaml:"retry_base_delay"`
	ProbeTimeout     time.Duration     `yaml:"probe_timeout"`
	ProbeConcurrency int               `yaml:"probe_concurrency"`
	ProbesPerSecond  float64           `yaml:"probes_per_second"`
	CacheSize        int               `yaml:"cache_size"`
	CacheTTL         time.Duration     `yaml:"cache_ttl"`
	VideoTiers       []string          `yaml:"video_tiers"`
}

type FetchConfig struct {
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	ChunkSize      int           `yaml:"chunk_size"`
	MinLongEdge    int           `yaml:"min_long_edge"`
	JPEGQuality    int           `yaml:"jpeg_quality"`
	MaxImageBytes  int64         `yaml:"max_image_bytes"`
	MaxPixels      int64         `yaml:"max_pixels"`
}

type StorageConfig struct {
	WorkDir   string `yaml:"work_dir"`   // Downloads land here until delivered
	ExportDir string `yaml:"export_dir"` // Directory delivery target for the get command
}

// Default returns configuration with every field set
func Default() Config {
	rc := pinfetch.DefaultConfig()
	fc := fetch.DefaultConfig()
	tc := transport.DefaultConfig()

	return Config{
		Server: ServerConfig{Addr: ":8080", CORSEnabled: true},
		Log:    LogConfig{Level: "info", Format: "json"},
		Transport: TransportConfig{
			Timeout:               tc.Timeout,
			ResponseHeaderTimeout: tc.ResponseHeaderTimeout,
			APITimeout:            tc.APITimeout,
			UserAgent:             tc.UserAgent,
			Cookie:                tc.Cookie,
		},
		Resolver: ResolverConfig{
			Platform:         rc.Platform,
			PageTimeout:      rc.PageTimeout,
			RetryAttempts:    rc.NormalizePolicy.Attempts,
			RetryBaseDelay:   rc.NormalizePolicy.BaseDelay,
			ProbeTimeout:     rc.ProbeTimeout,
			ProbeConcurrency: rc.ProbeConcurrency,
			ProbesPerSecond:  rc.ProbesPerSecond,
			CacheSize:        rc.CacheSize,
			CacheTTL:         rc.CacheTTL,
			VideoTiers:       append([]string(nil), rc.VideoTiers...),
		},
		Fetch: FetchConfig{
			RetryAttempts:  fc.Policy.Attempts,
			RetryBaseDelay: fc.Policy.BaseDelay,
			AttemptTimeout: fc.AttemptTimeout,
			IdleTimeout:    fc.IdleTimeout,
			ChunkSize:      fc.ChunkSize,
			MinLongEdge:    fc.MinLongEdge,
			JPEGQuality:    fc.JPEGQuality,
			MaxImageBytes:  fc.MaxImageBytes,
			MaxPixels:      fc.MaxPixels,
		},
		Storage: StorageConfig{
			WorkDir:   "./downloads",
			ExportDir: ".",
		},
	}
}

// Load reads path (optional) over the defaults, then applies environment overrides
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}
	str("API_ID", &c.Credentials.APIID)
	str("API_HASH", &c.Credentials.APIHash)
	str("ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("WORK_DIR", &c.Storage.WorkDir)
	str("EXPORT_DIR", &c.Storage.ExportDir)
	str("S3_ENDPOINT", &c.S3.Endpoint)
	str("S3_REGION", &c.S3.Region)
	str("S3_BUCKET", &c.S3.Bucket)
	str("S3_PREFIX", &c.S3.Prefix)
	str("S3_ACCESS_KEY_ID", &c.S3.AccessKeyID)
	str("S3_SECRET_ACCESS_KEY", &c.S3.SecretAccessKey)

	if v := getenv(envPrefix + "CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sCACHE_TTL %q: %w", envPrefix, v, err)
		}
		c.Resolver.CacheTTL = d
	}
	if v := getenv(envPrefix + "CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sCACHE_SIZE %q: %w", envPrefix, v, err)
		}
		c.Resolver.CacheSize = n
	}
	if v := getenv(envPrefix + "S3_USE_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sS3_USE_PATH_STYLE %q: %w", envPrefix, v, err)
		}
		c.S3.UsePathStyle = b
	}
	return nil
}

// Validate checks the configuration is usable. Missing credentials are fatal.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Credentials.APIID) == "" || strings.TrimSpace(c.Credentials.APIHash) == "" {
		return ErrMissingCredentials
	}
	if c.Resolver.Platform.Domain == "" {
		return errors.New("resolver.platform.domain is required")
	}
	if c.Resolver.RetryAttempts < 1 || c.Fetch.RetryAttempts < 1 {
		return errors.New("retry_attempts must be at least 1")
	}
	if c.Fetch.JPEGQuality < 1 || c.Fetch.JPEGQuality > 100 {
		return fmt.Errorf("fetch.jpeg_quality must be between 1 and 100, got %d", c.Fetch.JPEGQuality)
	}
	if c.Fetch.ChunkSize < 1 {
		return errors.New("fetch.chunk_size must be positive")
	}
	if c.Storage.WorkDir == "" {
		return errors.New("storage.work_dir is required")
	}
	return nil
}

// ResolverConfig converts to the resolver's configuration
func (c Config) ResolverConfig() pinfetch.Config {
	rc := pinfetch.DefaultConfig()
	rc.Platform = c.Resolver.Platform
	rc.PageTimeout = c.Resolver.PageTimeout
	rc.NormalizePolicy = retry.Policy{Attempts: c.Resolver.RetryAttempts, BaseDelay: c.Resolver.RetryBaseDelay}
	rc.ProbeTimeout = c.Resolver.ProbeTimeout
	rc.ProbeConcurrency = c.Resolver.ProbeConcurrency
	rc.ProbesPerSecond = c.Resolver.ProbesPerSecond
	rc.CacheSize = c.Resolver.CacheSize
	rc.CacheTTL = c.Resolver.CacheTTL
	if len(c.Resolver.VideoTiers) > 0 {
		rc.VideoTiers = c.Resolver.VideoTiers
	}
	return rc
}

// FetchConfig converts to the fetcher's configuration
func (c Config) FetchConfig() fetch.Config {
	return fetch.Config{
		Policy:         retry.Policy{Attempts: c.Fetch.RetryAttempts, BaseDelay: c.Fetch.RetryBaseDelay},
		AttemptTimeout: c.Fetch.AttemptTimeout,
		IdleTimeout:    c.Fetch.IdleTimeout,
		ChunkSize:      c.Fetch.ChunkSize,
		MinLongEdge:    c.Fetch.MinLongEdge,
		JPEGQuality:    c.Fetch.JPEGQuality,
		MaxImageBytes:  c.Fetch.MaxImageBytes,
		MaxPixels:      c.Fetch.MaxPixels,
	}
}

// TransportConfig converts to the shared transport's configuration
func (c Config) TransportConfig() transport.Config {
	tc := transport.DefaultConfig()
	tc.Timeout = c.Transport.Timeout
	tc.ResponseHeaderTimeout = c.Transport.ResponseHeaderTimeout
	tc.APITimeout = c.Transport.APITimeout
	tc.UserAgent = c.Transport.UserAgent
	tc.Cookie = c.Transport.Cookie
	tc.InsecureSkipVerify = c.Transport.InsecureSkipVerify
	return tc
}
