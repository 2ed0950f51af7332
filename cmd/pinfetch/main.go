package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docutag/pinfetch"
	"github.com/docutag/pinfetch/config"
	"github.com/docutag/pinfetch/fetch"
	"github.com/docutag/pinfetch/logger"
	"github.com/docutag/pinfetch/metrics"
	"github.com/docutag/pinfetch/pipeline"
	"github.com/docutag/pinfetch/storage"
	"github.com/docutag/pinfetch/transport"
)

const version = "1.0.0"

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// app holds the components shared by every command
type app struct {
	config    config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	transport *transport.Client
	resolver  *pinfetch.Resolver
	extractor *pinfetch.LinkExtractor
	pipeline  *pipeline.Pipeline
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "pinfetch",
		Short:         "Resolve Pinterest posts to their best image or video and download it",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format (json or text)")

	root.AddCommand(newServeCommand(opts), newGetCommand(opts))
	return root
}

// setup loads configuration and builds the shared components.
// Command-line flags override the file and environment.
func setup(opts *rootOptions, override func(*config.Config)) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	if override != nil {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	m := metrics.New()
	client := transport.New(cfg.TransportConfig())

	resolver := pinfetch.New(cfg.ResolverConfig(), client.HTTP(), log, m)
	extractor := pinfetch.NewLinkExtractor(cfg.Resolver.Platform)
	fetcher := fetch.New(cfg.FetchConfig(), client.HTTP(), log, m)

	work, err := storage.New(storage.Config{BasePath: cfg.Storage.WorkDir})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	return &app{
		config:    cfg,
		logger:    log,
		metrics:   m,
		transport: client,
		resolver:  resolver,
		extractor: extractor,
		pipeline:  pipeline.New(extractor, resolver, fetcher, work, log, m),
	}, nil
}

// Close releases pooled connections
func (a *app) Close() {
	a.transport.Close()
}
