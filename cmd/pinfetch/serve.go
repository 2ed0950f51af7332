package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/docutag/pinfetch/api"
	"github.com/docutag/pinfetch/bot"
	"github.com/docutag/pinfetch/config"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		addr        string
		disableCORS bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(opts, func(c *config.Config) {
				if addr != "" {
					c.Server.Addr = addr
				}
				if disableCORS {
					c.Server.CORSEnabled = false
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP API listen address")
	cmd.Flags().BoolVar(&disableCORS, "disable-cors", false, "Disable CORS")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	a.logger.Info("pinfetch service initializing", "version", version)

	botAPI, err := bot.Connect(a.config.Credentials.BotToken(), a.transport.API(), a.logger)
	if err != nil {
		return err
	}
	a.logger.Info("authorized bot", "username", botAPI.Self.UserName)

	serverConfig := api.DefaultConfig()
	serverConfig.Addr = a.config.Server.Addr
	serverConfig.CORSEnabled = a.config.Server.CORSEnabled
	server := api.NewServer(serverConfig, a.resolver, a.extractor, a.metrics, a.logger)

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := botAPI.GetUpdatesChan(updateConfig)

	b := bot.New(botAPI, a.pipeline, a.logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		defer cancel()
		err := b.Run(gctx, updates)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()

		a.logger.Info("shutting down gracefully")
		botAPI.StopReceivingUpdates()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		a.logger.Error("service stopped with error", "error", err)
		return err
	}
	a.logger.Info("service stopped")
	return nil
}
