package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docutag/pinfetch/config"
	"github.com/docutag/pinfetch/models"
	"github.com/docutag/pinfetch/pipeline"
	"github.com/docutag/pinfetch/storage"
)

// exportTarget is a delivery target that reports where each file was stored
type exportTarget interface {
	pipeline.Delivery
	OnSaved(fn storage.SavedFunc)
}

func newGetCommand(opts *rootOptions) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "get <text|url>...",
		Short: "Resolve and download the media behind one or more links",
		Long: "Resolve every platform link in the arguments, download the media and export it " +
			"to a directory, or to S3 when an S3 bucket is configured.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(opts, func(c *config.Config) {
				if outDir != "" {
					c.Storage.ExportDir = outDir
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			var target exportTarget
			if a.config.S3.Enabled() {
				s3Store, err := storage.NewS3Storage(ctx, a.config.S3)
				if err != nil {
					return err
				}
				target = s3Store
			} else {
				dir, err := storage.New(storage.Config{BasePath: a.config.Storage.ExportDir})
				if err != nil {
					return fmt.Errorf("failed to create export directory: %w", err)
				}
				target = dir
			}

			locations := make(map[string]string)
			target.OnSaved(func(file models.MediaFile, location string) {
				locations[file.Path] = location
			})

			report, err := a.pipeline.Handle(ctx, strings.Join(args, " "), target)
			for _, link := range report.Links {
				switch {
				case link.Err != nil:
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", link.Request.RawURL, link.Err)
				case link.File != nil:
					location, ok := locations[link.File.Path]
					if !ok {
						location = "not exported"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s -> %s\n", link.Request.RawURL, link.Asset.Kind, link.Asset.URL, location)
				default:
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: no media found\n", link.Request.RawURL)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Directory to export media into")
	return cmd
}
