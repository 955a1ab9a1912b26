package command

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stolasapp/cirrus/internal/export"
	"github.com/stolasapp/cirrus/internal/upstream"
)

func exportCommand() *cobra.Command {
	var maxDepth int
	cmd := &cobra.Command{
		Use:   "export DIR",
		Short: "mirror the upstream site into DIR with its images delivered through the CDN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			pages, err := upstream.New(cfg.UpstreamURI, int64(cfg.CacheSize), logger)
			if err != nil {
				return err
			}

			res, err := export.New(cfg, pages, args[0], maxDepth, logger).Run(cmd.Context())
			logger.InfoContext(cmd.Context(), "export finished",
				slog.String("dir", args[0]),
				slog.Int("rewritten", res.Rewritten),
				slog.Int("copied", res.Copied),
				slog.Int("missing", res.Missing),
			)
			if err != nil {
				return fmt.Errorf("export incomplete: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxDepth, "depth", 0, "maximum link depth to follow (0 for unlimited)")
	return cmd
}
