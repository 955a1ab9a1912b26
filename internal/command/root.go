// Package command contains the CLI command constructors.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	"github.com/stolasapp/cirrus/internal/config"
	"github.com/stolasapp/cirrus/internal/observability"
	"github.com/stolasapp/cirrus/internal/rewrite"
)

// RootCommand instantiates the root command, with all sub-commands bound.
func RootCommand() *cobra.Command {
	configFilePath := filepath.Join(xdg.ConfigHome, "cirrus.yaml")
	cmd := &cobra.Command{
		Use:          "cirrus [command] [flags]",
		Short:        "Deliver a site's images through an image CDN",
		Version:      version(),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg, err := loadOrInitConfig(configFilePath)
			if err != nil {
				return fmt.Errorf("failed to load configuration file: %w", err)
			}
			logger := observability.InitSlog(cfg)
			logger.DebugContext(cmd.Context(), "configuration loaded", slog.Any("config", cfg))
			slog.SetDefault(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(
		&configFilePath,
		"config", "c",
		configFilePath,
		"path to the configuration file",
	)

	cmd.AddCommand(
		serveCommand(),
		rewriteCommand(),
		exportCommand(),
	)

	return cmd
}

func loadOrInitConfig(configFilePath string) (*config.Config, error) {
	cfg, err := config.Load(configFilePath)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}

	resp, initErr := prompt(fmt.Sprintf("Config not found at %s. Create one? [y|N] ", configFilePath))
	if initErr != nil || !bytes.Equal(resp, []byte("y")) {
		return nil, errors.Join(err, initErr)
	}

	resp, err = prompt("Enter the root upstream URL of the site: ")
	if err != nil {
		return nil, err
	}
	cfg = config.Default()
	cfg.UpstreamURI = string(resp)

	resp, err = prompt("Enter the Cloudinary cloud name (blank to disable rewriting): ")
	if err != nil {
		return nil, err
	}
	if len(resp) > 0 {
		cfg.Cloudinary = &config.Cloudinary{
			CloudName: string(resp),
			Template:  rewrite.DefaultTemplate,
		}
	}

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	data, err := cfg.Marshal()
	if err != nil {
		return nil, err
	}
	if err = os.WriteFile(configFilePath, data, 0600); err != nil { //nolint:mnd // owner rw access
		return nil, fmt.Errorf("failed to write config file to %s: %w", configFilePath, err)
	}
	return cfg, nil
}
