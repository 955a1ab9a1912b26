package command

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stolasapp/cirrus/internal/content"
	"github.com/stolasapp/cirrus/internal/rewrite"
)

func rewriteCommand() *cobra.Command {
	var (
		uriPath     string
		contentType string
		markdown    bool
		domain      string
	)
	cmd := &cobra.Command{
		Use:   "rewrite [FILE]",
		Short: "rewrite the images of an HTML or Markdown file (or stdin) to stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}

			input, name, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			if contentType == "" {
				contentType = contentTypeOf(name)
			}
			if domain == "" {
				domain = cfg.SiteDomain()
			}
			output := content.FormatHTML
			if markdown {
				output = content.FormatMarkdown
			}

			rc := rewrite.NewRequestContext(strings.TrimRight(domain, "/"), uriPath)
			logger.DebugContext(cmd.Context(), "rewriting",
				slog.String("input", name),
				slog.String("content_type", contentType),
				slog.String("site_domain", rc.SiteDomain),
				slog.String("current_path", rc.CurrentPath),
			)

			out, err := content.Transform(
				contentType,
				cfg.ContentOptions(output),
				content.RewriteImages(cfg.Rewrite(), rc),
				input,
			)
			if err != nil {
				return fmt.Errorf("failed to rewrite %s: %w", name, err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&uriPath, "path", "/", "request path the content is served at")
	flags.StringVar(&contentType, "content-type", "", "media type of the input (default from the file extension)")
	flags.BoolVar(&markdown, "markdown", false, "emit Markdown instead of HTML")
	flags.StringVar(&domain, "domain", "", "site domain to absolutize image sources against (default from config)")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) ([]byte, string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, "stdin", nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, "", fmt.Errorf("failed to read input file: %w", err)
	}
	return data, args[0], nil
}

func contentTypeOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return "text/markdown"
	default:
		return "text/html"
	}
}
