package command

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stolasapp/cirrus/internal/app"
	"github.com/stolasapp/cirrus/internal/app/devservice"
	"github.com/stolasapp/cirrus/internal/config"
	"github.com/stolasapp/cirrus/internal/server"
	"github.com/stolasapp/cirrus/internal/upstream"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "serve the upstream site with its images delivered through the CDN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}

			grp, ctx := errgroup.WithContext(cmd.Context())

			// In dev mode, start the fake upstream service
			if cfg.DevMode {
				devAddr, err := serveDevUpstream(ctx, grp, logger)
				if err != nil {
					return err
				}
				cfg.UpstreamURI = "http://" + devAddr + "/"
				cfg.SiteURL = ""
			}
			if cfg.Rewrite() == nil {
				logger.WarnContext(ctx, "cloudinary is not configured, pages are relayed unchanged")
			}

			pages, err := upstream.New(cfg.UpstreamURI, int64(cfg.CacheSize), logger)
			if err != nil {
				return err
			}

			serveApp(ctx, grp, cfg, logger, app.New(cfg, logger, pages))
			return grp.Wait()
		},
	}
}

func serveApp(
	ctx context.Context,
	grp *errgroup.Group,
	cfg *config.Config,
	logger *slog.Logger,
	srv *echo.Echo,
) {
	addr := cfg.WebAddress
	if addr == "" {
		return
	}

	listener, err := server.Listen(ctx, addr)
	if err != nil {
		grp.Go(func() error { return err })
		return
	}

	logger.InfoContext(ctx,
		"starting app server...",
		slog.String("address", addr),
		slog.String("upstream", cfg.UpstreamURI),
	)
	server.Serve(ctx, grp, srv.Server, listener, server.DefaultTimeouts)
}

func serveDevUpstream(
	ctx context.Context,
	grp *errgroup.Group,
	logger *slog.Logger,
) (string, error) {
	seed := devservice.Seed()
	handler := devservice.New(seed)

	listener, err := server.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	addr := listener.Addr().String()

	srv := &http.Server{Handler: handler} //nolint:gosec // Serve() sets timeouts

	logger.InfoContext(ctx,
		"starting dev upstream server...",
		slog.String("address", addr),
		slog.Uint64("seed", seed),
	)
	server.Serve(ctx, grp, srv, listener, server.DefaultTimeouts)

	return addr, nil
}
