// Package app contains the web front-end.
package app

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/stolasapp/cirrus/internal/config"
	"github.com/stolasapp/cirrus/internal/upstream"
)

// maxConvertBody bounds the fragments accepted by the convert endpoint.
const maxConvertBody = "4M"

// New creates a web front-end server that filters pages from the upstream.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	pages *upstream.Client,
) *echo.Echo {
	srv := echo.New()

	srv.HideBanner = true
	srv.HidePort = true
	srv.Logger.SetLevel(log.OFF)

	if cfg.DevMode {
		srv.Debug = true
		srv.Use(logRequests(logger))
	} else {
		srv.Use(middleware.Recover())
	}

	srv.Use(
		middleware.Decompress(),
		middleware.Gzip(),
		middleware.Secure(),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			Generator: uuid.NewString,
		}),
	)

	handler{
		cfg:      cfg,
		upstream: pages,
		logger:   logger.With(slog.String("component", "app")),
	}.register(srv)
	return srv
}

func logRequests(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			latency := time.Since(start)

			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("uri", req.RequestURI),
				slog.String("route", c.Path()),
				slog.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				slog.Duration("latency", latency),
				slog.Int("status", res.Status),
			}
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}
			logger.LogAttrs(
				req.Context(),
				slog.LevelDebug,
				"request handled",
				attrs...,
			)
			return err
		}
	}
}
