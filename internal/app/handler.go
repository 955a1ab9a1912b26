package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/stolasapp/cirrus/internal/config"
	"github.com/stolasapp/cirrus/internal/content"
	"github.com/stolasapp/cirrus/internal/rewrite"
	"github.com/stolasapp/cirrus/internal/upstream"
)

type handler struct {
	cfg      *config.Config
	upstream *upstream.Client
	logger   *slog.Logger
}

func (h handler) register(e *echo.Echo) {
	api := e.Group("/api")
	api.POST("/convert", h.convert, middleware.BodyLimit(maxConvertBody))

	e.GET("/*", h.proxy)
}

// convert rewrites the images of a posted fragment as if it were served at
// the path given by the path query parameter.
func (h handler) convert(c echo.Context) error {
	req := c.Request()
	output, err := content.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	contentType := req.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = echo.MIMETextHTML
	}
	if !content.Supports(contentType) {
		return echo.NewHTTPError(http.StatusUnsupportedMediaType,
			fmt.Sprintf("cannot convert %s", contentType))
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}

	reqPath := c.QueryParam("path")
	if reqPath == "" {
		reqPath = "/"
	}
	out, err := content.Transform(
		contentType,
		h.cfg.ContentOptions(output),
		h.rewriter(reqPath),
		body,
	)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.Blob(http.StatusOK, output.ContentType(), out)
}

// proxy relays the upstream page at the request path. Pages in a supported
// format have their images rewritten; images are handed back to the upstream.
func (h handler) proxy(c echo.Context) error {
	req := c.Request()
	reqPath := req.URL.Path

	if upstream.IsImagePath(reqPath) {
		target := h.upstream.Resolve(reqPath, req.URL.RawQuery)
		return c.Redirect(http.StatusTemporaryRedirect, target.String())
	}

	page, err := h.upstream.Fetch(req.Context(), reqPath, req.URL.RawQuery)
	if err != nil {
		return h.toHTTPError(req.Context(), err)
	}
	if page.LastModified != "" {
		c.Response().Header().Set(echo.HeaderLastModified, page.LastModified)
	}

	if !content.Supports(page.ContentType) {
		return c.Blob(page.StatusCode, page.ContentType, page.Body)
	}

	output := content.FormatOf(page.ContentType)
	out, err := content.Transform(
		page.ContentType,
		h.cfg.ContentOptions(output),
		h.rewriter(reqPath),
		page.Body,
	)
	if err != nil {
		return h.toHTTPError(req.Context(), err)
	}
	return c.Blob(page.StatusCode, output.ContentType(), out)
}

func (h handler) rewriter(reqPath string) content.Transformer {
	return content.RewriteImages(
		h.cfg.Rewrite(),
		rewrite.NewRequestContext(h.cfg.SiteDomain(), reqPath),
	)
}

// toHTTPError converts an error to an Echo HTTPError with the appropriate
// HTTP status code. Upstream errors are mapped to their corresponding HTTP
// status codes; other errors pass through unchanged.
func (h handler) toHTTPError(ctx context.Context, err error) error {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return err
	case errors.Is(err, upstream.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, upstream.ErrUpstream), errors.Is(err, upstream.ErrTooLarge):
		h.logger.WarnContext(ctx, "upstream request failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	default:
		h.logger.ErrorContext(ctx, "failed to serve page", slog.Any("error", err))
		return err
	}
}
