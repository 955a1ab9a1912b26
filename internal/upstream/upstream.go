// Package upstream fetches pages from the site fronted by the server.
package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/die-net/lrucache"
	"github.com/gregjones/httpcache"
)

const (
	maxCacheAge     = 0 // unlimited, freshness follows the upstream headers
	maxBodyBytes    = 32 * 1024 * 1024
	idleConns       = 100
	idleConnTimeout = 90 * time.Second
	httpTimeout     = 10 * time.Second
)

// UserAgent identifies cirrus to the upstream.
const UserAgent = "cirrus/1 (+image delivery proxy)"

const (
	// ErrNotFound is returned when the upstream has no page at a path.
	ErrNotFound Error = "not found"
	// ErrUpstream is returned for any other unsuccessful upstream response.
	ErrUpstream Error = "upstream error"
	// ErrTooLarge is returned when a page exceeds the body limit.
	ErrTooLarge Error = "page too large"
)

// Error is an error type returned by the upstream client.
type Error string

// Error satisfies [error].
func (e Error) Error() string { return string(e) }

// Page is a fetched upstream response.
type Page struct {
	StatusCode   int
	ContentType  string
	LastModified string
	Body         []byte
}

// Client fetches pages relative to the upstream base URI through an
// in-memory HTTP cache.
type Client struct {
	base   *url.URL
	client *http.Client
	logger *slog.Logger
}

// New creates a Client for the base URI. cacheBytes bounds the response
// cache; zero disables caching.
func New(baseURI string, cacheBytes int64, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(baseURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse upstream uri: %w", err)
	} else if !base.IsAbs() {
		return nil, fmt.Errorf("upstream uri must have a scheme: %v", base)
	}

	var transport http.RoundTripper = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        idleConns,
		MaxConnsPerHost:     idleConns,
		MaxIdleConnsPerHost: idleConns,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: httpTimeout,
	}
	if cacheBytes > 0 {
		transport = &httpcache.Transport{
			Cache:               lrucache.New(cacheBytes, maxCacheAge),
			Transport:           transport,
			MarkCachedResponses: true,
		}
	}

	return &Client{
		base: base,
		client: &http.Client{
			Transport: transport,
			Timeout:   httpTimeout,
		},
		logger: logger.With(slog.String("component", "upstream")),
	}, nil
}

// Base is the upstream root URI.
func (c *Client) Base() *url.URL { return c.base }

// HTTPClient is the cached client used for upstream requests.
func (c *Client) HTTPClient() *http.Client { return c.client }

// IsImagePath reports whether the path names an image by its extension.
// Images are never fetched through the client.
func IsImagePath(reqPath string) bool {
	ext := path.Ext(reqPath)
	return ext != "" && strings.HasPrefix(mime.TypeByExtension(ext), "image/")
}

// Resolve maps a request path and query onto the upstream. The path is
// cleaned first so that it cannot climb above the base URI.
func (c *Client) Resolve(reqPath, rawQuery string) *url.URL {
	cleaned := path.Clean("/" + reqPath)
	if strings.HasSuffix(reqPath, "/") && cleaned != "/" {
		cleaned += "/"
	}
	target := c.base.JoinPath(cleaned)
	target.RawQuery = rawQuery
	return target
}

// Fetch retrieves the page at reqPath (relative to the base URI).
func (c *Client) Fetch(ctx context.Context, reqPath, rawQuery string) (*Page, error) {
	target := c.Resolve(reqPath, rawQuery)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer func() { _ = res.Body.Close() }() // error is not actionable after read

	c.logger.DebugContext(ctx, "fetched upstream page",
		slog.String("url", target.String()),
		slog.Int("status", res.StatusCode),
		slog.Bool("cached", res.Header.Get(httpcache.XFromCache) != ""),
	)

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	case res.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s responded %d", ErrUpstream, target, res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", target, err)
	} else if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, target)
	}

	return &Page{
		StatusCode:   res.StatusCode,
		ContentType:  res.Header.Get("Content-Type"),
		LastModified: res.Header.Get("Last-Modified"),
		Body:         body,
	}, nil
}
