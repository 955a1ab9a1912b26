// Package export mirrors the upstream site into a directory, delivering the
// images of every page through the CDN.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gocolly/colly/v2"

	"github.com/stolasapp/cirrus/internal/config"
	"github.com/stolasapp/cirrus/internal/content"
	"github.com/stolasapp/cirrus/internal/rewrite"
	"github.com/stolasapp/cirrus/internal/upstream"
)

const (
	indexFile = "index.html"
	dirPerm   = 0o750
	filePerm  = 0o644
)

// Result summarizes an export.
type Result struct {
	// Rewritten counts pages whose images were rewritten.
	Rewritten int
	// Copied counts files written unchanged.
	Copied int
	// Missing counts linked pages the upstream did not have.
	Missing int
}

// Exporter crawls the upstream from its base URI, following links that stay
// beneath it.
type Exporter struct {
	cfg      *config.Config
	base     *url.URL
	client   *http.Client
	dir      string
	maxDepth int
	logger   *slog.Logger
}

// New creates an Exporter writing into dir. A maxDepth of zero follows links
// without limit.
func New(
	cfg *config.Config,
	pages *upstream.Client,
	dir string,
	maxDepth int,
	logger *slog.Logger,
) *Exporter {
	return &Exporter{
		cfg:      cfg,
		base:     pages.Base(),
		client:   pages.HTTPClient(),
		dir:      dir,
		maxDepth: maxDepth,
		logger:   logger.With(slog.String("component", "export")),
	}
}

// Run crawls the upstream and writes every reachable page. Unreachable links
// are counted, not fatal; any other failure aborts the export.
func (e *Exporter) Run(ctx context.Context) (Result, error) {
	var (
		res  Result
		errs []error
	)

	col := e.newCollector(ctx)
	col.OnResponse(func(r *colly.Response) {
		rewritten, err := e.save(r)
		switch {
		case err != nil:
			errs = append(errs, err)
		case rewritten:
			res.Rewritten++
		default:
			res.Copied++
		}
	})
	col.OnHTML("a[href]", func(elem *colly.HTMLElement) {
		link := elem.Request.AbsoluteURL(elem.Attr("href"))
		if link == "" || upstream.IsImagePath(link) {
			return
		}
		if err := elem.Request.Visit(link); err != nil {
			e.logger.DebugContext(ctx, "link not followed",
				slog.String("link", link),
				slog.Any("error", err),
			)
		}
	})
	col.OnError(func(r *colly.Response, err error) {
		if r.StatusCode == http.StatusNotFound || r.StatusCode == http.StatusGone {
			e.logger.WarnContext(ctx, "linked page is missing", slog.String("url", r.Request.URL.String()))
			res.Missing++
			return
		}
		errs = append(errs, fmt.Errorf("failed to fetch %s: %w", r.Request.URL, err))
	})

	if err := col.Visit(e.base.String()); err != nil {
		return res, fmt.Errorf("failed to export %v: %w", e.base, err)
	}
	col.Wait()
	return res, errors.Join(errs...)
}

func (e *Exporter) newCollector(ctx context.Context) *colly.Collector {
	col := colly.NewCollector(
		colly.IgnoreRobotsTxt(),
		colly.UserAgent(upstream.UserAgent),
		colly.StdlibContext(ctx),
		colly.MaxDepth(e.maxDepth),
		colly.URLFilters(regexp.MustCompile("^"+regexp.QuoteMeta(e.base.String()))),
	)
	col.SetClient(e.client)
	return col
}

// save writes the response beneath the export directory, reporting whether
// its images were rewritten.
func (e *Exporter) save(r *colly.Response) (bool, error) {
	sitePath := e.sitePath(r.Request.URL)
	target := filepath.Join(e.dir, filepath.FromSlash(fileName(sitePath)))

	body := r.Body
	contentType := r.Headers.Get("Content-Type")
	rewritten := content.Supports(contentType)
	if rewritten {
		output := content.FormatOf(contentType)
		var err error
		body, err = content.Transform(
			contentType,
			e.cfg.ContentOptions(output),
			content.RewriteImages(e.cfg.Rewrite(), rewrite.NewRequestContext(e.cfg.SiteDomain(), sitePath)),
			body,
		)
		if err != nil {
			return false, fmt.Errorf("failed to rewrite %s: %w", sitePath, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
		return false, fmt.Errorf("failed to create directory for %s: %w", sitePath, err)
	}
	if err := os.WriteFile(target, body, filePerm); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", target, err)
	}
	return rewritten, nil
}

// sitePath is the path of u relative to the upstream base, as served by the
// site.
func (e *Exporter) sitePath(u *url.URL) string {
	rel := strings.TrimPrefix(u.Path, strings.TrimSuffix(e.base.Path, "/"))
	cleaned := path.Clean("/" + rel)
	if strings.HasSuffix(rel, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// fileName maps a site path onto a relative file name, giving directories an
// index file.
func fileName(sitePath string) string {
	if strings.HasSuffix(sitePath, "/") {
		sitePath += indexFile
	}
	return strings.TrimPrefix(sitePath, "/")
}
