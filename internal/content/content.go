// Package content contains transformers that prepare page content and route
// its images through the delivery service.
package content

import (
	"fmt"
	"mime"
	"strings"

	"github.com/stolasapp/cirrus/internal/rewrite"
)

// Format is the output format of a [Transform].
type Format int

// Supported output formats.
const (
	FormatHTML Format = iota
	FormatMarkdown
)

// ParseFormat resolves a format name as used by flags and configuration.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "", "html":
		return FormatHTML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return FormatHTML, fmt.Errorf("unknown output format %q", name)
	}
}

// Options toggles the optional stages of a [Transform].
type Options struct {
	// NormalizeNBSP replaces non-breaking spaces with regular spaces.
	NormalizeNBSP bool
	// ExtractBody reduces full documents to the contents of their body.
	ExtractBody bool
	// Sanitize strips unsupported elements and attributes before rewriting.
	Sanitize bool
	// Minify compacts HTML output. Ignored for Markdown output.
	Minify bool
	// Output selects the emitted format.
	Output Format
}

var (
	// Individual transformers.
	markdownToHTML  = MarkdownToHTML()
	htmlToMarkdown  = HTMLToMarkdown()
	sanitizeHTML    = SanitizeHTML()
	extractHTMLBody = ExtractHTMLBody()
	normalizeNBSP   = NormalizeNBSP()
	minifyHTML      = MinifyHTML()
)

// Media types accepted by [Transform].
const (
	mimeHTML      = "text/html"
	mimeXHTML     = "application/xhtml+xml"
	mimeMarkdown  = "text/markdown"
	mimeXMarkdown = "text/x-markdown"
)

// Supports reports whether content of the given media type can be passed to
// [Transform].
func Supports(contentType string) bool {
	mimeType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return isHTML(mimeType) || isMarkdown(mimeType)
}

// FormatOf reports the format of content with the given media type. Anything
// that is not Markdown is treated as HTML.
func FormatOf(contentType string) Format {
	mimeType, _, err := mime.ParseMediaType(contentType)
	if err == nil && isMarkdown(mimeType) {
		return FormatMarkdown
	}
	return FormatHTML
}

// ContentType is the media type of output rendered in the given format.
func (f Format) ContentType() string {
	if f == FormatMarkdown {
		return mimeMarkdown + "; charset=utf-8"
	}
	return mimeHTML + "; charset=utf-8"
}

func isHTML(mimeType string) bool {
	return mimeType == mimeHTML || mimeType == mimeXHTML
}

func isMarkdown(mimeType string) bool {
	return mimeType == mimeMarkdown || mimeType == mimeXMarkdown
}

// RewriteImages wraps [rewrite.Convert] as a transformer. A nil cfg yields a
// passthrough.
func RewriteImages(cfg *rewrite.Config, rc rewrite.RequestContext) TransformerFunc {
	return func(input []byte) ([]byte, error) {
		return []byte(rewrite.Convert(string(input), cfg, rc)), nil
	}
}

// Transform converts the input to UTF-8 and HTML, applies the optional
// cleanups in opts, runs rewriter over the result and finally renders the
// requested output format. A nil rewriter skips image rewriting.
func Transform(
	inputContentType string,
	opts Options,
	rewriter Transformer,
	input []byte,
) ([]byte, error) {
	mimeType, _, err := mime.ParseMediaType(inputContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to parse content mime type %q: %w", inputContentType, err)
	}
	if !isHTML(mimeType) && !isMarkdown(mimeType) {
		return nil, fmt.Errorf("unsupported content mime type %q", mimeType)
	}

	// Convert to UTF8 first (charset depends on input)
	input, err = UTF8Transformer(inputContentType)(input)
	if err != nil {
		return nil, err
	}

	return Pipeline(mimeType, opts, rewriter)(input)
}

// Pipeline composes the stages of a [Transform] for an already decoded input
// of the given media type.
func Pipeline(mimeType string, opts Options, rewriter Transformer) TransformerFunc {
	var stages []Transformer
	if isMarkdown(mimeType) {
		stages = append(stages, markdownToHTML)
	}
	if opts.NormalizeNBSP {
		stages = append(stages, normalizeNBSP)
	}
	if opts.ExtractBody {
		stages = append(stages, extractHTMLBody)
	}
	if opts.Sanitize {
		stages = append(stages, sanitizeHTML)
	}
	stages = append(stages, rewriter)
	switch {
	case opts.Output == FormatMarkdown:
		stages = append(stages, htmlToMarkdown)
	case opts.Minify:
		stages = append(stages, minifyHTML)
	}
	return Chain(stages...)
}
