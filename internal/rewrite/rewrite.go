// Package rewrite swaps the sources of <img> tags in HTML fragments for
// image-delivery URLs built from a configurable template.
package rewrite

import (
	"strings"
)

// Template placeholders.
const (
	PlaceholderCloudName  = "cloud_name"
	PlaceholderAttributes = "attributes"
	PlaceholderImageURL   = "image_url"
)

// DefaultTemplate is a Cloudinary fetch template that lets the service choose
// the format and quality of each delivered image.
const DefaultTemplate = `<img src="https://res.cloudinary.com/{cloud_name}/image/fetch/f_auto,q_auto/{image_url}" {attributes}>`

// Config describes how rewritten tags are rendered. A nil *Config disables
// rewriting entirely.
type Config struct {
	// CloudName is the delivery service account, substituted for {cloud_name}.
	CloudName string
	// Template is the replacement tag, with {cloud_name}, {attributes} and
	// {image_url} placeholders.
	Template string
}

// RequestContext carries what the host knows about the page being rendered.
type RequestContext struct {
	// SiteDomain is the absolute base URL of the site (scheme and host).
	SiteDomain string
	// CurrentPath is the directory of the current request, ending in "/".
	CurrentPath string
}

// NewRequestContext builds a RequestContext from the site domain and the raw
// path of the current request.
func NewRequestContext(siteDomain, uriPath string) RequestContext {
	return RequestContext{
		SiteDomain:  siteDomain,
		CurrentPath: CurrentPath(uriPath),
	}
}

// Convert rewrites every <img> tag in html through cfg.Template. With a nil
// cfg the input is returned untouched, otherwise the result is trimmed.
//
// Tags are replaced by literal text, so byte-identical tags are all rewritten
// when the first of them is processed. A src that already points at the
// delivery service has that prefix removed before rendering, so applying
// Convert to its own output does not wrap a URL twice. Such tags still lose
// their srcset and gain an alt.
//
// Attribute values are taken from the parsed tag, so entities arrive
// decoded. They are written back with & and " escaped to keep each
// name="value" pair well formed; other characters are emitted as decoded.
//
// Convert never fails: markup that does not parse into an img element is
// still rendered through the template with an empty src.
func Convert(html string, cfg *Config, rc RequestContext) string {
	if cfg == nil {
		return html
	}

	out := strings.TrimSpace(html)
	delivered := deliveryPrefix(cfg)

	for _, tag := range FindTags(out) {
		src, attrs := parseTag(tag.Literal)
		if delivered != "" {
			src = strings.TrimPrefix(src, delivered)
		}
		if !attrs.has("alt") {
			attrs.set("alt", "")
		}
		rendered := Swap(cfg.Template, map[string]string{
			PlaceholderCloudName:  cfg.CloudName,
			PlaceholderAttributes: attrs.String(),
			PlaceholderImageURL:   rc.AbsoluteURL(src),
		})
		out = strings.ReplaceAll(out, tag.Literal, rendered)
	}

	return out
}
