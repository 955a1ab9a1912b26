package content

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// ExtractHTMLBody extracts just the body content from a full HTML document.
// If no body tag exists, returns the input unchanged.
func ExtractHTMLBody() TransformerFunc {
	return func(input []byte) ([]byte, error) {
		if !bodyTag.Match(input) {
			return input, nil
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input))
		if err != nil {
			return nil, fmt.Errorf("failed to parse HTML document: %w", err)
		}
		innerHTML, err := doc.Find("body").Html()
		if err != nil {
			return nil, fmt.Errorf("failed to extract HTML body: %w", err)
		}
		return []byte(innerHTML), nil
	}
}

var (
	// nbspPattern matches both the HTML entity &nbsp; (case insensitive) and
	// the actual unicode non-breaking space character (U+00A0).
	nbspPattern = regexp.MustCompile("(?i)&nbsp;|\xc2\xa0")

	// bodyTag detects an explicit body element. The HTML parser always
	// synthesizes one, so fragments are recognized before parsing.
	bodyTag = regexp.MustCompile(`(?i)<body[\s>]`)

	// imageLoading matches the valid values of the img loading attribute.
	imageLoading = regexp.MustCompile(`^(eager|lazy)$`)

	// imageDecoding matches the valid values of the img decoding attribute.
	imageDecoding = regexp.MustCompile(`^(sync|async|auto)$`)
)

// NormalizeNBSP replaces non-breaking space entities and characters with
// regular spaces. Operates on raw input before HTML parsing.
func NormalizeNBSP() TransformerFunc {
	return func(input []byte) ([]byte, error) {
		return nbspPattern.ReplaceAll(input, []byte{' '}), nil
	}
}

// SanitizeHTML applies sanitization rules to HTML input, stripping unsupported
// tags and attributes.
func SanitizeHTML() TransformerFunc {
	htmlSanitizer := sanitizer()
	return func(input []byte) ([]byte, error) {
		return htmlSanitizer.SanitizeBytes(input), nil
	}
}

// sanitizer is a modification of [bluemonday.UGCPolicy].
// Differences:
//
//   - Target _blank and noreferrer for links
//   - Images keep their class and loading hints, since they are about to be
//     handed to the delivery template
//   - No map/area elements
//   - No meter/progress elements
func sanitizer() *bluemonday.Policy {
	policy := bluemonday.NewPolicy()

	policy.AllowStandardAttributes()

	policy.AllowStandardURLs()
	policy.RequireNoReferrerOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)

	policy.AllowElements(
		"abbr",
		"acronym",
		"article",
		"aside",
		"b",
		"bdi",
		"bdo",
		"br",
		"cite",
		"code",
		"dfn",
		"div",
		"em",
		"figcaption",
		"figure",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"hgroup",
		"hr",
		"i",
		"mark",
		"p",
		"pre",
		"rp",
		"rt",
		"ruby",
		"s",
		"samp",
		"section",
		"small",
		"span",
		"strike",
		"strong",
		"sub",
		"summary",
		"sup",
		"tt",
		"u",
		"var",
		"wbr",
	)

	policy.AllowImages()
	policy.AllowAttrs("class").
		Matching(bluemonday.SpaceSeparatedTokens).
		OnElements("img", "figure")
	policy.AllowAttrs("srcset", "sizes").
		OnElements("img")
	policy.AllowAttrs("loading").
		Matching(imageLoading).
		OnElements("img")
	policy.AllowAttrs("decoding").
		Matching(imageDecoding).
		OnElements("img")

	policy.AllowAttrs("cite").
		OnElements(
			"blockquote",
			"q",
		)
	policy.AllowAttrs("cite").
		Matching(bluemonday.Paragraph).
		OnElements(
			"del",
			"ins",
		)

	policy.AllowAttrs("href").
		OnElements("a")

	policy.AllowAttrs("datetime").
		Matching(bluemonday.ISO8601).
		OnElements(
			"del",
			"ins",
			"time",
		)

	policy.AllowLists()
	policy.AllowTables()

	return policy
}
