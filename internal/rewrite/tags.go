package rewrite

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// imgTagPattern matches one image tag: "<img", everything up to the first
// ">", and an optional self-closing slash. The slash is swallowed by the
// attribute group in practice, so it is stripped by hand.
var imgTagPattern = regexp.MustCompile(`<img([^>]*)/?>`)

// attrEscaper keeps re-rendered attribute values inside their double quotes.
var attrEscaper = strings.NewReplacer(`&`, "&amp;", `"`, "&quot;")

// Tag is an image tag found in a fragment.
type Tag struct {
	// Literal is the full text of the tag as it appears in the input.
	Literal string
	// Attrs is the text between "<img" and the closing ">", without a
	// trailing self-closing "/".
	Attrs string
}

// FindTags returns the image tags in html in order of first occurrence.
func FindTags(html string) []Tag {
	matches := imgTagPattern.FindAllStringSubmatch(html, -1)
	tags := make([]Tag, 0, len(matches))
	for _, match := range matches {
		tags = append(tags, Tag{
			Literal: match[0],
			Attrs:   strings.TrimSuffix(match[1], "/"),
		})
	}
	return tags
}

// attributes is an ordered set of rendered name="value" fragments.
type attributes struct {
	names    []string
	rendered map[string]string
}

func newAttributes() *attributes {
	return &attributes{rendered: make(map[string]string)}
}

func (a *attributes) has(name string) bool {
	_, ok := a.rendered[name]
	return ok
}

// set records name="value". A repeated name keeps its first position and
// takes the latest value.
func (a *attributes) set(name, value string) {
	if !a.has(name) {
		a.names = append(a.names, name)
	}
	a.rendered[name] = name + `="` + attrEscaper.Replace(value) + `"`
}

// String joins the rendered attributes with single spaces.
func (a *attributes) String() string {
	parts := make([]string, len(a.names))
	for i, name := range a.names {
		parts[i] = a.rendered[name]
	}
	return strings.Join(parts, " ")
}

// parseTag runs the literal tag text through an error-recovering HTML parser
// and splits the first img element's attributes into its src and everything
// else. srcset is dropped: responsive variants are left to the delivery
// service and the template.
func parseTag(literal string) (string, *attributes) {
	attrs := newAttributes()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(literal))
	if err != nil {
		return "", attrs
	}
	img := doc.Find("img").First()
	if img.Length() == 0 {
		return "", attrs
	}

	var src string
	for _, attr := range img.Get(0).Attr {
		switch attr.Key {
		case "src":
			src = attr.Val
		case "srcset":
		default:
			attrs.set(attr.Key, attr.Val)
		}
	}
	return src, attrs
}
