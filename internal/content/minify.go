package content

import (
	"fmt"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
)

// MinifyHTML strips comments and collapses whitespace. Quotes and end tags
// are kept so rewritten image tags stay readable.
func MinifyHTML() TransformerFunc {
	minifier := minify.New()
	minifier.Add(mimeHTML, &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	return func(input []byte) ([]byte, error) {
		out, err := minifier.Bytes(mimeHTML, input)
		if err != nil {
			return nil, fmt.Errorf("failed to minify HTML: %w", err)
		}
		return out, nil
	}
}
