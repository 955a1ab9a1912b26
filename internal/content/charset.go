package content

import (
	"bytes"
	"fmt"
	"log/slog"
	"mime"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// utf8BOM is the UTF-8 byte order mark that some editors add to files.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// minChardetConfidence is the minimum confidence level required to trust
// chardet's detection over the default Windows-1252 fallback.
const minChardetConfidence = 50

// How an encoding was chosen.
const (
	sourceDeclared    = "declared"
	sourceStatistical = "statistical"
	sourceFallback    = "fallback"
)

// detection is the outcome of charset sniffing.
type detection struct {
	enc    encoding.Encoding
	name   string
	source string
}

// UTF8Transformer converts input to UTF-8 based on the content type charset
// and strips a UTF-8 BOM.
//
// A BOM, a Content-Type charset or an HTML meta tag decide the encoding.
// Otherwise Markdown is sniffed statistically with chardet, while HTML falls
// back to Windows-1252 like browsers do.
func UTF8Transformer(contentType string) TransformerFunc {
	mimeType, _, _ := mime.ParseMediaType(contentType)
	sniff := !isHTML(mimeType)

	return func(input []byte) ([]byte, error) {
		found := detectEncoding(input, contentType, sniff)
		if found.source != sourceDeclared {
			slog.Debug("encoding detection uncertain",
				slog.String("encoding", found.name),
				slog.String("source", found.source),
				slog.String("content_type", contentType))
		}

		output, err := decodeToUTF8(input, found.enc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s content: %w", found.name, err)
		}
		return bytes.TrimPrefix(output, utf8BOM), nil
	}
}

func detectEncoding(input []byte, contentType string, sniff bool) detection {
	enc, name, certain := charset.DetermineEncoding(input, contentType)
	if certain {
		return detection{enc: enc, name: name, source: sourceDeclared}
	}
	if sniff {
		if found, ok := detectWithChardet(input); ok {
			return found
		}
	}
	return detection{enc: enc, name: name, source: sourceFallback}
}

// detectWithChardet uses ICU-based statistical detection. It fails when
// chardet is unsure or names a charset outside the HTML index.
func detectWithChardet(input []byte) (detection, bool) {
	result, err := chardet.NewTextDetector().DetectBest(input)
	if err != nil || result.Confidence < minChardetConfidence {
		return detection{}, false
	}
	enc, err := htmlindex.Get(result.Charset)
	if err != nil {
		return detection{}, false
	}
	return detection{enc: enc, name: result.Charset, source: sourceStatistical}, true
}

// decodeToUTF8 converts input bytes to UTF-8 using the given encoding.
func decodeToUTF8(input []byte, enc encoding.Encoding) ([]byte, error) {
	if enc == encoding.Nop || enc == unicode.UTF8 {
		return input, nil
	}
	return enc.NewDecoder().Bytes(input)
}
