package rewrite

import (
	"slices"
	"strings"
)

const (
	placeholderStart = "{"
	placeholderEnd   = "}"
)

// Swap replaces each {key} in template with vars[key] in a single pass.
// Anything else, including stray braces and unknown placeholders, is kept
// verbatim, and substituted values are not expanded again.
func Swap(template string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, key := range keys {
		pairs = append(pairs, placeholderStart+key+placeholderEnd, vars[key])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// deliveryPrefix is the rendered start of the attribute value holding
// {image_url}, e.g. "https://res.cloudinary.com/demo/image/fetch/". It is
// empty when the template puts {image_url} first in its value.
func deliveryPrefix(cfg *Config) string {
	idx := strings.Index(cfg.Template, placeholderStart+PlaceholderImageURL+placeholderEnd)
	if idx < 0 {
		return ""
	}
	head := cfg.Template[:idx]
	if start := strings.LastIndexAny(head, "\"'= "); start >= 0 {
		head = head[start+1:]
	}
	return Swap(head, map[string]string{PlaceholderCloudName: cfg.CloudName})
}
