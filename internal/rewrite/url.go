package rewrite

import (
	"regexp"
	"strings"
)

var absoluteURLPattern = regexp.MustCompile(`^https?://`)

// CurrentPath normalizes a request path into the directory that relative
// image sources resolve against. A final segment containing a "." is taken to
// be a file name and dropped; otherwise the path is treated as a directory.
//
//	/blog/post.html -> /blog/
//	/blog           -> /blog/
//	/blog/          -> /blog/
func CurrentPath(uriPath string) string {
	if strings.HasSuffix(uriPath, "/") {
		return uriPath
	}
	segments := strings.Split(uriPath, "/")
	last := len(segments) - 1
	if strings.Contains(segments[last], ".") {
		segments[last] = ""
	} else {
		segments = append(segments, "")
	}
	return strings.Join(segments, "/")
}

// AbsoluteURL resolves an image source against the request context. Sources
// that already mention the site domain, or carry an http(s) scheme, are
// returned as-is.
func (rc RequestContext) AbsoluteURL(src string) string {
	switch {
	case strings.Contains(src, rc.SiteDomain):
		return src
	case absoluteURLPattern.MatchString(src):
		return src
	case strings.HasPrefix(src, "/"):
		return rc.SiteDomain + src
	default:
		return rc.SiteDomain + rc.CurrentPath + src
	}
}
