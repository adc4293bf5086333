// url.go — URL parsing utilities: origin extraction.
package util

import (
	"net/url"
	"strings"
)

// ExtractOrigin extracts the origin (scheme://host[:port]) from a URL.
// Returns empty string for data: URLs, blob: URLs (after extracting nested origin),
// and malformed URLs.
func ExtractOrigin(rawURL string) string {
	if strings.HasPrefix(rawURL, "data:") {
		return ""
	}

	// blob:https://example.com/uuid -> https://example.com
	rawURL = strings.TrimPrefix(rawURL, "blob:")

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// LogURL shortens a page URL for log fields: the origin when one exists,
// otherwise the scheme alone (chrome-extension pages, about:blank).
func LogURL(rawURL string) string {
	if o := ExtractOrigin(rawURL); o != "" {
		return o
	}
	if i := strings.IndexByte(rawURL, ':'); i > 0 {
		return rawURL[:i+1]
	}
	return ""
}
