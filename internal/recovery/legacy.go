package recovery

import (
	"net/url"
	"strings"
)

// Legacy URL shape detection. Historically-indexed URLs from older site
// generations (server-page extensions, retired API versions, numeric-id
// query strings) are routed to "old link format" handling so an intentional
// redirect rule gets first crack at them.

var legacyExtensions = []string{
	".php", ".asp", ".aspx", ".jsp", ".cfm", ".cgi", ".shtml", ".htm",
}

var legacyPrefixes = []string{
	"/api/v0/",
	"/rest/v1/",
	"/index.php",
	"/wp-content/",
	"/wp-admin/",
}

var legacyStaticSuffixes = []string{
	".swf", ".do", ".action",
}

var legacyIDParams = []string{
	"id", "pid", "p", "cat", "page_id", "product_id", "article_id",
}

// DetectLegacy reports whether the path/query matches a known legacy URL
// shape, and which shape it was.
func DetectLegacy(path string, query url.Values) (reason string, ok bool) {
	lower := strings.ToLower(path)

	for _, prefix := range legacyPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return "old_api_prefix", true
		}
	}
	for _, ext := range legacyExtensions {
		if strings.HasSuffix(lower, ext) {
			return "old_extension", true
		}
	}
	for _, suffix := range legacyStaticSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return "old_static_suffix", true
		}
	}
	for _, param := range legacyIDParams {
		if v := query.Get(param); v != "" && isDigits(v) {
			return "numeric_id_query", true
		}
	}
	return "", false
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
