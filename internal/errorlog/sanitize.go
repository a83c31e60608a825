package errorlog

import (
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// RedactedMarker replaces every sensitive value in logged request data.
const RedactedMarker = "[REDACTED]"

// Header names containing any of these markers are redacted wholesale.
var sensitiveHeaderMarkers = []string{
	"authorization", "cookie", "api-key", "apikey", "token", "secret",
	"session", "x-auth", "x-csrf",
}

// Body/metadata/query field names containing any of these markers are
// redacted, recursively through nested structures.
var sensitiveFieldMarkers = []string{
	"password", "passwd", "token", "secret", "api_key", "apikey", "key",
	"credit", "card", "ssn", "cvv", "pin", "auth",
}

// SanitizeHeaders flattens request headers into a loggable map with secrets
// redacted. Invalid header field names are dropped outright.
func SanitizeHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for name, values := range h {
		if !httpguts.ValidHeaderFieldName(name) {
			continue
		}
		if isSensitiveHeader(name) {
			out[name] = RedactedMarker
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// SanitizeQuery re-encodes a query string with sensitive parameter values
// redacted. A string that does not parse is returned unchanged.
func SanitizeQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	for key := range values {
		if isSensitiveField(key) {
			values[key] = []string{RedactedMarker}
		}
	}
	return values.Encode()
}

// SanitizeValue redacts sensitive fields recursively through maps and
// slices, as produced by a JSON decode into any.
func SanitizeValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, val := range typed {
			if isSensitiveField(key) {
				out[key] = RedactedMarker
				continue
			}
			out[key] = SanitizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, val := range typed {
			out[i] = SanitizeValue(val)
		}
		return out
	default:
		return v
	}
}

func isSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range sensitiveHeaderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func isSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range sensitiveFieldMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
