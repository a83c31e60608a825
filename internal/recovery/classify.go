package recovery

import (
	"strings"

	"github.com/rerouteio/reroute/internal/model"
)

// Marker tables for severity classification. Checked in order: a message
// matching both a critical and a medium marker is critical.
var (
	criticalMarkers = []string{
		"database", "connection", "timeout", "deadlock", "sql",
		"dial tcp", "no such host", "out of memory",
	}
	highMarkers = []string{
		"validation", "unauthorized", "forbidden", "authentication",
		"authorization", "permission", "csrf",
	}
	mediumMarkers = []string{
		"not found", "invalid", "missing", "malformed", "unsupported",
	}
)

// ClassifySeverity derives a severity from an error code and message using
// fixed marker sets. The mapping is deterministic: same inputs, same result.
func ClassifySeverity(code, message string) model.Severity {
	haystack := strings.ToLower(code + " " + message)
	for _, m := range criticalMarkers {
		if strings.Contains(haystack, m) {
			return model.SeverityCritical
		}
	}
	for _, m := range highMarkers {
		if strings.Contains(haystack, m) {
			return model.SeverityHigh
		}
	}
	for _, m := range mediumMarkers {
		if strings.Contains(haystack, m) {
			return model.SeverityMedium
		}
	}
	return model.SeverityLow
}
