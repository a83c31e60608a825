// Package model defines domain structs shared across the persistence layer.
package model

// RuleKind selects the matching strategy for a redirect rule.
type RuleKind string

const (
	// RuleKindExact matches the source path by literal string equality.
	RuleKindExact RuleKind = "exact"
	// RuleKindRegex matches the source path as an anchored regular
	// expression with capture-group back-references in the destination.
	RuleKindRegex RuleKind = "regex"
	// RuleKindWildcard is the legacy glob form: '*' placeholders converted
	// to capture groups at match time.
	RuleKindWildcard RuleKind = "wildcard"
)

// RedirectRule is a single rewrite instruction.
//
// A StatusCode of 410 encodes "gone": DestinationPath is ignored and callers
// must not emit a Location header for it.
type RedirectRule struct {
	ID              string   `json:"id"`
	Kind            RuleKind `json:"kind"`
	SourcePath      string   `json:"source_path"`
	DestinationPath string   `json:"destination_path"`
	StatusCode      int      `json:"status_code"`
	Priority        int      `json:"priority"`
	Active          bool     `json:"active"`
	Description     string   `json:"description,omitempty"`
	HitCount        int64    `json:"hit_count"`
	LastHitAtNs     int64    `json:"last_hit_at_ns"`
	CreatedAtNs     int64    `json:"created_at_ns"`
	UpdatedAtNs     int64    `json:"updated_at_ns"`
}

// Gone reports whether the rule encodes a permanent removal.
func (r *RedirectRule) Gone() bool { return r.StatusCode == 410 }

// ValidRedirectStatus reports whether code is allowed for a redirect rule.
func ValidRedirectStatus(code int) bool {
	switch code {
	case 301, 302, 307, 308, 410:
		return true
	}
	return false
}

// ResolvedRedirect is the outcome of a successful rule lookup.
type ResolvedRedirect struct {
	RuleID          string `json:"rule_id"`
	DestinationPath string `json:"destination_path,omitempty"`
	StatusCode      int    `json:"status_code"`
}

// Gone reports whether the resolution is a "gone" signal rather than a
// redirect target.
func (r *ResolvedRedirect) Gone() bool { return r.StatusCode == 410 }

// Severity classifies an error log record.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RequestContext is the sanitized request snapshot attached to an error log
// record. It is built once at the dispatch boundary; secrets are already
// redacted by the time a RequestContext exists.
type RequestContext struct {
	Method           string            `json:"method,omitempty"`
	URL              string            `json:"url,omitempty"`
	Query            string            `json:"query,omitempty"`
	Referrer         string            `json:"referrer,omitempty"`
	ExternalReferrer bool              `json:"external_referrer,omitempty"`
	UserAgent        string            `json:"user_agent,omitempty"`
	ClientIP         string            `json:"client_ip,omitempty"`
	CountryCode      string            `json:"country_code,omitempty"`
	UserID           string            `json:"user_id,omitempty"`
	SessionID        string            `json:"session_id,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

// ErrorLogRecord is one observed failure.
type ErrorLogRecord struct {
	ID             string         `json:"id"`
	Code           string         `json:"code"`
	Message        string         `json:"message"`
	Severity       Severity       `json:"severity"`
	RequestContext RequestContext `json:"request_context"`
	OccurredAtNs   int64          `json:"occurred_at_ns"`
	Resolved       bool           `json:"resolved"`
	ResolvedBy     string         `json:"resolved_by,omitempty"`
	ResolvedAtNs   int64          `json:"resolved_at_ns,omitempty"`
}
