package errorlog

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/rerouteio/reroute/internal/model"
)

// CountryLookup resolves a client IP to an ISO country code. May be nil.
type CountryLookup func(ip string) string

// BuildRequestContext captures a sanitized snapshot of the request for error
// logging. Secrets are redacted here, at the boundary, so everything
// downstream only ever sees clean data.
func BuildRequestContext(r *http.Request, country CountryLookup) model.RequestContext {
	referrer := r.Referer()
	clientIP := clientIP(r)

	reqCtx := model.RequestContext{
		Method:           r.Method,
		URL:              r.URL.Path,
		Query:            SanitizeQuery(r.URL.RawQuery),
		Referrer:         referrer,
		ExternalReferrer: isExternalReferrer(referrer, r.Host),
		UserAgent:        r.UserAgent(),
		ClientIP:         clientIP,
		UserID:           r.Header.Get("X-User-ID"),
		SessionID:        r.Header.Get("X-Session-ID"),
		Headers:          SanitizeHeaders(r.Header),
	}
	if country != nil && clientIP != "" {
		reqCtx.CountryCode = country(clientIP)
	}
	return reqCtx
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isExternalReferrer compares registrable domains, so blog.example.com and
// shop.example.com count as the same site.
func isExternalReferrer(referrer, host string) bool {
	if referrer == "" || host == "" {
		return false
	}
	refURL, err := url.Parse(referrer)
	if err != nil || refURL.Hostname() == "" {
		return false
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	refDomain, err := publicsuffix.EffectiveTLDPlusOne(refURL.Hostname())
	if err != nil {
		return true
	}
	hostDomain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return true
	}
	return refDomain != hostDomain
}
