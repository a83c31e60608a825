// Package resolve implements the layered redirect lookup: exact index,
// prioritized regex rules, then the legacy wildcard fallback.
package resolve

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/rerouteio/reroute/internal/model"
	"github.com/rerouteio/reroute/internal/rulecache"
)

// WildcardFinder is the slice of the store the wildcard fallback needs.
type WildcardFinder interface {
	FindWildcardRules(ctx context.Context) ([]model.RedirectRule, error)
}

// HitRecorder receives fire-and-forget hit telemetry for matched rules.
type HitRecorder interface {
	Record(ruleID string)
}

// Resolver performs redirect lookups. First match wins: exact beats regex
// beats wildcard; regex rules are consulted in the snapshot's stored order.
type Resolver struct {
	cache           *rulecache.Cache
	store           WildcardFinder
	hits            HitRecorder
	wildcardTimeout time.Duration
}

// New creates a Resolver. hits may be nil to disable telemetry.
func New(cache *rulecache.Cache, store WildcardFinder, hits HitRecorder, wildcardTimeout time.Duration) *Resolver {
	if wildcardTimeout <= 0 {
		wildcardTimeout = 2 * time.Second
	}
	return &Resolver{cache: cache, store: store, hits: hits, wildcardTimeout: wildcardTimeout}
}

// Resolve returns the redirect for path, or nil when no rule matches.
// A result with status 410 is a "gone" signal and carries no destination.
func (r *Resolver) Resolve(ctx context.Context, path string) *model.ResolvedRedirect {
	snap := r.cache.Snapshot(ctx)

	if rule, ok := snap.Exact[path]; ok {
		return r.emit(&rule, rule.DestinationPath)
	}

	for i := range snap.Regex {
		cr := &snap.Regex[i]
		idx := cr.Pattern.FindStringSubmatchIndex(path)
		if idx == nil {
			continue
		}
		dest := string(cr.Pattern.ExpandString(nil, cr.Rule.DestinationPath, path, idx))
		return r.emit(&cr.Rule, dest)
	}

	return r.resolveWildcard(ctx, path)
}

// resolveWildcard queries the store directly for legacy '*' rules. Wildcard
// rules are rare enough that they skip the cache; the query carries its own
// timeout and degrades to no-match.
func (r *Resolver) resolveWildcard(ctx context.Context, path string) *model.ResolvedRedirect {
	findCtx, cancel := context.WithTimeout(ctx, r.wildcardTimeout)
	defer cancel()

	rules, err := r.store.FindWildcardRules(findCtx)
	if err != nil {
		log.Printf("[resolve] wildcard fallback lookup failed: %v", err)
		return nil
	}

	for i := range rules {
		rule := &rules[i]
		re, err := regexp.Compile(wildcardToRegex(rule.SourcePath))
		if err != nil {
			log.Printf("[resolve] debug: skip malformed wildcard rule id=%q pattern=%q: %v", rule.ID, rule.SourcePath, err)
			continue
		}
		idx := re.FindStringSubmatchIndex(path)
		if idx == nil {
			continue
		}
		dest := string(re.ExpandString(nil, rule.DestinationPath, path, idx))
		return r.emit(rule, dest)
	}
	return nil
}

// emit builds the result and records hit telemetry. Recording is
// fire-and-forget: it must never delay or fail the redirect.
func (r *Resolver) emit(rule *model.RedirectRule, dest string) *model.ResolvedRedirect {
	res := &model.ResolvedRedirect{RuleID: rule.ID, StatusCode: rule.StatusCode}
	if !rule.Gone() {
		res.DestinationPath = dest
	}
	if r.hits != nil {
		r.hits.Record(rule.ID)
	}
	return res
}

// wildcardToRegex converts a legacy glob pattern to an anchored regex. Each
// '*' becomes a capture group, so destinations can reference $1, $2, ... in
// placeholder order.
func wildcardToRegex(pattern string) string {
	var b strings.Builder
	b.WriteByte('^')
	for _, part := range strings.SplitAfter(pattern, "*") {
		if strings.HasSuffix(part, "*") {
			b.WriteString(regexp.QuoteMeta(strings.TrimSuffix(part, "*")))
			b.WriteString("(.*)")
		} else {
			b.WriteString(regexp.QuoteMeta(part))
		}
	}
	b.WriteByte('$')
	return b.String()
}
