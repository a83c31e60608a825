// Package rulecache materializes the active redirect rule set into an
// immutable, time-boxed snapshot for fast lookup.
package rulecache

import (
	"context"
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/rerouteio/reroute/internal/model"
)

// CompiledRule pairs a regex rule with its compiled pattern.
type CompiledRule struct {
	Rule    model.RedirectRule
	Pattern *regexp.Regexp
}

// Snapshot is the queryable form of all active rules at a point in time.
// It is immutable once built; a rebuild swaps in a whole new Snapshot.
type Snapshot struct {
	// Exact maps literal source paths to their rules.
	Exact map[string]model.RedirectRule
	// Regex holds compiled regex rules in priority-descending order,
	// equal priorities in creation order. The order comes from the store
	// and is part of the resolution contract.
	Regex []CompiledRule

	BuiltAtNs   int64
	Fingerprint uint64
}

// RuleLister is the slice of the store the cache needs.
type RuleLister interface {
	ListActiveRules(ctx context.Context) ([]model.RedirectRule, error)
}

// Cache owns the current snapshot and rebuilds it lazily on expiry or
// invalidation. Readers never block on each other; at most one rebuild is in
// flight at a time.
type Cache struct {
	store        RuleLister
	ttl          time.Duration
	storeTimeout time.Duration

	snap        atomic.Pointer[Snapshot]
	invalidated atomic.Bool
	rebuildMu   sync.Mutex
}

// New creates a Cache over the given store. ttl bounds snapshot staleness;
// storeTimeout bounds each reload.
func New(store RuleLister, ttl, storeTimeout time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Cache{store: store, ttl: ttl, storeTimeout: storeTimeout}
}

// Snapshot returns a usable snapshot, rebuilding first if the current one is
// missing, expired, or invalidated. If the store is unreachable the last good
// snapshot keeps serving and the retry waits for the next TTL window.
func (c *Cache) Snapshot(ctx context.Context) *Snapshot {
	if s := c.snap.Load(); s != nil && !c.invalidated.Load() && !c.expired(s) {
		return s
	}

	c.rebuildMu.Lock()
	defer c.rebuildMu.Unlock()

	// Another request may have rebuilt while this one waited for the lock.
	if s := c.snap.Load(); s != nil && !c.invalidated.Load() && !c.expired(s) {
		return s
	}
	return c.rebuild(ctx)
}

// Invalidate forces the next lookup to rebuild regardless of TTL. Called by
// the admin write path after any rule mutation.
func (c *Cache) Invalidate() {
	c.invalidated.Store(true)
}

func (c *Cache) expired(s *Snapshot) bool {
	return time.Now().UnixNano()-s.BuiltAtNs > int64(c.ttl)
}

// rebuild is called with rebuildMu held.
func (c *Cache) rebuild(ctx context.Context) *Snapshot {
	loadCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	rules, err := c.store.ListActiveRules(loadCtx)
	if err != nil {
		log.Printf("[rulecache] reload failed, serving last good snapshot: %v", err)
		return c.keepStale()
	}

	now := time.Now().UnixNano()
	fp := fingerprint(rules)

	// An unchanged rule set keeps its compiled patterns; only the clock moves.
	if old := c.snap.Load(); old != nil && old.Fingerprint == fp {
		refreshed := &Snapshot{Exact: old.Exact, Regex: old.Regex, BuiltAtNs: now, Fingerprint: fp}
		c.snap.Store(refreshed)
		c.invalidated.Store(false)
		return refreshed
	}

	s := build(rules, now, fp)
	c.snap.Store(s)
	c.invalidated.Store(false)
	log.Printf("[rulecache] rebuilt snapshot: exact=%d regex=%d", len(s.Exact), len(s.Regex))
	return s
}

// keepStale extends the current snapshot's TTL window after a failed reload
// so request traffic does not hammer an unreachable store. With no last good
// snapshot an empty one is served instead.
func (c *Cache) keepStale() *Snapshot {
	now := time.Now().UnixNano()
	if old := c.snap.Load(); old != nil {
		stale := &Snapshot{Exact: old.Exact, Regex: old.Regex, BuiltAtNs: now, Fingerprint: old.Fingerprint}
		c.snap.Store(stale)
		return stale
	}
	empty := &Snapshot{Exact: map[string]model.RedirectRule{}, BuiltAtNs: now}
	c.snap.Store(empty)
	return empty
}

func build(rules []model.RedirectRule, builtAtNs int64, fp uint64) *Snapshot {
	s := &Snapshot{
		Exact:       make(map[string]model.RedirectRule, len(rules)),
		BuiltAtNs:   builtAtNs,
		Fingerprint: fp,
	}
	for _, rule := range rules {
		switch rule.Kind {
		case model.RuleKindExact:
			s.Exact[rule.SourcePath] = rule
		case model.RuleKindRegex:
			re, err := regexp.Compile(AnchorPattern(rule.SourcePath))
			if err != nil {
				log.Printf("[rulecache] debug: skip malformed regex rule id=%q pattern=%q: %v", rule.ID, rule.SourcePath, err)
				continue
			}
			s.Regex = append(s.Regex, CompiledRule{Rule: rule, Pattern: re})
		case model.RuleKindWildcard:
			// Wildcard rules stay store-backed; the resolver queries them
			// directly as a fallback.
		}
	}
	return s
}

// AnchorPattern pins a rule pattern to the whole path so a regex rule cannot
// accidentally match a substring.
func AnchorPattern(p string) string {
	if !strings.HasPrefix(p, "^") {
		p = "^" + p
	}
	if !strings.HasSuffix(p, "$") {
		p += "$"
	}
	return p
}

// fingerprint hashes the identity and last-modified time of every rule so an
// unchanged set can be detected without comparing rule bodies.
func fingerprint(rules []model.RedirectRule) uint64 {
	var b strings.Builder
	for _, r := range rules {
		b.WriteString(r.ID)
		b.WriteByte('@')
		b.WriteString(strconv.FormatInt(r.UpdatedAtNs, 10))
		b.WriteByte('\n')
	}
	return xxh3.HashString(b.String())
}
