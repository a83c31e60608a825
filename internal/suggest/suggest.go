// Package suggest derives best-effort alternative paths for unresolved 404s.
package suggest

import (
	"net/url"
	"strings"

	"github.com/maypok86/otter"
)

// MaxSuggestions bounds every result.
const MaxSuggestions = 5

// Engine generates suggestions from path-segment keywords. It never fails:
// any internal problem yields an empty list.
type Engine struct {
	sections []Section
	cache    otter.Cache[string, []string]
}

// New creates an Engine with the given section table and a bounded per-path
// memo cache.
func New(sections []Section, cacheSize int) *Engine {
	if len(sections) == 0 {
		sections = DefaultSections()
	}
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, err := otter.MustBuilder[string, []string](cacheSize).
		Cost(func(_ string, _ []string) uint32 { return 1 }).
		Build()
	if err != nil {
		panic("suggest: failed to create memo cache: " + err.Error())
	}
	return &Engine{sections: sections, cache: cache}
}

// Suggest returns at most MaxSuggestions alternative paths for path.
func (e *Engine) Suggest(path string) []string {
	if cached, ok := e.cache.Get(path); ok {
		return cached
	}

	keywords := extractKeywords(path)
	var out []string
	seen := make(map[string]bool)

	add := func(s string) {
		if len(out) >= MaxSuggestions || s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	// Section matches first: a keyword naming a known area is the strongest
	// signal of what the visitor was after.
	for _, section := range e.sections {
		if sectionMatches(section, keywords) {
			add(section.Path)
		}
	}

	// Product-like paths get a search query built from the keywords plus the
	// generic discovery links.
	if looksProductLike(path, keywords) {
		if q := searchQuery(keywords); q != "" {
			add("/search?q=" + url.QueryEscape(q))
		}
		add("/products")
		add("/categories")
	}

	if len(out) == 0 {
		if q := searchQuery(keywords); q != "" {
			add("/search?q=" + url.QueryEscape(q))
		}
		add("/")
	}

	e.cache.Set(path, out)
	return out
}

// extractKeywords tokenizes path segments into lowercase keywords, treating
// '-' and '_' as word separators.
func extractKeywords(path string) []string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	replacer := strings.NewReplacer("-", " ", "_", " ")
	var keywords []string
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}
		for _, word := range strings.Fields(replacer.Replace(strings.ToLower(segment))) {
			keywords = append(keywords, word)
		}
	}
	return keywords
}

func sectionMatches(section Section, keywords []string) bool {
	for _, kw := range keywords {
		for _, sk := range section.Keywords {
			if kw == sk {
				return true
			}
		}
	}
	return false
}

// looksProductLike reports whether the path resembles a product URL: a
// '/product'-style segment or a purely numeric segment (an old catalog id).
func looksProductLike(path string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "product" || kw == "products" || kw == "item" || kw == "sku" {
			return true
		}
	}
	for _, segment := range strings.Split(path, "/") {
		if segment != "" && isNumeric(segment) {
			return true
		}
	}
	return false
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// searchQuery joins the non-numeric keywords into a search term.
func searchQuery(keywords []string) string {
	var words []string
	for _, kw := range keywords {
		if !isNumeric(kw) {
			words = append(words, kw)
		}
	}
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.Join(words, " ")
}
