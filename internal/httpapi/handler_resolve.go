package httpapi

import (
	"net/http"
	"strings"

	"github.com/rerouteio/reroute/internal/resolve"
	"github.com/rerouteio/reroute/internal/suggest"
)

func pathQueryOrWriteInvalid(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := r.URL.Query().Get("path")
	if path == "" || !strings.HasPrefix(path, "/") {
		writeInvalidArgument(w, "path: must be a non-empty absolute path")
		return "", false
	}
	return path, true
}

// HandleResolvePreview returns a handler for GET /api/v1/resolve.
// It runs the full lookup chain without redirecting, for rule debugging.
func HandleResolvePreview(resolver *resolve.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, ok := pathQueryOrWriteInvalid(w, r)
		if !ok {
			return
		}
		res := resolver.Resolve(r.Context(), path)
		if res == nil {
			WriteError(w, http.StatusNotFound, "NO_MATCH", "no rule matches "+path)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"path":       path,
			"resolution": res,
			"gone":       res.Gone(),
		})
	}
}

// HandleSuggestions returns a handler for GET /api/v1/suggestions.
func HandleSuggestions(engine *suggest.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, ok := pathQueryOrWriteInvalid(w, r)
		if !ok {
			return
		}
		suggestions := engine.Suggest(path)
		if suggestions == nil {
			suggestions = []string{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"path":        path,
			"suggestions": suggestions,
		})
	}
}
