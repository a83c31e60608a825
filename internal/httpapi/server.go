package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/rerouteio/reroute/internal/config"
	"github.com/rerouteio/reroute/internal/resolve"
	"github.com/rerouteio/reroute/internal/store"
	"github.com/rerouteio/reroute/internal/suggest"
)

// Server wraps the HTTP server and mux for the redirect engine.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// NewServer creates a server wired with all routes.
//
// Every path that no route claims falls through to the dispatcher, which runs
// the resolution and recovery chain. That fallback is the redirect engine's
// public face: old URLs arrive as unmatched requests and leave as redirects,
// gone notices, or recovery pages.
func NewServer(
	envCfg *config.EnvConfig,
	rules *store.RuleRepo,
	errLogs *store.ErrorLogRepo,
	resolver *resolve.Resolver,
	suggester *suggest.Engine,
	cache CacheInvalidator,
	hits HitFlusher,
	dispatcher *Dispatcher,
) *Server {
	mux := http.NewServeMux()

	// Public (no auth)
	mux.Handle("GET /healthz", HandleHealthz())

	// Authenticated routes
	authed := http.NewServeMux()

	// Effective configuration.
	authed.Handle("GET /api/v1/config", HandleEnvConfig(envCfg))

	// Redirect rules.
	authed.Handle("GET /api/v1/rules", HandleListRules(rules))
	authed.Handle("POST /api/v1/rules", HandleCreateRule(rules, cache))
	authed.Handle("GET /api/v1/rules/{id}", HandleGetRule(rules))
	authed.Handle("PATCH /api/v1/rules/{id}", HandleUpdateRule(rules, cache))
	authed.Handle("DELETE /api/v1/rules/{id}", HandleDeleteRule(rules, cache))
	authed.Handle("GET /api/v1/rules/{id}/stats", HandleRuleStats(rules, hits))

	// Error logs.
	authed.Handle("GET /api/v1/error-logs", HandleListErrorLogs(errLogs))
	authed.Handle("GET /api/v1/error-logs/{id}", HandleGetErrorLog(errLogs))
	authed.Handle("POST /api/v1/error-logs/{id}/actions/resolve", HandleResolveErrorLog(errLogs))

	// Lookup previews.
	authed.Handle("GET /api/v1/resolve", HandleResolvePreview(resolver))
	authed.Handle("GET /api/v1/suggestions", HandleSuggestions(suggester))

	limitedAuthed := RequestBodyLimitMiddleware(int64(envCfg.APIMaxBodyBytes), authed)
	mux.Handle("/api/", AuthMiddleware(envCfg.AdminToken, limitedAuthed))

	// Everything else is a candidate redirect.
	mux.Handle("/", dispatcher.NotFoundHandler())

	handler := dispatcher.Middleware(mux)
	srv := &http.Server{
		Addr:    net.JoinHostPort(envCfg.ListenAddress, strconv.Itoa(envCfg.Port)),
		Handler: handler,
	}

	return &Server{
		httpServer: srv,
		handler:    handler,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
