// Package recovery maps failed-request statuses to recovery actions: rewrite,
// gone, retry-later, legal block, or a structured error.
package recovery

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/rerouteio/reroute/internal/model"
)

// ActionKind tags a recovery decision.
type ActionKind string

const (
	ActionRedirect   ActionKind = "redirect"
	ActionGone       ActionKind = "gone"
	ActionNotFound   ActionKind = "not_found"
	ActionRetryLater ActionKind = "retry_later"
	ActionLegalBlock ActionKind = "legal_block"
	ActionError      ActionKind = "error"
)

// Action is the state machine's decision for one failed request. Exactly one
// of the kind-specific fields is meaningful for each kind.
type Action struct {
	Kind   ActionKind
	Status int

	// ActionRedirect
	Location string

	// ActionNotFound
	Suggestions []string

	// ActionGone
	Alternatives []string
	Legacy       bool
	LegacyReason string

	// ActionRetryLater
	RetryAfter time.Duration

	// ActionLegalBlock
	Contact string

	// All kinds
	Code    string
	Message string
}

// RedirectResolver is the slice of the resolution engine the machine needs.
type RedirectResolver interface {
	Resolve(ctx context.Context, path string) *model.ResolvedRedirect
}

// Suggester produces alternative paths for unresolved 404s.
type Suggester interface {
	Suggest(path string) []string
}

// LogWriter receives error records. Log is fire-and-forget; implementations
// must never propagate failures back here.
type LogWriter interface {
	Log(rec model.ErrorLogRecord)
}

// Config holds the fixed response parameters.
type Config struct {
	// RetryAfter is the suggested delay for 412 responses.
	RetryAfter time.Duration
	// LegalContact is the static contact reference for 451 responses.
	LegalContact string
}

// Engine is the error classification and recovery state machine. It is
// stateless per request: every decision derives from the incoming status and
// request context alone.
type Engine struct {
	resolver RedirectResolver
	suggest  Suggester
	writer   LogWriter
	cfg      Config
}

// New creates an Engine. suggest and writer may be nil; both degrade to
// no-ops.
func New(resolver RedirectResolver, suggest Suggester, writer LogWriter, cfg Config) *Engine {
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 5 * time.Second
	}
	return &Engine{resolver: resolver, suggest: suggest, writer: writer, cfg: cfg}
}

// Input describes one failed request.
type Input struct {
	Status  int
	Cause   error
	Path    string
	Query   url.Values
	Context model.RequestContext
}

// Handle runs the state machine for one failure and returns the action the
// caller must render. Logging happens here, through the isolated writer;
// failures in the resolver, suggester, or writer never surface.
func (e *Engine) Handle(ctx context.Context, in Input) Action {
	switch in.Status {
	case 404:
		return e.handleNotFound(ctx, in)
	case 410:
		return e.handleGone(ctx, in, false, "")
	case 412:
		return e.handlePreconditionFailed(in)
	case 451:
		return e.handleLegalBlock(in)
	default:
		return e.handleGeneric(in)
	}
}

func (e *Engine) handleNotFound(ctx context.Context, in Input) Action {
	if res := e.resolver.Resolve(ctx, in.Path); res != nil {
		if res.Gone() {
			return e.handleGone(ctx, in, false, "")
		}
		return Action{
			Kind:     ActionRedirect,
			Status:   res.StatusCode,
			Location: res.DestinationPath,
			Code:     strconv.Itoa(res.StatusCode),
		}
	}

	// Legacy URL shapes become "old link format" responses rather than a
	// generic 404, so historically-indexed links fail in a recognizable way.
	if reason, ok := DetectLegacy(in.Path, in.Query); ok {
		return e.handleGone(ctx, in, true, reason)
	}

	var suggestions []string
	if e.suggest != nil {
		suggestions = e.suggest.Suggest(in.Path)
	}

	in.Context.Metadata = withMetadata(in.Context.Metadata, "suggestions", suggestions)
	e.log("404", "resource not found: "+in.Path, model.SeverityLow, in.Context)

	return Action{
		Kind:        ActionNotFound,
		Status:      404,
		Suggestions: suggestions,
		Code:        "404",
		Message:     "The requested resource was not found.",
	}
}

// handleGone serves both explicit 410s and 404s routed here by the legacy
// detector. A rule with a non-410 status on the same source expresses
// "gone, now available at X" and wins over the gone body.
func (e *Engine) handleGone(ctx context.Context, in Input, legacy bool, legacyReason string) Action {
	if res := e.resolver.Resolve(ctx, in.Path); res != nil && !res.Gone() {
		return Action{
			Kind:     ActionRedirect,
			Status:   res.StatusCode,
			Location: res.DestinationPath,
			Code:     strconv.Itoa(res.StatusCode),
		}
	}

	msg := "resource permanently removed: " + in.Path
	if legacy {
		msg = "legacy link format: " + in.Path
		in.Context.Metadata = withMetadata(in.Context.Metadata, "legacy_reason", legacyReason)
	}
	e.log("410", msg, model.SeverityMedium, in.Context)

	return Action{
		Kind:         ActionGone,
		Status:       410,
		Alternatives: []string{"/", "/products", "/categories"},
		Legacy:       legacy,
		LegacyReason: legacyReason,
		Code:         "410",
		Message:      "This resource has been permanently removed.",
	}
}

// handlePreconditionFailed treats 412 as always recoverable: the caller is
// told to retry after a fixed delay, never escalated.
func (e *Engine) handlePreconditionFailed(in Input) Action {
	if in.Cause != nil {
		in.Context.Metadata = withMetadata(in.Context.Metadata, "condition", in.Cause.Error())
	}
	e.log("412", "precondition failed: "+in.Path, model.SeverityMedium, in.Context)

	return Action{
		Kind:       ActionRetryLater,
		Status:     412,
		RetryAfter: e.cfg.RetryAfter,
		Code:       "412",
		Message:    "A precondition for this request failed. Retry shortly.",
	}
}

func (e *Engine) handleLegalBlock(in Input) Action {
	msg := "unavailable for legal reasons: " + in.Path
	e.log("451", msg, ClassifySeverity("451", msg), in.Context)

	return Action{
		Kind:    ActionLegalBlock,
		Status:  451,
		Contact: e.cfg.LegalContact,
		Code:    "451",
		Message: "This resource is unavailable for legal reasons.",
	}
}

func (e *Engine) handleGeneric(in Input) Action {
	code := strconv.Itoa(in.Status)
	msg := "request failed"
	if in.Cause != nil {
		msg = in.Cause.Error()
	}
	severity := ClassifySeverity(code, msg)
	e.log(code, msg, severity, in.Context)

	return Action{
		Kind:    ActionError,
		Status:  in.Status,
		Code:    code,
		Message: msg,
	}
}

func (e *Engine) log(code, message string, severity model.Severity, reqCtx model.RequestContext) {
	if e.writer == nil {
		return
	}
	e.writer.Log(model.ErrorLogRecord{
		Code:           code,
		Message:        message,
		Severity:       severity,
		RequestContext: reqCtx,
		OccurredAtNs:   time.Now().UnixNano(),
	})
}

func withMetadata(md map[string]any, key string, value any) map[string]any {
	if md == nil {
		md = make(map[string]any, 1)
	}
	md[key] = value
	return md
}
