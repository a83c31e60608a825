package httpapi

import (
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rerouteio/reroute/internal/errorlog"
	"github.com/rerouteio/reroute/internal/recovery"
)

// Dispatcher is the single entry point for failed requests. It classifies
// the failure through the recovery engine and writes the outcome exactly
// once: a response that was already sent is never written to again.
type Dispatcher struct {
	engine  *recovery.Engine
	country errorlog.CountryLookup
}

// NewDispatcher creates a Dispatcher. country may be nil.
func NewDispatcher(engine *recovery.Engine, country errorlog.CountryLookup) *Dispatcher {
	return &Dispatcher{engine: engine, country: country}
}

// Dispatch classifies and renders one failure. status is the upstream HTTP
// outcome; cause may be nil. If the response has already been written this
// is a framework-ordering bug: it is logged and nothing else happens.
func (d *Dispatcher) Dispatch(w http.ResponseWriter, r *http.Request, status int, cause error) {
	if tw, ok := w.(*trackingWriter); ok && tw.Written() {
		log.Printf("[dispatch] warning: response already sent for %s %s, skipping status=%d", r.Method, r.URL.Path, status)
		return
	}

	action := d.engine.Handle(r.Context(), recovery.Input{
		Status:  status,
		Cause:   cause,
		Path:    r.URL.Path,
		Query:   r.URL.Query(),
		Context: errorlog.BuildRequestContext(r, d.country),
	})
	d.render(w, r, action)
}

// Middleware wraps next with panic recovery and failed-response tracking.
// A panic becomes a dispatched 500; nothing else about next changes.
func (d *Dispatcher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &trackingWriter{ResponseWriter: w}
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[dispatch] panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				d.Dispatch(tw, r, http.StatusInternalServerError, panicError{value: rec})
			}
		}()
		next.ServeHTTP(tw, r)
	})
}

// NotFoundHandler returns a handler that routes unmatched paths into the
// recovery machine, for use as a mux fallback.
func (d *Dispatcher) NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.Dispatch(w, r, http.StatusNotFound, nil)
	})
}

func (d *Dispatcher) render(w http.ResponseWriter, r *http.Request, action recovery.Action) {
	switch action.Kind {
	case recovery.ActionRedirect:
		http.Redirect(w, r, action.Location, action.Status)

	case recovery.ActionGone:
		WriteJSON(w, action.Status, goneBody{
			Error:        ErrorDetail{Code: action.Code, Message: action.Message},
			Legacy:       action.Legacy,
			LegacyReason: action.LegacyReason,
			Alternatives: action.Alternatives,
			Path:         r.URL.Path,
		})

	case recovery.ActionNotFound:
		if wantsJSON(r) {
			suggestions := action.Suggestions
			if suggestions == nil {
				suggestions = []string{}
			}
			WriteJSON(w, action.Status, notFoundBody{
				Error:       ErrorDetail{Code: action.Code, Message: action.Message},
				Suggestions: suggestions,
				Path:        r.URL.Path,
			})
			return
		}
		renderNotFoundPage(w, r.URL.Path, action.Suggestions)

	case recovery.ActionRetryLater:
		seconds := int(action.RetryAfter / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		WriteJSON(w, action.Status, retryBody{
			Error:             ErrorDetail{Code: action.Code, Message: action.Message},
			Retryable:         true,
			RetryAfterSeconds: seconds,
		})

	case recovery.ActionLegalBlock:
		WriteJSON(w, action.Status, legalBody{
			Error:   ErrorDetail{Code: action.Code, Message: action.Message},
			Contact: action.Contact,
		})

	default:
		WriteJSON(w, action.Status, genericErrorBody{
			Error:     ErrorDetail{Code: action.Code, Message: action.Message},
			Status:    action.Status,
			Path:      r.URL.Path,
			Method:    r.Method,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

type goneBody struct {
	Error        ErrorDetail `json:"error"`
	Legacy       bool        `json:"legacy"`
	LegacyReason string      `json:"legacy_reason,omitempty"`
	Alternatives []string    `json:"alternatives"`
	Path         string      `json:"path"`
}

type notFoundBody struct {
	Error       ErrorDetail `json:"error"`
	Suggestions []string    `json:"suggestions"`
	Path        string      `json:"path"`
}

type retryBody struct {
	Error             ErrorDetail `json:"error"`
	Retryable         bool        `json:"retryable"`
	RetryAfterSeconds int         `json:"retry_after_seconds"`
}

type legalBody struct {
	Error   ErrorDetail `json:"error"`
	Contact string      `json:"contact"`
}

type genericErrorBody struct {
	Error     ErrorDetail `json:"error"`
	Status    int         `json:"status"`
	Path      string      `json:"path"`
	Method    string      `json:"method"`
	Timestamp string      `json:"timestamp"`
}

// wantsJSON reports whether the request is API-style: JSON Accept header,
// XHR marker, or an /api/ path.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}

var notFoundPage = template.Must(template.New("notfound").Parse(`<!doctype html>
<html>
<head><title>Page not found</title></head>
<body>
<h1>Page not found</h1>
<p>The page <code>{{.Path}}</code> does not exist.</p>
{{if .Suggestions}}<p>You might be looking for:</p>
<ul>{{range .Suggestions}}<li><a href="{{.}}">{{.}}</a></li>{{end}}</ul>{{end}}
</body>
</html>
`))

func renderNotFoundPage(w http.ResponseWriter, path string, suggestions []string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_ = notFoundPage.Execute(w, struct {
		Path        string
		Suggestions []string
	}{Path: path, Suggestions: suggestions})
}

// trackingWriter records whether the wrapped ResponseWriter has been written
// to, so Dispatch can detect a double write.
type trackingWriter struct {
	http.ResponseWriter
	wrote  bool
	status int
}

func (t *trackingWriter) WriteHeader(code int) {
	if !t.wrote {
		t.wrote = true
		t.status = code
	}
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	if !t.wrote {
		t.wrote = true
		t.status = http.StatusOK
	}
	return t.ResponseWriter.Write(b)
}

// Written reports whether anything has been sent to the client.
func (t *trackingWriter) Written() bool { return t.wrote }

// Status returns the first status code written, or 0.
func (t *trackingWriter) Status() int { return t.status }

type panicError struct{ value any }

func (p panicError) Error() string {
	if err, ok := p.value.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("panic: %v", p.value)
}
