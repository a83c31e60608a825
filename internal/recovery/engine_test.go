package recovery

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/rerouteio/reroute/internal/model"
)

type fakeResolver struct {
	byPath map[string]*model.ResolvedRedirect
}

func (f *fakeResolver) Resolve(ctx context.Context, path string) *model.ResolvedRedirect {
	return f.byPath[path]
}

type fakeSuggester struct {
	out []string
}

func (f *fakeSuggester) Suggest(path string) []string { return f.out }

type capturedLogs struct {
	records []model.ErrorLogRecord
}

func (c *capturedLogs) Log(rec model.ErrorLogRecord) { c.records = append(c.records, rec) }

func newTestEngine(resolver *fakeResolver, logs *capturedLogs) *Engine {
	return New(resolver, &fakeSuggester{out: []string{"/products", "/"}}, logs, Config{
		RetryAfter:   7 * time.Second,
		LegalContact: "legal@corp.example",
	})
}

func TestHandle_NotFoundWithMatchingRule(t *testing.T) {
	resolver := &fakeResolver{byPath: map[string]*model.ResolvedRedirect{
		"/old": {RuleID: "r1", DestinationPath: "/new", StatusCode: 301},
	}}
	logs := &capturedLogs{}
	e := newTestEngine(resolver, logs)

	action := e.Handle(context.Background(), Input{Status: 404, Path: "/old"})
	if action.Kind != ActionRedirect {
		t.Fatalf("kind: got %q, want redirect", action.Kind)
	}
	if action.Location != "/new" || action.Status != 301 {
		t.Errorf("got %q status %d, want /new 301", action.Location, action.Status)
	}
	// A successful rewrite is not an error; nothing is logged.
	if len(logs.records) != 0 {
		t.Errorf("logged %d records, want 0", len(logs.records))
	}
}

func TestHandle_NotFoundUnresolved(t *testing.T) {
	logs := &capturedLogs{}
	e := newTestEngine(&fakeResolver{}, logs)

	action := e.Handle(context.Background(), Input{Status: 404, Path: "/nonexistent"})
	if action.Kind != ActionNotFound || action.Status != 404 {
		t.Fatalf("got kind=%q status=%d", action.Kind, action.Status)
	}
	if len(action.Suggestions) == 0 {
		t.Error("unresolved 404 should carry suggestions")
	}

	if len(logs.records) != 1 {
		t.Fatalf("logged %d records, want 1", len(logs.records))
	}
	rec := logs.records[0]
	if rec.Code != "404" || rec.Severity != model.SeverityLow {
		t.Errorf("record: code=%q severity=%q", rec.Code, rec.Severity)
	}
	if _, ok := rec.RequestContext.Metadata["suggestions"]; !ok {
		t.Error("record metadata should include suggestions")
	}
}

func TestHandle_NotFoundGoneRule(t *testing.T) {
	resolver := &fakeResolver{byPath: map[string]*model.ResolvedRedirect{
		"/dead": {RuleID: "g1", StatusCode: 410},
	}}
	logs := &capturedLogs{}
	e := newTestEngine(resolver, logs)

	action := e.Handle(context.Background(), Input{Status: 404, Path: "/dead"})
	if action.Kind != ActionGone || action.Status != 410 {
		t.Fatalf("got kind=%q status=%d, want gone 410", action.Kind, action.Status)
	}
	if action.Location != "" {
		t.Errorf("gone action must carry no location, got %q", action.Location)
	}
	if len(action.Alternatives) == 0 {
		t.Error("gone action should carry alternatives")
	}
	if len(logs.records) != 1 || logs.records[0].Severity != model.SeverityMedium {
		t.Errorf("gone should log one medium record, got %+v", logs.records)
	}
}

func TestHandle_NotFoundLegacyShape(t *testing.T) {
	logs := &capturedLogs{}
	e := newTestEngine(&fakeResolver{}, logs)

	action := e.Handle(context.Background(), Input{Status: 404, Path: "/shop/item.php"})
	if action.Kind != ActionGone {
		t.Fatalf("legacy path should map to gone, got %q", action.Kind)
	}
	if !action.Legacy || action.LegacyReason != "old_extension" {
		t.Errorf("got legacy=%v reason=%q", action.Legacy, action.LegacyReason)
	}
}

func TestHandle_LegacyShapeStillResolvesRules(t *testing.T) {
	// An explicit rule on a legacy-shaped path wins over the legacy response.
	resolver := &fakeResolver{byPath: map[string]*model.ResolvedRedirect{
		"/item.php": {RuleID: "r1", DestinationPath: "/items", StatusCode: 301},
	}}
	e := newTestEngine(resolver, &capturedLogs{})

	action := e.Handle(context.Background(), Input{Status: 404, Path: "/item.php"})
	if action.Kind != ActionRedirect || action.Location != "/items" {
		t.Fatalf("rule should beat legacy handling, got %+v", action)
	}
}

func TestHandle_ExplicitGoneWithReplacementRule(t *testing.T) {
	resolver := &fakeResolver{byPath: map[string]*model.ResolvedRedirect{
		"/retired": {RuleID: "r2", DestinationPath: "/successor", StatusCode: 302},
	}}
	e := newTestEngine(resolver, &capturedLogs{})

	action := e.Handle(context.Background(), Input{Status: 410, Path: "/retired"})
	if action.Kind != ActionRedirect || action.Location != "/successor" || action.Status != 302 {
		t.Fatalf("410 with replacement rule should redirect, got %+v", action)
	}
}

func TestHandle_PreconditionFailed(t *testing.T) {
	logs := &capturedLogs{}
	e := newTestEngine(&fakeResolver{}, logs)

	cause := errors.New("If-Match did not match")
	action := e.Handle(context.Background(), Input{Status: 412, Path: "/doc", Cause: cause})
	if action.Kind != ActionRetryLater || action.Status != 412 {
		t.Fatalf("got kind=%q status=%d", action.Kind, action.Status)
	}
	if action.RetryAfter != 7*time.Second {
		t.Errorf("retry after: got %v, want 7s", action.RetryAfter)
	}
	if len(logs.records) != 1 {
		t.Fatalf("logged %d records, want 1", len(logs.records))
	}
	if logs.records[0].RequestContext.Metadata["condition"] != "If-Match did not match" {
		t.Error("condition should be captured in metadata")
	}
}

func TestHandle_LegalBlock(t *testing.T) {
	logs := &capturedLogs{}
	e := newTestEngine(&fakeResolver{}, logs)

	action := e.Handle(context.Background(), Input{Status: 451, Path: "/blocked"})
	if action.Kind != ActionLegalBlock || action.Status != 451 {
		t.Fatalf("got kind=%q status=%d", action.Kind, action.Status)
	}
	if action.Contact != "legal@corp.example" {
		t.Errorf("contact: got %q", action.Contact)
	}
	if len(logs.records) != 1 || logs.records[0].Code != "451" {
		t.Errorf("legal block should log a 451 record, got %+v", logs.records)
	}
}

func TestHandle_GenericErrorClassified(t *testing.T) {
	logs := &capturedLogs{}
	e := newTestEngine(&fakeResolver{}, logs)

	action := e.Handle(context.Background(), Input{
		Status: 500,
		Path:   "/whatever",
		Cause:  errors.New("database connection timeout"),
	})
	if action.Kind != ActionError || action.Status != 500 {
		t.Fatalf("got kind=%q status=%d", action.Kind, action.Status)
	}
	if len(logs.records) != 1 {
		t.Fatalf("logged %d records, want 1", len(logs.records))
	}
	if logs.records[0].Severity != model.SeverityCritical {
		t.Errorf("severity: got %q, want critical", logs.records[0].Severity)
	}
}

func TestHandle_NumericIDQueryLegacy(t *testing.T) {
	e := newTestEngine(&fakeResolver{}, &capturedLogs{})

	action := e.Handle(context.Background(), Input{
		Status: 404,
		Path:   "/view",
		Query:  url.Values{"id": {"42"}},
	})
	if action.Kind != ActionGone || action.LegacyReason != "numeric_id_query" {
		t.Fatalf("got %+v", action)
	}
}

func TestHandle_NilWriterAndSuggester(t *testing.T) {
	e := New(&fakeResolver{}, nil, nil, Config{})

	action := e.Handle(context.Background(), Input{Status: 404, Path: "/x"})
	if action.Kind != ActionNotFound {
		t.Fatalf("got %q", action.Kind)
	}
	if action.Suggestions != nil && len(action.Suggestions) != 0 {
		t.Errorf("nil suggester should yield no suggestions, got %v", action.Suggestions)
	}
}
