package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rerouteio/reroute/internal/model"
)

func newTestRecord(code string, severity model.Severity, occurredAt int64) model.ErrorLogRecord {
	return model.ErrorLogRecord{
		ID:           uuid.NewString(),
		Code:         code,
		Message:      "test " + code,
		Severity:     severity,
		OccurredAtNs: occurredAt,
		RequestContext: model.RequestContext{
			Method: "GET",
			URL:    "/some/path",
		},
	}
}

func TestErrorLogRepo_InsertAndGet(t *testing.T) {
	repo := NewErrorLogRepo(openTestDB(t))
	ctx := context.Background()

	rec := newTestRecord("404", model.SeverityLow, time.Now().UnixNano())
	id, err := repo.Insert(ctx, &rec)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != rec.ID {
		t.Errorf("id: got %q, want %q", id, rec.ID)
	}

	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Code != "404" || got.Severity != model.SeverityLow {
		t.Errorf("round trip: got code=%q severity=%q", got.Code, got.Severity)
	}
	if got.RequestContext.URL != "/some/path" {
		t.Errorf("context url: got %q", got.RequestContext.URL)
	}
	if got.Resolved {
		t.Error("new record should be unresolved")
	}
}

func TestErrorLogRepo_InsertBatch(t *testing.T) {
	repo := NewErrorLogRepo(openTestDB(t))
	ctx := context.Background()

	now := time.Now().UnixNano()
	recs := []model.ErrorLogRecord{
		newTestRecord("404", model.SeverityLow, now),
		newTestRecord("500", model.SeverityCritical, now+1),
	}
	// Duplicate id rows are ignored, not fatal.
	recs = append(recs, recs[0])

	n, err := repo.InsertBatch(ctx, recs)
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted: got %d, want 2", n)
	}
}

func TestErrorLogRepo_ListFilters(t *testing.T) {
	repo := NewErrorLogRepo(openTestDB(t))
	ctx := context.Background()

	base := time.Now().UnixNano()
	older := newTestRecord("404", model.SeverityLow, base-1000)
	newer := newTestRecord("500", model.SeverityCritical, base)
	for _, rec := range []model.ErrorLogRecord{older, newer} {
		if _, err := repo.Insert(ctx, &rec); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	items, total, err := repo.List(ctx, ErrorLogFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("list all: got total=%d len=%d", total, len(items))
	}
	if items[0].ID != newer.ID {
		t.Error("list should be newest first")
	}

	items, _, err = repo.List(ctx, ErrorLogFilter{Code: "404"})
	if err != nil {
		t.Fatalf("List code filter: %v", err)
	}
	if len(items) != 1 || items[0].ID != older.ID {
		t.Errorf("code filter: got %d items", len(items))
	}

	items, _, err = repo.List(ctx, ErrorLogFilter{Severity: model.SeverityCritical})
	if err != nil {
		t.Fatalf("List severity filter: %v", err)
	}
	if len(items) != 1 || items[0].ID != newer.ID {
		t.Errorf("severity filter: got %d items", len(items))
	}

	items, _, err = repo.List(ctx, ErrorLogFilter{After: base - 1})
	if err != nil {
		t.Fatalf("List after filter: %v", err)
	}
	if len(items) != 1 || items[0].ID != newer.ID {
		t.Errorf("after filter: got %d items", len(items))
	}
}

func TestErrorLogRepo_Resolve(t *testing.T) {
	repo := NewErrorLogRepo(openTestDB(t))
	ctx := context.Background()

	rec := newTestRecord("404", model.SeverityLow, time.Now().UnixNano())
	if _, err := repo.Insert(ctx, &rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := repo.Resolve(ctx, rec.ID, "operator"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got, err := repo.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Resolved || got.ResolvedBy != "operator" || got.ResolvedAtNs == 0 {
		t.Errorf("resolve: got resolved=%v by=%q at=%d", got.Resolved, got.ResolvedBy, got.ResolvedAtNs)
	}

	if err := repo.Resolve(ctx, "no-such-id", "operator"); !errors.Is(err, ErrNotFound) {
		t.Errorf("resolve missing: got %v, want ErrNotFound", err)
	}

	unresolved := false
	items, _, err := repo.List(ctx, ErrorLogFilter{Resolved: &unresolved})
	if err != nil {
		t.Fatalf("List unresolved: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("unresolved: got %d items, want 0", len(items))
	}
}

func TestErrorLogRepo_DeleteOlderThan(t *testing.T) {
	repo := NewErrorLogRepo(openTestDB(t))
	ctx := context.Background()

	now := time.Now()
	old := newTestRecord("404", model.SeverityLow, now.Add(-48*time.Hour).UnixNano())
	fresh := newTestRecord("404", model.SeverityLow, now.UnixNano())
	for _, rec := range []model.ErrorLogRecord{old, fresh} {
		if _, err := repo.Insert(ctx, &rec); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	n, err := repo.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted: got %d, want 1", n)
	}
	if _, err := repo.Get(ctx, fresh.ID); err != nil {
		t.Errorf("fresh record should survive: %v", err)
	}
	if _, err := repo.Get(ctx, old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old record should be gone, got %v", err)
	}
}
