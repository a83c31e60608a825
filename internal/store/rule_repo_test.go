package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rerouteio/reroute/internal/model"
)

func newTestRule(source, dest string, kind model.RuleKind) *model.RedirectRule {
	return &model.RedirectRule{
		Kind:            kind,
		SourcePath:      source,
		DestinationPath: dest,
		StatusCode:      301,
		Active:          true,
	}
}

func TestRuleRepo_CreateAndGet(t *testing.T) {
	repo := NewRuleRepo(openTestDB(t))
	ctx := context.Background()

	rule := newTestRule("/old", "/new", model.RuleKindExact)
	if err := repo.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if rule.ID == "" {
		t.Fatal("CreateRule should assign an id")
	}

	got, err := repo.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.SourcePath != "/old" || got.DestinationPath != "/new" {
		t.Errorf("round trip: got %q -> %q", got.SourcePath, got.DestinationPath)
	}
	if got.Kind != model.RuleKindExact {
		t.Errorf("kind: got %q, want exact", got.Kind)
	}
	if !got.Active {
		t.Error("rule should be active")
	}
}

func TestRuleRepo_GetMissing(t *testing.T) {
	repo := NewRuleRepo(openTestDB(t))

	_, err := repo.GetRule(context.Background(), "no-such-id")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRuleRepo_Validation(t *testing.T) {
	repo := NewRuleRepo(openTestDB(t))
	ctx := context.Background()

	cases := []struct {
		name string
		rule *model.RedirectRule
	}{
		{"empty source", newTestRule("", "/new", model.RuleKindExact)},
		{"bad status", &model.RedirectRule{Kind: model.RuleKindExact, SourcePath: "/a", DestinationPath: "/b", StatusCode: 200}},
		{"exact with star", newTestRule("/a/*", "/b", model.RuleKindExact)},
		{"wildcard without star", newTestRule("/a", "/b", model.RuleKindWildcard)},
		{"invalid regex", newTestRule("^/a(", "/b", model.RuleKindRegex)},
		{"redirect without destination", newTestRule("/a", "", model.RuleKindExact)},
	}
	for _, tc := range cases {
		if err := repo.CreateRule(ctx, tc.rule); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: got %v, want ErrInvalid", tc.name, err)
		}
	}

	// 410 rules need no destination.
	gone := &model.RedirectRule{Kind: model.RuleKindExact, SourcePath: "/dead", StatusCode: 410, Active: true}
	if err := repo.CreateRule(ctx, gone); err != nil {
		t.Errorf("410 rule without destination should be valid: %v", err)
	}
}

func TestRuleRepo_ListActiveRulesOrdering(t *testing.T) {
	repo := NewRuleRepo(openTestDB(t))
	ctx := context.Background()

	// Inserted out of priority order on purpose.
	low := newTestRule("^/low/(.+)$", "/l/$1", model.RuleKindRegex)
	low.Priority = 1
	high := newTestRule("^/high/(.+)$", "/h/$1", model.RuleKindRegex)
	high.Priority = 10
	inactive := newTestRule("/hidden", "/x", model.RuleKindExact)
	inactive.Active = false

	for _, r := range []*model.RedirectRule{low, high, inactive} {
		if err := repo.CreateRule(ctx, r); err != nil {
			t.Fatalf("CreateRule: %v", err)
		}
	}

	rules, err := repo.ListActiveRules(ctx)
	if err != nil {
		t.Fatalf("ListActiveRules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("count: got %d, want 2", len(rules))
	}
	if rules[0].ID != high.ID {
		t.Errorf("first rule: got priority %d, want the priority-10 rule first", rules[0].Priority)
	}
}

func TestRuleRepo_EqualPriorityKeepsCreationOrder(t *testing.T) {
	repo := NewRuleRepo(openTestDB(t))
	ctx := context.Background()

	first := newTestRule("^/a/(.+)$", "/1/$1", model.RuleKindRegex)
	if err := repo.CreateRule(ctx, first); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	// created_at_ns has nanosecond resolution; a tiny sleep keeps it distinct.
	time.Sleep(time.Millisecond)
	second := newTestRule("^/a/(.+)$", "/2/$1", model.RuleKindRegex)
	if err := repo.CreateRule(ctx, second); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	rules, err := repo.ListActiveRules(ctx)
	if err != nil {
		t.Fatalf("ListActiveRules: %v", err)
	}
	if rules[0].ID != first.ID {
		t.Errorf("equal priority: got %s first, want the earlier-created rule", rules[0].ID)
	}
}

func TestRuleRepo_KindNormalization(t *testing.T) {
	repo := NewRuleRepo(openTestDB(t))
	ctx := context.Background()

	// A wildcard rule is stored with is_regex=0 and a '*' marker in the path.
	wild := newTestRule("/blog/*/post/*", "/p/$2", model.RuleKindWildcard)
	if err := repo.CreateRule(ctx, wild); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	got, err := repo.GetRule(ctx, wild.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.Kind != model.RuleKindWildcard {
		t.Errorf("kind: got %q, want wildcard", got.Kind)
	}

	found, err := repo.FindWildcardRules(ctx)
	if err != nil {
		t.Fatalf("FindWildcardRules: %v", err)
	}
	if len(found) != 1 || found[0].ID != wild.ID {
		t.Errorf("FindWildcardRules: got %d rules", len(found))
	}
}

func TestRuleRepo_UpdateRule(t *testing.T) {
	repo := NewRuleRepo(openTestDB(t))
	ctx := context.Background()

	rule := newTestRule("/old", "/new", model.RuleKindExact)
	if err := repo.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	rule.DestinationPath = "/newer"
	rule.StatusCode = 302
	if err := repo.UpdateRule(ctx, rule); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}

	got, err := repo.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.DestinationPath != "/newer" || got.StatusCode != 302 {
		t.Errorf("update: got %q status %d", got.DestinationPath, got.StatusCode)
	}
	if got.UpdatedAtNs <= got.CreatedAtNs {
		t.Error("updated_at_ns should advance past created_at_ns")
	}
}

func TestRuleRepo_DeactivateKeepsRow(t *testing.T) {
	repo := NewRuleRepo(openTestDB(t))
	ctx := context.Background()

	rule := newTestRule("/old", "/new", model.RuleKindExact)
	if err := repo.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if err := repo.DeactivateRule(ctx, rule.ID); err != nil {
		t.Fatalf("DeactivateRule: %v", err)
	}

	got, err := repo.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetRule after deactivate: %v", err)
	}
	if got.Active {
		t.Error("rule should be inactive")
	}

	active, err := repo.ListActiveRules(ctx)
	if err != nil {
		t.Fatalf("ListActiveRules: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active rules: got %d, want 0", len(active))
	}

	if err := repo.DeactivateRule(ctx, "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deactivate missing: got %v, want ErrNotFound", err)
	}
}

func TestRuleRepo_ListRulesFilter(t *testing.T) {
	repo := NewRuleRepo(openTestDB(t))
	ctx := context.Background()

	exact := newTestRule("/a", "/b", model.RuleKindExact)
	rex := newTestRule("^/r/(.+)$", "/s/$1", model.RuleKindRegex)
	wild := newTestRule("/w/*", "/x/$1", model.RuleKindWildcard)
	gone := newTestRule("/dead", "", model.RuleKindExact)
	gone.StatusCode = 410
	gone.Active = false
	for _, r := range []*model.RedirectRule{exact, rex, wild, gone} {
		if err := repo.CreateRule(ctx, r); err != nil {
			t.Fatalf("CreateRule: %v", err)
		}
	}

	items, total, err := repo.ListRules(ctx, RuleListFilter{Kind: model.RuleKindRegex})
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != rex.ID {
		t.Errorf("regex filter: got total=%d len=%d", total, len(items))
	}

	_, total, err = repo.ListRules(ctx, RuleListFilter{IncludeInactive: true})
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if total != 4 {
		t.Errorf("include_inactive total: got %d, want 4", total)
	}

	_, total, err = repo.ListRules(ctx, RuleListFilter{})
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if total != 3 {
		t.Errorf("active-only total: got %d, want 3", total)
	}
}

func TestRuleRepo_IncrementHits(t *testing.T) {
	repo := NewRuleRepo(openTestDB(t))
	ctx := context.Background()

	rule := newTestRule("/old", "/new", model.RuleKindExact)
	if err := repo.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	now := time.Now().UnixNano()
	deltas := []HitDelta{
		{RuleID: rule.ID, Count: 3, LastHitAtNs: now},
		{RuleID: "unknown-rule", Count: 1, LastHitAtNs: now},
	}
	if err := repo.IncrementHits(ctx, deltas); err != nil {
		t.Fatalf("IncrementHits: %v", err)
	}

	got, err := repo.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.HitCount != 3 {
		t.Errorf("hit_count: got %d, want 3", got.HitCount)
	}
	if got.LastHitAtNs != now {
		t.Errorf("last_hit_at_ns: got %d, want %d", got.LastHitAtNs, now)
	}

	// A stale timestamp must not move last_hit_at_ns backwards.
	if err := repo.IncrementHits(ctx, []HitDelta{{RuleID: rule.ID, Count: 1, LastHitAtNs: now - 1000}}); err != nil {
		t.Fatalf("IncrementHits: %v", err)
	}
	got, _ = repo.GetRule(ctx, rule.ID)
	if got.HitCount != 4 {
		t.Errorf("hit_count: got %d, want 4", got.HitCount)
	}
	if got.LastHitAtNs != now {
		t.Errorf("last_hit_at_ns moved backwards: got %d", got.LastHitAtNs)
	}
}
