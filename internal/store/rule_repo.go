package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rerouteio/reroute/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrInvalid is returned when a write carries invalid field values.
var ErrInvalid = errors.New("store: invalid argument")

const ruleColumns = "id, source_path, destination_path, status_code, is_regex, priority, active, description, hit_count, last_hit_at_ns, created_at_ns, updated_at_ns"

// RuleRepo persists redirect rules.
//
// The legacy on-disk shape keeps an is_regex flag plus a '*' marker inside
// source_path for wildcard rules. Reconciliation into the tagged RuleKind
// happens here, at the adapter boundary, so the engine only ever sees one
// normalized shape.
type RuleRepo struct {
	db *sql.DB
}

// NewRuleRepo creates a RuleRepo on the given store database.
func NewRuleRepo(db *sql.DB) *RuleRepo {
	return &RuleRepo{db: db}
}

// ListActiveRules returns every active rule ordered by priority descending,
// then creation time ascending, then id. The ordering is part of the lookup
// contract: equal-priority regex rules resolve in creation order.
func (r *RuleRepo) ListActiveRules(ctx context.Context) ([]model.RedirectRule, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+ruleColumns+" FROM redirect_rules WHERE active = 1 ORDER BY priority DESC, created_at_ns ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("rule repo list active: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

// FindWildcardRules returns active legacy wildcard rules (source contains '*',
// not flagged as regex). These are rare and deliberately bypass the cache.
func (r *RuleRepo) FindWildcardRules(ctx context.Context) ([]model.RedirectRule, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+ruleColumns+" FROM redirect_rules WHERE active = 1 AND is_regex = 0 AND instr(source_path, '*') > 0 ORDER BY priority DESC, created_at_ns ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("rule repo find wildcard: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

// GetRule returns a single rule by id, active or not.
func (r *RuleRepo) GetRule(ctx context.Context, id string) (*model.RedirectRule, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+ruleColumns+" FROM redirect_rules WHERE id = ?", id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("rule repo get %s: %w", id, err)
	}
	return rule, nil
}

// RuleListFilter narrows ListRules results.
type RuleListFilter struct {
	IncludeInactive bool
	Kind            model.RuleKind // empty means all kinds
	Limit           int
	Offset          int
}

// ListRules returns rules for the admin surface, newest first, plus the total
// matching count.
func (r *RuleRepo) ListRules(ctx context.Context, f RuleListFilter) ([]model.RedirectRule, int, error) {
	var where []string
	var args []any
	if !f.IncludeInactive {
		where = append(where, "active = 1")
	}
	switch f.Kind {
	case model.RuleKindRegex:
		where = append(where, "is_regex = 1")
	case model.RuleKindWildcard:
		where = append(where, "is_regex = 0 AND instr(source_path, '*') > 0")
	case model.RuleKindExact:
		where = append(where, "is_regex = 0 AND instr(source_path, '*') = 0")
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM redirect_rules"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("rule repo count: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	q := "SELECT " + ruleColumns + " FROM redirect_rules" + clause + " ORDER BY created_at_ns DESC, id ASC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("rule repo list: %w", err)
	}
	defer rows.Close()
	rules, err := scanRules(rows)
	if err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

// CreateRule inserts a new rule. A missing id is assigned; timestamps are set
// to now. The rule's Kind is validated against its source path.
func (r *RuleRepo) CreateRule(ctx context.Context, rule *model.RedirectRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UnixNano()
	rule.CreatedAtNs = now
	rule.UpdatedAtNs = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO redirect_rules (id, source_path, destination_path, status_code, is_regex, priority, active, description, hit_count, last_hit_at_ns, created_at_ns, updated_at_ns)
		 VALUES (?,?,?,?,?,?,?,?,0,0,?,?)`,
		rule.ID, rule.SourcePath, rule.DestinationPath, rule.StatusCode,
		boolToInt(rule.Kind == model.RuleKindRegex), rule.Priority, boolToInt(rule.Active),
		rule.Description, rule.CreatedAtNs, rule.UpdatedAtNs,
	)
	if err != nil {
		return fmt.Errorf("rule repo create: %w", err)
	}
	return nil
}

// UpdateRule rewrites the mutable fields of an existing rule.
func (r *RuleRepo) UpdateRule(ctx context.Context, rule *model.RedirectRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	rule.UpdatedAtNs = time.Now().UnixNano()
	res, err := r.db.ExecContext(ctx,
		`UPDATE redirect_rules
		 SET source_path = ?, destination_path = ?, status_code = ?, is_regex = ?, priority = ?, active = ?, description = ?, updated_at_ns = ?
		 WHERE id = ?`,
		rule.SourcePath, rule.DestinationPath, rule.StatusCode,
		boolToInt(rule.Kind == model.RuleKindRegex), rule.Priority, boolToInt(rule.Active),
		rule.Description, rule.UpdatedAtNs, rule.ID,
	)
	if err != nil {
		return fmt.Errorf("rule repo update %s: %w", rule.ID, err)
	}
	return requireRowAffected(res, rule.ID)
}

// DeactivateRule soft-deletes a rule. Rules are never physically removed so
// hit history survives.
func (r *RuleRepo) DeactivateRule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE redirect_rules SET active = 0, updated_at_ns = ? WHERE id = ?",
		time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("rule repo deactivate %s: %w", id, err)
	}
	return requireRowAffected(res, id)
}

// HitDelta is one pending hit-count increment.
type HitDelta struct {
	RuleID      string
	Count       int64
	LastHitAtNs int64
}

// IncrementHits applies a batch of hit-count deltas in one transaction.
// Unknown rule ids are skipped silently: a rule may have been deactivated (or
// the delta may be stale) between match and flush.
func (r *RuleRepo) IncrementHits(ctx context.Context, deltas []HitDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rule repo hits begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		"UPDATE redirect_rules SET hit_count = hit_count + ?, last_hit_at_ns = max(last_hit_at_ns, ?) WHERE id = ?")
	if err != nil {
		return fmt.Errorf("rule repo hits prepare: %w", err)
	}
	defer stmt.Close()

	for _, d := range deltas {
		if _, err := stmt.ExecContext(ctx, d.Count, d.LastHitAtNs, d.RuleID); err != nil {
			return fmt.Errorf("rule repo hits exec %s: %w", d.RuleID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rule repo hits commit: %w", err)
	}
	return nil
}

// --- internal helpers ---

func validateRule(rule *model.RedirectRule) error {
	if strings.TrimSpace(rule.SourcePath) == "" {
		return fmt.Errorf("%w: source_path must be non-empty", ErrInvalid)
	}
	if !model.ValidRedirectStatus(rule.StatusCode) {
		return fmt.Errorf("%w: status code %d not allowed (301, 302, 307, 308, 410)", ErrInvalid, rule.StatusCode)
	}
	switch rule.Kind {
	case model.RuleKindExact:
		if strings.Contains(rule.SourcePath, "*") {
			return fmt.Errorf("%w: exact source_path must not contain '*'", ErrInvalid)
		}
	case model.RuleKindWildcard:
		if !strings.Contains(rule.SourcePath, "*") {
			return fmt.Errorf("%w: wildcard source_path must contain '*'", ErrInvalid)
		}
	case model.RuleKindRegex:
		if _, err := regexp.Compile(rule.SourcePath); err != nil {
			return fmt.Errorf("%w: source_path is not a valid regular expression: %v", ErrInvalid, err)
		}
	default:
		return fmt.Errorf("%w: unknown rule kind %q", ErrInvalid, rule.Kind)
	}
	if rule.StatusCode != 410 && strings.TrimSpace(rule.DestinationPath) == "" {
		return fmt.Errorf("%w: destination_path must be non-empty for status %d", ErrInvalid, rule.StatusCode)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*model.RedirectRule, error) {
	var rule model.RedirectRule
	var isRegex, active int
	err := row.Scan(
		&rule.ID, &rule.SourcePath, &rule.DestinationPath, &rule.StatusCode,
		&isRegex, &rule.Priority, &active, &rule.Description,
		&rule.HitCount, &rule.LastHitAtNs, &rule.CreatedAtNs, &rule.UpdatedAtNs,
	)
	if err != nil {
		return nil, err
	}
	rule.Active = active != 0
	rule.Kind = normalizeKind(isRegex != 0, rule.SourcePath)
	return &rule, nil
}

func scanRules(rows *sql.Rows) ([]model.RedirectRule, error) {
	var result []model.RedirectRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("rule repo scan: %w", err)
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}

// normalizeKind reconciles the legacy two-flag record shape into one tag.
func normalizeKind(isRegex bool, sourcePath string) model.RuleKind {
	switch {
	case isRegex:
		return model.RuleKindRegex
	case strings.Contains(sourcePath, "*"):
		return model.RuleKindWildcard
	default:
		return model.RuleKindExact
	}
}

func requireRowAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rule repo rows affected %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
