package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rerouteio/reroute/internal/model"
)

const errorLogColumns = "id, code, message, severity, context_json, occurred_at_ns, resolved, resolved_by, resolved_at_ns"

// ErrorLogRepo persists error log records.
type ErrorLogRepo struct {
	db *sql.DB
}

// NewErrorLogRepo creates an ErrorLogRepo on the given store database.
func NewErrorLogRepo(db *sql.DB) *ErrorLogRepo {
	return &ErrorLogRepo{db: db}
}

// Insert appends a single record and returns its id.
func (r *ErrorLogRepo) Insert(ctx context.Context, rec *model.ErrorLogRecord) (string, error) {
	ctxJSON, err := json.Marshal(rec.RequestContext)
	if err != nil {
		// A context that cannot marshal still must not lose the record.
		log.Printf("[store] warning: error log context marshal failed id=%q: %v", rec.ID, err)
		ctxJSON = []byte("{}")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO error_logs (id, code, message, severity, context_json, occurred_at_ns, resolved, resolved_by, resolved_at_ns)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.Code, rec.Message, string(rec.Severity), string(ctxJSON),
		rec.OccurredAtNs, boolToInt(rec.Resolved), rec.ResolvedBy, rec.ResolvedAtNs,
	)
	if err != nil {
		return "", fmt.Errorf("error log insert: %w", err)
	}
	return rec.ID, nil
}

// InsertBatch appends records in one transaction, returning the number of
// rows inserted. Individual malformed rows are skipped rather than aborting
// the batch.
func (r *ErrorLogRepo) InsertBatch(ctx context.Context, recs []model.ErrorLogRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error log begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO error_logs (id, code, message, severity, context_json, occurred_at_ns, resolved, resolved_by, resolved_at_ns)
		 VALUES (?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("error log prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range recs {
		rec := &recs[i]
		ctxJSON, err := json.Marshal(rec.RequestContext)
		if err != nil {
			log.Printf("[store] warning: skip error log row id=%q context marshal failed: %v", rec.ID, err)
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.Code, rec.Message, string(rec.Severity), string(ctxJSON),
			rec.OccurredAtNs, boolToInt(rec.Resolved), rec.ResolvedBy, rec.ResolvedAtNs,
		); err != nil {
			log.Printf("[store] warning: skip error log row id=%q insert failed: %v", rec.ID, err)
			continue
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error log commit: %w", err)
	}
	return inserted, nil
}

// ErrorLogFilter narrows List results.
type ErrorLogFilter struct {
	Code     string
	Severity model.Severity
	Resolved *bool
	After    int64 // occurred_at_ns > After (0 means no lower bound)
	Before   int64 // occurred_at_ns < Before (0 means no upper bound)
	Limit    int
	Offset   int
}

// List returns matching records newest first, plus the total matching count.
func (r *ErrorLogRepo) List(ctx context.Context, f ErrorLogFilter) ([]model.ErrorLogRecord, int, error) {
	var where []string
	var args []any

	if f.Code != "" {
		where = append(where, "code = ?")
		args = append(args, f.Code)
	}
	if f.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, string(f.Severity))
	}
	if f.Resolved != nil {
		where = append(where, "resolved = ?")
		args = append(args, boolToInt(*f.Resolved))
	}
	if f.After > 0 {
		where = append(where, "occurred_at_ns > ?")
		args = append(args, f.After)
	}
	if f.Before > 0 {
		where = append(where, "occurred_at_ns < ?")
		args = append(args, f.Before)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM error_logs"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("error log count: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	q := "SELECT " + errorLogColumns + " FROM error_logs" + clause + " ORDER BY occurred_at_ns DESC, id ASC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("error log list: %w", err)
	}
	defer rows.Close()

	var result []model.ErrorLogRecord
	for rows.Next() {
		rec, err := scanErrorLog(rows)
		if err != nil {
			log.Printf("[store] warning: skip malformed error log row during scan: %v", err)
			continue
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error log scan: %w", err)
	}
	return result, total, nil
}

// Get returns a single record by id.
func (r *ErrorLogRepo) Get(ctx context.Context, id string) (*model.ErrorLogRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+errorLogColumns+" FROM error_logs WHERE id = ?", id)
	rec, err := scanErrorLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error log get %s: %w", id, err)
	}
	return rec, nil
}

// Resolve marks a record as resolved by the given actor.
func (r *ErrorLogRepo) Resolve(ctx context.Context, id, by string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE error_logs SET resolved = 1, resolved_by = ?, resolved_at_ns = ? WHERE id = ?",
		by, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("error log resolve %s: %w", id, err)
	}
	return requireRowAffected(res, id)
}

// DeleteOlderThan removes records that occurred before cutoff and returns the
// number of rows deleted.
func (r *ErrorLogRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM error_logs WHERE occurred_at_ns < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("error log retention delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error log retention rows affected: %w", err)
	}
	return n, nil
}

func scanErrorLog(row rowScanner) (*model.ErrorLogRecord, error) {
	var rec model.ErrorLogRecord
	var severity, ctxJSON string
	var resolved int
	err := row.Scan(
		&rec.ID, &rec.Code, &rec.Message, &severity, &ctxJSON,
		&rec.OccurredAtNs, &resolved, &rec.ResolvedBy, &rec.ResolvedAtNs,
	)
	if err != nil {
		return nil, err
	}
	rec.Severity = model.Severity(severity)
	rec.Resolved = resolved != 0
	if err := json.Unmarshal([]byte(ctxJSON), &rec.RequestContext); err != nil {
		// Context is auxiliary; keep the record with an empty context.
		rec.RequestContext = model.RequestContext{}
	}
	return &rec, nil
}
