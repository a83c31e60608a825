package httpapi

import (
	"net/http"
	"strings"

	"github.com/rerouteio/reroute/internal/model"
	"github.com/rerouteio/reroute/internal/store"
)

// CacheInvalidator marks the in-memory rule snapshot stale after a mutation.
type CacheInvalidator interface {
	Invalidate()
}

// HitFlusher forces pending hit telemetry into the store.
type HitFlusher interface {
	Flush()
}

// HandleListRules returns a handler for GET /api/v1/rules.
func HandleListRules(rules *store.RuleRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pg, ok := parsePaginationOrWriteInvalid(w, r)
		if !ok {
			return
		}

		filter := store.RuleListFilter{Limit: pg.Limit, Offset: pg.Offset}
		if v := r.URL.Query().Get("kind"); v != "" {
			kind := model.RuleKind(strings.ToLower(v))
			switch kind {
			case model.RuleKindExact, model.RuleKindRegex, model.RuleKindWildcard:
				filter.Kind = kind
			default:
				writeInvalidArgument(w, "kind: must be one of exact, regex, wildcard")
				return
			}
		}
		includeInactive, err := ParseBoolQuery(r, "include_inactive")
		if err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}
		filter.IncludeInactive = includeInactive != nil && *includeInactive

		items, total, err := rules.ListRules(r.Context(), filter)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WritePage(w, http.StatusOK, items, total, filter.Limit, filter.Offset)
	}
}

type ruleBody struct {
	Kind            *string `json:"kind"`
	SourcePath      *string `json:"source_path"`
	DestinationPath *string `json:"destination_path"`
	StatusCode      *int    `json:"status_code"`
	Priority        *int    `json:"priority"`
	Active          *bool   `json:"active"`
	Description     *string `json:"description"`
}

func (b *ruleBody) apply(rule *model.RedirectRule) {
	if b.Kind != nil {
		rule.Kind = model.RuleKind(strings.ToLower(*b.Kind))
	}
	if b.SourcePath != nil {
		rule.SourcePath = *b.SourcePath
	}
	if b.DestinationPath != nil {
		rule.DestinationPath = *b.DestinationPath
	}
	if b.StatusCode != nil {
		rule.StatusCode = *b.StatusCode
	}
	if b.Priority != nil {
		rule.Priority = *b.Priority
	}
	if b.Active != nil {
		rule.Active = *b.Active
	}
	if b.Description != nil {
		rule.Description = *b.Description
	}
}

// HandleCreateRule returns a handler for POST /api/v1/rules.
func HandleCreateRule(rules *store.RuleRepo, cache CacheInvalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body ruleBody
		if err := DecodeBody(r, &body); err != nil {
			writeDecodeBodyError(w, err)
			return
		}

		// Defaults for a fresh rule: exact match, permanent redirect, active.
		rule := model.RedirectRule{
			Kind:       model.RuleKindExact,
			StatusCode: http.StatusMovedPermanently,
			Active:     true,
		}
		body.apply(&rule)

		if err := rules.CreateRule(r.Context(), &rule); err != nil {
			writeStoreError(w, err)
			return
		}
		cache.Invalidate()
		WriteJSON(w, http.StatusCreated, rule)
	}
}

// HandleGetRule returns a handler for GET /api/v1/rules/{id}.
func HandleGetRule(rules *store.RuleRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule, err := rules.GetRule(r.Context(), PathParam(r, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, rule)
	}
}

// HandleUpdateRule returns a handler for PATCH /api/v1/rules/{id}.
// Absent body fields keep their stored values.
func HandleUpdateRule(rules *store.RuleRepo, cache CacheInvalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body ruleBody
		if err := DecodeBody(r, &body); err != nil {
			writeDecodeBodyError(w, err)
			return
		}

		rule, err := rules.GetRule(r.Context(), PathParam(r, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		body.apply(rule)

		if err := rules.UpdateRule(r.Context(), rule); err != nil {
			writeStoreError(w, err)
			return
		}
		cache.Invalidate()
		WriteJSON(w, http.StatusOK, rule)
	}
}

// HandleDeleteRule returns a handler for DELETE /api/v1/rules/{id}.
// Deletion is a soft deactivate so hit history survives.
func HandleDeleteRule(rules *store.RuleRepo, cache CacheInvalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := rules.DeactivateRule(r.Context(), PathParam(r, "id")); err != nil {
			writeStoreError(w, err)
			return
		}
		cache.Invalidate()
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleRuleStats returns a handler for GET /api/v1/rules/{id}/stats.
// Pending telemetry is flushed first so the numbers are current.
func HandleRuleStats(rules *store.RuleRepo, hits HitFlusher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Flush()
		}
		rule, err := rules.GetRule(r.Context(), PathParam(r, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"rule_id":        rule.ID,
			"hit_count":      rule.HitCount,
			"last_hit_at_ns": rule.LastHitAtNs,
			"active":         rule.Active,
		})
	}
}
