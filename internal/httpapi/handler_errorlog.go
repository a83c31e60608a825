package httpapi

import (
	"net/http"
	"strings"

	"github.com/rerouteio/reroute/internal/model"
	"github.com/rerouteio/reroute/internal/store"
)

// HandleListErrorLogs returns a handler for GET /api/v1/error-logs.
func HandleListErrorLogs(logs *store.ErrorLogRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pg, ok := parsePaginationOrWriteInvalid(w, r)
		if !ok {
			return
		}

		filter := store.ErrorLogFilter{
			Code:   r.URL.Query().Get("code"),
			Limit:  pg.Limit,
			Offset: pg.Offset,
		}
		if v := r.URL.Query().Get("severity"); v != "" {
			sev := model.Severity(strings.ToLower(v))
			switch sev {
			case model.SeverityLow, model.SeverityMedium, model.SeverityHigh, model.SeverityCritical:
				filter.Severity = sev
			default:
				writeInvalidArgument(w, "severity: must be one of low, medium, high, critical")
				return
			}
		}
		resolved, err := ParseBoolQuery(r, "resolved")
		if err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}
		filter.Resolved = resolved
		if filter.After, err = ParseInt64Query(r, "after_ns"); err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}
		if filter.Before, err = ParseInt64Query(r, "before_ns"); err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}

		items, total, err := logs.List(r.Context(), filter)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WritePage(w, http.StatusOK, items, total, filter.Limit, filter.Offset)
	}
}

// HandleGetErrorLog returns a handler for GET /api/v1/error-logs/{id}.
func HandleGetErrorLog(logs *store.ErrorLogRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := logs.Get(r.Context(), PathParam(r, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, rec)
	}
}

// HandleResolveErrorLog returns a handler for
// POST /api/v1/error-logs/{id}/actions/resolve.
func HandleResolveErrorLog(logs *store.ErrorLogRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ResolvedBy string `json:"resolved_by"`
		}
		if err := DecodeBody(r, &body); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if strings.TrimSpace(body.ResolvedBy) == "" {
			writeInvalidArgument(w, "resolved_by must be non-empty")
			return
		}

		id := PathParam(r, "id")
		if err := logs.Resolve(r.Context(), id, body.ResolvedBy); err != nil {
			writeStoreError(w, err)
			return
		}
		rec, err := logs.Get(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, rec)
	}
}
