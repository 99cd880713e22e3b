package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"pms/db"
	"pms/internal/apperr"
	"pms/models"

	"github.com/go-chi/chi/v5"
)

type activityResponse struct {
	models.ActivityLogEntry
	PerformedBy string `json:"performedBy"`
}

// ListActivityHandler serves GET /activity?entityType=&entityId=&limit=.
func (h *Handler) ListActivityHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.ActivityFilter{Limit: 50}

	if raw := strings.TrimSpace(q.Get("entityType")); raw != "" {
		et := models.EntityType(raw)
		if !et.Valid() {
			h.WriteError(w, r, apperr.Validation("unsupported entity type %q", raw).WithDetail("field", "entityType"))
			return
		}
		f.EntityType = &et
	}
	if raw := strings.TrimSpace(q.Get("entityId")); raw != "" {
		f.EntityID = &raw
	}
	if raw := q.Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l <= 0 || l > 200 {
			h.WriteError(w, r, apperr.Validation("limit must be between 1 and 200").WithDetail("field", "limit"))
			return
		}
		f.Limit = l
	}

	entries, err := h.Store.ListActivity(r.Context(), f)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	out := make([]activityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, activityResponse{ActivityLogEntry: e, PerformedBy: e.Performer()})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"activities": out,
		"total":      len(out),
	})
}

// GetActivityEntityHandler serves GET /activity/{activityId}/entity. The
// referenced row is looked up by its type; unknown types are rejected before
// any lookup.
func (h *Handler) GetActivityEntityHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "activityId")
	entry, err := h.Store.GetActivity(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		h.WriteError(w, r, apperr.NotFound("activity", id))
		return
	}
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	ref := entry.Entity()
	if !ref.Type.Valid() {
		h.WriteError(w, r, apperr.Validation("unsupported entity type %q", ref.Type).WithDetail("entityType", string(ref.Type)))
		return
	}
	entity, err := h.Store.ResolveEntity(r.Context(), ref)
	if errors.Is(err, db.ErrNotFound) {
		h.WriteError(w, r, apperr.NotFound(string(ref.Type), ref.ID))
		return
	}
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entityType": ref.Type,
		"entityId":   ref.ID,
		"entity":     entity,
	})
}
