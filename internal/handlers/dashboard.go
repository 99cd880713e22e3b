package handlers

import (
	"errors"
	"net/http"

	"pms/db"
	"pms/internal/apperr"
)

// DashboardStatsHandler serves GET /dashboard/stats?fiscalYear=. Without the
// parameter the active year is looked up once and passed on explicitly.
func (h *Handler) DashboardStatsHandler(w http.ResponseWriter, r *http.Request) {
	fy, err := optionalInt(r, "fiscalYear")
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	if fy == nil {
		active, err := h.Store.ActiveFiscalYear(r.Context())
		if errors.Is(err, db.ErrNotFound) {
			h.WriteError(w, r, apperr.NotFound("active fiscal year", ""))
			return
		}
		if err != nil {
			h.WriteError(w, r, err)
			return
		}
		fy = &active.ID
	}

	var stats interface{}
	if h.Stats != nil {
		stats, err = h.Stats.GetOrLoad(r.Context(), *fy, h.Store.DashboardStats)
	} else {
		stats, err = h.Store.DashboardStats(r.Context(), *fy)
	}
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
