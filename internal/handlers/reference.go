package handlers

import (
	"net/http"

	"pms/models"
)

type wardResponse struct {
	models.Ward
	Label string `json:"label"`
}

func (h *Handler) ListWardsHandler(w http.ResponseWriter, r *http.Request) {
	wards, err := h.Store.ListWards(r.Context())
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	out := make([]wardResponse, 0, len(wards))
	for _, ward := range wards {
		out = append(out, wardResponse{Ward: ward, Label: ward.Label()})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"wards": out})
}

func (h *Handler) ListFiscalYearsHandler(w http.ResponseWriter, r *http.Request) {
	years, err := h.Store.ListFiscalYears(r.Context())
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"fiscalYears": years})
}
