package handlers

import (
	"net/http"
	"strings"
	"time"

	"pms/internal/apperr"
	"pms/models"

	"github.com/go-chi/chi/v5"
)

type createProgramRequest struct {
	Code               string     `json:"code" validate:"required,max=50"`
	Name               string     `json:"name" validate:"required,max=255"`
	FiscalYearID       int        `json:"fiscalYearId" validate:"required,gt=0"`
	WardID             int        `json:"wardId" validate:"required,gt=0"`
	ProgramTypeID      int        `json:"programTypeId" validate:"required,gt=0"`
	FundingSourceID    int        `json:"fundingSourceId" validate:"required,gt=0"`
	Budget             *float64   `json:"budget" validate:"omitempty,gte=0"`
	Description        string     `json:"description" validate:"max=5000"`
	Tags               []string   `json:"tags" validate:"omitempty,max=20,dive,required,max=50"`
	ResponsibleOfficer string     `json:"responsibleOfficer" validate:"max=150"`
	StartDate          *time.Time `json:"startDate"`
	EndDate            *time.Time `json:"endDate"`
}

type changeProgramStatusRequest struct {
	Status models.ProgramStatus `json:"status" validate:"required"`
}

// CreateProgramHandler serves POST /programs. New programs start in DRAFT.
func (h *Handler) CreateProgramHandler(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	var req createProgramRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		h.WriteError(w, r, apperr.Validation("endDate must not be before startDate").WithDetail("field", "endDate"))
		return
	}

	p, err := h.Programs.Create(r.Context(), &models.Program{
		Code:               strings.TrimSpace(req.Code),
		Name:               strings.TrimSpace(req.Name),
		FiscalYearID:       req.FiscalYearID,
		WardID:             req.WardID,
		ProgramTypeID:      req.ProgramTypeID,
		FundingSourceID:    req.FundingSourceID,
		Budget:             req.Budget,
		Description:        req.Description,
		Tags:               req.Tags,
		ResponsibleOfficer: req.ResponsibleOfficer,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
	}, a)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.invalidateStats(r)
	writeJSON(w, http.StatusCreated, p)
}

// ListProgramsHandler serves GET /programs?ward=&fiscalYear=&status=&limit=&offset=.
func (h *Handler) ListProgramsHandler(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	var (
		f   models.ProgramFilter
		err error
	)
	if f.WardID, err = optionalInt(r, "ward"); err != nil {
		h.WriteError(w, r, err)
		return
	}
	if f.FiscalYearID, err = optionalInt(r, "fiscalYear"); err != nil {
		h.WriteError(w, r, err)
		return
	}
	if s := strings.TrimSpace(r.URL.Query().Get("status")); s != "" && s != "all" {
		status := models.ProgramStatus(strings.ToUpper(s))
		f.Status = &status
	}

	programs, err := h.Programs.List(r.Context(), f, params.Limit, params.Offset)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"programs": programs,
		"total":    len(programs),
	})
}

func (h *Handler) GetProgramHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.Programs.Get(r.Context(), chi.URLParam(r, "programId"))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SubmitProgramHandler serves PUT /programs/{programId}/submit.
func (h *Handler) SubmitProgramHandler(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	p, err := h.Programs.Submit(r.Context(), chi.URLParam(r, "programId"), a)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.invalidateStats(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Program submitted for approval",
		"program": p,
	})
}

// ChangeProgramStatusHandler serves PUT /programs/{programId}/status (admin only).
func (h *Handler) ChangeProgramStatusHandler(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	if !a.IsAdmin() {
		h.WriteError(w, r, apperr.Forbidden("admin role required"))
		return
	}
	var req changeProgramStatusRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	p, err := h.Programs.ChangeStatus(r.Context(), chi.URLParam(r, "programId"), req.Status, a)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.invalidateStats(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Program status updated",
		"program": p,
	})
}
