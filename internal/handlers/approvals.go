package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pms/internal/approval"
	"pms/internal/apperr"
	"pms/models"
)

type resolveApprovalRequest struct {
	ApprovalID string                `json:"approvalId" validate:"required"`
	Action     models.ApprovalAction `json:"action" validate:"required,oneof=approve reject request_reupload"`
	Remarks    *string               `json:"remarks" validate:"omitempty,max=2000"`
}

type bulkResolveRequest struct {
	ApprovalIDs []string              `json:"approvalIds" validate:"required,min=1"`
	Action      models.ApprovalAction `json:"action" validate:"required,oneof=approve reject"`
	Remarks     *string               `json:"remarks" validate:"omitempty,max=2000"`
}

type createApprovalRequest struct {
	ProgramID string  `json:"programId" validate:"required,uuid"`
	Step      string  `json:"step" validate:"required"`
	Remarks   *string `json:"remarks" validate:"omitempty,max=2000"`
}

type exportApprovalsRequest struct {
	Status     string `json:"status" validate:"omitempty,oneof=all pending approved rejected re-upload-requested"`
	Ward       *int   `json:"ward" validate:"omitempty,gt=0"`
	FiscalYear *int   `json:"fiscalYear" validate:"omitempty,gt=0"`
}

var actionVerbs = map[models.ApprovalAction]string{
	models.ActionApprove:         "approved",
	models.ActionReject:          "rejected",
	models.ActionRequestReupload: "sent back for re-upload",
}

// ListApprovalsHandler serves GET /approvals?status=&ward=&fiscalYear=.
func (h *Handler) ListApprovalsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := approvalFilterFromQuery(r)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	views, err := h.Approvals.List(r.Context(), filter)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"approvals": views,
		"total":     len(views),
	})
}

func approvalFilterFromQuery(r *http.Request) (models.ApprovalFilter, error) {
	var (
		f   models.ApprovalFilter
		err error
	)
	f.Status = strings.TrimSpace(r.URL.Query().Get("status"))
	if f.WardID, err = optionalInt(r, "ward"); err != nil {
		return f, err
	}
	if f.FiscalYearID, err = optionalInt(r, "fiscalYear"); err != nil {
		return f, err
	}
	return f, nil
}

// ResolveApprovalHandler serves PUT /approvals.
func (h *Handler) ResolveApprovalHandler(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	var req resolveApprovalRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	rec, err := h.Approvals.Resolve(r.Context(), req.ApprovalID, req.Action, req.Remarks, a)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.invalidateStats(r)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  fmt.Sprintf("Approval %s successfully", actionVerbs[req.Action]),
		"approval": rec,
	})
}

// BulkResolveApprovalsHandler serves PUT /approvals/bulk. Unknown ids are
// skipped; the response counts tell the caller how many applied.
func (h *Handler) BulkResolveApprovalsHandler(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	var req bulkResolveRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	res, err := h.Approvals.ResolveBulk(r.Context(), req.ApprovalIDs, req.Action, req.Remarks, a)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	if res.ProcessedCount > 0 {
		h.invalidateStats(r)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":        fmt.Sprintf("%d of %d approvals %s", res.ProcessedCount, res.TotalRequested, actionVerbs[req.Action]),
		"processedCount": res.ProcessedCount,
		"totalRequested": res.TotalRequested,
	})
}

// CreateApprovalHandler serves POST /approvals, used by the upload pipeline
// to open a review step.
func (h *Handler) CreateApprovalHandler(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	var req createApprovalRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	step, err := models.ParseStep(req.Step)
	if err != nil {
		h.WriteError(w, r, apperr.Validation("invalid step %q", req.Step).WithDetail("field", "step"))
		return
	}

	rec, err := h.Approvals.Create(r.Context(), req.ProgramID, step, req.Remarks, a)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.invalidateStats(r)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"approval": rec})
}

// ExportApprovalsHandler serves POST /approvals/export as a CSV attachment.
// An empty body exports everything.
func (h *Handler) ExportApprovalsHandler(w http.ResponseWriter, r *http.Request) {
	var req exportApprovalsRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.WriteError(w, r, apperr.Validation("failed to read request body"))
		return
	}
	defer r.Body.Close()
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.WriteError(w, r, apperr.Validation("invalid JSON format"))
			return
		}
		if err := h.validateStruct(&req); err != nil {
			h.WriteError(w, r, err)
			return
		}
	}

	views, err := h.Approvals.ExportRows(r.Context(), models.ApprovalFilter{
		Status:       req.Status,
		WardID:       req.Ward,
		FiscalYearID: req.FiscalYear,
	})
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := approval.WriteCSV(&buf, views); err != nil {
		h.WriteError(w, r, apperr.Internal(err))
		return
	}
	filename := fmt.Sprintf("approvals-%s.csv", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
