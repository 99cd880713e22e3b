package approval

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"pms/db"
	"pms/internal/apperr"
	"pms/internal/metrics"
	"pms/models"
)

// List returns the denormalized approval view for f. Status "" or "all"
// matches every record.
func (e *Engine) List(ctx context.Context, f models.ApprovalFilter) ([]models.ApprovalView, error) {
	if f.Status == "all" {
		f.Status = ""
	}
	if f.Status != "" && !models.ApprovalStatus(f.Status).Valid() {
		return nil, apperr.Validation("invalid status %q", f.Status).WithDetail("field", "status")
	}
	rows, err := e.repo.ListApprovals(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	views := make([]models.ApprovalView, 0, len(rows))
	for _, r := range rows {
		views = append(views, models.NewApprovalView(r))
	}
	return views, nil
}

// ExportRows is the export data set; it is List under the same filter.
func (e *Engine) ExportRows(ctx context.Context, f models.ApprovalFilter) ([]models.ApprovalView, error) {
	return e.List(ctx, f)
}

var exportHeader = []string{
	"Program Code", "Program Name", "Ward", "Fiscal Year", "Program Type", "Budget",
	"Status", "Step", "Submitted Date", "Approved By", "Approved Date", "Remarks",
}

const exportDateLayout = "2006-01-02"

// WriteCSV renders views as the approvals export, one row per record.
func WriteCSV(w io.Writer, views []models.ApprovalView) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, v := range views {
		budget := ""
		if v.Budget != nil {
			budget = strconv.FormatFloat(*v.Budget, 'f', 2, 64)
		}
		approvedBy, approvedAt := "", ""
		if v.ApprovedBy != nil {
			approvedBy = *v.ApprovedBy
		}
		if v.ApprovedAt != nil {
			approvedAt = v.ApprovedAt.Format(exportDateLayout)
		}
		record := []string{
			v.ProgramCode, v.ProgramName, v.Ward, v.FiscalYear, v.ProgramType, budget,
			string(v.Status), v.Step.String(), v.SubmittedDate.Format(exportDateLayout),
			approvedBy, approvedAt, v.Remarks,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Create opens a pending record for step on a program. This is the entry
// point of the document-upload pipeline. The review notification is sent
// after commit and its failure only gets logged.
func (e *Engine) Create(ctx context.Context, programID string, step models.Step, remarks *string,
	actor models.Actor) (*models.ApprovalRecord, error) {
	if actor.ID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	if !step.Valid() {
		return nil, apperr.Validation("invalid step").WithDetail("field", "step")
	}

	rec := &models.ApprovalRecord{
		ProgramID: programID,
		Step:      step,
		Status:    models.ApprovalPending,
		Remarks:   remarks,
	}
	var program *models.Program
	err := e.repo.RunInTx(ctx, func(tx Tx) error {
		p, err := tx.LockProgram(ctx, programID)
		if err != nil {
			return err
		}
		program = p

		pending, err := tx.HasPendingApproval(ctx, programID, step)
		if err != nil {
			return err
		}
		if pending {
			return errAlreadyProcessed
		}
		if err := tx.InsertApproval(ctx, rec); err != nil {
			return err
		}

		actorID := actor.ID
		return tx.InsertActivity(ctx, &models.ActivityLogEntry{
			Action:      ActivityApprovalCreated,
			Description: fmt.Sprintf("%s submitted for program %s (%s)", step.DocumentType(), p.Name, p.Code),
			EntityType:  models.EntityApproval,
			EntityID:    rec.ID,
			ActorID:     &actorID,
			Metadata: models.Metadata{
				"programId": p.ID,
				"step":      step.String(),
			},
		})
	})
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, apperr.NotFound("program", programID)
	case errors.Is(err, errAlreadyProcessed):
		return nil, apperr.Conflict("program already has a pending %s approval", step).WithDetail("step", step.String())
	case err != nil:
		e.log.WithError(err).Error("approval creation failed", map[string]interface{}{
			"program_id": programID,
			"step":       step.String(),
		})
		return nil, apperr.Internal(err)
	}

	metrics.ApprovalsCreated.WithLabelValues(step.String()).Inc()
	e.log.Info("approval created", map[string]interface{}{
		"approval_id": rec.ID,
		"program_id":  programID,
		"step":        step.String(),
	})
	e.notifyReviewers(ctx, rec, program)
	return rec, nil
}

// notifyReviewers broadcasts the review request. Reviewers are addressed by
// step, not by user, so the row has no target user.
func (e *Engine) notifyReviewers(ctx context.Context, rec *models.ApprovalRecord, p *models.Program) {
	entityType := models.EntityApproval
	entityID := rec.ID
	expires := e.now().UTC().Add(30 * 24 * time.Hour)
	n := &models.Notification{
		Title:      "Approval required: " + rec.Step.DocumentType(),
		Message:    fmt.Sprintf("Program %s (%s) is waiting for %s review", p.Name, p.Code, rec.Step),
		Type:       models.NotificationApproval,
		Priority:   rec.Step.Priority(),
		ExpiresAt:  &expires,
		EntityType: &entityType,
		EntityID:   &entityID,
	}
	if err := e.repo.CreateNotification(ctx, n); err != nil {
		e.log.WithError(err).Warn("approval notification not delivered", map[string]interface{}{
			"approval_id": rec.ID,
		})
	}
}
