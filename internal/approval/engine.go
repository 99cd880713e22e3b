package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pms/db"
	"pms/internal/apperr"
	"pms/internal/logger"
	"pms/internal/metrics"
	"pms/models"
)

// Activity action codes written by the engine.
const (
	ActivityApprovalCreated  = "approval_created"
	ActivityApprovalApproved = "approval_approved"
	ActivityApprovalRejected = "approval_rejected"
	ActivityReuploadRequest  = "approval_reupload_requested"
)

// MsgAlreadyProcessed is the conflict message clients see when a record is no
// longer pending.
const MsgAlreadyProcessed = "approval has already been processed"

var errAlreadyProcessed = errors.New("already processed")

// BulkResult reports how much of a batch was applied.
type BulkResult struct {
	ProcessedCount int `json:"processedCount"`
	TotalRequested int `json:"totalRequested"`
}

type Engine struct {
	repo Repository
	log  logger.Logger
	now  func() time.Time
}

func NewEngine(repo Repository, log logger.Logger) *Engine {
	return &Engine{repo: repo, log: log, now: time.Now}
}

// Resolve applies action to one pending record. The record, the program
// cascade and the audit entry commit together or not at all.
func (e *Engine) Resolve(ctx context.Context, approvalID string, action models.ApprovalAction,
	remarks *string, actor models.Actor) (*models.ApprovalRecord, error) {
	if actor.ID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	if strings.TrimSpace(approvalID) == "" {
		return nil, apperr.Validation("approvalId is required").WithDetail("field", "approvalId")
	}
	if _, ok := action.TargetStatus(); !ok {
		return nil, apperr.Validation("invalid action %q", action).WithDetail("field", "action")
	}

	var (
		resolved *models.ApprovalRecord
		cascaded bool
	)
	err := e.repo.RunInTx(ctx, func(tx Tx) error {
		rec, changed, err := e.resolveOne(ctx, tx, approvalID, action, remarks, actor)
		resolved, cascaded = rec, changed
		return err
	})
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, apperr.NotFound("approval", approvalID)
	case errors.Is(err, errAlreadyProcessed):
		metrics.ApprovalConflicts.Inc()
		return nil, apperr.Conflict(MsgAlreadyProcessed).WithDetail("id", approvalID)
	case err != nil:
		e.log.WithError(err).Error("approval resolution failed", map[string]interface{}{
			"approval_id": approvalID,
			"action":      string(action),
		})
		return nil, apperr.Internal(err)
	}

	metrics.ApprovalsResolved.WithLabelValues(string(action), resolved.Step.String()).Inc()
	e.log.Info("approval resolved", map[string]interface{}{
		"approval_id": resolved.ID,
		"program_id":  resolved.ProgramID,
		"action":      string(action),
		"step":        resolved.Step.String(),
		"cascaded":    cascaded,
	})
	return resolved, nil
}

// ResolveBulk applies approve or reject to every id in one transaction. Ids
// that do not exist or are no longer pending are skipped and not counted.
// Any other failure rolls back the whole batch.
func (e *Engine) ResolveBulk(ctx context.Context, approvalIDs []string, action models.ApprovalAction,
	remarks *string, actor models.Actor) (BulkResult, error) {
	result := BulkResult{TotalRequested: len(approvalIDs)}
	if actor.ID == "" {
		return result, apperr.Unauthorized("authentication required")
	}
	if len(approvalIDs) == 0 {
		return result, apperr.Validation("approvalIds must not be empty").WithDetail("field", "approvalIds")
	}
	if !action.AllowedInBulk() {
		return result, apperr.Validation("invalid bulk action %q", action).WithDetail("field", "action")
	}

	var (
		resolved []*models.ApprovalRecord
		skipped  int
	)
	err := e.repo.RunInTx(ctx, func(tx Tx) error {
		resolved, skipped = resolved[:0], 0
		for _, id := range approvalIDs {
			rec, _, err := e.resolveOne(ctx, tx, id, action, remarks, actor)
			if errors.Is(err, db.ErrNotFound) || errors.Is(err, errAlreadyProcessed) {
				skipped++
				continue
			}
			if err != nil {
				return fmt.Errorf("resolve %s: %w", id, err)
			}
			resolved = append(resolved, rec)
		}
		return nil
	})
	if err != nil {
		e.log.WithError(err).Error("bulk approval resolution failed", map[string]interface{}{
			"action":    string(action),
			"requested": len(approvalIDs),
		})
		return result, apperr.Internal(err)
	}

	for _, rec := range resolved {
		metrics.ApprovalsResolved.WithLabelValues(string(action), rec.Step.String()).Inc()
	}
	result.ProcessedCount = len(resolved)
	e.log.Info("bulk approvals resolved", map[string]interface{}{
		"action":    string(action),
		"processed": result.ProcessedCount,
		"requested": result.TotalRequested,
		"skipped":   skipped,
	})
	return result, nil
}

// resolveOne is the single-record transition. It reports whether the program
// status changed.
func (e *Engine) resolveOne(ctx context.Context, tx Tx, id string, action models.ApprovalAction,
	remarks *string, actor models.Actor) (*models.ApprovalRecord, bool, error) {
	target, _ := action.TargetStatus()

	rec, err := tx.LockApproval(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if rec.Status != models.ApprovalPending {
		return nil, false, errAlreadyProcessed
	}

	program, err := tx.LockProgram(ctx, rec.ProgramID)
	if err != nil {
		return nil, false, fmt.Errorf("load program %s: %w", rec.ProgramID, err)
	}

	now := e.now().UTC()
	actorID := actor.ID
	rec.Status = target
	if remarks != nil {
		rec.Remarks = remarks
	}
	rec.ApprovedBy = &actorID
	rec.ResolvedAt = &now

	if err := tx.MarkResolved(ctx, rec); err != nil {
		if errors.Is(err, db.ErrStale) {
			return nil, false, errAlreadyProcessed
		}
		return nil, false, err
	}

	previous := program.Status
	next, cascade := CascadeStatus(rec.Step, action)
	if cascade && next != previous {
		if err := tx.UpdateProgramStatus(ctx, program.ID, next); err != nil {
			return nil, false, fmt.Errorf("cascade program %s: %w", program.ID, err)
		}
	} else {
		next = previous
	}

	meta := models.Metadata{
		"programId":             program.ID,
		"programCode":           program.Code,
		"step":                  rec.Step.String(),
		"action":                string(action),
		"previousProgramStatus": string(previous),
		"programStatus":         string(next),
	}
	if rec.Remarks != nil {
		meta["remarks"] = *rec.Remarks
	}
	entry := &models.ActivityLogEntry{
		Action:      activityAction(action),
		Description: describe(action, rec.Step, program, actor),
		EntityType:  models.EntityApproval,
		EntityID:    rec.ID,
		ActorID:     &actorID,
		Metadata:    meta,
		CreatedAt:   now,
	}
	if err := tx.InsertActivity(ctx, entry); err != nil {
		return nil, false, fmt.Errorf("write activity: %w", err)
	}
	return rec, next != previous, nil
}

// CascadeStatus is the program status a resolution forces, if any. Only the
// terminal step touches the program: approve promotes it, reject sends it
// back to draft.
func CascadeStatus(step models.Step, action models.ApprovalAction) (models.ProgramStatus, bool) {
	if !step.Terminal() {
		return "", false
	}
	switch action {
	case models.ActionApprove:
		return models.ProgramApproved, true
	case models.ActionReject:
		return models.ProgramDraft, true
	}
	return "", false
}

func activityAction(action models.ApprovalAction) string {
	switch action {
	case models.ActionApprove:
		return ActivityApprovalApproved
	case models.ActionReject:
		return ActivityApprovalRejected
	default:
		return ActivityReuploadRequest
	}
}

func describe(action models.ApprovalAction, step models.Step, p *models.Program, actor models.Actor) string {
	who := actor.Name
	if who == "" {
		who = actor.ID
	}
	var verb string
	switch action {
	case models.ActionApprove:
		verb = "approved"
	case models.ActionReject:
		verb = "rejected"
	default:
		verb = "requested re-upload of"
	}
	return fmt.Sprintf("%s %s %s for program %s (%s)", who, verb, step.DocumentType(), p.Name, p.Code)
}
