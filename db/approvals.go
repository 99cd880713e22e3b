package db

import (
	"context"
	"fmt"
	"strings"

	"pms/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const approvalColumns = `id, program_id, step, status, remarks, approved_by, resolved_at, created_at`

const approvalListQuery = `
        SELECT a.id, a.program_id, p.name AS program_name, p.code AS program_code,
               w.number AS ward_number, w.name AS ward_name,
               a.step, a.status, a.remarks, u.full_name AS approver_name,
               a.resolved_at, a.created_at,
               fy.label AS fiscal_year, pt.name AS program_type, fs.name AS funding_source,
               p.budget
        FROM approvals a
        JOIN programs p ON p.id = a.program_id
        JOIN wards w ON w.id = p.ward_id
        JOIN fiscal_years fy ON fy.id = p.fiscal_year_id
        JOIN program_types pt ON pt.id = p.program_type_id
        JOIN funding_sources fs ON fs.id = p.funding_source_id
        LEFT JOIN users u ON u.id = a.approved_by`

// ListApprovals returns the joined approval rows matching f, newest first.
func (s *Storage) ListApprovals(ctx context.Context, f models.ApprovalFilter) ([]models.ApprovalRow, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("a.status = $%d", f.Status)
	}
	if f.WardID != nil {
		add("p.ward_id = $%d", *f.WardID)
	}
	if f.FiscalYearID != nil {
		add("p.fiscal_year_id = $%d", *f.FiscalYearID)
	}

	query := approvalListQuery
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY a.created_at DESC"

	rows := []models.ApprovalRow{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return rows, nil
}

func (s *Storage) GetApproval(ctx context.Context, id string) (*models.ApprovalRecord, error) {
	return getApproval(ctx, s.db, id, false)
}

// LockApproval reads the record and holds its row lock until the transaction ends.
func (t *TxStore) LockApproval(ctx context.Context, id string) (*models.ApprovalRecord, error) {
	return getApproval(ctx, t.tx, id, true)
}

func getApproval(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*models.ApprovalRecord, error) {
	// ids are uuids; anything else cannot exist and must not reach the uuid cast
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rec := &models.ApprovalRecord{}
	if err := sqlx.GetContext(ctx, q, rec, query, id); err != nil {
		return nil, notFound(err)
	}
	return rec, nil
}

// MarkResolved writes the resolution of a pending record. It returns ErrStale
// if the record is no longer pending.
func (t *TxStore) MarkResolved(ctx context.Context, rec *models.ApprovalRecord) error {
	query := `
        UPDATE approvals
        SET status = $2, remarks = COALESCE($3, remarks), approved_by = $4, resolved_at = $5
        WHERE id = $1 AND status = 'pending'`
	res, err := t.tx.ExecContext(ctx, query,
		rec.ID, rec.Status, rec.Remarks, rec.ApprovedBy, rec.ResolvedAt)
	if err != nil {
		return fmt.Errorf("resolve approval %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve approval %s: %w", rec.ID, err)
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

// InsertApproval creates a pending record for a workflow step.
func (t *TxStore) InsertApproval(ctx context.Context, rec *models.ApprovalRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	query := `
        INSERT INTO approvals (id, program_id, step, status, remarks)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at`
	err := t.tx.QueryRowxContext(ctx, query,
		rec.ID, rec.ProgramID, rec.Step, rec.Status, rec.Remarks).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

// HasPendingApproval reports whether the program already waits on step.
func (t *TxStore) HasPendingApproval(ctx context.Context, programID string, step models.Step) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM approvals WHERE program_id = $1 AND step = $2 AND status = 'pending'`
	if err := sqlx.GetContext(ctx, t.tx, &count, query, programID, step); err != nil {
		return false, fmt.Errorf("count pending approvals: %w", err)
	}
	return count > 0, nil
}
