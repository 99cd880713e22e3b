package db

import (
	"context"
	"fmt"
	"strings"

	"pms/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const programColumns = `id, code, name, fiscal_year_id, ward_id, program_type_id, funding_source_id,
        budget, status, description, tags, responsible_officer, start_date, end_date,
        created_by, created_at, updated_at`

// InsertProgram stores a new program. A taken code yields ErrDuplicate.
func (t *TxStore) InsertProgram(ctx context.Context, p *models.Program) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query := `
        INSERT INTO programs
            (id, code, name, fiscal_year_id, ward_id, program_type_id, funding_source_id,
             budget, status, description, tags, responsible_officer, start_date, end_date, created_by)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        RETURNING created_at, updated_at`
	err := t.tx.QueryRowxContext(ctx, query,
		p.ID, p.Code, p.Name, p.FiscalYearID, p.WardID, p.ProgramTypeID, p.FundingSourceID,
		p.Budget, p.Status, p.Description, p.Tags, p.ResponsibleOfficer, p.StartDate, p.EndDate, p.CreatedBy).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert program: %w", err)
	}
	return nil
}

func (s *Storage) GetProgram(ctx context.Context, id string) (*models.Program, error) {
	return getProgram(ctx, s.db, id, false)
}

// LockProgram reads the program and holds its row lock until the transaction ends.
func (t *TxStore) LockProgram(ctx context.Context, id string) (*models.Program, error) {
	return getProgram(ctx, t.tx, id, true)
}

func getProgram(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*models.Program, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + programColumns + ` FROM programs WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	p := &models.Program{}
	if err := sqlx.GetContext(ctx, q, p, query, id); err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// UpdateProgramStatus moves a program to status and bumps updated_at.
func (t *TxStore) UpdateProgramStatus(ctx context.Context, id string, status models.ProgramStatus) error {
	query := `UPDATE programs SET status = $2, updated_at = NOW() WHERE id = $1`
	res, err := t.tx.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update program status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update program status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPrograms returns programs matching f ordered by code.
func (s *Storage) ListPrograms(ctx context.Context, f models.ProgramFilter, limit, offset int) ([]models.Program, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.WardID != nil {
		args = append(args, *f.WardID)
		conds = append(conds, fmt.Sprintf("ward_id = $%d", len(args)))
	}
	if f.FiscalYearID != nil {
		args = append(args, *f.FiscalYearID)
		conds = append(conds, fmt.Sprintf("fiscal_year_id = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + programColumns + ` FROM programs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY code ASC LIMIT %d OFFSET %d", limit, offset)

	programs := []models.Program{}
	if err := s.db.SelectContext(ctx, &programs, query, args...); err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return programs, nil
}
