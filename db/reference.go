package db

import (
	"context"
	"fmt"

	"pms/models"

	"github.com/google/uuid"
)

func (s *Storage) ListWards(ctx context.Context) ([]models.Ward, error) {
	wards := []models.Ward{}
	if err := s.db.SelectContext(ctx, &wards, `SELECT id, number, name FROM wards ORDER BY number`); err != nil {
		return nil, fmt.Errorf("list wards: %w", err)
	}
	return wards, nil
}

func (s *Storage) ListFiscalYears(ctx context.Context) ([]models.FiscalYear, error) {
	years := []models.FiscalYear{}
	query := `SELECT id, label, start_date, end_date, is_active FROM fiscal_years ORDER BY start_date DESC`
	if err := s.db.SelectContext(ctx, &years, query); err != nil {
		return nil, fmt.Errorf("list fiscal years: %w", err)
	}
	return years, nil
}

// ActiveFiscalYear returns the single active year, or ErrNotFound if none is flagged.
func (s *Storage) ActiveFiscalYear(ctx context.Context) (*models.FiscalYear, error) {
	fy := &models.FiscalYear{}
	query := `SELECT id, label, start_date, end_date, is_active FROM fiscal_years WHERE is_active`
	if err := s.db.GetContext(ctx, fy, query); err != nil {
		return nil, notFound(err)
	}
	return fy, nil
}

// FindUser is used to address notifications and resolve actor names.
func (s *Storage) FindUser(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	u := &models.User{}
	query := `SELECT id, username, full_name, role_id, ward_id, created_at FROM users WHERE id = $1`
	if err := s.db.GetContext(ctx, u, query, id); err != nil {
		return nil, notFound(err)
	}
	return u, nil
}
