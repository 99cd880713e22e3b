package db

import (
	"context"
	"fmt"
	"time"

	"pms/models"
)

// DashboardStats aggregates one fiscal year. The year is always passed in;
// storage never decides which year is current.
func (s *Storage) DashboardStats(ctx context.Context, fiscalYearID int) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{
		FiscalYearID:      fiscalYearID,
		ProgramsByStatus:  map[string]int{},
		ApprovalsByStatus: map[string]int{},
	}

	var programs []models.StatusCount
	query := `SELECT status, COUNT(1) AS count FROM programs WHERE fiscal_year_id = $1 GROUP BY status`
	if err := s.db.SelectContext(ctx, &programs, query, fiscalYearID); err != nil {
		return nil, fmt.Errorf("program stats: %w", err)
	}
	for _, c := range programs {
		stats.ProgramsByStatus[c.Status] = c.Count
		stats.TotalPrograms += c.Count
	}

	var approvals []models.StatusCount
	query = `
        SELECT a.status, COUNT(1) AS count
        FROM approvals a
        JOIN programs p ON p.id = a.program_id
        WHERE p.fiscal_year_id = $1
        GROUP BY a.status`
	if err := s.db.SelectContext(ctx, &approvals, query, fiscalYearID); err != nil {
		return nil, fmt.Errorf("approval stats: %w", err)
	}
	for _, c := range approvals {
		stats.ApprovalsByStatus[c.Status] = c.Count
	}

	query = `SELECT COALESCE(SUM(budget), 0) FROM programs WHERE fiscal_year_id = $1`
	if err := s.db.GetContext(ctx, &stats.TotalBudget, query, fiscalYearID); err != nil {
		return nil, fmt.Errorf("budget stats: %w", err)
	}

	stats.GeneratedAt = time.Now().UTC()
	return stats, nil
}
