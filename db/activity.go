package db

import (
	"context"
	"fmt"
	"strings"

	"pms/models"

	"github.com/google/uuid"
)

// InsertActivity appends one audit entry. There is no update or delete path;
// the table trigger rejects both.
func (t *TxStore) InsertActivity(ctx context.Context, e *models.ActivityLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Metadata == nil {
		e.Metadata = models.Metadata{}
	}
	query := `
        INSERT INTO activity_logs (id, action, description, entity_type, entity_id, actor_id, metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at`
	err := t.tx.QueryRowxContext(ctx, query,
		e.ID, e.Action, e.Description, e.EntityType, e.EntityID, e.ActorID, e.Metadata).
		Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

const activitySelect = `
        SELECT l.id, l.action, l.description, l.entity_type, l.entity_id, l.actor_id,
               u.full_name AS actor_name, l.metadata, l.created_at
        FROM activity_logs l
        LEFT JOIN users u ON u.id = l.actor_id`

// ListActivity returns audit entries newest first.
func (s *Storage) ListActivity(ctx context.Context, f models.ActivityFilter) ([]models.ActivityLogEntry, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.EntityType != nil {
		args = append(args, *f.EntityType)
		conds = append(conds, fmt.Sprintf("l.entity_type = $%d", len(args)))
	}
	if f.EntityID != nil {
		args = append(args, *f.EntityID)
		conds = append(conds, fmt.Sprintf("l.entity_id = $%d", len(args)))
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := activitySelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY l.created_at DESC LIMIT %d", limit)

	entries := []models.ActivityLogEntry{}
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return entries, nil
}

func (s *Storage) GetActivity(ctx context.Context, id string) (*models.ActivityLogEntry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	e := &models.ActivityLogEntry{}
	if err := s.db.GetContext(ctx, e, activitySelect+` WHERE l.id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// ResolveEntity dereferences a polymorphic reference by its type. Each type
// has its own lookup since the referenced table varies.
func (s *Storage) ResolveEntity(ctx context.Context, ref models.EntityRef) (interface{}, error) {
	switch ref.Type {
	case models.EntityProgram:
		return s.GetProgram(ctx, ref.ID)
	case models.EntityApproval:
		return s.GetApproval(ctx, ref.ID)
	case models.EntityNotification:
		return s.GetNotification(ctx, ref.ID)
	}
	return nil, fmt.Errorf("unsupported entity type %q", ref.Type)
}
