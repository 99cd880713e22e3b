// Package approval implements the program approval state machine: one-shot
// resolution of pending approval records, the cascade onto the owning
// program, and the audit entry every mutation writes.
package approval

import (
	"context"

	"pms/db"
	"pms/models"
)

// Tx is the set of writes that share one storage transaction.
type Tx interface {
	LockApproval(ctx context.Context, id string) (*models.ApprovalRecord, error)
	MarkResolved(ctx context.Context, rec *models.ApprovalRecord) error
	InsertApproval(ctx context.Context, rec *models.ApprovalRecord) error
	HasPendingApproval(ctx context.Context, programID string, step models.Step) (bool, error)
	LockProgram(ctx context.Context, id string) (*models.Program, error)
	UpdateProgramStatus(ctx context.Context, id string, status models.ProgramStatus) error
	InsertActivity(ctx context.Context, e *models.ActivityLogEntry) error
}

// Repository is what the engine needs from storage.
type Repository interface {
	RunInTx(ctx context.Context, fn func(Tx) error) error
	ListApprovals(ctx context.Context, f models.ApprovalFilter) ([]models.ApprovalRow, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
}

type sqlRepository struct {
	*db.Storage
}

// NewSQLRepository adapts the Postgres storage to Repository.
func NewSQLRepository(s *db.Storage) Repository {
	return sqlRepository{Storage: s}
}

func (r sqlRepository) RunInTx(ctx context.Context, fn func(Tx) error) error {
	return r.Storage.RunInTx(ctx, func(tx *db.TxStore) error {
		return fn(tx)
	})
}
