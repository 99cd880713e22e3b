// Package programs manages the program lifecycle outside the approval engine:
// creation, submission and explicit admin status changes.
package programs

import (
	"context"
	"errors"
	"fmt"

	"pms/db"
	"pms/internal/apperr"
	"pms/internal/logger"
	"pms/models"
)

const (
	ActivityProgramCreated       = "program_created"
	ActivityProgramSubmitted     = "program_submitted"
	ActivityProgramStatusChanged = "program_status_changed"
)

type Tx interface {
	InsertProgram(ctx context.Context, p *models.Program) error
	LockProgram(ctx context.Context, id string) (*models.Program, error)
	UpdateProgramStatus(ctx context.Context, id string, status models.ProgramStatus) error
	InsertActivity(ctx context.Context, e *models.ActivityLogEntry) error
}

type Repository interface {
	RunInTx(ctx context.Context, fn func(Tx) error) error
	GetProgram(ctx context.Context, id string) (*models.Program, error)
	ListPrograms(ctx context.Context, f models.ProgramFilter, limit, offset int) ([]models.Program, error)
}

type sqlRepository struct {
	*db.Storage
}

func NewSQLRepository(s *db.Storage) Repository {
	return sqlRepository{Storage: s}
}

func (r sqlRepository) RunInTx(ctx context.Context, fn func(Tx) error) error {
	return r.Storage.RunInTx(ctx, func(tx *db.TxStore) error {
		return fn(tx)
	})
}

type Service struct {
	repo Repository
	log  logger.Logger
}

func NewService(repo Repository, log logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Create stores p in DRAFT owned by actor.
func (s *Service) Create(ctx context.Context, p *models.Program, actor models.Actor) (*models.Program, error) {
	if actor.ID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	p.ID = ""
	p.Status = models.ProgramDraft
	p.CreatedBy = actor.ID
	if p.Tags == nil {
		p.Tags = []string{}
	}

	err := s.repo.RunInTx(ctx, func(tx Tx) error {
		if err := tx.InsertProgram(ctx, p); err != nil {
			return err
		}
		return tx.InsertActivity(ctx, &models.ActivityLogEntry{
			Action:      ActivityProgramCreated,
			Description: fmt.Sprintf("Program %s (%s) created", p.Name, p.Code),
			EntityType:  models.EntityProgram,
			EntityID:    p.ID,
			ActorID:     &actor.ID,
			Metadata:    models.Metadata{"code": p.Code, "status": string(p.Status)},
		})
	})
	if errors.Is(err, db.ErrDuplicate) {
		return nil, apperr.Conflict("program code %q already exists", p.Code).WithDetail("field", "code")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.log.Info("program created", map[string]interface{}{"program_id": p.ID, "code": p.Code})
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Program, error) {
	p, err := s.repo.GetProgram(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("program", id)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, f models.ProgramFilter, limit, offset int) ([]models.Program, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, apperr.Validation("invalid status %q", *f.Status).WithDetail("field", "status")
	}
	list, err := s.repo.ListPrograms(ctx, f, limit, offset)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return list, nil
}

// Submit moves a DRAFT program to SUBMITTED. Only the creator or an admin may.
func (s *Service) Submit(ctx context.Context, id string, actor models.Actor) (*models.Program, error) {
	return s.transition(ctx, id, actor, ActivityProgramSubmitted, func(p *models.Program) (models.ProgramStatus, error) {
		if p.CreatedBy != actor.ID && !actor.IsAdmin() {
			return "", apperr.Forbidden("only the creator can submit this program")
		}
		if p.Status != models.ProgramDraft {
			return "", apperr.Conflict("program is %s; only DRAFT programs can be submitted", p.Status)
		}
		return models.ProgramSubmitted, nil
	})
}

// ChangeStatus is the admin override. Programs are archived, never deleted.
func (s *Service) ChangeStatus(ctx context.Context, id string, status models.ProgramStatus, actor models.Actor) (*models.Program, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("admin role required")
	}
	if !status.Valid() {
		return nil, apperr.Validation("invalid status %q", status).WithDetail("field", "status")
	}
	return s.transition(ctx, id, actor, ActivityProgramStatusChanged, func(*models.Program) (models.ProgramStatus, error) {
		return status, nil
	})
}

func (s *Service) transition(ctx context.Context, id string, actor models.Actor, action string,
	next func(*models.Program) (models.ProgramStatus, error)) (*models.Program, error) {
	if actor.ID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}

	var out *models.Program
	err := s.repo.RunInTx(ctx, func(tx Tx) error {
		p, err := tx.LockProgram(ctx, id)
		if err != nil {
			return err
		}
		status, err := next(p)
		if err != nil {
			return err
		}
		out = p
		if status == p.Status {
			return nil
		}
		previous := p.Status
		if err := tx.UpdateProgramStatus(ctx, p.ID, status); err != nil {
			return err
		}
		p.Status = status
		return tx.InsertActivity(ctx, &models.ActivityLogEntry{
			Action:      action,
			Description: fmt.Sprintf("Program %s (%s) moved from %s to %s", p.Name, p.Code, previous, status),
			EntityType:  models.EntityProgram,
			EntityID:    p.ID,
			ActorID:     &actor.ID,
			Metadata:    models.Metadata{"previousStatus": string(previous), "status": string(status)},
		})
	})
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, apperr.NotFound("program", id)
	case err != nil:
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		s.log.WithError(err).Error("program transition failed", map[string]interface{}{"program_id": id, "action": action})
		return nil, apperr.Internal(err)
	}
	return out, nil
}
