package handlers

import (
	"context"

	"pms/internal/approval"
	"pms/internal/cache"
	"pms/models"
)

// StorageInterface is the read side and the non-engine writes used by handlers.
type StorageInterface interface {
	Ping(ctx context.Context) error

	ListWards(ctx context.Context) ([]models.Ward, error)
	ListFiscalYears(ctx context.Context) ([]models.FiscalYear, error)
	ActiveFiscalYear(ctx context.Context) (*models.FiscalYear, error)
	DashboardStats(ctx context.Context, fiscalYearID int) (*models.DashboardStats, error)
	FindUser(ctx context.Context, id string) (*models.User, error)

	ListActivity(ctx context.Context, f models.ActivityFilter) ([]models.ActivityLogEntry, error)
	GetActivity(ctx context.Context, id string) (*models.ActivityLogEntry, error)
	ResolveEntity(ctx context.Context, ref models.EntityRef) (interface{}, error)

	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, int, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, id string) error
}

// ApprovalEngine is implemented by *approval.Engine.
type ApprovalEngine interface {
	Resolve(ctx context.Context, approvalID string, action models.ApprovalAction, remarks *string, actor models.Actor) (*models.ApprovalRecord, error)
	ResolveBulk(ctx context.Context, approvalIDs []string, action models.ApprovalAction, remarks *string, actor models.Actor) (approval.BulkResult, error)
	List(ctx context.Context, f models.ApprovalFilter) ([]models.ApprovalView, error)
	ExportRows(ctx context.Context, f models.ApprovalFilter) ([]models.ApprovalView, error)
	Create(ctx context.Context, programID string, step models.Step, remarks *string, actor models.Actor) (*models.ApprovalRecord, error)
}

// ProgramService is implemented by *programs.Service.
type ProgramService interface {
	Create(ctx context.Context, p *models.Program, actor models.Actor) (*models.Program, error)
	Get(ctx context.Context, id string) (*models.Program, error)
	List(ctx context.Context, f models.ProgramFilter, limit, offset int) ([]models.Program, error)
	Submit(ctx context.Context, id string, actor models.Actor) (*models.Program, error)
	ChangeStatus(ctx context.Context, id string, status models.ProgramStatus, actor models.Actor) (*models.Program, error)
}

// StatsCache is implemented by *cache.StatsCache.
type StatsCache interface {
	GetOrLoad(ctx context.Context, fiscalYearID int, load cache.StatsLoader) (*models.DashboardStats, error)
	Invalidate(ctx context.Context)
}
