package models

import (
	"time"

	"github.com/lib/pq"
)

// Program is a capital project tracked from draft to closure.
type Program struct {
	ID                 string         `db:"id" json:"id"`
	Code               string         `db:"code" json:"code"`
	Name               string         `db:"name" json:"name"`
	FiscalYearID       int            `db:"fiscal_year_id" json:"fiscalYearId"`
	WardID             int            `db:"ward_id" json:"wardId"`
	ProgramTypeID      int            `db:"program_type_id" json:"programTypeId"`
	FundingSourceID    int            `db:"funding_source_id" json:"fundingSourceId"`
	Budget             *float64       `db:"budget" json:"budget,omitempty"`
	Status             ProgramStatus  `db:"status" json:"status"`
	Description        string         `db:"description" json:"description"`
	Tags               pq.StringArray `db:"tags" json:"tags"`
	ResponsibleOfficer string         `db:"responsible_officer" json:"responsibleOfficer"`
	StartDate          *time.Time     `db:"start_date" json:"startDate,omitempty"`
	EndDate            *time.Time     `db:"end_date" json:"endDate,omitempty"`
	CreatedBy          string         `db:"created_by" json:"createdBy"`
	CreatedAt          time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updatedAt"`
}

// ProgramFilter narrows program listings. Nil fields are not applied.
type ProgramFilter struct {
	WardID       *int
	FiscalYearID *int
	Status       *ProgramStatus
}

// Ward is a municipal administrative subdivision.
type Ward struct {
	ID     int    `db:"id" json:"id"`
	Number int    `db:"number" json:"number"`
	Name   string `db:"name" json:"name"`
}

// Label is the short display form used in listings and exports.
func (w Ward) Label() string {
	return WardLabel(w.Number)
}

// FiscalYear is a budget period. At most one is active at a time.
type FiscalYear struct {
	ID        int       `db:"id" json:"id"`
	Label     string    `db:"label" json:"label"`
	StartDate time.Time `db:"start_date" json:"startDate"`
	EndDate   time.Time `db:"end_date" json:"endDate"`
	IsActive  bool      `db:"is_active" json:"isActive"`
}

type ProgramType struct {
	ID   int    `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

type FundingSource struct {
	ID   int    `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

type Role struct {
	ID   int    `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// User is a staff account. Programs reference their creator.
type User struct {
	ID        string    `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	FullName  string    `db:"full_name" json:"fullName"`
	RoleID    int       `db:"role_id" json:"roleId"`
	WardID    *int      `db:"ward_id" json:"wardId,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Actor is the authenticated identity performing a request.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

const RoleAdmin = "admin"

// ApprovalRecord is one workflow step instance for a program. Once its status
// leaves pending it is never written again.
type ApprovalRecord struct {
	ID         string         `db:"id" json:"id"`
	ProgramID  string         `db:"program_id" json:"programId"`
	Step       Step           `db:"step" json:"step"`
	Status     ApprovalStatus `db:"status" json:"status"`
	Remarks    *string        `db:"remarks" json:"remarks,omitempty"`
	ApprovedBy *string        `db:"approved_by" json:"approvedBy,omitempty"`
	ResolvedAt *time.Time     `db:"resolved_at" json:"approvedAt,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
}

// ApprovalFilter is shared by the list and export paths so both see the same rows.
type ApprovalFilter struct {
	Status       string
	WardID       *int
	FiscalYearID *int
}

// ApprovalRow is the joined storage projection behind ApprovalView.
type ApprovalRow struct {
	ID            string         `db:"id"`
	ProgramID     string         `db:"program_id"`
	ProgramName   string         `db:"program_name"`
	ProgramCode   string         `db:"program_code"`
	WardNumber    int            `db:"ward_number"`
	WardName      string         `db:"ward_name"`
	Step          Step           `db:"step"`
	Status        ApprovalStatus `db:"status"`
	Remarks       *string        `db:"remarks"`
	ApproverName  *string        `db:"approver_name"`
	ResolvedAt    *time.Time     `db:"resolved_at"`
	CreatedAt     time.Time      `db:"created_at"`
	FiscalYear    string         `db:"fiscal_year"`
	ProgramType   string         `db:"program_type"`
	FundingSource string         `db:"funding_source"`
	Budget        *float64       `db:"budget"`
}

// ApprovalView is the denormalized approval listing. SubmittedBy, DocumentType
// and Priority are derived from Step and never stored.
type ApprovalView struct {
	ID            string         `json:"id"`
	ProgramID     string         `json:"programId"`
	ProgramName   string         `json:"programName"`
	ProgramCode   string         `json:"programCode"`
	Ward          string         `json:"ward"`
	WardName      string         `json:"wardName"`
	SubmittedBy   string         `json:"submittedBy"`
	SubmittedDate time.Time      `json:"submittedDate"`
	DocumentType  string         `json:"documentType"`
	Remarks       string         `json:"remarks"`
	Status        ApprovalStatus `json:"status"`
	Priority      Priority       `json:"priority"`
	Step          Step           `json:"step"`
	ApprovedBy    *string        `json:"approvedBy,omitempty"`
	ApprovedAt    *time.Time     `json:"approvedAt,omitempty"`
	FiscalYear    string         `json:"fiscalYear"`
	ProgramType   string         `json:"programType"`
	Budget        *float64       `json:"budget,omitempty"`
}

// NewApprovalView projects a storage row, filling the step-derived fields.
func NewApprovalView(r ApprovalRow) ApprovalView {
	v := ApprovalView{
		ID:            r.ID,
		ProgramID:     r.ProgramID,
		ProgramName:   r.ProgramName,
		ProgramCode:   r.ProgramCode,
		Ward:          WardLabel(r.WardNumber),
		WardName:      r.WardName,
		SubmittedBy:   r.Step.SubmittedBy(),
		SubmittedDate: r.CreatedAt,
		DocumentType:  r.Step.DocumentType(),
		Status:        r.Status,
		Priority:      r.Step.Priority(),
		Step:          r.Step,
		ApprovedBy:    r.ApproverName,
		ApprovedAt:    r.ResolvedAt,
		FiscalYear:    r.FiscalYear,
		ProgramType:   r.ProgramType,
		Budget:        r.Budget,
	}
	if r.Remarks != nil {
		v.Remarks = *r.Remarks
	}
	return v
}

// ActivityLogEntry is an append-only audit row. ActorID nil means the system acted.
type ActivityLogEntry struct {
	ID          string     `db:"id" json:"id"`
	Action      string     `db:"action" json:"action"`
	Description string     `db:"description" json:"description"`
	EntityType  EntityType `db:"entity_type" json:"entityType"`
	EntityID    string     `db:"entity_id" json:"entityId"`
	ActorID     *string    `db:"actor_id" json:"actorId,omitempty"`
	ActorName   *string    `db:"actor_name" json:"-"`
	Metadata    Metadata   `db:"metadata" json:"metadata"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

// Entity returns the polymorphic reference carried by the entry.
func (e ActivityLogEntry) Entity() EntityRef {
	return EntityRef{Type: e.EntityType, ID: e.EntityID}
}

// Performer is the display name of whoever wrote the entry.
func (e ActivityLogEntry) Performer() string {
	if e.ActorName != nil && *e.ActorName != "" {
		return *e.ActorName
	}
	if e.ActorID == nil {
		return "System"
	}
	return *e.ActorID
}

// ActivityFilter narrows audit listings.
type ActivityFilter struct {
	EntityType *EntityType
	EntityID   *string
	Limit      int
}

// Notification is an inbox row. A nil UserID is a broadcast.
type Notification struct {
	ID         string           `db:"id" json:"id"`
	Title      string           `db:"title" json:"title"`
	Message    string           `db:"message" json:"message"`
	Type       NotificationType `db:"type" json:"type"`
	Priority   Priority         `db:"priority" json:"priority"`
	UserID     *string          `db:"user_id" json:"userId,omitempty"`
	IsRead     bool             `db:"is_read" json:"read"`
	ExpiresAt  *time.Time       `db:"expires_at" json:"expiresAt,omitempty"`
	EntityType *EntityType      `db:"entity_type" json:"entityType,omitempty"`
	EntityID   *string          `db:"entity_id" json:"entityId,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"createdAt"`
}

// Entity returns the referenced entity, if any.
func (n Notification) Entity() (EntityRef, bool) {
	if n.EntityType == nil || n.EntityID == nil {
		return EntityRef{}, false
	}
	return EntityRef{Type: *n.EntityType, ID: *n.EntityID}, true
}

// DashboardStats is the aggregate view for one fiscal year.
type DashboardStats struct {
	FiscalYearID      int            `json:"fiscalYearId"`
	ProgramsByStatus  map[string]int `json:"programsByStatus"`
	ApprovalsByStatus map[string]int `json:"approvalsByStatus"`
	TotalPrograms     int            `json:"totalPrograms"`
	TotalBudget       float64        `json:"totalBudget"`
	GeneratedAt       time.Time      `json:"generatedAt"`
}

// StatusCount is one grouped aggregate row.
type StatusCount struct {
	Status string `db:"status"`
	Count  int    `db:"count"`
}
