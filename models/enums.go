package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ProgramStatus is the closed lifecycle set of a Program.
type ProgramStatus string

const (
	ProgramDraft          ProgramStatus = "DRAFT"
	ProgramSubmitted      ProgramStatus = "SUBMITTED"
	ProgramApproved       ProgramStatus = "APPROVED"
	ProgramRejected       ProgramStatus = "REJECTED"
	ProgramVerified       ProgramStatus = "VERIFIED"
	ProgramRecommended    ProgramStatus = "RECOMMENDED"
	ProgramContracted     ProgramStatus = "CONTRACTED"
	ProgramMonitoring     ProgramStatus = "MONITORING"
	ProgramPaymentRunning ProgramStatus = "PAYMENT_RUNNING"
	ProgramPaymentFinal   ProgramStatus = "PAYMENT_FINAL"
	ProgramClosed         ProgramStatus = "CLOSED"
	ProgramArchived       ProgramStatus = "ARCHIVED"
)

var programStatuses = map[ProgramStatus]bool{
	ProgramDraft: true, ProgramSubmitted: true, ProgramApproved: true, ProgramRejected: true,
	ProgramVerified: true, ProgramRecommended: true, ProgramContracted: true, ProgramMonitoring: true,
	ProgramPaymentRunning: true, ProgramPaymentFinal: true, ProgramClosed: true, ProgramArchived: true,
}

func (s ProgramStatus) Valid() bool {
	return programStatuses[s]
}

// ApprovalStatus is the state of one ApprovalRecord. Everything but pending is terminal.
type ApprovalStatus string

const (
	ApprovalPending           ApprovalStatus = "pending"
	ApprovalApproved          ApprovalStatus = "approved"
	ApprovalRejected          ApprovalStatus = "rejected"
	ApprovalReuploadRequested ApprovalStatus = "re-upload-requested"
)

func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalReuploadRequested:
		return true
	}
	return false
}

// ApprovalAction is what a reviewer does to a pending record.
type ApprovalAction string

const (
	ActionApprove         ApprovalAction = "approve"
	ActionReject          ApprovalAction = "reject"
	ActionRequestReupload ApprovalAction = "request_reupload"
)

// TargetStatus is the record status an action resolves to.
func (a ApprovalAction) TargetStatus() (ApprovalStatus, bool) {
	switch a {
	case ActionApprove:
		return ApprovalApproved, true
	case ActionReject:
		return ApprovalRejected, true
	case ActionRequestReupload:
		return ApprovalReuploadRequested, true
	}
	return "", false
}

// AllowedInBulk reports whether the action may be applied to a batch.
func (a ApprovalAction) AllowedInBulk() bool {
	return a == ActionApprove || a == ActionReject
}

// Priority is shared by notifications and derived approval priority.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

type NotificationType string

const (
	NotificationDeadline NotificationType = "deadline"
	NotificationApproval NotificationType = "approval"
	NotificationPayment  NotificationType = "payment"
	NotificationInfo     NotificationType = "info"
	NotificationWarning  NotificationType = "warning"
	NotificationError    NotificationType = "error"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationDeadline, NotificationApproval, NotificationPayment,
		NotificationInfo, NotificationWarning, NotificationError:
		return true
	}
	return false
}

// EntityType discriminates polymorphic references on audit and inbox rows.
type EntityType string

const (
	EntityProgram      EntityType = "program"
	EntityApproval     EntityType = "approval"
	EntityNotification EntityType = "notification"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityProgram, EntityApproval, EntityNotification:
		return true
	}
	return false
}

// EntityRef points at a row whose table depends on Type. It is not a foreign
// key; callers must check Type before dereferencing.
type EntityRef struct {
	Type EntityType `json:"entityType"`
	ID   string     `json:"entityId"`
}

// Metadata is an open key-value bag stored as JSONB.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported source type %T", src)
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	*m = out
	return nil
}

// WardLabel renders a ward number the way listings show it.
func WardLabel(number int) string {
	return "Ward " + strconv.Itoa(number)
}

var ErrUnknownStep = errors.New("unknown approval step")
