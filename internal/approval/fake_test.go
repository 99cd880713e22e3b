package approval

import (
	"context"
	"errors"
	"sync"

	"pms/db"
	"pms/models"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository. RunInTx serializes transactions and
// restores the previous state when fn fails.
type memRepo struct {
	mu            sync.Mutex
	approvals     map[string]*models.ApprovalRecord
	programs      map[string]*models.Program
	activity      []models.ActivityLogEntry
	notifications []models.Notification

	failActivity     error
	failNotification error
	listRows         []models.ApprovalRow
	lastFilter       models.ApprovalFilter
}

func newMemRepo() *memRepo {
	return &memRepo{
		approvals: map[string]*models.ApprovalRecord{},
		programs:  map[string]*models.Program{},
	}
}

func (m *memRepo) addProgram(id string, status models.ProgramStatus) *models.Program {
	p := &models.Program{ID: id, Code: "P-" + id, Name: "Program " + id, Status: status}
	m.programs[id] = p
	return p
}

func (m *memRepo) addApproval(id, programID string, step models.Step, status models.ApprovalStatus) {
	m.approvals[id] = &models.ApprovalRecord{ID: id, ProgramID: programID, Step: step, Status: status}
}

func (m *memRepo) RunInTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	approvals := map[string]models.ApprovalRecord{}
	for k, v := range m.approvals {
		approvals[k] = *v
	}
	programs := map[string]models.Program{}
	for k, v := range m.programs {
		programs[k] = *v
	}
	activity := len(m.activity)

	if err := fn(&memTx{m: m}); err != nil {
		m.approvals = map[string]*models.ApprovalRecord{}
		for k, v := range approvals {
			v := v
			m.approvals[k] = &v
		}
		m.programs = map[string]*models.Program{}
		for k, v := range programs {
			v := v
			m.programs[k] = &v
		}
		m.activity = m.activity[:activity]
		return err
	}
	return nil
}

func (m *memRepo) ListApprovals(ctx context.Context, f models.ApprovalFilter) ([]models.ApprovalRow, error) {
	m.lastFilter = f
	var out []models.ApprovalRow
	for _, r := range m.listRows {
		if f.Status == "" || string(r.Status) == f.Status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	if m.failNotification != nil {
		return m.failNotification
	}
	n.ID = uuid.NewString()
	m.notifications = append(m.notifications, *n)
	return nil
}

func (m *memRepo) activityFor(id string) []models.ActivityLogEntry {
	var out []models.ActivityLogEntry
	for _, e := range m.activity {
		if e.EntityID == id {
			out = append(out, e)
		}
	}
	return out
}

type memTx struct {
	m *memRepo
}

func (t *memTx) LockApproval(ctx context.Context, id string) (*models.ApprovalRecord, error) {
	rec, ok := t.m.approvals[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (t *memTx) MarkResolved(ctx context.Context, rec *models.ApprovalRecord) error {
	cur, ok := t.m.approvals[rec.ID]
	if !ok || cur.Status != models.ApprovalPending {
		return db.ErrStale
	}
	cp := *rec
	t.m.approvals[rec.ID] = &cp
	return nil
}

func (t *memTx) InsertApproval(ctx context.Context, rec *models.ApprovalRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	cp := *rec
	t.m.approvals[rec.ID] = &cp
	return nil
}

func (t *memTx) HasPendingApproval(ctx context.Context, programID string, step models.Step) (bool, error) {
	for _, a := range t.m.approvals {
		if a.ProgramID == programID && a.Step == step && a.Status == models.ApprovalPending {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) LockProgram(ctx context.Context, id string) (*models.Program, error) {
	p, ok := t.m.programs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) UpdateProgramStatus(ctx context.Context, id string, status models.ProgramStatus) error {
	p, ok := t.m.programs[id]
	if !ok {
		return db.ErrNotFound
	}
	p.Status = status
	return nil
}

func (t *memTx) InsertActivity(ctx context.Context, e *models.ActivityLogEntry) error {
	if t.m.failActivity != nil {
		return t.m.failActivity
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	t.m.activity = append(t.m.activity, *e)
	return nil
}

var errBoom = errors.New("boom")
