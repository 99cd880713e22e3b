package approval

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"pms/internal/apperr"
	"pms/internal/logger"
	"pms/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	reviewer = models.Actor{ID: "7b0c1f0e-3f57-4b8e-9d43-0d7f3f3f1a11", Name: "Sita Sharma", Role: "cao"}
	fixedNow = time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
)

func newTestEngine(t *testing.T, repo *memRepo) *Engine {
	t.Helper()
	e := NewEngine(repo, logger.NewTestLogger(t))
	e.now = func() time.Time { return fixedNow }
	return e
}

func strPtr(s string) *string { return &s }

func TestResolveTerminalApproveThenConflict(t *testing.T) {
	repo := newMemRepo()
	repo.addProgram("P1", models.ProgramSubmitted)
	repo.addApproval("A1", "P1", models.StepCAO, models.ApprovalPending)
	e := newTestEngine(t, repo)
	ctx := context.Background()

	rec, err := e.Resolve(ctx, "A1", models.ActionApprove, strPtr("looks good"), reviewer)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, rec.Status)
	require.NotNil(t, rec.ResolvedAt)
	assert.Equal(t, fixedNow, *rec.ResolvedAt)
	require.NotNil(t, rec.ApprovedBy)
	assert.Equal(t, reviewer.ID, *rec.ApprovedBy)
	assert.Equal(t, models.ProgramApproved, repo.programs["P1"].Status)

	_, err = e.Resolve(ctx, "A1", models.ActionReject, nil, reviewer)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, MsgAlreadyProcessed, apperr.From(err).Message)

	assert.Equal(t, models.ProgramApproved, repo.programs["P1"].Status)
	assert.Equal(t, models.ApprovalApproved, repo.approvals["A1"].Status)
	assert.Equal(t, "looks good", *repo.approvals["A1"].Remarks)
	assert.Len(t, repo.activityFor("A1"), 1)
}

func TestResolveWritesOneActivityEntry(t *testing.T) {
	repo := newMemRepo()
	repo.addProgram("P1", models.ProgramSubmitted)
	repo.addApproval("A1", "P1", models.StepPlanningOfficer, models.ApprovalPending)
	e := newTestEngine(t, repo)

	_, err := e.Resolve(context.Background(), "A1", models.ActionReject, strPtr("missing estimate"), reviewer)
	require.NoError(t, err)

	require.Len(t, repo.activity, 1)
	entry := repo.activity[0]
	assert.Equal(t, models.EntityApproval, entry.EntityType)
	assert.Equal(t, "A1", entry.EntityID)
	assert.Equal(t, ActivityApprovalRejected, entry.Action)
	assert.Equal(t, reviewer.ID, *entry.ActorID)
	assert.Equal(t, "P1", entry.Metadata["programId"])
	assert.Equal(t, "planning_officer", entry.Metadata["step"])
	assert.Equal(t, "missing estimate", entry.Metadata["remarks"])
	assert.Contains(t, entry.Description, "Sita Sharma rejected Cost Estimate")
}

func TestResolveCascade(t *testing.T) {
	tests := []struct {
		name   string
		step   models.Step
		action models.ApprovalAction
		want   models.ProgramStatus
		record models.ApprovalStatus
	}{
		{"cao approve promotes", models.StepCAO, models.ActionApprove, models.ProgramApproved, models.ApprovalApproved},
		{"cao reject resets to draft", models.StepCAO, models.ActionReject, models.ProgramDraft, models.ApprovalRejected},
		{"cao reupload leaves program", models.StepCAO, models.ActionRequestReupload, models.ProgramSubmitted, models.ApprovalReuploadRequested},
		{"ward secretary approve", models.StepWardSecretary, models.ActionApprove, models.ProgramSubmitted, models.ApprovalApproved},
		{"planning officer approve", models.StepPlanningOfficer, models.ActionApprove, models.ProgramSubmitted, models.ApprovalApproved},
		{"technical head approve", models.StepTechnicalHead, models.ActionApprove, models.ProgramSubmitted, models.ApprovalApproved},
		{"ward secretary reject", models.StepWardSecretary, models.ActionReject, models.ProgramSubmitted, models.ApprovalRejected},
		{"technical head reupload", models.StepTechnicalHead, models.ActionRequestReupload, models.ProgramSubmitted, models.ApprovalReuploadRequested},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemRepo()
			repo.addProgram("P1", models.ProgramSubmitted)
			repo.addApproval("A1", "P1", tc.step, models.ApprovalPending)
			e := newTestEngine(t, repo)

			rec, err := e.Resolve(context.Background(), "A1", tc.action, nil, reviewer)
			require.NoError(t, err)
			assert.Equal(t, tc.record, rec.Status)
			assert.Equal(t, tc.want, repo.programs["P1"].Status)
			assert.Equal(t, string(tc.want), repo.activity[0].Metadata["programStatus"])
		})
	}
}

func TestResolveErrors(t *testing.T) {
	repo := newMemRepo()
	repo.addProgram("P1", models.ProgramSubmitted)
	repo.addApproval("A1", "P1", models.StepCAO, models.ApprovalPending)
	e := newTestEngine(t, repo)
	ctx := context.Background()

	_, err := e.Resolve(ctx, "missing", models.ActionApprove, nil, reviewer)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = e.Resolve(ctx, "A1", models.ApprovalAction("escalate"), nil, reviewer)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = e.Resolve(ctx, "", models.ActionApprove, nil, reviewer)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = e.Resolve(ctx, "A1", models.ActionApprove, nil, models.Actor{})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	assert.Equal(t, models.ApprovalPending, repo.approvals["A1"].Status)
	assert.Empty(t, repo.activity)
}

func TestResolveRollsBackWhenAuditFails(t *testing.T) {
	repo := newMemRepo()
	repo.addProgram("P1", models.ProgramSubmitted)
	repo.addApproval("A1", "P1", models.StepCAO, models.ApprovalPending)
	repo.failActivity = errBoom
	e := newTestEngine(t, repo)

	_, err := e.Resolve(context.Background(), "A1", models.ActionApprove, nil, reviewer)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.ErrorIs(t, err, errBoom)

	assert.Equal(t, models.ApprovalPending, repo.approvals["A1"].Status)
	assert.Nil(t, repo.approvals["A1"].ResolvedAt)
	assert.Equal(t, models.ProgramSubmitted, repo.programs["P1"].Status)
	assert.Empty(t, repo.activity)
}

func TestResolveBulkSkipsUnknown(t *testing.T) {
	repo := newMemRepo()
	repo.addProgram("P1", models.ProgramSubmitted)
	repo.addApproval("A1", "P1", models.StepCAO, models.ApprovalPending)
	e := newTestEngine(t, repo)

	res, err := e.ResolveBulk(context.Background(), []string{"A1", "doesnotexist"}, models.ActionApprove, nil, reviewer)
	require.NoError(t, err)
	assert.Equal(t, BulkResult{ProcessedCount: 1, TotalRequested: 2}, res)
	assert.Equal(t, models.ApprovalApproved, repo.approvals["A1"].Status)
	assert.Equal(t, models.ProgramApproved, repo.programs["P1"].Status)
}

func TestResolveBulkAppliesSingleRulePerRecord(t *testing.T) {
	repo := newMemRepo()
	repo.addProgram("P1", models.ProgramSubmitted)
	repo.addProgram("P2", models.ProgramSubmitted)
	repo.addApproval("V1", "P1", models.StepCAO, models.ApprovalPending)
	repo.addApproval("V2", "P2", models.StepWardSecretary, models.ApprovalPending)
	repo.addApproval("DONE", "P2", models.StepPlanningOfficer, models.ApprovalApproved)
	e := newTestEngine(t, repo)

	res, err := e.ResolveBulk(context.Background(),
		[]string{"V1", "unknown", "V2", "DONE"}, models.ActionReject, strPtr("budget cut"), reviewer)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ProcessedCount)
	assert.Equal(t, 4, res.TotalRequested)

	assert.Equal(t, models.ApprovalRejected, repo.approvals["V1"].Status)
	assert.Equal(t, models.ApprovalRejected, repo.approvals["V2"].Status)
	assert.Equal(t, models.ApprovalApproved, repo.approvals["DONE"].Status)
	assert.Equal(t, models.ProgramDraft, repo.programs["P1"].Status)
	assert.Equal(t, models.ProgramSubmitted, repo.programs["P2"].Status)
	assert.Len(t, repo.activityFor("V1"), 1)
	assert.Len(t, repo.activityFor("V2"), 1)
	assert.Empty(t, repo.activityFor("DONE"))
}

func TestResolveBulkDuplicateIDsResolveOnce(t *testing.T) {
	repo := newMemRepo()
	repo.addProgram("P1", models.ProgramSubmitted)
	repo.addApproval("A1", "P1", models.StepWardSecretary, models.ApprovalPending)
	e := newTestEngine(t, repo)

	res, err := e.ResolveBulk(context.Background(), []string{"A1", "A1"}, models.ActionApprove, nil, reviewer)
	require.NoError(t, err)
	assert.Equal(t, BulkResult{ProcessedCount: 1, TotalRequested: 2}, res)
	assert.Len(t, repo.activity, 1)
}

func TestResolveBulkValidation(t *testing.T) {
	e := newTestEngine(t, newMemRepo())
	ctx := context.Background()

	_, err := e.ResolveBulk(ctx, nil, models.ActionApprove, nil, reviewer)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = e.ResolveBulk(ctx, []string{"A1"}, models.ActionRequestReupload, nil, reviewer)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = e.ResolveBulk(ctx, []string{"A1"}, models.ActionApprove, nil, models.Actor{})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestResolveBulkRollsBackWholeBatch(t *testing.T) {
	repo := newMemRepo()
	repo.addProgram("P1", models.ProgramSubmitted)
	repo.addApproval("A1", "P1", models.StepCAO, models.ApprovalPending)
	repo.addApproval("A2", "P1", models.StepWardSecretary, models.ApprovalPending)
	repo.failActivity = errBoom
	e := newTestEngine(t, repo)

	_, err := e.ResolveBulk(context.Background(), []string{"A1", "A2"}, models.ActionApprove, nil, reviewer)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	assert.Equal(t, models.ApprovalPending, repo.approvals["A1"].Status)
	assert.Equal(t, models.ApprovalPending, repo.approvals["A2"].Status)
	assert.Equal(t, models.ProgramSubmitted, repo.programs["P1"].Status)
}

func listFixture() []models.ApprovalRow {
	budget := 1250000.0
	approver := "Sita Sharma"
	resolved := fixedNow
	return []models.ApprovalRow{
		{ID: "A1", ProgramID: "P1", ProgramName: "Road upgrade", ProgramCode: "RD-01", WardNumber: 3,
			WardName: "Ward 3", Step: models.StepCAO, Status: models.ApprovalPending, CreatedAt: fixedNow,
			FiscalYear: "2025/26", ProgramType: "Infrastructure", Budget: &budget},
		{ID: "A2", ProgramID: "P2", ProgramName: "School roof", ProgramCode: "ED-07", WardNumber: 1,
			WardName: "Ward 1", Step: models.StepWardSecretary, Status: models.ApprovalApproved, CreatedAt: fixedNow,
			ApproverName: &approver, ResolvedAt: &resolved, Remarks: strPtr("ok, with \"quotes\""),
			FiscalYear: "2025/26", ProgramType: "Education"},
	}
}

func TestList(t *testing.T) {
	repo := newMemRepo()
	repo.listRows = listFixture()
	e := newTestEngine(t, repo)
	ctx := context.Background()

	views, err := e.List(ctx, models.ApprovalFilter{Status: "all"})
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "", repo.lastFilter.Status)

	cao := views[0]
	assert.Equal(t, "Ward 3", cao.Ward)
	assert.Equal(t, "Planning Officer", cao.SubmittedBy)
	assert.Equal(t, "Final Approval Request", cao.DocumentType)
	assert.Equal(t, models.PriorityHigh, cao.Priority)

	pending, err := e.List(ctx, models.ApprovalFilter{Status: "pending"})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = e.List(ctx, models.ApprovalFilter{Status: "stuck"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestExportMatchesList(t *testing.T) {
	repo := newMemRepo()
	repo.listRows = listFixture()
	e := newTestEngine(t, repo)
	ctx := context.Background()

	for _, status := range []string{"", "pending", "approved", "rejected"} {
		f := models.ApprovalFilter{Status: status}
		views, err := e.List(ctx, f)
		require.NoError(t, err)
		rows, err := e.ExportRows(ctx, f)
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, rows))
		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Equal(t, exportHeader, records[0])
		assert.Equal(t, len(views), len(records)-1, "status %q", status)
	}
}

func TestWriteCSVColumns(t *testing.T) {
	var buf bytes.Buffer
	views := []models.ApprovalView{models.NewApprovalView(listFixture()[1]), models.NewApprovalView(listFixture()[0])}
	require.NoError(t, WriteCSV(&buf, views))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{
		"ED-07", "School roof", "Ward 1", "2025/26", "Education", "",
		"approved", "ward_secretary", "2025-09-01", "Sita Sharma", "2025-09-01", "ok, with \"quotes\"",
	}, records[1])
	assert.Equal(t, "1250000.00", records[2][5])
	assert.Equal(t, "", records[2][9])
}

func TestCreate(t *testing.T) {
	repo := newMemRepo()
	repo.addProgram("P1", models.ProgramSubmitted)
	e := newTestEngine(t, repo)
	ctx := context.Background()

	rec, err := e.Create(ctx, "P1", models.StepPlanningOfficer, nil, reviewer)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, models.ApprovalPending, repo.approvals[rec.ID].Status)

	entries := repo.activityFor(rec.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, ActivityApprovalCreated, entries[0].Action)

	require.Len(t, repo.notifications, 1)
	n := repo.notifications[0]
	assert.Equal(t, models.NotificationApproval, n.Type)
	assert.Equal(t, models.PriorityMedium, n.Priority)
	assert.Nil(t, n.UserID)
	ref, ok := n.Entity()
	require.True(t, ok)
	assert.Equal(t, models.EntityRef{Type: models.EntityApproval, ID: rec.ID}, ref)

	_, err = e.Create(ctx, "P1", models.StepPlanningOfficer, nil, reviewer)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = e.Create(ctx, "nope", models.StepCAO, nil, reviewer)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreateSurvivesNotificationFailure(t *testing.T) {
	repo := newMemRepo()
	repo.addProgram("P1", models.ProgramSubmitted)
	repo.failNotification = errBoom
	e := newTestEngine(t, repo)

	rec, err := e.Create(context.Background(), "P1", models.StepCAO, nil, reviewer)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, repo.approvals[rec.ID].Status)
	assert.Empty(t, repo.notifications)
}

func TestCascadeStatus(t *testing.T) {
	for _, s := range models.Steps() {
		for _, a := range []models.ApprovalAction{models.ActionApprove, models.ActionReject, models.ActionRequestReupload} {
			status, ok := CascadeStatus(s, a)
			if s != models.StepCAO || a == models.ActionRequestReupload {
				assert.False(t, ok, "%s/%s", s, a)
				assert.Empty(t, status)
			}
		}
	}
}
