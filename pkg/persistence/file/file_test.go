package file

import (
	"context"
	"testing"
	"time"

	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/renocrm/workflow-engine/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence("file://" + t.TempDir())
}

func TestPersistence_HealthCheck(t *testing.T) {
	p := newTestPersistence(t)
	require.NoError(t, p.HealthCheck(context.Background()))

	missing := NewPersistence("/does/not/exist/anywhere")
	require.Error(t, missing.HealthCheck(context.Background()))
}

func TestDefinitionRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).DefinitionRepository()

	definition := &models.WorkflowDefinition{
		AccountID: "acc-1",
		Name:      "Quote approval",
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		Steps: []*models.WorkflowStep{
			{Name: "Notify", StepType: models.StepTypeNotification, Position: 5},
			{
				Name: "Manager", StepType: models.StepTypeApproval, Position: 0,
				Approvers: []*models.StepApprover{
					{UserID: "u2", ApproverType: models.ApproverTypeOptional, Order: 2},
					{UserID: "u1", ApproverType: models.ApproverTypeRequired, Order: 1},
				},
			},
			{ID: "task", Name: "Site visit", StepType: models.StepTypeTask, Position: 2},
		},
	}

	require.NoError(t, repo.Create(ctx, definition))
	require.NotEmpty(t, definition.ID)

	loaded, err := repo.GetByID(ctx, definition.ID, "acc-1")
	require.NoError(t, err)

	require.Len(t, loaded.Steps, 3)
	assert.Equal(t, []int{0, 2, 5}, []int{loaded.Steps[0].Position, loaded.Steps[1].Position, loaded.Steps[2].Position})
	assert.Equal(t, "task", loaded.Steps[1].ID)

	for _, step := range loaded.Steps {
		assert.NotEmpty(t, step.ID)
		assert.Equal(t, definition.ID, step.WorkflowID)
	}

	approvers := loaded.Steps[0].Approvers
	require.Len(t, approvers, 2)
	assert.Equal(t, "u1", approvers[0].UserID)
	assert.Equal(t, "u2", approvers[1].UserID)
	assert.Equal(t, loaded.Steps[0].ID, approvers[0].StepID)

	_, err = repo.GetByID(ctx, definition.ID, "acc-2")
	require.ErrorIs(t, err, persistence.ErrDefinitionNotFound)

	_, err = repo.GetByID(ctx, "../escape", "acc-1")
	require.ErrorIs(t, err, persistence.ErrDefinitionNotFound)
}

func TestDefinitionRepository_ListAndSetActive(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).DefinitionRepository()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, account := range []string{"acc-1", "acc-1", "acc-2"} {
		require.NoError(t, repo.Create(ctx, &models.WorkflowDefinition{
			AccountID: account,
			Name:      "Workflow",
			IsActive:  true,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	list, err := repo.ListByAccount(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt))

	updated, err := repo.SetActive(ctx, list[0].ID, "acc-1", false, base.Add(48*time.Hour))
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	reloaded, err := repo.GetByID(ctx, list[0].ID, "acc-1")
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive)

	_, err = repo.SetActive(ctx, list[0].ID, "acc-2", true, base)
	require.ErrorIs(t, err, persistence.ErrDefinitionNotFound)
}

func TestInstanceRepository_FinishIsConditional(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).InstanceRepository()

	instance := &models.WorkflowInstance{
		WorkflowID: "wf-1",
		AccountID:  "acc-1",
		Status:     models.InstanceStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, instance))

	require.NoError(t, repo.SetCurrentStep(ctx, instance.ID, "step-1"))

	changed, err := repo.Finish(ctx, instance.ID, models.InstanceStatusFailed, "boom", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Finish(ctx, instance.ID, models.InstanceStatusCompleted, "", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, changed)

	loaded, err := repo.GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusFailed, loaded.Status)
	assert.Equal(t, "boom", loaded.ErrorMessage)
	assert.Equal(t, "step-1", loaded.CurrentStepID)
	assert.NotNil(t, loaded.CompletedAt)

	_, err = repo.Finish(ctx, "missing", models.InstanceStatusFailed, "", time.Now())
	require.ErrorIs(t, err, persistence.ErrInstanceNotFound)
}

func TestInstanceRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).InstanceRepository()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	fixtures := []*models.WorkflowInstance{
		{AccountID: "acc-1", WorkflowID: "wf-1", EntityType: "project", EntityID: "p1", Status: models.InstanceStatusRunning},
		{AccountID: "acc-1", WorkflowID: "wf-1", EntityType: "project", EntityID: "p2", Status: models.InstanceStatusCompleted},
		{AccountID: "acc-1", WorkflowID: "wf-2", EntityType: "lead", EntityID: "l1", Status: models.InstanceStatusRunning},
		{AccountID: "acc-2", WorkflowID: "wf-3", EntityType: "project", EntityID: "p1", Status: models.InstanceStatusRunning},
	}

	for i, instance := range fixtures {
		instance.StartedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, instance))
	}

	tests := []struct {
		name   string
		filter persistence.InstanceFilter
		want   []string
	}{
		{name: "account", filter: persistence.InstanceFilter{AccountID: "acc-1"}, want: []string{fixtures[2].ID, fixtures[1].ID, fixtures[0].ID}},
		{name: "status", filter: persistence.InstanceFilter{AccountID: "acc-1", Status: models.InstanceStatusRunning}, want: []string{fixtures[2].ID, fixtures[0].ID}},
		{name: "entity", filter: persistence.InstanceFilter{EntityType: "project", EntityID: "p1"}, want: []string{fixtures[3].ID, fixtures[0].ID}},
		{name: "workflow", filter: persistence.InstanceFilter{WorkflowID: "wf-2"}, want: []string{fixtures[2].ID}},
		{name: "paged", filter: persistence.InstanceFilter{AccountID: "acc-1", Limit: 1, Offset: 1}, want: []string{fixtures[1].ID}},
		{name: "offset past end", filter: persistence.InstanceFilter{AccountID: "acc-1", Offset: 10}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instances, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)

			ids := make([]string, 0, len(instances))
			for _, instance := range instances {
				ids = append(ids, instance.ID)
			}

			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStepExecutionRepository(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).StepExecutionRepository()
	now := time.Now().UTC()

	first := &models.WorkflowStepExecution{InstanceID: "inst-1", StepID: "a", Status: models.ExecutionStatusRunning, StartedAt: now}
	second := &models.WorkflowStepExecution{InstanceID: "inst-1", StepID: "b", Status: models.ExecutionStatusRunning, StartedAt: now}
	other := &models.WorkflowStepExecution{InstanceID: "inst-2", StepID: "a", Status: models.ExecutionStatusRunning, StartedAt: now}

	for _, execution := range []*models.WorkflowStepExecution{first, second, other} {
		require.NoError(t, repo.Create(ctx, execution))
	}

	require.NoError(t, repo.SetAssignee(ctx, first.ID, "user-7"))
	require.NoError(t, repo.Finish(ctx, first.ID, models.ExecutionStatusCompleted, map[string]any{"ok": true}, "", now))

	executions, err := repo.ListByInstance(ctx, "inst-1")
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, "a", executions[0].StepID)
	assert.Equal(t, "b", executions[1].StepID)
	assert.Equal(t, models.ExecutionStatusCompleted, executions[0].Status)
	assert.Equal(t, "user-7", executions[0].AssignedToID)
	assert.Equal(t, true, executions[0].Result["ok"])

	err = repo.Finish(ctx, "missing", models.ExecutionStatusFailed, nil, "x", now)
	require.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}

func TestApprovalRepository_Decide(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).ApprovalRepository()
	now := time.Now().UTC()

	approvals := []*models.WorkflowApproval{
		{InstanceID: "inst-1", StepID: "s", ExecutionID: "exec-1", ApproverID: "u1", IsRequired: true, Status: models.ApprovalStatusPending, CreatedAt: now},
		{InstanceID: "inst-1", StepID: "s", ExecutionID: "exec-1", ApproverID: "u2", Status: models.ApprovalStatusPending, CreatedAt: now},
	}
	require.NoError(t, repo.CreateBatch(ctx, approvals))

	_, err := repo.Decide(ctx, approvals[0].ID, "u2", models.ApprovalStatusApproved, "", now)
	require.ErrorIs(t, err, persistence.ErrApprovalNotFound, "approver must match")

	decided, err := repo.Decide(ctx, approvals[0].ID, "u1", models.ApprovalStatusApproved, "fine", now)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, decided.Status)
	assert.NotNil(t, decided.ApprovedAt)
	assert.Nil(t, decided.RejectedAt)

	_, err = repo.Decide(ctx, approvals[0].ID, "u1", models.ApprovalStatusRejected, "", now)
	require.ErrorIs(t, err, persistence.ErrApprovalNotFound, "decisions happen once")

	rejected, err := repo.Decide(ctx, approvals[1].ID, "u2", models.ApprovalStatusRejected, "no", now)
	require.NoError(t, err)
	assert.NotNil(t, rejected.RejectedAt)

	byExecution, err := repo.ListByExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Len(t, byExecution, 2)

	byInstance, err := repo.ListByInstance(ctx, "inst-2")
	require.NoError(t, err)
	assert.Empty(t, byInstance)
}

func TestResumptionRepository_DueAndClaim(t *testing.T) {
	ctx := context.Background()
	repo := newTestPersistence(t).ResumptionRepository()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	past := &models.ScheduledResumption{InstanceID: "i1", StepID: "wait", DueAt: now.Add(-time.Minute), Status: models.ResumptionStatusPending}
	future := &models.ScheduledResumption{InstanceID: "i2", StepID: "wait", DueAt: now.Add(time.Hour), Status: models.ResumptionStatusPending}

	require.NoError(t, repo.Create(ctx, past))
	require.NoError(t, repo.Create(ctx, future))

	due, err := repo.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, past.ID, due[0].ID)

	claimed, err := repo.Claim(ctx, past.ID, now)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.Claim(ctx, past.ID, now)
	require.NoError(t, err)
	assert.False(t, claimed)

	due, err = repo.Due(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	_, err = repo.Claim(ctx, "missing", now)
	require.ErrorIs(t, err, persistence.ErrResumptionNotFound)
}
