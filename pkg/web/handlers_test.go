package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/renocrm/workflow-engine/pkg/entity"
	"github.com/renocrm/workflow-engine/pkg/mocks"
	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/renocrm/workflow-engine/pkg/persistence/file"
	"github.com/renocrm/workflow-engine/pkg/web"
	"github.com/renocrm/workflow-engine/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type testAPI struct {
	app    *fiber.App
	tokens map[string]string
}

func setupTestApp(t *testing.T) *testAPI {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	projects := entity.NewMemoryHandler()
	projects.Put("acc-1", "proj-1", map[string]any{"status": "NEW", "budget": 12000})

	registry := entity.NewRegistry()
	registry.Register(entity.TypeProject, projects)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := workflow.NewEngine(store, registry, mocks.NewPermissiveEventBus(), workflow.WithLogger(logger))

	handlers := web.NewAPIHandlers(engine, validator.New(validator.WithRequiredStructEnabled()), store)

	app := fiber.New()
	handlers.Register(app, testSecret)

	tokens := map[string]string{}

	for name, ids := range map[string][2]string{
		"office":   {"acc-1", "office-1"},
		"manager":  {"acc-1", "manager-1"},
		"designer": {"acc-1", "designer-1"},
		"other":    {"acc-2", "intruder"},
	} {
		token, err := web.IssueToken(testSecret, ids[0], ids[1], time.Hour)
		require.NoError(t, err)

		tokens[name] = token
	}

	return &testAPI{app: app, tokens: tokens}
}

func (a *testAPI) do(t *testing.T, method, path, as string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if as != "" {
		req.Header.Set("Authorization", "Bearer "+a.tokens[as])
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, payload
}

func decode[T any](t *testing.T, payload []byte) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(payload, &out), string(payload))

	return out
}

func approvalDefinition() web.CreateDefinitionRequest {
	return web.CreateDefinitionRequest{
		Name: "Bathroom quote approval",
		Steps: []web.CreateStepRequest{
			{ID: "survey", Name: "Survey", StepType: models.StepTypeTask, Position: 0},
			{
				ID: "sign-off", Name: "Sign-off", StepType: models.StepTypeApproval, Position: 1,
				Approvers: []web.CreateApproverRequest{
					{UserID: "manager-1", IsRequired: true, Order: 0},
					{UserID: "designer-1", ApproverType: models.ApproverTypeOptional, Order: 1},
				},
			},
			{ID: "order", Name: "Order materials", StepType: models.StepTypeNotification, Position: 2},
		},
	}
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	api := setupTestApp(t)

	status, payload := api.do(t, http.MethodGet, "/workflows/definitions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, string(payload), "missing bearer token")

	forged, err := web.IssueToken([]byte("other-secret"), "acc-1", "office-1", time.Hour)
	require.NoError(t, err)

	api.tokens["forged"] = forged
	status, _ = api.do(t, http.MethodGet, "/workflows/definitions", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	expired, err := web.IssueToken(testSecret, "acc-1", "office-1", -time.Minute)
	require.NoError(t, err)

	api.tokens["expired"] = expired
	status, payload = api.do(t, http.MethodGet, "/workflows/definitions", "expired", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, string(payload), "token expired")

	status, _ = api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAPI_DefinitionRoutes(t *testing.T) {
	api := setupTestApp(t)

	status, payload := api.do(t, http.MethodPost, "/workflows/definitions", "office", approvalDefinition())
	require.Equal(t, http.StatusCreated, status, string(payload))

	created := decode[models.WorkflowDefinition](t, payload)
	assert.True(t, created.IsActive)
	assert.Equal(t, "acc-1", created.AccountID)
	assert.Equal(t, "office-1", created.CreatedByID)
	assert.Equal(t, models.ApproverTypeRequired, created.Steps[1].Approvers[0].ApproverType)

	status, payload = api.do(t, http.MethodGet, "/workflows/definitions/"+created.ID, "office", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[models.WorkflowDefinition](t, payload).Steps, 3)

	status, _ = api.do(t, http.MethodGet, "/workflows/definitions/"+created.ID, "other", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, payload = api.do(t, http.MethodGet, "/workflows/definitions", "other", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[map[string][]models.WorkflowDefinition](t, payload)["definitions"])

	status, payload = api.do(t, http.MethodPatch, "/workflows/definitions/"+created.ID, "office", map[string]any{"isActive": false})
	require.Equal(t, http.StatusOK, status)
	assert.False(t, decode[models.WorkflowDefinition](t, payload).IsActive)

	status, _ = api.do(t, http.MethodPatch, "/workflows/definitions/"+created.ID, "office", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_CreateDefinitionValidation(t *testing.T) {
	api := setupTestApp(t)

	duplicate := approvalDefinition()
	duplicate.Steps[2].Position = 1

	tests := []struct {
		name string
		body any
	}{
		{name: "short name", body: web.CreateDefinitionRequest{Name: "ab"}},
		{name: "duplicate positions", body: duplicate},
		{name: "unknown step type", body: web.CreateDefinitionRequest{
			Name:  "Fax it",
			Steps: []web.CreateStepRequest{{Name: "fax", StepType: "FAX"}},
		}},
		{name: "bad approver type", body: web.CreateDefinitionRequest{
			Name: "Bad approver",
			Steps: []web.CreateStepRequest{{
				Name: "ok", StepType: models.StepTypeApproval,
				Approvers: []web.CreateApproverRequest{{UserID: "u", ApproverType: "BOSS"}},
			}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payload := api.do(t, http.MethodPost, "/workflows/definitions", "office", tt.body)
			assert.Equal(t, http.StatusBadRequest, status, string(payload))
			assert.Contains(t, string(payload), "validation_error")
		})
	}
}

func TestAPI_InstanceLifecycle(t *testing.T) {
	api := setupTestApp(t)

	_, payload := api.do(t, http.MethodPost, "/workflows/definitions", "office", approvalDefinition())
	definition := decode[models.WorkflowDefinition](t, payload)

	start := web.StartInstanceRequest{WorkflowID: definition.ID, EntityType: "Project", EntityID: "proj-1", Priority: models.PriorityHigh}

	status, payload := api.do(t, http.MethodPost, "/workflows/instances/start", "office", start)
	require.Equal(t, http.StatusCreated, status, string(payload))

	instance := decode[models.WorkflowInstance](t, payload)
	assert.Equal(t, models.InstanceStatusRunning, instance.Status)
	assert.Equal(t, "sign-off", instance.CurrentStepID)
	assert.Equal(t, models.PriorityHigh, instance.Priority)
	assert.Equal(t, "office-1", instance.InitiatedByID)

	status, _ = api.do(t, http.MethodPost, "/workflows/instances/start", "other", start)
	assert.Equal(t, http.StatusNotFound, status)

	missing := start
	missing.EntityID = "proj-404"
	status, payload = api.do(t, http.MethodPost, "/workflows/instances/start", "office", missing)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(payload), "entity_not_found")

	untracked := start
	untracked.EntityType = "invoice"
	status, payload = api.do(t, http.MethodPost, "/workflows/instances/start", "office", untracked)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(payload), "entity_not_found")

	status, payload = api.do(t, http.MethodGet, "/workflows/instances/"+instance.ID, "office", nil)
	require.Equal(t, http.StatusOK, status)

	details := decode[struct {
		models.WorkflowInstance
		Approvals []models.WorkflowApproval `json:"approvals"`
	}](t, payload)
	require.Len(t, details.Approvals, 2)

	var managerApproval string

	for _, approval := range details.Approvals {
		if approval.ApproverID == "manager-1" {
			managerApproval = approval.ID
		}
	}

	status, _ = api.do(t, http.MethodPost, "/workflows/approvals/"+managerApproval+"/approve", "designer", nil)
	assert.Equal(t, http.StatusNotFound, status, "only the named approver may decide")

	status, payload = api.do(t, http.MethodPost, "/workflows/approvals/"+managerApproval+"/approve", "manager",
		web.DecisionRequest{Comments: "Go ahead"})
	require.Equal(t, http.StatusOK, status, string(payload))
	assert.Equal(t, models.ApprovalStatusApproved, decode[models.WorkflowApproval](t, payload).Status)

	status, payload = api.do(t, http.MethodGet, "/workflows/instances/"+instance.ID, "office", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.InstanceStatusCompleted, decode[models.WorkflowInstance](t, payload).Status)

	status, _ = api.do(t, http.MethodPost, "/workflows/instances/"+instance.ID+"/steps/order/execute", "office", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, payload = api.do(t, http.MethodGet, "/workflows/instances?status=COMPLETED&limit=10", "office", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[map[string]any](t, payload)["instances"], 1)

	status, _ = api.do(t, http.MethodGet, "/workflows/instances?limit=abc", "office", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodGet, "/workflows/instances/"+instance.ID, "other", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_RejectAndStepFailure(t *testing.T) {
	api := setupTestApp(t)

	_, payload := api.do(t, http.MethodPost, "/workflows/definitions", "office", approvalDefinition())
	definition := decode[models.WorkflowDefinition](t, payload)

	_, payload = api.do(t, http.MethodPost, "/workflows/instances/start", "office",
		web.StartInstanceRequest{WorkflowID: definition.ID, EntityType: "project", EntityID: "proj-1"})
	instance := decode[models.WorkflowInstance](t, payload)

	_, payload = api.do(t, http.MethodGet, "/workflows/instances/"+instance.ID, "office", nil)
	details := decode[struct {
		Approvals []models.WorkflowApproval `json:"approvals"`
	}](t, payload)

	var designerApproval string

	for _, approval := range details.Approvals {
		if approval.ApproverID == "designer-1" {
			designerApproval = approval.ID
		}
	}

	status, payload := api.do(t, http.MethodPost, "/workflows/approvals/"+designerApproval+"/reject", "designer",
		web.DecisionRequest{Comments: "Wrong tiles"})
	require.Equal(t, http.StatusOK, status, string(payload))

	_, payload = api.do(t, http.MethodGet, "/workflows/instances/"+instance.ID, "office", nil)
	failed := decode[models.WorkflowInstance](t, payload)
	assert.Equal(t, models.InstanceStatusFailed, failed.Status)
	assert.Equal(t, "Approval rejected: Wrong tiles", failed.ErrorMessage)

	_, payload = api.do(t, http.MethodPost, "/workflows/definitions", "office", web.CreateDefinitionRequest{
		Name: "Sync stock",
		Steps: []web.CreateStepRequest{{
			Name: "update", StepType: models.StepTypeDataUpdate,
			Configuration: map[string]any{"entityType": "lead", "updateData": map[string]any{"status": "WON"}},
		}},
	})
	mismatched := decode[models.WorkflowDefinition](t, payload)

	status, payload = api.do(t, http.MethodPost, "/workflows/instances/start", "office",
		web.StartInstanceRequest{WorkflowID: mismatched.ID, EntityType: "project", EntityID: "proj-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	problem := decode[map[string]any](t, payload)
	assert.Equal(t, "step_failed", problem["type"])
	assert.NotEmpty(t, problem["instance_id"])
}
