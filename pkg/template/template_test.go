package template

import (
	"testing"

	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func projectData() map[string]any {
	instance := &models.WorkflowInstance{
		ID:            "inst-1",
		WorkflowID:    "wf-1",
		EntityType:    "project",
		EntityID:      "proj-1",
		Priority:      models.PriorityHigh,
		InitiatedByID: "user-1",
		Metadata:      map[string]any{"source": "web"},
	}

	return Data(instance, map[string]any{
		"name":   "Kitchen refit",
		"budget": 15000,
		"client": map[string]any{"email": "client@example.com"},
	})
}

func TestRender_SimpleExpression(t *testing.T) {
	data := projectData()

	result, err := Render("{{ .entity.name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "Kitchen refit", result)

	// numbers always map to float
	result, err = Render("{{ .entity.budget }}", data)
	require.NoError(t, err)
	assert.Equal(t, 15000.0, result)

	result, err = Render(`{{ eq .instance.priority "HIGH" }}`, data)
	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestRender_JSONObject(t *testing.T) {
	result, err := Render(`{
		"project": "{{ .entity.name }}",
		"budget": {{ .entity.budget }},
		"source": "{{ .metadata.source }}"
	}`, projectData())
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Kitchen refit", resultMap["project"])
	assert.Equal(t, 15000.0, resultMap["budget"])
	assert.Equal(t, "web", resultMap["source"])
}

func TestRender_ErrorHandling(t *testing.T) {
	_, err := Render("{ invalid..expression }}", projectData())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse json")

	_, err = Render("{{ nonexistent.field }}", projectData())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "function \"nonexistent\" not defined")
}

func TestRenderString(t *testing.T) {
	data := projectData()

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{name: "interpolation", template: "Project {{.entity.name}} ({{.instance.entityId}})", want: "Project Kitchen refit (proj-1)"},
		{name: "nested", template: "Mail {{.entity.client.email}}", want: "Mail client@example.com"},
		{name: "missing key", template: "Stage: {{.entity.stage}}", want: "Stage: "},
		{name: "default", template: `{{ default "unknown" .entity.stage }}`, want: "unknown"},
		{name: "upper", template: "{{ upper .instance.priority }}", want: "HIGH"},
		{name: "plain", template: "No placeholders", want: "No placeholders"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderString(tt.template, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderValue_WalksNestedValues(t *testing.T) {
	body := map[string]any{
		"project": "{{ .entity.name }}",
		"budget":  "{{ .entity.budget }}",
		"static":  42,
		"tags":    []any{"{{ .instance.priority }}", "renovation"},
	}

	rendered, err := RenderValue(body, projectData())
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"project": "Kitchen refit",
		"budget":  15000.0,
		"static":  42,
		"tags":    []any{"HIGH", "renovation"},
	}, rendered)
}

func TestNeedsTemplating(t *testing.T) {
	assert.True(t, NeedsTemplating("Hello {{ .entity.name }}"))
	assert.False(t, NeedsTemplating("Hello"))
}
