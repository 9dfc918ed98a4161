package entity_test

import (
	"context"
	"testing"

	"github.com/renocrm/workflow-engine/pkg/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Validate(t *testing.T) {
	ctx := context.Background()
	projects := entity.NewMemoryHandler()
	projects.Put("acc-1", "proj-1", map[string]any{"status": "NEW"})

	registry := entity.NewRegistry()
	registry.Register("Project", projects)

	tests := []struct {
		name       string
		accountID  string
		entityType string
		id         string
		wantErr    error
	}{
		{name: "owned entity", accountID: "acc-1", entityType: "project", id: "proj-1"},
		{name: "type is case insensitive", accountID: "acc-1", entityType: "PROJECT", id: "proj-1"},
		{name: "other tenant", accountID: "acc-2", entityType: "project", id: "proj-1", wantErr: entity.ErrEntityNotFound},
		{name: "missing entity", accountID: "acc-1", entityType: "project", id: "proj-2", wantErr: entity.ErrEntityNotFound},
		{name: "unknown type", accountID: "acc-1", entityType: "invoice", id: "proj-1", wantErr: entity.ErrUnsupportedEntityType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.Validate(ctx, tt.accountID, tt.entityType, tt.id)
			if tt.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.ElementsMatch(t, []string{"project"}, registry.Types())
}

func TestMemoryHandler_UpdateKeepsOwner(t *testing.T) {
	ctx := context.Background()
	handler := entity.NewMemoryHandler()
	handler.Put("acc-1", "lead-1", map[string]any{"status": "NEW"})

	err := handler.Update(ctx, "acc-1", "lead-1", map[string]any{"status": "QUALIFIED", entity.AccountField: "acc-2"})
	require.NoError(t, err)

	data, err := handler.Load(ctx, "acc-1", "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "QUALIFIED", data["status"])
	assert.Equal(t, "acc-1", data[entity.AccountField])

	data["status"] = "mutated"
	again, err := handler.Load(ctx, "acc-1", "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "QUALIFIED", again["status"], "loads return copies")

	require.ErrorIs(t, handler.Update(ctx, "acc-2", "lead-1", map[string]any{"x": 1}), entity.ErrEntityNotFound)
}

func TestFileHandler(t *testing.T) {
	ctx := context.Background()
	handler := entity.NewFileHandler("file://"+t.TempDir(), "enquiry")

	require.NoError(t, handler.Save("acc-1", "enq-1", map[string]any{"status": "NEW", "budget": 12000}))

	data, err := handler.Load(ctx, "acc-1", "enq-1")
	require.NoError(t, err)
	assert.Equal(t, "NEW", data["status"])
	assert.Equal(t, float64(12000), data["budget"])

	require.NoError(t, handler.Update(ctx, "acc-1", "enq-1", map[string]any{"status": "QUOTED"}))

	data, err = handler.Load(ctx, "acc-1", "enq-1")
	require.NoError(t, err)
	assert.Equal(t, "QUOTED", data["status"])

	_, err = handler.Load(ctx, "acc-2", "enq-1")
	require.ErrorIs(t, err, entity.ErrEntityNotFound)

	_, err = handler.Load(ctx, "acc-1", "../../etc/passwd")
	require.ErrorIs(t, err, entity.ErrEntityNotFound)
}
