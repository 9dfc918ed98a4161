package file

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/renocrm/workflow-engine/pkg/persistence"
)

// StepExecutionRepository handles step execution documents.
type StepExecutionRepository struct {
	mu   *sync.RWMutex
	docs collection[models.WorkflowStepExecution]
}

func (r *StepExecutionRepository) Create(_ context.Context, execution *models.WorkflowStepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if execution.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		execution.ID = id
	}

	err := r.docs.save(execution.ID, execution)
	if err != nil {
		return persistence.NewRecordError("Create", "execution", execution.ID, err)
	}

	return nil
}

func (r *StepExecutionRepository) update(op, id string, apply func(*models.WorkflowStepExecution)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, err := r.docs.load(id)
	if err != nil {
		return persistence.NewRecordError(op, "execution", id, err)
	}

	if execution == nil {
		return persistence.NewRecordError(op, "execution", id, persistence.ErrExecutionNotFound)
	}

	apply(execution)

	err = r.docs.save(id, execution)
	if err != nil {
		return persistence.NewRecordError(op, "execution", id, err)
	}

	return nil
}

func (r *StepExecutionRepository) Finish(_ context.Context, id string, status models.ExecutionStatus, result map[string]any, errorMessage string, at time.Time) error {
	return r.update("Finish", id, func(execution *models.WorkflowStepExecution) {
		execution.Status = status
		execution.Result = result
		execution.ErrorMessage = errorMessage
		execution.CompletedAt = &at
	})
}

func (r *StepExecutionRepository) SetAssignee(_ context.Context, id, userID string) error {
	return r.update("SetAssignee", id, func(execution *models.WorkflowStepExecution) {
		execution.AssignedToID = userID
	})
}

func (r *StepExecutionRepository) ListByInstance(_ context.Context, instanceID string) ([]*models.WorkflowStepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.docs.all()
	if err != nil {
		return nil, fmt.Errorf("failed to list step executions: %w", err)
	}

	executions := make([]*models.WorkflowStepExecution, 0)

	for _, execution := range all {
		if execution.InstanceID == instanceID {
			executions = append(executions, execution)
		}
	}

	// uuid v7 ids keep creation order for executions started within the same instant
	sort.SliceStable(executions, func(i, j int) bool {
		if executions[i].StartedAt.Equal(executions[j].StartedAt) {
			return executions[i].ID < executions[j].ID
		}

		return executions[i].StartedAt.Before(executions[j].StartedAt)
	})

	return executions, nil
}
