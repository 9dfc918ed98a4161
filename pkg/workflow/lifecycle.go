package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/renocrm/workflow-engine/pkg/entity"
	"github.com/renocrm/workflow-engine/pkg/events"
	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/renocrm/workflow-engine/pkg/persistence"
)

// StartRequest binds a definition to a CRM entity.
type StartRequest struct {
	WorkflowID    string          `validate:"required"`
	EntityType    string          `validate:"required"`
	EntityID      string          `validate:"required"`
	Metadata      map[string]any
	Priority      models.Priority `validate:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
	AccountID     string          `validate:"required"`
	InitiatedByID string
}

// InstanceDetails is an instance with its execution history and approvals.
type InstanceDetails struct {
	*models.WorkflowInstance

	Executions []*models.WorkflowStepExecution `json:"step_executions"`
	Approvals  []*models.WorkflowApproval      `json:"approvals"`
}

// Start creates a RUNNING instance and drives it from the lowest-position step until the
// chain pauses, completes or fails. A failing step returns a *StepError.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*models.WorkflowInstance, error) {
	err := e.validate.Struct(req)
	if err != nil {
		return nil, newValidationError(ErrInvalidRequest, "%s", err.Error())
	}

	definition, err := e.persistence.DefinitionRepository().GetByID(ctx, req.WorkflowID, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow definition: %w", err)
	}

	if !definition.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionInactive, definition.ID)
	}

	entityType := entity.Normalize(req.EntityType)

	err = e.entities.Validate(ctx, req.AccountID, entityType, req.EntityID)
	if errors.Is(err, entity.ErrUnsupportedEntityType) {
		return nil, fmt.Errorf("%w: no %s entities are tracked", ErrEntityNotFound, entityType)
	}

	if err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	instance := &models.WorkflowInstance{
		WorkflowID:    definition.ID,
		EntityType:    entityType,
		EntityID:      req.EntityID,
		Status:        models.InstanceStatusRunning,
		Priority:      priority,
		Metadata:      req.Metadata,
		AccountID:     req.AccountID,
		InitiatedByID: req.InitiatedByID,
		StartedAt:     e.clock(),
	}

	err = e.persistence.InstanceRepository().Create(ctx, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow instance: %w", err)
	}

	logger := e.logger.With("instance_id", instance.ID, "workflow_id", definition.ID)
	logger.InfoContext(ctx, "Workflow instance started", "entity_type", entityType, "entity_id", req.EntityID)

	e.publish(ctx, instance.ID, events.InstanceStarted{
		BaseEvent:     events.NewBaseEvent(events.InstanceStartedEvent, instance.AccountID, instance.WorkflowID),
		InstanceID:    instance.ID,
		EntityType:    instance.EntityType,
		EntityID:      instance.EntityID,
		InitiatedByID: instance.InitiatedByID,
	})

	err = e.withInstanceLock(ctx, instance.ID, func() error {
		index := newStepIndex(definition.Steps)

		first := index.first()
		if first == nil {
			return e.complete(ctx, instance)
		}

		return e.drive(ctx, instance, index, first)
	})
	if err != nil {
		return nil, err
	}

	return e.persistence.InstanceRepository().GetByID(ctx, instance.ID)
}

// Complete marks a RUNNING instance COMPLETED. Terminal instances are left untouched.
func (e *Engine) Complete(ctx context.Context, instanceID string) error {
	return e.withInstanceLock(ctx, instanceID, func() error {
		instance, err := e.persistence.InstanceRepository().GetByID(ctx, instanceID)
		if err != nil {
			return err
		}

		return e.complete(ctx, instance)
	})
}

// Fail marks a RUNNING instance FAILED with message. Terminal instances are left untouched.
func (e *Engine) Fail(ctx context.Context, instanceID, message string) error {
	return e.withInstanceLock(ctx, instanceID, func() error {
		instance, err := e.persistence.InstanceRepository().GetByID(ctx, instanceID)
		if err != nil {
			return err
		}

		return e.fail(ctx, instance, message)
	})
}

func (e *Engine) complete(ctx context.Context, instance *models.WorkflowInstance) error {
	changed, err := e.persistence.InstanceRepository().Finish(ctx, instance.ID, models.InstanceStatusCompleted, "", e.clock())
	if err != nil {
		return fmt.Errorf("failed to complete workflow instance: %w", err)
	}

	if !changed {
		return nil
	}

	instance.Status = models.InstanceStatusCompleted

	e.logger.InfoContext(ctx, "Workflow instance completed", "instance_id", instance.ID, "workflow_id", instance.WorkflowID)

	e.publish(ctx, instance.ID, events.InstanceCompleted{
		BaseEvent:  events.NewBaseEvent(events.InstanceCompletedEvent, instance.AccountID, instance.WorkflowID),
		InstanceID: instance.ID,
		EntityType: instance.EntityType,
		EntityID:   instance.EntityID,
	})

	return nil
}

func (e *Engine) fail(ctx context.Context, instance *models.WorkflowInstance, message string) error {
	changed, err := e.persistence.InstanceRepository().Finish(ctx, instance.ID, models.InstanceStatusFailed, message, e.clock())
	if err != nil {
		return fmt.Errorf("failed to fail workflow instance: %w", err)
	}

	if !changed {
		return nil
	}

	instance.Status = models.InstanceStatusFailed
	instance.ErrorMessage = message

	e.logger.WarnContext(ctx, "Workflow instance failed",
		"instance_id", instance.ID,
		"workflow_id", instance.WorkflowID,
		"error", message)

	e.publish(ctx, instance.ID, events.InstanceFailed{
		BaseEvent:  events.NewBaseEvent(events.InstanceFailedEvent, instance.AccountID, instance.WorkflowID),
		InstanceID: instance.ID,
		EntityType: instance.EntityType,
		EntityID:   instance.EntityID,
		Error:      message,
	})

	return nil
}

// GetInstance returns an instance of the account with its executions and approvals.
func (e *Engine) GetInstance(ctx context.Context, accountID, id string) (*InstanceDetails, error) {
	instance, err := e.loadInstance(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	executions, err := e.persistence.StepExecutionRepository().ListByInstance(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list step executions: %w", err)
	}

	approvals, err := e.persistence.ApprovalRepository().ListByInstance(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}

	return &InstanceDetails{
		WorkflowInstance: instance,
		Executions:       executions,
		Approvals:        approvals,
	}, nil
}

// ListInstances lists the instances of filter.AccountID, newest first.
func (e *Engine) ListInstances(ctx context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	if filter.AccountID == "" {
		return nil, newValidationError(ErrInvalidRequest, "account id is required")
	}

	if filter.EntityType != "" {
		filter.EntityType = entity.Normalize(filter.EntityType)
	}

	instances, err := e.persistence.InstanceRepository().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow instances: %w", err)
	}

	return instances, nil
}

// loadInstance returns the instance when it belongs to accountID.
func (e *Engine) loadInstance(ctx context.Context, accountID, id string) (*models.WorkflowInstance, error) {
	instance, err := e.persistence.InstanceRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if instance.AccountID != accountID {
		return nil, persistence.NewRecordError("GetByID", "instance", id, persistence.ErrInstanceNotFound)
	}

	return instance, nil
}
