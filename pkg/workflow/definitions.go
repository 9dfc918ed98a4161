package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/renocrm/workflow-engine/pkg/events"
	"github.com/renocrm/workflow-engine/pkg/models"
)

// CreateDefinition validates and stores a definition with its steps and approvers, then
// announces it.
func (e *Engine) CreateDefinition(ctx context.Context, definition *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	definition.Name = strings.TrimSpace(definition.Name)

	err := e.validateDefinition(definition)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	definition.CreatedAt = now
	definition.UpdatedAt = now

	err = e.persistence.DefinitionRepository().Create(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow definition: %w", err)
	}

	e.logger.InfoContext(ctx, "Workflow definition created",
		"workflow_id", definition.ID,
		"account_id", definition.AccountID,
		"steps", len(definition.Steps))

	event := events.DefinitionCreated{
		BaseEvent: events.NewBaseEvent(events.DefinitionCreatedEvent, definition.AccountID, definition.ID),
		Name:      definition.Name,
		StepCount: len(definition.Steps),
		CreatedBy: definition.CreatedByID,
	}
	e.publish(ctx, definition.ID, event)

	return definition, nil
}

func (e *Engine) validateDefinition(definition *models.WorkflowDefinition) error {
	err := e.validate.Struct(definition)
	if err != nil {
		return newValidationError(ErrInvalidDefinition, "%s", err.Error())
	}

	positions := make(map[int]string, len(definition.Steps))
	stepIDs := make(map[string]bool, len(definition.Steps))

	for i, step := range definition.Steps {
		if step == nil {
			return newValidationError(ErrInvalidDefinition, "step %d is empty", i)
		}

		if !step.StepType.IsValid() {
			return newValidationError(ErrUnsupportedStepType, "step %q has type %q", step.Name, step.StepType)
		}

		if other, taken := positions[step.Position]; taken {
			return newValidationError(ErrDuplicatePosition, "steps %q and %q share position %d", other, step.Name, step.Position)
		}

		positions[step.Position] = step.Name

		if step.ID != "" {
			if stepIDs[step.ID] {
				return newValidationError(ErrInvalidDefinition, "duplicate step id %q", step.ID)
			}

			stepIDs[step.ID] = true
		}

		err = e.schemas.validate(step.StepType, step.Configuration)
		if err != nil {
			return fmt.Errorf("step %q: %w", step.Name, err)
		}

		if step.StepType == models.StepTypeApproval && len(step.Approvers) == 0 {
			return newValidationError(ErrInvalidStepConfiguration, "approval step %q has no approvers", step.Name)
		}

		if step.StepType != models.StepTypeApproval && len(step.Approvers) > 0 {
			return newValidationError(ErrInvalidStepConfiguration, "only approval steps take approvers, step %q is %s", step.Name, step.StepType)
		}
	}

	for _, step := range definition.Steps {
		if step.StepType != models.StepTypeDecision {
			continue
		}

		conditions, err := decisionConditions(step)
		if err != nil {
			return newValidationError(ErrInvalidStepConfiguration, "step %q: %s", step.Name, err.Error())
		}

		for _, condition := range conditions {
			if !stepIDs[condition.NextStepID] {
				return newValidationError(ErrInvalidStepConfiguration,
					"decision step %q routes to unknown step %q", step.Name, condition.NextStepID)
			}
		}
	}

	return nil
}

// GetDefinition returns a definition of the account with its steps in position order.
func (e *Engine) GetDefinition(ctx context.Context, accountID, id string) (*models.WorkflowDefinition, error) {
	definition, err := e.persistence.DefinitionRepository().GetByID(ctx, id, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow definition: %w", err)
	}

	return definition, nil
}

func (e *Engine) ListDefinitions(ctx context.Context, accountID string) ([]*models.WorkflowDefinition, error) {
	definitions, err := e.persistence.DefinitionRepository().ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow definitions: %w", err)
	}

	return definitions, nil
}

// SetDefinitionActive activates or deactivates a definition. Inactive definitions cannot
// start new instances; running instances are unaffected.
func (e *Engine) SetDefinitionActive(ctx context.Context, accountID, id string, active bool) (*models.WorkflowDefinition, error) {
	definition, err := e.persistence.DefinitionRepository().SetActive(ctx, id, accountID, active, e.clock())
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow definition: %w", err)
	}

	e.logger.InfoContext(ctx, "Workflow definition updated", "workflow_id", id, "is_active", active)

	event := events.DefinitionUpdated{
		BaseEvent: events.NewBaseEvent(events.DefinitionUpdatedEvent, accountID, id),
		IsActive:  active,
	}
	e.publish(ctx, id, event)

	return definition, nil
}
