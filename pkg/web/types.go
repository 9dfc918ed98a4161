// Package web exposes the workflow engine over HTTP.
package web

import (
	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/renocrm/workflow-engine/pkg/workflow"
)

// CreateDefinitionRequest is the body of POST /workflows/definitions.
type CreateDefinitionRequest struct {
	Name              string              `json:"name"               validate:"required,min=3"`
	Description       string              `json:"description"`
	TriggerType       string              `json:"triggerType"`
	TriggerConditions map[string]any      `json:"triggerConditions"`
	IsActive          *bool               `json:"isActive"`
	Steps             []CreateStepRequest `json:"steps"              validate:"dive"`
}

type CreateStepRequest struct {
	ID             string                  `json:"id"`
	Name           string                  `json:"name"           validate:"required"`
	StepType       models.StepType         `json:"stepType"       validate:"required"`
	Position       int                     `json:"position"       validate:"min=0"`
	Configuration  map[string]any          `json:"configuration"`
	Conditions     map[string]any          `json:"conditions"`
	IsRequired     bool                    `json:"isRequired"`
	TimeoutMinutes *int                    `json:"timeoutMinutes" validate:"omitempty,min=0"`
	Approvers      []CreateApproverRequest `json:"approvers"      validate:"dive"`
}

type CreateApproverRequest struct {
	UserID       string              `json:"userId"       validate:"required"`
	ApproverType models.ApproverType `json:"approverType" validate:"omitempty,oneof=REQUIRED OPTIONAL INFORMATIONAL"`
	IsRequired   bool                `json:"isRequired"`
	Order        int                 `json:"order"`
}

// UpdateDefinitionRequest is the body of PATCH /workflows/definitions/:id.
type UpdateDefinitionRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// StartInstanceRequest is the body of POST /workflows/instances/start.
type StartInstanceRequest struct {
	WorkflowID string          `json:"workflowId" validate:"required"`
	EntityType string          `json:"entityType" validate:"required"`
	EntityID   string          `json:"entityId"   validate:"required"`
	Metadata   map[string]any  `json:"metadata"`
	Priority   models.Priority `json:"priority"   validate:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
}

// DecisionRequest is the body of the approve and reject routes.
type DecisionRequest struct {
	Comments string `json:"comments" validate:"max=2000"`
}

// toDefinition builds the model for the caller's account. Definitions are active unless
// the request says otherwise; approvers default to REQUIRED.
func (r CreateDefinitionRequest) toDefinition(p Principal) *models.WorkflowDefinition {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	definition := &models.WorkflowDefinition{
		AccountID:         p.AccountID,
		Name:              r.Name,
		Description:       r.Description,
		TriggerType:       r.TriggerType,
		TriggerConditions: r.TriggerConditions,
		IsActive:          active,
		CreatedByID:       p.UserID,
		Steps:             make([]*models.WorkflowStep, 0, len(r.Steps)),
	}

	for _, s := range r.Steps {
		step := &models.WorkflowStep{
			ID:             s.ID,
			Name:           s.Name,
			StepType:       s.StepType,
			Position:       s.Position,
			Configuration:  s.Configuration,
			Conditions:     s.Conditions,
			IsRequired:     s.IsRequired,
			TimeoutMinutes: s.TimeoutMinutes,
		}

		for _, a := range s.Approvers {
			approverType := a.ApproverType
			if approverType == "" {
				approverType = models.ApproverTypeRequired
			}

			step.Approvers = append(step.Approvers, &models.StepApprover{
				UserID:       a.UserID,
				ApproverType: approverType,
				IsRequired:   a.IsRequired,
				Order:        a.Order,
			})
		}

		definition.Steps = append(definition.Steps, step)
	}

	return definition
}

func (r StartInstanceRequest) toStartRequest(p Principal) workflow.StartRequest {
	return workflow.StartRequest{
		WorkflowID:    r.WorkflowID,
		EntityType:    r.EntityType,
		EntityID:      r.EntityID,
		Metadata:      r.Metadata,
		Priority:      r.Priority,
		AccountID:     p.AccountID,
		InitiatedByID: p.UserID,
	}
}
