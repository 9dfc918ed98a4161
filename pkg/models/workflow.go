// Package models defines the domain models of the approval workflow engine.
package models

import "time"

// WorkflowDefinition is the authored template of a workflow: an ordered list of steps
// owned by a tenant account.
type WorkflowDefinition struct {
	ID                string          `json:"id"`
	AccountID         string          `json:"account_id"                   validate:"required"`
	Name              string          `json:"name"                         validate:"required,min=3"`
	Description       string          `json:"description"`
	TriggerType       string          `json:"trigger_type"`
	TriggerConditions map[string]any  `json:"trigger_conditions,omitempty"`
	Steps             []*WorkflowStep `json:"steps"                        validate:"dive"`
	IsActive          bool            `json:"is_active"`
	CreatedByID       string          `json:"created_by_id"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// WorkflowStep is a single step of a definition. Steps run in ascending Position order.
type WorkflowStep struct {
	ID             string           `json:"id"`
	WorkflowID     string           `json:"workflow_id"`
	Name           string           `json:"name"`
	StepType       StepType         `json:"step_type"                 validate:"required"`
	Position       int              `json:"position"                  validate:"min=0"`
	Configuration  map[string]any   `json:"configuration,omitempty"`
	Conditions     map[string]any   `json:"conditions,omitempty"`
	IsRequired     bool             `json:"is_required"`
	TimeoutMinutes *int             `json:"timeout_minutes,omitempty"` // Advisory, never enforced
	Approvers      []*StepApprover  `json:"approvers,omitempty"       validate:"dive"`
}

// StepApprover names a user who must or may approve an APPROVAL step. Only IsRequired gates
// completion; ApproverType is descriptive.
type StepApprover struct {
	ID           string       `json:"id"`
	StepID       string       `json:"step_id"`
	UserID       string       `json:"user_id"       validate:"required"`
	ApproverType ApproverType `json:"approver_type" validate:"required,oneof=REQUIRED OPTIONAL INFORMATIONAL"`
	IsRequired   bool         `json:"is_required"`
	Order        int          `json:"order"`
}

// ApproverType classifies an approver.
type ApproverType string

const (
	ApproverTypeRequired      ApproverType = "REQUIRED"
	ApproverTypeOptional      ApproverType = "OPTIONAL"
	ApproverTypeInformational ApproverType = "INFORMATIONAL"
)

// StepType selects the handler that executes a step.
type StepType string

const (
	StepTypeApproval     StepType = "APPROVAL"
	StepTypeTask         StepType = "TASK"
	StepTypeNotification StepType = "NOTIFICATION"
	StepTypeEmail        StepType = "EMAIL"
	StepTypeDataUpdate   StepType = "DATA_UPDATE"
	StepTypeWebhook      StepType = "WEBHOOK"
	StepTypeWait         StepType = "WAIT"
	StepTypeDecision     StepType = "DECISION"
)

// StepTypes lists every supported step type.
var StepTypes = []StepType{
	StepTypeApproval,
	StepTypeTask,
	StepTypeNotification,
	StepTypeEmail,
	StepTypeDataUpdate,
	StepTypeWebhook,
	StepTypeWait,
	StepTypeDecision,
}

// IsValid reports whether t is a supported step type.
func (t StepType) IsValid() bool {
	for _, known := range StepTypes {
		if t == known {
			return true
		}
	}

	return false
}

// Pauses reports whether a successful step of this type suspends the chain instead of
// completing the workflow when it yields no next step.
func (t StepType) Pauses() bool {
	return t == StepTypeApproval || t == StepTypeWait
}
