package models

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusRunning   InstanceStatus = "RUNNING"
	InstanceStatusCompleted InstanceStatus = "COMPLETED"
	InstanceStatusFailed    InstanceStatus = "FAILED"
)

// IsTerminal reports whether no further step may execute.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusFailed
}

// Priority of a workflow instance.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// WorkflowInstance is one execution of a definition against a business entity.
type WorkflowInstance struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	Status        InstanceStatus `json:"status"`
	Priority      Priority       `json:"priority"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	AccountID     string         `json:"account_id"`
	InitiatedByID string         `json:"initiated_by_id"`
	CurrentStepID string         `json:"current_step_id,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
}

// ExecutionStatus is the state of a single step execution attempt.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
)

// WorkflowStepExecution records one attempt to run a step. Records are append-only.
type WorkflowStepExecution struct {
	ID           string          `json:"id"`
	InstanceID   string          `json:"instance_id"`
	StepID       string          `json:"step_id"`
	Status       ExecutionStatus `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Result       map[string]any  `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	AssignedToID string          `json:"assigned_to_id,omitempty"`
}

// ApprovalStatus is the decision state of an approval request.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// WorkflowApproval is the decision of one approver for one execution of an APPROVAL step.
// It moves from PENDING to APPROVED or REJECTED exactly once.
type WorkflowApproval struct {
	ID              string         `json:"id"`
	InstanceID      string         `json:"instance_id"`
	StepID          string         `json:"step_id"`
	ExecutionID     string         `json:"execution_id"`
	ApproverID      string         `json:"approver_id"`
	StepApproverID  string         `json:"step_approver_id"`
	IsRequired      bool           `json:"is_required"`
	Status          ApprovalStatus `json:"status"`
	Comments        string         `json:"comments,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	RejectedAt      *time.Time     `json:"rejected_at,omitempty"`
}

// ResumptionStatus is the state of a scheduled resumption.
type ResumptionStatus string

const (
	ResumptionStatusPending ResumptionStatus = "PENDING"
	ResumptionStatusFired   ResumptionStatus = "FIRED"
)

// ScheduledResumption is the durable record left by a WAIT step: the instance resumes
// after StepID once DueAt has passed.
type ScheduledResumption struct {
	ID          string           `json:"id"`
	InstanceID  string           `json:"instance_id"`
	StepID      string           `json:"step_id"`
	ExecutionID string           `json:"execution_id"`
	DueAt       time.Time        `json:"due_at"`
	Status      ResumptionStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	FiredAt     *time.Time       `json:"fired_at,omitempty"`
}
