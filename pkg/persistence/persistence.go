// Package persistence provides the data storage abstraction layer for workflow definitions,
// instances, step executions, approvals and scheduled resumptions.
package persistence

import (
	"context"
	"time"

	"github.com/renocrm/workflow-engine/pkg/models"
)

type Persistence interface {
	DefinitionRepository() DefinitionRepository
	InstanceRepository() InstanceRepository
	StepExecutionRepository() StepExecutionRepository
	ApprovalRepository() ApprovalRepository
	ResumptionRepository() ResumptionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// DefinitionRepository stores workflow definitions together with their steps and approvers.
type DefinitionRepository interface {
	// Create persists the definition, its steps and their approvers atomically. Empty ids are
	// generated.
	Create(ctx context.Context, definition *models.WorkflowDefinition) error
	// GetByID returns ErrDefinitionNotFound when the definition does not exist in the account.
	GetByID(ctx context.Context, id, accountID string) (*models.WorkflowDefinition, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.WorkflowDefinition, error)
	SetActive(ctx context.Context, id, accountID string, active bool, at time.Time) (*models.WorkflowDefinition, error)
}

// InstanceFilter narrows instance listings. Empty fields match everything.
type InstanceFilter struct {
	AccountID  string
	WorkflowID string
	EntityType string
	EntityID   string
	Status     models.InstanceStatus
	Limit      int
	Offset     int
}

// InstanceRepository stores workflow instances.
type InstanceRepository interface {
	Create(ctx context.Context, instance *models.WorkflowInstance) error
	// GetByID returns ErrInstanceNotFound when the instance does not exist.
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	// List returns matching instances ordered by start time, newest first.
	List(ctx context.Context, filter InstanceFilter) ([]*models.WorkflowInstance, error)
	SetCurrentStep(ctx context.Context, id, stepID string) error
	// Finish moves a RUNNING instance to a terminal status. It reports false, without error,
	// when the instance was already terminal.
	Finish(ctx context.Context, id string, status models.InstanceStatus, errorMessage string, at time.Time) (bool, error)
}

// StepExecutionRepository stores the append-only step execution history.
type StepExecutionRepository interface {
	Create(ctx context.Context, execution *models.WorkflowStepExecution) error
	Finish(ctx context.Context, id string, status models.ExecutionStatus, result map[string]any, errorMessage string, at time.Time) error
	SetAssignee(ctx context.Context, id, userID string) error
	// ListByInstance returns executions ordered by start time.
	ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowStepExecution, error)
}

// ApprovalRepository stores approval requests and their decisions.
type ApprovalRepository interface {
	CreateBatch(ctx context.Context, approvals []*models.WorkflowApproval) error
	GetByID(ctx context.Context, id string) (*models.WorkflowApproval, error)
	// Decide records the decision when the approval is PENDING and owned by approverID.
	// It returns ErrApprovalNotFound otherwise.
	Decide(ctx context.Context, id, approverID string, status models.ApprovalStatus, comments string, at time.Time) (*models.WorkflowApproval, error)
	ListByExecution(ctx context.Context, executionID string) ([]*models.WorkflowApproval, error)
	ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowApproval, error)
}

// ResumptionRepository stores resumptions scheduled by WAIT steps.
type ResumptionRepository interface {
	Create(ctx context.Context, resumption *models.ScheduledResumption) error
	// Due returns PENDING resumptions whose due time is not after before, oldest first.
	Due(ctx context.Context, before time.Time, limit int) ([]*models.ScheduledResumption, error)
	// Claim marks a PENDING resumption as FIRED. It reports false when another caller
	// claimed it first.
	Claim(ctx context.Context, id string, at time.Time) (bool, error)
}
