// Package events defines the domain events emitted by the workflow engine.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every workflow event.
const Topic = "workflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Definition events.
	DefinitionCreatedEvent EventType = "workflow.definition.created"
	DefinitionUpdatedEvent EventType = "workflow.definition.updated"

	// Instance lifecycle events.
	InstanceStartedEvent   EventType = "workflow.instance.started"
	InstanceCompletedEvent EventType = "workflow.instance.completed"
	InstanceFailedEvent    EventType = "workflow.instance.failed"

	// Approval events.
	ApprovalRequestedEvent EventType = "workflow.approval.requested"
	ApprovalApprovedEvent  EventType = "workflow.approval.approved"
	ApprovalRejectedEvent  EventType = "workflow.approval.rejected"

	// Side-effect requests consumed outside the engine.
	TaskAssignedEvent     EventType = "workflow.task.assigned"
	NotificationSendEvent EventType = "workflow.notification.send"
	EmailSendEvent        EventType = "workflow.email.send"
	WebhookCallEvent      EventType = "workflow.webhook.call"
	WaitScheduledEvent    EventType = "workflow.wait.scheduled"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	AccountID  string         `json:"account_id"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps a new event id and the current time.
func NewBaseEvent(eventType EventType, accountID, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		AccountID:  accountID,
		WorkflowID: workflowID,
	}
}

type DefinitionCreated struct {
	BaseEvent

	Name      string `json:"name"`
	StepCount int    `json:"step_count"`
	CreatedBy string `json:"created_by"`
}

func (e DefinitionCreated) GetType() EventType {
	return DefinitionCreatedEvent
}

type DefinitionUpdated struct {
	BaseEvent

	IsActive bool `json:"is_active"`
}

func (e DefinitionUpdated) GetType() EventType {
	return DefinitionUpdatedEvent
}

type InstanceStarted struct {
	BaseEvent

	InstanceID    string `json:"instance_id"`
	EntityType    string `json:"entity_type"`
	EntityID      string `json:"entity_id"`
	InitiatedByID string `json:"initiated_by_id"`
}

func (e InstanceStarted) GetType() EventType {
	return InstanceStartedEvent
}

type InstanceCompleted struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type InstanceFailed struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Error      string `json:"error"`
}

func (e InstanceFailed) GetType() EventType {
	return InstanceFailedEvent
}

type ApprovalRequested struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	StepID     string `json:"step_id"`
	StepName   string `json:"step_name"`
	ApprovalID string `json:"approval_id"`
	ApproverID string `json:"approver_id"`
	IsRequired bool   `json:"is_required"`
}

func (e ApprovalRequested) GetType() EventType {
	return ApprovalRequestedEvent
}

type ApprovalApproved struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	StepID     string `json:"step_id"`
	ApprovalID string `json:"approval_id"`
	ApproverID string `json:"approver_id"`
	Comments   string `json:"comments,omitempty"`
}

func (e ApprovalApproved) GetType() EventType {
	return ApprovalApprovedEvent
}

type ApprovalRejected struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	StepID     string `json:"step_id"`
	ApprovalID string `json:"approval_id"`
	ApproverID string `json:"approver_id"`
	Comments   string `json:"comments,omitempty"`
}

func (e ApprovalRejected) GetType() EventType {
	return ApprovalRejectedEvent
}

type TaskAssigned struct {
	BaseEvent

	InstanceID   string `json:"instance_id"`
	StepID       string `json:"step_id"`
	ExecutionID  string `json:"execution_id"`
	AssigneeID   string `json:"assignee_id"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	DueInMinutes int    `json:"due_in_minutes,omitempty"`
}

func (e TaskAssigned) GetType() EventType {
	return TaskAssignedEvent
}

type NotificationSend struct {
	BaseEvent

	InstanceID string   `json:"instance_id"`
	StepID     string   `json:"step_id"`
	Recipients []string `json:"recipients"`
	Title      string   `json:"title,omitempty"`
	Message    string   `json:"message,omitempty"`
}

func (e NotificationSend) GetType() EventType {
	return NotificationSendEvent
}

type EmailSend struct {
	BaseEvent

	InstanceID   string         `json:"instance_id"`
	StepID       string         `json:"step_id"`
	To           []string       `json:"to"`
	Cc           []string       `json:"cc,omitempty"`
	Bcc          []string       `json:"bcc,omitempty"`
	Subject      string         `json:"subject,omitempty"`
	Body         string         `json:"body,omitempty"`
	Template     string         `json:"template,omitempty"`
	TemplateData map[string]any `json:"template_data,omitempty"`
}

func (e EmailSend) GetType() EventType {
	return EmailSendEvent
}

type WebhookCall struct {
	BaseEvent

	InstanceID string            `json:"instance_id"`
	StepID     string            `json:"step_id"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       any               `json:"body,omitempty"`
}

func (e WebhookCall) GetType() EventType {
	return WebhookCallEvent
}

type WaitScheduled struct {
	BaseEvent

	InstanceID   string    `json:"instance_id"`
	StepID       string    `json:"step_id"`
	ResumptionID string    `json:"resumption_id"`
	DueAt        time.Time `json:"due_at"`
}

func (e WaitScheduled) GetType() EventType {
	return WaitScheduledEvent
}
