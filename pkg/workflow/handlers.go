package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/renocrm/workflow-engine/pkg/entity"
	"github.com/renocrm/workflow-engine/pkg/events"
	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/renocrm/workflow-engine/pkg/template"
)

const defaultWaitMinutes = 60

func (e *Engine) builtinHandlers() map[models.StepType]StepHandler {
	return map[models.StepType]StepHandler{
		models.StepTypeApproval:     StepHandlerFunc(e.executeApproval),
		models.StepTypeTask:         StepHandlerFunc(e.executeTask),
		models.StepTypeNotification: StepHandlerFunc(e.executeNotification),
		models.StepTypeEmail:        StepHandlerFunc(e.executeEmail),
		models.StepTypeDataUpdate:   StepHandlerFunc(e.executeDataUpdate),
		models.StepTypeWebhook:      StepHandlerFunc(e.executeWebhook),
		models.StepTypeWait:         StepHandlerFunc(e.executeWait),
		models.StepTypeDecision:     StepHandlerFunc(e.executeDecision),
	}
}

// decodeConfiguration copies an opaque step configuration into a typed struct.
func decodeConfiguration(configuration map[string]any, out any) error {
	if len(configuration) == 0 {
		return nil
	}

	raw, err := json.Marshal(configuration)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStepConfiguration, err)
	}

	err = json.Unmarshal(raw, out)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStepConfiguration, err)
	}

	return nil
}

func newEvent(eventType events.EventType, instance *models.WorkflowInstance) events.BaseEvent {
	return events.NewBaseEvent(eventType, instance.AccountID, instance.WorkflowID)
}

// templateData loads the instance's entity for placeholder rendering. A missing entity
// leaves .entity empty.
func (e *Engine) templateData(ctx context.Context, instance *models.WorkflowInstance) map[string]any {
	data, err := e.entities.Load(ctx, instance.AccountID, instance.EntityType, instance.EntityID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to load entity for templating",
			"instance_id", instance.ID,
			"error", err)
	}

	return template.Data(instance, data)
}

// renderText fills {{ }} placeholders in fields. The entity is only loaded when a field
// needs it.
func (e *Engine) renderText(ctx context.Context, instance *models.WorkflowInstance, fields ...*string) error {
	var data map[string]any

	for _, field := range fields {
		if !template.NeedsTemplating(*field) {
			continue
		}

		if data == nil {
			data = e.templateData(ctx, instance)
		}

		rendered, err := template.RenderString(*field, data)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidStepConfiguration, err)
		}

		*field = rendered
	}

	return nil
}

// executeApproval opens one PENDING approval per approver and pauses the chain.
func (e *Engine) executeApproval(ctx context.Context, req StepRequest) (StepResult, error) {
	if len(req.Step.Approvers) == 0 {
		return StepResult{Success: false, Message: "approval step has no approvers"}, nil
	}

	now := e.clock()
	approvals := make([]*models.WorkflowApproval, 0, len(req.Step.Approvers))

	for _, approver := range req.Step.Approvers {
		approvals = append(approvals, &models.WorkflowApproval{
			InstanceID:     req.Instance.ID,
			StepID:         req.Step.ID,
			ExecutionID:    req.ExecutionID,
			ApproverID:     approver.UserID,
			StepApproverID: approver.ID,
			IsRequired:     approver.IsRequired,
			Status:         models.ApprovalStatusPending,
			CreatedAt:      now,
		})
	}

	err := e.persistence.ApprovalRepository().CreateBatch(ctx, approvals)
	if err != nil {
		return StepResult{}, fmt.Errorf("failed to create approvals: %w", err)
	}

	approvalIDs := make([]string, 0, len(approvals))

	for _, approval := range approvals {
		approvalIDs = append(approvalIDs, approval.ID)

		e.publish(ctx, req.Instance.ID, events.ApprovalRequested{
			BaseEvent:  newEvent(events.ApprovalRequestedEvent, req.Instance),
			InstanceID: req.Instance.ID,
			StepID:     req.Step.ID,
			StepName:   req.Step.Name,
			ApprovalID: approval.ID,
			ApproverID: approval.ApproverID,
			IsRequired: approval.IsRequired,
		})
	}

	return StepResult{
		Success: true,
		Message: fmt.Sprintf("Awaiting %d approval(s)", len(approvals)),
		Data:    map[string]any{"approvalIds": approvalIDs},
	}, nil
}

type taskConfiguration struct {
	AssigneeID   string `json:"assigneeId"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	DueInMinutes int    `json:"dueInMinutes"`
}

func (e *Engine) executeTask(ctx context.Context, req StepRequest) (StepResult, error) {
	var config taskConfiguration

	err := decodeConfiguration(req.Step.Configuration, &config)
	if err != nil {
		return StepResult{}, err
	}

	data := map[string]any{}

	if config.AssigneeID != "" {
		err = e.persistence.StepExecutionRepository().SetAssignee(ctx, req.ExecutionID, config.AssigneeID)
		if err != nil {
			return StepResult{}, fmt.Errorf("failed to assign task: %w", err)
		}

		title := config.Title
		if title == "" {
			title = req.Step.Name
		}

		err = e.renderText(ctx, req.Instance, &title, &config.Description)
		if err != nil {
			return StepResult{Success: false, Message: err.Error()}, nil
		}

		e.publish(ctx, req.Instance.ID, events.TaskAssigned{
			BaseEvent:    newEvent(events.TaskAssignedEvent, req.Instance),
			InstanceID:   req.Instance.ID,
			StepID:       req.Step.ID,
			ExecutionID:  req.ExecutionID,
			AssigneeID:   config.AssigneeID,
			Title:        title,
			Description:  config.Description,
			DueInMinutes: config.DueInMinutes,
		})

		data["assigneeId"] = config.AssigneeID
	}

	return StepResult{Success: true, Data: data, NextStepID: req.NaturalNextID()}, nil
}

type notificationConfiguration struct {
	Recipients []string `json:"recipients"`
	Title      string   `json:"title"`
	Message    string   `json:"message"`
}

func (e *Engine) executeNotification(ctx context.Context, req StepRequest) (StepResult, error) {
	var config notificationConfiguration

	err := decodeConfiguration(req.Step.Configuration, &config)
	if err != nil {
		return StepResult{}, err
	}

	recipients := config.Recipients
	if len(recipients) == 0 && req.Instance.InitiatedByID != "" {
		recipients = []string{req.Instance.InitiatedByID}
	}

	title := config.Title
	if title == "" {
		title = req.Step.Name
	}

	err = e.renderText(ctx, req.Instance, &title, &config.Message)
	if err != nil {
		return StepResult{Success: false, Message: err.Error()}, nil
	}

	e.publish(ctx, req.Instance.ID, events.NotificationSend{
		BaseEvent:  newEvent(events.NotificationSendEvent, req.Instance),
		InstanceID: req.Instance.ID,
		StepID:     req.Step.ID,
		Recipients: recipients,
		Title:      title,
		Message:    config.Message,
	})

	return StepResult{
		Success:    true,
		Data:       map[string]any{"recipients": recipients},
		NextStepID: req.NaturalNextID(),
	}, nil
}

type emailConfiguration struct {
	To           []string       `json:"to"`
	Cc           []string       `json:"cc"`
	Bcc          []string       `json:"bcc"`
	Subject      string         `json:"subject"`
	Body         string         `json:"body"`
	Template     string         `json:"template"`
	TemplateData map[string]any `json:"templateData"`
}

func (e *Engine) executeEmail(ctx context.Context, req StepRequest) (StepResult, error) {
	var config emailConfiguration

	err := decodeConfiguration(req.Step.Configuration, &config)
	if err != nil {
		return StepResult{}, err
	}

	err = e.renderText(ctx, req.Instance, &config.Subject, &config.Body)
	if err != nil {
		return StepResult{Success: false, Message: err.Error()}, nil
	}

	e.publish(ctx, req.Instance.ID, events.EmailSend{
		BaseEvent:    newEvent(events.EmailSendEvent, req.Instance),
		InstanceID:   req.Instance.ID,
		StepID:       req.Step.ID,
		To:           config.To,
		Cc:           config.Cc,
		Bcc:          config.Bcc,
		Subject:      config.Subject,
		Body:         config.Body,
		Template:     config.Template,
		TemplateData: config.TemplateData,
	})

	return StepResult{
		Success:    true,
		Data:       map[string]any{"to": config.To},
		NextStepID: req.NaturalNextID(),
	}, nil
}

type dataUpdateConfiguration struct {
	EntityType string         `json:"entityType"`
	UpdateData map[string]any `json:"updateData"`
}

// executeDataUpdate writes updateData to the instance's entity. Failures are reported as an
// unsuccessful result so the instance fails with the reason.
func (e *Engine) executeDataUpdate(ctx context.Context, req StepRequest) (StepResult, error) {
	var config dataUpdateConfiguration

	err := decodeConfiguration(req.Step.Configuration, &config)
	if err != nil {
		return StepResult{Success: false, Message: err.Error()}, nil
	}

	target := req.Instance.EntityType
	if config.EntityType != "" {
		target = config.EntityType
	}

	if entity.Normalize(target) != entity.Normalize(req.Instance.EntityType) {
		return StepResult{
			Success: false,
			Message: fmt.Sprintf("data update targets %s but the instance runs on %s", target, req.Instance.EntityType),
		}, nil
	}

	if len(config.UpdateData) > 0 {
		err = e.entities.Update(ctx, req.Instance.AccountID, req.Instance.EntityType, req.Instance.EntityID, config.UpdateData)
		if err != nil {
			return StepResult{Success: false, Message: err.Error()}, nil
		}
	}

	fields := make([]string, 0, len(config.UpdateData))
	for field := range config.UpdateData {
		fields = append(fields, field)
	}

	sort.Strings(fields)

	return StepResult{
		Success:    true,
		Data:       map[string]any{"updatedFields": fields},
		NextStepID: req.NaturalNextID(),
	}, nil
}

type webhookConfiguration struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body"`
}

// executeWebhook publishes the call for the dispatcher; the engine never waits for it.
func (e *Engine) executeWebhook(ctx context.Context, req StepRequest) (StepResult, error) {
	var config webhookConfiguration

	err := decodeConfiguration(req.Step.Configuration, &config)
	if err != nil {
		return StepResult{}, err
	}

	if config.URL == "" {
		return StepResult{Success: false, Message: "webhook url is required"}, nil
	}

	method := strings.ToUpper(config.Method)
	if method == "" {
		method = "POST"
	}

	err = e.renderText(ctx, req.Instance, &config.URL)
	if err != nil {
		return StepResult{Success: false, Message: err.Error()}, nil
	}

	body := config.Body
	if body == nil {
		body = map[string]any{
			"instanceId": req.Instance.ID,
			"workflowId": req.Instance.WorkflowID,
			"entityType": req.Instance.EntityType,
			"entityId":   req.Instance.EntityID,
		}
	} else {
		body, err = template.RenderValue(body, e.templateData(ctx, req.Instance))
		if err != nil {
			return StepResult{Success: false, Message: fmt.Sprintf("%s: %s", ErrInvalidStepConfiguration, err)}, nil
		}
	}

	e.publish(ctx, req.Instance.ID, events.WebhookCall{
		BaseEvent:  newEvent(events.WebhookCallEvent, req.Instance),
		InstanceID: req.Instance.ID,
		StepID:     req.Step.ID,
		URL:        config.URL,
		Method:     method,
		Headers:    config.Headers,
		Body:       body,
	})

	return StepResult{
		Success:    true,
		Data:       map[string]any{"url": config.URL, "method": method},
		NextStepID: req.NaturalNextID(),
	}, nil
}

type waitConfiguration struct {
	WaitMinutes *float64 `json:"waitMinutes"`
}

// executeWait schedules a durable resumption and pauses the chain.
func (e *Engine) executeWait(ctx context.Context, req StepRequest) (StepResult, error) {
	var config waitConfiguration

	err := decodeConfiguration(req.Step.Configuration, &config)
	if err != nil {
		return StepResult{}, err
	}

	minutes := float64(defaultWaitMinutes)
	if config.WaitMinutes != nil && *config.WaitMinutes >= 0 {
		minutes = *config.WaitMinutes
	}

	now := e.clock()
	resumption := &models.ScheduledResumption{
		InstanceID:  req.Instance.ID,
		StepID:      req.Step.ID,
		ExecutionID: req.ExecutionID,
		DueAt:       now.Add(time.Duration(minutes * float64(time.Minute))),
		Status:      models.ResumptionStatusPending,
		CreatedAt:   now,
	}

	err = e.persistence.ResumptionRepository().Create(ctx, resumption)
	if err != nil {
		return StepResult{}, fmt.Errorf("failed to schedule resumption: %w", err)
	}

	e.publish(ctx, req.Instance.ID, events.WaitScheduled{
		BaseEvent:    newEvent(events.WaitScheduledEvent, req.Instance),
		InstanceID:   req.Instance.ID,
		StepID:       req.Step.ID,
		ResumptionID: resumption.ID,
		DueAt:        resumption.DueAt,
	})

	return StepResult{
		Success: true,
		Message: fmt.Sprintf("Waiting %g minute(s) until %s", minutes, resumption.DueAt.Format(time.RFC3339)),
		Data:    map[string]any{"resumptionId": resumption.ID, "dueAt": resumption.DueAt},
	}, nil
}

type decisionConfiguration struct {
	Conditions []models.Condition `json:"conditions"`
}

func decisionConditions(step *models.WorkflowStep) ([]models.Condition, error) {
	var config decisionConfiguration

	err := decodeConfiguration(step.Configuration, &config)
	if err != nil {
		return nil, err
	}

	if len(config.Conditions) == 0 && len(step.Conditions) > 0 {
		err = decodeConfiguration(step.Conditions, &config)
		if err != nil {
			return nil, err
		}
	}

	return config.Conditions, nil
}

// executeDecision routes to the first matching condition or to the natural next step.
func (e *Engine) executeDecision(ctx context.Context, req StepRequest) (StepResult, error) {
	conditions, err := decisionConditions(req.Step)
	if err != nil {
		return StepResult{}, err
	}

	data, err := e.entities.Load(ctx, req.Instance.AccountID, req.Instance.EntityType, req.Instance.EntityID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to load entity for decision, conditions evaluate to false",
			"instance_id", req.Instance.ID,
			"step_id", req.Step.ID,
			"error", err)

		data = nil
	}

	for i, condition := range conditions {
		if e.conditions.Evaluate(condition, data) {
			return StepResult{
				Success:    true,
				Data:       map[string]any{"matchedCondition": i, "nextStepId": condition.NextStepID},
				NextStepID: condition.NextStepID,
			}, nil
		}
	}

	return StepResult{
		Success:    true,
		Data:       map[string]any{"matchedCondition": -1, "nextStepId": req.NaturalNextID()},
		NextStepID: req.NaturalNextID(),
	}, nil
}
