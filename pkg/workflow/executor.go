package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/renocrm/workflow-engine/pkg/otelhelper"
	"github.com/renocrm/workflow-engine/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// ExecuteStep runs stepID of a RUNNING instance and keeps driving the chain from there.
func (e *Engine) ExecuteStep(ctx context.Context, accountID, instanceID, stepID string) (*models.WorkflowInstance, error) {
	err := e.withInstanceLock(ctx, instanceID, func() error {
		instance, err := e.loadInstance(ctx, accountID, instanceID)
		if err != nil {
			return err
		}

		if instance.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", ErrInstanceTerminal, instance.ID, instance.Status)
		}

		index, err := e.stepIndexFor(ctx, instance)
		if err != nil {
			return err
		}

		step, ok := index.get(stepID)
		if !ok {
			return persistence.NewRecordError("ExecuteStep", "step", stepID, persistence.ErrStepNotFound)
		}

		return e.drive(ctx, instance, index, step)
	})
	if err != nil {
		return nil, err
	}

	return e.persistence.InstanceRepository().GetByID(ctx, instanceID)
}

func (e *Engine) stepIndexFor(ctx context.Context, instance *models.WorkflowInstance) (*stepIndex, error) {
	definition, err := e.persistence.DefinitionRepository().GetByID(ctx, instance.WorkflowID, instance.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow definition: %w", err)
	}

	return newStepIndex(definition.Steps), nil
}

// drive runs steps one after another until a step pauses, the chain ends or a step fails.
// A chain longer than maxChainSteps, or one whose context ends, fails at the step it was
// about to run. The caller holds the instance lock.
func (e *Engine) drive(ctx context.Context, instance *models.WorkflowInstance, index *stepIndex, step *models.WorkflowStep) error {
	for ran := 0; step != nil; ran++ {
		if ran >= e.maxChainSteps {
			message := fmt.Sprintf("step chain exceeded %d steps without pausing", e.maxChainSteps)

			return e.abortStep(ctx, instance, step, message, ErrChainLimitExceeded)
		}

		err := ctx.Err()
		if err != nil {
			return e.abortStep(ctx, instance, step, "step chain interrupted: "+err.Error(), err)
		}

		next, paused, err := e.runStep(ctx, instance, index, step)
		if err != nil {
			return err
		}

		if paused {
			return nil
		}

		if next == nil {
			return e.complete(ctx, instance)
		}

		step = next
	}

	return nil
}

// runStep executes one step and returns the step to run next. paused is true when the step
// suspended the chain.
func (e *Engine) runStep(
	ctx context.Context,
	instance *models.WorkflowInstance,
	index *stepIndex,
	step *models.WorkflowStep,
) (*models.WorkflowStep, bool, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.step.execute",
		attribute.String(otelhelper.AccountIDKey, instance.AccountID),
		attribute.String(otelhelper.WorkflowIDKey, instance.WorkflowID),
		attribute.String(otelhelper.InstanceIDKey, instance.ID),
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepTypeKey, string(step.StepType)),
	)
	defer span.End()

	logger := e.logger.With("instance_id", instance.ID, "step_id", step.ID, "step_type", step.StepType)

	execution := &models.WorkflowStepExecution{
		InstanceID: instance.ID,
		StepID:     step.ID,
		Status:     models.ExecutionStatusRunning,
		StartedAt:  e.clock(),
	}

	err := e.persistence.StepExecutionRepository().Create(ctx, execution)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, false, fmt.Errorf("failed to create step execution: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))

	err = e.persistence.InstanceRepository().SetCurrentStep(ctx, instance.ID, step.ID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, false, fmt.Errorf("failed to update current step: %w", err)
	}

	instance.CurrentStepID = step.ID

	logger.InfoContext(ctx, "Executing step", "execution_id", execution.ID, "step_name", step.Name)

	handler, ok := e.handlers[step.StepType]
	if !ok {
		err = fmt.Errorf("%w: %s", ErrUnsupportedStepType, step.StepType)
		otelhelper.SetError(span, err)

		return nil, false, e.failStep(ctx, instance, step, execution, err.Error(), err)
	}

	req := StepRequest{
		Instance:    instance,
		Step:        step,
		ExecutionID: execution.ID,
		NaturalNext: index.next(step.Position),
	}

	result, err := e.dispatch(ctx, handler, req)
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.ExecutionIDKey, execution.ID))

		return nil, false, e.failStep(ctx, instance, step, execution, err.Error(), err)
	}

	if !result.Success {
		message := result.Message
		if message == "" {
			message = "step did not succeed"
		}

		otelhelper.SetError(span, errors.New(message), attribute.String(otelhelper.ExecutionIDKey, execution.ID))

		return nil, false, e.failStep(ctx, instance, step, execution, message, ErrStepFailed)
	}

	data := result.Data
	if result.Message != "" {
		if data == nil {
			data = map[string]any{}
		}

		data["message"] = result.Message
	}

	var next *models.WorkflowStep

	if result.NextStepID != "" {
		next, ok = index.get(result.NextStepID)
		if !ok {
			message := fmt.Sprintf("next step %s not found in workflow %s", result.NextStepID, instance.WorkflowID)
			otelhelper.SetError(span, errors.New(message))

			return nil, false, e.failStep(ctx, instance, step, execution, message, ErrStepFailed)
		}
	}

	err = e.persistence.StepExecutionRepository().Finish(ctx, execution.ID, models.ExecutionStatusCompleted, data, "", e.clock())
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, false, fmt.Errorf("failed to complete step execution: %w", err)
	}

	logger.InfoContext(ctx, "Step completed", "execution_id", execution.ID, "next_step_id", result.NextStepID)

	if next != nil {
		return next, false, nil
	}

	return nil, step.StepType.Pauses(), nil
}

// dispatch calls the handler, turning a panic into an error.
func (e *Engine) dispatch(ctx context.Context, handler StepHandler, req StepRequest) (result StepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step handler panicked: %v", r)
		}
	}()

	return handler.Execute(ctx, req)
}

// abortStep records a FAILED execution of a step that was never run and fails the instance.
// It keeps writing after ctx ends so the instance is not left RUNNING.
func (e *Engine) abortStep(
	ctx context.Context,
	instance *models.WorkflowInstance,
	step *models.WorkflowStep,
	message string,
	cause error,
) error {
	ctx = context.WithoutCancel(ctx)

	execution := &models.WorkflowStepExecution{
		InstanceID: instance.ID,
		StepID:     step.ID,
		Status:     models.ExecutionStatusRunning,
		StartedAt:  e.clock(),
	}

	err := e.persistence.StepExecutionRepository().Create(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to create step execution: %w", err)
	}

	e.logger.WarnContext(ctx, "Aborting step chain",
		"instance_id", instance.ID,
		"step_id", step.ID,
		"reason", message)

	return e.failStep(ctx, instance, step, execution, message, cause)
}

// failStep marks the execution FAILED, fails the instance with the same message and returns
// the *StepError reported to the caller.
func (e *Engine) failStep(
	ctx context.Context,
	instance *models.WorkflowInstance,
	step *models.WorkflowStep,
	execution *models.WorkflowStepExecution,
	message string,
	cause error,
) error {
	err := e.persistence.StepExecutionRepository().Finish(ctx, execution.ID, models.ExecutionStatusFailed, nil, message, e.clock())
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to mark step execution as failed",
			"instance_id", instance.ID,
			"execution_id", execution.ID,
			"error", err)
	}

	stepErr := &StepError{InstanceID: instance.ID, StepID: step.ID, Message: message, Err: cause}

	err = e.fail(ctx, instance, message)
	if err != nil {
		return errors.Join(stepErr, err)
	}

	return stepErr
}
