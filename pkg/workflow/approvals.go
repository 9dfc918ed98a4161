package workflow

import (
	"context"
	"fmt"

	"github.com/renocrm/workflow-engine/pkg/events"
	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/renocrm/workflow-engine/pkg/persistence"
)

// Approve records an approval decision. Once every required approval of the step is
// APPROVED, or the first approval when none is required, the chain resumes at the natural
// next step, or the instance completes.
func (e *Engine) Approve(ctx context.Context, accountID, approvalID, approverID, comments string) (*models.WorkflowApproval, error) {
	return e.decide(ctx, accountID, approvalID, approverID, models.ApprovalStatusApproved, comments)
}

// Reject records a rejection and fails the instance.
func (e *Engine) Reject(ctx context.Context, accountID, approvalID, approverID, comments string) (*models.WorkflowApproval, error) {
	return e.decide(ctx, accountID, approvalID, approverID, models.ApprovalStatusRejected, comments)
}

func (e *Engine) decide(
	ctx context.Context,
	accountID, approvalID, approverID string,
	status models.ApprovalStatus,
	comments string,
) (*models.WorkflowApproval, error) {
	pending, err := e.persistence.ApprovalRepository().GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	var decided *models.WorkflowApproval

	err = e.withInstanceLock(ctx, pending.InstanceID, func() error {
		instance, err := e.loadInstance(ctx, accountID, pending.InstanceID)
		if persistence.IsInstanceNotFound(err) {
			return persistence.NewRecordError("Decide", "approval", approvalID, persistence.ErrApprovalNotFound)
		}

		if err != nil {
			return err
		}

		if instance.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", ErrInstanceTerminal, instance.ID, instance.Status)
		}

		before, err := e.persistence.ApprovalRepository().ListByExecution(ctx, pending.ExecutionID)
		if err != nil {
			return fmt.Errorf("failed to list approvals: %w", err)
		}

		decided, err = e.persistence.ApprovalRepository().Decide(ctx, approvalID, approverID, status, comments, e.clock())
		if err != nil {
			return err
		}

		e.logger.InfoContext(ctx, "Approval decided",
			"instance_id", instance.ID,
			"approval_id", decided.ID,
			"approver_id", approverID,
			"status", status)

		if status == models.ApprovalStatusRejected {
			e.publish(ctx, instance.ID, events.ApprovalRejected{
				BaseEvent:  newEvent(events.ApprovalRejectedEvent, instance),
				InstanceID: instance.ID,
				StepID:     decided.StepID,
				ApprovalID: decided.ID,
				ApproverID: approverID,
				Comments:   comments,
			})

			return e.fail(ctx, instance, rejectionMessage(comments))
		}

		e.publish(ctx, instance.ID, events.ApprovalApproved{
			BaseEvent:  newEvent(events.ApprovalApprovedEvent, instance),
			InstanceID: instance.ID,
			StepID:     decided.StepID,
			ApprovalID: decided.ID,
			ApproverID: approverID,
			Comments:   comments,
		})

		after, err := e.persistence.ApprovalRepository().ListByExecution(ctx, decided.ExecutionID)
		if err != nil {
			return fmt.Errorf("failed to list approvals: %w", err)
		}

		// Only the decision that completes the set advances the instance.
		if approvalsComplete(before) || !approvalsComplete(after) || instance.CurrentStepID != decided.StepID {
			return nil
		}

		current, err := e.isLatestExecution(ctx, instance.ID, decided.StepID, decided.ExecutionID)
		if err != nil {
			return err
		}

		if !current {
			e.logger.InfoContext(ctx, "Approval belongs to a superseded step execution",
				"instance_id", instance.ID,
				"approval_id", decided.ID,
				"execution_id", decided.ExecutionID)

			return nil
		}

		return e.resumeAfter(ctx, instance, decided.StepID)
	})
	if err != nil {
		return nil, err
	}

	return decided, nil
}

// isLatestExecution reports whether executionID is the most recent execution of stepID.
// Re-running an APPROVAL step opens a new approval set and retires the previous one.
func (e *Engine) isLatestExecution(ctx context.Context, instanceID, stepID, executionID string) (bool, error) {
	executions, err := e.persistence.StepExecutionRepository().ListByInstance(ctx, instanceID)
	if err != nil {
		return false, fmt.Errorf("failed to list step executions: %w", err)
	}

	latest := ""

	for _, execution := range executions {
		if execution.StepID == stepID {
			latest = execution.ID
		}
	}

	return latest == executionID, nil
}

// resumeAfter continues the chain after a paused step. The caller holds the instance lock.
func (e *Engine) resumeAfter(ctx context.Context, instance *models.WorkflowInstance, stepID string) error {
	index, err := e.stepIndexFor(ctx, instance)
	if err != nil {
		return err
	}

	step, ok := index.get(stepID)
	if !ok {
		return persistence.NewRecordError("Resume", "step", stepID, persistence.ErrStepNotFound)
	}

	next := index.next(step.Position)
	if next == nil {
		return e.complete(ctx, instance)
	}

	return e.drive(ctx, instance, index, next)
}

// approvalsComplete reports whether every required approval is APPROVED. Without required
// approvals a single APPROVED one is enough.
func approvalsComplete(approvals []*models.WorkflowApproval) bool {
	required := 0
	approvedRequired := 0
	approved := 0

	for _, approval := range approvals {
		if approval.Status == models.ApprovalStatusApproved {
			approved++
		}

		if approval.IsRequired {
			required++

			if approval.Status == models.ApprovalStatusApproved {
				approvedRequired++
			}
		}
	}

	if required > 0 {
		return approvedRequired == required
	}

	return approved > 0
}

func rejectionMessage(comments string) string {
	if comments == "" {
		return "Approval rejected"
	}

	return "Approval rejected: " + comments
}
