package web

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/renocrm/workflow-engine/pkg/persistence"
	"github.com/renocrm/workflow-engine/pkg/workflow"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

// handleEngineError maps engine errors onto problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, workflow.ErrUnsupportedStepType):
		return badRequest(c, err.Error())

	case workflow.IsStepFailure(err):
		var stepErr *workflow.StepError

		errors.As(err, &stepErr)

		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"type":        "step_failed",
			"title":       http.StatusText(fiber.StatusUnprocessableEntity),
			"status":      fiber.StatusUnprocessableEntity,
			"detail":      stepErr.Message,
			"instance":    c.Path(),
			"instance_id": stepErr.InstanceID,
			"step_id":     stepErr.StepID,
		})

	case workflow.IsValidationError(err):
		return badRequest(c, err.Error())

	case workflow.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsDefinitionNotFound(err), errors.Is(err, workflow.ErrDefinitionInactive):
		return notFound(c, "workflow_not_found", "workflow definition not found or inactive")

	case persistence.IsInstanceNotFound(err):
		return notFound(c, "instance_not_found", "workflow instance not found")

	case persistence.IsApprovalNotFound(err):
		return notFound(c, "approval_not_found", "approval not found or already decided")

	case errors.Is(err, workflow.ErrEntityNotFound):
		return notFound(c, "entity_not_found", "entity not found")

	case workflow.IsNotFound(err):
		return notFound(c, "not_found", err.Error())

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
