package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/renocrm/workflow-engine/pkg/persistence"
	"github.com/renocrm/workflow-engine/pkg/workflow"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type APIHandlers struct {
	engine    *workflow.Engine
	validator *validator.Validate
	health    HealthChecker
}

func NewAPIHandlers(engine *workflow.Engine, validator *validator.Validate, health HealthChecker) *APIHandlers {
	return &APIHandlers{
		engine:    engine,
		validator: validator,
		health:    health,
	}
}

// Register mounts the workflow routes behind the authentication middleware.
func (h *APIHandlers) Register(app *fiber.App, secret []byte) {
	app.Get("/health", h.HealthCheck)

	w := app.Group("/workflows", Authenticate(secret))
	w.Post("/definitions", h.CreateDefinition)
	w.Get("/definitions", h.ListDefinitions)
	w.Get("/definitions/:id", h.GetDefinition)
	w.Patch("/definitions/:id", h.UpdateDefinition)
	w.Post("/instances/start", h.StartInstance)
	w.Get("/instances", h.ListInstances)
	w.Get("/instances/:id", h.GetInstance)
	w.Post("/instances/:id/steps/:stepId/execute", h.ExecuteStep)
	w.Post("/approvals/:id/approve", h.Approve)
	w.Post("/approvals/:id/reject", h.Reject)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	check := "ok"

	err := h.health.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
		check = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"persistence": check,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	var req CreateDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.engine.CreateDefinition(c.Context(), req.toDefinition(principal(c)))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) ListDefinitions(c fiber.Ctx) error {
	definitions, err := h.engine.ListDefinitions(c.Context(), principal(c).AccountID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"definitions": definitions})
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	definition, err := h.engine.GetDefinition(c.Context(), principal(c).AccountID, c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) UpdateDefinition(c fiber.Ctx) error {
	var req UpdateDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.engine.SetDefinitionActive(c.Context(), principal(c).AccountID, c.Params("id"), *req.IsActive)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	var req StartInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.Start(c.Context(), req.toStartRequest(principal(c)))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) ListInstances(c fiber.Ctx) error {
	filter, err := parseInstanceFilter(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	instances, err := h.engine.ListInstances(c.Context(), filter)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"instances": instances,
		"pagination": fiber.Map{
			"limit":  filter.Limit,
			"offset": filter.Offset,
		},
	})
}

func parseInstanceFilter(c fiber.Ctx) (persistence.InstanceFilter, error) {
	filter := persistence.InstanceFilter{
		AccountID:  principal(c).AccountID,
		WorkflowID: c.Query("workflowId"),
		EntityType: c.Query("entityType"),
		EntityID:   c.Query("entityId"),
		Status:     models.InstanceStatus(c.Query("status")),
		Limit:      defaultListLimit,
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return filter, err
		}

		filter.Limit = min(max(limit, 1), maxListLimit)
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return filter, err
		}

		filter.Offset = max(offset, 0)
	}

	return filter, nil
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	details, err := h.engine.GetInstance(c.Context(), principal(c).AccountID, c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(details)
}

func (h *APIHandlers) ExecuteStep(c fiber.Ctx) error {
	instance, err := h.engine.ExecuteStep(c.Context(), principal(c).AccountID, c.Params("id"), c.Params("stepId"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) Approve(c fiber.Ctx) error {
	return h.decide(c, h.engine.Approve)
}

func (h *APIHandlers) Reject(c fiber.Ctx) error {
	return h.decide(c, h.engine.Reject)
}

type decideFunc func(ctx context.Context, accountID, approvalID, approverID, comments string) (*models.WorkflowApproval, error)

// decide records the caller's decision; the approver is always the authenticated user.
func (h *APIHandlers) decide(c fiber.Ctx, decideFn decideFunc) error {
	var req DecisionRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	p := principal(c)

	approval, err := decideFn(c.Context(), p.AccountID, c.Params("id"), p.UserID, req.Comments)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(approval)
}
