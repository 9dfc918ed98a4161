// Package workflow runs approval workflows: it validates and stores definitions, starts
// instances against CRM entities, drives the step state machine and aggregates approvals.
package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/renocrm/workflow-engine/pkg/entity"
	"github.com/renocrm/workflow-engine/pkg/eventbus"
	"github.com/renocrm/workflow-engine/pkg/locking"
	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/renocrm/workflow-engine/pkg/otelhelper"
	"github.com/renocrm/workflow-engine/pkg/persistence"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxChainSteps bounds how many steps one call may run before the chain pauses.
const DefaultMaxChainSteps = 1000

// Engine is the workflow execution core. All operations on one instance are serialized
// through the configured Locker; different instances run concurrently.
type Engine struct {
	persistence persistence.Persistence
	entities    *entity.Registry
	publisher   eventbus.Publisher
	locker      locking.Locker
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
	validate    *validator.Validate
	schemas     *schemaSet
	conditions  *ConditionEvaluator
	handlers    map[models.StepType]StepHandler

	maxChainSteps int
}

type Option func(*Engine)

func WithLocker(locker locking.Locker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithMaxChainSteps caps the steps run by one Start, ExecuteStep, approval or resumption.
// A DECISION routing back to an earlier step repeats until this cap.
func WithMaxChainSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxChainSteps = n
		}
	}
}

// WithStepHandler overrides the handler of a step type.
func WithStepHandler(stepType models.StepType, handler StepHandler) Option {
	return func(e *Engine) {
		e.handlers[stepType] = handler
	}
}

func NewEngine(
	p persistence.Persistence,
	entities *entity.Registry,
	publisher eventbus.Publisher,
	opts ...Option,
) *Engine {
	engine := &Engine{
		persistence: p,
		entities:    entities,
		publisher:   publisher,
		locker:      locking.NewKeyedMutex(),
		tracer:      otelhelper.NoopTracer(),
		logger:      slog.Default(),
		now:         time.Now,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		schemas:     mustCompileSchemas(),
		conditions:  NewConditionEvaluator(),

		maxChainSteps: DefaultMaxChainSteps,
	}

	engine.handlers = engine.builtinHandlers()

	for _, opt := range opts {
		opt(engine)
	}

	engine.logger = engine.logger.With("module", "workflow_engine")

	return engine
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// publish sends an event keyed by instance or definition id. Delivery failures never fail
// the workflow.
func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	err := e.publisher.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "key", key, "error", err)
	}
}

// withInstanceLock runs fn while holding the lock of instanceID.
func (e *Engine) withInstanceLock(ctx context.Context, instanceID string, fn func() error) error {
	unlock, err := e.locker.Lock(ctx, instanceID)
	if err != nil {
		return err
	}
	defer unlock()

	return fn()
}
