package workflow

import (
	"context"
	"sort"

	"github.com/renocrm/workflow-engine/pkg/models"
)

// StepRequest is what a StepHandler gets to work with.
type StepRequest struct {
	Instance    *models.WorkflowInstance
	Step        *models.WorkflowStep
	ExecutionID string
	// NaturalNext is the step with the next higher position, nil for the last step.
	NaturalNext *models.WorkflowStep
}

// NaturalNextID returns the id of the natural next step or "" when there is none.
func (r StepRequest) NaturalNextID() string {
	if r.NaturalNext == nil {
		return ""
	}

	return r.NaturalNext.ID
}

// StepResult is the outcome of a step. Success with an empty NextStepID completes the
// instance, unless the step type pauses.
type StepResult struct {
	Success    bool
	Message    string
	Data       map[string]any
	NextStepID string
}

type StepHandler interface {
	Execute(ctx context.Context, req StepRequest) (StepResult, error)
}

type StepHandlerFunc func(ctx context.Context, req StepRequest) (StepResult, error)

func (f StepHandlerFunc) Execute(ctx context.Context, req StepRequest) (StepResult, error) {
	return f(ctx, req)
}

// stepIndex orders the steps of a definition by position.
type stepIndex struct {
	steps []*models.WorkflowStep
	byID  map[string]*models.WorkflowStep
}

func newStepIndex(steps []*models.WorkflowStep) *stepIndex {
	sorted := make([]*models.WorkflowStep, len(steps))
	copy(sorted, steps)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})

	byID := make(map[string]*models.WorkflowStep, len(sorted))
	for _, step := range sorted {
		byID[step.ID] = step
	}

	return &stepIndex{steps: sorted, byID: byID}
}

func (ix *stepIndex) first() *models.WorkflowStep {
	if len(ix.steps) == 0 {
		return nil
	}

	return ix.steps[0]
}

func (ix *stepIndex) get(id string) (*models.WorkflowStep, bool) {
	step, ok := ix.byID[id]

	return step, ok
}

// next returns the step with the smallest position strictly greater than position.
func (ix *stepIndex) next(position int) *models.WorkflowStep {
	i := sort.Search(len(ix.steps), func(i int) bool {
		return ix.steps[i].Position > position
	})

	if i == len(ix.steps) {
		return nil
	}

	return ix.steps[i]
}
