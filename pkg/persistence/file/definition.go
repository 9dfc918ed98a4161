package file

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/renocrm/workflow-engine/pkg/persistence"
)

// DefinitionRepository stores each definition, with its steps and approvers, as one document.
type DefinitionRepository struct {
	mu   *sync.RWMutex
	docs collection[models.WorkflowDefinition]
}

// Create assigns missing ids and writes the whole definition in a single document.
func (r *DefinitionRepository) Create(_ context.Context, definition *models.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if definition.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		definition.ID = id
	}

	for _, step := range definition.Steps {
		if step.ID == "" {
			id, err := newID()
			if err != nil {
				return err
			}

			step.ID = id
		}

		step.WorkflowID = definition.ID

		for _, approver := range step.Approvers {
			if approver.ID == "" {
				id, err := newID()
				if err != nil {
					return err
				}

				approver.ID = id
			}

			approver.StepID = step.ID
		}

		sortApprovers(step.Approvers)
	}

	sortSteps(definition.Steps)

	err := r.docs.save(definition.ID, definition)
	if err != nil {
		return persistence.NewRecordError("Create", "definition", definition.ID, err)
	}

	return nil
}

func (r *DefinitionRepository) GetByID(_ context.Context, id, accountID string) (*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.get(id, accountID)
}

func (r *DefinitionRepository) get(id, accountID string) (*models.WorkflowDefinition, error) {
	definition, err := r.docs.load(id)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "definition", id, err)
	}

	if definition == nil || definition.AccountID != accountID {
		return nil, persistence.NewRecordError("GetByID", "definition", id, persistence.ErrDefinitionNotFound)
	}

	return definition, nil
}

// ListByAccount returns the account's definitions, newest first.
func (r *DefinitionRepository) ListByAccount(_ context.Context, accountID string) ([]*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.docs.all()
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}

	definitions := make([]*models.WorkflowDefinition, 0, len(all))

	for _, definition := range all {
		if definition.AccountID == accountID {
			definitions = append(definitions, definition)
		}
	}

	sort.SliceStable(definitions, func(i, j int) bool {
		return definitions[i].CreatedAt.After(definitions[j].CreatedAt)
	})

	return definitions, nil
}

func (r *DefinitionRepository) SetActive(_ context.Context, id, accountID string, active bool, at time.Time) (*models.WorkflowDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	definition, err := r.get(id, accountID)
	if err != nil {
		return nil, err
	}

	definition.IsActive = active
	definition.UpdatedAt = at

	err = r.docs.save(definition.ID, definition)
	if err != nil {
		return nil, persistence.NewRecordError("SetActive", "definition", id, err)
	}

	return definition, nil
}

func sortSteps(steps []*models.WorkflowStep) {
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Position < steps[j].Position
	})
}

func sortApprovers(approvers []*models.StepApprover) {
	sort.SliceStable(approvers, func(i, j int) bool {
		return approvers[i].Order < approvers[j].Order
	})
}
