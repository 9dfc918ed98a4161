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

// InstanceRepository handles workflow instance documents.
type InstanceRepository struct {
	mu   *sync.RWMutex
	docs collection[models.WorkflowInstance]
}

func (r *InstanceRepository) Create(_ context.Context, instance *models.WorkflowInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if instance.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		instance.ID = id
	}

	err := r.docs.save(instance.ID, instance)
	if err != nil {
		return persistence.NewRecordError("Create", "instance", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.get("GetByID", id)
}

func (r *InstanceRepository) get(op, id string) (*models.WorkflowInstance, error) {
	instance, err := r.docs.load(id)
	if err != nil {
		return nil, persistence.NewRecordError(op, "instance", id, err)
	}

	if instance == nil {
		return nil, persistence.NewRecordError(op, "instance", id, persistence.ErrInstanceNotFound)
	}

	return instance, nil
}

func (r *InstanceRepository) List(_ context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.docs.all()
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	instances := make([]*models.WorkflowInstance, 0, len(all))

	for _, instance := range all {
		if matchesFilter(instance, filter) {
			instances = append(instances, instance)
		}
	}

	sort.SliceStable(instances, func(i, j int) bool {
		return instances[i].StartedAt.After(instances[j].StartedAt)
	})

	if filter.Offset >= len(instances) {
		return []*models.WorkflowInstance{}, nil
	}

	instances = instances[filter.Offset:]

	if filter.Limit > 0 && filter.Limit < len(instances) {
		instances = instances[:filter.Limit]
	}

	return instances, nil
}

func matchesFilter(instance *models.WorkflowInstance, filter persistence.InstanceFilter) bool {
	switch {
	case filter.AccountID != "" && instance.AccountID != filter.AccountID:
		return false
	case filter.WorkflowID != "" && instance.WorkflowID != filter.WorkflowID:
		return false
	case filter.EntityType != "" && instance.EntityType != filter.EntityType:
		return false
	case filter.EntityID != "" && instance.EntityID != filter.EntityID:
		return false
	case filter.Status != "" && instance.Status != filter.Status:
		return false
	}

	return true
}

func (r *InstanceRepository) SetCurrentStep(_ context.Context, id, stepID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, err := r.get("SetCurrentStep", id)
	if err != nil {
		return err
	}

	instance.CurrentStepID = stepID

	err = r.docs.save(id, instance)
	if err != nil {
		return persistence.NewRecordError("SetCurrentStep", "instance", id, err)
	}

	return nil
}

func (r *InstanceRepository) Finish(_ context.Context, id string, status models.InstanceStatus, errorMessage string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, err := r.get("Finish", id)
	if err != nil {
		return false, err
	}

	if instance.Status.IsTerminal() {
		return false, nil
	}

	instance.Status = status
	instance.ErrorMessage = errorMessage
	instance.CompletedAt = &at

	err = r.docs.save(id, instance)
	if err != nil {
		return false, persistence.NewRecordError("Finish", "instance", id, err)
	}

	return true, nil
}
