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

// ResumptionRepository handles scheduled resumption documents.
type ResumptionRepository struct {
	mu   *sync.RWMutex
	docs collection[models.ScheduledResumption]
}

func (r *ResumptionRepository) Create(_ context.Context, resumption *models.ScheduledResumption) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if resumption.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		resumption.ID = id
	}

	err := r.docs.save(resumption.ID, resumption)
	if err != nil {
		return persistence.NewRecordError("Create", "resumption", resumption.ID, err)
	}

	return nil
}

func (r *ResumptionRepository) Due(_ context.Context, before time.Time, limit int) ([]*models.ScheduledResumption, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.docs.all()
	if err != nil {
		return nil, fmt.Errorf("failed to list resumptions: %w", err)
	}

	due := make([]*models.ScheduledResumption, 0)

	for _, resumption := range all {
		if resumption.Status == models.ResumptionStatusPending && !resumption.DueAt.After(before) {
			due = append(due, resumption)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].DueAt.Before(due[j].DueAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

func (r *ResumptionRepository) Claim(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	resumption, err := r.docs.load(id)
	if err != nil {
		return false, persistence.NewRecordError("Claim", "resumption", id, err)
	}

	if resumption == nil {
		return false, persistence.NewRecordError("Claim", "resumption", id, persistence.ErrResumptionNotFound)
	}

	if resumption.Status != models.ResumptionStatusPending {
		return false, nil
	}

	resumption.Status = models.ResumptionStatusFired
	resumption.FiredAt = &at

	err = r.docs.save(id, resumption)
	if err != nil {
		return false, persistence.NewRecordError("Claim", "resumption", id, err)
	}

	return true, nil
}
