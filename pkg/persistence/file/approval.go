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

// ApprovalRepository handles approval documents.
type ApprovalRepository struct {
	mu   *sync.RWMutex
	docs collection[models.WorkflowApproval]
}

func (r *ApprovalRepository) CreateBatch(_ context.Context, approvals []*models.WorkflowApproval) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, approval := range approvals {
		if approval.ID == "" {
			id, err := newID()
			if err != nil {
				return err
			}

			approval.ID = id
		}

		err := r.docs.save(approval.ID, approval)
		if err != nil {
			return persistence.NewRecordError("CreateBatch", "approval", approval.ID, err)
		}
	}

	return nil
}

func (r *ApprovalRepository) GetByID(_ context.Context, id string) (*models.WorkflowApproval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	approval, err := r.docs.load(id)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "approval", id, err)
	}

	if approval == nil {
		return nil, persistence.NewRecordError("GetByID", "approval", id, persistence.ErrApprovalNotFound)
	}

	return approval, nil
}

func (r *ApprovalRepository) Decide(_ context.Context, id, approverID string, status models.ApprovalStatus, comments string, at time.Time) (*models.WorkflowApproval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	approval, err := r.docs.load(id)
	if err != nil {
		return nil, persistence.NewRecordError("Decide", "approval", id, err)
	}

	if approval == nil || approval.ApproverID != approverID || approval.Status != models.ApprovalStatusPending {
		return nil, persistence.NewRecordError("Decide", "approval", id, persistence.ErrApprovalNotFound)
	}

	approval.Status = status
	approval.Comments = comments

	switch status {
	case models.ApprovalStatusApproved:
		approval.ApprovedAt = &at
	case models.ApprovalStatusRejected:
		approval.RejectedAt = &at
	}

	err = r.docs.save(id, approval)
	if err != nil {
		return nil, persistence.NewRecordError("Decide", "approval", id, err)
	}

	return approval, nil
}

func (r *ApprovalRepository) ListByExecution(_ context.Context, executionID string) ([]*models.WorkflowApproval, error) {
	return r.list(func(approval *models.WorkflowApproval) bool {
		return approval.ExecutionID == executionID
	})
}

func (r *ApprovalRepository) ListByInstance(_ context.Context, instanceID string) ([]*models.WorkflowApproval, error) {
	return r.list(func(approval *models.WorkflowApproval) bool {
		return approval.InstanceID == instanceID
	})
}

func (r *ApprovalRepository) list(match func(*models.WorkflowApproval) bool) ([]*models.WorkflowApproval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.docs.all()
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}

	approvals := make([]*models.WorkflowApproval, 0)

	for _, approval := range all {
		if match(approval) {
			approvals = append(approvals, approval)
		}
	}

	sort.SliceStable(approvals, func(i, j int) bool {
		return approvals[i].ID < approvals[j].ID
	})

	return approvals, nil
}
