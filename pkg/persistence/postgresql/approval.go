package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/renocrm/workflow-engine/pkg/persistence"
)

// ApprovalRepository handles approval rows.
type ApprovalRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewApprovalRepository creates a new approval repository.
func NewApprovalRepository(db *sql.DB, logger *slog.Logger) *ApprovalRepository {
	return &ApprovalRepository{db: db, logger: logger}
}

const approvalColumns = `
	id
  , instance_id
  , step_id
  , execution_id
  , approver_id
  , step_approver_id
  , is_required
  , status
  , comments
  , created_at
  , approved_at
  , rejected_at
`

// CreateBatch inserts all approvals of one step execution in a single transaction.
func (r *ApprovalRepository) CreateBatch(ctx context.Context, approvals []*models.WorkflowApproval) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, approval := range approvals {
		if approval.ID == "" {
			approval.ID, err = newID()
			if err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_approvals (id, instance_id, step_id, execution_id, approver_id,
				step_approver_id, is_required, status, comments, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			approval.ID,
			approval.InstanceID,
			approval.StepID,
			approval.ExecutionID,
			approval.ApproverID,
			approval.StepApproverID,
			approval.IsRequired,
			approval.Status,
			approval.Comments,
			approval.CreatedAt,
		)
		if err != nil {
			return persistence.NewRecordError("CreateBatch", "approval", approval.ID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit approvals: %w", err)
	}

	return nil
}

func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.WorkflowApproval, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+approvalColumns+" FROM workflow_approvals WHERE id = $1", id)

	approval, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("GetByID", "approval", id, persistence.ErrApprovalNotFound)
		}

		return nil, fmt.Errorf("failed to scan approval: %w", err)
	}

	return approval, nil
}

// Decide transitions a PENDING approval owned by approverID in a single conditional update.
func (r *ApprovalRepository) Decide(ctx context.Context, id, approverID string, status models.ApprovalStatus, comments string, at time.Time) (*models.WorkflowApproval, error) {
	var approvedAt, rejectedAt *time.Time

	if status == models.ApprovalStatusApproved {
		approvedAt = &at
	} else {
		rejectedAt = &at
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE workflow_approvals
		SET status = $3, comments = $4, approved_at = $5, rejected_at = $6
		WHERE id = $1 AND approver_id = $2 AND status = 'PENDING'
		RETURNING `+approvalColumns,
		id, approverID, status, comments, approvedAt, rejectedAt,
	)

	approval, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("Decide", "approval", id, persistence.ErrApprovalNotFound)
		}

		return nil, persistence.NewRecordError("Decide", "approval", id, err)
	}

	return approval, nil
}

func (r *ApprovalRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.WorkflowApproval, error) {
	return r.list(ctx, "execution_id", executionID)
}

func (r *ApprovalRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowApproval, error) {
	return r.list(ctx, "instance_id", instanceID)
}

func (r *ApprovalRepository) list(ctx context.Context, column, value string) ([]*models.WorkflowApproval, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+approvalColumns+" FROM workflow_approvals WHERE "+column+" = $1 ORDER BY created_at ASC, id ASC",
		value,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	approvals := make([]*models.WorkflowApproval, 0)

	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}

		approvals = append(approvals, approval)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating approvals: %w", err)
	}

	return approvals, nil
}

func scanApproval(row scanner) (*models.WorkflowApproval, error) {
	var (
		approval   models.WorkflowApproval
		approvedAt sql.NullTime
		rejectedAt sql.NullTime
	)

	err := row.Scan(
		&approval.ID,
		&approval.InstanceID,
		&approval.StepID,
		&approval.ExecutionID,
		&approval.ApproverID,
		&approval.StepApproverID,
		&approval.IsRequired,
		&approval.Status,
		&approval.Comments,
		&approval.CreatedAt,
		&approvedAt,
		&rejectedAt,
	)
	if err != nil {
		return nil, err
	}

	if approvedAt.Valid {
		approval.ApprovedAt = &approvedAt.Time
	}

	if rejectedAt.Valid {
		approval.RejectedAt = &rejectedAt.Time
	}

	return &approval, nil
}
