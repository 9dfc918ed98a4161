package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/renocrm/workflow-engine/pkg/persistence"
)

// StepExecutionRepository handles step execution rows.
type StepExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStepExecutionRepository creates a new step execution repository.
func NewStepExecutionRepository(db *sql.DB, logger *slog.Logger) *StepExecutionRepository {
	return &StepExecutionRepository{db: db, logger: logger}
}

func (r *StepExecutionRepository) Create(ctx context.Context, execution *models.WorkflowStepExecution) error {
	var err error

	if execution.ID == "" {
		execution.ID, err = newID()
		if err != nil {
			return err
		}
	}

	resultJSON, err := marshalJSON(execution.Result)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_step_executions (id, instance_id, step_id, status, started_at,
			completed_at, result, error_message, assigned_to_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		execution.ID,
		execution.InstanceID,
		execution.StepID,
		execution.Status,
		execution.StartedAt,
		execution.CompletedAt,
		resultJSON,
		execution.ErrorMessage,
		execution.AssignedToID,
	)
	if err != nil {
		return persistence.NewRecordError("Create", "execution", execution.ID, err)
	}

	return nil
}

func (r *StepExecutionRepository) Finish(ctx context.Context, id string, status models.ExecutionStatus, result map[string]any, errorMessage string, at time.Time) error {
	resultJSON, err := marshalJSON(result)
	if err != nil {
		return err
	}

	return r.exec(ctx, "Finish", id, `
		UPDATE workflow_step_executions
		SET status = $2, result = $3, error_message = $4, completed_at = $5
		WHERE id = $1
	`, id, status, resultJSON, errorMessage, at)
}

func (r *StepExecutionRepository) SetAssignee(ctx context.Context, id, userID string) error {
	return r.exec(ctx, "SetAssignee", id,
		"UPDATE workflow_step_executions SET assigned_to_id = $2 WHERE id = $1", id, userID)
}

func (r *StepExecutionRepository) exec(ctx context.Context, op, id, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return persistence.NewRecordError(op, "execution", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewRecordError(op, "execution", id, persistence.ErrExecutionNotFound)
	}

	return nil
}

func (r *StepExecutionRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowStepExecution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, instance_id, step_id, status, started_at, completed_at, result, error_message, assigned_to_id
		FROM workflow_step_executions
		WHERE instance_id = $1
		ORDER BY started_at ASC, id ASC
	`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.WorkflowStepExecution, 0)

	for rows.Next() {
		var (
			execution   models.WorkflowStepExecution
			completedAt sql.NullTime
			resultJSON  []byte
		)

		err = rows.Scan(&execution.ID, &execution.InstanceID, &execution.StepID, &execution.Status,
			&execution.StartedAt, &completedAt, &resultJSON, &execution.ErrorMessage, &execution.AssignedToID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step execution: %w", err)
		}

		if completedAt.Valid {
			execution.CompletedAt = &completedAt.Time
		}

		execution.Result, err = unmarshalJSON(resultJSON)
		if err != nil {
			return nil, err
		}

		executions = append(executions, &execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating step executions: %w", err)
	}

	return executions, nil
}
