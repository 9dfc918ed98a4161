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

// DefinitionRepository handles definition, step and approver rows.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(db *sql.DB, logger *slog.Logger) *DefinitionRepository {
	return &DefinitionRepository{db: db, logger: logger}
}

const definitionColumns = `
	id
  , account_id
  , name
  , description
  , trigger_type
  , trigger_conditions
  , is_active
  , created_by_id
  , created_at
  , updated_at
`

// Create inserts the definition, its steps and approvers in one transaction.
func (r *DefinitionRepository) Create(ctx context.Context, definition *models.WorkflowDefinition) (err error) {
	if definition.ID == "" {
		definition.ID, err = newID()
		if err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	conditionsJSON, err := marshalJSON(definition.TriggerConditions)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_definitions (id, account_id, name, description, trigger_type,
			trigger_conditions, is_active, created_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		definition.ID,
		definition.AccountID,
		definition.Name,
		definition.Description,
		definition.TriggerType,
		conditionsJSON,
		definition.IsActive,
		definition.CreatedByID,
		definition.CreatedAt,
		definition.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRecordError("Create", "definition", definition.ID, err)
	}

	for _, step := range definition.Steps {
		err = r.insertStep(ctx, tx, definition.ID, step)
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit definition %s: %w", definition.ID, err)
	}

	return nil
}

func (r *DefinitionRepository) insertStep(ctx context.Context, tx *sql.Tx, workflowID string, step *models.WorkflowStep) error {
	var err error

	if step.ID == "" {
		step.ID, err = newID()
		if err != nil {
			return err
		}
	}

	step.WorkflowID = workflowID

	configurationJSON, err := marshalJSON(step.Configuration)
	if err != nil {
		return err
	}

	conditionsJSON, err := marshalJSON(step.Conditions)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_steps (workflow_id, id, name, step_type, position, configuration,
			conditions, is_required, timeout_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		workflowID,
		step.ID,
		step.Name,
		step.StepType,
		step.Position,
		configurationJSON,
		conditionsJSON,
		step.IsRequired,
		step.TimeoutMinutes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert step %s: %w", step.ID, err)
	}

	for _, approver := range step.Approvers {
		if approver.ID == "" {
			approver.ID, err = newID()
			if err != nil {
				return err
			}
		}

		approver.StepID = step.ID

		_, err = tx.ExecContext(ctx, `
			INSERT INTO step_approvers (id, workflow_id, step_id, user_id, approver_type, is_required, approver_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			approver.ID,
			workflowID,
			step.ID,
			approver.UserID,
			approver.ApproverType,
			approver.IsRequired,
			approver.Order,
		)
		if err != nil {
			return fmt.Errorf("failed to insert approver %s: %w", approver.ID, err)
		}
	}

	return nil
}

func (r *DefinitionRepository) GetByID(ctx context.Context, id, accountID string) (*models.WorkflowDefinition, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+definitionColumns+" FROM workflow_definitions WHERE id = $1 AND account_id = $2",
		id, accountID,
	)

	definition, err := scanDefinition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("GetByID", "definition", id, persistence.ErrDefinitionNotFound)
		}

		return nil, fmt.Errorf("failed to scan definition: %w", err)
	}

	err = r.loadSteps(ctx, definition)
	if err != nil {
		return nil, err
	}

	return definition, nil
}

func (r *DefinitionRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.WorkflowDefinition, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+definitionColumns+" FROM workflow_definitions WHERE account_id = $1 ORDER BY created_at DESC",
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	definitions := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		definition, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}

		definitions = append(definitions, definition)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating definitions: %w", err)
	}

	for _, definition := range definitions {
		err = r.loadSteps(ctx, definition)
		if err != nil {
			return nil, err
		}
	}

	return definitions, nil
}

func (r *DefinitionRepository) SetActive(ctx context.Context, id, accountID string, active bool, at time.Time) (*models.WorkflowDefinition, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflow_definitions SET is_active = $3, updated_at = $4 WHERE id = $1 AND account_id = $2",
		id, accountID, active, at,
	)
	if err != nil {
		return nil, persistence.NewRecordError("SetActive", "definition", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return nil, persistence.NewRecordError("SetActive", "definition", id, persistence.ErrDefinitionNotFound)
	}

	return r.GetByID(ctx, id, accountID)
}

func (r *DefinitionRepository) loadSteps(ctx context.Context, definition *models.WorkflowDefinition) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, step_type, position, configuration, conditions, is_required, timeout_minutes
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY position ASC
	`, definition.ID)
	if err != nil {
		return fmt.Errorf("failed to query steps: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	definition.Steps = make([]*models.WorkflowStep, 0)
	byID := make(map[string]*models.WorkflowStep)

	for rows.Next() {
		var (
			step              models.WorkflowStep
			configurationJSON []byte
			conditionsJSON    []byte
			timeout           sql.NullInt64
		)

		err = rows.Scan(&step.ID, &step.Name, &step.StepType, &step.Position,
			&configurationJSON, &conditionsJSON, &step.IsRequired, &timeout)
		if err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		step.WorkflowID = definition.ID

		if timeout.Valid {
			minutes := int(timeout.Int64)
			step.TimeoutMinutes = &minutes
		}

		step.Configuration, err = unmarshalJSON(configurationJSON)
		if err != nil {
			return err
		}

		step.Conditions, err = unmarshalJSON(conditionsJSON)
		if err != nil {
			return err
		}

		definition.Steps = append(definition.Steps, &step)
		byID[step.ID] = &step
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating steps: %w", err)
	}

	return r.loadApprovers(ctx, definition.ID, byID)
}

func (r *DefinitionRepository) loadApprovers(ctx context.Context, workflowID string, steps map[string]*models.WorkflowStep) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, step_id, user_id, approver_type, is_required, approver_order
		FROM step_approvers
		WHERE workflow_id = $1
		ORDER BY approver_order ASC, id ASC
	`, workflowID)
	if err != nil {
		return fmt.Errorf("failed to query approvers: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	for rows.Next() {
		var approver models.StepApprover

		err = rows.Scan(&approver.ID, &approver.StepID, &approver.UserID,
			&approver.ApproverType, &approver.IsRequired, &approver.Order)
		if err != nil {
			return fmt.Errorf("failed to scan approver: %w", err)
		}

		if step, ok := steps[approver.StepID]; ok {
			step.Approvers = append(step.Approvers, &approver)
		}
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating approvers: %w", err)
	}

	return nil
}

func scanDefinition(row scanner) (*models.WorkflowDefinition, error) {
	var (
		definition     models.WorkflowDefinition
		conditionsJSON []byte
	)

	err := row.Scan(
		&definition.ID,
		&definition.AccountID,
		&definition.Name,
		&definition.Description,
		&definition.TriggerType,
		&conditionsJSON,
		&definition.IsActive,
		&definition.CreatedByID,
		&definition.CreatedAt,
		&definition.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	definition.TriggerConditions, err = unmarshalJSON(conditionsJSON)
	if err != nil {
		return nil, err
	}

	return &definition, nil
}
