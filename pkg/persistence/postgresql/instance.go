package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/renocrm/workflow-engine/pkg/persistence"
)

// InstanceRepository handles workflow instance rows.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

const instanceColumns = `
	id
  , workflow_id
  , entity_type
  , entity_id
  , status
  , priority
  , metadata
  , account_id
  , initiated_by_id
  , current_step_id
  , started_at
  , completed_at
  , error_message
`

func (r *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	var err error

	if instance.ID == "" {
		instance.ID, err = newID()
		if err != nil {
			return err
		}
	}

	metadataJSON, err := marshalJSON(instance.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_instances (id, workflow_id, entity_type, entity_id, status, priority,
			metadata, account_id, initiated_by_id, current_step_id, started_at, completed_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		instance.ID,
		instance.WorkflowID,
		instance.EntityType,
		instance.EntityID,
		instance.Status,
		instance.Priority,
		metadataJSON,
		instance.AccountID,
		instance.InitiatedByID,
		instance.CurrentStepID,
		instance.StartedAt,
		instance.CompletedAt,
		instance.ErrorMessage,
	)
	if err != nil {
		return persistence.NewRecordError("Create", "instance", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+instanceColumns+" FROM workflow_instances WHERE id = $1", id)

	instance, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("GetByID", "instance", id, persistence.ErrInstanceNotFound)
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	return instance, nil
}

func (r *InstanceRepository) List(ctx context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	var (
		clauses []string
		args    []any
	)

	add := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, column+" = $"+strconv.Itoa(len(args)))
	}

	if filter.AccountID != "" {
		add("account_id", filter.AccountID)
	}

	if filter.WorkflowID != "" {
		add("workflow_id", filter.WorkflowID)
	}

	if filter.EntityType != "" {
		add("entity_type", filter.EntityType)
	}

	if filter.EntityID != "" {
		add("entity_id", filter.EntityID)
	}

	if filter.Status != "" {
		add("status", filter.Status)
	}

	query := "SELECT " + instanceColumns + " FROM workflow_instances"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY started_at DESC, id DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}

func (r *InstanceRepository) SetCurrentStep(ctx context.Context, id, stepID string) error {
	result, err := r.db.ExecContext(ctx, "UPDATE workflow_instances SET current_step_id = $2 WHERE id = $1", id, stepID)
	if err != nil {
		return persistence.NewRecordError("SetCurrentStep", "instance", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewRecordError("SetCurrentStep", "instance", id, persistence.ErrInstanceNotFound)
	}

	return nil
}

// Finish only updates instances that are still RUNNING, which keeps terminal states final
// when two callers race.
func (r *InstanceRepository) Finish(ctx context.Context, id string, status models.InstanceStatus, errorMessage string, at time.Time) (bool, error) {
	var updatedID string

	err := r.db.QueryRowContext(ctx, `
		UPDATE workflow_instances
		SET status = $2, error_message = $3, completed_at = $4
		WHERE id = $1 AND status = 'RUNNING'
		RETURNING id
	`, id, status, errorMessage, at).Scan(&updatedID)
	if err == nil {
		return true, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return false, persistence.NewRecordError("Finish", "instance", id, err)
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, persistence.NewRecordError("Finish", "instance", id, err)
	}

	if !exists {
		return false, persistence.NewRecordError("Finish", "instance", id, persistence.ErrInstanceNotFound)
	}

	return false, nil
}

func scanInstance(row scanner) (*models.WorkflowInstance, error) {
	var (
		instance     models.WorkflowInstance
		metadataJSON []byte
		completedAt  sql.NullTime
	)

	err := row.Scan(
		&instance.ID,
		&instance.WorkflowID,
		&instance.EntityType,
		&instance.EntityID,
		&instance.Status,
		&instance.Priority,
		&metadataJSON,
		&instance.AccountID,
		&instance.InitiatedByID,
		&instance.CurrentStepID,
		&instance.StartedAt,
		&completedAt,
		&instance.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}

	instance.Metadata, err = unmarshalJSON(metadataJSON)
	if err != nil {
		return nil, err
	}

	return &instance, nil
}
