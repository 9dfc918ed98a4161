package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/renocrm/workflow-engine/pkg/persistence"
)

// ResumptionRepository handles rows scheduled by WAIT steps.
type ResumptionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewResumptionRepository creates a new resumption repository.
func NewResumptionRepository(db *sql.DB, logger *slog.Logger) *ResumptionRepository {
	return &ResumptionRepository{db: db, logger: logger}
}

func (r *ResumptionRepository) Create(ctx context.Context, resumption *models.ScheduledResumption) error {
	var err error

	if resumption.ID == "" {
		resumption.ID, err = newID()
		if err != nil {
			return err
		}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_resumptions (id, instance_id, step_id, execution_id, due_at, status, created_at, fired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		resumption.ID,
		resumption.InstanceID,
		resumption.StepID,
		resumption.ExecutionID,
		resumption.DueAt,
		resumption.Status,
		resumption.CreatedAt,
		resumption.FiredAt,
	)
	if err != nil {
		return persistence.NewRecordError("Create", "resumption", resumption.ID, err)
	}

	return nil
}

func (r *ResumptionRepository) Due(ctx context.Context, before time.Time, limit int) ([]*models.ScheduledResumption, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, instance_id, step_id, execution_id, due_at, status, created_at, fired_at
		FROM workflow_resumptions
		WHERE status = ANY($1) AND due_at <= $2
		ORDER BY due_at ASC
		LIMIT $3
	`, pq.Array([]string{string(models.ResumptionStatusPending)}), before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due resumptions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	resumptions := make([]*models.ScheduledResumption, 0)

	for rows.Next() {
		var (
			resumption models.ScheduledResumption
			firedAt    sql.NullTime
		)

		err = rows.Scan(&resumption.ID, &resumption.InstanceID, &resumption.StepID, &resumption.ExecutionID,
			&resumption.DueAt, &resumption.Status, &resumption.CreatedAt, &firedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resumption: %w", err)
		}

		if firedAt.Valid {
			resumption.FiredAt = &firedAt.Time
		}

		resumptions = append(resumptions, &resumption)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating resumptions: %w", err)
	}

	return resumptions, nil
}

// Claim flips PENDING to FIRED atomically so that concurrent pollers resume a wait once.
func (r *ResumptionRepository) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	var status string

	err := r.db.QueryRowContext(ctx, `
		UPDATE workflow_resumptions
		SET status = 'FIRED', fired_at = $2
		WHERE id = $1 AND status = 'PENDING'
		RETURNING status
	`, id, at).Scan(&status)
	if err == nil {
		return true, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return false, persistence.NewRecordError("Claim", "resumption", id, err)
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM workflow_resumptions WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, persistence.NewRecordError("Claim", "resumption", id, err)
	}

	if !exists {
		return false, persistence.NewRecordError("Claim", "resumption", id, persistence.ErrResumptionNotFound)
	}

	return false, nil
}
