package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/verisite/fieldflow/internal/application/port"
	"github.com/verisite/fieldflow/internal/domain/entity"
	"github.com/verisite/fieldflow/internal/infrastructure/persistence/sqlite"
)

// InstanceRepository implements port.FlowInstanceRepository
type InstanceRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sqlite.DB, logger *zap.Logger) port.FlowInstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new flow instance. The partial unique index on
// claim_id for active rows turns a second concurrent start into a
// conflict here rather than a silent duplicate.
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.FlowInstance) error {
	query := `
		INSERT INTO flow_instances (
			id, claim_id, flow_definition_id, status,
			current_phase_id, current_phase_index, started_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.GetExecutor(ctx).ExecContext(ctx, query,
		instance.ID,
		instance.ClaimID,
		instance.FlowDefinitionID,
		string(instance.Status),
		instance.CurrentPhaseID,
		instance.CurrentPhaseIndex,
		instance.StartedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create flow instance",
			zap.String("claim_id", instance.ClaimID),
			zap.Error(err))
		return fmt.Errorf("failed to create flow instance: %w", sqlite.MapError(err))
	}

	return nil
}

// GetByID retrieves a flow instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*entity.FlowInstance, error) {
	query := `
		SELECT id, claim_id, flow_definition_id, status,
		       current_phase_id, current_phase_index,
		       started_at, updated_at, completed_at, cancelled_at
		FROM flow_instances
		WHERE id = ?
	`

	instance, err := r.scanInstance(r.db.GetExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get flow instance",
			zap.String("flow_instance_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get flow instance: %w", err)
	}

	return instance, nil
}

// GetActiveByClaimID retrieves the active instance for a claim, if any
func (r *InstanceRepository) GetActiveByClaimID(ctx context.Context, claimID string) (*entity.FlowInstance, error) {
	query := `
		SELECT id, claim_id, flow_definition_id, status,
		       current_phase_id, current_phase_index,
		       started_at, updated_at, completed_at, cancelled_at
		FROM flow_instances
		WHERE claim_id = ? AND status = 'active'
	`

	instance, err := r.scanInstance(r.db.GetExecutor(ctx).QueryRowContext(ctx, query, claimID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get active instance",
			zap.String("claim_id", claimID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get active instance: %w", err)
	}

	return instance, nil
}

// CountActiveByDefinitionID counts active instances referencing a definition
func (r *InstanceRepository) CountActiveByDefinitionID(ctx context.Context, definitionID string) (int, error) {
	var count int
	err := r.db.GetExecutor(ctx).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM flow_instances WHERE flow_definition_id = ? AND status = 'active'",
		definitionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active instances: %w", err)
	}
	return count, nil
}

// AdvancePhase moves the phase pointer forward, conditioned on the
// instance still being active and still at fromIndex
func (r *InstanceRepository) AdvancePhase(ctx context.Context, id string, fromIndex int, toPhaseID string, at time.Time) (bool, error) {
	query := `
		UPDATE flow_instances
		SET current_phase_index = ?, current_phase_id = ?, updated_at = ?
		WHERE id = ? AND current_phase_index = ? AND status = 'active'
	`

	result, err := r.db.GetExecutor(ctx).ExecContext(ctx, query,
		fromIndex+1, toPhaseID, at, id, fromIndex)
	if err != nil {
		r.logger.Error("Failed to advance phase",
			zap.String("flow_instance_id", id),
			zap.Error(err))
		return false, fmt.Errorf("failed to advance phase: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// Complete marks the instance completed, conditioned on it being active
func (r *InstanceRepository) Complete(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.terminate(ctx, id, "completed", "completed_at", at)
}

// Cancel marks the instance cancelled, conditioned on it being active
func (r *InstanceRepository) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.terminate(ctx, id, "cancelled", "cancelled_at", at)
}

func (r *InstanceRepository) terminate(ctx context.Context, id, status, timeColumn string, at time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE flow_instances
		SET status = ?, %s = ?, updated_at = ?
		WHERE id = ? AND status = 'active'
	`, timeColumn)

	result, err := r.db.GetExecutor(ctx).ExecContext(ctx, query, status, at, at, id)
	if err != nil {
		r.logger.Error("Failed to terminate flow instance",
			zap.String("flow_instance_id", id),
			zap.String("status", status),
			zap.Error(err))
		return false, fmt.Errorf("failed to set instance %s: %w", status, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *InstanceRepository) scanInstance(row scanner) (*entity.FlowInstance, error) {
	var instance entity.FlowInstance
	var status string
	var completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&instance.ID,
		&instance.ClaimID,
		&instance.FlowDefinitionID,
		&status,
		&instance.CurrentPhaseID,
		&instance.CurrentPhaseIndex,
		&instance.StartedAt,
		&instance.UpdatedAt,
		&completedAt,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	instance.Status = entity.InstanceStatus(status)
	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}
	if cancelledAt.Valid {
		instance.CancelledAt = &cancelledAt.Time
	}

	return &instance, nil
}

// Verify interface compliance
var _ port.FlowInstanceRepository = (*InstanceRepository)(nil)
