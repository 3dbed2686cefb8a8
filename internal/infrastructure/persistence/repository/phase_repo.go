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

// PhaseRepository implements port.InstancePhaseRepository
type PhaseRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewPhaseRepository creates a new phase repository
func NewPhaseRepository(db *sqlite.DB, logger *zap.Logger) port.InstancePhaseRepository {
	return &PhaseRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch persists the phase snapshot rows for an instance
func (r *PhaseRepository) CreateBatch(ctx context.Context, phases []*entity.InstancePhase) error {
	query := `
		INSERT INTO instance_phases (
			id, flow_instance_id, phase_index, name,
			gate_id, gate_pass_through, status, sealed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	executor := r.db.GetExecutor(ctx)
	for _, phase := range phases {
		_, err := executor.ExecContext(ctx, query,
			phase.ID,
			phase.FlowInstanceID,
			phase.PhaseIndex,
			phase.Name,
			phase.GateID,
			phase.GatePassThrough,
			string(phase.Status),
			phase.SealedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create instance phase",
				zap.String("flow_instance_id", phase.FlowInstanceID),
				zap.Int("phase_index", phase.PhaseIndex),
				zap.Error(err))
			return fmt.Errorf("failed to create instance phase: %w", sqlite.MapError(err))
		}
	}

	return nil
}

// GetByID retrieves an instance phase by ID
func (r *PhaseRepository) GetByID(ctx context.Context, id string) (*entity.InstancePhase, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByGateID retrieves the phase owning a gate
func (r *PhaseRepository) GetByGateID(ctx context.Context, gateID string) (*entity.InstancePhase, error) {
	return r.getOne(ctx, "gate_id = ?", gateID)
}

// GetByInstanceAndIndex retrieves one phase of an instance by position
func (r *PhaseRepository) GetByInstanceAndIndex(ctx context.Context, instanceID string, index int) (*entity.InstancePhase, error) {
	query := `
		SELECT id, flow_instance_id, phase_index, name,
		       gate_id, gate_pass_through, status, sealed_at
		FROM instance_phases
		WHERE flow_instance_id = ? AND phase_index = ?
	`

	phase, err := r.scanPhase(r.db.GetExecutor(ctx).QueryRowContext(ctx, query, instanceID, index))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance phase",
			zap.String("flow_instance_id", instanceID),
			zap.Int("phase_index", index),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get instance phase: %w", err)
	}

	return phase, nil
}

// GetByInstanceID retrieves all phases of an instance in order
func (r *PhaseRepository) GetByInstanceID(ctx context.Context, instanceID string) ([]*entity.InstancePhase, error) {
	query := `
		SELECT id, flow_instance_id, phase_index, name,
		       gate_id, gate_pass_through, status, sealed_at
		FROM instance_phases
		WHERE flow_instance_id = ?
		ORDER BY phase_index
	`

	rows, err := r.db.GetExecutor(ctx).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list instance phases",
			zap.String("flow_instance_id", instanceID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list instance phases: %w", err)
	}
	defer rows.Close()

	var phases []*entity.InstancePhase
	for rows.Next() {
		phase, err := r.scanPhase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance phase: %w", err)
		}
		phases = append(phases, phase)
	}

	return phases, rows.Err()
}

// Seal marks a phase passed, conditioned on it still being in progress.
// A sealed phase accepts no further movements.
func (r *PhaseRepository) Seal(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE instance_phases
		SET status = 'passed', sealed_at = ?
		WHERE id = ? AND status = 'in_progress'
	`

	result, err := r.db.GetExecutor(ctx).ExecContext(ctx, query, at, id)
	if err != nil {
		r.logger.Error("Failed to seal instance phase",
			zap.String("phase_id", id),
			zap.Error(err))
		return false, fmt.Errorf("failed to seal instance phase: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *PhaseRepository) getOne(ctx context.Context, where string, arg interface{}) (*entity.InstancePhase, error) {
	query := fmt.Sprintf(`
		SELECT id, flow_instance_id, phase_index, name,
		       gate_id, gate_pass_through, status, sealed_at
		FROM instance_phases
		WHERE %s
	`, where)

	phase, err := r.scanPhase(r.db.GetExecutor(ctx).QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance phase", zap.Error(err))
		return nil, fmt.Errorf("failed to get instance phase: %w", err)
	}

	return phase, nil
}

func (r *PhaseRepository) scanPhase(row scanner) (*entity.InstancePhase, error) {
	var phase entity.InstancePhase
	var status string
	var sealedAt sql.NullTime

	err := row.Scan(
		&phase.ID,
		&phase.FlowInstanceID,
		&phase.PhaseIndex,
		&phase.Name,
		&phase.GateID,
		&phase.GatePassThrough,
		&status,
		&sealedAt,
	)
	if err != nil {
		return nil, err
	}

	phase.Status = entity.PhaseStatus(status)
	if sealedAt.Valid {
		phase.SealedAt = &sealedAt.Time
	}

	return &phase, nil
}

// Verify interface compliance
var _ port.InstancePhaseRepository = (*PhaseRepository)(nil)
