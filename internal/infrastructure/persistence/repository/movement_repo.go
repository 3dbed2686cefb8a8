package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/verisite/fieldflow/internal/application/port"
	"github.com/verisite/fieldflow/internal/domain/entity"
	"github.com/verisite/fieldflow/internal/infrastructure/persistence/sqlite"
)

// MovementRepository implements port.InstanceMovementRepository
type MovementRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *sqlite.DB, logger *zap.Logger) port.InstanceMovementRepository {
	return &MovementRepository{
		db:     db,
		logger: logger,
	}
}

const movementColumns = `
	id, flow_instance_id, phase_id, name, description, is_required,
	origin, room_name, sequence, evidence_requirements, created_at
`

// Create persists a single instance movement
func (r *MovementRepository) Create(ctx context.Context, movement *entity.InstanceMovement) error {
	return r.insert(ctx, r.db.GetExecutor(ctx), movement)
}

// CreateBatch persists the movement snapshot rows for an instance
func (r *MovementRepository) CreateBatch(ctx context.Context, movements []*entity.InstanceMovement) error {
	executor := r.db.GetExecutor(ctx)
	for _, movement := range movements {
		if err := r.insert(ctx, executor, movement); err != nil {
			return err
		}
	}
	return nil
}

func (r *MovementRepository) insert(ctx context.Context, executor sqlite.Executor, movement *entity.InstanceMovement) error {
	requirements, err := json.Marshal(movement.EvidenceRequirements)
	if err != nil {
		return fmt.Errorf("failed to encode evidence requirements: %w", err)
	}

	query := `
		INSERT INTO instance_movements (
			id, flow_instance_id, phase_id, name, description, is_required,
			origin, room_name, sequence, evidence_requirements, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = executor.ExecContext(ctx, query,
		movement.ID,
		movement.FlowInstanceID,
		movement.PhaseID,
		movement.Name,
		movement.Description,
		movement.IsRequired,
		string(movement.Origin),
		movement.RoomName,
		movement.Sequence,
		string(requirements),
		movement.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create instance movement",
			zap.String("phase_id", movement.PhaseID),
			zap.String("name", movement.Name),
			zap.Error(err))
		return fmt.Errorf("failed to create instance movement: %w", sqlite.MapError(err))
	}

	return nil
}

// GetByID retrieves an instance movement by ID
func (r *MovementRepository) GetByID(ctx context.Context, id string) (*entity.InstanceMovement, error) {
	query := "SELECT " + movementColumns + " FROM instance_movements WHERE id = ?"

	movement, err := r.scanMovement(r.db.GetExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance movement",
			zap.String("movement_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get instance movement: %w", err)
	}

	return movement, nil
}

// GetByPhaseID retrieves a phase's movements in scan order
func (r *MovementRepository) GetByPhaseID(ctx context.Context, phaseID string) ([]*entity.InstanceMovement, error) {
	query := "SELECT " + movementColumns + `
		FROM instance_movements
		WHERE phase_id = ?
		ORDER BY sequence, created_at, id
	`

	return r.queryMovements(ctx, query, phaseID)
}

// GetByInstanceID retrieves all movements of an instance ordered by
// phase position, then scan order within the phase
func (r *MovementRepository) GetByInstanceID(ctx context.Context, instanceID string) ([]*entity.InstanceMovement, error) {
	query := `
		SELECT m.id, m.flow_instance_id, m.phase_id, m.name, m.description,
		       m.is_required, m.origin, m.room_name, m.sequence,
		       m.evidence_requirements, m.created_at
		FROM instance_movements m
		JOIN instance_phases p ON p.id = m.phase_id
		WHERE m.flow_instance_id = ?
		ORDER BY p.phase_index, m.sequence, m.created_at, m.id
	`

	return r.queryMovements(ctx, query, instanceID)
}

// CountByInstanceID counts the currently known movements of an instance
func (r *MovementRepository) CountByInstanceID(ctx context.Context, instanceID string) (int, error) {
	var count int
	err := r.db.GetExecutor(ctx).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM instance_movements WHERE flow_instance_id = ?",
		instanceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count instance movements: %w", err)
	}
	return count, nil
}

// MaxSequence returns the highest sequence in a phase, 0 when empty
func (r *MovementRepository) MaxSequence(ctx context.Context, phaseID string) (int, error) {
	var max int
	err := r.db.GetExecutor(ctx).QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sequence), 0) FROM instance_movements WHERE phase_id = ?",
		phaseID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to get max sequence: %w", err)
	}
	return max, nil
}

func (r *MovementRepository) queryMovements(ctx context.Context, query string, arg interface{}) ([]*entity.InstanceMovement, error) {
	rows, err := r.db.GetExecutor(ctx).QueryContext(ctx, query, arg)
	if err != nil {
		r.logger.Error("Failed to list instance movements", zap.Error(err))
		return nil, fmt.Errorf("failed to list instance movements: %w", err)
	}
	defer rows.Close()

	var movements []*entity.InstanceMovement
	for rows.Next() {
		movement, err := r.scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance movement: %w", err)
		}
		movements = append(movements, movement)
	}

	return movements, rows.Err()
}

func (r *MovementRepository) scanMovement(row scanner) (*entity.InstanceMovement, error) {
	var movement entity.InstanceMovement
	var origin, requirements string

	err := row.Scan(
		&movement.ID,
		&movement.FlowInstanceID,
		&movement.PhaseID,
		&movement.Name,
		&movement.Description,
		&movement.IsRequired,
		&origin,
		&movement.RoomName,
		&movement.Sequence,
		&requirements,
		&movement.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	movement.Origin = entity.MovementOrigin(origin)
	if err := json.Unmarshal([]byte(requirements), &movement.EvidenceRequirements); err != nil {
		return nil, fmt.Errorf("failed to decode evidence requirements: %w", err)
	}

	return &movement, nil
}

// Verify interface compliance
var _ port.InstanceMovementRepository = (*MovementRepository)(nil)
