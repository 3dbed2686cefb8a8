package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/verisite/fieldflow/internal/application/port"
	"github.com/verisite/fieldflow/internal/domain/entity"
	"github.com/verisite/fieldflow/internal/domain/flow"
	"github.com/verisite/fieldflow/internal/infrastructure/persistence/sqlite"
)

// DefinitionRepository implements port.FlowDefinitionRepository
type DefinitionRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *sqlite.DB, logger *zap.Logger) port.FlowDefinitionRepository {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new flow definition
func (r *DefinitionRepository) Create(ctx context.Context, def *entity.FlowDefinition) error {
	phases, err := json.Marshal(def.Phases)
	if err != nil {
		return fmt.Errorf("failed to encode phases: %w", err)
	}

	query := `
		INSERT INTO flow_definitions (
			id, name, peril_type, property_type, is_active, phases,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.GetExecutor(ctx).ExecContext(ctx, query,
		def.ID,
		def.Name,
		def.PerilType,
		def.PropertyType,
		def.IsActive,
		string(phases),
		def.CreatedAt,
		def.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create flow definition",
			zap.String("definition_id", def.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create flow definition: %w", sqlite.MapError(err))
	}

	return nil
}

// GetByID retrieves a flow definition by ID
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*entity.FlowDefinition, error) {
	query := `
		SELECT id, name, peril_type, property_type, is_active, phases,
		       created_at, updated_at
		FROM flow_definitions
		WHERE id = ?
	`

	def, err := r.scanDefinition(r.db.GetExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get flow definition",
			zap.String("definition_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get flow definition: %w", err)
	}

	return def, nil
}

// GetActiveByPerilType retrieves the most recently updated active
// definition for a peril type
func (r *DefinitionRepository) GetActiveByPerilType(ctx context.Context, perilType string) (*entity.FlowDefinition, error) {
	query := `
		SELECT id, name, peril_type, property_type, is_active, phases,
		       created_at, updated_at
		FROM flow_definitions
		WHERE peril_type = ? AND is_active = 1
		ORDER BY updated_at DESC
		LIMIT 1
	`

	def, err := r.scanDefinition(r.db.GetExecutor(ctx).QueryRowContext(ctx, query, perilType))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get active definition",
			zap.String("peril_type", perilType),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get active definition: %w", err)
	}

	return def, nil
}

// List retrieves definitions matching the filter
func (r *DefinitionRepository) List(ctx context.Context, filter port.DefinitionFilter) ([]*entity.FlowDefinition, error) {
	query := `
		SELECT id, name, peril_type, property_type, is_active, phases,
		       created_at, updated_at
		FROM flow_definitions
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.PerilType != "" {
		query += " AND peril_type = ?"
		args = append(args, filter.PerilType)
	}
	if filter.IsActive != nil {
		query += " AND is_active = ?"
		args = append(args, *filter.IsActive)
	}

	query += " ORDER BY updated_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.GetExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list flow definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list flow definitions: %w", err)
	}
	defer rows.Close()

	var defs []*entity.FlowDefinition
	for rows.Next() {
		def, err := r.scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow definition: %w", err)
		}
		defs = append(defs, def)
	}

	return defs, rows.Err()
}

// Update rewrites a flow definition
func (r *DefinitionRepository) Update(ctx context.Context, def *entity.FlowDefinition) error {
	phases, err := json.Marshal(def.Phases)
	if err != nil {
		return fmt.Errorf("failed to encode phases: %w", err)
	}

	query := `
		UPDATE flow_definitions
		SET name = ?, peril_type = ?, property_type = ?, is_active = ?,
		    phases = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.GetExecutor(ctx).ExecContext(ctx, query,
		def.Name,
		def.PerilType,
		def.PropertyType,
		def.IsActive,
		string(phases),
		def.UpdatedAt,
		def.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update flow definition",
			zap.String("definition_id", def.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update flow definition: %w", sqlite.MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: flow definition %s", flow.ErrNotFound, def.ID)
	}

	return nil
}

// Delete removes a flow definition
func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.GetExecutor(ctx).ExecContext(ctx,
		"DELETE FROM flow_definitions WHERE id = ?", id)
	if err != nil {
		r.logger.Error("Failed to delete flow definition",
			zap.String("definition_id", id),
			zap.Error(err))
		return fmt.Errorf("failed to delete flow definition: %w", sqlite.MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: flow definition %s", flow.ErrNotFound, id)
	}

	return nil
}

// scanner covers *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *DefinitionRepository) scanDefinition(row scanner) (*entity.FlowDefinition, error) {
	var def entity.FlowDefinition
	var phases string

	err := row.Scan(
		&def.ID,
		&def.Name,
		&def.PerilType,
		&def.PropertyType,
		&def.IsActive,
		&phases,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(phases), &def.Phases); err != nil {
		return nil, fmt.Errorf("failed to decode phases: %w", err)
	}

	return &def, nil
}

// Verify interface compliance
var _ port.FlowDefinitionRepository = (*DefinitionRepository)(nil)
