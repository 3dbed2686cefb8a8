package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/verisite/fieldflow/internal/application/port"
	"github.com/verisite/fieldflow/internal/domain/entity"
	"github.com/verisite/fieldflow/internal/infrastructure/persistence/sqlite"
)

// EvidenceRepository implements port.EvidenceRepository
type EvidenceRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewEvidenceRepository creates a new evidence repository
func NewEvidenceRepository(db *sqlite.DB, logger *zap.Logger) port.EvidenceRepository {
	return &EvidenceRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new evidence record
func (r *EvidenceRepository) Create(ctx context.Context, evidence *entity.Evidence) error {
	data, err := json.Marshal(evidence.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence data: %w", err)
	}

	query := `
		INSERT INTO evidence (
			id, flow_instance_id, movement_id, completion_id, type,
			reference_id, data, user_id, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.GetExecutor(ctx).ExecContext(ctx, query,
		evidence.ID,
		evidence.FlowInstanceID,
		evidence.MovementID,
		evidence.CompletionID,
		string(evidence.Type),
		evidence.ReferenceID,
		string(data),
		evidence.UserID,
		evidence.Notes,
		evidence.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create evidence",
			zap.String("movement_id", evidence.MovementID),
			zap.String("type", evidence.Type.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create evidence: %w", sqlite.MapError(err))
	}

	return nil
}

// GetByMovementID retrieves all evidence attached to a movement
func (r *EvidenceRepository) GetByMovementID(ctx context.Context, instanceID, movementID string) ([]*entity.Evidence, error) {
	query := `
		SELECT id, flow_instance_id, movement_id, completion_id, type,
		       reference_id, data, user_id, notes, created_at
		FROM evidence
		WHERE flow_instance_id = ? AND movement_id = ?
		ORDER BY created_at, id
	`

	return r.queryEvidence(ctx, query, instanceID, movementID)
}

// GetByInstanceID retrieves all evidence attached across an instance
func (r *EvidenceRepository) GetByInstanceID(ctx context.Context, instanceID string) ([]*entity.Evidence, error) {
	query := `
		SELECT id, flow_instance_id, movement_id, completion_id, type,
		       reference_id, data, user_id, notes, created_at
		FROM evidence
		WHERE flow_instance_id = ?
		ORDER BY created_at, id
	`

	return r.queryEvidence(ctx, query, instanceID)
}

func (r *EvidenceRepository) queryEvidence(ctx context.Context, query string, args ...interface{}) ([]*entity.Evidence, error) {
	rows, err := r.db.GetExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query evidence", zap.Error(err))
		return nil, fmt.Errorf("failed to query evidence: %w", err)
	}
	defer rows.Close()

	var records []*entity.Evidence
	for rows.Next() {
		evidence, err := r.scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		records = append(records, evidence)
	}

	return records, rows.Err()
}

func (r *EvidenceRepository) scanEvidence(row scanner) (*entity.Evidence, error) {
	var evidence entity.Evidence
	var evidenceType string
	var data string

	err := row.Scan(
		&evidence.ID,
		&evidence.FlowInstanceID,
		&evidence.MovementID,
		&evidence.CompletionID,
		&evidenceType,
		&evidence.ReferenceID,
		&data,
		&evidence.UserID,
		&evidence.Notes,
		&evidence.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	evidence.Type = entity.EvidenceType(evidenceType)
	if err := json.Unmarshal([]byte(data), &evidence.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evidence data: %w", err)
	}

	return &evidence, nil
}

// Verify interface compliance
var _ port.EvidenceRepository = (*EvidenceRepository)(nil)
