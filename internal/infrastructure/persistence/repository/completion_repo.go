package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/verisite/fieldflow/internal/application/port"
	"github.com/verisite/fieldflow/internal/domain/entity"
	"github.com/verisite/fieldflow/internal/infrastructure/persistence/sqlite"
)

// CompletionRepository implements port.CompletionRepository
type CompletionRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewCompletionRepository creates a new completion repository
func NewCompletionRepository(db *sqlite.DB, logger *zap.Logger) port.CompletionRepository {
	return &CompletionRepository{
		db:     db,
		logger: logger,
	}
}

// InsertIfAbsent writes the completion unless one already exists for the
// (flow instance, movement) pair. The insert and the existence check are
// one statement, so concurrent duplicates resolve to exactly one row and
// the losing writer sees false.
func (r *CompletionRepository) InsertIfAbsent(ctx context.Context, completion *entity.MovementCompletion) (bool, error) {
	query := `
		INSERT INTO movement_completions (
			id, flow_instance_id, movement_id, user_id, status,
			notes, skip_reason, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (flow_instance_id, movement_id) DO NOTHING
	`

	result, err := r.db.GetExecutor(ctx).ExecContext(ctx, query,
		completion.ID,
		completion.FlowInstanceID,
		completion.MovementID,
		completion.UserID,
		string(completion.Status),
		completion.Notes,
		completion.SkipReason,
		completion.CompletedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert movement completion",
			zap.String("flow_instance_id", completion.FlowInstanceID),
			zap.String("movement_id", completion.MovementID),
			zap.Error(err))
		return false, fmt.Errorf("failed to insert movement completion: %w", sqlite.MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetByMovementID retrieves the completion of a movement, if any
func (r *CompletionRepository) GetByMovementID(ctx context.Context, instanceID, movementID string) (*entity.MovementCompletion, error) {
	query := `
		SELECT id, flow_instance_id, movement_id, user_id, status,
		       notes, skip_reason, completed_at
		FROM movement_completions
		WHERE flow_instance_id = ? AND movement_id = ?
	`

	completion, err := r.scanCompletion(
		r.db.GetExecutor(ctx).QueryRowContext(ctx, query, instanceID, movementID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get movement completion",
			zap.String("movement_id", movementID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get movement completion: %w", err)
	}

	return completion, nil
}

// GetByInstanceID retrieves an instance's completions in chronological order
func (r *CompletionRepository) GetByInstanceID(ctx context.Context, instanceID string) ([]*entity.MovementCompletion, error) {
	query := `
		SELECT id, flow_instance_id, movement_id, user_id, status,
		       notes, skip_reason, completed_at
		FROM movement_completions
		WHERE flow_instance_id = ?
		ORDER BY completed_at, id
	`

	rows, err := r.db.GetExecutor(ctx).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list movement completions",
			zap.String("flow_instance_id", instanceID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list movement completions: %w", err)
	}
	defer rows.Close()

	var completions []*entity.MovementCompletion
	for rows.Next() {
		completion, err := r.scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan movement completion: %w", err)
		}
		completions = append(completions, completion)
	}

	return completions, rows.Err()
}

// CountByStatus aggregates completion counts by status for an instance
func (r *CompletionRepository) CountByStatus(ctx context.Context, instanceID string) (map[entity.CompletionStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM movement_completions
		WHERE flow_instance_id = ?
		GROUP BY status
	`

	rows, err := r.db.GetExecutor(ctx).QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to count completions: %w", err)
	}
	defer rows.Close()

	counts := make(map[entity.CompletionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan completion count: %w", err)
		}
		counts[entity.CompletionStatus(status)] = count
	}

	return counts, rows.Err()
}

func (r *CompletionRepository) scanCompletion(row scanner) (*entity.MovementCompletion, error) {
	var completion entity.MovementCompletion
	var status string

	err := row.Scan(
		&completion.ID,
		&completion.FlowInstanceID,
		&completion.MovementID,
		&completion.UserID,
		&status,
		&completion.Notes,
		&completion.SkipReason,
		&completion.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	completion.Status = entity.CompletionStatus(status)
	return &completion, nil
}

// Verify interface compliance
var _ port.CompletionRepository = (*CompletionRepository)(nil)
