package port

import (
	"context"
	"time"

	"github.com/verisite/fieldflow/internal/domain/entity"
)

// DefinitionFilter narrows definition listings
type DefinitionFilter struct {
	PerilType string
	IsActive  *bool
	Limit     int
	Offset    int
}

// FlowDefinitionRepository defines persistence operations for FlowDefinition
type FlowDefinitionRepository interface {
	Create(ctx context.Context, def *entity.FlowDefinition) error
	GetByID(ctx context.Context, id string) (*entity.FlowDefinition, error)
	// GetActiveByPerilType returns the most recently updated active
	// definition for the peril, or nil when none exists.
	GetActiveByPerilType(ctx context.Context, perilType string) (*entity.FlowDefinition, error)
	List(ctx context.Context, filter DefinitionFilter) ([]*entity.FlowDefinition, error)
	Update(ctx context.Context, def *entity.FlowDefinition) error
	Delete(ctx context.Context, id string) error
}

// FlowInstanceRepository defines persistence operations for FlowInstance.
// The conditional mutations return false when the precondition no longer
// held at write time, closing read-then-write races.
type FlowInstanceRepository interface {
	Create(ctx context.Context, instance *entity.FlowInstance) error
	GetByID(ctx context.Context, id string) (*entity.FlowInstance, error)
	GetActiveByClaimID(ctx context.Context, claimID string) (*entity.FlowInstance, error)
	CountActiveByDefinitionID(ctx context.Context, definitionID string) (int, error)
	// AdvancePhase moves the phase pointer from fromIndex to the next
	// phase, only while the instance is active and still at fromIndex.
	AdvancePhase(ctx context.Context, id string, fromIndex int, toPhaseID string, at time.Time) (bool, error)
	// Complete marks the instance completed, only while active.
	Complete(ctx context.Context, id string, at time.Time) (bool, error)
	// Cancel marks the instance cancelled, only while active.
	Cancel(ctx context.Context, id string, at time.Time) (bool, error)
}

// InstancePhaseRepository defines persistence operations for the
// per-instance phase snapshot
type InstancePhaseRepository interface {
	CreateBatch(ctx context.Context, phases []*entity.InstancePhase) error
	GetByID(ctx context.Context, id string) (*entity.InstancePhase, error)
	GetByGateID(ctx context.Context, gateID string) (*entity.InstancePhase, error)
	GetByInstanceID(ctx context.Context, instanceID string) ([]*entity.InstancePhase, error)
	GetByInstanceAndIndex(ctx context.Context, instanceID string, index int) (*entity.InstancePhase, error)
	// Seal marks the phase passed, only while still in progress.
	Seal(ctx context.Context, id string, at time.Time) (bool, error)
}

// InstanceMovementRepository defines persistence operations for instance
// movements, both snapshotted and dynamically inserted
type InstanceMovementRepository interface {
	Create(ctx context.Context, movement *entity.InstanceMovement) error
	CreateBatch(ctx context.Context, movements []*entity.InstanceMovement) error
	GetByID(ctx context.Context, id string) (*entity.InstanceMovement, error)
	// GetByPhaseID returns movements in scan order (sequence, then insertion).
	GetByPhaseID(ctx context.Context, phaseID string) ([]*entity.InstanceMovement, error)
	GetByInstanceID(ctx context.Context, instanceID string) ([]*entity.InstanceMovement, error)
	CountByInstanceID(ctx context.Context, instanceID string) (int, error)
	MaxSequence(ctx context.Context, phaseID string) (int, error)
}

// CompletionRepository defines persistence operations for MovementCompletion
type CompletionRepository interface {
	// InsertIfAbsent writes the completion unless one already exists for
	// the (flow instance, movement) pair. Returns false when the pair was
	// already completed; the row is never overwritten.
	InsertIfAbsent(ctx context.Context, completion *entity.MovementCompletion) (bool, error)
	GetByMovementID(ctx context.Context, instanceID, movementID string) (*entity.MovementCompletion, error)
	// GetByInstanceID returns completions in chronological order.
	GetByInstanceID(ctx context.Context, instanceID string) ([]*entity.MovementCompletion, error)
	CountByStatus(ctx context.Context, instanceID string) (map[entity.CompletionStatus]int, error)
}

// EvidenceRepository defines persistence operations for Evidence
type EvidenceRepository interface {
	Create(ctx context.Context, evidence *entity.Evidence) error
	// GetByMovementID returns evidence for a movement ordered by creation time.
	GetByMovementID(ctx context.Context, instanceID, movementID string) ([]*entity.Evidence, error)
	GetByInstanceID(ctx context.Context, instanceID string) ([]*entity.Evidence, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
