package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verisite/fieldflow/internal/application/dispatcher"
	"github.com/verisite/fieldflow/internal/application/port"
	"github.com/verisite/fieldflow/internal/domain/entity"
	"github.com/verisite/fieldflow/internal/domain/event"
	"github.com/verisite/fieldflow/internal/domain/flow"
)

// EvidenceInput carries one evidence artifact to attach. Blob-backed types
// reference bytes in the blob store; measurements and notes carry their
// payload in Data.
type EvidenceInput struct {
	Type        entity.EvidenceType    `json:"type"`
	ReferenceID string                 `json:"reference_id"`
	Data        map[string]interface{} `json:"data"`
	UserID      string                 `json:"user_id"`
	Notes       string                 `json:"notes"`
}

// EvidenceService is the append-only evidence ledger
type EvidenceService interface {
	AttachEvidence(ctx context.Context, flowInstanceID, movementID string, input EvidenceInput) (*entity.Evidence, error)
	ValidateEvidence(ctx context.Context, flowInstanceID, movementID string) (*flow.EvidenceReport, error)
	GetMovementEvidence(ctx context.Context, flowInstanceID, movementID string) ([]*entity.Evidence, error)
}

type evidenceServiceImpl struct {
	instanceRepo   port.FlowInstanceRepository
	movementRepo   port.InstanceMovementRepository
	completionRepo port.CompletionRepository
	evidenceRepo   port.EvidenceRepository
	blobStore      port.BlobStore
	dispatcher     dispatcher.Dispatcher
	logger         Logger
}

// NewEvidenceService creates a new EvidenceService
func NewEvidenceService(
	instanceRepo port.FlowInstanceRepository,
	movementRepo port.InstanceMovementRepository,
	completionRepo port.CompletionRepository,
	evidenceRepo port.EvidenceRepository,
	blobStore port.BlobStore,
	dispatcher dispatcher.Dispatcher,
	logger Logger,
) EvidenceService {
	return &evidenceServiceImpl{
		instanceRepo:   instanceRepo,
		movementRepo:   movementRepo,
		completionRepo: completionRepo,
		evidenceRepo:   evidenceRepo,
		blobStore:      blobStore,
		dispatcher:     dispatcher,
		logger:         logger,
	}
}

// AttachEvidence appends an evidence record to a movement that has already
// been acted upon. Evidence never dangles: without a completion there is
// nothing for it to substantiate.
func (s *evidenceServiceImpl) AttachEvidence(ctx context.Context, flowInstanceID, movementID string, input EvidenceInput) (*entity.Evidence, error) {
	if err := validateEvidenceInput(ctx, s.blobStore, input); err != nil {
		return nil, err
	}

	instance, movement, err := s.instanceMovement(ctx, flowInstanceID, movementID)
	if err != nil {
		return nil, err
	}
	if instance.Status == entity.InstanceStatusCancelled {
		return nil, fmt.Errorf("%w: flow %s is cancelled", flow.ErrConflict, flowInstanceID)
	}

	completion, err := s.completionRepo.GetByMovementID(ctx, flowInstanceID, movementID)
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	if completion == nil {
		return nil, fmt.Errorf("%w: movement %s has no completion to attach evidence to", flow.ErrNotFound, movementID)
	}

	record := buildEvidence(flowInstanceID, movementID, completion.ID, input, time.Now())
	if err := s.evidenceRepo.Create(ctx, record); err != nil {
		s.logger.Error("Failed to attach evidence",
			"error", err,
			"flow_instance_id", flowInstanceID,
			"movement_id", movementID,
		)
		return nil, fmt.Errorf("attach evidence: %w", err)
	}

	s.logger.Info("Evidence attached",
		"flow_instance_id", flowInstanceID,
		"movement_id", movementID,
		"movement", movement.Name,
		"type", record.Type.String(),
	)

	if s.dispatcher != nil {
		evt := event.NewEvent(event.TypeEvidenceAttached, flowInstanceID, instance.ClaimID, map[string]interface{}{
			"evidence_id":   record.ID,
			"movement_id":   movementID,
			"movement_name": movement.Name,
			"type":          record.Type.String(),
			"reference_id":  record.ReferenceID,
		})
		s.dispatcher.DispatchAsync(ctx, evt)
	}

	return record, nil
}

// ValidateEvidence compares attached evidence against the movement's
// requirements, the same arithmetic the gate applies
func (s *evidenceServiceImpl) ValidateEvidence(ctx context.Context, flowInstanceID, movementID string) (*flow.EvidenceReport, error) {
	_, movement, err := s.instanceMovement(ctx, flowInstanceID, movementID)
	if err != nil {
		return nil, err
	}

	evidence, err := s.evidenceRepo.GetByMovementID(ctx, flowInstanceID, movementID)
	if err != nil {
		return nil, fmt.Errorf("get evidence: %w", err)
	}

	return flow.ValidateMovementEvidence(movement, evidence), nil
}

// GetMovementEvidence lists a movement's evidence in attachment order
func (s *evidenceServiceImpl) GetMovementEvidence(ctx context.Context, flowInstanceID, movementID string) ([]*entity.Evidence, error) {
	if _, _, err := s.instanceMovement(ctx, flowInstanceID, movementID); err != nil {
		return nil, err
	}

	evidence, err := s.evidenceRepo.GetByMovementID(ctx, flowInstanceID, movementID)
	if err != nil {
		s.logger.Error("Failed to get movement evidence",
			"error", err,
			"flow_instance_id", flowInstanceID,
			"movement_id", movementID,
		)
		return nil, fmt.Errorf("get movement evidence: %w", err)
	}
	return evidence, nil
}

// instanceMovement resolves the instance and a movement belonging to it
func (s *evidenceServiceImpl) instanceMovement(ctx context.Context, flowInstanceID, movementID string) (*entity.FlowInstance, *entity.InstanceMovement, error) {
	instance, err := loadInstance(ctx, s.instanceRepo, flowInstanceID)
	if err != nil {
		return nil, nil, err
	}

	movement, err := s.movementRepo.GetByID(ctx, movementID)
	if err != nil {
		return nil, nil, fmt.Errorf("get movement: %w", err)
	}
	if movement == nil || movement.FlowInstanceID != flowInstanceID {
		return nil, nil, fmt.Errorf("%w: movement %s", flow.ErrNotFound, movementID)
	}

	return instance, movement, nil
}

// validateEvidenceInput checks the artifact before anything is written:
// the type must be a known enum member, and blob-backed types must carry a
// reference the blob store can resolve
func validateEvidenceInput(ctx context.Context, blobStore port.BlobStore, input EvidenceInput) error {
	if !input.Type.IsValid() {
		return fmt.Errorf("%w: unknown evidence type %q", flow.ErrValidation, string(input.Type))
	}
	if input.Type.RequiresBlob() {
		if input.ReferenceID == "" {
			return fmt.Errorf("%w: evidence type %s requires a reference id", flow.ErrValidation, input.Type)
		}
		if !blobStore.Exists(ctx, input.ReferenceID) {
			return fmt.Errorf("%w: evidence reference %s cannot be resolved", flow.ErrValidation, input.ReferenceID)
		}
	}
	return nil
}

// buildEvidence assembles a ledger row from an input
func buildEvidence(flowInstanceID, movementID, completionID string, input EvidenceInput, at time.Time) *entity.Evidence {
	return &entity.Evidence{
		ID:             uuid.NewString(),
		FlowInstanceID: flowInstanceID,
		MovementID:     movementID,
		CompletionID:   completionID,
		Type:           input.Type,
		ReferenceID:    input.ReferenceID,
		Data:           input.Data,
		UserID:         input.UserID,
		Notes:          input.Notes,
		CreatedAt:      at,
	}
}
