package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verisite/fieldflow/internal/application/dispatcher"
	"github.com/verisite/fieldflow/internal/application/port"
	"github.com/verisite/fieldflow/internal/domain/entity"
	"github.com/verisite/fieldflow/internal/domain/event"
	"github.com/verisite/fieldflow/internal/domain/flow"
)

// NextStepKind tells the adjuster what comes next
type NextStepKind string

const (
	NextStepMovement NextStepKind = "movement"
	NextStepGate     NextStepKind = "gate"
	NextStepComplete NextStepKind = "complete"
)

// NextStep is the engine's answer to "what should I do now": the next
// pending movement, the phase gate once every movement is acted upon, or
// nothing because the flow is complete
type NextStep struct {
	Kind      NextStepKind             `json:"kind"`
	PhaseID   string                   `json:"phase_id,omitempty"`
	PhaseName string                   `json:"phase_name,omitempty"`
	Movement  *entity.InstanceMovement `json:"movement,omitempty"`
	GateID    string                   `json:"gate_id,omitempty"`
}

// CompleteMovementInput carries a completion plus evidence captured with it
type CompleteMovementInput struct {
	UserID   string          `json:"user_id"`
	Notes    string          `json:"notes"`
	Evidence []EvidenceInput `json:"evidence"`
}

// PhaseAdvancer moves the flow pointer forward after a gate passes.
// InstanceService is the only implementation; the pointer has one writer.
type PhaseAdvancer interface {
	AdvancePhase(ctx context.Context, flowInstanceID, phaseID string) (*AdvanceResult, error)
}

// MovementService executes movements and orchestrates gate evaluation
type MovementService interface {
	GetNextMovement(ctx context.Context, flowInstanceID string) (*NextStep, error)
	CompleteMovement(ctx context.Context, flowInstanceID, movementID string, input CompleteMovementInput) (*entity.MovementCompletion, error)
	SkipMovement(ctx context.Context, flowInstanceID, movementID, reason, userID string) (*entity.MovementCompletion, error)
	EvaluateGate(ctx context.Context, flowInstanceID, gateID string) (*flow.GateEvaluation, error)
}

type movementServiceImpl struct {
	instanceRepo   port.FlowInstanceRepository
	phaseRepo      port.InstancePhaseRepository
	movementRepo   port.InstanceMovementRepository
	completionRepo port.CompletionRepository
	evidenceRepo   port.EvidenceRepository
	blobStore      port.BlobStore
	advancer       PhaseAdvancer
	txManager      port.TransactionManager
	dispatcher     dispatcher.Dispatcher
	logger         Logger
}

// NewMovementService creates a new MovementService
func NewMovementService(
	instanceRepo port.FlowInstanceRepository,
	phaseRepo port.InstancePhaseRepository,
	movementRepo port.InstanceMovementRepository,
	completionRepo port.CompletionRepository,
	evidenceRepo port.EvidenceRepository,
	blobStore port.BlobStore,
	advancer PhaseAdvancer,
	txManager port.TransactionManager,
	dispatcher dispatcher.Dispatcher,
	logger Logger,
) MovementService {
	return &movementServiceImpl{
		instanceRepo:   instanceRepo,
		phaseRepo:      phaseRepo,
		movementRepo:   movementRepo,
		completionRepo: completionRepo,
		evidenceRepo:   evidenceRepo,
		blobStore:      blobStore,
		advancer:       advancer,
		txManager:      txManager,
		dispatcher:     dispatcher,
		logger:         logger,
	}
}

// GetNextMovement scans the current phase in sequence order and returns the
// first movement without a completion, the gate once all are acted upon, or
// the completion marker for a finished flow
func (s *movementServiceImpl) GetNextMovement(ctx context.Context, flowInstanceID string) (*NextStep, error) {
	instance, err := loadInstance(ctx, s.instanceRepo, flowInstanceID)
	if err != nil {
		return nil, err
	}

	switch instance.Status {
	case entity.InstanceStatusCancelled:
		return nil, fmt.Errorf("%w: flow %s is cancelled", flow.ErrConflict, flowInstanceID)
	case entity.InstanceStatusCompleted:
		return &NextStep{Kind: NextStepComplete}, nil
	}

	phase, err := s.phaseRepo.GetByID(ctx, instance.CurrentPhaseID)
	if err != nil {
		return nil, fmt.Errorf("get current phase: %w", err)
	}
	if phase == nil {
		return nil, fmt.Errorf("%w: phase %s", flow.ErrNotFound, instance.CurrentPhaseID)
	}

	movements, err := s.movementRepo.GetByPhaseID(ctx, phase.ID)
	if err != nil {
		return nil, fmt.Errorf("get phase movements: %w", err)
	}

	acted, err := s.actedMovements(ctx, flowInstanceID)
	if err != nil {
		return nil, err
	}

	for _, m := range movements {
		if !acted[m.ID] {
			return &NextStep{
				Kind:      NextStepMovement,
				PhaseID:   phase.ID,
				PhaseName: phase.Name,
				Movement:  m,
			}, nil
		}
	}

	return &NextStep{
		Kind:      NextStepGate,
		PhaseID:   phase.ID,
		PhaseName: phase.Name,
		GateID:    phase.GateID,
	}, nil
}

// CompleteMovement records that a movement was performed. Evidence captured
// with it is validated and written in the same transaction, so the
// completion and its evidence commit or roll back together.
func (s *movementServiceImpl) CompleteMovement(ctx context.Context, flowInstanceID, movementID string, input CompleteMovementInput) (*entity.MovementCompletion, error) {
	if input.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", flow.ErrValidation)
	}
	for _, ev := range input.Evidence {
		if err := validateEvidenceInput(ctx, s.blobStore, ev); err != nil {
			return nil, err
		}
	}

	instance, movement, err := s.currentPhaseMovement(ctx, flowInstanceID, movementID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	completion := &entity.MovementCompletion{
		ID:             uuid.NewString(),
		FlowInstanceID: flowInstanceID,
		MovementID:     movementID,
		UserID:         input.UserID,
		Status:         entity.CompletionStatusCompleted,
		Notes:          input.Notes,
		CompletedAt:    now,
	}

	if err := s.writeCompletion(ctx, completion, input.Evidence, input.UserID, now); err != nil {
		return nil, err
	}

	s.logger.Info("Movement completed",
		"flow_instance_id", flowInstanceID,
		"movement_id", movementID,
		"movement", movement.Name,
		"user_id", input.UserID,
		"evidence_count", len(input.Evidence),
	)

	if s.dispatcher != nil {
		evt := event.NewEvent(event.TypeMovementCompleted, flowInstanceID, instance.ClaimID, map[string]interface{}{
			"movement_id":    movementID,
			"movement_name":  movement.Name,
			"user_id":        input.UserID,
			"evidence_count": len(input.Evidence),
		})
		s.dispatcher.DispatchAsync(ctx, evt)
	}

	return completion, nil
}

// SkipMovement records that a movement was deliberately not performed.
// Required movements may be skipped; the gate is where required-ness bites.
func (s *movementServiceImpl) SkipMovement(ctx context.Context, flowInstanceID, movementID, reason, userID string) (*entity.MovementCompletion, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: skip reason is required", flow.ErrValidation)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", flow.ErrValidation)
	}

	instance, movement, err := s.currentPhaseMovement(ctx, flowInstanceID, movementID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	completion := &entity.MovementCompletion{
		ID:             uuid.NewString(),
		FlowInstanceID: flowInstanceID,
		MovementID:     movementID,
		UserID:         userID,
		Status:         entity.CompletionStatusSkipped,
		SkipReason:     reason,
		CompletedAt:    now,
	}

	if err := s.writeCompletion(ctx, completion, nil, userID, now); err != nil {
		return nil, err
	}

	s.logger.Info("Movement skipped",
		"flow_instance_id", flowInstanceID,
		"movement_id", movementID,
		"movement", movement.Name,
		"reason", reason,
	)

	if s.dispatcher != nil {
		evt := event.NewEvent(event.TypeMovementSkipped, flowInstanceID, instance.ClaimID, map[string]interface{}{
			"movement_id":   movementID,
			"movement_name": movement.Name,
			"user_id":       userID,
			"reason":        reason,
		})
		s.dispatcher.DispatchAsync(ctx, evt)
	}

	return completion, nil
}

// EvaluateGate evaluates a phase gate against stored state and, on a pass,
// advances the flow. Re-evaluating an already-passed gate returns the
// passed outcome without writing anything.
func (s *movementServiceImpl) EvaluateGate(ctx context.Context, flowInstanceID, gateID string) (*flow.GateEvaluation, error) {
	phase, err := s.phaseRepo.GetByGateID(ctx, gateID)
	if err != nil {
		return nil, fmt.Errorf("get gate phase: %w", err)
	}
	if phase == nil || phase.FlowInstanceID != flowInstanceID {
		return nil, fmt.Errorf("%w: gate %s", flow.ErrNotFound, gateID)
	}

	instance, err := loadInstance(ctx, s.instanceRepo, flowInstanceID)
	if err != nil {
		return nil, err
	}
	if instance.Status == entity.InstanceStatusCancelled {
		return nil, fmt.Errorf("%w: flow %s is cancelled", flow.ErrConflict, flowInstanceID)
	}

	if phase.Status == entity.PhaseStatusPassed {
		return s.passedOutcome(ctx, phase)
	}
	if phase.PhaseIndex > instance.CurrentPhaseIndex {
		return nil, fmt.Errorf("%w: gate %s belongs to a future phase", flow.ErrOutOfOrder, gateID)
	}

	movements, err := s.movementRepo.GetByPhaseID(ctx, phase.ID)
	if err != nil {
		return nil, fmt.Errorf("get phase movements: %w", err)
	}
	completions, err := s.completionRepo.GetByInstanceID(ctx, flowInstanceID)
	if err != nil {
		return nil, fmt.Errorf("get completions: %w", err)
	}
	evidence, err := s.evidenceRepo.GetByInstanceID(ctx, flowInstanceID)
	if err != nil {
		return nil, fmt.Errorf("get evidence: %w", err)
	}

	evaluation := flow.EvaluateGate(phase, movements, completions, evidence)
	if !evaluation.Passed {
		s.logger.Info("Gate not satisfied",
			"flow_instance_id", flowInstanceID,
			"gate_id", gateID,
			"phase", phase.Name,
			"missing_movements", len(evaluation.MissingMovements),
			"missing_evidence", len(evaluation.MissingEvidence),
		)
		return evaluation, nil
	}

	advance, err := s.advancer.AdvancePhase(ctx, flowInstanceID, phase.ID)
	if err != nil {
		// A concurrent evaluation may have sealed the phase first; the
		// gate still passed, so report the stored outcome.
		if errors.Is(err, flow.ErrConflict) {
			sealed, lookupErr := s.phaseRepo.GetByID(ctx, phase.ID)
			if lookupErr == nil && sealed != nil && sealed.Status == entity.PhaseStatusPassed {
				return s.passedOutcome(ctx, sealed)
			}
		}
		return nil, err
	}

	if advance.FlowComplete {
		evaluation.FlowComplete = true
	} else {
		evaluation.NextPhaseID = advance.NextPhase.ID
	}

	s.logger.Info("Gate passed",
		"flow_instance_id", flowInstanceID,
		"gate_id", gateID,
		"phase", phase.Name,
		"flow_complete", evaluation.FlowComplete,
	)

	if s.dispatcher != nil {
		evt := event.NewEvent(event.TypeGatePassed, flowInstanceID, instance.ClaimID, map[string]interface{}{
			"gate_id":       gateID,
			"phase_id":      phase.ID,
			"phase_name":    phase.Name,
			"flow_complete": evaluation.FlowComplete,
		})
		s.dispatcher.DispatchAsync(ctx, evt)
	}

	return evaluation, nil
}

// currentPhaseMovement loads a movement and verifies it is actionable:
// the instance is active and the movement sits in the current phase
func (s *movementServiceImpl) currentPhaseMovement(ctx context.Context, flowInstanceID, movementID string) (*entity.FlowInstance, *entity.InstanceMovement, error) {
	instance, err := loadInstance(ctx, s.instanceRepo, flowInstanceID)
	if err != nil {
		return nil, nil, err
	}
	if instance.Status.IsTerminal() {
		return nil, nil, fmt.Errorf("%w: flow %s is %s", flow.ErrConflict, flowInstanceID, instance.Status)
	}

	movement, err := s.movementRepo.GetByID(ctx, movementID)
	if err != nil {
		return nil, nil, fmt.Errorf("get movement: %w", err)
	}
	if movement == nil || movement.FlowInstanceID != flowInstanceID {
		return nil, nil, fmt.Errorf("%w: movement %s", flow.ErrNotFound, movementID)
	}
	if movement.PhaseID != instance.CurrentPhaseID {
		return nil, nil, fmt.Errorf("%w: movement %s is not in the current phase", flow.ErrOutOfOrder, movementID)
	}

	return instance, movement, nil
}

// writeCompletion inserts the completion and its evidence in one
// transaction. The instance status is re-checked at write time so a
// concurrent cancel wins cleanly, and the conditional insert makes the
// second of two racing completions lose with ErrConflict.
func (s *movementServiceImpl) writeCompletion(ctx context.Context, completion *entity.MovementCompletion, evidence []EvidenceInput, userID string, at time.Time) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.instanceRepo.GetByID(txCtx, completion.FlowInstanceID)
		if err != nil {
			return fmt.Errorf("recheck instance: %w", err)
		}
		if current == nil || current.Status != entity.InstanceStatusActive {
			return fmt.Errorf("%w: flow %s is no longer active", flow.ErrConflict, completion.FlowInstanceID)
		}

		inserted, err := s.completionRepo.InsertIfAbsent(txCtx, completion)
		if err != nil {
			return fmt.Errorf("insert completion: %w", err)
		}
		if !inserted {
			return fmt.Errorf("%w: movement %s already acted upon", flow.ErrConflict, completion.MovementID)
		}

		for _, input := range evidence {
			record := buildEvidence(completion.FlowInstanceID, completion.MovementID, completion.ID, input, at)
			if record.UserID == "" {
				record.UserID = userID
			}
			if err := s.evidenceRepo.Create(txCtx, record); err != nil {
				return fmt.Errorf("attach evidence: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		s.logger.Error("Failed to record movement outcome",
			"error", err,
			"flow_instance_id", completion.FlowInstanceID,
			"movement_id", completion.MovementID,
		)
		return err
	}
	return nil
}

// passedOutcome rebuilds the evaluation result for a gate that already
// passed, pointing at the following phase or the flow-complete marker
func (s *movementServiceImpl) passedOutcome(ctx context.Context, phase *entity.InstancePhase) (*flow.GateEvaluation, error) {
	evaluation := &flow.GateEvaluation{
		GateID:    phase.GateID,
		PhaseID:   phase.ID,
		PhaseName: phase.Name,
		Passed:    true,
		Reason:    "gate already passed",
	}

	next, err := s.phaseRepo.GetByInstanceAndIndex(ctx, phase.FlowInstanceID, phase.PhaseIndex+1)
	if err != nil {
		return nil, fmt.Errorf("get next phase: %w", err)
	}
	if next == nil {
		evaluation.FlowComplete = true
	} else {
		evaluation.NextPhaseID = next.ID
	}

	return evaluation, nil
}

// actedMovements returns the set of movement ids with a completion
func (s *movementServiceImpl) actedMovements(ctx context.Context, flowInstanceID string) (map[string]bool, error) {
	completions, err := s.completionRepo.GetByInstanceID(ctx, flowInstanceID)
	if err != nil {
		return nil, fmt.Errorf("get completions: %w", err)
	}
	acted := make(map[string]bool, len(completions))
	for _, c := range completions {
		acted[c.MovementID] = true
	}
	return acted, nil
}
