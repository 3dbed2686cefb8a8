package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/verisite/fieldflow/internal/application/dispatcher"
	"github.com/verisite/fieldflow/internal/application/port"
	"github.com/verisite/fieldflow/internal/domain/entity"
	"github.com/verisite/fieldflow/internal/domain/event"
	"github.com/verisite/fieldflow/internal/domain/flow"
)

// FlowProgress summarizes how far an inspection has come. Percent counts
// acted movements (completed + skipped) over the currently known total, so
// it can regress when the flow is expanded mid-inspection.
type FlowProgress struct {
	FlowInstanceID    string                `json:"flow_instance_id"`
	ClaimID           string                `json:"claim_id"`
	Status            entity.InstanceStatus `json:"status"`
	CurrentPhaseName  string                `json:"current_phase_name"`
	CurrentPhaseIndex int                   `json:"current_phase_index"`
	TotalMovements    int                   `json:"total_movements"`
	CompletedCount    int                   `json:"completed_count"`
	SkippedCount      int                   `json:"skipped_count"`
	PercentComplete   float64               `json:"percent_complete"`
}

// AdvanceResult reports where a phase advance landed
type AdvanceResult struct {
	FlowComplete bool
	NextPhase    *entity.InstancePhase
}

// InstanceService manages flow instance lifecycle. AdvancePhase is the
// single writer of the phase pointer; gate orchestration delegates here.
type InstanceService interface {
	StartFlowForClaim(ctx context.Context, claimID, perilType string) (*entity.FlowInstance, error)
	GetInstance(ctx context.Context, flowInstanceID string) (*entity.FlowInstance, error)
	GetCurrentFlow(ctx context.Context, claimID string) (*entity.FlowInstance, error)
	CancelFlow(ctx context.Context, flowInstanceID string) error
	GetFlowProgress(ctx context.Context, flowInstanceID string) (*FlowProgress, error)
	GetFlowTimeline(ctx context.Context, flowInstanceID string) ([]*entity.MovementCompletion, error)
	AdvancePhase(ctx context.Context, flowInstanceID, phaseID string) (*AdvanceResult, error)
}

type instanceServiceImpl struct {
	definitionRepo port.FlowDefinitionRepository
	instanceRepo   port.FlowInstanceRepository
	phaseRepo      port.InstancePhaseRepository
	movementRepo   port.InstanceMovementRepository
	completionRepo port.CompletionRepository
	txManager      port.TransactionManager
	dispatcher     dispatcher.Dispatcher
	logger         Logger
}

// NewInstanceService creates a new InstanceService
func NewInstanceService(
	definitionRepo port.FlowDefinitionRepository,
	instanceRepo port.FlowInstanceRepository,
	phaseRepo port.InstancePhaseRepository,
	movementRepo port.InstanceMovementRepository,
	completionRepo port.CompletionRepository,
	txManager port.TransactionManager,
	dispatcher dispatcher.Dispatcher,
	logger Logger,
) InstanceService {
	return &instanceServiceImpl{
		definitionRepo: definitionRepo,
		instanceRepo:   instanceRepo,
		phaseRepo:      phaseRepo,
		movementRepo:   movementRepo,
		completionRepo: completionRepo,
		txManager:      txManager,
		dispatcher:     dispatcher,
		logger:         logger,
	}
}

// StartFlowForClaim instantiates the active definition for the peril type
// against a claim. The definition's phase graph is deep-copied into instance
// rows in one transaction, so later template edits never touch this flow.
func (s *instanceServiceImpl) StartFlowForClaim(ctx context.Context, claimID, perilType string) (*entity.FlowInstance, error) {
	if claimID == "" {
		return nil, fmt.Errorf("%w: claim id is required", flow.ErrValidation)
	}
	if perilType == "" {
		return nil, fmt.Errorf("%w: peril type is required", flow.ErrValidation)
	}

	existing, err := s.instanceRepo.GetActiveByClaimID(ctx, claimID)
	if err != nil {
		s.logger.Error("Failed to check active flow", "error", err, "claim_id", claimID)
		return nil, fmt.Errorf("check active flow: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: claim %s already has active flow %s", flow.ErrConflict, claimID, existing.ID)
	}

	def, err := s.definitionRepo.GetActiveByPerilType(ctx, perilType)
	if err != nil {
		s.logger.Error("Failed to select flow definition", "error", err, "peril_type", perilType)
		return nil, fmt.Errorf("select flow definition: %w", err)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: no active flow definition for peril type %s", flow.ErrNotFound, perilType)
	}

	now := time.Now()
	instance := &entity.FlowInstance{
		ID:                uuid.NewString(),
		ClaimID:           claimID,
		FlowDefinitionID:  def.ID,
		Status:            entity.InstanceStatusActive,
		CurrentPhaseIndex: 0,
		StartedAt:         now,
		UpdatedAt:         now,
	}

	phases, movements := snapshotDefinition(instance.ID, def, now)
	instance.CurrentPhaseID = phases[0].ID

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.instanceRepo.Create(txCtx, instance); err != nil {
			return fmt.Errorf("create instance: %w", err)
		}
		if err := s.phaseRepo.CreateBatch(txCtx, phases); err != nil {
			return fmt.Errorf("snapshot phases: %w", err)
		}
		if err := s.movementRepo.CreateBatch(txCtx, movements); err != nil {
			return fmt.Errorf("snapshot movements: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to start flow", "error", err, "claim_id", claimID, "definition_id", def.ID)
		return nil, err
	}

	s.logger.Info("Flow started",
		"id", instance.ID,
		"claim_id", claimID,
		"definition_id", def.ID,
		"phases", len(phases),
		"movements", len(movements),
	)

	if s.dispatcher != nil {
		evt := event.NewEvent(event.TypeFlowStarted, instance.ID, claimID, map[string]interface{}{
			"definition_id":  def.ID,
			"peril_type":     perilType,
			"phase_count":    len(phases),
			"movement_count": len(movements),
		})
		s.dispatcher.DispatchAsync(ctx, evt)
	}

	return instance, nil
}

// GetInstance retrieves a flow instance by ID
func (s *instanceServiceImpl) GetInstance(ctx context.Context, flowInstanceID string) (*entity.FlowInstance, error) {
	return loadInstance(ctx, s.instanceRepo, flowInstanceID)
}

// GetCurrentFlow retrieves the active flow for a claim
func (s *instanceServiceImpl) GetCurrentFlow(ctx context.Context, claimID string) (*entity.FlowInstance, error) {
	instance, err := s.instanceRepo.GetActiveByClaimID(ctx, claimID)
	if err != nil {
		s.logger.Error("Failed to get current flow", "error", err, "claim_id", claimID)
		return nil, fmt.Errorf("get current flow: %w", err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: no active flow for claim %s", flow.ErrNotFound, claimID)
	}
	return instance, nil
}

// CancelFlow terminates an active flow. Cancelled flows stay queryable but
// accept no further mutation.
func (s *instanceServiceImpl) CancelFlow(ctx context.Context, flowInstanceID string) error {
	instance, err := loadInstance(ctx, s.instanceRepo, flowInstanceID)
	if err != nil {
		return err
	}

	machine := flow.NewInstanceMachine(flow.State(instance.Status))
	if !machine.CanFire(flow.TriggerCancel) {
		return fmt.Errorf("%w: flow %s is already %s", flow.ErrConflict, flowInstanceID, instance.Status)
	}
	if err := machine.Fire(ctx, flow.TriggerCancel); err != nil {
		return fmt.Errorf("fire cancel: %w", err)
	}

	ok, err := s.instanceRepo.Cancel(ctx, flowInstanceID, time.Now())
	if err != nil {
		s.logger.Error("Failed to cancel flow", "error", err, "id", flowInstanceID)
		return fmt.Errorf("cancel flow: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: flow %s is no longer active", flow.ErrConflict, flowInstanceID)
	}

	s.logger.Info("Flow cancelled", "id", flowInstanceID, "claim_id", instance.ClaimID)

	if s.dispatcher != nil {
		evt := event.NewEvent(event.TypeFlowCancelled, flowInstanceID, instance.ClaimID, map[string]interface{}{
			"phase_index": instance.CurrentPhaseIndex,
		})
		s.dispatcher.DispatchAsync(ctx, evt)
	}

	return nil
}

// GetFlowProgress reports completion arithmetic over the current movement set
func (s *instanceServiceImpl) GetFlowProgress(ctx context.Context, flowInstanceID string) (*FlowProgress, error) {
	instance, err := loadInstance(ctx, s.instanceRepo, flowInstanceID)
	if err != nil {
		return nil, err
	}

	phase, err := s.phaseRepo.GetByID(ctx, instance.CurrentPhaseID)
	if err != nil {
		s.logger.Error("Failed to get current phase", "error", err, "id", flowInstanceID)
		return nil, fmt.Errorf("get current phase: %w", err)
	}

	total, err := s.movementRepo.CountByInstanceID(ctx, flowInstanceID)
	if err != nil {
		return nil, fmt.Errorf("count movements: %w", err)
	}

	counts, err := s.completionRepo.CountByStatus(ctx, flowInstanceID)
	if err != nil {
		return nil, fmt.Errorf("count completions: %w", err)
	}

	completed := counts[entity.CompletionStatusCompleted]
	skipped := counts[entity.CompletionStatusSkipped]

	progress := &FlowProgress{
		FlowInstanceID:    instance.ID,
		ClaimID:           instance.ClaimID,
		Status:            instance.Status,
		CurrentPhaseIndex: instance.CurrentPhaseIndex,
		TotalMovements:    total,
		CompletedCount:    completed,
		SkippedCount:      skipped,
	}
	if phase != nil {
		progress.CurrentPhaseName = phase.Name
	}
	if total > 0 {
		progress.PercentComplete = math.Round(float64(completed+skipped)/float64(total)*1000) / 10
	}

	return progress, nil
}

// GetFlowTimeline returns the chronological record of movement outcomes
func (s *instanceServiceImpl) GetFlowTimeline(ctx context.Context, flowInstanceID string) ([]*entity.MovementCompletion, error) {
	if _, err := loadInstance(ctx, s.instanceRepo, flowInstanceID); err != nil {
		return nil, err
	}

	completions, err := s.completionRepo.GetByInstanceID(ctx, flowInstanceID)
	if err != nil {
		s.logger.Error("Failed to get flow timeline", "error", err, "id", flowInstanceID)
		return nil, fmt.Errorf("get flow timeline: %w", err)
	}
	return completions, nil
}

// AdvancePhase seals the given phase and moves the pointer to the next one,
// or completes the flow when the phase was the last. The seal and the
// pointer move are compare-and-swap writes in one transaction, so exactly
// one concurrent caller advances; the rest see ErrConflict.
func (s *instanceServiceImpl) AdvancePhase(ctx context.Context, flowInstanceID, phaseID string) (*AdvanceResult, error) {
	instance, err := loadInstance(ctx, s.instanceRepo, flowInstanceID)
	if err != nil {
		return nil, err
	}
	if instance.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: flow %s is %s", flow.ErrConflict, flowInstanceID, instance.Status)
	}

	phase, err := s.phaseRepo.GetByID(ctx, phaseID)
	if err != nil {
		return nil, fmt.Errorf("get phase: %w", err)
	}
	if phase == nil || phase.FlowInstanceID != flowInstanceID {
		return nil, fmt.Errorf("%w: phase %s", flow.ErrNotFound, phaseID)
	}

	machine := flow.NewInstanceMachine(flow.State(instance.Status))

	now := time.Now()
	result := &AdvanceResult{}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		sealed, err := s.phaseRepo.Seal(txCtx, phase.ID, now)
		if err != nil {
			return fmt.Errorf("seal phase: %w", err)
		}
		if !sealed {
			return fmt.Errorf("%w: phase %s already passed", flow.ErrConflict, phase.ID)
		}

		next, err := s.phaseRepo.GetByInstanceAndIndex(txCtx, flowInstanceID, phase.PhaseIndex+1)
		if err != nil {
			return fmt.Errorf("get next phase: %w", err)
		}

		if next == nil {
			if err := machine.Fire(txCtx, flow.TriggerComplete); err != nil {
				return fmt.Errorf("fire complete: %w", err)
			}
			ok, err := s.instanceRepo.Complete(txCtx, flowInstanceID, now)
			if err != nil {
				return fmt.Errorf("complete instance: %w", err)
			}
			if !ok {
				return fmt.Errorf("%w: flow %s is no longer active", flow.ErrConflict, flowInstanceID)
			}
			result.FlowComplete = true
			return nil
		}

		ok, err := s.instanceRepo.AdvancePhase(txCtx, flowInstanceID, phase.PhaseIndex, next.ID, now)
		if err != nil {
			return fmt.Errorf("advance phase pointer: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: flow %s moved past phase %d", flow.ErrConflict, flowInstanceID, phase.PhaseIndex)
		}
		result.NextPhase = next
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to advance flow", "error", err, "id", flowInstanceID, "phase_id", phaseID)
		return nil, err
	}

	if result.FlowComplete {
		s.logger.Info("Flow completed", "id", flowInstanceID, "claim_id", instance.ClaimID)
	} else {
		s.logger.Info("Flow advanced",
			"id", flowInstanceID,
			"from_phase", phase.Name,
			"to_phase", result.NextPhase.Name,
		)
	}

	if s.dispatcher != nil {
		if result.FlowComplete {
			evt := event.NewEvent(event.TypeFlowCompleted, flowInstanceID, instance.ClaimID, map[string]interface{}{
				"final_phase_id":   phase.ID,
				"final_phase_name": phase.Name,
			})
			s.dispatcher.DispatchAsync(ctx, evt)
		} else {
			evt := event.NewEvent(event.TypePhaseAdvanced, flowInstanceID, instance.ClaimID, map[string]interface{}{
				"from_phase_id":   phase.ID,
				"from_phase_name": phase.Name,
				"to_phase_id":     result.NextPhase.ID,
				"to_phase_name":   result.NextPhase.Name,
				"to_phase_index":  result.NextPhase.PhaseIndex,
			})
			s.dispatcher.DispatchAsync(ctx, evt)
		}
	}

	return result, nil
}

// loadInstance fetches an instance, converting a missing row to ErrNotFound
func loadInstance(ctx context.Context, repo port.FlowInstanceRepository, id string) (*entity.FlowInstance, error) {
	instance, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get flow instance: %w", err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: flow instance %s", flow.ErrNotFound, id)
	}
	return instance, nil
}

// snapshotDefinition deep-copies a definition's phase graph into instance
// rows with fresh identifiers. Each phase gets its own addressable gate id.
func snapshotDefinition(instanceID string, def *entity.FlowDefinition, at time.Time) ([]*entity.InstancePhase, []*entity.InstanceMovement) {
	phases := make([]*entity.InstancePhase, 0, len(def.Phases))
	var movements []*entity.InstanceMovement

	for i, tmpl := range def.Phases {
		phase := &entity.InstancePhase{
			ID:              uuid.NewString(),
			FlowInstanceID:  instanceID,
			PhaseIndex:      i,
			Name:            tmpl.Name,
			GateID:          uuid.NewString(),
			GatePassThrough: tmpl.Gate.PassThrough,
			Status:          entity.PhaseStatusInProgress,
		}
		phases = append(phases, phase)

		for j, mt := range tmpl.Movements {
			reqs := make([]entity.EvidenceRequirement, len(mt.EvidenceRequirements))
			copy(reqs, mt.EvidenceRequirements)
			movements = append(movements, &entity.InstanceMovement{
				ID:                   uuid.NewString(),
				FlowInstanceID:       instanceID,
				PhaseID:              phase.ID,
				Name:                 mt.Name,
				Description:          mt.Description,
				IsRequired:           mt.IsRequired,
				Origin:               entity.OriginTemplate,
				Sequence:             j + 1,
				EvidenceRequirements: reqs,
				CreatedAt:            at,
			})
		}
	}

	return phases, movements
}
