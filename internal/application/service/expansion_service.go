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

// RoomMovementInput describes one movement derived from a discovered room
type RoomMovementInput struct {
	Name                 string                       `json:"name"`
	Description          string                       `json:"description"`
	IsRequired           bool                         `json:"is_required"`
	EvidenceRequirements []entity.EvidenceRequirement `json:"evidence_requirements"`
}

// InsertMovementInput describes a single movement inserted mid-flow
type InsertMovementInput struct {
	PhaseID              string                       `json:"phase_id"`
	Name                 string                       `json:"name"`
	Description          string                       `json:"description"`
	IsRequired           bool                         `json:"is_required"`
	AfterMovementID      string                       `json:"after_movement_id"`
	Origin               entity.MovementOrigin        `json:"origin"`
	EvidenceRequirements []entity.EvidenceRequirement `json:"evidence_requirements"`
}

// ExpansionService grows a running flow: rooms discovered on site, custom
// steps, and AI-suggested movements. Expansion only ever touches the
// current phase; sealed phases never reopen.
type ExpansionService interface {
	AddRoomMovements(ctx context.Context, flowInstanceID, roomName string, inputs []RoomMovementInput) ([]*entity.InstanceMovement, error)
	GetSuggestedMovements(ctx context.Context, flowInstanceID, contextNote string) ([]port.MovementCandidate, error)
	InsertCustomMovement(ctx context.Context, flowInstanceID string, input InsertMovementInput) (*entity.InstanceMovement, error)
}

type expansionServiceImpl struct {
	definitionRepo port.FlowDefinitionRepository
	instanceRepo   port.FlowInstanceRepository
	phaseRepo      port.InstancePhaseRepository
	movementRepo   port.InstanceMovementRepository
	completionRepo port.CompletionRepository
	suggester      port.MovementSuggester
	txManager      port.TransactionManager
	dispatcher     dispatcher.Dispatcher
	logger         Logger
}

// NewExpansionService creates a new ExpansionService
func NewExpansionService(
	definitionRepo port.FlowDefinitionRepository,
	instanceRepo port.FlowInstanceRepository,
	phaseRepo port.InstancePhaseRepository,
	movementRepo port.InstanceMovementRepository,
	completionRepo port.CompletionRepository,
	suggester port.MovementSuggester,
	txManager port.TransactionManager,
	dispatcher dispatcher.Dispatcher,
	logger Logger,
) ExpansionService {
	return &expansionServiceImpl{
		definitionRepo: definitionRepo,
		instanceRepo:   instanceRepo,
		phaseRepo:      phaseRepo,
		movementRepo:   movementRepo,
		completionRepo: completionRepo,
		suggester:      suggester,
		txManager:      txManager,
		dispatcher:     dispatcher,
		logger:         logger,
	}
}

// AddRoomMovements appends room-derived movements to the current phase,
// tagged with the room name. Sequences continue after the existing ones.
func (s *expansionServiceImpl) AddRoomMovements(ctx context.Context, flowInstanceID, roomName string, inputs []RoomMovementInput) ([]*entity.InstanceMovement, error) {
	if roomName == "" {
		return nil, fmt.Errorf("%w: room name is required", flow.ErrValidation)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one movement is required", flow.ErrValidation)
	}
	var violations []flow.Violation
	for i, input := range inputs {
		if input.Name == "" {
			violations = append(violations, flow.Violation{
				Field:   fmt.Sprintf("movements[%d].name", i),
				Message: "movement name is required",
			})
		}
		violations = append(violations, flow.ValidateRequirements(
			fmt.Sprintf("movements[%d].evidence_requirements", i), input.EvidenceRequirements)...)
	}
	if len(violations) > 0 {
		return nil, flow.NewValidationError(violations)
	}

	instance, phase, err := s.currentPhase(ctx, flowInstanceID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	movements := make([]*entity.InstanceMovement, 0, len(inputs))

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		maxSeq, err := s.appendablePhaseMaxSequence(txCtx, phase.ID)
		if err != nil {
			return err
		}

		for i, input := range inputs {
			reqs := make([]entity.EvidenceRequirement, len(input.EvidenceRequirements))
			copy(reqs, input.EvidenceRequirements)
			movements = append(movements, &entity.InstanceMovement{
				ID:                   uuid.NewString(),
				FlowInstanceID:       flowInstanceID,
				PhaseID:              phase.ID,
				Name:                 input.Name,
				Description:          input.Description,
				IsRequired:           input.IsRequired,
				Origin:               entity.OriginRoomDerived,
				RoomName:             roomName,
				Sequence:             maxSeq + 1 + i,
				EvidenceRequirements: reqs,
				CreatedAt:            now,
			})
		}

		return s.movementRepo.CreateBatch(txCtx, movements)
	})
	if err != nil {
		s.logger.Error("Failed to add room movements",
			"error", err,
			"flow_instance_id", flowInstanceID,
			"room", roomName,
		)
		return nil, err
	}

	s.logger.Info("Room movements added",
		"flow_instance_id", flowInstanceID,
		"room", roomName,
		"phase", phase.Name,
		"count", len(movements),
	)

	if s.dispatcher != nil {
		for _, m := range movements {
			evt := event.NewEvent(event.TypeMovementInserted, flowInstanceID, instance.ClaimID, map[string]interface{}{
				"movement_id":   m.ID,
				"movement_name": m.Name,
				"origin":        m.Origin.String(),
				"room_name":     roomName,
				"phase_id":      phase.ID,
			})
			s.dispatcher.DispatchAsync(ctx, evt)
		}
	}

	return movements, nil
}

// GetSuggestedMovements asks the suggester for extra movements relevant to
// where the inspection stands. Candidates are advice: nothing is written
// until one is accepted through InsertCustomMovement.
func (s *expansionServiceImpl) GetSuggestedMovements(ctx context.Context, flowInstanceID, contextNote string) ([]port.MovementCandidate, error) {
	instance, phase, err := s.currentPhase(ctx, flowInstanceID)
	if err != nil {
		return nil, err
	}

	def, err := s.definitionRepo.GetByID(ctx, instance.FlowDefinitionID)
	if err != nil {
		return nil, fmt.Errorf("get definition: %w", err)
	}

	movements, err := s.movementRepo.GetByPhaseID(ctx, phase.ID)
	if err != nil {
		return nil, fmt.Errorf("get phase movements: %w", err)
	}
	completions, err := s.completionRepo.GetByInstanceID(ctx, flowInstanceID)
	if err != nil {
		return nil, fmt.Errorf("get completions: %w", err)
	}

	acted := make(map[string]bool, len(completions))
	for _, c := range completions {
		acted[c.MovementID] = true
	}

	var completed, remaining []string
	for _, m := range movements {
		if acted[m.ID] {
			completed = append(completed, m.Name)
		} else {
			remaining = append(remaining, m.Name)
		}
	}

	sc := port.SuggestionContext{
		ClaimID:            instance.ClaimID,
		PhaseName:          phase.Name,
		CompletedMovements: completed,
		RemainingMovements: remaining,
		Context:            contextNote,
	}
	if def != nil {
		sc.PerilType = def.PerilType
	}

	candidates, err := s.suggester.SuggestMovements(ctx, sc)
	if err != nil {
		s.logger.Error("Movement suggestion failed", "error", err, "flow_instance_id", flowInstanceID)
		return nil, fmt.Errorf("suggest movements: %w", err)
	}

	s.logger.Info("Movement suggestions produced",
		"flow_instance_id", flowInstanceID,
		"phase", phase.Name,
		"count", len(candidates),
	)
	return candidates, nil
}

// InsertCustomMovement adds a single movement to the current phase. The
// position is always the end of the phase: AfterMovementID anchors intent
// and is validated, but existing sequences are never renumbered.
func (s *expansionServiceImpl) InsertCustomMovement(ctx context.Context, flowInstanceID string, input InsertMovementInput) (*entity.InstanceMovement, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: movement name is required", flow.ErrValidation)
	}
	if input.PhaseID == "" {
		return nil, fmt.Errorf("%w: phase id is required", flow.ErrValidation)
	}
	origin := input.Origin
	if origin == "" {
		origin = entity.OriginCustom
	}
	if origin != entity.OriginCustom && origin != entity.OriginSuggested {
		return nil, fmt.Errorf("%w: origin %q is not insertable", flow.ErrValidation, string(origin))
	}
	if violations := flow.ValidateRequirements("evidence_requirements", input.EvidenceRequirements); len(violations) > 0 {
		return nil, flow.NewValidationError(violations)
	}

	instance, err := loadInstance(ctx, s.instanceRepo, flowInstanceID)
	if err != nil {
		return nil, err
	}
	if instance.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: flow %s is %s", flow.ErrConflict, flowInstanceID, instance.Status)
	}

	phase, err := s.phaseRepo.GetByID(ctx, input.PhaseID)
	if err != nil {
		return nil, fmt.Errorf("get phase: %w", err)
	}
	if phase == nil || phase.FlowInstanceID != flowInstanceID {
		return nil, fmt.Errorf("%w: phase %s", flow.ErrNotFound, input.PhaseID)
	}
	if phase.ID != instance.CurrentPhaseID {
		return nil, fmt.Errorf("%w: phase %s is not the current phase", flow.ErrOutOfOrder, input.PhaseID)
	}

	if input.AfterMovementID != "" {
		anchor, err := s.movementRepo.GetByID(ctx, input.AfterMovementID)
		if err != nil {
			return nil, fmt.Errorf("get anchor movement: %w", err)
		}
		if anchor == nil || anchor.PhaseID != phase.ID {
			return nil, fmt.Errorf("%w: movement %s not in phase %s", flow.ErrNotFound, input.AfterMovementID, phase.ID)
		}
	}

	reqs := make([]entity.EvidenceRequirement, len(input.EvidenceRequirements))
	copy(reqs, input.EvidenceRequirements)
	movement := &entity.InstanceMovement{
		ID:                   uuid.NewString(),
		FlowInstanceID:       flowInstanceID,
		PhaseID:              phase.ID,
		Name:                 input.Name,
		Description:          input.Description,
		IsRequired:           input.IsRequired,
		Origin:               origin,
		EvidenceRequirements: reqs,
		CreatedAt:            time.Now(),
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		maxSeq, err := s.appendablePhaseMaxSequence(txCtx, phase.ID)
		if err != nil {
			return err
		}
		movement.Sequence = maxSeq + 1
		return s.movementRepo.Create(txCtx, movement)
	})
	if err != nil {
		s.logger.Error("Failed to insert movement",
			"error", err,
			"flow_instance_id", flowInstanceID,
			"phase_id", phase.ID,
		)
		return nil, err
	}

	s.logger.Info("Movement inserted",
		"flow_instance_id", flowInstanceID,
		"movement_id", movement.ID,
		"movement", movement.Name,
		"origin", origin.String(),
		"phase", phase.Name,
	)

	if s.dispatcher != nil {
		evt := event.NewEvent(event.TypeMovementInserted, flowInstanceID, instance.ClaimID, map[string]interface{}{
			"movement_id":   movement.ID,
			"movement_name": movement.Name,
			"origin":        origin.String(),
			"phase_id":      phase.ID,
		})
		s.dispatcher.DispatchAsync(ctx, evt)
	}

	return movement, nil
}

// currentPhase resolves the instance and its current phase, rejecting
// terminal instances
func (s *expansionServiceImpl) currentPhase(ctx context.Context, flowInstanceID string) (*entity.FlowInstance, *entity.InstancePhase, error) {
	instance, err := loadInstance(ctx, s.instanceRepo, flowInstanceID)
	if err != nil {
		return nil, nil, err
	}
	if instance.Status.IsTerminal() {
		return nil, nil, fmt.Errorf("%w: flow %s is %s", flow.ErrConflict, flowInstanceID, instance.Status)
	}

	phase, err := s.phaseRepo.GetByID(ctx, instance.CurrentPhaseID)
	if err != nil {
		return nil, nil, fmt.Errorf("get current phase: %w", err)
	}
	if phase == nil {
		return nil, nil, fmt.Errorf("%w: phase %s", flow.ErrNotFound, instance.CurrentPhaseID)
	}

	return instance, phase, nil
}

// appendablePhaseMaxSequence re-reads the phase inside the insert
// transaction and returns its max sequence. A gate passing concurrently
// seals the phase; the re-read makes that insert lose instead of
// reopening a sealed phase.
func (s *expansionServiceImpl) appendablePhaseMaxSequence(ctx context.Context, phaseID string) (int, error) {
	phase, err := s.phaseRepo.GetByID(ctx, phaseID)
	if err != nil {
		return 0, fmt.Errorf("recheck phase: %w", err)
	}
	if phase == nil || phase.Status != entity.PhaseStatusInProgress {
		return 0, fmt.Errorf("%w: phase %s already passed", flow.ErrOutOfOrder, phaseID)
	}

	maxSeq, err := s.movementRepo.MaxSequence(ctx, phaseID)
	if err != nil {
		return 0, fmt.Errorf("max sequence: %w", err)
	}
	return maxSeq, nil
}
