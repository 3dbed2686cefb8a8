package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verisite/fieldflow/internal/application/port"
	"github.com/verisite/fieldflow/internal/domain/entity"
	"github.com/verisite/fieldflow/internal/domain/flow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DefinitionInput carries an authored flow definition template
type DefinitionInput struct {
	Name         string                 `json:"name"`
	PerilType    string                 `json:"peril_type"`
	PropertyType string                 `json:"property_type"`
	IsActive     bool                   `json:"is_active"`
	Phases       []entity.PhaseTemplate `json:"phases"`
}

// DefinitionService manages flow definition templates
type DefinitionService interface {
	CreateDefinition(ctx context.Context, input DefinitionInput) (*entity.FlowDefinition, error)
	GetDefinition(ctx context.Context, id string) (*entity.FlowDefinition, error)
	ListDefinitions(ctx context.Context, filter port.DefinitionFilter) ([]*entity.FlowDefinition, error)
	UpdateDefinition(ctx context.Context, id string, input DefinitionInput) (*entity.FlowDefinition, error)
	DeleteDefinition(ctx context.Context, id string) error
	DuplicateDefinition(ctx context.Context, id, newName string) (*entity.FlowDefinition, error)
	ToggleActive(ctx context.Context, id string, isActive bool) (*entity.FlowDefinition, error)
	ValidateDefinition(ctx context.Context, input DefinitionInput) []flow.Violation
}

type definitionServiceImpl struct {
	definitionRepo port.FlowDefinitionRepository
	instanceRepo   port.FlowInstanceRepository
	logger         Logger
}

// NewDefinitionService creates a new DefinitionService
func NewDefinitionService(
	definitionRepo port.FlowDefinitionRepository,
	instanceRepo port.FlowInstanceRepository,
	logger Logger,
) DefinitionService {
	return &definitionServiceImpl{
		definitionRepo: definitionRepo,
		instanceRepo:   instanceRepo,
		logger:         logger,
	}
}

// CreateDefinition validates and stores a new flow definition
func (s *definitionServiceImpl) CreateDefinition(ctx context.Context, input DefinitionInput) (*entity.FlowDefinition, error) {
	now := time.Now()
	def := &entity.FlowDefinition{
		ID:           uuid.NewString(),
		Name:         input.Name,
		PerilType:    input.PerilType,
		PropertyType: input.PropertyType,
		IsActive:     input.IsActive,
		Phases:       input.Phases,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if violations := flow.ValidateDefinition(def); len(violations) > 0 {
		return nil, flow.NewValidationError(violations)
	}

	if err := s.definitionRepo.Create(ctx, def); err != nil {
		s.logger.Error("Failed to create flow definition", "error", err, "name", input.Name)
		return nil, fmt.Errorf("create definition: %w", err)
	}

	s.logger.Info("Flow definition created", "id", def.ID, "name", def.Name, "peril_type", def.PerilType)
	return def, nil
}

// GetDefinition retrieves a definition by ID
func (s *definitionServiceImpl) GetDefinition(ctx context.Context, id string) (*entity.FlowDefinition, error) {
	def, err := s.definitionRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get flow definition", "error", err, "id", id)
		return nil, fmt.Errorf("get definition: %w", err)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: flow definition %s", flow.ErrNotFound, id)
	}
	return def, nil
}

// ListDefinitions retrieves definitions matching the filter
func (s *definitionServiceImpl) ListDefinitions(ctx context.Context, filter port.DefinitionFilter) ([]*entity.FlowDefinition, error) {
	defs, err := s.definitionRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list flow definitions", "error", err)
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	return defs, nil
}

// UpdateDefinition validates and rewrites a definition template. Running
// instances keep their snapshot and are unaffected.
func (s *definitionServiceImpl) UpdateDefinition(ctx context.Context, id string, input DefinitionInput) (*entity.FlowDefinition, error) {
	def, err := s.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}

	def.Name = input.Name
	def.PerilType = input.PerilType
	def.PropertyType = input.PropertyType
	def.IsActive = input.IsActive
	def.Phases = input.Phases
	def.UpdatedAt = time.Now()

	if violations := flow.ValidateDefinition(def); len(violations) > 0 {
		return nil, flow.NewValidationError(violations)
	}

	if err := s.definitionRepo.Update(ctx, def); err != nil {
		s.logger.Error("Failed to update flow definition", "error", err, "id", id)
		return nil, fmt.Errorf("update definition: %w", err)
	}

	s.logger.Info("Flow definition updated", "id", id, "name", def.Name)
	return def, nil
}

// DeleteDefinition removes a definition unless active instances reference it
func (s *definitionServiceImpl) DeleteDefinition(ctx context.Context, id string) error {
	if _, err := s.GetDefinition(ctx, id); err != nil {
		return err
	}

	active, err := s.instanceRepo.CountActiveByDefinitionID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to count active instances", "error", err, "definition_id", id)
		return fmt.Errorf("count active instances: %w", err)
	}
	if active > 0 {
		return fmt.Errorf("%w: %d active flow(s) reference definition %s", flow.ErrConflict, active, id)
	}

	if err := s.definitionRepo.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete flow definition", "error", err, "id", id)
		return fmt.Errorf("delete definition: %w", err)
	}

	s.logger.Info("Flow definition deleted", "id", id)
	return nil
}

// DuplicateDefinition copies a definition under a new ID, inactive by default
func (s *definitionServiceImpl) DuplicateDefinition(ctx context.Context, id, newName string) (*entity.FlowDefinition, error) {
	src, err := s.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}

	if newName == "" {
		newName = src.Name + " (copy)"
	}

	now := time.Now()
	copied := &entity.FlowDefinition{
		ID:           uuid.NewString(),
		Name:         newName,
		PerilType:    src.PerilType,
		PropertyType: src.PropertyType,
		IsActive:     false,
		Phases:       clonePhases(src.Phases),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.definitionRepo.Create(ctx, copied); err != nil {
		s.logger.Error("Failed to duplicate flow definition", "error", err, "source_id", id)
		return nil, fmt.Errorf("duplicate definition: %w", err)
	}

	s.logger.Info("Flow definition duplicated", "source_id", id, "id", copied.ID, "name", newName)
	return copied, nil
}

// ToggleActive flips the active flag of a definition
func (s *definitionServiceImpl) ToggleActive(ctx context.Context, id string, isActive bool) (*entity.FlowDefinition, error) {
	def, err := s.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}

	def.IsActive = isActive
	def.UpdatedAt = time.Now()

	if err := s.definitionRepo.Update(ctx, def); err != nil {
		s.logger.Error("Failed to toggle flow definition", "error", err, "id", id)
		return nil, fmt.Errorf("toggle definition: %w", err)
	}

	s.logger.Info("Flow definition toggled", "id", id, "is_active", isActive)
	return def, nil
}

// ValidateDefinition reports every structural problem in the given template
func (s *definitionServiceImpl) ValidateDefinition(ctx context.Context, input DefinitionInput) []flow.Violation {
	def := &entity.FlowDefinition{
		Name:         input.Name,
		PerilType:    input.PerilType,
		PropertyType: input.PropertyType,
		Phases:       input.Phases,
	}
	return flow.ValidateDefinition(def)
}

// clonePhases deep-copies a phase graph so the duplicate shares no slices
// with its source
func clonePhases(phases []entity.PhaseTemplate) []entity.PhaseTemplate {
	cloned := make([]entity.PhaseTemplate, len(phases))
	for i, phase := range phases {
		cloned[i] = phase
		cloned[i].Movements = make([]entity.MovementTemplate, len(phase.Movements))
		for j, movement := range phase.Movements {
			cloned[i].Movements[j] = movement
			if movement.EvidenceRequirements != nil {
				reqs := make([]entity.EvidenceRequirement, len(movement.EvidenceRequirements))
				copy(reqs, movement.EvidenceRequirements)
				cloned[i].Movements[j].EvidenceRequirements = reqs
			}
		}
	}
	return cloned
}
