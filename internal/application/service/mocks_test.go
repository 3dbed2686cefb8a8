package service

import (
	"context"
	"time"

	"github.com/verisite/fieldflow/internal/application/dispatcher"
	"github.com/verisite/fieldflow/internal/application/port"
	"github.com/verisite/fieldflow/internal/domain/entity"
	"github.com/verisite/fieldflow/internal/domain/event"
)

// Mock repositories shared by the service tests. Defaults lean toward the
// happy path; tests override the funcs they care about.

type mockDefinitionRepo struct {
	createFunc               func(ctx context.Context, def *entity.FlowDefinition) error
	getByIDFunc              func(ctx context.Context, id string) (*entity.FlowDefinition, error)
	getActiveByPerilTypeFunc func(ctx context.Context, perilType string) (*entity.FlowDefinition, error)
	listFunc                 func(ctx context.Context, filter port.DefinitionFilter) ([]*entity.FlowDefinition, error)
	updateFunc               func(ctx context.Context, def *entity.FlowDefinition) error
	deleteFunc               func(ctx context.Context, id string) error
}

func (m *mockDefinitionRepo) Create(ctx context.Context, def *entity.FlowDefinition) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, def)
	}
	return nil
}

func (m *mockDefinitionRepo) GetByID(ctx context.Context, id string) (*entity.FlowDefinition, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockDefinitionRepo) GetActiveByPerilType(ctx context.Context, perilType string) (*entity.FlowDefinition, error) {
	if m.getActiveByPerilTypeFunc != nil {
		return m.getActiveByPerilTypeFunc(ctx, perilType)
	}
	return nil, nil
}

func (m *mockDefinitionRepo) List(ctx context.Context, filter port.DefinitionFilter) ([]*entity.FlowDefinition, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, filter)
	}
	return []*entity.FlowDefinition{}, nil
}

func (m *mockDefinitionRepo) Update(ctx context.Context, def *entity.FlowDefinition) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, def)
	}
	return nil
}

func (m *mockDefinitionRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

type mockInstanceRepo struct {
	createFunc                  func(ctx context.Context, instance *entity.FlowInstance) error
	getByIDFunc                 func(ctx context.Context, id string) (*entity.FlowInstance, error)
	getActiveByClaimIDFunc      func(ctx context.Context, claimID string) (*entity.FlowInstance, error)
	countActiveByDefinitionFunc func(ctx context.Context, definitionID string) (int, error)
	advancePhaseFunc            func(ctx context.Context, id string, fromIndex int, toPhaseID string, at time.Time) (bool, error)
	completeFunc                func(ctx context.Context, id string, at time.Time) (bool, error)
	cancelFunc                  func(ctx context.Context, id string, at time.Time) (bool, error)
}

func (m *mockInstanceRepo) Create(ctx context.Context, instance *entity.FlowInstance) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, instance)
	}
	return nil
}

func (m *mockInstanceRepo) GetByID(ctx context.Context, id string) (*entity.FlowInstance, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &entity.FlowInstance{ID: id, ClaimID: "claim-1", Status: entity.InstanceStatusActive}, nil
}

func (m *mockInstanceRepo) GetActiveByClaimID(ctx context.Context, claimID string) (*entity.FlowInstance, error) {
	if m.getActiveByClaimIDFunc != nil {
		return m.getActiveByClaimIDFunc(ctx, claimID)
	}
	return nil, nil
}

func (m *mockInstanceRepo) CountActiveByDefinitionID(ctx context.Context, definitionID string) (int, error) {
	if m.countActiveByDefinitionFunc != nil {
		return m.countActiveByDefinitionFunc(ctx, definitionID)
	}
	return 0, nil
}

func (m *mockInstanceRepo) AdvancePhase(ctx context.Context, id string, fromIndex int, toPhaseID string, at time.Time) (bool, error) {
	if m.advancePhaseFunc != nil {
		return m.advancePhaseFunc(ctx, id, fromIndex, toPhaseID, at)
	}
	return true, nil
}

func (m *mockInstanceRepo) Complete(ctx context.Context, id string, at time.Time) (bool, error) {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, id, at)
	}
	return true, nil
}

func (m *mockInstanceRepo) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	if m.cancelFunc != nil {
		return m.cancelFunc(ctx, id, at)
	}
	return true, nil
}

type mockPhaseRepo struct {
	createBatchFunc           func(ctx context.Context, phases []*entity.InstancePhase) error
	getByIDFunc               func(ctx context.Context, id string) (*entity.InstancePhase, error)
	getByGateIDFunc           func(ctx context.Context, gateID string) (*entity.InstancePhase, error)
	getByInstanceIDFunc       func(ctx context.Context, instanceID string) ([]*entity.InstancePhase, error)
	getByInstanceAndIndexFunc func(ctx context.Context, instanceID string, index int) (*entity.InstancePhase, error)
	sealFunc                  func(ctx context.Context, id string, at time.Time) (bool, error)
}

func (m *mockPhaseRepo) CreateBatch(ctx context.Context, phases []*entity.InstancePhase) error {
	if m.createBatchFunc != nil {
		return m.createBatchFunc(ctx, phases)
	}
	return nil
}

func (m *mockPhaseRepo) GetByID(ctx context.Context, id string) (*entity.InstancePhase, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockPhaseRepo) GetByGateID(ctx context.Context, gateID string) (*entity.InstancePhase, error) {
	if m.getByGateIDFunc != nil {
		return m.getByGateIDFunc(ctx, gateID)
	}
	return nil, nil
}

func (m *mockPhaseRepo) GetByInstanceID(ctx context.Context, instanceID string) ([]*entity.InstancePhase, error) {
	if m.getByInstanceIDFunc != nil {
		return m.getByInstanceIDFunc(ctx, instanceID)
	}
	return []*entity.InstancePhase{}, nil
}

func (m *mockPhaseRepo) GetByInstanceAndIndex(ctx context.Context, instanceID string, index int) (*entity.InstancePhase, error) {
	if m.getByInstanceAndIndexFunc != nil {
		return m.getByInstanceAndIndexFunc(ctx, instanceID, index)
	}
	return nil, nil
}

func (m *mockPhaseRepo) Seal(ctx context.Context, id string, at time.Time) (bool, error) {
	if m.sealFunc != nil {
		return m.sealFunc(ctx, id, at)
	}
	return true, nil
}

type mockMovementRepo struct {
	createFunc            func(ctx context.Context, movement *entity.InstanceMovement) error
	createBatchFunc       func(ctx context.Context, movements []*entity.InstanceMovement) error
	getByIDFunc           func(ctx context.Context, id string) (*entity.InstanceMovement, error)
	getByPhaseIDFunc      func(ctx context.Context, phaseID string) ([]*entity.InstanceMovement, error)
	getByInstanceIDFunc   func(ctx context.Context, instanceID string) ([]*entity.InstanceMovement, error)
	countByInstanceIDFunc func(ctx context.Context, instanceID string) (int, error)
	maxSequenceFunc       func(ctx context.Context, phaseID string) (int, error)
}

func (m *mockMovementRepo) Create(ctx context.Context, movement *entity.InstanceMovement) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, movement)
	}
	return nil
}

func (m *mockMovementRepo) CreateBatch(ctx context.Context, movements []*entity.InstanceMovement) error {
	if m.createBatchFunc != nil {
		return m.createBatchFunc(ctx, movements)
	}
	return nil
}

func (m *mockMovementRepo) GetByID(ctx context.Context, id string) (*entity.InstanceMovement, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockMovementRepo) GetByPhaseID(ctx context.Context, phaseID string) ([]*entity.InstanceMovement, error) {
	if m.getByPhaseIDFunc != nil {
		return m.getByPhaseIDFunc(ctx, phaseID)
	}
	return []*entity.InstanceMovement{}, nil
}

func (m *mockMovementRepo) GetByInstanceID(ctx context.Context, instanceID string) ([]*entity.InstanceMovement, error) {
	if m.getByInstanceIDFunc != nil {
		return m.getByInstanceIDFunc(ctx, instanceID)
	}
	return []*entity.InstanceMovement{}, nil
}

func (m *mockMovementRepo) CountByInstanceID(ctx context.Context, instanceID string) (int, error) {
	if m.countByInstanceIDFunc != nil {
		return m.countByInstanceIDFunc(ctx, instanceID)
	}
	return 0, nil
}

func (m *mockMovementRepo) MaxSequence(ctx context.Context, phaseID string) (int, error) {
	if m.maxSequenceFunc != nil {
		return m.maxSequenceFunc(ctx, phaseID)
	}
	return 0, nil
}

type mockCompletionRepo struct {
	insertIfAbsentFunc  func(ctx context.Context, completion *entity.MovementCompletion) (bool, error)
	getByMovementIDFunc func(ctx context.Context, instanceID, movementID string) (*entity.MovementCompletion, error)
	getByInstanceIDFunc func(ctx context.Context, instanceID string) ([]*entity.MovementCompletion, error)
	countByStatusFunc   func(ctx context.Context, instanceID string) (map[entity.CompletionStatus]int, error)
}

func (m *mockCompletionRepo) InsertIfAbsent(ctx context.Context, completion *entity.MovementCompletion) (bool, error) {
	if m.insertIfAbsentFunc != nil {
		return m.insertIfAbsentFunc(ctx, completion)
	}
	return true, nil
}

func (m *mockCompletionRepo) GetByMovementID(ctx context.Context, instanceID, movementID string) (*entity.MovementCompletion, error) {
	if m.getByMovementIDFunc != nil {
		return m.getByMovementIDFunc(ctx, instanceID, movementID)
	}
	return nil, nil
}

func (m *mockCompletionRepo) GetByInstanceID(ctx context.Context, instanceID string) ([]*entity.MovementCompletion, error) {
	if m.getByInstanceIDFunc != nil {
		return m.getByInstanceIDFunc(ctx, instanceID)
	}
	return []*entity.MovementCompletion{}, nil
}

func (m *mockCompletionRepo) CountByStatus(ctx context.Context, instanceID string) (map[entity.CompletionStatus]int, error) {
	if m.countByStatusFunc != nil {
		return m.countByStatusFunc(ctx, instanceID)
	}
	return map[entity.CompletionStatus]int{}, nil
}

type mockEvidenceRepo struct {
	createFunc          func(ctx context.Context, evidence *entity.Evidence) error
	getByMovementIDFunc func(ctx context.Context, instanceID, movementID string) ([]*entity.Evidence, error)
	getByInstanceIDFunc func(ctx context.Context, instanceID string) ([]*entity.Evidence, error)
}

func (m *mockEvidenceRepo) Create(ctx context.Context, evidence *entity.Evidence) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, evidence)
	}
	return nil
}

func (m *mockEvidenceRepo) GetByMovementID(ctx context.Context, instanceID, movementID string) ([]*entity.Evidence, error) {
	if m.getByMovementIDFunc != nil {
		return m.getByMovementIDFunc(ctx, instanceID, movementID)
	}
	return []*entity.Evidence{}, nil
}

func (m *mockEvidenceRepo) GetByInstanceID(ctx context.Context, instanceID string) ([]*entity.Evidence, error) {
	if m.getByInstanceIDFunc != nil {
		return m.getByInstanceIDFunc(ctx, instanceID)
	}
	return []*entity.Evidence{}, nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockBlobStore struct {
	resolveFunc func(ctx context.Context, referenceID string) (*port.BlobHandle, error)
	existsFunc  func(ctx context.Context, referenceID string) bool
}

func (m *mockBlobStore) Resolve(ctx context.Context, referenceID string) (*port.BlobHandle, error) {
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, referenceID)
	}
	return &port.BlobHandle{ReferenceID: referenceID, URL: "blob://" + referenceID}, nil
}

func (m *mockBlobStore) Exists(ctx context.Context, referenceID string) bool {
	if m.existsFunc != nil {
		return m.existsFunc(ctx, referenceID)
	}
	return true
}

type mockSuggester struct {
	suggestFunc func(ctx context.Context, sc port.SuggestionContext) ([]port.MovementCandidate, error)
}

func (m *mockSuggester) SuggestMovements(ctx context.Context, sc port.SuggestionContext) ([]port.MovementCandidate, error) {
	if m.suggestFunc != nil {
		return m.suggestFunc(ctx, sc)
	}
	return []port.MovementCandidate{}, nil
}

type mockAdvancer struct {
	advancePhaseFunc func(ctx context.Context, flowInstanceID, phaseID string) (*AdvanceResult, error)
}

func (m *mockAdvancer) AdvancePhase(ctx context.Context, flowInstanceID, phaseID string) (*AdvanceResult, error) {
	if m.advancePhaseFunc != nil {
		return m.advancePhaseFunc(ctx, flowInstanceID, phaseID)
	}
	return &AdvanceResult{FlowComplete: true}, nil
}

type mockExporter struct {
	exportFunc func(ctx context.Context, export *port.TimelineExport) (string, error)
}

func (m *mockExporter) Export(ctx context.Context, export *port.TimelineExport) (string, error) {
	if m.exportFunc != nil {
		return m.exportFunc(ctx, export)
	}
	return "reports/timeline.xlsx", nil
}

// mockDispatcher records dispatched events in order. Services dispatch
// from the calling goroutine, so no locking is needed here.
type mockDispatcher struct {
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
}

func (m *mockDispatcher) SubscribeAll(name string, handler dispatcher.Handler) {}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.events = append(m.events, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo { return nil }

func (m *mockDispatcher) Close() error { return nil }

func (m *mockDispatcher) eventTypes() []event.Type {
	types := make([]event.Type, 0, len(m.events))
	for _, evt := range m.events {
		types = append(types, evt.Type)
	}
	return types
}
