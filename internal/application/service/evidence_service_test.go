package service

import (
	"context"
	"errors"
	"testing"

	"github.com/verisite/fieldflow/internal/domain/entity"
	"github.com/verisite/fieldflow/internal/domain/event"
	"github.com/verisite/fieldflow/internal/domain/flow"
)

func completedMovementRepos() (*mockMovementRepo, *mockCompletionRepo) {
	movementRepo := &mockMovementRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.InstanceMovement, error) {
			return &entity.InstanceMovement{
				ID: id, FlowInstanceID: "flow-1", PhaseID: "phase-1", Name: "Document water source",
				EvidenceRequirements: []entity.EvidenceRequirement{
					{Type: entity.EvidenceTypePhoto, MinQuantity: 2, Required: true},
				},
			}, nil
		},
	}
	completionRepo := &mockCompletionRepo{
		getByMovementIDFunc: func(ctx context.Context, instanceID, movementID string) (*entity.MovementCompletion, error) {
			return &entity.MovementCompletion{
				ID: "comp-1", FlowInstanceID: instanceID, MovementID: movementID,
				Status: entity.CompletionStatusCompleted,
			}, nil
		},
	}
	return movementRepo, completionRepo
}

func TestEvidenceService_AttachEvidence(t *testing.T) {
	t.Run("attaches to completed movement", func(t *testing.T) {
		movementRepo, completionRepo := completedMovementRepos()
		var created *entity.Evidence
		evidenceRepo := &mockEvidenceRepo{
			createFunc: func(ctx context.Context, ev *entity.Evidence) error {
				created = ev
				return nil
			},
		}
		disp := &mockDispatcher{}
		service := NewEvidenceService(activeInstanceRepo(), movementRepo, completionRepo, evidenceRepo,
			&mockBlobStore{}, disp, &mockLogger{})

		record, err := service.AttachEvidence(context.Background(), "flow-1", "mov-a", EvidenceInput{
			Type:        entity.EvidenceTypePhoto,
			ReferenceID: "blob-9",
			UserID:      "adjuster-7",
		})
		if err != nil {
			t.Fatalf("AttachEvidence() error = %v", err)
		}
		if record.CompletionID != "comp-1" {
			t.Errorf("AttachEvidence() completion link = %v, want comp-1", record.CompletionID)
		}
		if created == nil || created.ReferenceID != "blob-9" {
			t.Errorf("AttachEvidence() stored = %+v, want blob-9 reference", created)
		}
		if types := disp.eventTypes(); len(types) != 1 || types[0] != event.TypeEvidenceAttached {
			t.Errorf("AttachEvidence() events = %v, want [evidence.attached]", types)
		}
	})

	t.Run("rejects evidence before completion", func(t *testing.T) {
		movementRepo, _ := completedMovementRepos()
		completionRepo := &mockCompletionRepo{} // no completion recorded
		service := NewEvidenceService(activeInstanceRepo(), movementRepo, completionRepo, &mockEvidenceRepo{},
			&mockBlobStore{}, nil, &mockLogger{})

		_, err := service.AttachEvidence(context.Background(), "flow-1", "mov-a", EvidenceInput{
			Type: entity.EvidenceTypeNote, Data: map[string]interface{}{"text": "dampness on north wall"},
		})
		if !errors.Is(err, flow.ErrNotFound) {
			t.Errorf("AttachEvidence() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("rejects unknown evidence type", func(t *testing.T) {
		service := NewEvidenceService(activeInstanceRepo(), &mockMovementRepo{}, &mockCompletionRepo{},
			&mockEvidenceRepo{}, &mockBlobStore{}, nil, &mockLogger{})

		_, err := service.AttachEvidence(context.Background(), "flow-1", "mov-a", EvidenceInput{Type: "hologram"})
		if !errors.Is(err, flow.ErrValidation) {
			t.Errorf("AttachEvidence() error = %v, want ErrValidation", err)
		}
	})

	t.Run("rejects blob type without reference", func(t *testing.T) {
		service := NewEvidenceService(activeInstanceRepo(), &mockMovementRepo{}, &mockCompletionRepo{},
			&mockEvidenceRepo{}, &mockBlobStore{}, nil, &mockLogger{})

		_, err := service.AttachEvidence(context.Background(), "flow-1", "mov-a", EvidenceInput{
			Type: entity.EvidenceTypeVoiceNote,
		})
		if !errors.Is(err, flow.ErrValidation) {
			t.Errorf("AttachEvidence() error = %v, want ErrValidation", err)
		}
	})

	t.Run("rejects unresolvable reference", func(t *testing.T) {
		blobStore := &mockBlobStore{
			existsFunc: func(ctx context.Context, referenceID string) bool { return false },
		}
		service := NewEvidenceService(activeInstanceRepo(), &mockMovementRepo{}, &mockCompletionRepo{},
			&mockEvidenceRepo{}, blobStore, nil, &mockLogger{})

		_, err := service.AttachEvidence(context.Background(), "flow-1", "mov-a", EvidenceInput{
			Type: entity.EvidenceTypePhoto, ReferenceID: "blob-gone",
		})
		if !errors.Is(err, flow.ErrValidation) {
			t.Errorf("AttachEvidence() error = %v, want ErrValidation", err)
		}
	})

	t.Run("rejects cancelled flow", func(t *testing.T) {
		movementRepo, completionRepo := completedMovementRepos()
		instanceRepo := &mockInstanceRepo{
			getByIDFunc: func(ctx context.Context, id string) (*entity.FlowInstance, error) {
				return &entity.FlowInstance{ID: id, Status: entity.InstanceStatusCancelled}, nil
			},
		}
		service := NewEvidenceService(instanceRepo, movementRepo, completionRepo, &mockEvidenceRepo{},
			&mockBlobStore{}, nil, &mockLogger{})

		_, err := service.AttachEvidence(context.Background(), "flow-1", "mov-a", EvidenceInput{
			Type: entity.EvidenceTypePhoto, ReferenceID: "blob-9",
		})
		if !errors.Is(err, flow.ErrConflict) {
			t.Errorf("AttachEvidence() error = %v, want ErrConflict", err)
		}
	})
}

func TestEvidenceService_ValidateEvidence(t *testing.T) {
	movementRepo, completionRepo := completedMovementRepos()

	tests := []struct {
		name          string
		attached      []*entity.Evidence
		wantSatisfied bool
		wantMissing   int
	}{
		{
			name:        "under minimum",
			attached:    []*entity.Evidence{{Type: entity.EvidenceTypePhoto}},
			wantMissing: 1,
		},
		{
			name: "requirement met",
			attached: []*entity.Evidence{
				{Type: entity.EvidenceTypePhoto},
				{Type: entity.EvidenceTypePhoto},
			},
			wantSatisfied: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evidenceRepo := &mockEvidenceRepo{
				getByMovementIDFunc: func(ctx context.Context, instanceID, movementID string) ([]*entity.Evidence, error) {
					return tt.attached, nil
				},
			}
			service := NewEvidenceService(activeInstanceRepo(), movementRepo, completionRepo, evidenceRepo,
				&mockBlobStore{}, nil, &mockLogger{})

			report, err := service.ValidateEvidence(context.Background(), "flow-1", "mov-a")
			if err != nil {
				t.Fatalf("ValidateEvidence() error = %v", err)
			}
			if report.Satisfied != tt.wantSatisfied {
				t.Errorf("ValidateEvidence() satisfied = %v, want %v", report.Satisfied, tt.wantSatisfied)
			}
			if len(report.Missing) != tt.wantMissing {
				t.Errorf("ValidateEvidence() missing = %d, want %d", len(report.Missing), tt.wantMissing)
			}
		})
	}
}

func TestEvidenceService_GetMovementEvidence(t *testing.T) {
	movementRepo, _ := completedMovementRepos()
	evidenceRepo := &mockEvidenceRepo{
		getByMovementIDFunc: func(ctx context.Context, instanceID, movementID string) ([]*entity.Evidence, error) {
			return []*entity.Evidence{{ID: "ev-1"}, {ID: "ev-2"}}, nil
		},
	}
	service := NewEvidenceService(activeInstanceRepo(), movementRepo, &mockCompletionRepo{}, evidenceRepo,
		&mockBlobStore{}, nil, &mockLogger{})

	evidence, err := service.GetMovementEvidence(context.Background(), "flow-1", "mov-a")
	if err != nil {
		t.Fatalf("GetMovementEvidence() error = %v", err)
	}
	if len(evidence) != 2 {
		t.Errorf("GetMovementEvidence() count = %d, want 2", len(evidence))
	}

	// Movement belonging to another flow is not addressable.
	foreignRepo := &mockMovementRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.InstanceMovement, error) {
			return &entity.InstanceMovement{ID: id, FlowInstanceID: "flow-other"}, nil
		},
	}
	service = NewEvidenceService(activeInstanceRepo(), foreignRepo, &mockCompletionRepo{}, evidenceRepo,
		&mockBlobStore{}, nil, &mockLogger{})

	_, err = service.GetMovementEvidence(context.Background(), "flow-1", "mov-a")
	if !errors.Is(err, flow.ErrNotFound) {
		t.Errorf("GetMovementEvidence() error = %v, want ErrNotFound", err)
	}
}
