package service

import (
	"context"
	"fmt"

	"github.com/verisite/fieldflow/internal/application/port"
	"github.com/verisite/fieldflow/internal/domain/entity"
)

// ReportService renders inspection timelines into shareable report files
type ReportService interface {
	// ExportTimeline writes the full history of a flow instance to a
	// report file and returns the written path. Works for flows in any
	// state, including cancelled ones.
	ExportTimeline(ctx context.Context, flowInstanceID string) (string, error)
}

type reportServiceImpl struct {
	definitionRepo port.FlowDefinitionRepository
	instanceRepo   port.FlowInstanceRepository
	phaseRepo      port.InstancePhaseRepository
	movementRepo   port.InstanceMovementRepository
	completionRepo port.CompletionRepository
	evidenceRepo   port.EvidenceRepository
	blobStore      port.BlobStore
	exporter       port.TimelineExporter
	logger         Logger
}

// NewReportService creates a new ReportService
func NewReportService(
	definitionRepo port.FlowDefinitionRepository,
	instanceRepo port.FlowInstanceRepository,
	phaseRepo port.InstancePhaseRepository,
	movementRepo port.InstanceMovementRepository,
	completionRepo port.CompletionRepository,
	evidenceRepo port.EvidenceRepository,
	blobStore port.BlobStore,
	exporter port.TimelineExporter,
	logger Logger,
) ReportService {
	return &reportServiceImpl{
		definitionRepo: definitionRepo,
		instanceRepo:   instanceRepo,
		phaseRepo:      phaseRepo,
		movementRepo:   movementRepo,
		completionRepo: completionRepo,
		evidenceRepo:   evidenceRepo,
		blobStore:      blobStore,
		exporter:       exporter,
		logger:         logger,
	}
}

func (s *reportServiceImpl) ExportTimeline(ctx context.Context, flowInstanceID string) (string, error) {
	instance, err := loadInstance(ctx, s.instanceRepo, flowInstanceID)
	if err != nil {
		return "", err
	}

	export := &port.TimelineExport{Instance: instance}

	def, err := s.definitionRepo.GetByID(ctx, instance.FlowDefinitionID)
	if err != nil {
		return "", fmt.Errorf("get definition: %w", err)
	}
	if def != nil {
		export.DefinitionName = def.Name
		export.PerilType = def.PerilType
	}

	if export.Phases, err = s.phaseRepo.GetByInstanceID(ctx, flowInstanceID); err != nil {
		return "", fmt.Errorf("get phases: %w", err)
	}
	if export.Movements, err = s.movementRepo.GetByInstanceID(ctx, flowInstanceID); err != nil {
		return "", fmt.Errorf("get movements: %w", err)
	}
	if export.Completions, err = s.completionRepo.GetByInstanceID(ctx, flowInstanceID); err != nil {
		return "", fmt.Errorf("get completions: %w", err)
	}
	if export.Evidence, err = s.evidenceRepo.GetByInstanceID(ctx, flowInstanceID); err != nil {
		return "", fmt.Errorf("get evidence: %w", err)
	}

	export.EvidenceURLs = s.resolveBlobURLs(ctx, export.Evidence)

	path, err := s.exporter.Export(ctx, export)
	if err != nil {
		s.logger.Error("Failed to export timeline",
			"error", err,
			"flow_instance_id", flowInstanceID,
		)
		return "", fmt.Errorf("export timeline: %w", err)
	}

	s.logger.Info("Timeline exported",
		"flow_instance_id", flowInstanceID,
		"claim_id", instance.ClaimID,
		"path", path,
	)
	return path, nil
}

// resolveBlobURLs maps evidence ids to blob URLs. A reference that no
// longer resolves leaves a gap in the report rather than failing the
// whole export.
func (s *reportServiceImpl) resolveBlobURLs(ctx context.Context, evidence []*entity.Evidence) map[string]string {
	urls := make(map[string]string)
	for _, ev := range evidence {
		if !ev.Type.RequiresBlob() || ev.ReferenceID == "" {
			continue
		}
		handle, err := s.blobStore.Resolve(ctx, ev.ReferenceID)
		if err != nil {
			s.logger.Error("Failed to resolve evidence blob",
				"error", err,
				"evidence_id", ev.ID,
				"reference_id", ev.ReferenceID,
			)
			continue
		}
		urls[ev.ID] = handle.URL
	}
	return urls
}
