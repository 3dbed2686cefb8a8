package port

import (
	"context"

	"github.com/verisite/fieldflow/internal/domain/entity"
)

// TimelineExport carries everything the report renderer needs, assembled
// by the report service so the renderer stays free of repository access
type TimelineExport struct {
	Instance       *entity.FlowInstance
	DefinitionName string
	PerilType      string
	Phases         []*entity.InstancePhase
	Movements      []*entity.InstanceMovement
	Completions    []*entity.MovementCompletion
	Evidence       []*entity.Evidence
	// EvidenceURLs maps evidence id to its resolved blob URL, empty for
	// inline payload types.
	EvidenceURLs map[string]string
}

// TimelineExporter renders an instance timeline into a report file and
// returns the written path
type TimelineExporter interface {
	Export(ctx context.Context, export *TimelineExport) (string, error)
}
