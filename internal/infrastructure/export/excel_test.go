package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/verisite/fieldflow/internal/application/port"
	"github.com/verisite/fieldflow/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func timelineFixture() *port.TimelineExport {
	started := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	finished := started.Add(26 * time.Hour)

	return &port.TimelineExport{
		Instance: &entity.FlowInstance{
			ID:                "inst-1",
			ClaimID:           "CLM-2026-0042",
			FlowDefinitionID:  "def-1",
			Status:            entity.InstanceStatusCompleted,
			CurrentPhaseIndex: 1,
			StartedAt:         started,
			CompletedAt:       &finished,
		},
		DefinitionName: "Residential Water Damage",
		PerilType:      "water_damage",
		Phases: []*entity.InstancePhase{
			{ID: "phase-1", FlowInstanceID: "inst-1", PhaseIndex: 0, Name: "Exterior", Status: entity.PhaseStatusPassed},
			{ID: "phase-2", FlowInstanceID: "inst-1", PhaseIndex: 1, Name: "Interior", Status: entity.PhaseStatusInProgress},
		},
		// Deliberately out of order; the sheet sorts by phase then sequence.
		Movements: []*entity.InstanceMovement{
			{ID: "mov-3", FlowInstanceID: "inst-1", PhaseID: "phase-2", Name: "Photograph standing water", Origin: entity.OriginRoomDerived, RoomName: "Basement", Sequence: 1, IsRequired: true},
			{ID: "mov-1", FlowInstanceID: "inst-1", PhaseID: "phase-1", Name: "Photograph property front", Origin: entity.OriginTemplate, Sequence: 1, IsRequired: true},
			{ID: "mov-2", FlowInstanceID: "inst-1", PhaseID: "phase-1", Name: "Note roof condition", Origin: entity.OriginTemplate, Sequence: 2},
		},
		Completions: []*entity.MovementCompletion{
			{ID: "comp-1", FlowInstanceID: "inst-1", MovementID: "mov-1", UserID: "adjuster-7", Status: entity.CompletionStatusCompleted, Notes: "clear access", CompletedAt: started.Add(time.Hour)},
			{ID: "comp-2", FlowInstanceID: "inst-1", MovementID: "mov-2", UserID: "adjuster-7", Status: entity.CompletionStatusSkipped, SkipReason: "roof visible from ground", CompletedAt: started.Add(2 * time.Hour)},
		},
		Evidence: []*entity.Evidence{
			{ID: "ev-1", FlowInstanceID: "inst-1", MovementID: "mov-1", CompletionID: "comp-1", Type: entity.EvidenceTypePhoto, ReferenceID: "blob-1", UserID: "adjuster-7", CreatedAt: started.Add(time.Hour)},
			{ID: "ev-2", FlowInstanceID: "inst-1", MovementID: "mov-1", CompletionID: "comp-1", Type: entity.EvidenceTypeNote, Notes: "two courses of siding stained", UserID: "adjuster-7", CreatedAt: started.Add(time.Hour)},
		},
		EvidenceURLs: map[string]string{"ev-1": "/evidence/blob-1"},
	}
}

func TestExcelTimelineExporter_Export(t *testing.T) {
	dir := t.TempDir()
	exporter := NewExcelTimelineExporter(dir, zap.NewNop())

	path, err := exporter.Export(context.Background(), timelineFixture())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "timeline_CLM-2026-0042_inst-1.xlsx"), path)

	_, err = os.Stat(path)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	t.Run("summary sheet", func(t *testing.T) {
		cell := func(ref string) string {
			v, err := f.GetCellValue("Summary", ref)
			require.NoError(t, err)
			return v
		}
		assert.Equal(t, "Claim", cell("A1"))
		assert.Equal(t, "CLM-2026-0042", cell("B1"))
		assert.Equal(t, "Residential Water Damage", cell("B3"))
		assert.Equal(t, "water_damage", cell("B4"))
		assert.Equal(t, "completed", cell("B5"))
		assert.Equal(t, "2", cell("B7"), "phase count")
		assert.Equal(t, "3", cell("B8"), "movement count")
		assert.Equal(t, "1", cell("B9"), "completed count")
		assert.Equal(t, "1", cell("B10"), "skipped count")
		assert.Equal(t, "Finished", cell("A12"))
	})

	t.Run("timeline sheet orders by phase and sequence", func(t *testing.T) {
		cell := func(ref string) string {
			v, err := f.GetCellValue("Timeline", ref)
			require.NoError(t, err)
			return v
		}
		assert.Equal(t, "Movement", cell("B1"))
		assert.Equal(t, "Photograph property front", cell("B2"))
		assert.Equal(t, "Note roof condition", cell("B3"))
		assert.Equal(t, "Photograph standing water", cell("B4"))

		assert.Equal(t, "1. Exterior", cell("A2"))
		assert.Equal(t, "2. Interior", cell("A4"))
		assert.Equal(t, "Basement", cell("D4"))
		assert.Equal(t, "completed", cell("F2"))
		assert.Equal(t, "skipped", cell("F3"))
		assert.Equal(t, "pending", cell("F4"))
		assert.Equal(t, "roof visible from ground", cell("I3"), "skip reason lands in notes")
		assert.Equal(t, "", cell("H4"), "pending movements have no acted-at")
	})

	t.Run("evidence sheet resolves blob URLs", func(t *testing.T) {
		cell := func(ref string) string {
			v, err := f.GetCellValue("Evidence", ref)
			require.NoError(t, err)
			return v
		}
		assert.Equal(t, "Photograph property front", cell("A2"))
		assert.Equal(t, "photo", cell("B2"))
		assert.Equal(t, "blob-1", cell("C2"))
		assert.Equal(t, "/evidence/blob-1", cell("D2"))
		assert.Equal(t, "note", cell("B3"))
		assert.Equal(t, "", cell("D3"), "inline evidence has no URL")
		assert.Equal(t, "two courses of siding stained", cell("G3"))
	})
}

func TestExcelTimelineExporter_SanitizesFilename(t *testing.T) {
	dir := t.TempDir()
	exporter := NewExcelTimelineExporter(dir, zap.NewNop())

	export := timelineFixture()
	export.Instance.ClaimID = "CLM 2026/0042"

	path, err := exporter.Export(context.Background(), export)
	require.NoError(t, err)
	assert.Equal(t, "timeline_CLM20260042_inst-1.xlsx", filepath.Base(path))
}

func TestExcelTimelineExporter_CreatesReportsDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")
	exporter := NewExcelTimelineExporter(dir, zap.NewNop())

	path, err := exporter.Export(context.Background(), timelineFixture())
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.FileExists(t, path)
}
