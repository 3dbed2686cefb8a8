package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/verisite/fieldflow/internal/application/port"
	"github.com/verisite/fieldflow/internal/domain/entity"
	"github.com/verisite/fieldflow/pkg/utils"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const timeLayout = "2006-01-02 15:04"

// ExcelTimelineExporter renders an inspection timeline into an xlsx
// workbook for claim-file handoff
type ExcelTimelineExporter struct {
	reportsDir string
	logger     *zap.Logger
}

// NewExcelTimelineExporter creates an exporter writing under reportsDir
func NewExcelTimelineExporter(reportsDir string, logger *zap.Logger) *ExcelTimelineExporter {
	return &ExcelTimelineExporter{
		reportsDir: reportsDir,
		logger:     logger,
	}
}

// Export writes the workbook and returns the written path. The workbook
// has three sheets: Summary, Timeline (one row per movement), Evidence.
func (e *ExcelTimelineExporter) Export(ctx context.Context, export *port.TimelineExport) (string, error) {
	instance := export.Instance
	e.logger.Info("Exporting inspection timeline",
		zap.String("flow_instance_id", instance.ID),
		zap.String("claim_id", instance.ClaimID))

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return "", fmt.Errorf("failed to create summary sheet: %w", err)
	}
	e.fillSummary(f, export)

	if _, err := f.NewSheet("Timeline"); err != nil {
		return "", fmt.Errorf("failed to create timeline sheet: %w", err)
	}
	e.fillTimeline(f, export)

	if _, err := f.NewSheet("Evidence"); err != nil {
		return "", fmt.Errorf("failed to create evidence sheet: %w", err)
	}
	e.fillEvidence(f, export)

	if err := os.MkdirAll(e.reportsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	filename := fmt.Sprintf("timeline_%s_%s.xlsx",
		utils.SanitizeName(instance.ClaimID),
		utils.SanitizeName(instance.ID))
	outputPath := filepath.Join(e.reportsDir, filename)

	if err := f.SaveAs(outputPath); err != nil {
		return "", fmt.Errorf("failed to save Excel file: %w", err)
	}

	e.logger.Info("Timeline exported successfully",
		zap.String("flow_instance_id", instance.ID),
		zap.String("output_path", outputPath))

	return outputPath, nil
}

// fillSummary writes the instance overview
func (e *ExcelTimelineExporter) fillSummary(f *excelize.File, export *port.TimelineExport) {
	instance := export.Instance

	completed, skipped := 0, 0
	for _, c := range export.Completions {
		switch c.Status {
		case entity.CompletionStatusCompleted:
			completed++
		case entity.CompletionStatusSkipped:
			skipped++
		}
	}

	rows := [][2]interface{}{
		{"Claim", instance.ClaimID},
		{"Flow Instance", instance.ID},
		{"Definition", export.DefinitionName},
		{"Peril", export.PerilType},
		{"Status", string(instance.Status)},
		{"Started", instance.StartedAt.Format(timeLayout)},
		{"Phases", len(export.Phases)},
		{"Movements", len(export.Movements)},
		{"Completed", completed},
		{"Skipped", skipped},
		{"Evidence Items", len(export.Evidence)},
	}
	if instance.CompletedAt != nil {
		rows = append(rows, [2]interface{}{"Finished", instance.CompletedAt.Format(timeLayout)})
	}
	if instance.CancelledAt != nil {
		rows = append(rows, [2]interface{}{"Cancelled", instance.CancelledAt.Format(timeLayout)})
	}

	for i, row := range rows {
		e.setCell(f, "Summary", fmt.Sprintf("A%d", i+1), row[0])
		e.setCell(f, "Summary", fmt.Sprintf("B%d", i+1), row[1])
	}

	e.setColWidth(f, "Summary", "A", "A", 18)
	e.setColWidth(f, "Summary", "B", "B", 40)
}

// fillTimeline writes one row per movement in phase and sequence order
func (e *ExcelTimelineExporter) fillTimeline(f *excelize.File, export *port.TimelineExport) {
	headers := []string{"Phase", "Movement", "Origin", "Room", "Required", "Status", "Acted By", "Acted At", "Notes"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		e.setCell(f, "Timeline", cell, h)
	}

	phaseByID := make(map[string]*entity.InstancePhase, len(export.Phases))
	for _, p := range export.Phases {
		phaseByID[p.ID] = p
	}
	completionByMovement := make(map[string]*entity.MovementCompletion, len(export.Completions))
	for _, c := range export.Completions {
		completionByMovement[c.MovementID] = c
	}

	movements := make([]*entity.InstanceMovement, len(export.Movements))
	copy(movements, export.Movements)
	sort.Slice(movements, func(i, j int) bool {
		pi, pj := phaseByID[movements[i].PhaseID], phaseByID[movements[j].PhaseID]
		if pi != nil && pj != nil && pi.PhaseIndex != pj.PhaseIndex {
			return pi.PhaseIndex < pj.PhaseIndex
		}
		return movements[i].Sequence < movements[j].Sequence
	})

	for i, m := range movements {
		row := i + 2

		phaseName := ""
		if p := phaseByID[m.PhaseID]; p != nil {
			phaseName = fmt.Sprintf("%d. %s", p.PhaseIndex+1, p.Name)
		}

		status, actedBy, notes := "pending", "", ""
		var actedAt time.Time
		if c := completionByMovement[m.ID]; c != nil {
			status = string(c.Status)
			actedBy = c.UserID
			actedAt = c.CompletedAt
			notes = c.Notes
			if c.Status == entity.CompletionStatusSkipped {
				notes = c.SkipReason
			}
		}

		required := "no"
		if m.IsRequired {
			required = "yes"
		}

		values := []interface{}{phaseName, m.Name, string(m.Origin), m.RoomName, required, status, actedBy, "", notes}
		if !actedAt.IsZero() {
			values[7] = actedAt.Format(timeLayout)
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			e.setCell(f, "Timeline", cell, v)
		}
	}

	e.setColWidth(f, "Timeline", "A", "B", 30)
	e.setColWidth(f, "Timeline", "C", "H", 16)
	e.setColWidth(f, "Timeline", "I", "I", 40)
}

// fillEvidence writes one row per evidence record
func (e *ExcelTimelineExporter) fillEvidence(f *excelize.File, export *port.TimelineExport) {
	headers := []string{"Movement", "Type", "Reference", "URL", "Attached By", "Attached At", "Notes"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		e.setCell(f, "Evidence", cell, h)
	}

	movementName := make(map[string]string, len(export.Movements))
	for _, m := range export.Movements {
		movementName[m.ID] = m.Name
	}

	for i, ev := range export.Evidence {
		row := i + 2
		values := []interface{}{
			movementName[ev.MovementID],
			string(ev.Type),
			ev.ReferenceID,
			export.EvidenceURLs[ev.ID],
			ev.UserID,
			ev.CreatedAt.Format(timeLayout),
			ev.Notes,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			e.setCell(f, "Evidence", cell, v)
		}
	}

	e.setColWidth(f, "Evidence", "A", "A", 30)
	e.setColWidth(f, "Evidence", "B", "G", 20)
}

// setCell sets a cell value, logging failures instead of aborting the export
func (e *ExcelTimelineExporter) setCell(f *excelize.File, sheet, cell string, value interface{}) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		e.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func (e *ExcelTimelineExporter) setColWidth(f *excelize.File, sheet, start, end string, width float64) {
	if err := f.SetColWidth(sheet, start, end, width); err != nil {
		e.logger.Warn("Failed to set column width",
			zap.String("sheet", sheet),
			zap.Error(err))
	}
}
