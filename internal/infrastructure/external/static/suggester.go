package static

import (
	"context"
	"strings"

	"github.com/verisite/fieldflow/internal/application/port"
	"go.uber.org/zap"
)

// Suggester is a rule-of-thumb movement suggester used when no AI backend
// is configured. Candidates come from a fixed per-peril checklist of steps
// adjusters commonly miss.
type Suggester struct {
	maxCandidates int
	logger        *zap.Logger
}

// NewSuggester creates the static suggester
func NewSuggester(maxCandidates int, logger *zap.Logger) *Suggester {
	if maxCandidates <= 0 {
		maxCandidates = 5
	}
	return &Suggester{
		maxCandidates: maxCandidates,
		logger:        logger,
	}
}

var perilChecklists = map[string][]port.MovementCandidate{
	"water_damage": {
		{Name: "Locate and photograph water source", Description: "Identify the origin of the water and document it before mitigation alters the scene", Reason: "Source identification drives coverage decisions for water claims", Confidence: 0.9},
		{Name: "Take moisture readings in adjacent rooms", Description: "Meter readings on walls and flooring in rooms neighboring the visible damage", Reason: "Migration beyond the visibly wet area is routinely underdocumented", Confidence: 0.8},
		{Name: "Photograph water line on walls", Description: "Capture the high-water mark with a reference object for scale", Reason: "Establishes depth for contents and structural estimates", Confidence: 0.75},
		{Name: "Photograph shutoff valve position", Description: "Document the main and local shutoff valves as found", Reason: "Valve state supports the loss timeline", Confidence: 0.6},
	},
	"fire": {
		{Name: "Photograph point of origin", Description: "Document the suspected origin area from multiple angles before debris removal", Reason: "Origin documentation is required for subrogation review", Confidence: 0.9},
		{Name: "Document smoke damage extent per room", Description: "Note and photograph soot lines and odor penetration room by room", Reason: "Smoke spread drives cleaning scope beyond the burn area", Confidence: 0.8},
		{Name: "Photograph electrical panel", Description: "Capture breaker positions and any arcing evidence", Reason: "Rules electrical causes in or out", Confidence: 0.65},
	},
	"wind": {
		{Name: "Photograph all roof slopes", Description: "Capture every slope even where no damage is apparent", Reason: "Undamaged slopes establish the storm direction baseline", Confidence: 0.85},
		{Name: "Document fence and soft-metal damage", Description: "Photograph fencing, gutters, and window wraps for directional denting", Reason: "Collateral indicators corroborate wind speed and direction", Confidence: 0.7},
	},
	"hail": {
		{Name: "Mark and photograph a test square", Description: "Chalk a 10x10 test square per slope and count strikes", Reason: "Strike density per square is the standard hail severity measure", Confidence: 0.9},
		{Name: "Photograph soft-metal collateral", Description: "Document dents on vents, flashing, and AC fins", Reason: "Soft metals register hail that shingles may hide", Confidence: 0.8},
	},
	"theft": {
		{Name: "Photograph points of entry", Description: "Document forced-entry evidence on doors, windows, and locks", Reason: "Entry evidence distinguishes theft from mysterious disappearance", Confidence: 0.9},
		{Name: "Record police report number", Description: "Capture the report number and responding agency", Reason: "Most theft coverage requires a filed report", Confidence: 0.85},
	},
}

// generalChecklist covers perils without a dedicated list
var generalChecklist = []port.MovementCandidate{
	{Name: "Photograph overall property condition", Description: "Wide shots of each elevation and surrounding grounds", Reason: "Context photos anchor all later detail photos", Confidence: 0.7},
	{Name: "Record a voice summary on site", Description: "Narrate observations while walking the loss", Reason: "On-site narration preserves detail that notes written later lose", Confidence: 0.5},
}

// SuggestMovements returns checklist candidates for the claim's peril,
// filtered against steps already present in the flow
func (s *Suggester) SuggestMovements(ctx context.Context, sc port.SuggestionContext) ([]port.MovementCandidate, error) {
	checklist, ok := perilChecklists[strings.ToLower(sc.PerilType)]
	if !ok {
		checklist = generalChecklist
	}

	known := make(map[string]bool, len(sc.CompletedMovements)+len(sc.RemainingMovements))
	for _, name := range sc.CompletedMovements {
		known[strings.ToLower(name)] = true
	}
	for _, name := range sc.RemainingMovements {
		known[strings.ToLower(name)] = true
	}

	out := make([]port.MovementCandidate, 0, len(checklist))
	for _, c := range checklist {
		if known[strings.ToLower(c.Name)] {
			continue
		}
		out = append(out, c)
		if len(out) == s.maxCandidates {
			break
		}
	}

	s.logger.Debug("Static suggestions served",
		zap.String("claim_id", sc.ClaimID),
		zap.String("peril_type", sc.PerilType),
		zap.Int("candidate_count", len(out)))

	return out, nil
}
