package flow

import "github.com/verisite/fieldflow/internal/domain/entity"

// RequirementGap describes how attached evidence compares against one
// evidence requirement of a movement
type RequirementGap struct {
	Type        entity.EvidenceType `json:"type"`
	Required    bool                `json:"required"`
	MinQuantity int                 `json:"min_quantity"`
	MaxQuantity int                 `json:"max_quantity,omitempty"`
	Attached    int                 `json:"attached"`
}

// EvidenceReport is the result of checking a movement's attached evidence
// against its requirements. Missing lists requirements under min, Excess
// lists requirements over max.
type EvidenceReport struct {
	Satisfied bool             `json:"satisfied"`
	Missing   []RequirementGap `json:"missing"`
	Excess    []RequirementGap `json:"excess"`
}

// CountEvidenceByType groups evidence records by type
func CountEvidenceByType(evidence []*entity.Evidence) map[entity.EvidenceType]int {
	counts := make(map[entity.EvidenceType]int, len(evidence))
	for _, ev := range evidence {
		counts[ev.Type]++
	}
	return counts
}

// ValidateMovementEvidence compares the evidence attached to a movement
// against the movement's requirements, checking quantity bounds per type.
// All requirements are reported; the gate later considers only the
// required ones.
func ValidateMovementEvidence(movement *entity.InstanceMovement, evidence []*entity.Evidence) *EvidenceReport {
	counts := CountEvidenceByType(evidence)

	report := &EvidenceReport{
		Missing: []RequirementGap{},
		Excess:  []RequirementGap{},
	}

	for _, req := range movement.EvidenceRequirements {
		gap := RequirementGap{
			Type:        req.Type,
			Required:    req.Required,
			MinQuantity: req.MinQuantity,
			MaxQuantity: req.MaxQuantity,
			Attached:    counts[req.Type],
		}

		if gap.Attached < req.MinQuantity {
			report.Missing = append(report.Missing, gap)
		}
		if req.MaxQuantity > 0 && gap.Attached > req.MaxQuantity {
			report.Excess = append(report.Excess, gap)
		}
	}

	report.Satisfied = len(report.Missing) == 0 && len(report.Excess) == 0
	return report
}
