package flow

import (
	"fmt"

	"github.com/verisite/fieldflow/internal/domain/entity"
)

// Missing movement states reported by a failed gate
const (
	MissingStatePending = "pending"
	MissingStateSkipped = "skipped"
)

// MissingMovement names a required movement blocking a gate, either not
// yet acted upon or skipped (skips never satisfy required movements)
type MissingMovement struct {
	MovementID string `json:"movement_id"`
	Name       string `json:"name"`
	State      string `json:"state"`
	SkipReason string `json:"skip_reason,omitempty"`
}

// MissingEvidence names an unmet required evidence quantity blocking a gate
type MissingEvidence struct {
	MovementID   string              `json:"movement_id"`
	MovementName string              `json:"movement_name"`
	Type         entity.EvidenceType `json:"type"`
	MinQuantity  int                 `json:"min_quantity"`
	Attached     int                 `json:"attached"`
}

// GateEvaluation is the structured outcome of evaluating a phase gate.
// A failed gate is an expected result, not an error: the missing lists
// tell the adjuster exactly what remains.
type GateEvaluation struct {
	GateID           string            `json:"gate_id"`
	PhaseID          string            `json:"phase_id"`
	PhaseName        string            `json:"phase_name"`
	Passed           bool              `json:"passed"`
	Reason           string            `json:"reason"`
	MissingMovements []MissingMovement `json:"missing_movements,omitempty"`
	MissingEvidence  []MissingEvidence `json:"missing_evidence,omitempty"`
	NextPhaseID      string            `json:"next_phase_id,omitempty"`
	FlowComplete     bool              `json:"flow_complete,omitempty"`
}

// EvaluateGate decides whether a phase may close. It is a pure function
// of the rows passed in: no side effects, same inputs give the same
// result, so a failed gate can be re-evaluated after more evidence
// arrives. Advancing the instance on a pass is the caller's job.
//
// A gate passes when every required movement in the phase has a completion
// with status completed, and every required evidence quantity is met on
// the movements that were completed. Evidence requirements on skipped or
// un-acted movements do not bind, since the work they describe was never
// performed. Pass-through gates pass unconditionally.
func EvaluateGate(phase *entity.InstancePhase, movements []*entity.InstanceMovement, completions []*entity.MovementCompletion, evidence []*entity.Evidence) *GateEvaluation {
	result := &GateEvaluation{
		GateID:    phase.GateID,
		PhaseID:   phase.ID,
		PhaseName: phase.Name,
	}

	if phase.GatePassThrough {
		result.Passed = true
		result.Reason = "pass-through gate"
		return result
	}

	completionByMovement := make(map[string]*entity.MovementCompletion, len(completions))
	for _, c := range completions {
		completionByMovement[c.MovementID] = c
	}

	evidenceByMovement := make(map[string][]*entity.Evidence)
	for _, ev := range evidence {
		evidenceByMovement[ev.MovementID] = append(evidenceByMovement[ev.MovementID], ev)
	}

	for _, m := range movements {
		completion := completionByMovement[m.ID]

		if m.IsRequired {
			switch {
			case completion == nil:
				result.MissingMovements = append(result.MissingMovements, MissingMovement{
					MovementID: m.ID,
					Name:       m.Name,
					State:      MissingStatePending,
				})
			case completion.Status == entity.CompletionStatusSkipped:
				result.MissingMovements = append(result.MissingMovements, MissingMovement{
					MovementID: m.ID,
					Name:       m.Name,
					State:      MissingStateSkipped,
					SkipReason: completion.SkipReason,
				})
			}
		}

		if completion == nil || completion.Status != entity.CompletionStatusCompleted {
			continue
		}

		counts := CountEvidenceByType(evidenceByMovement[m.ID])
		for _, req := range m.EvidenceRequirements {
			if !req.Required {
				continue
			}
			if counts[req.Type] < req.MinQuantity {
				result.MissingEvidence = append(result.MissingEvidence, MissingEvidence{
					MovementID:   m.ID,
					MovementName: m.Name,
					Type:         req.Type,
					MinQuantity:  req.MinQuantity,
					Attached:     counts[req.Type],
				})
			}
		}
	}

	result.Passed = len(result.MissingMovements) == 0 && len(result.MissingEvidence) == 0
	if result.Passed {
		result.Reason = "all gate conditions satisfied"
	} else {
		result.Reason = fmt.Sprintf("%d required movement(s) incomplete, %d evidence requirement(s) unmet",
			len(result.MissingMovements), len(result.MissingEvidence))
	}

	return result
}
