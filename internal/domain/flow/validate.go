package flow

import (
	"fmt"

	"github.com/verisite/fieldflow/internal/domain/entity"
)

// Violation describes one structural problem in a flow definition
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// ValidateDefinition checks structural well-formedness of a template and
// returns every violation found, so an author can fix all problems at
// once. An empty result means the definition is valid.
func ValidateDefinition(def *entity.FlowDefinition) []Violation {
	var violations []Violation

	if def.Name == "" {
		violations = append(violations, Violation{Field: "name", Message: "name is required"})
	}
	if def.PerilType == "" {
		violations = append(violations, Violation{Field: "peril_type", Message: "peril type is required"})
	}
	if len(def.Phases) == 0 {
		violations = append(violations, Violation{Field: "phases", Message: "at least one phase is required"})
	}

	for i, phase := range def.Phases {
		prefix := fmt.Sprintf("phases[%d]", i)

		if phase.Name == "" {
			violations = append(violations, Violation{Field: prefix + ".name", Message: "phase name is required"})
		}
		if len(phase.Movements) == 0 && !phase.Gate.PassThrough {
			violations = append(violations, Violation{
				Field:   prefix,
				Message: "phase has no movements and no pass-through gate",
			})
		}

		seenNames := make(map[string]bool, len(phase.Movements))
		for j, movement := range phase.Movements {
			mPrefix := fmt.Sprintf("%s.movements[%d]", prefix, j)

			if movement.Name == "" {
				violations = append(violations, Violation{Field: mPrefix + ".name", Message: "movement name is required"})
			} else if seenNames[movement.Name] {
				violations = append(violations, Violation{
					Field:   mPrefix + ".name",
					Message: fmt.Sprintf("movement name %q duplicated within phase", movement.Name),
				})
			}
			seenNames[movement.Name] = true

			violations = append(violations, ValidateRequirements(mPrefix+".evidence_requirements", movement.EvidenceRequirements)...)
		}
	}

	return violations
}

// ValidateRequirements checks an evidence requirement list, used both for
// definition templates and for movements inserted at runtime. Field paths
// in the violations are prefixed with the given field.
func ValidateRequirements(field string, reqs []entity.EvidenceRequirement) []Violation {
	var violations []Violation

	seenTypes := make(map[entity.EvidenceType]bool, len(reqs))
	for k, req := range reqs {
		rPrefix := fmt.Sprintf("%s[%d]", field, k)

		if !req.Type.IsValid() {
			violations = append(violations, Violation{
				Field:   rPrefix + ".type",
				Message: fmt.Sprintf("unknown evidence type %q", req.Type),
			})
		} else if seenTypes[req.Type] {
			violations = append(violations, Violation{
				Field:   rPrefix + ".type",
				Message: fmt.Sprintf("evidence type %q duplicated within movement", req.Type),
			})
		}
		seenTypes[req.Type] = true

		if req.MinQuantity < 0 {
			violations = append(violations, Violation{
				Field:   rPrefix + ".min_quantity",
				Message: "min quantity cannot be negative",
			})
		}
		if req.MaxQuantity > 0 && req.MinQuantity > req.MaxQuantity {
			violations = append(violations, Violation{
				Field:   rPrefix,
				Message: fmt.Sprintf("min quantity %d exceeds max quantity %d", req.MinQuantity, req.MaxQuantity),
			})
		}
	}

	return violations
}
