package flow

import (
	"strings"
	"testing"

	"github.com/verisite/fieldflow/internal/domain/entity"
)

func validDefinition() *entity.FlowDefinition {
	return &entity.FlowDefinition{
		ID:        "def-1",
		Name:      "Water damage inspection",
		PerilType: "water",
		Phases: []entity.PhaseTemplate{
			{
				Name: "Exterior",
				Movements: []entity.MovementTemplate{
					{
						Name:       "photo front elevation",
						IsRequired: true,
						EvidenceRequirements: []entity.EvidenceRequirement{
							{Type: entity.EvidenceTypePhoto, MinQuantity: 1, MaxQuantity: 4, Required: true},
						},
					},
					{Name: "note access issues"},
				},
			},
			{
				Name: "Wrap-up",
				Gate: entity.GateRule{PassThrough: true},
			},
		},
	}
}

func TestValidateDefinition_Valid(t *testing.T) {
	if violations := ValidateDefinition(validDefinition()); len(violations) != 0 {
		t.Errorf("expected no violations, got %v", violations)
	}
}

func TestValidateDefinition(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(def *entity.FlowDefinition)
		wantField string
	}{
		{
			name:      "missing name",
			mutate:    func(def *entity.FlowDefinition) { def.Name = "" },
			wantField: "name",
		},
		{
			name:      "missing peril type",
			mutate:    func(def *entity.FlowDefinition) { def.PerilType = "" },
			wantField: "peril_type",
		},
		{
			name:      "no phases",
			mutate:    func(def *entity.FlowDefinition) { def.Phases = nil },
			wantField: "phases",
		},
		{
			name: "empty phase without pass-through gate",
			mutate: func(def *entity.FlowDefinition) {
				def.Phases[1].Gate.PassThrough = false
			},
			wantField: "phases[1]",
		},
		{
			name: "missing phase name",
			mutate: func(def *entity.FlowDefinition) {
				def.Phases[0].Name = ""
			},
			wantField: "phases[0].name",
		},
		{
			name: "duplicate movement name within phase",
			mutate: func(def *entity.FlowDefinition) {
				def.Phases[0].Movements[1].Name = "photo front elevation"
			},
			wantField: "phases[0].movements[1].name",
		},
		{
			name: "missing movement name",
			mutate: func(def *entity.FlowDefinition) {
				def.Phases[0].Movements[1].Name = ""
			},
			wantField: "phases[0].movements[1].name",
		},
		{
			name: "min exceeds max",
			mutate: func(def *entity.FlowDefinition) {
				def.Phases[0].Movements[0].EvidenceRequirements[0].MinQuantity = 5
			},
			wantField: "phases[0].movements[0].evidence_requirements[0]",
		},
		{
			name: "negative min",
			mutate: func(def *entity.FlowDefinition) {
				def.Phases[0].Movements[0].EvidenceRequirements[0].MinQuantity = -1
			},
			wantField: "phases[0].movements[0].evidence_requirements[0].min_quantity",
		},
		{
			name: "unknown evidence type",
			mutate: func(def *entity.FlowDefinition) {
				def.Phases[0].Movements[0].EvidenceRequirements[0].Type = "hologram"
			},
			wantField: "phases[0].movements[0].evidence_requirements[0].type",
		},
		{
			name: "duplicate evidence type within movement",
			mutate: func(def *entity.FlowDefinition) {
				def.Phases[0].Movements[0].EvidenceRequirements = append(
					def.Phases[0].Movements[0].EvidenceRequirements,
					entity.EvidenceRequirement{Type: entity.EvidenceTypePhoto, MinQuantity: 1},
				)
			},
			wantField: "phases[0].movements[0].evidence_requirements[1].type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(def)

			violations := ValidateDefinition(def)
			if len(violations) == 0 {
				t.Fatal("expected violations, got none")
			}

			found := false
			for _, v := range violations {
				if v.Field == tt.wantField {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("no violation for field %q, got %v", tt.wantField, violations)
			}
		})
	}
}

func TestValidateDefinition_CollectsAllViolations(t *testing.T) {
	def := validDefinition()
	def.Name = ""
	def.PerilType = ""
	def.Phases[0].Movements[0].EvidenceRequirements[0].MinQuantity = 9

	violations := ValidateDefinition(def)
	if len(violations) != 3 {
		t.Fatalf("expected 3 violations, got %d: %v", len(violations), violations)
	}

	joined := make([]string, 0, len(violations))
	for _, v := range violations {
		joined = append(joined, v.String())
	}
	all := strings.Join(joined, "; ")
	for _, want := range []string{"name", "peril_type", "min quantity 9 exceeds max quantity 4"} {
		if !strings.Contains(all, want) {
			t.Errorf("violations %q missing %q", all, want)
		}
	}
}
