package entity

import "time"

// FlowDefinition is the immutable inspection template for a peril type.
// Instances snapshot the phase graph at start; later edits to a definition
// never reach running instances.
type FlowDefinition struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	PerilType    string          `json:"peril_type"`
	PropertyType string          `json:"property_type,omitempty"`
	IsActive     bool            `json:"is_active"`
	Phases       []PhaseTemplate `json:"phases"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// PhaseTemplate is an ordered group of movements bounded by a gate
type PhaseTemplate struct {
	Name      string             `json:"name"`
	Gate      GateRule           `json:"gate"`
	Movements []MovementTemplate `json:"movements"`
}

// MovementTemplate describes a single inspection action
type MovementTemplate struct {
	Name                 string                `json:"name"`
	Description          string                `json:"description,omitempty"`
	IsRequired           bool                  `json:"is_required"`
	EvidenceRequirements []EvidenceRequirement `json:"evidence_requirements,omitempty"`
}

// EvidenceRequirement bounds the quantity of one evidence type for a
// movement. MaxQuantity 0 means unbounded.
type EvidenceRequirement struct {
	Type        EvidenceType `json:"type"`
	MinQuantity int          `json:"min_quantity"`
	MaxQuantity int          `json:"max_quantity,omitempty"`
	Required    bool         `json:"required"`
}

// GateRule is the condition required to leave a phase. A pass-through
// gate passes unconditionally, which permits phases with no movements.
type GateRule struct {
	PassThrough bool `json:"pass_through,omitempty"`
}
