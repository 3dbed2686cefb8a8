package entity

import "time"

// FlowInstance is a live, per-claim execution of a FlowDefinition.
// At most one active instance exists per claim.
type FlowInstance struct {
	ID                string         `json:"id"`
	ClaimID           string         `json:"claim_id"`
	FlowDefinitionID  string         `json:"flow_definition_id"`
	Status            InstanceStatus `json:"status"`
	CurrentPhaseID    string         `json:"current_phase_id"`
	CurrentPhaseIndex int            `json:"current_phase_index"`
	StartedAt         time.Time      `json:"started_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	CancelledAt       *time.Time     `json:"cancelled_at,omitempty"`
}

// InstancePhase is the per-instance snapshot of a phase template.
// GateID addresses the phase's gate; SealedAt is set the moment the gate
// passes, after which the phase accepts no further movements.
type InstancePhase struct {
	ID              string      `json:"id"`
	FlowInstanceID  string      `json:"flow_instance_id"`
	PhaseIndex      int         `json:"phase_index"`
	Name            string      `json:"name"`
	GateID          string      `json:"gate_id"`
	GatePassThrough bool        `json:"gate_pass_through"`
	Status          PhaseStatus `json:"status"`
	SealedAt        *time.Time  `json:"sealed_at,omitempty"`
}

// InstanceMovement is a movement row on an instance, either snapshotted
// from the template or inserted at runtime. Sequence orders movements
// within a phase; dynamic inserts take max sequence + 1 and never
// renumber existing rows.
type InstanceMovement struct {
	ID                   string                `json:"id"`
	FlowInstanceID       string                `json:"flow_instance_id"`
	PhaseID              string                `json:"phase_id"`
	Name                 string                `json:"name"`
	Description          string                `json:"description,omitempty"`
	IsRequired           bool                  `json:"is_required"`
	Origin               MovementOrigin        `json:"origin"`
	RoomName             string                `json:"room_name,omitempty"`
	Sequence             int                   `json:"sequence"`
	EvidenceRequirements []EvidenceRequirement `json:"evidence_requirements,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
}
