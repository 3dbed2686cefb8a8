package event

// Type identifies the type of domain event
type Type string

const (
	TypeFlowStarted       Type = "flow.started"
	TypeFlowCompleted     Type = "flow.completed"
	TypeFlowCancelled     Type = "flow.cancelled"
	TypePhaseAdvanced     Type = "phase.advanced"
	TypeGatePassed        Type = "gate.passed"
	TypeMovementCompleted Type = "movement.completed"
	TypeMovementSkipped   Type = "movement.skipped"
	TypeMovementInserted  Type = "movement.inserted"
	TypeEvidenceAttached  Type = "evidence.attached"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeFlowStarted,
		TypeFlowCompleted,
		TypeFlowCancelled,
		TypePhaseAdvanced,
		TypeGatePassed,
		TypeMovementCompleted,
		TypeMovementSkipped,
		TypeMovementInserted,
		TypeEvidenceAttached:
		return true
	default:
		return false
	}
}
