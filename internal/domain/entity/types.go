package entity

// InstanceStatus represents the lifecycle status of a FlowInstance
type InstanceStatus string

const (
	InstanceStatusActive    InstanceStatus = "active"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

var validInstanceStatuses = map[InstanceStatus]bool{
	InstanceStatusActive:    true,
	InstanceStatusCompleted: true,
	InstanceStatusCancelled: true,
}

// IsValid returns true if the status is a known instance status
func (s InstanceStatus) IsValid() bool {
	return validInstanceStatuses[s]
}

// IsTerminal returns true if no further mutation is accepted in this status
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusCancelled
}

// String returns the string representation of the status
func (s InstanceStatus) String() string {
	return string(s)
}

// PhaseStatus represents the sub-state of an instance phase.
// A phase with all movements acted upon but not yet passed is "gated",
// which is derived from completions rather than stored.
type PhaseStatus string

const (
	PhaseStatusInProgress PhaseStatus = "in_progress"
	PhaseStatusPassed     PhaseStatus = "passed"
)

// String returns the string representation of the status
func (s PhaseStatus) String() string {
	return string(s)
}

// CompletionStatus represents how a movement was acted upon
type CompletionStatus string

const (
	CompletionStatusCompleted CompletionStatus = "completed"
	CompletionStatusSkipped   CompletionStatus = "skipped"
)

// IsValid returns true if the status is a known completion status
func (s CompletionStatus) IsValid() bool {
	return s == CompletionStatusCompleted || s == CompletionStatusSkipped
}

// String returns the string representation of the status
func (s CompletionStatus) String() string {
	return string(s)
}

// EvidenceType classifies an evidence artifact
type EvidenceType string

const (
	EvidenceTypePhoto       EvidenceType = "photo"
	EvidenceTypeAudio       EvidenceType = "audio"
	EvidenceTypeVoiceNote   EvidenceType = "voice_note"
	EvidenceTypeMeasurement EvidenceType = "measurement"
	EvidenceTypeNote        EvidenceType = "note"
)

var validEvidenceTypes = map[EvidenceType]bool{
	EvidenceTypePhoto:       true,
	EvidenceTypeAudio:       true,
	EvidenceTypeVoiceNote:   true,
	EvidenceTypeMeasurement: true,
	EvidenceTypeNote:        true,
}

// IsValid returns true if the type is a known evidence type
func (t EvidenceType) IsValid() bool {
	return validEvidenceTypes[t]
}

// RequiresBlob returns true for types whose payload lives in the blob
// store and must carry a resolvable reference id. Measurements and notes
// carry their payload inline.
func (t EvidenceType) RequiresBlob() bool {
	switch t {
	case EvidenceTypePhoto, EvidenceTypeAudio, EvidenceTypeVoiceNote:
		return true
	default:
		return false
	}
}

// String returns the string representation of the type
func (t EvidenceType) String() string {
	return string(t)
}

// MovementOrigin records how a movement entered the instance
type MovementOrigin string

const (
	OriginTemplate    MovementOrigin = "template"
	OriginCustom      MovementOrigin = "custom"
	OriginSuggested   MovementOrigin = "suggested"
	OriginRoomDerived MovementOrigin = "room_derived"
)

var validOrigins = map[MovementOrigin]bool{
	OriginTemplate:    true,
	OriginCustom:      true,
	OriginSuggested:   true,
	OriginRoomDerived: true,
}

// IsValid returns true if the origin is a known movement origin
func (o MovementOrigin) IsValid() bool {
	return validOrigins[o]
}

// String returns the string representation of the origin
func (o MovementOrigin) String() string {
	return string(o)
}
