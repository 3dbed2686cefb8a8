package flow

// Trigger represents an event that can cause an instance state transition
type Trigger string

const (
	// TriggerComplete fires when the final phase's gate passes
	TriggerComplete Trigger = "complete"

	// TriggerCancel fires on explicit cancellation
	TriggerCancel Trigger = "cancel"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
