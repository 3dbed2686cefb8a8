package entity

import "time"

// MovementCompletion is the append-only record of a movement being acted
// upon. One completion exists per (flow instance, movement); a second
// attempt is rejected, never overwritten.
type MovementCompletion struct {
	ID             string           `json:"id"`
	FlowInstanceID string           `json:"flow_instance_id"`
	MovementID     string           `json:"movement_id"`
	UserID         string           `json:"user_id"`
	Status         CompletionStatus `json:"status"`
	Notes          string           `json:"notes,omitempty"`
	SkipReason     string           `json:"skip_reason,omitempty"`
	CompletedAt    time.Time        `json:"completed_at"`
}
