package entity

import "time"

// Evidence links a movement completion to an inspection artifact. The
// engine owns the record only; blob bytes live behind ReferenceID in the
// upload subsystem. Measurements and notes carry their payload in Data.
type Evidence struct {
	ID             string                 `json:"id"`
	FlowInstanceID string                 `json:"flow_instance_id"`
	MovementID     string                 `json:"movement_id"`
	CompletionID   string                 `json:"completion_id"`
	Type           EvidenceType           `json:"type"`
	ReferenceID    string                 `json:"reference_id,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
	UserID         string                 `json:"user_id"`
	Notes          string                 `json:"notes,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}
