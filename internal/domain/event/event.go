package event

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Event represents a domain event raised by the flow engine
type Event struct {
	ID             string                 `json:"id"`
	Type           Type                   `json:"type"`
	FlowInstanceID string                 `json:"flow_instance_id"`
	ClaimID        string                 `json:"claim_id,omitempty"`
	Payload        map[string]interface{} `json:"payload"`
	Timestamp      time.Time              `json:"timestamp"`
	CorrelationID  string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, flowInstanceID, claimID string, payload map[string]interface{}) *Event {
	return &Event{
		ID:             generateID(),
		Type:           eventType,
		FlowInstanceID: flowInstanceID,
		ClaimID:        claimID,
		Payload:        payload,
		Timestamp:      time.Now(),
		CorrelationID:  generateID(),
	}
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, flowInstanceID, claimID string, payload map[string]interface{}, correlationID string) *Event {
	return &Event{
		ID:             generateID(),
		Type:           eventType,
		FlowInstanceID: flowInstanceID,
		ClaimID:        claimID,
		Payload:        payload,
		Timestamp:      time.Now(),
		CorrelationID:  correlationID,
	}
}

// WithPayload returns a new Event with an added payload key-value pair
// (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	return &Event{
		ID:             e.ID,
		Type:           e.Type,
		FlowInstanceID: e.FlowInstanceID,
		ClaimID:        e.ClaimID,
		Payload:        newPayload,
		Timestamp:      e.Timestamp,
		CorrelationID:  e.CorrelationID,
	}
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int value from the payload
func (e *Event) GetPayloadInt(key string) int {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}

// generateID creates a unique ID using timestamp and random bytes
func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(b))
}
