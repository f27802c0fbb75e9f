package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types published for a cooldown
const (
	TypeCooldownStarted   = "CooldownStarted"
	TypeCooldownTicked    = "CooldownTicked"
	TypeCooldownCompleted = "CooldownCompleted"
)

// CooldownStartedPayload is the payload for a CooldownStarted event
type CooldownStartedPayload struct {
	SessionID    string    `json:"session_id"`
	Flow         string    `json:"flow"`
	RemainingSec int       `json:"remaining_sec"`
	StartedAt    time.Time `json:"started_at"`
	EndsAt       time.Time `json:"ends_at"`
}

// CooldownTickedPayload is the payload for a CooldownTicked event
type CooldownTickedPayload struct {
	SessionID    string    `json:"session_id"`
	Flow         string    `json:"flow"`
	RemainingSec int       `json:"remaining_sec"`
	TickedAt     time.Time `json:"ticked_at"`
}

// CooldownCompletedPayload is the payload for a CooldownCompleted event
type CooldownCompletedPayload struct {
	SessionID   string    `json:"session_id"`
	Flow        string    `json:"flow"`
	CompletedAt time.Time `json:"completed_at"`
}

// Envelope is the wire form of every cooldown event.
type Envelope struct {
	EventID   uuid.UUID       `json:"eventId"`
	EventType string          `json:"eventType"`
	SessionID uuid.UUID       `json:"sessionId"`
	Flow      string          `json:"flow"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload and wraps it with a fresh event id.
func NewEnvelope(eventType string, sessionID uuid.UUID, flow string, at time.Time, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:   uuid.New(),
		EventType: eventType,
		SessionID: sessionID,
		Flow:      flow,
		Timestamp: at.UTC(),
		Payload:   data,
	}, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.EventType, err)
	}
	return nil
}
