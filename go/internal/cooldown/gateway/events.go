package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/finoxa/go/internal/cooldown/events"
)

// CooldownEvent is the structure pushed to WebSocket clients
type CooldownEvent struct {
	ID        string          `json:"id"`         // Event UUID
	SessionID string          `json:"session_id"` // Session UUID
	Flow      string          `json:"flow"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of cooldown event
type EventType string

const (
	EventTypeCooldownStarted   EventType = events.TypeCooldownStarted
	EventTypeCooldownTicked    EventType = events.TypeCooldownTicked
	EventTypeCooldownCompleted EventType = events.TypeCooldownCompleted
)

// FromEnvelope converts a published envelope into a WebSocket event
func FromEnvelope(env events.Envelope) (*CooldownEvent, error) {
	var t EventType
	switch env.EventType {
	case events.TypeCooldownStarted:
		t = EventTypeCooldownStarted
	case events.TypeCooldownTicked:
		t = EventTypeCooldownTicked
	case events.TypeCooldownCompleted:
		t = EventTypeCooldownCompleted
	default:
		return nil, fmt.Errorf("unknown event type: %s", env.EventType)
	}

	return &CooldownEvent{
		ID:        env.EventID.String(),
		SessionID: env.SessionID.String(),
		Flow:      env.Flow,
		Type:      t,
		Timestamp: env.Timestamp,
		Data:      env.Payload,
	}, nil
}

// ParseEventPayload parses event data into the matching payload struct
func ParseEventPayload(event *CooldownEvent) (interface{}, error) {
	switch event.Type {
	case EventTypeCooldownStarted:
		var payload events.CooldownStartedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeCooldownTicked:
		var payload events.CooldownTickedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeCooldownCompleted:
		var payload events.CooldownCompletedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}
}
