package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/pixmart/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered EventType = "user_registered"
	EventUserLoggedIn   EventType = "user_logged_in"
	EventUserLoggedOut  EventType = "user_logged_out"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Identity  domain.Identity `json:"identity"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   interface{}     `json:"payload,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(eventType EventType, identity domain.Identity, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Identity:  identity,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// SessionPayload accompanies login and logout events.
type SessionPayload struct {
	ExpiresAt time.Time `json:"expires_at"`
}
