package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventWorkerLoggedIn     EventType = "worker_logged_in"
	EventWorkerLoggedOut    EventType = "worker_logged_out"
	EventSessionExpired     EventType = "session_expired"
	EventUnauthorized       EventType = "unauthorized"
	EventComplaintCompleted EventType = "complaint_completed"
)

// Event represents something that happened to a portal session.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	WorkerID  string      `json:"worker_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// New stamps an event with an id and the current time.
func New(eventType EventType, sessionID, workerID string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SessionID: sessionID,
		WorkerID:  workerID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// UnauthorizedPayload describes the upstream call that was rejected.
type UnauthorizedPayload struct {
	Method   string `json:"method"`
	Endpoint string `json:"endpoint"`
}

// ComplaintCompletedPayload payload.
type ComplaintCompletedPayload struct {
	ComplaintID string `json:"complaint_id"`
	Status      string `json:"status"`
	HasImage    bool   `json:"has_image"`
}
