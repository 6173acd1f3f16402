package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "CHAT_TURN_COMPLETED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Publisher delivers events to whatever bus is configured.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Envelope is the wire form shared by every bus.
type Envelope struct {
	Id         uuid.UUID              `json:"id"`
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurredAt"`
	Data       map[string]interface{} `json:"data"`
}

func Encode(event Event) (uuid.UUID, []byte, error) {
	env := Envelope{
		Id:         uuid.New(),
		Type:       event.EventType(),
		OccurredAt: event.Timestamp(),
		Data:       event.Payload(),
	}
	b, err := json.Marshal(env)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to marshal %s event: %w", event.EventType(), err)
	}
	return env.Id, b, nil
}

func Decode(b []byte) (BaseEvent, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return BaseEvent{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return BaseEvent{Type: env.Type, Data: env.Data, OccurredAt: env.OccurredAt}, nil
}
