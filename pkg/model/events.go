package model

import (
	"time"

	"github.com/google/uuid"
)

// EventKind groups pool events by the operation that produced them.
type EventKind string

const (
	EventAllocation   EventKind = "allocation"
	EventRegistration EventKind = "registration"
	EventAvatar       EventKind = "avatar"
	EventPoolLevel    EventKind = "pool_level"
)

// PoolEvent is the operational record of one outcome. Message is
// the human-readable line delivered to the admin notification channel.
type PoolEvent struct {
	ID        uuid.UUID `json:"id"`
	Kind      EventKind `json:"kind"`
	Pool      PoolID    `json:"pool"`
	AssetType AssetType `json:"asset_type,omitempty"`
	Ticker    string    `json:"ticker,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPoolEvent stamps an event with a fresh id and the current UTC time.
func NewPoolEvent(kind EventKind, pool PoolID, outcome Outcome, message string) PoolEvent {
	return PoolEvent{
		ID:        uuid.New(),
		Kind:      kind,
		Pool:      pool,
		Outcome:   outcome,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Subject returns the event-stream subject for this event, e.g. "evt.botpool.allocation.created.v1".
func (e PoolEvent) Subject() string {
	return "evt.botpool." + string(e.Kind) + "." + string(e.Outcome) + ".v1"
}
