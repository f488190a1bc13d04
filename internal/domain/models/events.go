package models

import "time"

// EventKind keys the notification bus.
type EventKind string

const (
	EventSignalApproved  EventKind = "signal.approved"
	EventSignalDelivered EventKind = "signal.delivered"
	EventSignalResolved  EventKind = "signal.resolved"
)

// EventKinds lists every kind the pipeline emits.
var EventKinds = []EventKind{EventSignalApproved, EventSignalDelivered, EventSignalResolved}

// Event is one notification for downstream UI or delivery channels.
type Event struct {
	Kind     EventKind       `json:"kind"`
	SignalID string          `json:"signal_id"`
	Symbol   string          `json:"symbol"`
	Tier     Tier            `json:"tier,omitempty"`
	Signal   *ApprovedSignal `json:"signal,omitempty"`
	View     *SignalView     `json:"view,omitempty"`
	Outcome  *Outcome        `json:"outcome,omitempty"`
	At       time.Time       `json:"at"`
}
