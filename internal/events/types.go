// internal/events/types.go
package events

import (
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// ViewChanged is published after every store mutation.
	ViewChanged EventType = "view.changed"

	// RefreshCompleted is published by the poller once per applied cycle.
	RefreshCompleted EventType = "refresh.completed"

	// ConnectionChanged is published when the probe state changes.
	ConnectionChanged EventType = "connection.changed"

	// StreamingChanged is published when the capture state changes.
	StreamingChanged EventType = "streaming.changed"
)

// Slot names one part of the view model.
type Slot string

const (
	SlotPortfolio  Slot = "portfolio"
	SlotTrades     Slot = "trades"
	SlotQuotes     Slot = "quotes"
	SlotAccounts   Slot = "accounts"
	SlotRecent     Slot = "recent"
	SlotSignals    Slot = "signals"
	SlotConnection Slot = "connection"
	SlotStreaming  Slot = "streaming"
	SlotLoading    Slot = "loading"
	SlotError      Slot = "error"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// NewBase stamps an event of type t with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// ViewChangedEvent carries the revision the view moved to and which slots changed.
type ViewChangedEvent struct {
	BaseEvent
	Revision uint64
	Slots    []Slot
}

// Has reports whether slot changed.
func (e ViewChangedEvent) Has(slot Slot) bool {
	for _, s := range e.Slots {
		if s == slot {
			return true
		}
	}
	return false
}

// RefreshCompletedEvent summarizes one refresh cycle.
type RefreshCompletedEvent struct {
	BaseEvent
	Outcome        string // "success", "partial" or "failure"
	PortfolioFresh bool
	TradesFresh    bool
	Duration       time.Duration
	Error          string
}

// ConnectionChangedEvent is emitted when the market-data connection state moves.
type ConnectionChangedEvent struct {
	BaseEvent
	Status string
	Error  string
}

// StreamingChangedEvent is emitted when the capture state moves.
type StreamingChangedEvent struct {
	BaseEvent
	Status  string
	Symbols []string
	Error   string
}
