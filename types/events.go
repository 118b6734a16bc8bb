package types

// EventType discriminates the closed stream event union.
type EventType string

// Event type constants matching the wire event names.
const (
	EventTypeStatus  EventType = "status"
	EventTypeToken   EventType = "token"
	EventTypeContext EventType = "context"
	EventTypeDone    EventType = "done"
	EventTypeError   EventType = "error"
)

// IsTerminal returns true if this event type ends a turn.
func (e EventType) IsTerminal() bool {
	return e == EventTypeDone || e == EventTypeError
}

// StreamEvent is one typed event reconstructed from the wire stream.
// The union is closed: every event is exactly one of StatusEvent,
// TokenEvent, ContextEvent, DoneEvent or ErrorEvent.
type StreamEvent interface {
	Type() EventType
}

// StatusEvent reports a stage change. Unknown stage values pass through
// verbatim for forward compatibility.
type StatusEvent struct {
	Stage   Stage
	Message string
}

// Type implements StreamEvent.
func (StatusEvent) Type() EventType { return EventTypeStatus }

// TokenEvent carries an incremental text delta to append.
type TokenEvent struct {
	Delta string
}

// Type implements StreamEvent.
func (TokenEvent) Type() EventType { return EventTypeToken }

// ContextEvent replaces the turn's citation and evidence lists.
// A later ContextEvent fully supersedes an earlier one; it is never merged.
type ContextEvent struct {
	Citations   []Citation
	UsedContext []UsedContext
}

// Type implements StreamEvent.
func (ContextEvent) Type() EventType { return EventTypeContext }

// DoneEvent marks successful completion of a turn.
type DoneEvent struct{}

// Type implements StreamEvent.
func (DoneEvent) Type() EventType { return EventTypeDone }

// ErrorEvent carries an upstream-reported failure. Message is never empty:
// a missing upstream message maps to DefaultErrorMessage.
type ErrorEvent struct {
	Message string
}

// Type implements StreamEvent.
func (ErrorEvent) Type() EventType { return EventTypeError }

// DefaultErrorMessage is the fixed user-facing text for an upstream error
// event that carries no message of its own.
const DefaultErrorMessage = "Sorry, the answer stream failed. Please try again later."
