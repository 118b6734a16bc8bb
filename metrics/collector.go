// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters while a session is open. It is a leaf
// package with no internal dependencies; the engine and store report into
// it and the chat command can print a snapshot on exit.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Turn lifecycle
	TurnsStarted   int64
	TurnsCompleted int64
	TurnsErrored   int64
	TurnsAborted   int64

	// Wire pipeline
	FramesDecoded       int64
	FramesDropped       int64
	EventsApplied       int64
	EventsDiscardedLate int64
	FallbacksUsed       int64

	// Persistence
	StoreWritesSkipped int64

	// Dimensions (informational, set at construction)
	ConversationID string
	Backend        string
}

// Collector accumulates metrics during a session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	turnsStarted   int64
	turnsCompleted int64
	turnsErrored   int64
	turnsAborted   int64

	framesDecoded       int64
	framesDropped       int64
	eventsApplied       int64
	eventsDiscardedLate int64
	fallbacksUsed       int64

	storeWritesSkipped int64

	conversationID string
	backend        string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(conversationID, backend string) *Collector {
	return &Collector{
		conversationID: conversationID,
		backend:        backend,
	}
}

// --- Turn lifecycle ---

// IncTurnStarted records a submitted turn.
func (c *Collector) IncTurnStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.turnsStarted++
	c.mu.Unlock()
}

// IncTurnCompleted records a turn that reached done.
func (c *Collector) IncTurnCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.turnsCompleted++
	c.mu.Unlock()
}

// IncTurnErrored records a turn that reached error.
func (c *Collector) IncTurnErrored() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.turnsErrored++
	c.mu.Unlock()
}

// IncTurnAborted records a turn cancelled by the user or by teardown.
func (c *Collector) IncTurnAborted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.turnsAborted++
	c.mu.Unlock()
}

// --- Wire pipeline ---

// IncFrameDecoded records a complete frame assembled from the stream.
func (c *Collector) IncFrameDecoded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesDecoded++
	c.mu.Unlock()
}

// IncFrameDropped records a malformed or unrecognized frame that was
// silently ignored.
func (c *Collector) IncFrameDropped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesDropped++
	c.mu.Unlock()
}

// IncEventApplied records an event accepted by the turn state machine.
func (c *Collector) IncEventApplied() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsApplied++
	c.mu.Unlock()
}

// IncEventDiscardedLate records an event discarded because the turn was
// already terminal.
func (c *Collector) IncEventDiscardedLate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsDiscardedLate++
	c.mu.Unlock()
}

// IncFallbackUsed records a failover from the streaming call to the plain
// request/response call.
func (c *Collector) IncFallbackUsed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.fallbacksUsed++
	c.mu.Unlock()
}

// --- Persistence ---

// IncStoreWriteSkipped records a best-effort store write that failed and
// was silently skipped.
func (c *Collector) IncStoreWriteSkipped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.storeWritesSkipped++
	c.mu.Unlock()
}

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		TurnsStarted:   c.turnsStarted,
		TurnsCompleted: c.turnsCompleted,
		TurnsErrored:   c.turnsErrored,
		TurnsAborted:   c.turnsAborted,

		FramesDecoded:       c.framesDecoded,
		FramesDropped:       c.framesDropped,
		EventsApplied:       c.eventsApplied,
		EventsDiscardedLate: c.eventsDiscardedLate,
		FallbacksUsed:       c.fallbacksUsed,

		StoreWritesSkipped: c.storeWritesSkipped,

		ConversationID: c.conversationID,
		Backend:        c.backend,
	}
}
