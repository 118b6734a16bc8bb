// Package adapter defines the notification boundary for finished turns.
//
// Adapters publish turn completion notifications to downstream systems
// (coaching dashboards, practice-session trackers). The CLI owns adapter
// lifecycle; users provide configuration only.
package adapter

import "context"

// ContractVersion is the published event schema version.
const ContractVersion = "1.0"

// EventTypeTurnCompleted is the event_type value for turn completions.
const EventTypeTurnCompleted = "turn_completed"

// TurnCompletedEvent is the payload published when an assistant turn
// reaches a terminal stage.
type TurnCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "turn_completed"
	ConversationID  string `json:"conversation_id"`
	RequestID       string `json:"request_id,omitempty"`
	Mode            string `json:"mode"`
	Outcome         string `json:"outcome"` // done, error, aborted
	ContentChars    int    `json:"content_chars"`
	CitationCount   int    `json:"citation_count"`
	EvidenceCount   int    `json:"evidence_count"`
	DurationMs      int64  `json:"duration_ms"`
	Timestamp       string `json:"timestamp"` // ISO 8601
}

// Adapter publishes turn completion events to a downstream system.
type Adapter interface {
	// Publish sends a turn completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *TurnCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
