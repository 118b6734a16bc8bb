// Package types defines core domain types for the sluice session engine.
//
//nolint:revive // types is a common Go package naming convention
package types

// Role identifies who produced a turn.
type Role string

// Role constants.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Stage is the assistant turn's current phase of production.
type Stage string

// Stage constants. Progress stages advance retrieving -> generating ->
// finalizing; done, error and aborted are terminal.
const (
	StageRetrieving Stage = "retrieving"
	StageGenerating Stage = "generating"
	StageFinalizing Stage = "finalizing"
	StageDone       Stage = "done"
	StageError      Stage = "error"
	StageAborted    Stage = "aborted"
)

// IsTerminal returns true if this stage is a terminal stage.
// No event may move a turn out of a terminal stage.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageError || s == StageAborted
}

// Fixed status labels shown while a turn is in flight or settled.
const (
	StatusTextRetrieving  = "Searching your sources..."
	StatusTextGenerating  = "Composing the answer..."
	StatusTextFinalizing  = "Arranging citations..."
	StatusTextFailed      = "failed"
	StatusTextInterrupted = "interrupted"
)

// StatusText returns the fixed display label for a progress stage.
// Returns false for terminal and unknown stages; unknown stages are
// forward-compatible and carry their own message instead.
func (s Stage) StatusText() (string, bool) {
	switch s {
	case StageRetrieving:
		return StatusTextRetrieving, true
	case StageGenerating:
		return StatusTextGenerating, true
	case StageFinalizing:
		return StatusTextFinalizing, true
	default:
		return "", false
	}
}

// Citation is a marker referencing an evidence item the assistant claims
// to have used. ID is unique within a turn.
type Citation struct {
	ID    string `json:"id" msgpack:"id"`
	Quote string `json:"quote,omitempty" msgpack:"quote,omitempty"`
}

// UsedContext is a retrieved evidence snippet plus metadata and relevance
// score. All fields are optional on the wire.
type UsedContext struct {
	ID       string         `json:"id,omitempty" msgpack:"id,omitempty"`
	Text     string         `json:"text,omitempty" msgpack:"text,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
	Score    *float64       `json:"score,omitempty" msgpack:"score,omitempty"`
}

// Turn is one message within a conversation.
//
// A user turn is immutable once created. An assistant turn's Content only
// grows while streaming, except on an error event which replaces it with an
// error message. Stage transitions are monotonic: once a turn reaches a
// terminal stage no further event changes it.
type Turn struct {
	Role        Role          `json:"role" msgpack:"role"`
	Content     string        `json:"content" msgpack:"content"`
	Stage       Stage         `json:"stage,omitempty" msgpack:"stage,omitempty"`
	StageText   string        `json:"stage_text,omitempty" msgpack:"stage_text,omitempty"`
	Citations   []Citation    `json:"citations,omitempty" msgpack:"citations,omitempty"`
	UsedContext []UsedContext `json:"used_context,omitempty" msgpack:"used_context,omitempty"`
	Streaming   bool          `json:"streaming,omitempty" msgpack:"streaming,omitempty"`
}

// NewUserTurn creates an immutable user turn.
func NewUserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// NewAssistantTurn creates an empty assistant turn in the initial
// retrieving stage, entered before any network response.
func NewAssistantTurn() Turn {
	return Turn{
		Role:      RoleAssistant,
		Stage:     StageRetrieving,
		StageText: StatusTextRetrieving,
		Streaming: true,
	}
}

// HistoryEntry is the reduced `{role, content}` pair forwarded as prior
// history on a turn-submit request. Citations and evidence are not resent.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History reduces a conversation to `{role, content}` pairs.
func History(turns []Turn) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(turns))
	for _, t := range turns {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			continue
		}
		out = append(out, HistoryEntry{Role: t.Role, Content: t.Content})
	}
	return out
}

// NormalizeCitations converts a raw decoded citation list into Citations.
// Bare strings become `{id: value}`; objects require a non-empty string id.
// Elements without a usable id are filtered out, and duplicate ids keep the
// first occurrence so ids stay unique within the turn.
func NormalizeCitations(input any) []Citation {
	items, ok := input.([]any)
	if !ok {
		return nil
	}

	out := make([]Citation, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		var c Citation
		switch v := item.(type) {
		case string:
			c = Citation{ID: v}
		case map[string]any:
			id, _ := v["id"].(string)
			if id == "" {
				continue
			}
			quote, _ := v["quote"].(string)
			c = Citation{ID: id, Quote: quote}
		default:
			continue
		}
		if c.ID == "" {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// NormalizeUsedContext converts a raw decoded used_context list.
// Elements with missing fields default to zero values; non-object elements
// are dropped.
func NormalizeUsedContext(input any) []UsedContext {
	items, ok := input.([]any)
	if !ok {
		return nil
	}

	out := make([]UsedContext, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var uc UsedContext
		uc.ID, _ = obj["id"].(string)
		uc.Text, _ = obj["text"].(string)
		if meta, ok := obj["metadata"].(map[string]any); ok {
			uc.Metadata = meta
		}
		if score, ok := obj["score"].(float64); ok {
			uc.Score = &score
		}
		out = append(out, uc)
	}
	return out
}
