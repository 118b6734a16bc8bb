package sse

import (
	"encoding/json"
	"strings"

	"github.com/pithecene-io/sluice/types"
)

// Interpret maps a decoded frame to one member of the closed stream event
// union. The mapping is pure and total: a malformed or unrecognized frame
// yields ok=false and is silently dropped, never an error. The protocol is
// best-effort; a bad frame must never take down the session.
func Interpret(frame Frame) (types.StreamEvent, bool) {
	switch types.EventType(frame.Event) {
	case types.EventTypeDone:
		// done carries no required payload; any payload is ignored.
		return types.DoneEvent{}, true

	case types.EventTypeStatus:
		obj, ok := decodeObject(frame.Data)
		if !ok {
			return nil, false
		}
		stage, _ := obj["stage"].(string)
		message, _ := obj["message"].(string)
		return types.StatusEvent{Stage: types.Stage(stage), Message: message}, true

	case types.EventTypeToken:
		obj, ok := decodeObject(frame.Data)
		if !ok {
			return nil, false
		}
		// Missing delta is treated as an empty string.
		delta, _ := obj["delta"].(string)
		return types.TokenEvent{Delta: delta}, true

	case types.EventTypeContext:
		obj, ok := decodeObject(frame.Data)
		if !ok {
			return nil, false
		}
		return types.ContextEvent{
			Citations:   types.NormalizeCitations(obj["citations"]),
			UsedContext: types.NormalizeUsedContext(obj["used_context"]),
		}, true

	case types.EventTypeError:
		obj, ok := decodeObject(frame.Data)
		if !ok {
			return nil, false
		}
		message, _ := obj["error"].(string)
		if strings.TrimSpace(message) == "" {
			message = types.DefaultErrorMessage
		}
		return types.ErrorEvent{Message: message}, true

	default:
		// Unknown event names are ignored for forward compatibility.
		return nil, false
	}
}

// decodeObject parses a payload as a JSON object.
// Non-object payloads and parse failures drop the frame.
func decodeObject(payload string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return nil, false
	}
	if obj == nil {
		return nil, false
	}
	return obj, true
}
