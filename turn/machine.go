// Package turn implements the per-turn state machine: the pure transition
// from incoming stream events to the assistant turn's evolving state.
package turn

import (
	"time"

	"github.com/pithecene-io/sluice/types"
)

// DoneLabelGrace is how long the final stage label stays visible after a
// done event before it is cleared. Purely cosmetic; it never delays
// content or citation visibility.
const DoneLabelGrace = 800 * time.Millisecond

// Machine drives one assistant turn through
// retrieving -> generating -> finalizing -> {done | error | aborted}.
//
// Transitions are monotonic: once the turn reaches a terminal stage, every
// later event is discarded. Transport teardown races with the last events,
// so this guard is the correctness backstop regardless of how promptly the
// transport honors cancellation.
type Machine struct {
	turn *types.Turn
}

// NewMachine creates a machine owning the given assistant turn.
func NewMachine(t *types.Turn) *Machine {
	return &Machine{turn: t}
}

// Turn returns the turn the machine mutates.
func (m *Machine) Turn() *types.Turn {
	return m.turn
}

// Terminal returns true once the turn reached done, error or aborted.
func (m *Machine) Terminal() bool {
	return m.turn.Stage.IsTerminal()
}

// Apply advances the turn by one event. Returns false when the event is
// discarded because the turn is already terminal.
func (m *Machine) Apply(ev types.StreamEvent) bool {
	if m.Terminal() {
		return false
	}

	switch ev := ev.(type) {
	case types.StatusEvent:
		if ev.Stage != "" {
			m.turn.Stage = ev.Stage
		}
		if text, known := ev.Stage.StatusText(); known {
			m.turn.StageText = text
		} else if ev.Message != "" {
			m.turn.StageText = ev.Message
		}
		m.turn.Streaming = true

	case types.TokenEvent:
		// Append-only: content never shrinks or is replaced mid-stream.
		m.turn.Content += ev.Delta
		m.turn.Streaming = true

	case types.ContextEvent:
		// A later context event fully supersedes an earlier one.
		m.turn.Citations = ev.Citations
		m.turn.UsedContext = ev.UsedContext

	case types.DoneEvent:
		m.turn.Stage = types.StageDone
		m.turn.Streaming = false
		// The stage label stays visible for DoneLabelGrace; the session
		// controller schedules the clear.

	case types.ErrorEvent:
		m.turn.Stage = types.StageError
		m.turn.Streaming = false
		m.turn.Content = ev.Message
		m.turn.StageText = types.StatusTextFailed
	}

	return true
}

// Abort forces the turn into the aborted terminal stage, preserving any
// content accumulated so far. Returns false if the turn was already
// terminal. Cancellation is not an error: no banner, no content loss.
func (m *Machine) Abort() bool {
	if m.Terminal() {
		return false
	}
	m.turn.Stage = types.StageAborted
	m.turn.Streaming = false
	m.turn.StageText = types.StatusTextInterrupted
	return true
}
