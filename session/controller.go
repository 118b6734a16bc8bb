// Package session orchestrates a conversation: it issues turns, feeds the
// decoded event stream through the turn state machine, manages cancellation
// and the non-streaming fallback, and publishes read-only snapshots for
// rendering.
//
// Live state is owned exclusively by the Controller. The rendering layer
// only ever sees copies; the persistence layer only ever sees serialized
// snapshots.
package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/sluice/client"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/turn"
	"github.com/pithecene-io/sluice/types"
)

// Backend is the slice of the backend client the controller uses.
type Backend interface {
	// StreamTurn opens the streaming turn-submit call.
	StreamTurn(ctx context.Context, req *client.TurnRequest) (io.ReadCloser, error)
	// Chat is the plain request/response fallback.
	Chat(ctx context.Context, req *client.TurnRequest) (*client.ChatResponse, error)
}

// SnapshotWriter receives fire-and-forget session snapshots on every
// mutation. Implementations must never block the caller; write failure is
// the implementation's problem, not the session's.
type SnapshotWriter interface {
	WriteSnapshot(snap *types.SessionSnapshot)
}

// Config configures a Controller.
type Config struct {
	// Backend issues turn requests (required).
	Backend Backend
	// Writer persists session snapshots (optional).
	Writer SnapshotWriter
	// Restore seeds the session from a persisted snapshot (optional).
	Restore *types.SessionSnapshot
	// ConversationID overrides the generated conversation id (optional).
	ConversationID string
	// Logger is the session logger (optional).
	Logger *log.Logger
	// Collector counts session metrics (optional).
	Collector *metrics.Collector
	// OnTurnSettled is called once for every assistant turn that reaches
	// a terminal stage (optional). It runs outside the controller's lock
	// and must not call back into the controller synchronously.
	OnTurnSettled func(TurnResult)
}

// TurnResult summarizes a settled assistant turn for integration hooks.
type TurnResult struct {
	ConversationID string
	RequestID      string
	Mode           types.Mode
	// Outcome is the terminal stage reached: done, error or aborted.
	Outcome       string
	ContentChars  int
	CitationCount int
	EvidenceCount int
	Duration      time.Duration
}

// Snapshot is the read-only view of the session published for rendering.
type Snapshot struct {
	ConversationID string
	StartedAt      time.Time
	Title          string
	Mode           types.Mode
	Turns          []types.Turn
	Draft          string
	Banner         string
	Streaming      bool
	UploadType     types.SourceType
	ActiveSource   *types.ActiveSource

	// OpenEvidence is the index of the turn whose evidence panel is open,
	// -1 when closed. FocusedEvidence is the citation id to bring into view.
	OpenEvidence    int
	FocusedEvidence string
}

// streamHandle tracks one in-flight assistant turn. A handle that no
// longer matches the controller's current stream is stale and its events
// are dropped.
type streamHandle struct {
	cancel    context.CancelFunc
	machine   *turn.Machine
	index     int
	requestID string
	startedAt time.Time
}

// Controller owns one session's live state.
type Controller struct {
	backend   Backend
	writer    SnapshotWriter
	logger    *log.Logger
	collector *metrics.Collector
	onSettled func(TurnResult)

	mu              sync.Mutex
	onChange        func(Snapshot)
	conversationID  string
	startedAt       time.Time
	turns           []types.Turn
	draft           string
	title           string
	mode            types.Mode
	uploadType      types.SourceType
	activeSource    *types.ActiveSource
	banner          string
	openEvidence    int
	focusedEvidence string
	stream          *streamHandle
	clearTimers     map[int]*time.Timer
}

// New creates a controller, optionally restored from a persisted snapshot.
func New(cfg Config) (*Controller, error) {
	if cfg.Backend == nil {
		return nil, errors.New("session requires a backend")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}

	c := &Controller{
		backend:        cfg.Backend,
		writer:         cfg.Writer,
		logger:         logger,
		collector:      cfg.Collector,
		onSettled:      cfg.OnTurnSettled,
		conversationID: cfg.ConversationID,
		startedAt:      time.Now(),
		title:          DefaultTitle,
		mode:           types.ModeChat,
		openEvidence:   -1,
	}
	if c.conversationID == "" {
		c.conversationID = NewConversationID()
	}

	if snap := cfg.Restore; snap != nil {
		c.turns = snap.Turns
		c.draft = snap.DraftInput
		if snap.Title != "" {
			c.title = snap.Title
		}
		c.uploadType = snap.UploadType
		c.activeSource = snap.ActiveSource
		if snap.Mode == types.ModeChat || snap.Mode == types.ModeResumeInterview {
			c.mode = snap.Mode
		}
	}

	return c, nil
}

// OnChange registers the change callback. The callback receives a fresh
// snapshot after every mutation and runs outside the controller's lock.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Submit starts a new assistant turn for text. Rejected (returns false)
// when text is empty after trimming or another turn is still streaming.
//
// On acceptance the user turn and a fresh assistant turn are appended
// synchronously; the stream is consumed on a background goroutine whose
// lifetime is bounded by ctx.
func (c *Controller) Submit(ctx context.Context, text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	c.mu.Lock()
	if c.stream != nil {
		c.mu.Unlock()
		return false
	}

	first := len(c.turns) == 0
	c.turns = append(c.turns, types.NewUserTurn(trimmed))
	if first {
		c.title = DeriveTitle(trimmed)
	}
	c.mode = DetectMode(trimmed, c.mode, c.activeSource)
	c.draft = ""
	c.banner = ""

	// Prior turns only; the new message travels in its own field.
	history := types.History(c.turns[:len(c.turns)-1])

	c.turns = append(c.turns, types.NewAssistantTurn())
	index := len(c.turns) - 1

	streamCtx, cancel := context.WithCancel(ctx)
	h := &streamHandle{
		cancel:    cancel,
		machine:   turn.NewMachine(&c.turns[index]),
		index:     index,
		requestID: NewRequestID(),
		startedAt: time.Now(),
	}
	c.stream = h
	c.collector.IncTurnStarted()

	req := &client.TurnRequest{
		Message:        trimmed,
		History:        history,
		Mode:           c.mode,
		ConversationID: c.conversationID,
		RequestID:      h.requestID,
	}
	if c.activeSource != nil {
		req.ActiveSourceID = c.activeSource.SourceID
		req.ActiveSourceType = c.activeSource.SourceType
	}

	notify := c.changedLocked()
	c.mu.Unlock()
	notify()

	go c.runStream(streamCtx, h, req)
	return true
}

// Cancel aborts the in-flight turn, preserving content accumulated so
// far. Idempotent: a no-op when nothing is streaming.
func (c *Controller) Cancel() {
	c.mu.Lock()
	h := c.stream
	if h == nil {
		c.mu.Unlock()
		return
	}
	c.stream = nil
	h.cancel()
	settled := func() {}
	if h.machine.Abort() {
		c.collector.IncTurnAborted()
		settled = c.settledLocked(h)
	}
	notify := c.changedLocked()
	c.mu.Unlock()
	settled()
	notify()
}

// Reset starts a fresh conversation under a new conversation id. The
// bound active source survives; the document outlives any one
// conversation.
func (c *Controller) Reset() {
	c.mu.Lock()
	settled := func() {}
	if h := c.stream; h != nil {
		c.stream = nil
		h.cancel()
		if h.machine.Abort() {
			c.collector.IncTurnAborted()
			settled = c.settledLocked(h)
		}
	}
	c.stopClearTimersLocked()
	c.turns = nil
	c.draft = ""
	c.title = DefaultTitle
	c.mode = types.ModeChat
	c.banner = ""
	c.openEvidence = -1
	c.focusedEvidence = ""
	c.conversationID = NewConversationID()
	c.startedAt = time.Now()
	notify := c.changedLocked()
	c.mu.Unlock()
	settled()
	notify()
}

// SetDraft updates the draft input text.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	notify := c.changedLocked()
	c.mu.Unlock()
	notify()
}

// SetActiveSource binds (or, with nil, unbinds) an ingested document.
func (c *Controller) SetActiveSource(src *types.ActiveSource) {
	c.mu.Lock()
	c.activeSource = src
	notify := c.changedLocked()
	c.mu.Unlock()
	notify()
}

// SetUploadType records the source type selected on the upload form.
func (c *Controller) SetUploadType(t types.SourceType) {
	c.mu.Lock()
	c.uploadType = t
	notify := c.changedLocked()
	c.mu.Unlock()
	notify()
}

// FocusEvidence opens turn index's evidence panel focused on citationID.
// Returns false if the turn has no such citation.
func (c *Controller) FocusEvidence(index int, citationID string) bool {
	c.mu.Lock()
	if index < 0 || index >= len(c.turns) || c.turns[index].Role != types.RoleAssistant {
		c.mu.Unlock()
		return false
	}
	found := false
	for _, cit := range c.turns[index].Citations {
		if cit.ID == citationID {
			found = true
			break
		}
	}
	if !found {
		c.mu.Unlock()
		return false
	}
	c.openEvidence = index
	c.focusedEvidence = citationID
	notify := c.changedLocked()
	c.mu.Unlock()
	notify()
	return true
}

// CloseEvidence closes the evidence panel.
func (c *Controller) CloseEvidence() {
	c.mu.Lock()
	c.openEvidence = -1
	c.focusedEvidence = ""
	notify := c.changedLocked()
	c.mu.Unlock()
	notify()
}

// Close tears the session down: the in-flight turn is aborted and the
// final state is flushed through the snapshot writer.
func (c *Controller) Close() error {
	c.Cancel()
	c.mu.Lock()
	c.stopClearTimersLocked()
	c.mu.Unlock()
	return nil
}

// stopClearTimersLocked cancels every pending stage-label clear. Caller
// must hold mu.
func (c *Controller) stopClearTimersLocked() {
	for _, timer := range c.clearTimers {
		timer.Stop()
	}
	c.clearTimers = nil
}

// VisibleEvidence filters a turn's evidence down to entries referenced by
// its citations. Unreferenced retrieved context is hidden, not deleted.
func VisibleEvidence(t types.Turn) []types.UsedContext {
	if len(t.Citations) == 0 || len(t.UsedContext) == 0 {
		return nil
	}
	ids := make(map[string]struct{}, len(t.Citations))
	for _, cit := range t.Citations {
		ids[cit.ID] = struct{}{}
	}
	var out []types.UsedContext
	for _, ev := range t.UsedContext {
		if ev.ID == "" {
			continue
		}
		if _, ok := ids[ev.ID]; ok {
			out = append(out, ev)
		}
	}
	return out
}

// snapshotLocked builds a Snapshot. Caller must hold mu.
func (c *Controller) snapshotLocked() Snapshot {
	turns := make([]types.Turn, len(c.turns))
	copy(turns, c.turns)
	return Snapshot{
		ConversationID:  c.conversationID,
		StartedAt:       c.startedAt,
		Title:           c.title,
		Mode:            c.mode,
		Turns:           turns,
		Draft:           c.draft,
		Banner:          c.banner,
		Streaming:       c.stream != nil,
		UploadType:      c.uploadType,
		ActiveSource:    c.activeSource,
		OpenEvidence:    c.openEvidence,
		FocusedEvidence: c.focusedEvidence,
	}
}

// settledLocked builds the turn-settled callback for a handle whose turn
// just reached a terminal stage. The result is captured under the lock;
// the returned closure runs after it is released. Caller must hold mu.
func (c *Controller) settledLocked(h *streamHandle) func() {
	fn := c.onSettled
	if fn == nil {
		return func() {}
	}
	t := h.machine.Turn()
	res := TurnResult{
		ConversationID: c.conversationID,
		RequestID:      h.requestID,
		Mode:           c.mode,
		Outcome:        string(t.Stage),
		ContentChars:   len([]rune(t.Content)),
		CitationCount:  len(t.Citations),
		EvidenceCount:  len(t.UsedContext),
		Duration:       time.Since(h.startedAt),
	}
	return func() { fn(res) }
}

// changedLocked captures everything a mutation needs to publish, so the
// write and the callback can run after mu is released. Caller must hold mu.
func (c *Controller) changedLocked() func() {
	snap := c.snapshotLocked()
	writer := c.writer
	fn := c.onChange

	var persist *types.SessionSnapshot
	if writer != nil {
		persist = &types.SessionSnapshot{
			Turns:        snap.Turns,
			DraftInput:   snap.Draft,
			Title:        snap.Title,
			UploadType:   snap.UploadType,
			ActiveSource: snap.ActiveSource,
			Mode:         snap.Mode,
		}
	}

	return func() {
		if writer != nil {
			writer.WriteSnapshot(persist)
		}
		if fn != nil {
			fn(snap)
		}
	}
}
