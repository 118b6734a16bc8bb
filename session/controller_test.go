package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/sluice/client"
	"github.com/pithecene-io/sluice/turn"
	"github.com/pithecene-io/sluice/types"
)

// fakeBackend serves canned stream bodies and chat responses.
type fakeBackend struct {
	mu          sync.Mutex
	streamBody  io.ReadCloser
	streamErr   error
	chatResp    *client.ChatResponse
	chatErr     error
	streamCalls []*client.TurnRequest
	chatCalls   []*client.TurnRequest
}

func (f *fakeBackend) StreamTurn(_ context.Context, req *client.TurnRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamCalls = append(f.streamCalls, req)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return f.streamBody, nil
}

func (f *fakeBackend) Chat(_ context.Context, req *client.TurnRequest) (*client.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls = append(f.chatCalls, req)
	return f.chatResp, f.chatErr
}

func (f *fakeBackend) lastStreamReq(t *testing.T) *client.TurnRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streamCalls) == 0 {
		t.Fatal("no stream request issued")
	}
	return f.streamCalls[len(f.streamCalls)-1]
}

// recordingWriter captures persisted snapshots.
type recordingWriter struct {
	mu    sync.Mutex
	snaps []*types.SessionSnapshot
}

func (w *recordingWriter) WriteSnapshot(snap *types.SessionSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snaps = append(w.snaps, snap)
}

func (w *recordingWriter) last() *types.SessionSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.snaps) == 0 {
		return nil
	}
	return w.snaps[len(w.snaps)-1]
}

func streamOf(frames ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(frames, "")))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestController(t *testing.T, backend Backend, opts ...func(*Config)) *Controller {
	t.Helper()
	cfg := Config{Backend: backend}
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewRequiresBackend(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing backend")
	}
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestController(t, backend)

	for _, text := range []string{"", "   ", "\n\t "} {
		if c.Submit(context.Background(), text) {
			t.Errorf("Submit(%q) accepted", text)
		}
	}
	if got := len(c.Snapshot().Turns); got != 0 {
		t.Errorf("turns appended on rejected submit: %d", got)
	}
	if len(backend.streamCalls) != 0 {
		t.Error("request issued on rejected submit")
	}
}

func TestSubmitStreamsToCompletion(t *testing.T) {
	backend := &fakeBackend{
		streamBody: streamOf(
			"event: status\ndata: {\"stage\":\"generating\"}\n\n",
			"event: token\ndata: {\"delta\":\"Hi\"}\n\n",
			"event: token\ndata: {\"delta\":\" there\"}\n\n",
			"event: context\ndata: {\"citations\":[\"c1\"],\"used_context\":[{\"id\":\"c1\",\"text\":\"evidence\"}]}\n\n",
			"event: done\n\n",
		),
	}
	c := newTestController(t, backend)

	if !c.Submit(context.Background(), "Tell me about X") {
		t.Fatal("Submit() rejected")
	}
	waitFor(t, "turn completion", func() bool { return !c.Snapshot().Streaming })

	snap := c.Snapshot()
	if len(snap.Turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(snap.Turns))
	}
	got := snap.Turns[1]
	if got.Content != "Hi there" {
		t.Errorf("content = %q, want %q", got.Content, "Hi there")
	}
	if got.Stage != types.StageDone || got.Streaming {
		t.Errorf("stage = %q streaming = %v, want done/false", got.Stage, got.Streaming)
	}
	if len(got.Citations) != 1 || got.Citations[0].ID != "c1" {
		t.Errorf("citations = %+v", got.Citations)
	}
	if len(got.UsedContext) != 1 || got.UsedContext[0].Text != "evidence" {
		t.Errorf("used context = %+v", got.UsedContext)
	}
	if snap.Banner != "" {
		t.Errorf("banner = %q, want empty", snap.Banner)
	}

	req := backend.lastStreamReq(t)
	if req.Message != "Tell me about X" {
		t.Errorf("message = %q", req.Message)
	}
	if req.History == nil || len(req.History) != 0 {
		t.Errorf("first turn history = %v, want empty list", req.History)
	}
	if req.ConversationID == "" || req.RequestID == "" {
		t.Error("missing conversation or request id")
	}
}

func TestSubmitRejectedWhileStreaming(t *testing.T) {
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()
	backend := &fakeBackend{streamBody: pr}
	c := newTestController(t, backend)

	if !c.Submit(context.Background(), "first") {
		t.Fatal("first Submit() rejected")
	}
	if c.Submit(context.Background(), "second") {
		t.Error("Submit() accepted while streaming")
	}
	if got := len(c.Snapshot().Turns); got != 2 {
		t.Errorf("turns = %d, want 2", got)
	}
}

func TestSubmitForwardsPriorHistory(t *testing.T) {
	backend := &fakeBackend{
		streamBody: streamOf("event: token\ndata: {\"delta\":\"one\"}\n\n", "event: done\n\n"),
	}
	c := newTestController(t, backend)

	if !c.Submit(context.Background(), "first question") {
		t.Fatal("Submit() rejected")
	}
	waitFor(t, "first turn", func() bool { return !c.Snapshot().Streaming })

	backend.mu.Lock()
	backend.streamBody = streamOf("event: done\n\n")
	backend.mu.Unlock()

	if !c.Submit(context.Background(), "second question") {
		t.Fatal("second Submit() rejected")
	}
	waitFor(t, "second turn", func() bool { return !c.Snapshot().Streaming })

	req := backend.lastStreamReq(t)
	want := []types.HistoryEntry{
		{Role: types.RoleUser, Content: "first question"},
		{Role: types.RoleAssistant, Content: "one"},
	}
	if len(req.History) != len(want) {
		t.Fatalf("history = %+v, want %+v", req.History, want)
	}
	for i := range want {
		if req.History[i] != want[i] {
			t.Errorf("history[%d] = %+v, want %+v", i, req.History[i], want[i])
		}
	}
}

func TestCancelPreservesContent(t *testing.T) {
	pr, pw := io.Pipe()
	backend := &fakeBackend{streamBody: pr}
	c := newTestController(t, backend)

	if !c.Submit(context.Background(), "long answer please") {
		t.Fatal("Submit() rejected")
	}
	go func() {
		_, _ = pw.Write([]byte("event: token\ndata: {\"delta\":\"partial\"}\n\n"))
	}()
	waitFor(t, "partial content", func() bool {
		snap := c.Snapshot()
		return len(snap.Turns) == 2 && snap.Turns[1].Content == "partial"
	})

	c.Cancel()
	_ = pw.Close()

	snap := c.Snapshot()
	got := snap.Turns[1]
	if got.Stage != types.StageAborted {
		t.Errorf("stage = %q, want aborted", got.Stage)
	}
	if got.Content != "partial" {
		t.Errorf("content = %q, accumulated content must survive", got.Content)
	}
	if got.StageText != types.StatusTextInterrupted {
		t.Errorf("stage text = %q", got.StageText)
	}
	if snap.Banner != "" {
		t.Errorf("banner = %q, cancellation is not an error", snap.Banner)
	}

	// Idempotent with nothing in flight.
	c.Cancel()
	if c.Snapshot().Turns[1].Stage != types.StageAborted {
		t.Error("second Cancel() changed state")
	}
}

func TestErrorEventSetsBanner(t *testing.T) {
	backend := &fakeBackend{
		streamBody: streamOf(
			"event: token\ndata: {\"delta\":\"part\"}\n\n",
			"event: error\ndata: {\"error\":\"model overloaded\"}\n\n",
		),
	}
	c := newTestController(t, backend)

	if !c.Submit(context.Background(), "hi") {
		t.Fatal("Submit() rejected")
	}
	waitFor(t, "error turn", func() bool { return !c.Snapshot().Streaming })

	snap := c.Snapshot()
	got := snap.Turns[1]
	if got.Stage != types.StageError {
		t.Errorf("stage = %q, want error", got.Stage)
	}
	if got.Content != "model overloaded" {
		t.Errorf("content = %q, error replaces content", got.Content)
	}
	if snap.Banner != "model overloaded" {
		t.Errorf("banner = %q", snap.Banner)
	}

	// The session stays usable for the next turn.
	backend.mu.Lock()
	backend.streamBody = streamOf("event: done\n\n")
	backend.mu.Unlock()
	if !c.Submit(context.Background(), "again") {
		t.Error("Submit() rejected after errored turn")
	}
}

func TestFallbackOnNonOKStatus(t *testing.T) {
	backend := &fakeBackend{
		streamErr: &client.StatusError{Code: 502},
		chatResp: &client.ChatResponse{
			Answer:      "plain answer",
			Citations:   []types.Citation{{ID: "c1"}},
			UsedContext: []types.UsedContext{{ID: "c1", Text: "chunk"}},
		},
	}
	c := newTestController(t, backend)

	if !c.Submit(context.Background(), "hi") {
		t.Fatal("Submit() rejected")
	}
	waitFor(t, "fallback turn", func() bool { return !c.Snapshot().Streaming })

	snap := c.Snapshot()
	got := snap.Turns[1]
	if got.Stage != types.StageDone {
		t.Fatalf("stage = %q, want done", got.Stage)
	}
	if got.Content != "plain answer" {
		t.Errorf("content = %q", got.Content)
	}
	if len(got.Citations) != 1 || len(got.UsedContext) != 1 {
		t.Errorf("citations/evidence = %+v / %+v", got.Citations, got.UsedContext)
	}
	if len(backend.chatCalls) != 1 {
		t.Errorf("chat calls = %d, want 1", len(backend.chatCalls))
	}
}

func TestFallbackFailureErrorsTurn(t *testing.T) {
	backend := &fakeBackend{
		streamErr: errors.New("connection refused"),
		chatErr:   errors.New("connection refused"),
	}
	c := newTestController(t, backend)

	if !c.Submit(context.Background(), "hi") {
		t.Fatal("Submit() rejected")
	}
	waitFor(t, "errored turn", func() bool { return !c.Snapshot().Streaming })

	snap := c.Snapshot()
	if snap.Turns[1].Stage != types.StageError {
		t.Errorf("stage = %q, want error", snap.Turns[1].Stage)
	}
	if snap.Banner == "" {
		t.Error("banner empty after transport failure")
	}
}

func TestTitleDerivedFromFirstTurn(t *testing.T) {
	backend := &fakeBackend{streamBody: streamOf("event: done\n\n")}
	c := newTestController(t, backend)

	if got := c.Snapshot().Title; got != DefaultTitle {
		t.Errorf("initial title = %q", got)
	}

	long := "tell me everything about distributed consensus"
	if !c.Submit(context.Background(), long) {
		t.Fatal("Submit() rejected")
	}
	waitFor(t, "turn", func() bool { return !c.Snapshot().Streaming })

	want := "tell me everything a..."
	if got := c.Snapshot().Title; got != want {
		t.Errorf("title = %q, want %q", got, want)
	}

	// Second turn must not retitle.
	backend.mu.Lock()
	backend.streamBody = streamOf("event: done\n\n")
	backend.mu.Unlock()
	if !c.Submit(context.Background(), "something else entirely here") {
		t.Fatal("second Submit() rejected")
	}
	waitFor(t, "second turn", func() bool { return !c.Snapshot().Streaming })
	if got := c.Snapshot().Title; got != want {
		t.Errorf("title changed on second turn: %q", got)
	}
}

func TestSnapshotWriterReceivesMutations(t *testing.T) {
	writer := &recordingWriter{}
	backend := &fakeBackend{streamBody: streamOf("event: token\ndata: {\"delta\":\"ok\"}\n\n", "event: done\n\n")}
	c := newTestController(t, backend, func(cfg *Config) { cfg.Writer = writer })

	c.SetDraft("dra")
	if !c.Submit(context.Background(), "persist me") {
		t.Fatal("Submit() rejected")
	}
	waitFor(t, "turn", func() bool { return !c.Snapshot().Streaming })

	snap := writer.last()
	if snap == nil {
		t.Fatal("no snapshots written")
	}
	if len(snap.Turns) != 2 || snap.Turns[1].Content != "ok" {
		t.Errorf("persisted turns = %+v", snap.Turns)
	}
	if snap.Title == "" {
		t.Error("persisted title empty")
	}
	if snap.DraftInput != "" {
		t.Errorf("draft = %q, submit must clear it", snap.DraftInput)
	}
}

func TestRestoreSeedsSession(t *testing.T) {
	restore := &types.SessionSnapshot{
		Turns: []types.Turn{
			{Role: types.RoleUser, Content: "earlier"},
			{Role: types.RoleAssistant, Content: "answer", Stage: types.StageDone},
		},
		DraftInput: "half-typed",
		Title:      "earlier...",
		Mode:       types.ModeResumeInterview,
		ActiveSource: &types.ActiveSource{
			SourceID: "src_1", SourceType: types.SourceTypeResume, Filename: "cv.pdf",
		},
	}
	c := newTestController(t, &fakeBackend{}, func(cfg *Config) { cfg.Restore = restore })

	snap := c.Snapshot()
	if len(snap.Turns) != 2 || snap.Title != "earlier..." || snap.Draft != "half-typed" {
		t.Errorf("restored snapshot = %+v", snap)
	}
	if snap.Mode != types.ModeResumeInterview {
		t.Errorf("mode = %q", snap.Mode)
	}
	if snap.ActiveSource == nil || snap.ActiveSource.SourceID != "src_1" {
		t.Errorf("active source = %+v", snap.ActiveSource)
	}
}

func TestResetStartsFreshConversation(t *testing.T) {
	backend := &fakeBackend{streamBody: streamOf("event: done\n\n")}
	c := newTestController(t, backend)
	c.SetActiveSource(&types.ActiveSource{SourceID: "src_1", SourceType: types.SourceTypeResume})

	if !c.Submit(context.Background(), "hello") {
		t.Fatal("Submit() rejected")
	}
	waitFor(t, "turn", func() bool { return !c.Snapshot().Streaming })
	before := c.Snapshot().ConversationID

	c.Reset()
	snap := c.Snapshot()
	if len(snap.Turns) != 0 || snap.Title != DefaultTitle || snap.Mode != types.ModeChat {
		t.Errorf("state after reset = %+v", snap)
	}
	if snap.ConversationID == before {
		t.Error("conversation id not rotated")
	}
	if snap.ActiveSource == nil {
		t.Error("active source must survive reset")
	}
}

func TestFocusEvidence(t *testing.T) {
	backend := &fakeBackend{
		streamBody: streamOf(
			"event: context\ndata: {\"citations\":[\"c1\"],\"used_context\":[{\"id\":\"c1\",\"text\":\"x\"}]}\n\n",
			"event: done\n\n",
		),
	}
	c := newTestController(t, backend)

	if !c.Submit(context.Background(), "hi") {
		t.Fatal("Submit() rejected")
	}
	waitFor(t, "turn", func() bool { return !c.Snapshot().Streaming })

	if !c.FocusEvidence(1, "c1") {
		t.Fatal("FocusEvidence() rejected valid citation")
	}
	snap := c.Snapshot()
	if snap.OpenEvidence != 1 || snap.FocusedEvidence != "c1" {
		t.Errorf("focus = %d/%q", snap.OpenEvidence, snap.FocusedEvidence)
	}

	if c.FocusEvidence(1, "missing") {
		t.Error("FocusEvidence() accepted unknown citation")
	}
	if c.FocusEvidence(0, "c1") {
		t.Error("FocusEvidence() accepted user turn")
	}
	if c.FocusEvidence(9, "c1") {
		t.Error("FocusEvidence() accepted out-of-range index")
	}

	c.CloseEvidence()
	if got := c.Snapshot().OpenEvidence; got != -1 {
		t.Errorf("OpenEvidence = %d after close", got)
	}
}

func TestVisibleEvidence(t *testing.T) {
	turn := types.Turn{
		Role:      types.RoleAssistant,
		Citations: []types.Citation{{ID: "c1"}, {ID: "c3"}},
		UsedContext: []types.UsedContext{
			{ID: "c1", Text: "cited"},
			{ID: "c2", Text: "retrieved but unreferenced"},
			{Text: "no id"},
			{ID: "c3", Text: "also cited"},
		},
	}

	got := VisibleEvidence(turn)
	if len(got) != 2 {
		t.Fatalf("visible = %d, want 2", len(got))
	}
	if got[0].ID != "c1" || got[1].ID != "c3" {
		t.Errorf("visible = %+v", got)
	}

	if VisibleEvidence(types.Turn{}) != nil {
		t.Error("empty turn must yield nil")
	}
}

func TestUnknownAndMalformedFramesIgnored(t *testing.T) {
	backend := &fakeBackend{
		streamBody: streamOf(
			"event: heartbeat\ndata: {}\n\n",
			"event: token\ndata: not json\n\n",
			"event: token\ndata: {\"delta\":\"clean\"}\n\n",
			"event: done\n\n",
		),
	}
	c := newTestController(t, backend)

	if !c.Submit(context.Background(), "hi") {
		t.Fatal("Submit() rejected")
	}
	waitFor(t, "turn", func() bool { return !c.Snapshot().Streaming })

	got := c.Snapshot().Turns[1]
	if got.Content != "clean" || got.Stage != types.StageDone {
		t.Errorf("turn = %+v", got)
	}
}

func TestOnTurnSettled(t *testing.T) {
	backend := &fakeBackend{
		streamBody: streamOf(
			"event: token\ndata: {\"delta\":\"answer\"}\n\n",
			"event: context\ndata: {\"citations\":[\"c1\"],\"used_context\":[{\"id\":\"c1\",\"text\":\"ev\"}]}\n\n",
			"event: done\n\n",
		),
	}

	var mu sync.Mutex
	var results []TurnResult
	c := newTestController(t, backend, func(cfg *Config) {
		cfg.OnTurnSettled = func(res TurnResult) {
			mu.Lock()
			defer mu.Unlock()
			results = append(results, res)
		}
	})

	if !c.Submit(context.Background(), "hi") {
		t.Fatal("Submit() rejected")
	}
	waitFor(t, "settled callback", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 1
	})

	mu.Lock()
	got := results[0]
	mu.Unlock()
	if got.Outcome != "done" {
		t.Errorf("outcome = %q, want done", got.Outcome)
	}
	if got.ContentChars != len("answer") {
		t.Errorf("content chars = %d", got.ContentChars)
	}
	if got.CitationCount != 1 || got.EvidenceCount != 1 {
		t.Errorf("citations = %d evidence = %d", got.CitationCount, got.EvidenceCount)
	}
	if got.ConversationID == "" || got.RequestID == "" {
		t.Error("missing conversation or request id")
	}
}

func TestOnTurnSettledOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()
	backend := &fakeBackend{streamBody: pr}

	var mu sync.Mutex
	var results []TurnResult
	c := newTestController(t, backend, func(cfg *Config) {
		cfg.OnTurnSettled = func(res TurnResult) {
			mu.Lock()
			defer mu.Unlock()
			results = append(results, res)
		}
	})

	if !c.Submit(context.Background(), "hi") {
		t.Fatal("Submit() rejected")
	}
	c.Cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 {
		t.Fatalf("settled callbacks = %d, want 1", len(results))
	}
	if results[0].Outcome != "aborted" {
		t.Errorf("outcome = %q, want aborted", results[0].Outcome)
	}
}

func TestDoneLabelClearsAfterQuickResubmit(t *testing.T) {
	backend := &fakeBackend{
		streamBody: streamOf("event: token\ndata: {\"delta\":\"one\"}\n\n", "event: done\n\n"),
	}
	c := newTestController(t, backend)

	if !c.Submit(context.Background(), "first question") {
		t.Fatal("Submit() rejected")
	}
	waitFor(t, "first turn", func() bool { return !c.Snapshot().Streaming })

	backend.mu.Lock()
	backend.streamBody = streamOf("event: token\ndata: {\"delta\":\"two\"}\n\n", "event: done\n\n")
	backend.mu.Unlock()

	// Resubmit inside the first turn's label grace window. The first
	// turn's pending clear must survive the second turn's schedule and
	// the reallocation of the turns slice.
	if !c.Submit(context.Background(), "second question") {
		t.Fatal("second Submit() rejected")
	}
	waitFor(t, "second turn", func() bool { return !c.Snapshot().Streaming })

	waitFor(t, "grace clear on both done turns", func() bool {
		for _, tn := range c.Snapshot().Turns {
			if tn.Role == types.RoleAssistant && tn.StageText != "" {
				return false
			}
		}
		return true
	})
}

func TestFailedLabelSurvivesGrace(t *testing.T) {
	backend := &fakeBackend{
		streamBody: streamOf("event: error\ndata: {\"error\":\"boom\"}\n\n"),
	}
	c := newTestController(t, backend)

	if !c.Submit(context.Background(), "question") {
		t.Fatal("Submit() rejected")
	}
	waitFor(t, "error turn", func() bool { return !c.Snapshot().Streaming })

	time.Sleep(turn.DoneLabelGrace + 100*time.Millisecond)
	got := c.Snapshot().Turns[1]
	if got.StageText != types.StatusTextFailed {
		t.Errorf("stage text = %q, want %q", got.StageText, types.StatusTextFailed)
	}
}
