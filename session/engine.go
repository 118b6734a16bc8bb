package session

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/pithecene-io/sluice/client"
	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/sse"
	"github.com/pithecene-io/sluice/turn"
	"github.com/pithecene-io/sluice/types"
)

// runStream consumes one assistant turn's event stream to completion.
//
// Failure handling follows the session error taxonomy: a transport failure
// before any interpreted event falls back to the plain chat call; a failure
// after streamed content errors the turn; cancellation is not an error and
// produces no banner. Malformed frames are dropped by the interpreter and
// never surface here.
func (c *Controller) runStream(ctx context.Context, h *streamHandle, req *client.TurnRequest) {
	body, err := c.backend.StreamTurn(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.fallback(ctx, h, req, err)
		return
	}
	defer iox.DiscardClose(body)

	decoder := sse.NewDecoder()
	buf := make([]byte, 32*1024)
	interpreted := false

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			for _, frame := range decoder.Write(buf[:n]) {
				c.collector.IncFrameDecoded()
				ev, ok := sse.Interpret(frame)
				if !ok {
					c.collector.IncFrameDropped()
					continue
				}
				interpreted = true
				c.applyEvent(h, ev)
			}
		}

		if c.streamSettled(h) {
			// Terminal state reached (or a newer turn took over); the
			// transport can be torn down without waiting for EOF.
			return
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("turn stream read failed", map[string]any{
				"request_id": h.requestID,
				"error":      readErr.Error(),
			})
			if !interpreted {
				c.fallback(ctx, h, req, readErr)
				return
			}
			c.applyEvent(h, types.ErrorEvent{Message: "The answer stream failed: " + readErr.Error()})
			return
		}
	}

	// EOF before a terminal event. An empty stream gets the fallback; a
	// stream that already produced content is errored so the turn cannot
	// hang in a streaming state forever.
	if !interpreted {
		c.fallback(ctx, h, req, errors.New("stream ended without any event"))
		return
	}
	c.logger.Warn("turn stream ended before terminal event", map[string]any{
		"request_id": h.requestID,
	})
	c.applyEvent(h, types.ErrorEvent{Message: types.DefaultErrorMessage})
}

// fallback retries the turn over the plain chat call and replays the
// response as the event sequence the stream would have produced.
func (c *Controller) fallback(ctx context.Context, h *streamHandle, req *client.TurnRequest, cause error) {
	c.collector.IncFallbackUsed()
	c.logger.Warn("streaming unavailable, using plain chat", map[string]any{
		"request_id": h.requestID,
		"cause":      cause.Error(),
	})

	resp, err := c.backend.Chat(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.applyEvent(h, types.ErrorEvent{Message: "The answer stream failed: " + err.Error()})
		return
	}

	c.applyEvent(h, types.TokenEvent{Delta: resp.Answer})
	if len(resp.Citations) > 0 || len(resp.UsedContext) > 0 {
		c.applyEvent(h, types.ContextEvent{
			Citations:   resp.Citations,
			UsedContext: resp.UsedContext,
		})
	}
	c.applyEvent(h, types.DoneEvent{})
}

// applyEvent feeds one event through the turn state machine and publishes
// the result. Events for a stale handle (a newer turn owns the session)
// and events after a terminal stage are discarded.
func (c *Controller) applyEvent(h *streamHandle, ev types.StreamEvent) {
	c.mu.Lock()
	if c.stream != h {
		c.collector.IncEventDiscardedLate()
		c.mu.Unlock()
		return
	}
	if !h.machine.Apply(ev) {
		c.collector.IncEventDiscardedLate()
		c.mu.Unlock()
		return
	}
	c.collector.IncEventApplied()

	switch e := ev.(type) {
	case types.ErrorEvent:
		c.banner = e.Message
		c.collector.IncTurnErrored()
	case types.DoneEvent:
		c.collector.IncTurnCompleted()
	}

	settled := func() {}
	if h.machine.Terminal() {
		c.stream = nil
		h.cancel()
		if h.machine.Turn().Stage == types.StageDone {
			c.scheduleStageTextClearLocked(h.index)
		}
		settled = c.settledLocked(h)
	}

	notify := c.changedLocked()
	c.mu.Unlock()
	settled()
	notify()
}

// streamSettled reports whether h no longer needs its transport: its turn
// reached a terminal stage or a newer turn took over the session.
func (c *Controller) streamSettled(h *streamHandle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != h || h.machine.Terminal()
}

// scheduleStageTextClearLocked clears the done turn's stage label after
// the short display grace period. Cosmetic only: content and citations
// are already visible. Each done turn gets its own timer, keyed by its
// slot in c.turns, so a later turn's schedule never cancels an earlier
// turn's pending clear. Clearing goes through the slice index because
// the backing array may have been reallocated by a subsequent Submit.
// Caller must hold mu.
func (c *Controller) scheduleStageTextClearLocked(index int) {
	if c.clearTimers == nil {
		c.clearTimers = make(map[int]*time.Timer)
	}
	if prev, ok := c.clearTimers[index]; ok {
		prev.Stop()
	}
	c.clearTimers[index] = time.AfterFunc(turn.DoneLabelGrace, func() {
		c.mu.Lock()
		delete(c.clearTimers, index)
		if index < len(c.turns) && c.turns[index].Stage == types.StageDone {
			c.turns[index].StageText = ""
		}
		notify := c.changedLocked()
		c.mu.Unlock()
		notify()
	})
}
