// Package sse implements the event-stream wire format used by the chat
// backend: frames delimited by a blank line, each carrying an optional
// `event:` name line and one or more `data:` payload lines.
package sse

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// DefaultEventName is the event name assumed when a frame carries no
// `event:` line.
const DefaultEventName = "message"

// frameDelimiter separates frames on the wire.
var frameDelimiter = []byte("\n\n")

// Frame is one delimited unit of the wire protocol: an event name and the
// payload assembled from its data lines.
type Frame struct {
	Event string
	Data  string
}

// Decoder reassembles complete frames from arbitrarily-chunked transport
// bytes. Chunk boundaries carry no semantic meaning: a frame split across
// chunks is buffered until its delimiter arrives. Splitting happens on raw
// bytes, so multi-byte UTF-8 sequences spanning chunks survive intact.
//
// A Decoder is single-use per stream and is not safe for concurrent use.
type Decoder struct {
	buf []byte
}

// NewDecoder creates a decoder with an empty buffer.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Write appends a transport chunk and returns every frame the chunk
// completed, in order. Frames with an empty payload are dropped, except a
// payload-less `done` frame, which is the one event that requires no
// payload and must still terminate a turn.
//
// On stream end, any undelimited remainder left in the buffer is not a
// valid frame; callers simply stop writing and the remainder is discarded.
func (d *Decoder) Write(chunk []byte) []Frame {
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		idx := bytes.Index(d.buf, frameDelimiter)
		if idx < 0 {
			return frames
		}
		block := d.buf[:idx]
		d.buf = d.buf[idx+len(frameDelimiter):]

		if frame, ok := parseBlock(block); ok {
			frames = append(frames, frame)
		}
	}
}

// Buffered returns the number of bytes held for a not-yet-complete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// parseBlock parses one delimited block into a frame.
// Lines starting with `event:` select the event name (last one wins, full
// trim); lines starting with `data:` contribute payload fragments (leading
// whitespace trimmed) joined with newlines. Unknown lines are ignored.
func parseBlock(block []byte) (Frame, bool) {
	event := DefaultEventName
	var data []string

	for _, line := range strings.Split(string(block), "\n") {
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimLeft(line[len("data:"):], " \t"))
		}
	}

	payload := strings.Join(data, "\n")
	if payload == "" && event != "done" {
		return Frame{}, false
	}
	return Frame{Event: event, Data: payload}, true
}

// Encoder writes frames in the exact wire layout the backend produces:
// an `event: <name>` line, one `data: <fragment>` line per payload line,
// then a blank line.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WriteEvent writes one frame. An empty name omits the event line, which
// decodes as the default "message" event. Payload newlines split into
// multiple data lines; an empty payload writes no data lines.
func (e *Encoder) WriteEvent(name, payload string) error {
	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "event: %s\n", name)
	}
	if payload != "" {
		for _, fragment := range strings.Split(payload, "\n") {
			fmt.Fprintf(&b, "data: %s\n", fragment)
		}
	}
	b.WriteString("\n")

	_, err := io.WriteString(e.w, b.String())
	return err
}
