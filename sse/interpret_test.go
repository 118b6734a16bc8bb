package sse

import (
	"reflect"
	"testing"

	"github.com/pithecene-io/sluice/types"
)

func TestInterpret_Status(t *testing.T) {
	ev, ok := Interpret(Frame{Event: "status", Data: `{"stage":"generating","message":"working"}`})
	if !ok {
		t.Fatal("Interpret ok = false")
	}
	status, ok := ev.(types.StatusEvent)
	if !ok {
		t.Fatalf("event type = %T, want StatusEvent", ev)
	}
	if status.Stage != types.StageGenerating || status.Message != "working" {
		t.Errorf("status = %+v", status)
	}
}

func TestInterpret_StatusUnknownStagePassesThrough(t *testing.T) {
	ev, ok := Interpret(Frame{Event: "status", Data: `{"stage":"reranking"}`})
	if !ok {
		t.Fatal("Interpret ok = false")
	}
	if got := ev.(types.StatusEvent).Stage; got != types.Stage("reranking") {
		t.Errorf("Stage = %q, want reranking", got)
	}
}

func TestInterpret_TokenMissingDeltaIsEmpty(t *testing.T) {
	ev, ok := Interpret(Frame{Event: "token", Data: `{}`})
	if !ok {
		t.Fatal("Interpret ok = false")
	}
	if got := ev.(types.TokenEvent).Delta; got != "" {
		t.Errorf("Delta = %q, want empty", got)
	}
}

func TestInterpret_Context(t *testing.T) {
	data := `{"citations":["c1",{"id":"c2","quote":"q"}],"used_context":[{"id":"c1","text":"ev","score":0.5}]}`
	ev, ok := Interpret(Frame{Event: "context", Data: data})
	if !ok {
		t.Fatal("Interpret ok = false")
	}
	ctx := ev.(types.ContextEvent)
	wantCitations := []types.Citation{{ID: "c1"}, {ID: "c2", Quote: "q"}}
	if !reflect.DeepEqual(ctx.Citations, wantCitations) {
		t.Errorf("Citations = %+v, want %+v", ctx.Citations, wantCitations)
	}
	if len(ctx.UsedContext) != 1 || ctx.UsedContext[0].Text != "ev" {
		t.Errorf("UsedContext = %+v", ctx.UsedContext)
	}
}

func TestInterpret_Done(t *testing.T) {
	for _, data := range []string{"", "{}", "not json"} {
		ev, ok := Interpret(Frame{Event: "done", Data: data})
		if !ok {
			t.Fatalf("done with data %q: ok = false", data)
		}
		if _, isDone := ev.(types.DoneEvent); !isDone {
			t.Fatalf("done with data %q: event type = %T", data, ev)
		}
	}
}

func TestInterpret_ErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"upstream message", `{"error":"backend exploded"}`, "backend exploded"},
		{"missing error field", `{}`, types.DefaultErrorMessage},
		{"whitespace-only message", `{"error":"   "}`, types.DefaultErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := Interpret(Frame{Event: "error", Data: tt.data})
			if !ok {
				t.Fatal("Interpret ok = false")
			}
			if got := ev.(types.ErrorEvent).Message; got != tt.want {
				t.Errorf("Message = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInterpret_DropsMalformedAndUnknown(t *testing.T) {
	frames := []Frame{
		{Event: "token", Data: `{"delta":`},   // malformed JSON
		{Event: "token", Data: `"bare"`},      // not an object
		{Event: "token", Data: `null`},        // null object
		{Event: "heartbeat", Data: `{}`},      // unknown event name
		{Event: DefaultEventName, Data: `{}`}, // default name is not in the union
	}
	for _, f := range frames {
		if ev, ok := Interpret(f); ok {
			t.Errorf("frame %+v interpreted as %T, want dropped", f, ev)
		}
	}
}
