// Package stream decodes the server-sent event stream of a single agent send
// into a closed set of typed events.
//
// The agent platform speaks a Dify-style protocol: every frame is a JSON
// object whose "event" field names the kind ("message", "agent_thought",
// "message_end", ...). The decoder turns those loosely-typed frames into the
// Event union below so the rest of agentchat never touches vendor JSON.
//
// # Event order
//
// Events arrive in wire order. No ordering is assumed between kinds except
// that Done is always the last event of a stream. MessageMeta is emitted just
// before the content event whose envelope revealed new ids.
//
// # Usage
//
//	dec := stream.NewDecoder(resp)
//	defer dec.Close()
//	for dec.Next() {
//	    switch ev := dec.Event().(type) {
//	    case stream.ContentDelta:
//	        fmt.Print(ev.Text)
//	    case stream.Done:
//	        return
//	    }
//	}
package stream

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrCancelled marks a stream that ended because the user stopped it.
var ErrCancelled = errors.New("stream cancelled")

// Event is one decoded stream event. The set of implementations is closed.
type Event interface {
	isEvent()
}

// ContentDelta carries an increment of the answer text.
type ContentDelta struct {
	Text string
}

// ThoughtDelta carries an increment of an agent reasoning or tool-use trace.
// Fragments sharing an ID belong to the same thought.
type ThoughtDelta struct {
	ID          string
	Text        string
	Tool        string
	ToolInput   string
	Observation string
	Position    int
}

// TextChunkDelta is workflow-style incremental text, a sibling channel of
// ContentDelta.
type TextChunkDelta struct {
	Text string
}

// FileRef references an attachment revealed mid-stream.
type FileRef struct {
	ID        string
	Type      string
	URL       string
	BelongsTo string
}

// MessageMeta carries server-assigned identifiers. Any field may be empty.
type MessageMeta struct {
	MessageID      string
	ConversationID string
	TaskID         string
}

// MessageEnd marks the end of the answer message.
type MessageEnd struct {
	Metadata json.RawMessage
}

// WorkflowFinished carries the terminal outputs of a workflow-backed agent.
type WorkflowFinished struct {
	Outputs json.RawMessage
	Status  string
	Error   string
}

// Error reports a stream failure, either sent by the server or raised by the
// transport.
type Error struct {
	Reason string
	Code   string
	Status int
	Err    error
}

// Done is always the last event of a stream.
type Done struct {
	HadError bool
}

func (ContentDelta) isEvent()     {}
func (ThoughtDelta) isEvent()     {}
func (TextChunkDelta) isEvent()   {}
func (FileRef) isEvent()          {}
func (MessageMeta) isEvent()      {}
func (MessageEnd) isEvent()       {}
func (WorkflowFinished) isEvent() {}
func (Error) isEvent()            {}
func (Done) isEvent()             {}

// Cancelled reports whether the error stems from a user-initiated stop.
func (e Error) Cancelled() bool {
	return errors.Is(e.Err, ErrCancelled) || errors.Is(e.Err, context.Canceled)
}

func (e Error) Error() string {
	switch {
	case e.Reason != "":
		return e.Reason
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "stream error"
	}
}

func (e Error) Unwrap() error {
	return e.Err
}

// CancelledEvents builds the error/done pair a transport emits when its context was
// cancelled.
func CancelledEvents(cause error) []Event {
	return []Event{
		Error{Reason: "cancelled", Err: errors.Join(ErrCancelled, cause)},
		Done{HadError: true},
	}
}
