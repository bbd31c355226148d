package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/tidwall/gjson"

	"agentchat/config"
)

// Decoder turns an SSE response into Events. The final event is always Done.
type Decoder struct {
	frames  ssestream.Decoder
	pending []Event
	current Event
	meta    MessageMeta
	failed  bool
	done    bool
	err     error
}

// NewDecoder wraps the body of a streaming response. The caller owns closing
// the decoder, which closes the body.
func NewDecoder(res *http.Response) *Decoder {
	return &Decoder{frames: ssestream.NewDecoder(res)}
}

// Next advances to the next event. It returns false once Done was delivered.
func (d *Decoder) Next() bool {
	for len(d.pending) == 0 {
		if d.done {
			return false
		}
		d.fill()
	}

	d.current = d.pending[0]
	d.pending = d.pending[1:]
	return true
}

// Event returns the event produced by the last successful Next.
func (d *Decoder) Event() Event {
	return d.current
}

// Err returns the framing error that ended the stream early, if any.
func (d *Decoder) Err() error {
	return d.err
}

// Close releases the underlying response body.
func (d *Decoder) Close() error {
	if d.frames == nil {
		return nil
	}
	return d.frames.Close()
}

func (d *Decoder) fill() {
	if d.frames == nil || !d.frames.Next() {
		if d.frames != nil && d.frames.Err() != nil {
			d.err = d.frames.Err()
			d.pending = append(d.pending, Error{Reason: d.err.Error(), Err: d.err})
			d.failed = true
		}
		d.pending = append(d.pending, Done{HadError: d.failed})
		d.done = true
		return
	}

	frame := d.frames.Event()
	for _, ev := range d.decode(frame.Data) {
		if _, ok := ev.(Error); ok {
			d.failed = true
		}
		d.pending = append(d.pending, ev)
	}
}

// decode applies DecodeFrame and suppresses MessageMeta events that repeat
// the ids already announced on this stream.
func (d *Decoder) decode(data []byte) []Event {
	events := DecodeFrame(data)
	out := events[:0]
	for _, ev := range events {
		if meta, ok := ev.(MessageMeta); ok {
			merged := d.meta
			if meta.MessageID != "" {
				merged.MessageID = meta.MessageID
			}
			if meta.ConversationID != "" {
				merged.ConversationID = meta.ConversationID
			}
			if meta.TaskID != "" {
				merged.TaskID = meta.TaskID
			}
			if merged == d.meta {
				continue
			}
			d.meta = merged
			ev = merged
		}
		out = append(out, ev)
	}
	return out
}

// DecodeFrame decodes the JSON payload of one SSE frame. Unknown event kinds
// and malformed payloads decode to no events.
func DecodeFrame(data []byte) []Event {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || !gjson.ValidBytes(data) {
		if config.DebugLog != nil && len(data) > 0 {
			config.DebugLog.Printf("[Stream] Skipping malformed frame (%d bytes)", len(data))
		}
		return nil
	}

	frame := gjson.ParseBytes(data)
	var events []Event

	if meta := (MessageMeta{
		MessageID:      firstString(frame, "message_id", "id"),
		ConversationID: frame.Get("conversation_id").String(),
		TaskID:         frame.Get("task_id").String(),
	}); meta != (MessageMeta{}) && frame.Get("event").String() != "error" {
		events = append(events, meta)
	}

	switch kind := frame.Get("event").String(); kind {
	case "message", "agent_message":
		if text := frame.Get("answer").String(); text != "" {
			events = append(events, ContentDelta{Text: text})
		}

	case "agent_thought":
		events = append(events, ThoughtDelta{
			ID:          frame.Get("id").String(),
			Text:        frame.Get("thought").String(),
			Tool:        frame.Get("tool").String(),
			ToolInput:   frame.Get("tool_input").String(),
			Observation: frame.Get("observation").String(),
			Position:    int(frame.Get("position").Int()),
		})

	case "text_chunk":
		if text := frame.Get("data.text").String(); text != "" {
			events = append(events, TextChunkDelta{Text: text})
		}

	case "message_file":
		events = append(events, FileRef{
			ID:        frame.Get("id").String(),
			Type:      frame.Get("type").String(),
			URL:       frame.Get("url").String(),
			BelongsTo: frame.Get("belongs_to").String(),
		})

	case "message_end":
		events = append(events, MessageEnd{Metadata: rawOrNil(frame.Get("metadata"))})

	case "workflow_finished":
		events = append(events, WorkflowFinished{
			Outputs: rawOrNil(frame.Get("data.outputs")),
			Status:  frame.Get("data.status").String(),
			Error:   frame.Get("data.error").String(),
		})

	case "error":
		reason := frame.Get("message").String()
		events = append(events, Error{
			Reason: reason,
			Code:   frame.Get("code").String(),
			Status: int(frame.Get("status").Int()),
			Err:    fmt.Errorf("agent error: %s", reason),
		})

	default:
		// ping, workflow_started, node_started, node_finished, tts_message, ...
		// carry no transcript content. Ids they carry still count.
		if config.DebugLog != nil && kind != "ping" {
			config.DebugLog.Printf("[Stream] Ignoring event kind %q", kind)
		}
	}

	return events
}

// Walk drains dec into h. If ctx is cancelled first, Walk delivers the
// cancellation error and Done itself and returns ctx.Err().
func Walk(ctx context.Context, dec *Decoder, h Handler) error {
	for dec.Next() {
		if ctx.Err() != nil {
			for _, ev := range CancelledEvents(ctx.Err()) {
				h.Handle(ev)
			}
			return ctx.Err()
		}
		h.Handle(dec.Event())
	}
	return dec.Err()
}

// OutputText recovers displayable text from a workflow outputs object by
// probing the usual field names in priority order.
func OutputText(outputs json.RawMessage) (string, bool) {
	if len(outputs) == 0 || !gjson.ValidBytes(outputs) {
		return "", false
	}

	parsed := gjson.ParseBytes(outputs)
	if parsed.Type == gjson.String {
		return parsed.String(), parsed.String() != ""
	}

	for _, field := range []string{"text", "answer", "output", "result", "content"} {
		if v := parsed.Get(field); v.Type == gjson.String && v.String() != "" {
			return v.String(), true
		}
	}
	return "", false
}

func firstString(frame gjson.Result, paths ...string) string {
	// "id" only identifies the message on message-level events.
	kind := frame.Get("event").String()
	for _, p := range paths {
		if p == "id" && kind != "message" && kind != "agent_message" && kind != "message_end" {
			continue
		}
		if v := frame.Get(p).String(); v != "" {
			return v
		}
	}
	return ""
}

func rawOrNil(r gjson.Result) json.RawMessage {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	return json.RawMessage(r.Raw)
}
