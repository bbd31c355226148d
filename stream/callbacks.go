package stream

import "encoding/json"

// Handler consumes decoded events in arrival order.
type Handler interface {
	Handle(ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev Event)

// Handle calls f(ev).
func (f HandlerFunc) Handle(ev Event) {
	f(ev)
}

// Callbacks routes each event kind to its own callback. Nil callbacks are
// skipped.
type Callbacks struct {
	OnContentDelta     func(text string)
	OnThoughtDelta     func(ThoughtDelta)
	OnTextChunkDelta   func(text string)
	OnFile             func(FileRef)
	OnMessageMeta      func(MessageMeta)
	OnMessageEnd       func(metadata json.RawMessage)
	OnWorkflowFinished func(outputs json.RawMessage)
	OnCompleted        func(hadError bool)
	OnError            func(Error)
}

// Handle implements Handler.
func (c Callbacks) Handle(ev Event) {
	switch e := ev.(type) {
	case ContentDelta:
		if c.OnContentDelta != nil {
			c.OnContentDelta(e.Text)
		}
	case ThoughtDelta:
		if c.OnThoughtDelta != nil {
			c.OnThoughtDelta(e)
		}
	case TextChunkDelta:
		if c.OnTextChunkDelta != nil {
			c.OnTextChunkDelta(e.Text)
		}
	case FileRef:
		if c.OnFile != nil {
			c.OnFile(e)
		}
	case MessageMeta:
		if c.OnMessageMeta != nil {
			c.OnMessageMeta(e)
		}
	case MessageEnd:
		if c.OnMessageEnd != nil {
			c.OnMessageEnd(e.Metadata)
		}
	case WorkflowFinished:
		if c.OnWorkflowFinished != nil {
			c.OnWorkflowFinished(e.Outputs)
		}
	case Error:
		if c.OnError != nil {
			c.OnError(e)
		}
	case Done:
		if c.OnCompleted != nil {
			c.OnCompleted(e.HadError)
		}
	}
}
