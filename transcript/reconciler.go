package transcript

import (
	"encoding/json"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"agentchat/config"
	"agentchat/stream"
	"agentchat/typewriter"
)

// State is the lifecycle stage of the in-flight answer.
type State int

const (
	Placeholder State = iota
	Streaming
	Finalized
)

func (s State) String() string {
	switch s {
	case Placeholder:
		return "placeholder"
	case Streaming:
		return "streaming"
	case Finalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// ErrStreamFailed is reported when a stream ends with an error flag but no
// error event explained it.
var ErrStreamFailed = errors.New("stream ended with an error")

// Final describes how the answer was finalized.
type Final struct {
	HadError  bool
	Cancelled bool
	Err       error
}

// Outcome is what the caller must act on after applying an event.
type Outcome struct {
	// Cmd arms the typewriter when non-nil.
	Cmd tea.Cmd

	// ConversationID and TaskID are set when the event revealed them.
	ConversationID string
	TaskID         string

	// Final is set once, by the event that finalized the answer.
	Final *Final
}

// Reconciler folds the events of one send into its answer message. It is not
// safe for concurrent use; all calls come from the owning update loop.
type Reconciler struct {
	id      string
	sched   *typewriter.Scheduler
	state   State
	rebound bool
	content string
	outputs json.RawMessage
	failure *stream.Error
}

// NewReconciler tracks the placeholder with the given id. A nil scheduler
// gets the default reveal options.
func NewReconciler(placeholderID string, sched *typewriter.Scheduler) *Reconciler {
	if sched == nil {
		sched = typewriter.New(typewriter.DefaultOptions())
	}
	return &Reconciler{id: placeholderID, sched: sched}
}

// ID returns the current id of the answer: the placeholder id until the
// server assigned one.
func (r *Reconciler) ID() string {
	return r.id
}

// State returns the lifecycle stage.
func (r *Reconciler) State() State {
	return r.state
}

// Pending reports whether a typewriter tick is armed.
func (r *Reconciler) Pending() bool {
	return r.sched.Pending()
}

// Apply folds ev into t. Events arriving after finalization are ignored.
func (r *Reconciler) Apply(t Transcript, ev stream.Event) (Transcript, Outcome) {
	if r.state == Finalized {
		return t, Outcome{}
	}
	if r.state == Placeholder {
		r.state = Streaming
	}

	var out Outcome
	switch e := ev.(type) {
	case stream.MessageMeta:
		if e.MessageID != "" && !r.rebound {
			t = t.Update(r.id, func(m *Message) { m.ID = e.MessageID })
			r.id = e.MessageID
			r.rebound = true
		}
		if e.ConversationID != "" {
			t = t.Update(r.id, func(m *Message) { m.ConversationID = e.ConversationID })
		}
		out.ConversationID = e.ConversationID
		out.TaskID = e.TaskID

	case stream.ContentDelta:
		t, out.Cmd = r.appendContent(t, e.Text)

	case stream.TextChunkDelta:
		t, out.Cmd = r.appendContent(t, e.Text)

	case stream.ThoughtDelta:
		t = t.Update(r.id, func(m *Message) { m.AgentThoughts = MergeThought(m.AgentThoughts, e) })

	case stream.FileRef:
		t = t.Update(r.id, func(m *Message) { m.Files = AddFile(m.Files, e) })

	case stream.MessageEnd:
		t = t.Update(r.id, func(m *Message) { m.Metadata = e.Metadata })

	case stream.WorkflowFinished:
		r.outputs = e.Outputs
		if e.Status == "failed" && r.failure == nil {
			r.failure = &stream.Error{Reason: e.Error, Err: errors.New(e.Error)}
		}

	case stream.Error:
		if r.failure == nil {
			r.failure = &e
		}

	case stream.Done:
		var final Final
		t, final = r.finalize(t, e.HadError)
		out.Final = &final
	}
	return t, out
}

// Tick advances the typewriter reveal of the answer.
func (r *Reconciler) Tick(t Transcript, msg typewriter.TickMsg) (Transcript, tea.Cmd) {
	if r.state == Finalized {
		return t, nil
	}
	visible, cmd, ok := r.sched.Tick(msg)
	if !ok {
		return t, nil
	}
	return t.Update(r.id, func(m *Message) { m.Content = visible }), cmd
}

// Abort finalizes the answer after a user-initiated stop. Only text already
// revealed is kept and no error is recorded. An answer that revealed nothing
// is removed.
func (r *Reconciler) Abort(t Transcript) Transcript {
	if r.state == Finalized {
		return t
	}
	r.state = Finalized
	r.sched.Cancel()

	visible := r.sched.Visible()
	i := t.IndexOf(r.id)
	if i < 0 {
		return t
	}
	if visible == "" && len(t[i].AgentThoughts) == 0 && len(t[i].Files) == 0 {
		return t.Remove(i)
	}
	return t.Update(r.id, func(m *Message) {
		m.Content = visible
		m.IsStreaming = false
		m.IsError = false
	})
}

func (r *Reconciler) appendContent(t Transcript, text string) (Transcript, tea.Cmd) {
	if text == "" {
		return t, nil
	}
	r.content += text
	visible, cmd := r.sched.Advance(r.content)
	return t.Update(r.id, func(m *Message) { m.Content = visible }), cmd
}

func (r *Reconciler) finalize(t Transcript, hadError bool) (Transcript, Final) {
	if r.failure != nil && r.failure.Cancelled() {
		return r.Abort(t), Final{HadError: true, Cancelled: true, Err: r.failure}
	}

	r.state = Finalized
	if hadError || r.failure != nil {
		r.sched.Cancel()
		var err error = ErrStreamFailed
		if r.failure != nil {
			err = r.failure
		}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Transcript] Dropping answer %s: %v", r.id, err)
		}
		if i := t.IndexOf(r.id); i >= 0 {
			t = t.Remove(i)
		}
		return t, Final{HadError: true, Err: err}
	}

	content := r.sched.Flush()
	if content == "" {
		if text, ok := stream.OutputText(r.outputs); ok {
			content = text
		}
	}
	t = t.Update(r.id, func(m *Message) {
		m.Content = content
		m.IsStreaming = false
		m.IsError = false
	})
	return t, Final{}
}

// MergeThought folds a thought fragment into thoughts. Fragments with a known
// id append their text; non-empty tool fields replace the stored ones.
func MergeThought(thoughts []Thought, d stream.ThoughtDelta) []Thought {
	for i := range thoughts {
		if thoughts[i].ID != d.ID {
			continue
		}
		th := &thoughts[i]
		th.Thought += d.Text
		if d.Tool != "" {
			th.Tool = d.Tool
		}
		if d.ToolInput != "" {
			th.ToolInput = d.ToolInput
		}
		if d.Observation != "" {
			th.Observation = d.Observation
		}
		if d.Position != 0 {
			th.Position = d.Position
		}
		return thoughts
	}
	return append(thoughts, Thought{
		ID:          d.ID,
		Thought:     d.Text,
		Tool:        d.Tool,
		ToolInput:   d.ToolInput,
		Observation: d.Observation,
		Position:    d.Position,
	})
}

// AddFile appends f unless a file with the same id is already attached.
func AddFile(files []File, f stream.FileRef) []File {
	for _, existing := range files {
		if f.ID != "" && existing.ID == f.ID {
			return files
		}
	}
	return append(files, File{ID: f.ID, Type: f.Type, URL: f.URL, BelongsTo: f.BelongsTo})
}
