package model

import (
	"context"
	"maps"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"agentchat/config"
	"agentchat/stream"
	"agentchat/transcript"
	"agentchat/typewriter"
)

// eventBuffer is how many decoded events the transport may run ahead of the
// update loop.
const eventBuffer = 64

const stopTimeout = 10 * time.Second

// SendMessage starts a send of text. It is a no-op while a send is in
// flight, for blank text and before the agent's parameters are loaded.
//
// Non-empty inputs become the conversation's first-turn inputs; later sends
// without inputs reuse them.
func (m *Model) SendMessage(text string, inputs map[string]any) tea.Cmd {
	if m.Responding || strings.TrimSpace(text) == "" || m.Parameters == nil || m.Service == nil {
		return nil
	}

	effective := map[string]any{}
	switch {
	case len(inputs) > 0:
		m.FirstTurnInputs = maps.Clone(inputs)
		effective = maps.Clone(inputs)
	case len(m.FirstTurnInputs) > 0:
		effective = maps.Clone(m.FirstTurnInputs)
	}

	user, answer := transcript.NewTurn(m.ActiveConversationID, text)
	m.Messages = m.Messages.Append(user, answer)

	m.seq++
	m.recon = transcript.NewReconciler(answer.ID, typewriter.New(m.typewriterOpts))
	m.taskID = ""
	m.Responding = true

	ctx, cancel := context.WithCancel(context.Background())
	m.abort = cancel

	events := make(chan stream.Event, eventBuffer)
	m.events = events

	req := SendRequest{
		AgentID:        m.AgentID,
		ConversationID: m.ActiveConversationID,
		Query:          text,
		Inputs:         effective,
		User:           m.User,
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Model] Send %d to agent %s (conversation %q, %d inputs)", m.seq, m.AgentID, req.ConversationID, len(effective))
	}

	go runTransport(ctx, m.Service, req, events)
	return waitForEvent(m.seq, events)
}

// runTransport runs one send and forwards its events in order. Done is
// always the last event forwarded, unless the send was aborted.
func runTransport(ctx context.Context, svc AgentService, req SendRequest, events chan<- stream.Event) {
	defer close(events)

	sawDone := false
	forward := func(ev stream.Event) {
		if _, ok := ev.(stream.Done); ok {
			if sawDone {
				return
			}
			sawDone = true
		}
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	err := svc.SendMessage(ctx, req, stream.HandlerFunc(forward))
	if !sawDone {
		if err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[Model] Send ended without Done: %v", err)
		}
		forward(stream.Done{HadError: err != nil})
	}
}

// waitForEvent reads the next event of send seq. A closed channel reads as
// a failed Done; it only happens when the send was already aborted.
func waitForEvent(seq uint64, events <-chan stream.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return StreamEventMsg{Seq: seq, Event: stream.Done{HadError: true}}
		}
		return StreamEventMsg{Seq: seq, Event: ev}
	}
}

func (m *Model) handleStreamEvent(msg StreamEventMsg) tea.Cmd {
	if msg.Seq != m.seq || m.recon == nil {
		return nil
	}

	var out transcript.Outcome
	m.Messages, out = m.recon.Apply(m.Messages, msg.Event)

	if out.TaskID != "" {
		m.taskID = out.TaskID
	}
	if out.ConversationID != "" && m.ActiveConversationID == "" {
		m.adoptConversation(out.ConversationID)
	}

	if out.Final != nil {
		return tea.Batch(out.Cmd, m.finish(*out.Final))
	}
	return tea.Batch(out.Cmd, waitForEvent(m.seq, m.events))
}

// adoptConversation records the id the server allocated for a new
// conversation and stamps it on the messages sent before it was known.
func (m *Model) adoptConversation(id string) {
	m.ActiveConversationID = id
	for _, msg := range m.Messages {
		if msg.ConversationID == "" {
			m.Messages = m.Messages.Update(msg.ID, func(mm *transcript.Message) { mm.ConversationID = id })
		}
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Model] Conversation %s allocated by the server", id)
	}
}

// finish releases the gate after the answer was finalized.
func (m *Model) finish(final transcript.Final) tea.Cmd {
	m.release()

	switch {
	case final.Cancelled:
		return nil
	case final.HadError:
		m.notify(NoticeError, "The agent could not answer: %v", final.Err)
		return nil
	default:
		return m.LoadConversations()
	}
}

func (m *Model) handleTick(msg typewriter.TickMsg) tea.Cmd {
	if m.recon == nil {
		return nil
	}
	var cmd tea.Cmd
	m.Messages, cmd = m.recon.Tick(m.Messages, msg)
	return cmd
}

// Stop is the cancellation gate. It aborts the local read, finalizes the
// in-flight answer with what was already shown and, when the server task
// is known, returns a best-effort command asking the backend to stop it.
// Stop is a no-op when nothing is in flight.
func (m *Model) Stop() tea.Cmd {
	if !m.Responding && m.abort == nil {
		return nil
	}

	if m.recon != nil {
		m.Messages = m.recon.Abort(m.Messages)
	}
	taskID := m.taskID
	m.release()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Model] Send %d stopped (task %q)", m.seq, taskID)
	}

	if taskID == "" || m.Service == nil {
		return nil
	}
	svc, agentID := m.Service, m.AgentID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return StopResultMsg{TaskID: taskID, Err: svc.StopGeneration(ctx, agentID, taskID)}
	}
}

// release cancels the send context and resets the gate.
func (m *Model) release() {
	if m.abort != nil {
		m.abort()
		m.abort = nil
	}
	m.recon = nil
	m.events = nil
	m.taskID = ""
	m.Responding = false
}
