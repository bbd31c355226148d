// Package model holds the agent-scoped session state of agentchat: the
// conversation list, the active transcript and the single in-flight send.
//
// All state changes happen in Model.Update, called from the bubbletea
// program loop. Operations that talk to the agent backend return a tea.Cmd
// whose result comes back to Update as a message.
package model

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"agentchat/config"
	"agentchat/stream"
	"agentchat/transcript"
	"agentchat/typewriter"
)

// Model holds the core session state of one agent
type Model struct {
	// Agent being talked to
	AgentID string
	Service AgentService
	User    string

	// Session data. Parameters is nil until loaded; a session without
	// parameters does not accept sends.
	Parameters           *AppParameters
	Conversations        []Conversation
	ActiveConversationID string
	Messages             transcript.Transcript
	FirstTurnInputs      map[string]any

	// historyFor names the conversation whose history is still loading.
	historyFor string

	// Runtime state (not UI)
	Responding bool
	Notices    []Notice

	typewriterOpts typewriter.Options

	// Cancellation gate
	abort  context.CancelFunc
	taskID string
	seq    uint64
	events <-chan stream.Event
	recon  *transcript.Reconciler

	// epoch changes on every agent switch; results of older epochs are
	// dropped.
	epoch uint64
}

// NewModel creates a session for agentID served by svc. Call Init to load
// its parameters and conversations.
func NewModel(agentID string, svc AgentService, user string, opts typewriter.Options) *Model {
	return &Model{
		AgentID:        agentID,
		Service:        svc,
		User:           user,
		typewriterOpts: opts,
	}
}

// Init loads the agent's parameters and conversation list.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.LoadParameters(), m.LoadConversations())
}

// Update applies a result message to the session. Messages of an older
// agent epoch or send are ignored.
func (m *Model) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case ParametersLoadedMsg:
		return m.handleParametersLoaded(msg)
	case ConversationsLoadedMsg:
		return m.handleConversationsLoaded(msg)
	case MessagesLoadedMsg:
		return m.handleMessagesLoaded(msg)
	case ConversationCreatedMsg:
		return m.handleConversationCreated(msg)
	case ConversationDeletedMsg:
		return m.handleConversationDeleted(msg)
	case StreamEventMsg:
		return m.handleStreamEvent(msg)
	case typewriter.TickMsg:
		return m.handleTick(msg)
	case StopResultMsg:
		if msg.Err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[Model] Stop of task %s failed (ignored): %v", msg.TaskID, msg.Err)
		}
		return nil
	}
	return nil
}

// Pending reports whether a typewriter reveal is armed for the in-flight
// answer.
func (m *Model) Pending() bool {
	return m.recon != nil && m.recon.Pending()
}

// TaskID returns the server task id of the in-flight send, if revealed.
func (m *Model) TaskID() string {
	return m.taskID
}

// SwitchAgent fully resets the session onto another agent and reloads its
// parameters and conversations.
func (m *Model) SwitchAgent(agentID string, svc AgentService) tea.Cmd {
	stop := m.Stop()

	m.epoch++
	m.AgentID = agentID
	m.Service = svc
	m.Parameters = nil
	m.Conversations = nil
	m.ActiveConversationID = ""
	m.Messages = nil
	m.FirstTurnInputs = nil
	m.historyFor = ""
	m.Responding = false

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Model] Switched to agent %s (epoch %d)", agentID, m.epoch)
	}
	return tea.Batch(stop, m.LoadParameters(), m.LoadConversations())
}
