package model

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"

	"agentchat/config"
	"agentchat/transcript"
)

// requestTimeout bounds every non-streaming backend call.
const requestTimeout = 30 * time.Second

// LoadParameters fetches the agent's application parameters
func (m *Model) LoadParameters() tea.Cmd {
	if m.Service == nil {
		return nil
	}
	svc, agentID, epoch := m.Service, m.AgentID, m.epoch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		params, err := svc.GetApplicationParameters(ctx, agentID)
		return ParametersLoadedMsg{Epoch: epoch, Parameters: params, Err: err}
	}
}

// LoadConversations fetches the conversation list of the agent
func (m *Model) LoadConversations() tea.Cmd {
	if m.Service == nil {
		return nil
	}
	svc, agentID, epoch := m.Service, m.AgentID, m.epoch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		convs, err := svc.GetConversations(ctx, agentID)
		return ConversationsLoadedMsg{Epoch: epoch, Conversations: convs, Err: err}
	}
}

// LoadMessages fetches the history of a conversation
func (m *Model) LoadMessages(conversationID string) tea.Cmd {
	if m.Service == nil || conversationID == "" {
		return nil
	}
	svc, agentID, epoch := m.Service, m.AgentID, m.epoch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		msgs, err := svc.GetMessages(ctx, agentID, conversationID)
		return MessagesLoadedMsg{Epoch: epoch, ConversationID: conversationID, Messages: msgs, Err: err}
	}
}

// SwitchConversation makes id the active conversation, aborting any send in
// flight. An empty id starts a new chat with an empty transcript.
func (m *Model) SwitchConversation(id string) tea.Cmd {
	stop := m.Stop()

	m.ActiveConversationID = id
	m.FirstTurnInputs = nil
	m.Messages = nil
	m.historyFor = id

	if id == "" {
		return stop
	}
	return tea.Batch(stop, m.LoadMessages(id))
}

// CreateNewConversation asks the backend for a new conversation and switches
// into it once created.
func (m *Model) CreateNewConversation() tea.Cmd {
	if m.Service == nil {
		return nil
	}
	svc, agentID, epoch := m.Service, m.AgentID, m.epoch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		conv, err := svc.CreateConversation(ctx, agentID)
		return ConversationCreatedMsg{Epoch: epoch, Conversation: conv, Err: err}
	}
}

// DeleteConversation deletes a conversation on the backend
func (m *Model) DeleteConversation(id string) tea.Cmd {
	if m.Service == nil || id == "" {
		return nil
	}
	svc, agentID, epoch := m.Service, m.AgentID, m.epoch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		err := svc.DeleteConversation(ctx, agentID, id)
		return ConversationDeletedMsg{Epoch: epoch, ConversationID: id, Err: err}
	}
}

func (m *Model) handleParametersLoaded(msg ParametersLoadedMsg) tea.Cmd {
	if msg.Epoch != m.epoch {
		return nil
	}
	if msg.Err != nil {
		m.notify(NoticeWarning, "Could not load agent settings: %v", msg.Err)
		return nil
	}
	m.Parameters = msg.Parameters
	return nil
}

func (m *Model) handleConversationsLoaded(msg ConversationsLoadedMsg) tea.Cmd {
	if msg.Epoch != m.epoch {
		return nil
	}
	if msg.Err != nil {
		m.notify(NoticeWarning, "Could not load conversations: %v", msg.Err)
		return nil
	}
	m.Conversations = msg.Conversations
	return nil
}

func (m *Model) handleMessagesLoaded(msg MessagesLoadedMsg) tea.Cmd {
	if msg.Epoch != m.epoch || msg.ConversationID != m.ActiveConversationID || msg.ConversationID != m.historyFor {
		return nil
	}
	m.historyFor = ""
	if msg.Err != nil {
		m.notify(NoticeWarning, "Could not load messages: %v", msg.Err)
		return nil
	}

	// Turns sent since the switch, finished or not, stay last.
	m.Messages = mergeHistory(transcript.Transcript(msg.Messages), m.Messages)
	return nil
}

// mergeHistory puts history before the turns sent since the switch. Answers
// the history already holds are taken from since, together with the question
// right before them.
func mergeHistory(history, since transcript.Transcript) transcript.Transcript {
	if len(since) == 0 {
		return history
	}
	known := make(map[string]bool, len(since))
	for _, msg := range since {
		known[msg.ID] = true
	}

	merged := make(transcript.Transcript, 0, len(history)+len(since))
	for i, msg := range history {
		if known[msg.ID] {
			continue
		}
		if !msg.IsAnswer && i+1 < len(history) && known[history[i+1].ID] {
			continue
		}
		merged = append(merged, msg)
	}
	return append(merged, since...)
}

func (m *Model) handleConversationCreated(msg ConversationCreatedMsg) tea.Cmd {
	if msg.Epoch != m.epoch {
		return nil
	}
	if msg.Err != nil {
		m.notify(NoticeWarning, "Could not create conversation: %v", msg.Err)
		return nil
	}

	m.Conversations = append([]Conversation{msg.Conversation}, m.Conversations...)

	// A fresh conversation has no history to load.
	stop := m.Stop()
	m.ActiveConversationID = msg.Conversation.ID
	m.FirstTurnInputs = nil
	m.Messages = nil
	m.historyFor = ""
	return stop
}

func (m *Model) handleConversationDeleted(msg ConversationDeletedMsg) tea.Cmd {
	if msg.Epoch != m.epoch {
		return nil
	}
	if msg.Err != nil {
		m.notify(NoticeWarning, "Could not delete conversation: %v", msg.Err)
		return nil
	}

	for i, c := range m.Conversations {
		if c.ID == msg.ConversationID {
			m.Conversations = append(m.Conversations[:i:i], m.Conversations[i+1:]...)
			break
		}
	}

	if msg.ConversationID != m.ActiveConversationID {
		return nil
	}
	stop := m.Stop()
	m.ActiveConversationID = ""
	m.FirstTurnInputs = nil
	m.Messages = nil
	m.historyFor = ""
	return stop
}

// conversationSource adapts a conversation list to fuzzy.Source.
type conversationSource []Conversation

func (s conversationSource) String(i int) string { return s[i].Name }
func (s conversationSource) Len() int            { return len(s) }

// FilterConversations returns the conversations whose names fuzzily match
// query, best match first. An empty query returns the full list.
func (m *Model) FilterConversations(query string) []Conversation {
	if query == "" {
		return m.Conversations
	}

	matches := fuzzy.FindFrom(query, conversationSource(m.Conversations))
	out := make([]Conversation, len(matches))
	for i, match := range matches {
		out[i] = m.Conversations[match.Index]
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Model] Filter %q matched %d of %d conversations", query, len(out), len(m.Conversations))
	}
	return out
}
