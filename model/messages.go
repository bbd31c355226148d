package model

import (
	"agentchat/stream"
	"agentchat/transcript"
)

// ParametersLoadedMsg is sent when the agent's parameters have been fetched.
type ParametersLoadedMsg struct {
	Epoch      uint64
	Parameters *AppParameters
	Err        error
}

// ConversationsLoadedMsg is sent when the conversation list has been fetched.
type ConversationsLoadedMsg struct {
	Epoch         uint64
	Conversations []Conversation
	Err           error
}

// MessagesLoadedMsg carries the history of ConversationID.
type MessagesLoadedMsg struct {
	Epoch          uint64
	ConversationID string
	Messages       []transcript.Message
	Err            error
}

// ConversationCreatedMsg is sent when the backend has created a conversation.
type ConversationCreatedMsg struct {
	Epoch        uint64
	Conversation Conversation
	Err          error
}

// ConversationDeletedMsg is sent when a conversation delete completes.
type ConversationDeletedMsg struct {
	Epoch          uint64
	ConversationID string
	Err            error
}

// StreamEventMsg carries one event of the send with sequence number Seq.
type StreamEventMsg struct {
	Seq   uint64
	Event stream.Event
}

// StopResultMsg reports the outcome of asking the server to stop TaskID.
type StopResultMsg struct {
	TaskID string
	Err    error
}
