package model

import (
	"context"
	"time"

	"agentchat/stream"
	"agentchat/transcript"
)

// AgentService is the backend serving one or more agents. The remote
// platform client (agentapi) and the in-process backend (local) both
// implement it.
type AgentService interface {
	// SendMessage streams the reply to req into h and blocks until the stream
	// ends. Every event, including the final Done, is delivered to h; the
	// returned error is informational only.
	SendMessage(ctx context.Context, req SendRequest, h stream.Handler) error

	// StopGeneration asks the backend to stop the task identified by taskID.
	StopGeneration(ctx context.Context, agentID, taskID string) error

	GetConversations(ctx context.Context, agentID string) ([]Conversation, error)

	// GetMessages returns the history of a conversation in chronological
	// order, one user message followed by its answer per turn.
	GetMessages(ctx context.Context, agentID, conversationID string) ([]transcript.Message, error)

	CreateConversation(ctx context.Context, agentID string) (Conversation, error)
	DeleteConversation(ctx context.Context, agentID, conversationID string) error
	GetApplicationParameters(ctx context.Context, agentID string) (*AppParameters, error)
}

// SendRequest is one user turn. An empty ConversationID starts a new
// conversation.
type SendRequest struct {
	AgentID        string
	ConversationID string
	Query          string
	Inputs         map[string]any
	User           string
}

// Conversation is a conversation as listed in the sidebar.
type Conversation struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Inputs    map[string]any
}

// AppParameters is the agent's session configuration. A session is only
// usable once it has been loaded.
type AppParameters struct {
	OpeningStatement   string
	SuggestedQuestions []string
	UserInputForm      []InputField
}

// InputField is one variable of the first-turn input form.
type InputField struct {
	Variable string
	Label    string
	Type     string // text-input, paragraph, select, number
	Required bool
	Default  string
	Options  []string
}
