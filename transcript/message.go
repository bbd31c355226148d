// Package transcript holds the ordered message list of one conversation and
// the reconciler that folds a stream of events into its in-flight answer.
package transcript

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempPrefix marks ids allocated locally before the server assigned one.
const TempPrefix = "temp-"

// Message is one turn of a conversation.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Query          string          `json:"query,omitempty"`
	Content        string          `json:"content"`
	IsAnswer       bool            `json:"is_answer"`
	IsStreaming    bool            `json:"is_streaming,omitempty"`
	IsError        bool            `json:"is_error,omitempty"`
	AgentThoughts  []Thought       `json:"agent_thoughts,omitempty"`
	Files          []File          `json:"files,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Thought is a reasoning or tool-use trace attached to an answer.
type Thought struct {
	ID          string `json:"id"`
	Thought     string `json:"thought"`
	Tool        string `json:"tool,omitempty"`
	ToolInput   string `json:"tool_input,omitempty"`
	Observation string `json:"observation,omitempty"`
	Position    int    `json:"position"`
}

// File references an attachment.
type File struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	BelongsTo string `json:"belongs_to,omitempty"`
}

// IsTemporary reports whether the message still carries a local id.
func (m Message) IsTemporary() bool {
	return strings.HasPrefix(m.ID, TempPrefix)
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	m.AgentThoughts = slices.Clone(m.AgentThoughts)
	m.Files = slices.Clone(m.Files)
	m.Metadata = slices.Clone(m.Metadata)
	return m
}

// NewID returns a fresh local message id.
func NewID() string {
	return TempPrefix + uuid.NewString()
}

// NewTurn builds the user message and the streaming answer placeholder for a
// send. Both carry local ids until the server reveals the real ones.
func NewTurn(conversationID, text string) (user, answer Message) {
	now := time.Now()
	user = Message{
		ID:             NewID(),
		ConversationID: conversationID,
		Query:          text,
		Content:        text,
		CreatedAt:      now,
	}
	answer = Message{
		ID:             NewID(),
		ConversationID: conversationID,
		IsAnswer:       true,
		IsStreaming:    true,
		CreatedAt:      now,
	}
	return user, answer
}
