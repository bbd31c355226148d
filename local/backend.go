// Package local serves agents of kind "local" in-process: replies come from
// an LLM provider, tool calls run through MCP servers and conversations are
// persisted on disk. The backend speaks the same event stream as a remote
// agent platform, so the session controller cannot tell the two apart.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"agentchat/config"
	"agentchat/model"
	"agentchat/provider"
	"agentchat/storage"
	"agentchat/stream"
	"agentchat/transcript"
)

// MaxToolRounds bounds the provider round trips of one send.
const MaxToolRounds = 5

const newConversationName = "New conversation"

// questionPrefix derives the id of the user message of a stored turn from
// the id of its answer.
const questionPrefix = "q-"

// Tools runs the tool calls of a local agent. *mcp.Toolbox implements it.
type Tools interface {
	Tools() []mcptypes.Tool
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Backend is the AgentService of one local agent.
type Backend struct {
	agent    config.AgentConfig
	provider provider.Provider
	tools    Tools
	store    *storage.ConversationStorage
	runs     *storage.RunLog
	tasks    *TaskRegistry
}

var _ model.AgentService = (*Backend)(nil)

// New creates a backend. tools and runs may be nil.
func New(agent config.AgentConfig, p provider.Provider, tools Tools, store *storage.ConversationStorage, runs *storage.RunLog) *Backend {
	return &Backend{
		agent:    agent,
		provider: p,
		tools:    tools,
		store:    store,
		runs:     runs,
		tasks:    NewTaskRegistry(),
	}
}

// Tasks exposes the registry of running sends.
func (b *Backend) Tasks() *TaskRegistry {
	return b.tasks
}

func (b *Backend) checkAgent(agentID string) error {
	if agentID != b.agent.ID {
		return fmt.Errorf("local backend serves agent %q, not %q", b.agent.ID, agentID)
	}
	return nil
}

// SendMessage runs one turn against the provider and streams it into h.
func (b *Backend) SendMessage(ctx context.Context, req model.SendRequest, h stream.Handler) error {
	if err := b.checkAgent(req.AgentID); err != nil {
		emitError(h, err)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	taskID := uuid.NewString()
	b.tasks.Add(taskID, cancel)
	defer b.tasks.Remove(taskID)

	conv, err := b.openConversation(req)
	if err != nil {
		emitError(h, err)
		return err
	}

	messageID := uuid.NewString()
	h.Handle(stream.MessageMeta{
		MessageID:      messageID,
		ConversationID: conv.ID,
		TaskID:         taskID,
	})

	b.startRun(ctx, storage.Run{
		TaskID:         taskID,
		AgentID:        b.agent.ID,
		ConversationID: conv.ID,
		MessageID:      messageID,
		Provider:       b.agent.Provider,
		Model:          b.provider.GetModel(),
	})

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Local] Task %s started for agent %s (conversation %s)", taskID, b.agent.ID, conv.ID)
	}

	answer := transcript.Message{
		ID:             messageID,
		ConversationID: conv.ID,
		Query:          req.Query,
		IsAnswer:       true,
		CreatedAt:      time.Now(),
	}

	turn := &turnState{h: h}
	err = b.generate(ctx, b.buildMessages(conv, req.Query), turn)
	answer.Content = turn.content.String()
	answer.AgentThoughts = turn.thoughts

	switch {
	case err != nil && ctx.Err() != nil:
		// Stopped by the user: keep what was generated so far.
		b.persistTurn(conv.ID, answer)
		b.finishRun(taskID, storage.RunStopped, turn.toolCalls, "")
		for _, ev := range stream.CancelledEvents(ctx.Err()) {
			h.Handle(ev)
		}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Local] Task %s stopped", taskID)
		}
		return stream.ErrCancelled

	case err != nil:
		b.finishRun(taskID, storage.RunFailed, turn.toolCalls, err.Error())
		emitError(h, err)
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Local] Task %s failed: %v", taskID, err)
		}
		return err
	}

	answer.Metadata = b.metadata(turn.toolCalls)
	b.persistTurn(conv.ID, answer)
	b.finishRun(taskID, storage.RunSucceeded, turn.toolCalls, "")

	h.Handle(stream.MessageEnd{Metadata: answer.Metadata})
	h.Handle(stream.Done{})

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Local] Task %s finished: %d chars, %d tool calls", taskID, len(answer.Content), turn.toolCalls)
	}
	return nil
}

// turnState accumulates what one send produced.
type turnState struct {
	h         stream.Handler
	content   strings.Builder
	thoughts  []transcript.Thought
	toolCalls int
}

func (t *turnState) thought(d stream.ThoughtDelta) {
	t.thoughts = transcript.MergeThought(t.thoughts, d)
	t.h.Handle(d)
}

// generate runs provider rounds until the model stops asking for tools.
// Tool results are fed back as tool messages for the next round.
func (b *Backend) generate(ctx context.Context, messages []provider.Message, turn *turnState) error {
	var tools []mcptypes.Tool
	if b.tools != nil {
		tools = b.tools.Tools()
	}

	for round := 0; ; round++ {
		var (
			text  strings.Builder
			calls []provider.ToolCall
		)

		err := b.provider.ChatWithTools(ctx, messages, tools, func(chunk string, toolCalls []provider.ToolCall) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if chunk != "" {
				text.WriteString(chunk)
				turn.content.WriteString(chunk)
				turn.h.Handle(stream.ContentDelta{Text: chunk})
			}
			calls = append(calls, toolCalls...)
			return nil
		})
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if len(calls) == 0 || b.tools == nil {
			return nil
		}
		if round >= MaxToolRounds {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Local] Tool round limit reached, ignoring %d tool calls", len(calls))
			}
			return nil
		}

		messages = append(messages, provider.Message{Role: "assistant", Content: text.String()})
		for _, call := range calls {
			observation, err := b.runTool(ctx, call, turn)
			if err != nil {
				return err
			}
			messages = append(messages, provider.Message{Role: "tool", Content: observation})
		}
	}
}

// runTool executes one call and records it as a thought. Tool failures are
// reported back to the model; only cancellation aborts the turn.
func (b *Backend) runTool(ctx context.Context, call provider.ToolCall, turn *turnState) (string, error) {
	turn.toolCalls++
	thoughtID := uuid.NewString()

	input, err := json.Marshal(call.Arguments)
	if err != nil {
		input = []byte("{}")
	}
	turn.thought(stream.ThoughtDelta{
		ID:        thoughtID,
		Tool:      call.Name,
		ToolInput: string(input),
		Position:  len(turn.thoughts) + 1,
	})

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Local] Executing tool %s", call.Name)
	}

	observation, err := b.tools.CallTool(ctx, call.Name, call.Arguments)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Local] Tool %s failed: %v", call.Name, err)
		}
		observation = fmt.Sprintf("Error executing %s: %v", call.Name, err)
	}
	if observation == "" {
		observation = "Tool executed successfully (no output)"
	}

	turn.thought(stream.ThoughtDelta{ID: thoughtID, Observation: observation})
	return observation, nil
}

// openConversation loads the conversation of req, creating it when the
// request starts a new one. First-turn inputs are stored with the
// conversation.
func (b *Backend) openConversation(req model.SendRequest) (*storage.Conversation, error) {
	if req.ConversationID == "" {
		conv := &storage.Conversation{
			Name:   storage.GenerateConversationName(req.Query),
			Inputs: req.Inputs,
		}
		if err := b.store.Save(conv); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		return conv, nil
	}

	var conv *storage.Conversation
	err := b.store.Update(req.ConversationID, func(c *storage.Conversation) {
		if len(c.Messages) == 0 && (c.Name == "" || c.Name == newConversationName) {
			c.Name = storage.GenerateConversationName(req.Query)
		}
		if len(c.Inputs) == 0 && len(req.Inputs) > 0 {
			c.Inputs = req.Inputs
		}
		conv = c
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation: %w", err)
	}
	return conv, nil
}

// buildMessages assembles the system prompt, the stored history and the new
// query.
func (b *Backend) buildMessages(conv *storage.Conversation, query string) []provider.Message {
	var messages []provider.Message

	if prompt := SystemPrompt(b.agent.SystemPrompt, conv.Inputs); prompt != "" {
		messages = append(messages, provider.Message{Role: "system", Content: prompt})
	}
	for _, turn := range conv.Messages {
		messages = append(messages,
			provider.Message{Role: "user", Content: turn.Query},
			provider.Message{Role: "assistant", Content: turn.Content},
		)
	}
	return append(messages, provider.Message{Role: "user", Content: query})
}

// SystemPrompt appends the first-turn inputs to base as "key: value" lines,
// sorted by key.
func SystemPrompt(base string, inputs map[string]any) string {
	if len(inputs) == 0 {
		return base
	}

	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(base)
	if base != "" {
		sb.WriteString("\n\n")
	}
	for i, k := range keys {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s: %v", k, inputs[k])
	}
	return sb.String()
}

func (b *Backend) persistTurn(conversationID string, answer transcript.Message) {
	err := b.store.Update(conversationID, func(c *storage.Conversation) {
		c.Messages = append(c.Messages, answer)
	})
	if err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Local] Failed to persist turn %s: %v", answer.ID, err)
	}
}

func (b *Backend) metadata(toolCalls int) json.RawMessage {
	data, err := json.Marshal(struct {
		Provider  string `json:"provider"`
		Model     string `json:"model"`
		ToolCalls int    `json:"tool_calls"`
	}{b.agent.Provider, b.provider.GetModel(), toolCalls})
	if err != nil {
		return nil
	}
	return data
}

func (b *Backend) startRun(ctx context.Context, run storage.Run) {
	if b.runs == nil {
		return
	}
	if err := b.runs.Start(ctx, run); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Local] Failed to record run %s: %v", run.TaskID, err)
	}
}

// finishRun runs on a fresh context: the send context may already be
// cancelled.
func (b *Backend) finishRun(taskID string, status storage.RunStatus, toolCalls int, errMsg string) {
	if b.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.runs.Finish(ctx, taskID, status, toolCalls, errMsg); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Local] Failed to finish run %s: %v", taskID, err)
	}
}

func emitError(h stream.Handler, err error) {
	h.Handle(stream.Error{Reason: err.Error(), Err: err})
	h.Handle(stream.Done{HadError: true})
}

// StopGeneration cancels a running task. Unknown ids are ignored.
func (b *Backend) StopGeneration(ctx context.Context, agentID, taskID string) error {
	if err := b.checkAgent(agentID); err != nil {
		return err
	}
	if !b.tasks.Cancel(taskID) && config.DebugLog != nil {
		config.DebugLog.Printf("[Local] Stop for unknown task %s ignored", taskID)
	}
	return nil
}

func (b *Backend) GetConversations(ctx context.Context, agentID string) ([]model.Conversation, error) {
	if err := b.checkAgent(agentID); err != nil {
		return nil, err
	}

	metas, err := b.store.List()
	if err != nil {
		return nil, err
	}

	convs := make([]model.Conversation, 0, len(metas))
	for _, m := range metas {
		convs = append(convs, model.Conversation{
			ID:        m.ID,
			Name:      m.Name,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		})
	}
	return convs, nil
}

// GetMessages expands every stored turn into the user message and its
// answer.
func (b *Backend) GetMessages(ctx context.Context, agentID, conversationID string) ([]transcript.Message, error) {
	if err := b.checkAgent(agentID); err != nil {
		return nil, err
	}

	conv, err := b.store.Load(conversationID)
	if err != nil {
		return nil, err
	}

	msgs := make([]transcript.Message, 0, 2*len(conv.Messages))
	for _, answer := range conv.Messages {
		msgs = append(msgs, transcript.Message{
			ID:             questionPrefix + answer.ID,
			ConversationID: conv.ID,
			Query:          answer.Query,
			Content:        answer.Query,
			CreatedAt:      answer.CreatedAt,
		})
		answer.ConversationID = conv.ID
		answer.IsAnswer = true
		answer.IsStreaming = false
		msgs = append(msgs, answer.Clone())
	}
	return msgs, nil
}

func (b *Backend) CreateConversation(ctx context.Context, agentID string) (model.Conversation, error) {
	if err := b.checkAgent(agentID); err != nil {
		return model.Conversation{}, err
	}

	conv := &storage.Conversation{Name: newConversationName}
	if err := b.store.Save(conv); err != nil {
		return model.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return model.Conversation{
		ID:        conv.ID,
		Name:      conv.Name,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}, nil
}

// DeleteConversation removes a conversation. Deleting an unknown id is not
// an error.
func (b *Backend) DeleteConversation(ctx context.Context, agentID, conversationID string) error {
	if err := b.checkAgent(agentID); err != nil {
		return err
	}
	if err := b.store.Delete(conversationID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// GetApplicationParameters serves the parameters from the agent config.
func (b *Backend) GetApplicationParameters(ctx context.Context, agentID string) (*model.AppParameters, error) {
	if err := b.checkAgent(agentID); err != nil {
		return nil, err
	}

	params := &model.AppParameters{
		OpeningStatement:   b.agent.OpeningStatement,
		SuggestedQuestions: append([]string(nil), b.agent.SuggestedQuestions...),
	}
	for _, in := range b.agent.Inputs {
		field := model.InputField{
			Variable: in.Variable,
			Label:    in.Label,
			Type:     in.Type,
			Required: in.Required,
			Default:  in.Default,
			Options:  append([]string(nil), in.Options...),
		}
		if field.Type == "" {
			field.Type = "text-input"
		}
		if field.Label == "" {
			field.Label = field.Variable
		}
		params.UserInputForm = append(params.UserInputForm, field)
	}
	return params, nil
}
