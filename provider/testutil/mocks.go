package testutil

import (
	"context"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"agentchat/provider"
)

// MockProvider implements provider.Provider for testing. Calls to
// ChatWithTools are recorded.
type MockProvider struct {
	// Configurable responses
	ChatWithToolsFunc func(ctx context.Context, messages []provider.Message, tools []mcptypes.Tool, callback provider.StreamCallback) error
	ListModelsFunc    func(ctx context.Context) ([]provider.ModelInfo, error)
	PingFunc          func(ctx context.Context) error

	mu           sync.Mutex
	calls        [][]provider.Message
	currentModel string
}

// NewMockProvider creates a mock provider with default implementations
func NewMockProvider(modelName string) *MockProvider {
	mock := &MockProvider{
		currentModel: modelName,
	}
	mock.ChatWithToolsFunc = mock.defaultChatWithTools
	mock.ListModelsFunc = mock.defaultListModels
	mock.PingFunc = func(ctx context.Context) error { return nil }
	return mock
}

// Scripted returns a mock whose successive chat rounds stream the given
// chunks. Rounds past the end of the script stream nothing.
func Scripted(modelName string, rounds ...Round) *MockProvider {
	mock := NewMockProvider(modelName)
	var next int
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []provider.Message, tools []mcptypes.Tool, callback provider.StreamCallback) error {
		mock.mu.Lock()
		i := next
		next++
		mock.mu.Unlock()

		if i >= len(rounds) {
			return nil
		}
		return rounds[i].play(ctx, callback)
	}
	return mock
}

// Round is one scripted provider response.
type Round struct {
	Chunks    []string
	ToolCalls []provider.ToolCall
	Err       error
	// Block waits for context cancellation after the chunks are sent.
	Block bool
}

func (r Round) play(ctx context.Context, callback provider.StreamCallback) error {
	for _, chunk := range r.Chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := callback(chunk, nil); err != nil {
			return err
		}
	}
	if len(r.ToolCalls) > 0 {
		if err := callback("", r.ToolCalls); err != nil {
			return err
		}
	}
	if r.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.Err
}

func (m *MockProvider) defaultChatWithTools(ctx context.Context, messages []provider.Message, tools []mcptypes.Tool, callback provider.StreamCallback) error {
	if len(messages) == 0 || callback == nil {
		return nil
	}
	return callback("Mock response", nil)
}

func (m *MockProvider) defaultListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	return []provider.ModelInfo{
		{Name: "mock-model-1", Size: 1000, Provider: "mock", InternalName: "mock-model-1"},
		{Name: "mock-model-2", Size: 2000, Provider: "mock", InternalName: "mock-model-2"},
	}, nil
}

func (m *MockProvider) Chat(ctx context.Context, messages []provider.Message, callback provider.StreamCallback) error {
	return m.ChatWithTools(ctx, messages, nil, callback)
}

func (m *MockProvider) ChatWithTools(ctx context.Context, messages []provider.Message, tools []mcptypes.Tool, callback provider.StreamCallback) error {
	m.mu.Lock()
	m.calls = append(m.calls, append([]provider.Message(nil), messages...))
	m.mu.Unlock()
	return m.ChatWithToolsFunc(ctx, messages, tools, callback)
}

// Calls returns the message lists of every chat round so far.
func (m *MockProvider) Calls() [][]provider.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]provider.Message(nil), m.calls...)
}

func (m *MockProvider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	return m.ListModelsFunc(ctx)
}

func (m *MockProvider) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentModel
}

func (m *MockProvider) GetDisplayName() string {
	return m.GetModel()
}

func (m *MockProvider) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}
